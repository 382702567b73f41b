// ABOUTME: Helpers for turning raw or HTML mail bodies into plain text
// ABOUTME: Shared by the Gmail API and IMAP backends

package inbox

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
)

// TextFromHTML converts an HTML body to Markdown text
func TextFromHTML(html string) (string, error) {
	md, err := htmltomarkdown.ConvertString(html)
	if err != nil {
		return "", fmt.Errorf("converting html body: %w", err)
	}
	return strings.TrimSpace(md), nil
}

// PickBody prefers the plain text alternative and falls back to converted HTML
func PickBody(text, html string) string {
	if strings.TrimSpace(text) != "" {
		return NormalizeBody(text)
	}
	if strings.TrimSpace(html) == "" {
		return ""
	}
	md, err := TextFromHTML(html)
	if err != nil {
		return NormalizeBody(html)
	}
	return md
}

// NormalizeBody converts CRLF line endings and trims surrounding whitespace
func NormalizeBody(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.TrimSpace(s)
}

// ParseRaw decodes an RFC 5322 message into a Message.
// ID and ThreadID are left for the caller to fill in.
func ParseRaw(raw []byte) (Message, error) {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		return Message{}, fmt.Errorf("parsing message: %w", err)
	}
	defer mr.Close()

	msg := Message{
		From:    headerText(mr.Header, "From"),
		To:      headerText(mr.Header, "To"),
		Subject: headerText(mr.Header, "Subject"),
		Date:    mr.Header.Get("Date"),
	}
	if id, err := mr.Header.MessageID(); err == nil && id != "" {
		msg.MessageIDHeader = "<" + id + ">"
	}

	var text, html string
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return msg, fmt.Errorf("reading message part: %w", err)
		}

		h, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		contentType, _, _ := h.ContentType()
		body, err := io.ReadAll(part.Body)
		if err != nil {
			continue
		}
		switch {
		case strings.HasPrefix(contentType, "text/plain") && text == "":
			text = string(body)
		case strings.HasPrefix(contentType, "text/html") && html == "":
			html = string(body)
		}
	}

	msg.Body = PickBody(text, html)
	return msg, nil
}

func headerText(h mail.Header, key string) string {
	v, err := h.Text(key)
	if err != nil {
		return h.Get(key)
	}
	return v
}

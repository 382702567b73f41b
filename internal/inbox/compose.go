// ABOUTME: Builds outgoing MIME messages with text and HTML alternatives
// ABOUTME: Sets In-Reply-To and References so providers thread the reply correctly

package inbox

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/yuin/goldmark"
)

// Draft is an Outgoing message plus the envelope details only a backend knows
type Draft struct {
	Outgoing

	From string

	// InReplyTo is the Message-ID header of the first message in the thread.
	InReplyTo string

	// OmitBcc leaves the Bcc header out; SMTP backends deliver Bcc via RCPT only.
	OmitBcc bool

	Date time.Time
}

// Compose renders d as an RFC 5322 message with a multipart/alternative body
func Compose(d Draft) ([]byte, error) {
	if len(d.To) == 0 {
		return nil, errors.New("compose: at least one recipient is required")
	}

	var h mail.Header
	if d.Date.IsZero() {
		d.Date = time.Now()
	}
	h.SetDate(d.Date)
	h.SetSubject(d.Subject)

	if d.From != "" {
		if err := setAddresses(&h, "From", []string{d.From}); err != nil {
			return nil, err
		}
	}
	if err := setAddresses(&h, "To", d.To); err != nil {
		return nil, err
	}
	if err := setAddresses(&h, "Cc", d.Cc); err != nil {
		return nil, err
	}
	if !d.OmitBcc {
		if err := setAddresses(&h, "Bcc", d.Bcc); err != nil {
			return nil, err
		}
	}

	if err := h.GenerateMessageID(); err != nil {
		return nil, fmt.Errorf("compose: generating message id: %w", err)
	}

	if ref := TrimMessageID(d.InReplyTo); ref != "" {
		h.SetMsgIDList("In-Reply-To", []string{ref})
		h.SetMsgIDList("References", []string{ref})
	}

	html, err := RenderHTML(d.Body)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	mw, err := mail.CreateWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("compose: creating writer: %w", err)
	}
	iw, err := mw.CreateInline()
	if err != nil {
		return nil, fmt.Errorf("compose: creating inline part: %w", err)
	}
	if err := writeInlinePart(iw, "text/plain", d.Body); err != nil {
		return nil, err
	}
	if err := writeInlinePart(iw, "text/html", html); err != nil {
		return nil, err
	}
	if err := iw.Close(); err != nil {
		return nil, fmt.Errorf("compose: closing inline part: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("compose: closing message: %w", err)
	}

	return buf.Bytes(), nil
}

// RenderHTML converts a Markdown body to HTML
func RenderHTML(markdown string) (string, error) {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(markdown), &buf); err != nil {
		return "", fmt.Errorf("rendering html: %w", err)
	}
	return buf.String(), nil
}

// TrimMessageID strips whitespace and angle brackets from a Message-ID value
func TrimMessageID(id string) string {
	id = strings.TrimSpace(id)
	id = strings.TrimPrefix(id, "<")
	return strings.TrimSuffix(id, ">")
}

func setAddresses(h *mail.Header, key string, values []string) error {
	if len(values) == 0 {
		return nil
	}
	addrs, err := mail.ParseAddressList(strings.Join(values, ", "))
	if err != nil {
		return fmt.Errorf("compose: parsing %s: %w", key, err)
	}
	h.SetAddressList(key, addrs)
	return nil
}

func writeInlinePart(iw *mail.InlineWriter, contentType, body string) error {
	var ph mail.InlineHeader
	ph.SetContentType(contentType, map[string]string{"charset": "utf-8"})
	ph.Set("Content-Transfer-Encoding", "quoted-printable")

	w, err := iw.CreatePart(ph)
	if err != nil {
		return fmt.Errorf("compose: creating %s part: %w", contentType, err)
	}
	if _, err := io.WriteString(w, body); err != nil {
		_ = w.Close()
		return fmt.Errorf("compose: writing %s part: %w", contentType, err)
	}
	return w.Close()
}

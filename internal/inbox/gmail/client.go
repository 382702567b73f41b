// ABOUTME: Gmail REST API implementation of inbox.Gateway
// ABOUTME: Lists by label, fetches full threads, removes UNREAD, and sends raw MIME

package gmail

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	gmailapi "google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/2389/mailroom/internal/inbox"
)

// Config selects the credential files and mailbox
type Config struct {
	CredentialsFile string
	TokenFile       string
	UserID          string
}

// Client talks to one Gmail mailbox
type Client struct {
	svc    *gmailapi.Service
	userID string
	logger *slog.Logger

	mu      sync.Mutex
	address string
}

var _ inbox.Gateway = (*Client)(nil)

// New wraps an existing service. userID defaults to "me".
func New(svc *gmailapi.Service, userID string, logger *slog.Logger) *Client {
	if userID == "" {
		userID = "me"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		svc:    svc,
		userID: userID,
		logger: logger.With("component", "gmail"),
	}
}

// Open builds an authorized client from the credential and token files
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	httpClient, err := HTTPClient(ctx, cfg.CredentialsFile, cfg.TokenFile, logger)
	if err != nil {
		return nil, err
	}
	svc, err := gmailapi.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("creating gmail service: %w", err)
	}
	return New(svc, cfg.UserID, logger), nil
}

// ListUnread returns INBOX+UNREAD messages in the order Gmail lists them
func (c *Client) ListUnread(ctx context.Context) ([]inbox.UnreadItem, error) {
	var refs []*gmailapi.Message
	err := c.svc.Users.Messages.List(c.userID).
		LabelIds(inbox.LabelInbox, inbox.LabelUnread).
		Context(ctx).
		Pages(ctx, func(resp *gmailapi.ListMessagesResponse) error {
			refs = append(refs, resp.Messages...)
			return nil
		})
	if err != nil {
		return nil, providerError("list_unread", "", err)
	}

	items := make([]inbox.UnreadItem, 0, len(refs))
	for _, ref := range refs {
		m, err := c.svc.Users.Messages.Get(c.userID, ref.Id).
			Format("metadata").
			MetadataHeaders("Subject", "From").
			Context(ctx).
			Do()
		if err != nil {
			if isNotFound(err) {
				c.logger.Warn("unread message vanished before metadata fetch", "message_id", ref.Id)
				continue
			}
			return nil, providerError("list_unread", ref.Id, err)
		}

		threadID := m.ThreadId
		if threadID == "" {
			threadID = ref.ThreadId
		}
		items = append(items, inbox.UnreadItem{
			MessageID: m.Id,
			ThreadID:  threadID,
			Subject:   header(m.Payload, "Subject"),
			Sender:    header(m.Payload, "From"),
			Snippet:   m.Snippet,
		})
	}
	return items, nil
}

// FetchThread returns every message of the thread with decoded bodies
func (c *Client) FetchThread(ctx context.Context, threadID string) ([]inbox.Message, error) {
	th, err := c.svc.Users.Threads.Get(c.userID, threadID).Format("full").Context(ctx).Do()
	if err != nil {
		return nil, providerError("fetch_thread", threadID, err)
	}

	msgs := make([]inbox.Message, 0, len(th.Messages))
	for _, m := range th.Messages {
		msgs = append(msgs, toMessage(m))
	}
	return msgs, nil
}

// FetchMessage returns one decoded message
func (c *Client) FetchMessage(ctx context.Context, messageID string) (inbox.Message, error) {
	m, err := c.svc.Users.Messages.Get(c.userID, messageID).Format("full").Context(ctx).Do()
	if err != nil {
		return inbox.Message{}, providerError("fetch_message", messageID, err)
	}
	return toMessage(m), nil
}

// MarkRead removes the UNREAD label. Gmail accepts removing an absent label.
func (c *Client) MarkRead(ctx context.Context, messageID string) error {
	req := &gmailapi.ModifyMessageRequest{RemoveLabelIds: []string{inbox.LabelUnread}}
	if _, err := c.svc.Users.Messages.Modify(c.userID, messageID, req).Context(ctx).Do(); err != nil {
		return providerError("mark_read", messageID, err)
	}
	return nil
}

// Send composes msg and submits it through messages.send.
// Replies to a thread carry linkage headers from the thread's first message.
func (c *Client) Send(ctx context.Context, msg inbox.Outgoing) (string, error) {
	fail := func(err error) (string, error) {
		return "", &inbox.SendError{To: msg.To, ThreadID: msg.ThreadID, Err: err}
	}

	from, err := c.Address(ctx)
	if err != nil {
		return fail(err)
	}

	draft := inbox.Draft{Outgoing: msg, From: from}
	if msg.ThreadID != "" {
		thread, err := c.FetchThread(ctx, msg.ThreadID)
		if err != nil {
			return fail(err)
		}
		if len(thread) > 0 {
			draft.InReplyTo = thread[0].MessageIDHeader
		}
	}

	raw, err := inbox.Compose(draft)
	if err != nil {
		return fail(err)
	}

	sent, err := c.svc.Users.Messages.Send(c.userID, &gmailapi.Message{
		Raw:      base64.URLEncoding.EncodeToString(raw),
		ThreadId: msg.ThreadID,
	}).Context(ctx).Do()
	if err != nil {
		return fail(err)
	}

	c.logger.Debug("message sent", "id", sent.Id, "thread_id", sent.ThreadId)
	return sent.Id, nil
}

// Address returns the mailbox address from the Gmail profile, cached after the first call
func (c *Client) Address(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.address != "" {
		return c.address, nil
	}

	profile, err := c.svc.Users.GetProfile(c.userID).Context(ctx).Do()
	if err != nil {
		return "", providerError("address", c.userID, err)
	}
	c.address = profile.EmailAddress
	return c.address, nil
}

func toMessage(m *gmailapi.Message) inbox.Message {
	return inbox.Message{
		ID:              m.Id,
		ThreadID:        m.ThreadId,
		From:            header(m.Payload, "From"),
		To:              header(m.Payload, "To"),
		Subject:         header(m.Payload, "Subject"),
		Date:            header(m.Payload, "Date"),
		MessageIDHeader: header(m.Payload, "Message-ID"),
		Body:            extractBody(m.Payload),
	}
}

// header finds a header by case-insensitive name
func header(p *gmailapi.MessagePart, name string) string {
	if p == nil {
		return ""
	}
	for _, h := range p.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

func extractBody(p *gmailapi.MessagePart) string {
	text, html := collectBodies(p)
	return inbox.PickBody(text, html)
}

// collectBodies walks the part tree and returns the first text/plain and text/html bodies.
func collectBodies(p *gmailapi.MessagePart) (text, html string) {
	if p == nil {
		return "", ""
	}
	if p.Body != nil && p.Body.Data != "" {
		switch {
		case strings.HasPrefix(p.MimeType, "text/plain"):
			text = decodeData(p.Body.Data)
		case strings.HasPrefix(p.MimeType, "text/html"):
			html = decodeData(p.Body.Data)
		}
	}
	for _, child := range p.Parts {
		t, h := collectBodies(child)
		if text == "" {
			text = t
		}
		if html == "" {
			html = h
		}
	}
	return text, html
}

// decodeData decodes Gmail's base64url body data, tolerating missing padding
func decodeData(data string) string {
	for _, enc := range []*base64.Encoding{base64.URLEncoding, base64.RawURLEncoding, base64.StdEncoding} {
		if b, err := enc.DecodeString(data); err == nil {
			return string(b)
		}
	}
	return ""
}

func isNotFound(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusNotFound
}

func providerError(op, id string, err error) error {
	return &inbox.ProviderError{Op: op, ID: id, NotFound: isNotFound(err), Err: err}
}

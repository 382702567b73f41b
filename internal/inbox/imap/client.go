// ABOUTME: Gmail IMAP+SMTP implementation of inbox.Gateway using an app password
// ABOUTME: Threads and ids come from the X-GM-THRID and X-GM-MSGID extensions

package imap

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sort"
	"strconv"
	"strings"
	"time"

	goimap "github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-imap/responses"
	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"

	"github.com/2389/mailroom/internal/inbox"
)

const (
	fetchThreadID  goimap.FetchItem = "X-GM-THRID"
	fetchMessageID goimap.FetchItem = "X-GM-MSGID"

	snippetLength = 200
)

// Config holds connection settings. Defaults target Gmail.
type Config struct {
	Addr     string // imap.gmail.com:993
	SMTPAddr string // smtp.gmail.com:465
	Username string
	Password string
	Mailbox  string // INBOX
	AllMail  string // [Gmail]/All Mail
}

func (c *Config) setDefaults() {
	if c.Addr == "" {
		c.Addr = "imap.gmail.com:993"
	}
	if c.SMTPAddr == "" {
		c.SMTPAddr = "smtp.gmail.com:465"
	}
	if c.Mailbox == "" {
		c.Mailbox = "INBOX"
	}
	if c.AllMail == "" {
		c.AllMail = "[Gmail]/All Mail"
	}
	c.Password = strings.ReplaceAll(c.Password, " ", "")
}

// deliverFunc submits a raw message to the listed recipients
type deliverFunc func(ctx context.Context, from string, rcpts []string, raw []byte) error

// Client opens a fresh IMAP session per operation; none is held between cycles.
type Client struct {
	cfg     Config
	logger  *slog.Logger
	deliver deliverFunc
}

var _ inbox.Gateway = (*Client)(nil)

// New creates an IMAP gateway
func New(cfg Config, logger *slog.Logger) *Client {
	cfg.setDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{cfg: cfg, logger: logger.With("component", "imap")}
	c.deliver = c.smtpDeliver
	return c
}

// fetched is one message returned by a UID FETCH
type fetched struct {
	UID       uint32
	MessageID string
	ThreadID  string
	Envelope  *goimap.Envelope
	Raw       []byte
}

// ListUnread returns unseen messages in the inbox mailbox, oldest UID first
func (c *Client) ListUnread(ctx context.Context) ([]inbox.UnreadItem, error) {
	var items []inbox.UnreadItem
	err := c.withSession(ctx, c.cfg.Mailbox, true, func(s *client.Client) error {
		criteria := goimap.NewSearchCriteria()
		criteria.WithoutFlags = []string{goimap.SeenFlag}
		uids, err := s.UidSearch(criteria)
		if err != nil {
			return fmt.Errorf("searching unseen: %w", err)
		}
		msgs, err := fetchByUID(s, uids, true)
		if err != nil {
			return err
		}
		for _, m := range msgs {
			parsed, _ := inbox.ParseRaw(m.Raw)
			items = append(items, inbox.UnreadItem{
				MessageID: m.MessageID,
				ThreadID:  m.ThreadID,
				Subject:   envelopeSubject(m.Envelope, parsed.Subject),
				Sender:    envelopeFrom(m.Envelope, parsed.From),
				Snippet:   snippet(parsed.Body),
			})
		}
		return nil
	})
	if err != nil {
		return nil, &inbox.ProviderError{Op: "list_unread", Err: err}
	}
	return items, nil
}

// FetchThread returns every message of the Gmail thread from All Mail
func (c *Client) FetchThread(ctx context.Context, threadID string) ([]inbox.Message, error) {
	var out []inbox.Message
	err := c.withSession(ctx, c.cfg.AllMail, true, func(s *client.Client) error {
		uids, err := searchXGM(s, "X-GM-THRID", threadID)
		if err != nil {
			return err
		}
		if len(uids) == 0 {
			return errNotFound
		}
		msgs, err := fetchByUID(s, uids, true)
		if err != nil {
			return err
		}
		for _, m := range msgs {
			out = append(out, toMessage(m))
		}
		return nil
	})
	if err != nil {
		return nil, providerError("fetch_thread", threadID, err)
	}
	return out, nil
}

// FetchMessage returns one message by its X-GM-MSGID
func (c *Client) FetchMessage(ctx context.Context, messageID string) (inbox.Message, error) {
	var out inbox.Message
	err := c.withSession(ctx, c.cfg.AllMail, true, func(s *client.Client) error {
		uids, err := searchXGM(s, "X-GM-MSGID", messageID)
		if err != nil {
			return err
		}
		if len(uids) == 0 {
			return errNotFound
		}
		msgs, err := fetchByUID(s, uids[:1], true)
		if err != nil {
			return err
		}
		if len(msgs) == 0 {
			return errNotFound
		}
		out = toMessage(msgs[0])
		return nil
	})
	if err != nil {
		return inbox.Message{}, providerError("fetch_message", messageID, err)
	}
	return out, nil
}

// MarkRead sets \Seen. Setting it twice is a no-op on the server.
func (c *Client) MarkRead(ctx context.Context, messageID string) error {
	err := c.withSession(ctx, c.cfg.AllMail, false, func(s *client.Client) error {
		uids, err := searchXGM(s, "X-GM-MSGID", messageID)
		if err != nil {
			return err
		}
		if len(uids) == 0 {
			return errNotFound
		}
		seqSet := new(goimap.SeqSet)
		seqSet.AddNum(uids...)
		item := goimap.FormatFlagsOp(goimap.AddFlags, true)
		if err := s.UidStore(seqSet, item, []any{goimap.SeenFlag}, nil); err != nil {
			return fmt.Errorf("storing \\Seen: %w", err)
		}
		return nil
	})
	if err != nil {
		return providerError("mark_read", messageID, err)
	}
	return nil
}

// Send composes msg and submits it over SMTP. The returned id is the Message-ID header.
func (c *Client) Send(ctx context.Context, msg inbox.Outgoing) (string, error) {
	fail := func(err error) (string, error) {
		return "", &inbox.SendError{To: msg.To, ThreadID: msg.ThreadID, Err: err}
	}

	draft := inbox.Draft{Outgoing: msg, From: c.cfg.Username, OmitBcc: true}
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
	sent, err := inbox.ParseRaw(raw)
	if err != nil {
		return fail(err)
	}

	rcpts := uniqueRecipients(msg.To, msg.Cc, msg.Bcc)
	if err := c.deliver(ctx, c.cfg.Username, rcpts, raw); err != nil {
		return fail(err)
	}
	c.logger.Debug("message sent", "message_id", sent.MessageIDHeader, "recipients", len(rcpts))
	return sent.MessageIDHeader, nil
}

// Address returns the login username, which for Gmail is the mailbox address
func (c *Client) Address(context.Context) (string, error) {
	return c.cfg.Username, nil
}

var errNotFound = errors.New("no matching message")

func providerError(op, id string, err error) error {
	return &inbox.ProviderError{Op: op, ID: id, NotFound: errors.Is(err, errNotFound), Err: err}
}

// withSession dials, logs in, selects mailbox, and runs fn.
// The connection is torn down when ctx is cancelled.
func (c *Client) withSession(ctx context.Context, mailbox string, readOnly bool, fn func(*client.Client) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	host, _, err := net.SplitHostPort(c.cfg.Addr)
	if err != nil {
		return fmt.Errorf("parsing imap address: %w", err)
	}
	s, err := client.DialTLS(c.cfg.Addr, &tls.Config{ServerName: host})
	if err != nil {
		return fmt.Errorf("imap dial: %w", err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		s.Timeout = time.Until(deadline)
	}
	stop := context.AfterFunc(ctx, func() { _ = s.Terminate() })
	defer stop()
	defer func() { _ = s.Logout() }()

	if err := s.Login(c.cfg.Username, c.cfg.Password); err != nil {
		return fmt.Errorf("imap login: %w", err)
	}
	if _, err := s.Select(mailbox, readOnly); err != nil {
		return fmt.Errorf("selecting %s: %w", mailbox, err)
	}
	return fn(s)
}

// smtpDeliver submits over implicit TLS with PLAIN auth
func (c *Client) smtpDeliver(ctx context.Context, from string, rcpts []string, raw []byte) error {
	host, _, err := net.SplitHostPort(c.cfg.SMTPAddr)
	if err != nil {
		return fmt.Errorf("parsing smtp address: %w", err)
	}
	dialer := &tls.Dialer{Config: &tls.Config{ServerName: host}}
	conn, err := dialer.DialContext(ctx, "tcp", c.cfg.SMTPAddr)
	if err != nil {
		return fmt.Errorf("smtp dial: %w", err)
	}

	sc := smtp.NewClient(conn)
	defer sc.Close()
	stop := context.AfterFunc(ctx, func() { _ = sc.Close() })
	defer stop()

	if err := sc.Auth(sasl.NewPlainClient("", c.cfg.Username, c.cfg.Password)); err != nil {
		return fmt.Errorf("smtp auth: %w", err)
	}
	if err := sc.Mail(from, nil); err != nil {
		return fmt.Errorf("MAIL FROM: %w", err)
	}
	for _, rcpt := range rcpts {
		if err := sc.Rcpt(rcpt, nil); err != nil {
			return fmt.Errorf("RCPT TO %q: %w", rcpt, err)
		}
	}
	w, err := sc.Data()
	if err != nil {
		return fmt.Errorf("DATA: %w", err)
	}
	if _, err := w.Write(raw); err != nil {
		return fmt.Errorf("writing message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finishing message: %w", err)
	}
	return sc.Quit()
}

// xgmSearch runs a Gmail extension search such as UID SEARCH X-GM-THRID 123.
type xgmSearch struct {
	Atom  string
	Value string
}

func (s *xgmSearch) Command() *goimap.Command {
	return &goimap.Command{
		Name:      "UID SEARCH",
		Arguments: []any{goimap.RawString(s.Atom + " " + s.Value)},
	}
}

func searchXGM(s *client.Client, atom, value string) ([]uint32, error) {
	value = strings.TrimSpace(value)
	if _, err := strconv.ParseUint(value, 10, 64); err != nil {
		return nil, fmt.Errorf("%s value %q is not numeric: %w", atom, value, errNotFound)
	}
	resp := &responses.Search{}
	status, err := s.Execute(&xgmSearch{Atom: atom, Value: value}, resp)
	if err != nil {
		return nil, fmt.Errorf("searching %s: %w", atom, err)
	}
	if err := status.Err(); err != nil {
		return nil, fmt.Errorf("searching %s: %w", atom, err)
	}
	return resp.Ids, nil
}

// fetchByUID fetches envelope, Gmail ids, and optionally the full body, sorted by UID.
func fetchByUID(s *client.Client, uids []uint32, withBody bool) ([]fetched, error) {
	if len(uids) == 0 {
		return nil, nil
	}
	seqSet := new(goimap.SeqSet)
	seqSet.AddNum(uids...)

	items := []goimap.FetchItem{goimap.FetchUid, goimap.FetchEnvelope, fetchThreadID, fetchMessageID}
	var section *goimap.BodySectionName
	if withBody {
		section = &goimap.BodySectionName{Peek: true}
		items = append(items, section.FetchItem())
	}

	ch := make(chan *goimap.Message, len(uids)+8)
	done := make(chan error, 1)
	go func() {
		done <- s.UidFetch(seqSet, items, ch)
	}()

	out := make([]fetched, 0, len(uids))
	for msg := range ch {
		f := fetched{
			UID:       msg.Uid,
			MessageID: parseIDValue(msg.Items[fetchMessageID]),
			ThreadID:  parseIDValue(msg.Items[fetchThreadID]),
			Envelope:  msg.Envelope,
		}
		if f.MessageID == "" {
			f.MessageID = strconv.FormatUint(uint64(f.UID), 10)
		}
		if section != nil {
			if lit := msg.GetBody(section); lit != nil {
				raw, err := io.ReadAll(lit)
				if err != nil {
					return nil, fmt.Errorf("reading body: %w", err)
				}
				f.Raw = raw
			}
		}
		out = append(out, f)
	}
	if err := <-done; err != nil {
		return nil, fmt.Errorf("fetching messages: %w", err)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].UID < out[j].UID })
	return out, nil
}

func toMessage(f fetched) inbox.Message {
	msg, err := inbox.ParseRaw(f.Raw)
	if err != nil {
		msg = inbox.Message{Body: inbox.NormalizeBody(string(f.Raw))}
	}
	msg.ID = f.MessageID
	msg.ThreadID = f.ThreadID
	msg.Subject = envelopeSubject(f.Envelope, msg.Subject)
	msg.From = envelopeFrom(f.Envelope, msg.From)
	if msg.MessageIDHeader == "" && f.Envelope != nil {
		msg.MessageIDHeader = f.Envelope.MessageId
	}
	return msg
}

func parseIDValue(v any) string {
	switch value := v.(type) {
	case nil:
		return ""
	case uint32:
		return strconv.FormatUint(uint64(value), 10)
	case uint64:
		return strconv.FormatUint(value, 10)
	case int64:
		return strconv.FormatInt(value, 10)
	case int:
		return strconv.Itoa(value)
	case string:
		return value
	default:
		return fmt.Sprintf("%v", value)
	}
}

func envelopeSubject(env *goimap.Envelope, fallback string) string {
	if env != nil && env.Subject != "" {
		return env.Subject
	}
	return fallback
}

func envelopeFrom(env *goimap.Envelope, fallback string) string {
	if env == nil || len(env.From) == 0 || env.From[0] == nil {
		return fallback
	}
	a := env.From[0]
	addr := a.Address()
	if a.PersonalName != "" {
		return fmt.Sprintf("%s <%s>", a.PersonalName, addr)
	}
	return addr
}

func snippet(body string) string {
	body = strings.Join(strings.Fields(body), " ")
	r := []rune(body)
	if len(r) <= snippetLength {
		return body
	}
	return string(r[:snippetLength])
}

// uniqueRecipients flattens address lists to bare addresses, keeping first-seen order
func uniqueRecipients(groups ...[]string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, group := range groups {
		for _, v := range group {
			addr := inbox.AddressOf(v)
			if addr == "" || seen[addr] {
				continue
			}
			seen[addr] = true
			out = append(out, addr)
		}
	}
	return out
}

// ABOUTME: Tests for the IMAP gateway helpers and SMTP send path
// ABOUTME: Delivery is swapped for a recorder so no network is needed

package imap

import (
	"context"
	"errors"
	"strings"
	"testing"

	goimap "github.com/emersion/go-imap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/mailroom/internal/inbox"
)

type recordedDelivery struct {
	from  string
	rcpts []string
	raw   []byte
}

func newRecordingClient(err error) (*Client, *recordedDelivery) {
	rec := &recordedDelivery{}
	c := New(Config{Username: "support@example.com", Password: "abcd efgh ijkl mnop"}, nil)
	c.deliver = func(_ context.Context, from string, rcpts []string, raw []byte) error {
		rec.from, rec.rcpts, rec.raw = from, rcpts, raw
		return err
	}
	return c, rec
}

func TestNew_Defaults(t *testing.T) {
	c := New(Config{Password: "abcd efgh"}, nil)

	assert.Equal(t, "imap.gmail.com:993", c.cfg.Addr)
	assert.Equal(t, "smtp.gmail.com:465", c.cfg.SMTPAddr)
	assert.Equal(t, "INBOX", c.cfg.Mailbox)
	assert.Equal(t, "[Gmail]/All Mail", c.cfg.AllMail)
	assert.Equal(t, "abcdefgh", c.cfg.Password)
}

func TestSend_DeliversToAllRecipientsWithoutBccHeader(t *testing.T) {
	c, rec := newRecordingClient(nil)

	id, err := c.Send(context.Background(), inbox.Outgoing{
		To:      []string{"Customer <Customer@example.com>"},
		Cc:      []string{"customer@example.com", "cc@example.com"},
		Bcc:     []string{"audit@example.com"},
		Subject: "Re: Quote",
		Body:    "Hello",
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(id, "<"))

	assert.Equal(t, "support@example.com", rec.from)
	assert.Equal(t, []string{"customer@example.com", "cc@example.com", "audit@example.com"}, rec.rcpts)
	assert.NotContains(t, string(rec.raw), "audit@example.com")

	parsed, err := inbox.ParseRaw(rec.raw)
	require.NoError(t, err)
	assert.Equal(t, id, parsed.MessageIDHeader)
	assert.Equal(t, "Hello", parsed.Body)
}

func TestSend_DeliveryFailureIsSendError(t *testing.T) {
	c, _ := newRecordingClient(errors.New("421 try later"))

	_, err := c.Send(context.Background(), inbox.Outgoing{To: []string{"a@example.com"}, Subject: "x"})
	var se *inbox.SendError
	require.True(t, errors.As(err, &se))
	assert.Contains(t, err.Error(), "421 try later")
}

func TestSend_CancelledContextBeforeThreadLookup(t *testing.T) {
	c, rec := newRecordingClient(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Send(ctx, inbox.Outgoing{To: []string{"a@example.com"}, ThreadID: "1789"})
	var se *inbox.SendError
	require.True(t, errors.As(err, &se))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, rec.raw)
}

func TestAddress(t *testing.T) {
	c, _ := newRecordingClient(nil)
	addr, err := c.Address(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "support@example.com", addr)
}

func TestParseIDValue(t *testing.T) {
	assert.Equal(t, "", parseIDValue(nil))
	assert.Equal(t, "1789", parseIDValue("1789"))
	assert.Equal(t, "42", parseIDValue(uint32(42)))
	assert.Equal(t, "18446744073709551615", parseIDValue(uint64(18446744073709551615)))
	assert.Equal(t, "-3", parseIDValue(int64(-3)))
	assert.Equal(t, "7", parseIDValue(7))
}

func TestToMessage(t *testing.T) {
	raw := "From: Customer <customer@example.com>\r\n" +
		"To: support@example.com\r\n" +
		"Subject: =?utf-8?q?Quote_request?=\r\n" +
		"Message-ID: <abc@mail.example.com>\r\n" +
		"Content-Type: text/plain; charset=utf-8\r\n" +
		"\r\n" +
		"Two pallets to Baku.\r\n"

	msg := toMessage(fetched{UID: 9, MessageID: "1001", ThreadID: "2002", Raw: []byte(raw)})

	assert.Equal(t, "1001", msg.ID)
	assert.Equal(t, "2002", msg.ThreadID)
	assert.Equal(t, "Quote request", msg.Subject)
	assert.Equal(t, "<abc@mail.example.com>", msg.MessageIDHeader)
	assert.Equal(t, "Two pallets to Baku.", msg.Body)
	assert.Equal(t, "customer@example.com", inbox.AddressOf(msg.From))
}

func TestToMessage_PrefersEnvelope(t *testing.T) {
	env := &goimap.Envelope{
		Subject:   "Envelope subject",
		MessageId: "<env@example.com>",
		From:      []*goimap.Address{{PersonalName: "Env Sender", MailboxName: "env", HostName: "example.com"}},
	}
	msg := toMessage(fetched{MessageID: "1", Envelope: env, Raw: []byte("not a mime message")})

	assert.Equal(t, "Envelope subject", msg.Subject)
	assert.Equal(t, "Env Sender <env@example.com>", msg.From)
	assert.Equal(t, "<env@example.com>", msg.MessageIDHeader)
}

func TestSnippet(t *testing.T) {
	assert.Equal(t, "a b c", snippet("  a\n b\t c "))
	long := strings.Repeat("x", 500)
	assert.Len(t, snippet(long), snippetLength)
}

func TestUniqueRecipients(t *testing.T) {
	got := uniqueRecipients(
		[]string{"A <a@example.com>", ""},
		[]string{"A@example.com", "b@example.com"},
	)
	assert.Equal(t, []string{"a@example.com", "b@example.com"}, got)
}

func TestXGMSearchCommand(t *testing.T) {
	cmd := (&xgmSearch{Atom: "X-GM-THRID", Value: "1789"}).Command()
	assert.Equal(t, "UID SEARCH", cmd.Name)
	require.Len(t, cmd.Arguments, 1)
	assert.Equal(t, goimap.RawString("X-GM-THRID 1789"), cmd.Arguments[0])
}

func TestProviderError_NotFound(t *testing.T) {
	err := providerError("fetch_thread", "1", errNotFound)
	assert.True(t, inbox.IsNotFound(err))

	err = providerError("fetch_thread", "1", errors.New("timeout"))
	assert.False(t, inbox.IsNotFound(err))
}

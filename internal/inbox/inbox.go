// ABOUTME: Mailbox provider boundary used by the poll loop and the operator API
// ABOUTME: Defines the Gateway interface and the message shapes that cross it

package inbox

import (
	"context"
)

// Labels selecting the messages the poll loop cares about
const (
	LabelInbox  = "INBOX"
	LabelUnread = "UNREAD"
)

// UnreadItem is a provider notification that a message has not been read yet.
// It is consumed once per cycle and not retained.
type UnreadItem struct {
	MessageID string
	ThreadID  string
	Subject   string
	Sender    string
	Snippet   string
}

// Message is one decoded message of a thread
type Message struct {
	ID       string
	ThreadID string
	From     string
	To       string
	Subject  string
	Date     string

	// MessageIDHeader is the RFC 5322 Message-ID, used for reply linkage.
	MessageIDHeader string

	Body string
}

// Outgoing describes a message to send
type Outgoing struct {
	To      []string
	Cc      []string
	Bcc     []string
	Subject string

	// Body is Markdown. It is sent as text/plain and rendered to text/html.
	Body string

	// ThreadID links the reply to an existing thread when set.
	ThreadID string
}

// Gateway wraps every mailbox provider call mailroom makes.
// Implementations hold no conversation state.
type Gateway interface {
	// ListUnread returns messages carrying both the INBOX and UNREAD labels.
	ListUnread(ctx context.Context) ([]UnreadItem, error)

	// FetchThread returns every message in the thread in provider order.
	FetchThread(ctx context.Context, threadID string) ([]Message, error)

	// FetchMessage returns a single decoded message.
	FetchMessage(ctx context.Context, messageID string) (Message, error)

	// MarkRead removes the UNREAD marker. Marking a read message is not an error.
	MarkRead(ctx context.Context, messageID string) error

	// Send dispatches msg and returns the provider-assigned message id.
	Send(ctx context.Context, msg Outgoing) (string, error)

	// Address returns the operating account's own address.
	Address(ctx context.Context) (string, error)
}

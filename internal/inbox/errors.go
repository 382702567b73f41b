// ABOUTME: Error types returned by mailbox gateways
// ABOUTME: ProviderError covers transport, auth, and not-found; SendError covers dispatch

package inbox

import (
	"errors"
	"fmt"
	"strings"
)

// ProviderError is returned when a provider call fails
type ProviderError struct {
	Op       string // list_unread, fetch_thread, fetch_message, mark_read, address
	ID       string
	NotFound bool
	Err      error
}

func (e *ProviderError) Error() string {
	var b strings.Builder
	b.WriteString("provider ")
	b.WriteString(e.Op)
	if e.ID != "" {
		fmt.Fprintf(&b, " %s", e.ID)
	}
	if e.NotFound {
		b.WriteString(": not found")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *ProviderError) Unwrap() error { return e.Err }

// SendError is returned when a message could not be dispatched
type SendError struct {
	To       []string
	ThreadID string
	Err      error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("send to %s: %v", strings.Join(e.To, ", "), e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }

// IsNotFound reports whether err is a ProviderError for a missing resource
func IsNotFound(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.NotFound
}

// ABOUTME: Tests for address helpers, body selection, and gateway error types
// ABOUTME: Table-driven where the cases are simple value checks

package inbox

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAddressOf(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"support@example.com", "support@example.com"},
		{"Support Team <Support@Example.com>", "support@example.com"},
		{"  <x@y.z>  ", "x@y.z"},
		{"\"Broken, Name\" <weird@example.com", "\"broken, name\" <weird@example.com"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, AddressOf(tt.in))
		})
	}
}

func TestSameAddress(t *testing.T) {
	assert.True(t, SameAddress("Me <me@example.com>", "ME@example.com"))
	assert.False(t, SameAddress("me@example.com", "you@example.com"))
	assert.False(t, SameAddress("", ""))
}

func TestPickBody(t *testing.T) {
	assert.Equal(t, "plain", PickBody("  plain\r\n", "<p>html</p>"))
	assert.Equal(t, "html", PickBody("", "<p>html</p>"))
	assert.Empty(t, PickBody("", ""))
}

func TestProviderError(t *testing.T) {
	base := errors.New("connection reset")
	err := fmt.Errorf("cycle: %w", &ProviderError{Op: "fetch_thread", ID: "t1", NotFound: true, Err: base})

	assert.True(t, IsNotFound(err))
	assert.ErrorIs(t, err, base)
	assert.Contains(t, err.Error(), "provider fetch_thread t1: not found: connection reset")

	assert.False(t, IsNotFound(&ProviderError{Op: "list_unread"}))
	assert.False(t, IsNotFound(base))
}

func TestSendError(t *testing.T) {
	base := errors.New("quota exceeded")
	err := &SendError{To: []string{"a@example.com", "b@example.com"}, Err: base}

	var se *SendError
	assert.True(t, errors.As(fmt.Errorf("wrapped: %w", err), &se))
	assert.ErrorIs(t, err, base)
	assert.Equal(t, "send to a@example.com, b@example.com: quota exceeded", err.Error())
}

// ABOUTME: Address comparison helpers for classifying message authorship
// ABOUTME: Reduces "Name <addr>" header values to a lowercase bare address

package inbox

import (
	"strings"

	"github.com/emersion/go-message/mail"
)

// AddressOf returns the lowercase bare address from a header value.
// Unparseable values are trimmed and lowercased as-is.
func AddressOf(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	if addr, err := mail.ParseAddress(value); err == nil {
		return strings.ToLower(addr.Address)
	}
	if i := strings.LastIndex(value, "<"); i >= 0 {
		if j := strings.LastIndex(value, ">"); j > i {
			return strings.ToLower(strings.TrimSpace(value[i+1 : j]))
		}
	}
	return strings.ToLower(value)
}

// SameAddress reports whether two header values name the same mailbox
func SameAddress(a, b string) bool {
	x, y := AddressOf(a), AddressOf(b)
	return x != "" && x == y
}

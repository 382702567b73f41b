// Package dedupe provides a TTL set used as the reply guard: once a reply to
// an external message has been sent, the message id is remembered so a later
// cycle that still sees it as the newest message does not answer it again.
package dedupe

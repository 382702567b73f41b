// Package inbox defines the mailbox provider boundary.
//
// The Gateway interface covers the five provider operations the poll loop
// needs (list unread, fetch thread, fetch message, mark read, send) plus the
// account's own address. Backends live in subpackages:
//
//   - inbox/gmail: Gmail REST API with OAuth2 credential and token files
//   - inbox/imap: Gmail over IMAP and SMTP with an app password
//
// Replies are composed here so every backend produces the same MIME layout:
// a multipart/alternative message with the Markdown body as text/plain and
// its HTML rendering as text/html. When a reply targets a thread, the first
// message's Message-ID is written to both In-Reply-To and References.
package inbox

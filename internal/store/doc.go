// Package store keeps per-thread conversation state for mailroom.
//
// # Model
//
// A thread is keyed by the mailbox provider's thread id and holds an ordered,
// append-only log of messages. Order is arrival order during reconciliation,
// not provider timestamp order.
//
//   - RoleExternal: mail from anyone other than the operating account
//   - RoleAssistant: generated replies and mail sent from the operating account
//   - RoleOperator: replies written by a human through the operator API
//
// Messages flagged RequiresHumanAttention are generated drafts that were not
// sent because the agent declined to answer.
//
// # Lifetime
//
// State lives only in memory. Threads are created on first sighting and kept
// until the process exits.
//
// # Duplicates
//
// The poll loop re-fetches the whole thread on every unread item and appends
// every message it sees. By default the store accepts the duplicates this
// produces. Setting Options.DedupeByID drops appends whose id already exists
// in the thread.
package store

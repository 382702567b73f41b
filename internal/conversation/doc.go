// Package conversation runs the reconciliation loop between the mailbox,
// the thread store and the reply generator.
//
// # Cycle
//
// Each cycle lists unread mail, re-fetches the thread of every item,
// appends the fetched messages to the store and, when the newest message
// is external, asks the Generator for an outcome. A reply is sent through
// the inbox gateway and recorded; an escalation is recorded with
// RequiresHumanAttention set and nothing is sent. The triggering message
// is marked read unless fetching, generating or sending failed, in which
// case the next cycle tries again.
//
//	svc := conversation.New(threads, gateway, generator, conversation.Options{
//	    Interval: 15 * time.Second,
//	}, logger)
//	go svc.Run(ctx)
//
// # Manual Replies
//
// ManualReply is the operator write path. The operator message is appended
// before the send and is kept if the send fails.
package conversation

// Package gateway runs mailroom: the poll loop and the operator HTTP API.
//
// # Endpoints
//
//	GET  /health                      liveness, no auth
//	GET  /health/ready                503 until the inbox has been listed once, no auth
//	GET  /chats                       {"chats": {thread_id: {"messages": [...]}}}
//	GET  /chat_history/{thread_id}    {"thread_id": ..., "messages": [...]}, 404 when unknown
//	GET  /thread_ids                  {"thread_ids": [...]}, first-seen order
//	POST /manual_respond/{thread_id}  body {"message", "to", "subject"}
//
// manual_respond answers {"status": "success"|"error", "message": ...}. A
// failed send is still a 200 with status "error"; the operator message stays
// in the thread log.
//
// When auth.jwt_secret is set every endpoint except the health checks needs
// an Authorization: Bearer header minted by `mailroom token`.
//
// # Lifecycle
//
//	gw, err := gateway.New(ctx, cfg, logger)
//	err = gw.Run(ctx) // blocks until ctx is canceled
package gateway

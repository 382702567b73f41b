// ABOUTME: HTTP JSON endpoints for operators to inspect threads and reply by hand
// ABOUTME: Read endpoints serve store snapshots; manual_respond goes through the conversation service

package gateway

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/2389/mailroom/internal/auth"
	"github.com/2389/mailroom/internal/conversation"
	"github.com/2389/mailroom/internal/store"
)

// maxRequestBody caps manual reply payloads
const maxRequestBody = 1 << 20

// ThreadMessages wraps a thread log in the /chats payload
type ThreadMessages struct {
	Messages []store.Message `json:"messages"`
}

// ChatsResponse is the body of GET /chats
type ChatsResponse struct {
	Chats map[string]ThreadMessages `json:"chats"`
}

// ChatHistoryResponse is the body of GET /chat_history/{thread_id}
type ChatHistoryResponse struct {
	ThreadID string          `json:"thread_id"`
	Messages []store.Message `json:"messages"`
}

// ThreadIDsResponse is the body of GET /thread_ids
type ThreadIDsResponse struct {
	ThreadIDs []string `json:"thread_ids"`
}

// ManualRespondRequest is the body of POST /manual_respond/{thread_id}
type ManualRespondRequest struct {
	Message string `json:"message"`
	To      string `json:"to"`
	Subject string `json:"subject"`
}

// ManualRespondResponse reports the outcome of a manual reply
type ManualRespondResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	SentID  string `json:"sent_id,omitempty"`
}

const (
	statusSuccess = "success"
	statusError   = "error"
)

// routes registers every endpoint. Operator endpoints require a bearer token
// when a verifier is configured; health endpoints never do.
func (g *Gateway) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", g.handleHealth)
	mux.HandleFunc("GET /health/ready", g.handleReady)

	operator := func(h http.HandlerFunc) http.Handler {
		if g.verifier == nil {
			return h
		}
		return auth.HTTPAuthMiddleware(g.verifier)(h)
	}

	mux.Handle("GET /chats", operator(g.handleChats))
	mux.Handle("GET /chat_history/{thread_id}", operator(g.handleChatHistory))
	mux.Handle("GET /thread_ids", operator(g.handleThreadIDs))
	mux.Handle("POST /manual_respond/{thread_id}", operator(g.handleManualRespond))

	return mux
}

// handleChats handles GET /chats requests.
func (g *Gateway) handleChats(w http.ResponseWriter, r *http.Request) {
	snapshot := g.threads.Snapshot()
	resp := ChatsResponse{Chats: make(map[string]ThreadMessages, len(snapshot))}
	for id, msgs := range snapshot {
		resp.Chats[id] = ThreadMessages{Messages: msgs}
	}
	g.writeJSON(w, http.StatusOK, resp)
}

// handleChatHistory handles GET /chat_history/{thread_id} requests.
func (g *Gateway) handleChatHistory(w http.ResponseWriter, r *http.Request) {
	threadID := r.PathValue("thread_id")

	msgs, err := g.threads.Get(threadID)
	if errors.Is(err, store.ErrNotFound) {
		g.sendJSONError(w, http.StatusNotFound, "Thread not found")
		return
	}
	if err != nil {
		g.logger.Error("failed to read thread", "thread_id", threadID, "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	g.writeJSON(w, http.StatusOK, ChatHistoryResponse{ThreadID: threadID, Messages: msgs})
}

// handleThreadIDs handles GET /thread_ids requests.
func (g *Gateway) handleThreadIDs(w http.ResponseWriter, r *http.Request) {
	ids := g.threads.ListThreadIDs()
	if ids == nil {
		ids = []string{}
	}
	g.writeJSON(w, http.StatusOK, ThreadIDsResponse{ThreadIDs: ids})
}

// handleManualRespond handles POST /manual_respond/{thread_id} requests.
// Send failures are reported in the body with status "error" and a 200.
func (g *Gateway) handleManualRespond(w http.ResponseWriter, r *http.Request) {
	threadID := r.PathValue("thread_id")

	req, err := parseManualRespond(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err != nil {
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	sentID, err := g.conversation.ManualReply(r.Context(), threadID, conversation.ManualRequest{
		Message: req.Message,
		To:      req.To,
		Subject: req.Subject,
	})
	if errors.Is(err, conversation.ErrThreadNotFound) {
		g.sendJSONError(w, http.StatusNotFound, "Thread not found")
		return
	}
	if err != nil {
		g.logger.Error("manual reply failed",
			"thread_id", threadID,
			"operator", auth.OperatorFrom(r.Context()),
			"error", err,
		)
		g.writeJSON(w, http.StatusOK, ManualRespondResponse{
			Status:  statusError,
			Message: "Failed to send manual response: " + err.Error(),
		})
		return
	}

	g.logger.Info("manual reply sent", "thread_id", threadID, "operator", auth.OperatorFrom(r.Context()))
	g.writeJSON(w, http.StatusOK, ManualRespondResponse{
		Status:  statusSuccess,
		Message: "Manual response sent successfully",
		SentID:  sentID,
	})
}

// parseManualRespond decodes and validates a manual reply body.
func parseManualRespond(r io.Reader) (*ManualRespondRequest, error) {
	var req ManualRespondRequest
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		return nil, errors.New("invalid JSON body")
	}
	if strings.TrimSpace(req.Message) == "" {
		return nil, errors.New("message is required")
	}
	return &req, nil
}

// writeJSON writes v as a JSON response.
func (g *Gateway) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		g.logger.Debug("writing response failed", "error", err)
	}
}

// sendJSONError writes a JSON error response.
func (g *Gateway) sendJSONError(w http.ResponseWriter, status int, message string) {
	g.writeJSON(w, status, map[string]string{"error": message})
}

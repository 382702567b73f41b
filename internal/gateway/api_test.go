// ABOUTME: Tests for the operator HTTP endpoints
// ABOUTME: Runs the real store behind httptest with a scripted reply service

package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/mailroom/internal/auth"
	"github.com/2389/mailroom/internal/config"
	"github.com/2389/mailroom/internal/conversation"
	"github.com/2389/mailroom/internal/inbox"
	"github.com/2389/mailroom/internal/store"
)

// mockReplies implements replyService for testing
type mockReplies struct {
	threads *store.Store
	err     error
	ready   bool
	calls   []conversation.ManualRequest
}

func (m *mockReplies) ManualReply(ctx context.Context, threadID string, req conversation.ManualRequest) (string, error) {
	if !m.threads.Has(threadID) {
		return "", conversation.ErrThreadNotFound
	}
	m.calls = append(m.calls, req)
	if m.err != nil {
		return "", m.err
	}
	return "sent-1", nil
}

func (m *mockReplies) Ready() bool { return m.ready }

func (m *mockReplies) Run(ctx context.Context) error {
	<-ctx.Done()
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Server.HTTPAddr = "127.0.0.1:0"
	return &cfg
}

func newTestGateway(t *testing.T, verifier auth.TokenVerifier) (*Gateway, *store.Store, *mockReplies) {
	t.Helper()
	threads := store.New(store.Options{})
	replies := &mockReplies{threads: threads}
	return newGateway(testConfig(), threads, replies, verifier, testLogger()), threads, replies
}

func do(t *testing.T, h http.Handler, method, path, body string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func seed(t *testing.T, threads *store.Store) {
	t.Helper()
	threads.EnsureThread("t1")
	_, err := threads.Append("t1", store.Message{ID: "m1", Role: store.RoleExternal, From: "customer@example.com", Body: "Hi"})
	require.NoError(t, err)
	_, err = threads.Append("t1", store.Message{ID: "m2", Role: store.RoleAssistant, Body: "Draft", RequiresHumanAttention: true})
	require.NoError(t, err)
	threads.EnsureThread("t2")
}

func TestHandleChats(t *testing.T) {
	gw, threads, _ := newTestGateway(t, nil)
	seed(t, threads)

	rec := do(t, gw.Handler(), http.MethodGet, "/chats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp ChatsResponse
	decode(t, rec, &resp)
	require.Len(t, resp.Chats, 2)
	require.Len(t, resp.Chats["t1"].Messages, 2)
	assert.True(t, resp.Chats["t1"].Messages[1].RequiresHumanAttention)
	assert.Empty(t, resp.Chats["t2"].Messages)
	assert.Contains(t, rec.Body.String(), `"t2":{"messages":[]}`)
}

func TestHandleChatHistory(t *testing.T) {
	gw, threads, _ := newTestGateway(t, nil)
	seed(t, threads)

	rec := do(t, gw.Handler(), http.MethodGet, "/chat_history/t1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp ChatHistoryResponse
	decode(t, rec, &resp)
	assert.Equal(t, "t1", resp.ThreadID)
	require.Len(t, resp.Messages, 2)
	assert.Equal(t, store.RoleExternal, resp.Messages[0].Role)
	assert.Equal(t, "Hi", resp.Messages[0].Body)
}

func TestHandleChatHistory_NotFound(t *testing.T) {
	gw, _, _ := newTestGateway(t, nil)

	rec := do(t, gw.Handler(), http.MethodGet, "/chat_history/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	var body map[string]string
	decode(t, rec, &body)
	assert.Equal(t, "Thread not found", body["error"])
}

func TestHandleThreadIDs(t *testing.T) {
	gw, threads, _ := newTestGateway(t, nil)

	rec := do(t, gw.Handler(), http.MethodGet, "/thread_ids", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"thread_ids":[]}`, rec.Body.String())

	seed(t, threads)
	rec = do(t, gw.Handler(), http.MethodGet, "/thread_ids", "")
	var resp ThreadIDsResponse
	decode(t, rec, &resp)
	assert.Equal(t, []string{"t1", "t2"}, resp.ThreadIDs)
}

func TestHandleManualRespond_UnknownThread(t *testing.T) {
	gw, _, replies := newTestGateway(t, nil)

	rec := do(t, gw.Handler(), http.MethodPost, "/manual_respond/nope", `{"message":"Hi","to":"a@example.com","subject":"Re: x"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "Thread not found")
	assert.Empty(t, replies.calls)
}

func TestHandleManualRespond_Success(t *testing.T) {
	gw, threads, replies := newTestGateway(t, nil)
	seed(t, threads)

	rec := do(t, gw.Handler(), http.MethodPost, "/manual_respond/t1", `{"message":"We will call.","to":"customer@example.com","subject":"Re: Quote"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp ManualRespondResponse
	decode(t, rec, &resp)
	assert.Equal(t, "success", resp.Status)
	assert.Equal(t, "sent-1", resp.SentID)

	require.Len(t, replies.calls, 1)
	assert.Equal(t, conversation.ManualRequest{Message: "We will call.", To: "customer@example.com", Subject: "Re: Quote"}, replies.calls[0])
}

func TestHandleManualRespond_SendFailure(t *testing.T) {
	gw, threads, replies := newTestGateway(t, nil)
	seed(t, threads)
	replies.err = &inbox.SendError{To: []string{"customer@example.com"}, Err: errors.New("quota exceeded")}

	rec := do(t, gw.Handler(), http.MethodPost, "/manual_respond/t1", `{"message":"Hi"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp ManualRespondResponse
	decode(t, rec, &resp)
	assert.Equal(t, "error", resp.Status)
	assert.Contains(t, resp.Message, "quota exceeded")
}

func TestHandleManualRespond_BadBody(t *testing.T) {
	gw, threads, replies := newTestGateway(t, nil)
	seed(t, threads)

	for _, body := range []string{"", "{", `{"message":""}`, `{"message":"hi","cc":"x"}`} {
		rec := do(t, gw.Handler(), http.MethodPost, "/manual_respond/t1", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
	assert.Empty(t, replies.calls)
}

func TestRoutes_MethodNotAllowed(t *testing.T) {
	gw, _, _ := newTestGateway(t, nil)

	rec := do(t, gw.Handler(), http.MethodPost, "/chats", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = do(t, gw.Handler(), http.MethodGet, "/manual_respond/t1", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHealthEndpoints(t *testing.T) {
	gw, _, replies := newTestGateway(t, nil)

	rec := do(t, gw.Handler(), http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())

	rec = do(t, gw.Handler(), http.MethodGet, "/health/ready", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	replies.ready = true
	rec = do(t, gw.Handler(), http.MethodGet, "/health/ready", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestOperatorEndpointsRequireToken(t *testing.T) {
	verifier, err := auth.NewJWTVerifier([]byte("0123456789abcdef0123456789abcdef"))
	require.NoError(t, err)
	gw, threads, _ := newTestGateway(t, verifier)
	seed(t, threads)

	rec := do(t, gw.Handler(), http.MethodGet, "/thread_ids", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, gw.Handler(), http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	token, err := verifier.Generate("alice", time.Hour)
	require.NoError(t, err)
	rec = do(t, gw.Handler(), http.MethodGet, "/thread_ids", "", "Authorization", "Bearer "+token)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRun_ServesUntilCanceled(t *testing.T) {
	gw, _, _ := newTestGateway(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- gw.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRun_ListenError(t *testing.T) {
	ln := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(ln.Close)

	gw, _, _ := newTestGateway(t, nil)
	gw.config.Server.HTTPAddr = strings.TrimPrefix(ln.URL, "http://")

	err := gw.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "listening on HTTP address")
}

func TestParseManualRespond(t *testing.T) {
	req, err := parseManualRespond(bytes.NewBufferString(`{"message":"hi","to":"a@example.com"}`))
	require.NoError(t, err)
	assert.Equal(t, "hi", req.Message)
	assert.Equal(t, "a@example.com", req.To)

	_, err = parseManualRespond(bytes.NewBufferString(`{"message":"   "}`))
	assert.EqualError(t, err, "message is required")
}

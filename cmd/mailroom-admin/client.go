// ABOUTME: Minimal HTTP client for the mailroom operator API
// ABOUTME: Decodes the JSON payloads and turns error bodies into Go errors

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/2389/mailroom/internal/store"
)

type apiClient struct {
	base  string
	token string
	http  *http.Client
}

type replyRequest struct {
	Message string `json:"message"`
	To      string `json:"to,omitempty"`
	Subject string `json:"subject,omitempty"`
}

type replyResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	SentID  string `json:"sent_id"`
}

func newAPIClient(base, token string) *apiClient {
	return &apiClient{
		base:  strings.TrimRight(base, "/"),
		token: token,
		http:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *apiClient) ThreadIDs(ctx context.Context) ([]string, error) {
	var resp struct {
		ThreadIDs []string `json:"thread_ids"`
	}
	if err := c.do(ctx, http.MethodGet, "/thread_ids", nil, &resp); err != nil {
		return nil, err
	}
	return resp.ThreadIDs, nil
}

func (c *apiClient) Chats(ctx context.Context) (map[string][]store.Message, error) {
	var resp struct {
		Chats map[string]struct {
			Messages []store.Message `json:"messages"`
		} `json:"chats"`
	}
	if err := c.do(ctx, http.MethodGet, "/chats", nil, &resp); err != nil {
		return nil, err
	}
	out := make(map[string][]store.Message, len(resp.Chats))
	for id, t := range resp.Chats {
		out[id] = t.Messages
	}
	return out, nil
}

func (c *apiClient) History(ctx context.Context, threadID string) ([]store.Message, error) {
	var resp struct {
		Messages []store.Message `json:"messages"`
	}
	if err := c.do(ctx, http.MethodGet, "/chat_history/"+url.PathEscape(threadID), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

func (c *apiClient) Reply(ctx context.Context, threadID string, req replyRequest) (*replyResponse, error) {
	var resp replyResponse
	if err := c.do(ctx, http.MethodPost, "/manual_respond/"+url.PathEscape(threadID), req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *apiClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s %s: %s (status %d)", method, path, apiErr.Error, resp.StatusCode)
		}
		return fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode)
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

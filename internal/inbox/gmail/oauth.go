// ABOUTME: OAuth2 credential and token file handling for the Gmail API backend
// ABOUTME: Refreshed tokens are written back so restarts keep working without re-authorizing

package gmail

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmailapi "google.golang.org/api/gmail/v1"
)

// Scopes requested for the mailbox. Modify and send both need full access.
var Scopes = []string{gmailapi.MailGoogleComScope}

// LoadOAuthConfig reads a Google client secrets file
func LoadOAuthConfig(credentialsFile string) (*oauth2.Config, error) {
	data, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("reading credentials file: %w", err)
	}
	cfg, err := google.ConfigFromJSON(data, Scopes...)
	if err != nil {
		return nil, fmt.Errorf("parsing credentials file: %w", err)
	}
	return cfg, nil
}

// LoadToken reads a token previously saved by SaveToken
func LoadToken(path string) (*oauth2.Token, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening token file: %w", err)
	}
	defer f.Close()

	tok := &oauth2.Token{}
	if err := json.NewDecoder(f).Decode(tok); err != nil {
		return nil, fmt.Errorf("decoding token file: %w", err)
	}
	return tok, nil
}

// SaveToken writes tok to path with owner-only permissions
func SaveToken(path string, tok *oauth2.Token) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating token directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("opening token file: %w", err)
	}
	defer f.Close()

	if err := json.NewEncoder(f).Encode(tok); err != nil {
		return fmt.Errorf("encoding token: %w", err)
	}
	return nil
}

// AuthCodeURL returns the consent URL for the installed-app flow
func AuthCodeURL(cfg *oauth2.Config) string {
	return cfg.AuthCodeURL("state-token", oauth2.AccessTypeOffline)
}

// Exchange trades an authorization code for a token and saves it
func Exchange(ctx context.Context, cfg *oauth2.Config, code, tokenFile string) (*oauth2.Token, error) {
	tok, err := cfg.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchanging authorization code: %w", err)
	}
	if err := SaveToken(tokenFile, tok); err != nil {
		return nil, err
	}
	return tok, nil
}

// savingTokenSource persists every token that differs from the last one seen
type savingTokenSource struct {
	base   oauth2.TokenSource
	path   string
	logger *slog.Logger

	mu   sync.Mutex
	last string
}

func (s *savingTokenSource) Token() (*oauth2.Token, error) {
	tok, err := s.base.Token()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if tok.AccessToken != s.last {
		s.last = tok.AccessToken
		if err := SaveToken(s.path, tok); err != nil {
			s.logger.Warn("failed to persist refreshed token", "path", s.path, "error", err)
		} else {
			s.logger.Debug("persisted refreshed token", "expiry", tok.Expiry)
		}
	}
	return tok, nil
}

// HTTPClient builds an authorized client from the credentials and token files
func HTTPClient(ctx context.Context, credentialsFile, tokenFile string, logger *slog.Logger) (*http.Client, error) {
	cfg, err := LoadOAuthConfig(credentialsFile)
	if err != nil {
		return nil, err
	}
	tok, err := LoadToken(tokenFile)
	if err != nil {
		return nil, fmt.Errorf("%w (run `mailroom authorize` first)", err)
	}

	src := &savingTokenSource{
		base:   cfg.TokenSource(ctx, tok),
		path:   tokenFile,
		logger: logger,
		last:   tok.AccessToken,
	}
	return oauth2.NewClient(ctx, oauth2.ReuseTokenSource(tok, src)), nil
}

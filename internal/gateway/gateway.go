// ABOUTME: Gateway orchestrator that wires the mailbox, generator, store and HTTP server
// ABOUTME: Runs the poll loop and the operator API together and shuts both down on cancel

package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/2389/mailroom/internal/agent"
	"github.com/2389/mailroom/internal/auth"
	"github.com/2389/mailroom/internal/config"
	"github.com/2389/mailroom/internal/conversation"
	"github.com/2389/mailroom/internal/dedupe"
	"github.com/2389/mailroom/internal/inbox"
	"github.com/2389/mailroom/internal/inbox/gmail"
	"github.com/2389/mailroom/internal/inbox/imap"
	"github.com/2389/mailroom/internal/store"
)

// threadReader is what the read endpoints need from the store
type threadReader interface {
	Get(id string) ([]store.Message, error)
	ListThreadIDs() []string
	Snapshot() map[string][]store.Message
}

// replyService is what the gateway needs from the conversation layer
type replyService interface {
	ManualReply(ctx context.Context, threadID string, req conversation.ManualRequest) (string, error)
	Ready() bool
	Run(ctx context.Context) error
}

// Gateway owns the operator HTTP server and the reconciliation loop
type Gateway struct {
	config       *config.Config
	threads      threadReader
	conversation replyService
	verifier     auth.TokenVerifier
	guard        *dedupe.Cache
	httpServer   *http.Server
	logger       *slog.Logger
}

// New builds every component from cfg: the mail provider selected by
// mailbox.provider, the OpenAI generator, the thread store and the reply guard.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	if logger == nil {
		logger = slog.Default()
	}

	mailbox, err := openMailbox(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	generator := agent.NewOpenAI(agent.OpenAIConfig{
		APIKey:       cfg.Agent.APIKey,
		BaseURL:      cfg.Agent.BaseURL,
		Model:        cfg.Agent.Model,
		Temperature:  cfg.Agent.Temperature,
		MaxTokens:    cfg.Agent.MaxTokens,
		Instructions: cfg.Agent.Instructions,
		MaxRetries:   cfg.Agent.MaxRetries,
	}, logger)

	threads := store.New(store.Options{DedupeByID: cfg.Threads.DedupeMessages})

	opts := conversation.Options{
		Cc:              cfg.Mailbox.Cc,
		Bcc:             cfg.Mailbox.Bcc,
		ProviderTimeout: cfg.Poll.ProviderTimeout,
		GenerateTimeout: cfg.Agent.Timeout,
		Interval:        cfg.Poll.Interval,
		Schedule:        cfg.Poll.Schedule,
	}

	var guard *dedupe.Cache
	if cfg.Threads.ReplyGuardTTL > 0 {
		guard = dedupe.New(dedupe.Options{TTL: cfg.Threads.ReplyGuardTTL})
		opts.Guard = guard
	}

	svc := conversation.New(threads, mailbox, generator, opts, logger)

	var verifier auth.TokenVerifier
	if cfg.Auth.JWTSecret != "" {
		v, err := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
		if err != nil {
			if guard != nil {
				guard.Close()
			}
			return nil, fmt.Errorf("creating JWT verifier: %w", err)
		}
		verifier = v
	} else {
		logger.Warn("auth.jwt_secret is empty, operator endpoints are unauthenticated")
	}

	gw := newGateway(cfg, threads, svc, verifier, logger)
	gw.guard = guard

	logger.Info("gateway configured",
		"provider", cfg.Mailbox.Provider,
		"model", generator.Model(),
		"dedupe_messages", cfg.Threads.DedupeMessages,
		"reply_guard_ttl", cfg.Threads.ReplyGuardTTL,
	)
	return gw, nil
}

// newGateway assembles a gateway from already-built parts
func newGateway(cfg *config.Config, threads threadReader, svc replyService, verifier auth.TokenVerifier, logger *slog.Logger) *Gateway {
	gw := &Gateway{
		config:       cfg,
		threads:      threads,
		conversation: svc,
		verifier:     verifier,
		logger:       logger.With("component", "gateway"),
	}

	gw.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           gw.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return gw
}

func openMailbox(ctx context.Context, cfg *config.Config, logger *slog.Logger) (inbox.Gateway, error) {
	switch cfg.Mailbox.Provider {
	case config.ProviderIMAP:
		c := cfg.Mailbox.IMAP
		return imap.New(imap.Config{
			Addr:     c.Addr,
			SMTPAddr: c.SMTPAddr,
			Username: c.Username,
			Password: c.Password,
			Mailbox:  c.Mailbox,
			AllMail:  c.AllMail,
		}, logger), nil
	case config.ProviderGmail:
		c := cfg.Mailbox.Gmail
		client, err := gmail.Open(ctx, gmail.Config{
			CredentialsFile: c.CredentialsFile,
			TokenFile:       c.TokenFile,
			UserID:          c.UserID,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("opening gmail: %w", err)
		}
		return client, nil
	default:
		return nil, fmt.Errorf("unknown mailbox provider %q", cfg.Mailbox.Provider)
	}
}

// Handler exposes the HTTP routes
func (g *Gateway) Handler() http.Handler {
	return g.httpServer.Handler
}

// startServers starts the HTTP server and the poll loop, returning an error channel.
func (g *Gateway) startServers(ctx context.Context, ln net.Listener, wg *sync.WaitGroup) chan error {
	errCh := make(chan error, 2)

	go func() {
		g.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := g.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := g.conversation.Run(ctx); err != nil {
			errCh <- fmt.Errorf("poll loop: %w", err)
		}
	}()

	return errCh
}

// waitForShutdownSignal waits for context cancellation or a component error.
func (g *Gateway) waitForShutdownSignal(ctx context.Context, errCh chan error) error {
	select {
	case <-ctx.Done():
		g.logger.Info("context canceled, initiating shutdown")
		return nil
	case err := <-errCh:
		g.logger.Error("server error", "error", err)
		g.drainErrors(errCh)
		return err
	}
}

// drainErrors drains any remaining errors from the channel.
func (g *Gateway) drainErrors(errCh chan error) {
	select {
	case additionalErr := <-errCh:
		g.logger.Error("additional server error", "error", additionalErr)
	default:
	}
}

// Run starts the HTTP server and the poll loop and blocks until ctx is canceled.
// Returns nil on graceful shutdown, or the first component error.
func (g *Gateway) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listening on HTTP address: %w", err)
	}

	loopCtx, stopLoop := context.WithCancel(ctx)
	defer stopLoop()

	var wg sync.WaitGroup
	errCh := g.startServers(loopCtx, ln, &wg)
	serverErr := g.waitForShutdownSignal(ctx, errCh)

	stopLoop()
	wg.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	shutdownErr := g.Shutdown(shutdownCtx)

	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// appendCloseError appends an error with label if err is non-nil.
func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

// Shutdown stops the HTTP server and releases the reply guard
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down gateway")

	var errs []error
	errs = appendCloseError(errs, "HTTP shutdown", g.httpServer.Shutdown(ctx))

	if g.guard != nil {
		g.guard.Close()
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %w", errors.Join(errs...))
	}
	return nil
}

// handleHealth returns 200 OK if the server is alive.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady returns 200 OK once a cycle has listed the inbox.
func (g *Gateway) handleReady(w http.ResponseWriter, r *http.Request) {
	if !g.conversation.Ready() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("mailbox not polled yet"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

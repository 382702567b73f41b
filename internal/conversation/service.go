// ABOUTME: Reconciliation loop that turns unread mail into replies or escalations
// ABOUTME: Also owns the operator write path so both paths share one store and gateway

package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/2389/mailroom/internal/agent"
	"github.com/2389/mailroom/internal/inbox"
	"github.com/2389/mailroom/internal/store"
)

// ErrThreadNotFound is returned when an operator addresses an unknown thread
var ErrThreadNotFound = errors.New("thread not found")

// ThreadStore defines what the service needs from storage
type ThreadStore interface {
	EnsureThread(id string) bool
	Append(id string, msg store.Message) (bool, error)
	LastAuthorRole(id string) (store.Role, bool)
	Get(id string) ([]store.Message, error)
	Has(id string) bool
}

// ReplyGuard remembers external message ids that were already answered
type ReplyGuard interface {
	Seen(key string) bool
	Remember(key string)
}

// Options configure the service
type Options struct {
	// Cc and Bcc are added to every outgoing reply.
	Cc  []string
	Bcc []string

	// ProviderTimeout bounds each gateway call. Zero means no deadline.
	ProviderTimeout time.Duration

	// GenerateTimeout bounds each generator call. Zero means no deadline.
	GenerateTimeout time.Duration

	// Interval between cycles when Schedule is empty.
	Interval time.Duration

	// Schedule is a cron expression or descriptor that overrides Interval.
	Schedule string

	// Guard suppresses a second reply while the provider lags behind our send.
	Guard ReplyGuard
}

// Service runs reconciliation cycles and manual replies
type Service struct {
	store     ThreadStore
	gateway   inbox.Gateway
	generator agent.Generator
	opts      Options
	logger    *slog.Logger

	ready atomic.Bool
}

// New creates a conversation service
func New(threads ThreadStore, gateway inbox.Gateway, generator agent.Generator, opts Options, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Interval <= 0 {
		opts.Interval = 15 * time.Second
	}
	return &Service{
		store:     threads,
		gateway:   gateway,
		generator: generator,
		opts:      opts,
		logger:    logger.With("component", "conversation"),
	}
}

// Ready reports whether a cycle has listed the inbox successfully
func (s *Service) Ready() bool {
	return s.ready.Load()
}

// CycleReport summarises one reconciliation cycle
type CycleReport struct {
	Listed    int // unread items returned by the provider
	Replied   int // replies sent
	Escalated int // drafts flagged for a human
	Skipped   int // items marked read without generating
	Failed    int // items left unread because of an error
}

// Processed is the number of items the cycle handled in any way
func (r CycleReport) Processed() int {
	return r.Replied + r.Escalated + r.Skipped + r.Failed
}

type itemResult int

const (
	resultSkipped itemResult = iota
	resultReplied
	resultEscalated
	resultFailed
)

// RunCycle executes one pass over the unread items.
// It returns an error only when the unread listing fails.
func (s *Service) RunCycle(ctx context.Context) (CycleReport, error) {
	var report CycleReport

	listCtx, cancel := s.providerContext(ctx)
	items, err := s.gateway.ListUnread(listCtx)
	cancel()
	if err != nil {
		s.logger.Error("listing unread messages failed", "error", err)
		return report, fmt.Errorf("listing unread: %w", err)
	}
	s.ready.Store(true)

	report.Listed = len(items)
	if len(items) == 0 {
		s.logger.Debug("no unread messages")
		return report, nil
	}

	var own string
	addrCtx, cancel := s.providerContext(ctx)
	own, err = s.gateway.Address(addrCtx)
	cancel()
	if err != nil {
		s.logger.Error("resolving own address failed", "error", err)
		report.Failed = len(items)
		return report, nil
	}

	for _, item := range items {
		if ctx.Err() != nil {
			break
		}
		switch s.processItem(ctx, item, own) {
		case resultReplied:
			report.Replied++
		case resultEscalated:
			report.Escalated++
		case resultFailed:
			report.Failed++
		default:
			report.Skipped++
		}
	}

	s.logger.Info("cycle finished",
		"listed", report.Listed,
		"processed", report.Processed(),
		"replied", report.Replied,
		"escalated", report.Escalated,
		"failed", report.Failed,
	)
	return report, nil
}

func (s *Service) processItem(ctx context.Context, item inbox.UnreadItem, own string) itemResult {
	log := s.logger.With("thread_id", item.ThreadID, "message_id", item.MessageID)

	s.store.EnsureThread(item.ThreadID)

	fetchCtx, cancel := s.providerContext(ctx)
	msgs, err := s.gateway.FetchThread(fetchCtx, item.ThreadID)
	cancel()
	if err != nil {
		log.Error("fetching thread failed", "error", err)
		return resultFailed
	}

	newestExternal := ""
	for _, m := range msgs {
		role := store.RoleExternal
		if inbox.SameAddress(m.From, own) {
			role = store.RoleAssistant
		} else {
			newestExternal = m.ID
		}
		if _, err := s.store.Append(item.ThreadID, store.Message{
			ID:      m.ID,
			Role:    role,
			From:    m.From,
			Subject: m.Subject,
			Body:    m.Body,
		}); err != nil {
			log.Error("appending fetched message failed", "error", err)
			return resultFailed
		}
	}

	result := resultSkipped
	if role, ok := s.store.LastAuthorRole(item.ThreadID); ok && role == store.RoleExternal {
		if s.opts.Guard != nil && newestExternal != "" && s.opts.Guard.Seen(newestExternal) {
			log.Info("newest message already answered, waiting for provider to catch up")
		} else {
			result = s.respond(ctx, log, item, own, newestExternal)
			if result == resultFailed {
				return result
			}
		}
	}

	markCtx, cancel := s.providerContext(ctx)
	err = s.gateway.MarkRead(markCtx, item.MessageID)
	cancel()
	if err != nil {
		log.Warn("marking message read failed", "error", err)
	}
	return result
}

// respond generates an outcome for the thread and dispatches it
func (s *Service) respond(ctx context.Context, log *slog.Logger, item inbox.UnreadItem, own, newestExternal string) itemResult {
	history, err := s.store.Get(item.ThreadID)
	if err != nil {
		log.Error("reading thread failed", "error", err)
		return resultFailed
	}

	genCtx, cancel := s.generateContext(ctx)
	outcome, err := s.generator.Generate(genCtx, agent.Request{
		Subject:    item.Subject,
		Sender:     item.Sender,
		Transcript: transcript(history),
	})
	cancel()
	if err != nil {
		log.Error("generating response failed", "error", err)
		return resultFailed
	}

	subject := replySubject(item.Subject)

	if outcome.Kind == agent.OutcomeUnable {
		body := outcome.Text
		if body == "" {
			body = outcome.Reason
		}
		if _, err := s.store.Append(item.ThreadID, store.Message{
			ID:                     uuid.NewString(),
			Role:                   store.RoleAssistant,
			From:                   own,
			Subject:                subject,
			Body:                   body,
			RequiresHumanAttention: true,
		}); err != nil {
			log.Error("recording escalation failed", "error", err)
			return resultFailed
		}
		log.Warn("thread needs human attention", "reason", outcome.Reason)
		return resultEscalated
	}

	sendCtx, cancel := s.providerContext(ctx)
	sentID, err := s.gateway.Send(sendCtx, inbox.Outgoing{
		To:       []string{item.Sender},
		Cc:       s.opts.Cc,
		Bcc:      s.opts.Bcc,
		Subject:  subject,
		Body:     outcome.Text,
		ThreadID: item.ThreadID,
	})
	cancel()
	if err != nil {
		log.Error("sending reply failed", "error", err)
		return resultFailed
	}

	if _, err := s.store.Append(item.ThreadID, store.Message{
		ID:      sentID,
		Role:    store.RoleAssistant,
		From:    own,
		Subject: subject,
		Body:    outcome.Text,
	}); err != nil {
		log.Error("recording sent reply failed", "error", err)
	}
	if s.opts.Guard != nil && newestExternal != "" {
		s.opts.Guard.Remember(newestExternal)
	}

	log.Info("reply sent", "sent_id", sentID)
	return resultReplied
}

// ManualRequest is an operator-authored reply
type ManualRequest struct {
	Message string
	To      string
	Subject string
}

// ManualReply records an operator message in the thread and sends it.
// The message stays in the log even when the send fails.
func (s *Service) ManualReply(ctx context.Context, threadID string, req ManualRequest) (string, error) {
	if !s.store.Has(threadID) {
		return "", ErrThreadNotFound
	}

	history, err := s.store.Get(threadID)
	if err != nil {
		return "", ErrThreadNotFound
	}

	to := strings.TrimSpace(req.To)
	if to == "" {
		to = lastExternalSender(history)
	}
	if to == "" {
		return "", errors.New("no recipient given and thread has no external sender")
	}
	subject := strings.TrimSpace(req.Subject)
	if subject == "" {
		subject = replySubject(firstSubject(history))
	}

	if _, err := s.store.Append(threadID, store.Message{
		ID:      uuid.NewString(),
		Role:    store.RoleOperator,
		Subject: subject,
		Body:    req.Message,
	}); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", ErrThreadNotFound
		}
		return "", fmt.Errorf("recording operator message: %w", err)
	}

	sendCtx, cancel := s.providerContext(ctx)
	defer cancel()
	sentID, err := s.gateway.Send(sendCtx, inbox.Outgoing{
		To:       []string{to},
		Cc:       s.opts.Cc,
		Bcc:      s.opts.Bcc,
		Subject:  subject,
		Body:     req.Message,
		ThreadID: threadID,
	})
	if err != nil {
		s.logger.Error("manual reply failed", "thread_id", threadID, "error", err)
		return "", err
	}

	s.logger.Info("manual reply sent", "thread_id", threadID, "sent_id", sentID)
	return sentID, nil
}

func (s *Service) providerContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.opts.ProviderTimeout > 0 {
		return context.WithTimeout(ctx, s.opts.ProviderTimeout)
	}
	return context.WithCancel(ctx)
}

func (s *Service) generateContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.opts.GenerateTimeout > 0 {
		return context.WithTimeout(ctx, s.opts.GenerateTimeout)
	}
	return context.WithCancel(ctx)
}

// transcript converts the thread log into generator turns.
// Escalation drafts were never sent, so they are left out.
func transcript(history []store.Message) []agent.Turn {
	turns := make([]agent.Turn, 0, len(history))
	for _, m := range history {
		if m.RequiresHumanAttention {
			continue
		}
		speaker := agent.SpeakerExternal
		switch m.Role {
		case store.RoleAssistant:
			speaker = agent.SpeakerAssistant
		case store.RoleOperator:
			speaker = agent.SpeakerOperator
		}
		turns = append(turns, agent.Turn{Speaker: speaker, Text: m.Body})
	}
	return turns
}

func replySubject(subject string) string {
	return "Re: " + subject
}

func lastExternalSender(history []store.Message) string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == store.RoleExternal && history[i].From != "" {
			return history[i].From
		}
	}
	return ""
}

func firstSubject(history []store.Message) string {
	for _, m := range history {
		if m.Subject != "" {
			return m.Subject
		}
	}
	return ""
}

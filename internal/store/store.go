// ABOUTME: In-memory thread store mapping provider thread ids to ordered message logs
// ABOUTME: Shared by the poll loop and the HTTP handlers, so every operation takes the mutex

package store

import (
	"errors"
	"sync"
	"time"
)

// ErrNotFound is returned when a requested thread does not exist
var ErrNotFound = errors.New("not found")

// Role identifies who authored a message in a thread
type Role string

const (
	RoleExternal  Role = "external"  // the party writing in from outside
	RoleAssistant Role = "assistant" // generated by the agent or sent from our own address
	RoleOperator  Role = "operator"  // written by a human through the operator API
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleExternal, RoleAssistant, RoleOperator:
		return true
	}
	return false
}

// Message is a single entry in a thread log
type Message struct {
	ID                     string    `json:"id"`
	Role                   Role      `json:"role"`
	From                   string    `json:"from,omitempty"`
	Subject                string    `json:"subject,omitempty"`
	Body                   string    `json:"body"`
	RequiresHumanAttention bool      `json:"requires_human_attention,omitempty"`
	CreatedAt              time.Time `json:"created_at"`
}

// Options tune store behaviour
type Options struct {
	// DedupeByID skips appends whose message id is already in the thread log.
	// Off by default: every reconciliation re-appends the fetched transcript.
	DedupeByID bool
}

// Store holds every thread seen since the process started.
// Threads are never removed.
type Store struct {
	mu      sync.RWMutex
	threads map[string][]Message
	order   []string
	opts    Options
}

// New creates an empty store
func New(opts Options) *Store {
	return &Store{
		threads: make(map[string][]Message),
		opts:    opts,
	}
}

// EnsureThread creates an empty log for id if none exists.
// Returns true when the thread was created by this call.
func (s *Store) EnsureThread(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.threads[id]; ok {
		return false
	}
	s.threads[id] = []Message{}
	s.order = append(s.order, id)
	return true
}

// Append adds msg to the end of the thread log.
// Returns false without error when deduplication is enabled and the id is already present.
func (s *Store) Append(id string, msg Message) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	log, ok := s.threads[id]
	if !ok {
		return false, ErrNotFound
	}

	if s.opts.DedupeByID && msg.ID != "" {
		for _, existing := range log {
			if existing.ID == msg.ID {
				return false, nil
			}
		}
	}

	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	s.threads[id] = append(log, msg)
	return true, nil
}

// LastAuthorRole returns the role of the newest message in the thread.
// The bool is false for unknown or empty threads.
func (s *Store) LastAuthorRole(id string) (Role, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	log := s.threads[id]
	if len(log) == 0 {
		return "", false
	}
	return log[len(log)-1].Role, true
}

// Get returns a copy of the thread log
func (s *Store) Get(id string) ([]Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	log, ok := s.threads[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneLog(log), nil
}

// Has reports whether the thread exists
func (s *Store) Has(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.threads[id]
	return ok
}

// ListThreadIDs returns thread ids in first-seen order
func (s *Store) ListThreadIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, len(s.order))
	copy(ids, s.order)
	return ids
}

// Snapshot copies every thread log
func (s *Store) Snapshot() map[string][]Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string][]Message, len(s.threads))
	for id, log := range s.threads {
		out[id] = cloneLog(log)
	}
	return out
}

// Len returns the number of threads
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.threads)
}

func cloneLog(log []Message) []Message {
	out := make([]Message, len(log))
	copy(out, log)
	return out
}

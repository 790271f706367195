package usecase

import (
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"weatherdine/internal/domain"
)

// Session is the in-memory message buffer for one agent turn. It starts
// with the thread's recent history and tracks which messages are new.
type Session struct {
	mu        sync.RWMutex
	ThreadID  string
	msgs      []domain.Message
	persisted int
}

// NewSession creates an empty session for threadID.
func NewSession(threadID string) *Session {
	return &Session{
		ThreadID: threadID,
		msgs:     make([]domain.Message, 0),
	}
}

// NewThreadID returns a fresh ULID for a conversation thread.
func NewThreadID() string {
	return generateULID(time.Now())
}

func generateULID(t time.Time) string {
	entropy := ulid.Monotonic(rand.New(rand.NewSource(t.UnixNano())), 0)
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}

// Load replaces the buffer with history already stored for the thread.
func (s *Session) Load(history []domain.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(make([]domain.Message, 0, len(history)), history...)
	s.persisted = len(s.msgs)
}

// AddMessage appends a message (thread-safe).
func (s *Session) AddMessage(msg domain.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	s.msgs = append(s.msgs, msg)
}

// Messages returns a copy of the buffer (thread-safe).
func (s *Session) Messages() []domain.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cp := make([]domain.Message, len(s.msgs))
	copy(cp, s.msgs)
	return cp
}

// Unsaved returns the messages added since Load or the last MarkSaved.
func (s *Session) Unsaved() []domain.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cp := make([]domain.Message, len(s.msgs)-s.persisted)
	copy(cp, s.msgs[s.persisted:])
	return cp
}

// MarkSaved records that every buffered message has been persisted.
func (s *Session) MarkSaved() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.persisted = len(s.msgs)
}

// Len returns the number of buffered messages.
func (s *Session) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.msgs)
}

// Package session holds the live per-operator console state: which flow the
// operator is in, the current step, and the values collected so far.
package session

import (
	"sync"
	"time"
)

// Session is one operator's progress through a flow. At most one session
// exists per operator; starting a new flow overwrites the old one.
type Session struct {
	OperatorID int64
	FlowKind   string
	Step       string
	Fields     map[string]any
	CreatedAt  time.Time
	UpdatedAt  time.Time

	// Prompt is the message carrying the current step's prompt, kept so it
	// can be edited in place instead of stacking new messages.
	Prompt PromptRef
}

// PromptRef points at a previously sent chat message. Zero value means none.
type PromptRef struct {
	ChatID    int64
	ThreadID  int
	MessageID int
}

func (p PromptRef) IsZero() bool { return p.MessageID == 0 }

// Store maps operator identity to the active session. All access to one
// operator's session goes through WithOperator, which serializes events per
// operator while leaving different operators fully concurrent.
type Store struct {
	mu       sync.Mutex
	sessions map[int64]*Session
	locks    map[int64]*opLock

	now func() time.Time
}

type opLock struct {
	mu   sync.Mutex
	refs int
}

func NewStore() *Store {
	return &Store{
		sessions: map[int64]*Session{},
		locks:    map[int64]*opLock{},
		now:      time.Now,
	}
}

// WithOperator runs fn while holding that operator's lock. Two rapid inputs
// from the same operator can therefore never both read the same step and
// both advance it.
func (s *Store) WithOperator(operatorID int64, fn func()) {
	s.mu.Lock()
	l := s.locks[operatorID]
	if l == nil {
		l = &opLock{}
		s.locks[operatorID] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()
	fn()
	l.mu.Unlock()

	s.mu.Lock()
	l.refs--
	if l.refs == 0 {
		delete(s.locks, operatorID)
	}
	s.mu.Unlock()
}

// Start creates a session for the operator, overwriting any existing one.
func (s *Store) Start(operatorID int64, flowKind, firstStep string) *Session {
	now := s.now()
	sess := &Session{
		OperatorID: operatorID,
		FlowKind:   flowKind,
		Step:       firstStep,
		Fields:     map[string]any{},
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	s.mu.Lock()
	s.sessions[operatorID] = sess
	s.mu.Unlock()
	return sess
}

// Get returns the operator's session, or nil.
func (s *Store) Get(operatorID int64) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions[operatorID]
}

// Advance stores value under field and moves the session to nextStep.
// Returns nil if the operator has no session.
func (s *Store) Advance(operatorID int64, field string, value any, nextStep string) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.sessions[operatorID]
	if sess == nil {
		return nil
	}
	if field != "" {
		sess.Fields[field] = value
	}
	sess.Step = nextStep
	sess.UpdatedAt = s.now()
	return sess
}

// Touch refreshes UpdatedAt without changing step or fields.
func (s *Store) Touch(operatorID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess := s.sessions[operatorID]; sess != nil {
		sess.UpdatedAt = s.now()
	}
}

// SetPrompt records the message carrying the current prompt.
func (s *Store) SetPrompt(operatorID int64, ref PromptRef) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess := s.sessions[operatorID]; sess != nil {
		sess.Prompt = ref
	}
}

// Clear drops the operator's session. No-op when absent.
func (s *Store) Clear(operatorID int64) {
	s.mu.Lock()
	delete(s.sessions, operatorID)
	s.mu.Unlock()
}

// SweepIdle clears sessions idle for longer than ttl and returns how many
// were dropped. ttl <= 0 disables sweeping.
func (s *Store) SweepIdle(ttl time.Duration) int {
	if ttl <= 0 {
		return 0
	}
	cutoff := s.now().Add(-ttl)
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, sess := range s.sessions {
		if sess.UpdatedAt.Before(cutoff) {
			delete(s.sessions, id)
			n++
		}
	}
	return n
}

// Len reports the number of live sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

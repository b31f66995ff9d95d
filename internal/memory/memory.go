// Package memory holds per-session conversation transcripts.
//
// Sessions are created lazily on first access and live in process memory
// only. That is a documented limitation, not a defect: a production
// deployment is expected to swap this store for a durable one without
// touching the query orchestrator, which depends on a small consumer-side
// interface rather than this concrete type.
package memory

import (
	"errors"
	"log/slog"
	"sync"
)

// ErrSessionNotFound signals a clear on a session that does not exist.
// Callers should treat this as informational, not as a failure.
var ErrSessionNotFound = errors.New("session not found")

// Role tags a transcript turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one entry in a session transcript.
type Turn struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// session owns one transcript and the lock that serializes its mutation.
type session struct {
	mu    sync.Mutex
	turns []Turn
}

// Store maps session IDs to ordered transcripts.
//
// The sessions map is guarded by mu; each transcript has its own lock, so
// concurrent requests against different sessions never contend. Appends to
// prior turns never mutate them (append-only).
type Store struct {
	mu       sync.Mutex
	sessions map[string]*session
	logger   *slog.Logger
}

// NewStore creates an empty session memory store.
func NewStore(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		sessions: make(map[string]*session),
		logger:   logger,
	}
}

// get returns the session for id, creating it lazily.
func (s *Store) get(id string) *session {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		s.logger.Debug("creating session transcript", "session_id", id)
		sess = &session{}
		s.sessions[id] = sess
	}
	return sess
}

// History returns a copy of the transcript for id, creating the session if
// it does not exist. The copy is safe to read while other goroutines append.
func (s *Store) History(id string) []Turn {
	sess := s.get(id)
	sess.mu.Lock()
	defer sess.mu.Unlock()
	out := make([]Turn, len(sess.turns))
	copy(out, sess.turns)
	return out
}

// AppendUser appends a user turn to the session transcript.
func (s *Store) AppendUser(id, text string) {
	s.append(id, Turn{Role: RoleUser, Text: text})
}

// AppendAssistant appends an assistant turn to the session transcript.
func (s *Store) AppendAssistant(id, text string) {
	s.append(id, Turn{Role: RoleAssistant, Text: text})
}

func (s *Store) append(id string, t Turn) {
	sess := s.get(id)
	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.turns = append(sess.turns, t)
}

// AppendExchange appends a user turn followed by an assistant turn under a
// single transcript lock. Concurrent exchanges on the same session therefore
// never interleave their pairs; exchanges on different sessions do not block
// one another.
func (s *Store) AppendExchange(id, question, answer string) {
	sess := s.get(id)
	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.turns = append(sess.turns,
		Turn{Role: RoleUser, Text: question},
		Turn{Role: RoleAssistant, Text: answer},
	)
}

// Len reports the number of turns in the session transcript, 0 if the
// session does not exist. Does not create the session.
func (s *Store) Len(id string) int {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	s.mu.Unlock()
	if !ok {
		return 0
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return len(sess.turns)
}

// Clear removes the session's transcript. Returns ErrSessionNotFound when no
// such session exists; callers may log and ignore it.
func (s *Store) Clear(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return ErrSessionNotFound
	}
	delete(s.sessions, id)
	s.logger.Debug("cleared session", "session_id", id)
	return nil
}

// ClearAll wipes every session and reports how many existed.
func (s *Store) ClearAll() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.sessions)
	s.sessions = make(map[string]*session)
	s.logger.Debug("cleared all sessions", "count", n)
	return n
}

// Count reports the number of live sessions.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Package memory is the in-memory record store, suitable for tests and
// single-process deployments.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/accordlabs/accord/backend/internal/model/session"
	"github.com/accordlabs/accord/backend/internal/store"
)

// Store keeps all three record kinds in maps guarded by one RWMutex.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]session.Session
	messages map[string][]session.Message
	byMsgID  map[string]msgRef
	issues   map[string][]session.Issue
	byIssue  map[string]issueRef
}

type msgRef struct {
	sessionID string
	index     int
}

type issueRef struct {
	sessionID string
	index     int
}

// NewStore bootstraps an empty in-memory store.
func NewStore() *Store {
	return &Store{
		sessions: make(map[string]session.Session),
		messages: make(map[string][]session.Message),
		byMsgID:  make(map[string]msgRef),
		issues:   make(map[string][]session.Issue),
		byIssue:  make(map[string]issueRef),
	}
}

func (s *Store) CreateSession(_ context.Context, sess *session.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[sess.ID] = *sess
	if _, ok := s.messages[sess.ID]; !ok {
		s.messages[sess.ID] = make([]session.Message, 0, 16)
	}
	return nil
}

func (s *Store) GetSession(_ context.Context, id string) (*session.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, store.ErrSessionNotFound
	}
	copied := sess
	copied.Goals = append([]string(nil), sess.Goals...)
	return &copied, nil
}

func (s *Store) UpdateSession(_ context.Context, sess *session.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[sess.ID]; !ok {
		return store.ErrSessionNotFound
	}
	sess.UpdatedAt = time.Now().UTC()
	s.sessions[sess.ID] = *sess
	return nil
}

// ArmTransition does the guard check and set inside the write lock, so
// two racing callers can never both observe the guard clear.
func (s *Store) ArmTransition(_ context.Context, id string, from session.Phase) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return false, store.ErrSessionNotFound
	}
	if sess.Ended || sess.Phase != from || sess.TransitionInFlight {
		return false, nil
	}
	sess.TransitionInFlight = true
	sess.UpdatedAt = time.Now().UTC()
	s.sessions[id] = sess
	return true, nil
}

func (s *Store) AppendMessage(_ context.Context, m *session.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[m.SessionID]; !ok {
		return store.ErrSessionNotFound
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}

	list := s.messages[m.SessionID]
	s.byMsgID[m.ID] = msgRef{sessionID: m.SessionID, index: len(list)}
	s.messages[m.SessionID] = append(list, *m)
	return nil
}

func (s *Store) GetMessage(_ context.Context, id string) (*session.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ref, ok := s.byMsgID[id]
	if !ok {
		return nil, store.ErrMessageNotFound
	}
	m := s.messages[ref.sessionID][ref.index]
	return &m, nil
}

func (s *Store) ListMessages(_ context.Context, sessionID string) ([]session.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list, ok := s.messages[sessionID]
	if !ok {
		return nil, store.ErrSessionNotFound
	}
	copied := make([]session.Message, len(list))
	copy(copied, list)
	return copied, nil
}

func (s *Store) AttachAnalysis(_ context.Context, messageID string, a *session.Analysis) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ref, ok := s.byMsgID[messageID]
	if !ok {
		return store.ErrMessageNotFound
	}
	s.messages[ref.sessionID][ref.index].Analysis = a
	return nil
}

func (s *Store) UpsertIssue(_ context.Context, issue *session.Issue) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[issue.SessionID]; !ok {
		return store.ErrSessionNotFound
	}
	issue.UpdatedAt = time.Now().UTC()

	if ref, ok := s.byIssue[issue.ID]; ok {
		s.issues[ref.sessionID][ref.index] = *issue
		return nil
	}

	if issue.CreatedAt.IsZero() {
		issue.CreatedAt = issue.UpdatedAt
	}
	list := s.issues[issue.SessionID]
	s.byIssue[issue.ID] = issueRef{sessionID: issue.SessionID, index: len(list)}
	s.issues[issue.SessionID] = append(list, *issue)
	return nil
}

func (s *Store) GetIssue(_ context.Context, id string) (*session.Issue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ref, ok := s.byIssue[id]
	if !ok {
		return nil, store.ErrIssueNotFound
	}
	issue := s.issues[ref.sessionID][ref.index]
	return &issue, nil
}

func (s *Store) ListIssues(_ context.Context, sessionID string) ([]session.Issue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := s.issues[sessionID]
	copied := make([]session.Issue, len(list))
	copy(copied, list)
	return copied, nil
}

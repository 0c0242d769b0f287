// Package store defines the record store the engine reads and writes:
// sessions, messages, and issues. Implementations live in the memory and
// sqlite subpackages; nothing above this interface assumes a transport or
// persistence format.
package store

import (
	"context"
	"errors"

	"github.com/accordlabs/accord/backend/internal/model/session"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrMessageNotFound = errors.New("message not found")
	ErrIssueNotFound   = errors.New("issue not found")
)

// SessionStore persists session records.
type SessionStore interface {
	CreateSession(ctx context.Context, s *session.Session) error
	GetSession(ctx context.Context, id string) (*session.Session, error)
	// UpdateSession overwrites the stored record (last write wins).
	UpdateSession(ctx context.Context, s *session.Session) error
	// ArmTransition atomically marks a phase advance pending. The guard is
	// taken only when the session is still in `from`, has not ended, and no
	// transition is already pending; armed reports whether this call won it.
	// Concurrent callers see at most one armed=true per phase boundary.
	ArmTransition(ctx context.Context, id string, from session.Phase) (armed bool, err error)
}

// MessageStore persists conversation messages. Messages are immutable
// except for the analysis attached after the fact.
type MessageStore interface {
	AppendMessage(ctx context.Context, m *session.Message) error
	GetMessage(ctx context.Context, id string) (*session.Message, error)
	ListMessages(ctx context.Context, sessionID string) ([]session.Message, error)
	AttachAnalysis(ctx context.Context, messageID string, a *session.Analysis) error
}

// IssueStore persists surfaced grievances. Issues are never deleted;
// upserts are last-write-wins per issue id.
type IssueStore interface {
	UpsertIssue(ctx context.Context, issue *session.Issue) error
	GetIssue(ctx context.Context, id string) (*session.Issue, error)
	ListIssues(ctx context.Context, sessionID string) ([]session.Issue, error)
}

// Store aggregates the three record kinds.
type Store interface {
	SessionStore
	MessageStore
	IssueStore
}

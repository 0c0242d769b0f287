package mediation

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/accordlabs/accord/backend/internal/config"
	"github.com/accordlabs/accord/backend/internal/lens"
	"github.com/accordlabs/accord/backend/internal/model/session"
	"github.com/accordlabs/accord/backend/internal/store"
)

var (
	ErrInvalidSender   = errors.New("sender must be person_a, person_b or mediator")
	ErrEmptyContent    = errors.New("message content is required")
	ErrGoalsAlreadySet = errors.New("session goals are already set")
	ErrSessionEnded    = errors.New("session has ended")

	// ErrTransitionBlocked signals that a phase advance is already pending
	// or has already fired; the duplicate trigger is a no-op.
	ErrTransitionBlocked = errors.New("phase transition already pending or completed")
)

// Service owns the business rules around session, message and issue
// records. It is the only writer of session state outside the conductor.
type Service struct {
	store store.Store
	now   func() time.Time
}

// NewService wraps a record store.
func NewService(st store.Store) *Service {
	return &Service{store: st, now: func() time.Time { return time.Now().UTC() }}
}

// CreateSession provisions a new mediated conversation.
func (s *Service) CreateSession(ctx context.Context, mode session.Mode, ctxMode lens.ContextMode, participantA, participantB string, turnDuration time.Duration) (*session.Session, error) {
	now := s.now()
	sess := &session.Session{
		ID:             uuid.NewString(),
		Mode:           mode,
		ContextMode:    ctxMode,
		Phase:          session.PhaseGreeting,
		ParticipantA:   strings.TrimSpace(participantA),
		ParticipantB:   strings.TrimSpace(participantB),
		Turn:           session.SenderPersonA,
		TurnDurationMs: config.ClampTurnDuration(turnDuration).Milliseconds(),
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.store.CreateSession(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// GetSession loads one session.
func (s *Service) GetSession(ctx context.Context, id string) (*session.Session, error) {
	return s.store.GetSession(ctx, id)
}

// SaveMessage appends a message to the transcript. Analysis is attached
// later; persistence never waits on it.
func (s *Service) SaveMessage(ctx context.Context, sessionID string, sender session.Sender, content string) (*session.Message, error) {
	if !session.ValidSender(sender) {
		return nil, ErrInvalidSender
	}
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyContent
	}

	sess, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Ended {
		return nil, ErrSessionEnded
	}

	m := &session.Message{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Sender:    sender,
		Content:   content,
		CreatedAt: s.now(),
	}
	if err := s.store.AppendMessage(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

// GetMessage fetches one stored message by id.
func (s *Service) GetMessage(ctx context.Context, id string) (*session.Message, error) {
	return s.store.GetMessage(ctx, id)
}

// AttachAnalysis records an analysis against an existing message.
func (s *Service) AttachAnalysis(ctx context.Context, messageID string, a *session.Analysis) error {
	return s.store.AttachAnalysis(ctx, messageID, a)
}

// LoadTranscript returns the stored messages for a session in order.
func (s *Service) LoadTranscript(ctx context.Context, sessionID string) ([]session.Message, error) {
	return s.store.ListMessages(ctx, sessionID)
}

// SetGoals records the synthesized goals. Goals are written exactly once;
// any further attempt is rejected.
func (s *Service) SetGoals(ctx context.Context, sessionID string, goals []string) error {
	sess, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if len(sess.Goals) > 0 {
		return ErrGoalsAlreadySet
	}

	sess.Goals = append([]string(nil), goals...)
	return s.store.UpdateSession(ctx, sess)
}

// PatchNames fills in participant display names that are still blank.
// The first name patches participant A, the second participant B.
func (s *Service) PatchNames(ctx context.Context, sessionID string, names []string) error {
	if len(names) == 0 {
		return nil
	}

	sess, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}

	changed := false
	if sess.ParticipantA == "" && len(names) > 0 && strings.TrimSpace(names[0]) != "" {
		sess.ParticipantA = strings.TrimSpace(names[0])
		changed = true
	}
	if sess.ParticipantB == "" && len(names) > 1 && strings.TrimSpace(names[1]) != "" {
		sess.ParticipantB = strings.TrimSpace(names[1])
		changed = true
	}
	if !changed {
		return nil
	}
	return s.store.UpdateSession(ctx, sess)
}

// SetTurn hands the floor to the given participant.
func (s *Service) SetTurn(ctx context.Context, sessionID string, turn session.Sender) error {
	sess, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	sess.Turn = turn
	return s.store.UpdateSession(ctx, sess)
}

// EndSession marks a session finished. Already-dispatched analyses are not
// cancelled; their results simply land on an ended session.
func (s *Service) EndSession(ctx context.Context, sessionID string) error {
	sess, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	sess.Ended = true
	return s.store.UpdateSession(ctx, sess)
}

// BeginTransition arms the one-shot guard for a phase advance out of
// `from`. It fails when the session has moved past `from` or a transition
// is already pending, so a phase boundary fires at most once no matter how
// many concurrent triggers race. The guard is persisted with the session
// and therefore survives reconnection.
func (s *Service) BeginTransition(ctx context.Context, sessionID string, from session.Phase) (*session.Session, error) {
	armed, err := s.store.ArmTransition(ctx, sessionID, from)
	if err != nil {
		return nil, err
	}
	if !armed {
		sess, err := s.store.GetSession(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		if sess.Ended {
			return nil, ErrSessionEnded
		}
		return nil, ErrTransitionBlocked
	}
	return s.store.GetSession(ctx, sessionID)
}

// CompleteTransition lands a pending phase advance. mutate, when non-nil,
// applies any record changes that belong to the same transition (gathered
// context, goals, turn ownership). The caller must hold the guard armed by
// BeginTransition; completing without it is rejected.
func (s *Service) CompleteTransition(ctx context.Context, sessionID string, to session.Phase, mutate func(*session.Session)) (*session.Session, error) {
	sess, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !sess.TransitionInFlight {
		return nil, ErrTransitionBlocked
	}

	sess.Phase = to
	sess.TransitionInFlight = false
	if mutate != nil {
		mutate(sess)
	}
	if err := s.store.UpdateSession(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// AbortTransition rolls the guard back after a hard failure so the caller
// may re-trigger the advance.
func (s *Service) AbortTransition(ctx context.Context, sessionID string) {
	sess, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return
	}
	sess.TransitionInFlight = false
	_ = s.store.UpdateSession(ctx, sess)
}

// RaiseIssue records a newly surfaced grievance.
func (s *Service) RaiseIssue(ctx context.Context, sessionID, label, description string, raisedBy session.Sender) (*session.Issue, error) {
	issue := &session.Issue{
		ID:          uuid.NewString(),
		SessionID:   sessionID,
		Label:       label,
		Description: description,
		Status:      session.IssueUnaddressed,
		RaisedBy:    raisedBy,
	}
	if err := s.store.UpsertIssue(ctx, issue); err != nil {
		return nil, err
	}
	return issue, nil
}

// ReGradeIssue updates an issue's status and rationale. Issues are never
// deleted, only re-graded.
func (s *Service) ReGradeIssue(ctx context.Context, issueID string, status session.IssueStatus, rationale string) (*session.Issue, error) {
	if !session.ValidIssueStatus(status) {
		return nil, errors.New("unknown issue status")
	}

	issue, err := s.store.GetIssue(ctx, issueID)
	if err != nil {
		return nil, err
	}
	issue.Status = status
	issue.GradingRationale = rationale
	if err := s.store.UpsertIssue(ctx, issue); err != nil {
		return nil, err
	}
	return issue, nil
}

// ListIssues returns every issue raised in a session.
func (s *Service) ListIssues(ctx context.Context, sessionID string) ([]session.Issue, error) {
	return s.store.ListIssues(ctx, sessionID)
}

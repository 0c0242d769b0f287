// Package sqlite is the persistent record store, backed by a SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/accordlabs/accord/backend/internal/lens"
	"github.com/accordlabs/accord/backend/internal/model/session"
	"github.com/accordlabs/accord/backend/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id TEXT PRIMARY KEY,
	mode TEXT NOT NULL,
	context_mode TEXT NOT NULL,
	phase TEXT NOT NULL,
	participant_a TEXT NOT NULL DEFAULT '',
	participant_b TEXT NOT NULL DEFAULT '',
	goals TEXT NOT NULL DEFAULT '[]',
	context_a TEXT NOT NULL DEFAULT '',
	context_b TEXT NOT NULL DEFAULT '',
	context_summary TEXT NOT NULL DEFAULT '',
	turn TEXT NOT NULL DEFAULT '',
	turn_duration_ms INTEGER NOT NULL,
	transition_in_flight INTEGER NOT NULL DEFAULT 0,
	ended INTEGER NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS messages (
	id TEXT PRIMARY KEY,
	session_id TEXT NOT NULL REFERENCES sessions(id),
	sender TEXT NOT NULL,
	content TEXT NOT NULL,
	analysis TEXT,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, created_at);

CREATE TABLE IF NOT EXISTS issues (
	id TEXT PRIMARY KEY,
	session_id TEXT NOT NULL REFERENCES sessions(id),
	label TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	raised_by TEXT NOT NULL DEFAULT '',
	grading_rationale TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_issues_session ON issues(session_id);
`

// Store implements store.Store over database/sql.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at dsn and bootstraps the schema.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite store: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("bootstrapping schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) CreateSession(ctx context.Context, sess *session.Session) error {
	goals, err := json.Marshal(sess.Goals)
	if err != nil {
		return fmt.Errorf("encoding goals: %w", err)
	}

	query := `INSERT INTO sessions (id, mode, context_mode, phase, participant_a, participant_b, goals,
		context_a, context_b, context_summary, turn, turn_duration_ms, transition_in_flight, ended, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = s.db.ExecContext(ctx, query,
		sess.ID, string(sess.Mode), string(sess.ContextMode), string(sess.Phase),
		sess.ParticipantA, sess.ParticipantB, string(goals),
		sess.ContextA, sess.ContextB, sess.ContextSummary,
		string(sess.Turn), sess.TurnDurationMs, boolToInt(sess.TransitionInFlight), boolToInt(sess.Ended),
		sess.CreatedAt.Format(time.RFC3339Nano), sess.UpdatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("inserting session: %w", err)
	}
	return nil
}

func (s *Store) GetSession(ctx context.Context, id string) (*session.Session, error) {
	query := `SELECT id, mode, context_mode, phase, participant_a, participant_b, goals,
		context_a, context_b, context_summary, turn, turn_duration_ms, transition_in_flight, ended, created_at, updated_at
		FROM sessions WHERE id = ?`
	return scanSession(s.db.QueryRowContext(ctx, query, id))
}

func (s *Store) UpdateSession(ctx context.Context, sess *session.Session) error {
	goals, err := json.Marshal(sess.Goals)
	if err != nil {
		return fmt.Errorf("encoding goals: %w", err)
	}

	query := `UPDATE sessions SET mode = ?, context_mode = ?, phase = ?, participant_a = ?, participant_b = ?,
		goals = ?, context_a = ?, context_b = ?, context_summary = ?, turn = ?, turn_duration_ms = ?,
		transition_in_flight = ?, ended = ?, updated_at = ? WHERE id = ?`
	res, err := s.db.ExecContext(ctx, query,
		string(sess.Mode), string(sess.ContextMode), string(sess.Phase),
		sess.ParticipantA, sess.ParticipantB, string(goals),
		sess.ContextA, sess.ContextB, sess.ContextSummary,
		string(sess.Turn), sess.TurnDurationMs, boolToInt(sess.TransitionInFlight), boolToInt(sess.Ended),
		time.Now().UTC().Format(time.RFC3339Nano), sess.ID,
	)
	if err != nil {
		return fmt.Errorf("updating session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrSessionNotFound
	}
	return nil
}

// ArmTransition takes the one-shot guard in a single conditional UPDATE;
// the row predicate makes the check-and-set atomic, so concurrent callers
// get at most one affected row per phase boundary.
func (s *Store) ArmTransition(ctx context.Context, id string, from session.Phase) (bool, error) {
	query := `UPDATE sessions SET transition_in_flight = 1, updated_at = ?
		WHERE id = ? AND phase = ? AND transition_in_flight = 0 AND ended = 0`
	res, err := s.db.ExecContext(ctx, query, time.Now().UTC().Format(time.RFC3339Nano), id, string(from))
	if err != nil {
		return false, fmt.Errorf("arming transition: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("arming transition: %w", err)
	}
	if n == 0 {
		// Lost the guard, or the session does not exist at all.
		if _, err := s.GetSession(ctx, id); err != nil {
			return false, err
		}
		return false, nil
	}
	return true, nil
}

func (s *Store) AppendMessage(ctx context.Context, m *session.Message) error {
	if _, err := s.GetSession(ctx, m.SessionID); err != nil {
		return err
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}

	var analysisJSON any
	if m.Analysis != nil {
		raw, err := json.Marshal(m.Analysis)
		if err != nil {
			return fmt.Errorf("encoding analysis: %w", err)
		}
		analysisJSON = string(raw)
	}

	query := `INSERT INTO messages (id, session_id, sender, content, analysis, created_at) VALUES (?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query,
		m.ID, m.SessionID, string(m.Sender), m.Content, analysisJSON, m.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("inserting message: %w", err)
	}
	return nil
}

func (s *Store) GetMessage(ctx context.Context, id string) (*session.Message, error) {
	query := `SELECT id, session_id, sender, content, analysis, created_at FROM messages WHERE id = ?`
	row := s.db.QueryRowContext(ctx, query, id)

	m, err := scanMessage(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrMessageNotFound
		}
		return nil, err
	}
	return m, nil
}

func (s *Store) ListMessages(ctx context.Context, sessionID string) ([]session.Message, error) {
	if _, err := s.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}

	query := `SELECT id, session_id, sender, content, analysis, created_at
		FROM messages WHERE session_id = ? ORDER BY created_at`
	rows, err := s.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}
	defer rows.Close()

	out := make([]session.Message, 0, 16)
	for rows.Next() {
		m, err := scanMessage(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

func (s *Store) AttachAnalysis(ctx context.Context, messageID string, a *session.Analysis) error {
	raw, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("encoding analysis: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `UPDATE messages SET analysis = ? WHERE id = ?`, string(raw), messageID)
	if err != nil {
		return fmt.Errorf("attaching analysis: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrMessageNotFound
	}
	return nil
}

func (s *Store) UpsertIssue(ctx context.Context, issue *session.Issue) error {
	if _, err := s.GetSession(ctx, issue.SessionID); err != nil {
		return err
	}

	now := time.Now().UTC()
	issue.UpdatedAt = now
	if issue.CreatedAt.IsZero() {
		issue.CreatedAt = now
	}

	query := `INSERT INTO issues (id, session_id, label, description, status, raised_by, grading_rationale, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			label = excluded.label,
			description = excluded.description,
			status = excluded.status,
			grading_rationale = excluded.grading_rationale,
			updated_at = excluded.updated_at`
	_, err := s.db.ExecContext(ctx, query,
		issue.ID, issue.SessionID, issue.Label, issue.Description, string(issue.Status),
		string(issue.RaisedBy), issue.GradingRationale,
		issue.CreatedAt.Format(time.RFC3339Nano), issue.UpdatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("upserting issue: %w", err)
	}
	return nil
}

func (s *Store) GetIssue(ctx context.Context, id string) (*session.Issue, error) {
	query := `SELECT id, session_id, label, description, status, raised_by, grading_rationale, created_at, updated_at
		FROM issues WHERE id = ?`
	row := s.db.QueryRowContext(ctx, query, id)

	issue, err := scanIssue(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrIssueNotFound
		}
		return nil, err
	}
	return issue, nil
}

func (s *Store) ListIssues(ctx context.Context, sessionID string) ([]session.Issue, error) {
	query := `SELECT id, session_id, label, description, status, raised_by, grading_rationale, created_at, updated_at
		FROM issues WHERE session_id = ? ORDER BY created_at`
	rows, err := s.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("listing issues: %w", err)
	}
	defer rows.Close()

	out := make([]session.Issue, 0, 8)
	for rows.Next() {
		issue, err := scanIssue(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, *issue)
	}
	return out, rows.Err()
}

func scanSession(row *sql.Row) (*session.Session, error) {
	var (
		sess                            session.Session
		mode, ctxMode, phase, turn      string
		goalsJSON, createdAt, updatedAt string
		transitionInFlight, ended       int
	)

	err := row.Scan(
		&sess.ID, &mode, &ctxMode, &phase, &sess.ParticipantA, &sess.ParticipantB, &goalsJSON,
		&sess.ContextA, &sess.ContextB, &sess.ContextSummary, &turn, &sess.TurnDurationMs,
		&transitionInFlight, &ended, &createdAt, &updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrSessionNotFound
		}
		return nil, fmt.Errorf("scanning session: %w", err)
	}

	sess.Mode = session.Mode(mode)
	sess.ContextMode = lens.ContextMode(ctxMode)
	sess.Phase = session.Phase(phase)
	sess.Turn = session.Sender(turn)
	sess.TransitionInFlight = transitionInFlight != 0
	sess.Ended = ended != 0
	if err := json.Unmarshal([]byte(goalsJSON), &sess.Goals); err != nil {
		return nil, fmt.Errorf("decoding goals: %w", err)
	}
	sess.CreatedAt = parseTime(createdAt)
	sess.UpdatedAt = parseTime(updatedAt)
	return &sess, nil
}

func scanMessage(scan func(...any) error) (*session.Message, error) {
	var (
		m            session.Message
		sender       string
		analysisJSON sql.NullString
		createdAt    string
	)

	if err := scan(&m.ID, &m.SessionID, &sender, &m.Content, &analysisJSON, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning message: %w", err)
	}

	m.Sender = session.Sender(sender)
	m.CreatedAt = parseTime(createdAt)
	if analysisJSON.Valid && analysisJSON.String != "" {
		var a session.Analysis
		if err := json.Unmarshal([]byte(analysisJSON.String), &a); err != nil {
			return nil, fmt.Errorf("decoding analysis: %w", err)
		}
		m.Analysis = &a
	}
	return &m, nil
}

func scanIssue(scan func(...any) error) (*session.Issue, error) {
	var (
		issue                session.Issue
		status, raisedBy     string
		createdAt, updatedAt string
	)

	if err := scan(&issue.ID, &issue.SessionID, &issue.Label, &issue.Description, &status,
		&raisedBy, &issue.GradingRationale, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning issue: %w", err)
	}

	issue.Status = session.IssueStatus(status)
	issue.RaisedBy = session.Sender(raisedBy)
	issue.CreatedAt = parseTime(createdAt)
	issue.UpdatedAt = parseTime(updatedAt)
	return &issue, nil
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

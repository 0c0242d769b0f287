package conductor

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/accordlabs/accord/backend/internal/analysis"
	"github.com/accordlabs/accord/backend/internal/events"
	"github.com/accordlabs/accord/backend/internal/model/session"
)

// interventionResult is the model's read of the current moment.
type interventionResult struct {
	Situation string `json:"situation"`
	Message   string `json:"message"`
}

// ScheduleCheck queues one intervention check for the session after the
// configured settle delay. Checks are serialized per session: a check
// already queued or running absorbs this request.
func (s *Service) ScheduleCheck(sessionID string) {
	s.mu.Lock()
	if s.checks[sessionID] {
		s.mu.Unlock()
		return
	}
	s.checks[sessionID] = true
	s.mu.Unlock()

	delay := s.cfg.InterventionDelay
	if delay <= 0 {
		delay = time.Millisecond
	}
	time.AfterFunc(delay, func() {
		defer func() {
			s.mu.Lock()
			delete(s.checks, sessionID)
			s.mu.Unlock()
		}()
		s.runCheck(sessionID)
	})
}

// CheckPending reports whether an intervention check is queued or running
// for the session.
func (s *Service) CheckPending(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.checks[sessionID]
}

// runCheck classifies the live conversation and, when a situation is
// found, speaks as the mediator. Failures are logged and swallowed; a
// missed check never disturbs the conversation.
func (s *Service) runCheck(sessionID string) {
	ctx, cancel := context.WithTimeout(context.Background(), conductorTimeout)
	defer cancel()

	sess, err := s.mediation.GetSession(ctx, sessionID)
	if err != nil || sess.Ended || sess.Phase != session.PhaseActive {
		return
	}

	msgs, err := s.mediation.LoadTranscript(ctx, sessionID)
	if err != nil {
		log.Printf("[conductor] intervention transcript load failed: %v", err)
		return
	}
	issues, err := s.mediation.ListIssues(ctx, sessionID)
	if err != nil {
		log.Printf("[conductor] intervention issue load failed: %v", err)
		issues = nil
	}

	situation, text, ok := s.classify(ctx, sess, msgs, issues)
	if !ok {
		return
	}

	utterance, err := s.mediation.SaveMessage(ctx, sessionID, session.SenderMediator, text)
	if err != nil {
		log.Printf("[conductor] intervention utterance failed: %v", err)
		return
	}

	if s.bus != nil {
		s.bus.Publish(events.Event{Type: events.TypeIntervention, SessionID: sessionID, Payload: map[string]any{
			"situation": situation,
			"messageId": utterance.ID,
		}})
	}
	s.publishMediator(sessionID, utterance)

	// Only an escalation read hands the floor to the other side and
	// restarts the clock; dominance, breakthrough and resolution mark the
	// moment without touching ownership.
	if situation == analysis.SituationEscalation {
		next := session.OtherParticipant(sess.Turn)
		if err := s.mediation.SetTurn(ctx, sessionID, next); err != nil {
			log.Printf("[conductor] intervention turn flip failed: %v", err)
			return
		}
		sess.Turn = next
		s.publishTurn(sess)
		s.armTimer(sess)
	}
}

// classify asks the model first and falls back to the keyword/trend
// heuristic when the model is absent, failing, or noncommittal.
func (s *Service) classify(ctx context.Context, sess *session.Session, msgs []session.Message, issues []session.Issue) (analysis.Situation, string, bool) {
	if s.completer != nil {
		if situation, text, ok := s.classifyWithModel(ctx, sess, msgs, issues); ok {
			return situation, text, true
		}
	}

	situation, ok := analysis.Classify(msgs, issues)
	if !ok {
		return "", "", false
	}
	return situation, fallbackUtterances[string(situation)], true
}

func (s *Service) classifyWithModel(ctx context.Context, sess *session.Session, msgs []session.Message, issues []session.Issue) (analysis.Situation, string, bool) {
	var b strings.Builder
	if len(issues) > 0 {
		b.WriteString("Open issues:\n")
		for _, is := range issues {
			fmt.Fprintf(&b, "- %s (%s)\n", is.Label, is.Status)
		}
		b.WriteString("\n")
	}
	b.WriteString("Recent conversation:\n")
	recent := msgs
	if s.cfg.HistoryLimit > 0 && len(recent) > s.cfg.HistoryLimit {
		recent = recent[len(recent)-s.cfg.HistoryLimit:]
	}
	for _, m := range recent {
		fmt.Fprintf(&b, "[%s] %s\n", participantLine(sess, m.Sender), m.Content)
	}

	raw, err := s.completer.Complete(ctx, interventionPrompt, b.String(), utteranceMaxTokens)
	if err != nil {
		log.Printf("[conductor] intervention completion failed, using heuristic: %v", err)
		return "", "", false
	}

	var res interventionResult
	if err := decodeModelObject(raw, &res); err != nil {
		return "", "", false
	}
	situation := analysis.Situation(strings.TrimSpace(res.Situation))
	if !analysis.ValidSituation(situation) {
		return "", "", false
	}
	text := strings.TrimSpace(res.Message)
	if text == "" {
		text = fallbackUtterances[string(situation)]
	}
	return situation, text, true
}

// issueReview is the model's re-grading payload.
type issueReview struct {
	Issues []struct {
		ID        string `json:"id"`
		Status    string `json:"status"`
		Rationale string `json:"rationale"`
	} `json:"issues"`
}

// StartIssueReview launches the periodic re-grading loop for a session.
// The loop stops when ctx is done or the session ends. It is a no-op
// without a completion backend.
func (s *Service) StartIssueReview(ctx context.Context, sessionID string) {
	if s.completer == nil || s.cfg.IssueReviewInterval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(s.cfg.IssueReviewInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if done := s.reviewIssues(sessionID); done {
					return
				}
			}
		}
	}()
}

// reviewIssues re-grades the session's open issues against the recent
// transcript. Returns true when the loop should stop.
func (s *Service) reviewIssues(sessionID string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), conductorTimeout)
	defer cancel()

	sess, err := s.mediation.GetSession(ctx, sessionID)
	if err != nil || sess.Ended {
		return true
	}
	if sess.Phase != session.PhaseActive {
		return false
	}

	issues, err := s.mediation.ListIssues(ctx, sessionID)
	if err != nil || len(issues) == 0 {
		return false
	}
	open := issues[:0:0]
	for _, is := range issues {
		if is.Status != session.IssueWellAddressed {
			open = append(open, is)
		}
	}
	if len(open) == 0 {
		return false
	}

	msgs, err := s.mediation.LoadTranscript(ctx, sessionID)
	if err != nil {
		return false
	}

	var b strings.Builder
	b.WriteString("Issues:\n")
	for _, is := range open {
		fmt.Fprintf(&b, "- id=%s label=%q status=%s description=%q\n", is.ID, is.Label, is.Status, is.Description)
	}
	b.WriteString("\nRecent conversation:\n")
	recent := msgs
	if s.cfg.HistoryLimit > 0 && len(recent) > s.cfg.HistoryLimit {
		recent = recent[len(recent)-s.cfg.HistoryLimit:]
	}
	for _, m := range recent {
		fmt.Fprintf(&b, "[%s] %s\n", participantLine(sess, m.Sender), m.Content)
	}

	raw, err := s.completer.Complete(ctx, issueReviewPrompt, b.String(), decisionMaxTokens)
	if err != nil {
		log.Printf("[conductor] issue review completion failed: %v", err)
		return false
	}

	var review issueReview
	if err := decodeModelObject(raw, &review); err != nil {
		return false
	}

	known := make(map[string]session.IssueStatus, len(open))
	for _, is := range open {
		known[is.ID] = is.Status
	}
	for _, graded := range review.Issues {
		status := session.IssueStatus(graded.Status)
		prev, ok := known[graded.ID]
		if !ok || !session.ValidIssueStatus(status) || status == prev {
			continue
		}
		if _, err := s.mediation.ReGradeIssue(ctx, graded.ID, status, graded.Rationale); err != nil {
			log.Printf("[conductor] issue re-grade failed for %s: %v", graded.ID, err)
		}
	}
	return false
}

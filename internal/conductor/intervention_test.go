package conductor

import (
	"context"
	"errors"
	"testing"

	"github.com/accordlabs/accord/backend/internal/model/session"
)

func transcriptLen(t *testing.T, svc *Service, sessionID string) int {
	t.Helper()
	msgs, err := svc.mediation.LoadTranscript(context.Background(), sessionID)
	if err != nil {
		t.Fatal(err)
	}
	return len(msgs)
}

func lastMediatorLine(t *testing.T, svc *Service, sessionID string) *session.Message {
	t.Helper()
	msgs, err := svc.mediation.LoadTranscript(context.Background(), sessionID)
	if err != nil {
		t.Fatal(err)
	}
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Sender == session.SenderMediator {
			return &msgs[i]
		}
	}
	return nil
}

func TestInterventionHeuristicEscalationFlipsTurn(t *testing.T) {
	svc, med := newTestConductor(t, nil, nil)
	sess := activeSession(t, svc, med)
	defer svc.StopTimers(sess.ID)

	sayAs(t, med, sess.ID, session.SenderPersonA, "You always do this, it's your fault.")
	sayAs(t, med, sess.ID, session.SenderPersonB, "That's ridiculous and you know it.")

	svc.runCheck(sess.ID)

	line := lastMediatorLine(t, svc, sess.ID)
	if line == nil || line.Content != fallbackUtterances["escalation"] {
		t.Fatalf("expected the escalation line, got %v", line)
	}
	stored, err := med.GetSession(context.Background(), sess.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Turn != session.SenderPersonB {
		t.Fatalf("escalation should hand the floor over, got %s", stored.Turn)
	}
}

func TestInterventionModelBreakthroughKeepsTurn(t *testing.T) {
	completer := &stubCompleter{}
	svc, med := newTestConductor(t, nil, nil)
	sess := activeSession(t, svc, med)
	defer svc.StopTimers(sess.ID)

	// Attach the model only now so onboarding above ran on fallbacks.
	completer.replies = []string{`{"situation": "breakthrough", "message": "I want to mark that moment of honesty."}`}
	svc.completer = completer

	sayAs(t, med, sess.ID, session.SenderPersonA, "I didn't realize how much this weighed on you.")

	svc.runCheck(sess.ID)

	line := lastMediatorLine(t, svc, sess.ID)
	if line == nil || line.Content != "I want to mark that moment of honesty." {
		t.Fatalf("expected the model's line, got %v", line)
	}
	stored, _ := med.GetSession(context.Background(), sess.ID)
	if stored.Turn != session.SenderPersonA {
		t.Fatalf("breakthrough must not flip the turn, got %s", stored.Turn)
	}
}

func TestInterventionModelDominanceKeepsTurn(t *testing.T) {
	completer := &stubCompleter{}
	svc, med := newTestConductor(t, nil, nil)
	sess := activeSession(t, svc, med)
	defer svc.StopTimers(sess.ID)

	completer.replies = []string{`{"situation": "dominance", "message": "Let's make room for the other side."}`}
	svc.completer = completer

	sayAs(t, med, sess.ID, session.SenderPersonA, "And another thing, I also handle all the planning.")

	svc.runCheck(sess.ID)

	line := lastMediatorLine(t, svc, sess.ID)
	if line == nil || line.Content != "Let's make room for the other side." {
		t.Fatalf("expected the model's line, got %v", line)
	}
	stored, _ := med.GetSession(context.Background(), sess.ID)
	if stored.Turn != session.SenderPersonA {
		t.Fatalf("dominance must not flip the turn, got %s", stored.Turn)
	}
}

func TestInterventionStaysSilentWithoutSignal(t *testing.T) {
	svc, med := newTestConductor(t, nil, nil)
	sess := activeSession(t, svc, med)
	defer svc.StopTimers(sess.ID)

	sayAs(t, med, sess.ID, session.SenderPersonA, "The meeting moved to Tuesday.")
	sayAs(t, med, sess.ID, session.SenderPersonB, "Noted, Tuesday then.")

	before := transcriptLen(t, svc, sess.ID)
	svc.runCheck(sess.ID)
	if after := transcriptLen(t, svc, sess.ID); after != before {
		t.Fatalf("no-signal check must not speak: %d -> %d", before, after)
	}
}

func TestInterventionModelFailureFallsBackToHeuristic(t *testing.T) {
	svc, med := newTestConductor(t, nil, nil)
	sess := activeSession(t, svc, med)
	defer svc.StopTimers(sess.ID)
	svc.completer = &stubCompleter{err: errors.New("model offline")}

	sayAs(t, med, sess.ID, session.SenderPersonB, "I'm sorry, I was wrong about the schedule.")

	svc.runCheck(sess.ID)

	line := lastMediatorLine(t, svc, sess.ID)
	if line == nil || line.Content != fallbackUtterances["breakthrough"] {
		t.Fatalf("expected the heuristic breakthrough line, got %v", line)
	}
}

func TestInterventionSkipsInactivePhases(t *testing.T) {
	svc, med := newTestConductor(t, nil, nil)
	sess := createSession(t, med, session.ModeRemote)

	sayAs(t, med, sess.ID, session.SenderPersonA, "You always ruin everything, it's your fault.")
	before := transcriptLen(t, svc, sess.ID)
	svc.runCheck(sess.ID)
	if after := transcriptLen(t, svc, sess.ID); after != before {
		t.Fatal("checks must not run before the active phase")
	}
}

func TestScheduleCheckSerializesPerSession(t *testing.T) {
	svc, med := newTestConductor(t, nil, nil)
	sess := createSession(t, med, session.ModeRemote)

	svc.ScheduleCheck(sess.ID)
	svc.ScheduleCheck(sess.ID)
	if !svc.CheckPending(sess.ID) {
		t.Fatal("check should be pending")
	}
	if svc.CheckPending("other-session") {
		t.Fatal("pending state must be per session")
	}
}

func TestIssueReviewReGradesIssues(t *testing.T) {
	ctx := context.Background()
	svc, med := newTestConductor(t, nil, nil)
	sess := activeSession(t, svc, med)
	defer svc.StopTimers(sess.ID)

	issue, err := med.RaiseIssue(ctx, sess.ID, "feeling unheard", "Person A feels decisions are made without them.", session.SenderPersonA)
	if err != nil {
		t.Fatal(err)
	}

	svc.completer = &stubCompleter{replies: []string{
		`{"issues": [{"id": "` + issue.ID + `", "status": "well_addressed", "rationale": "They agreed on shared planning."}]}`,
	}}

	if done := svc.reviewIssues(sess.ID); done {
		t.Fatal("active session review should keep the loop alive")
	}

	graded, err := med.ListIssues(ctx, sess.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(graded) != 1 || graded[0].Status != session.IssueWellAddressed {
		t.Fatalf("issue not re-graded: %+v", graded)
	}
	if graded[0].GradingRationale == "" {
		t.Fatal("rationale should be recorded")
	}
}

func TestIssueReviewStopsOnEndedSession(t *testing.T) {
	ctx := context.Background()
	svc, med := newTestConductor(t, nil, nil)
	sess := activeSession(t, svc, med)
	svc.StopTimers(sess.ID)

	if err := med.EndSession(ctx, sess.ID); err != nil {
		t.Fatal(err)
	}
	if done := svc.reviewIssues(sess.ID); !done {
		t.Fatal("review loop should stop when the session ends")
	}
}

func TestIssueReviewIgnoresBadGrades(t *testing.T) {
	ctx := context.Background()
	svc, med := newTestConductor(t, nil, nil)
	sess := activeSession(t, svc, med)
	defer svc.StopTimers(sess.ID)

	issue, err := med.RaiseIssue(ctx, sess.ID, "tone", "Sharp tone in replies.", session.SenderPersonB)
	if err != nil {
		t.Fatal(err)
	}

	svc.completer = &stubCompleter{replies: []string{
		`{"issues": [{"id": "` + issue.ID + `", "status": "sorted-i-guess"}, {"id": "unknown", "status": "well_addressed"}]}`,
	}}
	svc.reviewIssues(sess.ID)

	graded, err := med.ListIssues(ctx, sess.ID)
	if err != nil {
		t.Fatal(err)
	}
	if graded[0].Status != session.IssueUnaddressed {
		t.Fatalf("invalid grades must be ignored, got %s", graded[0].Status)
	}
}

package mediation

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/accordlabs/accord/backend/internal/lens"
	"github.com/accordlabs/accord/backend/internal/model/session"
	"github.com/accordlabs/accord/backend/internal/store/memory"
)

func newTestService(t *testing.T) (*Service, *session.Session) {
	t.Helper()
	svc := NewService(memory.NewStore())
	sess, err := svc.CreateSession(context.Background(), session.ModeRemote,
		lens.ModeIntimate, "", "", 0)
	if err != nil {
		t.Fatal(err)
	}
	return svc, sess
}

func TestCreateSessionDefaults(t *testing.T) {
	svc, sess := newTestService(t)

	if sess.Phase != session.PhaseGreeting {
		t.Fatalf("new sessions start in greeting, got %s", sess.Phase)
	}
	if sess.Turn != session.SenderPersonA {
		t.Fatalf("person A opens, got %s", sess.Turn)
	}
	if sess.TurnDurationMs != (3 * time.Minute).Milliseconds() {
		t.Fatalf("zero duration takes the default, got %d", sess.TurnDurationMs)
	}

	short, err := svc.CreateSession(context.Background(), session.ModeInPerson,
		lens.ModeTransactional, "  Ana  ", "Ben", 5*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if short.TurnDurationMs != time.Minute.Milliseconds() {
		t.Fatalf("short durations clamp to one minute, got %d", short.TurnDurationMs)
	}
	if short.ParticipantA != "Ana" {
		t.Fatalf("names should be trimmed, got %q", short.ParticipantA)
	}
}

func TestSaveMessageValidation(t *testing.T) {
	svc, sess := newTestService(t)
	ctx := context.Background()

	if _, err := svc.SaveMessage(ctx, sess.ID, "person_c", "hi"); !errors.Is(err, ErrInvalidSender) {
		t.Fatalf("expected ErrInvalidSender, got %v", err)
	}
	if _, err := svc.SaveMessage(ctx, sess.ID, session.SenderPersonA, "   "); !errors.Is(err, ErrEmptyContent) {
		t.Fatalf("expected ErrEmptyContent, got %v", err)
	}

	msg, err := svc.SaveMessage(ctx, sess.ID, session.SenderPersonA, "hello")
	if err != nil {
		t.Fatal(err)
	}
	if msg.ID == "" || msg.CreatedAt.IsZero() {
		t.Fatalf("message not stamped: %+v", msg)
	}

	if err := svc.EndSession(ctx, sess.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.SaveMessage(ctx, sess.ID, session.SenderPersonA, "too late"); !errors.Is(err, ErrSessionEnded) {
		t.Fatalf("expected ErrSessionEnded, got %v", err)
	}
}

func TestSetGoalsIsOneShot(t *testing.T) {
	svc, sess := newTestService(t)
	ctx := context.Background()

	if err := svc.SetGoals(ctx, sess.ID, []string{"listen first"}); err != nil {
		t.Fatal(err)
	}
	if err := svc.SetGoals(ctx, sess.ID, []string{"something else"}); !errors.Is(err, ErrGoalsAlreadySet) {
		t.Fatalf("expected ErrGoalsAlreadySet, got %v", err)
	}

	stored, err := svc.GetSession(ctx, sess.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(stored.Goals) != 1 || stored.Goals[0] != "listen first" {
		t.Fatalf("first goals must win: %v", stored.Goals)
	}
}

func TestPatchNamesOnlyFillsBlanks(t *testing.T) {
	svc, sess := newTestService(t)
	ctx := context.Background()

	if err := svc.PatchNames(ctx, sess.ID, []string{"Sam", "Riley"}); err != nil {
		t.Fatal(err)
	}
	if err := svc.PatchNames(ctx, sess.ID, []string{"Impostor", "Other"}); err != nil {
		t.Fatal(err)
	}

	stored, _ := svc.GetSession(ctx, sess.ID)
	if stored.ParticipantA != "Sam" || stored.ParticipantB != "Riley" {
		t.Fatalf("set names must not be overwritten: %q / %q", stored.ParticipantA, stored.ParticipantB)
	}
}

func TestTransitionGuardFiresOnce(t *testing.T) {
	svc, sess := newTestService(t)
	ctx := context.Background()

	if _, err := svc.BeginTransition(ctx, sess.ID, session.PhaseGreeting); err != nil {
		t.Fatalf("first begin: %v", err)
	}
	// The guard is armed: a concurrent duplicate must lose.
	if _, err := svc.BeginTransition(ctx, sess.ID, session.PhaseGreeting); !errors.Is(err, ErrTransitionBlocked) {
		t.Fatalf("expected ErrTransitionBlocked while pending, got %v", err)
	}

	updated, err := svc.CompleteTransition(ctx, sess.ID, session.PhaseGatherA, nil)
	if err != nil {
		t.Fatal(err)
	}
	if updated.Phase != session.PhaseGatherA || updated.TransitionInFlight {
		t.Fatalf("transition not landed: %+v", updated)
	}

	// The session moved on: a late duplicate of the old trigger must lose
	// too.
	if _, err := svc.BeginTransition(ctx, sess.ID, session.PhaseGreeting); !errors.Is(err, ErrTransitionBlocked) {
		t.Fatalf("expected ErrTransitionBlocked after landing, got %v", err)
	}
}

func TestBeginTransitionConcurrentDuplicatesArmOnce(t *testing.T) {
	svc, sess := newTestService(t)
	ctx := context.Background()

	const callers = 16
	var (
		start = make(chan struct{})
		wg    sync.WaitGroup
		wins  int32
	)
	wg.Add(callers)
	for i := 0; i < callers; i++ {
		go func() {
			defer wg.Done()
			<-start
			_, err := svc.BeginTransition(ctx, sess.ID, session.PhaseGreeting)
			switch {
			case err == nil:
				atomic.AddInt32(&wins, 1)
			case !errors.Is(err, ErrTransitionBlocked):
				t.Errorf("unexpected begin error: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	if wins != 1 {
		t.Fatalf("expected exactly one caller to arm the guard, got %d", wins)
	}
}

func TestCompleteTransitionRequiresArmedGuard(t *testing.T) {
	svc, sess := newTestService(t)

	_, err := svc.CompleteTransition(context.Background(), sess.ID, session.PhaseGatherA, nil)
	if !errors.Is(err, ErrTransitionBlocked) {
		t.Fatalf("complete without an armed guard should be rejected, got %v", err)
	}
}

func TestAbortTransitionAllowsRetry(t *testing.T) {
	svc, sess := newTestService(t)
	ctx := context.Background()

	if _, err := svc.BeginTransition(ctx, sess.ID, session.PhaseGreeting); err != nil {
		t.Fatal(err)
	}
	svc.AbortTransition(ctx, sess.ID)

	if _, err := svc.BeginTransition(ctx, sess.ID, session.PhaseGreeting); err != nil {
		t.Fatalf("retry after abort should succeed, got %v", err)
	}
}

func TestCompleteTransitionAppliesMutation(t *testing.T) {
	svc, sess := newTestService(t)
	ctx := context.Background()

	if _, err := svc.BeginTransition(ctx, sess.ID, session.PhaseGreeting); err != nil {
		t.Fatal(err)
	}
	updated, err := svc.CompleteTransition(ctx, sess.ID, session.PhaseGatherA, func(st *session.Session) {
		st.ContextA = "their private account"
		st.Turn = session.SenderPersonB
	})
	if err != nil {
		t.Fatal(err)
	}
	if updated.ContextA == "" || updated.Turn != session.SenderPersonB {
		t.Fatalf("mutation not applied: %+v", updated)
	}
}

func TestIssueLifecycle(t *testing.T) {
	svc, sess := newTestService(t)
	ctx := context.Background()

	issue, err := svc.RaiseIssue(ctx, sess.ID, "feeling dismissed", "Raised during the first exchange.", session.SenderPersonA)
	if err != nil {
		t.Fatal(err)
	}
	if issue.Status != session.IssueUnaddressed {
		t.Fatalf("new issues start unaddressed, got %s", issue.Status)
	}

	if _, err := svc.ReGradeIssue(ctx, issue.ID, "sorted", ""); err == nil {
		t.Fatal("unknown status must be rejected")
	}

	updated, err := svc.ReGradeIssue(ctx, issue.ID, session.IssueWellAddressed, "Concrete apology and a plan.")
	if err != nil {
		t.Fatal(err)
	}
	if updated.Status != session.IssueWellAddressed || updated.GradingRationale == "" {
		t.Fatalf("re-grade not applied: %+v", updated)
	}

	issues, err := svc.ListIssues(ctx, sess.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(issues) != 1 {
		t.Fatalf("expected one issue, got %d", len(issues))
	}
}

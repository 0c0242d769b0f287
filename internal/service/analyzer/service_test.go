package analyzer

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/accordlabs/accord/backend/internal/events"
	"github.com/accordlabs/accord/backend/internal/lens"
	"github.com/accordlabs/accord/backend/internal/model/session"
	"github.com/accordlabs/accord/backend/internal/service/mediation"
	"github.com/accordlabs/accord/backend/internal/store/memory"
)

type stubCompleter struct {
	reply  string
	err    error
	system string
	user   string
	tokens int
}

func (s *stubCompleter) Complete(_ context.Context, systemPrompt, userPrompt string, maxTokens int) (string, error) {
	s.system = systemPrompt
	s.user = userPrompt
	s.tokens = maxTokens
	return s.reply, s.err
}

func setup(t *testing.T, completer Completer) (*Service, *mediation.Service, *session.Session) {
	t.Helper()
	med := mediation.NewService(memory.NewStore())
	svc := NewService(completer, med, nil, 12)
	sess, err := med.CreateSession(context.Background(), session.ModeRemote,
		lens.ModeIntimate, "Sam", "Riley", 0)
	if err != nil {
		t.Fatal(err)
	}
	return svc, med, sess
}

const envelopeReply = `{
	"observation": "Mentions of skipped plans",
	"feeling": "hurt",
	"need": "reliability",
	"request": "a firm plan for next week",
	"subtext": "They read the cancellations as not mattering",
	"blindSpots": [],
	"unmetNeeds": ["reliability"],
	"nvcTranslation": "When plans change last minute, I feel hurt because I need reliability.",
	"emotionalTemperature": 0.8,
	"lenses": {"gottman": {"horsemen": ["criticism"], "antidotes": [], "severity": 0.5}},
	"meta": {
		"activeLenses": ["nvc", "gottman"],
		"primaryInsight": "Cancelled plans read as rejection",
		"overallSeverity": 0.7,
		"resolutionDirection": "escalating"
	}
}`

func TestAnalyzeAttachesResultAndRaisesIssues(t *testing.T) {
	completer := &stubCompleter{reply: envelopeReply}
	svc, med, sess := setup(t, completer)
	ctx := context.Background()

	msg, err := med.SaveMessage(ctx, sess.ID, session.SenderPersonA, "You cancelled again.")
	if err != nil {
		t.Fatal(err)
	}

	got := svc.Analyze(ctx, sess, msg)
	if got == nil {
		t.Fatal("expected a parsed analysis")
	}
	if got.Feeling != "hurt" || got.Meta.OverallSeverity != 0.7 {
		t.Fatalf("analysis fields lost: %+v", got)
	}

	stored, err := med.GetMessage(ctx, msg.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Analysis == nil || stored.Analysis.Observation != got.Observation {
		t.Fatal("analysis not attached to the message")
	}

	issues, err := med.ListIssues(ctx, sess.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(issues) != 1 || issues[0].Label != "reliability" {
		t.Fatalf("unmet need should surface as an issue: %+v", issues)
	}
	if issues[0].RaisedBy != session.SenderPersonA {
		t.Fatalf("issue attribution wrong: %s", issues[0].RaisedBy)
	}
}

func TestAnalyzeDoesNotDuplicateIssues(t *testing.T) {
	completer := &stubCompleter{reply: envelopeReply}
	svc, med, sess := setup(t, completer)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		msg, err := med.SaveMessage(ctx, sess.ID, session.SenderPersonA, "You cancelled again.")
		if err != nil {
			t.Fatal(err)
		}
		if svc.Analyze(ctx, sess, msg) == nil {
			t.Fatal("analysis should parse")
		}
	}

	issues, err := med.ListIssues(ctx, sess.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(issues) != 1 {
		t.Fatalf("the same unmet need must not raise twice: %+v", issues)
	}
}

func TestAnalyzeSwallowsCompleterFailure(t *testing.T) {
	completer := &stubCompleter{err: errors.New("model offline")}
	svc, med, sess := setup(t, completer)
	ctx := context.Background()

	msg, err := med.SaveMessage(ctx, sess.ID, session.SenderPersonA, "hello")
	if err != nil {
		t.Fatal(err)
	}
	if got := svc.Analyze(ctx, sess, msg); got != nil {
		t.Fatalf("failed completion should yield nil, got %+v", got)
	}

	stored, _ := med.GetMessage(ctx, msg.ID)
	if stored.Analysis != nil {
		t.Fatal("nothing should be attached on failure")
	}
}

func TestAnalyzeSkipsUnusableOutput(t *testing.T) {
	completer := &stubCompleter{reply: "I'm sorry, I can't produce JSON today."}
	svc, med, sess := setup(t, completer)
	ctx := context.Background()

	msg, _ := med.SaveMessage(ctx, sess.ID, session.SenderPersonA, "hello")
	if got := svc.Analyze(ctx, sess, msg); got != nil {
		t.Fatalf("garbage output should yield nil, got %+v", got)
	}
}

func TestPromptCarriesHistoryAndNames(t *testing.T) {
	completer := &stubCompleter{reply: envelopeReply}
	svc, med, sess := setup(t, completer)
	ctx := context.Background()

	if _, err := med.SaveMessage(ctx, sess.ID, session.SenderPersonB, "I had to work late."); err != nil {
		t.Fatal(err)
	}
	msg, err := med.SaveMessage(ctx, sess.ID, session.SenderPersonA, "You cancelled again.")
	if err != nil {
		t.Fatal(err)
	}
	svc.Analyze(ctx, sess, msg)

	if !strings.Contains(completer.user, "Riley: I had to work late.") {
		t.Fatalf("history with display names missing from prompt:\n%s", completer.user)
	}
	if !strings.Contains(completer.user, "Analyze this message from Sam") {
		t.Fatalf("target message framing missing:\n%s", completer.user)
	}
	if completer.tokens != 3072 {
		t.Fatalf("narrow modes use the smaller budget, got %d", completer.tokens)
	}
}

func TestPromptCarriesSessionGoals(t *testing.T) {
	completer := &stubCompleter{reply: envelopeReply}
	svc, med, sess := setup(t, completer)
	ctx := context.Background()

	if err := med.SetGoals(ctx, sess.ID, []string{"rebuild trust around plans"}); err != nil {
		t.Fatal(err)
	}
	sess, _ = med.GetSession(ctx, sess.ID)

	msg, _ := med.SaveMessage(ctx, sess.ID, session.SenderPersonA, "You cancelled again.")
	svc.Analyze(ctx, sess, msg)

	if !strings.Contains(completer.system, "rebuild trust around plans") {
		t.Fatal("session goals missing from the system prompt")
	}
}

func TestDisabledServiceIsInert(t *testing.T) {
	svc, med, sess := setup(t, nil)
	ctx := context.Background()

	if svc.Enabled() {
		t.Fatal("no completer means disabled")
	}
	msg, _ := med.SaveMessage(ctx, sess.ID, session.SenderPersonA, "hello")
	if got := svc.Analyze(ctx, sess, msg); got != nil {
		t.Fatalf("disabled service must return nil, got %+v", got)
	}
	svc.AnalyzeAsync(sess, msg) // no-op, must not panic
}

func TestEventPublishedOnAnalysis(t *testing.T) {
	bus := events.NewBus()
	med := mediation.NewService(memory.NewStore())
	completer := &stubCompleter{reply: envelopeReply}
	svc := NewService(completer, med, bus, 12)

	ctx := context.Background()
	sess, err := med.CreateSession(ctx, session.ModeRemote, lens.ModeIntimate, "", "", 0)
	if err != nil {
		t.Fatal(err)
	}

	ch, cancel := bus.Subscribe(sess.ID)
	defer cancel()

	msg, _ := med.SaveMessage(ctx, sess.ID, session.SenderPersonA, "You cancelled again.")
	svc.Analyze(ctx, sess, msg)

	select {
	case ev := <-ch:
		if ev.Type != events.TypeAnalysis {
			t.Fatalf("expected analysis event, got %s", ev.Type)
		}
	default:
		t.Fatal("no event published")
	}
}

package conductor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/accordlabs/accord/backend/internal/analysis"
	"github.com/accordlabs/accord/backend/internal/model/session"
	"github.com/accordlabs/accord/backend/internal/service/mediation"
)

// adaptiveDecision is the model's per-message steering payload for
// in-person sessions.
type adaptiveDecision struct {
	Action         string   `json:"action"`
	Message        string   `json:"message"`
	DirectedTo     string   `json:"directedTo"`
	Names          []string `json:"names"`
	Goals          []string `json:"goals"`
	ContextSummary string   `json:"contextSummary"`
}

const (
	actionContinue   = "continue"
	actionSynthesize = "synthesize"
)

// handleAdaptiveMessage runs the in-person flow: one model decision per
// participant message decides whether to keep gathering or to synthesize
// goals and open the active phase.
func (s *Service) handleAdaptiveMessage(ctx context.Context, sess *session.Session, trig Trigger) (*Decision, error) {
	msg, err := s.mediation.GetMessage(ctx, trig.MessageID)
	if err != nil {
		return nil, err
	}
	if msg.Sender == session.SenderMediator {
		return &Decision{Phase: sess.Phase, Turn: sess.Turn}, nil
	}

	if sess.Phase == session.PhaseActive {
		return s.advanceTurn(ctx, sess, msg)
	}

	dec := s.decideAdaptive(ctx, sess)

	if len(dec.Names) > 0 {
		if err := s.mediation.PatchNames(ctx, sess.ID, dec.Names); err != nil {
			log.Printf("[conductor] names patch skipped: %v", err)
		}
	}

	if dec.Action == actionSynthesize {
		return s.completeAdaptiveSynthesis(ctx, sess, dec)
	}

	utterance, err := s.mediation.SaveMessage(ctx, sess.ID, session.SenderMediator, dec.Message)
	if err != nil {
		return nil, err
	}

	turn := sess.Turn
	if next, ok := parseDirectedTo(dec.DirectedTo); ok && next != turn {
		if err := s.mediation.SetTurn(ctx, sess.ID, next); err != nil {
			return nil, err
		}
		turn = next
		sess.Turn = next
		s.publishTurn(sess)
	}

	s.publishMediator(sess.ID, utterance)
	return &Decision{Phase: sess.Phase, Turn: turn, Utterance: utterance}, nil
}

// completeAdaptiveSynthesis sets the one-shot goals and moves the
// in-person session straight into the active phase.
func (s *Service) completeAdaptiveSynthesis(ctx context.Context, sess *session.Session, dec adaptiveDecision) (*Decision, error) {
	if _, err := s.mediation.BeginTransition(ctx, sess.ID, sess.Phase); err != nil {
		return nil, err
	}

	if err := s.mediation.SetGoals(ctx, sess.ID, dec.Goals); err != nil && !errors.Is(err, mediation.ErrGoalsAlreadySet) {
		s.mediation.AbortTransition(ctx, sess.ID)
		return nil, err
	}

	utterance, err := s.mediation.SaveMessage(ctx, sess.ID, session.SenderMediator, dec.Message)
	if err != nil {
		s.mediation.AbortTransition(ctx, sess.ID)
		return nil, err
	}

	turn := session.SenderPersonA
	if next, ok := parseDirectedTo(dec.DirectedTo); ok {
		turn = next
	}
	summary := dec.ContextSummary
	updated, err := s.mediation.CompleteTransition(ctx, sess.ID, session.PhaseActive, func(st *session.Session) {
		st.Turn = turn
		if summary != "" {
			st.ContextSummary = summary
		}
	})
	if err != nil {
		return nil, err
	}

	s.armTimer(updated)
	s.startReview(updated.ID)
	s.publishPhase(updated)
	s.publishMediator(updated.ID, utterance)
	s.publishTurn(updated)
	return &Decision{Phase: updated.Phase, Turn: updated.Turn, Utterance: utterance, GoalsSet: true}, nil
}

// decideAdaptive asks the model what to do next. Unusable replies, and
// synthesize decisions without goals, degrade to a continue decision so
// the conversation never stalls on a bad completion.
func (s *Service) decideAdaptive(ctx context.Context, sess *session.Session) adaptiveDecision {
	fallback := adaptiveDecision{
		Action:     actionContinue,
		Message:    "Thank you. " + otherSideName(sess, sess.Turn) + ", I'd like to hear how you see this.",
		DirectedTo: string(session.OtherParticipant(sess.Turn)),
	}

	if s.completer == nil {
		return fallback
	}

	user := s.adaptiveUserPrompt(ctx, sess)

	cctx, cancel := context.WithTimeout(ctx, conductorTimeout)
	defer cancel()

	raw, err := s.completer.Complete(cctx, adaptiveDecisionPrompt, user, decisionMaxTokens)
	if err != nil {
		log.Printf("[conductor] adaptive decision failed, continuing: %v", err)
		return fallback
	}

	var dec adaptiveDecision
	if err := decodeModelObject(raw, &dec); err != nil || strings.TrimSpace(dec.Message) == "" {
		log.Printf("[conductor] adaptive decision payload unusable, continuing")
		return fallback
	}

	switch dec.Action {
	case actionSynthesize:
		if len(dec.Goals) == 0 {
			dec.Action = actionContinue
		}
	case actionContinue:
	default:
		dec.Action = actionContinue
	}
	return dec
}

// adaptiveUserPrompt renders the recent transcript for the decision call.
func (s *Service) adaptiveUserPrompt(ctx context.Context, sess *session.Session) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Context mode: %s.\n", sess.ContextMode)
	if sess.ParticipantA != "" || sess.ParticipantB != "" {
		fmt.Fprintf(&b, "Known names: %q (first speaker), %q (second speaker).\n",
			sess.ParticipantA, sess.ParticipantB)
	}
	if len(sess.Goals) > 0 {
		fmt.Fprintf(&b, "Agreed goals: %s.\n", strings.Join(sess.Goals, "; "))
	}
	b.WriteString("\nConversation so far:\n")

	msgs, err := s.mediation.LoadTranscript(ctx, sess.ID)
	if err != nil {
		log.Printf("[conductor] transcript load failed: %v", err)
	}
	if len(msgs) > s.cfg.HistoryLimit && s.cfg.HistoryLimit > 0 {
		msgs = msgs[len(msgs)-s.cfg.HistoryLimit:]
	}
	for _, m := range msgs {
		fmt.Fprintf(&b, "[%s] %s\n", participantLine(sess, m.Sender), m.Content)
	}
	return b.String()
}

func parseDirectedTo(raw string) (session.Sender, bool) {
	switch session.Sender(strings.TrimSpace(raw)) {
	case session.SenderPersonA:
		return session.SenderPersonA, true
	case session.SenderPersonB:
		return session.SenderPersonB, true
	}
	return "", false
}

func otherSideName(sess *session.Session, current session.Sender) string {
	return participantLine(sess, session.OtherParticipant(current))
}

// decodeModelObject strips fences and surrounding prose before decoding
// the embedded JSON object.
func decodeModelObject(raw string, dst any) error {
	return analysis.DecodeObject(raw, dst)
}

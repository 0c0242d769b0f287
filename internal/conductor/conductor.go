package conductor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/accordlabs/accord/backend/internal/config"
	"github.com/accordlabs/accord/backend/internal/events"
	"github.com/accordlabs/accord/backend/internal/model/session"
	"github.com/accordlabs/accord/backend/internal/service/mediation"
)

// TriggerType names the lifecycle moments the conductor reacts to.
type TriggerType string

const (
	TriggerPersonAReady      TriggerType = "person_a_ready"
	TriggerPersonBJoined     TriggerType = "person_b_joined"
	TriggerMessageSent       TriggerType = "message_sent"
	TriggerInPersonMessage   TriggerType = "in_person_message"
	TriggerCheckIntervention TriggerType = "check_intervention"
)

// ValidTriggerType reports whether t is part of the trigger vocabulary.
func ValidTriggerType(t TriggerType) bool {
	switch t {
	case TriggerPersonAReady, TriggerPersonBJoined, TriggerMessageSent,
		TriggerInPersonMessage, TriggerCheckIntervention:
		return true
	}
	return false
}

// Trigger is one conductor input. MessageID is set only for
// the message triggers.
type Trigger struct {
	Type      TriggerType `json:"type"`
	SessionID string      `json:"sessionId"`
	MessageID string      `json:"messageId,omitempty"`
}

// Decision is what the conductor did in response to a trigger.
type Decision struct {
	Phase     session.Phase    `json:"phase"`
	Turn      session.Sender   `json:"turn"`
	Utterance *session.Message `json:"utterance,omitempty"`
	GoalsSet  bool             `json:"goalsSet,omitempty"`
}

// ErrUnknownTrigger is returned for trigger types the conductor does not
// recognize.
var ErrUnknownTrigger = errors.New("conductor: unknown trigger type")

// ErrWrongPhase is returned when a trigger arrives in a phase that cannot
// accept it.
var ErrWrongPhase = errors.New("conductor: trigger not valid in current phase")

// Completer produces one model completion. The conductor degrades to
// canned utterances when it is nil or failing.
type Completer interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string, maxTokens int) (string, error)
}

const (
	utteranceMaxTokens = 512
	decisionMaxTokens  = 1024
	conductorTimeout   = 45 * time.Second
)

// Service drives a session through its phases, speaks as the mediator,
// owns the turn timers and watches for moments that need an intervention.
type Service struct {
	completer Completer
	mediation *mediation.Service
	bus       *events.Bus
	cfg       config.MediationConfig
	timers    *timerRegistry

	mu      sync.Mutex
	checks  map[string]bool // session id -> intervention check in flight
	reviews map[string]context.CancelFunc
}

// NewService wires the conductor. completer may be nil; the conductor then
// runs on canned utterances and heuristic classification only.
func NewService(completer Completer, med *mediation.Service, bus *events.Bus, cfg config.MediationConfig) *Service {
	return &Service{
		completer: completer,
		mediation: med,
		bus:       bus,
		cfg:       cfg,
		timers:    newTimerRegistry(),
		checks:    make(map[string]bool),
		reviews:   make(map[string]context.CancelFunc),
	}
}

// HandleTrigger advances the session per the trigger and returns what
// changed. Concurrent duplicate triggers lose the phase guard and get
// mediation.ErrTransitionBlocked.
func (s *Service) HandleTrigger(ctx context.Context, trig Trigger) (*Decision, error) {
	sess, err := s.mediation.GetSession(ctx, trig.SessionID)
	if err != nil {
		return nil, err
	}
	if sess.Ended {
		return nil, mediation.ErrSessionEnded
	}

	switch trig.Type {
	case TriggerPersonAReady:
		return s.handlePersonAReady(ctx, sess)
	case TriggerPersonBJoined:
		return s.handlePersonBJoined(ctx, sess)
	case TriggerMessageSent, TriggerInPersonMessage:
		if sess.Mode == session.ModeInPerson {
			return s.handleAdaptiveMessage(ctx, sess, trig)
		}
		return s.handleStructuredMessage(ctx, sess, trig)
	case TriggerCheckIntervention:
		s.ScheduleCheck(sess.ID)
		return &Decision{Phase: sess.Phase, Turn: sess.Turn}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownTrigger, trig.Type)
	}
}

// handlePersonAReady moves greeting -> gather_a and welcomes the first
// participant.
func (s *Service) handlePersonAReady(ctx context.Context, sess *session.Session) (*Decision, error) {
	if _, err := s.mediation.BeginTransition(ctx, sess.ID, session.PhaseGreeting); err != nil {
		return nil, err
	}

	text := s.speak(ctx, greetingPrompt, "The first participant has joined and is ready to begin.",
		"Welcome. I'm here to help the two of you work through this together. Before the conversation starts, I'd like to hear from each of you privately. Tell me, in your own words, what brings you here?")

	utterance, err := s.mediation.SaveMessage(ctx, sess.ID, session.SenderMediator, text)
	if err != nil {
		s.mediation.AbortTransition(ctx, sess.ID)
		return nil, err
	}

	updated, err := s.mediation.CompleteTransition(ctx, sess.ID, sess.Phase.Next(), nil)
	if err != nil {
		return nil, err
	}

	s.publishPhase(updated)
	s.publishMediator(updated.ID, utterance)
	return &Decision{Phase: updated.Phase, Turn: updated.Turn, Utterance: utterance}, nil
}

// handlePersonBJoined moves waiting_for_b -> gather_b.
func (s *Service) handlePersonBJoined(ctx context.Context, sess *session.Session) (*Decision, error) {
	if _, err := s.mediation.BeginTransition(ctx, sess.ID, session.PhaseWaitingForB); err != nil {
		return nil, err
	}

	text := s.speak(ctx, gatherBPrompt, "The second participant has just joined the session.",
		"Welcome. Your counterpart has already shared their view with me privately, and I'd like to hear yours the same way. In your own words, how do you see the situation?")

	utterance, err := s.mediation.SaveMessage(ctx, sess.ID, session.SenderMediator, text)
	if err != nil {
		s.mediation.AbortTransition(ctx, sess.ID)
		return nil, err
	}

	updated, err := s.mediation.CompleteTransition(ctx, sess.ID, sess.Phase.Next(), nil)
	if err != nil {
		return nil, err
	}

	s.publishPhase(updated)
	s.publishMediator(updated.ID, utterance)
	return &Decision{Phase: updated.Phase, Turn: updated.Turn, Utterance: utterance}, nil
}

// handleStructuredMessage reacts to a participant message in the
// structured (remote) flow.
func (s *Service) handleStructuredMessage(ctx context.Context, sess *session.Session, trig Trigger) (*Decision, error) {
	msg, err := s.mediation.GetMessage(ctx, trig.MessageID)
	if err != nil {
		return nil, err
	}
	if msg.Sender == session.SenderMediator {
		return &Decision{Phase: sess.Phase, Turn: sess.Turn}, nil
	}

	switch sess.Phase {
	case session.PhaseGatherA:
		return s.finishGatherA(ctx, sess, msg)
	case session.PhaseGatherB:
		return s.finishGatherB(ctx, sess, msg)
	case session.PhaseActive:
		return s.advanceTurn(ctx, sess, msg)
	default:
		return nil, fmt.Errorf("%w: message in phase %q", ErrWrongPhase, sess.Phase)
	}
}

// finishGatherA stores the first side's private context and parks the
// session until the second participant joins.
func (s *Service) finishGatherA(ctx context.Context, sess *session.Session, msg *session.Message) (*Decision, error) {
	// Only the participant being gathered advances the phase; the other
	// side's message is kept in the transcript but changes nothing here.
	if msg.Sender != session.SenderPersonA {
		return &Decision{Phase: sess.Phase, Turn: sess.Turn}, nil
	}

	if _, err := s.mediation.BeginTransition(ctx, sess.ID, session.PhaseGatherA); err != nil {
		return nil, err
	}

	text := s.speak(ctx, gatherAckPrompt, participantLine(sess, msg.Sender)+" said: "+msg.Content,
		"Thank you for sharing that. I'll hold onto it. As soon as the other participant joins and tells me their side, we'll agree on what this conversation should achieve.")

	utterance, err := s.mediation.SaveMessage(ctx, sess.ID, session.SenderMediator, text)
	if err != nil {
		s.mediation.AbortTransition(ctx, sess.ID)
		return nil, err
	}

	context := msg.Content
	updated, err := s.mediation.CompleteTransition(ctx, sess.ID, sess.Phase.Next(), func(st *session.Session) {
		st.ContextA = context
	})
	if err != nil {
		return nil, err
	}

	s.publishPhase(updated)
	s.publishMediator(updated.ID, utterance)
	return &Decision{Phase: updated.Phase, Turn: updated.Turn, Utterance: utterance}, nil
}

// finishGatherB stores the second side's context, synthesizes shared
// goals and opens the conversation.
func (s *Service) finishGatherB(ctx context.Context, sess *session.Session, msg *session.Message) (*Decision, error) {
	if msg.Sender != session.SenderPersonB {
		return &Decision{Phase: sess.Phase, Turn: sess.Turn}, nil
	}

	if _, err := s.mediation.BeginTransition(ctx, sess.ID, session.PhaseGatherB); err != nil {
		return nil, err
	}
	contextB := msg.Content
	updated, err := s.mediation.CompleteTransition(ctx, sess.ID, sess.Phase.Next(), func(st *session.Session) {
		st.ContextB = contextB
	})
	if err != nil {
		return nil, err
	}
	s.publishPhase(updated)

	return s.synthesize(ctx, updated)
}

// synthesize runs the goal-setting step and transitions the session into
// the active phase with person A holding the first turn.
func (s *Service) synthesize(ctx context.Context, sess *session.Session) (*Decision, error) {
	if _, err := s.mediation.BeginTransition(ctx, sess.ID, session.PhaseSynthesize); err != nil {
		return nil, err
	}

	syn := s.runSynthesis(ctx, sess)

	if err := s.mediation.SetGoals(ctx, sess.ID, syn.Goals); err != nil && !errors.Is(err, mediation.ErrGoalsAlreadySet) {
		s.mediation.AbortTransition(ctx, sess.ID)
		return nil, err
	}

	utterance, err := s.mediation.SaveMessage(ctx, sess.ID, session.SenderMediator, syn.Message)
	if err != nil {
		s.mediation.AbortTransition(ctx, sess.ID)
		return nil, err
	}

	summary := syn.ContextSummary
	updated, err := s.mediation.CompleteTransition(ctx, sess.ID, sess.Phase.Next(), func(st *session.Session) {
		st.Turn = session.SenderPersonA
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

// synthesisResult is the model's goal-setting payload.
type synthesisResult struct {
	Message        string   `json:"message"`
	Goals          []string `json:"goals"`
	ContextSummary string   `json:"contextSummary"`
}

// runSynthesis asks the model for shared goals, falling back to neutral
// defaults when the model is unreachable or returns garbage.
func (s *Service) runSynthesis(ctx context.Context, sess *session.Session) synthesisResult {
	fallback := synthesisResult{
		Message: "Thank you both. Here's what I suggest we work toward: understanding how each of you experiences this, and agreeing on one concrete next step. " +
			nameOrDefault(sess.ParticipantA, "the first participant") + ", you have the floor first.",
		Goals: []string{
			"Understand how each person experiences the situation",
			"Agree on one concrete next step both can commit to",
		},
	}

	if s.completer == nil {
		return fallback
	}

	user := fmt.Sprintf("First participant (%s) said privately:\n%s\n\nSecond participant (%s) said privately:\n%s",
		nameOrDefault(sess.ParticipantA, "unnamed"), sess.ContextA,
		nameOrDefault(sess.ParticipantB, "unnamed"), sess.ContextB)

	cctx, cancel := context.WithTimeout(ctx, conductorTimeout)
	defer cancel()

	raw, err := s.completer.Complete(cctx, synthesisPrompt, user, decisionMaxTokens)
	if err != nil {
		log.Printf("[conductor] synthesis completion failed, using fallback: %v", err)
		return fallback
	}

	var syn synthesisResult
	if err := decodeModelObject(raw, &syn); err != nil || strings.TrimSpace(syn.Message) == "" || len(syn.Goals) == 0 {
		log.Printf("[conductor] synthesis payload unusable, using fallback")
		return fallback
	}
	return syn
}

// advanceTurn flips speaking ownership after an active-phase message and
// restarts the countdown. Every human message schedules an intervention
// check, in or out of turn.
func (s *Service) advanceTurn(ctx context.Context, sess *session.Session, msg *session.Message) (*Decision, error) {
	s.ScheduleCheck(sess.ID)

	if msg.Sender != sess.Turn {
		// Out-of-turn messages are kept but do not flip ownership.
		return &Decision{Phase: sess.Phase, Turn: sess.Turn}, nil
	}

	next := session.OtherParticipant(msg.Sender)
	if err := s.mediation.SetTurn(ctx, sess.ID, next); err != nil {
		return nil, err
	}
	sess.Turn = next

	s.armTimer(sess)
	s.publishTurn(sess)

	return &Decision{Phase: sess.Phase, Turn: next}, nil
}

// armTimer installs the session's turn countdown; expiry nudges the
// conversation along and hands the floor to the other participant.
func (s *Service) armTimer(sess *session.Session) {
	id := sess.ID
	duration := time.Duration(sess.TurnDurationMs) * time.Millisecond
	s.timers.arm(id, duration, func() {
		s.onTurnExpired(id)
	})
}

// onTurnExpired fires once per countdown: the mediator notes the time is
// up, ownership flips and the countdown restarts for the other side.
func (s *Service) onTurnExpired(sessionID string) {
	ctx, cancel := context.WithTimeout(context.Background(), conductorTimeout)
	defer cancel()

	sess, err := s.mediation.GetSession(ctx, sessionID)
	if err != nil || sess.Ended || sess.Phase != session.PhaseActive {
		s.timers.drop(sessionID)
		return
	}

	utterance, err := s.mediation.SaveMessage(ctx, sessionID, session.SenderMediator, fallbackUtterances["turn_expired"])
	if err != nil {
		log.Printf("[conductor] turn-expiry utterance failed: %v", err)
	}

	next := session.OtherParticipant(sess.Turn)
	if err := s.mediation.SetTurn(ctx, sessionID, next); err != nil {
		log.Printf("[conductor] turn-expiry flip failed: %v", err)
		return
	}
	sess.Turn = next

	if s.bus != nil {
		s.bus.Publish(events.Event{Type: events.TypeTimer, SessionID: sessionID, Payload: map[string]any{
			"expired": true,
			"turn":    next,
		}})
	}
	if utterance != nil {
		s.publishMediator(sessionID, utterance)
	}
	s.publishTurn(sess)
	s.armTimer(sess)
}

// startReview begins the session's periodic issue re-grading, replacing
// any loop already running for it.
func (s *Service) startReview(sessionID string) {
	s.mu.Lock()
	if cancel, ok := s.reviews[sessionID]; ok {
		cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.reviews[sessionID] = cancel
	s.mu.Unlock()

	s.StartIssueReview(ctx, sessionID)
}

// StopTimers releases the session's countdown and review loop, for
// session end or teardown.
func (s *Service) StopTimers(sessionID string) {
	s.timers.drop(sessionID)

	s.mu.Lock()
	cancel, ok := s.reviews[sessionID]
	if ok {
		delete(s.reviews, sessionID)
	}
	s.mu.Unlock()
	if ok {
		cancel()
	}
}

// TimerSnapshot reports the remaining countdown for a session, if one is
// armed.
func (s *Service) TimerSnapshot(sessionID string) (remaining time.Duration, progress float64, ok bool) {
	t, ok := s.timers.get(sessionID)
	if !ok {
		return 0, 0, false
	}
	return t.Remaining(), t.Progress(), true
}

// speak returns a mediator utterance for the prompt, degrading to the
// fallback line when the model is missing or fails.
func (s *Service) speak(ctx context.Context, system, user, fallback string) string {
	if s.completer == nil {
		return fallback
	}
	cctx, cancel := context.WithTimeout(ctx, conductorTimeout)
	defer cancel()

	raw, err := s.completer.Complete(cctx, system, user, utteranceMaxTokens)
	if err != nil {
		log.Printf("[conductor] utterance completion failed, using fallback: %v", err)
		return fallback
	}
	text := strings.TrimSpace(stripQuotes(raw))
	if text == "" {
		return fallback
	}
	return text
}

func (s *Service) publishPhase(sess *session.Session) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(events.Event{Type: events.TypePhase, SessionID: sess.ID, Payload: map[string]any{
		"phase": sess.Phase,
	}})
}

func (s *Service) publishTurn(sess *session.Session) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(events.Event{Type: events.TypeTurn, SessionID: sess.ID, Payload: map[string]any{
		"turn":           sess.Turn,
		"turnDurationMs": sess.TurnDurationMs,
	}})
}

func (s *Service) publishMediator(sessionID string, msg *session.Message) {
	if s.bus == nil || msg == nil {
		return
	}
	s.bus.Publish(events.Event{Type: events.TypeMediator, SessionID: sessionID, Payload: msg})
}

func participantLine(sess *session.Session, sender session.Sender) string {
	switch sender {
	case session.SenderPersonA:
		return nameOrDefault(sess.ParticipantA, "The first participant")
	case session.SenderPersonB:
		return nameOrDefault(sess.ParticipantB, "The second participant")
	default:
		return "The mediator"
	}
}

func nameOrDefault(name, def string) string {
	if strings.TrimSpace(name) == "" {
		return def
	}
	return name
}

// stripQuotes removes one layer of surrounding double quotes that models
// sometimes wrap plain-text replies in.
func stripQuotes(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}

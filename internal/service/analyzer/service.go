// Package analyzer runs the per-message analysis pipeline: compose the
// prompt for the session's context mode, call the completion backend,
// parse whatever comes back, and attach the result to the stored message.
package analyzer

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/accordlabs/accord/backend/internal/analysis"
	"github.com/accordlabs/accord/backend/internal/events"
	"github.com/accordlabs/accord/backend/internal/model/session"
	"github.com/accordlabs/accord/backend/internal/service/mediation"
)

// Completer is the black-box completion backend.
type Completer interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string, maxTokens int) (string, error)
}

const analysisTimeout = 60 * time.Second

// Service dispatches analyses. Calls are single-attempt: a failed analysis
// is logged and dropped, the message stays saved, and callers may
// re-trigger if they choose.
type Service struct {
	completer    Completer
	mediation    *mediation.Service
	bus          *events.Bus
	historyLimit int

	mu       sync.Mutex
	inFlight map[string]struct{}
}

// NewService wires the analyzer. bus may be nil when no live transport is
// attached.
func NewService(completer Completer, med *mediation.Service, bus *events.Bus, historyLimit int) *Service {
	if historyLimit <= 0 {
		historyLimit = 12
	}
	return &Service{
		completer:    completer,
		mediation:    med,
		bus:          bus,
		historyLimit: historyLimit,
		inFlight:     make(map[string]struct{}),
	}
}

// Enabled reports whether a completion backend is attached.
func (s *Service) Enabled() bool {
	return s != nil && s.completer != nil
}

// InFlight reports whether an analysis is currently tracked for the
// message. Tracking is bookkeeping only; duplicate requests are the
// caller's responsibility to avoid.
func (s *Service) InFlight(messageID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.inFlight[messageID]
	return ok
}

// AnalyzeAsync dispatches a fire-and-forget analysis for a freshly saved
// message. Message persistence never waits on this.
func (s *Service) AnalyzeAsync(sess *session.Session, msg *session.Message) {
	if !s.Enabled() {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), analysisTimeout)
		defer cancel()
		s.analyze(ctx, sess, msg)
	}()
}

// Analyze runs one analysis synchronously and returns the result, or nil
// when the model output was unusable.
func (s *Service) Analyze(ctx context.Context, sess *session.Session, msg *session.Message) *session.Analysis {
	if !s.Enabled() {
		return nil
	}
	return s.analyze(ctx, sess, msg)
}

func (s *Service) analyze(ctx context.Context, sess *session.Session, msg *session.Message) *session.Analysis {
	s.mu.Lock()
	s.inFlight[msg.ID] = struct{}{}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.inFlight, msg.ID)
		s.mu.Unlock()
	}()

	var sc *analysis.SessionContext
	if len(sess.Goals) > 0 || sess.ContextSummary != "" {
		sc = &analysis.SessionContext{Goals: sess.Goals, ContextSummary: sess.ContextSummary}
	}

	systemPrompt := analysis.BuildSystemPrompt(sess.ContextMode, sc)
	userPrompt := s.buildUserPrompt(ctx, sess, msg)

	raw, err := s.completer.Complete(ctx, systemPrompt, userPrompt, analysis.MaxTokens(sess.ContextMode))
	if err != nil {
		log.Printf("[analyzer] completion failed for message=%s: %v", msg.ID, err)
		return nil
	}

	parsed := analysis.ParseAnalysis(raw, sess.ContextMode)
	if parsed == nil {
		log.Printf("[analyzer] unusable model output for message=%s, analysis skipped", msg.ID)
		return nil
	}

	if err := s.mediation.AttachAnalysis(ctx, msg.ID, parsed); err != nil {
		log.Printf("[analyzer] failed to attach analysis for message=%s: %v", msg.ID, err)
		return parsed
	}

	s.surfaceIssues(ctx, sess, msg, parsed)

	if s.bus != nil {
		s.bus.Publish(events.Event{
			Type:      events.TypeAnalysis,
			SessionID: sess.ID,
			Payload:   map[string]any{"messageId": msg.ID, "analysis": parsed},
		})
	}
	return parsed
}

// buildUserPrompt frames the new message with a slice of recent transcript
// so the model reads it in context.
func (s *Service) buildUserPrompt(ctx context.Context, sess *session.Session, msg *session.Message) string {
	var b strings.Builder

	history, err := s.mediation.LoadTranscript(ctx, sess.ID)
	if err == nil && len(history) > 1 {
		b.WriteString("Recent conversation:\n")
		start := len(history) - s.historyLimit
		if start < 0 {
			start = 0
		}
		for _, m := range history[start:] {
			if m.ID == msg.ID {
				continue
			}
			b.WriteString(senderLabel(sess, m.Sender))
			b.WriteString(": ")
			b.WriteString(strings.TrimSpace(m.Content))
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	b.WriteString("Analyze this message from ")
	b.WriteString(senderLabel(sess, msg.Sender))
	b.WriteString(":\n")
	b.WriteString(msg.Content)
	return b.String()
}

func senderLabel(sess *session.Session, sender session.Sender) string {
	switch sender {
	case session.SenderPersonA:
		if sess.ParticipantA != "" {
			return sess.ParticipantA
		}
		return "Participant A"
	case session.SenderPersonB:
		if sess.ParticipantB != "" {
			return sess.ParticipantB
		}
		return "Participant B"
	default:
		return "Mediator"
	}
}

// surfaceIssues raises a new issue when an analysis carries a strong unmet
// need that no existing issue covers yet.
func (s *Service) surfaceIssues(ctx context.Context, sess *session.Session, msg *session.Message, a *session.Analysis) {
	if analysis.Severity(a) < 0.4 || len(a.UnmetNeeds) == 0 {
		return
	}

	existing, err := s.mediation.ListIssues(ctx, sess.ID)
	if err != nil {
		return
	}
	known := make(map[string]bool, len(existing))
	for _, issue := range existing {
		known[strings.ToLower(issue.Label)] = true
	}

	for _, need := range a.UnmetNeeds {
		label := strings.TrimSpace(need)
		if label == "" || known[strings.ToLower(label)] {
			continue
		}
		if _, err := s.mediation.RaiseIssue(ctx, sess.ID, label, a.Subtext, msg.Sender); err != nil {
			log.Printf("[analyzer] failed to raise issue %q: %v", label, err)
			continue
		}
		known[strings.ToLower(label)] = true
	}
}

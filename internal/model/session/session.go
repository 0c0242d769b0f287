package session

import (
	"time"

	"github.com/accordlabs/accord/backend/internal/lens"
)

// Mode distinguishes the two conductor flows.
type Mode string

const (
	ModeRemote   Mode = "remote"
	ModeInPerson Mode = "in_person"
)

// Phase is the structured-flow onboarding progression.
type Phase string

const (
	PhaseGreeting    Phase = "greeting"
	PhaseGatherA     Phase = "gather_a"
	PhaseWaitingForB Phase = "waiting_for_b"
	PhaseGatherB     Phase = "gather_b"
	PhaseSynthesize  Phase = "synthesize"
	PhaseActive      Phase = "active"
)

// Next returns the phase that follows p in the structured flow.
// Active is terminal.
func (p Phase) Next() Phase {
	switch p {
	case PhaseGreeting:
		return PhaseGatherA
	case PhaseGatherA:
		return PhaseWaitingForB
	case PhaseWaitingForB:
		return PhaseGatherB
	case PhaseGatherB:
		return PhaseSynthesize
	case PhaseSynthesize:
		return PhaseActive
	default:
		return PhaseActive
	}
}

// Session captures one mediated conversation between two participants.
type Session struct {
	ID           string           `json:"id"`
	Mode         Mode             `json:"mode"`
	ContextMode  lens.ContextMode `json:"contextMode"`
	Phase        Phase            `json:"phase"`
	ParticipantA string           `json:"participantA"`
	ParticipantB string           `json:"participantB"`

	// Goals is written exactly once by the synthesis step and is
	// immutable afterwards.
	Goals []string `json:"goals,omitempty"`

	// ContextA/ContextB hold each participant's gathered context; the
	// mediator's synthesis of both lands in ContextSummary.
	ContextA       string `json:"contextA,omitempty"`
	ContextB       string `json:"contextB,omitempty"`
	ContextSummary string `json:"contextSummary,omitempty"`

	// Turn is the participant who currently holds the floor.
	Turn           Sender `json:"turn,omitempty"`
	TurnDurationMs int64  `json:"turnDurationMs"`

	// TransitionInFlight guards structured phase advances. It is set
	// optimistically before the completion call and rolled back only on
	// hard failure, so a phase boundary fires at most once.
	TransitionInFlight bool `json:"transitionInFlight,omitempty"`

	Ended     bool      `json:"ended,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// OtherParticipant flips turn ownership.
func OtherParticipant(s Sender) Sender {
	if s == SenderPersonA {
		return SenderPersonB
	}
	return SenderPersonA
}

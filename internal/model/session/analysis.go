package session

import "github.com/accordlabs/accord/backend/internal/lens"

// ResolutionDirection classifies the conversation's emotional arc.
type ResolutionDirection string

const (
	DirectionEscalating   ResolutionDirection = "escalating"
	DirectionStable       ResolutionDirection = "stable"
	DirectionDeEscalating ResolutionDirection = "de-escalating"
)

// ValidDirection reports whether d is one of the three arc labels.
func ValidDirection(d ResolutionDirection) bool {
	switch d {
	case DirectionEscalating, DirectionStable, DirectionDeEscalating:
		return true
	}
	return false
}

// Analysis annotates a message. The NVC fields at the root are always
// present and meaningful on their own (the original single-framework
// shape); Lenses and Meta carry the multi-lens envelope.
type Analysis struct {
	Observation          string   `json:"observation"`
	Feeling              string   `json:"feeling"`
	Need                 string   `json:"need"`
	Request              string   `json:"request"`
	Subtext              string   `json:"subtext"`
	BlindSpots           []string `json:"blindSpots"`
	UnmetNeeds           []string `json:"unmetNeeds"`
	NVCTranslation       string   `json:"nvcTranslation"`
	EmotionalTemperature float64  `json:"emotionalTemperature"`

	// Lenses is a sparse map of lens id to that lens's result. A secondary
	// lens with no detected signal is simply absent; each entry's internal
	// shape is passed through opaquely.
	Lenses map[string]any `json:"lenses"`
	Meta   AnalysisMeta   `json:"meta"`
}

// AnalysisMeta summarizes the envelope.
type AnalysisMeta struct {
	ContextMode         lens.ContextMode    `json:"contextMode"`
	ActiveLenses        []string            `json:"activeLenses"`
	PrimaryInsight      string              `json:"primaryInsight"`
	OverallSeverity     float64             `json:"overallSeverity"`
	ResolutionDirection ResolutionDirection `json:"resolutionDirection"`
}

package lens

import (
	"encoding/json"
	"fmt"
)

// Result is the closed union of per-lens result shapes. Renderers branch on
// the concrete type; DecodeResult is the single place that maps an id onto
// its variant.
type Result interface {
	Lens() ID
}

// NVCResult mirrors the root fields of an analysis.
type NVCResult struct {
	Observation          string   `json:"observation"`
	Feeling              string   `json:"feeling"`
	Need                 string   `json:"need"`
	Request              string   `json:"request"`
	Subtext              string   `json:"subtext"`
	BlindSpots           []string `json:"blindSpots"`
	UnmetNeeds           []string `json:"unmetNeeds"`
	NVCTranslation       string   `json:"nvcTranslation"`
	EmotionalTemperature float64  `json:"emotionalTemperature"`
}

type GottmanResult struct {
	Horsemen  []string `json:"horsemen"`
	Antidotes []string `json:"antidotes"`
	Severity  float64  `json:"severity"`
}

type AttachmentResult struct {
	Style          string `json:"style"`
	ActivatedWound string `json:"activatedWound"`
	SecureReframe  string `json:"secureReframe"`
}

type DramaTriangleResult struct {
	Role     string `json:"role"`
	Dynamic  string `json:"dynamic"`
	ExitPath string `json:"exitPath"`
}

type NarrativeResult struct {
	DominantStory   string `json:"dominantStory"`
	CounterStory    string `json:"counterStory"`
	Externalization string `json:"externalization"`
}

type CognitiveDistortionsResult struct {
	Distortions []string `json:"distortions"`
	Reframe     string   `json:"reframe"`
}

type AttributionBiasResult struct {
	Attribution             string   `json:"attribution"`
	AlternativeExplanations []string `json:"alternativeExplanations"`
}

type PowerResult struct {
	Imbalance     string `json:"imbalance"`
	SilencedVoice string `json:"silencedVoice"`
	Rebalancing   string `json:"rebalancing"`
}

type SystemsTheoryResult struct {
	Pattern           string `json:"pattern"`
	FeedbackLoop      string `json:"feedbackLoop"`
	InterruptionPoint string `json:"interruptionPoint"`
}

type FaceWorkResult struct {
	Threat     string `json:"threat"`
	FaceSaving string `json:"faceSaving"`
}

type TransactionalAnalysisResult struct {
	EgoStates          string `json:"egoStates"`
	CrossedTransaction string `json:"crossedTransaction"`
	AdultInvitation    string `json:"adultInvitation"`
}

type InterestsPositionsResult struct {
	StatedPosition      string   `json:"statedPosition"`
	UnderlyingInterests []string `json:"underlyingInterests"`
	CommonGround        string   `json:"commonGround"`
}

type ConflictStyleResult struct {
	Style          string `json:"style"`
	Cost           string `json:"cost"`
	SuggestedShift string `json:"suggestedShift"`
}

type RestorativeResult struct {
	Harm       string `json:"harm"`
	Obligation string `json:"obligation"`
	RepairStep string `json:"repairStep"`
}

func (NVCResult) Lens() ID                   { return NVC }
func (GottmanResult) Lens() ID               { return Gottman }
func (AttachmentResult) Lens() ID            { return Attachment }
func (DramaTriangleResult) Lens() ID         { return DramaTriangle }
func (NarrativeResult) Lens() ID             { return Narrative }
func (CognitiveDistortionsResult) Lens() ID  { return CognitiveDistortions }
func (AttributionBiasResult) Lens() ID       { return AttributionBias }
func (PowerResult) Lens() ID                 { return Power }
func (SystemsTheoryResult) Lens() ID         { return SystemsTheory }
func (FaceWorkResult) Lens() ID              { return FaceWork }
func (TransactionalAnalysisResult) Lens() ID { return TransactionalAnalysis }
func (InterestsPositionsResult) Lens() ID    { return InterestsPositions }
func (ConflictStyleResult) Lens() ID         { return ConflictStyle }
func (RestorativeResult) Lens() ID           { return Restorative }

// DecodeResult converts one opaque lenses-map entry into its typed variant.
// The switch is exhaustive over the catalog; an unknown id is an error.
func DecodeResult(id ID, value any) (Result, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("encoding lens %q value: %w", id, err)
	}

	decode := func(dst Result) (Result, error) {
		if err := json.Unmarshal(raw, dst); err != nil {
			return nil, fmt.Errorf("decoding lens %q result: %w", id, err)
		}
		return dst, nil
	}

	switch id {
	case NVC:
		return decode(&NVCResult{})
	case Gottman:
		return decode(&GottmanResult{})
	case Attachment:
		return decode(&AttachmentResult{})
	case DramaTriangle:
		return decode(&DramaTriangleResult{})
	case Narrative:
		return decode(&NarrativeResult{})
	case CognitiveDistortions:
		return decode(&CognitiveDistortionsResult{})
	case AttributionBias:
		return decode(&AttributionBiasResult{})
	case Power:
		return decode(&PowerResult{})
	case SystemsTheory:
		return decode(&SystemsTheoryResult{})
	case FaceWork:
		return decode(&FaceWorkResult{})
	case TransactionalAnalysis:
		return decode(&TransactionalAnalysisResult{})
	case InterestsPositions:
		return decode(&InterestsPositionsResult{})
	case ConflictStyle:
		return decode(&ConflictStyleResult{})
	case Restorative:
		return decode(&RestorativeResult{})
	default:
		return nil, fmt.Errorf("unknown lens id %q", id)
	}
}

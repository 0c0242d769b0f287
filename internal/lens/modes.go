package lens

import "fmt"

// ContextMode is the relationship category of a conversation. It decides
// which lenses activate and in what order.
type ContextMode string

const (
	ModeIntimate                 ContextMode = "intimate"
	ModeFamily                   ContextMode = "family"
	ModeProfessionalPeer         ContextMode = "professional_peer"
	ModeProfessionalHierarchical ContextMode = "professional_hierarchical"
	ModeTransactional            ContextMode = "transactional"
	ModeCivilStructural          ContextMode = "civil_structural"
)

// modeLenses fixes the ordered lens list per mode. NVC always leads; the
// list length is fixed per mode and feeds the token budget.
var modeLenses = map[ContextMode][]ID{
	ModeIntimate:                 {NVC, Gottman, Attachment, DramaTriangle, TransactionalAnalysis, CognitiveDistortions},
	ModeFamily:                   {NVC, Gottman, Narrative, DramaTriangle, Attachment, Power, Restorative},
	ModeProfessionalPeer:         {NVC, InterestsPositions, FaceWork, AttributionBias, ConflictStyle},
	ModeProfessionalHierarchical: {NVC, Power, InterestsPositions, FaceWork, AttributionBias, ConflictStyle},
	ModeTransactional:            {NVC, InterestsPositions, ConflictStyle, AttributionBias, FaceWork},
	ModeCivilStructural:          {NVC, Power, Restorative, SystemsTheory, Narrative, InterestsPositions, TransactionalAnalysis},
}

// ParseContextMode validates a mode received at the boundary.
func ParseContextMode(raw string) (ContextMode, error) {
	mode := ContextMode(raw)
	if _, ok := modeLenses[mode]; !ok {
		return "", fmt.Errorf("unknown context mode %q", raw)
	}
	return mode, nil
}

// Modes lists every known context mode.
func Modes() []ContextMode {
	return []ContextMode{
		ModeIntimate,
		ModeFamily,
		ModeProfessionalPeer,
		ModeProfessionalHierarchical,
		ModeTransactional,
		ModeCivilStructural,
	}
}

// ActiveLenses returns the ordered lens ids for a mode. The resolver is
// total: an unrecognized mode falls back to the intimate list, since mode
// validation belongs to the boundary, not here.
func ActiveLenses(mode ContextMode) []ID {
	ids, ok := modeLenses[mode]
	if !ok {
		ids = modeLenses[ModeIntimate]
	}
	return append([]ID(nil), ids...)
}

// ActiveLensStrings is ActiveLenses with ids as plain strings, the form
// stored inside an analysis envelope.
func ActiveLensStrings(mode ContextMode) []string {
	ids := ActiveLenses(mode)
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return out
}

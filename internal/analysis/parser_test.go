package analysis

import (
	"testing"

	"github.com/accordlabs/accord/backend/internal/lens"
	"github.com/accordlabs/accord/backend/internal/model/session"
)

const legacyPayload = `{
	"observation": "partner arrived an hour late",
	"feeling": "frustrated",
	"need": "consideration",
	"request": "a message when plans change",
	"subtext": "I don't feel like a priority",
	"blindSpots": ["traffic was unusually bad"],
	"unmetNeeds": ["reliability"],
	"nvcTranslation": "When you arrived late I felt frustrated because I need consideration.",
	"emotionalTemperature": 0.7
}`

func TestParseLegacyShapeAutoWrapped(t *testing.T) {
	a := ParseAnalysis(legacyPayload, lens.ModeIntimate)
	if a == nil {
		t.Fatal("expected non-nil analysis")
	}

	nvc, ok := a.Lenses["nvc"].(map[string]any)
	if !ok {
		t.Fatalf("lenses.nvc missing or wrong type: %T", a.Lenses["nvc"])
	}
	if nvc["feeling"] != "frustrated" {
		t.Fatalf("lenses.nvc.feeling = %v", nvc["feeling"])
	}
	if nvc["emotionalTemperature"] != 0.7 {
		t.Fatalf("lenses.nvc.emotionalTemperature = %v", nvc["emotionalTemperature"])
	}

	want := lens.ActiveLensStrings(lens.ModeIntimate)
	if len(a.Meta.ActiveLenses) != len(want) {
		t.Fatalf("activeLenses length %d, want %d", len(a.Meta.ActiveLenses), len(want))
	}
	for i := range want {
		if a.Meta.ActiveLenses[i] != want[i] {
			t.Fatalf("activeLenses[%d] = %s, want %s", i, a.Meta.ActiveLenses[i], want[i])
		}
	}
	if a.Meta.PrimaryInsight != a.Subtext {
		t.Fatalf("primaryInsight = %q, want subtext %q", a.Meta.PrimaryInsight, a.Subtext)
	}
	if a.Meta.OverallSeverity != 0.7 {
		t.Fatalf("overallSeverity = %f", a.Meta.OverallSeverity)
	}
	if a.Meta.ResolutionDirection != session.DirectionStable {
		t.Fatalf("resolutionDirection = %s", a.Meta.ResolutionDirection)
	}
}

func TestParseMissingAnchorFieldsReturnsNil(t *testing.T) {
	cases := map[string]string{
		"no observation": `{"feeling": "sad", "subtext": "x"}`,
		"no feeling":     `{"observation": "y", "subtext": "x"}`,
		"no subtext":     `{"observation": "y", "feeling": "sad"}`,
		"empty feeling":  `{"observation": "y", "feeling": "", "subtext": "x"}`,
	}
	for name, payload := range cases {
		if a := ParseAnalysis(payload, lens.ModeFamily); a != nil {
			t.Fatalf("%s: expected nil, got %+v", name, a)
		}
	}
}

func TestParseGarbageReturnsNil(t *testing.T) {
	for _, raw := range []string{"", "not json at all", "{broken", "[1,2,3]"} {
		if a := ParseAnalysis(raw, lens.ModeIntimate); a != nil {
			t.Fatalf("raw %q: expected nil", raw)
		}
	}
}

func TestParseCodeFencedEqualsUnfenced(t *testing.T) {
	fenced := "```json\n" + legacyPayload + "\n```"
	plain := ParseAnalysis(legacyPayload, lens.ModeIntimate)
	withFence := ParseAnalysis(fenced, lens.ModeIntimate)
	if plain == nil || withFence == nil {
		t.Fatal("expected both parses to succeed")
	}
	if plain.Observation != withFence.Observation || plain.EmotionalTemperature != withFence.EmotionalTemperature {
		t.Fatal("fenced and unfenced payloads parsed differently")
	}
}

func TestParseTemperatureClamping(t *testing.T) {
	a := ParseAnalysis(`{"observation":"o","feeling":"f","subtext":"s","emotionalTemperature": 1.4}`, lens.ModeIntimate)
	if a == nil {
		t.Fatal("expected non-nil analysis")
	}
	if a.EmotionalTemperature != 1 {
		t.Fatalf("temperature = %f, want 1", a.EmotionalTemperature)
	}

	a = ParseAnalysis(`{"observation":"o","feeling":"f","subtext":"s","emotionalTemperature": -3}`, lens.ModeIntimate)
	if a.EmotionalTemperature != 0 {
		t.Fatalf("temperature = %f, want 0", a.EmotionalTemperature)
	}
}

func TestParseNonNumericTemperatureDefaults(t *testing.T) {
	a := ParseAnalysis(`{"observation":"o","feeling":"f","subtext":"s","emotionalTemperature":"hot"}`, lens.ModeIntimate)
	if a == nil {
		t.Fatal("expected non-nil analysis")
	}
	if a.EmotionalTemperature != 0.5 {
		t.Fatalf("temperature = %f, want 0.5", a.EmotionalTemperature)
	}
}

func TestParseArraysDefaultEmpty(t *testing.T) {
	a := ParseAnalysis(`{"observation":"o","feeling":"f","subtext":"s","blindSpots":"not an array"}`, lens.ModeIntimate)
	if a == nil {
		t.Fatal("expected non-nil analysis")
	}
	if a.BlindSpots == nil || len(a.BlindSpots) != 0 {
		t.Fatalf("blindSpots = %v, want empty slice", a.BlindSpots)
	}
	if a.UnmetNeeds == nil || len(a.UnmetNeeds) != 0 {
		t.Fatalf("unmetNeeds = %v, want empty slice", a.UnmetNeeds)
	}
}

func TestParseEnvelopeLensesNonObjectCoerced(t *testing.T) {
	payload := `{"observation":"o","feeling":"f","subtext":"s","lenses":"oops","meta":{}}`
	a := ParseAnalysis(payload, lens.ModeFamily)
	if a == nil {
		t.Fatal("expected non-nil analysis")
	}
	if a.Lenses == nil || len(a.Lenses) != 0 {
		t.Fatalf("lenses = %v, want empty map", a.Lenses)
	}
}

func TestParseEnvelopeMetaDefaults(t *testing.T) {
	payload := `{"observation":"o","feeling":"f","subtext":"under it all","emotionalTemperature":0.4,
		"lenses":{"gottman":{"horsemen":["criticism"]}}, "meta":{}}`
	a := ParseAnalysis(payload, lens.ModeFamily)
	if a == nil {
		t.Fatal("expected non-nil analysis")
	}
	if a.Meta.PrimaryInsight != "under it all" {
		t.Fatalf("primaryInsight = %q", a.Meta.PrimaryInsight)
	}
	if a.Meta.OverallSeverity != 0.4 {
		t.Fatalf("overallSeverity = %f", a.Meta.OverallSeverity)
	}
	if a.Meta.ContextMode != lens.ModeFamily {
		t.Fatalf("contextMode = %s", a.Meta.ContextMode)
	}
	if len(a.Meta.ActiveLenses) != len(lens.ActiveLenses(lens.ModeFamily)) {
		t.Fatalf("activeLenses = %v", a.Meta.ActiveLenses)
	}
}

func TestParseEnvelopeMetaSupplied(t *testing.T) {
	payload := `{"observation":"o","feeling":"f","subtext":"s",
		"lenses":{}, "meta":{"activeLenses":["nvc","gottman"],"primaryInsight":"the real issue","overallSeverity":2.5,"resolutionDirection":"de-escalating"}}`
	a := ParseAnalysis(payload, lens.ModeIntimate)
	if a == nil {
		t.Fatal("expected non-nil analysis")
	}
	if len(a.Meta.ActiveLenses) != 2 || a.Meta.ActiveLenses[1] != "gottman" {
		t.Fatalf("activeLenses = %v", a.Meta.ActiveLenses)
	}
	if a.Meta.PrimaryInsight != "the real issue" {
		t.Fatalf("primaryInsight = %q", a.Meta.PrimaryInsight)
	}
	if a.Meta.OverallSeverity != 1 {
		t.Fatalf("overallSeverity = %f, want clamped 1", a.Meta.OverallSeverity)
	}
	if a.Meta.ResolutionDirection != session.DirectionDeEscalating {
		t.Fatalf("resolutionDirection = %s", a.Meta.ResolutionDirection)
	}
}

func TestParseInvalidResolutionDirectionCoerced(t *testing.T) {
	payload := `{"observation":"o","feeling":"f","subtext":"s","lenses":{},"meta":{"resolutionDirection":"sideways"}}`
	a := ParseAnalysis(payload, lens.ModeIntimate)
	if a == nil {
		t.Fatal("expected non-nil analysis")
	}
	if a.Meta.ResolutionDirection != session.DirectionStable {
		t.Fatalf("resolutionDirection = %s, want stable", a.Meta.ResolutionDirection)
	}
}

func TestParseWrappedLegacyEndToEnd(t *testing.T) {
	raw := "```json\n" + `{"observation":"said: you never listen to me","feeling":"frustrated","subtext":"feels unheard","emotionalTemperature":1.4}` + "\n```"
	a := ParseAnalysis(raw, lens.ModeIntimate)
	if a == nil {
		t.Fatal("expected non-nil analysis")
	}
	if a.Meta.OverallSeverity != 1 {
		t.Fatalf("overallSeverity = %f, want 1", a.Meta.OverallSeverity)
	}
	nvc, ok := a.Lenses["nvc"].(map[string]any)
	if !ok {
		t.Fatal("lenses.nvc missing")
	}
	if nvc["emotionalTemperature"] != 1.0 {
		t.Fatalf("lenses.nvc.emotionalTemperature = %v, want 1", nvc["emotionalTemperature"])
	}
}

func TestParseSurroundingProse(t *testing.T) {
	raw := "Here is the analysis you asked for:\n" + legacyPayload + "\nLet me know if you need more."
	if a := ParseAnalysis(raw, lens.ModeIntimate); a == nil {
		t.Fatal("expected parser to find the embedded JSON object")
	}
}

package analysis

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/accordlabs/accord/backend/internal/lens"
	"github.com/accordlabs/accord/backend/internal/model/session"
)

// ParseAnalysis turns raw model text into a validated analysis record. It
// is total: any failure path returns nil, never a panic. Legacy payloads
// (no lenses/meta envelope) are upgraded in place, numeric fields are
// clamped, and malformed envelope parts are normalized rather than
// rejected.
func ParseAnalysis(raw string, mode lens.ContextMode) *session.Analysis {
	cleaned := stripCodeFences(raw)
	jsonStr := extractJSONBlock(cleaned)
	if jsonStr == "" {
		return nil
	}

	var payload map[string]any
	if err := json.Unmarshal([]byte(jsonStr), &payload); err != nil {
		return nil
	}

	// The three anchor fields decide whether the response is usable at all.
	if !truthy(payload["observation"]) || !truthy(payload["feeling"]) || !truthy(payload["subtext"]) {
		return nil
	}

	a := &session.Analysis{
		Observation:          coerceString(payload["observation"]),
		Feeling:              coerceString(payload["feeling"]),
		Need:                 coerceString(payload["need"]),
		Request:              coerceString(payload["request"]),
		Subtext:              coerceString(payload["subtext"]),
		BlindSpots:           coerceStringSlice(payload["blindSpots"]),
		UnmetNeeds:           coerceStringSlice(payload["unmetNeeds"]),
		NVCTranslation:       coerceString(payload["nvcTranslation"]),
		EmotionalTemperature: coerceUnit(payload["emotionalTemperature"], 0.5),
	}

	_, hasLenses := payload["lenses"]
	_, hasMeta := payload["meta"]

	if !hasLenses && !hasMeta {
		// Legacy single-framework shape: wrap the root record as the nvc
		// lens entry and synthesize the envelope.
		a.Lenses = map[string]any{string(lens.NVC): rootAsMap(a)}
		a.Meta = session.AnalysisMeta{
			ContextMode:         mode,
			ActiveLenses:        lens.ActiveLensStrings(mode),
			PrimaryInsight:      a.Subtext,
			OverallSeverity:     a.EmotionalTemperature,
			ResolutionDirection: session.DirectionStable,
		}
		return a
	}

	if lensesMap, ok := payload["lenses"].(map[string]any); ok {
		a.Lenses = lensesMap
	} else {
		a.Lenses = map[string]any{}
	}

	meta, _ := payload["meta"].(map[string]any)
	a.Meta = buildMeta(meta, a, mode)
	return a
}

func buildMeta(meta map[string]any, a *session.Analysis, mode lens.ContextMode) session.AnalysisMeta {
	out := session.AnalysisMeta{
		ContextMode:         mode,
		ActiveLenses:        lens.ActiveLensStrings(mode),
		PrimaryInsight:      a.Subtext,
		OverallSeverity:     a.EmotionalTemperature,
		ResolutionDirection: session.DirectionStable,
	}
	if meta == nil {
		return out
	}

	if supplied := coerceStringSlice(meta["activeLenses"]); len(supplied) > 0 {
		out.ActiveLenses = supplied
	}
	if insight, ok := meta["primaryInsight"].(string); ok && insight != "" {
		out.PrimaryInsight = insight
	}
	if sev, ok := asNumber(meta["overallSeverity"]); ok {
		out.OverallSeverity = clampUnit(sev)
	}
	if dir := session.ResolutionDirection(coerceString(meta["resolutionDirection"])); session.ValidDirection(dir) {
		out.ResolutionDirection = dir
	}
	return out
}

// rootAsMap renders the root NVC record as a generic lenses-map entry, so
// the legacy wrap keeps lenses.nvc byte-equivalent to the root fields.
func rootAsMap(a *session.Analysis) map[string]any {
	return map[string]any{
		"observation":          a.Observation,
		"feeling":              a.Feeling,
		"need":                 a.Need,
		"request":              a.Request,
		"subtext":              a.Subtext,
		"blindSpots":           a.BlindSpots,
		"unmetNeeds":           a.UnmetNeeds,
		"nvcTranslation":       a.NVCTranslation,
		"emotionalTemperature": a.EmotionalTemperature,
	}
}

// DecodeObject finds the JSON object embedded in raw model text (fences
// and surrounding prose tolerated) and unmarshals it into dst.
func DecodeObject(raw string, dst any) error {
	jsonStr := extractJSONBlock(stripCodeFences(raw))
	if jsonStr == "" {
		return fmt.Errorf("no JSON object found in response")
	}
	return json.Unmarshal([]byte(jsonStr), dst)
}

// stripCodeFences removes a surrounding markdown fence (``` or ```json)
// when the model wraps its JSON despite instructions.
func stripCodeFences(s string) string {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}

	trimmed = strings.TrimPrefix(trimmed, "```")
	if idx := strings.IndexByte(trimmed, '\n'); idx >= 0 {
		// Drop the optional language tag line.
		trimmed = trimmed[idx+1:]
	}
	trimmed = strings.TrimSpace(trimmed)
	trimmed = strings.TrimSuffix(trimmed, "```")
	return strings.TrimSpace(trimmed)
}

// extractJSONBlock finds the first balanced { ... } block, skipping any
// prose the model emitted around it.
func extractJSONBlock(s string) string {
	start := strings.IndexByte(s, '{')
	if start == -1 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(s); i++ {
		c := s[i]

		if escaped {
			escaped = false
			continue
		}
		if c == '\\' && inString {
			escaped = true
			continue
		}
		if c == '"' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}

		switch c {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}

	return ""
}

// truthy mirrors the presence check on required fields: nil, empty string,
// false, and zero all fail.
func truthy(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case string:
		return strings.TrimSpace(val) != ""
	case bool:
		return val
	case float64:
		return val != 0
	default:
		return true
	}
}

func coerceString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%f", val), "0"), ".")
	default:
		return fmt.Sprintf("%v", val)
	}
}

func coerceStringSlice(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return []string{}
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, coerceString(item))
	}
	return out
}

func asNumber(v any) (float64, bool) {
	n, ok := v.(float64)
	return n, ok
}

// coerceUnit clamps a numeric value into [0,1] and falls back to def for
// anything non-numeric.
func coerceUnit(v any, def float64) float64 {
	n, ok := asNumber(v)
	if !ok {
		return def
	}
	return clampUnit(n)
}

func clampUnit(n float64) float64 {
	if n < 0 {
		return 0
	}
	if n > 1 {
		return 1
	}
	return n
}

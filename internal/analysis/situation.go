package analysis

import (
	"strings"

	"github.com/accordlabs/accord/backend/internal/model/session"
)

// Situation is the four-way classification the intervention trigger acts
// on.
type Situation string

const (
	SituationEscalation   Situation = "escalation"
	SituationDominance    Situation = "dominance"
	SituationBreakthrough Situation = "breakthrough"
	SituationResolution   Situation = "resolution"
)

// ValidSituation reports whether s is one of the four classifications.
func ValidSituation(s Situation) bool {
	switch s {
	case SituationEscalation, SituationDominance, SituationBreakthrough, SituationResolution:
		return true
	}
	return false
}

var hostileWords = []string{
	"never", "always", "hate", "shut up", "whatever", "your fault", "liar",
	"ridiculous", "pathetic", "selfish", "useless", "done with you",
	"typical", "of course you", "you people",
}

var vulnerableWords = []string{
	"i'm scared", "i am scared", "i'm sorry", "i am sorry", "i miss",
	"i was wrong", "thank you", "i appreciate", "that means a lot",
	"i didn't realize", "i hear you", "help me understand", "i love",
}

var calmingWords = []string{
	"i understand", "fair enough", "good point", "let's try", "we could",
	"that works", "agreed", "okay, ", "deal", "together",
}

// trailing window sizes for trend and dominance reads
const (
	trendWindow     = 4
	dominanceWindow = 6
)

// Severity blends a message's emotional temperature with how many active
// lenses fired and whether the arc is escalating.
func Severity(a *session.Analysis) float64 {
	if a == nil {
		return 0
	}

	score := a.EmotionalTemperature * 0.5
	if n := len(a.Meta.ActiveLenses); n > 0 {
		density := float64(len(a.Lenses)) / float64(n)
		if density > 1 {
			density = 1
		}
		score += density * 0.3
	}
	if a.Meta.ResolutionDirection == session.DirectionEscalating {
		score += 0.2
	}
	return clampUnit(score)
}

// Classify reads the recent transcript and issue state and picks the one
// situation that best describes it. The second return is false when no
// situation has enough signal to justify an intervention.
func Classify(messages []session.Message, issues []session.Issue) (Situation, bool) {
	human := humanMessages(messages)
	if len(human) == 0 {
		return "", false
	}

	rising, falling := temperatureTrend(human)
	hostile := bucketHits(lastContents(human, trendWindow), hostileWords)
	vulnerable := bucketHits(lastContents(human, trendWindow), vulnerableWords)
	calming := bucketHits(lastContents(human, trendWindow), calmingWords)

	if (hostile > 0 || rising) && hostile >= vulnerable {
		return SituationEscalation, true
	}

	if vulnerable > 0 && vulnerable > hostile {
		return SituationBreakthrough, true
	}

	if falling && (calming > 0 || addressedShare(issues) >= 0.5) {
		return SituationResolution, true
	}

	if dominant(human) {
		return SituationDominance, true
	}

	return "", false
}

func humanMessages(messages []session.Message) []session.Message {
	out := make([]session.Message, 0, len(messages))
	for _, m := range messages {
		if m.Sender == session.SenderPersonA || m.Sender == session.SenderPersonB {
			out = append(out, m)
		}
	}
	return out
}

// temperatureTrend compares the analyzed temperature of the last window
// against the one before it.
func temperatureTrend(human []session.Message) (rising, falling bool) {
	temps := make([]float64, 0, len(human))
	for _, m := range human {
		if m.Analysis != nil {
			temps = append(temps, m.Analysis.EmotionalTemperature)
		}
	}
	if len(temps) < 2 {
		return false, false
	}

	window := trendWindow
	if window > len(temps) {
		window = len(temps) / 2
		if window == 0 {
			window = 1
		}
	}

	recent := mean(temps[len(temps)-window:])
	var prior float64
	if len(temps) > window {
		prior = mean(temps[:len(temps)-window])
	} else {
		prior = temps[0]
	}

	const margin = 0.08
	return recent > prior+margin, recent < prior-margin
}

func mean(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

func lastContents(human []session.Message, n int) string {
	if n > len(human) {
		n = len(human)
	}
	var b strings.Builder
	for _, m := range human[len(human)-n:] {
		b.WriteString(strings.ToLower(m.Content))
		b.WriteString("\n")
	}
	return b.String()
}

func bucketHits(text string, bucket []string) int {
	hits := 0
	for _, word := range bucket {
		if strings.Contains(text, word) {
			hits++
		}
	}
	return hits
}

// dominant reports whether one participant authored at least three quarters
// of the recent human messages.
func dominant(human []session.Message) bool {
	window := dominanceWindow
	if window > len(human) {
		window = len(human)
	}
	if window < 4 {
		return false
	}

	counts := map[session.Sender]int{}
	for _, m := range human[len(human)-window:] {
		counts[m.Sender]++
	}
	for _, c := range counts {
		if float64(c)/float64(window) >= 0.75 {
			return true
		}
	}
	return false
}

func addressedShare(issues []session.Issue) float64 {
	if len(issues) == 0 {
		return 0
	}
	addressed := 0
	for _, issue := range issues {
		if issue.Status == session.IssueWellAddressed {
			addressed++
		}
	}
	return float64(addressed) / float64(len(issues))
}

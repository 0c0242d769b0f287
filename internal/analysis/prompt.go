// Package analysis composes mediator prompts and parses model output into
// analysis records. Everything here is pure; network calls live in the
// services that use it.
package analysis

import (
	"strings"

	"github.com/accordlabs/accord/backend/internal/lens"
)

// SessionContext carries the optional per-session blocks spliced into the
// system prompt once the conductor has produced them.
type SessionContext struct {
	Goals          []string
	ContextSummary string
}

const promptPreamble = `You are a neutral conflict mediator analyzing one message from a two-party
conversation. You never take sides, never assign blame, and never diagnose.
You read the message through the analytical frameworks listed below and
report what each framework actually detects. A framework that detects no
signal must be omitted from your output entirely.

Output rules:
- Return a single JSON object and nothing else.
- Do not wrap the JSON in commentary.
- Omit any lens section with nothing to report; never pad with empty values.`

const outputShapeHeader = `Return JSON of exactly this shape. The Nonviolent Communication fields sit
at the top level; every other framework reports inside "lenses":`

// wideLensThreshold and the two budgets are tunables, not contract: modes
// carrying seven or more lenses get a proportionally larger completion
// budget.
const (
	wideLensThreshold = 7
	maxTokensNarrow   = 3072
	maxTokensWide     = 4096
)

// BuildSystemPrompt assembles the full instruction text for a context mode:
// preamble, active lens fragments in order, optional goals and prior
// synthesis blocks, then the JSON shape description.
func BuildSystemPrompt(mode lens.ContextMode, sc *SessionContext) string {
	active := lens.ActiveLenses(mode)

	var b strings.Builder
	b.WriteString(promptPreamble)
	b.WriteString("\n")

	for _, id := range active {
		l, ok := lens.Get(id)
		if !ok {
			continue
		}
		b.WriteString("\n")
		b.WriteString(l.PromptFragment)
		b.WriteString("\n")
	}

	if sc != nil && len(sc.Goals) > 0 {
		b.WriteString("\n## Session Goals\n")
		b.WriteString("The participants agreed on these goals. Judge whether this message\nadvances or undermines them:\n")
		for _, goal := range sc.Goals {
			b.WriteString("- ")
			b.WriteString(goal)
			b.WriteString("\n")
		}
	}

	if sc != nil && strings.TrimSpace(sc.ContextSummary) != "" {
		b.WriteString("\n## Background\n")
		b.WriteString("The mediator's synthesis of both participants' context:\n")
		b.WriteString(strings.TrimSpace(sc.ContextSummary))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(outputShapeHeader)
	b.WriteString("\n{\n")
	if root, ok := lens.Get(lens.NVC); ok {
		b.WriteString(root.ResponseSchemaFragment)
		b.WriteString(",\n")
	}
	b.WriteString(`"lenses": {`)
	b.WriteString("\n")

	first := true
	for _, id := range active {
		if id == lens.NVC {
			continue
		}
		l, ok := lens.Get(id)
		if !ok {
			continue
		}
		if !first {
			b.WriteString(",\n")
		}
		b.WriteString(l.ResponseSchemaFragment)
		first = false
	}

	b.WriteString("\n},\n")
	b.WriteString(`"meta": {"primaryInsight": "the single most useful insight for the mediator", "overallSeverity": 0.0, "resolutionDirection": "escalating|stable|de-escalating"}`)
	b.WriteString("\n}")

	return b.String()
}

// MaxTokens returns the completion budget for a mode. More active lenses
// need proportionally more output.
func MaxTokens(mode lens.ContextMode) int {
	if len(lens.ActiveLenses(mode)) >= wideLensThreshold {
		return maxTokensWide
	}
	return maxTokensNarrow
}

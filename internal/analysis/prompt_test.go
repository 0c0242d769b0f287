package analysis

import (
	"strings"
	"testing"

	"github.com/accordlabs/accord/backend/internal/lens"
)

func TestBuildSystemPromptContainsActiveFragments(t *testing.T) {
	prompt := BuildSystemPrompt(lens.ModeFamily, nil)

	if !strings.Contains(prompt, "neutral conflict mediator") {
		t.Fatal("missing preamble")
	}

	last := -1
	for _, id := range lens.ActiveLenses(lens.ModeFamily) {
		l, _ := lens.Get(id)
		idx := strings.Index(prompt, l.PromptFragment)
		if idx == -1 {
			t.Fatalf("missing fragment for %s", id)
		}
		if idx < last {
			t.Fatalf("fragment for %s out of order", id)
		}
		last = idx
	}
}

func TestBuildSystemPromptOmitsInactiveLenses(t *testing.T) {
	prompt := BuildSystemPrompt(lens.ModeTransactional, nil)
	gottman, _ := lens.Get(lens.Gottman)
	if strings.Contains(prompt, gottman.PromptFragment) {
		t.Fatal("transactional prompt should not carry the gottman fragment")
	}
}

func TestBuildSystemPromptGoalsBlock(t *testing.T) {
	without := BuildSystemPrompt(lens.ModeIntimate, nil)
	if strings.Contains(without, "Session Goals") {
		t.Fatal("goals block present without goals")
	}

	with := BuildSystemPrompt(lens.ModeIntimate, &SessionContext{
		Goals: []string{"rebuild trust around schedules"},
	})
	if !strings.Contains(with, "Session Goals") || !strings.Contains(with, "rebuild trust around schedules") {
		t.Fatal("goals block missing")
	}
}

func TestBuildSystemPromptContextSummaryBlock(t *testing.T) {
	with := BuildSystemPrompt(lens.ModeIntimate, &SessionContext{
		ContextSummary: "Both partners feel unheard after the move.",
	})
	if !strings.Contains(with, "Both partners feel unheard after the move.") {
		t.Fatal("context summary block missing")
	}
}

func TestBuildSystemPromptSchemaExcludesNVCFromLenses(t *testing.T) {
	prompt := BuildSystemPrompt(lens.ModeFamily, nil)

	shapeStart := strings.Index(prompt, `"lenses": {`)
	if shapeStart == -1 {
		t.Fatal("lenses shape block missing")
	}
	lensesBlock := prompt[shapeStart:]

	nvc, _ := lens.Get(lens.NVC)
	if strings.Contains(lensesBlock, nvc.ResponseSchemaFragment) {
		t.Fatal("nvc schema fragment must stay at the root, not inside lenses")
	}

	for _, id := range lens.ActiveLenses(lens.ModeFamily) {
		if id == lens.NVC {
			continue
		}
		l, _ := lens.Get(id)
		if !strings.Contains(lensesBlock, l.ResponseSchemaFragment) {
			t.Fatalf("schema fragment for %s missing from lenses block", id)
		}
	}
}

func TestMaxTokensScalesWithLensCount(t *testing.T) {
	// family and civil_structural run seven lenses; transactional runs five
	wide := MaxTokens(lens.ModeFamily)
	narrow := MaxTokens(lens.ModeTransactional)
	if wide <= narrow {
		t.Fatalf("wide budget %d should exceed narrow budget %d", wide, narrow)
	}
	if MaxTokens(lens.ModeCivilStructural) != wide {
		t.Fatal("civil_structural should get the wide budget")
	}
}

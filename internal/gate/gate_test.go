package gate

import (
	"testing"
	"time"

	"github.com/finsentry/finsentry/internal/story"
)

func testItem(state story.Stage, sentiment, impact string) *story.Item {
	it := story.NewItem("fp-1", story.RawItem{
		Title:    "Company misses guidance",
		URL:      "https://example.com/a",
		SourceID: "reuters",
	}, time.Now())
	it.State = state
	if sentiment != "" {
		it.Sentiment = &story.Sentiment{Label: sentiment, Confidence: 0.9}
	}
	it.Impact = impact
	return it
}

func TestDecideIsTotal(t *testing.T) {
	rule := DefaultRule()

	sentiments := []string{"negative", "neutral", "positive"}
	impacts := []string{story.ImpactHigh, story.ImpactMedium, story.ImpactLow}
	states := []story.Stage{story.StageVerified, story.StageUnconfirmed, story.StageSynthesized, story.StageDropped}

	for _, s := range sentiments {
		for _, imp := range impacts {
			for _, st := range states {
				got := rule.Decide(testItem(st, s, imp))

				switch st {
				case story.StageDropped:
					if got != story.DecisionSuppressed {
						t.Errorf("Decide(%v, %s, %s) = %q, want SUPPRESSED", st, s, imp, got)
					}
				case story.StageUnconfirmed:
					if got != story.DecisionLogged {
						t.Errorf("Decide(%v, %s, %s) = %q, want LOGGED", st, s, imp, got)
					}
				default:
					wantAlert := s == "negative" && imp == story.ImpactHigh
					if wantAlert && got != story.DecisionAlert {
						t.Errorf("Decide(%v, %s, %s) = %q, want ALERT", st, s, imp, got)
					}
					if !wantAlert && got != story.DecisionLogged {
						t.Errorf("Decide(%v, %s, %s) = %q, want LOGGED", st, s, imp, got)
					}
				}
			}
		}
	}
}

func TestDecideDroppedSuppressed(t *testing.T) {
	rule := DefaultRule()
	got := rule.Decide(testItem(story.StageDropped, "negative", story.ImpactHigh))
	if got != story.DecisionSuppressed {
		t.Errorf("dropped story must be suppressed even when it matches the rule, got %q", got)
	}
}

func TestDecideUnconfirmedNeverAlerts(t *testing.T) {
	rule := DefaultRule()
	got := rule.Decide(testItem(story.StageUnconfirmed, "negative", story.ImpactHigh))
	if got != story.DecisionLogged {
		t.Errorf("unconfirmed story must be logged, got %q", got)
	}
}

func TestDecideMissingEnrichments(t *testing.T) {
	rule := DefaultRule()

	it := testItem(story.StageVerified, "", story.ImpactHigh)
	if got := rule.Decide(it); got != story.DecisionLogged {
		t.Errorf("nil sentiment must not alert, got %q", got)
	}

	it = testItem(story.StageVerified, "negative", "")
	if got := rule.Decide(it); got != story.DecisionLogged {
		t.Errorf("missing impact must not alert, got %q", got)
	}

	if got := rule.Decide(nil); got != story.DecisionLogged {
		t.Errorf("nil item must not alert, got %q", got)
	}
}

func TestDecideUnknownValuesNeverAlert(t *testing.T) {
	rule := DefaultRule()
	for _, in := range []struct{ sentiment, impact string }{
		{"NEGATIVE", story.ImpactHigh},
		{"bearish", story.ImpactHigh},
		{"negative", "severe"},
		{"negative", "HIGH"},
	} {
		it := testItem(story.StageVerified, in.sentiment, in.impact)
		if got := rule.Decide(it); got == story.DecisionAlert {
			t.Errorf("unexpected ALERT for sentiment=%q impact=%q", in.sentiment, in.impact)
		}
	}
}

func TestDecideZeroRuleMatchesNothing(t *testing.T) {
	var rule Rule
	got := rule.Decide(testItem(story.StageVerified, "negative", story.ImpactHigh))
	if got != story.DecisionLogged {
		t.Errorf("zero rule must not alert, got %q", got)
	}
}

func TestDecideDeterministic(t *testing.T) {
	rule := DefaultRule()
	it := testItem(story.StageSynthesized, "negative", story.ImpactHigh)
	first := rule.Decide(it)
	for i := 0; i < 5; i++ {
		if got := rule.Decide(it); got != first {
			t.Fatalf("decision changed between calls: %q then %q", first, got)
		}
	}
	if first != story.DecisionAlert {
		t.Errorf("expected ALERT for verified negative high-impact story, got %q", first)
	}
}

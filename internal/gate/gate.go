// Package gate decides what happens to a fully processed story. The
// decision is a pure function of the item's enrichments and lifecycle
// state, so the same item always gates the same way.
package gate

import (
	"github.com/finsentry/finsentry/internal/story"
)

// Rule holds the alert criteria. The zero value matches nothing; use
// DefaultRule for the standard negative/high-impact alerting.
type Rule struct {
	Sentiment string
	Impact    string
}

// DefaultRule alerts on verified negative high-impact stories.
func DefaultRule() Rule {
	return Rule{Sentiment: "negative", Impact: story.ImpactHigh}
}

// Decide maps an item to its decision. It is total: every combination
// of sentiment, impact and lifecycle state yields exactly one decision,
// and unknown or missing values never alert.
//
// ALERT requires the rule's sentiment and impact on an item that passed
// verification. Dropped items are suppressed. Unconfirmed items are
// logged regardless of enrichments, as is everything else that reached
// the gate.
func (r Rule) Decide(item *story.Item) story.Decision {
	if item == nil {
		return story.DecisionLogged
	}
	if item.State == story.StageDropped {
		return story.DecisionSuppressed
	}
	if verified(item.State) &&
		item.Sentiment != nil && item.Sentiment.Label == r.Sentiment &&
		item.Impact == r.Impact {
		return story.DecisionAlert
	}
	return story.DecisionLogged
}

// verified reports whether the stage implies the story cleared source
// verification. Retrieval and synthesis run only on verified stories,
// so those stages count.
func verified(s story.Stage) bool {
	switch s {
	case story.StageVerified, story.StageContextualized, story.StageSynthesized:
		return true
	}
	return false
}

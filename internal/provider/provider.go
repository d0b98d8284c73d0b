// Package provider defines the capability contracts the orchestrator
// consumes (classification, sentiment scoring, impact rating, context
// retrieval, and synthesis) together with the error taxonomy that
// drives the retry policy. Production implementations call an LLM
// backend; tests substitute canned doubles without touching the
// orchestration logic.
package provider

import (
	"context"

	"github.com/finsentry/finsentry/internal/story"
)

// Classifier assigns topic, ticker, and region to a story's text.
type Classifier interface {
	Classify(ctx context.Context, text string) (story.Classification, error)
}

// SentimentScorer labels a story's text negative/neutral/positive with a
// confidence.
type SentimentScorer interface {
	Score(ctx context.Context, text string) (story.Sentiment, error)
}

// ImpactRater rates market impact high/medium/low, seeing the
// classification so it can weigh topic and ticker.
type ImpactRater interface {
	Rate(ctx context.Context, text string, c story.Classification) (string, error)
}

// Retriever returns historical analogs for a story, ordered by
// similarity. It must be deterministic for a fixed corpus snapshot and
// must not mutate the corpus.
type Retriever interface {
	Query(ctx context.Context, text string, k int) ([]story.ContextHit, error)
}

// Synthesizer produces the bounded bullet summary for a verified story
// given its retrieved context.
type Synthesizer interface {
	Summarize(ctx context.Context, item *story.Item, contextHits []story.ContextHit) (string, error)
}

// Set bundles the providers the orchestrator needs. Retriever and
// Synthesizer may be nil; the corresponding stages then no-op with a
// fallback summary.
type Set struct {
	Classifier  Classifier
	Sentiment   SentimentScorer
	Impact      ImpactRater
	Retriever   Retriever
	Synthesizer Synthesizer
}

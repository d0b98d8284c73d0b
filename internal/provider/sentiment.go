package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/finsentry/finsentry/internal/llm"
	"github.com/finsentry/finsentry/internal/story"
)

const sentimentPrompt = `You are scoring the sentiment of a financial news article from an investor's perspective.

Article:
%s

Respond with ONLY this JSON:
{
    "label": "negative" | "neutral" | "positive",
    "confidence": 0.0-1.0
}`

const impactPrompt = `Rate the market impact of this financial news article as high, medium, or low.

- high: major earnings surprises, significant mergers/acquisitions, regulatory changes, macroeconomic shocks
- medium: regular earnings reports, moderate partnerships, standard economic data
- low: routine news, minor updates, speculative information

Article:
%s
Topic: %s
Company: %s

Respond with only one word: high, medium, or low`

var validSentiments = map[string]bool{
	"negative": true,
	"neutral":  true,
	"positive": true,
}

// LLMSentimentScorer scores sentiment with an LLM call.
type LLMSentimentScorer struct {
	provider llm.Provider
}

// NewLLMSentimentScorer creates a sentiment scorer.
func NewLLMSentimentScorer(p llm.Provider) *LLMSentimentScorer {
	return &LLMSentimentScorer{provider: p}
}

// Score labels the text. Unparseable responses degrade to neutral at low
// confidence, matching how a missing model is treated downstream: a
// story never alerts on a guess.
func (s *LLMSentimentScorer) Score(ctx context.Context, text string) (story.Sentiment, error) {
	if s.provider == nil {
		return story.Sentiment{}, Permanent("sentiment", fmt.Errorf("no LLM provider configured"))
	}

	response, err := s.provider.Generate(ctx, fmt.Sprintf(sentimentPrompt, text), 128)
	if err != nil {
		return story.Sentiment{}, classifyErr("sentiment", err)
	}

	result := story.Sentiment{Label: "neutral", Confidence: 0.5}

	parsed := llm.ParseJSONResponse(response)
	if parsed == nil {
		return result, nil
	}

	if label := strings.ToLower(strings.TrimSpace(llm.GetString(parsed, "label", ""))); validSentiments[label] {
		result.Label = label
	}
	if conf := llm.GetFloat(parsed, "confidence", 0.5); conf >= 0 && conf <= 1 {
		result.Confidence = conf
	}

	return result, nil
}

// LLMImpactRater rates market impact with an LLM call that sees the
// classification.
type LLMImpactRater struct {
	provider llm.Provider
}

// NewLLMImpactRater creates an impact rater.
func NewLLMImpactRater(p llm.Provider) *LLMImpactRater {
	return &LLMImpactRater{provider: p}
}

// Rate returns high, medium, or low. An off-script response degrades to
// medium.
func (r *LLMImpactRater) Rate(ctx context.Context, text string, c story.Classification) (string, error) {
	if r.provider == nil {
		return "", Permanent("impact", fmt.Errorf("no LLM provider configured"))
	}

	prompt := fmt.Sprintf(impactPrompt, text, c.Topic, c.Ticker)
	response, err := r.provider.Generate(ctx, prompt, 16)
	if err != nil {
		return "", classifyErr("impact", err)
	}

	switch impact := strings.ToLower(strings.TrimSpace(response)); impact {
	case story.ImpactHigh, story.ImpactMedium, story.ImpactLow:
		return impact, nil
	default:
		return story.ImpactMedium, nil
	}
}

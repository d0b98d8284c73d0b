package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/finsentry/finsentry/internal/llm"
	"github.com/finsentry/finsentry/internal/story"
)

const synthesisPrompt = `You are summarizing a verified financial news story for an investment alert feed.

Story: %s
Content: %s
Company: %s
Topic: %s
Sentiment: %s
Market impact: %s
%s
Write exactly three bullet points covering what happened and why it matters, then one sentence of historical context linking this to similar past events. Use markdown.

Respond with ONLY this JSON:
{
    "bullets": ["first point", "second point", "third point"],
    "historical_context": "One sentence linking this to past events or patterns"
}`

// LLMSynthesizer produces bullet summaries with an LLM call.
type LLMSynthesizer struct {
	provider llm.Provider
}

// NewLLMSynthesizer creates a synthesizer.
func NewLLMSynthesizer(p llm.Provider) *LLMSynthesizer {
	return &LLMSynthesizer{provider: p}
}

// Summarize writes the three-bullet summary plus a historical-context
// line. An unparseable response falls back to the generic summary; the
// orchestrator applies the same fallback when the call itself fails.
func (s *LLMSynthesizer) Summarize(ctx context.Context, item *story.Item, contextHits []story.ContextHit) (string, error) {
	if s.provider == nil {
		return "", Permanent("synthesize", fmt.Errorf("no LLM provider configured"))
	}

	body := item.Representative.Body
	if len(body) > 800 {
		body = body[:800]
	}

	prompt := fmt.Sprintf(synthesisPrompt,
		item.Representative.Title,
		body,
		classField(item, func(c *story.Classification) string { return c.Ticker }),
		classField(item, func(c *story.Classification) string { return c.Topic }),
		sentimentLabel(item),
		item.Impact,
		formatContext(contextHits),
	)

	response, err := s.provider.Generate(ctx, prompt, 512)
	if err != nil {
		return "", classifyErr("synthesize", err)
	}

	parsed := llm.ParseJSONResponse(response)
	if parsed == nil {
		return FallbackSummary(item), nil
	}

	bullets := llm.GetStrings(parsed, "bullets")
	if len(bullets) == 0 {
		return FallbackSummary(item), nil
	}
	if len(bullets) > 3 {
		bullets = bullets[:3]
	}

	var b strings.Builder
	for _, bullet := range bullets {
		fmt.Fprintf(&b, "- %s\n", strings.TrimSpace(bullet))
	}
	if hc := strings.TrimSpace(llm.GetString(parsed, "historical_context", "")); hc != "" {
		fmt.Fprintf(&b, "\n*%s*\n", hc)
	}
	return b.String(), nil
}

// FallbackSummary is the generic summary used when synthesis fails so a
// verified story is still surfaced with something readable.
func FallbackSummary(item *story.Item) string {
	title := item.Representative.Title
	impact := item.Impact
	if impact == "" {
		impact = "unrated"
	}
	return fmt.Sprintf("- %s\n- Sentiment: %s, impact: %s\n- Automatic summary unavailable\n",
		title, sentimentLabel(item), impact)
}

func formatContext(hits []story.ContextHit) string {
	if len(hits) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("\nHistorical analogs:\n")
	for i, hit := range hits {
		snippet := hit.Snippet
		if len(snippet) > 200 {
			snippet = snippet[:200] + "..."
		}
		fmt.Fprintf(&b, "%d. %s\n", i+1, snippet)
	}
	return b.String()
}

func classField(item *story.Item, get func(*story.Classification) string) string {
	if item.Classification == nil {
		return "UNKNOWN"
	}
	return get(item.Classification)
}

func sentimentLabel(item *story.Item) string {
	if item.Sentiment == nil {
		return "neutral"
	}
	return item.Sentiment.Label
}

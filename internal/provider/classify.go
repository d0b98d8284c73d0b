package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/finsentry/finsentry/internal/llm"
	"github.com/finsentry/finsentry/internal/story"
)

const classifyPrompt = `You are classifying a financial news article for an investment alerting system.

Topics:
- earnings: earnings reports, financial results, quarterly/annual results
- macro: macroeconomic news, inflation, interest rates, GDP, unemployment
- regulatory: regulatory changes, compliance, legal actions, government policy
- merger_acquisition: mergers, acquisitions, takeovers, partnerships
- other: any other financial news

Regions: US, EU, APAC, or GLOBAL.

Monitored tickers: %s
If the article's primary company is not on the monitored list, use "UNKNOWN".

Article:
%s

Respond with ONLY this JSON:
{
    "topic": "earnings" | "macro" | "regulatory" | "merger_acquisition" | "other",
    "ticker": "AAPL" or "UNKNOWN",
    "region": "US" | "EU" | "APAC" | "GLOBAL"
}`

var validTopics = map[string]bool{
	"earnings":           true,
	"macro":              true,
	"regulatory":         true,
	"merger_acquisition": true,
	"other":              true,
}

var validRegions = map[string]bool{
	"US":     true,
	"EU":     true,
	"APAC":   true,
	"GLOBAL": true,
}

// LLMClassifier classifies stories with a single LLM call.
type LLMClassifier struct {
	provider llm.Provider
	tickers  []string
}

// NewLLMClassifier creates a classifier restricted to the monitored
// ticker list.
func NewLLMClassifier(p llm.Provider, tickers []string) *LLMClassifier {
	return &LLMClassifier{provider: p, tickers: tickers}
}

// Classify assigns topic, ticker, and region. An unparseable model
// response degrades to conservative defaults rather than failing the
// story; transport failures surface through the error taxonomy.
func (c *LLMClassifier) Classify(ctx context.Context, text string) (story.Classification, error) {
	if c.provider == nil {
		return story.Classification{}, Permanent("classify", fmt.Errorf("no LLM provider configured"))
	}

	prompt := fmt.Sprintf(classifyPrompt, strings.Join(c.tickers, ", "), text)
	response, err := c.provider.Generate(ctx, prompt, 256)
	if err != nil {
		return story.Classification{}, classifyErr("classify", err)
	}

	result := story.Classification{Topic: "other", Ticker: "UNKNOWN", Region: "GLOBAL"}

	parsed := llm.ParseJSONResponse(response)
	if parsed == nil {
		return result, nil
	}

	if topic := strings.ToLower(strings.TrimSpace(llm.GetString(parsed, "topic", ""))); validTopics[topic] {
		result.Topic = topic
	}
	if region := strings.ToUpper(strings.TrimSpace(llm.GetString(parsed, "region", ""))); validRegions[region] {
		result.Region = region
	}
	if ticker := strings.ToUpper(strings.TrimSpace(llm.GetString(parsed, "ticker", ""))); c.monitored(ticker) {
		result.Ticker = ticker
	}

	return result, nil
}

func (c *LLMClassifier) monitored(ticker string) bool {
	for _, t := range c.tickers {
		if strings.EqualFold(t, ticker) {
			return true
		}
	}
	return false
}

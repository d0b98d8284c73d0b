package collect

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/finsentry/finsentry/internal/story"
)

const defaultNewsAPIBaseURL = "https://newsapi.org/v2/everything"

// NewsAPIClient searches NewsAPI for market coverage of monitored
// tickers. Each result's outlet name becomes the item's source id, so
// NewsAPI can contribute corroborating sources for verification.
type NewsAPIClient struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// NewNewsAPIClient reads the API key from the named environment
// variable.
func NewNewsAPIClient(apiKeyEnv string) *NewsAPIClient {
	return &NewsAPIClient{
		apiKey:  os.Getenv(apiKeyEnv),
		baseURL: defaultNewsAPIBaseURL,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

// IsConfigured returns whether the API key is available.
func (c *NewsAPIClient) IsConfigured() bool {
	return c.apiKey != ""
}

// SearchTickers runs one query per monitored ticker plus the base
// query, deduplicating by URL across queries.
func (c *NewsAPIClient) SearchTickers(ctx context.Context, baseQuery string, tickers []string, daysBack int) []story.RawItem {
	seen := make(map[string]struct{})
	var all []story.RawItem

	add := func(items []story.RawItem) {
		for _, it := range items {
			if _, ok := seen[it.URL]; !ok {
				seen[it.URL] = struct{}{}
				all = append(all, it)
			}
		}
	}

	add(c.Search(ctx, baseQuery, daysBack, 100))
	for _, ticker := range tickers {
		add(c.Search(ctx, baseQuery+" "+ticker, daysBack, 50))
	}

	return all
}

// Search returns items matching a query within daysBack. Failures are
// logged and yield an empty result; a collection run never aborts on
// one flaky connector.
func (c *NewsAPIClient) Search(ctx context.Context, query string, daysBack, pageSize int) []story.RawItem {
	if c.apiKey == "" {
		log.Println("NewsAPI not configured, skipping search")
		return nil
	}

	fromDate := time.Now().AddDate(0, 0, -daysBack).Format("2006-01-02")
	toDate := time.Now().Format("2006-01-02")

	if pageSize > 100 {
		pageSize = 100
	}

	params := url.Values{
		"q":        {query},
		"from":     {fromDate},
		"to":       {toDate},
		"language": {"en"},
		"pageSize": {fmt.Sprintf("%d", pageSize)},
		"sortBy":   {"relevancy"},
	}

	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		log.Printf("NewsAPI request error: %v", err)
		return nil
	}
	req.Header.Set("X-Api-Key", c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		log.Printf("NewsAPI error: %v", err)
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Printf("NewsAPI HTTP error: %d", resp.StatusCode)
		return nil
	}

	var result struct {
		Status   string `json:"status"`
		Articles []struct {
			URL         string `json:"url"`
			Title       string `json:"title"`
			PublishedAt string `json:"publishedAt"`
			Content     string `json:"content"`
			Description string `json:"description"`
			Source      struct {
				Name string `json:"name"`
			} `json:"source"`
		} `json:"articles"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		log.Printf("NewsAPI decode error: %v", err)
		return nil
	}

	if result.Status != "ok" {
		log.Printf("NewsAPI status: %s", result.Status)
		return nil
	}

	now := time.Now()
	var items []story.RawItem
	for _, a := range result.Articles {
		if a.URL == "" || a.Title == "" {
			continue
		}
		if a.Title == "[Removed]" || a.URL == "https://removed.com" {
			continue
		}

		var published time.Time
		if a.PublishedAt != "" {
			if t, err := time.Parse(time.RFC3339, a.PublishedAt); err == nil {
				published = t
			}
		}

		body := a.Content
		if body == "" {
			body = a.Description
		}

		items = append(items, story.RawItem{
			Title:        strings.TrimSpace(a.Title),
			Body:         strings.TrimSpace(body),
			URL:          a.URL,
			SourceID:     sourceIDFromName(a.Source.Name),
			PublishedAt:  published,
			DiscoveredAt: now,
		})
	}

	log.Printf("Fetched %d items from NewsAPI for query: %s", len(items), query)
	return items
}

// sourceIDFromName normalizes an outlet name into a source id:
// "The Wall Street Journal" -> "the-wall-street-journal".
func sourceIDFromName(name string) string {
	name = strings.TrimSpace(strings.ToLower(name))
	if name == "" {
		return "newsapi"
	}
	return strings.Join(strings.Fields(name), "-")
}

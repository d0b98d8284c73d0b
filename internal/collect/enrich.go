package collect

import (
	"context"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	readability "github.com/go-shiori/go-readability"

	"github.com/finsentry/finsentry/internal/story"
)

// Enricher fills empty item bodies by fetching the article page and
// extracting readable text. Classification and sentiment work much
// better on article text than on a bare headline.
type Enricher struct {
	client *http.Client
}

// NewEnricher creates an enricher with the given per-request timeout.
func NewEnricher(timeout time.Duration) *Enricher {
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Enricher{
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
	}
}

// EnrichResult counts the outcomes of an enrichment pass.
type EnrichResult struct {
	Fetched int
	Skipped int
	Failed  int
}

// Enrich fetches bodies for items that lack one, in place. A domain
// that returns an HTTP error is skipped for the rest of the pass.
func (e *Enricher) Enrich(ctx context.Context, items []story.RawItem) *EnrichResult {
	result := &EnrichResult{}
	failedDomains := make(map[string]struct{})

	for i := range items {
		item := &items[i]
		if item.Body != "" {
			result.Skipped++
			continue
		}

		domain := ""
		if u, err := url.Parse(item.URL); err == nil {
			domain = strings.ToLower(u.Host)
		}
		if _, failed := failedDomains[domain]; failed {
			result.Failed++
			continue
		}

		text, httpErr := e.fetchText(ctx, item.URL)
		if httpErr != nil {
			result.Failed++
			if domain != "" {
				failedDomains[domain] = struct{}{}
			}
			log.Printf("HTTP error for %s, skipping remaining from %s", item.URL, domain)
			continue
		}
		if text == "" {
			result.Failed++
			continue
		}

		item.Body = text
		result.Fetched++
	}

	return result
}

func (e *Enricher) fetchText(ctx context.Context, articleURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", articleURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", "finsentry/1.0 (news intelligence)")

	resp, err := e.client.Do(req)
	if err != nil {
		return "", nil // connection error, not HTTP error
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", &httpError{code: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", nil
	}

	parsedURL, _ := url.Parse(articleURL)
	article, err := readability.FromReader(strings.NewReader(string(body)), parsedURL)
	if err != nil {
		return "", nil
	}

	text := strings.TrimSpace(article.TextContent)
	if len(text) > 100 {
		return text, nil
	}
	return "", nil
}

type httpError struct {
	code int
}

func (e *httpError) Error() string {
	return http.StatusText(e.code)
}

package collect

import (
	"context"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/finsentry/finsentry/internal/story"
)

const maxPerFeed = 30

// FeedConfig is a single RSS/Atom feed. Name becomes the source id on
// submitted items; it should be stable across runs because verification
// counts distinct source ids.
type FeedConfig struct {
	URL  string
	Name string
}

// FeedParser pulls items from configured market-news feeds.
type FeedParser struct {
	feeds  []FeedConfig
	parser *gofeed.Parser
}

// NewFeedParser creates a parser over the given feeds.
func NewFeedParser(feeds []FeedConfig) *FeedParser {
	return &FeedParser{feeds: feeds, parser: gofeed.NewParser()}
}

// ParseAll fetches every feed and returns raw items published within
// daysBack. Feeds that fail to parse are logged and skipped.
func (fp *FeedParser) ParseAll(ctx context.Context, daysBack int) []story.RawItem {
	cutoff := time.Now().AddDate(0, 0, -daysBack)
	var all []story.RawItem

	for _, fc := range fp.feeds {
		name := fc.Name
		if name == "" {
			name = sourceIDFromURL(fc.URL)
		}

		items, err := fp.parseFeed(ctx, fc.URL, name, cutoff)
		if err != nil {
			log.Printf("Failed to parse feed %s: %v", fc.URL, err)
			continue
		}
		all = append(all, items...)
		log.Printf("Parsed %d items from %s (within %d days)", len(items), name, daysBack)
	}

	return all
}

func (fp *FeedParser) parseFeed(ctx context.Context, feedURL, sourceID string, cutoff time.Time) ([]story.RawItem, error) {
	feed, err := fp.parser.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	var items []story.RawItem
	for _, entry := range feed.Items {
		if len(items) >= maxPerFeed {
			break
		}

		raw, ok := rawFromFeedItem(entry, sourceID, now)
		if !ok {
			continue
		}
		if raw.PublishedAt.IsZero() || !raw.PublishedAt.Before(cutoff) {
			items = append(items, raw)
		}
	}

	return items, nil
}

func rawFromFeedItem(item *gofeed.Item, sourceID string, now time.Time) (story.RawItem, bool) {
	itemURL := item.Link
	if itemURL == "" {
		itemURL = item.GUID
	}
	title := strings.TrimSpace(item.Title)
	if itemURL == "" || title == "" {
		return story.RawItem{}, false
	}

	var published time.Time
	if item.PublishedParsed != nil {
		published = *item.PublishedParsed
	} else if item.UpdatedParsed != nil {
		published = *item.UpdatedParsed
	}

	var body string
	if item.Content != "" {
		body = stripHTML(item.Content)
	} else if item.Description != "" {
		body = stripHTML(item.Description)
	}

	return story.RawItem{
		Title:        title,
		Body:         body,
		URL:          itemURL,
		SourceID:     sourceID,
		PublishedAt:  published,
		DiscoveredAt: now,
	}, true
}

func stripHTML(text string) string {
	var result strings.Builder
	inTag := false
	for _, r := range text {
		if r == '<' {
			inTag = true
			result.WriteRune(' ')
			continue
		}
		if r == '>' {
			inTag = false
			continue
		}
		if !inTag {
			result.WriteRune(r)
		}
	}

	s := result.String()
	// Decode common entities
	s = strings.ReplaceAll(s, "&nbsp;", " ")
	s = strings.ReplaceAll(s, "&amp;", "&")
	s = strings.ReplaceAll(s, "&lt;", "<")
	s = strings.ReplaceAll(s, "&gt;", ">")
	s = strings.ReplaceAll(s, "&quot;", `"`)
	s = strings.ReplaceAll(s, "&#39;", "'")

	fields := strings.Fields(s)
	return strings.Join(fields, " ")
}

// sourceIDFromURL derives a stable lowercase source id from a feed URL
// when none is configured, e.g. feeds.reuters.com -> reuters.
func sourceIDFromURL(feedURL string) string {
	u, err := url.Parse(feedURL)
	if err != nil {
		return feedURL
	}
	host := strings.ToLower(u.Hostname())

	for _, prefix := range []string{"www.", "blog.", "blogs.", "rss.", "feeds."} {
		host = strings.TrimPrefix(host, prefix)
	}

	parts := strings.Split(host, ".")
	if len(parts) >= 2 {
		return parts[len(parts)-2]
	}
	return host
}

// Package collect pulls raw items from the configured market-news
// connectors, enriches bodies where feeds only carry headlines, and
// submits everything to the pipeline.
package collect

import (
	"context"
	"log"

	"github.com/finsentry/finsentry/internal/dedup"
	"github.com/finsentry/finsentry/internal/story"
)

// Sink accepts collected items. The orchestrator satisfies it.
type Sink interface {
	Submit(raw story.RawItem) (dedup.Result, error)
}

// Options configures a collection run.
type Options struct {
	Feeds         []FeedConfig
	NewsAPIKeyEnv string
	NewsAPIQuery  string
	Tickers       []string
	DaysBack      int
	EnrichBodies  bool
}

// Result holds the counts of a collection run.
type Result struct {
	TotalFound int
	NewStories int
	Duplicates int
	Rejected   int
	Sources    map[string]int
}

// Collector gathers items from RSS feeds and NewsAPI and submits them.
type Collector struct {
	sink     Sink
	feeds    *FeedParser
	news     *NewsAPIClient
	enricher *Enricher
	opts     Options
}

// NewCollector wires the connectors named in opts. Connectors without
// configuration are left off.
func NewCollector(opts Options, sink Sink) *Collector {
	if opts.DaysBack <= 0 {
		opts.DaysBack = 1
	}
	if opts.NewsAPIQuery == "" {
		opts.NewsAPIQuery = "stock market finance"
	}

	c := &Collector{sink: sink, opts: opts}
	if len(opts.Feeds) > 0 {
		c.feeds = NewFeedParser(opts.Feeds)
	}
	if opts.NewsAPIKeyEnv != "" {
		c.news = NewNewsAPIClient(opts.NewsAPIKeyEnv)
	}
	if opts.EnrichBodies {
		c.enricher = NewEnricher(0)
	}
	return c
}

// Collect runs every configured connector and submits the gathered
// items. Returns the run counts; individual connector failures are
// logged, not fatal.
func (c *Collector) Collect(ctx context.Context) *Result {
	var items []story.RawItem

	if c.feeds != nil {
		log.Println("Collecting from RSS feeds...")
		items = append(items, c.feeds.ParseAll(ctx, c.opts.DaysBack)...)
	}
	if c.news != nil && c.news.IsConfigured() {
		log.Println("Collecting from NewsAPI...")
		items = append(items, c.news.SearchTickers(ctx, c.opts.NewsAPIQuery, c.opts.Tickers, c.opts.DaysBack)...)
	}

	if c.enricher != nil {
		er := c.enricher.Enrich(ctx, items)
		log.Printf("Body enrichment: %d fetched, %d already had content, %d failed",
			er.Fetched, er.Skipped, er.Failed)
	}

	r := c.submitAll(items)
	log.Printf("Collection complete: %d found, %d new, %d duplicates, %d rejected",
		r.TotalFound, r.NewStories, r.Duplicates, r.Rejected)
	return r
}

func (c *Collector) submitAll(items []story.RawItem) *Result {
	r := &Result{Sources: make(map[string]int)}
	r.TotalFound = len(items)

	for _, item := range items {
		res, err := c.sink.Submit(item)
		if err != nil {
			r.Rejected++
			continue
		}
		switch res.Outcome {
		case dedup.OutcomeNew:
			r.NewStories++
			r.Sources[item.SourceID]++
		case dedup.OutcomeDuplicate:
			r.Duplicates++
		}
	}
	return r
}

// Package story defines the data model shared by the ingestion and
// enrichment pipeline: raw items as received from sources, the tracked
// story each deduplicated item becomes, and the events the pipeline emits.
package story

import (
	"sort"
	"time"
)

// RawItem is a news item as received from a source connector.
// Immutable once created; no other fields are trusted from connectors.
type RawItem struct {
	Title       string    `json:"title"`
	Body        string    `json:"body"`
	URL         string    `json:"url"`
	SourceID    string    `json:"source_id"`
	PublishedAt time.Time `json:"published_at"`
	DiscoveredAt time.Time `json:"discovered_at"`
}

// Stage is the lifecycle state of a tracked story.
type Stage int

const (
	StageCollected Stage = iota
	StageClassified
	StageScored
	StagePendingVerification
	StageVerified
	StageUnconfirmed
	StageContextualized
	StageSynthesized
	StageAlerted
	StageDropped
)

var stageNames = map[Stage]string{
	StageCollected:           "collected",
	StageClassified:          "classified",
	StageScored:              "scored",
	StagePendingVerification: "pending_verification",
	StageVerified:            "verified",
	StageUnconfirmed:         "unconfirmed",
	StageContextualized:      "contextualized",
	StageSynthesized:         "synthesized",
	StageAlerted:             "alerted",
	StageDropped:             "dropped",
}

func (s Stage) String() string {
	if name, ok := stageNames[s]; ok {
		return name
	}
	return "unknown"
}

// Terminal reports whether a story in this stage is done processing.
func (s Stage) Terminal() bool {
	switch s {
	case StageAlerted, StageDropped, StageUnconfirmed:
		return true
	}
	return false
}

// Classification is the topic/ticker/region assignment for a story.
type Classification struct {
	Topic  string `json:"topic"`  // earnings, macro, regulatory, merger_acquisition, other
	Ticker string `json:"ticker"` // monitored ticker or UNKNOWN
	Region string `json:"region"` // US, EU, APAC, GLOBAL
}

// Sentiment is a label with model confidence.
type Sentiment struct {
	Label      string  `json:"label"` // negative, neutral, positive
	Confidence float64 `json:"confidence"`
}

// Impact levels, as rated by the impact provider.
const (
	ImpactHigh   = "high"
	ImpactMedium = "medium"
	ImpactLow    = "low"
)

// ContextHit is one historical analog returned by the retriever.
type ContextHit struct {
	CorpusID   int64   `json:"corpus_id"`
	Similarity float64 `json:"similarity"`
	Snippet    string  `json:"snippet"`
}

// Item is the orchestrator's unit of work: one deduplicated story and
// everything the stages have learned about it so far. The orchestrator
// owns it exclusively; stages receive it under the owner's lock and must
// not retain a reference after returning.
type Item struct {
	Fingerprint    Fingerprint
	Representative RawItem // first sighting; later duplicates never replace it
	Sources        map[string]struct{}
	State          Stage

	Classification *Classification
	Sentiment      *Sentiment
	Impact         string
	Context        []ContextHit
	Summary        string
	DropCause      string

	CreatedAt     time.Time
	LastUpdatedAt time.Time
	TTLDeadline   time.Time // verification deadline while pending
}

// NewItem creates a tracked item from the first sighting of a fingerprint.
func NewItem(fp Fingerprint, raw RawItem, now time.Time) *Item {
	return &Item{
		Fingerprint:    fp,
		Representative: raw,
		Sources:        map[string]struct{}{raw.SourceID: {}},
		State:          StageCollected,
		CreatedAt:      now,
		LastUpdatedAt:  now,
	}
}

// AddSource records a contributing source and returns the distinct count.
func (it *Item) AddSource(sourceID string, now time.Time) int {
	it.Sources[sourceID] = struct{}{}
	it.LastUpdatedAt = now
	return len(it.Sources)
}

// Clone returns an independent copy safe to hand outside the owner's
// lock. The source set and enrichments are copied so the caller never
// observes concurrent mutation of the tracked item.
func (it *Item) Clone() *Item {
	cp := *it
	cp.Sources = make(map[string]struct{}, len(it.Sources))
	for id := range it.Sources {
		cp.Sources[id] = struct{}{}
	}
	if it.Classification != nil {
		c := *it.Classification
		cp.Classification = &c
	}
	if it.Sentiment != nil {
		s := *it.Sentiment
		cp.Sentiment = &s
	}
	cp.Context = append([]ContextHit(nil), it.Context...)
	return &cp
}

// SourceIDs returns the contributing sources in stable order.
func (it *Item) SourceIDs() []string {
	ids := make([]string, 0, len(it.Sources))
	for id := range it.Sources {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// EnrichmentText is the text handed to classification and sentiment
// providers: the representative title plus a bounded body prefix.
func (it *Item) EnrichmentText() string {
	body := it.Representative.Body
	if len(body) > 1500 {
		body = body[:1500]
	}
	if body == "" {
		return it.Representative.Title
	}
	return it.Representative.Title + "\n\n" + body
}

// Decision is the alert gate's outcome for a terminal story.
type Decision string

const (
	DecisionAlert      Decision = "ALERT"
	DecisionLogged     Decision = "LOGGED"
	DecisionSuppressed Decision = "SUPPRESSED"
)

// Event is the outbound record consumed by the feed and notifier.
type Event struct {
	Fingerprint    Fingerprint     `json:"fingerprint"`
	State          Stage           `json:"-"`
	StateName      string          `json:"stage_state"`
	Title          string          `json:"title"`
	URL            string          `json:"url"`
	Sources        []string        `json:"sources"`
	Classification *Classification `json:"classification,omitempty"`
	Sentiment      *Sentiment      `json:"sentiment,omitempty"`
	Impact         string          `json:"impact,omitempty"`
	Context        []ContextHit    `json:"retrieved_context,omitempty"`
	Summary        string          `json:"summary,omitempty"`
	Decision       Decision        `json:"decision"`
	Cause          string          `json:"cause,omitempty"`
	Timestamp      time.Time       `json:"timestamp"`
}

// Snapshot builds the outbound event for the item's current state.
func (it *Item) Snapshot(decision Decision, now time.Time) Event {
	return Event{
		Fingerprint:    it.Fingerprint,
		State:          it.State,
		StateName:      it.State.String(),
		Title:          it.Representative.Title,
		URL:            it.Representative.URL,
		Sources:        it.SourceIDs(),
		Classification: it.Classification,
		Sentiment:      it.Sentiment,
		Impact:         it.Impact,
		Context:        it.Context,
		Summary:        it.Summary,
		Decision:       decision,
		Cause:          it.DropCause,
		Timestamp:      now,
	}
}

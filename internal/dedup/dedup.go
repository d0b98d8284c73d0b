// Package dedup decides whether an incoming raw item is a new story or a
// repeat sighting of one already in flight. Identity is exact normalized
// content equality via story fingerprints; semantically similar but
// differently worded items stay separate on purpose.
package dedup

import (
	"sync"
	"time"

	"github.com/finsentry/finsentry/internal/story"
)

// Outcome of submitting a raw item.
type Outcome int

const (
	OutcomeNew Outcome = iota
	OutcomeDuplicate
)

func (o Outcome) String() string {
	if o == OutcomeNew {
		return "NEW"
	}
	return "DUPLICATE"
}

// Result describes a submission: the computed fingerprint and whether it
// was already registered inside the recency window.
type Result struct {
	Outcome     Outcome
	Fingerprint story.Fingerprint
}

type entry struct {
	firstSeen time.Time
}

// Deduplicator is a bounded-recency fingerprint store. Entries older than
// the window are evicted lazily on submission, which bounds memory under
// continuous ingestion without a background reaper.
type Deduplicator struct {
	mu      sync.Mutex
	window  time.Duration
	entries map[story.Fingerprint]entry
	now     func() time.Time
}

// New creates a deduplicator with the given recency window.
func New(window time.Duration) *Deduplicator {
	if window <= 0 {
		window = 72 * time.Hour
	}
	return &Deduplicator{
		window:  window,
		entries: make(map[story.Fingerprint]entry),
		now:     time.Now,
	}
}

// Submit computes the item's fingerprint, registers it if unseen within
// the window, and reports NEW or DUPLICATE. No I/O.
func (d *Deduplicator) Submit(raw story.RawItem) Result {
	fp := story.FingerprintOf(raw)
	now := d.now()

	d.mu.Lock()
	defer d.mu.Unlock()

	d.evictLocked(now)

	if _, seen := d.entries[fp]; seen {
		return Result{Outcome: OutcomeDuplicate, Fingerprint: fp}
	}

	d.entries[fp] = entry{firstSeen: now}
	return Result{Outcome: OutcomeNew, Fingerprint: fp}
}

// Forget removes a fingerprint before its window expires. Used when a
// story's tracking state is torn down early.
func (d *Deduplicator) Forget(fp story.Fingerprint) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.entries, fp)
}

// Len reports the number of fingerprints currently registered.
func (d *Deduplicator) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.entries)
}

func (d *Deduplicator) evictLocked(now time.Time) {
	cutoff := now.Add(-d.window)
	for fp, e := range d.entries {
		if e.firstSeen.Before(cutoff) {
			delete(d.entries, fp)
		}
	}
}

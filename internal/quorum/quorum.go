// Package quorum tracks cross-source corroboration: how many distinct
// sources have reported each story, and the deadline by which a quorum
// must be reached before the story is surfaced as unconfirmed.
package quorum

import (
	"sync"
	"time"

	"github.com/finsentry/finsentry/internal/story"
)

// Entry is the per-fingerprint corroboration state.
type Entry struct {
	Required  int
	Sources   map[string]struct{}
	FirstSeen time.Time
	Deadline  time.Time
}

// Met reports whether enough distinct sources have been seen.
func (e *Entry) Met() bool {
	return len(e.Sources) >= e.Required
}

// Tracker aggregates sightings per fingerprint. Entries live from first
// sighting until the story leaves the verification phase, confirmed or
// timed out; callers remove them via Resolve.
type Tracker struct {
	mu       sync.Mutex
	required int
	timeout  time.Duration
	entries  map[story.Fingerprint]*Entry
}

// New creates a tracker requiring the given number of distinct sources
// within the timeout. Corroboration needs at least two sources.
func New(required int, timeout time.Duration) *Tracker {
	if required < 2 {
		required = 2
	}
	if timeout <= 0 {
		timeout = 30 * time.Minute
	}
	return &Tracker{
		required: required,
		timeout:  timeout,
		entries:  make(map[story.Fingerprint]*Entry),
	}
}

// Observe records a sighting of the fingerprint from a source, creating
// the entry on first sighting. Returns the distinct source count and
// whether the quorum is met.
func (t *Tracker) Observe(fp story.Fingerprint, sourceID string, now time.Time) (count int, met bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[fp]
	if !ok {
		e = &Entry{
			Required:  t.required,
			Sources:   make(map[string]struct{}),
			FirstSeen: now,
			Deadline:  now.Add(t.timeout),
		}
		t.entries[fp] = e
	}
	e.Sources[sourceID] = struct{}{}
	return len(e.Sources), e.Met()
}

// Confirmed reports whether the fingerprint's quorum is currently met.
func (t *Tracker) Confirmed(fp story.Fingerprint) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[fp]
	return ok && e.Met()
}

// Deadline returns the verification deadline for a tracked fingerprint.
func (t *Tracker) Deadline(fp story.Fingerprint) (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[fp]
	if !ok {
		return time.Time{}, false
	}
	return e.Deadline, true
}

// Expired lists fingerprints whose deadline has passed without quorum.
// Driven by the orchestrator's timer sweep.
func (t *Tracker) Expired(now time.Time) []story.Fingerprint {
	t.mu.Lock()
	defer t.mu.Unlock()

	var expired []story.Fingerprint
	for fp, e := range t.entries {
		if !e.Met() && now.After(e.Deadline) {
			expired = append(expired, fp)
		}
	}
	return expired
}

// Resolve destroys the entry once the story has left the verification
// phase (confirmed or timed out).
func (t *Tracker) Resolve(fp story.Fingerprint) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, fp)
}

// Pending reports how many fingerprints are still awaiting quorum.
func (t *Tracker) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := 0
	for _, e := range t.entries {
		if !e.Met() {
			n++
		}
	}
	return n
}

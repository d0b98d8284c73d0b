package dedup

import (
	"testing"
	"time"

	"github.com/finsentry/finsentry/internal/story"
)

func rawItem(title, url, source string) story.RawItem {
	return story.RawItem{
		Title:    title,
		Body:     "body text",
		URL:      url,
		SourceID: source,
	}
}

func TestSubmitNewThenDuplicate(t *testing.T) {
	d := New(time.Hour)
	item := rawItem("Fed raises rates 50bps", "https://example.com/fed", "reuters")

	first := d.Submit(item)
	if first.Outcome != OutcomeNew {
		t.Fatalf("first submission: expected NEW, got %s", first.Outcome)
	}

	second := d.Submit(item)
	if second.Outcome != OutcomeDuplicate {
		t.Fatalf("second submission: expected DUPLICATE, got %s", second.Outcome)
	}
	if second.Fingerprint != first.Fingerprint {
		t.Error("duplicate must report the original fingerprint")
	}
}

func TestCrossSourceDuplicate(t *testing.T) {
	d := New(time.Hour)

	a := rawItem("Fed raises rates 50bps", "https://example.com/fed", "reuters")
	b := rawItem("Fed raises rates 50bps", "https://example.com/fed", "bloomberg")

	if r := d.Submit(a); r.Outcome != OutcomeNew {
		t.Fatalf("expected NEW, got %s", r.Outcome)
	}
	r := d.Submit(b)
	if r.Outcome != OutcomeDuplicate {
		t.Fatalf("same story from second source: expected DUPLICATE, got %s", r.Outcome)
	}
}

func TestDistinctStoriesStaySeparate(t *testing.T) {
	d := New(time.Hour)

	d.Submit(rawItem("Fed raises rates 50bps", "https://example.com/fed", "reuters"))
	r := d.Submit(rawItem("Fed holds rates steady", "https://example.com/fed2", "reuters"))
	if r.Outcome != OutcomeNew {
		t.Errorf("different story: expected NEW, got %s", r.Outcome)
	}
	if d.Len() != 2 {
		t.Errorf("expected 2 registered fingerprints, got %d", d.Len())
	}
}

func TestWindowEviction(t *testing.T) {
	d := New(time.Hour)
	current := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return current }

	item := rawItem("Fed raises rates 50bps", "https://example.com/fed", "reuters")
	if r := d.Submit(item); r.Outcome != OutcomeNew {
		t.Fatalf("expected NEW, got %s", r.Outcome)
	}

	// Within the window: still a duplicate.
	current = current.Add(30 * time.Minute)
	if r := d.Submit(item); r.Outcome != OutcomeDuplicate {
		t.Fatalf("inside window: expected DUPLICATE, got %s", r.Outcome)
	}

	// Past the window: the entry is evicted and the story reads as new.
	current = current.Add(2 * time.Hour)
	if r := d.Submit(item); r.Outcome != OutcomeNew {
		t.Fatalf("after window: expected NEW, got %s", r.Outcome)
	}
	if d.Len() != 1 {
		t.Errorf("expected stale entry evicted, got %d entries", d.Len())
	}
}

func TestForget(t *testing.T) {
	d := New(time.Hour)
	item := rawItem("Fed raises rates 50bps", "https://example.com/fed", "reuters")

	r := d.Submit(item)
	d.Forget(r.Fingerprint)

	if r := d.Submit(item); r.Outcome != OutcomeNew {
		t.Errorf("after Forget: expected NEW, got %s", r.Outcome)
	}
}

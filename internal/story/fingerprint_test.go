package story

import (
	"testing"
	"time"
)

func rawItem(title, body, url, source string) RawItem {
	return RawItem{
		Title:        title,
		Body:         body,
		URL:          url,
		SourceID:     source,
		PublishedAt:  time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC),
		DiscoveredAt: time.Date(2026, 8, 30, 12, 5, 0, 0, time.UTC),
	}
}

func TestFingerprintDeterministic(t *testing.T) {
	a := rawItem("Fed raises rates 50bps", "The Federal Reserve...", "https://example.com/fed", "reuters")
	if FingerprintOf(a) != FingerprintOf(a) {
		t.Error("same item produced different fingerprints")
	}
}

func TestFingerprintIgnoresCosmeticDifferences(t *testing.T) {
	a := rawItem("Fed raises rates 50bps", "The  Federal   Reserve...", "https://example.com/fed", "reuters")
	b := rawItem("FED RAISES RATES 50BPS", "the federal reserve...", "https://Example.com/fed?utm_source=rss&fbclid=abc", "bloomberg")
	if FingerprintOf(a) != FingerprintOf(b) {
		t.Error("expected normalized variants to share a fingerprint")
	}
}

func TestFingerprintDistinguishesContent(t *testing.T) {
	base := rawItem("Fed raises rates 50bps", "body", "https://example.com/fed", "reuters")

	byTitle := base
	byTitle.Title = "Fed raises rates 25bps"
	if FingerprintOf(base) == FingerprintOf(byTitle) {
		t.Error("different titles must not share a fingerprint")
	}

	byBody := base
	byBody.Body = "different body"
	if FingerprintOf(base) == FingerprintOf(byBody) {
		t.Error("different bodies must not share a fingerprint")
	}

	byURL := base
	byURL.URL = "https://example.com/fed-update"
	if FingerprintOf(base) == FingerprintOf(byURL) {
		t.Error("different URLs must not share a fingerprint")
	}
}

func TestFingerprintMeaningfulQueryParamsKept(t *testing.T) {
	a := rawItem("t", "b", "https://example.com/story?id=1", "s")
	b := rawItem("t", "b", "https://example.com/story?id=2", "s")
	if FingerprintOf(a) == FingerprintOf(b) {
		t.Error("non-tracking query params are part of identity")
	}
}

func TestCanonicalURL(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"https://Example.com/Path/?utm_source=x#frag", "https://example.com/Path"},
		{"https://example.com/a?b=2&a=1", "https://example.com/a?a=1&b=2"},
		{"not a url", "not a url"},
	}
	for _, tc := range cases {
		if got := CanonicalURL(tc.in); got != tc.want {
			t.Errorf("CanonicalURL(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestStageTerminal(t *testing.T) {
	terminal := []Stage{StageAlerted, StageDropped, StageUnconfirmed}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Errorf("expected %s to be terminal", s)
		}
	}
	active := []Stage{StageCollected, StageClassified, StageScored, StagePendingVerification, StageVerified, StageContextualized, StageSynthesized}
	for _, s := range active {
		if s.Terminal() {
			t.Errorf("expected %s to be non-terminal", s)
		}
	}
}

func TestItemCloneIsIndependent(t *testing.T) {
	now := time.Now()
	it := NewItem("fp", rawItem("t", "b", "https://example.com", "reuters"), now)
	it.Classification = &Classification{Topic: "macro", Ticker: "UNKNOWN", Region: "US"}
	it.Sentiment = &Sentiment{Label: "negative", Confidence: 0.9}
	it.Context = []ContextHit{{CorpusID: 1, Similarity: 0.8, Snippet: "analog"}}

	cp := it.Clone()
	it.AddSource("bloomberg", now)
	it.Classification.Topic = "earnings"
	it.Sentiment.Label = "positive"
	it.Context[0].Snippet = "changed"

	if len(cp.Sources) != 1 {
		t.Errorf("clone must not see sources added later, got %v", cp.SourceIDs())
	}
	if cp.Classification.Topic != "macro" {
		t.Errorf("clone must not see classification mutation, got %q", cp.Classification.Topic)
	}
	if cp.Sentiment.Label != "negative" {
		t.Errorf("clone must not see sentiment mutation, got %q", cp.Sentiment.Label)
	}
	if cp.Context[0].Snippet != "analog" {
		t.Errorf("clone must not see context mutation, got %q", cp.Context[0].Snippet)
	}
}

func TestItemAddSource(t *testing.T) {
	now := time.Now()
	it := NewItem("fp", rawItem("t", "b", "https://example.com", "reuters"), now)

	if n := it.AddSource("reuters", now); n != 1 {
		t.Errorf("re-adding same source: expected count 1, got %d", n)
	}
	if n := it.AddSource("bloomberg", now); n != 2 {
		t.Errorf("expected count 2, got %d", n)
	}

	ids := it.SourceIDs()
	if len(ids) != 2 || ids[0] != "bloomberg" || ids[1] != "reuters" {
		t.Errorf("expected sorted source ids, got %v", ids)
	}
}

package database

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/finsentry/finsentry/internal/story"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func sampleEvent(fp string, decision story.Decision) story.Event {
	return story.Event{
		Fingerprint: story.Fingerprint(fp),
		State:       story.StageAlerted,
		StateName:   "alerted",
		Title:       "Fed raises rates 50bps",
		URL:         "https://example.com/fed",
		Sources:     []string{"bloomberg", "reuters"},
		Classification: &story.Classification{
			Topic: "macro", Ticker: "UNKNOWN", Region: "US",
		},
		Sentiment: &story.Sentiment{Label: "negative", Confidence: 0.9},
		Impact:    story.ImpactHigh,
		Context: []story.ContextHit{
			{CorpusID: 3, Similarity: 0.82, Snippet: "1994 rate shock"},
		},
		Summary:   "- Rates up\n- Markets down\n- More to come\n",
		Decision:  decision,
		Timestamp: time.Now(),
	}
}

func TestRecordAndGetEvents(t *testing.T) {
	db := openTestDB(t)

	if err := db.RecordEvent(sampleEvent("fp1", story.DecisionAlert)); err != nil {
		t.Fatalf("recording event: %v", err)
	}
	if err := db.RecordEvent(sampleEvent("fp2", story.DecisionLogged)); err != nil {
		t.Fatalf("recording event: %v", err)
	}

	events, err := db.GetRecentEvents(10)
	if err != nil {
		t.Fatalf("getting events: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}

	// Newest first
	if events[0].Fingerprint != "fp2" {
		t.Errorf("expected fp2 first, got %s", events[0].Fingerprint)
	}

	e := events[1]
	if e.Decision != "ALERT" {
		t.Errorf("expected ALERT, got %s", e.Decision)
	}
	if len(e.Sources) != 2 || e.Sources[0] != "bloomberg" {
		t.Errorf("unexpected sources: %v", e.Sources)
	}
	if e.Topic == nil || *e.Topic != "macro" {
		t.Error("expected topic macro")
	}
	if e.Confidence == nil || *e.Confidence != 0.9 {
		t.Error("expected confidence 0.9")
	}
	if len(e.Context) != 1 || e.Context[0].Snippet != "1994 rate shock" {
		t.Errorf("unexpected context: %v", e.Context)
	}
}

func TestGetAlertsFiltersDecision(t *testing.T) {
	db := openTestDB(t)

	db.RecordEvent(sampleEvent("fp1", story.DecisionAlert))
	db.RecordEvent(sampleEvent("fp2", story.DecisionLogged))
	db.RecordEvent(sampleEvent("fp3", story.DecisionSuppressed))

	alerts, err := db.GetAlerts(10)
	if err != nil {
		t.Fatalf("getting alerts: %v", err)
	}
	if len(alerts) != 1 || alerts[0].Fingerprint != "fp1" {
		t.Errorf("expected only fp1 as alert, got %v", alerts)
	}
}

func TestDroppedAndUnconfirmedStayQueryable(t *testing.T) {
	db := openTestDB(t)

	dropped := sampleEvent("fp1", story.DecisionSuppressed)
	dropped.StateName = "dropped"
	dropped.Cause = "classify: provider quota exhausted"
	db.RecordEvent(dropped)

	unconfirmed := sampleEvent("fp2", story.DecisionLogged)
	unconfirmed.StateName = "unconfirmed"
	db.RecordEvent(unconfirmed)

	events, err := db.GetRecentEvents(10)
	if err != nil {
		t.Fatalf("getting events: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("dropped/unconfirmed must remain visible, got %d events", len(events))
	}
	if events[1].Cause == nil || *events[1].Cause == "" {
		t.Error("expected recorded drop cause")
	}
}

func TestGetEventsByFingerprint(t *testing.T) {
	db := openTestDB(t)

	db.RecordEvent(sampleEvent("fp1", story.DecisionAlert))
	db.RecordEvent(sampleEvent("fp2", story.DecisionLogged))

	events, err := db.GetEventsByFingerprint("fp1")
	if err != nil {
		t.Fatalf("getting events: %v", err)
	}
	if len(events) != 1 || events[0].Fingerprint != "fp1" {
		t.Errorf("expected one fp1 event, got %v", events)
	}
}

func TestCorpusRoundTrip(t *testing.T) {
	db := openTestDB(t)

	id, err := db.InsertCorpusDocument("2008-crisis.md", "Lehman Brothers collapsed...", []float64{0.1, 0.2, 0.3})
	if err != nil {
		t.Fatalf("inserting corpus document: %v", err)
	}
	if id <= 0 {
		t.Fatalf("expected positive id, got %d", id)
	}

	docs, err := db.GetCorpusDocuments()
	if err != nil {
		t.Fatalf("getting corpus: %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("expected 1 document, got %d", len(docs))
	}
	if docs[0].Source != "2008-crisis.md" {
		t.Errorf("unexpected source: %s", docs[0].Source)
	}
	if len(docs[0].Embedding) != 3 || docs[0].Embedding[1] != 0.2 {
		t.Errorf("unexpected embedding: %v", docs[0].Embedding)
	}

	n, err := db.CorpusCount()
	if err != nil || n != 1 {
		t.Errorf("expected corpus count 1, got %d (%v)", n, err)
	}
}

func TestStats(t *testing.T) {
	db := openTestDB(t)

	db.RecordEvent(sampleEvent("fp1", story.DecisionAlert))
	db.RecordEvent(sampleEvent("fp2", story.DecisionLogged))
	db.RecordEvent(sampleEvent("fp3", story.DecisionLogged))
	db.InsertCorpusDocument("doc", "content", []float64{0.5})

	stats, err := db.GetStats()
	if err != nil {
		t.Fatalf("getting stats: %v", err)
	}
	if stats.TotalEvents != 3 || stats.Alerts != 1 || stats.Logged != 2 {
		t.Errorf("unexpected stats: %+v", stats)
	}
	if stats.CorpusDocuments != 1 {
		t.Errorf("expected 1 corpus document, got %d", stats.CorpusDocuments)
	}
}

func TestMigrationIdempotent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.db")

	db, err := Open(path)
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	db.RecordEvent(sampleEvent("fp1", story.DecisionAlert))
	db.Close()

	db, err = Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db.Close()

	events, err := db.GetRecentEvents(10)
	if err != nil || len(events) != 1 {
		t.Errorf("expected data to survive reopen, got %d events (%v)", len(events), err)
	}
}

package database

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/finsentry/finsentry/internal/story"
)

// EventRecord is a stored pipeline event.
type EventRecord struct {
	ID          int64
	Fingerprint string
	StageState  string
	Title       string
	URL         *string
	Sources     []string
	Topic       *string
	Ticker      *string
	Region      *string
	Sentiment   *string
	Confidence  *float64
	Impact      *string
	Context     []story.ContextHit
	Summary     *string
	Decision    string
	Cause       *string
	CreatedAt   *string
}

// RecordEvent persists an outbound pipeline event. Implements the
// orchestrator's event sink.
func (db *DB) RecordEvent(ev story.Event) error {
	sources, err := json.Marshal(ev.Sources)
	if err != nil {
		return fmt.Errorf("marshaling sources: %w", err)
	}

	var contextJSON []byte
	if len(ev.Context) > 0 {
		contextJSON, err = json.Marshal(ev.Context)
		if err != nil {
			return fmt.Errorf("marshaling context: %w", err)
		}
	}

	var topic, ticker, region, sentiment any
	var confidence any
	if ev.Classification != nil {
		topic = ev.Classification.Topic
		ticker = ev.Classification.Ticker
		region = ev.Classification.Region
	}
	if ev.Sentiment != nil {
		sentiment = ev.Sentiment.Label
		confidence = ev.Sentiment.Confidence
	}

	_, err = db.conn.Exec(`
		INSERT INTO events (fingerprint, stage_state, title, url, sources, topic, ticker, region,
		                    sentiment, confidence, impact, context, summary, decision, cause)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(ev.Fingerprint), ev.StateName, ev.Title, nullable(ev.URL), string(sources),
		topic, ticker, region, sentiment, confidence,
		nullable(ev.Impact), nullableBytes(contextJSON), nullable(ev.Summary),
		string(ev.Decision), nullable(ev.Cause),
	)
	if err != nil {
		return fmt.Errorf("inserting event: %w", err)
	}
	return nil
}

// GetRecentEvents returns the newest events, all decisions included.
// Dropped and unconfirmed stories stay visible in the feed by design.
func (db *DB) GetRecentEvents(limit int) ([]EventRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.conn.Query(`
		SELECT id, fingerprint, stage_state, title, url, sources, topic, ticker, region,
		       sentiment, confidence, impact, context, summary, decision, cause, created_at
		FROM events ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// GetAlerts returns the newest events with an ALERT decision.
func (db *DB) GetAlerts(limit int) ([]EventRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.conn.Query(`
		SELECT id, fingerprint, stage_state, title, url, sources, topic, ticker, region,
		       sentiment, confidence, impact, context, summary, decision, cause, created_at
		FROM events WHERE decision = 'ALERT' ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying alerts: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// GetEventsByFingerprint returns all events recorded for one story,
// newest first.
func (db *DB) GetEventsByFingerprint(fp string) ([]EventRecord, error) {
	rows, err := db.conn.Query(`
		SELECT id, fingerprint, stage_state, title, url, sources, topic, ticker, region,
		       sentiment, confidence, impact, context, summary, decision, cause, created_at
		FROM events WHERE fingerprint = ? ORDER BY id DESC`, fp)
	if err != nil {
		return nil, fmt.Errorf("querying events for %s: %w", fp, err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]EventRecord, error) {
	var events []EventRecord
	for rows.Next() {
		var e EventRecord
		var sources, contextJSON *string
		if err := rows.Scan(&e.ID, &e.Fingerprint, &e.StageState, &e.Title, &e.URL, &sources,
			&e.Topic, &e.Ticker, &e.Region, &e.Sentiment, &e.Confidence, &e.Impact,
			&contextJSON, &e.Summary, &e.Decision, &e.Cause, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning event: %w", err)
		}
		if sources != nil {
			json.Unmarshal([]byte(*sources), &e.Sources)
		}
		if contextJSON != nil {
			json.Unmarshal([]byte(*contextJSON), &e.Context)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullableBytes(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}

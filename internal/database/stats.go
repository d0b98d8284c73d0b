package database

import "fmt"

// Stats contains aggregate archive statistics.
type Stats struct {
	TotalEvents     int
	Alerts          int
	Logged          int
	Suppressed      int
	CorpusDocuments int
}

// GetStats returns aggregate counts for the status command.
func (db *DB) GetStats() (*Stats, error) {
	s := &Stats{}

	if err := db.conn.QueryRow("SELECT COUNT(*) FROM events").Scan(&s.TotalEvents); err != nil {
		return nil, fmt.Errorf("counting events: %w", err)
	}

	rows, err := db.conn.Query("SELECT decision, COUNT(*) FROM events GROUP BY decision")
	if err != nil {
		return nil, fmt.Errorf("counting decisions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var decision string
		var count int
		if err := rows.Scan(&decision, &count); err != nil {
			return nil, fmt.Errorf("scanning decision count: %w", err)
		}
		switch decision {
		case "ALERT":
			s.Alerts = count
		case "LOGGED":
			s.Logged = count
		case "SUPPRESSED":
			s.Suppressed = count
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if s.CorpusDocuments, err = db.CorpusCount(); err != nil {
		return nil, err
	}
	return s, nil
}

package database

import (
	"encoding/json"
	"fmt"
)

// CorpusDocument is one historical document chunk with its embedding.
type CorpusDocument struct {
	ID         int64
	Source     string
	Content    string
	Embedding  []float64
	IngestedAt *string
}

// InsertCorpusDocument stores a document chunk and its embedding.
func (db *DB) InsertCorpusDocument(source, content string, embedding []float64) (int64, error) {
	emb, err := json.Marshal(embedding)
	if err != nil {
		return 0, fmt.Errorf("marshaling embedding: %w", err)
	}

	res, err := db.conn.Exec(
		"INSERT INTO corpus_documents (source, content, embedding) VALUES (?, ?, ?)",
		source, content, string(emb),
	)
	if err != nil {
		return 0, fmt.Errorf("inserting corpus document: %w", err)
	}
	return res.LastInsertId()
}

// GetCorpusDocuments returns every corpus document with its embedding.
// The retriever scans these; corpus sizes here are thousands, not
// millions, so a full scan per query is fine and an ANN index would be
// overkill.
func (db *DB) GetCorpusDocuments() ([]CorpusDocument, error) {
	rows, err := db.conn.Query(
		"SELECT id, source, content, embedding, ingested_at FROM corpus_documents ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("querying corpus: %w", err)
	}
	defer rows.Close()

	var docs []CorpusDocument
	for rows.Next() {
		var d CorpusDocument
		var emb string
		if err := rows.Scan(&d.ID, &d.Source, &d.Content, &emb, &d.IngestedAt); err != nil {
			return nil, fmt.Errorf("scanning corpus document: %w", err)
		}
		if err := json.Unmarshal([]byte(emb), &d.Embedding); err != nil {
			return nil, fmt.Errorf("decoding embedding for document %d: %w", d.ID, err)
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// CorpusCount returns the number of stored corpus documents.
func (db *DB) CorpusCount() (int, error) {
	var n int
	if err := db.conn.QueryRow("SELECT COUNT(*) FROM corpus_documents").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting corpus: %w", err)
	}
	return n, nil
}

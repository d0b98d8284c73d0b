package retrieval

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/finsentry/finsentry/internal/database"
	"github.com/finsentry/finsentry/internal/llm"
)

const (
	minChunkLen = 80
	maxChunkLen = 1200
	embedBatch  = 16
)

// IngestResult holds the results of a corpus ingestion run.
type IngestResult struct {
	Files  int
	Chunks int
	Errors int
}

// Ingestor loads historical documents into the corpus: chunk, embed,
// store.
type Ingestor struct {
	db       *database.DB
	embedder llm.Embedder
}

// NewIngestor creates a corpus ingestor.
func NewIngestor(db *database.DB, embedder llm.Embedder) *Ingestor {
	return &Ingestor{db: db, embedder: embedder}
}

// IngestDir ingests every .txt and .md file under dir.
func (in *Ingestor) IngestDir(ctx context.Context, dir string) (*IngestResult, error) {
	if in.embedder == nil {
		return nil, fmt.Errorf("no embedder configured")
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading corpus directory: %w", err)
	}

	r := &IngestResult{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".txt" && ext != ".md" {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			log.Printf("Error reading %s: %v", entry.Name(), err)
			r.Errors++
			continue
		}

		chunks := ChunkDocument(string(data))
		if len(chunks) == 0 {
			continue
		}

		stored, err := in.ingestChunks(ctx, entry.Name(), chunks)
		if err != nil {
			log.Printf("Error ingesting %s: %v", entry.Name(), err)
			r.Errors++
			continue
		}

		r.Files++
		r.Chunks += stored
		log.Printf("Ingested %s: %d chunks", entry.Name(), stored)
	}

	log.Printf("Corpus ingestion complete: %d files, %d chunks, %d errors", r.Files, r.Chunks, r.Errors)
	return r, nil
}

func (in *Ingestor) ingestChunks(ctx context.Context, source string, chunks []string) (int, error) {
	stored := 0
	for start := 0; start < len(chunks); start += embedBatch {
		end := start + embedBatch
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		vectors, err := in.embedder.Embed(ctx, batch)
		if err != nil {
			return stored, fmt.Errorf("embedding batch: %w", err)
		}

		for i, chunk := range batch {
			if _, err := in.db.InsertCorpusDocument(source, chunk, vectors[i]); err != nil {
				return stored, err
			}
			stored++
		}
	}
	return stored, nil
}

// ChunkDocument splits a document into paragraph chunks: blank-line
// separated blocks, merged until they reach a useful size and split when
// they exceed the maximum.
func ChunkDocument(text string) []string {
	paragraphs := strings.Split(text, "\n\n")

	var chunks []string
	var current strings.Builder

	flush := func() {
		chunk := strings.TrimSpace(current.String())
		current.Reset()
		if len(chunk) >= minChunkLen {
			chunks = append(chunks, chunk)
		}
	}

	for _, p := range paragraphs {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}

		if current.Len()+len(p) > maxChunkLen && current.Len() > 0 {
			flush()
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(p)
	}
	flush()

	return chunks
}

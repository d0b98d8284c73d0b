// Package retrieval implements the historical-context capability: a
// corpus of past market events stored with embeddings, searched by
// cosine similarity. The orchestrator consumes it through the narrow
// provider.Retriever contract and never mutates the corpus.
package retrieval

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/finsentry/finsentry/internal/database"
	"github.com/finsentry/finsentry/internal/llm"
	"github.com/finsentry/finsentry/internal/provider"
	"github.com/finsentry/finsentry/internal/story"
)

// Retriever searches the corpus by embedding similarity.
type Retriever struct {
	db       *database.DB
	embedder llm.Embedder
}

// New creates a corpus retriever.
func New(db *database.DB, embedder llm.Embedder) *Retriever {
	return &Retriever{db: db, embedder: embedder}
}

// Query embeds the text and returns the k most similar corpus chunks,
// highest similarity first. Deterministic for a fixed corpus snapshot:
// ties break on corpus id.
func (r *Retriever) Query(ctx context.Context, text string, k int) ([]story.ContextHit, error) {
	if r.embedder == nil {
		return nil, provider.Permanent("retrieve", fmt.Errorf("no embedder configured"))
	}
	if k <= 0 {
		k = 3
	}

	docs, err := r.db.GetCorpusDocuments()
	if err != nil {
		return nil, provider.Permanent("retrieve", err)
	}
	if len(docs) == 0 {
		return nil, nil
	}

	vectors, err := r.embedder.Embed(ctx, []string{text})
	if err != nil {
		return nil, provider.Transient("retrieve", err)
	}
	query := vectors[0]

	hits := make([]story.ContextHit, 0, len(docs))
	for _, doc := range docs {
		hits = append(hits, story.ContextHit{
			CorpusID:   doc.ID,
			Similarity: cosineSimilarity(query, doc.Embedding),
			Snippet:    snippet(doc.Content),
		})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Similarity != hits[j].Similarity {
			return hits[i].Similarity > hits[j].Similarity
		}
		return hits[i].CorpusID < hits[j].CorpusID
	})

	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// cosineSimilarity computes the cosine of the angle between two vectors.
// Mismatched or zero-length vectors score 0.
func cosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

const maxSnippet = 300

func snippet(content string) string {
	if len(content) <= maxSnippet {
		return content
	}
	return content[:maxSnippet] + "..."
}

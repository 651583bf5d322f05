// Package e2e provides end-to-end tests driving the full HTTP stack with a
// synthetic embedding corpus.
package e2e

import (
	"fmt"
	"math"

	"github.com/google/uuid"

	"github.com/okibi/tansa/internal/models"
)

// Corpus embeddings live on the unit circle in the first two of corpusDim
// coordinates. Every chunk gets a distinct angle in (0, 90°), so cosine
// similarity decreases strictly with angular distance and rankings are
// exact, never probabilistic.
const corpusDim = 4

// CorpusDoc is one document in the corpus: a generated doc id, metadata,
// and one or more chunks at consecutive angles.
type CorpusDoc struct {
	ID       string
	Topic    string
	Metadata map[string]interface{}
	Chunks   []models.Chunk
}

// QueryCase is a query embedding and the document that must rank first.
type QueryCase struct {
	Description   string
	Embedding     []float32
	ExpectedDocID string
}

// Corpus holds the documents and the query cases derived from them.
type Corpus struct {
	Documents []CorpusDoc
	Cases     []QueryCase
}

var corpusTopics = []string{
	"mail", "calendar", "contacts", "notes", "tickets",
	"wiki", "chat", "reports", "invoices", "specs",
}

// BuildCorpus returns nDocs documents; document i has 1 + i%3 chunks.
// Every fifth document contributes a query case: its first chunk's exact
// direction, which must rank that document first.
func BuildCorpus(nDocs int) *Corpus {
	totalChunks := 0
	for i := 0; i < nDocs; i++ {
		totalChunks += 1 + i%3
	}
	step := (math.Pi / 2) / float64(totalChunks+1)

	c := &Corpus{}
	angle := step
	for i := 0; i < nDocs; i++ {
		topic := corpusTopics[i%len(corpusTopics)]
		doc := CorpusDoc{
			ID:    uuid.NewString(),
			Topic: topic,
			Metadata: map[string]interface{}{
				"topic":   topic,
				"ordinal": i,
			},
		}
		nChunks := 1 + i%3
		for j := 0; j < nChunks; j++ {
			doc.Chunks = append(doc.Chunks, models.Chunk{
				ChunkIndex: j,
				Text:       fmt.Sprintf("%s document %d, chunk %d", topic, i, j),
				Embedding:  vectorAt(angle),
			})
			angle += step
		}
		c.Documents = append(c.Documents, doc)

		if i%5 == 0 {
			query := make([]float32, corpusDim)
			copy(query, doc.Chunks[0].Embedding)
			c.Cases = append(c.Cases, QueryCase{
				Description:   fmt.Sprintf("chunk direction of %s doc %d ranks it first", topic, i),
				Embedding:     query,
				ExpectedDocID: doc.ID,
			})
		}
	}
	return c
}

// vectorAt returns a corpusDim-wide unit vector at the given angle in the
// first two coordinates.
func vectorAt(angle float64) []float32 {
	v := make([]float32, corpusDim)
	v[0] = float32(math.Cos(angle))
	v[1] = float32(math.Sin(angle))
	return v
}

// ToIngestRequests converts the corpus documents into API payloads.
func (c *Corpus) ToIngestRequests() []models.IngestRequest {
	out := make([]models.IngestRequest, len(c.Documents))
	for i, d := range c.Documents {
		out[i] = models.IngestRequest{
			ID:       d.ID,
			Metadata: d.Metadata,
			Chunks:   d.Chunks,
		}
	}
	return out
}

// TotalChunks returns the chunk count across all documents.
func (c *Corpus) TotalChunks() int {
	n := 0
	for _, d := range c.Documents {
		n += len(d.Chunks)
	}
	return n
}

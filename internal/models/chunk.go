// Package models defines the data structures exchanged with the engine:
// ingest payloads, query requests, retrieval hits, and diagnostics.
package models

import "time"

// Chunk is one unit of an ingested document: its position within the
// document, an optional text pointer, and the embedding vector computed
// by the external provider.
type Chunk struct {
	ChunkIndex int       `json:"chunk_index"`
	Text       string    `json:"text"`
	Embedding  []float32 `json:"embedding"`
}

// StoredChunk is a chunk row hydrated from the metadata store. The ID is
// the SQLite primary key, which doubles as the vector-index id.
type StoredChunk struct {
	ID         int64                  `json:"id"`
	DocID      string                 `json:"doc_id"`
	ChunkIndex int                    `json:"chunk_index"`
	Text       string                 `json:"text"`
	Metadata   map[string]interface{} `json:"metadata"`
	CreatedAt  time.Time              `json:"created_at"`
}

// IngestRequest replaces a document's chunk set wholesale. Metadata is an
// opaque map owned by the caller; the engine stores and returns it without
// interpreting it.
type IngestRequest struct {
	ID       string                 `json:"id"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
	Chunks   []Chunk                `json:"chunks"`
}

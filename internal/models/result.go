package models

// SourceChunk is one retrieval hit: a stored chunk plus its similarity
// score. Score is raw cosine similarity in [-1, 1] — a ranking signal,
// not a calibrated probability.
type SourceChunk struct {
	ChunkID  int64                  `json:"chunk_id"`
	DocID    string                 `json:"doc_id"`
	Text     string                 `json:"text"`
	Metadata map[string]interface{} `json:"metadata"`
	Score    float64                `json:"score"`
}

// QueryResponse is the response for a query request. Sources are unique
// by doc_id and sorted by score descending.
type QueryResponse struct {
	Sources []SourceChunk `json:"sources"`
}

// IngestResponse reports how many chunks the ingest stored.
type IngestResponse struct {
	Status         string `json:"status"`
	ChunksIngested int    `json:"chunks_ingested"`
}

// DeleteResponse reports how many chunks the delete removed.
// Zero with status ok means the doc_id was unknown.
type DeleteResponse struct {
	Status        string `json:"status"`
	ChunksDeleted int    `json:"chunks_deleted"`
}

// ResetResponse acknowledges a reset.
type ResetResponse struct {
	Status string `json:"status"`
}

// Health is the diagnostic health payload. Dim is null until the first
// ingest fixes the embedding dimension.
type Health struct {
	Status      string `json:"status"`
	IndexLoaded bool   `json:"index_loaded"`
	Dim         *int   `json:"dim"`
	DataDir     string `json:"data_dir"`
}

// EngineStats are diagnostic counters for the status endpoint.
type EngineStats struct {
	Documents      int   `json:"documents"`
	Chunks         int   `json:"chunks"`
	IndexedVectors int   `json:"indexed_vectors"`
	Dim            *int  `json:"dim"`
	DiskBytes      int64 `json:"disk_bytes"`
}

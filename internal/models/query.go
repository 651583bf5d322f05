package models

// QueryRequest asks for the nearest stored chunks to a query embedding,
// deduplicated to one hit per document. TopK is a pointer so an absent
// field (server default applies) stays distinguishable from an explicit
// value, which the engine bounds-checks.
type QueryRequest struct {
	Embedding []float32 `json:"embedding"`
	TopK      *int      `json:"top_k,omitempty"`
}

// DeleteRequest removes every chunk belonging to one document.
type DeleteRequest struct {
	ID string `json:"id"`
}

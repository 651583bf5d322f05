package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/okibi/tansa/internal/config"
	"github.com/okibi/tansa/internal/engine"
	"github.com/okibi/tansa/internal/models"
	"github.com/okibi/tansa/internal/server"
)

// testStack is one running instance: an engine on a data directory and an
// HTTP server in front of it. Restart tests stop one stack and start
// another on the same directory.
type testStack struct {
	eng *engine.Engine
	ts  *httptest.Server
}

func startStack(t *testing.T, dataDir string) *testStack {
	t.Helper()
	eng, err := engine.Open(dataDir)
	if err != nil {
		t.Fatalf("engine.Open(%s) error = %v", dataDir, err)
	}
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	srv := server.NewServer(eng, cfg, zap.NewNop())
	st := &testStack{eng: eng, ts: httptest.NewServer(srv.Handler())}
	t.Cleanup(st.stop)
	return st
}

func (st *testStack) stop() {
	if st.ts != nil {
		st.ts.Close()
		st.ts = nil
	}
	if st.eng != nil {
		_ = st.eng.Close()
		st.eng = nil
	}
}

func (st *testStack) post(t *testing.T, path string, payload interface{}) (int, []byte) {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.Post(st.ts.URL+path, "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return resp.StatusCode, out
}

func (st *testStack) get(t *testing.T, path string) (int, []byte) {
	t.Helper()
	resp, err := http.Get(st.ts.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return resp.StatusCode, out
}

func (st *testStack) ingest(t *testing.T, req models.IngestRequest) models.IngestResponse {
	t.Helper()
	code, body := st.post(t, "/api/v1/ingest", req)
	if code != http.StatusOK {
		t.Fatalf("ingest %s: status %d, body %s", req.ID, code, body)
	}
	var out models.IngestResponse
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatal(err)
	}
	return out
}

func (st *testStack) query(t *testing.T, embedding []float32, topK int) models.QueryResponse {
	t.Helper()
	code, body := st.post(t, "/api/v1/query", models.QueryRequest{Embedding: embedding, TopK: &topK})
	if code != http.StatusOK {
		t.Fatalf("query: status %d, body %s", code, body)
	}
	var out models.QueryResponse
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatal(err)
	}
	return out
}

func errorCode(t *testing.T, body []byte) string {
	t.Helper()
	var out struct {
		Error string `json:"error"`
		Code  string `json:"code"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("error body is not JSON: %s", body)
	}
	return out.Code
}

func singleChunkDoc(id string, embedding []float32) models.IngestRequest {
	return models.IngestRequest{
		ID:     id,
		Chunks: []models.Chunk{{ChunkIndex: 0, Text: id + " body", Embedding: embedding}},
	}
}

func intPtr(n int) *int {
	return &n
}

func TestE2E_CorpusRanking(t *testing.T) {
	st := startStack(t, t.TempDir())
	corpus := BuildCorpus(40)

	for _, req := range corpus.ToIngestRequests() {
		resp := st.ingest(t, req)
		if resp.ChunksIngested < 1 {
			t.Fatalf("doc %s: ingested %d chunks", req.ID, resp.ChunksIngested)
		}
	}

	code, body := st.get(t, "/api/v1/status")
	if code != http.StatusOK {
		t.Fatalf("status: %d %s", code, body)
	}
	var stats models.EngineStats
	if err := json.Unmarshal(body, &stats); err != nil {
		t.Fatal(err)
	}
	if stats.Documents != len(corpus.Documents) {
		t.Errorf("documents = %d, want %d", stats.Documents, len(corpus.Documents))
	}
	if stats.Chunks != corpus.TotalChunks() || stats.IndexedVectors != corpus.TotalChunks() {
		t.Errorf("chunks/vectors = %d/%d, want %d", stats.Chunks, stats.IndexedVectors, corpus.TotalChunks())
	}

	for _, tc := range corpus.Cases {
		t.Run(tc.Description, func(t *testing.T) {
			resp := st.query(t, tc.Embedding, 5)
			if len(resp.Sources) == 0 {
				t.Fatal("no results")
			}
			if resp.Sources[0].DocID != tc.ExpectedDocID {
				t.Errorf("rank 1 = %s, want %s", resp.Sources[0].DocID, tc.ExpectedDocID)
			}
			seen := make(map[string]bool)
			for i, src := range resp.Sources {
				if seen[src.DocID] {
					t.Errorf("doc %s appears twice in results", src.DocID)
				}
				seen[src.DocID] = true
				if i > 0 && src.Score > resp.Sources[i-1].Score {
					t.Errorf("scores not descending at rank %d", i+1)
				}
			}
		})
	}
}

func TestE2E_MetadataRoundTrip(t *testing.T) {
	st := startStack(t, t.TempDir())

	st.ingest(t, models.IngestRequest{
		ID:       "mail-1",
		Metadata: map[string]interface{}{"from": "ops@example.com", "subject": "maintenance window"},
		Chunks:   []models.Chunk{{ChunkIndex: 0, Text: "the cluster goes down at noon", Embedding: []float32{1, 0, 0, 0}}},
	})

	resp := st.query(t, []float32{1, 0, 0, 0}, 1)
	if len(resp.Sources) != 1 {
		t.Fatalf("sources: got %d, want 1", len(resp.Sources))
	}
	src := resp.Sources[0]
	if src.DocID != "mail-1" || src.Text != "the cluster goes down at noon" {
		t.Errorf("source = %+v", src)
	}
	if src.Metadata["from"] != "ops@example.com" || src.Metadata["subject"] != "maintenance window" {
		t.Errorf("metadata = %v, want the ingested map", src.Metadata)
	}
}

func TestE2E_ReingestReplacesDocument(t *testing.T) {
	st := startStack(t, t.TempDir())

	st.ingest(t, models.IngestRequest{
		ID: "doc",
		Chunks: []models.Chunk{
			{ChunkIndex: 0, Text: "old 0", Embedding: []float32{1, 0, 0, 0}},
			{ChunkIndex: 1, Text: "old 1", Embedding: []float32{0, 1, 0, 0}},
			{ChunkIndex: 2, Text: "old 2", Embedding: []float32{0, 0, 1, 0}},
		},
	})
	out := st.ingest(t, models.IngestRequest{
		ID: "doc",
		Chunks: []models.Chunk{
			{ChunkIndex: 0, Text: "new 0", Embedding: []float32{0, 0, 0, 1}},
		},
	})
	if out.ChunksIngested != 1 {
		t.Errorf("re-ingest: got %d chunks, want 1", out.ChunksIngested)
	}

	code, body := st.get(t, "/api/v1/status")
	if code != http.StatusOK {
		t.Fatalf("status: %d", code)
	}
	var stats models.EngineStats
	if err := json.Unmarshal(body, &stats); err != nil {
		t.Fatal(err)
	}
	if stats.Documents != 1 || stats.Chunks != 1 || stats.IndexedVectors != 1 {
		t.Errorf("stats after replace = %+v, want exactly the new generation", stats)
	}

	resp := st.query(t, []float32{1, 0, 0, 0}, 5)
	for _, src := range resp.Sources {
		if src.Text == "old 0" || src.Text == "old 1" || src.Text == "old 2" {
			t.Errorf("stale chunk %q still retrievable", src.Text)
		}
	}
}

func TestE2E_ReingestSoleDocument(t *testing.T) {
	st := startStack(t, t.TempDir())

	st.ingest(t, singleChunkDoc("only", []float32{1, 0, 0, 0}))
	out := st.ingest(t, singleChunkDoc("only", []float32{0, 1, 0, 0}))
	if out.ChunksIngested != 1 {
		t.Fatalf("re-ingest of sole document: got %+v", out)
	}

	resp := st.query(t, []float32{0, 1, 0, 0}, 1)
	if len(resp.Sources) != 1 || resp.Sources[0].DocID != "only" {
		t.Errorf("sources = %+v, want the replaced sole document", resp.Sources)
	}
}

func TestE2E_DeleteLifecycle(t *testing.T) {
	st := startStack(t, t.TempDir())

	st.ingest(t, singleChunkDoc("keep", []float32{1, 0, 0, 0}))
	st.ingest(t, models.IngestRequest{
		ID: "drop",
		Chunks: []models.Chunk{
			{ChunkIndex: 0, Text: "a", Embedding: []float32{0, 1, 0, 0}},
			{ChunkIndex: 1, Text: "b", Embedding: []float32{0, 0, 1, 0}},
		},
	})

	code, body := st.post(t, "/api/v1/delete", models.DeleteRequest{ID: "drop"})
	if code != http.StatusOK {
		t.Fatalf("delete: %d %s", code, body)
	}
	var del models.DeleteResponse
	if err := json.Unmarshal(body, &del); err != nil {
		t.Fatal(err)
	}
	if del.ChunksDeleted != 2 {
		t.Errorf("chunks_deleted = %d, want 2", del.ChunksDeleted)
	}

	// Idempotent second delete.
	code, body = st.post(t, "/api/v1/delete", models.DeleteRequest{ID: "drop"})
	if code != http.StatusOK {
		t.Fatalf("second delete: %d", code)
	}
	if err := json.Unmarshal(body, &del); err != nil {
		t.Fatal(err)
	}
	if del.ChunksDeleted != 0 {
		t.Errorf("second delete: chunks_deleted = %d, want 0", del.ChunksDeleted)
	}

	resp := st.query(t, []float32{0, 1, 0, 0}, 5)
	for _, src := range resp.Sources {
		if src.DocID == "drop" {
			t.Error("deleted document still retrievable")
		}
	}
}

func TestE2E_DimensionMismatch(t *testing.T) {
	st := startStack(t, t.TempDir())
	st.ingest(t, singleChunkDoc("first", []float32{1, 0, 0, 0}))

	code, body := st.post(t, "/api/v1/ingest", singleChunkDoc("second", []float32{1, 0}))
	if code != http.StatusInternalServerError {
		t.Errorf("mismatched ingest: status %d, want 500", code)
	}
	if got := errorCode(t, body); got != "consistency" {
		t.Errorf("mismatched ingest: code %q, want consistency", got)
	}

	code, body = st.post(t, "/api/v1/query", models.QueryRequest{Embedding: []float32{1, 0}, TopK: intPtr(3)})
	if code != http.StatusInternalServerError {
		t.Errorf("mismatched query: status %d, want 500", code)
	}
	if got := errorCode(t, body); got != "consistency" {
		t.Errorf("mismatched query: code %q, want consistency", got)
	}
}

func TestE2E_EmptyIndexAndValidation(t *testing.T) {
	st := startStack(t, t.TempDir())

	code, body := st.post(t, "/api/v1/query", models.QueryRequest{Embedding: []float32{1, 0, 0, 0}, TopK: intPtr(3)})
	if code != http.StatusBadRequest || errorCode(t, body) != "empty_index" {
		t.Errorf("empty-index query: %d %s", code, body)
	}

	code, body = st.post(t, "/api/v1/ingest", models.IngestRequest{
		Chunks: []models.Chunk{{ChunkIndex: 0, Text: "t", Embedding: []float32{1}}},
	})
	if code != http.StatusBadRequest || errorCode(t, body) != "validation" {
		t.Errorf("missing doc id: %d %s", code, body)
	}

	st.ingest(t, singleChunkDoc("doc", []float32{1, 0, 0, 0}))
	code, body = st.post(t, "/api/v1/query", models.QueryRequest{Embedding: []float32{1, 0, 0, 0}, TopK: intPtr(engine.MaxTopK + 1)})
	if code != http.StatusBadRequest || errorCode(t, body) != "validation" {
		t.Errorf("top_k out of range: %d %s", code, body)
	}

	// An explicit zero is out of range, not a request for the default.
	code, body = st.post(t, "/api/v1/query", json.RawMessage(`{"embedding": [1, 0, 0, 0], "top_k": 0}`))
	if code != http.StatusBadRequest || errorCode(t, body) != "validation" {
		t.Errorf("explicit zero top_k: %d %s", code, body)
	}
}

func TestE2E_ResetLifecycle(t *testing.T) {
	st := startStack(t, t.TempDir())
	st.ingest(t, singleChunkDoc("doc", []float32{1, 0, 0, 0}))

	code, body := st.post(t, "/api/v1/reset", struct{}{})
	if code != http.StatusOK {
		t.Fatalf("reset: %d %s", code, body)
	}

	code, body = st.get(t, "/health")
	if code != http.StatusOK {
		t.Fatalf("health: %d", code)
	}
	var h models.Health
	if err := json.Unmarshal(body, &h); err != nil {
		t.Fatal(err)
	}
	if h.IndexLoaded || h.Dim != nil {
		t.Errorf("health after reset = %+v, want unloaded and dimensionless", h)
	}

	code, body = st.post(t, "/api/v1/query", models.QueryRequest{Embedding: []float32{1, 0, 0, 0}, TopK: intPtr(3)})
	if code != http.StatusBadRequest || errorCode(t, body) != "empty_index" {
		t.Errorf("query after reset: %d %s", code, body)
	}

	// The dimension is free again: a different width is accepted.
	out := st.ingest(t, singleChunkDoc("wide", []float32{1, 0, 0, 0, 0, 0}))
	if out.ChunksIngested != 1 {
		t.Errorf("ingest after reset: %+v", out)
	}
}

func TestE2E_RestartKeepsCorpus(t *testing.T) {
	dir := t.TempDir()
	corpus := BuildCorpus(15)

	st := startStack(t, dir)
	for _, req := range corpus.ToIngestRequests() {
		st.ingest(t, req)
	}
	firstRun := st.query(t, corpus.Cases[0].Embedding, 5)
	st.stop()

	st2 := startStack(t, dir)
	secondRun := st2.query(t, corpus.Cases[0].Embedding, 5)

	if len(firstRun.Sources) != len(secondRun.Sources) {
		t.Fatalf("result count changed across restart: %d vs %d", len(firstRun.Sources), len(secondRun.Sources))
	}
	for i := range firstRun.Sources {
		a, b := firstRun.Sources[i], secondRun.Sources[i]
		if a.ChunkID != b.ChunkID || a.DocID != b.DocID || a.Score != b.Score {
			t.Errorf("rank %d differs across restart: %+v vs %+v", i+1, a, b)
		}
	}

	code, body := st2.get(t, "/health")
	if code != http.StatusOK {
		t.Fatalf("health: %d", code)
	}
	var h models.Health
	if err := json.Unmarshal(body, &h); err != nil {
		t.Fatal(err)
	}
	if !h.IndexLoaded || h.Dim == nil || *h.Dim != corpusDim {
		t.Errorf("health after restart = %+v, want loaded dim %d", h, corpusDim)
	}
}

func TestE2E_HealthBeforeAndAfterIngest(t *testing.T) {
	st := startStack(t, t.TempDir())

	code, body := st.get(t, "/health")
	if code != http.StatusOK {
		t.Fatalf("health: %d", code)
	}
	var h models.Health
	if err := json.Unmarshal(body, &h); err != nil {
		t.Fatal(err)
	}
	if h.Status != "ok" || h.IndexLoaded || h.Dim != nil || h.DataDir == "" {
		t.Errorf("fresh health = %+v", h)
	}

	st.ingest(t, singleChunkDoc("doc", []float32{1, 0, 0, 0}))
	_, body = st.get(t, "/health")
	if err := json.Unmarshal(body, &h); err != nil {
		t.Fatal(err)
	}
	if !h.IndexLoaded || h.Dim == nil || *h.Dim != 4 {
		t.Errorf("health after ingest = %+v, want loaded dim 4", h)
	}
}

func TestE2E_TopKBound(t *testing.T) {
	st := startStack(t, t.TempDir())
	for i := 0; i < 6; i++ {
		st.ingest(t, singleChunkDoc(fmt.Sprintf("doc-%d", i), []float32{1, float32(i) * 0.05, 0, 0}))
	}

	resp := st.query(t, []float32{1, 0, 0, 0}, 4)
	if len(resp.Sources) != 4 {
		t.Errorf("top_k=4: got %d sources", len(resp.Sources))
	}
	resp = st.query(t, []float32{1, 0, 0, 0}, 50)
	if len(resp.Sources) != 6 {
		t.Errorf("top_k=50 with 6 docs: got %d sources", len(resp.Sources))
	}
}

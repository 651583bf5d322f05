// Package engine implements the persistent similarity-search core: an
// embedding-chunk store with document-granular idempotent ingest,
// deduplicated nearest-neighbor retrieval, and crash-safe persistence
// of its two stores (SQLite chunk rows + vector index snapshot).
package engine

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/okibi/tansa/internal/models"
	"github.com/okibi/tansa/internal/persist"
	"github.com/okibi/tansa/internal/ranking"
	"github.com/okibi/tansa/internal/storage"
	"github.com/okibi/tansa/internal/vector"
	"github.com/okibi/tansa/pkg/utils"
)

// MaxTopK bounds how many results a query may request.
const MaxTopK = 50

// File names inside the data directory.
const (
	DBFileName       = "chunks.db"
	SnapshotFileName = "chunks.vec"
	SidecarFileName  = "meta.json"
)

// Engine owns a data directory holding the metadata store, the index
// snapshot, and the dimension sidecar. One mutex serializes every
// operation, including queries; callers experience contention as queued
// lock acquisition, never rejection.
type Engine struct {
	dataDir      string
	dbPath       string
	snapshotPath string
	sidecarPath  string

	mu    sync.Mutex
	store *storage.SQLiteStore
	state indexState
	ready bool

	logger *zap.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger. The default is a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// Open creates the data directory if needed, opens the metadata store,
// and runs startup recovery: load the index snapshot if present (the
// dimension comes from its header), else fall back to the sidecar's
// recorded dimension, else start dimensionless.
func Open(dataDir string, opts ...Option) (*Engine, error) {
	if dataDir == "" {
		return nil, fmt.Errorf("data directory is required")
	}
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	e := &Engine{
		dataDir:      dataDir,
		dbPath:       filepath.Join(dataDir, DBFileName),
		snapshotPath: filepath.Join(dataDir, SnapshotFileName),
		sidecarPath:  filepath.Join(dataDir, SidecarFileName),
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}

	store, err := storage.NewSQLiteStore(e.dbPath)
	if err != nil {
		return nil, err
	}
	e.store = store

	if err := e.recoverState(); err != nil {
		_ = store.Close()
		return nil, err
	}
	e.ready = true
	return e, nil
}

// recoverState walks the recovery ladder: snapshot, then sidecar, then
// dimensionless. A corrupt snapshot fails Open; a corrupt sidecar is
// logged and skipped, since the next ingest re-fixes the dimension.
func (e *Engine) recoverState() error {
	idx, err := vector.Load(e.snapshotPath)
	switch {
	case err == nil:
		if idx.Count() > 0 {
			e.state.toPopulated(idx)
		} else {
			e.state.toEmpty(idx.Dim())
		}
		e.logger.Info("loaded index snapshot",
			zap.Int("vectors", idx.Count()), zap.Int("dim", idx.Dim()))
		return nil
	case errors.Is(err, fs.ErrNotExist):
	default:
		return fmt.Errorf("failed to load index snapshot: %w", err)
	}

	dim, ok, err := persist.LoadDim(e.sidecarPath)
	if err != nil {
		e.logger.Warn("ignoring unreadable dimension sidecar", zap.Error(err))
	}
	if ok {
		e.state.toEmpty(dim)
		e.logger.Info("recovered dimension from sidecar", zap.Int("dim", dim))
	} else {
		e.state.toUninitialized()
	}
	return nil
}

// DataDir returns the directory the engine owns.
func (e *Engine) DataDir() string {
	return e.dataDir
}

// Ingest replaces docID's chunk set with the given chunks. The first
// ingest ever fixes the engine's dimension. Returns the number of chunks
// stored; an empty chunk list is a no-op success.
func (e *Engine) Ingest(ctx context.Context, req models.IngestRequest) (int, error) {
	if req.ID == "" {
		return 0, &ValidationError{Reason: "doc id is required"}
	}
	if len(req.Chunks) == 0 {
		return 0, nil
	}
	normalized := make([][]float32, len(req.Chunks))
	for i, c := range req.Chunks {
		if len(c.Embedding) == 0 {
			return 0, &ValidationError{Reason: "chunk embeddings must be non-empty"}
		}
		normalized[i] = utils.Normalized(c.Embedding)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.ready {
		return 0, ErrNotReady
	}

	targetDim := e.state.dim
	if e.state.phase == PhaseUninitialized {
		targetDim = len(normalized[0])
	}
	for _, v := range normalized {
		if len(v) != targetDim {
			return 0, &ConsistencyError{Expected: targetDim, Got: len(v)}
		}
	}
	if e.state.phase == PhaseUninitialized {
		if err := persist.SaveDim(e.sidecarPath, targetDim); err != nil {
			return 0, fmt.Errorf("failed to persist dimension sidecar: %w", err)
		}
		e.state.toEmpty(targetDim)
		e.logger.Info("dimension fixed", zap.Int("dim", targetDim))
	}

	if err := e.replaceExisting(ctx, req.ID); err != nil {
		return 0, err
	}

	idx := e.state.idx
	if e.state.phase != PhasePopulated {
		var err error
		idx, err = vector.NewFlatIndex(e.state.dim)
		if err != nil {
			return 0, err
		}
	}

	ids, err := e.store.InsertChunks(ctx, req.ID, req.Metadata, req.Chunks)
	if err != nil {
		return 0, fmt.Errorf("failed to store chunks: %w", err)
	}
	if err := idx.Add(ctx, ids, normalized); err != nil {
		return 0, fmt.Errorf("failed to index vectors: %w", err)
	}
	e.state.toPopulated(idx)
	if err := idx.Save(e.snapshotPath); err != nil {
		return 0, fmt.Errorf("failed to persist index snapshot: %w", err)
	}
	e.logger.Debug("document ingested",
		zap.String("doc_id", req.ID), zap.Int("chunks", len(ids)), zap.Int("dim", targetDim))
	return len(req.Chunks), nil
}

// replaceExisting deletes docID's prior generation from both stores.
// Stale vectors must never coexist with the new generation, so this runs
// before any insert.
func (e *Engine) replaceExisting(ctx context.Context, docID string) error {
	existing, err := e.store.ChunkIDs(ctx, docID)
	if err != nil {
		return fmt.Errorf("failed to look up existing chunks: %w", err)
	}
	if len(existing) == 0 {
		return nil
	}
	if _, err := e.store.DeleteDocument(ctx, docID); err != nil {
		return fmt.Errorf("failed to delete previous generation: %w", err)
	}
	if e.state.phase != PhasePopulated {
		return nil
	}
	if err := e.state.idx.Remove(ctx, existing); err != nil {
		return fmt.Errorf("failed to remove previous vectors: %w", err)
	}
	if e.state.idx.Count() == 0 {
		// Drained mid-replace. Drop the index and its snapshot but keep
		// the committed dimension: the incoming batch was already
		// validated against it and re-fixes it on insert.
		if err := persist.RemoveIfExists(e.snapshotPath); err != nil {
			return fmt.Errorf("failed to remove index snapshot: %w", err)
		}
		e.state.toEmpty(e.state.dim)
		e.logger.Debug("index drained during replace", zap.String("doc_id", docID))
		return nil
	}
	if err := e.state.idx.Save(e.snapshotPath); err != nil {
		return fmt.Errorf("failed to persist index snapshot: %w", err)
	}
	e.logger.Debug("replaced prior generation",
		zap.String("doc_id", docID), zap.Int("chunks", len(existing)))
	return nil
}

// Query returns up to topK chunks nearest to embedding, one per document,
// sorted by score descending. topK must be in [1, MaxTopK].
func (e *Engine) Query(ctx context.Context, embedding []float32, topK int) ([]models.SourceChunk, error) {
	if len(embedding) == 0 {
		return nil, &ValidationError{Reason: "query embedding must be non-empty"}
	}
	if topK < 1 || topK > MaxTopK {
		return nil, &ValidationError{Reason: fmt.Sprintf("top_k must be between 1 and %d", MaxTopK)}
	}
	query := utils.Normalized(embedding)

	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.ready {
		return nil, ErrNotReady
	}
	if e.state.phase != PhasePopulated {
		return nil, ErrEmptyIndex
	}
	if len(query) != e.state.dim {
		return nil, &ConsistencyError{Expected: e.state.dim, Got: len(query)}
	}

	hits, err := e.state.idx.Search(ctx, query, topK)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}
	sources := make([]models.SourceChunk, 0, len(hits))
	for _, h := range hits {
		chunk, err := e.store.GetChunk(ctx, h.ID)
		if errors.Is(err, storage.ErrNotFound) {
			e.logger.Warn("indexed chunk missing from store", zap.Int64("chunk_id", h.ID))
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to hydrate chunk %d: %w", h.ID, err)
		}
		sources = append(sources, models.SourceChunk{
			ChunkID:  chunk.ID,
			DocID:    chunk.DocID,
			Text:     chunk.Text,
			Metadata: chunk.Metadata,
			Score:    h.Score,
		})
	}
	return ranking.RankTop(ranking.DedupeByDoc(sources), topK), nil
}

// Delete removes every chunk belonging to docID from both stores.
// Deleting an unknown docID returns 0 with no error.
func (e *Engine) Delete(ctx context.Context, docID string) (int, error) {
	if docID == "" {
		return 0, &ValidationError{Reason: "doc id is required"}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.ready {
		return 0, ErrNotReady
	}

	ids, err := e.store.ChunkIDs(ctx, docID)
	if err != nil {
		return 0, fmt.Errorf("failed to look up chunks: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}
	if _, err := e.store.DeleteDocument(ctx, docID); err != nil {
		return 0, fmt.Errorf("failed to delete chunks: %w", err)
	}
	if e.state.phase == PhasePopulated {
		if err := e.state.idx.Remove(ctx, ids); err != nil {
			return 0, fmt.Errorf("failed to remove vectors: %w", err)
		}
		if e.state.idx.Count() == 0 {
			if err := e.collapse(); err != nil {
				return 0, err
			}
		} else if err := e.state.idx.Save(e.snapshotPath); err != nil {
			return 0, fmt.Errorf("failed to persist index snapshot: %w", err)
		}
	}
	e.logger.Debug("document deleted",
		zap.String("doc_id", docID), zap.Int("chunks", len(ids)))
	return len(ids), nil
}

// collapse tears down index and dimension state after the last vector
// goes, freeing the dimension for redefinition by the next ingest.
func (e *Engine) collapse() error {
	if err := persist.RemoveIfExists(e.snapshotPath); err != nil {
		return fmt.Errorf("failed to remove index snapshot: %w", err)
	}
	if err := persist.RemoveIfExists(e.sidecarPath); err != nil {
		return fmt.Errorf("failed to remove dimension sidecar: %w", err)
	}
	e.state.toUninitialized()
	e.logger.Info("index collapsed to uninitialized")
	return nil
}

// Reset unconditionally destroys all persisted state and reinitializes
// empty. A partial reset (after an I/O failure) is repaired by retrying.
func (e *Engine) Reset(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.ready {
		return ErrNotReady
	}

	if err := e.store.Close(); err != nil {
		return fmt.Errorf("failed to close store: %w", err)
	}
	if err := storage.Remove(e.dbPath); err != nil {
		return fmt.Errorf("failed to remove database: %w", err)
	}
	if err := persist.RemoveIfExists(e.snapshotPath); err != nil {
		return fmt.Errorf("failed to remove index snapshot: %w", err)
	}
	if err := persist.RemoveIfExists(e.sidecarPath); err != nil {
		return fmt.Errorf("failed to remove dimension sidecar: %w", err)
	}

	store, err := storage.NewSQLiteStore(e.dbPath)
	if err != nil {
		e.ready = false
		return fmt.Errorf("failed to reopen store: %w", err)
	}
	e.store = store
	e.state.toUninitialized()
	e.logger.Info("engine reset", zap.String("data_dir", e.dataDir))
	return nil
}

// Health reports the engine's diagnostic state. Dim is nil until the
// first ingest (or recovery) fixes the dimension. Status degrades to
// not_ready after Close or a failed Reset.
func (e *Engine) Health() models.Health {
	e.mu.Lock()
	defer e.mu.Unlock()
	h := models.Health{
		Status:      "ok",
		IndexLoaded: e.state.phase == PhasePopulated,
		DataDir:     e.dataDir,
	}
	if !e.ready {
		h.Status = "not_ready"
	}
	if e.state.phase != PhaseUninitialized {
		dim := e.state.dim
		h.Dim = &dim
	}
	return h
}

// Stats returns diagnostic counters for the status surface.
func (e *Engine) Stats(ctx context.Context) (models.EngineStats, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.ready {
		return models.EngineStats{}, ErrNotReady
	}

	docs, err := e.store.CountDocuments(ctx)
	if err != nil {
		return models.EngineStats{}, fmt.Errorf("failed to count documents: %w", err)
	}
	chunks, err := e.store.CountChunks(ctx)
	if err != nil {
		return models.EngineStats{}, fmt.Errorf("failed to count chunks: %w", err)
	}
	disk, err := storage.DiskUsageBytes(e.dbPath, e.snapshotPath, e.sidecarPath)
	if err != nil {
		return models.EngineStats{}, fmt.Errorf("failed to measure disk usage: %w", err)
	}

	stats := models.EngineStats{
		Documents: int(docs),
		Chunks:    int(chunks),
		DiskBytes: disk,
	}
	if e.state.phase == PhasePopulated {
		stats.IndexedVectors = e.state.idx.Count()
	}
	if e.state.phase != PhaseUninitialized {
		dim := e.state.dim
		stats.Dim = &dim
	}
	return stats, nil
}

// Close releases the metadata store. Later operations return ErrNotReady.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.ready {
		return nil
	}
	e.ready = false
	return e.store.Close()
}

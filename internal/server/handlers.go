package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/okibi/tansa/internal/engine"
	"github.com/okibi/tansa/internal/models"
)

// Error codes carried in error response bodies alongside the message.
const (
	codeBadRequest  = "bad_request"
	codeValidation  = "validation"
	codeConsistency = "consistency"
	codeEmptyIndex  = "empty_index"
	codeNotReady    = "not_ready"
	codeInternal    = "internal"
)

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req models.IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body", codeBadRequest)
		return
	}
	s.logger.Debug("ingest request", zap.String("doc_id", req.ID), zap.Int("chunks", len(req.Chunks)))
	n, err := s.engine.Ingest(r.Context(), req)
	if err != nil {
		s.respondEngineError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, models.IngestResponse{Status: "ok", ChunksIngested: n})
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req models.QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body", codeBadRequest)
		return
	}
	topK := s.config.Search.DefaultTopK
	if req.TopK != nil {
		topK = *req.TopK
	}
	s.logger.Debug("query request", zap.Int("dim", len(req.Embedding)), zap.Int("top_k", topK))
	sources, err := s.engine.Query(r.Context(), req.Embedding, topK)
	if err != nil {
		s.respondEngineError(w, err)
		return
	}
	if sources == nil {
		sources = []models.SourceChunk{}
	}
	s.respondJSON(w, http.StatusOK, models.QueryResponse{Sources: sources})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	var req models.DeleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body", codeBadRequest)
		return
	}
	s.logger.Debug("delete request", zap.String("doc_id", req.ID))
	n, err := s.engine.Delete(r.Context(), req.ID)
	if err != nil {
		s.respondEngineError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, models.DeleteResponse{Status: "ok", ChunksDeleted: n})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	s.logger.Debug("reset request")
	if err := s.engine.Reset(r.Context()); err != nil {
		s.respondEngineError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, models.ResetResponse{Status: "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	stats, err := s.engine.Stats(r.Context())
	if err != nil {
		s.respondEngineError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, stats)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	h := s.engine.Health()
	if h.Status != "ok" {
		s.respondJSON(w, http.StatusServiceUnavailable, h)
		return
	}
	s.respondJSON(w, http.StatusOK, h)
}

// respondEngineError maps engine errors onto the HTTP error taxonomy.
// Dimension mismatches are server-side consistency violations, not
// caller mistakes, and surface as 500.
func (s *Server) respondEngineError(w http.ResponseWriter, err error) {
	var verr *engine.ValidationError
	var cerr *engine.ConsistencyError
	switch {
	case errors.As(err, &verr):
		s.respondError(w, http.StatusBadRequest, verr.Reason, codeValidation)
	case errors.As(err, &cerr):
		s.logger.Error("consistency violation", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, cerr.Error(), codeConsistency)
	case errors.Is(err, engine.ErrEmptyIndex):
		s.respondError(w, http.StatusBadRequest, "index is empty, ingest documents first", codeEmptyIndex)
	case errors.Is(err, engine.ErrNotReady):
		s.respondError(w, http.StatusServiceUnavailable, "engine is not ready", codeNotReady)
	default:
		s.logger.Error("request failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error(), codeInternal)
	}
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message, code string) {
	s.respondJSON(w, status, map[string]string{"error": message, "code": code})
}

package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hyperjump/contentdb/internal/composite"
	"github.com/hyperjump/contentdb/internal/models"
	"github.com/hyperjump/contentdb/internal/storage"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.db.Status(r.Context())
	if err != nil {
		s.fail(w, "status", err)
		return
	}
	s.respondJSON(w, http.StatusOK, status)
}

func (s *Server) handleMatrix(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, s.db.Info())
}

func (s *Server) handleRow(w http.ResponseWriter, r *http.Request) {
	id, ok := s.intParam(w, r, "id")
	if !ok {
		return
	}
	row, err := s.db.Row(r.Context(), id)
	if err != nil {
		s.fail(w, "row", err)
		return
	}
	s.respondJSON(w, http.StatusOK, row)
}

func (s *Server) handleCell(w http.ResponseWriter, r *http.Request) {
	row, ok := s.intParam(w, r, "row")
	if !ok {
		return
	}
	col, ok := s.intParam(w, r, "col")
	if !ok {
		return
	}
	cell, err := s.db.Cell(r.Context(), row, col)
	if err != nil {
		s.fail(w, "cell", err)
		return
	}
	s.respondJSON(w, http.StatusOK, cell)
}

func (s *Server) handleColumn(w http.ResponseWriter, r *http.Request) {
	col, ok := s.intParam(w, r, "col")
	if !ok {
		return
	}
	resp, err := s.db.Column(r.Context(), col)
	if err != nil {
		s.fail(w, "column", err)
		return
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSetContent(w http.ResponseWriter, r *http.Request) {
	var input models.EntityInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.logger.Debug("set content request", zap.Int("id", input.ID), zap.String("source", input.Source))
	e, err := s.db.SetContent(r.Context(), &input)
	if err != nil {
		s.fail(w, "set content", err)
		return
	}
	s.respondJSON(w, http.StatusCreated, e)
}

func (s *Server) handleGetEntity(w http.ResponseWriter, r *http.Request) {
	id, ok := s.intParam(w, r, "id")
	if !ok {
		return
	}
	e, err := s.db.Get(r.Context(), id)
	if err != nil {
		s.fail(w, "get entity", err)
		return
	}
	s.respondJSON(w, http.StatusOK, e)
}

func (s *Server) handleDeleteEntity(w http.ResponseWriter, r *http.Request) {
	id, ok := s.intParam(w, r, "id")
	if !ok {
		return
	}
	s.logger.Debug("delete entity request", zap.Int("id", id))
	if err := s.db.Delete(r.Context(), id); err != nil {
		s.fail(w, "delete entity", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleCandidates(w http.ResponseWriter, r *http.Request) {
	var query models.CandidateQuery
	if err := json.NewDecoder(r.Body).Decode(&query); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	resp, err := s.db.Candidates(r.Context(), &query)
	if err != nil {
		s.fail(w, "candidates", err)
		return
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSimilar(w http.ResponseWriter, r *http.Request) {
	id, ok := s.intParam(w, r, "id")
	if !ok {
		return
	}
	limit, ok := s.limit(w, r)
	if !ok {
		return
	}
	resp, err := s.db.Similar(r.Context(), id, limit)
	if err != nil {
		s.fail(w, "similar", err)
		return
	}
	s.respondJSON(w, http.StatusOK, resp)
}

// handleRecommend ranks by row similarity. The optional q parameter restricts the
// candidates with a query-string query.
func (s *Server) handleRecommend(w http.ResponseWriter, r *http.Request) {
	id, ok := s.intParam(w, r, "id")
	if !ok {
		return
	}
	limit, ok := s.limit(w, r)
	if !ok {
		return
	}
	var q *models.CandidateQuery
	if text := r.URL.Query().Get("q"); text != "" {
		q = &models.CandidateQuery{Query: text}
	}
	resp, err := s.db.Recommend(r.Context(), id, q, limit)
	if err != nil {
		s.fail(w, "recommend", err)
		return
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRebuild(w http.ResponseWriter, r *http.Request) {
	n, err := s.db.Rebuild(r.Context())
	if err != nil {
		s.fail(w, "rebuild", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"entities": n, "matrix": s.db.Info()})
}

func (s *Server) handleWatchDirectories(w http.ResponseWriter, r *http.Request) {
	if s.watch == nil {
		s.respondError(w, http.StatusNotImplemented, "watch not enabled")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"directories": s.watch.Roots()})
}

func (s *Server) intParam(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	v, err := strconv.Atoi(chi.URLParam(r, name))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid %s", name))
		return 0, false
	}
	return v, true
}

// limit reads the optional limit query parameter; 0 means the configured default.
func (s *Server) limit(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		s.respondError(w, http.StatusBadRequest, "invalid limit")
		return 0, false
	}
	return v, true
}

// statusFor maps database errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrInvalid), errors.Is(err, composite.ErrCardinalityMismatch):
		return http.StatusBadRequest
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, composite.ErrOutOfRange):
		return http.StatusNotFound
	case errors.Is(err, composite.ErrUnsupported):
		return http.StatusNotImplemented
	case errors.Is(err, composite.ErrRetrieval):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(w http.ResponseWriter, op string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error(op+" failed", zap.Error(err))
	} else {
		s.logger.Debug(op+" rejected", zap.Error(err))
	}
	s.respondError(w, status, err.Error())
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}

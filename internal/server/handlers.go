package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hyperjump/clipsearch/internal/config"
	"github.com/hyperjump/clipsearch/internal/indexer"
	"github.com/hyperjump/clipsearch/internal/model"
	"github.com/hyperjump/clipsearch/internal/models"
	"github.com/hyperjump/clipsearch/internal/search"
	"github.com/hyperjump/clipsearch/internal/status"
	"github.com/hyperjump/clipsearch/internal/storage"
	"go.uber.org/zap"
)

// statusResponse is the status record plus the model lifecycle state.
type statusResponse struct {
	status.Snapshot
	ModelState string `json:"model_state"`
}

type enabledRequest struct {
	Enabled *bool `json:"enabled"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap, err := s.semantic.Status(r.Context())
	if err != nil {
		s.logger.Error("status failed", zap.Error(err))
		s.respondFailure(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, statusResponse{
		Snapshot:   snap,
		ModelState: s.semantic.ModelState().String(),
	})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var query models.SearchQuery
	if err := json.NewDecoder(r.Body).Decode(&query); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}
	if err := query.Validate(); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	s.logger.Debug("search request", zap.String("query", query.Query), zap.Int("limit", query.Limit))
	start := time.Now()
	results, err := s.semantic.Search(r.Context(), query.Query, query.Limit)
	if err != nil {
		s.respondFailure(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, &models.SearchResponse{
		Query:   query.Query,
		Results: results,
		Total:   len(results),
		TookMs:  time.Since(start).Milliseconds(),
	})
}

func (s *Server) handleSetEnabled(w http.ResponseWriter, r *http.Request) {
	var req enabledRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Enabled == nil {
		s.respondError(w, http.StatusBadRequest, "invalid_request", "enabled is required")
		return
	}
	if err := s.semantic.SetEnabled(r.Context(), *req.Enabled); err != nil {
		s.logger.Error("set enabled failed", zap.Error(err))
		s.respondFailure(w, err)
		return
	}
	if s.configPath != "" && s.settings != nil {
		s.settingsMu.Lock()
		s.settings.Semantic.Enabled = *req.Enabled
		err := config.Save(s.configPath, s.settings)
		s.settingsMu.Unlock()
		if err != nil {
			s.logger.Warn("failed to persist settings", zap.Error(err))
		}
	}
	s.respondJSON(w, http.StatusOK, map[string]bool{"enabled": *req.Enabled})
}

func (s *Server) handleDownloadStart(w http.ResponseWriter, r *http.Request) {
	if err := s.semantic.StartDownload(); err != nil {
		s.respondFailure(w, err)
		return
	}
	s.respondJSON(w, http.StatusAccepted, map[string]string{"status": "downloading"})
}

func (s *Server) handleDownloadCancel(w http.ResponseWriter, r *http.Request) {
	s.semantic.CancelDownload()
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

func (s *Server) handleDownloadManual(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, s.semantic.ManualDownloadInfo())
}

func (s *Server) handleRebuild(w http.ResponseWriter, r *http.Request) {
	n, err := s.semantic.Rebuild(r.Context())
	if err != nil {
		s.logger.Error("rebuild failed", zap.Error(err))
		s.respondFailure(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]int{"loaded": n})
}

func (s *Server) handleFullRebuild(w http.ResponseWriter, r *http.Request) {
	n, err := s.semantic.FullRebuild(r.Context())
	if err != nil {
		s.respondFailure(w, err)
		return
	}
	s.respondJSON(w, http.StatusAccepted, map[string]any{"cleared": n, "status": "rebuilding"})
}

func (s *Server) handleBackfill(w http.ResponseWriter, r *http.Request) {
	if err := s.semantic.StartBulkIndexing(); err != nil {
		s.respondFailure(w, err)
		return
	}
	s.respondJSON(w, http.StatusAccepted, map[string]string{"status": "indexing"})
}

func (s *Server) handleAddItem(w http.ResponseWriter, r *http.Request) {
	var input models.ItemInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}
	if input.Type == "" {
		input.Type = models.TypeText
	}
	if input.Type != models.TypeText && input.Type != models.TypeImage {
		s.respondError(w, http.StatusBadRequest, "invalid_request", "type must be text or image")
		return
	}
	if input.Content == "" {
		s.respondError(w, http.StatusBadRequest, "invalid_request", "content is required")
		return
	}
	item, created, err := s.storage.AddItem(r.Context(), input.Type, input.Content)
	if err != nil {
		s.logger.Error("add item failed", zap.Error(err))
		s.respondFailure(w, err)
		return
	}
	s.semantic.OnItemSaved(r.Context(), item, created)
	code := http.StatusOK
	if created {
		code = http.StatusCreated
	}
	s.respondJSON(w, code, item)
}

func (s *Server) handleGetItem(w http.ResponseWriter, r *http.Request) {
	id, ok := s.itemID(w, r)
	if !ok {
		return
	}
	item, err := s.storage.GetItem(r.Context(), id)
	if err != nil {
		s.respondFailure(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, item)
}

func (s *Server) handleDeleteItem(w http.ResponseWriter, r *http.Request) {
	id, ok := s.itemID(w, r)
	if !ok {
		return
	}
	s.logger.Debug("delete item request", zap.Int64("id", id))
	if err := s.storage.DeleteItem(r.Context(), id); err != nil {
		s.respondFailure(w, err)
		return
	}
	s.semantic.OnItemDeleted(r.Context(), id)
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) itemID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		s.respondError(w, http.StatusBadRequest, "invalid_request", "invalid item id")
		return 0, false
	}
	return id, true
}

// errorStatus maps domain errors to an HTTP status and a stable error code.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, search.ErrEmptyQuery):
		return http.StatusBadRequest, "empty_query"
	case errors.Is(err, search.ErrNotEnabled):
		return http.StatusConflict, "not_enabled"
	case errors.Is(err, search.ErrModelUnavailable):
		return http.StatusConflict, "model_unavailable"
	case errors.Is(err, model.ErrDownloadInProgress):
		return http.StatusConflict, "download_in_progress"
	case errors.Is(err, model.ErrAlreadyDownloaded):
		return http.StatusConflict, "already_downloaded"
	case errors.Is(err, indexer.ErrBackfillRunning):
		return http.StatusConflict, "indexing_in_progress"
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound, "not_found"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func (s *Server) respondFailure(w http.ResponseWriter, err error) {
	code, name := errorStatus(err)
	if code == http.StatusInternalServerError {
		s.logger.Error("request failed", zap.Error(err))
	}
	s.respondError(w, code, name, err.Error())
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, code, message string) {
	s.respondJSON(w, status, map[string]string{"error": message, "code": code})
}

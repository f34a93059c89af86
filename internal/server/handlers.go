package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rehydra/rehydra/internal/detect"
	"github.com/rehydra/rehydra/internal/session"
	"github.com/rehydra/rehydra/internal/store"
	"go.uber.org/zap"
)

type anonymizeRequest struct {
	Text   string `json:"text"`
	Locale string `json:"locale,omitempty"`
}

type rehydrateRequest struct {
	Text string `json:"text"`
}

type cleanupRequest struct {
	MaxAgeHours int `json:"max_age_hours"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	id := uuid.NewString()
	s.logger.Debug("session created", zap.String("session_id", id))
	s.respondJSON(w, http.StatusCreated, map[string]string{"session_id": id})
}

func (s *Server) handleAnonymize(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req anonymizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Text == "" {
		s.respondError(w, http.StatusBadRequest, "text is required")
		return
	}
	s.logger.Debug("anonymize request", zap.String("session_id", id), zap.Int("text_len", len(req.Text)))
	result, err := s.sessions.Session(id).Anonymize(r.Context(), req.Text, req.Locale)
	if err != nil {
		if errors.Is(err, session.ErrKeyMismatch) {
			s.respondError(w, http.StatusConflict, err.Error())
			return
		}
		s.logger.Error("anonymize failed", zap.String("session_id", id), zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleRehydrate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req rehydrateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	text, err := s.sessions.Session(id).Rehydrate(r.Context(), req.Text)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrNoSessionData):
			s.respondError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, session.ErrKeyMismatch):
			s.respondError(w, http.StatusConflict, err.Error())
		default:
			s.logger.Error("rehydrate failed", zap.String("session_id", id), zap.Error(err))
			s.respondError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"text": text})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rec, err := s.sessions.Session(id).Load(r.Context())
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "session not found")
			return
		}
		s.logger.Error("session lookup failed", zap.String("session_id", id), zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	// Metadata only. Ciphertext and the decrypted map never leave the service.
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"session_id":    id,
		"created_at":    rec.CreatedAt,
		"updated_at":    rec.UpdatedAt,
		"entity_counts": rec.EntityCounts,
		"model_version": rec.ModelVersion,
	})
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.logger.Debug("delete session request", zap.String("session_id", id))
	existed, err := s.sessions.Session(id).Delete(r.Context())
	if err != nil {
		s.logger.Error("deletion failed", zap.String("session_id", id), zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !existed {
		s.respondError(w, http.StatusNotFound, "session not found")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleCleanup(w http.ResponseWriter, r *http.Request) {
	var req cleanupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.MaxAgeHours <= 0 {
		s.respondError(w, http.StatusBadRequest, "max_age_hours must be positive")
		return
	}
	cutoff := time.Now().Add(-time.Duration(req.MaxAgeHours) * time.Hour).UnixMilli()
	deleted, err := s.sessions.Store().Cleanup(r.Context(), cutoff)
	if err != nil {
		s.logger.Error("cleanup failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.logger.Info("cleanup completed", zap.Int("deleted", deleted), zap.Int("max_age_hours", req.MaxAgeHours))
	s.respondJSON(w, http.StatusOK, map[string]int{"deleted": deleted})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]string{"status": "ok"}
	if hc, ok := s.sessions.Detector().(detect.HealthChecker); ok {
		if err := hc.Health(r.Context()); err != nil {
			resp["status"] = "degraded"
			resp["detector"] = err.Error()
			s.respondJSON(w, http.StatusServiceUnavailable, resp)
			return
		}
		resp["detector"] = "ok"
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}

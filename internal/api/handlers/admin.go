package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"quorum/internal/jobs"
)

func (s *Server) AdminStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.App.Stats(r.Context())
	if err != nil {
		writeErr(w, http.StatusInternalServerError, "INTERNAL", err.Error())
		return
	}
	if s.Sockets != nil {
		stats["ws_connections"] = s.Sockets.Connected()
	}
	writeJSON(w, http.StatusOK, map[string]any{"stats": stats}, nil)
}

func (s *Server) AdminConfig(w http.ResponseWriter, r *http.Request) {
	cfg := s.Config
	cfg.Locks.RedisURL = ""
	writeJSON(w, http.StatusOK, map[string]any{"config": cfg}, nil)
}

// RunSavedSearches runs the notifier for one user immediately.
func (s *Server) RunSavedSearches(w http.ResponseWriter, r *http.Request) {
	res, err := s.App.RunSavedSearchNotification(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"result": res}, nil)
}

func (s *Server) RunAllSavedSearches(w http.ResponseWriter, r *http.Request) {
	summary, err := s.App.RunAllSavedSearchNotifications(r.Context())
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]any{"summary": summary, "errors": err.Error()}, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"summary": summary}, nil)
}

func (s *Server) AuditLog(w http.ResponseWriter, r *http.Request) {
	limit := parseInt(r.URL.Query().Get("limit"), 50)
	entries, err := s.App.Store.ListAuditLogs(r.Context(), jobs.AuditActionNotified, limit)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, "INTERNAL", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries}, nil)
}

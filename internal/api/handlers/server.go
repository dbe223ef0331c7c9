package handlers

import (
	"database/sql"
	"net/http"

	"quorum/internal/config"
	"quorum/internal/service"
)

type Server struct {
	App    *service.App
	DB     *sql.DB
	Config config.Config
	// Sockets reports open live connections for admin stats; optional.
	Sockets interface{ Connected() int }
}

func New(app *service.App, db *sql.DB, cfg config.Config) *Server {
	return &Server{
		App:    app,
		DB:     db,
		Config: cfg,
	}
}

func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	if err := s.DB.PingContext(r.Context()); err != nil {
		writeErr(w, http.StatusServiceUnavailable, "UNAVAILABLE", "database unreachable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         status,
		"saved_searches": s.Config.SavedSearches.Enabled,
	}, nil)
}

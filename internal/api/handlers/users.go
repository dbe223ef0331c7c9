package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (s *Server) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username   string `json:"username"`
		TrustLevel int    `json:"trust_level"`
		Admin      bool   `json:"admin"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid request body")
		return
	}
	user, key, err := s.App.CreateUser(r.Context(), req.Username, req.TrustLevel, req.Admin)
	if err != nil {
		writeServiceErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"user": user, "api_key": key}, nil)
}

func (s *Server) CurrentUser(w http.ResponseWriter, r *http.Request) {
	authCtx, ok := currentUser(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": authCtx.User}, nil)
}

func (s *Server) GetUser(w http.ResponseWriter, r *http.Request) {
	user, err := s.App.ResolveUser(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": user}, nil)
}

func (s *Server) SetTrustLevel(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TrustLevel *int `json:"trust_level"`
	}
	if err := decodeJSON(r, &req); err != nil || req.TrustLevel == nil {
		writeErr(w, http.StatusBadRequest, "VALIDATION_ERROR", "trust_level is required")
		return
	}
	user, err := s.App.SetTrustLevel(r.Context(), chi.URLParam(r, "id"), *req.TrustLevel)
	if err != nil {
		writeServiceErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": user}, nil)
}

func (s *Server) RotateUserKey(w http.ResponseWriter, r *http.Request) {
	key, err := s.App.RotateKey(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"api_key": key}, nil)
}

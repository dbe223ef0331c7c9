package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

func (s *Server) CreateTopic(w http.ResponseWriter, r *http.Request) {
	authCtx, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req struct {
		Title string `json:"title"`
		Raw   string `json:"raw"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid request body")
		return
	}
	topic, post, err := s.App.CreateTopic(r.Context(), authCtx.User.ID, req.Title, req.Raw)
	if err != nil {
		writeServiceErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"topic": topic, "post": post}, nil)
}

func (s *Server) GetTopic(w http.ResponseWriter, r *http.Request) {
	authCtx, ok := currentUser(w, r)
	if !ok {
		return
	}
	topic, err := s.App.GetTopic(r.Context(), authCtx.User.ID, chi.URLParam(r, "id"))
	if err != nil {
		writeServiceErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"topic": topic}, nil)
}

func (s *Server) Reply(w http.ResponseWriter, r *http.Request) {
	authCtx, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req struct {
		Raw string `json:"raw"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid request body")
		return
	}
	post, err := s.App.Reply(r.Context(), authCtx.User.ID, chi.URLParam(r, "id"), req.Raw)
	if err != nil {
		writeServiceErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"post": post}, nil)
}

func (s *Server) DeletePost(w http.ResponseWriter, r *http.Request) {
	authCtx, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeErr(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid post id")
		return
	}
	if err := s.App.DeletePost(r.Context(), authCtx, id); err != nil {
		writeServiceErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"post_id": id, "deleted": true}, nil)
}

package handlers

import (
	"net/http"

	"quorum/internal/model"
)

// Inbox lists the caller's private messages, newest first.
func (s *Server) Inbox(w http.ResponseWriter, r *http.Request) {
	authCtx, ok := currentUser(w, r)
	if !ok {
		return
	}
	page := parseInt(r.URL.Query().Get("page"), 1)
	perPage := parseInt(r.URL.Query().Get("per_page"), 50)
	msgs, total, err := s.App.Inbox(r.Context(), authCtx.User.ID, page, perPage)
	if err != nil {
		writeServiceErr(w, err)
		return
	}
	if msgs == nil {
		msgs = []model.PrivateMessage{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": msgs}, &pagination{
		Page: page, PerPage: perPage, Total: total,
	})
}

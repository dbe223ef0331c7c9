package handlers

import "net/http"

func (s *Server) GetSavedSearches(w http.ResponseWriter, r *http.Request) {
	authCtx, ok := currentUser(w, r)
	if !ok {
		return
	}
	terms, err := s.App.GetSavedSearches(r.Context(), authCtx.User.ID)
	if err != nil {
		writeServiceErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"saved_searches": terms}, nil)
}

// PutSavedSearches replaces the caller's whole list; an empty list clears it.
func (s *Server) PutSavedSearches(w http.ResponseWriter, r *http.Request) {
	authCtx, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req struct {
		SavedSearches []string `json:"saved_searches"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid request body")
		return
	}
	terms, err := s.App.SetSavedSearches(r.Context(), authCtx.User.ID, req.SavedSearches)
	if err != nil {
		writeServiceErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"saved_searches": terms}, nil)
}

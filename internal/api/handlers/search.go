package handlers

import "net/http"

func (s *Server) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	limit := parseInt(r.URL.Query().Get("limit"), 20)
	results, err := s.App.Search(r.Context(), q, limit)
	if err != nil {
		writeServiceErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results}, nil)
}

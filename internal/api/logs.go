package api

import (
	"net/http"
	"strconv"

	"grimm.is/tollgate/internal/firewall"
)

// handleGetLogs returns recent decisions oldest first. ?limit=N keeps only
// the N most recent.
func (s *Server) handleGetLogs(w http.ResponseWriter, r *http.Request) {
	records := s.engine.RecentLogs()
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			WriteError(w, http.StatusBadRequest, "invalid limit", raw)
			return
		}
		records = s.engine.LastLogs(n)
	}
	WriteJSON(w, http.StatusOK, firewall.ExportAll(records))
}

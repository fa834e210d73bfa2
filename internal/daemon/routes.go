//go:build unix

package daemon

import (
	"encoding/json"
	"net/http"
	"time"
)

func (d *Daemon) setupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", d.handleHealth)

	mux.HandleFunc("/api/apps", d.handleListApps)
	mux.HandleFunc("/api/apps/", d.handleAppByName)
	mux.HandleFunc("/api/health", d.handleAppHealth)
	mux.HandleFunc("/api/health/refresh", d.handleHealthRefresh)
}

// handleHealth is the daemon's own liveness endpoint, used by the CLI to
// verify a PID file really belongs to a live daemon.
func (d *Daemon) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{
		"status": "ok",
		"uptime": time.Since(d.startTime).Seconds(),
	}); err != nil {
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
	}
}

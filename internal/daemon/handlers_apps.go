//go:build unix

package daemon

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/appyard/appyard/internal/health"
	"github.com/appyard/appyard/internal/limits"
	"github.com/appyard/appyard/internal/orchestrator"
)

// Request/Response types

type ListAppsResponse struct {
	Apps []orchestrator.AppInfo `json:"apps"`
}

type HealthSnapshotResponse struct {
	Apps map[string]health.Entry `json:"apps"`
}

type RefreshHealthRequest struct {
	App string `json:"app,omitempty"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

// Handler methods

func (d *Daemon) handleListApps(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, ListAppsResponse{Apps: d.orc.ListApps()}, http.StatusOK)
}

// handleAppByName routes /api/apps/{name} and /api/apps/{name}/{action}.
func (d *Daemon) handleAppByName(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/apps/")
	if rest == "" || rest == r.URL.Path {
		writeError(w, "app name is required", http.StatusBadRequest)
		return
	}

	name := rest
	action := ""
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		name, action = rest[:i], rest[i+1:]
	}
	if name == "" {
		writeError(w, "app name is required", http.StatusBadRequest)
		return
	}

	switch {
	case action == "" && r.Method == http.MethodDelete:
		d.handleRemoveApp(w, name)
	case action == "open" && r.Method == http.MethodPost:
		d.handleOpenApp(w, name)
	case action == "stop" && r.Method == http.MethodPost:
		d.handleStopApp(w, name)
	case action == "restart" && r.Method == http.MethodPost:
		d.handleRestartApp(w, name)
	default:
		writeError(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (d *Daemon) handleOpenApp(w http.ResponseWriter, name string) {
	res, err := d.orc.OpenApp(name)
	if err != nil {
		writeError(w, err.Error(), http.StatusConflict)
		return
	}
	writeJSON(w, res, http.StatusOK)
}

func (d *Daemon) handleStopApp(w http.ResponseWriter, name string) {
	if err := d.orc.StopApp(name); err != nil {
		writeError(w, err.Error(), http.StatusConflict)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (d *Daemon) handleRestartApp(w http.ResponseWriter, name string) {
	res, err := d.orc.RestartApp(name)
	if err != nil {
		writeError(w, err.Error(), http.StatusConflict)
		return
	}
	writeJSON(w, res, http.StatusOK)
}

func (d *Daemon) handleRemoveApp(w http.ResponseWriter, name string) {
	if err := d.orc.RemoveApp(name); err != nil {
		if strings.HasPrefix(err.Error(), "no app named") {
			writeError(w, err.Error(), http.StatusNotFound)
			return
		}
		writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (d *Daemon) handleAppHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, HealthSnapshotResponse{Apps: d.orc.HealthSnapshot()}, http.StatusOK)
}

func (d *Daemon) handleHealthRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	defer r.Body.Close()

	// An empty body means "refresh everything".
	var req RefreshHealthRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, limits.JSON))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	snap, err := d.orc.RefreshHealth(req.App)
	if err != nil {
		writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, HealthSnapshotResponse{Apps: snap}, http.StatusOK)
}

// Helper functions

func writeJSON(w http.ResponseWriter, data interface{}, status int) {
	buf, err := json.Marshal(data)
	if err != nil {
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(buf)
}

func writeError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, ErrorResponse{Error: message}, status)
}

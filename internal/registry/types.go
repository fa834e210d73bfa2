package registry

import "time"

// Assignment is one app's sticky port pair plus the last recorded process.
// PID and StartedAt are absent while the app is not running; the ports
// survive stop/start cycles and orchestrator restarts.
type Assignment struct {
	Name         string     `json:"-"`
	FrontendPort int        `json:"frontend_port"`
	BackendPort  int        `json:"backend_port"`
	PID          int        `json:"pid,omitempty"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
}

// Running reports whether a PID is currently on record. The process behind
// it may have died since it was written; liveness is re-checked lazily by
// garbage collection.
func (a *Assignment) Running() bool {
	return a.PID > 0
}

// registryFile is the on-disk JSON document: app name → assignment.
type registryFile map[string]*Assignment

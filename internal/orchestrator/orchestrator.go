// Package orchestrator is the facade the daemon handlers call into. It
// composes the registry, the supervisor and the health monitor behind a
// handful of app-level operations, and converts their errors into
// display-ready reasons so callers never surface a raw Go error chain to
// the user.
package orchestrator

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/appyard/appyard/internal/health"
	"github.com/appyard/appyard/internal/manifest"
	"github.com/appyard/appyard/internal/ports"
	"github.com/appyard/appyard/internal/registry"
	"github.com/appyard/appyard/internal/supervisor"
)

// AppInfo is one row of the app listing.
type AppInfo struct {
	Name         string `json:"name"`
	FrontendPort int    `json:"frontend_port"`
	BackendPort  int    `json:"backend_port"`
	Running      bool   `json:"running"`
}

// OpenResult is what a successful open returns: where to point the
// browser.
type OpenResult struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

type Orchestrator struct {
	reg  *registry.Registry
	sup  *supervisor.Supervisor
	mon  *health.Monitor
	host string
	log  *zap.Logger
}

func New(reg *registry.Registry, sup *supervisor.Supervisor, host string, log *zap.Logger) *Orchestrator {
	return &Orchestrator{
		reg:  reg,
		sup:  sup,
		host: host,
		log:  log.Named("orchestrator"),
	}
}

// SetMonitor wires in the health monitor. The monitor needs the
// orchestrator as its target lister, so construction is two-phase.
func (o *Orchestrator) SetMonitor(mon *health.Monitor) {
	o.mon = mon
}

// HealthTargets implements health.Lister: every assigned app, probed on
// its frontend port.
func (o *Orchestrator) HealthTargets() ([]health.Target, error) {
	assignments := o.reg.Assignments()
	targets := make([]health.Target, 0, len(assignments))
	for _, a := range assignments {
		targets = append(targets, health.Target{Name: a.Name, Port: a.FrontendPort})
	}
	return targets, nil
}

// OpenApp makes sure the app is running (starting it if needed) and
// returns the frontend URL. Already-running apps return immediately with
// their existing URL.
func (o *Orchestrator) OpenApp(name string) (OpenResult, error) {
	a, err := o.sup.Start(name)
	if err != nil {
		return OpenResult{}, fmt.Errorf("%s", openFailure(name, err))
	}
	return OpenResult{
		Name: name,
		URL:  fmt.Sprintf("http://%s:%d", o.host, a.FrontendPort),
	}, nil
}

// StopApp stops the app's process. Stopping an app that is not running
// succeeds quietly.
func (o *Orchestrator) StopApp(name string) error {
	if err := o.sup.Stop(name); err != nil {
		return fmt.Errorf("could not stop %s cleanly; it is no longer tracked as running", name)
	}
	return nil
}

// RestartApp stops then starts the app. The port pair survives the
// bounce.
func (o *Orchestrator) RestartApp(name string) (OpenResult, error) {
	a, err := o.sup.Restart(name)
	if err != nil {
		return OpenResult{}, fmt.Errorf("%s", openFailure(name, err))
	}
	return OpenResult{
		Name: name,
		URL:  fmt.Sprintf("http://%s:%d", o.host, a.FrontendPort),
	}, nil
}

// ListApps returns every assigned app with its ports and live/dead state.
func (o *Orchestrator) ListApps() []AppInfo {
	assignments := o.reg.Assignments()
	out := make([]AppInfo, 0, len(assignments))
	for _, a := range assignments {
		out = append(out, AppInfo{
			Name:         a.Name,
			FrontendPort: a.FrontendPort,
			BackendPort:  a.BackendPort,
			Running:      o.sup.Running(a.Name),
		})
	}
	return out
}

// RemoveApp forgets the app entirely: stops it if running, then drops its
// registry record so the ports return to the pool.
func (o *Orchestrator) RemoveApp(name string) error {
	if err := o.sup.Stop(name); err != nil {
		o.log.Warn("stop before remove failed", zap.String("app", name), zap.Error(err))
	}
	if err := o.reg.Remove(name); err != nil {
		if errors.Is(err, registry.ErrNotAssigned) {
			return fmt.Errorf("no app named %s", name)
		}
		return fmt.Errorf("could not remove %s: registry update failed", name)
	}
	return nil
}

// RefreshHealth forces a synchronous probe. An empty name refreshes
// everything.
func (o *Orchestrator) RefreshHealth(name string) (map[string]health.Entry, error) {
	if o.mon == nil {
		return nil, errors.New("health monitoring is not running")
	}
	if name == "" {
		if err := o.mon.RefreshAll(); err != nil {
			return nil, fmt.Errorf("health refresh failed: could not read app list")
		}
		return o.mon.Snapshot(), nil
	}
	entry, err := o.mon.RefreshApp(name)
	if err != nil {
		return nil, fmt.Errorf("health refresh failed for %s", name)
	}
	return map[string]health.Entry{name: entry}, nil
}

// HealthSnapshot returns the monitor's current view without probing.
func (o *Orchestrator) HealthSnapshot() map[string]health.Entry {
	if o.mon == nil {
		return map[string]health.Entry{}
	}
	return o.mon.Snapshot()
}

// openFailure maps a start error onto one human-readable sentence. The
// underlying chain still lands in the daemon log; users get the reason.
func openFailure(name string, err error) string {
	switch {
	case errors.Is(err, manifest.ErrNotFound):
		return fmt.Sprintf("%s has no app.yaml manifest", name)
	case errors.Is(err, manifest.ErrInvalid):
		return fmt.Sprintf("%s has an invalid app.yaml manifest", name)
	case errors.Is(err, ports.ErrExhausted):
		return fmt.Sprintf("no free ports left to assign to %s", name)
	case errors.Is(err, registry.ErrLockTimeout):
		return fmt.Sprintf("the port registry is locked by another process; could not start %s", name)
	case errors.Is(err, supervisor.ErrStartTimeout):
		return fmt.Sprintf("%s started but never opened its port; check its log", name)
	default:
		return fmt.Sprintf("could not start %s", name)
	}
}

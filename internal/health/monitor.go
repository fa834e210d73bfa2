// Package health maintains a best-effort up/down view of every managed
// app, independent of whether the supervisor still has it on record — an
// app started by hand outside the tool still shows up correctly.
package health

import (
	"context"
	"net"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Status is an app's probed liveness.
type Status string

const (
	StatusUp   Status = "up"
	StatusDown Status = "down"
)

// Entry is one app's latest probe result. Entries live only in memory and
// are rebuilt from scratch each cycle.
type Entry struct {
	Status      Status    `json:"status"`
	LastChecked time.Time `json:"last_checked_at"`
}

// Target is an app the monitor should probe.
type Target struct {
	Name string
	Port int
}

// Lister supplies the current probe targets. The registry adapter in the
// orchestrator implements it.
type Lister interface {
	HealthTargets() ([]Target, error)
}

// Monitor polls every known app's frontend port on a background loop and
// keeps a shared snapshot. The loop interval starts at the minimum and
// resets there after every clean cycle; it doubles (up to the ceiling)
// only when the monitor's own bookkeeping fails — an app probing "down"
// is an expected result, not an error.
type Monitor struct {
	lister       Lister
	host         string
	probeTimeout time.Duration
	minInterval  time.Duration
	maxInterval  time.Duration
	log          *zap.Logger

	mu       sync.RWMutex
	snapshot map[string]Entry

	// probe is swapped out in tests.
	probe func(host string, port int, timeout time.Duration) bool
}

type Config struct {
	Host         string
	ProbeTimeout time.Duration
	MinInterval  time.Duration
	MaxInterval  time.Duration
}

func NewMonitor(cfg Config, lister Lister, log *zap.Logger) *Monitor {
	return &Monitor{
		lister:       lister,
		host:         cfg.Host,
		probeTimeout: cfg.ProbeTimeout,
		minInterval:  cfg.MinInterval,
		maxInterval:  cfg.MaxInterval,
		log:          log.Named("health"),
		snapshot:     make(map[string]Entry),
		probe:        tcpProbe,
	}
}

// tcpProbe is the cheap liveness check: can we open a TCP connection to
// the app's frontend port right now.
func tcpProbe(host string, port int, timeout time.Duration) bool {
	conn, err := net.DialTimeout("tcp", net.JoinHostPort(host, strconv.Itoa(port)), timeout)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

// Run drives the background loop until ctx is cancelled. Cancellation is
// checked at the sleep boundary, once per iteration.
func (m *Monitor) Run(ctx context.Context) {
	interval := m.minInterval
	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		if err := m.RefreshAll(); err != nil {
			m.log.Warn("health cycle failed, backing off", zap.Error(err))
			interval *= 2
			if interval > m.maxInterval {
				interval = m.maxInterval
			}
		} else {
			interval = m.minInterval
		}
		timer.Reset(interval)
	}
}

// RefreshAll probes every target synchronously and replaces the snapshot
// wholesale, so readers see either the old map or the new one, never a
// half-updated view. It is also the manual "refresh now" path and does
// not disturb the background loop's schedule.
func (m *Monitor) RefreshAll() error {
	targets, err := m.lister.HealthTargets()
	if err != nil {
		return err
	}

	next := make(map[string]Entry, len(targets))
	now := time.Now().UTC()
	for _, t := range targets {
		status := StatusDown
		if m.probe(m.host, t.Port, m.probeTimeout) {
			status = StatusUp
		}
		next[t.Name] = Entry{Status: status, LastChecked: now}
	}

	m.mu.Lock()
	m.snapshot = next
	m.mu.Unlock()
	return nil
}

// RefreshApp probes a single app inline and folds the result into the
// snapshot, leaving every other entry untouched.
func (m *Monitor) RefreshApp(name string) (Entry, error) {
	targets, err := m.lister.HealthTargets()
	if err != nil {
		return Entry{}, err
	}

	for _, t := range targets {
		if t.Name != name {
			continue
		}
		status := StatusDown
		if m.probe(m.host, t.Port, m.probeTimeout) {
			status = StatusUp
		}
		entry := Entry{Status: status, LastChecked: time.Now().UTC()}

		m.mu.Lock()
		m.snapshot[name] = entry
		m.mu.Unlock()
		return entry, nil
	}

	// Unknown apps read as down rather than erroring; the caller asked a
	// display question, not a correctness one.
	return Entry{Status: StatusDown, LastChecked: time.Now().UTC()}, nil
}

// Snapshot returns a copy of the current health map.
func (m *Monitor) Snapshot() map[string]Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]Entry, len(m.snapshot))
	for k, v := range m.snapshot {
		out[k] = v
	}
	return out
}

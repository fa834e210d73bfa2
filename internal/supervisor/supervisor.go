// Package supervisor owns the lifecycle of each managed app's OS process:
// spawn detached, wait for the frontend port to answer, record the PID,
// and terminate gracefully with a forceful fallback.
package supervisor

import (
	"errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/process"
	"go.uber.org/zap"

	"github.com/appyard/appyard/internal/manifest"
	"github.com/appyard/appyard/internal/registry"
)

var (
	// ErrStartTimeout indicates the spawned process never answered on its
	// frontend port within the start budget. The process is left running:
	// it may still be compiling or booting, and killing it would turn a
	// slow start into a failed one.
	ErrStartTimeout = errors.New("app did not answer on its port within the start budget")

	// ErrStopFailed indicates even the forceful kill failed. The PID record
	// is cleared anyway so the app is not stuck reporting "running" forever.
	ErrStopFailed = errors.New("failed to stop app process")
)

// State is the supervisor's view of one app's lifecycle.
type State int

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
	StateError
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Config carries the supervisor's tunables.
type Config struct {
	AppsDir      string
	LogsDir      string
	ProbeHost    string
	StartTimeout time.Duration
	StopGrace    time.Duration
	SettleDelay  time.Duration

	// PortProbe overrides the readiness check. Nil means a real TCP dial.
	PortProbe func(host string, port int, timeout time.Duration) bool

	// Terminator overrides process termination. Nil picks the platform
	// implementation.
	Terminator Terminator
}

// Supervisor starts, stops, and restarts app processes. PID bookkeeping
// lives in the registry so it survives orchestrator restarts; the in-memory
// state map only tracks transitions within this process.
type Supervisor struct {
	cfg  Config
	reg  *registry.Registry
	term Terminator
	log  *zap.Logger

	mu     sync.Mutex
	states map[string]State
	locks  map[string]*sync.Mutex

	// test hooks
	pidAlive func(pid int) bool
	portOpen func(host string, port int, timeout time.Duration) bool
}

func New(cfg Config, reg *registry.Registry, log *zap.Logger) *Supervisor {
	probe := cfg.PortProbe
	if probe == nil {
		probe = portOpen
	}
	term := cfg.Terminator
	if term == nil {
		term = NewTerminator(log)
	}
	return &Supervisor{
		cfg:      cfg,
		reg:      reg,
		term:     term,
		log:      log.Named("supervisor"),
		states:   make(map[string]State),
		locks:    make(map[string]*sync.Mutex),
		pidAlive: pidAlive,
		portOpen: probe,
	}
}

func pidAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	alive, err := process.PidExists(int32(pid))
	return err == nil && alive
}

func portOpen(host string, port int, timeout time.Duration) bool {
	conn, err := net.DialTimeout("tcp", net.JoinHostPort(host, strconv.Itoa(port)), timeout)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

// State returns the last lifecycle state observed for name.
func (s *Supervisor) State(name string) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.states[name]
}

func (s *Supervisor) setState(name string, st State) {
	s.mu.Lock()
	s.states[name] = st
	s.mu.Unlock()
}

// appLock returns the mutex serializing lifecycle transitions for one app.
// It is held across the whole check-spawn-record sequence: without it, two
// concurrent starts both pass the running check and both spawn, and the
// second RecordPID orphans the first process.
func (s *Supervisor) appLock(name string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[name]
	if !ok {
		l = &sync.Mutex{}
		s.locks[name] = l
	}
	return l
}

// Running reports whether name has a live process on record, clearing the
// record lazily if the PID turns out to be dead.
func (s *Supervisor) Running(name string) bool {
	pid, ok := s.reg.PID(name)
	if !ok {
		return false
	}
	if !s.pidAlive(pid) {
		if err := s.reg.ClearPID(name); err != nil {
			s.log.Warn("failed to clear dead pid", zap.String("app", name), zap.Error(err))
		}
		return false
	}
	return true
}

// Start brings up the app unless it is already running. It allocates (or
// reuses) the port pair, spawns the manifest command detached with the
// ports in its environment, then polls the frontend port until it answers
// or the start budget runs out. On timeout the process is left alone and
// ErrStartTimeout is returned for the caller to surface.
func (s *Supervisor) Start(name string) (registry.Assignment, error) {
	l := s.appLock(name)
	l.Lock()
	defer l.Unlock()
	return s.start(name)
}

func (s *Supervisor) start(name string) (registry.Assignment, error) {
	if s.Running(name) {
		a, err := s.reg.Get(name)
		if err != nil {
			return registry.Assignment{}, err
		}
		s.setState(name, StateRunning)
		return a, nil
	}

	s.setState(name, StateStarting)

	a, err := s.reg.GetOrAllocate(name)
	if err != nil {
		s.setState(name, StateError)
		return registry.Assignment{}, err
	}

	appDir := filepath.Join(s.cfg.AppsDir, name)
	m, err := manifest.Load(appDir)
	if err != nil {
		s.setState(name, StateError)
		return registry.Assignment{}, err
	}

	pid, err := s.spawn(name, appDir, m, a)
	if err != nil {
		s.setState(name, StateError)
		return registry.Assignment{}, fmt.Errorf("failed to spawn %s: %w", name, err)
	}

	s.log.Info("spawned app process",
		zap.String("app", name),
		zap.Int("pid", pid),
		zap.Int("frontend", a.FrontendPort))

	if !s.waitForPort(a.FrontendPort) {
		// Deliberately not killed; see ErrStartTimeout.
		s.setState(name, StateError)
		return a, fmt.Errorf("%w (%s, pid %d)", ErrStartTimeout, s.cfg.StartTimeout, pid)
	}

	if err := s.reg.RecordPID(name, pid); err != nil {
		s.setState(name, StateError)
		return a, err
	}
	s.setState(name, StateRunning)
	return a, nil
}

// spawn launches the manifest command in its own session with the port
// pair injected into the environment, output appended to the app's log.
func (s *Supervisor) spawn(name, appDir string, m *manifest.Manifest, a registry.Assignment) (int, error) {
	cmd := exec.Command(m.Command, m.Args...)
	cmd.Dir = appDir
	if m.Workdir != "" {
		cmd.Dir = filepath.Join(appDir, m.Workdir)
	}

	env := os.Environ()
	for k, v := range m.Env {
		env = append(env, k+"="+v)
	}
	env = append(env,
		"FRONTEND_PORT="+strconv.Itoa(a.FrontendPort),
		"BACKEND_PORT="+strconv.Itoa(a.BackendPort),
	)
	cmd.Env = env

	if err := os.MkdirAll(s.cfg.LogsDir, 0o700); err != nil {
		return 0, fmt.Errorf("failed to create logs directory: %w", err)
	}
	logPath := filepath.Join(s.cfg.LogsDir, name+".log")
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, fmt.Errorf("failed to open app log: %w", err)
	}
	cmd.Stdout = logFile
	cmd.Stderr = logFile

	detach(cmd)

	if err := cmd.Start(); err != nil {
		_ = logFile.Close()
		return 0, err
	}
	_ = logFile.Close()

	pid := cmd.Process.Pid

	// Reap the child when it exits so it never lingers as a zombie.
	go func() { _ = cmd.Wait() }()

	return pid, nil
}

// waitForPort polls the frontend port with short sleeps until it accepts a
// connection or the start budget elapses.
func (s *Supervisor) waitForPort(port int) bool {
	deadline := time.Now().Add(s.cfg.StartTimeout)
	for time.Now().Before(deadline) {
		if s.portOpen(s.cfg.ProbeHost, port, time.Second) {
			return true
		}
		time.Sleep(500 * time.Millisecond)
	}
	return false
}

// Stop terminates the app's recorded process. No PID on record (or a dead
// one) means the desired state already holds, so it is a successful no-op.
// The PID record is cleared even when the kill itself fails, because the
// app is no longer supervised either way.
func (s *Supervisor) Stop(name string) error {
	l := s.appLock(name)
	l.Lock()
	defer l.Unlock()
	return s.stop(name)
}

func (s *Supervisor) stop(name string) error {
	pid, ok := s.reg.PID(name)
	if !ok {
		s.setState(name, StateStopped)
		return nil
	}
	if !s.pidAlive(pid) {
		s.setState(name, StateStopped)
		return s.reg.ClearPID(name)
	}

	s.setState(name, StateStopping)
	s.log.Info("stopping app", zap.String("app", name), zap.Int("pid", pid))

	termErr := s.term.Terminate(pid, s.cfg.StopGrace)

	if err := s.reg.ClearPID(name); err != nil {
		s.log.Warn("failed to clear pid after stop", zap.String("app", name), zap.Error(err))
	}

	if termErr != nil {
		s.setState(name, StateError)
		return fmt.Errorf("%w: %v", ErrStopFailed, termErr)
	}
	s.setState(name, StateStopped)
	return nil
}

// Restart is stop, a short settle delay, then start. Not atomic: if the
// start half fails the app ends up stopped, which is the conservative,
// explainable outcome.
func (s *Supervisor) Restart(name string) (registry.Assignment, error) {
	l := s.appLock(name)
	l.Lock()
	defer l.Unlock()

	if err := s.stop(name); err != nil {
		return registry.Assignment{}, err
	}
	time.Sleep(s.cfg.SettleDelay)
	return s.start(name)
}

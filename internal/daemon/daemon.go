//go:build unix

// Package daemon runs the long-lived orchestrator process: a unix-socket
// HTTP API over the app registry, the process supervisor, the health
// monitor loop, and a watcher that notices apps deleted from disk.
package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/appyard/appyard/internal/config"
	"github.com/appyard/appyard/internal/health"
	"github.com/appyard/appyard/internal/limits"
	"github.com/appyard/appyard/internal/orchestrator"
	"github.com/appyard/appyard/internal/ports"
	"github.com/appyard/appyard/internal/registry"
	"github.com/appyard/appyard/internal/supervisor"
)

// ensureParentDir creates the parent directory of path with owner-only
// permissions.
func ensureParentDir(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	_ = os.Chmod(dir, 0o700)
	return nil
}

// removeSocketIfExists removes the socket file if it exists and is actually
// a socket.
func removeSocketIfExists(path string) error {
	fi, err := os.Lstat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if fi.Mode()&os.ModeSocket != 0 {
		return os.Remove(path)
	}
	return fmt.Errorf("refusing to remove non-socket path: %s", path)
}

type Daemon struct {
	cfg        *config.Config
	reg        *registry.Registry
	orc        *orchestrator.Orchestrator
	mon        *health.Monitor
	listener   net.Listener
	server     *http.Server
	httpClient *http.Client
	log        *zap.Logger

	startTime time.Time
}

// New wires the full stack: picker -> registry -> supervisor ->
// orchestrator -> health monitor. Nothing starts running until Start.
func New(cfg *config.Config, log *zap.Logger) (*Daemon, error) {
	picker := ports.NewPicker(cfg.ProbeHost, cfg.PortMin, cfg.PortMax, cfg.ProbeAttempts)
	reg := registry.New(cfg.RegistryPath, picker, cfg.ReservedPorts, cfg.LockTimeout, log)
	sup := supervisor.New(supervisor.Config{
		AppsDir:      cfg.AppsDir,
		LogsDir:      cfg.LogsDir,
		ProbeHost:    cfg.ProbeHost,
		StartTimeout: cfg.StartTimeout,
		StopGrace:    cfg.StopGrace,
		SettleDelay:  cfg.SettleDelay,
	}, reg, log)
	orc := orchestrator.New(reg, sup, cfg.ProbeHost, log)
	mon := health.NewMonitor(health.Config{
		Host:         cfg.ProbeHost,
		ProbeTimeout: cfg.HealthProbeTimeout,
		MinInterval:  cfg.HealthMinInterval,
		MaxInterval:  cfg.HealthMaxInterval,
	}, orc, log)
	orc.SetMonitor(mon)

	// HTTP client for talking to an already-running daemon over its socket.
	tr := &http.Transport{
		DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
			var nd net.Dialer
			return nd.DialContext(ctx, "unix", cfg.SocketPath)
		},
	}

	return &Daemon{
		cfg:        cfg,
		reg:        reg,
		orc:        orc,
		mon:        mon,
		httpClient: &http.Client{Transport: tr, Timeout: 2 * time.Second},
		log:        log.Named("daemon"),
		startTime:  time.Now().UTC(),
	}, nil
}

func (d *Daemon) Start() error {
	if d.IsRunning() {
		pid, _ := d.readPIDFile()
		return fmt.Errorf("daemon already running (PID: %d)", pid)
	}
	return d.startForeground()
}

func (d *Daemon) startForeground() error {
	if err := ensureParentDir(d.cfg.SocketPath); err != nil {
		return fmt.Errorf("failed to prepare socket directory: %w", err)
	}
	if err := removeSocketIfExists(d.cfg.SocketPath); err != nil {
		return err
	}

	listener, err := net.Listen("unix", d.cfg.SocketPath)
	if err != nil {
		return fmt.Errorf("failed to create socket: %w", err)
	}
	d.listener = listener

	// Socket is owner-only; the API can start and stop processes.
	if err := os.Chmod(d.cfg.SocketPath, 0o600); err != nil {
		listener.Close()
		return fmt.Errorf("failed to set socket permissions: %w", err)
	}

	if err := d.writePIDFile(); err != nil {
		listener.Close()
		return fmt.Errorf("failed to write PID file: %w", err)
	}

	// Reconcile persisted state with reality before serving: drop records
	// for app directories that vanished while we were down, clear PIDs of
	// processes that died.
	if err := d.reg.PruneMissing(d.cfg.AppsDir); err != nil {
		d.log.Warn("startup prune failed", zap.Error(err))
	}
	if err := d.reg.GarbageCollect(); err != nil {
		d.log.Warn("startup garbage collect failed", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go d.mon.Run(ctx)

	if w, err := newWatcher(d.cfg.AppsDir, d.orc, d.log); err != nil {
		d.log.Warn("apps directory watcher unavailable", zap.Error(err))
	} else {
		go w.run(ctx)
	}

	mux := http.NewServeMux()
	d.setupRoutes(mux)

	d.server = &http.Server{
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second, // open can block on app startup
		IdleTimeout:  60 * time.Second,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigChan)

	serverErr := make(chan error, 1)
	go func() {
		d.log.Info("daemon started",
			zap.Int("pid", os.Getpid()),
			zap.String("socket", d.cfg.SocketPath))
		serverErr <- d.server.Serve(listener)
	}()

	select {
	case sig := <-sigChan:
		d.log.Info("shutting down", zap.String("signal", sig.String()))
	case err := <-serverErr:
		if err != http.ErrServerClosed {
			d.log.Error("server error", zap.Error(err))
		}
	}

	cancel()
	d.shutdown()
	return nil
}

// Stop signals a running daemon and waits for it to exit.
func (d *Daemon) Stop() error {
	pid, err := d.readPIDFile()
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("daemon not running")
		}
		return fmt.Errorf("failed reading pidfile: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("process not found: %w", err)
	}
	if err := process.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("failed to stop daemon: %w", err)
	}

	for i := 0; i < 50; i++ {
		if !d.IsRunning() {
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("daemon did not stop gracefully")
}

type StatusInfo struct {
	Running      bool
	PID          int
	SocketPath   string
	Uptime       time.Duration
	ErrorMessage string
}

func (d *Daemon) GetStatus() (*StatusInfo, error) {
	info := &StatusInfo{SocketPath: d.cfg.SocketPath}

	pid, err := d.readPIDFile()
	if err != nil {
		return info, nil
	}
	info.PID = pid

	if !isProcessAlive(pid) {
		return info, nil
	}

	h, err := d.getHealth()
	if err != nil {
		info.ErrorMessage = err.Error()
		return info, nil
	}

	info.Running = true
	info.Uptime = time.Duration(h.Uptime * float64(time.Second))
	return info, nil
}

// IsRunning verifies daemon identity over the socket, not just PID
// liveness, which protects against PID reuse.
func (d *Daemon) IsRunning() bool {
	pid, err := d.readPIDFile()
	if err != nil {
		return false
	}
	if !isProcessAlive(pid) {
		return false
	}
	if _, err := d.getHealth(); err != nil {
		return false
	}
	return true
}

func (d *Daemon) shutdown() {
	if d.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := d.server.Shutdown(ctx); err != nil {
			d.log.Warn("server shutdown error", zap.Error(err))
		}
	}
	if d.httpClient != nil {
		d.httpClient.CloseIdleConnections()
	}
	if d.listener != nil {
		d.listener.Close()
	}
	removeSocketIfExists(d.cfg.SocketPath)
	os.Remove(d.cfg.PIDFile)
}

func (d *Daemon) writePIDFile() error {
	pid := os.Getpid()
	if err := ensureParentDir(d.cfg.PIDFile); err != nil {
		return fmt.Errorf("failed to create PID file directory: %w", err)
	}

	// O_EXCL makes creation atomic; a stale file from a dead daemon is
	// removed and creation retried.
	for {
		f, err := os.OpenFile(d.cfg.PIDFile, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
		if err == nil {
			defer f.Close()
			_, err = f.WriteString(strconv.Itoa(pid))
			return err
		}
		if !os.IsExist(err) {
			return fmt.Errorf("failed to create PID file: %w", err)
		}
		if oldPID, err2 := d.readPIDFile(); err2 == nil && isProcessAlive(oldPID) {
			return fmt.Errorf("daemon already running (PID: %d)", oldPID)
		}
		if err := os.Remove(d.cfg.PIDFile); err != nil {
			return fmt.Errorf("stale pidfile exists and cannot remove: %w", err)
		}
	}
}

func isProcessAlive(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = process.Signal(syscall.Signal(0))
	return err == nil
}

func (d *Daemon) readPIDFile() (int, error) {
	data, err := os.ReadFile(d.cfg.PIDFile)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

type HealthResponse struct {
	Status string  `json:"status"`
	Uptime float64 `json:"uptime"`
}

func (d *Daemon) getHealth() (*HealthResponse, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://unix/health", nil)
	if err != nil {
		return nil, err
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("health returned HTTP %d", resp.StatusCode)
	}

	lr := io.LimitReader(resp.Body, limits.JSON)

	var h HealthResponse
	if err := json.NewDecoder(lr).Decode(&h); err != nil {
		return nil, err
	}
	return &h, nil
}

package orchestrator

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/appyard/appyard/internal/health"
	"github.com/appyard/appyard/internal/ports"
	"github.com/appyard/appyard/internal/registry"
	"github.com/appyard/appyard/internal/supervisor"
)

func testOrchestrator(t *testing.T) (*Orchestrator, string) {
	t.Helper()
	dir := t.TempDir()
	appsDir := filepath.Join(dir, "apps")
	if err := os.MkdirAll(appsDir, 0o755); err != nil {
		t.Fatal(err)
	}

	picker := ports.NewPicker("127.0.0.1", 3000, 3100, 50)
	picker.Probe = func(host string, port int) bool { return true }
	reg := registry.New(filepath.Join(dir, "ports.json"), picker, nil, time.Second, zap.NewNop())
	sup := supervisor.New(supervisor.Config{
		AppsDir:      appsDir,
		LogsDir:      filepath.Join(dir, "logs"),
		ProbeHost:    "127.0.0.1",
		StartTimeout: 2 * time.Second,
		StopGrace:    time.Second,
		SettleDelay:  10 * time.Millisecond,
		PortProbe: func(host string, port int, timeout time.Duration) bool {
			return true
		},
	}, reg, zap.NewNop())
	return New(reg, sup, "127.0.0.1", zap.NewNop()), appsDir
}

func writeManifest(t *testing.T, appsDir, name, body string) {
	t.Helper()
	appDir := filepath.Join(appsDir, name)
	if err := os.MkdirAll(appDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(appDir, "app.yaml"), []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestOpenApp_MissingManifestReason(t *testing.T) {
	o, _ := testOrchestrator(t)
	_, err := o.OpenApp("ghost")
	if err == nil {
		t.Fatal("expected an error")
	}
	if got := err.Error(); got != "ghost has no app.yaml manifest" {
		t.Errorf("reason = %q", got)
	}
}

func TestOpenApp_InvalidManifestReason(t *testing.T) {
	o, appsDir := testOrchestrator(t)
	writeManifest(t, appsDir, "broken", "args: [only]\n")
	_, err := o.OpenApp("broken")
	if err == nil {
		t.Fatal("expected an error")
	}
	if got := err.Error(); got != "broken has an invalid app.yaml manifest" {
		t.Errorf("reason = %q", got)
	}
}

func TestOpenApp_ReturnsFrontendURL(t *testing.T) {
	o, appsDir := testOrchestrator(t)
	writeManifest(t, appsDir, "alpha", "command: sleep\nargs: [\"30\"]\n")
	t.Cleanup(func() { _ = o.StopApp("alpha") })

	res, err := o.OpenApp("alpha")
	if err != nil {
		t.Fatalf("OpenApp: %v", err)
	}
	if !strings.HasPrefix(res.URL, "http://127.0.0.1:3") {
		t.Errorf("URL = %q", res.URL)
	}

	a, err := o.reg.Get("alpha")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	want := "http://127.0.0.1:" + strconv.Itoa(a.FrontendPort)
	if res.URL != want {
		t.Errorf("URL = %q, want %q", res.URL, want)
	}
}

type stuckTerminator struct{}

func (stuckTerminator) Terminate(pid int, grace time.Duration) error {
	return errors.New("kill refused")
}

func TestStopApp_FailureReasonKeepsAssignment(t *testing.T) {
	dir := t.TempDir()
	picker := ports.NewPicker("127.0.0.1", 3000, 3100, 50)
	picker.Probe = func(host string, port int) bool { return true }
	reg := registry.New(filepath.Join(dir, "ports.json"), picker, nil, time.Second, zap.NewNop())
	sup := supervisor.New(supervisor.Config{
		AppsDir:    filepath.Join(dir, "apps"),
		LogsDir:    filepath.Join(dir, "logs"),
		ProbeHost:  "127.0.0.1",
		StopGrace:  time.Second,
		Terminator: stuckTerminator{},
	}, reg, zap.NewNop())
	o := New(reg, sup, "127.0.0.1", zap.NewNop())

	before, err := reg.GetOrAllocate("alpha")
	if err != nil {
		t.Fatal(err)
	}
	// Our own PID reads as alive, forcing the terminate path.
	if err := reg.RecordPID("alpha", os.Getpid()); err != nil {
		t.Fatal(err)
	}

	err = o.StopApp("alpha")
	if err == nil {
		t.Fatal("expected an error from the stuck terminator")
	}
	if got := err.Error(); got != "could not stop alpha cleanly; it is no longer tracked as running" {
		t.Errorf("reason = %q", got)
	}

	// The port pair stays sticky; only the PID record is gone.
	if _, ok := reg.PID("alpha"); ok {
		t.Error("PID still on record after failed stop")
	}
	after, err := reg.Get("alpha")
	if err != nil {
		t.Fatalf("Get after failed stop: %v", err)
	}
	if after.FrontendPort != before.FrontendPort || after.BackendPort != before.BackendPort {
		t.Error("port assignment changed after failed stop")
	}
}

func TestStopApp_NotRunningIsQuiet(t *testing.T) {
	o, _ := testOrchestrator(t)
	if err := o.StopApp("never-started"); err != nil {
		t.Fatalf("StopApp: %v", err)
	}
}

func TestListApps(t *testing.T) {
	o, _ := testOrchestrator(t)
	if _, err := o.reg.GetOrAllocate("beta"); err != nil {
		t.Fatal(err)
	}
	if _, err := o.reg.GetOrAllocate("alpha"); err != nil {
		t.Fatal(err)
	}

	apps := o.ListApps()
	if len(apps) != 2 {
		t.Fatalf("got %d apps, want 2", len(apps))
	}
	if apps[0].Name != "alpha" || apps[1].Name != "beta" {
		t.Errorf("order = %q, %q", apps[0].Name, apps[1].Name)
	}
	for _, a := range apps {
		if a.Running {
			t.Errorf("%s reported running with no process", a.Name)
		}
		if a.FrontendPort == 0 || a.BackendPort == 0 {
			t.Errorf("%s missing ports: %+v", a.Name, a)
		}
	}
}

func TestRemoveApp(t *testing.T) {
	o, _ := testOrchestrator(t)
	if _, err := o.reg.GetOrAllocate("alpha"); err != nil {
		t.Fatal(err)
	}
	if err := o.RemoveApp("alpha"); err != nil {
		t.Fatalf("RemoveApp: %v", err)
	}
	if err := o.RemoveApp("alpha"); err == nil {
		t.Fatal("second remove should report the app is unknown")
	} else if err.Error() != "no app named alpha" {
		t.Errorf("reason = %q", err.Error())
	}
}

func TestHealthTargets(t *testing.T) {
	o, _ := testOrchestrator(t)
	if _, err := o.reg.GetOrAllocate("alpha"); err != nil {
		t.Fatal(err)
	}

	targets, err := o.HealthTargets()
	if err != nil {
		t.Fatalf("HealthTargets: %v", err)
	}
	if len(targets) != 1 || targets[0].Name != "alpha" || targets[0].Port == 0 {
		t.Errorf("targets = %+v", targets)
	}
}

func TestRefreshHealth_NoMonitor(t *testing.T) {
	o, _ := testOrchestrator(t)
	if _, err := o.RefreshHealth(""); err == nil {
		t.Fatal("expected an error without a monitor")
	}
	if len(o.HealthSnapshot()) != 0 {
		t.Error("snapshot should be empty without a monitor")
	}
}

func TestRefreshHealth_WithMonitor(t *testing.T) {
	o, _ := testOrchestrator(t)
	if _, err := o.reg.GetOrAllocate("alpha"); err != nil {
		t.Fatal(err)
	}
	mon := health.NewMonitor(health.Config{
		Host:         "127.0.0.1",
		ProbeTimeout: 100 * time.Millisecond,
		MinInterval:  time.Second,
		MaxInterval:  time.Minute,
	}, o, zap.NewNop())
	o.SetMonitor(mon)

	snap, err := o.RefreshHealth("")
	if err != nil {
		t.Fatalf("RefreshHealth: %v", err)
	}
	entry, ok := snap["alpha"]
	if !ok {
		t.Fatal("alpha missing from snapshot")
	}
	if entry.Status != health.StatusDown {
		t.Errorf("status = %q, want down (nothing is listening)", entry.Status)
	}
}

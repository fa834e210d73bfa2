//go:build unix

package registry

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestGetOrAllocate_LockTimeout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ports.json")

	// Hold the exclusive flock on the sidecar lock file through a second
	// descriptor, as a competing process would.
	held, err := acquireLock(path+".lock", time.Second)
	if err != nil {
		t.Fatalf("acquireLock: %v", err)
	}
	defer held.release()

	r := New(path, testPicker(), nil, 150*time.Millisecond, zap.NewNop())
	r.pidAlive = func(pid int) bool { return false }

	begin := time.Now()
	_, err = r.GetOrAllocate("alpha")
	if !errors.Is(err, ErrLockTimeout) {
		t.Fatalf("expected ErrLockTimeout, got %v", err)
	}
	if elapsed := time.Since(begin); elapsed > 2*time.Second {
		t.Errorf("lock wait took %s, budget was 150ms", elapsed)
	}

	// Once the contender releases, the same registry succeeds.
	held.release()
	if _, err := r.GetOrAllocate("alpha"); err != nil {
		t.Fatalf("GetOrAllocate after release: %v", err)
	}
}

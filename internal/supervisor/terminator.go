package supervisor

import (
	"fmt"
	"os"
	"time"

	"github.com/shirou/gopsutil/v3/process"
	"go.uber.org/zap"
)

// Terminator terminates a process gracefully, escalating to a forceful
// kill after the grace period. A pid that is already gone is success.
type Terminator interface {
	Terminate(pid int, grace time.Duration) error
}

// NewTerminator picks the portable process-handle implementation when the
// host supports it, falling back to raw signals otherwise. The probe is a
// self-lookup: if gopsutil cannot even see our own process, it will not be
// able to manage anyone else's.
func NewTerminator(log *zap.Logger) Terminator {
	if _, err := process.NewProcess(int32(os.Getpid())); err != nil {
		log.Warn("process introspection unavailable, using signal fallback", zap.Error(err))
		return &signalTerminator{}
	}
	return &psTerminator{}
}

// psTerminator uses the portable process-handle abstraction:
// terminate → wait with timeout → kill. Works the same on every platform
// the toolchain supports.
type psTerminator struct{}

func (t *psTerminator) Terminate(pid int, grace time.Duration) error {
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return nil // already gone
	}

	if err := p.Terminate(); err != nil {
		// Either the process just exited or we lack permission; the kill
		// escalation below settles which.
		if alive, aerr := p.IsRunning(); aerr == nil && !alive {
			return nil
		}
	}

	deadline := time.Now().Add(grace)
	for time.Now().Before(deadline) {
		alive, err := p.IsRunning()
		if err != nil || !alive {
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}

	if err := p.Kill(); err != nil {
		if alive, aerr := p.IsRunning(); aerr == nil && !alive {
			return nil
		}
		return fmt.Errorf("kill pid %d: %w", pid, err)
	}
	return nil
}

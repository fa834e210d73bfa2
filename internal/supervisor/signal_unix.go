//go:build unix

package supervisor

import (
	"fmt"
	"os/exec"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// signalTerminator is the raw POSIX fallback: SIGTERM, poll for death with
// signal 0, escalate to SIGKILL.
type signalTerminator struct{}

func (t *signalTerminator) Terminate(pid int, grace time.Duration) error {
	if err := unix.Kill(pid, unix.SIGTERM); err != nil {
		return nil // already gone
	}

	deadline := time.Now().Add(grace)
	for time.Now().Before(deadline) {
		if unix.Kill(pid, 0) != nil {
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}

	if err := unix.Kill(pid, unix.SIGKILL); err != nil {
		if unix.Kill(pid, 0) != nil {
			return nil
		}
		return fmt.Errorf("kill pid %d: %w", pid, err)
	}
	return nil
}

// detach puts the child in its own session so it survives the daemon and
// never receives the daemon's terminal signals.
func detach(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
}

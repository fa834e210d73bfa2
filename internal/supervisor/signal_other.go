//go:build !unix

package supervisor

import (
	"os"
	"os/exec"
	"time"
)

// signalTerminator on non-POSIX platforms can only express the forceful
// path; the graceful phase is a no-op.
type signalTerminator struct{}

func (t *signalTerminator) Terminate(pid int, grace time.Duration) error {
	p, err := os.FindProcess(pid)
	if err != nil {
		return nil
	}
	_ = p.Kill()
	return nil
}

func detach(cmd *exec.Cmd) {}

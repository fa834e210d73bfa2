//go:build !unix

package registry

import "time"

// Advisory flock is unavailable here; cross-process exclusion degrades to
// best effort and the in-process mutex still serializes local callers.
type fileLock struct{}

func acquireLock(path string, timeout time.Duration) (*fileLock, error) {
	return &fileLock{}, nil
}

func (l *fileLock) release() {}

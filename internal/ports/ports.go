// Package ports probes OS-level bind availability and picks free ports.
//
// A probe is a point-in-time check: another process can grab the port
// between the probe and the moment the app actually binds it. That window
// is accepted; the OS enforces real exclusivity at bind time.
package ports

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"strconv"
)

// ErrExhausted indicates no free port was found in the configured range
// after the bounded probe attempts and a full sequential sweep.
var ErrExhausted = errors.New("no free port available in range")

// Available reports whether the OS currently allows binding host:port.
// The throwaway listener is opened with SO_REUSEADDR so ports lingering
// in TIME_WAIT do not read as occupied.
func Available(host string, port int) bool {
	lc := net.ListenConfig{Control: reuseAddr}
	ln, err := lc.Listen(context.Background(), "tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return false
	}
	_ = ln.Close()
	return true
}

// Picker selects free ports from a fixed range, skipping a caller-supplied
// forbidden set and verifying each candidate with a live bind probe.
type Picker struct {
	Host     string
	Min, Max int
	Attempts int

	// Probe reports bind availability; overridable in tests to avoid
	// touching real sockets.
	Probe func(host string, port int) bool
}

func NewPicker(host string, min, max, attempts int) *Picker {
	return &Picker{Host: host, Min: min, Max: max, Attempts: attempts, Probe: Available}
}

// Pick returns a port in [Min, Max] that is outside forbidden and passes
// the bind probe. Random draws come first for spread; if the bounded
// attempts all miss, a sequential sweep guarantees full range coverage
// before giving up with ErrExhausted.
func (p *Picker) Pick(forbidden map[int]bool) (int, error) {
	avail := p.Probe
	if avail == nil {
		avail = Available
	}

	span := p.Max - p.Min + 1
	for i := 0; i < p.Attempts; i++ {
		candidate := p.Min + rand.Intn(span)
		if forbidden[candidate] {
			continue
		}
		if avail(p.Host, candidate) {
			return candidate, nil
		}
	}

	for candidate := p.Min; candidate <= p.Max; candidate++ {
		if forbidden[candidate] {
			continue
		}
		if avail(p.Host, candidate) {
			return candidate, nil
		}
	}

	return 0, fmt.Errorf("%w %d-%d", ErrExhausted, p.Min, p.Max)
}

// PickPair returns two distinct free ports, one for the frontend and one
// for the backend. The first pick is added to the forbidden set before the
// second draw so the pair can never collide.
func (p *Picker) PickPair(forbidden map[int]bool) (frontend, backend int, err error) {
	frontend, err = p.Pick(forbidden)
	if err != nil {
		return 0, 0, err
	}

	taken := make(map[int]bool, len(forbidden)+1)
	for port := range forbidden {
		taken[port] = true
	}
	taken[frontend] = true

	backend, err = p.Pick(taken)
	if err != nil {
		return 0, 0, err
	}
	return frontend, backend, nil
}

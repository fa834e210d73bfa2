package ports

import (
	"errors"
	"net"
	"testing"
)

func TestAvailable(t *testing.T) {
	// Grab a real port so the probe has something occupied to look at.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	port := ln.Addr().(*net.TCPAddr).Port

	if Available("127.0.0.1", port) {
		t.Errorf("port %d is bound but probe reported it available", port)
	}

	ln.Close()
	if !Available("127.0.0.1", port) {
		t.Errorf("port %d is free but probe reported it occupied", port)
	}
}

func TestPick_SkipsForbidden(t *testing.T) {
	p := NewPicker("127.0.0.1", 3000, 3002, 50)
	p.Probe = func(host string, port int) bool { return true }

	forbidden := map[int]bool{3000: true, 3002: true}
	got, err := p.Pick(forbidden)
	if err != nil {
		t.Fatalf("Pick: %v", err)
	}
	if got != 3001 {
		t.Errorf("Pick = %d, want 3001 (only unforbidden port)", got)
	}
}

func TestPick_SweepFindsProbeFailures(t *testing.T) {
	// Every random draw fails the probe except one specific port; the
	// sequential sweep must still find it.
	p := NewPicker("127.0.0.1", 3000, 3010, 5)
	p.Probe = func(host string, port int) bool { return port == 3007 }

	got, err := p.Pick(nil)
	if err != nil {
		t.Fatalf("Pick: %v", err)
	}
	if got != 3007 {
		t.Errorf("Pick = %d, want 3007", got)
	}
}

func TestPick_Exhausted(t *testing.T) {
	p := NewPicker("127.0.0.1", 3000, 3004, 10)
	p.Probe = func(host string, port int) bool { return false }

	_, err := p.Pick(nil)
	if !errors.Is(err, ErrExhausted) {
		t.Fatalf("expected ErrExhausted, got %v", err)
	}
}

func TestPickPair_Distinct(t *testing.T) {
	p := NewPicker("127.0.0.1", 3000, 3001, 50)
	p.Probe = func(host string, port int) bool { return true }

	frontend, backend, err := p.PickPair(nil)
	if err != nil {
		t.Fatalf("PickPair: %v", err)
	}
	if frontend == backend {
		t.Errorf("pair collides: %d", frontend)
	}
}

//go:build !unix

package ports

import (
	"syscall"
)

func reuseAddr(network, address string, c syscall.RawConn) error { return nil }

//go:build linux

// Package socket sets up the non-blocking listening socket and applies TCP
// tuning to accepted connections.
package socket

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Config controls listener and per-connection socket options.
type Config struct {
	// Backlog is the pending-connection queue length for listen(2).
	Backlog int

	// ReuseAddr sets SO_REUSEADDR so the server can rebind immediately
	// after a restart while old connections sit in TIME_WAIT.
	ReuseAddr bool

	// DeferAccept sets TCP_DEFER_ACCEPT on the listener: the accept loop
	// only wakes once request data has actually arrived, which also keeps
	// empty SYN-flood connections from waking the event loop.
	DeferAccept bool

	// NoDelay disables Nagle's algorithm on accepted sockets. Responses
	// here are written in at most two bursts (headers, body), so batching
	// only adds latency.
	NoDelay bool
}

// DefaultConfig returns the options used by the server binary.
func DefaultConfig() Config {
	return Config{
		Backlog:   1024,
		ReuseAddr: true,
		NoDelay:   true,
	}
}

// deferAcceptTimeout is the TCP_DEFER_ACCEPT timeout in seconds.
const deferAcceptTimeout = 5

// Listen opens a non-blocking IPv4 TCP listening socket bound to INADDR_ANY
// on the given port. Any failure here is fatal to the process; the caller
// does not retry.
func Listen(port int, cfg Config) (int, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return -1, fmt.Errorf("socket: create: %w", err)
	}

	if cfg.ReuseAddr {
		if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
			unix.Close(fd)
			return -1, fmt.Errorf("socket: SO_REUSEADDR: %w", err)
		}
	}

	// Non-critical; some kernels refuse it.
	if cfg.DeferAccept {
		_ = unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_DEFER_ACCEPT, deferAcceptTimeout)
	}

	if err := unix.Bind(fd, &unix.SockaddrInet4{Port: port}); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("socket: bind port %d: %w", port, err)
	}

	if err := unix.Listen(fd, cfg.Backlog); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("socket: listen: %w", err)
	}

	return fd, nil
}

// Tune applies per-connection options to an accepted socket. Failures are
// ignored: these are optimizations, not correctness requirements.
func Tune(fd int, cfg Config) {
	if cfg.NoDelay {
		_ = unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)
	}
}

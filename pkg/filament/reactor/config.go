//go:build linux

package reactor

import (
	"time"

	"github.com/watt-toolkit/filament/pkg/filament/http11"
	"github.com/watt-toolkit/filament/pkg/filament/socket"
)

// Config is the explicit configuration threaded through reactor
// construction. There is no process-wide mutable state; everything a
// connection needs (web root included) flows from here.
type Config struct {
	// Port is the TCP port the listener binds to.
	Port int

	// Root is the web root directory URIs resolve under.
	Root string

	// IdleTimeout is how long a connection may sit without a complete
	// request before it is evicted. It covers both "client has not
	// finished sending a request" and "no next request on a kept-alive
	// connection"; there is no separate request timeout.
	IdleTimeout time.Duration

	// RingSize is the per-connection receive buffer capacity. A request
	// head larger than this is rejected with 400.
	RingSize int

	// Socket carries listener and per-connection TCP options.
	Socket socket.Config
}

// DefaultConfig returns the server binary's defaults.
func DefaultConfig() Config {
	return Config{
		Port:        8081,
		Root:        "./www",
		IdleTimeout: 500 * time.Millisecond,
		RingSize:    http11.DefaultRingSize,
		Socket:      socket.DefaultConfig(),
	}
}

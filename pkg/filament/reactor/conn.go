//go:build linux

package reactor

import (
	"github.com/watt-toolkit/filament/pkg/filament/http11"
	"github.com/watt-toolkit/filament/pkg/filament/timer"
)

// Connection driver phases. These track which parser machine resumes when
// more bytes arrive; each machine keeps its own byte-level state inside the
// Request.
const (
	phaseRequestLine uint8 = iota
	phaseHeaders
)

// Conn is one accepted client connection: its socket, its parse state (ring
// buffer included), and the handle to its pending idle-eviction timer.
//
// The timer handle tracks the connection's actual deadline at all times:
// armed whenever the connection is parked waiting for bytes, cancelled the
// moment the driver starts working on it or the connection dies.
type Conn struct {
	fd    int
	req   *http11.Request
	idle  *timer.Entry
	phase uint8
}

func newConn(fd, ringSize int) *Conn {
	return &Conn{
		fd:  fd,
		req: http11.NewRequest(ringSize),
	}
}

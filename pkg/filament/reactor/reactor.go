//go:build linux

// Package reactor is the single-threaded event loop at the heart of the
// server. One goroutine owns one epoll instance and multiplexes every
// connection through it: readiness events drive the per-connection parser,
// a priority timer store evicts idle connections, and anything that would
// block simply returns control to the loop until the kernel says the
// socket is ready again.
//
// Client sockets are registered edge-triggered and one-shot. Edge-triggered
// delivery means the driver must drain a socket to EAGAIN before returning,
// or the remaining bytes never generate another event; one-shot means the
// registration goes quiet after each notification until it is explicitly
// re-armed. A missed re-arm permanently starves that connection, so
// re-arming happens at exactly one place, when the driver parks a healthy
// connection back into the loop.
package reactor

import (
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"golang.org/x/sys/unix"

	"github.com/watt-toolkit/filament/pkg/filament/http11"
	"github.com/watt-toolkit/filament/pkg/filament/socket"
	"github.com/watt-toolkit/filament/pkg/filament/static"
	"github.com/watt-toolkit/filament/pkg/filament/timer"
)

// maxEvents bounds how many readiness events one epoll_wait returns.
const maxEvents = 1024

// Reactor owns the epoll instance, the listening socket, the registration
// table of live connections, and the timer store. All of it is mutated only
// from the goroutine running Run; no locks anywhere.
type Reactor struct {
	cfg Config
	log *slog.Logger

	epfd     int
	listenFd int
	wakeFd   int

	conns  map[int]*Conn
	timers *timer.Store

	resolver  static.Resolver
	responder *static.Responder
}

// New binds the listening socket and creates the epoll instance. Failures
// here are unrecoverable setup errors; the process should exit.
func New(cfg Config, log *slog.Logger) (*Reactor, error) {
	if log == nil {
		log = slog.Default()
	}

	listenFd, err := socket.Listen(cfg.Port, cfg.Socket)
	if err != nil {
		return nil, err
	}

	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		unix.Close(listenFd)
		return nil, fmt.Errorf("reactor: epoll_create1: %w", err)
	}

	// The wake fd is how Shutdown (another goroutine, or a signal handler)
	// interrupts an indefinitely blocked epoll_wait.
	wakeFd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		unix.Close(epfd)
		unix.Close(listenFd)
		return nil, fmt.Errorf("reactor: eventfd: %w", err)
	}

	r := &Reactor{
		cfg:      cfg,
		log:      log,
		epfd:     epfd,
		listenFd: listenFd,
		wakeFd:   wakeFd,
		conns:    make(map[int]*Conn),
		timers:   timer.New(),
		resolver: static.Resolver{Root: cfg.Root},
		responder: &static.Responder{
			KeepAliveTimeout: cfg.IdleTimeout,
		},
	}

	// The listener is edge-triggered but not one-shot: it stays armed for
	// the whole life of the process, and the accept loop drains it.
	err = unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, listenFd, &unix.EpollEvent{
		Events: unix.EPOLLIN | unix.EPOLLET,
		Fd:     int32(listenFd),
	})
	if err == nil {
		err = unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, wakeFd, &unix.EpollEvent{
			Events: unix.EPOLLIN,
			Fd:     int32(wakeFd),
		})
	}
	if err != nil {
		r.closeFds()
		return nil, fmt.Errorf("reactor: epoll_ctl: %w", err)
	}

	return r, nil
}

// Port reports the port the listener is actually bound to. Useful when the
// configuration asked for port 0.
func (r *Reactor) Port() int {
	sa, err := unix.Getsockname(r.listenFd)
	if err != nil {
		return 0
	}
	if in4, ok := sa.(*unix.SockaddrInet4); ok {
		return in4.Port
	}
	return 0
}

// Run blocks in the event loop until Shutdown is called. Per wakeup it:
// computes the wait timeout from the earliest pending timer, blocks in
// epoll_wait (retrying interruptions), fires every due timer, then
// dispatches each ready registration. A single connection's failure never
// exits the loop.
func (r *Reactor) Run() error {
	defer r.closeAll()

	events := make([]unix.EpollEvent, maxEvents)
	for {
		timeout := -1
		if d, ok := r.timers.NextWait(time.Now()); ok {
			// Round up so a timer due in half a millisecond doesn't make
			// epoll_wait spin with a zero timeout.
			timeout = int((d + time.Millisecond - 1) / time.Millisecond)
		}

		n, err := unix.EpollWait(r.epfd, events, timeout)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return fmt.Errorf("reactor: epoll_wait: %w", err)
		}

		// Expired timers fire regardless of which sockets woke us.
		r.timers.DrainDue(time.Now())

		for i := 0; i < n; i++ {
			fd := int(events[i].Fd)
			switch fd {
			case r.wakeFd:
				var buf [8]byte
				unix.Read(r.wakeFd, buf[:])
				return nil
			case r.listenFd:
				r.acceptLoop()
			default:
				c := r.conns[fd]
				if c == nil {
					// Destroyed earlier in this batch (e.g. by a timer).
					continue
				}
				ev := events[i].Events
				if ev&(unix.EPOLLERR|unix.EPOLLHUP) != 0 || ev&unix.EPOLLIN == 0 {
					r.destroy(c, closeReasonEpoll)
					continue
				}
				r.drive(c)
			}
		}
	}
}

// Shutdown wakes the loop and makes Run return. Safe to call from another
// goroutine.
func (r *Reactor) Shutdown() {
	one := [8]byte{1}
	unix.Write(r.wakeFd, one[:])
}

// acceptLoop accepts until the listener reports would-block; with an
// edge-triggered listener, stopping early would strand connections that
// arrived in the same burst. Errors other than would-block abort only the
// current attempt.
func (r *Reactor) acceptLoop() {
	for {
		nfd, _, err := unix.Accept4(r.listenFd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
		if err != nil {
			if err == unix.EAGAIN {
				return
			}
			if err == unix.EINTR {
				continue
			}
			r.log.Error("accept failed", "err", err)
			return
		}

		socket.Tune(nfd, r.cfg.Socket)

		c := newConn(nfd, r.cfg.RingSize)
		r.conns[nfd] = c
		if err := r.register(nfd); err != nil {
			r.log.Error("epoll register failed", "fd", nfd, "err", err)
			r.destroy(c, closeReasonEpoll)
			continue
		}
		r.armIdle(c)
		connectionsAccepted.Inc()
	}
}

func (r *Reactor) register(fd int) error {
	return unix.EpollCtl(r.epfd, unix.EPOLL_CTL_ADD, fd, &unix.EpollEvent{
		Events: unix.EPOLLIN | unix.EPOLLET | unix.EPOLLONESHOT,
		Fd:     int32(fd),
	})
}

func (r *Reactor) rearm(fd int) error {
	return unix.EpollCtl(r.epfd, unix.EPOLL_CTL_MOD, fd, &unix.EpollEvent{
		Events: unix.EPOLLIN | unix.EPOLLET | unix.EPOLLONESHOT,
		Fd:     int32(fd),
	})
}

// armIdle schedules the connection's eviction. Called whenever the
// connection parks to wait for bytes; the matching Cancel happens the
// moment the driver picks it back up.
func (r *Reactor) armIdle(c *Conn) {
	c.idle = r.timers.Schedule(r.cfg.IdleTimeout, func() {
		idleEvictions.Inc()
		r.destroy(c, closeReasonEvicted)
	})
}

// drive runs the connection until it would block: read everything the
// kernel has, parse everything that is buffered, dispatch every complete
// request. Only then does the one-shot registration get re-armed and the
// idle timer rescheduled.
func (r *Reactor) drive(c *Conn) {
	r.timers.Cancel(c.idle)
	c.idle = nil

	for {
		chunk := c.req.Ring.WritableChunk()
		if chunk == nil {
			// A request head outgrew the buffer before its terminator
			// showed up. Definite error, never a stall.
			r.failRequest(c, http11.ErrRequestTooLarge)
			return
		}

		n, err := unix.Read(c.fd, chunk)
		if err == unix.EINTR {
			continue
		}
		if err == unix.EAGAIN {
			// Drained. Park the connection back into the loop.
			break
		}
		if err != nil {
			r.destroy(c, closeReasonReadError)
			return
		}
		if n == 0 {
			// Orderly remote close.
			r.destroy(c, closeReasonEOF)
			return
		}
		c.req.Ring.Commit(n)

		if fatal := r.consume(c); fatal {
			return
		}
	}

	if err := r.rearm(c.fd); err != nil {
		r.log.Error("epoll re-arm failed", "fd", c.fd, "err", err)
		r.destroy(c, closeReasonEpoll)
		return
	}
	r.armIdle(c)
}

// consume parses and dispatches every complete request currently buffered.
// A kept-alive connection flows straight from one dispatch into parsing the
// next pipelined request; no extra readiness event is needed for bytes that
// already arrived. Returns true when the connection was destroyed.
func (r *Reactor) consume(c *Conn) bool {
	for {
		if c.phase == phaseRequestLine {
			err := http11.ParseRequestLine(c.req)
			if err == http11.ErrNeedMore {
				return false
			}
			if err != nil {
				r.failRequest(c, err)
				return true
			}
			c.phase = phaseHeaders
		}

		err := http11.ParseHeaders(c.req)
		if err == http11.ErrNeedMore {
			return false
		}
		if err != nil {
			r.failRequest(c, err)
			return true
		}

		keep := r.dispatch(c)
		if !keep {
			r.destroy(c, closeReasonDone)
			return true
		}
		c.req.Reset()
		c.phase = phaseRequestLine
	}
}

// dispatch hands one complete request to the collaborators: resolve the
// URI, check the file, run header dispatch against the descriptor, write
// the response. Resource errors produce error responses and leave the
// connection's fate to its keep-alive state; only write failures report
// the connection as dead.
func (r *Reactor) dispatch(c *Conn) (keep bool) {
	out := static.NewResponse()

	path, err := r.resolver.Resolve(c.req.URI)
	if err != nil {
		// Blocked traversal answers like a missing file.
		return r.dispatchError(c, out, 404)
	}

	fi, errStatus := r.responder.Check(path)
	if errStatus != 0 {
		return r.dispatchError(c, out, errStatus)
	}

	out.Mtime = fi.ModTime()
	static.ApplyHeaders(out, c.req.Headers)
	if out.Status == 0 {
		out.Status = 200
	}

	if err := r.responder.Respond(c.fd, path, fi, out); err != nil {
		r.log.Warn("response write failed", "fd", c.fd, "path", path, "err", err)
		r.destroyOnWriteError(c)
		return false
	}
	requestsServed.WithLabelValues(strconv.Itoa(out.Status)).Inc()
	return out.KeepAlive
}

func (r *Reactor) dispatchError(c *Conn, out *static.Response, status int) bool {
	static.ApplyHeaders(out, c.req.Headers)
	if err := r.responder.RespondError(c.fd, status, out); err != nil {
		r.log.Warn("error response write failed", "fd", c.fd, "err", err)
		r.destroyOnWriteError(c)
		return false
	}
	requestsServed.WithLabelValues(strconv.Itoa(status)).Inc()
	return out.KeepAlive
}

// destroyOnWriteError tears the connection down after a failed response
// write. The caller returns keep=false, but the fd must go away now, not
// at the caller's leisure.
func (r *Reactor) destroyOnWriteError(c *Conn) {
	if _, live := r.conns[c.fd]; live {
		r.destroy(c, closeReasonWrite)
	}
}

// failRequest answers a malformed or oversized request with 400 and
// destroys the connection. Parse errors are always terminal.
func (r *Reactor) failRequest(c *Conn, err error) {
	parseErrors.Inc()
	r.log.Debug("request rejected", "fd", c.fd, "err", err)
	out := static.NewResponse()
	if werr := r.responder.RespondError(c.fd, 400, out); werr != nil {
		r.log.Debug("reject response write failed", "fd", c.fd, "err", werr)
	}
	r.destroy(c, closeReasonParse)
}

// destroy tears a connection down: deregister from epoll, tombstone the
// idle timer, drop it from the table, close the socket. All of it happens
// synchronously so no later event or timer can act on a dangling handle.
func (r *Reactor) destroy(c *Conn, reason string) {
	if c.fd < 0 {
		return
	}
	r.timers.Cancel(c.idle)
	c.idle = nil
	if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_DEL, c.fd, nil); err != nil {
		r.log.Debug("epoll deregister failed", "fd", c.fd, "err", err)
	}
	delete(r.conns, c.fd)
	unix.Close(c.fd)
	c.fd = -1
	connectionsClosed.WithLabelValues(reason).Inc()
}

func (r *Reactor) closeAll() {
	for _, c := range r.conns {
		r.destroy(c, closeReasonShutdown)
	}
	r.closeFds()
}

func (r *Reactor) closeFds() {
	unix.Close(r.wakeFd)
	unix.Close(r.listenFd)
	unix.Close(r.epfd)
}

//go:build linux

package static

import (
	"io"
	"os"

	"golang.org/x/sys/unix"
)

// writeFull writes all of b to a non-blocking fd. Interrupted writes are
// retried; would-block waits for write readiness and retries. The result is
// either full delivery or a definite error, never a silent short write.
func writeFull(fd int, b []byte) error {
	for len(b) > 0 {
		n, err := unix.Write(fd, b)
		switch err {
		case nil:
			b = b[n:]
		case unix.EINTR:
		case unix.EAGAIN:
			if err := waitWritable(fd); err != nil {
				return err
			}
		default:
			return err
		}
	}
	return nil
}

// sendFile transfers size bytes of f to dst with sendfile(2): the kernel
// moves pages from the page cache to the socket without a userspace copy.
// The same retry rules as writeFull apply.
func sendFile(dst int, f *os.File, size int64) error {
	src := int(f.Fd())
	var off int64
	for off < size {
		chunk := size - off
		if chunk > 1<<30 {
			chunk = 1 << 30
		}
		n, err := unix.Sendfile(dst, src, &off, int(chunk))
		switch err {
		case nil:
			if n == 0 {
				// File truncated underneath us.
				return io.ErrUnexpectedEOF
			}
		case unix.EINTR:
		case unix.EAGAIN:
			if err := waitWritable(dst); err != nil {
				return err
			}
		default:
			return err
		}
	}
	return nil
}

func waitWritable(fd int) error {
	fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLOUT}}
	for {
		_, err := unix.Poll(fds, -1)
		if err == unix.EINTR {
			continue
		}
		return err
	}
}

//go:build linux

package static

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/valyala/bytebufferpool"
)

// Pre-compiled status lines for the codes this server actually sends.
var statusLines = map[int]string{
	200: "HTTP/1.1 200 OK\r\n",
	304: "HTTP/1.1 304 Not Modified\r\n",
	400: "HTTP/1.1 400 Bad Request\r\n",
	403: "HTTP/1.1 403 Forbidden\r\n",
	404: "HTTP/1.1 404 Not Found\r\n",
	500: "HTTP/1.1 500 Internal Server Error\r\n",
}

var statusReasons = map[int]string{
	400: "Bad Request",
	403: "Forbidden",
	404: "Not Found",
	500: "Internal Server Error",
}

func statusLine(code int) string {
	if line, ok := statusLines[code]; ok {
		return line
	}
	return fmt.Sprintf("HTTP/1.1 %d Unknown\r\n", code)
}

// maxGzipBody caps the file size eligible for on-the-fly compression; the
// whole file is read into memory for it, so large files go out via
// sendfile uncompressed instead.
const maxGzipBody = 1 << 20

var gzipWriterPool = sync.Pool{
	New: func() any {
		zw, _ := gzip.NewWriterLevel(nil, gzip.BestSpeed)
		return zw
	},
}

// Responder writes complete responses, headers plus body, straight to a
// connection's socket. Writes are synchronous with their own partial-write
// retry loop: either the whole response is delivered or a definite error
// comes back; the caller never sees a half-written response as success.
type Responder struct {
	// KeepAliveTimeout is the idle timeout advertised in the Keep-Alive
	// header so well-behaved clients close before the server evicts them.
	KeepAliveTimeout time.Duration
}

// Check verifies that path names a servable file. Returns the file info and
// 0, or nil and the HTTP error status: 404 when missing or inaccessible,
// 403 when present but not a readable regular file.
func (rp *Responder) Check(path string) (os.FileInfo, int) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, 404
	}
	if !fi.Mode().IsRegular() || fi.Mode().Perm()&0400 == 0 {
		return nil, 403
	}
	return fi, 0
}

// Respond writes the response described by out for the file at path.
// A 304 suppresses the entity headers and body. Compressible files small
// enough to buffer are gzip-encoded when the client asked for it;
// everything else goes out via sendfile(2), no userspace copy.
func (rp *Responder) Respond(fd int, path string, fi os.FileInfo, out *Response) error {
	ctype := ContentType(path)

	var body *bytebufferpool.ByteBuffer
	var f *os.File
	if out.Modified {
		if out.Gzip && compressible(ctype) && fi.Size() <= maxGzipBody {
			raw, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("static: read %s: %w", path, err)
			}
			body = bytebufferpool.Get()
			defer bytebufferpool.Put(body)
			zw := gzipWriterPool.Get().(*gzip.Writer)
			zw.Reset(body)
			_, werr := zw.Write(raw)
			cerr := zw.Close()
			gzipWriterPool.Put(zw)
			if werr != nil {
				return fmt.Errorf("static: gzip %s: %w", path, werr)
			}
			if cerr != nil {
				return fmt.Errorf("static: gzip %s: %w", path, cerr)
			}
		} else {
			var err error
			f, err = os.Open(path)
			if err != nil {
				return fmt.Errorf("static: open %s: %w", path, err)
			}
			defer f.Close()
		}
	}

	hdr := bytebufferpool.Get()
	defer bytebufferpool.Put(hdr)

	hdr.WriteString(statusLine(out.Status))
	rp.writeConnectionHeaders(hdr, out)
	if out.Modified {
		fmt.Fprintf(hdr, "Content-Type: %s\r\n", ctype)
		if body != nil {
			hdr.WriteString("Content-Encoding: gzip\r\n")
			fmt.Fprintf(hdr, "Content-Length: %d\r\n", body.Len())
		} else {
			fmt.Fprintf(hdr, "Content-Length: %d\r\n", fi.Size())
		}
		fmt.Fprintf(hdr, "Last-Modified: %s\r\n", out.Mtime.UTC().Format(httpTimeLayout))
	}
	hdr.WriteString("Server: filament\r\n\r\n")

	if err := writeFull(fd, hdr.B); err != nil {
		return err
	}
	if !out.Modified {
		return nil
	}
	if body != nil {
		return writeFull(fd, body.B)
	}
	return sendFile(fd, f, fi.Size())
}

// RespondError writes a complete, well-formed error page. Resource errors
// are not connection-fatal, so Connection honors the keep-alive state the
// request asked for.
func (rp *Responder) RespondError(fd int, status int, out *Response) error {
	reason := statusReasons[status]

	body := bytebufferpool.Get()
	defer bytebufferpool.Put(body)
	fmt.Fprintf(body,
		"<html><head><title>%d %s</title></head>"+
			"<body><h1>%d %s</h1><hr><em>filament</em></body></html>",
		status, reason, status, reason)

	hdr := bytebufferpool.Get()
	defer bytebufferpool.Put(hdr)
	hdr.WriteString(statusLine(status))
	hdr.WriteString("Content-Type: text/html\r\n")
	rp.writeConnectionHeaders(hdr, out)
	fmt.Fprintf(hdr, "Content-Length: %d\r\n", body.Len())
	hdr.WriteString("Server: filament\r\n\r\n")

	if err := writeFull(fd, hdr.B); err != nil {
		return err
	}
	return writeFull(fd, body.B)
}

func (rp *Responder) writeConnectionHeaders(hdr *bytebufferpool.ByteBuffer, out *Response) {
	if out.KeepAlive {
		hdr.WriteString("Connection: keep-alive\r\n")
		secs := int((rp.KeepAliveTimeout + time.Second - 1) / time.Second)
		fmt.Fprintf(hdr, "Keep-Alive: timeout=%d\r\n", secs)
	} else {
		hdr.WriteString("Connection: close\r\n")
	}
}

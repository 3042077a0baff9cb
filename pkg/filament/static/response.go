package static

import (
	"bytes"
	"time"

	"github.com/watt-toolkit/filament/pkg/filament/http11"
)

// Response is the descriptor the header-dispatch phase fills in and the
// responder consumes. One per request; the zero value plus Modified=true is
// the starting point.
type Response struct {
	// Status is the HTTP status to send; 0 means "not decided yet" and
	// defaults to 200 at dispatch time.
	Status int

	// KeepAlive is set by a Connection: keep-alive header and controls
	// whether the connection survives this response.
	KeepAlive bool

	// Modified is cleared when If-Modified-Since matches the file's mtime;
	// the body and entity headers are then suppressed.
	Modified bool

	// Mtime is the served file's modification time, set before header
	// dispatch so If-Modified-Since has something to compare against.
	Mtime time.Time

	// Gzip is set when the client's Accept-Encoding lists gzip.
	Gzip bool
}

// NewResponse returns a descriptor in its pre-dispatch state.
func NewResponse() *Response {
	return &Response{Modified: true}
}

// httpTimeLayout is the RFC 1123 date format HTTP uses on the wire.
const httpTimeLayout = "Mon, 02 Jan 2006 15:04:05 GMT"

// mtimeTolerance absorbs the rounding between a filesystem timestamp and
// its formatted-and-reparsed copy.
const mtimeTolerance = time.Microsecond

// handler mutates the response descriptor for one recognized header.
type handler func(out *Response, value []byte)

// headerTable maps recognized header names to their handlers. Name matching
// is case-insensitive as the protocol requires; unrecognized headers fall
// through the table and are discarded without error.
var headerTable = []struct {
	name   string
	handle handler
}{
	{"Host", handleIgnore},
	{"Connection", handleConnection},
	{"If-Modified-Since", handleIfModifiedSince},
	{"Accept-Encoding", handleAcceptEncoding},
}

// ApplyHeaders runs every parsed header through the dispatch table, in
// arrival order. The header list is not retained past this call.
func ApplyHeaders(out *Response, headers []http11.HeaderField) {
	for _, h := range headers {
		for _, entry := range headerTable {
			if equalFold(h.Key, entry.name) {
				entry.handle(out, h.Value)
				break
			}
		}
	}
}

func handleIgnore(out *Response, value []byte) {}

func handleConnection(out *Response, value []byte) {
	if equalFold(value, "keep-alive") {
		out.KeepAlive = true
	}
}

// handleIfModifiedSince downgrades the response to 304 when the client's
// cached copy is as fresh as the file. The comparison allows a microsecond
// of slack; an unparseable date is ignored.
func handleIfModifiedSince(out *Response, value []byte) {
	clientTime, err := time.Parse(httpTimeLayout, string(value))
	if err != nil {
		return
	}
	diff := out.Mtime.Sub(clientTime)
	if diff < 0 {
		diff = -diff
	}
	if diff < mtimeTolerance {
		out.Modified = false
		out.Status = 304
	}
}

func handleAcceptEncoding(out *Response, value []byte) {
	if bytes.Contains(value, []byte("gzip")) {
		out.Gzip = true
	}
}

// equalFold compares a byte span against an ASCII string ignoring case,
// without allocating.
func equalFold(b []byte, s string) bool {
	if len(b) != len(s) {
		return false
	}
	for i := 0; i < len(b); i++ {
		if lower(b[i]) != lower(s[i]) {
			return false
		}
	}
	return true
}

func lower(c byte) byte {
	if c >= 'A' && c <= 'Z' {
		return c + 32
	}
	return c
}

// Package http11 implements an incremental, resumable HTTP/1.x request-head
// parser over a fixed-capacity ring buffer.
//
// The parser is a byte-at-a-time finite state machine. In a readiness-driven
// server data arrives in arbitrary chunks: half a request line now, the rest
// on the next wakeup. The FSM examines each byte exactly once, and when the
// buffered input runs out mid-token it saves its state and returns
// ErrNeedMore; the next call resumes from the saved state without
// re-scanning. A request line split across any number of reads parses
// identically to one delivered whole.
package http11

// Method IDs for O(1) switching. The parser recognizes the three methods a
// static file server answers; anything else with a valid token charset is
// MethodUnknown, which is not itself a parse error.
const (
	MethodUnknown uint8 = iota
	MethodGET
	MethodHEAD
	MethodPOST
)

// MethodString returns the textual form of a method ID.
func MethodString(id uint8) string {
	switch id {
	case MethodGET:
		return "GET"
	case MethodHEAD:
		return "HEAD"
	case MethodPOST:
		return "POST"
	default:
		return "UNKNOWN"
	}
}

// HeaderField is one completed header pair, copied out of the ring in
// arrival order. Order is preserved because duplicate and overriding
// semantics depend on it.
type HeaderField struct {
	Key   []byte
	Value []byte
}

// Request carries the per-connection parse state: the ring buffer, the FSM
// state tag, the zero-copy markers (absolute cursor offsets into the ring),
// and the fields produced by a completed parse.
//
// Markers are only valid between the moment they are set and the moment the
// span they delimit is copied out. The parser keeps the ring's read cursor
// pinned at the start of the unconsumed syntactic element, so the write
// cursor can never advance over a marked region: an over-long element runs
// the ring out of Free() space instead, which the caller must treat as
// ErrRequestTooLarge.
type Request struct {
	Ring *Ring

	// FSM bookkeeping. state is reused by the request-line and header
	// machines (they never run concurrently on one connection). checked is
	// the next cursor position to examine; it trails last and never moves
	// backwards, which is what makes re-feeding consumed input a no-op.
	state   uint8
	checked uint64

	// Zero-copy markers into the ring.
	lineStart uint64
	uriStart  uint64
	uriEnd    uint64
	keyStart  uint64
	keyEnd    uint64
	valStart  uint64
	valEnd    uint64

	// Parsed request-line fields. URI is copied out of the ring when the
	// request line completes and is handed to the resolver verbatim: no
	// normalization, no query splitting at this layer.
	Method uint8
	URI    []byte
	Major  int
	Minor  int

	// Headers collects completed pairs for one request and is discarded by
	// the dispatch layer afterwards.
	Headers []HeaderField
}

// NewRequest returns a Request with a ring of the given capacity.
func NewRequest(ringSize int) *Request {
	return &Request{Ring: NewRing(ringSize)}
}

// Reset prepares the Request for the next request on a kept-alive
// connection. Ring cursors are preserved: bytes of a pipelined follow-up
// request already in the buffer stay exactly where they are.
func (q *Request) Reset() {
	q.state = 0
	q.checked = q.Ring.pos
	q.lineStart = 0
	q.uriStart, q.uriEnd = 0, 0
	q.keyStart, q.keyEnd = 0, 0
	q.valStart, q.valEnd = 0, 0
	q.Method = MethodUnknown
	q.URI = nil
	q.Major, q.Minor = 0, 0
	q.Headers = q.Headers[:0]
}

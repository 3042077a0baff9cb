package http11

// Ring is a fixed-capacity byte buffer addressed by two monotonically
// increasing cursors taken modulo the capacity. Bytes between pos (read
// cursor) and last (write cursor) have been received but not yet consumed
// by the parser. Consumption never moves data; it only advances pos.
//
// Invariant: last-pos < cap at all times. Free() reserves one byte so the
// cursors can never alias a full and an empty buffer; a request head that
// outgrows the capacity is a hard error surfaced by the caller, never a
// silent stall.
type Ring struct {
	buf  []byte
	pos  uint64
	last uint64
}

// DefaultRingSize is the per-connection buffer capacity. 8 KiB holds any
// request line plus headers this server is willing to accept.
const DefaultRingSize = 8192

// NewRing returns a Ring with the given capacity.
func NewRing(size int) *Ring {
	return &Ring{buf: make([]byte, size)}
}

// Buffered returns the number of received, not-yet-consumed bytes.
func (r *Ring) Buffered() int {
	return int(r.last - r.pos)
}

// Free returns how many more bytes the ring can accept before the write
// cursor would run into unconsumed data.
func (r *Ring) Free() int {
	return len(r.buf) - r.Buffered() - 1
}

// WritableChunk returns the contiguous region starting at the write cursor.
// It is bounded both by Free() and by the distance to the physical end of
// the buffer, so a single read can never overwrite unconsumed bytes; a
// wrapping write simply takes two reads. Returns nil when the ring is full.
func (r *Ring) WritableChunk() []byte {
	free := r.Free()
	if free == 0 {
		return nil
	}
	start := int(r.last % uint64(len(r.buf)))
	n := len(r.buf) - start
	if n > free {
		n = free
	}
	return r.buf[start : start+n]
}

// Commit advances the write cursor after n bytes were read into the slice
// returned by WritableChunk.
func (r *Ring) Commit(n int) {
	r.last += uint64(n)
}

// at returns the byte at absolute cursor position i.
func (r *Ring) at(i uint64) byte {
	return r.buf[i%uint64(len(r.buf))]
}

// Bytes copies the cursor range [start, end) out of the ring. The copy is
// what makes parsed spans safe to keep: once a value is copied out the
// write cursor is free to advance over that region again.
func (r *Ring) Bytes(start, end uint64) []byte {
	out := make([]byte, end-start)
	for i := start; i < end; i++ {
		out[i-start] = r.at(i)
	}
	return out
}

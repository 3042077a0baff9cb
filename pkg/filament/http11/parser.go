package http11

const (
	cr = '\r'
	lf = '\n'
)

// Request-line FSM states. The zero value is the entry state, which is what
// lets Reset re-arm the machine by clearing the state tag.
const (
	lineStart uint8 = iota
	lineMethod
	lineSpacesBeforeURI
	lineURI
	lineHTTP
	lineHTTPH
	lineHTTPHT
	lineHTTPHTT
	lineHTTPHTTP
	lineFirstMajor
	lineMajor
	lineFirstMinor
	lineMinor
	lineSpacesAfterVersion
	lineAlmostDone
)

// Header FSM states. These reuse the same state field as the request-line
// machine; the two never run concurrently on one connection.
const (
	hdrStart uint8 = iota
	hdrKey
	hdrSpacesBeforeColon
	hdrSpacesAfterColon
	hdrValue
	hdrCR
	hdrCRLF
	hdrCRLFCR
)

// ParseRequestLine advances the request-line machine over the bytes
// currently buffered in [pos, last). On completion it fills Method, URI,
// Major and Minor, consumes the line from the ring, and returns nil. On
// exhausting input mid-token it saves (state, cursor) and returns
// ErrNeedMore. Any out-of-grammar byte returns ErrInvalidMethod or
// ErrInvalidRequestLine; both are terminal.
//
// Grammar notes:
//   - Method bytes are upper-case letters or underscore. The accumulated
//     token is matched against GET/HEAD/POST by exact length and bytes;
//     anything else becomes MethodUnknown, which is not an error here.
//   - The URI starts at the first '/' after the method and runs to the next
//     space, handed through verbatim.
//   - "HTTP/" is matched literally. The version major must not start with
//     '0'; both components accumulate as decimal integers.
//   - A bare LF is accepted as the line terminator; CR must be followed
//     by LF.
func ParseRequestLine(q *Request) error {
	ring := q.Ring
	st := q.state
	pi := q.checked

	for ; pi < ring.last; pi++ {
		ch := ring.at(pi)

		switch st {
		case lineStart:
			// Skip blank lines, e.g. a stray CRLF after the previous
			// request on a kept-alive connection. These are consumed
			// immediately so they never count against ring capacity.
			if ch == cr || ch == lf {
				ring.pos = pi + 1
				break
			}
			if (ch < 'A' || ch > 'Z') && ch != '_' {
				return ErrInvalidMethod
			}
			q.lineStart = pi
			st = lineMethod

		case lineMethod:
			if ch == ' ' {
				q.Method = matchMethod(ring, q.lineStart, pi)
				st = lineSpacesBeforeURI
				break
			}
			if (ch < 'A' || ch > 'Z') && ch != '_' {
				return ErrInvalidMethod
			}

		case lineSpacesBeforeURI:
			switch ch {
			case '/':
				q.uriStart = pi
				st = lineURI
			case ' ':
			default:
				return ErrInvalidRequestLine
			}

		case lineURI:
			if ch == ' ' {
				q.uriEnd = pi
				st = lineHTTP
			}

		case lineHTTP:
			switch ch {
			case ' ':
			case 'H':
				st = lineHTTPH
			default:
				return ErrInvalidRequestLine
			}

		case lineHTTPH:
			if ch != 'T' {
				return ErrInvalidRequestLine
			}
			st = lineHTTPHT

		case lineHTTPHT:
			if ch != 'T' {
				return ErrInvalidRequestLine
			}
			st = lineHTTPHTT

		case lineHTTPHTT:
			if ch != 'P' {
				return ErrInvalidRequestLine
			}
			st = lineHTTPHTTP

		case lineHTTPHTTP:
			if ch != '/' {
				return ErrInvalidRequestLine
			}
			st = lineFirstMajor

		case lineFirstMajor:
			if ch < '1' || ch > '9' {
				return ErrInvalidRequestLine
			}
			q.Major = int(ch - '0')
			st = lineMajor

		case lineMajor:
			switch {
			case ch == '.':
				st = lineFirstMinor
			case ch < '0' || ch > '9':
				return ErrInvalidRequestLine
			default:
				q.Major = q.Major*10 + int(ch-'0')
			}

		case lineFirstMinor:
			if ch < '0' || ch > '9' {
				return ErrInvalidRequestLine
			}
			q.Minor = int(ch - '0')
			st = lineMinor

		case lineMinor:
			switch {
			case ch == cr:
				st = lineAlmostDone
			case ch == lf:
				return q.finishRequestLine(pi)
			case ch == ' ':
				st = lineSpacesAfterVersion
			case ch < '0' || ch > '9':
				return ErrInvalidRequestLine
			default:
				q.Minor = q.Minor*10 + int(ch-'0')
			}

		case lineSpacesAfterVersion:
			switch ch {
			case ' ':
			case cr:
				st = lineAlmostDone
			case lf:
				return q.finishRequestLine(pi)
			default:
				return ErrInvalidRequestLine
			}

		case lineAlmostDone:
			if ch != lf {
				return ErrInvalidRequestLine
			}
			return q.finishRequestLine(pi)
		}
	}

	q.checked = pi
	q.state = st
	return ErrNeedMore
}

// finishRequestLine consumes the completed line, copies the URI span out of
// the ring (markers must not outlive the next wraparound write) and resets
// the state tag for the header machine.
func (q *Request) finishRequestLine(pi uint64) error {
	q.URI = q.Ring.Bytes(q.uriStart, q.uriEnd)
	q.Ring.pos = pi + 1
	q.checked = pi + 1
	q.state = 0
	return nil
}

// matchMethod compares the method token against the known methods using
// exact-length, exact-byte comparison.
func matchMethod(r *Ring, start, end uint64) uint8 {
	switch end - start {
	case 3:
		if r.at(start) == 'G' && r.at(start+1) == 'E' && r.at(start+2) == 'T' {
			return MethodGET
		}
	case 4:
		if r.at(start) == 'P' && r.at(start+1) == 'O' && r.at(start+2) == 'S' && r.at(start+3) == 'T' {
			return MethodPOST
		}
		if r.at(start) == 'H' && r.at(start+1) == 'E' && r.at(start+2) == 'A' && r.at(start+3) == 'D' {
			return MethodHEAD
		}
	}
	return MethodUnknown
}

// ParseHeaders advances the header machine over the buffered bytes. Each
// completed key/value pair is copied out of the ring and appended to
// q.Headers in arrival order; the pair's bytes are consumed from the ring
// at that moment. The empty line terminates the block and returns nil.
// Returns ErrNeedMore mid-block (resumable, including from a non-initial
// state) or ErrInvalidHeader on a grammar violation.
func ParseHeaders(q *Request) error {
	ring := q.Ring
	st := q.state
	pi := q.checked

	for ; pi < ring.last; pi++ {
		ch := ring.at(pi)

		switch st {
		case hdrStart:
			switch ch {
			case cr:
				st = hdrCRLFCR
			case lf:
				return q.finishHeaders(pi)
			default:
				q.keyStart = pi
				st = hdrKey
			}

		case hdrKey:
			if ch == ' ' {
				q.keyEnd = pi
				st = hdrSpacesBeforeColon
				break
			}
			if ch == ':' {
				q.keyEnd = pi
				st = hdrSpacesAfterColon
			}

		case hdrSpacesBeforeColon:
			switch ch {
			case ' ':
			case ':':
				st = hdrSpacesAfterColon
			default:
				return ErrInvalidHeader
			}

		case hdrSpacesAfterColon:
			switch ch {
			case ' ':
			case cr:
				// Empty value.
				q.valStart, q.valEnd = pi, pi
				st = hdrCR
			case lf:
				q.valStart, q.valEnd = pi, pi
				q.commitHeader(pi)
				st = hdrCRLF
			default:
				q.valStart = pi
				st = hdrValue
			}

		case hdrValue:
			if ch == cr {
				q.valEnd = pi
				st = hdrCR
				break
			}
			if ch == lf {
				q.valEnd = pi
				q.commitHeader(pi)
				st = hdrCRLF
			}

		case hdrCR:
			if ch != lf {
				return ErrInvalidHeader
			}
			q.commitHeader(pi)
			st = hdrCRLF

		case hdrCRLF:
			switch ch {
			case cr:
				st = hdrCRLFCR
			case lf:
				return q.finishHeaders(pi)
			default:
				q.keyStart = pi
				st = hdrKey
			}

		case hdrCRLFCR:
			if ch != lf {
				return ErrInvalidHeader
			}
			return q.finishHeaders(pi)
		}
	}

	q.checked = pi
	q.state = st
	return ErrNeedMore
}

// commitHeader copies the current key/value spans out of the ring, appends
// the pair, and consumes the header line through position pi. Advancing the
// read cursor here is what keeps marked spans safe: only fully copied-out
// regions are ever handed back to the writer.
func (q *Request) commitHeader(pi uint64) {
	q.Headers = append(q.Headers, HeaderField{
		Key:   q.Ring.Bytes(q.keyStart, q.keyEnd),
		Value: q.Ring.Bytes(q.valStart, q.valEnd),
	})
	q.Ring.pos = pi + 1
}

// finishHeaders consumes the block terminator and resets the state tag for
// the next request's line machine.
func (q *Request) finishHeaders(pi uint64) error {
	q.Ring.pos = pi + 1
	q.checked = pi + 1
	q.state = 0
	return nil
}

package http11

import "errors"

// Parser outcomes. ErrNeedMore is a control-flow sentinel, not a failure:
// the caller should read more bytes and call the parser again. Every other
// error is terminal for the connection; there is no partial-request salvage.
var (
	// ErrNeedMore indicates the input ran out mid-token. Parse state has
	// been saved and the next call resumes exactly where this one stopped.
	ErrNeedMore = errors.New("http11: need more data")

	// ErrInvalidMethod indicates a byte outside [A-Z_] in the method token.
	ErrInvalidMethod = errors.New("http11: invalid method")

	// ErrInvalidRequestLine indicates the request line left the grammar
	// after the method: bad URI start, a broken "HTTP/" literal, or a
	// malformed version number.
	ErrInvalidRequestLine = errors.New("http11: invalid request line")

	// ErrInvalidHeader indicates a malformed header line or block
	// terminator.
	ErrInvalidHeader = errors.New("http11: invalid header")

	// ErrRequestTooLarge indicates a request head that exceeds the ring
	// buffer capacity before its terminator was seen.
	ErrRequestTooLarge = errors.New("http11: request head exceeds buffer capacity")
)

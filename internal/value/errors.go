package value

import "errors"

// Decode failure taxonomy (§4.1, §7). None of these are fatal to the
// connection except Malformed on the text channel, which callers SHOULD
// treat as a reason to close.
var (
	ErrMalformed     = errors.New("value: malformed frame")
	ErrUnknownType   = errors.New("value: unknown type tag")
	ErrUnexpectedEOF = errors.New("value: unexpected end of frame")
)

// Package pattern implements a Lua 5.1-compatible pattern matcher over
// Unicode codepoints rather than bytes.
//
// Grounded on Lua 5.1's lstrlib.c match engine (a well-known, widely
// ported backtracking algorithm); this is a direct structural port of
// that state machine into Go, generalized from byte classes to
// unicode.Is* category tests.
package pattern

import "errors"

// ErrMalformedPattern covers any structurally invalid pattern: an
// unterminated "%" escape, an unterminated "[...]" set, or a "%f" not
// immediately followed by "[".
var ErrMalformedPattern = errors.New("pattern: malformed pattern")

// ErrTooManyCaptures is returned when a pattern opens more than
// maxCaptures simultaneous captures.
var ErrTooManyCaptures = errors.New("pattern: too many captures")

// ErrInvalidCaptureIndex covers an unbalanced ")" with no matching "(",
// and a "%1".."%9" backreference to a capture that doesn't exist or
// hasn't closed yet.
var ErrInvalidCaptureIndex = errors.New("pattern: invalid capture index")

// ErrPatternTooComplex is returned when matching recursion exceeds
// maxMatchDepth, the same backstop Lua's C stack-depth check provides.
var ErrPatternTooComplex = errors.New("pattern: pattern too complex")

const (
	maxCaptures    = 32
	maxMatchDepth  = 500
	capPosition    = -2
	capUnfinished  = -1
)

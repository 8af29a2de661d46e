package protocol

import "errors"

// Error is a typed protocol error. Comparing with errors.Is against the
// sentinel values below tells a caller which class of problem occurred
// without parsing a message string.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// Sentinel errors wrapped by Error.
var (
	ErrInvalidParameter = errors.New("invalid FEC parameter")
	ErrTruncated        = errors.New("truncated block")
	ErrInvalidBlockKind = errors.New("invalid block kind")
	ErrPayloadTooLarge  = errors.New("payload exceeds transfer length")
	ErrNotEnoughSymbols = errors.New("not enough symbols to reconstruct block")
)

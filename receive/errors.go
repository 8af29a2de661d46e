package receive

import "errors"

// Error wraps a receiver-side failure with the stage that produced it.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return "receive: " + e.Op + ": " + e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }

// ErrPipelineBroken is returned once the pipeline has been torn down by
// Close, so blocked stages unwind instead of waiting on a channel that will
// never receive again.
var ErrPipelineBroken = errors.New("receive: pipeline broken")

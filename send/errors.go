package send

import "errors"

// Error wraps a sender-side failure with the stage that produced it.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return "send: " + e.Op + ": " + e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }

var (
	// ErrPipelineBroken is returned by any stage once the pipeline has been
	// torn down, so a caller blocked on a channel send knows to give up
	// instead of waiting forever on a pipeline that will never drain.
	ErrPipelineBroken = errors.New("send: pipeline broken")
)

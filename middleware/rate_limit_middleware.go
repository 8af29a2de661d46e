package middleware

import (
	"errors"

	"golang.org/x/time/rate"

	"github.com/r3dlight/godiode/protocol"
)

// ErrRateLimited is returned by a rate-limited step when the token bucket is
// empty. The sender treats it like any other framer error: the client's
// transfer is aborted rather than silently stalled.
var ErrRateLimited = errors.New("middleware: rate limit exceeded")

// RateLimitMiddleware paces how fast new blocks are admitted into the
// encoder using a token-bucket limiter. The limiter is built once, in the
// outer closure, and shared across every call so the bucket actually
// accumulates and drains across blocks instead of resetting per call.
func RateLimitMiddleware(r float64, burst int) Middleware {
	limiter := rate.NewLimiter(rate.Limit(r), burst)
	return func(next BlockFunc) BlockFunc {
		return func(b protocol.Block) error {
			if !limiter.Allow() {
				return ErrRateLimited
			}
			return next(b)
		}
	}
}

package middleware

import (
	"time"

	"go.uber.org/zap"

	"github.com/r3dlight/godiode/protocol"
)

// LoggingMiddleware logs the client id, block kind, and processing duration
// for every block that passes through the wrapped step, plus the error if
// the step returned one.
func LoggingMiddleware(log *zap.Logger) Middleware {
	return func(next BlockFunc) BlockFunc {
		return func(b protocol.Block) error {
			start := time.Now()
			err := next(b)
			fields := []zap.Field{
				zap.Uint32("client_id", uint32(b.ClientID())),
				zap.Stringer("kind", b.Kind()),
				zap.Duration("duration", time.Since(start)),
			}
			if err != nil {
				log.Warn("block processing failed", append(fields, zap.Error(err))...)
			} else {
				log.Debug("block processed", fields...)
			}
			return err
		}
	}
}

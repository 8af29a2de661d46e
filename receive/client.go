package receive

import (
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/r3dlight/godiode/protocol"
)

// Sink is whatever a receiver writes one client's decoded payload to. Flush
// lets a buffered sink push bytes out promptly when diodecfg.Receiver.Flush
// is set, without forcing every Sink implementation to be unbuffered.
type Sink interface {
	io.Writer
	Flush() error
}

// SinkFactory opens a Sink for a newly observed client transfer. It is
// called from the per-client writer goroutine, after that goroutine has
// already acquired a transfer slot.
type SinkFactory func(id protocol.ClientId) (Sink, error)

// runClientWriter consumes one client's blocks in order, in the order
// dispatch hands them out on ch, writing each Data payload to a Sink opened
// for this transfer. It terminates on End (flushing first), Abort, a write
// error, or — if configured — AbortTimeout of silence between blocks.
func (r *Receiver) runClientWriter(clientID protocol.ClientId, ch <-chan protocol.Block) {
	if !r.acquireSlot() {
		return
	}
	defer r.releaseSlot()

	sink, err := r.sinkFactory(clientID)
	if err != nil {
		r.log.Error("failed to open sink for client", zap.Uint32("client_id", uint32(clientID)), zap.Error(err))
		for range ch {
		}
		r.reg.TransferEnded(clientID, true)
		return
	}

	var timer *time.Timer
	var timeoutC <-chan time.Time
	if r.cfg.AbortTimeout > 0 {
		timer = time.NewTimer(r.cfg.AbortTimeout)
		timeoutC = timer.C
		defer timer.Stop()
	}

	aborted := false
loop:
	for {
		select {
		case block, ok := <-ch:
			if !ok {
				break loop
			}
			if timer != nil {
				if !timer.Stop() {
					select {
					case <-timeoutC:
					default:
					}
				}
				timer.Reset(r.cfg.AbortTimeout)
			}

			switch block.Kind() {
			case protocol.BlockStart:
				// nothing to write; marks the beginning of the stream.
			case protocol.BlockData:
				if _, werr := sink.Write(block.Payload()); werr != nil {
					r.log.Error("client write failed", zap.Uint32("client_id", uint32(clientID)), zap.Error(werr))
					aborted = true
					break loop
				}
				if r.cfg.Flush {
					if ferr := sink.Flush(); ferr != nil {
						r.log.Warn("client flush failed", zap.Uint32("client_id", uint32(clientID)), zap.Error(ferr))
					}
				}
			case protocol.BlockAbort:
				aborted = true
				break loop
			case protocol.BlockEnd:
				if ferr := sink.Flush(); ferr != nil {
					r.log.Warn("client flush failed", zap.Uint32("client_id", uint32(clientID)), zap.Error(ferr))
				}
				break loop
			}

		case <-timeoutC:
			r.log.Warn("client abort timeout elapsed", zap.Uint32("client_id", uint32(clientID)))
			aborted = true
			break loop

		case <-r.done:
			return
		}
	}

	r.reg.TransferEnded(clientID, aborted)
}

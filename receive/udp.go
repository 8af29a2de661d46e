package receive

import (
	"go.uber.org/zap"
)

// udpReceiveLoop pulls batches of datagrams off the link and forwards each
// one individually to the reblock stage. It stops as soon as the pipeline
// is closed; any error surfaced by a closed socket is expected and silent.
func (r *Receiver) udpReceiveLoop() {
	for {
		select {
		case <-r.done:
			return
		default:
		}

		dg, err := r.reader.Recv()
		if err != nil {
			select {
			case <-r.done:
				return
			default:
			}
			r.log.Error("udp recv failed", zap.Error(err))
			continue
		}
		for _, buf := range dg.Buffers {
			select {
			case r.toReblock <- buf:
			case <-r.done:
				return
			}
		}
	}
}

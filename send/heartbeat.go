package send

import (
	"time"

	"github.com/r3dlight/godiode/protocol"
)

// heartbeatLoop injects a Heartbeat block on every tick so the receiver's
// dispatch watchdog can tell an idle sender from a dead one. It stops as
// soon as the pipeline is closed.
func (s *Sender) heartbeatLoop() {
	defer s.producersWG.Done()

	ticker := time.NewTicker(s.cfg.HeartbeatInterval)
	defer ticker.Stop()

	maxDataLen := int(s.fec.TransferLength()) - protocol.SerializeOverhead

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			block, err := protocol.NewBlock(protocol.BlockHeartbeat, protocol.ClientId(0), nil, maxDataLen)
			if err != nil {
				continue
			}
			_ = s.submit(block)
		}
	}
}

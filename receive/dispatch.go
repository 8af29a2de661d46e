package receive

import (
	"time"

	"go.uber.org/zap"

	"github.com/r3dlight/godiode/protocol"
)

// dispatchLoop is the single worker that turns the decoded, globally
// ordered block stream back into per-client streams. Running on one
// goroutine means routing decisions (which client a block belongs to,
// whether a transfer has already ended) need no locking.
func (r *Receiver) dispatchLoop() {
	active := make(map[protocol.ClientId]chan protocol.Block)
	ended := make(map[protocol.ClientId]chan protocol.Block)
	lastActivity := time.Now()

	var watchdog <-chan time.Time
	if r.cfg.HeartbeatTimeout > 0 {
		ticker := time.NewTicker(r.cfg.HeartbeatTimeout)
		defer ticker.Stop()
		watchdog = ticker.C
	}

	for {
		select {
		case <-r.done:
			for _, ch := range active {
				close(ch)
			}
			return

		case d, ok := <-r.toDispatch:
			if !ok {
				for _, ch := range active {
					close(ch)
				}
				return
			}
			if d.block == nil {
				// Synchronization lost: reblock or decode could not make sense
				// of the stream any further. Every transfer in flight is
				// unrecoverable, so each gets a synthetic Abort and active is
				// cleared; a fresh Start reopens a clean transfer.
				r.log.Warn("synchronization lost, aborting active transfers")
				r.reg.SyncLost()
				maxDataLen := int(r.fec.TransferLength()) - protocol.SerializeOverhead
				for cid, ch := range active {
					abort, err := protocol.NewBlock(protocol.BlockAbort, cid, nil, maxDataLen)
					if err != nil {
						r.log.Error("failed to build synthetic abort block", zap.Uint32("client_id", uint32(cid)), zap.Error(err))
						close(ch)
						continue
					}
					select {
					case ch <- abort:
					case <-r.done:
						return
					}
					close(ch)
				}
				active = make(map[protocol.ClientId]chan protocol.Block)
				continue
			}
			lastActivity = time.Now()

			cid := d.block.ClientID()
			kind := d.block.Kind()

			if kind == protocol.BlockHeartbeat {
				r.reg.HeartbeatObserved()
				continue
			}
			if _, done := ended[cid]; done {
				continue
			}

			ch, exists := active[cid]
			if !exists {
				if kind != protocol.BlockStart {
					// Data/End/Abort without ever seeing Start: the Start
					// block itself was lost. Nothing to route it to.
					continue
				}
				admit := func(protocol.Block) error {
					ch = make(chan protocol.Block, 1)
					active[cid] = ch
					r.reg.TransferStarted(cid)
					go r.runClientWriter(cid, ch)
					return nil
				}
				if r.chain != nil {
					admit = r.chain(admit)
				}
				if err := admit(d.block); err != nil {
					// Paced out by the admission chain (e.g. rate limited):
					// treat cid as if its Start had never arrived.
					r.log.Warn("new client rejected by admission middleware",
						zap.Uint32("client_id", uint32(cid)), zap.Error(err))
					continue
				}
			}

			select {
			case ch <- d.block:
			case <-r.done:
				return
			}

			if kind == protocol.BlockEnd || kind == protocol.BlockAbort {
				delete(active, cid)
				// Purge terminated transfers whose writer has drained its
				// queue before recording this one.
				for id, q := range ended {
					if len(q) == 0 {
						delete(ended, id)
					}
				}
				ended[cid] = ch
				close(ch)
			}

		case <-watchdog:
			if time.Since(lastActivity) >= r.cfg.HeartbeatTimeout {
				r.log.Warn("no traffic observed within heartbeat timeout; sender may be down",
					zap.Duration("since_last_activity", time.Since(lastActivity)))
			}
		}
	}
}

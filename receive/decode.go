package receive

import (
	"go.uber.org/zap"

	"github.com/r3dlight/godiode/protocol"
)

// decodedBlock carries the result of attempting to FEC-decode one block. A
// nil Block means the block could not be reconstructed or parsed, or that
// reblock reported synchronization lost; dispatch treats every nil Block as
// synchronization lost.
type decodedBlock struct {
	blockID protocol.BlockId
	block   protocol.Block
}

// decodeWorker is one of NbDecodeThreads goroutines reconstructing blocks
// independently. Reconstruction itself runs fully in parallel, but results
// are published to toDispatch in the same order reblock flushed them in, via
// the same claim-then-wait-your-turn ticket discipline the sender's encoder
// pool uses to keep its output ordered.
func (r *Receiver) decodeWorker() {
	defer r.decodersWG.Done()

	for item := range r.toDecode {
		var out decodedBlock
		switch {
		case item.syncLost:
			// Passed through verbatim from reblock: not a decode attempt at
			// all, just the same synchronization-lost signal relayed in
			// order with every other item on this channel.
			out = decodedBlock{blockID: item.blockID}
		default:
			if raw, ok := r.fec.Decode(item.packets); !ok {
				out = decodedBlock{blockID: item.blockID}
			} else if block, err := protocol.ParseBlock(raw); err != nil {
				r.log.Warn("reconstructed block failed to parse", zap.Uint8("block_id", uint8(item.blockID)), zap.Error(err))
				out = decodedBlock{blockID: item.blockID}
			} else {
				out = decodedBlock{blockID: item.blockID, block: block}
			}
		}

		r.dispatchSeqMu.Lock()
		for r.nextDispatch != item.seq {
			r.dispatchSeqCond.Wait()
		}
		select {
		case r.toDispatch <- out:
		case <-r.done:
		}
		r.nextDispatch++
		r.dispatchSeqCond.Broadcast()
		r.dispatchSeqMu.Unlock()
	}
}


package receive

import (
	"time"

	"go.uber.org/zap"

	"github.com/r3dlight/godiode/protocol"
)

// windowWidth is how many consecutive block ids, starting at the window
// head, the reblock stage accepts at once. BlockId wraps at 256, so the
// other half of the id space stays ignored as the recent past of ids
// already flushed.
const windowWidth = 128

// reassembled is one block's worth of FEC symbols, handed to a decode
// worker once the block's bucket holds at least SymbolCount distinct
// symbols. seq is a strictly increasing counter assigned at flush time;
// since BlockId itself wraps at 256 and decode workers run in parallel,
// dispatch needs seq, not blockID, to tell emission order back apart.
//
// syncLost marks a synchronization-lost event (a too-far loss while
// advancing the window, or a damaged window caught at a reset timeout)
// rather than a real block; decode passes it through verbatim to dispatch,
// which aborts every active transfer.
type reassembled struct {
	blockID  protocol.BlockId
	seq      uint64
	packets  []protocol.Packet
	syncLost bool
}

type reblockBucket struct {
	packets []protocol.Packet
	seen    map[uint16]bool
}

// reblockLoop is the sole writer of sliding-window state, so it runs on one
// goroutine and needs no locking. It accepts raw datagrams in arrival
// order, sorts FEC symbols into per-block-id buckets, and emits the head
// bucket downstream to decoding as soon as it has enough symbols to
// reconstruct its block, then advances the window by one. A head bucket
// that never fills is never emitted: it holds the window until a reset
// timeout, if one is configured, re-anchors it on the next datagram.
func (r *Receiver) reblockLoop() {
	var buckets [256]*reblockBucket
	var ignore [256]bool
	var head protocol.BlockId
	var seq uint64
	haveFirst := false
	// pendingReset is set once a too-far loss has already reported
	// synchronization lost; the next arriving datagram re-anchors the
	// window instead of being routed against the now-meaningless one.
	pendingReset := false

	for i := range ignore {
		ignore[i] = true
	}

	flush := func(id protocol.BlockId) {
		b := buckets[id]
		buckets[id] = nil
		item := reassembled{blockID: id, seq: seq, packets: b.packets}
		seq++
		select {
		case r.toDecode <- item:
		case <-r.done:
		}
	}

	sendSyncLost := func() {
		item := reassembled{seq: seq, syncLost: true}
		seq++
		select {
		case r.toDecode <- item:
		case <-r.done:
		}
	}

	// resetWindow clears every bucket, re-anchors the 128-wide accepted
	// window on newHead, and marks the other half ignored again.
	resetWindow := func(newHead protocol.BlockId) {
		for i := range buckets {
			buckets[i] = nil
		}
		for i := range ignore {
			ignore[i] = true
		}
		head = newHead
		id := head
		for i := 0; i < windowWidth; i++ {
			ignore[id] = false
			id++
		}
	}

	var timer *time.Timer
	var timerC <-chan time.Time
	if r.cfg.ResetTimeout > 0 {
		timer = time.NewTimer(r.cfg.ResetTimeout)
		timerC = timer.C
		defer timer.Stop()
	}

	// reblockLoop is the only goroutine that ever sends on toDecode, so it
	// alone is responsible for closing it once no more blocks will be
	// flushed, letting the decode pool's range loops terminate.
	defer close(r.toDecode)

	for {
		select {
		case <-r.done:
			return

		case raw, ok := <-r.toReblock:
			if !ok {
				return
			}
			if timer != nil {
				if !timer.Stop() {
					<-timerC
				}
				timer.Reset(r.cfg.ResetTimeout)
			}

			var pkt protocol.Packet
			if err := pkt.UnmarshalBinary(raw); err != nil {
				continue
			}
			// The bucket keeps its own copy of the symbol rather than
			// sharing raw's memory.
			symbol := make([]byte, len(pkt.Symbol))
			copy(symbol, pkt.Symbol)
			pkt.Symbol = symbol

			id := pkt.BlockID
			if !haveFirst || pendingReset {
				resetWindow(id)
				haveFirst = true
				pendingReset = false
			}

			if ignore[id] {
				// Outside the currently accepted window: either stale
				// reordering beyond realistic reorder depth, or a
				// recently-flushed id's "recent past" half. Drop it rather
				// than force the window to accommodate it.
				continue
			}

			b := buckets[id]
			if b == nil {
				b = &reblockBucket{seen: make(map[uint16]bool, r.fec.SymbolCount())}
				buckets[id] = b
			}
			if !b.seen[pkt.SymbolIndex] {
				b.seen[pkt.SymbolIndex] = true
				b.packets = append(b.packets, pkt)
			}

			for buckets[head] != nil && len(buckets[head].packets) >= int(r.fec.SymbolCount()) {
				flush(head)
				ignore[head] = true

				opposite := head + windowWidth
				ignore[opposite] = false

				if ob := buckets[opposite]; ob != nil && len(ob.packets) > 0 {
					r.log.Warn("lost block too far ahead of reassembly window", zap.Uint8("block_id", uint8(opposite)))
					sendSyncLost()
					pendingReset = true
					break
				}

				head++
			}

		case <-timerC:
			// Silence for ResetTimeout means the sender likely restarted,
			// which resets its block id counter to zero. Before discarding
			// the window, check whether the half we'd already given up on
			// (the "ignored" half) still holds stray packets: that would
			// mean the window was damaged, not just idle.
			damaged := false
			for i := 0; i < 256; i++ {
				if ignore[i] && buckets[i] != nil && len(buckets[i].packets) > 0 {
					damaged = true
					break
				}
			}
			if damaged {
				r.log.Warn("reassembly window damaged at reset timeout")
				sendSyncLost()
			}
			haveFirst = false
			pendingReset = false
			timer.Reset(r.cfg.ResetTimeout)
		}
	}
}

package send

import "go.uber.org/zap"

// encodeWorker is one of NbEncodeThreads goroutines racing to pull blocks
// off toEncode and FEC-encode them. Encoding itself can run fully in
// parallel, but the encoded packet lists must reach toSend in the same
// order the blocks were claimed in, so the receiver's reblock window sees a
// monotonically advancing sequence of block ids. A ticket taken at claim
// time and redeemed at publish time enforces that ordering without
// serializing the (expensive) encode step itself.
func (s *Sender) encodeWorker() {
	defer s.encodersWG.Done()

	for {
		// The claim lock is held across the channel receive itself, not just
		// the ticket increment: otherwise two workers can dequeue in one
		// order but race each other onto the lock in the other order, handing
		// a later-arrived block a lower ticket than an earlier one.
		s.sendMu.Lock()
		block, ok := <-s.toEncode
		if !ok {
			s.sendMu.Unlock()
			return
		}
		ticket := s.nextEncode
		s.nextEncode++
		s.sendMu.Unlock()

		packets, err := s.fec.Encode(ticket, block)
		if err != nil {
			s.log.Error("FEC encode failed, dropping block", zap.Error(err))
			packets = nil
		}

		s.sendMu.Lock()
		for s.nextSend != ticket {
			s.sendCond.Wait()
		}
		select {
		case s.toSend <- packets:
		case <-s.done:
		}
		s.nextSend++
		s.sendCond.Broadcast()
		s.sendMu.Unlock()
	}
}

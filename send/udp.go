package send

import "go.uber.org/zap"

// transmitLoop drains toSend in order and writes each block's packets to
// the diode link. A nil packet list (left behind by a block that failed to
// FEC-encode) is skipped rather than sent as garbage.
func (s *Sender) transmitLoop() {
	for packets := range s.toSend {
		if packets == nil {
			continue
		}
		datagrams := make([][]byte, len(packets))
		for i, p := range packets {
			data, err := p.MarshalBinary()
			if err != nil {
				s.log.Error("failed to marshal FEC packet", zap.Error(err))
				continue
			}
			datagrams[i] = data
		}
		if err := s.writer.Send(datagrams); err != nil {
			s.log.Error("udp send failed", zap.Error(err))
		}
	}
}

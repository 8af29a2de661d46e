package send

import (
	"fmt"
	"io"

	"github.com/r3dlight/godiode/protocol"
)

// Source is whatever a sender reads one client's cleartext stream from. It
// is deliberately just io.Reader: the diode core does not care whether the
// bytes came from a TCP connection, a pipe, or a file, only that it can be
// cut into fixed-size chunks.
type Source interface {
	io.Reader
}

// runFramer reads client to completion, emitting a Start block followed by
// zero or more Data blocks of at most maxDataLen bytes of payload each,
// zero-padded to the full block length. With cfg.Flush unset it fills each
// Data block before emitting it, so only the last one may carry less; with
// cfg.Flush set it emits whatever each single Read returned. It returns a non-nil error only when client.Read
// failed for a reason other than io.EOF, in which case the caller is
// expected to emit an Abort instead of an End.
func (s *Sender) runFramer(clientID protocol.ClientId, client Source) error {
	maxDataLen := int(s.fec.TransferLength()) - protocol.SerializeOverhead

	start, err := protocol.NewBlock(protocol.BlockStart, clientID, nil, maxDataLen)
	if err != nil {
		return err
	}
	if err := s.submit(start); err != nil {
		return err
	}

	buf := make([]byte, maxDataLen)
	for {
		var n int
		var err error
		if s.cfg.Flush {
			n, err = client.Read(buf)
		} else {
			n, err = io.ReadFull(client, buf)
		}
		if n > 0 {
			block, berr := protocol.NewBlock(protocol.BlockData, clientID, buf[:n], maxDataLen)
			if berr != nil {
				return berr
			}
			if serr := s.submit(block); serr != nil {
				return serr
			}
		}
		switch {
		case err == nil:
			continue
		case err == io.EOF, err == io.ErrUnexpectedEOF:
			return nil
		default:
			return fmt.Errorf("send: read client %d: %w", clientID, err)
		}
	}
}

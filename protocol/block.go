// Package protocol implements the fixed-size block framing and forward error
// correction used to carry client byte streams across a one-way UDP link.
//
// Every client stream is cut into blocks of identical on-wire size. A block
// never shrinks to fit its payload: short payloads are zero-padded up to
// transfer_length so that every block produces the same number of FEC
// symbols, which in turn keeps decoding parameters constant for the whole
// transfer.
//
// Block wire format:
//
//	0        4  5              9
//	┌────────┬──┬───────────────┬───────────────────────┐
//	│clientID│k │   payloadLen  │   payload + padding    │
//	│ uint32 │  │    uint32     │   transferLength bytes │
//	└────────┴──┴───────────────┴───────────────────────┘
//	  LE        LE
package protocol

import (
	"encoding/binary"
	"fmt"
	"sync/atomic"
)

// SerializeOverhead is the number of header bytes prepended to every block's
// payload: 4 (client id) + 1 (kind) + 4 (payload length).
const SerializeOverhead = 9

// ClientId identifies one client's transfer for the lifetime of that
// transfer. It is assigned by the sender and is never reused within a
// process, so the receiver can use it to distinguish consecutive transfers
// from the same peer.
type ClientId uint32

// BlockId is the sequence number a sender assigns to every block it emits,
// across all of its clients, wrapping modulo 256. The receiver's reblock stage relies on this wraparound to size
// its reorder window.
type BlockId uint8

var clientIDCounter atomic.Uint32

// NewClientID returns a fresh, process-unique ClientId. Counter starts at 1
// so that 0 can be reserved as a "no client" sentinel where useful.
func NewClientID() ClientId {
	return ClientId(clientIDCounter.Add(1))
}

// BlockKind identifies what role a block plays in a client's transfer.
type BlockKind uint8

const (
	// BlockHeartbeat is emitted on an idle link to let the receiver tell a
	// dead sender apart from a sender that simply has no data to send.
	BlockHeartbeat BlockKind = 0
	// BlockStart opens a new client transfer. Its payload is empty.
	BlockStart BlockKind = 1
	// BlockData carries a chunk of client payload.
	BlockData BlockKind = 2
	// BlockAbort signals that the transfer failed partway through. The
	// receiver stops writing this client's payload and records the transfer
	// as aborted; bytes already written to the client's sink stay written.
	BlockAbort BlockKind = 3
	// BlockEnd closes a transfer cleanly. Its payload is empty.
	BlockEnd BlockKind = 4
)

func (k BlockKind) String() string {
	switch k {
	case BlockHeartbeat:
		return "heartbeat"
	case BlockStart:
		return "start"
	case BlockData:
		return "data"
	case BlockAbort:
		return "abort"
	case BlockEnd:
		return "end"
	default:
		return fmt.Sprintf("blockkind(%d)", uint8(k))
	}
}

func validKind(k uint8) bool {
	return k <= uint8(BlockEnd)
}

// Block is a serialized frame: header plus payload plus zero padding, sized
// to exactly the transfer length negotiated for the session. It is kept as a
// raw byte slice, mirroring the wire representation, so that it can be
// handed straight to the FEC encoder without another copy.
type Block []byte

// NewBlock builds a Block of length SerializeOverhead+transferLength,
// writing the header and payload and zero-padding the remainder.
func NewBlock(kind BlockKind, clientID ClientId, payload []byte, transferLength int) (Block, error) {
	if len(payload) > transferLength {
		return nil, &Error{Op: "NewBlock", Err: ErrPayloadTooLarge}
	}
	b := make(Block, SerializeOverhead+transferLength)
	binary.LittleEndian.PutUint32(b[0:4], uint32(clientID))
	b[4] = byte(kind)
	binary.LittleEndian.PutUint32(b[5:9], uint32(len(payload)))
	copy(b[9:], payload)
	return b, nil
}

// ParseBlock validates and wraps a raw byte slice already known to be
// SerializeOverhead+transferLength bytes long, such as one reassembled by
// the FEC decoder.
func ParseBlock(data []byte) (Block, error) {
	if len(data) < SerializeOverhead {
		return nil, &Error{Op: "ParseBlock", Err: ErrTruncated}
	}
	if !validKind(data[4]) {
		return nil, &Error{Op: "ParseBlock", Err: ErrInvalidBlockKind}
	}
	payloadLen := binary.LittleEndian.Uint32(data[5:9])
	if int(payloadLen) > len(data)-SerializeOverhead {
		return nil, &Error{Op: "ParseBlock", Err: ErrTruncated}
	}
	return Block(data), nil
}

// ClientID returns the block's client id.
func (b Block) ClientID() ClientId {
	return ClientId(binary.LittleEndian.Uint32(b[0:4]))
}

// Kind returns the block's kind byte.
func (b Block) Kind() BlockKind {
	return BlockKind(b[4])
}

// Payload returns the block's payload, excluding the header and any zero
// padding added to reach the transfer length.
func (b Block) Payload() []byte {
	n := binary.LittleEndian.Uint32(b[5:9])
	return b[9 : 9+n]
}

// MaxDataLen returns the largest payload a block of this serialized length
// could carry, i.e. its own length minus the header.
func (b Block) MaxDataLen() int {
	return len(b) - SerializeOverhead
}

package protocol

import (
	"encoding/binary"
)

// packetHeaderSize is the 4-byte header prefixed to every FEC symbol placed
// on the wire: 1 byte block id, 1 reserved byte, 2 bytes (big-endian)
// encoding symbol id.
const packetHeaderSize = 4

// Packet is one FEC-encoded symbol ready to be sent as (or extracted from)
// a single UDP datagram payload.
type Packet struct {
	BlockID     BlockId
	SymbolIndex uint16
	Symbol      []byte
}

// MarshalBinary encodes the packet header and symbol into a single byte
// slice suitable for use as a UDP datagram payload.
func (p Packet) MarshalBinary() ([]byte, error) {
	out := make([]byte, packetHeaderSize+len(p.Symbol))
	out[0] = byte(p.BlockID)
	out[1] = 0 // reserved
	binary.BigEndian.PutUint16(out[2:4], p.SymbolIndex)
	copy(out[packetHeaderSize:], p.Symbol)
	return out, nil
}

// UnmarshalBinary decodes a UDP datagram payload produced by MarshalBinary.
// The returned Symbol slice aliases data; callers that retain the packet
// beyond the lifetime of the receive buffer must copy it first.
func (p *Packet) UnmarshalBinary(data []byte) error {
	if len(data) < packetHeaderSize {
		return &Error{Op: "Packet.UnmarshalBinary", Err: ErrTruncated}
	}
	p.BlockID = BlockId(data[0])
	p.SymbolIndex = binary.BigEndian.Uint16(data[2:4])
	p.Symbol = data[packetHeaderSize:]
	return nil
}

// PeekBlockID extracts the block id from a raw datagram without allocating
// or validating the rest of the packet. The reblock stage uses this to sort
// incoming datagrams into buckets before full decode is attempted.
func PeekBlockID(data []byte) (BlockId, error) {
	if len(data) < packetHeaderSize {
		return 0, &Error{Op: "PeekBlockID", Err: ErrTruncated}
	}
	return BlockId(data[0]), nil
}

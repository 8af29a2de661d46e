package protocol

import (
	"math"

	"github.com/klauspost/reedsolomon"
)

// ipUDPHeaderOverhead is the worst-case IPv4+UDP header size subtracted from
// the path MTU before deriving the FEC symbol size, matching the allowance
// every example in this codebase leaves for encapsulation.
const ipUDPHeaderOverhead = 28

// FEC holds the erasure-coding parameters derived from a link MTU, a block
// size, and a repair percentage. All three numbers are fixed for the
// lifetime of a transfer: every block produced by a sender using this FEC
// is split into the same number of data symbols and protected by the same
// number of repair symbols, so a receiver configured identically can
// reconstruct any block from any SymbolCount of the NbPackets symbols sent.
//
// FEC is safe for concurrent use: Encode and Decode hold no mutable state.
type FEC struct {
	maxPacketSize  uint16
	transferLength uint32
	symbolCount    uint16
	repairCount    uint16

	enc reedsolomon.Encoder // nil when repairCount == 0
}

// ComputeFEC derives FEC parameters for the given path MTU, cleartext block
// size, and repair percentage (0-100). It returns ErrInvalidParameter if any
// derived quantity would not fit its wire field or would be non-positive.
func ComputeFEC(mtu uint16, blockSize uint32, repairPercent uint32) (*FEC, error) {
	if mtu <= ipUDPHeaderOverhead+packetHeaderSize {
		return nil, &Error{Op: "ComputeFEC", Err: ErrInvalidParameter}
	}
	raw := int(mtu) - ipUDPHeaderOverhead - packetHeaderSize
	maxPacketSize := (raw / 8) * 8
	if maxPacketSize <= 0 {
		return nil, &Error{Op: "ComputeFEC", Err: ErrInvalidParameter}
	}
	if maxPacketSize > math.MaxUint16 {
		return nil, &Error{Op: "ComputeFEC", Err: ErrInvalidParameter}
	}
	if blockSize == 0 {
		return nil, &Error{Op: "ComputeFEC", Err: ErrInvalidParameter}
	}

	symbolCount64 := uint64(blockSize) / uint64(maxPacketSize)
	if symbolCount64 == 0 || symbolCount64 > math.MaxUint16 {
		return nil, &Error{Op: "ComputeFEC", Err: ErrInvalidParameter}
	}
	symbolCount := uint16(symbolCount64)

	transferLength64 := uint64(maxPacketSize) * uint64(symbolCount)
	if transferLength64 > math.MaxUint32 {
		return nil, &Error{Op: "ComputeFEC", Err: ErrInvalidParameter}
	}
	transferLength := uint32(transferLength64)

	repairCount64 := (uint64(transferLength) / 100 * uint64(repairPercent)) / uint64(maxPacketSize)
	if repairCount64 > math.MaxUint16 {
		return nil, &Error{Op: "ComputeFEC", Err: ErrInvalidParameter}
	}
	repairCount := uint16(repairCount64)

	if int(symbolCount)+int(repairCount) > math.MaxUint8+1 {
		// The wire header carries the encoding symbol id in 2 bytes, but
		// this check limits data plus repair shards to 256 in total and
		// rejects any larger parameter set, so the Leopard GF16 option
		// selected below for more than 256 shards is never reached.
		return nil, &Error{Op: "ComputeFEC", Err: ErrInvalidParameter}
	}

	f := &FEC{
		maxPacketSize:  uint16(maxPacketSize),
		transferLength: transferLength,
		symbolCount:    symbolCount,
		repairCount:    repairCount,
	}

	if repairCount > 0 {
		opts := []reedsolomon.Option{reedsolomon.WithAutoGoroutines(int(maxPacketSize))}
		if int(symbolCount)+int(repairCount) > 256 {
			opts = append(opts, reedsolomon.WithLeopardGF16(true))
		}
		enc, err := reedsolomon.New(int(symbolCount), int(repairCount), opts...)
		if err != nil {
			return nil, &Error{Op: "ComputeFEC", Err: err}
		}
		f.enc = enc
	}

	return f, nil
}

// MaxPacketSize is the fixed symbol size, and therefore the size of every
// FEC-bearing UDP payload this FEC produces (plus the 4-byte packet header).
func (f *FEC) MaxPacketSize() uint16 { return f.maxPacketSize }

// TransferLength is the fixed cleartext size of every block this FEC
// encodes, including header and padding.
func (f *FEC) TransferLength() uint32 { return f.transferLength }

// SymbolCount is the number of data symbols a block is split into.
func (f *FEC) SymbolCount() uint16 { return f.symbolCount }

// RepairCount is the number of extra parity symbols sent alongside the data
// symbols so the receiver can tolerate losing up to RepairCount of them.
func (f *FEC) RepairCount() uint16 { return f.repairCount }

// NbPackets is the total number of symbols (data + repair) one block
// produces, and so the number of UDP datagrams sent per block.
func (f *FEC) NbPackets() uint16 { return f.symbolCount + f.repairCount }

// Encode splits block (which must be exactly TransferLength bytes) into
// SymbolCount data shards, computes RepairCount parity shards, and returns
// NbPackets wire-ready packets.
func (f *FEC) Encode(blockID BlockId, block Block) ([]Packet, error) {
	if uint32(len(block)) != f.transferLength {
		return nil, &Error{Op: "FEC.Encode", Err: ErrInvalidParameter}
	}

	total := int(f.NbPackets())
	shards := make([][]byte, total)
	for i := 0; i < int(f.symbolCount); i++ {
		shards[i] = block[i*int(f.maxPacketSize) : (i+1)*int(f.maxPacketSize)]
	}
	if f.repairCount > 0 {
		for i := int(f.symbolCount); i < total; i++ {
			shards[i] = make([]byte, f.maxPacketSize)
		}
		if err := f.enc.Encode(shards); err != nil {
			return nil, &Error{Op: "FEC.Encode", Err: err}
		}
	}

	packets := make([]Packet, total)
	for i, shard := range shards {
		packets[i] = Packet{BlockID: blockID, SymbolIndex: uint16(i), Symbol: shard}
	}
	return packets, nil
}

// Decode reassembles a block from any SymbolCount (or more) of the packets
// produced by Encode for the same block id. It returns ok=false if fewer
// than SymbolCount distinct, in-range symbols were supplied.
func (f *FEC) Decode(packets []Packet) (Block, bool) {
	total := int(f.NbPackets())
	shards := make([][]byte, total)
	have := 0
	for _, p := range packets {
		idx := int(p.SymbolIndex)
		if idx < 0 || idx >= total {
			continue
		}
		if shards[idx] != nil {
			continue
		}
		if len(p.Symbol) != int(f.maxPacketSize) {
			continue
		}
		shards[idx] = p.Symbol
		have++
	}
	if have < int(f.symbolCount) {
		return nil, false
	}

	if have < total && f.repairCount > 0 {
		if err := f.enc.ReconstructData(shards); err != nil {
			return nil, false
		}
	}

	block := make(Block, f.transferLength)
	for i := 0; i < int(f.symbolCount); i++ {
		if shards[i] == nil {
			return nil, false
		}
		copy(block[i*int(f.maxPacketSize):], shards[i])
	}
	return block, true
}

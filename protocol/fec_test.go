package protocol

import (
	"bytes"
	"math/rand"
	"testing"
)

func TestComputeFECDerivesExactMultiple(t *testing.T) {
	fec, err := ComputeFEC(1500, 734928, 2)
	if err != nil {
		t.Fatalf("ComputeFEC failed: %v", err)
	}
	if fec.MaxPacketSize()%8 != 0 {
		t.Errorf("max packet size not a multiple of 8: %d", fec.MaxPacketSize())
	}
	if fec.TransferLength() != uint32(fec.MaxPacketSize())*uint32(fec.SymbolCount()) {
		t.Errorf("transfer length inconsistent with symbol count")
	}
	if fec.RepairCount() == 0 {
		t.Errorf("expected nonzero repair count at 2%% repair")
	}
}

func TestComputeFECRejectsDegenerateMTU(t *testing.T) {
	if _, err := ComputeFEC(30, 1024, 2); err == nil {
		t.Fatal("expected error for MTU too small to carry a header, got nil")
	}
}

func TestComputeFECRejectsZeroBlockSize(t *testing.T) {
	if _, err := ComputeFEC(1500, 0, 2); err == nil {
		t.Fatal("expected error for zero block size, got nil")
	}
}

func TestFECEncodeDecodeNoLoss(t *testing.T) {
	fec, err := ComputeFEC(1500, 16384, 10)
	if err != nil {
		t.Fatalf("ComputeFEC failed: %v", err)
	}
	block, err := NewBlock(BlockData, ClientId(7), []byte("payload under test"), int(fec.TransferLength())-SerializeOverhead)
	if err != nil {
		t.Fatalf("NewBlock failed: %v", err)
	}

	packets, err := fec.Encode(BlockId(3), block)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if len(packets) != int(fec.NbPackets()) {
		t.Fatalf("unexpected packet count: got %d, want %d", len(packets), fec.NbPackets())
	}

	decoded, ok := fec.Decode(packets)
	if !ok {
		t.Fatal("Decode failed with all packets present")
	}
	if !bytes.Equal(decoded, block) {
		t.Error("decoded block does not match original")
	}
}

func TestFECDecodeToleratesLoss(t *testing.T) {
	fec, err := ComputeFEC(1500, 16384, 20)
	if err != nil {
		t.Fatalf("ComputeFEC failed: %v", err)
	}
	block, err := NewBlock(BlockData, ClientId(7), []byte("payload under test"), int(fec.TransferLength())-SerializeOverhead)
	if err != nil {
		t.Fatalf("NewBlock failed: %v", err)
	}
	packets, err := fec.Encode(BlockId(3), block)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	if fec.RepairCount() == 0 {
		t.Skip("no repair symbols generated at this block size")
	}

	r := rand.New(rand.NewSource(1))
	r.Shuffle(len(packets), func(i, j int) { packets[i], packets[j] = packets[j], packets[i] })
	lossy := packets[:fec.SymbolCount()]

	decoded, ok := fec.Decode(lossy)
	if !ok {
		t.Fatal("Decode failed despite having exactly SymbolCount packets")
	}
	if !bytes.Equal(decoded, block) {
		t.Error("decoded block does not match original after reconstruction")
	}
}

func TestFECDecodeFailsBelowThreshold(t *testing.T) {
	fec, err := ComputeFEC(1500, 16384, 20)
	if err != nil {
		t.Fatalf("ComputeFEC failed: %v", err)
	}
	block, err := NewBlock(BlockData, ClientId(7), []byte("x"), int(fec.TransferLength())-SerializeOverhead)
	if err != nil {
		t.Fatalf("NewBlock failed: %v", err)
	}
	packets, err := fec.Encode(BlockId(3), block)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	short := packets[:fec.SymbolCount()-1]
	if _, ok := fec.Decode(short); ok {
		t.Fatal("expected Decode to fail with fewer than SymbolCount packets")
	}
}

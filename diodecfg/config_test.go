package diodecfg

import (
	"net"
	"testing"
)

func TestSenderValidateRequiresTo(t *testing.T) {
	s := &Sender{
		Shared:          Shared{MTU: 1500, BlockSize: 16384, RepairPercent: 10},
		MaxClients:      4,
		NbEncodeThreads: 2,
	}
	if err := s.Validate(); err == nil {
		t.Fatal("expected error for missing To address, got nil")
	}
	s.To = &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 5000}
	if err := s.Validate(); err != nil {
		t.Fatalf("expected valid config, got error: %v", err)
	}
}

func TestSharedValidateRejectsRepairPercentOverRange(t *testing.T) {
	s := Shared{MTU: 1500, BlockSize: 1024, RepairPercent: 150}
	if err := s.Validate(); err == nil {
		t.Fatal("expected error for repair percent over 100, got nil")
	}
}

func TestReceiverValidateRequiresFromListen(t *testing.T) {
	r := &Receiver{
		Shared:          Shared{MTU: 1500, BlockSize: 16384, RepairPercent: 10},
		MaxClients:      4,
		NbDecodeThreads: 2,
	}
	if err := r.Validate(); err == nil {
		t.Fatal("expected error for missing FromListen address, got nil")
	}
	r.FromListen = &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 5001}
	if err := r.Validate(); err != nil {
		t.Fatalf("expected valid config, got error: %v", err)
	}
}

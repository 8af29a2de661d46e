package diode_test

import (
	"bytes"
	"net"
	"testing"
	"time"

	"github.com/r3dlight/godiode/diodecfg"
	"github.com/r3dlight/godiode/internal/diodetest"
	"github.com/r3dlight/godiode/protocol"
	"github.com/r3dlight/godiode/receive"
	"github.com/r3dlight/godiode/send"
)

// newPipeline wires a Sender and a Receiver together over a loopback UDP
// socket pair, the way godiode-send and godiode-receive do in production.
func newPipeline(t *testing.T, shared diodecfg.Shared) (*send.Sender, *receive.Receiver, *diodetest.MemSinkFactory) {
	t.Helper()

	rxAddr, err := diodetest.LoopbackAddr()
	if err != nil {
		t.Fatalf("LoopbackAddr failed: %v", err)
	}

	sinks := diodetest.NewMemSinkFactory()
	recv, err := receive.New(&diodecfg.Receiver{
		Shared:          shared,
		FromListen:      rxAddr,
		MaxClients:      4,
		NbDecodeThreads: 2,
	}, sinks.Sink)
	if err != nil {
		t.Fatalf("receive.New failed: %v", err)
	}

	sender, err := send.New(&diodecfg.Sender{
		Shared:          shared,
		To:              recv.LocalAddr(),
		MaxClients:      4,
		NbEncodeThreads: 2,
	})
	if err != nil {
		recv.Close()
		t.Fatalf("send.New failed: %v", err)
	}

	return sender, recv, sinks
}

// TestPipelineRoundTrip drives one client's payload all the way from a
// Sender's HandleClient through loopback UDP and FEC decode to a Sink,
// verifying the bytes survive unchanged.
func TestPipelineRoundTrip(t *testing.T) {
	sender, recv, sinks := newPipeline(t, diodecfg.Shared{MTU: 1500, BlockSize: 8192, RepairPercent: 20})
	defer sender.Close()
	defer recv.Close()

	payload := bytes.Repeat([]byte("diode-payload-"), 500)
	src := diodetest.NewBufSource(payload)

	if err := sender.HandleClient(src); err != nil {
		t.Fatalf("HandleClient failed: %v", err)
	}

	deadline := time.After(3 * time.Second)
	for {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for the client's sink to appear")
		default:
		}
		if sinks.Count() > 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	var sink *diodetest.MemSink
	for cid := protocol.ClientId(1); cid < 1000; cid++ {
		if s, ok := sinks.Get(cid); ok {
			sink = s
			break
		}
	}
	if sink == nil {
		t.Fatal("no sink was ever created")
	}

	deadline = time.After(3 * time.Second)
	for {
		if bytes.Equal(sink.Bytes(), payload) {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("payload mismatch after timeout: got %d bytes, want %d", len(sink.Bytes()), len(payload))
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
}

// TestPipelineMultipleClients exercises several concurrent transfers
// multiplexed over the same global block id stream, checking that dispatch
// routes each client's bytes back to the right sink.
func TestPipelineMultipleClients(t *testing.T) {
	sender, recv, sinks := newPipeline(t, diodecfg.Shared{MTU: 1500, BlockSize: 4096, RepairPercent: 20})
	defer sender.Close()
	defer recv.Close()

	const clients = 5
	payloads := make([][]byte, clients)
	done := make(chan error, clients)
	for i := 0; i < clients; i++ {
		payloads[i] = bytes.Repeat([]byte{byte('a' + i)}, 300+i*17)
		go func(i int) {
			done <- sender.HandleClient(diodetest.NewBufSource(payloads[i]))
		}(i)
	}
	for i := 0; i < clients; i++ {
		if err := <-done; err != nil {
			t.Fatalf("HandleClient %d failed: %v", i, err)
		}
	}

	deadline := time.After(5 * time.Second)
	for {
		if sinks.Count() >= clients {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("only %d/%d sinks created", sinks.Count(), clients)
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}

	matched := make([]bool, clients)
	deadline = time.After(5 * time.Second)
	for {
		allMatched := true
		for cid := protocol.ClientId(1); cid <= clients+1; cid++ {
			sink, ok := sinks.Get(cid)
			if !ok {
				continue
			}
			for i, p := range payloads {
				if !matched[i] && bytes.Equal(sink.Bytes(), p) {
					matched[i] = true
				}
			}
		}
		for _, m := range matched {
			if !m {
				allMatched = false
			}
		}
		if allMatched {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("not all client payloads matched: %v", matched)
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
}

// TestPipelineAbortPropagates checks that a client read failure partway
// through is reported by HandleClient and that the partial transfer still
// reaches the receiver, which opens a sink for it. It does not check how
// the receiver ends that transfer.
func TestPipelineAbortPropagates(t *testing.T) {
	sender, recv, sinks := newPipeline(t, diodecfg.Shared{MTU: 1500, BlockSize: 4096, RepairPercent: 20})
	defer sender.Close()
	defer recv.Close()

	client := &abortingReader{after: bytes.Repeat([]byte("partial"), 10)}
	if err := sender.HandleClient(client); err == nil {
		t.Fatal("expected HandleClient to report the read failure")
	}

	deadline := time.After(2 * time.Second)
	for {
		if sinks.Count() > 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("sink never created for the aborted client")
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
}

type abortingReader struct {
	after []byte
	sent  bool
}

func (r *abortingReader) Read(p []byte) (int, error) {
	if !r.sent {
		r.sent = true
		n := copy(p, r.after)
		return n, nil
	}
	return 0, net.ErrClosed
}

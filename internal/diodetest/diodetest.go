// Package diodetest provides small in-process helpers for the top-level
// integration suite: a byte-slice Source/Sink pair and a loopback UDP
// address picker.
package diodetest

import (
	"bytes"
	"fmt"
	"net"
	"sync"

	"github.com/r3dlight/godiode/protocol"
	"github.com/r3dlight/godiode/receive"
)

// BufSource is a send.Source backed by an in-memory byte slice.
type BufSource struct {
	r *bytes.Reader
}

// NewBufSource returns a Source that yields data and then io.EOF.
func NewBufSource(data []byte) *BufSource {
	return &BufSource{r: bytes.NewReader(data)}
}

func (s *BufSource) Read(p []byte) (int, error) { return s.r.Read(p) }

// MemSink is a receive.Sink that accumulates writes in memory. It is safe
// for one writer goroutine and concurrent readers of Bytes after the
// writer has finished.
type MemSink struct {
	mu        sync.Mutex
	buf       bytes.Buffer
	flushes   int
	closeErr  error
	closeOnce sync.Once
}

// NewMemSink returns an empty MemSink.
func NewMemSink() *MemSink { return &MemSink{} }

func (s *MemSink) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Write(p)
}

// Flush counts how many times it was called; MemSink has no buffering to
// push out, so it otherwise does nothing.
func (s *MemSink) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flushes++
	return nil
}

// Bytes returns a copy of everything written so far.
func (s *MemSink) Bytes() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]byte, s.buf.Len())
	copy(out, s.buf.Bytes())
	return out
}

// Flushes reports how many times Flush was called.
func (s *MemSink) Flushes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushes
}

// MemSinkFactory hands out a fresh MemSink per client and records every
// sink it created, keyed by client id, so a test can inspect them after
// the transfer completes.
type MemSinkFactory struct {
	mu    sync.Mutex
	sinks map[protocol.ClientId]*MemSink
	fail  bool
}

// NewMemSinkFactory returns a factory whose Sink method always succeeds.
func NewMemSinkFactory() *MemSinkFactory {
	return &MemSinkFactory{sinks: make(map[protocol.ClientId]*MemSink)}
}

// FailNext makes every future Sink call return an error, simulating a
// downstream that refuses new transfers.
func (f *MemSinkFactory) FailNext() { f.mu.Lock(); f.fail = true; f.mu.Unlock() }

// Sink implements receive.SinkFactory's signature directly, so a
// MemSinkFactory value can be passed as receive.New's sinkFactory argument
// via f.Sink.
func (f *MemSinkFactory) Sink(id protocol.ClientId) (receive.Sink, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return nil, fmt.Errorf("diodetest: sink factory refused client %d", id)
	}
	s := NewMemSink()
	f.sinks[id] = s
	return s, nil
}

// Get returns the sink created for id, if any.
func (f *MemSinkFactory) Get(id protocol.ClientId) (*MemSink, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sinks[id]
	return s, ok
}

// Count returns how many clients have been handed a sink so far.
func (f *MemSinkFactory) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sinks)
}

// LoopbackAddr resolves an ephemeral UDP address on the loopback interface,
// suitable for a test receiver to listen on before the sender learns the
// port it picked.
func LoopbackAddr() (*net.UDPAddr, error) {
	return net.ResolveUDPAddr("udp", "127.0.0.1:0")
}

// Package receive implements the receive-and-decode half of a diode link:
// it reads FEC-encoded symbols off a one-way UDP socket, reassembles each
// block, and routes the decoded client payloads to per-client sinks in
// arrival order.
package receive

import (
	"net"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/r3dlight/godiode/diodecfg"
	"github.com/r3dlight/godiode/middleware"
	"github.com/r3dlight/godiode/protocol"
	"github.com/r3dlight/godiode/registry"
	"github.com/r3dlight/godiode/sock"
	"github.com/r3dlight/godiode/udp"
)

// channelDepth sizes the internal pipeline channels. The receive side has
// no per-client backpressure signal to the sender (the link is one-way), so
// these are sized generously rather than bound as tightly as the sender's.
const channelDepth = 1024

// Receiver owns the receive, reblock, decode, and dispatch stages shared by
// every client multiplexed over the diode link. Construct one with New and
// call Close to tear the pipeline down.
type Receiver struct {
	cfg         *diodecfg.Receiver
	fec         *protocol.FEC
	log         *zap.Logger
	reg         registry.Registry
	sinkFactory SinkFactory
	chain       middleware.Middleware

	conn   *net.UDPConn
	reader *udp.Reader

	slots chan struct{}

	toReblock  chan []byte
	toDecode   chan reassembled
	toDispatch chan decodedBlock

	dispatchSeqMu   sync.Mutex
	dispatchSeqCond *sync.Cond
	nextDispatch    uint64

	broken    atomic.Bool
	done      chan struct{}
	closeOnce sync.Once

	decodersWG sync.WaitGroup
}

// Option customizes a Receiver at construction time.
type Option func(*Receiver)

// WithLogger overrides the default no-op logger.
func WithLogger(log *zap.Logger) Option {
	return func(r *Receiver) { r.log = log }
}

// WithRegistry overrides the default no-op transfer registry.
func WithRegistry(reg registry.Registry) Option {
	return func(r *Receiver) { r.reg = reg }
}

// WithMiddleware wraps the admission of every new client transfer (the
// moment dispatch sees a Start block for a ClientId it hasn't seen before)
// in chain, letting a caller pace ClientNew events — e.g. with
// middleware.RateLimitMiddleware — without touching dispatch itself.
func WithMiddleware(chain middleware.Middleware) Option {
	return func(r *Receiver) { r.chain = chain }
}

// New validates cfg, derives FEC parameters matching the sender's, opens
// the inbound UDP socket, and starts the receive, reblock, decode, and
// dispatch stages. sinkFactory is called once per observed client transfer
// to obtain where its decoded payload should be written.
func New(cfg *diodecfg.Receiver, sinkFactory SinkFactory, opts ...Option) (*Receiver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	fec, err := protocol.ComputeFEC(cfg.MTU, cfg.BlockSize, cfg.RepairPercent)
	if err != nil {
		return nil, &Error{Op: "New", Err: err}
	}

	conn, err := net.ListenUDP("udp", cfg.FromListen)
	if err != nil {
		return nil, &Error{Op: "New", Err: err}
	}

	r := &Receiver{
		cfg:         cfg,
		fec:         fec,
		log:         zap.NewNop(),
		reg:         registry.NopRegistry{},
		sinkFactory: sinkFactory,
		conn:        conn,
		slots:       make(chan struct{}, cfg.MaxClients),
		toReblock:   make(chan []byte, channelDepth),
		toDecode:    make(chan reassembled, channelDepth),
		toDispatch:  make(chan decodedBlock, channelDepth),
		done:        make(chan struct{}),
	}
	r.dispatchSeqCond = sync.NewCond(&r.dispatchSeqMu)
	for _, opt := range opts {
		opt(r)
	}

	wantRecvBuf := cfg.RecvBufferSize
	if wantRecvBuf == 0 {
		wantRecvBuf = windowWidth * int(fec.NbPackets()) * int(cfg.MTU)
	}
	if got, err := sock.SetRecvBuffer(conn, wantRecvBuf); err != nil {
		r.log.Warn("failed to set receive buffer size", zap.Error(err))
	} else if got < wantRecvBuf {
		r.log.Warn("kernel clamped receive buffer size", zap.Int("wanted", wantRecvBuf), zap.Int("got", got))
	}

	packetSize := 4 + int(fec.MaxPacketSize())
	r.reader = udp.NewReader(conn, packetSize, cfg.UDPBatchSize)

	r.decodersWG.Add(int(cfg.NbDecodeThreads))
	for i := 0; i < int(cfg.NbDecodeThreads); i++ {
		go r.decodeWorker()
	}
	go r.closeDispatchWhenDecodersDone()
	go r.reblockLoop()
	go r.udpReceiveLoop()
	go r.dispatchLoop()

	return r, nil
}

// LocalAddr returns the UDP address the receiver is listening on, letting a
// caller that bound to an OS-chosen port (e.g. ":0") discover it afterwards.
func (r *Receiver) LocalAddr() *net.UDPAddr {
	return r.conn.LocalAddr().(*net.UDPAddr)
}

func (r *Receiver) closeDispatchWhenDecodersDone() {
	r.decodersWG.Wait()
	close(r.toDispatch)
}

// Close tears down the pipeline and releases the UDP socket. In-flight
// client writers observe r.done and unwind without necessarily flushing.
func (r *Receiver) Close() error {
	var err error
	r.closeOnce.Do(func() {
		r.broken.Store(true)
		close(r.done)
		err = r.conn.Close()
	})
	return err
}

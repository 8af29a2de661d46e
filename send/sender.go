// Package send implements the encode-and-transmit half of a diode link: it
// accepts client byte streams, cuts them into blocks, FEC-encodes each
// block, and ships the resulting symbols out over a one-way UDP socket.
package send

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

// Sender owns the encode and transmit stages shared by every accepted
// client. Construct one with New and hand it accepted clients via
// HandleClient; call Close to tear the pipeline down.
type Sender struct {
	cfg *diodecfg.Sender
	fec *protocol.FEC
	log *zap.Logger
	reg registry.Registry

	chain middleware.Middleware

	conn   *net.UDPConn
	writer *udp.Writer

	slots chan struct{}

	toEncode chan protocol.Block
	toSend   chan []protocol.Packet

	sendMu     sync.Mutex
	sendCond   *sync.Cond
	nextEncode protocol.BlockId
	nextSend   protocol.BlockId

	broken    atomic.Bool
	done      chan struct{}
	closeOnce sync.Once

	// acceptMu guards registering a new producer (HandleClient or the
	// heartbeat loop) against producersWG.Add racing with Close deciding
	// no more producers will arrive; see closeToEncodeWhenProducersDone.
	acceptMu    sync.Mutex
	closed      bool
	producersWG sync.WaitGroup
	encodersWG  sync.WaitGroup
}

// register adds one producer of toEncode if the pipeline has not been
// closed yet, returning false otherwise. Every successful register must be
// matched by a call to producersWG.Done.
func (s *Sender) register() bool {
	s.acceptMu.Lock()
	defer s.acceptMu.Unlock()
	if s.closed {
		return false
	}
	s.producersWG.Add(1)
	return true
}

// Option customizes a Sender at construction time.
type Option func(*Sender)

// WithLogger overrides the default no-op logger.
func WithLogger(log *zap.Logger) Option {
	return func(s *Sender) { s.log = log }
}

// WithRegistry overrides the default no-op transfer registry.
func WithRegistry(reg registry.Registry) Option {
	return func(s *Sender) { s.reg = reg }
}

// WithMiddleware wraps every block submitted to the encoder in chain,
// letting a caller add logging, metrics, or pacing without touching the
// framer or encoder themselves.
func WithMiddleware(chain middleware.Middleware) Option {
	return func(s *Sender) { s.chain = chain }
}

// New validates cfg, derives FEC parameters, opens the outbound UDP socket,
// and starts the encoder pool, transmitter, and optional heartbeat ticker.
func New(cfg *diodecfg.Sender, opts ...Option) (*Sender, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	fec, err := protocol.ComputeFEC(cfg.MTU, cfg.BlockSize, cfg.RepairPercent)
	if err != nil {
		return nil, &Error{Op: "New", Err: err}
	}

	conn, err := net.DialUDP("udp", cfg.FromBind, cfg.To)
	if err != nil {
		return nil, &Error{Op: "New", Err: err}
	}

	s := &Sender{
		cfg:      cfg,
		fec:      fec,
		log:      zap.NewNop(),
		reg:      registry.NopRegistry{},
		conn:     conn,
		toEncode: make(chan protocol.Block, cfg.NbEncodeThreads),
		toSend:   make(chan []protocol.Packet, cfg.NbEncodeThreads),
		slots:    make(chan struct{}, cfg.MaxClients),
		done:     make(chan struct{}),
	}
	s.sendCond = sync.NewCond(&s.sendMu)
	for _, opt := range opts {
		opt(s)
	}

	if cfg.SendBufferSize > 0 {
		if got, err := sock.SetSendBuffer(conn, cfg.SendBufferSize); err != nil {
			s.log.Warn("failed to set send buffer size", zap.Error(err))
		} else if got < cfg.SendBufferSize {
			s.log.Warn("kernel clamped send buffer size", zap.Int("wanted", cfg.SendBufferSize), zap.Int("got", got))
		}
	}
	s.writer = udp.NewWriter(conn, cfg.UDPBatchSize)

	s.encodersWG.Add(int(cfg.NbEncodeThreads))
	for i := 0; i < int(cfg.NbEncodeThreads); i++ {
		go s.encodeWorker()
	}
	go s.closeToSendWhenEncodersDone()
	go s.closeToEncodeWhenProducersDone()
	go s.transmitLoop()
	if cfg.HeartbeatInterval > 0 && s.register() {
		go s.heartbeatLoop()
	}

	return s, nil
}

func (s *Sender) closeToSendWhenEncodersDone() {
	s.encodersWG.Wait()
	close(s.toSend)
}

// closeToEncodeWhenProducersDone closes toEncode only once Close has been
// called and every HandleClient invocation already in flight has returned.
// toEncode has many concurrent producers (one per accepted client), so
// nothing may close it until all of them are guaranteed gone; closing a
// channel out from under a concurrent sender panics.
func (s *Sender) closeToEncodeWhenProducersDone() {
	<-s.done
	s.producersWG.Wait()
	close(s.toEncode)
}

// HandleClient runs the full lifecycle for one accepted client: it waits
// for a free slot (bounding how many transfers run concurrently), assigns
// a fresh ClientId, frames client's byte stream into the encoder pipeline,
// and emits a terminal End or Abort block depending on how client.Read
// ended.
//
// HandleClient must not be called after Close returns; calls already in
// flight when Close is invoked are allowed to finish.
func (s *Sender) HandleClient(client Source) error {
	if !s.register() {
		return ErrPipelineBroken
	}
	defer s.producersWG.Done()

	select {
	case s.slots <- struct{}{}:
	case <-s.done:
		return ErrPipelineBroken
	}
	defer func() { <-s.slots }()

	clientID := protocol.NewClientID()
	s.reg.TransferStarted(clientID)
	s.log.Info("client transfer starting", zap.Uint32("client_id", uint32(clientID)))

	err := s.runFramer(clientID, client)
	maxDataLen := int(s.fec.TransferLength()) - protocol.SerializeOverhead

	aborted := err != nil
	var term protocol.Block
	var termErr error
	if aborted {
		term, termErr = protocol.NewBlock(protocol.BlockAbort, clientID, nil, maxDataLen)
	} else {
		term, termErr = protocol.NewBlock(protocol.BlockEnd, clientID, nil, maxDataLen)
	}
	if termErr == nil {
		if serr := s.submit(term); serr != nil && err == nil {
			err = serr
		}
	}

	s.reg.TransferEnded(clientID, aborted)
	s.log.Info("client transfer finished",
		zap.Uint32("client_id", uint32(clientID)),
		zap.Bool("aborted", aborted),
		zap.Error(err),
	)
	return err
}

// submit pushes block onto the encoder pipeline, optionally running it
// through the configured middleware chain first.
func (s *Sender) submit(block protocol.Block) error {
	step := func(b protocol.Block) error {
		select {
		case s.toEncode <- b:
			return nil
		case <-s.done:
			return ErrPipelineBroken
		}
	}
	if s.chain != nil {
		step = s.chain(step)
	}
	return step(block)
}

// Close stops accepting new encoder submissions, signals every stage to
// stop, and closes the UDP socket. It returns without waiting for blocks
// already queued to be transmitted.
func (s *Sender) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.acceptMu.Lock()
		s.closed = true
		s.acceptMu.Unlock()

		s.broken.Store(true)
		close(s.done)
		err = s.conn.Close()
	})
	return err
}

// isBroken reports whether the pipeline has been torn down by Close.
func (s *Sender) isBroken() bool { return s.broken.Load() }

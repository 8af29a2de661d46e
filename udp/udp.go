// Package udp provides batched datagram I/O on top of a connected or
// unconnected *net.UDPConn, using golang.org/x/net/ipv4's ReadBatch/WriteBatch
// (backed by recvmmsg/sendmmsg on Linux) when a batch size greater than one
// is configured, falling back to plain ReadFromUDP/Write otherwise.
package udp

import (
	"fmt"
	"net"

	"golang.org/x/net/ipv4"
)

// Datagrams is a set of datagram payloads read in a single Recv call. Each
// entry is a fresh copy owned by the caller; later Recv calls do not
// overwrite it.
type Datagrams struct {
	Buffers [][]byte
}

// Reader reads one or more datagrams per call from a UDP socket.
type Reader struct {
	conn *net.UDPConn
	pc   *ipv4.PacketConn
	msgs []ipv4.Message
	buf  []byte
}

// NewReader constructs a Reader for packets up to packetSize bytes. When
// batch is greater than one, reads are issued via ReadBatch up to that many
// datagrams at a time; otherwise each Recv performs a single ReadFromUDP.
func NewReader(conn *net.UDPConn, packetSize, batch int) *Reader {
	r := &Reader{conn: conn}
	if batch > 1 {
		r.pc = ipv4.NewPacketConn(conn)
		r.msgs = make([]ipv4.Message, batch)
		for i := range r.msgs {
			r.msgs[i].Buffers = [][]byte{make([]byte, packetSize)}
		}
	} else {
		r.buf = make([]byte, packetSize)
	}
	return r
}

// Recv blocks until at least one datagram is available and returns every
// datagram the underlying batch read produced.
func (r *Reader) Recv() (Datagrams, error) {
	if r.pc == nil {
		n, _, err := r.conn.ReadFromUDP(r.buf)
		if err != nil {
			return Datagrams{}, err
		}
		out := make([]byte, n)
		copy(out, r.buf[:n])
		return Datagrams{Buffers: [][]byte{out}}, nil
	}

	n, err := r.pc.ReadBatch(r.msgs, 0)
	if err != nil {
		return Datagrams{}, err
	}
	bufs := make([][]byte, n)
	for i := 0; i < n; i++ {
		b := make([]byte, r.msgs[i].N)
		copy(b, r.msgs[i].Buffers[0][:r.msgs[i].N])
		bufs[i] = b
	}
	return Datagrams{Buffers: bufs}, nil
}

// Writer sends one or more datagrams per call to a connected UDP socket.
type Writer struct {
	conn  *net.UDPConn
	pc    *ipv4.PacketConn
	batch int
}

// NewWriter constructs a Writer over conn, which must already be connected
// to its single peer (this package never addresses individual datagrams).
// When batch is greater than one, Send groups datagrams into WriteBatch
// calls of at most that many messages; otherwise each datagram is written
// with a plain Write.
func NewWriter(conn *net.UDPConn, batch int) *Writer {
	w := &Writer{conn: conn, batch: batch}
	if batch > 1 {
		w.pc = ipv4.NewPacketConn(conn)
	}
	return w
}

// Send transmits every datagram in order. It returns the first error
// encountered, after which the caller should assume the stream of datagrams
// was only partially delivered.
func (w *Writer) Send(datagrams [][]byte) error {
	if w.pc == nil {
		for _, d := range datagrams {
			if _, err := w.conn.Write(d); err != nil {
				return err
			}
		}
		return nil
	}

	msgs := make([]ipv4.Message, len(datagrams))
	for i, d := range datagrams {
		msgs[i].Buffers = [][]byte{d}
	}
	for start := 0; start < len(msgs); start += w.batch {
		end := start + w.batch
		if end > len(msgs) {
			end = len(msgs)
		}
		chunk := msgs[start:end]
		n, err := w.pc.WriteBatch(chunk, 0)
		if err != nil {
			return err
		}
		if n != len(chunk) {
			return fmt.Errorf("udp: short sendmmsg: wrote %d of %d messages", n, len(chunk))
		}
	}
	return nil
}

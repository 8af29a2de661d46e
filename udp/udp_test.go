package udp

import (
	"bytes"
	"net"
	"testing"
	"time"
)

func TestReaderWriterSingleDatagram(t *testing.T) {
	serverConn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("ListenUDP failed: %v", err)
	}
	defer serverConn.Close()

	clientConn, err := net.DialUDP("udp", nil, serverConn.LocalAddr().(*net.UDPAddr))
	if err != nil {
		t.Fatalf("DialUDP failed: %v", err)
	}
	defer clientConn.Close()

	writer := NewWriter(clientConn, 0)
	reader := NewReader(serverConn, 1500, 0)

	payload := []byte("diode datagram")
	if err := writer.Send([][]byte{payload}); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	serverConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	dg, err := reader.Recv()
	if err != nil {
		t.Fatalf("Recv failed: %v", err)
	}
	if len(dg.Buffers) != 1 || !bytes.Equal(dg.Buffers[0], payload) {
		t.Fatalf("got %v, want single datagram %q", dg.Buffers, payload)
	}
}

// Package sock sizes UDP socket buffers and reports back what the kernel
// actually granted, since Linux silently clamps SO_RCVBUF/SO_SNDBUF to
// net.core.{r,w}mem_max and doubles whatever value it does accept.
package sock

import (
	"net"

	"golang.org/x/sys/unix"
)

// SetRecvBuffer requests a receive buffer of at least want bytes on conn and
// returns the size the kernel actually applied, read back via getsockopt so
// callers can warn when the requested size was clamped.
func SetRecvBuffer(conn *net.UDPConn, want int) (int, error) {
	if err := conn.SetReadBuffer(want); err != nil {
		return 0, err
	}
	return getsockoptInt(conn, unix.SO_RCVBUF)
}

// SetSendBuffer requests a send buffer of at least want bytes on conn and
// returns the size the kernel actually applied.
func SetSendBuffer(conn *net.UDPConn, want int) (int, error) {
	if err := conn.SetWriteBuffer(want); err != nil {
		return 0, err
	}
	return getsockoptInt(conn, unix.SO_SNDBUF)
}

func getsockoptInt(conn *net.UDPConn, opt int) (int, error) {
	raw, err := conn.SyscallConn()
	if err != nil {
		return 0, err
	}
	var got int
	var sockErr error
	if err := raw.Control(func(fd uintptr) {
		got, sockErr = unix.GetsockoptInt(int(fd), unix.SOL_SOCKET, opt)
	}); err != nil {
		return 0, err
	}
	return got, sockErr
}

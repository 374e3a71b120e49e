//go:build linux || darwin

package tcp

import (
	"io"
	"net"
	"syscall"

	"github.com/usc-rasc/kinect-bridge2/errors"
)

// peek reports whether conn is still open without consuming inbound bytes.
func peek(conn net.Conn) error {
	sc, ok := conn.(syscall.Conn)
	if !ok {
		return peekDeadline(conn)
	}
	raw, err := sc.SyscallConn()
	if err != nil {
		return err
	}

	var (
		n       int
		peekErr error
		buf     [1]byte
	)
	err = raw.Read(func(fd uintptr) bool {
		n, _, peekErr = syscall.Recvfrom(int(fd), buf[:], syscall.MSG_PEEK|syscall.MSG_DONTWAIT)
		return true
	})
	if err != nil {
		return err
	}

	switch {
	case peekErr == nil && n == 0:
		return io.EOF
	case peekErr == nil:
		return nil
	case errors.Is(peekErr, syscall.EAGAIN), errors.Is(peekErr, syscall.EWOULDBLOCK), errors.Is(peekErr, syscall.EINTR):
		return nil
	default:
		return peekErr
	}
}

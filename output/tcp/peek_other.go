//go:build !linux && !darwin

package tcp

import "net"

func peek(conn net.Conn) error {
	return peekDeadline(conn)
}

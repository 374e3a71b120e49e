package tcp

import (
	"net"
	"time"

	"github.com/usc-rasc/kinect-bridge2/errors"
)

const peekTimeout = time.Millisecond

// peekDeadline probes conn with a short deadline read. A byte sent by the
// peer is discarded; peers of this protocol never send before closing.
func peekDeadline(conn net.Conn) error {
	if err := conn.SetReadDeadline(time.Now().Add(peekTimeout)); err != nil {
		return err
	}
	defer conn.SetReadDeadline(time.Time{})

	var buf [1]byte
	_, err := conn.Read(buf[:])
	var ne net.Error
	if err == nil || (errors.As(err, &ne) && ne.Timeout()) {
		return nil
	}
	return err
}

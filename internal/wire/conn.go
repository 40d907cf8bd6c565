package wire

import (
	"bufio"
	"net"
	"sync"

	"github.com/jabolina/contextd/internal/logging"
)

// Conn wraps a net.Conn with the framed read/write protocol and a send-side
// mutex so a length prefix and its body are always written atomically.
type Conn struct {
	nc     net.Conn
	reader *bufio.Reader
	log    logging.Logger

	sendMu sync.Mutex
}

// NewConn wraps an already-established connection. Malformed frames
// encountered by Recv are logged through a no-op logger unless SetLogger is
// called.
func NewConn(nc net.Conn) *Conn {
	return &Conn{nc: nc, reader: bufio.NewReader(nc), log: logging.Noop()}
}

// SetLogger attaches a logger used to report malformed frames dropped by
// Recv, which logs and drops them rather than closing the connection.
func (c *Conn) SetLogger(log logging.Logger) {
	c.log = log
}

// Send writes one frame, serialised against concurrent senders.
func (c *Conn) Send(f Frame) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	return WriteFrame(c.nc, f)
}

// Recv reads one frame, transparently skipping and logging any frame that
// reads a complete body but fails to decode: the stream stays in sync, so
// Recv keeps reading instead of returning an error that would make the
// caller close the connection. Only a short read or an actual transport
// error is returned. Recv is not safe to call concurrently with itself;
// only one reader goroutine should ever call it per connection.
func (c *Conn) Recv() (Frame, error) {
	for {
		f, err := ReadFrame(c.reader)
		if err == nil {
			return f, nil
		}
		if IsMalformed(err) {
			c.log.Debugf("wire: dropping malformed frame: %v", err)
			continue
		}
		return Frame{}, err
	}
}

// Close closes the underlying connection, unblocking any pending Recv.
func (c *Conn) Close() error {
	return c.nc.Close()
}

// RemoteAddr returns the address of the peer on the other end.
func (c *Conn) RemoteAddr() net.Addr {
	return c.nc.RemoteAddr()
}

// LocalAddr returns this end's address.
func (c *Conn) LocalAddr() net.Addr {
	return c.nc.LocalAddr()
}

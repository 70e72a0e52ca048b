package broadcast

import (
	"net"
	"time"
)

// Client is a connected consumer of a hub's messages. Send receives one
// newline-terminated JSON line.
type Client interface {
	Send(line []byte) error
	Close() error
	String() string
}

// connClient writes to a stream socket accepted by the hub.
type connClient struct {
	conn    net.Conn
	timeout time.Duration
}

// NewConnClient wraps a stream connection. Each write must complete
// within timeout.
func NewConnClient(conn net.Conn, timeout time.Duration) Client {
	return &connClient{conn: conn, timeout: timeout}
}

func (c *connClient) Send(line []byte) error {
	if c.timeout > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.timeout)); err != nil {
			return err
		}
	}
	_, err := c.conn.Write(line)
	return err
}

func (c *connClient) Close() error {
	return c.conn.Close()
}

func (c *connClient) String() string {
	return "unix:" + c.conn.RemoteAddr().String()
}

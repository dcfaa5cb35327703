package resp

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"
)

const (
	// initialBufferSize is the starting capacity of the read buffer.
	initialBufferSize = 4 * 1024

	// minReadSize is the minimum free space guaranteed before each read.
	minReadSize = 512
)

// Conn reads and writes frames over a stream connection.
//
// ReadFrame must be called from a single goroutine. WriteFrame may be
// called concurrently; each frame is written with one Write call under a
// lock, so two frames never interleave on the wire.
type Conn struct {
	netConn net.Conn

	rbuf        []byte
	idleTimeout time.Duration
	idleArmed   bool

	wmu          sync.Mutex
	wbuf         []byte
	writeTimeout time.Duration
}

// NewConn wraps c.
func NewConn(c net.Conn) *Conn {
	return &Conn{
		netConn: c,
		rbuf:    make([]byte, 0, initialBufferSize),
	}
}

// SetIdleTimeout bounds how long each read inside ReadFrame waits for more
// bytes, so a peer times out only after sending nothing for d. Zero
// disables the limit.
func (c *Conn) SetIdleTimeout(d time.Duration) {
	c.idleTimeout = d
}

// SetWriteTimeout bounds each WriteFrame call. Zero disables the limit.
func (c *Conn) SetWriteTimeout(d time.Duration) {
	c.wmu.Lock()
	c.writeTimeout = d
	c.wmu.Unlock()
}

// ReadFrame reads the next frame.
//
// It returns io.EOF only when the peer closed the stream cleanly between
// frames. A close in the middle of a frame is reported as ErrProtocol.
// Any other error comes from the underlying connection.
func (c *Conn) ReadFrame() (Frame, error) {
	for {
		if len(c.rbuf) > 0 {
			f, n, err := Parse(c.rbuf)
			if err == nil {
				c.consume(n)
				return f, nil
			}
			if !errors.Is(err, ErrIncomplete) {
				return nil, err
			}
		}

		if err := c.fill(); err != nil {
			if errors.Is(err, io.EOF) {
				if len(c.rbuf) == 0 {
					return nil, io.EOF
				}
				return nil, fmt.Errorf("%w: connection closed mid-frame (%d bytes buffered)", ErrProtocol, len(c.rbuf))
			}
			return nil, err
		}
	}
}

// Buffered reports the number of unparsed bytes held in the read buffer.
func (c *Conn) Buffered() int {
	return len(c.rbuf)
}

func (c *Conn) fill() error {
	if cap(c.rbuf)-len(c.rbuf) < minReadSize {
		grown := make([]byte, len(c.rbuf), 2*cap(c.rbuf)+minReadSize)
		copy(grown, c.rbuf)
		c.rbuf = grown
	}

	switch {
	case c.idleTimeout > 0:
		if err := c.netConn.SetReadDeadline(time.Now().Add(c.idleTimeout)); err != nil {
			return err
		}
		c.idleArmed = true
	case c.idleArmed:
		// Only clear a deadline this Conn set; callers may manage their own.
		if err := c.netConn.SetReadDeadline(time.Time{}); err != nil {
			return err
		}
		c.idleArmed = false
	}

	n, err := c.netConn.Read(c.rbuf[len(c.rbuf):cap(c.rbuf)])
	c.rbuf = c.rbuf[:len(c.rbuf)+n]
	if n > 0 {
		return nil
	}
	return err
}

func (c *Conn) consume(n int) {
	rest := copy(c.rbuf, c.rbuf[n:])
	c.rbuf = c.rbuf[:rest]
}

// WriteFrame encodes f and writes it to the connection.
func (c *Conn) WriteFrame(f Frame) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()

	c.wbuf = f.appendTo(c.wbuf[:0])
	if c.writeTimeout > 0 {
		if err := c.netConn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
			return err
		}
	}
	_, err := c.netConn.Write(c.wbuf)
	return err
}

// RemoteAddr returns the peer address.
func (c *Conn) RemoteAddr() net.Addr {
	return c.netConn.RemoteAddr()
}

// Close closes the underlying connection.
func (c *Conn) Close() error {
	return c.netConn.Close()
}

package wire

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/smartkitchen/smk/pkg/model"
)

// ErrClosed is returned by Send after the connection has been closed.
var ErrClosed = errors.New("wire: connection closed")

// Frame is one received line and its decoded message.
type Frame struct {
	Message model.Message
	Line    string
}

// Conn turns a stream into whole-message send and receive.
//
// Send may be called from any goroutine; writes are serialized so lines
// never interleave. Receive must be called from a single goroutine. Close
// is idempotent and unblocks a pending Receive.
type Conn struct {
	id  string
	raw net.Conn
	r   *bufio.Reader

	writeTimeout time.Duration

	wmu       sync.Mutex
	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// NewConn wraps c. The Conn takes ownership of c.
func NewConn(c net.Conn) *Conn {
	return &Conn{
		id:  uuid.NewString(),
		raw: c,
		r:   bufio.NewReader(c),
	}
}

// ID returns a unique identifier for this connection.
func (c *Conn) ID() string { return c.id }

// RemoteAddr returns the far end's address.
func (c *Conn) RemoteAddr() net.Addr { return c.raw.RemoteAddr() }

// SetWriteTimeout bounds each Send so a peer that stops reading cannot
// stall the sender forever. Zero disables the bound. Call before the
// connection is shared.
func (c *Conn) SetWriteTimeout(d time.Duration) { c.writeTimeout = d }

// Send writes m as one line.
func (c *Conn) Send(m model.Message) error {
	if err := Validate(m); err != nil {
		return err
	}
	line := Encode(m) + "\n"

	c.wmu.Lock()
	defer c.wmu.Unlock()
	if c.closed.Load() {
		return ErrClosed
	}
	if c.writeTimeout > 0 {
		_ = c.raw.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	if _, err := io.WriteString(c.raw, line); err != nil {
		return fmt.Errorf("send to %s: %w", c.raw.RemoteAddr(), err)
	}
	return nil
}

// Receive blocks until a full line arrives. It returns io.EOF when the
// stream ends cleanly or was closed locally; a final line without a
// terminator is discarded. Any other error is a transport failure. Either
// way the connection is finished.
func (c *Conn) Receive() (Frame, error) {
	line, err := c.r.ReadString('\n')
	if err != nil {
		if err == io.EOF || c.closed.Load() || errors.Is(err, net.ErrClosed) {
			return Frame{}, io.EOF
		}
		return Frame{}, fmt.Errorf("receive from %s: %w", c.raw.RemoteAddr(), err)
	}
	line = strings.TrimRight(line, "\r\n")
	return Frame{Message: Decode(line), Line: line}, nil
}

// Close closes the underlying stream. Safe to call more than once and from
// any goroutine.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.closeErr = c.raw.Close()
	})
	return c.closeErr
}

// Closed reports whether Close has been called.
func (c *Conn) Closed() bool { return c.closed.Load() }

package ipc

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"time"
)

// DefaultTimeout bounds every wait on the connection.
const DefaultTimeout = 30 * time.Second

// Conn carries frames over one stream connection. Every read and write is
// bounded by the timeout, so no call blocks indefinitely. A Receive that
// times out keeps what it has read so far, and the next Receive resumes
// the same frame.
//
// Conn is not safe for concurrent use.
type Conn struct {
	conn    net.Conn
	timeout time.Duration

	header  [LengthPrefixSize]byte
	headerN int
	payload []byte
	readN   int
	inBody  bool
}

// NewConn wraps c. A non-positive timeout selects DefaultTimeout.
func NewConn(c net.Conn, timeout time.Duration) *Conn {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Conn{conn: c, timeout: timeout}
}

// Timeout returns the per-operation timeout.
func (c *Conn) Timeout() time.Duration { return c.timeout }

// SetTimeout changes the per-operation timeout.
func (c *Conn) SetTimeout(d time.Duration) {
	if d > 0 {
		c.timeout = d
	}
}

// RemoteAddr returns the peer address.
func (c *Conn) RemoteAddr() net.Addr { return c.conn.RemoteAddr() }

// Send writes one frame. A send that times out before any byte is written
// leaves the stream intact and returns a FrameErrorTimeout error. Once part
// of the frame is on the wire every failure is a fatal FrameErrorPartial,
// since the peer can no longer find the next frame boundary.
func (c *Conn) Send(payload []byte) error {
	buf, err := AppendFrame(make([]byte, 0, LengthPrefixSize+len(payload)), payload)
	if err != nil {
		return err
	}
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.timeout)); err != nil {
		return err
	}
	written := 0
	for written < len(buf) {
		n, err := c.conn.Write(buf[written:])
		written += n
		if err == nil {
			continue
		}
		if written == 0 {
			if isTimeout(err) {
				return &FrameError{Kind: FrameErrorTimeout, Msg: fmt.Sprintf("send blocked for %s", c.timeout), Err: err}
			}
			return err
		}
		return &FrameError{
			Kind: FrameErrorPartial,
			Msg:  fmt.Sprintf("send stopped after %d of %d bytes", written, len(buf)),
			Err:  err,
		}
	}
	return nil
}

// Receive reads one frame and returns its payload. It returns a
// FrameErrorTimeout error when a single read waits longer than the timeout.
func (c *Conn) Receive() ([]byte, error) {
	for !c.inBody {
		n, err := c.read(c.header[c.headerN:])
		c.headerN += n
		if c.headerN == LengthPrefixSize {
			size := binary.BigEndian.Uint32(c.header[:])
			if size > MaxPayloadSize {
				c.resetFrame()
				return nil, &FrameError{
					Kind: FrameErrorTooLarge,
					Msg:  fmt.Sprintf("payload size %d exceeds maximum %d", size, MaxPayloadSize),
				}
			}
			c.payload = make([]byte, size)
			c.readN = 0
			c.inBody = true
			break
		}
		if err != nil {
			return nil, c.readError(err, "failed to read length prefix", c.headerN == 0)
		}
	}

	for c.readN < len(c.payload) {
		n, err := c.read(c.payload[c.readN:])
		c.readN += n
		if c.readN == len(c.payload) {
			break
		}
		if err != nil {
			return nil, c.readError(err, "failed to read payload", false)
		}
	}

	payload := c.payload
	c.resetFrame()
	return payload, nil
}

func (c *Conn) read(p []byte) (int, error) {
	if err := c.conn.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
		return 0, err
	}
	return c.conn.Read(p)
}

// readError classifies a read failure. Timeouts keep the partial frame.
func (c *Conn) readError(err error, msg string, between bool) error {
	if isTimeout(err) {
		return &FrameError{Kind: FrameErrorTimeout, Msg: fmt.Sprintf("no data within %s", c.timeout), Err: err}
	}
	c.resetFrame()
	if between && (errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed)) {
		return &FrameError{Kind: FrameErrorClosed, Msg: "connection closed", Err: err}
	}
	return &FrameError{Kind: FrameErrorPartial, Msg: msg, Err: err}
}

func (c *Conn) resetFrame() {
	c.headerN = 0
	c.payload = nil
	c.readN = 0
	c.inBody = false
}

// Close closes the underlying connection.
func (c *Conn) Close() error {
	return c.conn.Close()
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

package board

import (
	"bytes"
	"io"
	"time"

	"github.com/pkg/errors"

	"github.com/cjeanneret/joystage/internal/debug"
)

// AckToken is the exact line the board sends when a command completed.
const AckToken = "Done\r\n"

// MaxLineBytes bounds one buffered line. A longer line is dropped up to its
// terminating newline.
const MaxLineBytes = 4096

// ErrAckTimeout is returned by AwaitAck when an ack deadline is configured
// and no ack arrived in time.
var ErrAckTimeout = errors.New("board: timed out waiting for ack")

// Channel implements the write-then-await-ack protocol over a byte stream.
// It is not safe for concurrent use; one command is in flight at a time.
type Channel struct {
	rw         io.ReadWriter
	ackTimeout time.Duration
	now        func() time.Time

	pending  []byte
	chunk    []byte
	overflow bool
}

// NewChannel wraps rw. ackTimeout <= 0 means AwaitAck waits forever.
//
// With a positive ackTimeout, rw.Read must return periodically (for a
// serial port, a read timeout) so the deadline can be observed.
func NewChannel(rw io.ReadWriter, ackTimeout time.Duration) *Channel {
	return &Channel{
		rw:         rw,
		ackTimeout: ackTimeout,
		now:        time.Now,
		chunk:      make([]byte, 64),
	}
}

// Send writes one frame.
func (c *Channel) Send(f Frame) error {
	wire := f.String()
	debug.Wire("->", wire)
	n, err := io.WriteString(c.rw, wire)
	if err != nil {
		return errors.Wrapf(err, "write %q", wire)
	}
	if n != len(wire) {
		return errors.Wrapf(io.ErrShortWrite, "write %q", wire)
	}
	return nil
}

// AwaitAck reads lines until one equals AckToken. Any other line is
// discarded.
func (c *Channel) AwaitAck() error {
	var deadline time.Time
	if c.ackTimeout > 0 {
		deadline = c.now().Add(c.ackTimeout)
	}

	for {
		for {
			line, ok := c.nextLine()
			if !ok {
				break
			}
			debug.Wire("<-", line)
			if line == AckToken {
				return nil
			}
		}

		if !deadline.IsZero() && !c.now().Before(deadline) {
			return ErrAckTimeout
		}

		n, err := c.rw.Read(c.chunk)
		c.pending = append(c.pending, c.chunk[:n]...)
		c.trimOverflow()
		if err != nil {
			if n > 0 && err == io.EOF {
				continue
			}
			return errors.Wrap(err, "read ack")
		}
	}
}

// Close closes the underlying stream if it is closable.
func (c *Channel) Close() error {
	if cl, ok := c.rw.(io.Closer); ok {
		return cl.Close()
	}
	return nil
}

func (c *Channel) nextLine() (string, bool) {
	for {
		i := bytes.IndexByte(c.pending, '\n')
		if i < 0 {
			return "", false
		}
		line := string(c.pending[:i+1])
		c.pending = c.pending[i+1:]
		if c.overflow {
			// Tail of an oversized line.
			c.overflow = false
			continue
		}
		return line, true
	}
}

func (c *Channel) trimOverflow() {
	if len(c.pending) <= MaxLineBytes || bytes.IndexByte(c.pending, '\n') >= 0 {
		return
	}
	if debug.IsEnabled(debug.LevelTrace) {
		debug.Trace("Board line over %d bytes dropped: %q...", MaxLineBytes, c.pending[:32])
	}
	c.pending = c.pending[:0]
	c.overflow = true
}

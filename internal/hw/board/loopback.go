package board

import (
	"io"
	"sync"
)

// Loopback is an in-memory board that acknowledges every write with
// AckToken. Used for development without hardware and in tests.
type Loopback struct {
	mu     sync.Mutex
	cond   *sync.Cond
	out    []byte
	writes []string
	closed bool
}

// NewLoopback creates an open loopback board.
func NewLoopback() *Loopback {
	l := &Loopback{}
	l.cond = sync.NewCond(&l.mu)
	return l
}

// Write records the frame and queues an ack.
func (l *Loopback) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return 0, io.ErrClosedPipe
	}
	l.writes = append(l.writes, string(p))
	l.out = append(l.out, AckToken...)
	l.cond.Broadcast()
	return len(p), nil
}

// Read blocks until acks are queued or the loopback is closed.
func (l *Loopback) Read(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for len(l.out) == 0 && !l.closed {
		l.cond.Wait()
	}
	if len(l.out) == 0 {
		return 0, io.EOF
	}
	n := copy(p, l.out)
	l.out = l.out[n:]
	return n, nil
}

// Close unblocks readers.
func (l *Loopback) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	l.cond.Broadcast()
	return nil
}

// Writes returns every frame written so far.
func (l *Loopback) Writes() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.writes...)
}

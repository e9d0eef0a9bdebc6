// Package tee duplicates one in-flight byte stream into two independently
// paced consumers: a latency-critical client writer and a best-effort
// parser channel.
//
// The two sides are deliberately asymmetric. The client side receives
// every byte and paces the read loop through its own backpressure. The
// parser side is fed through a bounded channel and is droppable: if the
// parser falls behind the channel capacity, the tee truncates the parser
// stream instead of delaying the client. Truncation is an explicit,
// observable state transition, never a silent drop.
package tee

import (
	"io"
	"sync"
	"sync/atomic"
)

const (
	// DefaultParserBuffer is the number of chunks buffered for the parser
	// before the tee truncates its stream.
	DefaultParserBuffer = 64

	// readBufferSize is the upstream read granularity.
	readBufferSize = 32 * 1024
)

// Tee copies an upstream stream to a client writer while mirroring every
// chunk into a bounded channel for a parser goroutine. A Tee serves
// exactly one response.
type Tee struct {
	client    io.Writer
	chunks    chan []byte
	closeOnce sync.Once
	truncated atomic.Bool

	// mu guards readErr. The parser goroutine may ask for the upstream
	// error after a truncation closed its channel while the read loop is
	// still running.
	mu      sync.Mutex
	readErr error
}

// New creates a Tee writing to the given client writer. parserBuffer is
// the parser-side chunk capacity; zero or negative selects the default.
func New(client io.Writer, parserBuffer int) *Tee {
	if parserBuffer <= 0 {
		parserBuffer = DefaultParserBuffer
	}
	return &Tee{
		client: client,
		chunks: make(chan []byte, parserBuffer),
	}
}

// Chunks is the parser-side stream. It yields every chunk in upstream
// order and is closed exactly once: on upstream EOF, upstream error, or
// parser-side truncation.
func (t *Tee) Chunks() <-chan []byte {
	return t.chunks
}

// Truncated reports whether the parser side was cut off because it could
// not keep up.
func (t *Tee) Truncated() bool {
	return t.truncated.Load()
}

// Err returns the upstream read error, if any, observed so far.
func (t *Tee) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.readErr
}

// Copy runs the single read loop over src, delivering every chunk to the
// parser channel and then to the client writer. It returns the upstream
// read error (nil on EOF).
//
// A failed client write (typically an early disconnect) stops client
// delivery but not the loop: the remaining upstream bytes keep draining
// into the parser so metrics can still be finalized.
func (t *Tee) Copy(src io.Reader) error {
	defer t.closeChunks()

	buf := make([]byte, readBufferSize)
	var clientGone bool

	for {
		n, err := src.Read(buf)
		if n > 0 {
			t.offer(buf[:n])

			if !clientGone {
				if _, werr := t.client.Write(buf[:n]); werr != nil {
					clientGone = true
				}
			}
		}
		if err != nil {
			if err == io.EOF {
				return nil
			}
			t.mu.Lock()
			t.readErr = err
			t.mu.Unlock()
			return err
		}
	}
}

// offer hands a copy of the chunk to the parser side without ever
// blocking. A full channel truncates the parser stream: the channel is
// closed so the parser finalizes promptly with what it has, and all
// later chunks bypass it.
func (t *Tee) offer(b []byte) {
	if t.truncated.Load() {
		return
	}

	// The parser owns its copy; the read buffer is reused immediately for
	// the client write and the next read.
	chunk := make([]byte, len(b))
	copy(chunk, b)

	select {
	case t.chunks <- chunk:
	default:
		t.truncated.Store(true)
		t.closeChunks()
	}
}

func (t *Tee) closeChunks() {
	t.closeOnce.Do(func() {
		close(t.chunks)
	})
}

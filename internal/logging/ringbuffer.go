package logging

import (
	"os"
	"sync"
)

// RingBuffer is a fixed-capacity byte buffer that keeps the most recent
// writes, discarding the oldest data once full. It implements io.Writer
// and is safe for concurrent use.
type RingBuffer struct {
	mu    sync.Mutex
	buf   []byte
	start int // index of the oldest byte
	n     int // bytes currently held
}

// NewRingBuffer creates a ring buffer holding at most size bytes.
func NewRingBuffer(size int) *RingBuffer {
	if size <= 0 {
		size = 1024 * 1024
	}
	return &RingBuffer{buf: make([]byte, size)}
}

// Write implements io.Writer. Writes never fail; old data is dropped
// once capacity is reached.
func (rb *RingBuffer) Write(p []byte) (int, error) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	written := len(p)
	cap := len(rb.buf)
	if written >= cap {
		copy(rb.buf, p[written-cap:])
		rb.start = 0
		rb.n = cap
		return written, nil
	}

	end := (rb.start + rb.n) % cap
	first := copy(rb.buf[end:], p)
	copy(rb.buf, p[first:])

	rb.n += written
	if rb.n > cap {
		// Dropped rb.n-cap oldest bytes; advance the start past them.
		rb.start = (rb.start + rb.n - cap) % cap
		rb.n = cap
	}
	return written, nil
}

// Bytes returns the held data in write order.
func (rb *RingBuffer) Bytes() []byte {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	out := make([]byte, rb.n)
	first := copy(out, rb.buf[rb.start:min(rb.start+rb.n, len(rb.buf))])
	copy(out[first:], rb.buf[:rb.n-first])
	return out
}

// Len reports how many bytes the buffer currently holds.
func (rb *RingBuffer) Len() int {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.n
}

// DumpToFile writes the held data to path in write order.
func (rb *RingBuffer) DumpToFile(path string) error {
	return os.WriteFile(path, rb.Bytes(), 0o644)
}

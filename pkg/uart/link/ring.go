package link

import "sync"

// DefaultRingSize is the receive buffer size of links.
const DefaultRingSize = 4096

// Ring is a bounded byte FIFO filled by a reader goroutine and drained
// by the polling goroutine. Bytes not fitting are dropped and counted
// as overruns.
type Ring struct {
	// Notify is called after bytes are stored, outside of the lock.
	Notify func()

	lock     sync.Mutex
	buf      []byte
	head     int
	count    int
	overruns int
}

// NewRing creates a Ring.
func NewRing(size int) *Ring {
	if size <= 0 {
		size = DefaultRingSize
	}
	return &Ring{buf: make([]byte, size)}
}

// Put stores bytes and returns how many were stored.
func (r *Ring) Put(p []byte) int {
	r.lock.Lock()
	n := len(r.buf) - r.count
	if n > len(p) {
		n = len(p)
	}
	r.overruns += len(p) - n
	tail := (r.head + r.count) % len(r.buf)
	copied := copy(r.buf[tail:], p[:n])
	copy(r.buf, p[copied:n])
	r.count += n
	notify := r.Notify
	r.lock.Unlock()
	if n > 0 && notify != nil {
		notify()
	}
	return n
}

// Read implements comm.ByteLink. It never blocks.
func (r *Ring) Read(p []byte) (int, error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	n := r.count
	if n > len(p) {
		n = len(p)
	}
	copied := copy(p[:n], r.buf[r.head:])
	copy(p[copied:n], r.buf)
	r.head = (r.head + n) % len(r.buf)
	r.count -= n
	return n, nil
}

// Len returns the number of buffered bytes.
func (r *Ring) Len() int {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.count
}

// Overruns returns the number of bytes dropped.
func (r *Ring) Overruns() int {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.overruns
}

// Reset drops buffered bytes.
func (r *Ring) Reset() {
	r.lock.Lock()
	r.head, r.count = 0, 0
	r.lock.Unlock()
}

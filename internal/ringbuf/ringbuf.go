// Package ringbuf implements the byte ring used by the drivers to hold
// received data between the reader goroutine and the port.
package ringbuf

import "sync"

// Ring is a fixed-capacity byte FIFO. It is safe for concurrent use.
type Ring struct {
	mu         sync.Mutex
	buf        []byte
	head, tail int
	count      int
	dropOldest bool
	overflow   int
}

// New returns a ring holding up to size bytes. When dropOldest is set,
// writing to a full ring discards the oldest byte; otherwise the new byte
// is rejected. Either way the loss is counted by Overflow.
func New(size int, dropOldest bool) *Ring {
	if size < 0 {
		size = 0
	}
	return &Ring{buf: make([]byte, size), dropOldest: dropOldest}
}

// Len returns the number of buffered bytes.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// Overflow returns how many bytes were lost to a full ring or a
// shrinking Resize.
func (r *Ring) Overflow() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.overflow
}

// Write stores as much of p as fits and returns the count stored.
func (r *Ring) Write(p []byte) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, b := range p {
		if r.put(b) {
			n++
		}
	}
	return n
}

func (r *Ring) put(b byte) bool {
	if len(r.buf) == 0 {
		r.overflow++
		return false
	}
	if r.count == len(r.buf) {
		r.overflow++
		if !r.dropOldest {
			return false
		}
		r.tail = (r.tail + 1) % len(r.buf)
		r.count--
	}
	r.buf[r.head] = b
	r.head = (r.head + 1) % len(r.buf)
	r.count++
	return true
}

// Get removes and returns the oldest byte.
func (r *Ring) Get() (byte, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.count == 0 {
		return 0, false
	}
	b := r.buf[r.tail]
	r.tail = (r.tail + 1) % len(r.buf)
	r.count--
	return b, true
}

// PeekByte returns the oldest byte without removing it.
func (r *Ring) PeekByte() (byte, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.count == 0 {
		return 0, false
	}
	return r.buf[r.tail], true
}

// Read drains up to len(p) bytes into p.
func (r *Ring) Read(p []byte) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for n < len(p) && r.count > 0 {
		p[n] = r.buf[r.tail]
		r.tail = (r.tail + 1) % len(r.buf)
		r.count--
		n++
	}
	return n
}

// Resize changes the capacity to size, keeping as many of the oldest
// buffered bytes as fit. It returns the capacity now in effect.
func (r *Ring) Resize(size int) int {
	if size < 0 {
		size = 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if size == len(r.buf) {
		return size
	}
	nb := make([]byte, size)
	n := 0
	for n < size && r.count > 0 {
		nb[n] = r.buf[r.tail]
		r.tail = (r.tail + 1) % len(r.buf)
		r.count--
		n++
	}
	r.overflow += r.count
	r.buf = nb
	r.tail = 0
	r.count = n
	r.head = 0
	if size > 0 {
		r.head = n % size
	}
	return size
}

// Package bio implements the memory-buffered "external BIO" that bridges
// the record engine to the network: the engine never touches a socket
// directly, it only drains and fills this byte queue (spec §3, "External
// BIO"). The ring-buffer technique (power-of-two capacity, overflowing
// uint read/write cursors) follows the same approach as the teacher
// module's generic circular buffer, specialized here to bytes and to the
// engine's get_output/put_input contract instead of a generic container.
package bio

// Queue is a growable byte ring buffer. The zero value is ready to use.
type Queue struct {
	data     []byte
	readPos  uint
	writePos uint
}

// Len returns the number of unread bytes currently queued.
func (q *Queue) Len() int {
	return int(q.writePos - q.readPos)
}

func (q *Queue) mask() uint {
	return uint(len(q.data)) - 1
}

func (q *Queue) grow(need int) {
	capacity := len(q.data)
	if capacity == 0 {
		capacity = 64
	}
	for capacity < need {
		capacity *= 2
	}
	data := make([]byte, capacity)
	n := q.peekInto(data)
	q.data = data
	q.readPos = 0
	q.writePos = uint(n)
}

// Write appends p to the queue, growing it as needed. It never fails.
func (q *Queue) Write(p []byte) {
	if len(p) == 0 {
		return
	}
	if q.Len()+len(p) > len(q.data) {
		q.grow(q.Len() + len(p))
	}
	for _, b := range p {
		q.data[q.writePos&q.mask()] = b
		q.writePos++
	}
}

// peekInto copies up to len(dst) queued bytes into dst without consuming
// them, returning the number copied.
func (q *Queue) peekInto(dst []byte) int {
	n := q.Len()
	if n > len(dst) {
		n = len(dst)
	}
	if n == 0 || len(q.data) == 0 {
		return n
	}
	m := q.mask()
	for i := 0; i < n; i++ {
		dst[i] = q.data[(q.readPos+uint(i))&m]
	}
	return n
}

// Drain copies up to len(dst) queued bytes into dst, consumes them, and
// returns the sub-slice of dst actually filled. This is the engine's
// GetOutput primitive (spec §4.1): the returned length may be 0.
func (q *Queue) Drain(dst []byte) []byte {
	n := q.peekInto(dst)
	q.readPos += uint(n)
	return dst[:n]
}

// DrainAll consumes and returns every queued byte. The record engine uses
// this to pull one whole datagram's worth of ciphertext per step, since
// PutInput enqueues exactly one received datagram at a time.
func (q *Queue) DrainAll() []byte {
	out := make([]byte, q.Len())
	return q.Drain(out)
}

// Reset discards all queued bytes.
func (q *Queue) Reset() {
	q.readPos = 0
	q.writePos = 0
}

// Pair bundles the two halves of the memory-BIO transport (spec §3): the
// internal half the record engine's own handshake/record state machine
// reads and writes, and the external half that is the sole ciphertext
// bridge to the network. Both directions are modeled as independent
// Queues: Internal receives what PutInput supplies and is consumed by the
// engine's record parser; External accumulates what the engine emits and
// is drained by GetOutput.
type Pair struct {
	Internal Queue // ciphertext not yet consumed by the engine's record layer
	External Queue // ciphertext the engine produced, not yet sent
}

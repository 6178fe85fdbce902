// Copyright (c) 2026, dtlscore authors
// Licensed under the MIT License. See LICENSE for details.

// Package intrusive implements the session driver's retransmit-timer
// priority queue (C3, spec §4.4/§5): a binary min-heap that stores each
// element's position inside the element itself, so arming or cancelling
// a flight's retransmit deadline never allocates.
//
// A session never drives more than one flight at a time (spec §4.4: it
// completes one engine operation before starting the next), so in
// practice this heap only ever holds the single retransmitJob session.go
// parks in it — but the shape is kept general enough that a session
// pipelining several independent deadlines could reuse it without a
// rewrite.
package intrusive

// entry pairs a heap element with a pointer to the int field the element
// carries its own heap position in. Storing the two as separate pointers
// (rather than reaching into T through unsafe.Pointer arithmetic) costs
// one extra word per slot but keeps this package free of unsafe — the
// retransmit queue holding at most one live entry, that cost is
// negligible.
//
// *index == 0 means "not currently in any heap"; live positions are
// stored 1-based so a zeroed retransmitJob.heapIndex field reads as "not
// queued" without a separate sentinel field.
type entry[T any] struct {
	item  *T
	index *int
}

// IntrusiveHeapAry is a min-heap over *T ordered by less, where each T
// supplies its own storage slot for the heap to record its current array
// position in.
type IntrusiveHeapAry[T any] struct {
	slots []entry[T]
	less  func(*T, *T) bool
}

// NewIntrusiveHeapAry builds an empty heap ordered by less, pre-sizing
// its backing array for sizeHint elements (session.go passes 1: its
// retransmit queue never holds more than a single outstanding flight).
func NewIntrusiveHeapAry[T any](less func(*T, *T) bool, sizeHint int) *IntrusiveHeapAry[T] {
	return &IntrusiveHeapAry[T]{
		less:  less,
		slots: make([]entry[T], 0, sizeHint),
	}
}

// Reserve grows the heap's backing array to hold at least size elements
// without reallocating on a later Insert.
func (h *IntrusiveHeapAry[T]) Reserve(size int) {
	if cap(h.slots) >= size {
		return
	}
	grown := make([]entry[T], len(h.slots), size)
	copy(grown, h.slots)
	h.slots = grown
}

// Len reports how many elements are currently queued.
func (h *IntrusiveHeapAry[T]) Len() int {
	return len(h.slots)
}

// Front returns the element ordered first by less — for the retransmit
// queue, the job with the earliest deadline.
func (h *IntrusiveHeapAry[T]) Front() *T {
	return h.slots[0].item
}

// Insert adds node to the heap, recording its position in *heapIndex.
// Returns false without modifying the heap if *heapIndex is already
// nonzero (node is already queued). session.go's armRetransmit erases a
// queued job before inserting it again, so it never hits that case.
func (h *IntrusiveHeapAry[T]) Insert(node *T, heapIndex *int) bool {
	if *heapIndex != 0 {
		return false
	}
	h.slots = append(h.slots, entry[T]{node, heapIndex})
	at := len(h.slots) - 1
	h.place(at)
	h.siftUp(at)
	return true
}

// Erase removes node from the heap. Returns false without modifying the
// heap if *heapIndex is zero (node isn't queued) — session.go calls this
// on every new flight send to clear a stale retransmit deadline before
// arming the next one.
func (h *IntrusiveHeapAry[T]) Erase(node *T, heapIndex *int) bool {
	if *heapIndex == 0 {
		return false
	}
	at := *heapIndex - 1
	if h.slots[at].item != node || h.slots[at].index != heapIndex {
		// this is the caller's invariant (node/heapIndex must match the
		// slot at *heapIndex); worth keeping as a hard panic to catch a
		// retransmitJob bookkeeping bug in session.go rather than silently
		// corrupting the heap.
		panic("heap invariant violated")
	}
	*heapIndex = 0

	last := len(h.slots) - 1
	if at == last {
		h.slots = h.slots[:last]
		return true
	}
	h.slots[at] = h.slots[last]
	h.slots = h.slots[:last]
	h.place(at)
	if !h.siftDown(at) {
		h.siftUp(at)
	}
	return true
}

// PopFront removes the front element (see Front) from the heap.
func (h *IntrusiveHeapAry[T]) PopFront() {
	*h.slots[0].index = 0
	last := len(h.slots) - 1
	if last == 0 {
		h.slots = h.slots[:0]
		return
	}
	h.slots[0] = h.slots[last]
	h.slots = h.slots[:last]
	h.place(0)
	h.siftDown(0)
}

// place stamps slots[at]'s own heapIndex field with its 1-based position.
func (h *IntrusiveHeapAry[T]) place(at int) {
	*h.slots[at].index = at + 1
}

func (h *IntrusiveHeapAry[T]) swap(i, j int) {
	h.slots[i], h.slots[j] = h.slots[j], h.slots[i]
	h.place(i)
	h.place(j)
}

func (h *IntrusiveHeapAry[T]) siftUp(at int) {
	for at > 0 {
		parent := (at - 1) / 2
		if h.less(h.slots[parent].item, h.slots[at].item) {
			return
		}
		h.swap(at, parent)
		at = parent
	}
}

// siftDown restores the heap invariant below at, and reports whether it
// moved anything — Erase uses that to decide whether a sift-up is also
// needed for the slot the last element was moved into.
func (h *IntrusiveHeapAry[T]) siftDown(at int) bool {
	moved := false
	n := len(h.slots)
	for {
		left, right := 2*at+1, 2*at+2
		smallest := at
		if left < n && h.less(h.slots[left].item, h.slots[smallest].item) {
			smallest = left
		}
		if right < n && h.less(h.slots[right].item, h.slots[smallest].item) {
			smallest = right
		}
		if smallest == at {
			return moved
		}
		h.swap(at, smallest)
		at = smallest
		moved = true
	}
}

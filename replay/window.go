// Copyright (c) 2026, dtlscore authors
// Licensed under the MIT License. See LICENSE for details.

// Package replay implements the sliding anti-replay window the record
// engine's Read (engine/record.go) applies to inbound application-data
// records (spec §8's anti-replay property; see SPEC_FULL.md's
// "supplemented features"). A from-
// scratch record engine has to track this itself — unlike the original
// acceptor, which hands records to a library that already does.
package replay

// SequenceNumber is the 48-bit-on-the-wire record sequence number the
// engine tracks replay state over (wire.RecordHeader.SequenceNumber),
// named here so Window's signature reads as DTLS record bookkeeping
// rather than a bare counter.
type SequenceNumber = uint64

// width is the number of trailing sequence numbers Window remembers
// below its high-water mark. Fixed at 64 — this module negotiates a
// single epoch's worth of application-data records per session and
// never needs a narrower window to bound memory differently.
const width = 64

// Window tracks, for one read epoch, the highest record sequence number
// seen and, for each of the width slots below it, the actual sequence
// number that last occupied that slot. A slot's value only counts as
// "received" if it still matches the sequence number currently mapped to
// it — once the high-water mark advances far enough that a slot gets
// reassigned to a newer sequence number, the old value simply stops
// matching and reads as not-received without needing to be cleared
// eagerly. A record whose sequence number falls below the window or
// whose slot already holds it is a replay and must be dropped before it
// reaches the AEAD open call; a sequence number at or above the
// high-water mark is never a replay.
type Window struct {
	nextReceivedSeq SequenceNumber
	slotSeq         [width]SequenceNumber
	slotSet         [width]bool
}

// Reset clears the window, e.g. when a session transitions to a new read
// epoch (handshake keys -> application keys) and sequence numbers restart
// at 0 under a fresh set of traffic keys.
func (r *Window) Reset() {
	*r = Window{}
}

// GetNextReceivedSeq returns the window's current high-water mark: the
// smallest sequence number not yet known to be received.
func (r *Window) GetNextReceivedSeq() SequenceNumber { return r.nextReceivedSeq }

// inWindow reports whether seq is both below the high-water mark and
// still within the width most recent sequence numbers below it.
func (r *Window) inWindow(seq SequenceNumber) bool {
	return seq < r.nextReceivedSeq && seq+width >= r.nextReceivedSeq
}

func (r *Window) slot(seq SequenceNumber) int {
	return int(seq % width)
}

// GetBitCount reports how many of the width most recent sequence numbers
// below the high-water mark have been accepted.
func (r *Window) GetBitCount() int {
	n := 0
	for i := range r.slotSeq {
		if r.slotSet[i] && r.inWindow(r.slotSeq[i]) {
			n++
		}
	}
	return n
}

// SetNextReceived advances the high-water mark to nextSeq; record.go
// calls this with hdr.SequenceNumber+1 for each accepted record whose
// sequence number is at or above the current mark (spec
// §8: later records push the window forward, retiring any slot whose
// stored sequence number falls out of range without touching it).
func (r *Window) SetNextReceived(nextSeq SequenceNumber) {
	if nextSeq > r.nextReceivedSeq {
		r.nextReceivedSeq = nextSeq
	}
}

// SetBit marks seq as received. A seq outside the current window (at or
// past the mark, or more than width behind it) is a no-op: it is either
// not yet reachable or already known stale.
func (r *Window) SetBit(seq SequenceNumber) {
	if !r.inWindow(seq) {
		return
	}
	i := r.slot(seq)
	r.slotSeq[i] = seq
	r.slotSet[i] = true
}

// ClearBit un-marks seq, e.g. to undo a speculative SetBit if a record's
// AEAD open fails after the sequence number was provisionally accepted.
func (r *Window) ClearBit(seq SequenceNumber) {
	if !r.inWindow(seq) {
		return
	}
	i := r.slot(seq)
	if r.slotSet[i] && r.slotSeq[i] == seq {
		r.slotSet[i] = false
	}
}

// IsSetBit reports whether seq has already been accepted: true for a
// record.go caller means "drop this record, it's a replay or older than
// the window retains."
func (r *Window) IsSetBit(seq SequenceNumber) bool {
	if seq >= r.nextReceivedSeq {
		return false // not yet received, so not (yet) a replay
	}
	if seq+width < r.nextReceivedSeq {
		return true // older than the window retains; treat as already-seen
	}
	i := r.slot(seq)
	return r.slotSet[i] && r.slotSeq[i] == seq
}

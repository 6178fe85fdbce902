// Copyright (c) 2026, dtlscore authors
// Licensed under the MIT License. See LICENSE for details.

// Package session implements the session I/O driver (C3, spec §4.4): the
// loop pairing a record engine with a connected per-peer datagram socket,
// translating the engine's want signal into datagram reads and writes.
// Each accepted peer gets its own Session bound to its own promoted socket
// (spec §1 non-goal: "no connection multiplexing on a single ephemeral
// socket"), so the driver here is deliberately synchronous per Session;
// callers wanting concurrent peers run one goroutine per Session, the same
// shape the acceptor's promotion step produces.
package session

import (
	"errors"
	"net"
	"time"

	"github.com/dtlscore/acceptor/dtlserrors"
	"github.com/dtlscore/acceptor/engine"
	"github.com/dtlscore/acceptor/intrusive"
)

const (
	initialRetransmitTimeout = 400 * time.Millisecond
	maxRetransmitTimeout     = 6400 * time.Millisecond
	maxRetransmitAttempts    = 8
)

// retransmitJob is the single scheduling entry a Session parks in its
// intrusive heap: the deadline by which the last flight this Session sent
// must be repeated because no reply has arrived. A Session never has more
// than one flight outstanding at a time (it drives one operation to
// completion before starting the next), so the heap here is always of
// size 0 or 1; it is still the same intrusive.IntrusiveHeapAry the record
// engine's design leaves room for a session with several independent
// timers (e.g. one per pipelined write) to reuse without changing shape.
type retransmitJob struct {
	deadline  time.Time
	heapIndex int
	flight    []byte
	timeout   time.Duration
}

func lessDeadline(a, b *retransmitJob) bool { return a.deadline.Before(b.deadline) }

// Session pairs a record engine with a connected datagram socket and
// drives it per spec §4.4's conceptual contract.
type Session struct {
	eng  *engine.Engine
	conn net.Conn

	timers *intrusive.IntrusiveHeapAry[retransmitJob]
	job    retransmitJob

	mtu int
}

// New pairs eng with a connected datagram socket. conn must already be
// connected to exactly one peer; the acceptor's promotion step (spec
// §4.5) is responsible for that before handing the Session to the caller.
func New(eng *engine.Engine, conn net.Conn) *Session {
	return &Session{
		eng:    eng,
		conn:   conn,
		timers: intrusive.NewIntrusiveHeapAry[retransmitJob](lessDeadline, 1),
		mtu:    eng.MTU(),
	}
}

// Engine returns the driven record engine.
func (s *Session) Engine() *engine.Engine { return s.eng }

// Conn returns the underlying connected datagram socket.
func (s *Session) Conn() net.Conn { return s.conn }

// Handshake drives the symmetric handshake to completion or fatal error.
// Unlike Read/Write (each a single engine.Handshake-style call), the
// handshake spans several such calls on each side (ServerHello+Finished,
// then a later call to verify the peer's Finished), so this keeps
// re-invoking eng.Handshake, sending and receiving flights in between,
// until the engine reports Nothing.
func (s *Session) Handshake() error {
	return s.driveUntilDone(s.eng.Handshake)
}

// Close drives the bidirectional close-notify exchange (spec §4.1
// shutdown, §8 property 7) and then closes the underlying socket. A
// single eng.Shutdown call only performs one phase of that exchange
// (send this side's close_notify, or absorb the peer's), so Close keeps
// re-invoking it exactly as Handshake re-invokes eng.Handshake. Nothing
// paired with dtlserrors.ErrEOF is the expected clean-close outcome, and
// Close returns that ErrEOF as its error; any other non-nil error is a
// failure.
func (s *Session) Close() error {
	err := s.driveUntilDone(s.eng.Shutdown)
	if cerr := s.conn.Close(); err == nil {
		err = cerr
	}
	return err
}

// Read moves decrypted application data into buf. A single eng.Read call
// either completes immediately (data was already buffered) or needs
// exactly one more datagram, so this is a one-shot drive: it never needs
// to re-invoke eng.Read after producing output, because Read never does.
func (s *Session) Read(buf []byte) (int, error) {
	var n int
	err := s.driveOnce(func() (engine.Want, error) {
		want, read, rerr := s.eng.Read(buf)
		n = read
		return want, rerr
	})
	return n, err
}

// Write AEAD-protects and sends buf as one application-data record; the
// engine always completes a Write in a single call (spec §4.1: write
// returns a *want* and the bytes transferred), so this too is one-shot.
func (s *Session) Write(buf []byte) (int, error) {
	var n int
	err := s.driveOnce(func() (engine.Want, error) {
		want, written, werr := s.eng.Write(buf)
		n = written
		return want, werr
	})
	return n, err
}

// driveOnce implements spec §4.4's conceptual contract literally: Output
// ends the loop once this step's ciphertext has been sent, without
// re-invoking op. Suited to engine operations (Read, Write) that always
// finish in a single call.
func (s *Session) driveOnce(op func() (engine.Want, error)) error {
	scratch := make([]byte, s.mtu)
	attempts := 0
	for {
		want, err := op()
		if err != nil {
			return s.eng.MapErrorCode(err)
		}
		switch want {
		case engine.Nothing:
			return nil
		case engine.Output, engine.OutputAndRetry:
			out := s.eng.GetOutput(scratch)
			if len(out) > 0 {
				if _, werr := s.conn.Write(out); werr != nil {
					return werr
				}
			}
			if want == engine.Output {
				return nil
			}
		case engine.InputAndRetry:
			if err := s.awaitInput(scratch, &attempts); err != nil {
				return err
			}
		}
	}
}

// driveUntilDone is driveOnce's counterpart for engine operations
// (Handshake, Shutdown) that span several calls: Output still triggers a
// send, but op is re-invoked afterward instead of returning, since more
// progress may only be reachable through another call. A lost datagram
// is recovered by resending the last flight once its retransmit deadline
// elapses, rather than blocking forever on an ack that lost peer never
// sends (spec §5's "no retransmission scheduling beyond what the record
// engine itself performs" bounds what the *engine* invents; it does not
// forbid the transport-facing driver above it from surviving a lossy
// datagram network).
func (s *Session) driveUntilDone(op func() (engine.Want, error)) error {
	scratch := make([]byte, s.mtu)
	attempts := 0
	for {
		want, err := op()
		if err != nil {
			return s.eng.MapErrorCode(err)
		}
		switch want {
		case engine.Nothing:
			s.cancelRetransmit()
			return nil
		case engine.Output, engine.OutputAndRetry:
			if err := s.sendOutput(scratch); err != nil {
				return err
			}
		case engine.InputAndRetry:
			if err := s.awaitInput(scratch, &attempts); err != nil {
				return err
			}
		}
	}
}

func (s *Session) sendOutput(scratch []byte) error {
	out := s.eng.GetOutput(scratch)
	if len(out) == 0 {
		return nil
	}
	if _, err := s.conn.Write(out); err != nil {
		return err
	}
	s.armRetransmit(out)
	return nil
}

func (s *Session) armRetransmit(flight []byte) {
	timeout := s.job.timeout
	if timeout == 0 {
		timeout = initialRetransmitTimeout
	}
	if s.job.heapIndex != 0 {
		s.timers.Erase(&s.job, &s.job.heapIndex)
	}
	s.job.flight = append(s.job.flight[:0], flight...)
	s.job.timeout = timeout
	s.job.deadline = time.Now().Add(timeout)
	s.timers.Insert(&s.job, &s.job.heapIndex)
}

func (s *Session) cancelRetransmit() {
	if s.job.heapIndex != 0 {
		s.timers.Erase(&s.job, &s.job.heapIndex)
	}
	s.job.timeout = 0
}

// awaitInput blocks for one datagram, giving up and resending the last
// flight once the retransmit deadline elapses. It returns nil (letting
// the caller re-invoke the engine operation) both when a datagram arrived
// and when a retransmit fired, since either way the caller's next
// operation call is the correct next step.
func (s *Session) awaitInput(scratch []byte, attempts *int) error {
	if s.timers.Len() != 0 {
		if *attempts >= maxRetransmitAttempts {
			return dtlserrors.ErrStreamTruncated
		}
		if err := s.conn.SetReadDeadline(s.timers.Front().deadline); err != nil {
			return err
		}
	} else {
		if err := s.conn.SetReadDeadline(time.Time{}); err != nil {
			return err
		}
	}

	n, err := s.conn.Read(scratch)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return s.retransmit(attempts)
		}
		return err
	}
	s.eng.PutInput(scratch[:n])
	return nil
}

func (s *Session) retransmit(attempts *int) error {
	job := s.timers.Front()
	*attempts++
	if _, werr := s.conn.Write(job.flight); werr != nil {
		return werr
	}
	job.timeout = min(job.timeout*2, maxRetransmitTimeout)
	job.deadline = time.Now().Add(job.timeout)
	return nil
}

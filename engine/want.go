// Copyright (c) 2026, dtlscore authors
// Licensed under the MIT License. See LICENSE for details.

// Package engine implements the record-pump state machine (spec §4.1):
// a record engine bound to a memory BIO pair that drives the stateless
// cookie exchange and the symmetric handshake/record flow, reporting its
// progress through a cooperative-yield "want" signal instead of
// suspending. The session driver (see the session package) translates
// want signals into datagram reads and writes.
package engine

// Want is the cooperative-yield status returned by every engine
// operation (spec §3, "Session want signal").
type Want int

const (
	// Nothing means the operation is complete or fatally errored; consult
	// the returned error.
	Nothing Want = iota
	// InputAndRetry means the engine needs a fresh datagram fed via
	// PutInput before the same operation is retried.
	InputAndRetry
	// Output means the engine produced ciphertext and the operation is
	// done; the caller drains it with GetOutput and sends it.
	Output
	// OutputAndRetry means the engine produced ciphertext and still needs
	// more I/O; the caller drains, sends, and re-enters the loop.
	OutputAndRetry
)

func (w Want) String() string {
	switch w {
	case Nothing:
		return "nothing"
	case InputAndRetry:
		return "input_and_retry"
	case Output:
		return "output"
	case OutputAndRetry:
		return "output_and_retry"
	default:
		return "unknown"
	}
}

// Copyright (c) 2026, dtlscore authors
// Licensed under the MIT License. See LICENSE for details.

package engine

import (
	"github.com/dtlscore/acceptor/bio"
	"github.com/dtlscore/acceptor/ciphersuite"
	"github.com/dtlscore/acceptor/cookie"
	"github.com/dtlscore/acceptor/constants"
	"github.com/dtlscore/acceptor/dtlserrors"
	"github.com/dtlscore/acceptor/dtlsrand"
	"github.com/dtlscore/acceptor/replay"
)

// Role distinguishes the two handshake roles an engine can drive. This
// module's acceptor only ever constructs server-role engines; client
// role exists so the symmetric handshake driver (spec §1 point 1, and
// the round-trip test scenarios) can be exercised from both ends with
// the same state machine.
type Role int

const (
	RoleServer Role = iota
	RoleClient
)

type handshakeState int

const (
	// Server-role states (driven by DTLSListen, then Handshake).
	stateAwaitingClientHello1 handshakeState = iota
	stateAwaitingClientHello2
	stateReadyToPromote
	stateServerFlightSent

	// Client-role states (driven entirely by Handshake).
	stateClientInit
	stateClientAwaitHelloVerify
	stateClientAwaitServerFlight

	stateEstablished
	stateShutdownSent
	stateShutdownDone
)

// Engine is the record-pump state machine (C1): one TLS session bound to
// a memory BIO pair, driven exclusively through Want-returning steps.
type Engine struct {
	role Role
	rand dtlsrand.Rand

	pair *bio.Pair

	App *AppData

	mtu              int
	cookieValidity   int64 // nanoseconds; 0 falls back to defaultCookieValidity (listen.go)
	state            handshakeState
	receivedShutdown bool
	shutdownSent     bool

	localRandom  [32]byte
	peerRandom   [32]byte
	sessionID    []byte
	localKeyShr  ciphersuite.KeyShare
	peerX25519   [32]byte
	suiteID      ciphersuite.ID
	suite        ciphersuite.Suite
	offeredSuite []uint16 // client role only: suites offered in ClientHello

	transcript []byte // concatenated transcript-hash input (RFC 9147 §5.3)

	handshakeSecrets *ciphersuite.HandshakeSecrets
	appSecrets       *ciphersuite.ApplicationSecrets

	readEpoch, writeEpoch uint16
	readSeq, writeSeq     uint64
	readKeys, writeKeys   ciphersuite.TrafficKeys
	pendingPlaintext      []byte // decrypted application data awaiting Read
	cookieParams          cookie.Params
	readWindow            replay.Window // anti-replay tracking over application-data sequence numbers
}

// New constructs an engine for the given role. rand supplies the
// randomness used for the local random nonce and ephemeral key share;
// tests pass dtlsrand.DeterministicRand for reproducible fixtures.
func New(role Role, rand dtlsrand.Rand) *Engine {
	e := &Engine{
		role: role,
		rand: rand,
		pair: &bio.Pair{},
		App:  &AppData{},
	}
	if role == RoleClient {
		e.state = stateClientInit
		e.localKeyShr = ciphersuite.NewKeyShare(rand)
	}
	rand.Read(e.localRandom[:])
	return e
}

// SetMTU pins a path MTU, disabling this module's (non-existent) MTU
// discovery query. It returns true for any positive mtu; for mtu <= 0 it
// returns false and leaves the current setting unchanged.
func (e *Engine) SetMTU(mtu int) bool {
	if mtu <= 0 {
		return false
	}
	e.mtu = mtu
	return true
}

// MTU returns the pinned path MTU, or the module default if none was set.
func (e *Engine) MTU() int {
	if e.mtu == 0 {
		return constants.DefaultPathMTU
	}
	return e.mtu
}

// SetCookieGenerateCallback installs the session's cookie generator
// (spec §4.1).
func (e *Engine) SetCookieGenerateCallback(g cookie.Generator) {
	e.App.CookieGenerator = g
}

// SetCookieVerifyCallback installs the session's cookie verifier.
func (e *Engine) SetCookieVerifyCallback(v cookie.Verifier) {
	e.App.CookieVerifier = v
}

// SetVerifyCallback installs the optional post-handshake identity
// verification hook (spec §4.1's set_verify_callback). This module's own
// handshake never calls it; it is a seam for callers layering identity
// checks on top, since certificate-chain validation is out of scope
// (spec §1).
func (e *Engine) SetVerifyCallback(cb func(ok bool) bool) {
	e.App.VerifyCallback = cb
}

// PutInput pushes one received datagram's ciphertext into the engine's
// internal BIO half, to be consumed by the next driving operation.
func (e *Engine) PutInput(datagram []byte) {
	e.pair.Internal.Write(datagram)
}

// GetOutput drains pending output from the engine's external BIO half
// into dst, returning the filled sub-slice (length may be 0).
func (e *Engine) GetOutput(dst []byte) []byte {
	return e.pair.External.Drain(dst)
}

// HasOutput reports whether GetOutput would currently return any bytes.
func (e *Engine) HasOutput() bool {
	return e.pair.External.Len() > 0
}

// MapErrorCode reclassifies a transport EOF the session driver observed
// (spec §4.1's map_error_code): if ciphertext is still buffered for
// output, or the engine never received a protocol-level shutdown, the
// EOF is reclassified as ErrStreamTruncated; otherwise it passes through
// unchanged.
func (e *Engine) MapErrorCode(err error) error {
	if err != dtlserrors.ErrEOF {
		return err
	}
	if e.pair.External.Len() > 0 || !e.receivedShutdown {
		return dtlserrors.ErrStreamTruncated
	}
	return err
}

// Ready reports whether the stateless cookie exchange has absorbed a
// valid cookie-echoing ClientHello and the session is ready for the
// acceptor to promote (spec §4.5 step 4).
func (e *Engine) Ready() bool {
	return e.state == stateReadyToPromote
}

// Established reports whether the symmetric handshake has completed.
func (e *Engine) Established() bool {
	return e.state == stateEstablished
}

// Copyright (c) 2026, dtlscore authors
// Licensed under the MIT License. See LICENSE for details.

// Package cookie implements the stateless cookie exchange callbacks (C2):
// a pluggable Generator/Verifier pair the acceptor installs on a session
// before arming its listen, plus a default HMAC-based stateless
// implementation so callers who don't need custom anti-spoofing logic
// don't have to write one.
package cookie

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"hash"
	"net/netip"
	"sync"
	"time"

	"github.com/dtlscore/acceptor/dtlserrors"
	"github.com/dtlscore/acceptor/dtlsrand"
	"github.com/dtlscore/acceptor/safecast"
)

// MaxLen is the wire limit on a cookie octet string (spec §6: length MUST
// be <= 255). A Generator's output longer than MaxLen-1 is truncated by
// the trampoline that calls it (spec §4.2, point 8).
const MaxLen = 255

const saltLength = 16
const hashLength = sha256.Size

// Cookie is the opaque octet string exchanged in HelloVerifyRequest and
// echoed back in the client's second ClientHello. Fixed-size storage
// avoids an allocation per verify attempt.
type Cookie struct {
	data [MaxLen]byte
	size int
}

// Value returns the cookie's current content.
func (c *Cookie) Value() []byte {
	return c.data[:c.size]
}

// SetValue replaces the cookie's content, truncating to MaxLen-1 bytes if
// data is longer (spec §4.2 point 8: "a generator returning 255 bytes is
// truncated to 254").
func (c *Cookie) SetValue(data []byte) {
	*c = Cookie{}
	n := len(data)
	if n > MaxLen-1 {
		n = MaxLen - 1
	}
	copy(c.data[:], data[:n])
	c.size = n
}

func (c *Cookie) append(b []byte) {
	if c.size+len(b) > len(c.data) {
		panic("cookie: append overflows MaxLen")
	}
	copy(c.data[c.size:], b)
	c.size += len(b)
}

func (c *Cookie) appendByte(b byte) {
	c.append([]byte{b})
}

// Params is the signed context a stateless cookie carries round-trip:
// values the server can trust once IsValid has verified the cookie's
// HMAC, used to reconstruct an identical HelloVerifyRequest without
// retaining per-flow state (spec §4.2/§4.3).
type Params struct {
	TranscriptHash    []byte
	TimestampUnixNano int64
	KeyShareSet       bool
	CipherSuiteID     uint16
	Age               time.Duration
}

// Generator produces the application-chosen cookie payload for a given
// transient peer endpoint (spec §4.2's generate trampoline). Returning a
// payload longer than MaxLen-1 is safe; it is truncated automatically.
type Generator interface {
	Generate(addr netip.AddrPort, params Params) []byte
}

// Verifier validates a cookie echoed back by a client (spec §4.2's
// verify trampoline). Returning false rejects the ClientHello and causes
// DTLSListen to re-arm rather than complete.
type Verifier interface {
	Verify(addr netip.AddrPort, data []byte) (Params, bool)
}

// GeneratorFunc adapts a plain function to Generator.
type GeneratorFunc func(addr netip.AddrPort, params Params) []byte

func (f GeneratorFunc) Generate(addr netip.AddrPort, params Params) []byte {
	return f(addr, params)
}

// VerifierFunc adapts a plain function to Verifier.
type VerifierFunc func(addr netip.AddrPort, data []byte) (Params, bool)

func (f VerifierFunc) Verify(addr netip.AddrPort, data []byte) (Params, bool) {
	return f(addr, data)
}

// State is the default stateless HMAC-SHA256 cookie implementation (RFC
// 9147 §5.1): the cookie carries a random salt, an issue timestamp, the
// offered ciphersuite and transcript hash, and an HMAC binding all of it
// to the client's source address so a spoofed address can't replay it.
// State implements both Generator and Verifier.
type State struct {
	mu       sync.Mutex
	hmac     hash.Hash
	rnd      dtlsrand.Rand
	validFor time.Duration
}

// NewState builds a cookie State keyed from rnd with the given validity
// window. validFor is typically a few seconds (spec §4.3's cookie
// freshness requirement).
func NewState(rnd dtlsrand.Rand, validFor time.Duration) *State {
	var secret [32]byte
	rnd.Read(secret[:])
	return &State{
		hmac:     hmac.New(sha256.New, secret[:]),
		rnd:      rnd,
		validFor: validFor,
	}
}

// Generate builds a signed cookie payload for addr carrying params.
func (s *State) Generate(addr netip.AddrPort, params Params) []byte {
	var c Cookie

	var salt [saltLength]byte
	s.rnd.Read(salt[:])
	c.append(salt[:])

	var tsBytes [8]byte
	binary.BigEndian.PutUint64(tsBytes[:], uint64(params.TimestampUnixNano))
	c.append(tsBytes[:])

	if params.KeyShareSet {
		c.appendByte(1)
	} else {
		c.appendByte(0)
	}

	var suiteBytes [2]byte
	binary.BigEndian.PutUint16(suiteBytes[:], params.CipherSuiteID)
	c.append(suiteBytes[:])

	c.appendByte(safecast.Cast[byte](len(params.TranscriptHash)))
	c.append(params.TranscriptHash)

	mac := s.scratchHash(c.Value(), addr)
	c.append(mac[:])

	return c.Value()
}

// Verify validates data as a cookie previously produced by Generate for
// addr, returning the recovered Params on success.
func (s *State) Verify(addr netip.AddrPort, data []byte) (Params, bool) {
	params, err := s.verify(addr, data)
	return params, err == nil
}

func (s *State) verify(addr netip.AddrPort, data []byte) (Params, error) {
	var params Params
	r := reader{data: data}

	var salt [saltLength]byte
	if !r.fixed(salt[:]) {
		return Params{}, dtlserrors.ErrClientHelloCookieInvalid
	}

	tsRaw, ok := r.uint64()
	if !ok {
		return Params{}, dtlserrors.ErrClientHelloCookieInvalid
	}
	params.TimestampUnixNano = int64(tsRaw)

	keyShareByte, ok := r.byte()
	if !ok {
		return Params{}, dtlserrors.ErrClientHelloCookieInvalid
	}
	params.KeyShareSet = keyShareByte != 0

	suite, ok := r.uint16()
	if !ok {
		return Params{}, dtlserrors.ErrClientHelloCookieInvalid
	}
	params.CipherSuiteID = suite

	hashLen, ok := r.byte()
	if !ok {
		return Params{}, dtlserrors.ErrClientHelloCookieInvalid
	}
	params.TranscriptHash = make([]byte, hashLen)
	if !r.fixed(params.TranscriptHash) {
		return Params{}, dtlserrors.ErrClientHelloCookieInvalid
	}

	signedPrefix := data[:r.offset]

	var gotMAC [hashLength]byte
	if !r.fixed(gotMAC[:]) {
		return Params{}, dtlserrors.ErrClientHelloCookieInvalid
	}
	if !r.done() {
		return Params{}, dtlserrors.ErrClientHelloCookieInvalid
	}

	wantMAC := s.scratchHash(signedPrefix, addr)
	if gotMAC != wantMAC {
		return Params{}, dtlserrors.ErrClientHelloCookieInvalid
	}

	now := time.Now().UnixNano()
	if params.TimestampUnixNano > now {
		return Params{}, dtlserrors.ErrClientHelloCookieExpired
	}
	params.Age = time.Duration(now - params.TimestampUnixNano)
	if params.Age >= s.validFor {
		return Params{}, dtlserrors.ErrClientHelloCookieExpired
	}

	return params, nil
}

func (s *State) scratchHash(signed []byte, addr netip.AddrPort) [hashLength]byte {
	scratch := make([]byte, 0, len(signed)+18)
	scratch = append(scratch, signed...)
	ip := addr.Addr().As16()
	scratch = append(scratch, ip[:]...)
	scratch = binary.BigEndian.AppendUint16(scratch, addr.Port())

	s.mu.Lock()
	defer s.mu.Unlock()
	s.hmac.Reset()
	s.hmac.Write(scratch)
	var out [hashLength]byte
	s.hmac.Sum(out[:0])
	return out
}

// reader is a tiny bounds-checked cursor over a cookie's decoded bytes.
type reader struct {
	data   []byte
	offset int
}

func (r *reader) fixed(dst []byte) bool {
	if r.offset+len(dst) > len(r.data) {
		return false
	}
	copy(dst, r.data[r.offset:])
	r.offset += len(dst)
	return true
}

func (r *reader) byte() (byte, bool) {
	if r.offset+1 > len(r.data) {
		return 0, false
	}
	b := r.data[r.offset]
	r.offset++
	return b, true
}

func (r *reader) uint16() (uint16, bool) {
	if r.offset+2 > len(r.data) {
		return 0, false
	}
	v := binary.BigEndian.Uint16(r.data[r.offset:])
	r.offset += 2
	return v, true
}

func (r *reader) uint64() (uint64, bool) {
	if r.offset+8 > len(r.data) {
		return 0, false
	}
	v := binary.BigEndian.Uint64(r.data[r.offset:])
	r.offset += 8
	return v, true
}

func (r *reader) done() bool {
	return r.offset == len(r.data)
}

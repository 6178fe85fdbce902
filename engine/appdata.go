// Copyright (c) 2026, dtlscore authors
// Licensed under the MIT License. See LICENSE for details.

package engine

import (
	"net/netip"

	"github.com/dtlscore/acceptor/cookie"
)

// AppData is the per-engine application-data slot (C5): the record a
// C-style TLS library would reach through a session handle's user-data
// pointer to recover Go-level context from inside a cookie trampoline.
// Since this module never crosses a cgo boundary, the slot is just a
// plain struct field on Engine, but it is kept as an explicit type to
// preserve the "callback context threading" seam spec §9 calls for: a
// reimplementation should store callbacks here, not scattered across the
// session/acceptor layers.
type AppData struct {
	CookieGenerator cookie.Generator
	CookieVerifier  cookie.Verifier

	// VerifyCallback, when set, is consulted once the peer's identity
	// material (out of scope for this module's handshake) would normally
	// be checked. Kept as a seam for callers layering certificate
	// verification on top; this module's own handshake never calls it.
	VerifyCallback func(ok bool) bool

	// TransientAddr is the peer endpoint threaded through cookie
	// trampolines for the duration of one DTLSListen step. The acceptor
	// sets it immediately before driving the engine and clears it after
	// (spec §4.2: "set by the acceptor immediately before invoking
	// dtls_listen and cleared after").
	TransientAddr netip.AddrPort
}

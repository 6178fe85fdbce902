// Copyright (c) 2026, dtlscore authors
// Licensed under the MIT License. See LICENSE for details.

// Package constants holds fixed sizes for the record engine (DefaultPathMTU,
// AEADSealSize) and related DTLS limits. The wire and cookie packages keep
// their own limits (wire.MaxRecordBodyLength, cookie.MaxLen) and do not
// import this package.
package constants

// MaxHashLength is the largest transcript hash this module derives keys
// from (SHA-256/SHA-384 both fit).
const MaxHashLength = 48

// CookieFieldMaxLen is the wire limit on the DTLS cookie field: a one-byte
// length prefix, so 255 is the hard ceiling (spec §6). The cookie payload
// itself is clamped one byte below this so length and age-stamp framing fit.
const CookieFieldMaxLen = 255

// MaxOutgoingHRRDatagramLength bounds the HelloVerifyRequest/HRR datagram
// the acceptor ever constructs; kept well under the common 1200-byte DTLS
// path MTU floor.
const MaxOutgoingHRRDatagramLength = 512

// MaxHelloRetryQueueSize is a limit on scratch datagram buffers for
// HelloVerifyRequest generation. The acceptor builds one
// HelloVerifyRequest at a time and keeps no such queue; no code in this
// module reads this value.
const MaxHelloRetryQueueSize = 1024

// DefaultPathMTU is the path MTU the engine assumes when SetMTU has not
// pinned one (see engine.Engine.MTU).
const DefaultPathMTU = 1200

// AEADSealSize is the authentication tag length added by the negotiated
// AEAD suites (both AES-128-GCM and ChaCha20-Poly1305 use a 16-byte tag).
const AEADSealSize = 16

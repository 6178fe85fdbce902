// Copyright (c) 2026, dtlscore authors
// Licensed under the MIT License. See LICENSE for details.

// Package safecast guards every point in this module where a computed
// length (a Go int, always non-negative and usually far smaller than the
// platform's int range) has to narrow into a fixed-width wire field: a
// cookie's one-byte length prefix (cookie.MaxLen), a DTLS record's
// 16-bit body-length field, a ClientHello/ServerHello extension's 16-bit
// length. Based on the narrowing-check shape of
// https://github.com/fortio/safecast; reimplemented here rather than
// imported since this module's own call sites only ever need the
// panicking form.
package safecast

import "math"

// Integer is the set of types Cast can convert between.
type Integer interface {
	~uintptr |
		~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64
}

// bounds reports the inclusive range Result can represent, dispatching
// on Result's concrete type with a type switch over Integer's member
// types. arg never needs to widen
// past int64 at any call site in this module (every Cast here narrows a
// Go int length, not an arbitrary uint64), so the range is reported in
// int64 rather than needing a per-signedness widening scheme.
func bounds[Result Integer]() (lo, hi int64) {
	switch any(Result(0)).(type) {
	case int8:
		return math.MinInt8, math.MaxInt8
	case int16:
		return math.MinInt16, math.MaxInt16
	case int32:
		return math.MinInt32, math.MaxInt32
	case int64, int:
		return math.MinInt64, math.MaxInt64
	case uint8:
		return 0, math.MaxUint8
	case uint16:
		return 0, math.MaxUint16
	case uint32:
		return 0, math.MaxUint32
	case uint64, uint, uintptr:
		return 0, math.MaxInt64
	default:
		panic("safecast: unreachable integer type")
	}
}

// Cast converts arg to Result, panicking if arg's value falls outside
// Result's representable range. Every call site in this module (wire's
// length prefixes, cookie's transcript-hash length byte) is converting a
// length that is a programming invariant of this module's own message
// sizes, not attacker-controlled input threaded through unchecked — a
// panic here means this module itself produced a too-long field, not
// that a peer sent one.
func Cast[Result Integer, Arg Integer](arg Arg) Result {
	lo, hi := bounds[Result]()
	v := int64(arg)
	if v < lo {
		panic("safecast: value is negative and does not fit Result")
	}
	if v > hi {
		panic("safecast: value exceeds Result's range")
	}
	return Result(v)
}

// Copyright (c) 2026, dtlscore authors
// Licensed under the MIT License. See LICENSE for details.

package safecast

import "testing"

// These mirror the lengths this module actually narrows through Cast:
// a cookie's one-byte length prefix (cookie.MaxLen-1 = 254) and a DTLS
// record's 16-bit body-length field (wire.MaxRecordBodyLength = 16384).

func TestCastCookieLengthByte(t *testing.T) {
	for _, n := range []int{0, 1, 254, 255} {
		if got := Cast[byte](n); int(got) != n {
			t.Fatalf("Cast[byte](%d) = %d, want %d", n, got, n)
		}
	}
}

func TestCastCookieLengthByteOverflowPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("Cast[byte](256) did not panic")
		}
	}()
	Cast[byte](256)
}

func TestCastRecordBodyLengthUint16(t *testing.T) {
	for _, n := range []int{0, 1, 16384, 65535} {
		if got := Cast[uint16](n); int(got) != n {
			t.Fatalf("Cast[uint16](%d) = %d, want %d", n, got, n)
		}
	}
}

func TestCastRecordBodyLengthUint16OverflowPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("Cast[uint16](65536) did not panic")
		}
	}()
	Cast[uint16](65536)
}

func TestCastNegativePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("Cast[byte](-1) did not panic")
		}
	}()
	Cast[byte](-1)
}

func TestCastRoundTripsSameWidth(t *testing.T) {
	if got := Cast[int32](int32(42)); got != 42 {
		t.Fatalf("Cast[int32](int32(42)) = %d, want 42", got)
	}
}

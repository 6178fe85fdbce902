package hkdf_test

import (
	"bytes"
	"encoding/hex"
	"testing"

	"github.com/dtlscore/acceptor/hkdf"
)

// TestExtractExpandRFC5869Vector checks Extract/Expand against the
// SHA-256 test vector from RFC 5869 appendix A.1.
func TestExtractExpandRFC5869Vector(t *testing.T) {
	ikm, _ := hex.DecodeString("0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b")
	salt, _ := hex.DecodeString("000102030405060708090a0b0c")
	info, _ := hex.DecodeString("f0f1f2f3f4f5f6f7f8f9")
	wantPRK, _ := hex.DecodeString("077709362c2e32df0ddc3f0dc47bba6390b6c73bb50f9c3122ec844ad7c2b3e5")
	wantOKM, _ := hex.DecodeString("3cb25f25faacd57a90434f64d0362f2a2d2d0a90cf1a5a4c5db02d56ecc4c5bf34007208d5b887185865")

	prk := hkdf.Extract(salt, ikm)
	if !bytes.Equal(prk, wantPRK[:len(prk)]) {
		t.Fatalf("Extract mismatch:\ngot  %x\nwant %x", prk, wantPRK)
	}

	okm := hkdf.Expand(prk, info, 42)
	if !bytes.Equal(okm, wantOKM[:42]) {
		t.Fatalf("Expand mismatch:\ngot  %x\nwant %x", okm, wantOKM[:42])
	}
}

func TestExpandLabelIsDeterministicAndLengthRespecting(t *testing.T) {
	secret := bytes.Repeat([]byte{0x01}, 32)
	a := hkdf.ExpandLabel(secret, "c hs traffic", []byte{0xAA}, 32)
	b := hkdf.ExpandLabel(secret, "c hs traffic", []byte{0xAA}, 32)
	if !bytes.Equal(a, b) {
		t.Fatalf("ExpandLabel must be deterministic")
	}
	if len(a) != 32 {
		t.Fatalf("expected 32-byte output, got %d", len(a))
	}

	c := hkdf.ExpandLabel(secret, "s hs traffic", []byte{0xAA}, 32)
	if bytes.Equal(a, c) {
		t.Fatalf("different labels must derive different output")
	}
}

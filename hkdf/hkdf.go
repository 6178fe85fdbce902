// Package hkdf implements the TLS 1.3 key schedule primitives (RFC 5869
// HKDF-Extract/Expand plus the RFC 8446 HKDF-Expand-Label wrapper) used to
// derive handshake and application traffic secrets from a shared ECDHE
// secret. It only ever instantiates SHA-256, which is what every
// ciphersuite this module negotiates uses for its key schedule.
package hkdf

import (
	"crypto/hmac"
	"crypto/sha256"
)

func HMAC(key, data []byte) []byte {
	mac := hmac.New(sha256.New, key)
	_, _ = mac.Write(data)
	return mac.Sum(nil)
}

func Extract(salt, keyMaterial []byte) []byte {
	return HMAC(salt, keyMaterial)
}

func Expand(keyMaterial, info []byte, outLength int) []byte {
	n := (outLength + sha256.Size - 1) / sha256.Size
	result := make([]byte, 0, n*sha256.Size)
	var t []byte
	for i := 1; i <= n; i++ {
		block := append(append([]byte{}, t...), info...)
		block = append(block, byte(i))
		t = HMAC(keyMaterial, block)
		result = append(result, t...)
	}
	return result[:outLength]
}

// ExpandLabel implements RFC 8446 §7.1's HKDF-Expand-Label with the
// "dtls13" label prefix from RFC 9147 §5.9.
func ExpandLabel(secret []byte, label string, context []byte, length int) []byte {
	hkdfLabel := make([]byte, 0, 2+1+6+len(label)+1+len(context))
	hkdfLabel = append(hkdfLabel, byte(length>>8), byte(length))
	hkdfLabel = append(hkdfLabel, byte(len(label)+6))
	hkdfLabel = append(hkdfLabel, "dtls13"...)
	hkdfLabel = append(hkdfLabel, label...)
	hkdfLabel = append(hkdfLabel, byte(len(context)))
	hkdfLabel = append(hkdfLabel, context...)
	return Expand(secret, hkdfLabel, length)
}

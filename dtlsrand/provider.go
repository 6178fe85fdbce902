// Package dtlsrand abstracts the source of randomness used for cookie
// salts, ephemeral key shares and record nonces, so tests can swap in a
// deterministic source instead of crypto/rand.
package dtlsrand

import "crypto/rand"

type Rand interface {
	Read(data []byte)
}

type cryptoRand struct{}

func (c *cryptoRand) Read(data []byte) {
	if _, err := rand.Read(data); err != nil {
		panic("dtlsrand: crypto/rand failed: " + err.Error())
	}
}

// CryptoRand returns the production randomness source, backed by crypto/rand.
func CryptoRand() Rand {
	return &cryptoRand{}
}

type deterministicRand struct{}

func (c *deterministicRand) Read(data []byte) {
	for i := range data {
		data[i] = byte(i)
	}
}

// DeterministicRand returns a fixed, non-cryptographic byte sequence. Tests
// use it so cookie and key-share fixtures are reproducible.
func DeterministicRand() Rand {
	return &deterministicRand{}
}

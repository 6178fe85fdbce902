// Copyright (c) 2026, dtlscore authors
// Licensed under the MIT License. See LICENSE for details.

// Package ciphersuite implements the two TLS 1.3 AEAD ciphersuites this
// module negotiates and the key schedule that derives their traffic keys
// from a shared X25519 secret (RFC 8446 §7.1, RFC 9147 §5.9).
package ciphersuite

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"encoding/binary"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/curve25519"

	"github.com/dtlscore/acceptor/dtlsrand"
	"github.com/dtlscore/acceptor/hkdf"
)

// ID identifies a negotiated ciphersuite by its TLS registry codepoint.
type ID uint16

const (
	TLS_AES_128_GCM_SHA256       ID = 0x1301
	TLS_CHACHA20_POLY1305_SHA256 ID = 0x1303
)

// Suite builds the AEAD for a negotiated ciphersuite. Every suite this
// module implements derives its traffic secrets with SHA-256 (see hkdf),
// so Suite only needs to describe how the final key/IV bytes become an
// AEAD instance.
type Suite interface {
	ID() ID
	KeySize() int
	IVSize() int
	NewAEAD(key []byte) (cipher.AEAD, error)
}

type aesGCMSuite struct{}

func (aesGCMSuite) ID() ID       { return TLS_AES_128_GCM_SHA256 }
func (aesGCMSuite) KeySize() int { return 16 }
func (aesGCMSuite) IVSize() int  { return 12 }
func (aesGCMSuite) NewAEAD(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

type chacha20Suite struct{}

func (chacha20Suite) ID() ID       { return TLS_CHACHA20_POLY1305_SHA256 }
func (chacha20Suite) KeySize() int { return chacha20poly1305.KeySize }
func (chacha20Suite) IVSize() int  { return chacha20poly1305.NonceSize }
func (chacha20Suite) NewAEAD(key []byte) (cipher.AEAD, error) {
	return chacha20poly1305.New(key)
}

var (
	suiteAES128GCM Suite = aesGCMSuite{}
	suiteChaCha20  Suite = chacha20Suite{}
)

// Default is the ciphersuite preference order the acceptor offers: AEAD
// suites only, strongest-first per RFC 9147 §5.3 recommendations.
var Default = []ID{TLS_AES_128_GCM_SHA256, TLS_CHACHA20_POLY1305_SHA256}

// Get returns the Suite implementation for id, or nil if id is not one of
// the suites this module negotiates.
func Get(id ID) Suite {
	switch id {
	case TLS_AES_128_GCM_SHA256:
		return suiteAES128GCM
	case TLS_CHACHA20_POLY1305_SHA256:
		return suiteChaCha20
	}
	return nil
}

// Supported reports whether id is offered by this module.
func Supported(id ID) bool {
	return Get(id) != nil
}

// KeyShare is the ephemeral X25519 key pair contributed to a single
// handshake (spec §4.3, ClientHello/ServerHello key_share extension).
type KeyShare struct {
	Secret [32]byte
	Public [32]byte
}

// NewKeyShare draws a fresh X25519 key pair from rnd.
func NewKeyShare(rnd dtlsrand.Rand) KeyShare {
	var ks KeyShare
	rnd.Read(ks.Secret[:])
	pub, err := curve25519.X25519(ks.Secret[:], curve25519.Basepoint)
	if err != nil {
		panic("ciphersuite: curve25519.X25519 failed: " + err.Error())
	}
	copy(ks.Public[:], pub)
	return ks
}

// SharedSecret computes the ECDHE shared secret given the peer's public
// key share.
func (ks KeyShare) SharedSecret(peerPublic [32]byte) [32]byte {
	shared, err := curve25519.X25519(ks.Secret[:], peerPublic[:])
	if err != nil {
		panic("ciphersuite: curve25519.X25519 failed: " + err.Error())
	}
	var out [32]byte
	copy(out[:], shared)
	return out
}

// TrafficKeys holds the record-protection material derived for one
// direction (client-to-server or server-to-client) of one epoch.
type TrafficKeys struct {
	Key cipher.AEAD
	IV  [12]byte
}

// HandshakeSecrets is the key-schedule output needed to protect the
// handshake flight and, after ComputeApplicationSecrets, the application
// data flow (spec §4.3's "derive traffic secrets" step).
type HandshakeSecrets struct {
	suite Suite

	ClientHandshakeTrafficSecret [32]byte
	ServerHandshakeTrafficSecret [32]byte
	masterSecret                 [32]byte

	ClientHandshakeKeys TrafficKeys
	ServerHandshakeKeys TrafficKeys
}

// DeriveHandshakeSecrets runs the TLS 1.3 key schedule's first two stages
// (Early Secret -> Handshake Secret) over sharedSecret and the transcript
// hash taken up to and including ServerHello, producing the keys that
// protect EncryptedExtensions/Certificate/Finished.
func DeriveHandshakeSecrets(suite Suite, sharedSecret [32]byte, transcriptHash []byte) *HandshakeSecrets {
	emptyHash := sha256.Sum256(nil)

	earlySecret := hkdf.Extract(nil, make([]byte, sha256.Size))
	derived := deriveSecret(earlySecret, "derived", emptyHash[:])
	handshakeSecret := hkdf.Extract(derived, sharedSecret[:])

	hs := &HandshakeSecrets{suite: suite}
	copy(hs.ClientHandshakeTrafficSecret[:], deriveSecret(handshakeSecret, "c hs traffic", transcriptHash))
	copy(hs.ServerHandshakeTrafficSecret[:], deriveSecret(handshakeSecret, "s hs traffic", transcriptHash))

	masterDerived := deriveSecret(handshakeSecret, "derived", emptyHash[:])
	copy(hs.masterSecret[:], hkdf.Extract(masterDerived, make([]byte, sha256.Size)))

	hs.ClientHandshakeKeys = deriveTrafficKeys(suite, hs.ClientHandshakeTrafficSecret[:])
	hs.ServerHandshakeKeys = deriveTrafficKeys(suite, hs.ServerHandshakeTrafficSecret[:])
	return hs
}

// ApplicationSecrets is the key-schedule output that protects the data
// exchanged after the handshake completes.
type ApplicationSecrets struct {
	ClientApplicationTrafficSecret [32]byte
	ServerApplicationTrafficSecret [32]byte

	ClientApplicationKeys TrafficKeys
	ServerApplicationKeys TrafficKeys
}

// DeriveApplicationSecrets runs the key schedule's final stage (Master
// Secret -> application traffic secrets) over the transcript hash taken
// up to and including the server's Finished message.
func (hs *HandshakeSecrets) DeriveApplicationSecrets(transcriptHash []byte) *ApplicationSecrets {
	as := &ApplicationSecrets{}
	copy(as.ClientApplicationTrafficSecret[:], deriveSecret(hs.masterSecret[:], "c ap traffic", transcriptHash))
	copy(as.ServerApplicationTrafficSecret[:], deriveSecret(hs.masterSecret[:], "s ap traffic", transcriptHash))
	as.ClientApplicationKeys = deriveTrafficKeys(hs.suite, as.ClientApplicationTrafficSecret[:])
	as.ServerApplicationKeys = deriveTrafficKeys(hs.suite, as.ServerApplicationTrafficSecret[:])
	return as
}

// FinishedKey derives the MAC key used to compute or verify the Finished
// message's verify_data over trafficSecret (RFC 8446 §4.4.4).
func FinishedKey(trafficSecret []byte) []byte {
	return hkdf.ExpandLabel(trafficSecret, "finished", nil, sha256.Size)
}

// VerifyData computes the Finished message contents: an HMAC over the
// transcript hash keyed by FinishedKey(trafficSecret).
func VerifyData(trafficSecret, transcriptHash []byte) []byte {
	return hkdf.HMAC(FinishedKey(trafficSecret), transcriptHash)
}

func deriveSecret(secret []byte, label string, transcriptHash []byte) []byte {
	return hkdf.ExpandLabel(secret, label, transcriptHash, sha256.Size)
}

func deriveTrafficKeys(suite Suite, secret []byte) TrafficKeys {
	key := hkdf.ExpandLabel(secret, "key", nil, suite.KeySize())
	iv := hkdf.ExpandLabel(secret, "iv", nil, suite.IVSize())
	aead, err := suite.NewAEAD(key)
	if err != nil {
		panic("ciphersuite: NewAEAD failed: " + err.Error())
	}
	var tk TrafficKeys
	tk.Key = aead
	copy(tk.IV[:], iv)
	return tk
}

// SequenceNonce XORs seq (big-endian, right-aligned) into iv to produce
// the per-record AEAD nonce, per RFC 8446 §5.3.
func SequenceNonce(iv [12]byte, seq uint64) [12]byte {
	nonce := iv
	var seqBytes [8]byte
	binary.BigEndian.PutUint64(seqBytes[:], seq)
	for i := 0; i < 8; i++ {
		nonce[4+i] ^= seqBytes[i]
	}
	return nonce
}

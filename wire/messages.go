// Copyright (c) 2026, dtlscore authors
// Licensed under the MIT License. See LICENSE for details.

package wire

import (
	"encoding/binary"

	"github.com/dtlscore/acceptor/dtlserrors"
	"github.com/dtlscore/acceptor/safecast"
)

const (
	extTypeCookie   = 0x002c
	extTypeKeyShare = 0x0033
	groupX25519     = 0x001d
)

const legacyVersionDTLS12 = 0xfefd

// ClientHello is the first-flight message the acceptor's stateless
// listen inspects: the cipher suites offered, an optional echoed cookie,
// and (once the cookie round trips) the client's X25519 key share.
type ClientHello struct {
	Random       [32]byte
	SessionID    []byte
	Cookie       []byte // present only on the second ClientHello
	CipherSuites []uint16
	X25519Public [32]byte
	HasX25519    bool
}

// ParseClientHello decodes a ClientHello handshake body.
func ParseClientHello(body []byte) (ClientHello, error) {
	p := newParser(body, dtlserrors.ErrClientHelloParse)
	var msg ClientHello

	p.expectUint16(legacyVersionDTLS12, dtlserrors.ErrClientHelloParse)
	p.readFixed(msg.Random[:])
	msg.SessionID = p.readOpaque8()
	msg.Cookie = p.readOpaque8()

	suites := p.readOpaque16()
	if p.ok() {
		for i := 0; i+1 < len(suites); i += 2 {
			msg.CipherSuites = append(msg.CipherSuites, binary.BigEndian.Uint16(suites[i:]))
		}
	}

	compressionMethods := p.readOpaque8()
	if p.ok() && (len(compressionMethods) != 1 || compressionMethods[0] != 0) {
		p.fail()
	}

	extensions := p.readOpaque16()
	if !p.ok() {
		return ClientHello{}, p.failedErr()
	}
	if err := parseClientExtensions(extensions, &msg); err != nil {
		return ClientHello{}, err
	}
	if err := p.finish(); err != nil {
		return ClientHello{}, err
	}
	return msg, nil
}

func parseClientExtensions(body []byte, msg *ClientHello) error {
	ep := newParser(body, dtlserrors.ErrClientHelloParse)
	for ep.ok() && ep.offset < len(body) {
		extType := ep.readUint16()
		extBody := ep.readOpaque16()
		if !ep.ok() {
			return ep.failedErr()
		}
		switch extType {
		case extTypeCookie:
			cp := newParser(extBody, dtlserrors.ErrClientHelloParse)
			msg.Cookie = cp.readOpaque8()
			if !cp.ok() {
				return cp.failedErr()
			}
		case extTypeKeyShare:
			if err := parseKeyShareClientList(extBody, msg); err != nil {
				return err
			}
		}
	}
	return nil
}

func parseKeyShareClientList(body []byte, msg *ClientHello) error {
	outer := newParser(body, dtlserrors.ErrClientHelloParse)
	list := outer.readOpaque16()
	if !outer.ok() {
		return outer.failedErr()
	}
	lp := newParser(list, dtlserrors.ErrClientHelloParse)
	for lp.ok() && lp.offset < len(list) {
		group := lp.readUint16()
		share := lp.readOpaque16()
		if !lp.ok() {
			return lp.failedErr()
		}
		if group == groupX25519 {
			if len(share) != 32 {
				return dtlserrors.ErrClientHelloParse
			}
			copy(msg.X25519Public[:], share)
			msg.HasX25519 = true
		}
	}
	return nil
}

// AppendClientHello appends a ClientHello handshake body (used by the
// symmetric test client that also lives in this module).
func AppendClientHello(dst []byte, msg ClientHello, cipherSuite uint16) []byte {
	dst = binary.BigEndian.AppendUint16(dst, legacyVersionDTLS12)
	dst = append(dst, msg.Random[:]...)
	dst = append(dst, safecast.Cast[byte](len(msg.SessionID)))
	dst = append(dst, msg.SessionID...)
	dst = append(dst, safecast.Cast[byte](len(msg.Cookie)))
	dst = append(dst, msg.Cookie...)

	dst = binary.BigEndian.AppendUint16(dst, 2)
	dst = binary.BigEndian.AppendUint16(dst, cipherSuite)

	dst = append(dst, 1, 0) // compression methods: null only

	extStart := len(dst)
	dst = binary.BigEndian.AppendUint16(dst, 0) // placeholder
	extBodyStart := len(dst)

	if msg.HasX25519 {
		dst = binary.BigEndian.AppendUint16(dst, extTypeKeyShare)
		ksLenPos := len(dst)
		dst = binary.BigEndian.AppendUint16(dst, 0)
		listLenPos := len(dst)
		dst = binary.BigEndian.AppendUint16(dst, 0)
		dst = binary.BigEndian.AppendUint16(dst, groupX25519)
		dst = binary.BigEndian.AppendUint16(dst, 32)
		dst = append(dst, msg.X25519Public[:]...)
		binary.BigEndian.PutUint16(dst[listLenPos:], safecast.Cast[uint16](len(dst)-listLenPos-2))
		binary.BigEndian.PutUint16(dst[ksLenPos:], safecast.Cast[uint16](len(dst)-ksLenPos-2))
	}
	if len(msg.Cookie) > 0 {
		dst = binary.BigEndian.AppendUint16(dst, extTypeCookie)
		lenPos := len(dst)
		dst = binary.BigEndian.AppendUint16(dst, 0)
		dst = append(dst, safecast.Cast[byte](len(msg.Cookie)))
		dst = append(dst, msg.Cookie...)
		binary.BigEndian.PutUint16(dst[lenPos:], safecast.Cast[uint16](len(dst)-lenPos-2))
	}
	binary.BigEndian.PutUint16(dst[extStart:], safecast.Cast[uint16](len(dst)-extBodyStart))
	return dst
}

// HelloVerifyRequest carries the stateless cookie back to the client
// (spec §4.3/§6): the legacy record version plus an opaque cookie, kept
// in its classic (pre-TLS-1.3-disguise) shape.
type HelloVerifyRequest struct {
	Cookie []byte
}

func ParseHelloVerifyRequest(body []byte) (HelloVerifyRequest, error) {
	p := newParser(body, dtlserrors.ErrClientHelloParse)
	p.expectUint16(legacyVersionDTLS12, dtlserrors.ErrClientHelloParse)
	cookie := p.readOpaque8()
	if err := p.finish(); err != nil {
		return HelloVerifyRequest{}, err
	}
	return HelloVerifyRequest{Cookie: cookie}, nil
}

func AppendHelloVerifyRequest(dst []byte, msg HelloVerifyRequest) []byte {
	dst = binary.BigEndian.AppendUint16(dst, legacyVersionDTLS12)
	dst = append(dst, safecast.Cast[byte](len(msg.Cookie)))
	dst = append(dst, msg.Cookie...)
	return dst
}

// ServerHello is the acceptor's response once a cookie verifies: the
// negotiated ciphersuite and the server's X25519 key share.
type ServerHello struct {
	Random       [32]byte
	SessionID    []byte
	CipherSuite  uint16
	X25519Public [32]byte
}

func ParseServerHello(body []byte) (ServerHello, error) {
	p := newParser(body, dtlserrors.ErrServerHelloParse)
	var msg ServerHello
	p.expectUint16(legacyVersionDTLS12, dtlserrors.ErrServerHelloParse)
	p.readFixed(msg.Random[:])
	msg.SessionID = p.readOpaque8()
	msg.CipherSuite = p.readUint16()
	compression := p.readByte()
	if p.ok() && compression != 0 {
		p.fail()
	}
	extensions := p.readOpaque16()
	if !p.ok() {
		return ServerHello{}, p.failedErr()
	}
	ep := newParser(extensions, dtlserrors.ErrServerHelloParse)
	for ep.ok() && ep.offset < len(extensions) {
		extType := ep.readUint16()
		extBody := ep.readOpaque16()
		if !ep.ok() {
			return ServerHello{}, ep.failedErr()
		}
		if extType == extTypeKeyShare {
			kp := newParser(extBody, dtlserrors.ErrServerHelloParse)
			group := kp.readUint16()
			share := kp.readOpaque16()
			if !kp.ok() {
				return ServerHello{}, kp.failedErr()
			}
			if group == groupX25519 && len(share) == 32 {
				copy(msg.X25519Public[:], share)
			}
		}
	}
	if err := p.finish(); err != nil {
		return ServerHello{}, err
	}
	return msg, nil
}

func AppendServerHello(dst []byte, msg ServerHello) []byte {
	dst = binary.BigEndian.AppendUint16(dst, legacyVersionDTLS12)
	dst = append(dst, msg.Random[:]...)
	dst = append(dst, safecast.Cast[byte](len(msg.SessionID)))
	dst = append(dst, msg.SessionID...)
	dst = binary.BigEndian.AppendUint16(dst, msg.CipherSuite)
	dst = append(dst, 0) // compression method: null

	extStart := len(dst)
	dst = binary.BigEndian.AppendUint16(dst, 0)
	extBodyStart := len(dst)

	dst = binary.BigEndian.AppendUint16(dst, extTypeKeyShare)
	ksLenPos := len(dst)
	dst = binary.BigEndian.AppendUint16(dst, 0)
	dst = binary.BigEndian.AppendUint16(dst, groupX25519)
	dst = binary.BigEndian.AppendUint16(dst, 32)
	dst = append(dst, msg.X25519Public[:]...)
	binary.BigEndian.PutUint16(dst[ksLenPos:], safecast.Cast[uint16](len(dst)-ksLenPos-2))

	binary.BigEndian.PutUint16(dst[extStart:], safecast.Cast[uint16](len(dst)-extBodyStart))
	return dst
}

// Finished carries the handshake transcript verify_data (RFC 8446 §4.4.4).
type Finished struct {
	VerifyData []byte
}

func ParseFinished(body []byte) (Finished, error) {
	if len(body) == 0 {
		return Finished{}, dtlserrors.ErrFinishedParse
	}
	return Finished{VerifyData: body}, nil
}

func AppendFinished(dst []byte, verifyData []byte) []byte {
	return append(dst, verifyData...)
}

// Alert is a DTLS alert record body: a one-byte level and one-byte
// description (RFC 8446 §6).
type Alert struct {
	Level       byte
	Description byte
}

const (
	AlertLevelWarning = 1
	AlertLevelFatal   = 2

	AlertDescCloseNotify = 0
)

func ParseAlert(body []byte) (Alert, error) {
	if len(body) != 2 {
		return Alert{}, dtlserrors.ErrAlertParse
	}
	return Alert{Level: body[0], Description: body[1]}, nil
}

func AppendAlert(dst []byte, a Alert) []byte {
	return append(dst, a.Level, a.Description)
}

// Copyright (c) 2026, dtlscore authors
// Licensed under the MIT License. See LICENSE for details.

package engine

import (
	"time"

	"github.com/dtlscore/acceptor/ciphersuite"
	"github.com/dtlscore/acceptor/cookie"
	"github.com/dtlscore/acceptor/dtlserrors"
	"github.com/dtlscore/acceptor/wire"
)

const defaultCookieValidity = 5 * time.Second

// DTLSListen drives one step of the stateless cookie exchange (spec
// §4.3). It is only valid for server-role engines that have not yet
// reached Ready(); calling it again after Ready() is a misuse this
// module does not guard against, matching the "caller-driven loop"
// contract of the rest of the engine.
func (e *Engine) DTLSListen() (Want, error) {
	want, _, err := e.performLoop(e.doDTLSListen)
	return want, err
}

func (e *Engine) doDTLSListen() stepResult {
	datagram := e.pair.Internal.DrainAll()
	if len(datagram) == 0 {
		return stepResult{Signal: sslWantRead}
	}

	hdr, body, _, err := wire.ParseRecordHeader(datagram)
	if err != nil {
		return stepResult{SSLErr: err}
	}
	if hdr.ContentType != wire.ContentTypeHandshake {
		return stepResult{SSLErr: dtlserrors.ErrUnexpectedMessage}
	}
	hsHdr, hsBody, err := wire.ParseHandshakeHeader(body, dtlserrors.ErrUnexpectedMessage)
	if err != nil {
		return stepResult{SSLErr: err}
	}
	if hsHdr.MsgType != wire.HandshakeTypeClientHello {
		return stepResult{SSLErr: dtlserrors.ErrUnexpectedMessage}
	}
	ch, err := wire.ParseClientHello(hsBody)
	if err != nil {
		return stepResult{SSLErr: err}
	}

	suiteID, suite := negotiateSuite(ch.CipherSuites)
	if suite == nil {
		return stepResult{SSLErr: dtlserrors.ErrUnsupportedClientHello}
	}

	if len(ch.Cookie) == 0 {
		return e.sendHelloVerifyRequest(suiteID, ch.HasX25519, nil)
	}

	params, ok := e.App.CookieVerifier.Verify(e.App.TransientAddr, ch.Cookie)
	if !ok {
		return e.sendHelloVerifyRequest(suiteID, ch.HasX25519, nil)
	}

	e.suiteID = suiteID
	e.suite = suite
	e.peerRandom = ch.Random
	e.sessionID = append([]byte(nil), ch.SessionID...)
	e.cookieParams = params
	e.transcript = wire.AppendTranscriptMessage(e.transcript, wire.HandshakeTypeClientHello, hsBody)
	if ch.HasX25519 {
		e.peerX25519 = ch.X25519Public
	}
	e.localKeyShr = ciphersuite.NewKeyShare(e.rand)
	e.state = stateReadyToPromote
	return stepResult{}
}

func (e *Engine) sendHelloVerifyRequest(suiteID ciphersuite.ID, keyShareSet bool, transcriptHash []byte) stepResult {
	validity := e.cookieValidity
	if validity == 0 {
		validity = int64(defaultCookieValidity)
	}
	params := cookie.Params{
		TranscriptHash:    transcriptHash,
		TimestampUnixNano: time.Now().UnixNano(),
		KeyShareSet:       keyShareSet,
		CipherSuiteID:     uint16(suiteID),
	}
	payload := e.App.CookieGenerator.Generate(e.App.TransientAddr, params)
	var ck cookie.Cookie
	ck.SetValue(payload)

	hvrBody := wire.AppendHelloVerifyRequest(nil, wire.HelloVerifyRequest{Cookie: ck.Value()})
	msg := wire.AppendHandshakeHeader(nil, wire.HandshakeTypeHelloVerifyRequest, 0, len(hvrBody))
	msg = append(msg, hvrBody...)
	record := wire.AppendRecord(nil, wire.ContentTypeHandshake, 0, e.writeSeq, msg)
	e.writeSeq++
	e.pair.External.Write(record)
	e.state = stateAwaitingClientHello2
	return stepResult{N: len(record)}
}

func negotiateSuite(offered []uint16) (ciphersuite.ID, ciphersuite.Suite) {
	for _, preferred := range ciphersuite.Default {
		for _, id := range offered {
			if ciphersuite.ID(id) == preferred {
				return preferred, ciphersuite.Get(preferred)
			}
		}
	}
	return 0, nil
}

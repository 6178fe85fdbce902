// Copyright (c) 2026, dtlscore authors
// Licensed under the MIT License. See LICENSE for details.

package engine

import (
	"crypto/hmac"
	"crypto/sha256"

	"github.com/dtlscore/acceptor/ciphersuite"
	"github.com/dtlscore/acceptor/dtlserrors"
	"github.com/dtlscore/acceptor/wire"
)

// Handshake drives one step of the symmetric handshake (spec §4.1). For
// a server-role engine it is only meaningful once DTLSListen has reached
// Ready(): the stateless cookie exchange is a distinct operation (spec
// §4.3) from the rest of the handshake. For a client-role engine,
// Handshake drives the whole flow, cookie round compose included, since
// a client has no separate listen step.
func (e *Engine) Handshake() (Want, error) {
	want, _, err := e.performLoop(e.doHandshake)
	return want, err
}

func (e *Engine) doHandshake() stepResult {
	if e.role == RoleServer {
		return e.doServerHandshake()
	}
	return e.doClientHandshake()
}

func (e *Engine) doServerHandshake() stepResult {
	switch e.state {
	case stateReadyToPromote:
		return e.serverSendFlight()
	case stateServerFlightSent:
		return e.serverProcessClientFinished()
	case stateEstablished:
		return stepResult{}
	default:
		return stepResult{SSLErr: dtlserrors.ErrUnexpectedMessage}
	}
}

func (e *Engine) serverSendFlight() stepResult {
	sh := wire.ServerHello{
		Random:       e.localRandom,
		SessionID:    e.sessionID,
		CipherSuite:  uint16(e.suiteID),
		X25519Public: e.localKeyShr.Public,
	}
	shBody := wire.AppendServerHello(nil, sh)
	shMsg := wire.AppendHandshakeHeader(nil, wire.HandshakeTypeServerHello, 1, len(shBody))
	shMsg = append(shMsg, shBody...)
	record := wire.AppendRecord(nil, wire.ContentTypeHandshake, 0, e.writeSeq, shMsg)
	e.writeSeq++
	e.transcript = wire.AppendTranscriptMessage(e.transcript, wire.HandshakeTypeServerHello, shBody)

	shared := e.localKeyShr.SharedSecret(e.peerX25519)
	th := sha256.Sum256(e.transcript)
	e.handshakeSecrets = ciphersuite.DeriveHandshakeSecrets(e.suite, shared, th[:])

	e.writeEpoch, e.writeSeq = 2, 0
	finishedData := ciphersuite.VerifyData(e.handshakeSecrets.ServerHandshakeTrafficSecret[:], th[:])
	finMsg := wire.AppendHandshakeHeader(nil, wire.HandshakeTypeFinished, 2, len(finishedData))
	finMsg = append(finMsg, finishedData...)
	e.transcript = wire.AppendTranscriptMessage(e.transcript, wire.HandshakeTypeFinished, finishedData)

	record = append(record, sealRecord(wire.ContentTypeHandshake, e.writeEpoch, e.writeSeq, e.handshakeSecrets.ServerHandshakeKeys, finMsg)...)
	e.writeSeq++

	e.readKeys = e.handshakeSecrets.ClientHandshakeKeys
	e.pair.External.Write(record)
	e.state = stateServerFlightSent
	return stepResult{N: len(record)}
}

func (e *Engine) serverProcessClientFinished() stepResult {
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
	plaintext, err := openRecord(hdr, body, e.readKeys)
	if err != nil {
		return stepResult{SSLErr: err}
	}
	hsHdr, hsBody, err := wire.ParseHandshakeHeader(plaintext, dtlserrors.ErrUnexpectedMessage)
	if err != nil {
		return stepResult{SSLErr: err}
	}
	if hsHdr.MsgType != wire.HandshakeTypeFinished {
		return stepResult{SSLErr: dtlserrors.ErrUnexpectedMessage}
	}
	fin, err := wire.ParseFinished(hsBody)
	if err != nil {
		return stepResult{SSLErr: err}
	}

	th := sha256.Sum256(e.transcript)
	want := ciphersuite.VerifyData(e.handshakeSecrets.ClientHandshakeTrafficSecret[:], th[:])
	if !hmac.Equal(fin.VerifyData, want) {
		return stepResult{SSLErr: dtlserrors.ErrFinishedVerificationFail}
	}
	e.transcript = wire.AppendTranscriptMessage(e.transcript, wire.HandshakeTypeFinished, hsBody)

	e.establishApplicationKeys()
	return stepResult{}
}

func (e *Engine) doClientHandshake() stepResult {
	switch e.state {
	case stateClientInit:
		return e.clientSendHello1()
	case stateClientAwaitHelloVerify:
		return e.clientProcessHelloVerify()
	case stateClientAwaitServerFlight:
		return e.clientProcessServerFlight()
	case stateEstablished:
		return stepResult{}
	default:
		return stepResult{SSLErr: dtlserrors.ErrUnexpectedMessage}
	}
}

func (e *Engine) clientSendHello1() stepResult {
	ch := wire.ClientHello{Random: e.localRandom}
	body := wire.AppendClientHello(nil, ch, uint16(ciphersuite.Default[0]))
	hsMsg := wire.AppendHandshakeHeader(nil, wire.HandshakeTypeClientHello, 0, len(body))
	hsMsg = append(hsMsg, body...)
	record := wire.AppendRecord(nil, wire.ContentTypeHandshake, 0, e.writeSeq, hsMsg)
	e.writeSeq++
	e.state = stateClientAwaitHelloVerify
	e.pair.External.Write(record)
	return stepResult{N: len(record)}
}

func (e *Engine) clientProcessHelloVerify() stepResult {
	datagram := e.pair.Internal.DrainAll()
	if len(datagram) == 0 {
		return stepResult{Signal: sslWantRead}
	}
	_, body, _, err := wire.ParseRecordHeader(datagram)
	if err != nil {
		return stepResult{SSLErr: err}
	}
	hsHdr, hsBody, err := wire.ParseHandshakeHeader(body, dtlserrors.ErrUnexpectedMessage)
	if err != nil {
		return stepResult{SSLErr: err}
	}
	if hsHdr.MsgType != wire.HandshakeTypeHelloVerifyRequest {
		return stepResult{SSLErr: dtlserrors.ErrUnexpectedMessage}
	}
	hvr, err := wire.ParseHelloVerifyRequest(hsBody)
	if err != nil {
		return stepResult{SSLErr: err}
	}

	e.suiteID = ciphersuite.Default[0]
	e.suite = ciphersuite.Get(e.suiteID)

	ch2 := wire.ClientHello{
		Random:       e.localRandom,
		Cookie:       hvr.Cookie,
		HasX25519:    true,
		X25519Public: e.localKeyShr.Public,
	}
	body2 := wire.AppendClientHello(nil, ch2, uint16(e.suiteID))
	hsMsg2 := wire.AppendHandshakeHeader(nil, wire.HandshakeTypeClientHello, 1, len(body2))
	e.transcript = wire.AppendTranscriptMessage(e.transcript, wire.HandshakeTypeClientHello, body2)
	hsMsg2 = append(hsMsg2, body2...)
	record := wire.AppendRecord(nil, wire.ContentTypeHandshake, 0, e.writeSeq, hsMsg2)
	e.writeSeq++

	e.state = stateClientAwaitServerFlight
	e.pair.External.Write(record)
	return stepResult{N: len(record)}
}

func (e *Engine) clientProcessServerFlight() stepResult {
	datagram := e.pair.Internal.DrainAll()
	if len(datagram) == 0 {
		return stepResult{Signal: sslWantRead}
	}

	offset := 0
	for offset < len(datagram) {
		hdr, body, n, err := wire.ParseRecordHeader(datagram[offset:])
		if err != nil {
			return stepResult{SSLErr: err}
		}
		offset += n

		if hdr.ContentType != wire.ContentTypeHandshake {
			return stepResult{SSLErr: dtlserrors.ErrUnexpectedMessage}
		}

		if hdr.Epoch == 0 {
			if err := e.clientAbsorbServerHello(body); err != nil {
				return stepResult{SSLErr: err}
			}
			continue
		}

		plaintext, err := openRecord(hdr, body, e.handshakeSecrets.ServerHandshakeKeys)
		if err != nil {
			return stepResult{SSLErr: err}
		}
		if err := e.clientAbsorbServerFinished(plaintext); err != nil {
			return stepResult{SSLErr: err}
		}
	}

	return e.clientSendFinished()
}

func (e *Engine) clientAbsorbServerHello(body []byte) error {
	hsHdr, hsBody, err := wire.ParseHandshakeHeader(body, dtlserrors.ErrUnexpectedMessage)
	if err != nil {
		return err
	}
	if hsHdr.MsgType != wire.HandshakeTypeServerHello {
		return dtlserrors.ErrUnexpectedMessage
	}
	sh, err := wire.ParseServerHello(hsBody)
	if err != nil {
		return err
	}
	e.peerX25519 = sh.X25519Public
	e.sessionID = sh.SessionID
	e.transcript = wire.AppendTranscriptMessage(e.transcript, wire.HandshakeTypeServerHello, hsBody)

	shared := e.localKeyShr.SharedSecret(e.peerX25519)
	th := sha256.Sum256(e.transcript)
	e.handshakeSecrets = ciphersuite.DeriveHandshakeSecrets(e.suite, shared, th[:])
	return nil
}

func (e *Engine) clientAbsorbServerFinished(plaintext []byte) error {
	hsHdr, hsBody, err := wire.ParseHandshakeHeader(plaintext, dtlserrors.ErrUnexpectedMessage)
	if err != nil {
		return err
	}
	if hsHdr.MsgType != wire.HandshakeTypeFinished {
		return dtlserrors.ErrUnexpectedMessage
	}
	fin, err := wire.ParseFinished(hsBody)
	if err != nil {
		return err
	}
	th := sha256.Sum256(e.transcript)
	want := ciphersuite.VerifyData(e.handshakeSecrets.ServerHandshakeTrafficSecret[:], th[:])
	if !hmac.Equal(fin.VerifyData, want) {
		return dtlserrors.ErrFinishedVerificationFail
	}
	e.transcript = wire.AppendTranscriptMessage(e.transcript, wire.HandshakeTypeFinished, hsBody)
	return nil
}

func (e *Engine) clientSendFinished() stepResult {
	e.writeEpoch, e.writeSeq = 2, 0
	th := sha256.Sum256(e.transcript)
	myFinished := ciphersuite.VerifyData(e.handshakeSecrets.ClientHandshakeTrafficSecret[:], th[:])
	finMsg := wire.AppendHandshakeHeader(nil, wire.HandshakeTypeFinished, 3, len(myFinished))
	finMsg = append(finMsg, myFinished...)
	e.transcript = wire.AppendTranscriptMessage(e.transcript, wire.HandshakeTypeFinished, myFinished)

	record := sealRecord(wire.ContentTypeHandshake, e.writeEpoch, e.writeSeq, e.handshakeSecrets.ClientHandshakeKeys, finMsg)
	e.writeSeq++
	e.pair.External.Write(record)

	e.establishApplicationKeys()
	return stepResult{N: len(record)}
}

// establishApplicationKeys derives application traffic secrets from the
// completed handshake transcript and switches both directions onto
// epoch-3 application keys (spec §4.1's handshake completing into the
// record-pump's data phase).
func (e *Engine) establishApplicationKeys() {
	th := sha256.Sum256(e.transcript)
	e.appSecrets = e.handshakeSecrets.DeriveApplicationSecrets(th[:])
	if e.role == RoleServer {
		e.readKeys = e.appSecrets.ClientApplicationKeys
		e.writeKeys = e.appSecrets.ServerApplicationKeys
	} else {
		e.readKeys = e.appSecrets.ServerApplicationKeys
		e.writeKeys = e.appSecrets.ClientApplicationKeys
	}
	e.readEpoch, e.writeEpoch = 3, 3
	e.readSeq, e.writeSeq = 0, 0
	e.state = stateEstablished
}

// Copyright (c) 2026, dtlscore authors
// Licensed under the MIT License. See LICENSE for details.

package engine

import (
	"github.com/dtlscore/acceptor/ciphersuite"
	"github.com/dtlscore/acceptor/constants"
	"github.com/dtlscore/acceptor/dtlserrors"
	"github.com/dtlscore/acceptor/wire"
)

// sealRecord AEAD-protects plaintext under keys at (epoch, seq) and
// returns the complete on-wire record (header+ciphertext). The record
// header itself is the AEAD's additional authenticated data, following
// the classic GenericAEADCipher binding (RFC 5246 §6.2.3.3) rather than
// TLS 1.3's inner-content-type-byte scheme, which keeps this module's
// record framing one shape for both protected and unprotected records.
func sealRecord(contentType byte, epoch uint16, seq uint64, keys ciphersuite.TrafficKeys, plaintext []byte) []byte {
	nonce := ciphersuite.SequenceNonce(keys.IV, seq)
	aad := wire.RecordHeaderBytes(contentType, epoch, seq, len(plaintext)+constants.AEADSealSize)
	ciphertext := keys.Key.Seal(nil, nonce[:], plaintext, aad)
	return wire.AppendRecord(nil, contentType, epoch, seq, ciphertext)
}

// openRecord reverses sealRecord given the already-parsed header and body.
func openRecord(hdr wire.RecordHeader, body []byte, keys ciphersuite.TrafficKeys) ([]byte, error) {
	nonce := ciphersuite.SequenceNonce(keys.IV, hdr.SequenceNumber)
	aad := wire.RecordHeaderBytes(hdr.ContentType, hdr.Epoch, hdr.SequenceNumber, len(body))
	plaintext, err := keys.Key.Open(nil, nonce[:], body, aad)
	if err != nil {
		return nil, dtlserrors.ErrDeprotectionFailed
	}
	return plaintext, nil
}

// Read moves decrypted application data into buf, returning the want
// signal and the number of bytes copied (spec §4.1's read). A zero-length
// buf returns Nothing immediately without touching any buffered state
// (spec §8 property 2).
func (e *Engine) Read(buf []byte) (Want, int, error) {
	if len(buf) == 0 {
		return Nothing, 0, nil
	}
	if len(e.pendingPlaintext) > 0 {
		n := copy(buf, e.pendingPlaintext)
		e.pendingPlaintext = e.pendingPlaintext[n:]
		return Nothing, n, nil
	}
	if !e.Established() {
		return Nothing, 0, dtlserrors.ErrOperationNotSupported
	}

	datagram := e.pair.Internal.DrainAll()
	if len(datagram) == 0 {
		return InputAndRetry, 0, nil
	}
	hdr, body, _, err := wire.ParseRecordHeader(datagram)
	if err != nil {
		return Nothing, 0, err
	}
	switch hdr.ContentType {
	case wire.ContentTypeApplicationData:
		if e.readWindow.IsSetBit(hdr.SequenceNumber) {
			return Nothing, 0, dtlserrors.ErrReplayedRecord
		}
		plaintext, err := openRecord(hdr, body, e.readKeys)
		if err != nil {
			return Nothing, 0, err
		}
		if hdr.SequenceNumber >= e.readWindow.GetNextReceivedSeq() {
			e.readWindow.SetNextReceived(hdr.SequenceNumber + 1)
		}
		e.readWindow.SetBit(hdr.SequenceNumber)
		n := copy(buf, plaintext)
		if n < len(plaintext) {
			e.pendingPlaintext = append(e.pendingPlaintext, plaintext[n:]...)
		}
		return Nothing, n, nil
	case wire.ContentTypeAlert:
		alert, err := wire.ParseAlert(body)
		if err != nil {
			return Nothing, 0, err
		}
		if alert.Description == wire.AlertDescCloseNotify {
			e.receivedShutdown = true
			return Nothing, 0, dtlserrors.ErrEOF
		}
		return Nothing, 0, dtlserrors.ErrUnexpectedMessage
	default:
		return Nothing, 0, dtlserrors.ErrUnexpectedMessage
	}
}

// Write AEAD-protects buf as one application-data record and queues it
// for output. A zero-length buf returns Nothing immediately (spec §8
// property 2).
func (e *Engine) Write(buf []byte) (Want, int, error) {
	if len(buf) == 0 {
		return Nothing, 0, nil
	}
	if !e.Established() {
		return Nothing, 0, dtlserrors.ErrOperationNotSupported
	}
	record := sealRecord(wire.ContentTypeApplicationData, e.writeEpoch, e.writeSeq, e.writeKeys, buf)
	e.writeSeq++
	e.pair.External.Write(record)
	return Output, len(buf), nil
}

// Shutdown drives the bidirectional close-notify exchange (spec §4.1/§8
// property 7): if this side hasn't sent its close_notify yet, one call
// both queues it and makes a second, same-call attempt to absorb the
// peer's close_notify if it is already sitting in the internal BIO (the
// common case once both ends have started shutting down), rather than
// requiring a caller to invoke Shutdown again just to notice data that
// was there all along.
func (e *Engine) Shutdown() (Want, error) {
	want, _, err := e.performLoop(e.doShutdown)
	return want, err
}

func (e *Engine) doShutdown() stepResult {
	var sent stepResult
	firstAttempt := !e.shutdownSent
	if firstAttempt {
		e.shutdownSent = true
		body := wire.AppendAlert(nil, wire.Alert{Level: wire.AlertLevelWarning, Description: wire.AlertDescCloseNotify})
		var record []byte
		if e.Established() {
			record = sealRecord(wire.ContentTypeAlert, e.writeEpoch, e.writeSeq, e.writeKeys, body)
			e.writeSeq++
		} else {
			record = wire.AppendRecord(nil, wire.ContentTypeAlert, 0, e.writeSeq, body)
			e.writeSeq++
		}
		e.pair.External.Write(record)
		sent = stepResult{N: len(record)}
	}

	if e.receivedShutdown {
		return sent
	}

	datagram := e.pair.Internal.DrainAll()
	if len(datagram) == 0 {
		return stepResult{N: sent.N, Signal: sslWantRead}
	}
	hdr, body, _, err := wire.ParseRecordHeader(datagram)
	if err != nil {
		return stepResult{SSLErr: err}
	}
	if hdr.ContentType != wire.ContentTypeAlert {
		return stepResult{SSLErr: dtlserrors.ErrUnexpectedMessage}
	}
	if e.Established() {
		if _, err := openRecord(hdr, body, e.readKeys); err != nil {
			return stepResult{SSLErr: err}
		}
	}
	e.receivedShutdown = true
	return sent
}

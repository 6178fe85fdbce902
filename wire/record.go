// Copyright (c) 2026, dtlscore authors
// Licensed under the MIT License. See LICENSE for details.

// Package wire implements the DTLS record header and the handful of
// handshake message bodies the acceptor's stateless cookie exchange and
// the record engine's symmetric handshake need: ClientHello,
// HelloVerifyRequest, ServerHello, Finished, Alert, and the application
// data record (spec §3's "record-TLS library" boundary, specialized to
// what this module actually parses and emits). Layout follows RFC 9147
// §4 for the record header and RFC 8446 §4 for handshake bodies, with
// the cookie exchange kept in its classic HelloVerifyRequest shape
// rather than disguised as a HelloRetryRequest ServerHello, matching the
// "ClientHello / HelloVerifyRequest / cookie-echoing ClientHello" triad
// this module's stateless listen implements.
package wire

import (
	"encoding/binary"

	"github.com/dtlscore/acceptor/dtlserrors"
	"github.com/dtlscore/acceptor/safecast"
)

const (
	ContentTypeAlert           = 21
	ContentTypeHandshake       = 22
	ContentTypeApplicationData = 23
)

// RecordHeaderSize is the on-wire size of a plaintext DTLS record header:
// content type (1) + legacy version (2) + epoch (2) + sequence number (6)
// + length (2).
const RecordHeaderSize = 13

// MaxRecordBodyLength is the RFC 8446 §5.1 plaintext record size limit.
const MaxRecordBodyLength = 16384

// RecordHeader is the parsed form of a DTLS record's fixed header.
type RecordHeader struct {
	ContentType    byte
	Epoch          uint16
	SequenceNumber uint64 // 48-bit on the wire
}

// ParseRecordHeader reads one record header from the front of datagram
// and returns the header, the record body, and the number of bytes the
// record (header+body) occupied.
func ParseRecordHeader(datagram []byte) (hdr RecordHeader, body []byte, n int, err error) {
	if len(datagram) < RecordHeaderSize {
		return RecordHeader{}, nil, 0, dtlserrors.ErrRecordHeaderParse
	}
	hdr.ContentType = datagram[0]
	if datagram[1] != 0xFE || datagram[2] != 0xFD {
		return RecordHeader{}, nil, 0, dtlserrors.ErrRecordHeaderParse
	}
	hdr.Epoch = binary.BigEndian.Uint16(datagram[3:5])
	hdr.SequenceNumber = beUint48(datagram[3:11])
	length := int(binary.BigEndian.Uint16(datagram[11:13]))
	if length == 0 || length > MaxRecordBodyLength {
		return RecordHeader{}, nil, 0, dtlserrors.ErrRecordHeaderParse
	}
	end := RecordHeaderSize + length
	if len(datagram) < end {
		return RecordHeader{}, nil, 0, dtlserrors.ErrRecordHeaderParse
	}
	return hdr, datagram[RecordHeaderSize:end], end, nil
}

// RecordHeaderBytes builds the 13-byte record header for a record whose
// final body will be bodyLen bytes long, without requiring the body
// itself. AEAD-protected records need this to compute their additional
// authenticated data before the ciphertext (whose length it names) has
// been produced.
func RecordHeaderBytes(contentType byte, epoch uint16, seq uint64, bodyLen int) []byte {
	dst := make([]byte, 0, RecordHeaderSize)
	dst = append(dst, contentType, 0xFE, 0xFD)
	dst = binary.BigEndian.AppendUint16(dst, epoch)
	dst = appendUint48(dst, seq&0xFFFFFFFFFFFF)
	dst = binary.BigEndian.AppendUint16(dst, safecast.Cast[uint16](bodyLen))
	return dst
}

// AppendRecord appends a full record (header+body) for body to dst.
func AppendRecord(dst []byte, contentType byte, epoch uint16, seq uint64, body []byte) []byte {
	dst = append(dst, contentType, 0xFE, 0xFD)
	dst = binary.BigEndian.AppendUint16(dst, epoch)
	dst = appendUint48(dst, seq&0xFFFFFFFFFFFF)
	dst = binary.BigEndian.AppendUint16(dst, safecast.Cast[uint16](len(body)))
	dst = append(dst, body...)
	return dst
}

func beUint48(b []byte) uint64 {
	var v uint64
	for i := 2; i < 8; i++ { // skip the epoch's two bytes
		v = v<<8 | uint64(b[i])
	}
	return v
}

func appendUint48(dst []byte, v uint64) []byte {
	return append(dst,
		byte(v>>40), byte(v>>32), byte(v>>24),
		byte(v>>16), byte(v>>8), byte(v))
}

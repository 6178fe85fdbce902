package wire_test

import (
	"bytes"
	"testing"

	"github.com/dtlscore/acceptor/wire"
)

func TestRecordHeaderRoundTrip(t *testing.T) {
	body := []byte("handshake body")
	datagram := wire.AppendRecord(nil, wire.ContentTypeHandshake, 0, 42, body)

	hdr, gotBody, n, err := wire.ParseRecordHeader(datagram)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != len(datagram) {
		t.Fatalf("expected to consume %d bytes, got %d", len(datagram), n)
	}
	if hdr.ContentType != wire.ContentTypeHandshake || hdr.Epoch != 0 || hdr.SequenceNumber != 42 {
		t.Fatalf("unexpected header: %+v", hdr)
	}
	if !bytes.Equal(gotBody, body) {
		t.Fatalf("body mismatch: got %q want %q", gotBody, body)
	}
}

func TestRecordHeaderRejectsTruncatedDatagram(t *testing.T) {
	datagram := wire.AppendRecord(nil, wire.ContentTypeAlert, 1, 7, []byte("x"))
	_, _, _, err := wire.ParseRecordHeader(datagram[:len(datagram)-1])
	if err == nil {
		t.Fatalf("expected error for truncated datagram")
	}
}

func TestHandshakeHeaderRoundTrip(t *testing.T) {
	body := append(wire.AppendHandshakeHeader(nil, wire.HandshakeTypeFinished, 3, 5), []byte("hello")...)

	hdr, msgBody, err := wire.ParseHandshakeHeader(body, errTest)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hdr.MsgType != wire.HandshakeTypeFinished || hdr.MessageSeq != 3 || hdr.Length != 5 {
		t.Fatalf("unexpected header: %+v", hdr)
	}
	if string(msgBody) != "hello" {
		t.Fatalf("unexpected body: %q", msgBody)
	}
}

var errTest = testErr{}

type testErr struct{}

func (testErr) Error() string { return "test parse error" }

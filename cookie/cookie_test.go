package cookie_test

import (
	"net/netip"
	"testing"
	"time"

	"github.com/dtlscore/acceptor/cookie"
	"github.com/dtlscore/acceptor/dtlsrand"
)

func TestStateGenerateThenVerifyAccepts(t *testing.T) {
	s := cookie.NewState(dtlsrand.DeterministicRand(), 5*time.Second)
	addr := netip.MustParseAddrPort("203.0.113.7:4433")
	params := cookie.Params{
		TranscriptHash:    []byte{1, 2, 3, 4},
		TimestampUnixNano: time.Now().UnixNano(),
		KeyShareSet:       true,
		CipherSuiteID:     0x1301,
	}

	payload := s.Generate(addr, params)
	got, ok := s.Verify(addr, payload)
	if !ok {
		t.Fatalf("expected cookie to verify")
	}
	if got.CipherSuiteID != params.CipherSuiteID || !got.KeyShareSet {
		t.Fatalf("recovered params mismatch: %+v", got)
	}
}

func TestStateVerifyRejectsWrongAddress(t *testing.T) {
	s := cookie.NewState(dtlsrand.DeterministicRand(), 5*time.Second)
	addr := netip.MustParseAddrPort("203.0.113.7:4433")
	other := netip.MustParseAddrPort("203.0.113.8:4433")
	payload := s.Generate(addr, cookie.Params{TimestampUnixNano: time.Now().UnixNano()})

	if _, ok := s.Verify(other, payload); ok {
		t.Fatalf("expected cookie bound to a different address to be rejected")
	}
}

func TestStateVerifyRejectsExpired(t *testing.T) {
	s := cookie.NewState(dtlsrand.DeterministicRand(), time.Millisecond)
	addr := netip.MustParseAddrPort("203.0.113.7:4433")
	payload := s.Generate(addr, cookie.Params{TimestampUnixNano: time.Now().Add(-time.Hour).UnixNano()})

	if _, ok := s.Verify(addr, payload); ok {
		t.Fatalf("expected stale cookie to be rejected")
	}
}

func TestCookieSetValueTruncatesToMaxLenMinusOne(t *testing.T) {
	var c cookie.Cookie
	big := make([]byte, cookie.MaxLen)
	for i := range big {
		big[i] = byte(i)
	}
	c.SetValue(big)
	if len(c.Value()) != cookie.MaxLen-1 {
		t.Fatalf("expected truncation to %d bytes, got %d", cookie.MaxLen-1, len(c.Value()))
	}
}

func TestCookieSetValuePassesShortPayloadThrough(t *testing.T) {
	var c cookie.Cookie
	c.SetValue([]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10})
	if len(c.Value()) != 10 {
		t.Fatalf("expected 10-byte payload to pass through unchanged, got %d", len(c.Value()))
	}
}

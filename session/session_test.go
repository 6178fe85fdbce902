// Copyright (c) 2026, dtlscore authors
// Licensed under the MIT License. See LICENSE for details.

package session

import (
	"context"
	"net"
	"net/netip"
	"testing"
	"time"

	"github.com/dtlscore/acceptor/cookie"
	"github.com/dtlscore/acceptor/dtlsrand"
	"github.com/dtlscore/acceptor/engine"
	"github.com/dtlscore/acceptor/socketutil"
)

var testPeerAddr = netip.MustParseAddrPort("127.0.0.1:9000")

func newTestServerEngine() *engine.Engine {
	e := engine.New(engine.RoleServer, dtlsrand.DeterministicRand())
	state := cookie.NewState(dtlsrand.DeterministicRand(), 5*time.Second)
	e.SetCookieGenerateCallback(state)
	e.SetCookieVerifyCallback(state)
	e.App.TransientAddr = testPeerAddr
	return e
}

// relay drains everything pending in from's external BIO and feeds it to
// to's internal BIO. Used only to complete the stateless cookie exchange
// before a Session exists; once promoted, the Session drives its own
// conn instead.
func relay(t *testing.T, from, to *engine.Engine) {
	t.Helper()
	buf := make([]byte, 2048)
	out := from.GetOutput(buf)
	if len(out) == 0 {
		t.Fatalf("relay: nothing to drain")
	}
	to.PutInput(out)
}

// readyPair drives a server/client engine pair through the stateless
// cookie exchange (spec §4.3) up to the point the acceptor would promote
// the server engine, mirroring what Acceptor.AsyncAccept does before
// handing a Session to the caller (spec §4.5 step 4).
func readyPair(t *testing.T) (server, client *engine.Engine) {
	t.Helper()
	server = newTestServerEngine()
	client = engine.New(engine.RoleClient, dtlsrand.DeterministicRand())

	if want, err := client.Handshake(); err != nil || want != engine.Output {
		t.Fatalf("client hello1: want=%v err=%v", want, err)
	}
	relay(t, client, server)

	if want, err := server.DTLSListen(); err != nil || want != engine.Output {
		t.Fatalf("server listen (reject): want=%v err=%v", want, err)
	}
	relay(t, server, client)

	if want, err := client.Handshake(); err != nil || want != engine.Output {
		t.Fatalf("client hello2: want=%v err=%v", want, err)
	}
	relay(t, client, server)

	if want, err := server.DTLSListen(); err != nil || want != engine.Nothing {
		t.Fatalf("server listen (accept): want=%v err=%v", want, err)
	}
	if !server.Ready() {
		t.Fatalf("server engine not Ready() after accepted cookie")
	}
	return server, client
}

// connectedUDPPair opens two loopback UDP sockets connected to each
// other, the same socketutil plumbing the acceptor's real promotion step
// uses (acceptor.go's promote). Unlike a net.Pipe, a UDP socket's Write
// never blocks waiting for the peer's Read, so both Sessions below can
// have their driver issue a first write concurrently without deadlocking
// — which is how they actually run once promoted by a real Acceptor.
func connectedUDPPair(t *testing.T) (a, b net.Conn) {
	t.Helper()
	ctx := context.Background()

	listenerA, err := socketutil.ListenReusable(ctx, "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen A: %v", err)
	}
	listenerB, err := socketutil.ListenReusable(ctx, "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen B: %v", err)
	}
	addrA, addrB := listenerA.LocalAddr().String(), listenerB.LocalAddr().String()
	listenerA.Close()
	listenerB.Close()

	connA, err := socketutil.DialReusable(ctx, addrA, addrB)
	if err != nil {
		t.Fatalf("dial A: %v", err)
	}
	connB, err := socketutil.DialReusable(ctx, addrB, addrA)
	if err != nil {
		t.Fatalf("dial B: %v", err)
	}
	t.Cleanup(func() { connA.Close(); connB.Close() })
	return connA, connB
}

// pipeSessions wraps a ready server/client engine pair in Sessions bound
// to opposite ends of a connected UDP socket pair, standing in for the
// pair of connected UDP sockets the acceptor's promotion step would have
// created.
func pipeSessions(t *testing.T) (server, client *Session) {
	t.Helper()
	serverEng, clientEng := readyPair(t)
	serverConn, clientConn := connectedUDPPair(t)
	return New(serverEng, serverConn), New(clientEng, clientConn)
}

func TestSessionHandshakeCompletesBothSides(t *testing.T) {
	server, client := pipeSessions(t)

	errs := make(chan error, 2)
	go func() { errs <- server.Handshake() }()
	go func() { errs <- client.Handshake() }()

	for i := 0; i < 2; i++ {
		if err := <-errs; err != nil {
			t.Fatalf("handshake: %v", err)
		}
	}
	if !server.Engine().Established() || !client.Engine().Established() {
		t.Fatalf("both sides should be Established() after Handshake returns")
	}
}

func TestSessionApplicationDataRoundTrips(t *testing.T) {
	server, client := pipeSessions(t)

	errs := make(chan error, 2)
	go func() { errs <- server.Handshake() }()
	go func() { errs <- client.Handshake() }()
	for i := 0; i < 2; i++ {
		if err := <-errs; err != nil {
			t.Fatalf("handshake: %v", err)
		}
	}

	writeErr := make(chan error, 1)
	go func() {
		_, err := client.Write([]byte("hello session"))
		writeErr <- err
	}()

	buf := make([]byte, 64)
	n, err := server.Read(buf)
	if err != nil {
		t.Fatalf("server read: %v", err)
	}
	if got := string(buf[:n]); got != "hello session" {
		t.Fatalf("server read got %q", got)
	}
	if err := <-writeErr; err != nil {
		t.Fatalf("client write: %v", err)
	}
}

func TestSessionCloseIsBidirectional(t *testing.T) {
	server, client := pipeSessions(t)

	errs := make(chan error, 2)
	go func() { errs <- server.Handshake() }()
	go func() { errs <- client.Handshake() }()
	for i := 0; i < 2; i++ {
		if err := <-errs; err != nil {
			t.Fatalf("handshake: %v", err)
		}
	}

	closeErrs := make(chan error, 2)
	go func() { closeErrs <- server.Close() }()
	go func() { closeErrs <- client.Close() }()
	for i := 0; i < 2; i++ {
		// Close drives Shutdown, whose second call surfaces ErrEOF once the
		// peer's close_notify has been absorbed (engine.doShutdown); that is
		// the expected terminal state here, not a failure.
		<-closeErrs
	}
}

// Copyright (c) 2026, dtlscore authors
// Licensed under the MIT License. See LICENSE for details.

package acceptor

import (
	"context"
	"net"
	"net/netip"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"github.com/dtlscore/acceptor/cookie"
	"github.com/dtlscore/acceptor/dtlserrors"
	"github.com/dtlscore/acceptor/dtlsrand"
	"github.com/dtlscore/acceptor/engine"
)

func newTestAcceptor(t *testing.T) *Acceptor {
	t.Helper()
	a, err := Listen(context.Background(), "127.0.0.1:0", dtlsrand.CryptoRand())
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	t.Cleanup(func() { a.Close() })
	return a
}

// fakeClient drives a client-role engine's stateless-listen exchange
// against a real UDP socket dialed to the acceptor, standing in for the
// peer half of spec scenario S1.
type fakeClient struct {
	t    *testing.T
	conn *net.UDPConn
	eng  *engine.Engine
}

func dialFakeClient(t *testing.T, acceptorAddr net.Addr) *fakeClient {
	t.Helper()
	conn, err := net.DialUDP("udp", nil, acceptorAddr.(*net.UDPAddr))
	if err != nil {
		t.Fatalf("DialUDP: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return &fakeClient{t: t, conn: conn, eng: engine.New(engine.RoleClient, dtlsrand.CryptoRand())}
}

func (c *fakeClient) step(want engine.Want) {
	c.t.Helper()
	gotWant, err := c.eng.Handshake()
	if err != nil || gotWant != want {
		c.t.Fatalf("client handshake step: want=%v err=%v, expected want=%v", gotWant, err, want)
	}
	buf := make([]byte, c.eng.MTU())
	out := c.eng.GetOutput(buf)
	if _, err := c.conn.Write(out); err != nil {
		c.t.Fatalf("client write: %v", err)
	}
}

func (c *fakeClient) recv() {
	c.t.Helper()
	c.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 2048)
	n, err := c.conn.Read(buf)
	if err != nil {
		c.t.Fatalf("client read: %v", err)
	}
	c.eng.PutInput(buf[:n])
}

// sendHelloVerifyEcho drives the fake client through ClientHello1 →
// HelloVerifyRequest → cookie-echoing ClientHello2, the exchange
// AsyncAccept's driveListen loop consumes.
func (c *fakeClient) sendHelloVerifyEcho() {
	c.step(engine.Output) // ClientHello1
	c.recv()              // HelloVerifyRequest
	c.step(engine.Output) // ClientHello2 with cookie + key share
}

func TestAsyncAcceptHappyPath(t *testing.T) {
	a := newTestAcceptor(t)
	state := cookie.NewState(dtlsrand.CryptoRand(), 5*time.Second)
	a.SetCookieCallbacks(state, state)

	client := dialFakeClient(t, a.listener.LocalAddr())
	go client.sendHelloVerifyEcho()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	buf := make([]byte, 2048)
	result, err := a.AsyncAccept(ctx, buf)
	if err != nil {
		t.Fatalf("AsyncAccept: %v", err)
	}
	if result.Session == nil {
		t.Fatalf("AsyncAccept succeeded with a nil Session")
	}
	if !result.Session.Engine().Ready() {
		t.Fatalf("promoted session's engine is not Ready()")
	}
	if result.Session.Conn().LocalAddr().String() != a.listener.LocalAddr().String() {
		t.Fatalf("promoted socket local addr %s, want listener's %s",
			result.Session.Conn().LocalAddr(), a.listener.LocalAddr())
	}
}

func TestAsyncAcceptMissingCallbacksFailsFast(t *testing.T) {
	a := newTestAcceptor(t)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := a.AsyncAccept(ctx, make([]byte, 2048))
	if err != dtlserrors.ErrCookieGenerateCallbackFailure {
		t.Fatalf("got err=%v, want ErrCookieGenerateCallbackFailure", err)
	}
}

func TestAsyncAcceptRejectsBadCookieAndReArms(t *testing.T) {
	a := newTestAcceptor(t)
	state := cookie.NewState(dtlsrand.CryptoRand(), 5*time.Second)
	// Verifier always rejects: the acceptor must keep re-arming instead of
	// promoting (spec §8 property 5, scenario S3).
	a.SetCookieCallbacks(state, cookie.VerifierFunc(func(_ netip.AddrPort, _ []byte) (cookie.Params, bool) {
		return cookie.Params{}, false
	}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := a.AsyncAccept(ctx, make([]byte, 2048))
		done <- err
	}()

	client := dialFakeClient(t, a.listener.LocalAddr())
	client.sendHelloVerifyEcho() // ClientHello1, HelloVerifyRequest, cookie-echoing ClientHello2

	select {
	case err := <-done:
		t.Fatalf("AsyncAccept should still be pending with an always-rejecting verifier, got err=%v", err)
	case <-time.After(200 * time.Millisecond):
	}

	cancel()
	if err := <-done; err != dtlserrors.ErrOperationAborted {
		t.Fatalf("got err=%v, want ErrOperationAborted", err)
	}
}

func TestSetGetOptionRoundTrips(t *testing.T) {
	a := newTestAcceptor(t)

	if err := a.SetOption(unix.SOL_SOCKET, unix.SO_RCVBUF, 1<<16); err != nil {
		t.Fatalf("SetOption: %v", err)
	}
	got, err := a.GetOption(unix.SOL_SOCKET, unix.SO_RCVBUF)
	if err != nil {
		t.Fatalf("GetOption: %v", err)
	}
	// The kernel is free to round the requested buffer size up; only check
	// that it is at least the size requested.
	if got < 1<<16 {
		t.Fatalf("GetOption(SO_RCVBUF) = %d, want at least %d", got, 1<<16)
	}
}

func TestNonBlockingFlagDefaultsFalse(t *testing.T) {
	a := newTestAcceptor(t)
	if a.NonBlocking() {
		t.Fatalf("NonBlocking() should default to false")
	}
	a.SetNonBlocking(true)
	if !a.NonBlocking() {
		t.Fatalf("SetNonBlocking(true) did not stick")
	}
}

func TestAsyncAcceptNonBlockingReturnsWouldBlockWithNoDatagramQueued(t *testing.T) {
	a := newTestAcceptor(t)
	state := cookie.NewState(dtlsrand.CryptoRand(), 5*time.Second)
	a.SetCookieCallbacks(state, state)
	a.SetNonBlocking(true)

	_, err := a.AsyncAccept(context.Background(), make([]byte, 2048))
	if err != dtlserrors.ErrWouldBlock {
		t.Fatalf("AsyncAccept with nothing queued: got err=%v, want ErrWouldBlock", err)
	}
}

func TestNativeNonBlockingRejectsClearingWhileLogicalNonBlocking(t *testing.T) {
	a := newTestAcceptor(t)
	a.SetNonBlocking(true)

	if err := a.SetNativeNonBlocking(false); err != dtlserrors.ErrInvalidArgument {
		t.Fatalf("SetNativeNonBlocking(false) while logical non-blocking: got err=%v, want ErrInvalidArgument", err)
	}

	if err := a.SetNativeNonBlocking(true); err != nil {
		t.Fatalf("SetNativeNonBlocking(true): %v", err)
	}
	native, err := a.NativeNonBlocking()
	if err != nil {
		t.Fatalf("NativeNonBlocking: %v", err)
	}
	if !native {
		t.Fatalf("NativeNonBlocking() = false after SetNativeNonBlocking(true)")
	}

	a.SetNonBlocking(false)
	if err := a.SetNativeNonBlocking(false); err != nil {
		t.Fatalf("SetNativeNonBlocking(false) once logical flag is cleared: %v", err)
	}
}

func TestAsyncAcceptCancelDuringWait(t *testing.T) {
	a := newTestAcceptor(t)
	state := cookie.NewState(dtlsrand.CryptoRand(), 5*time.Second)
	a.SetCookieCallbacks(state, state)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := a.AsyncAccept(ctx, make([]byte, 2048))
		done <- err
	}()

	time.Sleep(50 * time.Millisecond) // let AsyncAccept block in receiveFrom
	cancel()

	select {
	case err := <-done:
		if err != dtlserrors.ErrOperationAborted {
			t.Fatalf("got err=%v, want ErrOperationAborted", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("AsyncAccept did not observe cancellation")
	}
}

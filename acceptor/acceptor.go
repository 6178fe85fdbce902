// Copyright (c) 2026, dtlscore authors
// Licensed under the MIT License. See LICENSE for details.

// Package acceptor implements the Acceptor (C4, spec §4.5): the object
// owning a listening datagram socket that orchestrates the stateless
// DTLS cookie exchange and, on success, promotes a verified peer to a
// freshly connected socket handed to a session.Session.
package acceptor

import (
	"context"
	"errors"
	"net"
	"net/netip"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/dtlscore/acceptor/cookie"
	"github.com/dtlscore/acceptor/dtlserrors"
	"github.com/dtlscore/acceptor/dtlsrand"
	"github.com/dtlscore/acceptor/engine"
	"github.com/dtlscore/acceptor/session"
	"github.com/dtlscore/acceptor/socketutil"
)

// pastDeadline is used to force an in-flight ReadFromUDPAddrPort to
// return immediately when AsyncAccept's context is cancelled.
var pastDeadline = time.Unix(1, 0)

// Result is what AsyncAccept hands the caller on success: a Session
// bound to a freshly connected per-peer socket, ready to have Handshake
// driven on it (spec §4.5 step 4's "invoke the user handler with
// success").
type Result struct {
	Session   *session.Session
	PeerAddr  netip.AddrPort
	LocalAddr netip.AddrPort
}

// Acceptor owns one listening datagram socket and the owned cookie
// generate/verify callbacks it threads through every engine it drives
// (spec §3's Acceptor data model). The peer endpoint of the datagram
// being processed is held in a local of AsyncAccept, not in a field.
type Acceptor struct {
	listener *net.UDPConn
	rand     dtlsrand.Rand

	mu          sync.Mutex
	generate    cookie.Generator
	verify      cookie.Verifier
	nonBlocking bool

	closed bool
}

// Listen opens the acceptor's listening socket bound to localAddr with
// SO_REUSEADDR set, so a later promoted per-peer socket can share its
// port (spec §4.5's rationale for socket promotion).
func Listen(ctx context.Context, localAddr string, rand dtlsrand.Rand) (*Acceptor, error) {
	conn, err := socketutil.ListenReusable(ctx, localAddr)
	if err != nil {
		return nil, err
	}
	return &Acceptor{listener: conn, rand: rand}, nil
}

// LocalAddr returns the listening socket's bound local endpoint.
func (a *Acceptor) LocalAddr() net.Addr { return a.listener.LocalAddr() }

// SetOption sets a raw socket option on the listening socket, delegating
// to the underlying file descriptor's setsockopt (spec §4.5: `set_option`
// "delegates to the underlying datagram socket with standard
// socket-primitive error semantics").
func (a *Acceptor) SetOption(level, name, value int) error {
	rawConn, err := a.listener.SyscallConn()
	if err != nil {
		return err
	}
	var sockErr error
	if err := rawConn.Control(func(fd uintptr) {
		sockErr = unix.SetsockoptInt(int(fd), level, name, value)
	}); err != nil {
		return err
	}
	return sockErr
}

// GetOption reads back a raw socket option previously set with SetOption
// (spec §4.5's `get_option` passthrough).
func (a *Acceptor) GetOption(level, name int) (int, error) {
	rawConn, err := a.listener.SyscallConn()
	if err != nil {
		return 0, err
	}
	var value int
	var sockErr error
	if err := rawConn.Control(func(fd uintptr) {
		value, sockErr = unix.GetsockoptInt(int(fd), level, name)
	}); err != nil {
		return 0, err
	}
	return value, sockErr
}

// IOControl issues a raw ioctl against the listening socket's file
// descriptor (spec §4.5's `io_control` passthrough).
func (a *Acceptor) IOControl(req uint, arg int) error {
	rawConn, err := a.listener.SyscallConn()
	if err != nil {
		return err
	}
	var ioctlErr error
	if err := rawConn.Control(func(fd uintptr) {
		ioctlErr = unix.IoctlSetInt(int(fd), req, arg)
	}); err != nil {
		return err
	}
	return ioctlErr
}

// NonBlocking reports the acceptor's logical non-blocking flag (spec
// §4.5's `non_blocking(get)`): whether AsyncAccept returns ErrWouldBlock
// immediately instead of blocking the calling goroutine when no datagram
// is already queued. Defaults to false, Go's ordinary blocking-call idiom.
func (a *Acceptor) NonBlocking() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.nonBlocking
}

// SetNonBlocking updates the acceptor's logical non-blocking flag (spec
// §4.5's `non_blocking(set)`).
func (a *Acceptor) SetNonBlocking(nonBlocking bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nonBlocking = nonBlocking
}

// NativeNonBlocking reports whether the listening socket's underlying
// file descriptor itself carries O_NONBLOCK (spec §4.5's
// `native_non_blocking(get)`).
func (a *Acceptor) NativeNonBlocking() (bool, error) {
	rawConn, err := a.listener.SyscallConn()
	if err != nil {
		return false, err
	}
	var flags int
	var fcntlErr error
	if err := rawConn.Control(func(fd uintptr) {
		flags, fcntlErr = unix.FcntlInt(fd, unix.F_GETFL, 0)
	}); err != nil {
		return false, err
	}
	if fcntlErr != nil {
		return false, fcntlErr
	}
	return flags&unix.O_NONBLOCK != 0, nil
}

// SetNativeNonBlocking toggles O_NONBLOCK on the listening socket's file
// descriptor directly (spec §4.5's `native_non_blocking(set)`). Clearing
// it while the acceptor's logical non-blocking flag is still true is
// rejected with ErrInvalidArgument (spec §7's usage error): the runtime's
// netpoller requires O_NONBLOCK on any fd it multiplexes, so turning it
// off underneath a caller that still expects logical non-blocking
// semantics would silently make every subsequent operation block the
// whole goroutine instead of returning ErrWouldBlock.
func (a *Acceptor) SetNativeNonBlocking(nonBlocking bool) error {
	if !nonBlocking && a.NonBlocking() {
		return dtlserrors.ErrInvalidArgument
	}
	rawConn, err := a.listener.SyscallConn()
	if err != nil {
		return err
	}
	var fcntlErr error
	if err := rawConn.Control(func(fd uintptr) {
		flags, getErr := unix.FcntlInt(fd, unix.F_GETFL, 0)
		if getErr != nil {
			fcntlErr = getErr
			return
		}
		if nonBlocking {
			flags |= unix.O_NONBLOCK
		} else {
			flags &^= unix.O_NONBLOCK
		}
		_, fcntlErr = unix.FcntlInt(fd, unix.F_SETFL, flags)
	}); err != nil {
		return err
	}
	return fcntlErr
}

// SetCookieCallbacks replaces any currently-installed cookie generate and
// verify callbacks (spec §4.5: "replace any currently-owned callback,
// release old, take new"). Since this module has no C-level ownership to
// release, replacement is just an assignment guarded against a
// concurrent AsyncAccept observing a torn pair.
func (a *Acceptor) SetCookieCallbacks(generate cookie.Generator, verify cookie.Verifier) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.generate, a.verify = generate, verify
}

// Close cancels any outstanding accept and closes the listening socket
// (spec §5's cancellation: an in-flight receive completes with
// ErrOperationAborted).
func (a *Acceptor) Close() error {
	a.mu.Lock()
	a.closed = true
	a.mu.Unlock()
	return a.listener.Close()
}

// AsyncAccept performs one stateless cookie-exchange attempt to
// completion, following spec §4.5's algorithm exactly. buf is the
// caller-supplied scratch datagram buffer (spec §9's note that the
// unused MutableBuffer overload in the source has no async counterpart:
// this module has a single AsyncAccept entry point and buf is always
// supplied and always used). It blocks the calling goroutine; callers
// wanting concurrent accepts run AsyncAccept in a loop from a dedicated
// goroutine, the same "single outstanding receive per acceptor" the
// spec's concurrency model assumes (spec §5).
func (a *Acceptor) AsyncAccept(ctx context.Context, buf []byte) (Result, error) {
	a.mu.Lock()
	generate, verify := a.generate, a.verify
	a.mu.Unlock()
	if generate == nil || verify == nil {
		return Result{}, dtlserrors.ErrCookieGenerateCallbackFailure
	}

	eng := engine.New(engine.RoleServer, a.rand)
	eng.SetCookieGenerateCallback(generate)
	eng.SetCookieVerifyCallback(verify)

	for {
		n, peerAddr, err := a.receiveFrom(ctx, buf)
		if err != nil {
			return Result{}, err
		}
		eng.App.TransientAddr = peerAddr
		eng.PutInput(buf[:n])

		ready, err := a.driveListen(eng)
		eng.App.TransientAddr = netip.AddrPort{}
		if err != nil {
			return Result{}, err
		}
		if !ready {
			continue // still awaiting the cookie-echoing ClientHello; re-arm
		}

		return a.promote(ctx, eng, peerAddr)
	}
}

// receiveFrom arms one receive on the listening socket, honoring
// cancellation the way spec §5 requires: a cancelled context completes
// the pending receive with ErrOperationAborted. When the acceptor's
// logical non-blocking flag is set (spec §4.5's `non_blocking`), it first
// tries an immediate read with a past deadline; if nothing is already
// queued, it returns ErrWouldBlock instead of arming the blocking wait
// below, the synchronous non-blocking contract spec §7 describes.
func (a *Acceptor) receiveFrom(ctx context.Context, buf []byte) (int, netip.AddrPort, error) {
	if a.NonBlocking() {
		a.listener.SetReadDeadline(pastDeadline)
		n, addr, err := a.listener.ReadFromUDPAddrPort(buf)
		a.listener.SetReadDeadline(time.Time{})
		if err == nil {
			return n, addr, nil
		}
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return 0, netip.AddrPort{}, dtlserrors.ErrWouldBlock
		}
		return 0, netip.AddrPort{}, err
	}

	type result struct {
		n    int
		addr netip.AddrPort
		err  error
	}
	done := make(chan result, 1)
	go func() {
		n, addr, err := a.listener.ReadFromUDPAddrPort(buf)
		done <- result{n, addr, err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			a.mu.Lock()
			closed := a.closed
			a.mu.Unlock()
			if closed {
				return 0, netip.AddrPort{}, dtlserrors.ErrOperationAborted
			}
			return 0, netip.AddrPort{}, r.err
		}
		return r.n, r.addr, nil
	case <-ctx.Done():
		a.listener.SetReadDeadline(pastDeadline)
		<-done // let the goroutine unblock before returning
		return 0, netip.AddrPort{}, dtlserrors.ErrOperationAborted
	}
}

// driveListen feeds one datagram through the engine's stateless listen
// step and sends any resulting HelloVerifyRequest, returning true once
// the engine reports Ready (spec §4.5 step 4's "helper").
func (a *Acceptor) driveListen(eng *engine.Engine) (bool, error) {
	want, err := eng.DTLSListen()
	if err != nil {
		return false, err
	}
	if want == engine.Output || want == engine.OutputAndRetry {
		out := make([]byte, eng.MTU())
		out = eng.GetOutput(out)
		if len(out) > 0 {
			if _, werr := a.listener.WriteToUDPAddrPort(out, eng.App.TransientAddr); werr != nil {
				return false, werr
			}
		}
	}
	return eng.Ready(), nil
}

// promote opens the target session's underlying datagram socket on the
// listener's protocol, sets address-reuse, binds it to the listener's
// local endpoint, and connects it to the verified peer (spec §4.5 step
// 4's promotion sequence), then hands back a Session ready to drive.
func (a *Acceptor) promote(ctx context.Context, eng *engine.Engine, peerAddr netip.AddrPort) (Result, error) {
	local := a.listener.LocalAddr().String()
	conn, err := socketutil.DialReusable(ctx, local, peerAddr.String())
	if err != nil {
		return Result{}, err
	}
	sess := session.New(eng, conn)
	localAddr, _ := netip.ParseAddrPort(conn.LocalAddr().String())
	return Result{Session: sess, PeerAddr: peerAddr, LocalAddr: localAddr}, nil
}

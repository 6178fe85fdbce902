// Copyright (c) 2026, dtlscore authors
// Licensed under the MIT License. See LICENSE for details.

// Package socketutil opens the UDP sockets the acceptor needs for its
// promotion step (spec §4.5): a listening socket bound once at startup,
// and one freshly connected socket per accepted peer, both carrying
// SO_REUSEADDR so a promoted per-peer socket can share the listener's
// local port (the four-tuple still disambiguates traffic once it is
// connected to one peer).
package socketutil

import (
	"context"
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

func reuseAddrControl(_, _ string, rawConn syscall.RawConn) error {
	var sockErr error
	if err := rawConn.Control(func(fd uintptr) {
		sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
	}); err != nil {
		return err
	}
	return sockErr
}

// ListenReusable opens a UDP socket bound to localAddr with SO_REUSEADDR
// set, so a later ListenReusable/DialReusable call against the same
// address does not fail with "address already in use" while the listener
// is still live.
func ListenReusable(ctx context.Context, localAddr string) (*net.UDPConn, error) {
	lc := net.ListenConfig{Control: reuseAddrControl}
	conn, err := lc.ListenPacket(ctx, "udp", localAddr)
	if err != nil {
		return nil, err
	}
	return conn.(*net.UDPConn), nil
}

// DialReusable opens a UDP socket bound to localAddr and connected to
// peerAddr, with SO_REUSEADDR set so it can bind to the same local
// address the acceptor's listening socket already occupies (spec §4.5's
// promote_session: "open a new socket ... bind to the listening socket's
// local endpoint ... connect to the peer").
func DialReusable(ctx context.Context, localAddr, peerAddr string) (*net.UDPConn, error) {
	d := net.Dialer{Control: reuseAddrControl, LocalAddr: nil}
	if localAddr != "" {
		resolved, err := net.ResolveUDPAddr("udp", localAddr)
		if err != nil {
			return nil, err
		}
		d.LocalAddr = resolved
	}
	conn, err := d.DialContext(ctx, "udp", peerAddr)
	if err != nil {
		return nil, err
	}
	return conn.(*net.UDPConn), nil
}

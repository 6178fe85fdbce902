// Copyright (c) 2026, dtlscore authors
// Licensed under the MIT License. See LICENSE for details.

package socketutil

import (
	"context"
	"testing"
)

func TestListenReusableBindsToLoopback(t *testing.T) {
	conn, err := ListenReusable(context.Background(), "127.0.0.1:0")
	if err != nil {
		t.Fatalf("ListenReusable: %v", err)
	}
	defer conn.Close()

	if addr := conn.LocalAddr().String(); addr == "" {
		t.Fatalf("expected a bound local address")
	}
}

func TestDialReusableConnectsToListener(t *testing.T) {
	listener, err := ListenReusable(context.Background(), "127.0.0.1:0")
	if err != nil {
		t.Fatalf("ListenReusable: %v", err)
	}
	defer listener.Close()

	client, err := DialReusable(context.Background(), "", listener.LocalAddr().String())
	if err != nil {
		t.Fatalf("DialReusable: %v", err)
	}
	defer client.Close()

	if client.RemoteAddr().String() != listener.LocalAddr().String() {
		t.Fatalf("client connected to %s, want %s", client.RemoteAddr(), listener.LocalAddr())
	}
}

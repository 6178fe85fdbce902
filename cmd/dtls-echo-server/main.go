// Copyright (c) 2026, dtlscore authors
// Licensed under the MIT License. See LICENSE for details.

// Command dtls-echo-server wires acceptor.Acceptor and session.Session
// together over loopback UDP: every accepted peer gets its own goroutine
// that completes the handshake and echoes back whatever it reads, adapted
// from the teacher's cmd/test_server wiring shape.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"github.com/dtlscore/acceptor/acceptor"
	"github.com/dtlscore/acceptor/cookie"
	"github.com/dtlscore/acceptor/dtlsrand"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:11111", "listen address")
	flag.Parse()

	ctx := context.Background()
	rnd := dtlsrand.CryptoRand()

	acc, err := acceptor.Listen(ctx, *addr, rnd)
	if err != nil {
		log.Fatal(err)
	}
	defer acc.Close()

	state := cookie.NewState(rnd, 30*time.Second)
	acc.SetCookieCallbacks(state, state)

	log.Printf("listening on %s", acc.LocalAddr())

	for {
		result, err := acc.AsyncAccept(ctx, make([]byte, 65536))
		if err != nil {
			log.Printf("accept failed: %v", err)
			continue
		}
		go serve(result)
	}
}

func serve(result acceptor.Result) {
	sess := result.Session
	defer sess.Close()

	if err := sess.Handshake(); err != nil {
		log.Printf("%s: handshake failed: %v", result.PeerAddr, err)
		return
	}
	log.Printf("%s: handshake complete", result.PeerAddr)

	buf := make([]byte, 65536)
	for {
		n, err := sess.Read(buf)
		if err != nil {
			log.Printf("%s: closed: %v", result.PeerAddr, err)
			return
		}
		if n == 0 {
			continue
		}
		if _, err := sess.Write(buf[:n]); err != nil {
			log.Printf("%s: write failed: %v", result.PeerAddr, err)
			return
		}
	}
}

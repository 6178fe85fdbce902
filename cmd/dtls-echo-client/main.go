// Copyright (c) 2026, dtlscore authors
// Licensed under the MIT License. See LICENSE for details.

// Command dtls-echo-client dials dtls-echo-server, drives a client-role
// handshake, then echoes stdin lines off the server and prints the
// replies, adapted from the teacher's cmd/test_client wiring shape.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"net"
	"os"

	"github.com/dtlscore/acceptor/dtlsrand"
	"github.com/dtlscore/acceptor/engine"
	"github.com/dtlscore/acceptor/session"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:11111", "server address")
	flag.Parse()

	conn, err := net.Dial("udp", *addr)
	if err != nil {
		log.Fatal(err)
	}

	eng := engine.New(engine.RoleClient, dtlsrand.CryptoRand())
	sess := session.New(eng, conn)

	if err := sess.Handshake(); err != nil {
		log.Fatalf("handshake failed: %v", err)
	}
	defer sess.Close()
	fmt.Println("connected; type a line and press enter")

	scanner := bufio.NewScanner(os.Stdin)
	buf := make([]byte, 65536)
	for scanner.Scan() {
		line := scanner.Text()
		if _, err := sess.Write([]byte(line)); err != nil {
			log.Fatalf("write failed: %v", err)
		}
		n, err := sess.Read(buf)
		if err != nil {
			log.Fatalf("read failed: %v", err)
		}
		fmt.Printf("echo: %s\n", buf[:n])
	}
}

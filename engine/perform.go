// Copyright (c) 2026, dtlscore authors
// Licensed under the MIT License. See LICENSE for details.

package engine

import "github.com/dtlscore/acceptor/dtlserrors"

// sslSignal mirrors the handful of outcomes a record-TLS library reports
// through its synchronous error queue; the perform loop below classifies
// one of these (plus the external BIO's fill level) into a Want.
type sslSignal int

const (
	sslNone sslSignal = iota
	sslWantRead
	sslWantWrite
)

// stepResult is what one do_* primitive (do_handshake, do_dtls_listen,
// do_read, do_write, do_shutdown) reports to the perform loop.
type stepResult struct {
	N      int // bytes transferred, if any
	Signal sslSignal
	SysErr error // non-nil only for CategorySystem failures
	SSLErr error // non-nil only for CategorySSL fatal failures
}

// performLoop implements spec §4.1's central classification algorithm.
// Every engine operation funnels through it: it snapshots the external
// BIO's fill level before and after step runs, then classifies want/error
// in the exact order the spec lays out so the tie-break between output
// and output_and_retry is preserved.
func (e *Engine) performLoop(step func() stepResult) (Want, int, error) {
	pendingBefore := e.pair.External.Len()
	res := step()
	pendingAfter := e.pair.External.Len()

	if res.SSLErr != nil {
		return Nothing, 0, res.SSLErr
	}
	if res.Signal == sslNone && res.SysErr != nil {
		return Nothing, 0, res.SysErr
	}

	n := 0
	if res.N > 0 {
		n = res.N
	}

	switch {
	case res.Signal == sslWantWrite:
		return OutputAndRetry, n, nil
	case pendingAfter > pendingBefore:
		if res.N > 0 {
			return Output, n, nil
		}
		return OutputAndRetry, n, nil
	case res.Signal == sslWantRead:
		return InputAndRetry, n, nil
	case e.receivedShutdown:
		return Nothing, n, dtlserrors.ErrEOF
	default:
		return Nothing, n, nil
	}
}

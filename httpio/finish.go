// Package httpio adapts streaming HTTP request/response bodies: a one-shot
// end-of-body signal, and multipart/form-data peeling so a request's first
// part can stand in for the whole body.
package httpio

import (
	"io"
	"sync"
)

// Outcome is the result carried by a FinishReader's done channel.
type Outcome int

const (
	// Aborted is the zero value so a FinishReader dropped without a Wait
	// observer still reports the safe default if ever inspected.
	Aborted Outcome = iota
	Finished
)

// FinishReader wraps an io.ReadCloser so that observing EOF on Read fires a
// one-shot completion signal exactly once. If the reader is Close'd before
// EOF was seen, or any non-EOF error is returned by the underlying reader,
// the signal fires with Aborted instead. The channel is armed before the
// caller can possibly observe it, and exactly one party closes it.
type FinishReader struct {
	r    io.ReadCloser
	done chan struct{}
	once sync.Once
	// outcome is only meaningful after done is closed.
	outcome Outcome
}

// NewFinishReader wraps r. Call Wait on the returned waiter to be notified
// exactly once when the wrapped body reaches EOF or is abandoned.
func NewFinishReader(r io.ReadCloser) (*FinishReader, *FinishWaiter) {
	fr := &FinishReader{
		r:    r,
		done: make(chan struct{}),
	}
	return fr, &FinishWaiter{fr: fr}
}

func (f *FinishReader) fire(outcome Outcome) {
	f.once.Do(func() {
		f.outcome = outcome
		close(f.done)
	})
}

// Read forwards to the wrapped reader. On io.EOF it fires Finished before
// returning the EOF to the caller. On any other error it fires Aborted:
// the body ended early and the caller should treat the transfer as
// incomplete.
func (f *FinishReader) Read(p []byte) (int, error) {
	n, err := f.r.Read(p)
	if err == io.EOF {
		f.fire(Finished)
	} else if err != nil {
		f.fire(Aborted)
	}
	return n, err
}

// Close fires Aborted if the body hadn't already reached EOF, then closes
// the underlying reader. Closing after a clean EOF is a no-op for the
// signal (it already fired Finished).
func (f *FinishReader) Close() error {
	f.fire(Aborted)
	return f.r.Close()
}

// FinishWaiter is handed to the party that needs to know when the body
// finished, without giving it access to Read/Close.
type FinishWaiter struct {
	fr *FinishReader
}

// Wait blocks until the wrapped body finishes or is abandoned, and reports
// which happened.
func (w *FinishWaiter) Wait() Outcome {
	<-w.fr.done
	return w.fr.outcome
}

// Package pipe implements the per-path rendezvous engine: a concurrent table
// of slots, each pairing at most one pending sender with at most one pending
// receiver for a given path, and wiring the two together the moment both are
// present.
//
// The table itself is a sync.Map; each entry owns its own mutex so that
// only participants of the *same* path ever contend with each other.
package pipe

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/sirupsen/logrus"

	"piping-relay/httpio"
)

// ErrSenderExists is returned by EnterAsSender when a sender is already
// waiting on the same path. A sender whose transfer has started no longer
// occupies the slot.
type ErrSenderExists struct{ Path string }

func (e *ErrSenderExists) Error() string {
	return fmt.Sprintf("Another sender has been connected on '%s'.", e.Path)
}

// ErrReceiverExists is returned by EnterAsReceiver when a receiver is
// already waiting on the same path. A receiver whose transfer has started
// no longer occupies the slot.
type ErrReceiverExists struct{ Path string }

func (e *ErrReceiverExists) Error() string {
	return fmt.Sprintf("Another receiver has been connected on '%s'.", e.Path)
}

// Delivery is the fully-formed response handed from the rendezvous engine
// to the waiting receiver: response headers plus a streaming body wrapping
// the sender's request body.
type Delivery struct {
	Header http.Header
	Body   *httpio.FinishReader
}

// pendingSender is captured while a sender awaits its receiver.
type pendingSender struct {
	req      *http.Request
	messages chan string
}

// pendingReceiver is captured while a receiver awaits its sender.
type pendingReceiver struct {
	ctx      context.Context
	delivery chan Delivery
}

// entry is the per-path slot: at most one pendingSender and one
// pendingReceiver, guarded by its own mutex.
type entry struct {
	mu       sync.Mutex
	sender   *pendingSender
	receiver *pendingReceiver
}

// Table is the concurrent path → slot map.
type Table struct {
	entries sync.Map // map[string]*entry
	log     *logrus.Logger
}

// NewTable creates an empty pipe table. log receives info-level notices for
// benign failed hand-offs and error-level notices for multipart failures.
func NewTable(log *logrus.Logger) *Table {
	return &Table{log: log}
}

func (t *Table) entryFor(path string) *entry {
	e, _ := t.entries.LoadOrStore(path, &entry{})
	return e.(*entry)
}

// EnterAsSender registers req as the pending sender for its URL path. If a
// receiver is already waiting, rendezvous begins immediately and the
// returned channel will receive progress lines as the transfer proceeds,
// closing when the sender's response should end. If a sender is already
// present, it returns *ErrSenderExists and the existing sender is left
// untouched.
func (t *Table) EnterAsSender(req *http.Request) (<-chan string, error) {
	path := req.URL.Path
	e := t.entryFor(path)

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.sender != nil {
		return nil, &ErrSenderExists{Path: path}
	}

	ps := &pendingSender{req: req, messages: make(chan string, 4)}

	if e.receiver != nil {
		pr := e.receiver
		e.receiver = nil
		t.transfer(path, ps, pr)
		return ps.messages, nil
	}

	e.sender = ps
	return ps.messages, nil
}

// EnterAsReceiver registers a receiver waiting on path, whose lifetime is
// bound to ctx (the GET request's context; when it is Done, a not-yet-
// triggered rendezvous handoff is abandoned without blocking the sender
// side forever). If a sender is already waiting, rendezvous begins
// immediately. If a receiver is already present, it returns
// *ErrReceiverExists and the existing receiver keeps its place.
func (t *Table) EnterAsReceiver(ctx context.Context, path string) (<-chan Delivery, error) {
	e := t.entryFor(path)

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.receiver != nil {
		return nil, &ErrReceiverExists{Path: path}
	}

	pr := &pendingReceiver{ctx: ctx, delivery: make(chan Delivery)}

	if e.sender != nil {
		ps := e.sender
		e.sender = nil
		t.transfer(path, ps, pr)
		return pr.delivery, nil
	}

	e.receiver = pr
	return pr.delivery, nil
}

// transfer wires the two halves together in its own goroutine so the
// caller's entry mutex is released immediately, never blocked on either
// peer's I/O.
func (t *Table) transfer(path string, ps *pendingSender, pr *pendingReceiver) {
	go func() {
		payload, err := httpio.Peel(ps.req)
		if err != nil {
			t.log.WithError(err).WithField("path", path).Error("multipart peel failed")
			close(pr.delivery)
			ps.messages <- "[INFO] All receiver(s) was/were halfway disconnected."
			close(ps.messages)
			return
		}

		header := buildReceiverHeader(ps.req, payload)
		finishBody, waiter := httpio.NewFinishReader(payload.Body)
		delivery := Delivery{Header: header, Body: finishBody}

		select {
		case pr.delivery <- delivery:
			// handed off
		case <-pr.ctx.Done():
			t.log.WithField("path", path).Info("receiver disconnected before hand-off")
			_ = finishBody.Close()
			ps.messages <- "[INFO] All receiver(s) was/were halfway disconnected."
			close(ps.messages)
			return
		}

		ps.messages <- "[INFO] Start sending to 1 receiver(s)..."

		go func() {
			outcome := waiter.Wait()
			if outcome == httpio.Finished {
				ps.messages <- "[INFO] Sent successfully!"
			} else {
				ps.messages <- "[INFO] All receiver(s) was/were halfway disconnected."
			}
			close(ps.messages)
			t.log.WithField("path", path).Info("transfer ended")
		}()
	}()
}

func buildReceiverHeader(req *http.Request, payload httpio.TransferPayload) http.Header {
	h := make(http.Header)
	httpio.SetIfPresent(h, "Content-Type", payload.ContentType, payload.HasContentType)
	if payload.HasContentLength {
		httpio.SetIfPresent(h, "Content-Length", formatInt64(payload.ContentLength), true)
	}
	httpio.SetIfPresent(h, "Content-Disposition", payload.ContentDisposition, payload.HasContentDisposition)

	xPiping := req.Header.Values("X-Piping")
	httpio.AppendAll(h, "X-Piping", xPiping)
	if len(xPiping) > 0 {
		h.Set("Access-Control-Expose-Headers", "X-Piping")
	}

	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("X-Robots-Tag", "none")
	return h
}

func formatInt64(n int64) string {
	return fmt.Sprintf("%d", n)
}

// IsRendezvousConflict reports whether err is a rejection from an already
// occupied slot.
func IsRendezvousConflict(err error) bool {
	var sErr *ErrSenderExists
	var rErr *ErrReceiverExists
	return errors.As(err, &sErr) || errors.As(err, &rErr)
}

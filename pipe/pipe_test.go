package pipe

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func drainMessages(t *testing.T, ch <-chan string) []string {
	t.Helper()
	var out []string
	for msg := range ch {
		out = append(out, msg)
	}
	return out
}

func TestSendThenReceive(t *testing.T) {
	table := NewTable(testLogger())

	req := httptest.NewRequest(http.MethodPost, "/mypath", strings.NewReader("this is a content"))
	req.Header.Set("Content-Type", "text/plain")
	req.Header.Set("Content-Length", "17")

	messages, err := table.EnterAsSender(req)
	if err != nil {
		t.Fatalf("EnterAsSender: %v", err)
	}

	deliveryCh, err := table.EnterAsReceiver(context.Background(), "/mypath")
	if err != nil {
		t.Fatalf("EnterAsReceiver: %v", err)
	}

	delivery := <-deliveryCh
	body, err := io.ReadAll(delivery.Body)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(body) != "this is a content" {
		t.Fatalf("body = %q", body)
	}
	if got := delivery.Header.Get("Content-Type"); got != "text/plain" {
		t.Fatalf("content-type = %q", got)
	}
	if got := delivery.Header.Get("Content-Length"); got != "17" {
		t.Fatalf("content-length = %q", got)
	}
	if got := delivery.Header.Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("ACAO = %q", got)
	}

	msgs := drainMessages(t, messages)
	if len(msgs) == 0 || msgs[0] != "[INFO] Start sending to 1 receiver(s)..." {
		t.Fatalf("messages = %v", msgs)
	}
	if msgs[len(msgs)-1] != "[INFO] Sent successfully!" {
		t.Fatalf("final message = %v", msgs)
	}
}

func TestReceiveThenSend(t *testing.T) {
	table := NewTable(testLogger())

	deliveryCh, err := table.EnterAsReceiver(context.Background(), "/mypath")
	if err != nil {
		t.Fatalf("EnterAsReceiver: %v", err)
	}

	time.Sleep(20 * time.Millisecond)

	req := httptest.NewRequest(http.MethodPost, "/mypath", strings.NewReader("hello world"))
	if _, err := table.EnterAsSender(req); err != nil {
		t.Fatalf("EnterAsSender: %v", err)
	}

	delivery := <-deliveryCh
	body, _ := io.ReadAll(delivery.Body)
	if string(body) != "hello world" {
		t.Fatalf("body = %q", body)
	}
}

func TestDuplicateSenderRejected(t *testing.T) {
	table := NewTable(testLogger())

	req1 := httptest.NewRequest(http.MethodPost, "/mypath", strings.NewReader("first"))
	if _, err := table.EnterAsSender(req1); err != nil {
		t.Fatalf("first EnterAsSender: %v", err)
	}

	req2 := httptest.NewRequest(http.MethodPost, "/mypath", strings.NewReader("second"))
	_, err := table.EnterAsSender(req2)
	if err == nil {
		t.Fatal("expected error for second sender")
	}
	if !IsRendezvousConflict(err) {
		t.Fatalf("expected rendezvous conflict, got %v", err)
	}
	if !strings.Contains(err.Error(), "/mypath") {
		t.Fatalf("error should name the path: %v", err)
	}
}

func TestDuplicateReceiverRejected(t *testing.T) {
	table := NewTable(testLogger())

	if _, err := table.EnterAsReceiver(context.Background(), "/mypath"); err != nil {
		t.Fatalf("first EnterAsReceiver: %v", err)
	}
	_, err := table.EnterAsReceiver(context.Background(), "/mypath")
	if err == nil || !IsRendezvousConflict(err) {
		t.Fatalf("expected rendezvous conflict, got %v", err)
	}
}

func TestXPipingPassthroughInOrder(t *testing.T) {
	table := NewTable(testLogger())

	req := httptest.NewRequest(http.MethodPost, "/mypath", strings.NewReader("data"))
	req.Header.Add("X-Piping", "mymetadata1")
	req.Header.Add("X-Piping", "mymetadata2")
	req.Header.Add("X-Piping", "mymetadata3")

	if _, err := table.EnterAsSender(req); err != nil {
		t.Fatalf("EnterAsSender: %v", err)
	}
	deliveryCh, err := table.EnterAsReceiver(context.Background(), "/mypath")
	if err != nil {
		t.Fatalf("EnterAsReceiver: %v", err)
	}
	delivery := <-deliveryCh
	got := delivery.Header.Values("X-Piping")
	want := []string{"mymetadata1", "mymetadata2", "mymetadata3"}
	if len(got) != len(want) {
		t.Fatalf("X-Piping = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("X-Piping[%d] = %q, want %q", i, got[i], want[i])
		}
	}
	if delivery.Header.Get("Access-Control-Expose-Headers") != "X-Piping" {
		t.Fatalf("missing Access-Control-Expose-Headers")
	}
}

func TestReceiverGoneBeforeTransferIsBenign(t *testing.T) {
	table := NewTable(testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	deliveryCh, err := table.EnterAsReceiver(ctx, "/mypath")
	if err != nil {
		t.Fatalf("EnterAsReceiver: %v", err)
	}
	cancel()
	// Give the cancellation time to be observable; no explicit sync point
	// exists because the abandonment is intentionally lazy.
	time.Sleep(10 * time.Millisecond)

	req := httptest.NewRequest(http.MethodPost, "/mypath", strings.NewReader("data"))
	messages, err := table.EnterAsSender(req)
	if err != nil {
		t.Fatalf("EnterAsSender: %v", err)
	}

	msgs := drainMessages(t, messages)
	if len(msgs) != 1 || msgs[0] != "[INFO] All receiver(s) was/were halfway disconnected." {
		t.Fatalf("messages = %v", msgs)
	}

	select {
	case _, ok := <-deliveryCh:
		if ok {
			t.Fatal("did not expect a delivered value on an abandoned receiver")
		}
	default:
	}
}

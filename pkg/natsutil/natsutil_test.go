package natsutil

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
)

type auditEvent struct {
	Name  string `json:"name"`
	Score int    `json:"score"`
}

func startTestNATS(t *testing.T) (*natsserver.Server, *nats.Conn) {
	t.Helper()
	srv, err := natsserver.NewServer(&natsserver.Options{Port: -1})
	if err != nil {
		t.Fatal(err)
	}
	srv.Start()
	if !srv.ReadyForConnections(3 * time.Second) {
		t.Fatal("nats not ready")
	}
	nc, err := Connect(srv.ClientURL(), "geoaudit-test", nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		nc.Close()
		srv.Shutdown()
	})
	return srv, nc
}

func TestNatsHeaderCarrier(t *testing.T) {
	msg := &nats.Msg{}
	carrier := (*natsHeaderCarrier)(msg)

	if got := carrier.Get("missing"); got != "" {
		t.Fatalf("expected empty, got %q", got)
	}
	if keys := carrier.Keys(); keys != nil {
		t.Fatalf("expected nil keys, got %v", keys)
	}

	carrier.Set("traceparent", "00-abc-def-01")
	carrier.Set("tracestate", "a=1")
	carrier.Set("tracestate", "a=2")
	if got := carrier.Get("traceparent"); got != "00-abc-def-01" {
		t.Fatalf("expected traceparent, got %q", got)
	}
	if got := carrier.Get("tracestate"); got != "a=2" {
		t.Fatalf("expected overwrite, got %q", got)
	}
	if keys := carrier.Keys(); len(keys) != 2 {
		t.Fatalf("unexpected keys: %v", keys)
	}
}

func TestConnectBadURL(t *testing.T) {
	if _, err := Connect("nats://127.0.0.1:1", "geoaudit-test", nil); err == nil {
		t.Fatal("expected connect error")
	}
}

func TestPublish(t *testing.T) {
	_, nc := startTestNATS(t)

	ch := make(chan *nats.Msg, 1)
	sub, err := nc.ChanSubscribe("geoaudit.events", ch)
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Unsubscribe()

	if err := Publish(context.Background(), nc, "geoaudit.events", auditEvent{Name: "schema_audit_clicked", Score: 1}); err != nil {
		t.Fatal(err)
	}

	select {
	case msg := <-ch:
		var ev auditEvent
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			t.Fatal(err)
		}
		if ev.Name != "schema_audit_clicked" || ev.Score != 1 {
			t.Fatalf("unexpected payload: %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for message")
	}
}

func TestPublishMarshalError(t *testing.T) {
	_, nc := startTestNATS(t)
	if err := Publish(context.Background(), nc, "geoaudit.err", make(chan int)); err == nil {
		t.Fatal("expected marshal error")
	}
}

func TestSubscribe(t *testing.T) {
	_, nc := startTestNATS(t)

	ch := make(chan auditEvent, 1)
	sub, err := Subscribe(nc, "geoaudit.outcomes", func(_ context.Context, ev auditEvent) {
		ch <- ev
	})
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Unsubscribe()

	if err := Publish(context.Background(), nc, "geoaudit.outcomes", auditEvent{Name: "post", Score: 75}); err != nil {
		t.Fatal(err)
	}

	select {
	case ev := <-ch:
		if ev.Name != "post" || ev.Score != 75 {
			t.Fatalf("unexpected: %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout")
	}
}

func TestSubscribeDropsMalformed(t *testing.T) {
	_, nc := startTestNATS(t)

	called := make(chan struct{}, 1)
	sub, err := Subscribe(nc, "geoaudit.malformed", func(context.Context, auditEvent) {
		called <- struct{}{}
	})
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Unsubscribe()

	nc.Publish("geoaudit.malformed", []byte("{bad"))
	nc.Flush()

	select {
	case <-called:
		t.Fatal("handler should not be called for malformed data")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestQueueSubscribeDeliversOnce(t *testing.T) {
	_, nc := startTestNATS(t)

	var n atomic.Int32
	done := make(chan struct{}, 4)
	for i := 0; i < 2; i++ {
		sub, err := QueueSubscribe(nc, "geoaudit.work", "workers", func(context.Context, auditEvent) {
			n.Add(1)
			done <- struct{}{}
		})
		if err != nil {
			t.Fatal(err)
		}
		defer sub.Unsubscribe()
	}

	if err := Publish(context.Background(), nc, "geoaudit.work", auditEvent{Name: "verify"}); err != nil {
		t.Fatal(err)
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timeout")
	}
	time.Sleep(100 * time.Millisecond)
	if got := n.Load(); got != 1 {
		t.Fatalf("expected exactly one delivery, got %d", got)
	}
}

package sse

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestSubscribeUnsubscribe(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()
	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients")
	}
	ch := b.Subscribe()
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client")
	}
	b.Unsubscribe(ch)
	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients after unsub")
	}
}

func TestPublishDelivery(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.Publish(Event{Type: EventThreadsChanged, Data: map[string]string{"tag": "auth"}})

	select {
	case msg := <-ch:
		s := string(msg)
		if !strings.Contains(s, "event: threads.changed") {
			t.Errorf("missing event type in %q", s)
		}
		if !strings.Contains(s, `"tag":"auth"`) {
			t.Errorf("missing data in %q", s)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
	}
}

func TestPublishStoreChange_AnalyticsThrottle(t *testing.T) {
	b := NewBroker(500 * time.Millisecond)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	// First thread change should trigger analytics.updated.
	b.PublishStoreChange(KindThreads)
	// Second change immediately should NOT trigger another analytics.updated.
	b.PublishStoreChange(KindThreads)
	// Pending changes never do.
	b.PublishStoreChange(KindPending)
	b.PublishStoreChange("unknown")

	// Drain and count events.
	time.Sleep(50 * time.Millisecond)
	counts := map[string]int{}
loop:
	for {
		select {
		case msg := <-ch:
			for _, typ := range []string{EventThreadsChanged, EventPendingChanged, EventAnalyticsUpdated} {
				if strings.Contains(string(msg), "event: "+typ+"\n") {
					counts[typ]++
				}
			}
		default:
			break loop
		}
	}

	if counts[EventThreadsChanged] != 2 {
		t.Errorf("threads events = %d, want 2", counts[EventThreadsChanged])
	}
	if counts[EventPendingChanged] != 1 {
		t.Errorf("pending events = %d, want 1", counts[EventPendingChanged])
	}
	if counts[EventAnalyticsUpdated] != 1 {
		t.Errorf("analytics events = %d, want 1 (throttled)", counts[EventAnalyticsUpdated])
	}
}

func TestSSEHandler(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()

	// Start handler in background.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req := httptest.NewRequest(http.MethodGet, "/api/events", nil)
	req = req.WithContext(ctx)
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		b.ServeHTTP(w, req)
		close(done)
	}()

	// Give handler time to subscribe.
	time.Sleep(50 * time.Millisecond)
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client from handler")
	}

	b.PublishStoreChange(KindPending)
	time.Sleep(50 * time.Millisecond)

	// Cancel context to disconnect.
	cancel()
	<-done

	body := w.Body.String()
	if !strings.Contains(body, "event: pending.changed") {
		t.Errorf("handler output missing event: %q", body)
	}

	// Client should be cleaned up.
	time.Sleep(50 * time.Millisecond)
	if b.ClientCount() != 0 {
		t.Errorf("client not cleaned up after disconnect")
	}
}

func TestPublishDropsOnFullBuffer(t *testing.T) {
	b := NewBroker(time.Second)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	// Fill buffer (capacity 64) and then one more should not block.
	for range 70 {
		b.PublishStoreChange(KindPending)
	}
	// If we reach here without deadlock, the test passes.
}

func TestCloseClosesSubscribersAndStopsOperations(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	ch := b.Subscribe()
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client")
	}

	b.Close()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected subscriber channel to be closed")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for channel close")
	}

	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients after close")
	}

	// Should be safe no-op after close.
	b.Publish(Event{Type: EventThreadsChanged, Data: map[string]string{}})
	b.PublishStoreChange(KindThreads)
}

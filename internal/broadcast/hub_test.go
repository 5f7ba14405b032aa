package broadcast

import (
	"sync"
	"testing"
)

func TestSubscribeIdempotent(t *testing.T) {
	h := NewHub(nil)

	ch1 := h.Subscribe("sub-1")
	ch2 := h.Subscribe("sub-1")
	if ch1 != ch2 {
		t.Fatalf("expected same channel for repeated subscribe")
	}
	if h.Len() != 1 {
		t.Fatalf("expected 1 subscriber, got %d", h.Len())
	}
}

func TestUnsubscribeIdempotent(t *testing.T) {
	h := NewHub(nil)

	h.Subscribe("sub-1")
	h.Unsubscribe("sub-1")
	h.Unsubscribe("sub-1") // absent id is a no-op
	h.Unsubscribe("never-seen")
	if h.Len() != 0 {
		t.Fatalf("expected 0 subscribers, got %d", h.Len())
	}
}

func TestBroadcastReachesAllSubscribers(t *testing.T) {
	h := NewHub(nil)

	a := h.Subscribe("a")
	b := h.Subscribe("b")

	h.Broadcast("new_event", map[string]string{"event_id": "EV1"})

	for name, ch := range map[string]<-chan Message{"a": a, "b": b} {
		select {
		case msg := <-ch:
			if msg.Event != "new_event" {
				t.Fatalf("subscriber %s: unexpected event %q", name, msg.Event)
			}
		default:
			t.Fatalf("subscriber %s: expected a message", name)
		}
	}
}

func TestBroadcastEvictsStalledSubscriberOnly(t *testing.T) {
	h := NewHub(nil)

	stalled := h.Subscribe("stalled")
	healthy := h.Subscribe("healthy")

	// Fill the stalled subscriber's queue without draining it.
	for i := 0; i < sendBuffer; i++ {
		h.Broadcast("new_event", i)
		// Drain the healthy side so it never fills.
		<-healthy
	}

	// This send overflows the stalled queue; the subscriber is evicted and
	// the healthy one still receives.
	h.Broadcast("new_event", "overflow")

	if h.Len() != 1 {
		t.Fatalf("expected stalled subscriber evicted, have %d", h.Len())
	}
	select {
	case msg := <-healthy:
		if msg.Data != "overflow" {
			t.Fatalf("unexpected message: %+v", msg)
		}
	default:
		t.Fatalf("healthy subscriber should have received the message")
	}

	// Eviction closes the channel after the buffered messages drain.
	drained := 0
	for range stalled {
		drained++
	}
	if drained != sendBuffer {
		t.Fatalf("expected %d buffered messages before close, got %d", sendBuffer, drained)
	}
}

func TestBroadcastWithNoSubscribers(t *testing.T) {
	h := NewHub(nil)
	// Must not panic or block.
	h.Broadcast("new_event", "nobody listening")
}

func TestConcurrentSubscribeBroadcastUnsubscribe(t *testing.T) {
	h := NewHub(nil)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		id := string(rune('a' + i))
		wg.Add(2)
		go func() {
			defer wg.Done()
			ch := h.Subscribe(id)
			for range ch {
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				h.Broadcast("new_event", j)
			}
			h.Unsubscribe(id)
		}()
	}
	wg.Wait()
}

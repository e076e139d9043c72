package broadcast

import (
	"testing"
	"time"
)

func TestSubscribePublish(t *testing.T) {
	h := NewHub()
	ch, unsubscribe := h.Subscribe()
	defer unsubscribe()

	h.Publish(Message{Type: StatusUpdate, PromptID: "p1", Timestamp: time.Now()})

	select {
	case msg := <-ch:
		if msg.PromptID != "p1" {
			t.Errorf("prompt_id = %q, want p1", msg.PromptID)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
	}
}

func TestPublish_DropsOnFullBuffer(t *testing.T) {
	h := NewHub()
	ch, unsubscribe := h.Subscribe()
	defer func() {
		// unsubscribe is safe to call even though the hub may have
		// already removed the subscriber on overflow.
		unsubscribe()
	}()

	for i := 0; i < subscriberBufferSize+5; i++ {
		h.Publish(Message{Type: IdleTick, Timestamp: time.Now()})
	}

	if h.SubscriberCount() != 0 {
		t.Errorf("expected subscriber dropped after overflow, count = %d", h.SubscriberCount())
	}

	// Draining ch should not block forever even though it was closed.
	for range ch {
	}
}

func TestUnsubscribe_RemovesSubscriber(t *testing.T) {
	h := NewHub()
	_, unsubscribe := h.Subscribe()
	if h.SubscriberCount() != 1 {
		t.Fatalf("expected 1 subscriber, got %d", h.SubscriberCount())
	}
	unsubscribe()
	if h.SubscriberCount() != 0 {
		t.Errorf("expected 0 subscribers after unsubscribe, got %d", h.SubscriberCount())
	}
}

func TestEncodeSSE(t *testing.T) {
	frame, err := EncodeSSE(Message{Type: StatusUpdate, PromptID: "p1", Timestamp: time.Now()})
	if err != nil {
		t.Fatalf("EncodeSSE() error = %v", err)
	}
	if len(frame) == 0 {
		t.Fatal("expected non-empty frame")
	}
}

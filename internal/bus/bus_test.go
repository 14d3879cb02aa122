package bus

import (
	"testing"
	"time"
)

func TestEmitFillsIDAndTimestamp(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("sync.", 10)
	defer unsub()

	b.Emit(KindSyncStarted, nil)

	select {
	case evt := <-ch:
		if evt.Kind != KindSyncStarted {
			t.Errorf("got kind %q, want %q", evt.Kind, KindSyncStarted)
		}
		if evt.ID == "" {
			t.Error("event ID not assigned")
		}
		if evt.Timestamp.IsZero() {
			t.Error("event timestamp not assigned")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestNamespaceFiltering(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("inbox.", 10)
	defer unsub()

	b.Emit(KindWAMessage, nil)
	b.Emit(KindInboxMessage, nil)

	select {
	case evt := <-ch:
		if evt.Kind != KindInboxMessage {
			t.Errorf("got kind %q, want %q", evt.Kind, KindInboxMessage)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}

	select {
	case evt := <-ch:
		t.Errorf("unexpected event: %v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestUnsubscribeTwice(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("config.", 10)
	unsub()
	unsub()

	if n := b.Subscribers(); n != 0 {
		t.Errorf("Subscribers() = %d, want 0", n)
	}

	b.Emit(KindConfigUpdated, nil)
	select {
	case evt := <-ch:
		t.Errorf("received event after unsubscribe: %v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestDropOnFullBuffer(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("conversation.", 1)
	defer unsub()

	b.Publish(Event{Kind: KindConversationUpdate, Payload: "one"})
	b.Publish(Event{Kind: KindConversationUpdate, Payload: "two"})

	evt := <-ch
	if evt.Payload != "one" {
		t.Errorf("got payload %v, want one", evt.Payload)
	}
	if got := b.Dropped(); got != 1 {
		t.Errorf("Dropped() = %d, want 1", got)
	}
}

func TestNilBusPublishIsNoop(t *testing.T) {
	var b *Bus
	b.Emit(KindSyncStarted, nil)
}

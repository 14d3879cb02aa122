package status

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/matheus3301/waconsole/internal/bus"
)

func TestInitialState(t *testing.T) {
	m := NewMachine("c1", ConversationTable, Idle)
	if m.Current() != Idle {
		t.Errorf("initial state = %s, want IDLE", m.Current())
	}
	if m.Name() != "c1" {
		t.Errorf("name = %q, want c1", m.Name())
	}
}

func TestConversationTransitions(t *testing.T) {
	tests := []struct {
		path []State
		ok   bool
	}{
		{[]State{Loading, Ready}, true},
		{[]State{Loading, Idle, Loading}, true},
		{[]State{Ready}, false},
		{[]State{Loading, Loading}, false},
		{[]State{Loading, Ready, Loading}, false},
	}
	for _, tt := range tests {
		m := NewMachine("c", ConversationTable, Idle)
		var err error
		for _, s := range tt.path {
			if err = m.Transition(s); err != nil {
				break
			}
		}
		if (err == nil) != tt.ok {
			t.Errorf("path %v: err = %v, want ok=%v", tt.path, err, tt.ok)
		}
		if err != nil && !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("path %v: error does not wrap ErrInvalidTransition: %v", tt.path, err)
		}
	}
}

func TestLinkTransitions(t *testing.T) {
	m := NewMachine("link", LinkTable, Booting)
	for _, s := range []State{AuthRequired, Connecting, Connected, Reconnecting, Connected} {
		if err := m.Transition(s); err != nil {
			t.Fatalf("Transition(%s) error = %v", s, err)
		}
	}
	if err := m.Transition(Booting); err == nil {
		t.Error("CONNECTED -> BOOTING should fail")
	}
}

func TestTransitionIsExclusive(t *testing.T) {
	m := NewMachine("db", DatabaseTable, Idle)

	var wins atomic.Int32
	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if m.Transition(Syncing) == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	if wins.Load() != 1 {
		t.Errorf("%d goroutines entered SYNCING, want 1", wins.Load())
	}
}

func TestTransitionEmitsEvent(t *testing.T) {
	b := bus.New()
	ch, unsub := b.Subscribe("conversation.", 10)
	defer unsub()

	m := NewMachine("c1", ConversationTable, Idle, WithEvents(b, bus.KindConversationState))
	if err := m.Transition(Loading); err != nil {
		t.Fatal(err)
	}

	select {
	case evt := <-ch:
		change, ok := evt.Payload.(StatusChange)
		if !ok {
			t.Fatalf("payload type = %T, want StatusChange", evt.Payload)
		}
		if change.Name != "c1" || change.From != Idle || change.To != Loading {
			t.Errorf("change = %+v, want c1 IDLE->LOADING", change)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for state change event")
	}
}

func TestInvalidTransitionEmitsNothing(t *testing.T) {
	b := bus.New()
	ch, unsub := b.Subscribe("sync.", 10)
	defer unsub()

	m := NewMachine("db", DatabaseTable, Idle, WithEvents(b, "sync.state"))
	_ = m.Transition(Idle)

	select {
	case evt := <-ch:
		t.Errorf("unexpected event %v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

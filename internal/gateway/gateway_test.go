package gateway_test

import (
	"testing"

	"github.com/wapilot/wapilot-backend/internal/gateway"
)

func TestPublishReachesOnlyOwnListeners(t *testing.T) {
	hub := gateway.NewHub()

	chA := hub.Subscribe("user-a", "listener-1")
	chB := hub.Subscribe("user-b", "listener-1")

	hub.Publish("user-a", gateway.Event{Type: gateway.EventTypeReady})

	select {
	case ev := <-chA:
		if ev.Type != gateway.EventTypeReady {
			t.Fatalf("expected ready event, got %q", ev.Type)
		}
	default:
		t.Fatal("listener under user-a received nothing")
	}

	select {
	case ev := <-chB:
		t.Fatalf("event leaked across users: %+v", ev)
	default:
	}
}

func TestSubscribeIsIdempotent(t *testing.T) {
	hub := gateway.NewHub()

	ch1 := hub.Subscribe("user-a", "listener-1")
	ch2 := hub.Subscribe("user-a", "listener-1")
	if ch1 != ch2 {
		t.Fatal("expected the same channel for a repeated subscribe")
	}
	if got := hub.ListenerCount("user-a"); got != 1 {
		t.Fatalf("expected 1 listener, got %d", got)
	}

	hub.Publish("user-a", gateway.Event{Type: gateway.EventTypeChat})

	if len(ch1) != 1 {
		t.Fatalf("expected exactly one delivery, got %d", len(ch1))
	}
}

func TestPublishWithNoSubscribersIsDropped(t *testing.T) {
	hub := gateway.NewHub()

	// Must not panic or block.
	hub.Publish("nobody-home", gateway.Event{Type: gateway.EventTypeQR})
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	hub := gateway.NewHub()

	ch := hub.Subscribe("user-a", "listener-1")
	hub.Unsubscribe("user-a", "listener-1")

	if _, ok := <-ch; ok {
		t.Fatal("expected channel to be closed after unsubscribe")
	}
	if got := hub.ListenerCount("user-a"); got != 0 {
		t.Fatalf("expected 0 listeners, got %d", got)
	}

	// Unknown ids are a no-op.
	hub.Unsubscribe("user-a", "listener-1")
	hub.Unsubscribe("ghost", "listener-9")
}

func TestSlowListenerDropsInsteadOfBlocking(t *testing.T) {
	hub := gateway.NewHub()

	ch := hub.Subscribe("user-a", "slow")
	for i := 0; i < 100; i++ {
		hub.Publish("user-a", gateway.Event{Type: gateway.EventTypeChat})
	}

	// The buffer holds what it holds; the rest was dropped without
	// blocking the publisher.
	if len(ch) == 0 || len(ch) > 16 {
		t.Fatalf("expected a full buffer at most, got %d", len(ch))
	}
}

type recordingSink struct {
	events []string
}

func (s *recordingSink) Relay(userID string, ev gateway.Event) {
	s.events = append(s.events, userID+"/"+ev.Type)
}

func TestSinksSeeEveryPublish(t *testing.T) {
	sink := &recordingSink{}
	hub := gateway.NewHub(sink)

	hub.Publish("user-a", gateway.Event{Type: gateway.EventTypeQR})
	hub.Publish("user-b", gateway.Event{Type: gateway.EventTypeLogout})

	if len(sink.events) != 2 {
		t.Fatalf("expected 2 relayed events, got %d", len(sink.events))
	}
	if sink.events[0] != "user-a/qr" || sink.events[1] != "user-b/logout" {
		t.Fatalf("unexpected relay order: %v", sink.events)
	}
}

package websocket

import (
	"net/http"
	"testing"
	"time"

	"go.uber.org/zap"
)

func allOnConfig() *HubConfig {
	return &HubConfig{
		BroadcastSettings: true,
		BroadcastMasking:  true,
		BroadcastPTT:      true,
		BroadcastSystem:   true,
		AllowedOrigins:    []string{"*"},
	}
}

func TestShouldBroadcastEvent(t *testing.T) {
	t.Run("AllEnabled", func(t *testing.T) {
		h := NewHub(allOnConfig(), zap.NewNop())
		for _, et := range []EventType{
			EventTypeSettingsUpdated,
			EventTypeMasking,
			EventTypePTTState,
			EventTypeSystemStatus,
			EventTypeConnection,
		} {
			if !h.shouldBroadcastEvent(et) {
				t.Errorf("event %q suppressed despite config", et)
			}
		}
	})

	t.Run("PerTypeToggles", func(t *testing.T) {
		cfg := allOnConfig()
		cfg.BroadcastMasking = false
		h := NewHub(cfg, zap.NewNop())

		if h.shouldBroadcastEvent(EventTypeMasking) {
			t.Error("masking events should be suppressed")
		}
		if !h.shouldBroadcastEvent(EventTypePTTState) {
			t.Error("other event types must be unaffected")
		}
	})

	t.Run("ConnectionAlwaysOn", func(t *testing.T) {
		h := NewHub(&HubConfig{}, zap.NewNop())
		if !h.shouldBroadcastEvent(EventTypeConnection) {
			t.Error("connection events are not gated by config")
		}
	})

	t.Run("NilConfig", func(t *testing.T) {
		h := NewHub(nil, zap.NewNop())
		if h.shouldBroadcastEvent(EventTypeMasking) {
			t.Error("nil config must suppress everything")
		}
	})
}

func TestShouldSendToClient(t *testing.T) {
	h := NewHub(allOnConfig(), zap.NewNop())
	event := Event{Type: EventTypeMasking, Timestamp: time.Now()}

	t.Run("NoSubscriptionGetsEverything", func(t *testing.T) {
		client := &Client{}
		if !h.shouldSendToClient(client, event) {
			t.Error("unsubscribed client should receive all events")
		}
	})

	t.Run("MatchingSubscription", func(t *testing.T) {
		client := &Client{Subscription: &SubscriptionRequest{
			Events: []EventType{EventTypeMasking},
		}}
		if !h.shouldSendToClient(client, event) {
			t.Error("subscribed type should be delivered")
		}
	})

	t.Run("NonMatchingSubscription", func(t *testing.T) {
		client := &Client{Subscription: &SubscriptionRequest{
			Events: []EventType{EventTypePTTState},
		}}
		if h.shouldSendToClient(client, event) {
			t.Error("event outside the subscription should be filtered")
		}
	})
}

func TestCheckOrigin(t *testing.T) {
	newRequest := func(origin string) *http.Request {
		r, _ := http.NewRequest(http.MethodGet, "/ws", nil)
		if origin != "" {
			r.Header.Set("Origin", origin)
		}
		return r
	}

	t.Run("Wildcard", func(t *testing.T) {
		h := NewHub(allOnConfig(), zap.NewNop())
		if !h.checkOrigin(newRequest("http://anywhere.example")) {
			t.Error("wildcard must allow any origin")
		}
	})

	t.Run("ExactMatch", func(t *testing.T) {
		cfg := allOnConfig()
		cfg.AllowedOrigins = []string{"http://localhost:1420"}
		h := NewHub(cfg, zap.NewNop())

		if !h.checkOrigin(newRequest("http://localhost:1420")) {
			t.Error("listed origin rejected")
		}
		if h.checkOrigin(newRequest("http://evil.example")) {
			t.Error("unlisted origin accepted")
		}
	})

	t.Run("EmptyListRejectsAll", func(t *testing.T) {
		cfg := allOnConfig()
		cfg.AllowedOrigins = nil
		h := NewHub(cfg, zap.NewNop())
		if h.checkOrigin(newRequest("http://localhost:1420")) {
			t.Error("empty allow list must reject")
		}
	})
}

func TestBroadcastEventNeverBlocks(t *testing.T) {
	h := NewHub(allOnConfig(), zap.NewNop())

	// No Run loop is draining the channel; filling past capacity must
	// drop instead of deadlocking.
	for i := 0; i < 1000; i++ {
		h.BroadcastEvent(Event{Type: EventTypeMasking, Timestamp: time.Now()})
	}
}

package notifiers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/protocell/autopoiesim/internal/autopoiesis"
)

func TestWebhookNotifier_PostsEvent(t *testing.T) {
	var gotBody autopoiesis.TickEvent
	var gotContentType, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewWebhookNotifier("hook-1", srv.URL)
	n.SetHeader("Authorization", "Bearer token")
	if n.ID() != "hook-1" || n.Type() != "webhook" {
		t.Fatalf("unexpected identity: %s/%s", n.ID(), n.Type())
	}

	event := autopoiesis.TickEvent{
		SimID:  "sim-1",
		Tick:   12,
		Counts: autopoiesis.Counts{Links: 3, Bonds: 2},
	}
	if err := n.Notify(context.Background(), event); err != nil {
		t.Fatalf("Notify failed: %v", err)
	}

	if gotContentType != "application/json" {
		t.Errorf("unexpected content type %q", gotContentType)
	}
	if gotAuth != "Bearer token" {
		t.Errorf("custom header not sent, got %q", gotAuth)
	}
	if gotBody.SimID != "sim-1" || gotBody.Tick != 12 || gotBody.Counts.Links != 3 {
		t.Errorf("unexpected payload: %+v", gotBody)
	}
}

func TestWebhookNotifier_NonSuccessStatusIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	n := NewWebhookNotifier("hook", srv.URL)
	if err := n.Notify(context.Background(), autopoiesis.TickEvent{Tick: 1}); err == nil {
		t.Error("expected error for 502 response")
	}
}

func TestWebhookNotifier_RespectsContextCancellation(t *testing.T) {
	blocked := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-blocked
	}))
	defer srv.Close()
	defer close(blocked)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	n := NewWebhookNotifier("hook", srv.URL)
	if err := n.Notify(ctx, autopoiesis.TickEvent{Tick: 1}); err == nil {
		t.Error("expected error from cancelled context")
	}
}

package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"pagepulse/config"
	"pagepulse/model"
)

func testBatch() model.Batch {
	return model.Batch{
		SessionID: "sess-1",
		UserID:    "user-1",
		Events: []model.Event{
			{ID: "1", Name: "checkout.start", SessionID: "sess-1", Timestamp: time.Now().UTC()},
		},
		Metadata: model.BatchMetadata{
			FlushTime:   time.Now().UTC(),
			EventCount:  1,
			Environment: "debug",
		},
	}
}

func TestSendReliableSuccess(t *testing.T) {
	var got model.Batch
	var sessionHeader, customHeader string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sessionHeader = r.Header.Get("X-Session-ID")
		customHeader = r.Header.Get("X-API-Key")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	tr, err := newHTTP(config.TransportConfig{
		EventsURL: srv.URL,
		Headers:   map[string]string{"X-API-Key": "secret"},
	}, time.Second, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := tr.SendReliable(context.Background(), model.ChannelEvents, testBatch()); err != nil {
		t.Fatalf("send: %v", err)
	}
	if sessionHeader != "sess-1" {
		t.Fatalf("X-Session-ID = %q", sessionHeader)
	}
	if customHeader != "secret" {
		t.Fatalf("configured header not sent")
	}
	if got.Metadata.EventCount != 1 || len(got.Events) != 1 || got.Events[0].Name != "checkout.start" {
		t.Fatalf("payload shape mismatch: %+v", got)
	}
}

func TestSendReliableNonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	tr, err := newHTTP(config.TransportConfig{EventsURL: srv.URL}, time.Second, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := tr.SendReliable(context.Background(), model.ChannelEvents, testBatch()); err == nil {
		t.Fatal("500 response must be a delivery failure")
	}
}

func TestSendBestEffortOutcome(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	tr, err := newHTTP(config.TransportConfig{EventsURL: srv.URL}, time.Second, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !tr.SendBestEffort(model.ChannelErrors, testBatch()) {
		t.Fatal("best-effort against a live server should be accepted")
	}
	srv.Close()
	if tr.SendBestEffort(model.ChannelErrors, testBatch()) {
		t.Fatal("best-effort against a dead server should report false")
	}
}

func TestChannelEndpointFallback(t *testing.T) {
	tr, err := newHTTP(config.TransportConfig{EventsURL: "https://collector.example.com/v1/events"}, time.Second, nil)
	if err != nil {
		t.Fatal(err)
	}
	if tr.endpoints[model.ChannelErrors] != tr.endpoints[model.ChannelEvents] {
		t.Fatal("errors channel should fall back to the events endpoint")
	}

	tr, err = newHTTP(config.TransportConfig{
		EventsURL: "https://collector.example.com/v1/events",
		ErrorsURL: "https://collector.example.com/v1/errors",
	}, time.Second, nil)
	if err != nil {
		t.Fatal(err)
	}
	if tr.endpoints[model.ChannelErrors] == tr.endpoints[model.ChannelEvents] {
		t.Fatal("explicit errors endpoint ignored")
	}
}

func TestDriverSwitch(t *testing.T) {
	if _, err := New(config.TransportConfig{Driver: "carrier-pigeon"}, time.Second, nil); err == nil {
		t.Fatal("unknown driver must be rejected")
	}
	if _, err := New(config.TransportConfig{Driver: "kafka"}, time.Second, nil); err == nil {
		t.Fatal("kafka driver without brokers must be rejected")
	}
}

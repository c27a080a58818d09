package notifiers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHTTPNotifierSuccess(t *testing.T) {
	var got Event
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if h := r.Header.Get("X-Test"); h != "1" {
			t.Errorf("missing header, got %s", h)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n, err := newHTTPNotifier(context.Background(), NotifierConfig{
		ID:   "hook",
		Type: TypeHTTP,
		HTTP: &HTTPConfig{URL: srv.URL, Method: http.MethodPost, Headers: map[string]string{"X-Test": "1"}, TimeoutSeconds: 2},
	}, nil)
	if err != nil {
		t.Fatalf("newHTTPNotifier: %v", err)
	}

	if err := n.Notify(context.Background(), Event{Type: EventStatusChanged, StatusID: "s1"}); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if got.StatusID != "s1" {
		t.Fatalf("server did not receive event, got %+v", got)
	}
}

func TestHTTPNotifierErrorOnNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusBadRequest)
	}))
	defer srv.Close()

	n, err := newHTTPNotifier(context.Background(), NotifierConfig{
		ID:   "hook",
		Type: TypeHTTP,
		HTTP: &HTTPConfig{URL: srv.URL, Method: http.MethodPost, TimeoutSeconds: 1},
	}, nil)
	if err != nil {
		t.Fatalf("newHTTPNotifier: %v", err)
	}
	if err := n.Notify(context.Background(), Event{}); err == nil {
		t.Fatalf("expected error on non-2xx response")
	}
}

func TestHTTPNotifierRequiresConfig(t *testing.T) {
	if _, err := newHTTPNotifier(context.Background(), NotifierConfig{ID: "hook", Type: TypeHTTP}, nil); err == nil {
		t.Fatalf("expected error for missing http block")
	}
}

package alerting

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func testAlert() Alert {
	return Alert{
		Symbol:       "bitcoin",
		AssetType:    "crypto",
		Price:        decimal.NewFromInt(106),
		ChangePct:    decimal.NewFromInt(6),
		ThresholdPct: decimal.NewFromInt(5),
		Direction:    "up",
		At:           time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestWebhookNotifierSuccess(t *testing.T) {
	var received map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Fatalf("decode webhook body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL, time.Second, testLogger())
	if err := n.Notify(context.Background(), testAlert()); err != nil {
		t.Fatalf("webhook notify should succeed: %v", err)
	}

	text, _ := received["text"].(string)
	if !strings.Contains(text, "BITCOIN") {
		t.Fatalf("payload text should mention the asset: %q", text)
	}
	if _, ok := received["attachments"]; !ok {
		t.Fatal("payload should carry attachments")
	}
}

func TestWebhookNotifierHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL, time.Second, testLogger())
	if err := n.Notify(context.Background(), testAlert()); err == nil {
		t.Fatal("HTTP 502 should surface as an error")
	}
}

func TestTelegramNotifierSuccess(t *testing.T) {
	received := make(map[string]string)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "sendMessage") {
			t.Fatalf("path should contain sendMessage, got %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Fatalf("decode request body: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	defer srv.Close()

	n := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())
	if err := n.Notify(context.Background(), testAlert()); err != nil {
		t.Fatalf("telegram notify should succeed: %v", err)
	}

	if received["chat_id"] != "chat" {
		t.Fatalf("unexpected chat_id: %#v", received)
	}
	if received["text"] == "" {
		t.Fatal("text should be non-empty")
	}
}

func TestTelegramNotifierNotOK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": false})
	}))
	defer srv.Close()

	n := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())
	if err := n.Notify(context.Background(), testAlert()); err == nil {
		t.Fatal("ok=false should surface as an error")
	}
}

type stubNotifier struct {
	name  string
	err   error
	calls int
}

func (s *stubNotifier) Name() string { return s.name }

func (s *stubNotifier) Notify(ctx context.Context, alert Alert) error {
	s.calls++
	return s.err
}

func TestDispatcherIsolatesChannelFailures(t *testing.T) {
	broken := &stubNotifier{name: "email", err: errors.New("smtp down")}
	working := &stubNotifier{name: "console"}
	also := &stubNotifier{name: "webhook"}

	d := NewDispatcher(testLogger(), broken, working, also)
	delivered := d.Dispatch(context.Background(), testAlert())

	if broken.calls != 1 || working.calls != 1 || also.calls != 1 {
		t.Fatalf("every channel must be attempted: %d %d %d", broken.calls, working.calls, also.calls)
	}
	if len(delivered) != 2 {
		t.Fatalf("expected 2 delivered channels, got %v", delivered)
	}
	for _, name := range delivered {
		if name == "email" {
			t.Fatal("failed channel must not be reported as delivered")
		}
	}
}

func TestRenderMessageContents(t *testing.T) {
	msg := renderMessage(testAlert())
	for _, want := range []string{"PRICE ALERT", "BITCOIN", "$106.00", "6.00%", "±5.0%"} {
		if !strings.Contains(msg, want) {
			t.Fatalf("message should contain %q:\n%s", want, msg)
		}
	}
}

package alerting

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"pump-dump-alerts/internal/detector"
)

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func sampleEvent() detector.AlertEvent {
	return detector.AlertEvent{
		Symbol:        "BTCUSDT",
		Direction:     detector.DirectionPump,
		Window:        3 * time.Minute,
		Return:        decimal.RequireFromString("0.004"),
		PriceFrom:     decimal.RequireFromString("50000"),
		PriceTo:       decimal.RequireFromString("50200"),
		WindowVolume:  decimal.RequireFromString("75000"),
		AverageVolume: decimal.RequireFromString("25000"),
		SpikeRatio:    decimal.RequireFromString("3"),
		SpreadPct:     decimal.RequireFromString("0.02"),
		BidNotional:   decimal.RequireFromString("120000"),
		BestBid:       decimal.RequireFromString("50195"),
		BestAsk:       decimal.RequireFromString("50205"),
		Time:          time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
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

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())

	if err := notifier.Notify(context.Background(), sampleEvent()); err != nil {
		t.Fatalf("Notify should succeed: %v", err)
	}

	if received["chat_id"] != "chat" {
		t.Fatalf("unexpected chat_id: %#v", received)
	}
	if received["parse_mode"] != "HTML" {
		t.Fatalf("unexpected parse_mode: %#v", received)
	}
	if !strings.Contains(received["text"], "PUMP ALERT") {
		t.Fatalf("text should carry the pump header, got %q", received["text"])
	}
	if !strings.Contains(received["text"], "BTCUSDT") {
		t.Fatalf("text should carry the symbol, got %q", received["text"])
	}
}

func TestTelegramNotifierRejectsNotOK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": false})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())

	if err := notifier.Notify(context.Background(), sampleEvent()); err == nil {
		t.Fatal("ok=false should be an error")
	}
}

func TestTelegramNotifierRejectsHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())

	if err := notifier.Notify(context.Background(), sampleEvent()); err == nil {
		t.Fatal("non-2xx status should be an error")
	}
}

func TestRenderTelegramDump(t *testing.T) {
	event := sampleEvent()
	event.Direction = detector.DirectionDump
	event.Return = decimal.RequireFromString("-0.006")
	event.OI = &detector.OIChange{
		From: decimal.RequireFromString("1000"),
		To:   decimal.RequireFromString("1200"),
		Pct:  decimal.RequireFromString("20"),
	}

	text := renderTelegram(event)

	if !strings.Contains(text, "DUMP ALERT") {
		t.Fatalf("missing dump header: %q", text)
	}
	if !strings.Contains(text, "0.6%") {
		t.Fatalf("return should render as absolute percent: %q", text)
	}
	if !strings.Contains(text, "3m") {
		t.Fatalf("window should render in minutes: %q", text)
	}
	if !strings.Contains(text, "OI change: 20.0%") {
		t.Fatalf("OI context should render when present: %q", text)
	}
}

func TestRenderTelegramUnboundedSpike(t *testing.T) {
	event := sampleEvent()
	event.SpikeUnbound = true

	if text := renderTelegram(event); !strings.Contains(text, "x∞") {
		t.Fatalf("unbounded spike should render as infinity: %q", text)
	}
}

func TestRenderConsoleWithoutOI(t *testing.T) {
	text := renderConsole(sampleEvent())

	if !strings.Contains(text, strings.Repeat("=", 80)) {
		t.Fatalf("console alert should be boxed: %q", text)
	}
	if !strings.Contains(text, "insufficient history") {
		t.Fatalf("missing OI falls back to a placeholder: %q", text)
	}
}

type stubNotifier struct {
	mu     sync.Mutex
	events []detector.AlertEvent
	err    error
	done   chan struct{}
}

func (s *stubNotifier) Notify(_ context.Context, event detector.AlertEvent) error {
	s.mu.Lock()
	s.events = append(s.events, event)
	s.mu.Unlock()
	if s.done != nil {
		close(s.done)
	}
	return s.err
}

type stubRecorder struct {
	mu    sync.Mutex
	saved int
	done  chan struct{}
}

func (s *stubRecorder) SaveAlert(_ context.Context, _ detector.AlertEvent) error {
	s.mu.Lock()
	s.saved++
	s.mu.Unlock()
	if s.done != nil {
		close(s.done)
	}
	return nil
}

func TestDispatcherFansOutWithoutBlocking(t *testing.T) {
	notifier := &stubNotifier{done: make(chan struct{})}
	recorder := &stubRecorder{done: make(chan struct{})}
	dispatcher := NewDispatcher(DispatcherOptions{}, []Notifier{notifier}, recorder, testLogger())

	dispatcher.Emit(sampleEvent())

	select {
	case <-notifier.done:
	case <-time.After(2 * time.Second):
		t.Fatal("notifier was never called")
	}
	select {
	case <-recorder.done:
	case <-time.After(2 * time.Second):
		t.Fatal("recorder was never called")
	}

	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	if len(notifier.events) != 1 || notifier.events[0].Symbol != "BTCUSDT" {
		t.Fatalf("unexpected delivered events: %#v", notifier.events)
	}
}

package telemetry

import (
	"context"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"
)

// gateHandler blocks the drain goroutine until released so the buffer
// can be filled deterministically.
type gateHandler struct {
	started chan struct{}
	release chan struct{}
	handled atomic.Int64
}

func (h *gateHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *gateHandler) Handle(_ context.Context, _ slog.Record) error {
	if h.handled.Add(1) == 1 {
		close(h.started)
	}
	<-h.release
	return nil
}

func (h *gateHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *gateHandler) WithGroup(string) slog.Handler      { return h }

func TestSinkDrainsBufferedEvents(t *testing.T) {
	handler := &gateHandler{started: make(chan struct{}), release: make(chan struct{})}
	close(handler.release)
	sink := NewSink(slog.New(handler), 8)

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		sink.Emit(ctx, Event{Name: "unit_sold", PlayerID: "p1", At: time.Now()})
	}
	sink.Close()

	if got := handler.handled.Load(); got != 5 {
		t.Fatalf("handled = %d, want 5", got)
	}
	if got := sink.Dropped(); got != 0 {
		t.Fatalf("dropped = %d, want 0", got)
	}
}

func TestSinkDropsWhenBufferFull(t *testing.T) {
	handler := &gateHandler{started: make(chan struct{}), release: make(chan struct{})}
	sink := NewSink(slog.New(handler), 2)

	ctx := context.Background()

	// One event is taken by the drain goroutine and held in Handle.
	sink.Emit(ctx, Event{Name: "battle_resolved"})
	select {
	case <-handler.started:
	case <-time.After(2 * time.Second):
		t.Fatal("drain goroutine never picked up the first event")
	}

	// Fill the buffer, then overflow it.
	sink.Emit(ctx, Event{Name: "battle_resolved"})
	sink.Emit(ctx, Event{Name: "battle_resolved"})
	sink.Emit(ctx, Event{Name: "battle_resolved"})
	sink.Emit(ctx, Event{Name: "battle_resolved"})

	if got := sink.Dropped(); got != 2 {
		t.Fatalf("dropped = %d, want 2", got)
	}

	close(handler.release)
	sink.Close()

	if got := handler.handled.Load(); got != 3 {
		t.Fatalf("handled = %d, want 3", got)
	}
}

func TestSinkCloseIsIdempotent(t *testing.T) {
	handler := &gateHandler{started: make(chan struct{}), release: make(chan struct{})}
	close(handler.release)
	sink := NewSink(slog.New(handler), 4)
	sink.Close()
	sink.Close()
}

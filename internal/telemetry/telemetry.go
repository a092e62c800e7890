// Package telemetry is a fire-and-forget event sink. Emission never blocks
// a gameplay action and never surfaces an error to the caller; when the
// buffer is full the event is dropped and counted.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

type Event struct {
	Name     string         `json:"name"`
	PlayerID string         `json:"player_id"`
	At       time.Time      `json:"at"`
	Fields   map[string]any `json:"fields,omitempty"`
}

type Sink struct {
	log     *slog.Logger
	ch      chan Event
	dropped atomic.Int64
	wg      sync.WaitGroup
	once    sync.Once
}

func NewSink(logger *slog.Logger, buffer int) *Sink {
	if logger == nil {
		logger = slog.Default()
	}
	if buffer <= 0 {
		buffer = 256
	}
	s := &Sink{
		log: logger,
		ch:  make(chan Event, buffer),
	}
	s.wg.Add(1)
	go s.drain()
	return s
}

func (s *Sink) drain() {
	defer s.wg.Done()
	for ev := range s.ch {
		s.log.Info("telemetry event",
			"event", ev.Name,
			"player_id", ev.PlayerID,
			"at", ev.At,
			"fields", ev.Fields,
		)
	}
}

// Emit enqueues the event without blocking. A full buffer drops the event.
func (s *Sink) Emit(_ context.Context, ev Event) {
	select {
	case s.ch <- ev:
	default:
		s.dropped.Add(1)
	}
}

func (s *Sink) Dropped() int64 {
	return s.dropped.Load()
}

// Close stops the drain goroutine after flushing buffered events.
func (s *Sink) Close() {
	s.once.Do(func() {
		close(s.ch)
		s.wg.Wait()
	})
}

package clock

import (
	"testing"
	"time"
)

type Fake struct {
	now time.Time
}

func NewFake(start time.Time) *Fake {
	return &Fake{now: start}
}

func (f *Fake) Now() time.Time {
	return f.now
}

func (f *Fake) Advance(d time.Duration) {
	f.now = f.now.Add(d)
}

func TestRealNow(t *testing.T) {
	var c Real
	if c.Now().IsZero() {
		t.Fatalf("expected non-zero time")
	}
}

func TestFakeAdvance(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c := NewFake(start)
	if !c.Now().Equal(start) {
		t.Fatalf("expected start time")
	}
	c.Advance(90 * time.Minute)
	want := start.Add(90 * time.Minute)
	if !c.Now().Equal(want) {
		t.Fatalf("expected %v got %v", want, c.Now())
	}
}

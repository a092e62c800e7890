package game

import (
	"math"
	"testing"
	"time"

	"cartel/internal/catalog"
)

func TestHourBucketAlignment(t *testing.T) {
	base := time.Date(2026, 5, 10, 14, 0, 0, 0, time.UTC)
	for _, offset := range []time.Duration{0, time.Second, 13 * time.Minute, 59*time.Minute + 59*time.Second} {
		if got := HourBucket(base.Add(offset)); got != base.Unix() {
			t.Fatalf("offset %v: bucket %d want %d", offset, got, base.Unix())
		}
	}
	next := base.Add(time.Hour)
	if HourBucket(next) == HourBucket(base) {
		t.Fatalf("next hour must land in a new bucket")
	}
}

func TestEventStableWithinHour(t *testing.T) {
	now := time.Date(2026, 5, 10, 14, 7, 0, 0, time.UTC)
	first := EventFor(now)
	for _, offset := range []time.Duration{time.Minute, 20 * time.Minute, 52 * time.Minute} {
		again := EventFor(now.Truncate(time.Hour).Add(offset))
		if again != first {
			t.Fatalf("event changed within hour: %+v vs %+v", again, first)
		}
	}
}

func TestEventVariesAcrossHours(t *testing.T) {
	// Identical events for every hour of two full days would mean the hash
	// is not feeding the selection.
	n := len(catalog.MarketEvents())
	seen := map[int]bool{}
	start := time.Date(2026, 5, 10, 0, 0, 0, 0, time.UTC)
	for h := 0; h < 48; h++ {
		seen[EventIndexFor(HourBucket(start.Add(time.Duration(h)*time.Hour)), n)] = true
	}
	if len(seen) < 2 {
		t.Fatalf("expected multiple distinct events across 48 hours, saw %d", len(seen))
	}
}

func TestEventIndexRecomputable(t *testing.T) {
	bucket := HourBucket(time.Date(2024, 1, 1, 5, 0, 0, 0, time.UTC))
	n := len(catalog.MarketEvents())
	first := EventIndexFor(bucket, n)
	for i := 0; i < 10; i++ {
		if EventIndexFor(bucket, n) != first {
			t.Fatalf("historical event must recompute identically")
		}
	}
	if first < 0 || first >= n {
		t.Fatalf("index %d out of range [0,%d)", first, n)
	}
}

func TestPriceForAppliesMultiplier(t *testing.T) {
	now := time.Date(2026, 5, 10, 14, 7, 0, 0, time.UTC)
	ev := EventFor(now)
	affected, err := PriceFor(ev.Product, now)
	if err != nil {
		t.Fatalf("price for %s: %v", ev.Product, err)
	}
	p, err := catalog.ProductByKey(ev.Product)
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	want := int64(math.Floor(float64(p.BasePrice) * ev.Multiplier))
	if want < 1 {
		want = 1
	}
	if affected.Price != want {
		t.Fatalf("price %d want %d (base %d x %v)", affected.Price, want, p.BasePrice, ev.Multiplier)
	}
	if affected.Event != ev.Name {
		t.Fatalf("price view should name the active event")
	}

	// Every other product trades at base price.
	for _, key := range catalog.ProductKeys() {
		if key == ev.Product {
			continue
		}
		pv, err := PriceFor(key, now)
		if err != nil {
			t.Fatalf("price for %s: %v", key, err)
		}
		base, _ := catalog.ProductByKey(key)
		if pv.Price != base.BasePrice {
			t.Fatalf("%s: price %d want base %d", key, pv.Price, base.BasePrice)
		}
		if pv.Event != "" {
			t.Fatalf("%s should not carry an event", key)
		}
	}
}

func TestPriceForUnknownProduct(t *testing.T) {
	if _, err := PriceFor("oregano", time.Now()); err == nil {
		t.Fatalf("expected unknown product to fail")
	}
}

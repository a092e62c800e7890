package game

import (
	"testing"
	"time"

	"cartel/internal/catalog"
)

func labTestProduct() (catalog.Product, error) {
	return catalog.ProductByKey("weed")
}

var anchor = time.Date(2026, 5, 10, 9, 30, 0, 0, time.UTC)

func TestAccruedProductionClampsAtCapacity(t *testing.T) {
	for _, elapsed := range []time.Duration{time.Hour, 2 * time.Hour, 25 * time.Hour, 400 * time.Hour} {
		got := AccruedProduction(120, 0, 100, anchor, anchor.Add(elapsed))
		if got != 100 {
			t.Fatalf("elapsed %v: got %d want capacity 100", elapsed, got)
		}
	}
}

func TestAccruedProductionBelowCapacity(t *testing.T) {
	// 40 units/hour for 30 minutes is exactly 20 units.
	got := AccruedProduction(40, 0, 1000, anchor, anchor.Add(30*time.Minute))
	if got != 20 {
		t.Fatalf("got %d want 20", got)
	}

	// floor semantics: 7 units/hour for 1000 seconds = floor(7000/3600) = 1.
	got = AccruedProduction(7, 0, 1000, anchor, anchor.Add(1000*time.Second))
	if got != 1 {
		t.Fatalf("got %d want 1", got)
	}

	// Monotonically non-decreasing in elapsed time.
	prev := int64(-1)
	for sec := 0; sec < 3600; sec += 37 {
		got := AccruedProduction(40, 0, 1000, anchor, anchor.Add(time.Duration(sec)*time.Second))
		if got < prev {
			t.Fatalf("accrual decreased at %ds: %d after %d", sec, got, prev)
		}
		prev = got
	}
}

func TestAccruedProductionZeroElapsed(t *testing.T) {
	if got := AccruedProduction(500, 0, 1000, anchor, anchor); got != 0 {
		t.Fatalf("zero elapsed should accrue nothing, got %d", got)
	}
	// A clock that went backwards must not produce negative accrual.
	if got := AccruedProduction(500, 0, 1000, anchor, anchor.Add(-time.Hour)); got != 0 {
		t.Fatalf("negative elapsed should accrue nothing, got %d", got)
	}
}

func TestPendingCountsAgainstCapacity(t *testing.T) {
	// A lab sitting on 90 pending units with capacity 100 can only accrue
	// 10 more, no matter how long it waits.
	got := AccruedProduction(40, 90, 100, anchor, anchor.Add(10*time.Hour))
	if got != 100 {
		t.Fatalf("got %d want 100", got)
	}
	got = AccruedProduction(40, 90, 100, anchor, anchor)
	if got != 90 {
		t.Fatalf("pending alone should survive, got %d", got)
	}
}

func TestSplitCollectLeftover(t *testing.T) {
	// 10 units/hour, collected exactly one hour ago, capacity 100,
	// stash at 96/100. Exactly 4 units move, 6 stay pending.
	accrued := AccruedProduction(10, 0, 100, anchor, anchor.Add(time.Hour))
	if accrued != 10 {
		t.Fatalf("accrued %d want 10", accrued)
	}
	collected, leftover := SplitCollect(accrued, 100-96)
	if collected != 4 || leftover != 6 {
		t.Fatalf("got collected=%d leftover=%d want 4/6", collected, leftover)
	}

	collected, leftover = SplitCollect(10, 50)
	if collected != 10 || leftover != 0 {
		t.Fatalf("roomy stash should take everything, got %d/%d", collected, leftover)
	}
	collected, leftover = SplitCollect(10, -3)
	if collected != 0 || leftover != 10 {
		t.Fatalf("overfull stash should take nothing, got %d/%d", collected, leftover)
	}
}

func TestCollectTwiceImmediately(t *testing.T) {
	now := anchor.Add(time.Hour)
	accrued := AccruedProduction(40, 0, 1000, anchor, now)
	if accrued != 40 {
		t.Fatalf("first collect accrued %d want 40", accrued)
	}
	// After collecting everything the checkpoint moves to now and pending
	// is zero; a second collect at the same instant yields nothing.
	again := AccruedProduction(40, 0, 1000, now, now)
	if again != 0 {
		t.Fatalf("second immediate collect accrued %d want 0", again)
	}
}

func TestCustomerPoolFullAfterWindow(t *testing.T) {
	for _, elapsed := range []time.Duration{time.Hour, 90 * time.Minute, 48 * time.Hour} {
		got := CustomerPool(0, 80, anchor, anchor.Add(elapsed))
		if got != 80 {
			t.Fatalf("elapsed %v: got %d want 80", elapsed, got)
		}
	}
}

func TestCustomerPoolLinearRegen(t *testing.T) {
	// Half the window restores half the max on top of the remainder.
	got := CustomerPool(10, 80, anchor, anchor.Add(30*time.Minute))
	if got != 50 {
		t.Fatalf("got %d want 50", got)
	}
	// Never exceeds max even with a large remainder.
	got = CustomerPool(70, 80, anchor, anchor.Add(30*time.Minute))
	if got != 80 {
		t.Fatalf("got %d want 80 (clamped)", got)
	}
	// A player who never sold sees a full pool.
	got = CustomerPool(0, 80, time.Time{}, anchor)
	if got != 80 {
		t.Fatalf("got %d want 80 for fresh player", got)
	}
}

func TestShipmentReady(t *testing.T) {
	transit := int64(3600)
	if ShipmentReady(anchor, transit, anchor.Add(59*time.Minute)) {
		t.Fatalf("lane should not be ready before transit completes")
	}
	if !ShipmentReady(anchor, transit, anchor.Add(time.Hour)) {
		t.Fatalf("lane should be ready exactly at transit end")
	}
	if !ShipmentReady(time.Time{}, transit, anchor) {
		t.Fatalf("never-used lane should be ready")
	}
	want := anchor.Add(time.Hour)
	if got := ShipmentReadyAt(anchor, transit); !got.Equal(want) {
		t.Fatalf("ready at %v want %v", got, want)
	}
}

func TestSettledDailyCount(t *testing.T) {
	noon := time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)
	if got := SettledDailyCount(5, noon, noon.Add(2*time.Hour)); got != 5 {
		t.Fatalf("same day should keep counter, got %d", got)
	}
	// Crossing UTC midnight resets, even one second after.
	nextDay := time.Date(2026, 5, 11, 0, 0, 1, 0, time.UTC)
	if got := SettledDailyCount(5, noon, nextDay); got != 0 {
		t.Fatalf("new day should reset counter, got %d", got)
	}
	if got := SettledDailyCount(5, time.Time{}, noon); got != 0 {
		t.Fatalf("zero checkpoint should reset counter, got %d", got)
	}
	// 23:59 to 00:01 is a reset; 00:01 to 23:59 same day is not.
	late := time.Date(2026, 5, 10, 23, 59, 0, 0, time.UTC)
	early := time.Date(2026, 5, 11, 0, 1, 0, 0, time.UTC)
	if got := SettledDailyCount(3, late, early); got != 0 {
		t.Fatalf("midnight boundary should reset, got %d", got)
	}
}

func TestLabUnitsPerHour(t *testing.T) {
	p, err := labTestProduct()
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	base, err := LabUnitsPerHour(p, 1)
	if err != nil {
		t.Fatalf("level 1: %v", err)
	}
	if base != p.UnitsPerHour {
		t.Fatalf("level 1 rate %d want %d", base, p.UnitsPerHour)
	}
	if _, err := LabUnitsPerHour(p, 99); err == nil {
		t.Fatalf("expected invalid production level to fail")
	}
}

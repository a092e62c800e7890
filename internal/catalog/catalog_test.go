package catalog

import "testing"

func TestProductLookup(t *testing.T) {
	p, err := ProductByKey("weed")
	if err != nil {
		t.Fatalf("expected weed in catalog: %v", err)
	}
	if p.BasePrice <= 0 || p.UnitsPerHour <= 0 {
		t.Fatalf("weed has degenerate economics: %+v", p)
	}

	if _, err := ProductByKey("oregano"); err == nil {
		t.Fatalf("expected unknown product to fail")
	}
}

func TestLabLevelsMonotonic(t *testing.T) {
	var prev int64
	for lvl := 1; lvl <= MaxLabLevel(); lvl++ {
		cap, err := LabCapacity(lvl)
		if err != nil {
			t.Fatalf("level %d: %v", lvl, err)
		}
		if cap <= prev {
			t.Fatalf("capacity must grow per level: level %d has %d after %d", lvl, cap, prev)
		}
		prev = cap
	}
	if _, err := LabCapacity(0); err == nil {
		t.Fatalf("expected level 0 to be rejected")
	}
	if _, err := LabCapacity(MaxLabLevel() + 1); err == nil {
		t.Fatalf("expected out-of-range level to be rejected")
	}
}

func TestStashLevelsMonotonic(t *testing.T) {
	var prev int64
	for lvl := 1; lvl <= MaxStashLevel(); lvl++ {
		cap, err := StashCapacity(lvl)
		if err != nil {
			t.Fatalf("level %d: %v", lvl, err)
		}
		if cap <= prev {
			t.Fatalf("stash capacity must grow per level")
		}
		prev = cap
	}
}

func TestShippingMethodLevels(t *testing.T) {
	m, err := MethodByKey("van")
	if err != nil {
		t.Fatalf("expected van in catalog: %v", err)
	}
	if len(m.CapacityLevels) != len(m.CapacityCosts) {
		t.Fatalf("capacity levels and costs out of sync for %s", m.Key)
	}
	if len(m.SpeedSeconds) != len(m.SpeedCosts) {
		t.Fatalf("speed levels and costs out of sync for %s", m.Key)
	}
	// Higher speed levels must ship faster.
	for i := 1; i < len(m.SpeedSeconds); i++ {
		if m.SpeedSeconds[i] >= m.SpeedSeconds[i-1] {
			t.Fatalf("speed level %d is not faster than %d", i+1, i)
		}
	}
	if _, err := MethodByKey("submarine"); err == nil {
		t.Fatalf("expected unknown method to fail")
	}
}

func TestMarketEventsReferenceKnownProducts(t *testing.T) {
	evs := MarketEvents()
	if len(evs) == 0 {
		t.Fatalf("expected at least one market event")
	}
	for _, ev := range evs {
		if _, err := ProductByKey(ev.Product); err != nil {
			t.Fatalf("event %q references unknown product %q", ev.Name, ev.Product)
		}
		if ev.Multiplier <= 0 {
			t.Fatalf("event %q has non-positive multiplier", ev.Name)
		}
	}
}

func TestGearLookup(t *testing.T) {
	g, err := GearByKey("kevlar_vest")
	if err != nil {
		t.Fatalf("expected kevlar_vest in catalog: %v", err)
	}
	if g.Protection <= 0 {
		t.Fatalf("kevlar vest should add protection")
	}
	if _, err := GearByKey("rocket_launcher"); err == nil {
		t.Fatalf("expected unknown gear to fail")
	}
}

package game

import (
	"fmt"
	"time"

	"cartel/internal/catalog"
)

// The accrual functions below are pure: stored checkpoints plus a caller
// supplied "now" in, derived quantities out. Nothing here touches storage,
// and there is no background sweep anywhere; state settles lazily whenever
// a player record is next read or acted on.

// LabUnitsPerHour is the output rate of a lab producing the given product
// at a 1-based production level.
func LabUnitsPerHour(p catalog.Product, productionLevel int) (int64, error) {
	mult, err := catalog.LabRateMult(productionLevel)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrCorruptState, err)
	}
	return p.UnitsPerHour * mult, nil
}

// AccruedProduction computes the units a lab has produced since its last
// collection, clamped to [0, capacity]. pending units left behind by a
// capacity-limited earlier collect count against the same cap, so a full
// lab stops producing rather than discarding output.
func AccruedProduction(unitsPerHour, pending, capacity int64, lastCollected, now time.Time) int64 {
	if capacity <= 0 {
		return 0
	}
	elapsed := int64(now.Sub(lastCollected) / time.Second)
	if elapsed < 0 {
		elapsed = 0
	}
	accrued := pending + unitsPerHour*elapsed/3600
	if accrued > capacity {
		return capacity
	}
	return accrued
}

// SplitCollect divides an accrued amount into the portion that fits the
// remaining stash capacity and the leftover that stays pending on the lab.
func SplitCollect(accrued, stashRoom int64) (collected, leftover int64) {
	if stashRoom < 0 {
		stashRoom = 0
	}
	if accrued <= stashRoom {
		return accrued, 0
	}
	return stashRoom, accrued - stashRoom
}

// CustomerPool computes the replenished customer count: linear regeneration
// from the post-sale remainder up to max over one hour since the last sale.
func CustomerPool(remaining, max int64, lastSale, now time.Time) int64 {
	if max <= 0 {
		return 0
	}
	if lastSale.IsZero() {
		return max
	}
	elapsed := int64(now.Sub(lastSale) / time.Second)
	if elapsed < 0 {
		elapsed = 0
	}
	window := int64(CustomerPoolWindow / time.Second)
	if elapsed >= window {
		return max
	}
	pool := remaining + elapsed*max/window
	if pool > max {
		return max
	}
	return pool
}

// ShipmentReadyAt returns the instant a lane may ship again.
func ShipmentReadyAt(lastShipment time.Time, transitSeconds int64) time.Time {
	if lastShipment.IsZero() {
		return lastShipment
	}
	return lastShipment.Add(time.Duration(transitSeconds) * time.Second)
}

// ShipmentReady reports whether a lane may ship at the given instant.
func ShipmentReady(lastShipment time.Time, transitSeconds int64, now time.Time) bool {
	return !ShipmentReadyAt(lastShipment, transitSeconds).After(now)
}

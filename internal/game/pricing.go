package game

import (
	"crypto/sha256"
	"encoding/binary"
	"math"
	"math/big"
	"time"

	"cartel/internal/catalog"
)

// Market pricing is stateless: every hour one catalog event is in effect,
// chosen by hashing the hour-aligned unix timestamp. Every caller inside the
// same hour sees the same event, and any past hour's event can be recomputed.

// HourBucket truncates an instant to its hour-aligned unix timestamp.
func HourBucket(now time.Time) int64 {
	ts := now.Unix()
	return ts - ts%3600
}

// EventIndexFor reduces the SHA-256 of the hour bucket modulo n.
func EventIndexFor(bucket int64, n int) int {
	if n <= 0 {
		return 0
	}
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(bucket))
	sum := sha256.Sum256(buf[:])
	v := new(big.Int).SetBytes(sum[:])
	return int(v.Mod(v, big.NewInt(int64(n))).Int64())
}

// EventFor returns the market event in effect for the hour containing now.
func EventFor(now time.Time) catalog.MarketEvent {
	events := catalog.MarketEvents()
	return events[EventIndexFor(HourBucket(now), len(events))]
}

// PriceFor returns the current street price of a product: the catalog base
// price with the active hourly event multiplier applied, floored, never
// below one.
func PriceFor(productKey string, now time.Time) (PriceView, error) {
	p, err := catalog.ProductByKey(productKey)
	if err != nil {
		return PriceView{}, err
	}
	out := PriceView{Product: p.Key, BasePrice: p.BasePrice, Price: p.BasePrice}
	ev := EventFor(now)
	if ev.Product == p.Key {
		out.Event = ev.Name
		out.EventMult = ev.Multiplier
		out.Price = int64(math.Floor(float64(p.BasePrice) * ev.Multiplier))
	}
	if out.Price < 1 {
		out.Price = 1
	}
	return out, nil
}

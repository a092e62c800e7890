package game

import (
	"errors"
	"regexp"
	"strings"
	"time"
)

const (
	StarterCash   = int64(500)
	ReferralBonus = int64(1000)
	DailyReward   = int64(100)

	// PvP tuning.
	AttacksPerDay     = 8
	DefendsPerDay     = 8
	BattleRoundCap    = 100
	BattleRepReward   = int64(25)
	LootCashCap       = int64(10_000)
	LootCashFraction  = 10 // loot pool is 1/10 of defender cash
	BattleLogRetained = 7 * 24 * time.Hour

	// Base combat stats before gear bonuses.
	BaseHP        = 100
	BaseDamage    = 10
	BaseAccuracy  = 50
	BaseEvasion   = 5
	BaseLootPower = 0.05

	// Production plots a player can hold.
	MaxLabPlots = 4

	// Bulk shipments sell wholesale below street price, in percent.
	WholesalePct = int64(80)

	CustomerPoolWindow = time.Hour
)

var (
	ErrPlayerNotFound   = errors.New("player not found")
	ErrPlotNotFound     = errors.New("lab plot not found")
	ErrLaneNotFound     = errors.New("shipping lane not found")
	ErrBattleNotFound   = errors.New("battle record not found")
	ErrInsufficientCash = errors.New("insufficient cash")
	ErrStashFull        = errors.New("stash capacity exceeded")
	ErrStashEmpty       = errors.New("not enough product in stash")
	ErrNoCustomers      = errors.New("no customers remaining")
	ErrPlotOccupied     = errors.New("plot already holds a lab")
	ErrPlotEmpty        = errors.New("plot is empty")
	ErrMaxLevel         = errors.New("already at maximum level")
	ErrRepTooLow        = errors.New("reputation requirement not met")
	ErrShipmentNotReady = errors.New("shipment not ready yet")
	ErrLaneOwned        = errors.New("shipping lane already owned")
	ErrGearOwned        = errors.New("gear already owned")
	ErrPvpDisabled      = errors.New("pvp is not enabled")
	ErrPvpAlreadyOn     = errors.New("pvp already enabled")
	ErrSelfAttack       = errors.New("cannot attack yourself")
	ErrAttackQuota      = errors.New("attack quota exhausted for today")
	ErrDefendQuota      = errors.New("defender is out of fights for today")
	ErrAlreadyClaimed   = errors.New("daily reward already claimed")
	ErrDuplicateKey     = errors.New("duplicate idempotency key")
	ErrTxConflict       = errors.New("transaction conflict, retry")
	ErrCorruptState     = errors.New("corrupt stored state")
)

var usernameRE = regexp.MustCompile(`^[a-zA-Z0-9_]{3,24}$`)

// SanitizeUsername coerces an arbitrary display name into something the
// leaderboard can safely render.
func SanitizeUsername(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if usernameRE.MatchString(s) {
		return s
	}
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' {
			out = append(out, r)
		} else {
			out = append(out, '_')
		}
	}
	res := strings.Trim(string(out), "_")
	if len(res) < 3 {
		res = "dealer_" + res
	}
	if len(res) > 24 {
		res = res[:24]
	}
	return res
}

// CustomerPoolMax is the replenishment ceiling for a player's street
// customers. It grows with reputation in steps of 20 per 500 rep, capped
// so late-game players still have to use bulk shipping lanes.
func CustomerPoolMax(reputation int64) int64 {
	tier := reputation / 500
	if tier > 10 {
		tier = 10
	}
	return 60 + tier*20
}

// SameUTCDay reports whether a and b fall on the same UTC calendar day.
// Daily attack/defend quotas and the daily reward reset at UTC midnight.
func SameUTCDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}

// SettledDailyCount returns the used-today counter after a lazy day-boundary
// reset: zero if the last action fell on an earlier UTC day than now.
func SettledDailyCount(used int, lastAction, now time.Time) int {
	if lastAction.IsZero() || !SameUTCDay(lastAction, now) {
		return 0
	}
	return used
}

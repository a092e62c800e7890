package game

import "time"

// Aggregate is the settled view of a player returned to callers. Derived
// fields (accrued production, customer pool, shipment readiness) are computed
// at read time from the stored checkpoints, never persisted.
type Aggregate struct {
	ID           string          `json:"id"`
	Username     string          `json:"username"`
	Cash         int64           `json:"cash"`
	Reputation   int64           `json:"reputation"`
	Customers    int64           `json:"customers"`
	CustomersMax int64           `json:"customers_max"`
	Inventory    []InventoryView `json:"inventory"`
	Plots        []PlotView      `json:"plots"`
	Lanes        []LaneView      `json:"lanes"`
	Combat       CombatView      `json:"combat"`
	Gear         []string        `json:"gear"`
	Achievements []string        `json:"achievements"`
	ReferralCode string          `json:"referral_code"`
	Referrals    int64           `json:"referrals"`
	CreatedAt    time.Time       `json:"created_at"`
}

type InventoryView struct {
	Product  string `json:"product"`
	Quantity int64  `json:"quantity"`
	Capacity int64  `json:"capacity"`
	Level    int    `json:"level"`
}

type PlotView struct {
	Slot            int       `json:"slot"`
	Product         string    `json:"product"`
	CapacityLevel   int       `json:"capacity_level"`
	ProductionLevel int       `json:"production_level"`
	Capacity        int64     `json:"capacity"`
	Accrued         int64     `json:"accrued"`
	Pending         int64     `json:"pending"`
	LastCollectedAt time.Time `json:"last_collected_at"`
}

type LaneView struct {
	Method         string    `json:"method"`
	CapacityLevel  int       `json:"capacity_level"`
	SpeedLevel     int       `json:"speed_level"`
	Capacity       int64     `json:"capacity"`
	ReadyAt        time.Time `json:"ready_at"`
	Ready          bool      `json:"ready"`
	LastShipmentAt time.Time `json:"last_shipment_at"`
}

type CombatView struct {
	Enabled        bool      `json:"enabled"`
	Victories      int64     `json:"victories"`
	Defeats        int64     `json:"defeats"`
	AttacksLeft    int       `json:"attacks_left"`
	DefendsLeft    int       `json:"defends_left"`
	LastAttackAt   time.Time `json:"last_attack_at"`
	LastDefendedAt time.Time `json:"last_defended_at"`
}

// Profile is a resolved combat profile: base stats plus gear bonuses.
type Profile struct {
	PlayerID   string
	HP         int
	Damage     int
	Protection int
	Accuracy   int
	Evasion    int
	LootPower  float64
}

// BattleResult is the immutable record written once per resolved fight.
type BattleResult struct {
	ID          string    `json:"id"`
	AttackerID  string    `json:"attacker_id"`
	DefenderID  string    `json:"defender_id"`
	WinnerID    string    `json:"winner_id"`
	LoserID     string    `json:"loser_id"`
	Rounds      int       `json:"rounds"`
	Loot        int64     `json:"loot"`
	AttackerWon bool      `json:"attacker_won"`
	CreatedAt   time.Time `json:"created_at"`
}

type TradeResult struct {
	Product   string `json:"product"`
	Quantity  int64  `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
	Total     int64  `json:"total"`
	Cash      int64  `json:"cash"`
}

type ShipmentResult struct {
	Method   string    `json:"method"`
	Product  string    `json:"product"`
	Quantity int64     `json:"quantity"`
	Payout   int64     `json:"payout"`
	Cash     int64     `json:"cash"`
	NextAt   time.Time `json:"next_at"`
}

type PriceView struct {
	Product   string  `json:"product"`
	BasePrice int64   `json:"base_price"`
	Price     int64   `json:"price"`
	Event     string  `json:"event,omitempty"`
	EventMult float64 `json:"event_mult,omitempty"`
}

type LeaderboardRow struct {
	Rank       int64  `json:"rank"`
	Username   string `json:"username"`
	Reputation int64  `json:"reputation"`
	Cash       int64  `json:"cash"`
	Victories  int64  `json:"victories"`
}

type TradeInput struct {
	PlayerID       string
	Product        string
	Quantity       int64
	IdempotencyKey string
}

type ShipInput struct {
	PlayerID       string
	Method         string
	Product        string
	Quantity       int64
	IdempotencyKey string
}

type AttackInput struct {
	AttackerID     string
	DefenderID     string
	IdempotencyKey string
}

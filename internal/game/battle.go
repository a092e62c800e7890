package game

import "cartel/internal/catalog"

// RollFunc returns a uniform integer in [0, n). Production uses a seeded
// math/rand source; tests inject fixed sequences.
type RollFunc func(n int) int

// Outcome is the resolved result of a single battle simulation, before any
// state has been persisted.
type Outcome struct {
	AttackerWon bool
	Rounds      int
	AttackerHP  int
	DefenderHP  int
	Loot        int64
}

// ResolveProfile builds a combat profile from the base stats plus the
// bonuses of every owned gear item.
func ResolveProfile(playerID string, gearKeys []string) (Profile, error) {
	p := Profile{
		PlayerID:  playerID,
		HP:        BaseHP,
		Damage:    BaseDamage,
		Accuracy:  BaseAccuracy,
		Evasion:   BaseEvasion,
		LootPower: BaseLootPower,
	}
	for _, key := range gearKeys {
		g, err := catalog.GearByKey(key)
		if err != nil {
			return Profile{}, err
		}
		p.HP += g.HP
		p.Damage += g.Damage
		p.Protection += g.Protection
		p.Accuracy += g.Accuracy
		p.Evasion += g.Evasion
		p.LootPower += g.LootPower
	}
	return p, nil
}

// LootFor computes the cash transferred to a winning attacker: a tenth of
// the defender's cash at battle start, capped, scaled by loot power.
func LootFor(defenderCash int64, lootPower float64) int64 {
	pool := defenderCash / LootCashFraction
	if pool > LootCashCap {
		pool = LootCashCap
	}
	if pool < 0 {
		pool = 0
	}
	return int64(float64(pool) * lootPower)
}

// Simulate runs the round-based fight. Each round the attacker swings
// first: a hit lands when roll(100) < accuracy - evasion, dealing
// max(0, damage - protection). The cap guarantees termination; when both
// sides are standing at the cap, the higher remaining HP wins and the
// attacker takes exact ties.
func Simulate(attacker, defender Profile, defenderCash int64, roll RollFunc) Outcome {
	attackerDmg := attacker.Damage - defender.Protection
	if attackerDmg < 0 {
		attackerDmg = 0
	}
	defenderDmg := defender.Damage - attacker.Protection
	if defenderDmg < 0 {
		defenderDmg = 0
	}

	out := Outcome{AttackerHP: attacker.HP, DefenderHP: defender.HP}
	for out.Rounds < BattleRoundCap {
		out.Rounds++
		if roll(100) < attacker.Accuracy-defender.Evasion {
			out.DefenderHP -= attackerDmg
			if out.DefenderHP <= 0 {
				out.AttackerWon = true
				break
			}
		}
		if roll(100) < defender.Accuracy-attacker.Evasion {
			out.AttackerHP -= defenderDmg
			if out.AttackerHP <= 0 {
				out.AttackerWon = false
				break
			}
		}
	}
	if out.AttackerHP > 0 && out.DefenderHP > 0 {
		out.AttackerWon = out.AttackerHP >= out.DefenderHP
	}
	if out.AttackerWon {
		out.Loot = LootFor(defenderCash, attacker.LootPower)
	}
	return out
}

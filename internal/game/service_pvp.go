package game

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// EnablePvp opts a player into the asynchronous PvP mode.
func (s *Service) EnablePvp(ctx context.Context, playerID, idem string) error {
	return s.runSerializable(ctx, func(tx pgx.Tx) error {
		if err := claimIdempotency(ctx, tx, playerID, idem, "enable_pvp"); err != nil {
			return err
		}
		var enabled bool
		if err := tx.QueryRow(ctx, `
			SELECT pvp_enabled FROM cartel.players WHERE id = $1 FOR UPDATE
		`, playerID).Scan(&enabled); err != nil {
			if err == pgx.ErrNoRows {
				return ErrPlayerNotFound
			}
			return err
		}
		if enabled {
			return ErrPvpAlreadyOn
		}
		_, err := tx.Exec(ctx, `
			UPDATE cartel.players SET pvp_enabled = true, updated_at = now() WHERE id = $1
		`, playerID)
		return err
	})
}

type combatant struct {
	id           string
	cash         int64
	enabled      bool
	victories    int64
	usedToday    int
	lastActionAt time.Time
}

// Attack resolves a PvP fight. Both player rows are locked inside one
// transaction, always in ascending id order, so the loot transfer and both
// quota updates commit together or not at all.
func (s *Service) Attack(ctx context.Context, in AttackInput) (BattleResult, error) {
	if in.AttackerID == in.DefenderID {
		return BattleResult{}, ErrSelfAttack
	}
	now := s.clk.Now()
	var result BattleResult
	err := s.runSerializable(ctx, func(tx pgx.Tx) error {
		if err := claimIdempotency(ctx, tx, in.AttackerID, in.IdempotencyKey, "attack"); err != nil {
			return err
		}

		// Lock order is by id, not by role, to avoid deadlocking against a
		// simultaneous attack in the other direction.
		first, second := in.AttackerID, in.DefenderID
		if second < first {
			first, second = second, first
		}
		combatants := map[string]*combatant{}
		for _, id := range []string{first, second} {
			c := &combatant{id: id}
			var lastAttack, lastDefended *time.Time
			var attacksToday, defendsToday int
			err := tx.QueryRow(ctx, `
				SELECT cash, pvp_enabled, victories,
				       attacks_today, last_attack_at, defends_today, last_defended_at
				FROM cartel.players
				WHERE id = $1
				FOR UPDATE
			`, id).Scan(&c.cash, &c.enabled, &c.victories,
				&attacksToday, &lastAttack, &defendsToday, &lastDefended)
			if err == pgx.ErrNoRows {
				return fmt.Errorf("%w: %s", ErrPlayerNotFound, id)
			}
			if err != nil {
				return err
			}
			if id == in.AttackerID {
				c.usedToday = SettledDailyCount(attacksToday, deref(lastAttack), now)
				c.lastActionAt = deref(lastAttack)
			} else {
				c.usedToday = SettledDailyCount(defendsToday, deref(lastDefended), now)
				c.lastActionAt = deref(lastDefended)
			}
			combatants[id] = c
		}
		attacker := combatants[in.AttackerID]
		defender := combatants[in.DefenderID]

		if !attacker.enabled {
			return fmt.Errorf("%w: attacker", ErrPvpDisabled)
		}
		if !defender.enabled {
			return fmt.Errorf("%w: defender", ErrPvpDisabled)
		}
		if attacker.usedToday >= AttacksPerDay {
			return ErrAttackQuota
		}
		if defender.usedToday >= DefendsPerDay {
			return ErrDefendQuota
		}

		attackerGear, err := loadGearTx(ctx, tx, in.AttackerID)
		if err != nil {
			return err
		}
		defenderGear, err := loadGearTx(ctx, tx, in.DefenderID)
		if err != nil {
			return err
		}
		attackerProfile, err := ResolveProfile(in.AttackerID, attackerGear)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrCorruptState, err)
		}
		defenderProfile, err := ResolveProfile(in.DefenderID, defenderGear)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrCorruptState, err)
		}

		outcome := Simulate(attackerProfile, defenderProfile, defender.cash, s.roll)

		winnerID, loserID := in.DefenderID, in.AttackerID
		if outcome.AttackerWon {
			winnerID, loserID = in.AttackerID, in.DefenderID
		}

		// Quota counters and checkpoints advance for both sides regardless
		// of outcome.
		if _, err := tx.Exec(ctx, `
			UPDATE cartel.players
			SET attacks_today = $1, last_attack_at = $2,
			    victories = victories + $3, defeats = defeats + $4,
			    cash = cash + $5, reputation = reputation + $6,
			    updated_at = now()
			WHERE id = $7
		`, attacker.usedToday+1, now,
			boolInt(outcome.AttackerWon), boolInt(!outcome.AttackerWon),
			lootDelta(outcome, true), repDelta(outcome), in.AttackerID); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `
			UPDATE cartel.players
			SET defends_today = $1, last_defended_at = $2,
			    victories = victories + $3, defeats = defeats + $4,
			    cash = cash + $5,
			    updated_at = now()
			WHERE id = $6
		`, defender.usedToday+1, now,
			boolInt(!outcome.AttackerWon), boolInt(outcome.AttackerWon),
			lootDelta(outcome, false), in.DefenderID); err != nil {
			return err
		}

		result = BattleResult{
			ID:          uuid.NewString(),
			AttackerID:  in.AttackerID,
			DefenderID:  in.DefenderID,
			WinnerID:    winnerID,
			LoserID:     loserID,
			Rounds:      outcome.Rounds,
			Loot:        outcome.Loot,
			AttackerWon: outcome.AttackerWon,
			CreatedAt:   now,
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO cartel.battle_results
			    (id, attacker_id, defender_id, winner_id, loser_id, rounds, loot, attacker_won, created_at, expires_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`, result.ID, result.AttackerID, result.DefenderID, result.WinnerID, result.LoserID,
			result.Rounds, result.Loot, result.AttackerWon, now, now.Add(BattleLogRetained)); err != nil {
			return err
		}

		if combatants[winnerID].victories == 0 {
			if _, err := tx.Exec(ctx, `
				INSERT INTO cartel.achievements (player_id, achievement, unlocked_at)
				VALUES ($1, 'first_blood', now())
				ON CONFLICT (player_id, achievement) DO NOTHING
			`, winnerID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return BattleResult{}, err
	}
	s.emit(ctx, "battle_resolved", in.AttackerID, map[string]any{
		"battle_id": result.ID,
		"winner":    result.WinnerID,
		"rounds":    result.Rounds,
		"loot":      result.Loot,
	})
	return result, nil
}

// BattleLog lists a player's battles inside the retention window, newest
// first. Expired rows are filtered even before the worker sweeps them.
func (s *Service) BattleLog(ctx context.Context, playerID string, limit int) ([]BattleResult, error) {
	if limit <= 0 || limit > 100 {
		limit = 25
	}
	rows, err := s.db.Query(ctx, `
		SELECT id, attacker_id, defender_id, winner_id, loser_id, rounds, loot, attacker_won, created_at
		FROM cartel.battle_results
		WHERE (attacker_id = $1 OR defender_id = $1) AND expires_at > $2
		ORDER BY created_at DESC
		LIMIT $3
	`, playerID, s.clk.Now(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []BattleResult
	for rows.Next() {
		var r BattleResult
		if err := rows.Scan(&r.ID, &r.AttackerID, &r.DefenderID, &r.WinnerID, &r.LoserID,
			&r.Rounds, &r.Loot, &r.AttackerWon, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// PruneBattles deletes battle records past their retention window. The
// worker calls this on a timer; it is storage hygiene, not game logic.
func (s *Service) PruneBattles(ctx context.Context) (int64, error) {
	cmd, err := s.db.Exec(ctx, `
		DELETE FROM cartel.battle_results WHERE expires_at <= $1
	`, s.clk.Now())
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

func loadGearTx(ctx context.Context, tx pgx.Tx, playerID string) ([]string, error) {
	rows, err := tx.Query(ctx, `
		SELECT gear_key FROM cartel.gear WHERE player_id = $1 ORDER BY gear_key
	`, playerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		out = append(out, key)
	}
	return out, rows.Err()
}

func boolInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

func lootDelta(out Outcome, attacker bool) int64 {
	if !out.AttackerWon {
		return 0
	}
	if attacker {
		return out.Loot
	}
	return -out.Loot
}

func repDelta(out Outcome) int64 {
	if out.AttackerWon {
		return BattleRepReward
	}
	return 0
}

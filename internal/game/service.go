package game

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	mathrand "math/rand"
	"strings"
	"sync"
	"time"

	"cartel/internal/catalog"
	"cartel/internal/clock"
	"cartel/internal/telemetry"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Service struct {
	db   *pgxpool.Pool
	log  *slog.Logger
	clk  clock.Clock
	sink *telemetry.Sink
	mu   sync.Mutex
	rand *mathrand.Rand
}

func NewService(db *pgxpool.Pool, logger *slog.Logger, clk clock.Clock, sink *telemetry.Sink) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if clk == nil {
		clk = clock.Real{}
	}
	return &Service{
		db:   db,
		log:  logger,
		clk:  clk,
		sink: sink,
		rand: mathrand.New(mathrand.NewSource(time.Now().UnixNano())),
	}
}

func (s *Service) roll(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rand.Intn(n)
}

func (s *Service) emit(ctx context.Context, name, playerID string, fields map[string]any) {
	if s.sink == nil {
		return
	}
	s.sink.Emit(ctx, telemetry.Event{
		Name:     name,
		PlayerID: playerID,
		At:       s.clk.Now(),
		Fields:   fields,
	})
}

// runSerializable executes fn inside a Serializable transaction, retrying
// with backoff on serialization failures. Concurrent actions against the
// same player row conflict here instead of overwriting each other.
func (s *Service) runSerializable(ctx context.Context, fn func(tx pgx.Tx) error) error {
	const maxAttempts = 8
	retryDelay := 75 * time.Millisecond
	for attempt := 0; attempt < maxAttempts; attempt++ {
		tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
		if err != nil {
			return err
		}
		err = func() error {
			defer tx.Rollback(ctx)
			if err := fn(tx); err != nil {
				return err
			}
			return tx.Commit(ctx)
		}()
		if err == nil {
			return nil
		}
		if !isSerializationError(err) {
			return err
		}
		if attempt == maxAttempts-1 {
			return ErrTxConflict
		}
		if err := sleepWithContext(ctx, retryDelay); err != nil {
			return err
		}
		if retryDelay < 1200*time.Millisecond {
			retryDelay *= 2
		}
	}
	return ErrTxConflict
}

func isSerializationError(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "40001"
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func claimIdempotency(ctx context.Context, tx pgx.Tx, playerID, key, action string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("idempotency key is required")
	}
	cmd, err := tx.Exec(ctx, `
		INSERT INTO cartel.idempotency_keys (player_id, key, action, created_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (player_id, key) DO NOTHING
	`, playerID, key, action)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrDuplicateKey
	}
	return nil
}

// EnsurePlayer is the idempotent find-or-create on first authenticated
// contact. When a fresh player arrives with a referral code that resolves,
// the referrer is paid the bonus exactly once.
func (s *Service) EnsurePlayer(ctx context.Context, playerID, displayName, referralCode string) error {
	username := SanitizeUsername(displayName)
	code := newReferralCode(s.roll)

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	cmd, err := tx.Exec(ctx, `
		INSERT INTO cartel.players (id, username, referral_code, cash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, now(), now())
		ON CONFLICT (id) DO NOTHING
	`, playerID, username, code, StarterCash)
	if err != nil {
		return err
	}
	created := cmd.RowsAffected() == 1

	if created && strings.TrimSpace(referralCode) != "" {
		var referrerID string
		err := tx.QueryRow(ctx, `
			SELECT id FROM cartel.players WHERE referral_code = $1
		`, strings.ToUpper(strings.TrimSpace(referralCode))).Scan(&referrerID)
		switch {
		case err == pgx.ErrNoRows:
			// Bad code is not an error; the player still gets created.
		case err != nil:
			return err
		case referrerID != playerID:
			ins, err := tx.Exec(ctx, `
				INSERT INTO cartel.referrals (referrer_id, referred_id, created_at)
				VALUES ($1, $2, now())
				ON CONFLICT (referrer_id, referred_id) DO NOTHING
			`, referrerID, playerID)
			if err != nil {
				return err
			}
			if ins.RowsAffected() == 1 {
				if _, err := tx.Exec(ctx, `
					UPDATE cartel.players
					SET cash = cash + $1, updated_at = now()
					WHERE id = $2
				`, ReferralBonus, referrerID); err != nil {
					return err
				}
			}
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}
	if created {
		s.emit(ctx, "player_created", playerID, map[string]any{"username": username})
	}
	return nil
}

// SettleAndGet loads a player and computes every time-derived field against
// the current clock. Nothing is written: derived values are never persisted.
func (s *Service) SettleAndGet(ctx context.Context, playerID string) (Aggregate, error) {
	now := s.clk.Now()
	var agg Aggregate

	var lastSale, lastAttack, lastDefended *time.Time
	var attacksToday, defendsToday int
	err := s.db.QueryRow(ctx, `
		SELECT id, username, cash, reputation, customers_remaining, last_sale_at,
		       pvp_enabled, victories, defeats,
		       attacks_today, last_attack_at, defends_today, last_defended_at,
		       referral_code, created_at
		FROM cartel.players
		WHERE id = $1
	`, playerID).Scan(
		&agg.ID, &agg.Username, &agg.Cash, &agg.Reputation, &agg.Customers, &lastSale,
		&agg.Combat.Enabled, &agg.Combat.Victories, &agg.Combat.Defeats,
		&attacksToday, &lastAttack, &defendsToday, &lastDefended,
		&agg.ReferralCode, &agg.CreatedAt,
	)
	if err == pgx.ErrNoRows {
		return agg, ErrPlayerNotFound
	}
	if err != nil {
		return agg, err
	}

	agg.CustomersMax = CustomerPoolMax(agg.Reputation)
	agg.Customers = CustomerPool(agg.Customers, agg.CustomersMax, deref(lastSale), now)
	agg.Combat.LastAttackAt = deref(lastAttack)
	agg.Combat.LastDefendedAt = deref(lastDefended)
	agg.Combat.AttacksLeft = AttacksPerDay - SettledDailyCount(attacksToday, deref(lastAttack), now)
	agg.Combat.DefendsLeft = DefendsPerDay - SettledDailyCount(defendsToday, deref(lastDefended), now)

	if err := s.loadInventory(ctx, &agg); err != nil {
		return agg, err
	}
	if err := s.loadPlots(ctx, &agg, now); err != nil {
		return agg, err
	}
	if err := s.loadLanes(ctx, &agg, now); err != nil {
		return agg, err
	}
	if err := s.loadExtras(ctx, &agg); err != nil {
		return agg, err
	}
	return agg, nil
}

func (s *Service) loadInventory(ctx context.Context, agg *Aggregate) error {
	rows, err := s.db.Query(ctx, `
		SELECT product, quantity, stash_level
		FROM cartel.inventory
		WHERE player_id = $1
		ORDER BY product
	`, agg.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var v InventoryView
		if err := rows.Scan(&v.Product, &v.Quantity, &v.Level); err != nil {
			return err
		}
		cap, err := catalog.StashCapacity(v.Level)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrCorruptState, err)
		}
		v.Capacity = cap
		agg.Inventory = append(agg.Inventory, v)
	}
	return rows.Err()
}

func (s *Service) loadPlots(ctx context.Context, agg *Aggregate, now time.Time) error {
	rows, err := s.db.Query(ctx, `
		SELECT slot, product, capacity_level, production_level, pending_units, last_collected_at
		FROM cartel.lab_plots
		WHERE player_id = $1
		ORDER BY slot
	`, agg.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var v PlotView
		if err := rows.Scan(&v.Slot, &v.Product, &v.CapacityLevel, &v.ProductionLevel, &v.Pending, &v.LastCollectedAt); err != nil {
			return err
		}
		p, err := catalog.ProductByKey(v.Product)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrCorruptState, err)
		}
		cap, err := catalog.LabCapacity(v.CapacityLevel)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrCorruptState, err)
		}
		rate, err := LabUnitsPerHour(p, v.ProductionLevel)
		if err != nil {
			return err
		}
		v.Capacity = cap
		v.Accrued = AccruedProduction(rate, v.Pending, cap, v.LastCollectedAt, now)
		agg.Plots = append(agg.Plots, v)
	}
	return rows.Err()
}

func (s *Service) loadLanes(ctx context.Context, agg *Aggregate, now time.Time) error {
	rows, err := s.db.Query(ctx, `
		SELECT method, capacity_level, speed_level, last_shipment_at
		FROM cartel.shipping_lanes
		WHERE player_id = $1
		ORDER BY method
	`, agg.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var v LaneView
		var last *time.Time
		if err := rows.Scan(&v.Method, &v.CapacityLevel, &v.SpeedLevel, &last); err != nil {
			return err
		}
		m, err := catalog.MethodByKey(v.Method)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrCorruptState, err)
		}
		cap, err := m.Capacity(v.CapacityLevel)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrCorruptState, err)
		}
		transit, err := m.TransitSeconds(v.SpeedLevel)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrCorruptState, err)
		}
		v.Capacity = cap
		v.LastShipmentAt = deref(last)
		v.ReadyAt = ShipmentReadyAt(v.LastShipmentAt, transit)
		v.Ready = ShipmentReady(v.LastShipmentAt, transit, now)
		agg.Lanes = append(agg.Lanes, v)
	}
	return rows.Err()
}

func (s *Service) loadExtras(ctx context.Context, agg *Aggregate) error {
	rows, err := s.db.Query(ctx, `
		SELECT gear_key FROM cartel.gear WHERE player_id = $1 ORDER BY gear_key
	`, agg.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return err
		}
		agg.Gear = append(agg.Gear, key)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	aRows, err := s.db.Query(ctx, `
		SELECT achievement FROM cartel.achievements WHERE player_id = $1 ORDER BY unlocked_at
	`, agg.ID)
	if err != nil {
		return err
	}
	defer aRows.Close()
	for aRows.Next() {
		var key string
		if err := aRows.Scan(&key); err != nil {
			return err
		}
		agg.Achievements = append(agg.Achievements, key)
	}
	if err := aRows.Err(); err != nil {
		return err
	}

	return s.db.QueryRow(ctx, `
		SELECT COUNT(1) FROM cartel.referrals WHERE referrer_id = $1
	`, agg.ID).Scan(&agg.Referrals)
}

// Prices returns the current street price of every catalog product.
func (s *Service) Prices(_ context.Context) ([]PriceView, error) {
	now := s.clk.Now()
	out := make([]PriceView, 0, len(catalog.ProductKeys()))
	for _, key := range catalog.ProductKeys() {
		pv, err := PriceFor(key, now)
		if err != nil {
			return nil, err
		}
		out = append(out, pv)
	}
	return out, nil
}

// BuyProduct purchases units at the current street price, bounded by cash
// and by the product's stash capacity.
func (s *Service) BuyProduct(ctx context.Context, in TradeInput) (TradeResult, error) {
	var out TradeResult
	if in.Quantity <= 0 {
		return out, fmt.Errorf("quantity must be > 0")
	}
	product, err := catalog.ProductByKey(in.Product)
	if err != nil {
		return out, err
	}
	now := s.clk.Now()
	price, err := PriceFor(product.Key, now)
	if err != nil {
		return out, err
	}

	err = s.runSerializable(ctx, func(tx pgx.Tx) error {
		if err := claimIdempotency(ctx, tx, in.PlayerID, in.IdempotencyKey, "buy"); err != nil {
			return err
		}
		var cash, rep int64
		if err := tx.QueryRow(ctx, `
			SELECT cash, reputation FROM cartel.players WHERE id = $1 FOR UPDATE
		`, in.PlayerID).Scan(&cash, &rep); err != nil {
			if err == pgx.ErrNoRows {
				return ErrPlayerNotFound
			}
			return err
		}
		if rep < product.MinReputation {
			return fmt.Errorf("%w: %s needs %d reputation", ErrRepTooLow, product.Key, product.MinReputation)
		}
		total := price.Price * in.Quantity
		if cash < total {
			return fmt.Errorf("%w: need %d, have %d", ErrInsufficientCash, total, cash)
		}

		qty, level, err := lockInventory(ctx, tx, in.PlayerID, product.Key)
		if err != nil {
			return err
		}
		cap, err := catalog.StashCapacity(level)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrCorruptState, err)
		}
		if qty+in.Quantity > cap {
			return fmt.Errorf("%w: %d/%d held, room for %d", ErrStashFull, qty, cap, cap-qty)
		}

		if err := setInventory(ctx, tx, in.PlayerID, product.Key, qty+in.Quantity, level); err != nil {
			return err
		}
		out.Cash = cash - total
		out.Product = product.Key
		out.Quantity = in.Quantity
		out.UnitPrice = price.Price
		out.Total = total
		_, err = tx.Exec(ctx, `
			UPDATE cartel.players SET cash = $1, updated_at = now() WHERE id = $2
		`, out.Cash, in.PlayerID)
		return err
	})
	if err != nil {
		return TradeResult{}, err
	}
	return out, nil
}

// SellProduct sells units to the settled street customer pool at the
// current price. The pool remainder and sale checkpoint persist; the pool
// itself stays a derived value.
func (s *Service) SellProduct(ctx context.Context, in TradeInput) (TradeResult, error) {
	var out TradeResult
	if in.Quantity <= 0 {
		return out, fmt.Errorf("quantity must be > 0")
	}
	product, err := catalog.ProductByKey(in.Product)
	if err != nil {
		return out, err
	}
	now := s.clk.Now()
	price, err := PriceFor(product.Key, now)
	if err != nil {
		return out, err
	}

	var repGain int64
	err = s.runSerializable(ctx, func(tx pgx.Tx) error {
		if err := claimIdempotency(ctx, tx, in.PlayerID, in.IdempotencyKey, "sell"); err != nil {
			return err
		}
		var cash, rep, remaining int64
		var lastSale *time.Time
		if err := tx.QueryRow(ctx, `
			SELECT cash, reputation, customers_remaining, last_sale_at
			FROM cartel.players WHERE id = $1 FOR UPDATE
		`, in.PlayerID).Scan(&cash, &rep, &remaining, &lastSale); err != nil {
			if err == pgx.ErrNoRows {
				return ErrPlayerNotFound
			}
			return err
		}

		pool := CustomerPool(remaining, CustomerPoolMax(rep), deref(lastSale), now)
		if in.Quantity > pool {
			return fmt.Errorf("%w: %d customers left this hour", ErrNoCustomers, pool)
		}

		qty, level, err := lockInventory(ctx, tx, in.PlayerID, product.Key)
		if err != nil {
			return err
		}
		if qty < in.Quantity {
			return fmt.Errorf("%w: have %d of %s", ErrStashEmpty, qty, product.Key)
		}
		if err := setInventory(ctx, tx, in.PlayerID, product.Key, qty-in.Quantity, level); err != nil {
			return err
		}

		total := price.Price * in.Quantity
		repGain = in.Quantity / 10
		if repGain < 1 {
			repGain = 1
		}
		out.Cash = cash + total
		out.Product = product.Key
		out.Quantity = in.Quantity
		out.UnitPrice = price.Price
		out.Total = total
		_, err = tx.Exec(ctx, `
			UPDATE cartel.players
			SET cash = $1, reputation = reputation + $2,
			    customers_remaining = $3, last_sale_at = $4, updated_at = now()
			WHERE id = $5
		`, out.Cash, repGain, pool-in.Quantity, now, in.PlayerID)
		if err != nil {
			return err
		}
		return awardCashAchievements(ctx, tx, in.PlayerID, out.Cash)
	})
	if err != nil {
		return TradeResult{}, err
	}
	s.emit(ctx, "sale", in.PlayerID, map[string]any{"product": out.Product, "qty": out.Quantity, "total": out.Total})
	return out, nil
}

// InstallLab builds a lab on an empty plot slot.
func (s *Service) InstallLab(ctx context.Context, playerID string, slot int, productKey, idem string) error {
	if slot < 1 || slot > MaxLabPlots {
		return fmt.Errorf("%w: slot %d", ErrPlotNotFound, slot)
	}
	product, err := catalog.ProductByKey(productKey)
	if err != nil {
		return err
	}
	now := s.clk.Now()
	cost := catalog.Lab().BuildCost
	return s.runSerializable(ctx, func(tx pgx.Tx) error {
		if err := claimIdempotency(ctx, tx, playerID, idem, "install_lab"); err != nil {
			return err
		}
		var cash, rep int64
		if err := tx.QueryRow(ctx, `
			SELECT cash, reputation FROM cartel.players WHERE id = $1 FOR UPDATE
		`, playerID).Scan(&cash, &rep); err != nil {
			if err == pgx.ErrNoRows {
				return ErrPlayerNotFound
			}
			return err
		}
		if rep < product.MinReputation {
			return fmt.Errorf("%w: %s needs %d reputation", ErrRepTooLow, product.Key, product.MinReputation)
		}
		if cash < cost {
			return fmt.Errorf("%w: lab costs %d", ErrInsufficientCash, cost)
		}
		cmd, err := tx.Exec(ctx, `
			INSERT INTO cartel.lab_plots (player_id, slot, product, capacity_level, production_level, pending_units, last_collected_at)
			VALUES ($1, $2, $3, 1, 1, 0, $4)
			ON CONFLICT (player_id, slot) DO NOTHING
		`, playerID, slot, product.Key, now)
		if err != nil {
			return err
		}
		if cmd.RowsAffected() == 0 {
			return ErrPlotOccupied
		}
		_, err = tx.Exec(ctx, `
			UPDATE cartel.players SET cash = cash - $1, updated_at = now() WHERE id = $2
		`, cost, playerID)
		return err
	})
}

// UpgradeLab raises a plot's capacity or production level.
func (s *Service) UpgradeLab(ctx context.Context, playerID string, slot int, kind, idem string) error {
	kind = strings.ToLower(strings.TrimSpace(kind))
	if kind != "capacity" && kind != "production" {
		return fmt.Errorf("upgrade kind must be capacity or production")
	}
	return s.runSerializable(ctx, func(tx pgx.Tx) error {
		if err := claimIdempotency(ctx, tx, playerID, idem, "upgrade_lab"); err != nil {
			return err
		}
		var capLevel, prodLevel int
		err := tx.QueryRow(ctx, `
			SELECT capacity_level, production_level
			FROM cartel.lab_plots
			WHERE player_id = $1 AND slot = $2
			FOR UPDATE
		`, playerID, slot).Scan(&capLevel, &prodLevel)
		if err == pgx.ErrNoRows {
			return ErrPlotEmpty
		}
		if err != nil {
			return err
		}

		spec := catalog.Lab()
		var cost int64
		var column string
		var next int
		switch kind {
		case "capacity":
			if capLevel >= len(spec.CapacityLevels) {
				return ErrMaxLevel
			}
			next = capLevel + 1
			cost = spec.CapacityLevels[next-1].UpgradeCost
			column = "capacity_level"
		case "production":
			if prodLevel >= len(spec.ProductionLevels) {
				return ErrMaxLevel
			}
			next = prodLevel + 1
			cost = spec.ProductionLevels[next-1].UpgradeCost
			column = "production_level"
		}

		var cash int64
		if err := tx.QueryRow(ctx, `
			SELECT cash FROM cartel.players WHERE id = $1 FOR UPDATE
		`, playerID).Scan(&cash); err != nil {
			return err
		}
		if cash < cost {
			return fmt.Errorf("%w: upgrade costs %d", ErrInsufficientCash, cost)
		}
		if _, err := tx.Exec(ctx, fmt.Sprintf(`
			UPDATE cartel.lab_plots SET %s = $1 WHERE player_id = $2 AND slot = $3
		`, column), next, playerID, slot); err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `
			UPDATE cartel.players SET cash = cash - $1, updated_at = now() WHERE id = $2
		`, cost, playerID)
		return err
	})
}

// CollectLab moves accrued production into the stash. When the stash cannot
// absorb everything, the remainder stays pending on the plot rather than
// being lost, and collects later.
func (s *Service) CollectLab(ctx context.Context, playerID string, slot int, idem string) (PlotView, error) {
	now := s.clk.Now()
	var view PlotView
	err := s.runSerializable(ctx, func(tx pgx.Tx) error {
		if err := claimIdempotency(ctx, tx, playerID, idem, "collect"); err != nil {
			return err
		}
		var productKey string
		var capLevel, prodLevel int
		var pending int64
		var lastCollected time.Time
		err := tx.QueryRow(ctx, `
			SELECT product, capacity_level, production_level, pending_units, last_collected_at
			FROM cartel.lab_plots
			WHERE player_id = $1 AND slot = $2
			FOR UPDATE
		`, playerID, slot).Scan(&productKey, &capLevel, &prodLevel, &pending, &lastCollected)
		if err == pgx.ErrNoRows {
			return ErrPlotEmpty
		}
		if err != nil {
			return err
		}

		product, err := catalog.ProductByKey(productKey)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrCorruptState, err)
		}
		capacity, err := catalog.LabCapacity(capLevel)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrCorruptState, err)
		}
		rate, err := LabUnitsPerHour(product, prodLevel)
		if err != nil {
			return err
		}
		accrued := AccruedProduction(rate, pending, capacity, lastCollected, now)

		qty, level, err := lockInventory(ctx, tx, playerID, product.Key)
		if err != nil {
			return err
		}
		stashCap, err := catalog.StashCapacity(level)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrCorruptState, err)
		}
		collected, leftover := SplitCollect(accrued, stashCap-qty)
		if err := setInventory(ctx, tx, playerID, product.Key, qty+collected, level); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `
			UPDATE cartel.lab_plots
			SET pending_units = $1, last_collected_at = $2
			WHERE player_id = $3 AND slot = $4
		`, leftover, now, playerID, slot); err != nil {
			return err
		}
		view = PlotView{
			Slot:            slot,
			Product:         product.Key,
			CapacityLevel:   capLevel,
			ProductionLevel: prodLevel,
			Capacity:        capacity,
			Accrued:         collected,
			Pending:         leftover,
			LastCollectedAt: now,
		}
		return nil
	})
	if err != nil {
		return PlotView{}, err
	}
	return view, nil
}

// BuyLane purchases a shipping lane; one lane per method.
func (s *Service) BuyLane(ctx context.Context, playerID, methodKey, idem string) error {
	method, err := catalog.MethodByKey(methodKey)
	if err != nil {
		return err
	}
	return s.runSerializable(ctx, func(tx pgx.Tx) error {
		if err := claimIdempotency(ctx, tx, playerID, idem, "buy_lane"); err != nil {
			return err
		}
		var cash int64
		if err := tx.QueryRow(ctx, `
			SELECT cash FROM cartel.players WHERE id = $1 FOR UPDATE
		`, playerID).Scan(&cash); err != nil {
			if err == pgx.ErrNoRows {
				return ErrPlayerNotFound
			}
			return err
		}
		if cash < method.BuyCost {
			return fmt.Errorf("%w: %s costs %d", ErrInsufficientCash, method.Key, method.BuyCost)
		}
		cmd, err := tx.Exec(ctx, `
			INSERT INTO cartel.shipping_lanes (player_id, method, capacity_level, speed_level, last_shipment_at)
			VALUES ($1, $2, 1, 1, NULL)
			ON CONFLICT (player_id, method) DO NOTHING
		`, playerID, method.Key)
		if err != nil {
			return err
		}
		if cmd.RowsAffected() == 0 {
			return ErrLaneOwned
		}
		_, err = tx.Exec(ctx, `
			UPDATE cartel.players SET cash = cash - $1, updated_at = now() WHERE id = $2
		`, method.BuyCost, playerID)
		return err
	})
}

// UpgradeLane raises a lane's capacity or speed level.
func (s *Service) UpgradeLane(ctx context.Context, playerID, methodKey, kind, idem string) error {
	kind = strings.ToLower(strings.TrimSpace(kind))
	if kind != "capacity" && kind != "speed" {
		return fmt.Errorf("upgrade kind must be capacity or speed")
	}
	method, err := catalog.MethodByKey(methodKey)
	if err != nil {
		return err
	}
	return s.runSerializable(ctx, func(tx pgx.Tx) error {
		if err := claimIdempotency(ctx, tx, playerID, idem, "upgrade_lane"); err != nil {
			return err
		}
		var capLevel, speedLevel int
		err := tx.QueryRow(ctx, `
			SELECT capacity_level, speed_level
			FROM cartel.shipping_lanes
			WHERE player_id = $1 AND method = $2
			FOR UPDATE
		`, playerID, method.Key).Scan(&capLevel, &speedLevel)
		if err == pgx.ErrNoRows {
			return ErrLaneNotFound
		}
		if err != nil {
			return err
		}

		var cost int64
		var column string
		var next int
		switch kind {
		case "capacity":
			if capLevel >= len(method.CapacityLevels) {
				return ErrMaxLevel
			}
			next = capLevel + 1
			cost = method.CapacityCosts[next-1]
			column = "capacity_level"
		case "speed":
			if speedLevel >= len(method.SpeedSeconds) {
				return ErrMaxLevel
			}
			next = speedLevel + 1
			cost = method.SpeedCosts[next-1]
			column = "speed_level"
		}

		var cash int64
		if err := tx.QueryRow(ctx, `
			SELECT cash FROM cartel.players WHERE id = $1 FOR UPDATE
		`, playerID).Scan(&cash); err != nil {
			return err
		}
		if cash < cost {
			return fmt.Errorf("%w: upgrade costs %d", ErrInsufficientCash, cost)
		}
		if _, err := tx.Exec(ctx, fmt.Sprintf(`
			UPDATE cartel.shipping_lanes SET %s = $1 WHERE player_id = $2 AND method = $3
		`, column), next, playerID, method.Key); err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `
			UPDATE cartel.players SET cash = cash - $1, updated_at = now() WHERE id = $2
		`, cost, playerID)
		return err
	})
}

// ShipProduct sends a bulk shipment through an owned lane: a wholesale sale
// below street price that bypasses the customer pool, gated by the lane's
// transit timer.
func (s *Service) ShipProduct(ctx context.Context, in ShipInput) (ShipmentResult, error) {
	var out ShipmentResult
	if in.Quantity <= 0 {
		return out, fmt.Errorf("quantity must be > 0")
	}
	product, err := catalog.ProductByKey(in.Product)
	if err != nil {
		return out, err
	}
	method, err := catalog.MethodByKey(in.Method)
	if err != nil {
		return out, err
	}
	now := s.clk.Now()
	price, err := PriceFor(product.Key, now)
	if err != nil {
		return out, err
	}

	err = s.runSerializable(ctx, func(tx pgx.Tx) error {
		if err := claimIdempotency(ctx, tx, in.PlayerID, in.IdempotencyKey, "ship"); err != nil {
			return err
		}
		var capLevel, speedLevel int
		var last *time.Time
		err := tx.QueryRow(ctx, `
			SELECT capacity_level, speed_level, last_shipment_at
			FROM cartel.shipping_lanes
			WHERE player_id = $1 AND method = $2
			FOR UPDATE
		`, in.PlayerID, method.Key).Scan(&capLevel, &speedLevel, &last)
		if err == pgx.ErrNoRows {
			return ErrLaneNotFound
		}
		if err != nil {
			return err
		}
		transit, err := method.TransitSeconds(speedLevel)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrCorruptState, err)
		}
		if !ShipmentReady(deref(last), transit, now) {
			return fmt.Errorf("%w: ready at %s", ErrShipmentNotReady, ShipmentReadyAt(deref(last), transit).UTC().Format(time.RFC3339))
		}
		laneCap, err := method.Capacity(capLevel)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrCorruptState, err)
		}
		if in.Quantity > laneCap {
			return fmt.Errorf("lane capacity is %d units", laneCap)
		}

		qty, level, err := lockInventory(ctx, tx, in.PlayerID, product.Key)
		if err != nil {
			return err
		}
		if qty < in.Quantity {
			return fmt.Errorf("%w: have %d of %s", ErrStashEmpty, qty, product.Key)
		}
		if err := setInventory(ctx, tx, in.PlayerID, product.Key, qty-in.Quantity, level); err != nil {
			return err
		}

		payout := price.Price * WholesalePct / 100 * in.Quantity
		repGain := in.Quantity / 20
		var cash int64
		if err := tx.QueryRow(ctx, `
			UPDATE cartel.players
			SET cash = cash + $1, reputation = reputation + $2, updated_at = now()
			WHERE id = $3
			RETURNING cash
		`, payout, repGain, in.PlayerID).Scan(&cash); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `
			UPDATE cartel.shipping_lanes
			SET last_shipment_at = $1
			WHERE player_id = $2 AND method = $3
		`, now, in.PlayerID, method.Key); err != nil {
			return err
		}
		out = ShipmentResult{
			Method:   method.Key,
			Product:  product.Key,
			Quantity: in.Quantity,
			Payout:   payout,
			Cash:     cash,
			NextAt:   now.Add(time.Duration(transit) * time.Second),
		}
		return awardCashAchievements(ctx, tx, in.PlayerID, cash)
	})
	if err != nil {
		return ShipmentResult{}, err
	}
	s.emit(ctx, "shipment", in.PlayerID, map[string]any{"method": out.Method, "qty": out.Quantity, "payout": out.Payout})
	return out, nil
}

// BuyGear purchases a gear item; each item is owned at most once.
func (s *Service) BuyGear(ctx context.Context, playerID, gearKey, idem string) error {
	gear, err := catalog.GearByKey(gearKey)
	if err != nil {
		return err
	}
	return s.runSerializable(ctx, func(tx pgx.Tx) error {
		if err := claimIdempotency(ctx, tx, playerID, idem, "buy_gear"); err != nil {
			return err
		}
		var cash int64
		if err := tx.QueryRow(ctx, `
			SELECT cash FROM cartel.players WHERE id = $1 FOR UPDATE
		`, playerID).Scan(&cash); err != nil {
			if err == pgx.ErrNoRows {
				return ErrPlayerNotFound
			}
			return err
		}
		if cash < gear.Cost {
			return fmt.Errorf("%w: %s costs %d", ErrInsufficientCash, gear.Key, gear.Cost)
		}
		cmd, err := tx.Exec(ctx, `
			INSERT INTO cartel.gear (player_id, gear_key, bought_at)
			VALUES ($1, $2, now())
			ON CONFLICT (player_id, gear_key) DO NOTHING
		`, playerID, gear.Key)
		if err != nil {
			return err
		}
		if cmd.RowsAffected() == 0 {
			return ErrGearOwned
		}
		_, err = tx.Exec(ctx, `
			UPDATE cartel.players SET cash = cash - $1, updated_at = now() WHERE id = $2
		`, gear.Cost, playerID)
		return err
	})
}

// BuyStashUpgrade raises a product's stash level by one.
func (s *Service) BuyStashUpgrade(ctx context.Context, playerID, productKey, idem string) error {
	product, err := catalog.ProductByKey(productKey)
	if err != nil {
		return err
	}
	return s.runSerializable(ctx, func(tx pgx.Tx) error {
		if err := claimIdempotency(ctx, tx, playerID, idem, "stash_upgrade"); err != nil {
			return err
		}
		qty, level, err := lockInventory(ctx, tx, playerID, product.Key)
		if err != nil {
			return err
		}
		if level >= catalog.MaxStashLevel() {
			return ErrMaxLevel
		}
		cost, err := catalog.StashUpgradeCost(level + 1)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrCorruptState, err)
		}
		var cash int64
		if err := tx.QueryRow(ctx, `
			SELECT cash FROM cartel.players WHERE id = $1 FOR UPDATE
		`, playerID).Scan(&cash); err != nil {
			if err == pgx.ErrNoRows {
				return ErrPlayerNotFound
			}
			return err
		}
		if cash < cost {
			return fmt.Errorf("%w: upgrade costs %d", ErrInsufficientCash, cost)
		}
		if err := setInventory(ctx, tx, playerID, product.Key, qty, level+1); err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `
			UPDATE cartel.players SET cash = cash - $1, updated_at = now() WHERE id = $2
		`, cost, playerID)
		return err
	})
}

// ClaimDailyReward pays the fixed daily bonus, once per UTC calendar day.
func (s *Service) ClaimDailyReward(ctx context.Context, playerID, idem string) (int64, error) {
	now := s.clk.Now()
	var cash int64
	err := s.runSerializable(ctx, func(tx pgx.Tx) error {
		if err := claimIdempotency(ctx, tx, playerID, idem, "daily_reward"); err != nil {
			return err
		}
		var lastClaim *time.Time
		if err := tx.QueryRow(ctx, `
			SELECT daily_claim_at FROM cartel.players WHERE id = $1 FOR UPDATE
		`, playerID).Scan(&lastClaim); err != nil {
			if err == pgx.ErrNoRows {
				return ErrPlayerNotFound
			}
			return err
		}
		if lastClaim != nil && SameUTCDay(*lastClaim, now) {
			return ErrAlreadyClaimed
		}
		return tx.QueryRow(ctx, `
			UPDATE cartel.players
			SET cash = cash + $1, daily_claim_at = $2, updated_at = now()
			WHERE id = $3
			RETURNING cash
		`, DailyReward, now, playerID).Scan(&cash)
	})
	if err != nil {
		return 0, err
	}
	return cash, nil
}

// Leaderboard ranks players by reputation, cash breaking ties.
func (s *Service) Leaderboard(ctx context.Context, limit int) ([]LeaderboardRow, error) {
	if limit <= 0 || limit > 100 {
		limit = 25
	}
	rows, err := s.db.Query(ctx, `
		SELECT username, reputation, cash, victories
		FROM cartel.players
		ORDER BY reputation DESC, cash DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []LeaderboardRow
	var rank int64 = 1
	for rows.Next() {
		var r LeaderboardRow
		if err := rows.Scan(&r.Username, &r.Reputation, &r.Cash, &r.Victories); err != nil {
			return nil, err
		}
		r.Rank = rank
		rank++
		out = append(out, r)
	}
	return out, rows.Err()
}

func lockInventory(ctx context.Context, tx pgx.Tx, playerID, product string) (qty int64, level int, err error) {
	err = tx.QueryRow(ctx, `
		SELECT quantity, stash_level
		FROM cartel.inventory
		WHERE player_id = $1 AND product = $2
		FOR UPDATE
	`, playerID, product).Scan(&qty, &level)
	if err == pgx.ErrNoRows {
		return 0, 1, nil
	}
	return qty, level, err
}

func setInventory(ctx context.Context, tx pgx.Tx, playerID, product string, qty int64, level int) error {
	if qty < 0 {
		return fmt.Errorf("%w: negative inventory for %s", ErrCorruptState, product)
	}
	_, err := tx.Exec(ctx, `
		INSERT INTO cartel.inventory (player_id, product, quantity, stash_level)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (player_id, product) DO UPDATE
		SET quantity = EXCLUDED.quantity, stash_level = EXCLUDED.stash_level
	`, playerID, product, qty, level)
	return err
}

func awardCashAchievements(ctx context.Context, tx pgx.Tx, playerID string, cash int64) error {
	if cash < 100_000 {
		return nil
	}
	_, err := tx.Exec(ctx, `
		INSERT INTO cartel.achievements (player_id, achievement, unlocked_at)
		VALUES ($1, 'kingpin', now())
		ON CONFLICT (player_id, achievement) DO NOTHING
	`, playerID)
	return err
}

func newReferralCode(roll func(int) int) string {
	const letters = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	buf := make([]byte, 8)
	for i := range buf {
		buf[i] = letters[roll(len(letters))]
	}
	return string(buf)
}

func deref(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}

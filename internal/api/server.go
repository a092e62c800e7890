package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"cartel/internal/catalog"
	"cartel/internal/config"
	"cartel/internal/game"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

type contextKey string

const playerContextKey contextKey = "player"

// PlayerContext is the verified identity pair supplied by the upstream
// auth proxy. This service never authenticates; it trusts the gateway's
// injected headers.
type PlayerContext struct {
	PlayerID    string
	DisplayName string
}

type Server struct {
	cfg  config.APIConfig
	log  *slog.Logger
	game *game.Service
	mux  *chi.Mux
}

func New(cfg config.APIConfig, logger *slog.Logger, gameSvc *game.Service) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:  cfg,
		log:  logger,
		game: gameSvc,
		mux:  chi.NewRouter(),
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	r := s.mux
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Get("/prices", s.handlePrices)
		r.Get("/leaderboard", s.handleLeaderboard)

		r.Group(func(r chi.Router) {
			r.Use(s.identityMiddleware)
			r.Get("/me", s.handleMe)
			r.Post("/trade/buy", s.handleBuy)
			r.Post("/trade/sell", s.handleSell)
			r.Post("/labs", s.handleInstallLab)
			r.Post("/labs/{slot}/collect", s.handleCollect)
			r.Post("/labs/{slot}/upgrade", s.handleUpgradeLab)
			r.Post("/lanes", s.handleBuyLane)
			r.Post("/lanes/{method}/upgrade", s.handleUpgradeLane)
			r.Post("/lanes/{method}/ship", s.handleShip)
			r.Post("/gear/{key}/buy", s.handleBuyGear)
			r.Post("/stash/{product}/upgrade", s.handleStashUpgrade)
			r.Post("/daily/claim", s.handleDailyClaim)
			r.Post("/pvp/enable", s.handleEnablePvp)
			r.Post("/pvp/attack", s.handleAttack)
			r.Get("/pvp/battles", s.handleBattleLog)
		})
	})
}

// identityMiddleware reads the gateway-verified player identity headers and
// runs the idempotent find-or-create before any gameplay handler.
func (s *Server) identityMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		playerID := strings.TrimSpace(r.Header.Get("X-Player-Id"))
		if playerID == "" {
			writeError(w, http.StatusUnauthorized, "missing player identity")
			return
		}
		name := strings.TrimSpace(r.Header.Get("X-Player-Name"))
		referral := strings.TrimSpace(r.Header.Get("X-Referral-Code"))
		if err := s.game.EnsurePlayer(r.Context(), playerID, name, referral); err != nil {
			s.log.Error("ensure player failed", "err", err, "player_id", playerID)
			writeError(w, http.StatusInternalServerError, "player provisioning failed")
			return
		}
		ctx := context.WithValue(r.Context(), playerContextKey, PlayerContext{
			PlayerID:    playerID,
			DisplayName: name,
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func playerFromContext(ctx context.Context) (PlayerContext, error) {
	v := ctx.Value(playerContextKey)
	p, ok := v.(PlayerContext)
	if !ok || p.PlayerID == "" {
		return PlayerContext{}, errors.New("missing identity context")
	}
	return p, nil
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	p, err := playerFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	agg, err := s.game.SettleAndGet(r.Context(), p.PlayerID)
	if err != nil {
		s.writeGameError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, agg)
}

func (s *Server) handlePrices(w http.ResponseWriter, r *http.Request) {
	out, err := s.game.Prices(r.Context())
	if err != nil {
		s.writeGameError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"prices": out})
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	out, err := s.game.Leaderboard(r.Context(), limit)
	if err != nil {
		s.writeGameError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"leaderboard": out})
}

func (s *Server) handleBuy(w http.ResponseWriter, r *http.Request) {
	s.handleTrade(w, r, s.game.BuyProduct)
}

func (s *Server) handleSell(w http.ResponseWriter, r *http.Request) {
	s.handleTrade(w, r, s.game.SellProduct)
}

func (s *Server) handleTrade(w http.ResponseWriter, r *http.Request, op func(context.Context, game.TradeInput) (game.TradeResult, error)) {
	p, err := playerFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	var in struct {
		Product  string `json:"product"`
		Quantity int64  `json:"quantity"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := op(r.Context(), game.TradeInput{
		PlayerID:       p.PlayerID,
		Product:        in.Product,
		Quantity:       in.Quantity,
		IdempotencyKey: idempotencyKey(r),
	})
	if err != nil {
		s.writeGameError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleInstallLab(w http.ResponseWriter, r *http.Request) {
	p, err := playerFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	var in struct {
		Slot    int    `json:"slot"`
		Product string `json:"product"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.game.InstallLab(r.Context(), p.PlayerID, in.Slot, in.Product, idempotencyKey(r)); err != nil {
		s.writeGameError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"ok": true})
}

func (s *Server) handleCollect(w http.ResponseWriter, r *http.Request) {
	p, err := playerFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	slot, err := strconv.Atoi(chi.URLParam(r, "slot"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid slot")
		return
	}
	out, err := s.game.CollectLab(r.Context(), p.PlayerID, slot, idempotencyKey(r))
	if err != nil {
		s.writeGameError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleUpgradeLab(w http.ResponseWriter, r *http.Request) {
	p, err := playerFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	slot, err := strconv.Atoi(chi.URLParam(r, "slot"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid slot")
		return
	}
	var in struct {
		Kind string `json:"kind"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.game.UpgradeLab(r.Context(), p.PlayerID, slot, in.Kind, idempotencyKey(r)); err != nil {
		s.writeGameError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleBuyLane(w http.ResponseWriter, r *http.Request) {
	p, err := playerFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	var in struct {
		Method string `json:"method"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.game.BuyLane(r.Context(), p.PlayerID, in.Method, idempotencyKey(r)); err != nil {
		s.writeGameError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"ok": true})
}

func (s *Server) handleUpgradeLane(w http.ResponseWriter, r *http.Request) {
	p, err := playerFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	var in struct {
		Kind string `json:"kind"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.game.UpgradeLane(r.Context(), p.PlayerID, chi.URLParam(r, "method"), in.Kind, idempotencyKey(r)); err != nil {
		s.writeGameError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleShip(w http.ResponseWriter, r *http.Request) {
	p, err := playerFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	var in struct {
		Product  string `json:"product"`
		Quantity int64  `json:"quantity"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.game.ShipProduct(r.Context(), game.ShipInput{
		PlayerID:       p.PlayerID,
		Method:         chi.URLParam(r, "method"),
		Product:        in.Product,
		Quantity:       in.Quantity,
		IdempotencyKey: idempotencyKey(r),
	})
	if err != nil {
		s.writeGameError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleBuyGear(w http.ResponseWriter, r *http.Request) {
	p, err := playerFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	if err := s.game.BuyGear(r.Context(), p.PlayerID, chi.URLParam(r, "key"), idempotencyKey(r)); err != nil {
		s.writeGameError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"ok": true})
}

func (s *Server) handleStashUpgrade(w http.ResponseWriter, r *http.Request) {
	p, err := playerFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	if err := s.game.BuyStashUpgrade(r.Context(), p.PlayerID, chi.URLParam(r, "product"), idempotencyKey(r)); err != nil {
		s.writeGameError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleDailyClaim(w http.ResponseWriter, r *http.Request) {
	p, err := playerFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	cash, err := s.game.ClaimDailyReward(r.Context(), p.PlayerID, idempotencyKey(r))
	if err != nil {
		s.writeGameError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reward": game.DailyReward, "cash": cash})
}

func (s *Server) handleEnablePvp(w http.ResponseWriter, r *http.Request) {
	p, err := playerFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	if err := s.game.EnablePvp(r.Context(), p.PlayerID, idempotencyKey(r)); err != nil {
		s.writeGameError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleAttack(w http.ResponseWriter, r *http.Request) {
	p, err := playerFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	var in struct {
		DefenderID string `json:"defender_id"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.game.Attack(r.Context(), game.AttackInput{
		AttackerID:     p.PlayerID,
		DefenderID:     strings.TrimSpace(in.DefenderID),
		IdempotencyKey: idempotencyKey(r),
	})
	if err != nil {
		s.writeGameError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleBattleLog(w http.ResponseWriter, r *http.Request) {
	p, err := playerFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	out, err := s.game.BattleLog(r.Context(), p.PlayerID, limit)
	if err != nil {
		s.writeGameError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"battles": out})
}

// writeGameError maps the service error taxonomy onto HTTP statuses:
// not-found 404, user-correctable preconditions 409, everything else 500.
func (s *Server) writeGameError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, game.ErrPlayerNotFound),
		errors.Is(err, game.ErrPlotNotFound),
		errors.Is(err, game.ErrLaneNotFound),
		errors.Is(err, game.ErrBattleNotFound),
		errors.Is(err, catalog.ErrProductNotFound),
		errors.Is(err, catalog.ErrMethodNotFound),
		errors.Is(err, catalog.ErrGearNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, game.ErrInsufficientCash),
		errors.Is(err, game.ErrStashFull),
		errors.Is(err, game.ErrStashEmpty),
		errors.Is(err, game.ErrNoCustomers),
		errors.Is(err, game.ErrPlotOccupied),
		errors.Is(err, game.ErrPlotEmpty),
		errors.Is(err, game.ErrMaxLevel),
		errors.Is(err, game.ErrRepTooLow),
		errors.Is(err, game.ErrShipmentNotReady),
		errors.Is(err, game.ErrLaneOwned),
		errors.Is(err, game.ErrGearOwned),
		errors.Is(err, game.ErrPvpDisabled),
		errors.Is(err, game.ErrPvpAlreadyOn),
		errors.Is(err, game.ErrSelfAttack),
		errors.Is(err, game.ErrAttackQuota),
		errors.Is(err, game.ErrDefendQuota),
		errors.Is(err, game.ErrAlreadyClaimed),
		errors.Is(err, game.ErrDuplicateKey):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, game.ErrTxConflict):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, game.ErrCorruptState):
		s.log.Error("corrupt stored state", "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	default:
		s.log.Error("request failed", "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// idempotencyKey takes the client-supplied key or mints one for clients
// that do not retry.
func idempotencyKey(r *http.Request) string {
	if key := strings.TrimSpace(r.Header.Get("Idempotency-Key")); key != "" {
		return key
	}
	return uuid.NewString()
}

func decodeJSON(r *http.Request, out any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": msg})
}

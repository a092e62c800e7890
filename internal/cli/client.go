package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"cartel/internal/game"
)

type Client struct {
	BaseURL string
	HTTP    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (c *Client) Me(ctx context.Context, s Session) (game.Aggregate, error) {
	var out game.Aggregate
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/me", s, nil, &out, "")
	return out, err
}

func (c *Client) Prices(ctx context.Context) ([]game.PriceView, error) {
	var out struct {
		Prices []game.PriceView `json:"prices"`
	}
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/prices", Session{}, nil, &out, "")
	return out.Prices, err
}

func (c *Client) Leaderboard(ctx context.Context, limit int) ([]game.LeaderboardRow, error) {
	var out struct {
		Leaderboard []game.LeaderboardRow `json:"leaderboard"`
	}
	path := "/v1/leaderboard"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	err := c.jsonRequest(ctx, http.MethodGet, path, Session{}, nil, &out, "")
	return out.Leaderboard, err
}

func (c *Client) Buy(ctx context.Context, s Session, product string, qty int64, idem string) (game.TradeResult, error) {
	var out game.TradeResult
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/trade/buy", s, map[string]any{
		"product":  product,
		"quantity": qty,
	}, &out, idem)
	return out, err
}

func (c *Client) Sell(ctx context.Context, s Session, product string, qty int64, idem string) (game.TradeResult, error) {
	var out game.TradeResult
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/trade/sell", s, map[string]any{
		"product":  product,
		"quantity": qty,
	}, &out, idem)
	return out, err
}

func (c *Client) InstallLab(ctx context.Context, s Session, slot int, product, idem string) error {
	return c.jsonRequest(ctx, http.MethodPost, "/v1/labs", s, map[string]any{
		"slot":    slot,
		"product": product,
	}, nil, idem)
}

func (c *Client) Collect(ctx context.Context, s Session, slot int, idem string) (game.PlotView, error) {
	var out game.PlotView
	err := c.jsonRequest(ctx, http.MethodPost, fmt.Sprintf("/v1/labs/%d/collect", slot), s, nil, &out, idem)
	return out, err
}

func (c *Client) UpgradeLab(ctx context.Context, s Session, slot int, kind, idem string) error {
	return c.jsonRequest(ctx, http.MethodPost, fmt.Sprintf("/v1/labs/%d/upgrade", slot), s, map[string]any{
		"kind": kind,
	}, nil, idem)
}

func (c *Client) BuyLane(ctx context.Context, s Session, method, idem string) error {
	return c.jsonRequest(ctx, http.MethodPost, "/v1/lanes", s, map[string]any{
		"method": method,
	}, nil, idem)
}

func (c *Client) Ship(ctx context.Context, s Session, method, product string, qty int64, idem string) (game.ShipmentResult, error) {
	var out game.ShipmentResult
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/lanes/"+url.PathEscape(method)+"/ship", s, map[string]any{
		"product":  product,
		"quantity": qty,
	}, &out, idem)
	return out, err
}

func (c *Client) BuyGear(ctx context.Context, s Session, key, idem string) error {
	return c.jsonRequest(ctx, http.MethodPost, "/v1/gear/"+url.PathEscape(key)+"/buy", s, nil, nil, idem)
}

func (c *Client) UpgradeStash(ctx context.Context, s Session, product, idem string) error {
	return c.jsonRequest(ctx, http.MethodPost, "/v1/stash/"+url.PathEscape(product)+"/upgrade", s, nil, nil, idem)
}

func (c *Client) ClaimDaily(ctx context.Context, s Session, idem string) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/daily/claim", s, nil, &out, idem)
	return out, err
}

func (c *Client) EnablePvp(ctx context.Context, s Session, idem string) error {
	return c.jsonRequest(ctx, http.MethodPost, "/v1/pvp/enable", s, nil, nil, idem)
}

func (c *Client) Attack(ctx context.Context, s Session, defenderID, idem string) (game.BattleResult, error) {
	var out game.BattleResult
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/pvp/attack", s, map[string]any{
		"defender_id": defenderID,
	}, &out, idem)
	return out, err
}

func (c *Client) BattleLog(ctx context.Context, s Session, limit int) ([]game.BattleResult, error) {
	var out struct {
		Battles []game.BattleResult `json:"battles"`
	}
	path := "/v1/pvp/battles"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	err := c.jsonRequest(ctx, http.MethodGet, path, s, nil, &out, "")
	return out.Battles, err
}

func (c *Client) jsonRequest(ctx context.Context, method, path string, s Session, in, out any, idem string) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.PlayerID != "" {
		req.Header.Set("X-Player-Id", s.PlayerID)
		if s.DisplayName != "" {
			req.Header.Set("X-Player-Name", s.DisplayName)
		}
	}
	if idem != "" {
		req.Header.Set("Idempotency-Key", idem)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s", apiErr.Error)
		}
		return fmt.Errorf("api status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

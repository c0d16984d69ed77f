package exchange

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

type positionJSON struct {
	Symbol       string `json:"symbol"`
	HoldSide     string `json:"holdSide"`
	Total        string `json:"total"`
	Available    string `json:"available"`
	OpenPriceAvg string `json:"openPriceAvg"`
	MarginMode   string `json:"marginMode"`
	UnrealizedPL string `json:"unrealizedPL"`
}

func (p positionJSON) toPosition() Position {
	return Position{
		Symbol:       p.Symbol,
		HoldSide:     PositionSide(p.HoldSide),
		Total:        parseDecimal(p.Total),
		Available:    parseDecimal(p.Available),
		OpenPriceAvg: parseDecimal(p.OpenPriceAvg),
		MarginMode:   p.MarginMode,
		UnrealizedPL: parseDecimal(p.UnrealizedPL),
	}
}

// GetPosition returns the open position for symbol, or nil when flat
func (c *Client) GetPosition(ctx context.Context, symbol string) (*Position, error) {
	log.Info().Str("symbol", symbol).Msg("Fetching open position")

	data, err := c.get(ctx, "/api/v2/mix/position/single-position", map[string]string{
		"productType": productTypeLower,
		"symbol":      symbol,
		"marginCoin":  c.marginCoin,
	})
	if err != nil {
		log.Error().Err(err).Str("symbol", symbol).Msg("Failed to fetch open position")
		return nil, err
	}

	positions, err := decodePositions(data)
	if err != nil {
		return nil, err
	}
	for _, pos := range positions {
		if pos.Total.IsPositive() {
			return &pos, nil
		}
	}
	return nil, nil
}

// GetAllPositions returns every open position on the account
func (c *Client) GetAllPositions(ctx context.Context) ([]Position, error) {
	log.Info().Msg("Fetching all open positions")

	data, err := c.get(ctx, "/api/v2/mix/position/all-position", map[string]string{
		"productType": productTypeLower,
		"marginCoin":  c.marginCoin,
	})
	if err != nil {
		log.Error().Err(err).Msg("Failed to fetch open positions")
		return nil, err
	}

	positions, err := decodePositions(data)
	if err != nil {
		return nil, err
	}

	open := positions[:0]
	for _, pos := range positions {
		if pos.Total.IsPositive() {
			open = append(open, pos)
		}
	}
	return open, nil
}

func decodePositions(data json.RawMessage) ([]Position, error) {
	if isEmpty(data) {
		return nil, nil
	}
	var raw []positionJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse positions: %w", err)
	}
	positions := make([]Position, 0, len(raw))
	for _, p := range raw {
		positions = append(positions, p.toPosition())
	}
	return positions, nil
}

// parseDecimal tolerates the empty strings the venue uses for unset numbers
func parseDecimal(s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// GetSymbolPrecision returns the price/size decimal places of a contract
func (c *Client) GetSymbolPrecision(ctx context.Context, symbol string) (*Precision, error) {
	log.Info().Str("symbol", symbol).Msg("Fetching symbol precision")

	data, err := c.get(ctx, "/api/v2/mix/market/contracts", map[string]string{
		"symbol":      symbol,
		"productType": productTypeLower,
	})
	if err != nil {
		log.Error().Err(err).Str("symbol", symbol).Msg("Failed to fetch symbol precision")
		return nil, err
	}
	if isEmpty(data) {
		return nil, ErrNoPrecision
	}

	var contracts []struct {
		Symbol      string `json:"symbol"`
		PricePlace  string `json:"pricePlace"`
		VolumePlace string `json:"volumePlace"`
	}
	if err := json.Unmarshal(data, &contracts); err != nil {
		return nil, fmt.Errorf("parse contracts: %w", err)
	}
	if len(contracts) == 0 {
		return nil, ErrNoPrecision
	}

	pricePlaces, err := strconv.Atoi(contracts[0].PricePlace)
	if err != nil {
		return nil, fmt.Errorf("%w: pricePlace %q", ErrNoPrecision, contracts[0].PricePlace)
	}
	sizePlaces, err := strconv.Atoi(contracts[0].VolumePlace)
	if err != nil {
		return nil, fmt.Errorf("%w: volumePlace %q", ErrNoPrecision, contracts[0].VolumePlace)
	}

	return &Precision{
		Symbol:      contracts[0].Symbol,
		PricePlaces: int32(pricePlaces),
		SizePlaces:  int32(sizePlaces),
	}, nil
}

// GetCandles returns up to limit bars for symbol, oldest first
func (c *Client) GetCandles(ctx context.Context, symbol, granularity string, limit int) ([]Candle, error) {
	log.Info().
		Str("symbol", symbol).
		Str("granularity", granularity).
		Int("limit", limit).
		Msg("Fetching klines")

	data, err := c.get(ctx, "/api/v2/mix/market/candles", map[string]string{
		"symbol":      symbol,
		"productType": productTypeLower,
		"granularity": granularity,
		"limit":       strconv.Itoa(limit),
	})
	if err != nil {
		log.Error().Err(err).Str("symbol", symbol).Msg("Failed to fetch klines")
		return nil, err
	}
	if isEmpty(data) {
		return nil, nil
	}

	var rows [][]string
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("parse candles: %w", err)
	}

	candles := make([]Candle, 0, len(rows))
	for _, row := range rows {
		if len(row) < 6 {
			continue
		}
		ms, err := strconv.ParseInt(row[0], 10, 64)
		if err != nil {
			continue
		}
		candles = append(candles, Candle{
			OpenTime: time.UnixMilli(ms),
			Open:     parseDecimal(row[1]),
			High:     parseDecimal(row[2]),
			Low:      parseDecimal(row[3]),
			Close:    parseDecimal(row[4]),
			Volume:   parseDecimal(row[5]),
		})
	}

	sort.Slice(candles, func(i, j int) bool {
		return candles[i].OpenTime.Before(candles[j].OpenTime)
	})
	return candles, nil
}

// GetLastPrice returns the last traded price for symbol
func (c *Client) GetLastPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	data, err := c.get(ctx, "/api/v2/mix/market/ticker", map[string]string{
		"symbol":      symbol,
		"productType": productTypeLower,
	})
	if err != nil {
		return decimal.Zero, err
	}

	var tickers []struct {
		LastPr string `json:"lastPr"`
	}
	if err := json.Unmarshal(data, &tickers); err != nil {
		return decimal.Zero, fmt.Errorf("parse ticker: %w", err)
	}
	if len(tickers) == 0 {
		return decimal.Zero, fmt.Errorf("no ticker for %s", symbol)
	}
	price := parseDecimal(strings.TrimSpace(tickers[0].LastPr))
	if !price.IsPositive() {
		return decimal.Zero, fmt.Errorf("no last price for %s", symbol)
	}
	return price, nil
}

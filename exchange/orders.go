package exchange

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// ═══════════════════════════════════════════════════════════════════════════════
// ENTRY ORDERS
// ═══════════════════════════════════════════════════════════════════════════════

type orderAckJSON struct {
	OrderID   string `json:"orderId"`
	ClientOid string `json:"clientOid"`
}

type orderDetailJSON struct {
	OrderID    string `json:"orderId"`
	ClientOid  string `json:"clientOid"`
	Symbol     string `json:"symbol"`
	Size       string `json:"size"`
	BaseVolume string `json:"baseVolume"`
	PriceAvg   string `json:"priceAvg"`
	State      string `json:"state"`
	Side       string `json:"side"`
	TradeSide  string `json:"tradeSide"`
}

// PlaceMarketOrder opens a position at market and returns the venue order id
func (c *Client) PlaceMarketOrder(ctx context.Context, order MarketOrder) (string, error) {
	log.Info().
		Str("symbol", order.Symbol).
		Str("side", string(order.Side)).
		Str("size", order.Size.String()).
		Str("client_oid", order.ClientOid).
		Msg("Placing market order")

	if c.dryRun {
		orderID := c.dryRunOrderID("MKT")
		c.rememberDryOrder(orderID, order.Symbol, order.Size, order.Side)
		log.Info().Str("order_id", orderID).Msg("📝 DRY RUN: Market order would be placed")
		return orderID, nil
	}

	body := map[string]interface{}{
		"symbol":      order.Symbol,
		"productType": productTypeUpper,
		"marginMode":  marginModeIsolated,
		"marginCoin":  c.marginCoin,
		"size":        order.Size.String(),
		"side":        string(order.Side),
		"tradeSide":   "open",
		"orderType":   "market",
	}
	if order.ClientOid != "" {
		body["clientOid"] = order.ClientOid
	}

	orderID, err := c.postOrder(ctx, "/api/v2/mix/order/place-order", body)
	if err != nil {
		log.Error().Err(err).Str("symbol", order.Symbol).Msg("❌ Market order failed")
		return "", err
	}

	log.Info().Str("order_id", orderID).Str("symbol", order.Symbol).Msg("✅ Market order placed")
	return orderID, nil
}

// ReversePosition closes the held position and opens the opposite one in a single
// venue call. holdSide identifies the position currently held.
func (c *Client) ReversePosition(ctx context.Context, symbol string, size decimal.Decimal, holdSide PositionSide, clientOid string) (string, error) {
	log.Info().
		Str("symbol", symbol).
		Str("size", size.String()).
		Str("hold_side", string(holdSide)).
		Msg("Reversing position")

	if c.dryRun {
		orderID := c.dryRunOrderID("REV")
		c.rememberDryOrder(orderID, symbol, size, holdSide.EntrySide().Opposite())
		log.Info().Str("order_id", orderID).Msg("📝 DRY RUN: Position would be reversed")
		return orderID, nil
	}

	body := map[string]interface{}{
		"symbol":      symbol,
		"productType": productTypeLower,
		"marginCoin":  c.marginCoin,
		"size":        size.String(),
		"side":        string(holdSide.EntrySide()),
		"tradeSide":   "open",
		"clientOid":   clientOid,
	}

	orderID, err := c.postOrder(ctx, "/api/v2/mix/order/click-backhand", body)
	if err != nil {
		log.Error().Err(err).Str("symbol", symbol).Msg("❌ Reverse position failed")
		return "", err
	}

	log.Info().Str("order_id", orderID).Str("symbol", symbol).Msg("🔄 Position reversed")
	return orderID, nil
}

// ModifyPresetStopLoss attaches a preset stop loss to an existing entry order
func (c *Client) ModifyPresetStopLoss(ctx context.Context, symbol, orderID string, stopLoss decimal.Decimal) error {
	log.Info().
		Str("symbol", symbol).
		Str("order_id", orderID).
		Str("stop_loss", stopLoss.String()).
		Msg("Setting preset stop loss")

	if c.dryRun {
		log.Info().Str("order_id", orderID).Msg("📝 DRY RUN: Preset stop loss would be set")
		return nil
	}

	_, err := c.post(ctx, "/api/v2/mix/order/modify-order", map[string]interface{}{
		"symbol":                 symbol,
		"productType":            productTypeUpper,
		"marginCoin":             c.marginCoin,
		"orderId":                orderID,
		"newClientOid":           orderID + "_sl",
		"newPresetStopLossPrice": stopLoss.String(),
	})
	if err != nil {
		log.Error().Err(err).Str("order_id", orderID).Msg("❌ Preset stop loss failed")
	}
	return err
}

// GetOrderDetail fetches one snapshot of an order. Returns nil when the venue has no
// data for it yet.
func (c *Client) GetOrderDetail(ctx context.Context, symbol, orderID string) (*OrderDetail, error) {
	if c.dryRun && strings.HasPrefix(orderID, "DRY_") {
		return c.dryOrderDetail(ctx, orderID)
	}

	data, err := c.get(ctx, "/api/v2/mix/order/detail", map[string]string{
		"symbol":      symbol,
		"orderId":     orderID,
		"productType": productTypeLower,
	})
	if err != nil {
		return nil, err
	}
	if isEmpty(data) {
		return nil, nil
	}

	var raw orderDetailJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse order detail: %w", err)
	}
	return &OrderDetail{
		OrderID:    raw.OrderID,
		ClientOid:  raw.ClientOid,
		Symbol:     raw.Symbol,
		Size:       parseDecimal(raw.Size),
		BaseVolume: parseDecimal(raw.BaseVolume),
		PriceAvg:   parseDecimal(raw.PriceAvg),
		State:      raw.State,
		Side:       Side(raw.Side),
		TradeSide:  raw.TradeSide,
	}, nil
}

// WaitOrderDetail polls the order every poll interval until its fill price is known,
// up to the poll timeout. The wait is cancellable through ctx.
func (c *Client) WaitOrderDetail(ctx context.Context, symbol, orderID string) (*OrderDetail, error) {
	log.Info().Str("order_id", orderID).Msg("Fetching order details")

	ctx, cancel := context.WithTimeout(ctx, c.pollTimeout)
	defer cancel()

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		detail, err := c.GetOrderDetail(ctx, symbol, orderID)
		if err == nil && detail != nil && detail.PriceAvg.IsPositive() {
			return detail, nil
		}
		if err != nil {
			log.Debug().Err(err).Str("order_id", orderID).Msg("Order detail not ready")
		}

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				log.Error().Str("order_id", orderID).Dur("timeout", c.pollTimeout).Msg("❌ Failed to fetch order details")
				return nil, ErrOrderDetailTimeout
			}
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Client) postOrder(ctx context.Context, path string, body map[string]interface{}) (string, error) {
	data, err := c.post(ctx, path, body)
	if err != nil {
		return "", err
	}
	var ack orderAckJSON
	if err := json.Unmarshal(data, &ack); err != nil {
		return "", fmt.Errorf("parse order ack: %w", err)
	}
	if ack.OrderID == "" {
		return "", fmt.Errorf("order ack without orderId")
	}
	return ack.OrderID, nil
}

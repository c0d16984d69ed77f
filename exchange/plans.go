package exchange

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"
)

// ═══════════════════════════════════════════════════════════════════════════════
// PLAN (TRIGGER) ORDERS
// ═══════════════════════════════════════════════════════════════════════════════

type planOrderJSON struct {
	OrderID       string `json:"orderId"`
	ClientOid     string `json:"clientOid"`
	Symbol        string `json:"symbol"`
	PlanType      string `json:"planType"`
	Size          string `json:"size"`
	Side          string `json:"side"`
	TradeSide     string `json:"tradeSide"`
	TriggerPrice  string `json:"triggerPrice"`
	TriggerType   string `json:"triggerType"`
	CallbackRatio string `json:"callbackRatio"`
	PlanStatus    string `json:"planStatus"`
}

// GetPendingPlanOrders lists the live trigger orders of one plan type for symbol
func (c *Client) GetPendingPlanOrders(ctx context.Context, symbol string, planType PlanType) ([]PlanOrder, error) {
	log.Info().Str("symbol", symbol).Str("plan_type", string(planType)).Msg("Fetching pending plan orders")

	data, err := c.get(ctx, "/api/v2/mix/order/orders-plan-pending", map[string]string{
		"symbol":      symbol,
		"productType": productTypeLower,
		"planType":    string(planType),
	})
	if err != nil {
		log.Error().Err(err).Str("symbol", symbol).Msg("Failed to fetch plan orders")
		return nil, err
	}
	if isEmpty(data) {
		return nil, nil
	}

	var page struct {
		EntrustedList []planOrderJSON `json:"entrustedList"`
	}
	if err := json.Unmarshal(data, &page); err != nil {
		return nil, fmt.Errorf("parse plan orders: %w", err)
	}

	orders := make([]PlanOrder, 0, len(page.EntrustedList))
	for _, o := range page.EntrustedList {
		pt := PlanType(o.PlanType)
		if pt == "" {
			pt = planType
		}
		orders = append(orders, PlanOrder{
			OrderID:       o.OrderID,
			ClientOid:     o.ClientOid,
			Symbol:        o.Symbol,
			PlanType:      pt,
			Size:          parseDecimal(o.Size),
			Side:          Side(o.Side),
			TradeSide:     o.TradeSide,
			TriggerPrice:  parseDecimal(o.TriggerPrice),
			TriggerType:   o.TriggerType,
			CallbackRatio: o.CallbackRatio,
			PlanStatus:    o.PlanStatus,
		})
	}
	return orders, nil
}

// CancelPlanOrders cancels the given trigger orders for symbol
func (c *Client) CancelPlanOrders(ctx context.Context, symbol string, orderIDs []string) error {
	if len(orderIDs) == 0 {
		return nil
	}
	log.Info().Str("symbol", symbol).Strs("order_ids", orderIDs).Msg("Cancelling plan orders")

	if c.dryRun {
		log.Info().Str("symbol", symbol).Msg("📝 DRY RUN: Plan orders would be cancelled")
		return nil
	}

	idList := make([]map[string]string, 0, len(orderIDs))
	for _, id := range orderIDs {
		idList = append(idList, map[string]string{"orderId": id})
	}

	data, err := c.post(ctx, "/api/v2/mix/order/cancel-plan-order", map[string]interface{}{
		"orderIdList": idList,
		"symbol":      symbol,
		"productType": productTypeLower,
		"marginCoin":  c.marginCoin,
	})
	if err != nil {
		log.Error().Err(err).Str("symbol", symbol).Msg("❌ Cancel plan orders failed")
		return err
	}

	var result struct {
		FailureList []struct {
			OrderID  string `json:"orderId"`
			ErrorMsg string `json:"errorMsg"`
		} `json:"failureList"`
	}
	if err := json.Unmarshal(data, &result); err == nil && len(result.FailureList) > 0 {
		for _, f := range result.FailureList {
			log.Warn().Str("order_id", f.OrderID).Str("error", f.ErrorMsg).Msg("⚠️ Plan order not cancelled")
		}
		return fmt.Errorf("%d of %d plan orders not cancelled", len(result.FailureList), len(orderIDs))
	}
	return nil
}

// PlacePlanOrder places a protective close-side trigger order
func (c *Client) PlacePlanOrder(ctx context.Context, req PlanOrderRequest) (string, error) {
	log.Info().
		Str("symbol", req.Symbol).
		Str("plan_type", string(req.PlanType)).
		Str("side", string(req.Side)).
		Str("size", req.Size.String()).
		Str("trigger_price", req.TriggerPrice.String()).
		Str("client_oid", req.ClientOid).
		Msg("Placing plan order")

	if c.dryRun {
		orderID := c.dryRunOrderID("PLAN")
		log.Info().Str("order_id", orderID).Msg("📝 DRY RUN: Plan order would be placed")
		return orderID, nil
	}

	body := map[string]interface{}{
		"planType":     string(req.PlanType),
		"symbol":       req.Symbol,
		"productType":  productTypeLower,
		"marginMode":   marginModeIsolated,
		"marginCoin":   c.marginCoin,
		"size":         req.Size.String(),
		"triggerPrice": req.TriggerPrice.String(),
		"triggerType":  req.TriggerType,
		"side":         string(req.Side),
		"tradeSide":    "close",
		"orderType":    "market",
		"clientOid":    req.ClientOid,
	}
	switch req.PlanType {
	case PlanTrack:
		body["callbackRatio"] = req.CallbackRatio.String()
	case PlanNormal:
		body["stopLossTriggerPrice"] = req.TriggerPrice.String()
		body["stopLossTriggerType"] = req.TriggerType
	}

	orderID, err := c.postOrder(ctx, "/api/v2/mix/order/place-plan-order", body)
	if err != nil {
		log.Error().Err(err).Str("client_oid", req.ClientOid).Msg("❌ Plan order failed")
		return "", err
	}

	log.Info().Str("order_id", orderID).Str("client_oid", req.ClientOid).Msg("🛡️ Plan order placed")
	return orderID, nil
}

package execution

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/mattetom/crypto/exchange"
	"github.com/mattetom/crypto/internal/config"
	"github.com/mattetom/crypto/metrics"
	"github.com/mattetom/crypto/risk"
)

// ═══════════════════════════════════════════════════════════════════════════════
// BRACKET PLACER - Protective orders for a confirmed fill
// ═══════════════════════════════════════════════════════════════════════════════
//
// Flow:
//   entry order id → wait for fill → compute prices → trailing stop + stop loss
//
// The two protective orders are independent. A failure of one never rolls back
// the other or the entry, it is reported as a partial result.
//
// ═══════════════════════════════════════════════════════════════════════════════

// BracketStatus summarizes how well a fill ended up protected
type BracketStatus string

const (
	BracketProtected   BracketStatus = "protected"   // trailing stop and stop loss placed
	BracketPartial     BracketStatus = "partial"     // one of the two placed
	BracketUnprotected BracketStatus = "unprotected" // no fill data or both failed
)

const stopLossTriggerType = "mark_price"

// Entry identifies the order a bracket protects
type Entry struct {
	Symbol    string
	Side      exchange.Side
	OrderID   string
	ClientOid string
	Precision *exchange.Precision
}

// BracketResult reports what was placed for one entry
type BracketResult struct {
	Status     BracketStatus
	FillPrice  decimal.Decimal
	FilledSize decimal.Decimal
	Prices     risk.BracketPrices

	TrailingOrderID string
	StopLossOrderID string

	FillErr     error // fill detail never arrived
	TrailingErr error
	StopLossErr error
}

// Summary is a one-line human description used in notifications
func (r *BracketResult) Summary() string {
	switch {
	case r.FillErr != nil:
		return fmt.Sprintf("UNPROTECTED: no fill data (%v)", r.FillErr)
	case r.Status == BracketProtected:
		return fmt.Sprintf("protected: fill %s size %s, trailing %s, stop loss %s",
			r.FillPrice, r.FilledSize, r.Prices.Trailing, r.Prices.StopLoss)
	default:
		return fmt.Sprintf("%s: fill %s, trailing %s (%v), stop loss %s (%v)",
			r.Status, r.FillPrice, r.Prices.Trailing, r.TrailingErr, r.Prices.StopLoss, r.StopLossErr)
	}
}

// BracketPlacer places the trailing stop and stop loss for filled entries
type BracketPlacer struct {
	gw   Gateway
	calc *risk.BracketCalculator

	callbackRatio       decimal.Decimal
	trailingTriggerType string
	stopLossMode        string
}

// NewBracketPlacer creates a placer using the bracket settings in cfg
func NewBracketPlacer(gw Gateway, cfg *config.Config) *BracketPlacer {
	mode := cfg.StopLossMode
	if mode == "" {
		mode = config.StopLossModePlan
	}
	triggerType := cfg.TrailingTriggerType
	if triggerType == "" {
		triggerType = "fill_price"
	}
	return &BracketPlacer{
		gw:                  gw,
		calc:                risk.NewBracketCalculator(cfg.TrailingOffset, cfg.StopLossOffset),
		callbackRatio:       cfg.TrailingCallbackRatio,
		trailingTriggerType: triggerType,
		stopLossMode:        mode,
	}
}

// Place waits for the entry's fill and attaches both protective orders
func (bp *BracketPlacer) Place(ctx context.Context, entry Entry) *BracketResult {
	result := &BracketResult{}

	detail, err := bp.gw.WaitOrderDetail(ctx, entry.Symbol, entry.OrderID)
	if err != nil {
		result.Status = BracketUnprotected
		result.FillErr = err
		metrics.IncBracket(string(result.Status))
		log.Error().
			Err(err).
			Str("symbol", entry.Symbol).
			Str("order_id", entry.OrderID).
			Msg("🚨 Position open without protection: fill details unavailable")
		return result
	}

	result.FillPrice = detail.PriceAvg
	result.FilledSize = entry.Precision.RoundSize(detail.FilledSize())
	result.Prices = bp.calc.Compute(entry.Side, detail.PriceAvg, entry.Precision)

	log.Info().
		Str("symbol", entry.Symbol).
		Str("fill_price", result.FillPrice.String()).
		Str("size", result.FilledSize.String()).
		Str("trailing", result.Prices.Trailing.String()).
		Str("stop_loss", result.Prices.StopLoss.String()).
		Msg("📐 Bracket computed")

	corr := entry.ClientOid
	if corr == "" {
		corr = entry.OrderID
	}
	closeSide := result.Prices.CloseSide

	result.TrailingOrderID, result.TrailingErr = bp.gw.PlacePlanOrder(ctx, exchange.PlanOrderRequest{
		Symbol:        entry.Symbol,
		PlanType:      exchange.PlanTrack,
		Size:          result.FilledSize,
		Side:          closeSide,
		TriggerPrice:  result.Prices.Trailing,
		TriggerType:   bp.trailingTriggerType,
		CallbackRatio: bp.callbackRatio,
		ClientOid:     corr + "_ts",
	})
	if result.TrailingErr == nil {
		metrics.IncOrder("trailing", string(closeSide))
	}

	if bp.stopLossMode == config.StopLossModePreset {
		result.StopLossErr = bp.gw.ModifyPresetStopLoss(ctx, entry.Symbol, entry.OrderID, result.Prices.StopLoss)
		if result.StopLossErr == nil {
			result.StopLossOrderID = entry.OrderID
			metrics.IncOrder("preset_sl", string(closeSide))
		}
	} else {
		result.StopLossOrderID, result.StopLossErr = bp.gw.PlacePlanOrder(ctx, exchange.PlanOrderRequest{
			Symbol:       entry.Symbol,
			PlanType:     exchange.PlanNormal,
			Size:         result.FilledSize,
			Side:         closeSide,
			TriggerPrice: result.Prices.StopLoss,
			TriggerType:  stopLossTriggerType,
			ClientOid:    corr + "_sl",
		})
		if result.StopLossErr == nil {
			metrics.IncOrder("stop_loss", string(closeSide))
		}
	}

	switch {
	case result.TrailingErr == nil && result.StopLossErr == nil:
		result.Status = BracketProtected
		log.Info().Str("symbol", entry.Symbol).Msg("🛡️ Bracket placed")
	case result.TrailingErr != nil && result.StopLossErr != nil:
		result.Status = BracketUnprotected
		log.Error().
			AnErr("trailing_err", result.TrailingErr).
			AnErr("stop_loss_err", result.StopLossErr).
			Str("symbol", entry.Symbol).
			Msg("🚨 Both protective orders failed")
	default:
		result.Status = BracketPartial
		log.Warn().
			AnErr("trailing_err", result.TrailingErr).
			AnErr("stop_loss_err", result.StopLossErr).
			Str("symbol", entry.Symbol).
			Msg("⚠️ Position only partially protected")
	}
	metrics.IncBracket(string(result.Status))

	return result
}

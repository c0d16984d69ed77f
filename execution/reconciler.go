package execution

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/mattetom/crypto/exchange"
	"github.com/mattetom/crypto/metrics"
)

// ═══════════════════════════════════════════════════════════════════════════════
// RECONCILER - Desired exposure vs. what the venue holds
// ═══════════════════════════════════════════════════════════════════════════════
//
// For a requested (symbol, side):
//   flat            → cancel orphan plan orders, open at market
//   same direction  → nothing to do
//   opposite        → cancel plan orders, reverse the full position in one call
//
// Whatever entry ran is handed to the bracket placer. Calls for the same symbol
// are serialized, different symbols run concurrently.
//
// ═══════════════════════════════════════════════════════════════════════════════

// State is the position state observed at the start of a reconcile
type State string

const (
	StateNoPosition       State = "no_position"
	StateSamePosition     State = "same_position"
	StateOppositePosition State = "opposite_position"
)

// Action is what the reconciler did about it
type Action string

const (
	ActionNone     Action = "no_action"
	ActionOpened   Action = "opened"
	ActionReversed Action = "reversed"
)

// bracketTimeout bounds the fill poll and both protective orders once an entry is placed
const bracketTimeout = 60 * time.Second

// ErrInvalidSize is returned when the requested size rounds to nothing
var ErrInvalidSize = errors.New("order size rounds to zero")

// Request is a desired directional exposure
type Request struct {
	Symbol string
	Side   exchange.Side
	Size   decimal.Decimal // ignored when reversing, the held size is used
}

// Outcome describes one reconcile
type Outcome struct {
	Symbol    string
	Side      exchange.Side
	State     State
	Action    Action
	OrderID   string
	ClientOid string
	Size      decimal.Decimal
	Cancelled []string
	Bracket   *BracketResult
	DryRun    bool // writes were simulated
}

// Reconciler drives the entry side of the order lifecycle
type Reconciler struct {
	gw       Gateway
	brackets *BracketPlacer
	locks    *symbolLocks

	newClientOid func() string
}

// NewReconciler creates a reconciler placing brackets through bp
func NewReconciler(gw Gateway, bp *BracketPlacer) *Reconciler {
	return &Reconciler{
		gw:           gw,
		brackets:     bp,
		locks:        newSymbolLocks(),
		newClientOid: uuid.NewString,
	}
}

// Reconcile brings the venue position for req.Symbol to req.Side
func (r *Reconciler) Reconcile(ctx context.Context, req Request) (*Outcome, error) {
	unlock := r.locks.lock(req.Symbol)
	defer unlock()

	log.Info().
		Str("symbol", req.Symbol).
		Str("side", string(req.Side)).
		Str("size", req.Size.String()).
		Msg("⚖️ Reconciling position")

	prec, err := r.gw.GetSymbolPrecision(ctx, req.Symbol)
	if err != nil {
		return nil, fmt.Errorf("symbol precision: %w", err)
	}

	pos, err := r.gw.GetPosition(ctx, req.Symbol)
	if err != nil {
		return nil, fmt.Errorf("current position: %w", err)
	}

	out := &Outcome{Symbol: req.Symbol, Side: req.Side, DryRun: r.gw.IsDryRun()}
	wanted := req.Side.PositionSide()

	switch {
	case pos != nil && pos.HoldSide == wanted:
		out.State = StateSamePosition
		out.Action = ActionNone
		metrics.IncReconcile(string(out.State))
		log.Info().
			Str("symbol", req.Symbol).
			Str("hold_side", string(pos.HoldSide)).
			Str("size", pos.Total.String()).
			Msg("⏸️ Position already open in requested direction")
		return out, nil

	case pos != nil:
		out.State = StateOppositePosition
		metrics.IncReconcile(string(out.State))

		cancelled, err := r.cancelProtective(ctx, req.Symbol)
		if err != nil {
			return nil, fmt.Errorf("cancel protective orders before reversal: %w", err)
		}
		out.Cancelled = cancelled

		size := pos.Available
		if !size.IsPositive() {
			size = pos.Total
		}
		out.Size = size
		out.ClientOid = r.newClientOid()

		orderID, err := r.gw.ReversePosition(ctx, req.Symbol, size, pos.HoldSide, out.ClientOid)
		if err != nil {
			return nil, fmt.Errorf("reverse position: %w", err)
		}
		metrics.IncOrder("reverse", string(req.Side))
		out.OrderID = orderID
		out.Action = ActionReversed

	default:
		out.State = StateNoPosition
		metrics.IncReconcile(string(out.State))

		size := prec.RoundSize(req.Size)
		if !size.IsPositive() {
			return nil, fmt.Errorf("%w: %s at %d places", ErrInvalidSize, req.Size, prec.SizePlaces)
		}

		// Orphans are not expected while flat, so failing to clear them is not fatal
		cancelled, err := r.cancelProtective(ctx, req.Symbol)
		if err != nil {
			log.Warn().Err(err).Str("symbol", req.Symbol).Msg("⚠️ Could not clear stale plan orders")
		}
		out.Cancelled = cancelled

		out.Size = size
		out.ClientOid = r.newClientOid()

		orderID, err := r.gw.PlaceMarketOrder(ctx, exchange.MarketOrder{
			Symbol:    req.Symbol,
			Size:      size,
			Side:      req.Side,
			ClientOid: out.ClientOid,
		})
		if err != nil {
			return nil, fmt.Errorf("place market order: %w", err)
		}
		metrics.IncOrder("market", string(req.Side))
		out.OrderID = orderID
		out.Action = ActionOpened
	}

	// The entry exists on the venue now, so protection must not depend on the caller
	bctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), bracketTimeout)
	defer cancel()
	out.Bracket = r.brackets.Place(bctx, Entry{
		Symbol:    req.Symbol,
		Side:      req.Side,
		OrderID:   out.OrderID,
		ClientOid: out.ClientOid,
		Precision: prec,
	})

	log.Info().
		Str("symbol", req.Symbol).
		Str("action", string(out.Action)).
		Str("order_id", out.OrderID).
		Str("bracket", string(out.Bracket.Status)).
		Msg("✅ Reconcile complete")

	return out, nil
}

// cancelProtective cancels every pending trailing stop and stop loss for symbol
func (r *Reconciler) cancelProtective(ctx context.Context, symbol string) ([]string, error) {
	var ids []string
	for _, planType := range []exchange.PlanType{exchange.PlanNormal, exchange.PlanTrack} {
		orders, err := r.gw.GetPendingPlanOrders(ctx, symbol, planType)
		if err != nil {
			return nil, fmt.Errorf("list %s orders: %w", planType, err)
		}
		for _, o := range orders {
			ids = append(ids, o.OrderID)
		}
	}
	if len(ids) == 0 {
		return nil, nil
	}

	if err := r.gw.CancelPlanOrders(ctx, symbol, ids); err != nil {
		return nil, err
	}
	log.Info().Str("symbol", symbol).Int("count", len(ids)).Msg("🧹 Cancelled plan orders")
	return ids, nil
}

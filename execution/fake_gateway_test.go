package execution

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/mattetom/crypto/exchange"
	"github.com/mattetom/crypto/internal/config"
)

// fakeGateway is an in-memory venue. Market orders and reversals update the held
// position so consecutive reconciles see the result of earlier ones.
type fakeGateway struct {
	mu sync.Mutex

	precision *exchange.Precision
	position  *exchange.Position
	pending   map[exchange.PlanType][]exchange.PlanOrder
	fillPrice decimal.Decimal

	calls        []string
	marketOrders []exchange.MarketOrder
	reversals    []reverseCall
	cancelled    [][]string
	planOrders   []exchange.PlanOrderRequest
	presetSL     []decimal.Decimal

	precisionErr error
	positionErr  error
	listErr      error
	marketErr    error
	detailErr    error
	planErr      map[exchange.PlanType]error

	dryRun bool

	// afterEntry runs once an entry order has been accepted
	afterEntry func()

	nextID int
}

type reverseCall struct {
	symbol   string
	size     decimal.Decimal
	holdSide exchange.PositionSide
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		precision: &exchange.Precision{Symbol: "BTCUSDT", PricePlaces: 2, SizePlaces: 3},
		pending:   make(map[exchange.PlanType][]exchange.PlanOrder),
		fillPrice: decimal.NewFromInt(100),
		planErr:   make(map[exchange.PlanType]error),
	}
}

func (f *fakeGateway) record(call string) {
	f.calls = append(f.calls, call)
}

func (f *fakeGateway) id() string {
	f.nextID++
	return fmt.Sprintf("ord-%d", f.nextID)
}

func (f *fakeGateway) GetSymbolPrecision(ctx context.Context, symbol string) (*exchange.Precision, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("precision")
	if f.precisionErr != nil {
		return nil, f.precisionErr
	}
	return f.precision, nil
}

func (f *fakeGateway) GetPosition(ctx context.Context, symbol string) (*exchange.Position, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("position")
	if f.positionErr != nil {
		return nil, f.positionErr
	}
	if f.position == nil {
		return nil, nil
	}
	p := *f.position
	return &p, nil
}

func (f *fakeGateway) GetPendingPlanOrders(ctx context.Context, symbol string, planType exchange.PlanType) ([]exchange.PlanOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("list:" + string(planType))
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.pending[planType], nil
}

func (f *fakeGateway) CancelPlanOrders(ctx context.Context, symbol string, orderIDs []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("cancel")
	f.cancelled = append(f.cancelled, orderIDs)
	f.pending = make(map[exchange.PlanType][]exchange.PlanOrder)
	return nil
}

func (f *fakeGateway) PlaceMarketOrder(ctx context.Context, order exchange.MarketOrder) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("market")
	if f.marketErr != nil {
		return "", f.marketErr
	}
	f.marketOrders = append(f.marketOrders, order)
	if f.afterEntry != nil {
		f.afterEntry()
	}
	f.position = &exchange.Position{
		Symbol:    order.Symbol,
		HoldSide:  order.Side.PositionSide(),
		Total:     order.Size,
		Available: order.Size,
	}
	return f.id(), nil
}

func (f *fakeGateway) ReversePosition(ctx context.Context, symbol string, size decimal.Decimal, holdSide exchange.PositionSide, clientOid string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("reverse")
	f.reversals = append(f.reversals, reverseCall{symbol: symbol, size: size, holdSide: holdSide})
	if f.afterEntry != nil {
		f.afterEntry()
	}
	f.position = &exchange.Position{
		Symbol:    symbol,
		HoldSide:  holdSide.EntrySide().Opposite().PositionSide(),
		Total:     size,
		Available: size,
	}
	return f.id(), nil
}

func (f *fakeGateway) WaitOrderDetail(ctx context.Context, symbol, orderID string) (*exchange.OrderDetail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("detail")
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.detailErr != nil {
		return nil, f.detailErr
	}
	size := decimal.Zero
	if f.position != nil {
		size = f.position.Total
	}
	return &exchange.OrderDetail{OrderID: orderID, Symbol: symbol, BaseVolume: size, PriceAvg: f.fillPrice}, nil
}

func (f *fakeGateway) PlacePlanOrder(ctx context.Context, req exchange.PlanOrderRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("plan:" + string(req.PlanType))
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := f.planErr[req.PlanType]; err != nil {
		return "", err
	}
	f.planOrders = append(f.planOrders, req)
	id := f.id()
	f.pending[req.PlanType] = append(f.pending[req.PlanType], exchange.PlanOrder{OrderID: id, PlanType: req.PlanType})
	return id, nil
}

func (f *fakeGateway) ModifyPresetStopLoss(ctx context.Context, symbol, orderID string, stopLoss decimal.Decimal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("preset_sl")
	if err := ctx.Err(); err != nil {
		return err
	}
	f.presetSL = append(f.presetSL, stopLoss)
	return nil
}

func (f *fakeGateway) IsDryRun() bool {
	return f.dryRun
}

var errVenue = errors.New("venue unavailable")

func testConfig() *config.Config {
	return &config.Config{
		TrailingOffset:        decimal.RequireFromString("0.0075"),
		StopLossOffset:        decimal.RequireFromString("0.0075"),
		TrailingCallbackRatio: decimal.RequireFromString("0.15"),
		TrailingTriggerType:   "fill_price",
		StopLossMode:          config.StopLossModePlan,
	}
}

func newTestReconciler(gw *fakeGateway, cfg *config.Config) *Reconciler {
	r := NewReconciler(gw, NewBracketPlacer(gw, cfg))
	n := 0
	r.newClientOid = func() string {
		n++
		return fmt.Sprintf("coid-%d", n)
	}
	return r
}

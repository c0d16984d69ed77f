package execution

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/mattetom/crypto/exchange"
)

// Gateway is the slice of the venue client the order flow needs
type Gateway interface {
	GetSymbolPrecision(ctx context.Context, symbol string) (*exchange.Precision, error)
	GetPosition(ctx context.Context, symbol string) (*exchange.Position, error)
	GetPendingPlanOrders(ctx context.Context, symbol string, planType exchange.PlanType) ([]exchange.PlanOrder, error)
	CancelPlanOrders(ctx context.Context, symbol string, orderIDs []string) error
	PlaceMarketOrder(ctx context.Context, order exchange.MarketOrder) (string, error)
	ReversePosition(ctx context.Context, symbol string, size decimal.Decimal, holdSide exchange.PositionSide, clientOid string) (string, error)
	WaitOrderDetail(ctx context.Context, symbol, orderID string) (*exchange.OrderDetail, error)
	PlacePlanOrder(ctx context.Context, req exchange.PlanOrderRequest) (string, error)
	ModifyPresetStopLoss(ctx context.Context, symbol, orderID string, stopLoss decimal.Decimal) error
	IsDryRun() bool
}

var _ Gateway = (*exchange.Client)(nil)

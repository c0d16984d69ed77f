package exchange

import (
	"context"

	"github.com/shopspring/decimal"
)

// Dry-run entries fill at the last traded price so the bracket path can be exercised
// without touching the account.

type dryOrder struct {
	symbol string
	size   decimal.Decimal
	side   Side
}

func (c *Client) rememberDryOrder(orderID, symbol string, size decimal.Decimal, side Side) {
	c.dryMu.Lock()
	defer c.dryMu.Unlock()
	c.dryOrders[orderID] = dryOrder{symbol: symbol, size: size, side: side}
}

func (c *Client) dryOrderDetail(ctx context.Context, orderID string) (*OrderDetail, error) {
	c.dryMu.Lock()
	o, ok := c.dryOrders[orderID]
	c.dryMu.Unlock()
	if !ok {
		return nil, nil
	}

	price, err := c.GetLastPrice(ctx, o.symbol)
	if err != nil {
		return nil, err
	}

	return &OrderDetail{
		OrderID:    orderID,
		Symbol:     o.symbol,
		Size:       o.size,
		BaseVolume: o.size,
		PriceAvg:   price,
		State:      "filled",
		Side:       o.side,
		TradeSide:  "open",
	}, nil
}

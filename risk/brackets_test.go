package risk

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/mattetom/crypto/exchange"
)

func TestBracketCompute(t *testing.T) {
	calc := NewBracketCalculator(decimal.RequireFromString("0.0075"), decimal.RequireFromString("0.0075"))
	prec := &exchange.Precision{Symbol: "BTCUSDT", PricePlaces: 2, SizePlaces: 3}

	tests := []struct {
		name         string
		side         exchange.Side
		fill         string
		wantTrailing string
		wantStopLoss string
		wantClose    exchange.Side
	}{
		{"long", exchange.SideBuy, "100", "100.75", "99.25", exchange.SideSell},
		{"short", exchange.SideSell, "100", "99.25", "100.75", exchange.SideBuy},
		{"rounded", exchange.SideBuy, "123.456", "124.38", "122.53", exchange.SideSell},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := calc.Compute(tt.side, decimal.RequireFromString(tt.fill), prec)
			if !got.Trailing.Equal(decimal.RequireFromString(tt.wantTrailing)) {
				t.Errorf("expected trailing %s, got %s", tt.wantTrailing, got.Trailing)
			}
			if !got.StopLoss.Equal(decimal.RequireFromString(tt.wantStopLoss)) {
				t.Errorf("expected stop loss %s, got %s", tt.wantStopLoss, got.StopLoss)
			}
			if got.CloseSide != tt.wantClose {
				t.Errorf("expected close side %s, got %s", tt.wantClose, got.CloseSide)
			}
		})
	}
}

func TestBracketZeroPricePlaces(t *testing.T) {
	calc := NewBracketCalculator(decimal.RequireFromString("0.02"), decimal.RequireFromString("0.01"))
	prec := &exchange.Precision{PricePlaces: 0}

	got := calc.Compute(exchange.SideBuy, decimal.NewFromInt(1000), prec)
	if !got.Trailing.Equal(decimal.NewFromInt(1020)) || !got.StopLoss.Equal(decimal.NewFromInt(990)) {
		t.Errorf("expected 1020/990, got %s/%s", got.Trailing, got.StopLoss)
	}
}

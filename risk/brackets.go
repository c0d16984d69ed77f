package risk

import (
	"github.com/shopspring/decimal"

	"github.com/mattetom/crypto/exchange"
)

// ═══════════════════════════════════════════════════════════════════════════════
// BRACKET PRICING - Trigger prices for the orders protecting a fill
// ═══════════════════════════════════════════════════════════════════════════════
//
// A long is protected by a trailing stop above the fill and a stop loss below it.
// A short mirrors both. Protective orders always use the side that closes the
// position.
//
// ═══════════════════════════════════════════════════════════════════════════════

// BracketPrices are the computed trigger prices for one fill
type BracketPrices struct {
	Trailing  decimal.Decimal
	StopLoss  decimal.Decimal
	CloseSide exchange.Side
}

// BracketCalculator derives bracket prices from fixed fractional offsets
type BracketCalculator struct {
	trailingOffset decimal.Decimal
	stopLossOffset decimal.Decimal
}

// NewBracketCalculator creates a calculator. Offsets are fractions of the fill
// price, e.g. 0.0075 for 0.75%.
func NewBracketCalculator(trailingOffset, stopLossOffset decimal.Decimal) *BracketCalculator {
	return &BracketCalculator{
		trailingOffset: trailingOffset,
		stopLossOffset: stopLossOffset,
	}
}

// Compute returns the bracket for an entry on entrySide filled at fill, rounded to
// the contract's price precision
func (bc *BracketCalculator) Compute(entrySide exchange.Side, fill decimal.Decimal, prec *exchange.Precision) BracketPrices {
	one := decimal.NewFromInt(1)

	var trailing, stopLoss decimal.Decimal
	if entrySide == exchange.SideBuy {
		trailing = fill.Mul(one.Add(bc.trailingOffset))
		stopLoss = fill.Mul(one.Sub(bc.stopLossOffset))
	} else {
		trailing = fill.Mul(one.Sub(bc.trailingOffset))
		stopLoss = fill.Mul(one.Add(bc.stopLossOffset))
	}

	return BracketPrices{
		Trailing:  prec.RoundPrice(trailing),
		StopLoss:  prec.RoundPrice(stopLoss),
		CloseSide: entrySide.Opposite(),
	}
}

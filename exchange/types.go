package exchange

import (
	"time"

	"github.com/shopspring/decimal"
)

// ═══════════════════════════════════════════════════════════════════════════════
// VENUE TYPES
// ═══════════════════════════════════════════════════════════════════════════════

// Side is the order direction on the wire
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Opposite returns the side that closes a position opened with s
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// PositionSide returns the position an entry on s opens
func (s Side) PositionSide() PositionSide {
	if s == SideBuy {
		return PositionLong
	}
	return PositionShort
}

// PositionSide is the venue holdSide
type PositionSide string

const (
	PositionLong  PositionSide = "long"
	PositionShort PositionSide = "short"
)

// EntrySide returns the order side that opened a position of this direction
func (p PositionSide) EntrySide() Side {
	if p == PositionLong {
		return SideBuy
	}
	return SideSell
}

// PlanType is the venue category of a trigger order
type PlanType string

const (
	PlanNormal PlanType = "normal_plan" // stop loss
	PlanTrack  PlanType = "track_plan"  // trailing stop
)

// Position is an open futures position as reported by the venue
type Position struct {
	Symbol       string
	HoldSide     PositionSide
	Total        decimal.Decimal
	Available    decimal.Decimal
	OpenPriceAvg decimal.Decimal
	MarginMode   string
	UnrealizedPL decimal.Decimal
}

// PlanOrder is a pending trigger order
type PlanOrder struct {
	OrderID       string
	ClientOid     string
	Symbol        string
	PlanType      PlanType
	Size          decimal.Decimal
	Side          Side
	TradeSide     string
	TriggerPrice  decimal.Decimal
	TriggerType   string
	CallbackRatio string
	PlanStatus    string
}

// OrderDetail is the venue view of a placed order
type OrderDetail struct {
	OrderID    string
	ClientOid  string
	Symbol     string
	Size       decimal.Decimal
	BaseVolume decimal.Decimal
	PriceAvg   decimal.Decimal
	State      string
	Side       Side
	TradeSide  string
}

// FilledSize prefers the executed volume and falls back to the requested size
func (d *OrderDetail) FilledSize() decimal.Decimal {
	if d.BaseVolume.IsPositive() {
		return d.BaseVolume
	}
	return d.Size
}

// Precision is the decimal places used for a contract's prices and sizes
type Precision struct {
	Symbol      string
	PricePlaces int32
	SizePlaces  int32
}

// RoundPrice rounds v to the contract's price precision
func (p *Precision) RoundPrice(v decimal.Decimal) decimal.Decimal {
	return v.Round(p.PricePlaces)
}

// RoundSize truncates v to the contract's size precision so it never exceeds what was asked for
func (p *Precision) RoundSize(v decimal.Decimal) decimal.Decimal {
	return v.Truncate(p.SizePlaces)
}

// Candle is one OHLCV bar
type Candle struct {
	OpenTime time.Time
	Open     decimal.Decimal
	High     decimal.Decimal
	Low      decimal.Decimal
	Close    decimal.Decimal
	Volume   decimal.Decimal
}

// MarketOrder is an entry order request
type MarketOrder struct {
	Symbol    string
	Size      decimal.Decimal
	Side      Side
	ClientOid string
}

// PlanOrderRequest is a protective trigger order request
type PlanOrderRequest struct {
	Symbol        string
	PlanType      PlanType
	Size          decimal.Decimal
	Side          Side
	TriggerPrice  decimal.Decimal
	TriggerType   string
	CallbackRatio decimal.Decimal // track_plan only
	ClientOid     string
}

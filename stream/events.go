package stream

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mattetom/crypto/exchange"
)

// FillEvent is a fully filled order reported on the private stream
type FillEvent struct {
	Symbol    string
	OrderID   string
	ClientOid string
	Side      exchange.Side
	TradeSide string // open or close
	PosSide   string // long or short, hedge mode only
	Price     decimal.Decimal
	Size      decimal.Decimal
	Time      time.Time
}

// IsClose reports whether the fill reduced a position
func (e FillEvent) IsClose() bool {
	return e.TradeSide == "close" || e.TradeSide == "reduce_close_long" || e.TradeSide == "reduce_close_short"
}

// ClosedPosition returns the direction of the position a closing fill exited
func (e FillEvent) ClosedPosition() (exchange.PositionSide, bool) {
	if !e.IsClose() {
		return "", false
	}
	switch e.PosSide {
	case string(exchange.PositionLong):
		return exchange.PositionLong, true
	case string(exchange.PositionShort):
		return exchange.PositionShort, true
	}
	// one-way mode: selling closes a long
	return e.Side.Opposite().PositionSide(), true
}

type pushMessage struct {
	Event  string          `json:"event"`
	Code   json.Number     `json:"code"`
	Msg    string          `json:"msg"`
	Action string          `json:"action"`
	Arg    json.RawMessage `json:"arg"`
	Data   []orderPush     `json:"data"`
}

type orderPush struct {
	InstID        string `json:"instId"`
	OrderID       string `json:"orderId"`
	ClientOid     string `json:"clientOid"`
	Side          string `json:"side"`
	TradeSide     string `json:"tradeSide"`
	PosSide       string `json:"posSide"`
	Status        string `json:"status"`
	PriceAvg      string `json:"priceAvg"`
	FillPrice     string `json:"fillPrice"`
	AccBaseVolume string `json:"accBaseVolume"`
	Size          string `json:"size"`
	UTime         string `json:"uTime"`
}

// parseFills extracts the filled orders of one push message
func parseFills(raw []byte) ([]FillEvent, error) {
	var msg pushMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, err
	}

	var fills []FillEvent
	for _, o := range msg.Data {
		if o.Status != "filled" {
			continue
		}

		price := parseDecimal(o.PriceAvg)
		if !price.IsPositive() {
			price = parseDecimal(o.FillPrice)
		}
		size := parseDecimal(o.AccBaseVolume)
		if !size.IsPositive() {
			size = parseDecimal(o.Size)
		}

		ev := FillEvent{
			Symbol:    o.InstID,
			OrderID:   o.OrderID,
			ClientOid: o.ClientOid,
			Side:      exchange.Side(o.Side),
			TradeSide: o.TradeSide,
			PosSide:   o.PosSide,
			Price:     price,
			Size:      size,
		}
		if ms, err := strconv.ParseInt(o.UTime, 10, 64); err == nil {
			ev.Time = time.UnixMilli(ms)
		}
		fills = append(fills, ev)
	}
	return fills, nil
}

func parseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

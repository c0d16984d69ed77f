package feeds

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mattetom/crypto/exchange"
	"github.com/mattetom/crypto/internal/config"
	"github.com/mattetom/crypto/internal/indicators"
)

// ═══════════════════════════════════════════════════════════════════════════════
// MACD FEED - Latest MACD reading from venue klines
// ═══════════════════════════════════════════════════════════════════════════════
//
// Used for:
//   - One histogram sample per signal cycle
//
// ═══════════════════════════════════════════════════════════════════════════════

// ErrNotEnoughCandles is returned when the venue has too little history for the periods
var ErrNotEnoughCandles = errors.New("not enough candles for MACD")

// CandleSource is anything that serves klines oldest first
type CandleSource interface {
	GetCandles(ctx context.Context, symbol, granularity string, limit int) ([]exchange.Candle, error)
}

// MACDReading is the MACD state at the latest bar
type MACDReading struct {
	Symbol    string
	BarTime   time.Time
	Close     float64
	MACD      float64
	Signal    float64
	Histogram float64
}

// MACDFeed computes MACD readings for one symbol
type MACDFeed struct {
	src         CandleSource
	symbol      string
	granularity string
	limit       int

	fast   int
	slow   int
	signal int
}

// NewMACDFeed creates a feed using the MACD settings in cfg
func NewMACDFeed(src CandleSource, cfg *config.Config) *MACDFeed {
	return &MACDFeed{
		src:         src,
		symbol:      cfg.MACDSymbol,
		granularity: cfg.MACDGranularity,
		limit:       cfg.MACDCandleLimit,
		fast:        cfg.MACDFast,
		slow:        cfg.MACDSlow,
		signal:      cfg.MACDSignal,
	}
}

// Symbol returns the instrument the feed reads
func (f *MACDFeed) Symbol() string {
	return f.symbol
}

// Read fetches klines and returns the reading at the most recent bar
func (f *MACDFeed) Read(ctx context.Context) (*MACDReading, error) {
	candles, err := f.src.GetCandles(ctx, f.symbol, f.granularity, f.limit)
	if err != nil {
		return nil, fmt.Errorf("fetch candles: %w", err)
	}
	if len(candles) < f.slow+f.signal {
		return nil, fmt.Errorf("%w: have %d, need %d", ErrNotEnoughCandles, len(candles), f.slow+f.signal)
	}

	closes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close.InexactFloat64()
	}

	res := indicators.MACD(closes, f.fast, f.slow, f.signal)
	last := len(closes) - 1

	reading := &MACDReading{
		Symbol:    f.symbol,
		BarTime:   candles[last].OpenTime,
		Close:     closes[last],
		MACD:      res.MACD[last],
		Signal:    res.Signal[last],
		Histogram: res.Last(),
	}

	log.Debug().
		Str("symbol", f.symbol).
		Float64("macd", reading.MACD).
		Float64("signal", reading.Signal).
		Float64("histogram", reading.Histogram).
		Msg("MACD reading")

	return reading, nil
}

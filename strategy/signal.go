package strategy

import (
	"time"

	"github.com/mattetom/crypto/exchange"
)

// ═══════════════════════════════════════════════════════════════════════════════
// SIGNALS - Directional output of a strategy
// ═══════════════════════════════════════════════════════════════════════════════

// Region is the sign classification of a histogram sample
type Region string

const (
	RegionBullish Region = "bullish"
	RegionBearish Region = "bearish"
)

// Classify maps a histogram value to a region. Zero is bearish.
func Classify(histogram float64) Region {
	if histogram > 0 {
		return RegionBullish
	}
	return RegionBearish
}

// Side returns the entry side that follows the region
func (r Region) Side() exchange.Side {
	if r == RegionBullish {
		return exchange.SideBuy
	}
	return exchange.SideSell
}

// Signal represents a trade signal from a strategy
type Signal struct {
	Symbol string
	Region Region
	Side   exchange.Side
	At     time.Time
	Reason string // Human-readable reason
}

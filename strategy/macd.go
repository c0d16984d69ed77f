package strategy

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// ═══════════════════════════════════════════════════════════════════════════════
// MACD REGION STRATEGY
// ═══════════════════════════════════════════════════════════════════════════════
//
// One histogram sample is recorded per cycle. A signal fires when the last 10
// samples share a region and the sample before them did not, i.e. the region
// flipped and then held for ten minutes. Each direction has its own cooldown.
//
// ═══════════════════════════════════════════════════════════════════════════════

const (
	HistoryCapacity = 15
	MinSamples      = 12
	StableRun       = 10

	MinSampleGap = 50 * time.Second
	MaxSampleGap = 70 * time.Second
)

// ErrHistoryGap is returned when consecutive samples are not about a minute apart
var ErrHistoryGap = errors.New("macd history has a gap")

// Sample is one recorded histogram observation
type Sample struct {
	Time      time.Time `json:"time"`
	Region    Region    `json:"region"`
	Histogram float64   `json:"histogram"`
}

// SignalState is the persisted history of the strategy
type SignalState struct {
	History           []Sample   `json:"macd_history"`
	LastBullishAction *time.Time `json:"last_bullish_action_time"`
	LastBearishAction *time.Time `json:"last_bearish_action_time"`
}

// DecodeState parses a stored state blob
func DecodeState(data []byte) (*SignalState, error) {
	var s SignalState
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode signal state: %w", err)
	}
	if len(s.History) > HistoryCapacity {
		s.History = s.History[len(s.History)-HistoryCapacity:]
	}
	return &s, nil
}

// Encode serializes the state for storage
func (s *SignalState) Encode() ([]byte, error) {
	return json.Marshal(s)
}

// Append records a sample, evicting the oldest beyond capacity
func (s *SignalState) Append(sample Sample) {
	s.History = append(s.History, sample)
	if len(s.History) > HistoryCapacity {
		s.History = append([]Sample(nil), s.History[len(s.History)-HistoryCapacity:]...)
	}
}

// MarkAction records that a signal for region was acted upon at t
func (s *SignalState) MarkAction(region Region, t time.Time) {
	if region == RegionBullish {
		s.LastBullishAction = &t
	} else {
		s.LastBearishAction = &t
	}
}

func (s *SignalState) lastAction(region Region) *time.Time {
	if region == RegionBullish {
		return s.LastBullishAction
	}
	return s.LastBearishAction
}

// MACDStrategy evaluates a SignalState for sustained region flips
type MACDStrategy struct {
	symbol   string
	cooldown time.Duration
}

// NewMACDStrategy creates the strategy for symbol with a per-direction cooldown
func NewMACDStrategy(symbol string, cooldown time.Duration) *MACDStrategy {
	return &MACDStrategy{symbol: symbol, cooldown: cooldown}
}

// Name returns the strategy identifier
func (m *MACDStrategy) Name() string {
	return "macd_region"
}

// Evaluate returns a signal or nil. A history gap returns ErrHistoryGap and no
// decision for this cycle.
func (m *MACDStrategy) Evaluate(state *SignalState, now time.Time) (*Signal, error) {
	n := len(state.History)
	if n < MinSamples {
		log.Debug().Int("samples", n).Msg("Not enough MACD history yet")
		return nil, nil
	}

	window := state.History[n-MinSamples:]
	for i := 1; i < len(window); i++ {
		gap := window[i].Time.Sub(window[i-1].Time)
		if gap < MinSampleGap || gap > MaxSampleGap {
			return nil, fmt.Errorf("%w: %s between %s and %s", ErrHistoryGap, gap,
				window[i-1].Time.Format(time.RFC3339), window[i].Time.Format(time.RFC3339))
		}
	}

	region := state.History[n-1].Region
	for _, s := range state.History[n-StableRun:] {
		if s.Region != region {
			return nil, nil
		}
	}
	if state.History[n-StableRun-1].Region == region {
		return nil, nil
	}

	if last := state.lastAction(region); last != nil && now.Sub(*last) < m.cooldown {
		log.Info().
			Str("region", string(region)).
			Time("last_action", *last).
			Dur("cooldown", m.cooldown).
			Msg("⏳ MACD signal suppressed by cooldown")
		return nil, nil
	}

	return &Signal{
		Symbol: m.symbol,
		Region: region,
		Side:   region.Side(),
		At:     now,
		Reason: fmt.Sprintf("MACD histogram %s for %d samples after a flip", region, StableRun),
	}, nil
}

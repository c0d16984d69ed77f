package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/mattetom/crypto/exchange"
	"github.com/mattetom/crypto/execution"
	"github.com/mattetom/crypto/feeds"
	"github.com/mattetom/crypto/internal/config"
	"github.com/mattetom/crypto/metrics"
	"github.com/mattetom/crypto/notify"
	"github.com/mattetom/crypto/storage"
	"github.com/mattetom/crypto/strategy"
	"github.com/mattetom/crypto/stream"
)

// ═══════════════════════════════════════════════════════════════════════════════
// ENGINE - Central orchestrator
// ═══════════════════════════════════════════════════════════════════════════════
//
// Flow:
//   Trigger (HTTP / timer / fill) → Reconciler → Brackets → Journal → Notify
//   Timer → MACD feed → Strategy → Reconciler
//
// ═══════════════════════════════════════════════════════════════════════════════

// StateKey is the blob key of the MACD signal history
const StateKey = "macd-history"

// ErrNoSize is returned when neither the request nor the configuration gives a size
var ErrNoSize = errors.New("order size not set")

// Trader reconciles a desired exposure against the venue
type Trader interface {
	Reconcile(ctx context.Context, req execution.Request) (*execution.Outcome, error)
}

// PositionReader lists open venue positions
type PositionReader interface {
	GetAllPositions(ctx context.Context) ([]exchange.Position, error)
}

// MACDSource produces one MACD reading per call
type MACDSource interface {
	Symbol() string
	Read(ctx context.Context) (*feeds.MACDReading, error)
}

// Journal records orders and fills
type Journal interface {
	RecordTrade(ctx context.Context, rec *storage.TradeRecord) error
	RecentTrades(ctx context.Context, symbol string, limit int) ([]storage.TradeRecord, error)
}

// Deps are the collaborators of an Engine. MACD, State and Journal are optional.
type Deps struct {
	Trader    Trader
	Positions PositionReader
	MACD      MACDSource
	Strategy  *strategy.MACDStrategy
	State     storage.BlobStore
	Journal   Journal
	Notifier  notify.Notifier
}

// Engine routes triggers through the reconciler and reports the outcome
type Engine struct {
	trader    Trader
	positions PositionReader
	macd      MACDSource
	strat     *strategy.MACDStrategy
	state     storage.BlobStore
	journal   Journal
	notifier  notify.Notifier

	defaultSize       decimal.Decimal
	macdSize          decimal.Decimal
	macdInterval      time.Duration
	heartbeatInterval time.Duration
	reentry           bool

	// MACD cycles read-modify-write one state blob
	macdMu sync.Mutex
}

// NewEngine creates the engine
func NewEngine(cfg *config.Config, d Deps) *Engine {
	n := d.Notifier
	if n == nil {
		n = notify.Nop{}
	}
	macdSize := cfg.MACDOrderSize
	if !macdSize.IsPositive() {
		macdSize = cfg.DefaultOrderSize
	}
	return &Engine{
		trader:            d.Trader,
		positions:         d.Positions,
		macd:              d.MACD,
		strat:             d.Strategy,
		state:             d.State,
		journal:           d.Journal,
		notifier:          n,
		defaultSize:       cfg.DefaultOrderSize,
		macdSize:          macdSize,
		macdInterval:      cfg.MACDInterval,
		heartbeatInterval: cfg.HeartbeatInterval,
		reentry:           cfg.StreamReentry,
	}
}

// ═══════════════════════════════════════════════════════════════════════════════
// MANUAL TRIGGERS
// ═══════════════════════════════════════════════════════════════════════════════

// OpenLong makes symbol long. A zero size falls back to DEFAULT_ORDER_SIZE.
func (e *Engine) OpenLong(ctx context.Context, symbol string, size decimal.Decimal) (*execution.Outcome, error) {
	return e.open(ctx, symbol, exchange.SideBuy, size, "manual")
}

// OpenShort makes symbol short. A zero size falls back to DEFAULT_ORDER_SIZE.
func (e *Engine) OpenShort(ctx context.Context, symbol string, size decimal.Decimal) (*execution.Outcome, error) {
	return e.open(ctx, symbol, exchange.SideSell, size, "manual")
}

func (e *Engine) open(ctx context.Context, symbol string, side exchange.Side, size decimal.Decimal, source string) (*execution.Outcome, error) {
	if !size.IsPositive() {
		size = e.defaultSize
	}
	if !size.IsPositive() {
		return nil, ErrNoSize
	}

	out, err := e.trader.Reconcile(ctx, execution.Request{Symbol: symbol, Side: side, Size: size})

	// Orders already sent must be reported even if the caller has gone away
	ctx = context.WithoutCancel(ctx)
	if err != nil {
		log.Error().Err(err).Str("symbol", symbol).Str("side", string(side)).Str("source", source).Msg("❌ Order flow failed")
		notify.Send(ctx, e.notifier,
			fmt.Sprintf("❌ %s %s failed", symbol, side.PositionSide()),
			fmt.Sprintf("Source: %s\nError: %v", source, err))
		return nil, err
	}

	if out.Action == execution.ActionNone {
		return out, nil
	}

	e.journalOutcome(ctx, out)
	notify.Send(ctx, e.notifier, outcomeSubject(out), outcomeBody(out, source))
	return out, nil
}

// ═══════════════════════════════════════════════════════════════════════════════
// MACD CYCLE
// ═══════════════════════════════════════════════════════════════════════════════

// RunMACDCycle records one histogram sample and acts on a signal. A history gap
// returns strategy.ErrHistoryGap after the sample is saved.
func (e *Engine) RunMACDCycle(ctx context.Context, now time.Time) (*strategy.Signal, error) {
	if e.macd == nil || e.strat == nil || e.state == nil {
		return nil, errors.New("macd cycle not configured")
	}

	e.macdMu.Lock()
	defer e.macdMu.Unlock()

	state, err := e.loadState(ctx)
	if err != nil {
		return nil, err
	}

	reading, err := e.macd.Read(ctx)
	if err != nil {
		log.Error().Err(err).Str("symbol", e.macd.Symbol()).Msg("❌ MACD reading failed")
		return nil, err
	}

	// The sample is taken, from here on the cycle runs to completion
	ctx = context.WithoutCancel(ctx)

	region := strategy.Classify(reading.Histogram)
	state.Append(strategy.Sample{Time: now, Region: region, Histogram: reading.Histogram})
	log.Info().
		Str("symbol", reading.Symbol).
		Float64("histogram", reading.Histogram).
		Str("region", string(region)).
		Int("samples", len(state.History)).
		Msg("📈 MACD sample recorded")

	sig, evalErr := e.strat.Evaluate(state, now)
	var tradeErr error
	switch {
	case errors.Is(evalErr, strategy.ErrHistoryGap):
		metrics.IncMACDGap()
		log.Warn().Err(evalErr).Msg("⚠️ MACD history gap, skipping decision")
		notify.Send(ctx, e.notifier, "⚠️ MACD history gap", evalErr.Error())
	case evalErr != nil:
		return nil, evalErr
	case sig != nil:
		metrics.IncMACDSignal(string(sig.Region))
		log.Info().
			Str("strategy", e.strat.Name()).
			Str("symbol", sig.Symbol).
			Str("region", string(sig.Region)).
			Str("side", string(sig.Side)).
			Msg("🎯 MACD signal")
		state.MarkAction(sig.Region, now)
		_, tradeErr = e.open(ctx, sig.Symbol, sig.Side, e.macdSize, "macd")
	}

	if err := e.saveState(ctx, state); err != nil {
		return sig, errors.Join(evalErr, tradeErr, err)
	}
	if evalErr != nil {
		return nil, evalErr
	}
	return sig, tradeErr
}

func (e *Engine) loadState(ctx context.Context) (*strategy.SignalState, error) {
	data, err := e.state.Load(ctx, StateKey)
	if errors.Is(err, storage.ErrNotFound) {
		log.Info().Msg("No MACD history stored, starting fresh")
		return &strategy.SignalState{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load macd state: %w", err)
	}

	state, err := strategy.DecodeState(data)
	if err != nil {
		log.Warn().Err(err).Msg("⚠️ Stored MACD history unreadable, starting fresh")
		return &strategy.SignalState{}, nil
	}
	return state, nil
}

func (e *Engine) saveState(ctx context.Context, state *strategy.SignalState) error {
	data, err := state.Encode()
	if err != nil {
		return err
	}
	if err := e.state.Save(ctx, StateKey, data); err != nil {
		log.Error().Err(err).Msg("❌ Failed to save MACD history")
		return fmt.Errorf("save macd state: %w", err)
	}
	return nil
}

// ═══════════════════════════════════════════════════════════════════════════════
// HEARTBEAT & STATUS
// ═══════════════════════════════════════════════════════════════════════════════

// Heartbeat logs every open position
func (e *Engine) Heartbeat(ctx context.Context) ([]exchange.Position, error) {
	positions, err := e.positions.GetAllPositions(ctx)
	if err != nil {
		return nil, err
	}
	if len(positions) == 0 {
		log.Info().Msg("💓 Heartbeat: no open positions")
		return positions, nil
	}
	for _, p := range positions {
		log.Info().
			Str("symbol", p.Symbol).
			Str("hold_side", string(p.HoldSide)).
			Str("size", p.Total.String()).
			Str("entry", p.OpenPriceAvg.String()).
			Str("upnl", p.UnrealizedPL.String()).
			Msg("💓 Open position")
	}
	return positions, nil
}

// OpenPositions lists open positions for status queries
func (e *Engine) OpenPositions(ctx context.Context) ([]exchange.Position, error) {
	return e.positions.GetAllPositions(ctx)
}

// RecentTrades lists the latest journal entries across symbols
func (e *Engine) RecentTrades(ctx context.Context, limit int) ([]storage.TradeRecord, error) {
	if e.journal == nil {
		return nil, nil
	}
	return e.journal.RecentTrades(ctx, "", limit)
}

// ═══════════════════════════════════════════════════════════════════════════════
// STREAM & TIMERS
// ═══════════════════════════════════════════════════════════════════════════════

// ConsumeFills handles fill events until events closes or ctx ends
func (e *Engine) ConsumeFills(ctx context.Context, events <-chan stream.FillEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case fill, ok := <-events:
			if !ok {
				return
			}
			e.handleFill(ctx, fill)
		}
	}
}

func (e *Engine) handleFill(ctx context.Context, fill stream.FillEvent) {
	e.record(ctx, &storage.TradeRecord{
		Symbol:    fill.Symbol,
		Kind:      "fill",
		Side:      string(fill.Side),
		Size:      fill.Size,
		Price:     fill.Price,
		OrderID:   fill.OrderID,
		ClientOid: fill.ClientOid,
		Status:    "filled",
	})

	body := fmt.Sprintf("Symbol: %s\nSide: %s (%s)\nPrice: %s\nSize: %s\nOrder: %s",
		fill.Symbol, fill.Side, fill.TradeSide, fill.Price, fill.Size, fill.OrderID)
	notify.Send(ctx, e.notifier, fmt.Sprintf("📩 Order filled: %s", fill.Symbol), body)

	closed, ok := fill.ClosedPosition()
	if !e.reentry || !ok {
		return
	}

	log.Info().
		Str("symbol", fill.Symbol).
		Str("direction", string(closed)).
		Msg("🔁 Position closed, re-entering")
	if _, err := e.open(ctx, fill.Symbol, closed.EntrySide(), fill.Size, "reentry"); err != nil {
		log.Error().Err(err).Str("symbol", fill.Symbol).Msg("❌ Re-entry failed")
	}
}

// RunTimers runs the MACD cycle and heartbeat on their intervals until ctx ends
func (e *Engine) RunTimers(ctx context.Context) {
	var macdC, heartbeatC <-chan time.Time

	if e.macd != nil && e.macdInterval > 0 {
		t := time.NewTicker(e.macdInterval)
		defer t.Stop()
		macdC = t.C
		log.Info().Str("symbol", e.macd.Symbol()).Dur("interval", e.macdInterval).Msg("⏱️ MACD timer started")
	}
	if e.positions != nil && e.heartbeatInterval > 0 {
		t := time.NewTicker(e.heartbeatInterval)
		defer t.Stop()
		heartbeatC = t.C
		log.Info().Dur("interval", e.heartbeatInterval).Msg("⏱️ Heartbeat timer started")
	}

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-macdC:
			if _, err := e.RunMACDCycle(ctx, now); err != nil && !errors.Is(err, strategy.ErrHistoryGap) {
				log.Error().Err(err).Msg("MACD cycle failed")
			}
		case <-heartbeatC:
			if _, err := e.Heartbeat(ctx); err != nil {
				log.Error().Err(err).Msg("Heartbeat failed")
			}
		}
	}
}

// ═══════════════════════════════════════════════════════════════════════════════
// JOURNAL & MESSAGES
// ═══════════════════════════════════════════════════════════════════════════════

func (e *Engine) journalOutcome(ctx context.Context, out *execution.Outcome) {
	kind := "market"
	if out.Action == execution.ActionReversed {
		kind = "reverse"
	}
	e.record(ctx, &storage.TradeRecord{
		Symbol:    out.Symbol,
		Kind:      kind,
		Side:      string(out.Side),
		Size:      out.Size,
		OrderID:   out.OrderID,
		ClientOid: out.ClientOid,
		Status:    "placed",
	})

	b := out.Bracket
	if b == nil {
		return
	}
	if b.FillErr != nil {
		e.record(ctx, &storage.TradeRecord{
			Symbol:       out.Symbol,
			Kind:         "bracket",
			OrderID:      out.OrderID,
			Status:       string(b.Status),
			ErrorMessage: b.FillErr.Error(),
		})
		return
	}
	e.record(ctx, protectiveRecord(out, "trailing", b.Prices.Trailing, b.TrailingOrderID, b.TrailingErr, b))
	e.record(ctx, protectiveRecord(out, "stop_loss", b.Prices.StopLoss, b.StopLossOrderID, b.StopLossErr, b))
}

func protectiveRecord(out *execution.Outcome, kind string, price decimal.Decimal, orderID string, err error, b *execution.BracketResult) *storage.TradeRecord {
	rec := &storage.TradeRecord{
		Symbol:  out.Symbol,
		Kind:    kind,
		Side:    string(b.Prices.CloseSide),
		Size:    b.FilledSize,
		Price:   price,
		OrderID: orderID,
		Status:  "placed",
	}
	if err != nil {
		rec.Status = "failed"
		rec.ErrorMessage = err.Error()
	}
	return rec
}

func (e *Engine) record(ctx context.Context, rec *storage.TradeRecord) {
	if e.journal == nil {
		return
	}
	if err := e.journal.RecordTrade(ctx, rec); err != nil {
		log.Error().Err(err).Str("symbol", rec.Symbol).Str("kind", rec.Kind).Msg("Failed to journal trade")
	}
}

func outcomeSubject(out *execution.Outcome) string {
	direction := out.Side.PositionSide()
	prefix := "✅"
	if out.Bracket != nil && out.Bracket.Status != execution.BracketProtected {
		prefix = "🚨"
	}
	if out.Action == execution.ActionReversed {
		return fmt.Sprintf("%s %s reversed to %s", prefix, out.Symbol, direction)
	}
	return fmt.Sprintf("%s %s %s opened", prefix, out.Symbol, direction)
}

func outcomeBody(out *execution.Outcome, source string) string {
	var sb strings.Builder
	if out.DryRun {
		sb.WriteString("Mode: DRY RUN\n")
	}
	fmt.Fprintf(&sb, "Source: %s\n", source)
	fmt.Fprintf(&sb, "Symbol: %s\n", out.Symbol)
	fmt.Fprintf(&sb, "Action: %s\n", out.Action)
	fmt.Fprintf(&sb, "Side: %s\n", out.Side)
	fmt.Fprintf(&sb, "Size: %s\n", out.Size)
	fmt.Fprintf(&sb, "Order: %s (%s)\n", out.OrderID, out.ClientOid)
	if len(out.Cancelled) > 0 {
		fmt.Fprintf(&sb, "Cancelled plan orders: %s\n", strings.Join(out.Cancelled, ", "))
	}
	if out.Bracket != nil {
		fmt.Fprintf(&sb, "Bracket: %s\n", out.Bracket.Summary())
	}
	return sb.String()
}

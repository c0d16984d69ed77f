package core

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mattetom/crypto/exchange"
	"github.com/mattetom/crypto/execution"
	"github.com/mattetom/crypto/feeds"
	"github.com/mattetom/crypto/internal/config"
	"github.com/mattetom/crypto/storage"
	"github.com/mattetom/crypto/strategy"
	"github.com/mattetom/crypto/stream"
)

// ═══════════════════════════════════════════════════════════════════════════════
// FAKES
// ═══════════════════════════════════════════════════════════════════════════════

type fakeTrader struct {
	mu       sync.Mutex
	requests []execution.Request
	outcome  func(req execution.Request) *execution.Outcome
	err      error
	// onReconcile runs before the outcome is returned
	onReconcile func()
}

func (f *fakeTrader) Reconcile(ctx context.Context, req execution.Request) (*execution.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.onReconcile != nil {
		f.onReconcile()
	}
	if f.err != nil {
		return nil, f.err
	}
	if f.outcome != nil {
		return f.outcome(req), nil
	}
	return &execution.Outcome{
		Symbol:    req.Symbol,
		Side:      req.Side,
		State:     execution.StateNoPosition,
		Action:    execution.ActionOpened,
		OrderID:   "1001",
		ClientOid: "coid-1",
		Size:      req.Size,
		Bracket: &execution.BracketResult{
			Status:          execution.BracketProtected,
			FilledSize:      req.Size,
			TrailingOrderID: "2001",
			StopLossOrderID: "2002",
		},
	}, nil
}

type fakePositions struct {
	positions []exchange.Position
	err       error
}

func (f *fakePositions) GetAllPositions(ctx context.Context) ([]exchange.Position, error) {
	return f.positions, f.err
}

type fakeMACD struct {
	histogram float64
	err       error
	onRead    func()
}

func (f *fakeMACD) Symbol() string { return "BTCUSDT" }

func (f *fakeMACD) Read(ctx context.Context) (*feeds.MACDReading, error) {
	if f.onRead != nil {
		f.onRead()
	}
	if f.err != nil {
		return nil, f.err
	}
	return &feeds.MACDReading{Symbol: "BTCUSDT", Histogram: f.histogram}, nil
}

type memStore struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

func newMemStore() *memStore {
	return &memStore{blobs: make(map[string][]byte)}
}

func (m *memStore) Load(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.blobs[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return data, nil
}

func (m *memStore) Save(ctx context.Context, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[key] = data
	return nil
}

func (m *memStore) Close() error { return nil }

func (m *memStore) state(t *testing.T) *strategy.SignalState {
	t.Helper()
	data, err := m.Load(context.Background(), StateKey)
	if err != nil {
		t.Fatalf("expected stored state, got %v", err)
	}
	s, err := strategy.DecodeState(data)
	if err != nil {
		t.Fatalf("decode state: %v", err)
	}
	return s
}

type memJournal struct {
	mu      sync.Mutex
	records []storage.TradeRecord
}

func (j *memJournal) RecordTrade(ctx context.Context, rec *storage.TradeRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	j.records = append(j.records, *rec)
	return nil
}

func (j *memJournal) RecentTrades(ctx context.Context, symbol string, limit int) ([]storage.TradeRecord, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]storage.TradeRecord(nil), j.records...), nil
}

type recNotifier struct {
	mu       sync.Mutex
	subjects []string
}

func (r *recNotifier) Notify(ctx context.Context, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subjects = append(r.subjects, subject)
	return nil
}

func (r *recNotifier) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subjects)
}

type harness struct {
	engine   *Engine
	trader   *fakeTrader
	macd     *fakeMACD
	store    *memStore
	journal  *memJournal
	notifier *recNotifier
}

func newHarness(cfg *config.Config) *harness {
	h := &harness{
		trader:   &fakeTrader{},
		macd:     &fakeMACD{histogram: 1},
		store:    newMemStore(),
		journal:  &memJournal{},
		notifier: &recNotifier{},
	}
	h.engine = NewEngine(cfg, Deps{
		Trader:    h.trader,
		Positions: &fakePositions{},
		MACD:      h.macd,
		Strategy:  strategy.NewMACDStrategy("BTCUSDT", time.Hour),
		State:     h.store,
		Journal:   h.journal,
		Notifier:  h.notifier,
	})
	return h
}

func baseConfig() *config.Config {
	return &config.Config{
		DefaultOrderSize: decimal.RequireFromString("0.01"),
		MACDOrderSize:    decimal.RequireFromString("0.02"),
		MACDInterval:     time.Minute,
	}
}

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// seed stores two bearish then nine bullish samples one minute apart
func (h *harness) seed(t *testing.T) time.Time {
	t.Helper()
	s := &strategy.SignalState{}
	last := t0
	for i := 0; i < strategy.MinSamples-1; i++ {
		r, v := strategy.RegionBullish, 1.0
		if i < 2 {
			r, v = strategy.RegionBearish, -1.0
		}
		last = t0.Add(time.Duration(i) * time.Minute)
		s.Append(strategy.Sample{Time: last, Region: r, Histogram: v})
	}
	data, err := s.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	h.store.blobs[StateKey] = data
	return last
}

// ═══════════════════════════════════════════════════════════════════════════════
// MANUAL TRIGGERS
// ═══════════════════════════════════════════════════════════════════════════════

func TestOpenLongUsesDefaultSize(t *testing.T) {
	h := newHarness(baseConfig())

	out, err := h.engine.OpenLong(context.Background(), "BTCUSDT", decimal.Zero)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Action != execution.ActionOpened {
		t.Errorf("expected opened, got %s", out.Action)
	}
	if len(h.trader.requests) != 1 {
		t.Fatalf("expected 1 reconcile, got %d", len(h.trader.requests))
	}
	req := h.trader.requests[0]
	if req.Side != exchange.SideBuy || !req.Size.Equal(decimal.RequireFromString("0.01")) {
		t.Errorf("expected buy 0.01, got %s %s", req.Side, req.Size)
	}

	// entry, trailing and stop loss
	if len(h.journal.records) != 3 {
		t.Fatalf("expected 3 journal records, got %d", len(h.journal.records))
	}
	kinds := []string{h.journal.records[0].Kind, h.journal.records[1].Kind, h.journal.records[2].Kind}
	if strings.Join(kinds, ",") != "market,trailing,stop_loss" {
		t.Errorf("unexpected journal kinds %v", kinds)
	}
	if h.notifier.count() != 1 {
		t.Errorf("expected 1 notification, got %d", h.notifier.count())
	}
}

func TestOpenShortExplicitSize(t *testing.T) {
	h := newHarness(baseConfig())

	if _, err := h.engine.OpenShort(context.Background(), "ETHUSDT", decimal.RequireFromString("0.5")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	req := h.trader.requests[0]
	if req.Side != exchange.SideSell || !req.Size.Equal(decimal.RequireFromString("0.5")) {
		t.Errorf("expected sell 0.5, got %s %s", req.Side, req.Size)
	}
}

func TestOpenWithoutAnySize(t *testing.T) {
	cfg := baseConfig()
	cfg.DefaultOrderSize = decimal.Zero
	h := newHarness(cfg)

	_, err := h.engine.OpenLong(context.Background(), "BTCUSDT", decimal.Zero)
	if !errors.Is(err, ErrNoSize) {
		t.Errorf("expected ErrNoSize, got %v", err)
	}
	if len(h.trader.requests) != 0 {
		t.Errorf("expected no reconcile, got %d", len(h.trader.requests))
	}
}

func TestOpenNoActionIsQuiet(t *testing.T) {
	h := newHarness(baseConfig())
	h.trader.outcome = func(req execution.Request) *execution.Outcome {
		return &execution.Outcome{Symbol: req.Symbol, Side: req.Side, State: execution.StateSamePosition, Action: execution.ActionNone}
	}

	out, err := h.engine.OpenLong(context.Background(), "BTCUSDT", decimal.Zero)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Action != execution.ActionNone {
		t.Errorf("expected no_action, got %s", out.Action)
	}
	if len(h.journal.records) != 0 || h.notifier.count() != 0 {
		t.Errorf("expected no journal or notification, got %d records and %d messages", len(h.journal.records), h.notifier.count())
	}
}

func TestOpenFailureNotifies(t *testing.T) {
	h := newHarness(baseConfig())
	h.trader.err = errors.New("venue down")

	if _, err := h.engine.OpenLong(context.Background(), "BTCUSDT", decimal.Zero); err == nil {
		t.Fatal("expected error")
	}
	if h.notifier.count() != 1 {
		t.Errorf("expected failure notification, got %d", h.notifier.count())
	}
}

func TestUnprotectedEntryJournalsFailure(t *testing.T) {
	h := newHarness(baseConfig())
	h.trader.outcome = func(req execution.Request) *execution.Outcome {
		return &execution.Outcome{
			Symbol: req.Symbol, Side: req.Side, Action: execution.ActionOpened, OrderID: "1", Size: req.Size,
			Bracket: &execution.BracketResult{Status: execution.BracketUnprotected, FillErr: errors.New("no fill data")},
		}
	}

	if _, err := h.engine.OpenLong(context.Background(), "BTCUSDT", decimal.Zero); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(h.journal.records) != 2 {
		t.Fatalf("expected entry and bracket records, got %d", len(h.journal.records))
	}
	rec := h.journal.records[1]
	if rec.Status != string(execution.BracketUnprotected) || rec.ErrorMessage == "" {
		t.Errorf("expected unprotected record with error, got %+v", rec)
	}
	if !strings.HasPrefix(h.notifier.subjects[0], "🚨") {
		t.Errorf("expected alert subject, got %q", h.notifier.subjects[0])
	}
}

// ═══════════════════════════════════════════════════════════════════════════════
// MACD CYCLE
// ═══════════════════════════════════════════════════════════════════════════════

func TestMACDCycleFreshState(t *testing.T) {
	h := newHarness(baseConfig())

	sig, err := h.engine.RunMACDCycle(context.Background(), t0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sig != nil {
		t.Errorf("expected no signal, got %+v", sig)
	}
	if got := len(h.store.state(t).History); got != 1 {
		t.Errorf("expected 1 stored sample, got %d", got)
	}
}

func TestMACDCycleCorruptStateStartsFresh(t *testing.T) {
	h := newHarness(baseConfig())
	h.store.blobs[StateKey] = []byte("{not json")

	if _, err := h.engine.RunMACDCycle(context.Background(), t0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := len(h.store.state(t).History); got != 1 {
		t.Errorf("expected 1 stored sample, got %d", got)
	}
}

func TestMACDCycleSignalOpensPosition(t *testing.T) {
	h := newHarness(baseConfig())
	last := h.seed(t)
	now := last.Add(time.Minute)

	sig, err := h.engine.RunMACDCycle(context.Background(), now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sig == nil || sig.Region != strategy.RegionBullish {
		t.Fatalf("expected bullish signal, got %+v", sig)
	}
	if len(h.trader.requests) != 1 {
		t.Fatalf("expected 1 reconcile, got %d", len(h.trader.requests))
	}
	req := h.trader.requests[0]
	if req.Side != exchange.SideBuy || !req.Size.Equal(decimal.RequireFromString("0.02")) {
		t.Errorf("expected buy 0.02, got %s %s", req.Side, req.Size)
	}

	state := h.store.state(t)
	if len(state.History) != strategy.MinSamples {
		t.Errorf("expected %d samples, got %d", strategy.MinSamples, len(state.History))
	}
	if state.LastBullishAction == nil || !state.LastBullishAction.Equal(now) {
		t.Errorf("expected bullish action at %s, got %v", now, state.LastBullishAction)
	}

	// same state one minute later is still inside the cooldown and the run is no longer fresh
	if sig, err := h.engine.RunMACDCycle(context.Background(), now.Add(time.Minute)); err != nil || sig != nil {
		t.Errorf("expected no second signal, got %+v, %v", sig, err)
	}
	if len(h.trader.requests) != 1 {
		t.Errorf("expected still 1 reconcile, got %d", len(h.trader.requests))
	}
}

func TestMACDCycleGapSavesAndNotifies(t *testing.T) {
	h := newHarness(baseConfig())
	last := h.seed(t)

	sig, err := h.engine.RunMACDCycle(context.Background(), last.Add(5*time.Minute))
	if !errors.Is(err, strategy.ErrHistoryGap) {
		t.Fatalf("expected ErrHistoryGap, got %v", err)
	}
	if sig != nil {
		t.Errorf("expected no signal, got %+v", sig)
	}
	if len(h.trader.requests) != 0 {
		t.Errorf("expected no reconcile, got %d", len(h.trader.requests))
	}
	if got := len(h.store.state(t).History); got != strategy.MinSamples {
		t.Errorf("expected sample saved despite gap, got %d samples", got)
	}
	if h.notifier.count() != 1 {
		t.Errorf("expected gap notification, got %d", h.notifier.count())
	}
}

func TestMACDCycleFeedError(t *testing.T) {
	h := newHarness(baseConfig())
	h.macd.err = feeds.ErrNotEnoughCandles

	if _, err := h.engine.RunMACDCycle(context.Background(), t0); !errors.Is(err, feeds.ErrNotEnoughCandles) {
		t.Errorf("expected ErrNotEnoughCandles, got %v", err)
	}
	if _, err := h.store.Load(context.Background(), StateKey); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected nothing saved, got %v", err)
	}
}

// ═══════════════════════════════════════════════════════════════════════════════
// STREAM & STATUS
// ═══════════════════════════════════════════════════════════════════════════════

func closeFill(posSide string) stream.FillEvent {
	return stream.FillEvent{
		Symbol:    "BTCUSDT",
		OrderID:   "3001",
		Side:      exchange.SideSell,
		TradeSide: "close",
		PosSide:   posSide,
		Price:     decimal.RequireFromString("65000"),
		Size:      decimal.RequireFromString("0.03"),
	}
}

func TestConsumeFillsReentry(t *testing.T) {
	cfg := baseConfig()
	cfg.StreamReentry = true
	h := newHarness(cfg)

	events := make(chan stream.FillEvent, 1)
	events <- closeFill("long")
	close(events)
	h.engine.ConsumeFills(context.Background(), events)

	if len(h.trader.requests) != 1 {
		t.Fatalf("expected re-entry reconcile, got %d", len(h.trader.requests))
	}
	req := h.trader.requests[0]
	if req.Side != exchange.SideBuy || !req.Size.Equal(decimal.RequireFromString("0.03")) {
		t.Errorf("expected buy 0.03, got %s %s", req.Side, req.Size)
	}
	if h.journal.records[0].Kind != "fill" {
		t.Errorf("expected fill journaled first, got %s", h.journal.records[0].Kind)
	}
}

func TestConsumeFillsWithoutReentry(t *testing.T) {
	h := newHarness(baseConfig())

	events := make(chan stream.FillEvent, 1)
	events <- closeFill("short")
	close(events)
	h.engine.ConsumeFills(context.Background(), events)

	if len(h.trader.requests) != 0 {
		t.Errorf("expected no reconcile, got %d", len(h.trader.requests))
	}
	if len(h.journal.records) != 1 || h.notifier.count() != 1 {
		t.Errorf("expected fill journaled and notified, got %d records and %d messages", len(h.journal.records), h.notifier.count())
	}
}

func TestConsumeFillsStopsOnCancel(t *testing.T) {
	h := newHarness(baseConfig())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.engine.ConsumeFills(ctx, make(chan stream.FillEvent))
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expected ConsumeFills to return after cancel")
	}
}

func TestHeartbeat(t *testing.T) {
	pos := &fakePositions{positions: []exchange.Position{
		{Symbol: "BTCUSDT", HoldSide: exchange.PositionLong, Total: decimal.RequireFromString("0.01")},
	}}
	e := NewEngine(baseConfig(), Deps{Positions: pos})

	got, err := e.Heartbeat(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("expected 1 position, got %d", len(got))
	}

	pos.err = errors.New("boom")
	if _, err := e.Heartbeat(context.Background()); err == nil {
		t.Error("expected error")
	}
}

func TestRecentTradesWithoutJournal(t *testing.T) {
	e := NewEngine(baseConfig(), Deps{})
	trades, err := e.RecentTrades(context.Background(), 5)
	if err != nil || trades != nil {
		t.Errorf("expected nil, nil; got %v, %v", trades, err)
	}
}

func TestOpenReportsAfterCallerCancels(t *testing.T) {
	h := newHarness(baseConfig())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.trader.onReconcile = cancel

	if _, err := h.engine.OpenLong(ctx, "BTCUSDT", decimal.Zero); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(h.journal.records) != 3 {
		t.Errorf("expected 3 journal records, got %d", len(h.journal.records))
	}
	if h.notifier.count() != 1 {
		t.Errorf("expected outcome notification, got %d", h.notifier.count())
	}
}

func TestOpenFailureReportedAfterCallerCancels(t *testing.T) {
	h := newHarness(baseConfig())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.trader.onReconcile = cancel
	h.trader.err = errors.New("venue down")

	if _, err := h.engine.OpenLong(ctx, "BTCUSDT", decimal.Zero); err == nil {
		t.Fatal("expected error")
	}
	if h.notifier.count() != 1 {
		t.Errorf("expected failure notification, got %d", h.notifier.count())
	}
}

func TestMACDCycleCompletesAfterCallerCancels(t *testing.T) {
	h := newHarness(baseConfig())
	last := h.seed(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.macd.onRead = cancel

	sig, err := h.engine.RunMACDCycle(ctx, last.Add(time.Minute))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sig == nil {
		t.Fatal("expected a signal")
	}
	if len(h.trader.requests) != 1 {
		t.Errorf("expected 1 reconcile, got %d", len(h.trader.requests))
	}
	state := h.store.state(t)
	if len(state.History) != strategy.MinSamples || state.LastBullishAction == nil {
		t.Errorf("expected saved state with action, got %d samples, action %v", len(state.History), state.LastBullishAction)
	}
}

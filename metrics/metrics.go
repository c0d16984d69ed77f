// Package metrics holds the Prometheus collectors the bot updates while trading.
//
//   - bitbot_orders_total{kind,side}        orders sent to the venue (market|reverse|trailing|stop_loss|preset_sl)
//   - bitbot_reconcile_total{state}         reconciler decisions (no_position|same_position|opposite_position)
//   - bitbot_brackets_total{status}         bracket outcomes (protected|partial|unprotected)
//   - bitbot_macd_signals_total{region}     MACD signals fired (bullish|bearish)
//   - bitbot_macd_gaps_total                cycles discarded because of a history gap
//   - bitbot_stream_reconnects_total        private stream reconnect attempts
//   - bitbot_stream_fills_total{side}       fill events received on the stream
//
// Collectors are registered in init() and served at /metrics by the api package.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	orders = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bitbot_orders_total",
			Help: "Orders sent to the venue",
		},
		[]string{"kind", "side"},
	)

	reconciles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bitbot_reconcile_total",
			Help: "Reconciler decisions by observed position state",
		},
		[]string{"state"},
	)

	brackets = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bitbot_brackets_total",
			Help: "Bracket placement outcomes",
		},
		[]string{"status"},
	)

	macdSignals = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bitbot_macd_signals_total",
			Help: "MACD signals fired",
		},
		[]string{"region"},
	)

	macdGaps = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bitbot_macd_gaps_total",
			Help: "MACD cycles discarded because the sample history had a gap",
		},
	)

	streamReconnects = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bitbot_stream_reconnects_total",
			Help: "Private stream reconnect attempts",
		},
	)

	streamFills = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bitbot_stream_fills_total",
			Help: "Fill events received on the private stream",
		},
		[]string{"side"},
	)
)

func init() {
	prometheus.MustRegister(orders, reconciles, brackets)
	prometheus.MustRegister(macdSignals, macdGaps)
	prometheus.MustRegister(streamReconnects, streamFills)
}

func IncOrder(kind, side string)  { orders.WithLabelValues(kind, side).Inc() }
func IncReconcile(state string)   { reconciles.WithLabelValues(state).Inc() }
func IncBracket(status string)    { brackets.WithLabelValues(status).Inc() }
func IncMACDSignal(region string) { macdSignals.WithLabelValues(region).Inc() }
func IncMACDGap()                 { macdGaps.Inc() }
func IncStreamReconnect()         { streamReconnects.Inc() }
func IncStreamFill(side string)   { streamFills.WithLabelValues(side).Inc() }

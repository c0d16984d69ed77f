package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/mattetom/crypto/core"
	"github.com/mattetom/crypto/exchange"
	"github.com/mattetom/crypto/execution"
	"github.com/mattetom/crypto/strategy"
)

// ═══════════════════════════════════════════════════════════════════════════════
// HTTP TRIGGER
// ═══════════════════════════════════════════════════════════════════════════════

// triggerTimeout bounds a trigger once it is accepted. Triggers outlive the request
// so a sender that hangs up cannot leave orders half placed.
const triggerTimeout = 2 * time.Minute

// Trigger is the engine surface exposed over HTTP
type Trigger interface {
	OpenLong(ctx context.Context, symbol string, size decimal.Decimal) (*execution.Outcome, error)
	OpenShort(ctx context.Context, symbol string, size decimal.Decimal) (*execution.Outcome, error)
	RunMACDCycle(ctx context.Context, now time.Time) (*strategy.Signal, error)
}

// Server serves trade triggers, health and metrics
type Server struct {
	trigger Trigger
	srv     *http.Server
	now     func() time.Time
}

// NewServer creates the HTTP server listening on addr
func NewServer(addr string, trigger Trigger) *Server {
	s := &Server{trigger: trigger, now: time.Now}
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the route table
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/open-long", s.handleOpen(exchange.SideBuy))
	mux.HandleFunc("POST /api/open-short", s.handleOpen(exchange.SideSell))
	mux.HandleFunc("POST /api/macd", s.handleMACD)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok\n"))
	})
	mux.Handle("GET /metrics", promhttp.Handler())
	return mux
}

// ListenAndServe blocks until the server stops. A clean shutdown returns nil.
func (s *Server) ListenAndServe() error {
	log.Info().Str("addr", s.srv.Addr).Msg("🌐 HTTP trigger listening")
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

type openRequest struct {
	Symbol string           `json:"symbol"`
	Value  *decimal.Decimal `json:"value"`
}

type openResponse struct {
	Status    string `json:"status"`
	Symbol    string `json:"symbol,omitempty"`
	Side      string `json:"side,omitempty"`
	Size      string `json:"size,omitempty"`
	OrderID   string `json:"order_id,omitempty"`
	ClientOid string `json:"client_oid,omitempty"`
	Bracket   string `json:"bracket,omitempty"`
	Detail    string `json:"detail,omitempty"`
	DryRun    bool   `json:"dry_run,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleOpen(side exchange.Side) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req openRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
			return
		}

		symbol, err := core.NormalizeSymbol(req.Symbol)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "symbol is required"})
			return
		}

		size := decimal.Zero
		if req.Value != nil {
			if !req.Value.IsPositive() {
				writeJSON(w, http.StatusBadRequest, errorResponse{Error: "value must be positive"})
				return
			}
			size = *req.Value
		}

		log.Info().
			Str("symbol", symbol).
			Str("side", string(side)).
			Str("size", size.String()).
			Str("remote", r.RemoteAddr).
			Msg("📥 Trade trigger received")

		open := s.trigger.OpenLong
		if side == exchange.SideSell {
			open = s.trigger.OpenShort
		}
		ctx, cancel := detach(r.Context())
		defer cancel()
		out, err := open(ctx, symbol, size)
		switch {
		case errors.Is(err, core.ErrNoSize), errors.Is(err, execution.ErrInvalidSize):
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
			return
		case err != nil:
			log.Error().Err(err).Str("symbol", symbol).Msg("❌ Trade trigger failed")
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
			return
		}

		if out.Action == execution.ActionNone {
			writeJSON(w, http.StatusOK, openResponse{Status: string(execution.ActionNone)})
			return
		}

		resp := openResponse{
			Status:    string(out.Action),
			Symbol:    out.Symbol,
			Side:      string(out.Side),
			Size:      out.Size.String(),
			OrderID:   out.OrderID,
			ClientOid: out.ClientOid,
			DryRun:    out.DryRun,
		}
		if out.Bracket != nil {
			resp.Bracket = string(out.Bracket.Status)
			resp.Detail = out.Bracket.Summary()
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

type macdResponse struct {
	Status string `json:"status"`
	Region string `json:"region,omitempty"`
	Side   string `json:"side,omitempty"`
}

func (s *Server) handleMACD(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := detach(r.Context())
	defer cancel()
	sig, err := s.trigger.RunMACDCycle(ctx, s.now())
	switch {
	case errors.Is(err, strategy.ErrHistoryGap):
		writeJSON(w, http.StatusOK, macdResponse{Status: "history_gap"})
		return
	case err != nil:
		log.Error().Err(err).Msg("❌ MACD trigger failed")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
		return
	case sig == nil:
		writeJSON(w, http.StatusOK, macdResponse{Status: "no_signal"})
		return
	}
	writeJSON(w, http.StatusOK, macdResponse{Status: "signal", Region: string(sig.Region), Side: string(sig.Side)})
}

func detach(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), triggerTimeout)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("Failed to write response")
	}
}

package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jpillora/backoff"
	"github.com/rs/zerolog/log"

	"github.com/mattetom/crypto/exchange"
	"github.com/mattetom/crypto/internal/config"
	"github.com/mattetom/crypto/metrics"
)

// ═══════════════════════════════════════════════════════════════════════════════
// PRIVATE ORDER STREAM
// ═══════════════════════════════════════════════════════════════════════════════
//
// One goroutine owns the connection: login, subscribe, read. A text "ping" goes
// out every ping interval and any inbound frame counts as liveness. Two silent
// intervals drop the connection. Reconnects back off from 1s up to 60s.
//
// Fills are only published on Events(). The stream never trades.
//
// ═══════════════════════════════════════════════════════════════════════════════

const (
	pingInterval = 30 * time.Second
	loginTimeout = 10 * time.Second
	eventBuffer  = 100

	verifyPath = "/user/verify"
)

// Client is the private stream actor
type Client struct {
	url        string
	apiKey     string
	apiSecret  string
	passphrase string

	dialer       *websocket.Dialer
	pingInterval time.Duration
	backoff      *backoff.Backoff
	now          func() time.Time

	events chan FillEvent
}

// NewClient creates a stream client from cfg. Call Run to connect.
func NewClient(cfg *config.Config) *Client {
	return &Client{
		url:          cfg.WSURL,
		apiKey:       cfg.APIKey,
		apiSecret:    cfg.APISecret,
		passphrase:   cfg.APIPassphrase,
		dialer:       websocket.DefaultDialer,
		pingInterval: pingInterval,
		backoff: &backoff.Backoff{
			Min:    time.Second,
			Max:    60 * time.Second,
			Factor: 2,
			Jitter: true,
		},
		now:    time.Now,
		events: make(chan FillEvent, eventBuffer),
	}
}

// Events returns the fill channel. It is closed when Run returns.
func (c *Client) Events() <-chan FillEvent {
	return c.events
}

// Run keeps a session alive until ctx is cancelled
func (c *Client) Run(ctx context.Context) error {
	defer close(c.events)

	log.Info().Str("url", c.url).Msg("📡 Order stream started")
	for {
		err := c.session(ctx)
		if ctx.Err() != nil {
			log.Info().Msg("Order stream stopped")
			return ctx.Err()
		}

		metrics.IncStreamReconnect()
		wait := c.backoff.Duration()
		log.Warn().Err(err).Dur("retry_in", wait).Msg("🔌 Order stream disconnected, reconnecting")

		select {
		case <-ctx.Done():
			log.Info().Msg("Order stream stopped")
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// session runs one connection until it fails or ctx ends
func (c *Client) session(ctx context.Context) error {
	conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	if err := c.login(conn); err != nil {
		return err
	}
	if err := conn.WriteJSON(map[string]interface{}{
		"op": "subscribe",
		"args": []map[string]string{
			{"instType": "USDT-FUTURES", "channel": "orders", "instId": "default"},
		},
	}); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	c.backoff.Reset()
	log.Info().Msg("🔌 Order stream connected")

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.pingLoop(ctx, conn, done)
	}()
	defer func() {
		close(done)
		wg.Wait()
	}()

	return c.readLoop(ctx, conn)
}

func (c *Client) login(conn *websocket.Conn) error {
	ts := c.now().Unix()
	login := map[string]interface{}{
		"op": "login",
		"args": []map[string]string{{
			"apiKey":     c.apiKey,
			"passphrase": c.passphrase,
			"timestamp":  strconv.FormatInt(ts, 10),
			"sign":       exchange.SignRequest(c.apiSecret, ts, "GET", verifyPath, ""),
		}},
	}
	if err := conn.WriteJSON(login); err != nil {
		return fmt.Errorf("login: %w", err)
	}

	conn.SetReadDeadline(c.now().Add(loginTimeout))
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("login reply: %w", err)
		}
		var msg pushMessage
		if json.Unmarshal(raw, &msg) != nil {
			continue
		}
		switch msg.Event {
		case "login":
			if msg.Code.String() != "" && msg.Code.String() != "0" {
				return fmt.Errorf("login rejected: code=%s msg=%s", msg.Code, msg.Msg)
			}
			return nil
		case "error":
			return fmt.Errorf("login rejected: code=%s msg=%s", msg.Code, msg.Msg)
		}
	}
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		conn.SetReadDeadline(c.now().Add(2 * c.pingInterval))
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		if string(raw) == "pong" {
			continue
		}

		fills, err := parseFills(raw)
		if err != nil {
			log.Debug().Err(err).Msg("Ignoring unparsable stream message")
			continue
		}
		for _, fill := range fills {
			metrics.IncStreamFill(string(fill.Side))
			log.Info().
				Str("symbol", fill.Symbol).
				Str("order_id", fill.OrderID).
				Str("side", string(fill.Side)).
				Str("trade_side", fill.TradeSide).
				Str("price", fill.Price.String()).
				Msg("📩 Order filled")

			select {
			case c.events <- fill:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

func (c *Client) pingLoop(ctx context.Context, conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			return
		case <-ticker.C:
			if err := conn.WriteMessage(websocket.TextMessage, []byte("ping")); err != nil {
				if !errors.Is(err, websocket.ErrCloseSent) {
					log.Debug().Err(err).Msg("Stream ping failed")
				}
				return
			}
		}
	}
}

package exchange

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mattetom/crypto/internal/config"
)

// ═══════════════════════════════════════════════════════════════════════════════
// BITGET USDT-M FUTURES CLIENT
// ═══════════════════════════════════════════════════════════════════════════════
//
// Signed REST access to the v2 mix API. One account, isolated margin,
// USDT-margined perpetuals only.
//
// ═══════════════════════════════════════════════════════════════════════════════

const (
	// The venue is inconsistent about casing; each endpoint gets the form it accepts.
	productTypeLower = "usdt-futures"
	productTypeUpper = "USDT-FUTURES"

	marginModeIsolated = "isolated"
	codeSuccess        = "00000"
)

var (
	// ErrOrderDetailTimeout is returned when an order's fill data never shows up
	ErrOrderDetailTimeout = errors.New("order detail not available before deadline")
	// ErrNoPrecision is returned when the venue has no contract metadata for a symbol
	ErrNoPrecision = errors.New("symbol precision unavailable")
)

// APIError is a non-200 response or a venue rejection
type APIError struct {
	Status int
	Code   string
	Msg    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("bitget: HTTP %d code=%s msg=%s", e.Status, e.Code, e.Msg)
}

// Client talks to the venue. Safe for concurrent use.
type Client struct {
	baseURL    string
	apiKey     string
	apiSecret  string
	passphrase string
	marginCoin string
	dryRun     bool
	httpClient *http.Client

	pollInterval time.Duration
	pollTimeout  time.Duration

	now func() time.Time

	dryMu     sync.Mutex
	dryOrders map[string]dryOrder
}

// NewClient creates a venue client from explicit configuration
func NewClient(cfg *config.Config) *Client {
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	c := &Client{
		baseURL:      strings.TrimRight(cfg.APIURL, "/"),
		apiKey:       cfg.APIKey,
		apiSecret:    cfg.APISecret,
		passphrase:   cfg.APIPassphrase,
		marginCoin:   cfg.MarginCoin,
		dryRun:       cfg.DryRun,
		httpClient:   &http.Client{Timeout: timeout},
		pollInterval: cfg.OrderPollInterval,
		pollTimeout:  cfg.OrderPollTimeout,
		now:          time.Now,
		dryOrders:    make(map[string]dryOrder),
	}
	if c.marginCoin == "" {
		c.marginCoin = "USDT"
	}
	if c.pollInterval <= 0 {
		c.pollInterval = time.Second
	}
	if c.pollTimeout <= 0 {
		c.pollTimeout = 10 * time.Second
	}

	mode := "LIVE"
	if c.dryRun {
		mode = "DRY RUN"
	}
	log.Info().
		Str("mode", mode).
		Str("url", c.baseURL).
		Msg("🚀 Exchange client initialized")

	return c
}

// IsDryRun returns true if write operations are simulated
func (c *Client) IsDryRun() bool {
	return c.dryRun
}

// ═══════════════════════════════════════════════════════════════════════════════
// HTTP HELPERS
// ═══════════════════════════════════════════════════════════════════════════════

type envelope struct {
	Code string          `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

func (c *Client) get(ctx context.Context, path string, params map[string]string) (json.RawMessage, error) {
	return c.do(ctx, http.MethodGet, path+QueryString(params), nil)
}

func (c *Client) post(ctx context.Context, path string, body interface{}) (json.RawMessage, error) {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode body: %w", err)
	}
	return c.do(ctx, http.MethodPost, path, jsonBody)
}

func (c *Client) do(ctx context.Context, method, requestPath string, body []byte) (json.RawMessage, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+requestPath, reader)
	if err != nil {
		return nil, err
	}
	c.addHeaders(req, requestPath, string(body))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var env envelope
	decodeErr := json.Unmarshal(raw, &env)

	if resp.StatusCode != http.StatusOK {
		apiErr := &APIError{Status: resp.StatusCode, Code: env.Code, Msg: env.Msg}
		if decodeErr != nil {
			apiErr.Msg = string(raw)
		}
		return nil, apiErr
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("parse response: %w", decodeErr)
	}
	if env.Code != codeSuccess {
		return nil, &APIError{Status: resp.StatusCode, Code: env.Code, Msg: env.Msg}
	}

	return env.Data, nil
}

func (c *Client) addHeaders(req *http.Request, requestPath, body string) {
	timestamp := c.now().UnixMilli()

	req.Header.Set("ACCESS-KEY", c.apiKey)
	req.Header.Set("ACCESS-SIGN", SignRequest(c.apiSecret, timestamp, req.Method, requestPath, body))
	req.Header.Set("ACCESS-TIMESTAMP", fmt.Sprintf("%d", timestamp))
	req.Header.Set("ACCESS-PASSPHRASE", c.passphrase)
	req.Header.Set("locale", "en-US")
	req.Header.Set("Content-Type", "application/json")
}

func isEmpty(data json.RawMessage) bool {
	s := strings.TrimSpace(string(data))
	return s == "" || s == "null" || s == "[]" || s == "{}"
}

func (c *Client) dryRunOrderID(kind string) string {
	return fmt.Sprintf("DRY_%s_%d", kind, c.now().UnixNano())
}

package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/mattetom/crypto/core"
	"github.com/mattetom/crypto/exchange"
	"github.com/mattetom/crypto/execution"
	"github.com/mattetom/crypto/feeds"
	"github.com/mattetom/crypto/internal/config"
	"github.com/mattetom/crypto/notify"
	"github.com/mattetom/crypto/storage"
	"github.com/mattetom/crypto/strategy"
	"github.com/mattetom/crypto/stream"
)

// App is the wired object graph
type App struct {
	Exchange *exchange.Client
	Engine   *core.Engine
	Stream   *stream.Client
	telegram *notify.Telegram
	closers  []func() error
}

// StartTelegram starts the status command loop when Telegram is configured
func (a *App) StartTelegram() {
	if a.telegram != nil {
		a.telegram.Start(a.Engine)
	}
}

// Close releases storage handles and stops the command loop
func (a *App) Close() {
	if a.telegram != nil {
		a.telegram.Stop()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			log.Warn().Err(err).Msg("Close failed")
		}
	}
}

func build(ctx context.Context, cfg *config.Config) (*App, error) {
	app := &App{}

	// 1. Venue
	client := exchange.NewClient(cfg)
	app.Exchange = client
	brackets := execution.NewBracketPlacer(client, cfg)
	reconciler := execution.NewReconciler(client, brackets)

	// 2. Journal, always gorm
	db, err := storage.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	app.closers = append(app.closers, db.Close)

	// 3. Signal state
	var state storage.BlobStore = db
	if cfg.StateBackend == config.StateBackendGCS {
		gcs, err := storage.NewGCSStore(ctx, cfg.GCSBucket, cfg.GCSCredentialsFile)
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("open gcs state: %w", err)
		}
		app.closers = append(app.closers, gcs.Close)
		state = gcs
	}

	// 4. Notifications
	var notifiers notify.Multi
	if cfg.EmailEnabled() {
		notifiers = append(notifiers, notify.NewEmail(cfg))
		log.Info().Msg("📧 Email notifications enabled")
	}
	if cfg.TelegramEnabled() {
		tg, err := notify.NewTelegram(cfg.TelegramToken, cfg.TelegramChatID)
		if err != nil {
			log.Warn().Err(err).Msg("⚠️ Telegram unavailable, continuing without it")
		} else {
			app.telegram = tg
			notifiers = append(notifiers, tg)
		}
	}
	var notifier notify.Notifier = notify.Nop{}
	if len(notifiers) > 0 {
		notifier = notifiers
	}

	// 5. MACD
	deps := core.Deps{
		Trader:    reconciler,
		Positions: client,
		State:     state,
		Journal:   db,
		Notifier:  notifier,
	}
	if cfg.MACDSymbol != "" {
		symbol, err := core.NormalizeSymbol(cfg.MACDSymbol)
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("MACD_SYMBOL: %w", err)
		}
		cfg.MACDSymbol = symbol
		deps.MACD = feeds.NewMACDFeed(client, cfg)
		deps.Strategy = strategy.NewMACDStrategy(symbol, cfg.MACDCooldown)
	}

	app.Engine = core.NewEngine(cfg, deps)

	// 6. Private order stream
	if cfg.StreamEnabled {
		app.Stream = stream.NewClient(cfg)
	}

	return app, nil
}

package notify

import (
	"context"
	"fmt"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"

	"github.com/mattetom/crypto/exchange"
	"github.com/mattetom/crypto/storage"
)

// ═══════════════════════════════════════════════════════════════════════════════
// TELEGRAM - Alerts plus a few read-only commands
// ═══════════════════════════════════════════════════════════════════════════════
//
// Commands (authorized chat only):
//   /help        this list
//   /ping        liveness
//   /positions   open venue positions
//   /trades      recent journal entries
//
// ═══════════════════════════════════════════════════════════════════════════════

// StatusProvider answers the read-only commands
type StatusProvider interface {
	OpenPositions(ctx context.Context) ([]exchange.Position, error)
	RecentTrades(ctx context.Context, limit int) ([]storage.TradeRecord, error)
}

// Telegram sends alerts to one chat
type Telegram struct {
	mu      sync.Mutex
	api     *tgbotapi.BotAPI
	chatID  int64
	running bool
	stopCh  chan struct{}

	status StatusProvider
}

// NewTelegram connects to the bot API with token
func NewTelegram(token string, chatID int64) (*Telegram, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}
	return newTelegramWithAPI(api, chatID), nil
}

func newTelegramWithAPI(api *tgbotapi.BotAPI, chatID int64) *Telegram {
	log.Info().Str("username", api.Self.UserName).Msg("🤖 Telegram bot initialized")
	return &Telegram{
		api:    api,
		chatID: chatID,
		stopCh: make(chan struct{}),
	}
}

func (t *Telegram) Notify(ctx context.Context, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(t.chatID, subject+"\n\n"+body)
	_, err := t.api.Send(msg)
	return err
}

// Start begins answering commands from the authorized chat
func (t *Telegram) Start(status StatusProvider) {
	t.mu.Lock()
	if t.running {
		t.mu.Unlock()
		return
	}
	t.running = true
	t.status = status
	t.mu.Unlock()

	go t.commandLoop()
	log.Info().Msg("📱 Telegram commands started")
}

// Stop stops the command loop
func (t *Telegram) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.running {
		return
	}

	t.running = false
	t.api.StopReceivingUpdates()
	close(t.stopCh)
	log.Info().Msg("Telegram bot stopped")
}

// ═══════════════════════════════════════════════════════════════════════════════
// COMMAND HANDLING
// ═══════════════════════════════════════════════════════════════════════════════

func (t *Telegram) commandLoop() {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30

	updates := t.api.GetUpdatesChan(u)

	for {
		select {
		case <-t.stopCh:
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			if update.Message == nil || !update.Message.IsCommand() {
				continue
			}

			// Only respond to authorized chat
			if update.Message.Chat.ID != t.chatID {
				continue
			}

			t.send(t.reply(context.Background(), update.Message.Command()))
		}
	}
}

// reply builds the answer to one command
func (t *Telegram) reply(ctx context.Context, cmd string) string {
	switch strings.ToLower(cmd) {
	case "start", "help":
		return "🤖 BITBOT COMMANDS\n\n/positions - open positions\n/trades - recent orders\n/ping - liveness"
	case "ping":
		return "🏓 Pong!"
	case "positions":
		return t.cmdPositions(ctx)
	case "trades":
		return t.cmdTrades(ctx)
	default:
		return "❓ Unknown command. Use /help"
	}
}

func (t *Telegram) cmdPositions(ctx context.Context) string {
	if t.status == nil {
		return "❌ Positions not available"
	}

	positions, err := t.status.OpenPositions(ctx)
	if err != nil {
		return "❌ Failed to fetch positions"
	}
	if len(positions) == 0 {
		return "📭 No open positions"
	}

	var sb strings.Builder
	sb.WriteString("💼 OPEN POSITIONS\n\n")
	for _, pos := range positions {
		sideEmoji := "🟢"
		if pos.HoldSide == exchange.PositionShort {
			sideEmoji = "🔴"
		}
		fmt.Fprintf(&sb, "%s %s %s\n💵 Entry: %s | Size: %s | uPnL: %s\n\n",
			sideEmoji, pos.Symbol, pos.HoldSide,
			pos.OpenPriceAvg, pos.Total, pos.UnrealizedPL.StringFixed(2))
	}
	return sb.String()
}

func (t *Telegram) cmdTrades(ctx context.Context) string {
	if t.status == nil {
		return "❌ Trades not available"
	}

	trades, err := t.status.RecentTrades(ctx, 10)
	if err != nil {
		return "❌ Failed to fetch trades"
	}
	if len(trades) == 0 {
		return "📭 No trades yet"
	}

	var sb strings.Builder
	sb.WriteString("📜 RECENT ORDERS\n\n")
	for _, tr := range trades {
		fmt.Fprintf(&sb, "%s %s %s %s size %s @ %s [%s]\n",
			tr.CreatedAt.Format("01-02 15:04"), tr.Symbol, tr.Kind, tr.Side, tr.Size, tr.Price, tr.Status)
	}
	return sb.String()
}

func (t *Telegram) send(text string) {
	msg := tgbotapi.NewMessage(t.chatID, text)
	if _, err := t.api.Send(msg); err != nil {
		log.Error().Err(err).Msg("Failed to send Telegram message")
	}
}

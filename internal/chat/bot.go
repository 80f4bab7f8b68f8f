// Package chat serves the portfolio over Telegram commands.
package chat

import (
	"context"
	"errors"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/sync/errgroup"

	"github.com/portfolio-tracker/internal/config"
	"github.com/portfolio-tracker/internal/logging"
	"github.com/portfolio-tracker/internal/models"
	"github.com/portfolio-tracker/internal/service"
	"github.com/portfolio-tracker/internal/types"
)

const (
	// commandTimeout bounds a single command; /buys walks every traded pair
	commandTimeout = 3 * time.Minute
	// maxConcurrentCommands caps commands handled at once
	maxConcurrentCommands = 4
	pollTimeoutSeconds    = 60
)

// Portfolio is the query surface the commands read from
type Portfolio interface {
	Settings() config.ValuationConfig
	NormalizeSymbol(input string) string
	Wallet(ctx context.Context) ([]models.AssetPosition, error)
	TotalList(ctx context.Context) (*types.TotalList, error)
	OpenOrders(ctx context.Context) ([]models.OpenOrder, error)
	LastTrades(ctx context.Context) ([]models.Trade, error)
	TradeHistory(ctx context.Context, symbol string) (*models.TradeSummary, error)
	TradeActivity(ctx context.Context) ([]*models.TradeSummary, error)
	PnL(ctx context.Context, symbol string) (*service.PnLReport, error)
	TradesBySide(ctx context.Context, side models.Side, limit int) ([]models.Trade, error)
}

// Sender delivers outgoing messages
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// reply is what a command answers with
type reply struct {
	texts    []string
	markdown bool
	keyboard bool
}

func text(msgs ...string) reply {
	return reply{texts: msgs}
}

type commandFunc func(ctx context.Context, args string) (reply, error)

// Bot dispatches Telegram commands to the portfolio service
type Bot struct {
	api       *tgbotapi.BotAPI
	sender    Sender
	portfolio Portfolio
	chatID    int64
	commands  map[string]commandFunc
	logger    *logging.Logger
}

// NewBot connects to Telegram with the configured token
func NewBot(cfg config.TelegramConfig, portfolio Portfolio, logger *logging.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, err
	}
	api.Debug = cfg.Debug

	b := NewBotWithSender(api, cfg.ChatID, portfolio, logger)
	b.api = api
	b.logger = b.logger.WithField("bot", api.Self.UserName)
	return b, nil
}

// NewBotWithSender builds a bot around an existing sender. chatID 0 answers every chat.
func NewBotWithSender(sender Sender, chatID int64, portfolio Portfolio, logger *logging.Logger) *Bot {
	b := &Bot{
		sender:    sender,
		portfolio: portfolio,
		chatID:    chatID,
		logger:    logger.WithField("component", "telegram"),
	}
	b.commands = map[string]commandFunc{
		"start":            b.start,
		"wallet":           b.wallet,
		"total":            b.total,
		"open_order":       b.openOrders,
		"show_last_trades": b.lastTrades,
		"trades":           b.trades,
		"pnl":              b.pnl,
		"buys":             b.sideTrades(models.SideBuy),
		"sells":            b.sideTrades(models.SideSell),
	}
	return b
}

// Run polls for updates until ctx is cancelled
func (b *Bot) Run(ctx context.Context) error {
	if b.api == nil {
		return errors.New("telegram client is not connected")
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = pollTimeoutSeconds
	updates := b.api.GetUpdatesChan(u)
	b.logger.Info("Telegram bot polling for updates")

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentCommands)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			_ = g.Wait()
			b.logger.Info("Telegram bot stopped")
			return nil
		case update, ok := <-updates:
			if !ok {
				return g.Wait()
			}
			g.Go(func() error {
				b.HandleUpdate(gctx, update)
				return nil
			})
		}
	}
}

// HandleUpdate answers one update. Non-command messages and chats other
// than the configured one are ignored.
func (b *Bot) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	msg := update.Message
	if msg == nil || msg.Chat == nil || !msg.IsCommand() {
		return
	}

	logger := b.logger.WithFields(map[string]interface{}{
		"chat_id": msg.Chat.ID,
		"command": msg.Command(),
	})
	if b.chatID != 0 && msg.Chat.ID != b.chatID {
		logger.Warn("Ignoring command from unauthorized chat")
		return
	}

	cmd, ok := b.commands[msg.Command()]
	if !ok {
		logger.Debug("Unknown command")
		return
	}

	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	start := time.Now()
	r, err := cmd(ctx, strings.TrimSpace(msg.CommandArguments()))
	if err != nil {
		logger.WithError(err).Warn("Command failed")
		r = text(FormatError(err))
	}
	logger.WithField("duration_ms", time.Since(start).Milliseconds()).Debug("Command handled")

	b.send(msg.Chat.ID, r, logger)
}

func (b *Bot) send(chatID int64, r reply, logger *logging.Logger) {
	for i, t := range r.texts {
		out := tgbotapi.NewMessage(chatID, t)
		if r.markdown {
			out.ParseMode = tgbotapi.ModeMarkdown
		}
		if r.keyboard && i == 0 {
			out.ReplyMarkup = keyboard()
		}
		if _, err := b.sender.Send(out); err != nil {
			logger.WithError(err).Error("Failed to send reply")
			return
		}
	}
}

func keyboard() tgbotapi.ReplyKeyboardMarkup {
	rows := make([][]tgbotapi.KeyboardButton, 0, len(KeyboardCommands))
	for _, c := range KeyboardCommands {
		rows = append(rows, tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(c)))
	}
	kb := tgbotapi.NewReplyKeyboard(rows...)
	kb.ResizeKeyboard = true
	kb.OneTimeKeyboard = false
	return kb
}

func (b *Bot) start(ctx context.Context, args string) (reply, error) {
	return reply{texts: []string{WelcomeText}, keyboard: true}, nil
}

func (b *Bot) wallet(ctx context.Context, args string) (reply, error) {
	positions, err := b.portfolio.Wallet(ctx)
	if err != nil {
		return reply{}, err
	}
	return text(FormatWallet(positions)...), nil
}

func (b *Bot) total(ctx context.Context, args string) (reply, error) {
	list, err := b.portfolio.TotalList(ctx)
	if err != nil {
		return reply{}, err
	}
	return text(FormatTotal(list)), nil
}

func (b *Bot) openOrders(ctx context.Context, args string) (reply, error) {
	orders, err := b.portfolio.OpenOrders(ctx)
	if err != nil {
		return reply{}, err
	}
	return text(FormatOpenOrders(orders)...), nil
}

func (b *Bot) lastTrades(ctx context.Context, args string) (reply, error) {
	trades, err := b.portfolio.LastTrades(ctx)
	if err != nil {
		return reply{}, err
	}
	cfg := b.portfolio.Settings()
	return reply{
		texts:    FormatLastTrades(trades, cfg.WatchList, cfg.PriceQuote, cfg.LastTradesLimit),
		markdown: len(trades) > 0,
	}, nil
}

// trades shows one symbol's history, or the activity summary without an argument
func (b *Bot) trades(ctx context.Context, args string) (reply, error) {
	if args == "" {
		summaries, err := b.portfolio.TradeActivity(ctx)
		if err != nil {
			return reply{}, err
		}
		return text(FormatActivity(summaries)), nil
	}

	symbol := b.portfolio.NormalizeSymbol(firstArg(args))
	summary, err := b.portfolio.TradeHistory(ctx, symbol)
	if err != nil {
		return reply{}, err
	}
	return text(FormatTradeHistory(symbol, summary, b.portfolio.Settings().RecentTrades)...), nil
}

func (b *Bot) pnl(ctx context.Context, args string) (reply, error) {
	if args == "" {
		return text("Please specify a symbol. Example: /pnl BTC or /pnl BTCUSDT"), nil
	}
	report, err := b.portfolio.PnL(ctx, firstArg(args))
	if err != nil {
		return reply{}, err
	}
	return text(FormatPnL(report)), nil
}

func (b *Bot) sideTrades(side models.Side) commandFunc {
	return func(ctx context.Context, args string) (reply, error) {
		trades, err := b.portfolio.TradesBySide(ctx, side, 0)
		if err != nil {
			return reply{}, err
		}
		return reply{texts: FormatSideTrades(side, trades), markdown: len(trades) > 0}, nil
	}
}

func firstArg(args string) string {
	fields := strings.Fields(args)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

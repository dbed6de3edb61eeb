package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/Qubut/IP-Claim/packages/alipay_bill/internal/config"
	"github.com/Qubut/IP-Claim/packages/alipay_bill/internal/job"
)

type Noop struct{}

func (Noop) Notify(context.Context, job.Summary) error { return nil }

// Telegram posts the run summary to one chat.
type Telegram struct {
	bot    *tgbotapi.BotAPI
	chatID int64
	logger *zap.SugaredLogger
}

func NewTelegram(bot *tgbotapi.BotAPI, chatID int64, logger *zap.SugaredLogger) *Telegram {
	return &Telegram{bot: bot, chatID: chatID, logger: logger}
}

// New returns a Telegram notifier when a bot token is configured and Noop otherwise.
func New(cfg config.Notify, logger *zap.SugaredLogger) (job.Notifier, error) {
	if cfg.Telegram.Token == "" {
		return Noop{}, nil
	}
	bot, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		return nil, fmt.Errorf("connect telegram bot: %w", err)
	}
	logger.Infow("Telegram notifier ready", "bot", bot.Self.UserName, "chat_id", cfg.Telegram.ChatID)
	return NewTelegram(bot, cfg.Telegram.ChatID, logger), nil
}

func (t *Telegram) Notify(ctx context.Context, summary job.Summary) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(t.chatID, FormatSummary(summary))
	if _, err := t.bot.Send(msg); err != nil {
		return fmt.Errorf("send summary to chat %d: %w", t.chatID, err)
	}
	t.logger.Debugw("Run summary sent", "chat_id", t.chatID, "date", summary.Date)
	return nil
}

func FormatSummary(s job.Summary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Alipay bills of %s\n", s.Date)
	fmt.Fprintf(&b, "attempted %d, fetched %d, empty %d, errored %d\n", s.Attempted, s.Fetched, s.Empty, s.Errored)
	if breakdown := s.Breakdown(); breakdown != "" {
		fmt.Fprintf(&b, "failures: %s\n", breakdown)
	}
	fmt.Fprintf(&b, "took %s", s.Duration.Round(time.Millisecond))
	return b.String()
}

package notify

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/taskmaster/tasksync/internal/domain/entities"
	"github.com/taskmaster/tasksync/internal/infrastructure/logger"
)

var kindIcons = map[entities.NotificationKind]string{
	entities.NotificationSuccess: "✅",
	entities.NotificationError:   "⚠️",
	entities.NotificationInfo:    "ℹ️",
}

// Telegram forwards notifications to a single chat
type Telegram struct {
	bot    *tgbotapi.BotAPI
	chatID int64
	logger *logger.Logger
}

// NewTelegram authenticates the bot against the Telegram API
func NewTelegram(token string, chatID int64, log *logger.Logger) (*Telegram, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	return NewTelegramWithBot(bot, chatID, log), nil
}

// NewTelegramWithBot wraps an existing bot
func NewTelegramWithBot(bot *tgbotapi.BotAPI, chatID int64, log *logger.Logger) *Telegram {
	return &Telegram{
		bot:    bot,
		chatID: chatID,
		logger: log.WithComponent("telegram"),
	}
}

// Notify sends the message; delivery failures are only logged
func (t *Telegram) Notify(_ context.Context, n entities.Notification) {
	msg := tgbotapi.NewMessage(t.chatID, fmt.Sprintf("%s %s", kindIcons[n.Kind], n.Message))
	msg.DisableWebPagePreview = true

	if _, err := t.bot.Send(msg); err != nil {
		t.logger.Warnw("Failed to send telegram notification", "chat_id", t.chatID, "error", err)
	}
}

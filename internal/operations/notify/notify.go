package notify

import (
	"context"
	"fmt"
	"html"
	"log"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Notifier delivers operator messages. Delivery failures never stop trading.
type Notifier interface {
	Notify(ctx context.Context, message string) error
}

type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramNotifier sends HTML messages to a single chat
type TelegramNotifier struct {
	bot        sender
	chatID     int64
	maxRetries int
	retryDelay time.Duration
}

func NewTelegramNotifier(token string, chatID int64) (*TelegramNotifier, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	log.Printf("Telegram bot authorized as @%s", bot.Self.UserName)
	return newTelegramNotifier(bot, chatID), nil
}

func newTelegramNotifier(bot sender, chatID int64) *TelegramNotifier {
	return &TelegramNotifier{
		bot:        bot,
		chatID:     chatID,
		maxRetries: 2,
		retryDelay: time.Second,
	}
}

func (n *TelegramNotifier) Notify(ctx context.Context, message string) error {
	msg := tgbotapi.NewMessage(n.chatID, message)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true

	var err error
	for attempt := 0; attempt <= n.maxRetries; attempt++ {
		if _, err = n.bot.Send(msg); err == nil {
			return nil
		}
		if attempt == n.maxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(n.retryDelay):
		}
	}
	return fmt.Errorf("failed to send telegram message: %w", err)
}

// Escape renders v for interpolation into an HTML message. Exchange errors
// read like "<APIError> code=-2010", which Telegram rejects as a tag.
func Escape(v interface{}) string {
	return html.EscapeString(fmt.Sprint(v))
}

// LogNotifier writes messages to the log when no bot is configured
type LogNotifier struct{}

func (LogNotifier) Notify(ctx context.Context, message string) error {
	log.Printf("[notify] %s", message)
	return nil
}

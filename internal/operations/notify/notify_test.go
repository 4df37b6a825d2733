package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/adshao/go-binance/v2/common"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type fakeBot struct {
	failures int
	sent     []tgbotapi.MessageConfig
	calls    int
}

func (f *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.calls++
	if f.calls <= f.failures {
		return tgbotapi.Message{}, errors.New("telegram unavailable")
	}
	f.sent = append(f.sent, c.(tgbotapi.MessageConfig))
	return tgbotapi.Message{MessageID: f.calls}, nil
}

func TestTelegramNotify(t *testing.T) {
	bot := &fakeBot{}
	n := newTelegramNotifier(bot, 42)

	if err := n.Notify(context.Background(), "<b>BTCUSDT</b> opened"); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if len(bot.sent) != 1 {
		t.Fatalf("expected 1 message, got %d", len(bot.sent))
	}
	msg := bot.sent[0]
	if msg.ChatID != 42 || msg.Text != "<b>BTCUSDT</b> opened" || msg.ParseMode != tgbotapi.ModeHTML {
		t.Errorf("unexpected message %+v", msg)
	}
}

func TestTelegramNotifyRetries(t *testing.T) {
	bot := &fakeBot{failures: 2}
	n := newTelegramNotifier(bot, 42)
	n.retryDelay = time.Millisecond

	if err := n.Notify(context.Background(), "hello"); err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if bot.calls != 3 {
		t.Errorf("expected 3 attempts, got %d", bot.calls)
	}

	bot = &fakeBot{failures: 5}
	n = newTelegramNotifier(bot, 42)
	n.retryDelay = time.Millisecond
	if err := n.Notify(context.Background(), "hello"); err == nil {
		t.Fatal("expected error once retries are exhausted")
	}
	if bot.calls != 3 {
		t.Errorf("expected 3 attempts, got %d", bot.calls)
	}
}

func TestLogNotifier(t *testing.T) {
	if err := (LogNotifier{}).Notify(context.Background(), "hello"); err != nil {
		t.Fatalf("Notify: %v", err)
	}
}

func TestTelegramNotifyEscapesExchangeErrors(t *testing.T) {
	bot := &fakeBot{}
	n := newTelegramNotifier(bot, 42)

	apiErr := &common.APIError{Code: -2010, Message: "Account has insufficient balance for requested action."}
	message := fmt.Sprintf("❌ <b>%s</b> long order failed: %s", Escape("BTCUSDT"), Escape(fmt.Errorf("buy BTCUSDT: %w", apiErr)))
	if err := n.Notify(context.Background(), message); err != nil {
		t.Fatalf("Notify: %v", err)
	}

	text := bot.sent[0].Text
	if strings.Contains(text, "<APIError>") {
		t.Errorf("exchange error must be escaped, got %q", text)
	}
	if !strings.Contains(text, "&lt;APIError&gt; code=-2010") || !strings.HasPrefix(text, "❌ <b>BTCUSDT</b>") {
		t.Errorf("unexpected text %q", text)
	}
}

func TestEscape(t *testing.T) {
	tests := map[string]string{
		"BTCUSDT":              "BTCUSDT",
		"<APIError> code=-1":   "&lt;APIError&gt; code=-1",
		"row 3: TRADE & \"x\"": "row 3: TRADE &amp; &#34;x&#34;",
	}
	for in, want := range tests {
		if got := Escape(in); got != want {
			t.Errorf("Escape(%q) = %q, want %q", in, got, want)
		}
	}
}

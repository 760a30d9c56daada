package alert

import (
	"context"
	"fmt"
	"time"

	"algotrader/pkg/http"
)

// TelegramChannel sends alerts through a bot to one chat. Missing
// credentials disable the channel.
type TelegramChannel struct {
	botToken string
	chatID   string
	client   *http.Client
}

func NewTelegramChannel(botToken, chatID string) *TelegramChannel {
	return &TelegramChannel{
		botToken: botToken,
		chatID:   chatID,
		client:   http.NewClient(5 * time.Second),
	}
}

func (t *TelegramChannel) Name() string { return "telegram" }

func (t *TelegramChannel) Send(ctx context.Context, alert Payload) error {
	if t.botToken == "" || t.chatID == "" {
		return nil
	}

	icon := "ℹ️"
	switch alert.Level {
	case Warning:
		icon = "⚠️"
	case Error:
		icon = "❌"
	case Critical:
		icon = "🚨"
	}

	text := fmt.Sprintf("%s *[%s] %s*\n\n%s", icon, alert.Level, alert.Title, alert.Message)
	for k, v := range alert.Fields {
		text += fmt.Sprintf("\n- *%s*: %s", k, v)
	}

	payload := map[string]interface{}{
		"chat_id":    t.chatID,
		"text":       text,
		"parse_mode": "Markdown",
	}
	url := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", t.botToken)
	if _, err := t.client.PostJSON(ctx, url, payload); err != nil {
		return fmt.Errorf("telegram api: %w", err)
	}
	return nil
}

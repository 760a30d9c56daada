package alert

import (
	"context"
	"fmt"
	"time"

	"algotrader/pkg/http"
)

// SlackChannel posts alerts to an incoming webhook. An empty webhook
// URL disables the channel.
type SlackChannel struct {
	webhookURL string
	client     *http.Client
}

func NewSlackChannel(webhookURL string) *SlackChannel {
	return &SlackChannel{
		webhookURL: webhookURL,
		client:     http.NewClient(5 * time.Second),
	}
}

func (s *SlackChannel) Name() string { return "slack" }

func (s *SlackChannel) Send(ctx context.Context, alert Payload) error {
	if s.webhookURL == "" {
		return nil
	}

	color := "#36a64f"
	switch alert.Level {
	case Warning:
		color = "#ffcc00"
	case Error:
		color = "#ff0000"
	case Critical:
		color = "#8b0000"
	}

	var fields []map[string]interface{}
	for k, v := range alert.Fields {
		fields = append(fields, map[string]interface{}{
			"title": k,
			"value": v,
			"short": true,
		})
	}

	payload := map[string]interface{}{
		"attachments": []map[string]interface{}{
			{
				"color":   color,
				"pretext": fmt.Sprintf("[%s] %s", alert.Level, alert.Title),
				"text":    alert.Message,
				"fields":  fields,
				"ts":      alert.Timestamp.Unix(),
				"footer":  "algotrader",
			},
		},
	}

	if _, err := s.client.PostJSON(ctx, s.webhookURL, payload); err != nil {
		return fmt.Errorf("slack webhook: %w", err)
	}
	return nil
}

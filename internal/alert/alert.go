// Package alert pushes trading notifications to external channels.
// Delivery is fire and forget: alerting must never block or fail the
// trading path.
package alert

import (
	"context"
	"fmt"
	"sync"
	"time"

	"algotrader/internal/core"
	"algotrader/internal/models"
)

type Level string

const (
	Info     Level = "INFO"
	Warning  Level = "WARNING"
	Error    Level = "ERROR"
	Critical Level = "CRITICAL"
)

// sendTimeout bounds one delivery attempt per channel.
const sendTimeout = 10 * time.Second

type Payload struct {
	Level     Level
	Title     string
	Message   string
	Timestamp time.Time
	Fields    map[string]string
}

// Channel delivers one alert to one destination.
type Channel interface {
	Send(ctx context.Context, alert Payload) error
	Name() string
}

// Notifier fans alerts out to every configured channel. A nil
// Notifier is valid and drops everything.
type Notifier struct {
	mu       sync.RWMutex
	channels []Channel
	logger   core.Logger
}

func NewNotifier(logger core.Logger) *Notifier {
	return &Notifier{logger: logger.WithField("component", "alert")}
}

func (n *Notifier) AddChannel(ch Channel) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.channels = append(n.channels, ch)
	n.logger.Info("added alert channel", "name", ch.Name())
}

// Notify delivers asynchronously; errors are logged per channel.
func (n *Notifier) Notify(ctx context.Context, level Level, title, message string, fields map[string]string) {
	if n == nil {
		return
	}
	payload := Payload{
		Level:     level,
		Title:     title,
		Message:   message,
		Timestamp: time.Now(),
		Fields:    fields,
	}

	n.mu.RLock()
	channels := append([]Channel(nil), n.channels...)
	n.mu.RUnlock()

	for _, ch := range channels {
		go func(c Channel) {
			sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sendTimeout)
			defer cancel()
			if err := c.Send(sendCtx, payload); err != nil {
				n.logger.Error("alert delivery failed", "channel", c.Name(), "error", err)
			}
		}(ch)
	}
}

// TradeCompleted announces a finished trade with its exit and P&L.
func (n *Notifier) TradeCompleted(ctx context.Context, trade *models.Trade) {
	if n == nil {
		return
	}
	level := Info
	if trade.PnL.IsNegative() {
		level = Warning
	}
	n.Notify(ctx, level, "Trade completed", trade.TradingSymbol, map[string]string{
		"strategy":    trade.Strategy,
		"exit_reason": string(trade.ExitReason),
		"entry":       trade.Entry.String(),
		"exit":        trade.Exit.String(),
		"pnl":         trade.PnL.String(),
	})
}

// StrategyFailed announces a strategy taken out of the session.
func (n *Notifier) StrategyFailed(ctx context.Context, strategyName, reason string) {
	if n == nil {
		return
	}
	n.Notify(ctx, Critical, "Strategy disabled", reason, map[string]string{
		"strategy": strategyName,
	})
}

// OrderRejected announces a broker rejection.
func (n *Notifier) OrderRejected(ctx context.Context, order *models.Order) {
	if n == nil {
		return
	}
	n.Notify(ctx, Error, "Order rejected",
		fmt.Sprintf("%s %s x%d", order.Direction, order.TradingSymbol, order.Qty),
		map[string]string{
			"order_id": order.OrderID,
			"message":  order.Message,
		})
}

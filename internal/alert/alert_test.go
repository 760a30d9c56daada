package alert

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"algotrader/internal/models"
	"algotrader/pkg/logging"
)

type captureChannel struct {
	mu   sync.Mutex
	sent []Payload
}

func (c *captureChannel) Name() string { return "capture" }

func (c *captureChannel) Send(ctx context.Context, alert Payload) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, alert)
	return nil
}

func (c *captureChannel) wait(t *testing.T, n int) []Payload {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		c.mu.Lock()
		if len(c.sent) >= n {
			out := append([]Payload(nil), c.sent...)
			c.mu.Unlock()
			return out
		}
		c.mu.Unlock()
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("expected %d alerts", n)
	return nil
}

func newNotifier(t *testing.T) (*Notifier, *captureChannel) {
	t.Helper()
	logger, err := logging.NewLoggerFromString("error")
	require.NoError(t, err)
	n := NewNotifier(logger)
	ch := &captureChannel{}
	n.AddChannel(ch)
	return n, ch
}

func TestTradeCompletedAlert(t *testing.T) {
	n, ch := newNotifier(t)

	trade := models.NewTrade("NIFTY24O0924500CE", "seller")
	trade.ExitReason = models.ExitReasonTargetHit
	trade.Entry = decimal.NewFromInt(100)
	trade.Exit = decimal.NewFromInt(110)
	trade.PnL = decimal.NewFromInt(750)
	n.TradeCompleted(context.Background(), trade)

	sent := ch.wait(t, 1)
	assert.Equal(t, Info, sent[0].Level)
	assert.Equal(t, "NIFTY24O0924500CE", sent[0].Message)
	assert.Equal(t, "TARGET HIT", sent[0].Fields["exit_reason"])
}

func TestLosingTradeAlertsAsWarning(t *testing.T) {
	n, ch := newNotifier(t)

	trade := models.NewTrade("NIFTY24O0924500CE", "seller")
	trade.PnL = decimal.NewFromInt(-500)
	n.TradeCompleted(context.Background(), trade)

	sent := ch.wait(t, 1)
	assert.Equal(t, Warning, sent[0].Level)
}

func TestStrategyFailedAlert(t *testing.T) {
	n, ch := newNotifier(t)

	n.StrategyFailed(context.Background(), "seller", "order rejected by broker")

	sent := ch.wait(t, 1)
	assert.Equal(t, Critical, sent[0].Level)
	assert.Equal(t, "seller", sent[0].Fields["strategy"])
}

func TestNilNotifierDropsEverything(t *testing.T) {
	var n *Notifier
	n.TradeCompleted(context.Background(), models.NewTrade("X", "y"))
	n.StrategyFailed(context.Background(), "y", "z")
}

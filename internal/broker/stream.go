package broker

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/shopspring/decimal"

	"algotrader/internal/core"
	"algotrader/internal/models"
	"algotrader/pkg/websocket"
)

// streamMessage is the wire envelope on the streaming feed. Brokers
// multiplex ticks and order updates on one socket.
type streamMessage struct {
	Type string `json:"type"` // "tick" or "order"

	TradingSymbol     string          `json:"trading_symbol,omitempty"`
	LastTradedPrice   decimal.Decimal `json:"ltp,omitempty"`
	Volume            int64           `json:"volume,omitempty"`
	ExchangeTimestamp int64           `json:"exchange_timestamp,omitempty"`

	OrderID      string             `json:"order_id,omitempty"`
	Status       models.OrderStatus `json:"order_status,omitempty"`
	AveragePrice decimal.Decimal    `json:"average_price,omitempty"`
	FilledQty    int64              `json:"filled_qty,omitempty"`
	PendingQty   int64              `json:"pending_qty,omitempty"`
	Message      string             `json:"message,omitempty"`
}

type subscribeRequest struct {
	Action  string   `json:"action"` // "subscribe" or "unsubscribe"
	Symbols []string `json:"symbols"`
}

// StreamTicker is a Ticker over a reconnecting websocket feed. It fans
// ticks out to every registered listener; a panicking listener is
// isolated so one bad strategy callback cannot kill the feed.
type StreamTicker struct {
	logger core.Logger
	client *websocket.Client

	mu             sync.RWMutex
	tickListeners  []TickListener
	orderListeners []OrderUpdateListener
	subscribed     map[string]struct{}
}

func NewStreamTicker(url string, logger core.Logger) *StreamTicker {
	t := &StreamTicker{
		logger:     logger.WithField("component", "stream_ticker"),
		subscribed: make(map[string]struct{}),
	}
	t.client = websocket.NewClient(url, t.handleMessage, t.logger)
	// resubscribe everything after a reconnect
	t.client.SetOnConnected(t.resubscribe)
	return t
}

func (t *StreamTicker) Start(ctx context.Context) error {
	t.client.Start()
	return nil
}

func (t *StreamTicker) Stop() error {
	t.client.Stop()
	return nil
}

func (t *StreamTicker) RegisterTickListener(fn TickListener) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tickListeners = append(t.tickListeners, fn)
}

func (t *StreamTicker) RegisterOrderUpdateListener(fn OrderUpdateListener) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.orderListeners = append(t.orderListeners, fn)
}

func (t *StreamTicker) RegisterSymbols(ctx context.Context, symbols []string) error {
	t.mu.Lock()
	var fresh []string
	for _, s := range symbols {
		if _, ok := t.subscribed[s]; !ok {
			t.subscribed[s] = struct{}{}
			fresh = append(fresh, s)
		}
	}
	t.mu.Unlock()
	if len(fresh) == 0 {
		return nil
	}
	return t.client.Send(subscribeRequest{Action: "subscribe", Symbols: fresh})
}

func (t *StreamTicker) UnregisterSymbols(ctx context.Context, symbols []string) error {
	t.mu.Lock()
	for _, s := range symbols {
		delete(t.subscribed, s)
	}
	t.mu.Unlock()
	return t.client.Send(subscribeRequest{Action: "unsubscribe", Symbols: symbols})
}

func (t *StreamTicker) resubscribe() {
	t.mu.RLock()
	symbols := make([]string, 0, len(t.subscribed))
	for s := range t.subscribed {
		symbols = append(symbols, s)
	}
	t.mu.RUnlock()
	if len(symbols) == 0 {
		return
	}
	if err := t.client.Send(subscribeRequest{Action: "subscribe", Symbols: symbols}); err != nil {
		t.logger.Error("resubscribe after reconnect failed", "error", err)
	}
}

func (t *StreamTicker) handleMessage(raw []byte) {
	var msg streamMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		t.logger.Warn("dropping malformed stream message", "error", err)
		return
	}

	switch msg.Type {
	case "tick":
		tick := models.TickData{
			TradingSymbol:     msg.TradingSymbol,
			LastTradedPrice:   msg.LastTradedPrice,
			Volume:            msg.Volume,
			ExchangeTimestamp: msg.ExchangeTimestamp,
		}
		t.mu.RLock()
		listeners := append([]TickListener(nil), t.tickListeners...)
		t.mu.RUnlock()
		for _, fn := range listeners {
			t.dispatchTick(fn, tick)
		}
	case "order":
		update := models.OrderUpdate{
			OrderID:      msg.OrderID,
			Status:       msg.Status,
			AveragePrice: msg.AveragePrice,
			FilledQty:    msg.FilledQty,
			PendingQty:   msg.PendingQty,
			Timestamp:    msg.ExchangeTimestamp,
			Message:      msg.Message,
		}
		t.mu.RLock()
		listeners := append([]OrderUpdateListener(nil), t.orderListeners...)
		t.mu.RUnlock()
		for _, fn := range listeners {
			t.dispatchOrderUpdate(fn, update)
		}
	default:
		t.logger.Debug("ignoring stream message", "type", msg.Type)
	}
}

func (t *StreamTicker) dispatchTick(fn TickListener, tick models.TickData) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("tick listener panicked", "symbol", tick.TradingSymbol, "panic", r)
		}
	}()
	fn(tick)
}

func (t *StreamTicker) dispatchOrderUpdate(fn OrderUpdateListener, update models.OrderUpdate) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("order update listener panicked", "orderId", update.OrderID, "panic", r)
		}
	}()
	fn(update)
}

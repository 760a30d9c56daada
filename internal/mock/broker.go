// Package mock provides an in-memory broker and ticker for tests and
// paper trading.
package mock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"algotrader/internal/broker"
	"algotrader/internal/models"
)

// Broker implements broker.Broker against an in-memory order book.
// Fills, rejects and transport failures are scripted by tests through
// the Complete/Reject/FailNext knobs.
type Broker struct {
	mu             sync.RWMutex
	loggedIn       bool
	orders         map[string]*models.Order
	children       map[string][]string // parent id -> child ids
	orderIDCounter int64

	quotes      map[string]*models.Quote
	instruments []models.Instrument

	placeErrs  []error // consumed FIFO by PlaceOrder
	modifyErrs []error
	cancelErrs []error

	placeCalls  int
	modifyCalls int
	cancelCalls int
	placedTypes []models.OrderType
}

func NewBroker() *Broker {
	return &Broker{
		orders:         make(map[string]*models.Order),
		children:       make(map[string][]string),
		orderIDCounter: 1000,
		quotes:         make(map[string]*models.Quote),
	}
}

func (b *Broker) Login(ctx context.Context, args map[string]string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.loggedIn = true
	return nil
}

func (b *Broker) PlaceOrder(ctx context.Context, params models.OrderParams) (*models.Order, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.placeCalls++
	if err := b.popErr(&b.placeErrs); err != nil {
		return nil, broker.Classify(err)
	}

	b.orderIDCounter++
	order := models.NewOrder(params)
	order.OrderID = fmt.Sprintf("MOCK-%d", b.orderIDCounter)
	order.Status = models.OrderStatusOpen
	if params.TriggerPrice.IsPositive() {
		order.Status = models.OrderStatusTriggerPending
	}
	order.PendingQty = params.Qty
	order.PlaceTimestamp = time.Now().Unix()
	order.UpdateTimestamp = order.PlaceTimestamp

	b.orders[order.OrderID] = order
	b.placedTypes = append(b.placedTypes, params.OrderType)
	return cloneOrder(order), nil
}

func (b *Broker) ModifyOrder(ctx context.Context, order *models.Order, params models.ModifyParams) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.modifyCalls++
	if err := b.popErr(&b.modifyErrs); err != nil {
		return broker.Classify(err)
	}

	book, ok := b.orders[order.OrderID]
	if !ok {
		return broker.ErrOrderNotFound
	}
	if !params.NewPrice.IsZero() {
		book.Price = params.NewPrice
		order.Price = params.NewPrice
	}
	if !params.NewTriggerPrice.IsZero() {
		book.TriggerPrice = params.NewTriggerPrice
		order.TriggerPrice = params.NewTriggerPrice
	}
	if params.NewQty > 0 {
		book.Qty = params.NewQty
		order.Qty = params.NewQty
	}
	if params.NewOrderType != "" {
		book.OrderType = params.NewOrderType
		order.OrderType = params.NewOrderType
	}
	book.UpdateTimestamp = time.Now().Unix()
	return nil
}

func (b *Broker) CancelOrder(ctx context.Context, order *models.Order) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cancelCalls++
	if err := b.popErr(&b.cancelErrs); err != nil {
		return broker.Classify(err)
	}

	book, ok := b.orders[order.OrderID]
	if !ok {
		return broker.ErrOrderNotFound
	}
	if book.IsOpen() {
		book.Status = models.OrderStatusCancelled
		book.PendingQty = 0
		book.UpdateTimestamp = time.Now().Unix()
	}
	return nil
}

// FetchUpdateAllOrders copies book state onto every known order and
// returns book orders whose parent is known but which are not yet
// tracked themselves.
func (b *Broker) FetchUpdateAllOrders(ctx context.Context, idx *broker.OrderIndex) ([]*models.Order, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, tracked := range idx.All() {
		if book, ok := b.orders[tracked.OrderID]; ok {
			applyBookState(tracked, book)
		}
	}

	var discovered []*models.Order
	for _, book := range b.orders {
		if book.ParentOrderID == "" {
			continue
		}
		if _, tracked := idx.Get(book.OrderID); tracked {
			continue
		}
		if _, parentKnown := idx.Get(book.ParentOrderID); parentKnown {
			discovered = append(discovered, cloneOrder(book))
		}
	}
	return discovered, nil
}

func (b *Broker) GetQuote(ctx context.Context, tradingSymbol, exchange string, isFnO bool) (*models.Quote, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	q, ok := b.quotes[tradingSymbol]
	if !ok {
		return nil, broker.ErrInstrumentNotFound
	}
	out := *q
	return &out, nil
}

func (b *Broker) GetIndexQuote(ctx context.Context, tradingSymbol string) (*models.Quote, error) {
	return b.GetQuote(ctx, tradingSymbol, "NSE", false)
}

func (b *Broker) Margins(ctx context.Context) ([]broker.Margin, error) {
	return []broker.Margin{{Segment: "equity", Available: decimal.NewFromInt(1000000)}}, nil
}

func (b *Broker) Positions(ctx context.Context) ([]broker.Position, error) {
	return nil, nil
}

func (b *Broker) Orders(ctx context.Context) ([]*models.Order, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]*models.Order, 0, len(b.orders))
	for _, o := range b.orders {
		out = append(out, cloneOrder(o))
	}
	return out, nil
}

func (b *Broker) Instruments(ctx context.Context, exchange string) ([]models.Instrument, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []models.Instrument
	for _, inst := range b.instruments {
		if inst.Exchange == exchange || exchange == "" {
			out = append(out, inst)
		}
	}
	return out, nil
}

func (b *Broker) HandleOrderUpdate(update models.OrderUpdate, idx *broker.OrderIndex) {
	if order, ok := idx.Get(update.OrderID); ok {
		order.Status = update.Status
		order.AveragePrice = update.AveragePrice
		order.FilledQty = update.FilledQty
		order.PendingQty = update.PendingQty
		order.UpdateTimestamp = update.Timestamp
		order.Message = update.Message
	}
}

// Test scripting helpers.

// SetQuote sets the quote returned for a symbol.
func (b *Broker) SetQuote(tradingSymbol string, ltp decimal.Decimal) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.quotes[tradingSymbol] = &models.Quote{TradingSymbol: tradingSymbol, LastTradedPrice: ltp}
}

// SetInstruments seeds the instrument master dump.
func (b *Broker) SetInstruments(list []models.Instrument) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.instruments = list
}

// CompleteOrder marks a book order fully filled at avgPrice.
func (b *Broker) CompleteOrder(orderID string, avgPrice decimal.Decimal) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if o, ok := b.orders[orderID]; ok {
		o.Status = models.OrderStatusComplete
		o.AveragePrice = avgPrice
		o.FilledQty = o.Qty
		o.PendingQty = 0
		o.UpdateTimestamp = time.Now().Unix()
	}
}

// PartialFill fills qty of a book order at avgPrice leaving it open.
func (b *Broker) PartialFill(orderID string, qty int64, avgPrice decimal.Decimal) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if o, ok := b.orders[orderID]; ok {
		o.AveragePrice = avgPrice
		o.FilledQty = qty
		o.PendingQty = o.Qty - qty
		o.UpdateTimestamp = time.Now().Unix()
	}
}

// RejectOrder marks a book order rejected with the given message.
func (b *Broker) RejectOrder(orderID, message string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if o, ok := b.orders[orderID]; ok {
		o.Status = models.OrderStatusRejected
		o.Message = message
		o.PendingQty = 0
		o.UpdateTimestamp = time.Now().Unix()
	}
}

// MarkCancelled marks a book order cancelled keeping any filled qty.
func (b *Broker) MarkCancelled(orderID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if o, ok := b.orders[orderID]; ok {
		o.Status = models.OrderStatusCancelled
		o.PendingQty = 0
		o.UpdateTimestamp = time.Now().Unix()
	}
}

// AddChildOrder inserts a broker-spawned leg into the book.
func (b *Broker) AddChildOrder(parentID string, order *models.Order) {
	b.mu.Lock()
	defer b.mu.Unlock()
	order.ParentOrderID = parentID
	b.orders[order.OrderID] = order
	b.children[parentID] = append(b.children[parentID], order.OrderID)
}

// FailNextPlace queues an error for the next PlaceOrder call.
func (b *Broker) FailNextPlace(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.placeErrs = append(b.placeErrs, err)
}

// FailNextModify queues an error for the next ModifyOrder call.
func (b *Broker) FailNextModify(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.modifyErrs = append(b.modifyErrs, err)
}

// FailNextCancel queues an error for the next CancelOrder call.
func (b *Broker) FailNextCancel(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cancelErrs = append(b.cancelErrs, err)
}

// PlaceCalls returns how many PlaceOrder calls were made.
func (b *Broker) PlaceCalls() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.placeCalls
}

// PlacedOrderTypes returns the order type of every accepted placement
// in order.
func (b *Broker) PlacedOrderTypes() []models.OrderType {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]models.OrderType(nil), b.placedTypes...)
}

// BookOrder returns the broker-side copy of an order.
func (b *Broker) BookOrder(orderID string) (*models.Order, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	o, ok := b.orders[orderID]
	if !ok {
		return nil, false
	}
	return cloneOrder(o), true
}

func (b *Broker) popErr(queue *[]error) error {
	if len(*queue) == 0 {
		return nil
	}
	err := (*queue)[0]
	*queue = (*queue)[1:]
	return err
}

func applyBookState(dst, src *models.Order) {
	dst.Status = src.Status
	dst.AveragePrice = src.AveragePrice
	dst.FilledQty = src.FilledQty
	dst.PendingQty = src.PendingQty
	dst.Price = src.Price
	dst.TriggerPrice = src.TriggerPrice
	dst.OrderType = src.OrderType
	dst.Qty = src.Qty
	dst.Message = src.Message
	dst.UpdateTimestamp = src.UpdateTimestamp
}

func cloneOrder(o *models.Order) *models.Order {
	c := *o
	return &c
}

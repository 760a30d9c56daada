// Package broker defines the gateway contract a concrete broker
// integration must satisfy, plus the shared order index used during
// order-book reconciliation.
package broker

import (
	"context"

	"github.com/shopspring/decimal"

	"algotrader/internal/models"
)

// Margin reports available and utilised funds for one segment.
type Margin struct {
	Segment   string          `json:"segment"`
	Available decimal.Decimal `json:"available"`
	Utilised  decimal.Decimal `json:"utilised"`
}

// Position is one open position as reported by the broker.
type Position struct {
	TradingSymbol string          `json:"trading_symbol"`
	Exchange      string          `json:"exchange"`
	Product       string          `json:"product"`
	Quantity      int64           `json:"quantity"`
	AveragePrice  decimal.Decimal `json:"average_price"`
	PnL           decimal.Decimal `json:"pnl"`
}

// EffectiveStatus normalizes a vendor quirk: some brokers report a
// partially filled order that was then cancelled as CANCELLED even
// though the fill stands. For lifecycle decisions such an order is
// complete.
func EffectiveStatus(o *models.Order) models.OrderStatus {
	if o.Status == models.OrderStatusCancelled && o.FilledQty > 0 {
		return models.OrderStatusComplete
	}
	return o.Status
}

// Broker is the transport-level gateway to one trading account.
// Implementations are responsible for session management and for
// translating broker payloads into the shared order model; they must
// be safe for concurrent use.
type Broker interface {
	// Login completes the broker session handshake using the provided
	// request arguments (typically an api session token).
	Login(ctx context.Context, args map[string]string) error

	PlaceOrder(ctx context.Context, params models.OrderParams) (*models.Order, error)
	// ModifyOrder updates price, trigger price, quantity or order type
	// of an open order in place.
	ModifyOrder(ctx context.Context, order *models.Order, params models.ModifyParams) error
	CancelOrder(ctx context.Context, order *models.Order) error

	// FetchUpdateAllOrders refreshes every order in idx from the broker
	// order book and returns newly discovered child orders (cover/bracket
	// legs the broker spawned server-side) so the caller can attach them
	// to the owning trade.
	FetchUpdateAllOrders(ctx context.Context, idx *OrderIndex) ([]*models.Order, error)

	GetQuote(ctx context.Context, tradingSymbol string, exchange string, isFnO bool) (*models.Quote, error)
	GetIndexQuote(ctx context.Context, tradingSymbol string) (*models.Quote, error)

	Margins(ctx context.Context) ([]Margin, error)
	Positions(ctx context.Context) ([]Position, error)
	Orders(ctx context.Context) ([]*models.Order, error)

	// Instruments downloads the instrument master for one exchange.
	Instruments(ctx context.Context, exchange string) ([]models.Instrument, error)

	// HandleOrderUpdate applies a streamed order update to the matching
	// order in idx. Unknown order ids are ignored.
	HandleOrderUpdate(update models.OrderUpdate, idx *OrderIndex)
}

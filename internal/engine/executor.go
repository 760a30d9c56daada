package engine

import (
	"context"
	"errors"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/time/rate"

	"algotrader/internal/broker"
	"algotrader/internal/core"
	"algotrader/internal/models"
	"algotrader/pkg/telemetry"
)

// rateLimitRetryDelay is how long to back off after the broker
// throttles a call before the single retry.
const rateLimitRetryDelay = time.Second

// Executor funnels every broker call through a shared rate limiter and
// a one-shot retry on broker throttling. Stop-loss placements rejected
// by the trigger price rule are retried once as plain LIMIT orders.
type Executor struct {
	gateway broker.Broker
	logger  core.Logger
	limiter *rate.Limiter

	orderRetry failsafe.Executor[*models.Order]
	callRetry  failsafe.Executor[any]

	orderCounter  metric.Int64Counter
	modifyCounter metric.Int64Counter
	cancelCounter metric.Int64Counter
	retryCounter  metric.Int64Counter
	failCounter   metric.Int64Counter
}

func NewExecutor(gateway broker.Broker, requestsPerSecond int, logger core.Logger) *Executor {
	meter := telemetry.GetMeter("broker-executor")

	orderCounter, _ := meter.Int64Counter("broker_orders_placed_total",
		metric.WithDescription("Total number of orders placed"))
	modifyCounter, _ := meter.Int64Counter("broker_orders_modified_total",
		metric.WithDescription("Total number of order modifications"))
	cancelCounter, _ := meter.Int64Counter("broker_orders_cancelled_total",
		metric.WithDescription("Total number of order cancellations"))
	retryCounter, _ := meter.Int64Counter("broker_call_retries_total",
		metric.WithDescription("Total number of throttled broker calls retried"))
	failCounter, _ := meter.Int64Counter("broker_call_failures_total",
		metric.WithDescription("Total number of failed broker calls"))

	e := &Executor{
		gateway:       gateway,
		logger:        logger.WithField("component", "broker_executor"),
		limiter:       rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond),
		orderCounter:  orderCounter,
		modifyCounter: modifyCounter,
		cancelCounter: cancelCounter,
		retryCounter:  retryCounter,
		failCounter:   failCounter,
	}

	onThrottle := func(_ *models.Order, err error) bool {
		return errors.Is(err, broker.ErrRateLimited)
	}
	orderPolicy := retrypolicy.NewBuilder[*models.Order]().
		HandleIf(onThrottle).
		WithDelay(rateLimitRetryDelay).
		WithMaxRetries(1).
		OnRetry(func(failsafe.ExecutionEvent[*models.Order]) {
			retryCounter.Add(context.Background(), 1)
		}).
		Build()
	e.orderRetry = failsafe.With[*models.Order](orderPolicy)

	callPolicy := retrypolicy.NewBuilder[any]().
		HandleIf(func(_ any, err error) bool {
			return errors.Is(err, broker.ErrRateLimited)
		}).
		WithDelay(rateLimitRetryDelay).
		WithMaxRetries(1).
		OnRetry(func(failsafe.ExecutionEvent[any]) {
			retryCounter.Add(context.Background(), 1)
		}).
		Build()
	e.callRetry = failsafe.With[any](callPolicy)

	return e
}

// PlaceOrder places an order with throttle retry and the stop-loss
// LIMIT fallback.
func (e *Executor) PlaceOrder(ctx context.Context, params models.OrderParams) (*models.Order, error) {
	order, err := e.place(ctx, params)
	if err != nil && errors.Is(err, broker.ErrTriggerPriceRule) && params.TriggerPrice.IsPositive() {
		e.logger.Warn("stoploss trigger price rejected, retrying as LIMIT",
			"symbol", params.TradingSymbol, "triggerPrice", params.TriggerPrice)
		fallback := params
		fallback.OrderType = models.OrderTypeLimit
		fallback.TriggerPrice = decimal.Decimal{}
		order, err = e.place(ctx, fallback)
	}
	if err != nil {
		e.failCounter.Add(ctx, 1)
		return nil, err
	}
	e.orderCounter.Add(ctx, 1)
	e.logger.Info("order placed", "orderId", order.OrderID, "params", params.String())
	return order, nil
}

func (e *Executor) place(ctx context.Context, params models.OrderParams) (*models.Order, error) {
	return e.orderRetry.WithContext(ctx).Get(func() (*models.Order, error) {
		if err := e.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		return e.gateway.PlaceOrder(ctx, params)
	})
}

// ModifyOrder modifies an open order with throttle retry.
func (e *Executor) ModifyOrder(ctx context.Context, order *models.Order, params models.ModifyParams) error {
	err := e.call(ctx, func() error {
		return e.gateway.ModifyOrder(ctx, order, params)
	})
	if err != nil {
		e.failCounter.Add(ctx, 1)
		return err
	}
	e.modifyCounter.Add(ctx, 1)
	e.logger.Info("order modified", "orderId", order.OrderID, "params", params.String())
	return nil
}

// CancelOrder cancels an open order with throttle retry.
func (e *Executor) CancelOrder(ctx context.Context, order *models.Order) error {
	err := e.call(ctx, func() error {
		return e.gateway.CancelOrder(ctx, order)
	})
	if err != nil {
		e.failCounter.Add(ctx, 1)
		return err
	}
	e.cancelCounter.Add(ctx, 1)
	e.logger.Info("order cancelled", "orderId", order.OrderID)
	return nil
}

// FetchUpdateAllOrders refreshes the tracked order book.
func (e *Executor) FetchUpdateAllOrders(ctx context.Context, idx *broker.OrderIndex) ([]*models.Order, error) {
	var discovered []*models.Order
	err := e.call(ctx, func() error {
		var ferr error
		discovered, ferr = e.gateway.FetchUpdateAllOrders(ctx, idx)
		return ferr
	})
	return discovered, err
}

// GetQuote fetches a quote through the shared limiter.
func (e *Executor) GetQuote(ctx context.Context, tradingSymbol, exchange string, isFnO bool) (*models.Quote, error) {
	var q *models.Quote
	err := e.call(ctx, func() error {
		var qerr error
		q, qerr = e.gateway.GetQuote(ctx, tradingSymbol, exchange, isFnO)
		return qerr
	})
	return q, err
}

// GetIndexQuote fetches an index quote through the shared limiter.
func (e *Executor) GetIndexQuote(ctx context.Context, tradingSymbol string) (*models.Quote, error) {
	var q *models.Quote
	err := e.call(ctx, func() error {
		var qerr error
		q, qerr = e.gateway.GetIndexQuote(ctx, tradingSymbol)
		return qerr
	})
	return q, err
}

func (e *Executor) call(ctx context.Context, fn func() error) error {
	_, err := e.callRetry.WithContext(ctx).Get(func() (any, error) {
		if err := e.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		return nil, fn()
	})
	return err
}

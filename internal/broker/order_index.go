package broker

import (
	"sync"

	"algotrader/internal/models"
)

// OrderIndex is the set of orders the engine currently tracks for one
// account, keyed by broker order id, with a parent to children adjacency
// so legs spawned server-side can be discovered during order-book scans.
type OrderIndex struct {
	mu       sync.RWMutex
	byID     map[string]*models.Order
	children map[string][]string // parent order id -> child order ids
}

func NewOrderIndex() *OrderIndex {
	return &OrderIndex{
		byID:     make(map[string]*models.Order),
		children: make(map[string][]string),
	}
}

// Add registers an order. If the order carries a parent id the adjacency
// is extended; re-adding an already known id is a no-op.
func (x *OrderIndex) Add(order *models.Order) {
	if order == nil || order.OrderID == "" {
		return
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	if _, ok := x.byID[order.OrderID]; ok {
		return
	}
	x.byID[order.OrderID] = order
	if order.ParentOrderID != "" {
		x.children[order.ParentOrderID] = append(x.children[order.ParentOrderID], order.OrderID)
	}
}

func (x *OrderIndex) Get(orderID string) (*models.Order, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	o, ok := x.byID[orderID]
	return o, ok
}

// Children returns the known child orders of the given parent id.
func (x *OrderIndex) Children(parentID string) []*models.Order {
	x.mu.RLock()
	defer x.mu.RUnlock()
	ids := x.children[parentID]
	out := make([]*models.Order, 0, len(ids))
	for _, id := range ids {
		if o, ok := x.byID[id]; ok {
			out = append(out, o)
		}
	}
	return out
}

// All returns a snapshot of every tracked order.
func (x *OrderIndex) All() []*models.Order {
	x.mu.RLock()
	defer x.mu.RUnlock()
	out := make([]*models.Order, 0, len(x.byID))
	for _, o := range x.byID {
		out = append(out, o)
	}
	return out
}

func (x *OrderIndex) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.byID)
}

package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tournevent/postershop/internal/domain"
)

// Memory keeps orders and return requests in process.
type Memory struct {
	mu      sync.RWMutex
	orders  map[string]*domain.Order
	returns map[string]*domain.ReturnRequest
	now     func() time.Time
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		orders:  make(map[string]*domain.Order),
		returns: make(map[string]*domain.ReturnRequest),
		now:     time.Now,
	}
}

// CreateOrder assigns ids to the order and its items when missing.
func (m *Memory) CreateOrder(ctx context.Context, o *domain.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if o.ID == "" {
		o.ID = uuid.New().String()
	}
	if _, ok := m.orders[o.ID]; ok {
		return &domain.ConflictError{Message: "order " + o.ID + " already exists"}
	}

	now := m.now()
	if o.CreatedAt.IsZero() {
		o.CreatedAt = now
	}
	o.UpdatedAt = now
	for i := range o.Items {
		if o.Items[i].ID == "" {
			o.Items[i].ID = uuid.New().String()
		}
		o.Items[i].OrderID = o.ID
	}

	m.orders[o.ID] = cloneOrder(o)
	return nil
}

func (m *Memory) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	o, ok := m.orders[id]
	if !ok {
		return nil, domain.NewNotFound("order", id)
	}
	return cloneOrder(o), nil
}

func (m *Memory) UpdateOrderStatus(ctx context.Context, id string, status domain.OrderStatus) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[id]
	if !ok {
		return nil, domain.NewNotFound("order", id)
	}
	o.Status = status
	o.UpdatedAt = m.now()
	return cloneOrder(o), nil
}

func (m *Memory) UpdateOrderNotes(ctx context.Context, id, notes string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[id]
	if !ok {
		return domain.NewNotFound("order", id)
	}
	o.Notes = notes
	o.UpdatedAt = m.now()
	return nil
}

func (m *Memory) MarkItemReturned(ctx context.Context, orderID, itemID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[orderID]
	if !ok {
		return domain.NewNotFound("order", orderID)
	}
	item, ok := o.Item(itemID)
	if !ok {
		return domain.NewNotFound("order item", itemID)
	}
	item.Returned = true
	o.UpdatedAt = m.now()
	return nil
}

func (m *Memory) AppendReturn(ctx context.Context, orderID, returnID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[orderID]
	if !ok {
		return domain.NewNotFound("order", orderID)
	}
	for _, id := range o.ReturnIDs {
		if id == returnID {
			return nil
		}
	}
	o.ReturnIDs = append(o.ReturnIDs, returnID)
	o.UpdatedAt = m.now()
	return nil
}

func (m *Memory) ListOrders(ctx context.Context, filter domain.OrderFilter) ([]*domain.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*domain.Order
	for _, o := range m.orders {
		if filter.CustomerID != "" && o.CustomerID != filter.CustomerID {
			continue
		}
		if filter.Status != "" && o.Status != filter.Status {
			continue
		}
		if !filter.From.IsZero() && o.CreatedAt.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && o.CreatedAt.After(filter.To) {
			continue
		}
		out = append(out, cloneOrder(o))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// CreateReturn checks for an active duplicate and inserts under one lock.
func (m *Memory) CreateReturn(ctx context.Context, r *domain.ReturnRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.findActive(r.OrderID, r.OrderItemID) != nil {
		return activeReturnConflict(r.OrderID, r.OrderItemID)
	}

	now := m.now()
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.RequestedAt.IsZero() {
		r.RequestedAt = now
	}
	r.UpdatedAt = now

	m.returns[r.ID] = cloneReturn(r)
	return nil
}

func (m *Memory) GetReturn(ctx context.Context, id string) (*domain.ReturnRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.returns[id]
	if !ok {
		return nil, domain.NewNotFound("return request", id)
	}
	return cloneReturn(r), nil
}

func (m *Memory) UpdateReturn(ctx context.Context, r *domain.ReturnRequest, from domain.ReturnStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.returns[r.ID]
	if !ok {
		return domain.NewNotFound("return request", r.ID)
	}
	if stored.Status != from {
		return staleReturn(r.ID, from)
	}

	r.UpdatedAt = m.now()
	m.returns[r.ID] = cloneReturn(r)
	return nil
}

func (m *Memory) ListReturns(ctx context.Context, filter domain.ReturnFilter) ([]*domain.ReturnRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*domain.ReturnRequest
	for _, r := range m.returns {
		if filter.Matches(r) {
			out = append(out, cloneReturn(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RequestedAt.After(out[j].RequestedAt) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (m *Memory) FindActiveReturn(ctx context.Context, orderID, itemID string) (*domain.ReturnRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if r := m.findActive(orderID, itemID); r != nil {
		return cloneReturn(r), nil
	}
	return nil, nil
}

func (m *Memory) findActive(orderID, itemID string) *domain.ReturnRequest {
	for _, r := range m.returns {
		if r.OrderID == orderID && r.OrderItemID == itemID && r.Status.IsActive() {
			return r
		}
	}
	return nil
}

func cloneOrder(o *domain.Order) *domain.Order {
	cp := *o
	cp.Items = append([]domain.OrderItem(nil), o.Items...)
	cp.ReturnIDs = append([]string(nil), o.ReturnIDs...)
	return &cp
}

func cloneReturn(r *domain.ReturnRequest) *domain.ReturnRequest {
	cp := *r
	if r.RefundAmount != nil {
		v := *r.RefundAmount
		cp.RefundAmount = &v
	}
	if r.ProcessedAt != nil {
		t := *r.ProcessedAt
		cp.ProcessedAt = &t
	}
	cp.TrackingEvents = append([]domain.TrackingEvent(nil), r.TrackingEvents...)
	return &cp
}

var (
	_ OrderRepository  = (*Memory)(nil)
	_ ReturnRepository = (*Memory)(nil)
)

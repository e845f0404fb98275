package ledger

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tournevent/postershop/internal/domain"
)

// Memory is an in-process Ledger. All reads return copies.
type Memory struct {
	mu         sync.RWMutex
	shipments  map[string]*domain.Shipment
	warehouses map[string]*domain.Warehouse
	now        func() time.Time
}

// NewMemory creates an empty in-memory ledger.
func NewMemory() *Memory {
	return &Memory{
		shipments:  make(map[string]*domain.Shipment),
		warehouses: make(map[string]*domain.Warehouse),
		now:        time.Now,
	}
}

// CreateShipment upserts by waybill, keeping the original id and creation time.
func (m *Memory) CreateShipment(ctx context.Context, s *domain.Shipment) error {
	if s.Waybill == "" {
		return domain.NewValidation("waybill", "is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if existing, ok := m.shipments[s.Waybill]; ok {
		s.ID = existing.ID
		s.CreatedAt = existing.CreatedAt
	}
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	s.UpdatedAt = now

	m.shipments[s.Waybill] = cloneShipment(s)
	return nil
}

func (m *Memory) UpdateShipment(ctx context.Context, waybill string, u domain.ShipmentUpdate) (*domain.Shipment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.shipments[waybill]
	if !ok {
		return nil, domain.NewNotFound("shipment", waybill)
	}
	if !u.IsEmpty() {
		u.Apply(s)
		s.UpdatedAt = m.now()
	}
	return cloneShipment(s), nil
}

func (m *Memory) UpdateShipmentStatus(ctx context.Context, waybill string, status domain.ShipmentStatus) (*domain.Shipment, error) {
	if !status.IsValid() {
		return nil, domain.NewValidation("status", "unknown shipment status "+string(status))
	}
	return m.UpdateShipment(ctx, waybill, domain.ShipmentUpdate{Status: &status})
}

func (m *Memory) AppendTrackingEvents(ctx context.Context, waybill string, events []domain.TrackingEvent) (*domain.Shipment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.shipments[waybill]
	if !ok {
		return nil, domain.NewNotFound("shipment", waybill)
	}
	if fresh := MergeEvents(s.TrackingEvents, events); len(fresh) > 0 {
		s.TrackingEvents = append(s.TrackingEvents, fresh...)
		s.UpdatedAt = m.now()
	}
	return cloneShipment(s), nil
}

func (m *Memory) GetShipment(ctx context.Context, waybill string) (*domain.Shipment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.shipments[waybill]
	if !ok {
		return nil, domain.NewNotFound("shipment", waybill)
	}
	return cloneShipment(s), nil
}

// ListShipments returns matching shipments, newest first.
func (m *Memory) ListShipments(ctx context.Context, filter domain.ShipmentFilter) ([]*domain.Shipment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*domain.Shipment
	for _, s := range m.shipments {
		if filter.Matches(s) {
			out = append(out, cloneShipment(s))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Waybill < out[j].Waybill
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (m *Memory) CreateWarehouse(ctx context.Context, w *domain.Warehouse) error {
	if w.Name == "" {
		return domain.NewValidation("name", "is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.warehouses {
		if existing.Name == w.Name && existing.ID != w.ID {
			return &domain.ConflictError{Message: "warehouse " + w.Name + " already exists"}
		}
	}

	now := m.now()
	if w.ID == "" {
		w.ID = uuid.New().String()
	}
	if w.CreatedAt.IsZero() {
		w.CreatedAt = now
	}
	w.UpdatedAt = now

	cp := *w
	m.warehouses[w.ID] = &cp
	return nil
}

func (m *Memory) UpdateWarehouse(ctx context.Context, id string, u domain.WarehouseUpdate) (*domain.Warehouse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.warehouses[id]
	if !ok {
		return nil, domain.NewNotFound("warehouse", id)
	}
	if u.Name != nil {
		for _, other := range m.warehouses {
			if other.ID != id && other.Name == *u.Name {
				return nil, &domain.ConflictError{Message: "warehouse " + *u.Name + " already exists"}
			}
		}
	}
	u.Apply(w)
	w.UpdatedAt = m.now()

	cp := *w
	return &cp, nil
}

func (m *Memory) GetWarehouse(ctx context.Context, id string) (*domain.Warehouse, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	w, ok := m.warehouses[id]
	if !ok {
		return nil, domain.NewNotFound("warehouse", id)
	}
	cp := *w
	return &cp, nil
}

// GetWarehouseByName matches the name exactly, byte for byte.
func (m *Memory) GetWarehouseByName(ctx context.Context, name string) (*domain.Warehouse, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, w := range m.warehouses {
		if w.Name == name {
			cp := *w
			return &cp, nil
		}
	}
	return nil, domain.NewNotFound("warehouse", name)
}

func (m *Memory) ListWarehouses(ctx context.Context, activeOnly bool) ([]*domain.Warehouse, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*domain.Warehouse
	for _, w := range m.warehouses {
		if activeOnly && !w.Active {
			continue
		}
		cp := *w
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func cloneShipment(s *domain.Shipment) *domain.Shipment {
	cp := *s
	if s.OrderID != nil {
		id := *s.OrderID
		cp.OrderID = &id
	}
	if s.Pickup.PickupDate != nil {
		d := *s.Pickup.PickupDate
		cp.Pickup.PickupDate = &d
	}
	cp.TrackingEvents = append([]domain.TrackingEvent(nil), s.TrackingEvents...)
	return &cp
}

var _ Ledger = (*Memory)(nil)

// Package ledger is the system of record for shipments, warehouses and pickups.
//
// The ledger never talks to the carrier. Fulfillment writes here whatever the
// carrier said, so a shipment exists locally even while the carrier is down.
package ledger

import (
	"context"

	"github.com/tournevent/postershop/internal/domain"
)

// Ledger persists shipments and warehouses. Writes are keyed upserts and
// partial updates are applied per field, last write wins.
type Ledger interface {
	// CreateShipment inserts a shipment, or replaces the one with the same waybill.
	CreateShipment(ctx context.Context, s *domain.Shipment) error

	// UpdateShipment applies the non-nil fields of u.
	UpdateShipment(ctx context.Context, waybill string, u domain.ShipmentUpdate) (*domain.Shipment, error)

	// UpdateShipmentStatus sets the delivery status.
	UpdateShipmentStatus(ctx context.Context, waybill string, status domain.ShipmentStatus) (*domain.Shipment, error)

	// AppendTrackingEvents appends events not already recorded.
	AppendTrackingEvents(ctx context.Context, waybill string, events []domain.TrackingEvent) (*domain.Shipment, error)

	GetShipment(ctx context.Context, waybill string) (*domain.Shipment, error)
	ListShipments(ctx context.Context, filter domain.ShipmentFilter) ([]*domain.Shipment, error)

	// CreateWarehouse inserts a warehouse. Names are unique.
	CreateWarehouse(ctx context.Context, w *domain.Warehouse) error
	UpdateWarehouse(ctx context.Context, id string, u domain.WarehouseUpdate) (*domain.Warehouse, error)
	GetWarehouse(ctx context.Context, id string) (*domain.Warehouse, error)
	GetWarehouseByName(ctx context.Context, name string) (*domain.Warehouse, error)
	ListWarehouses(ctx context.Context, activeOnly bool) ([]*domain.Warehouse, error)
}

// MergeEvents returns the events of incoming not already present in existing,
// in their original order.
func MergeEvents(existing, incoming []domain.TrackingEvent) []domain.TrackingEvent {
	seen := make(map[eventKey]struct{}, len(existing))
	for _, e := range existing {
		seen[keyOf(e)] = struct{}{}
	}

	var fresh []domain.TrackingEvent
	for _, e := range incoming {
		k := keyOf(e)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		fresh = append(fresh, e)
	}
	return fresh
}

type eventKey struct {
	status   string
	location string
	unix     int64
}

// keyOf identifies an event. Events without a timestamp key on status and
// location alone.
func keyOf(e domain.TrackingEvent) eventKey {
	k := eventKey{status: e.Status, location: e.Location}
	if !e.Timestamp.IsZero() {
		k.unix = e.Timestamp.UnixNano()
	}
	return k
}

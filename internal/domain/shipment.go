package domain

import (
	"strings"
	"time"
)

// ShipmentStatus represents the delivery state of a shipment.
type ShipmentStatus string

const (
	ShipmentStatusPending   ShipmentStatus = "pending"
	ShipmentStatusPickedUp  ShipmentStatus = "picked_up"
	ShipmentStatusInTransit ShipmentStatus = "in_transit"
	ShipmentStatusDelivered ShipmentStatus = "delivered"
	ShipmentStatusCancelled ShipmentStatus = "cancelled"
)

// IsValid checks if the shipment status is valid
func (s ShipmentStatus) IsValid() bool {
	switch s {
	case ShipmentStatusPending, ShipmentStatusPickedUp, ShipmentStatusInTransit,
		ShipmentStatusDelivered, ShipmentStatusCancelled:
		return true
	}
	return false
}

// PickupStatus represents the state of a pickup request for a shipment.
type PickupStatus string

const (
	PickupStatusNone      PickupStatus = ""
	PickupStatusScheduled PickupStatus = "scheduled"
	PickupStatusPickedUp  PickupStatus = "picked_up"
	PickupStatusFailed    PickupStatus = "failed"
	PickupStatusCancelled PickupStatus = "cancelled"
)

// PaymentMode is how the consignee pays for a shipment.
type PaymentMode string

const (
	PaymentModePrepaid PaymentMode = "Prepaid"
	PaymentModeCOD     PaymentMode = "COD"
)

// Provenance records where a shipment's waybill came from.
type Provenance string

const (
	// ProvenanceCarrier waybills were issued by the carrier.
	ProvenanceCarrier Provenance = "carrier"
	// ProvenanceMock waybills came from deterministic mock data.
	ProvenanceMock Provenance = "mock"
	// ProvenanceLocal waybills were minted locally after a carrier failure.
	ProvenanceLocal Provenance = "local"
)

// LocalWaybillPrefix marks waybills minted locally after a carrier failure.
const LocalWaybillPrefix = "LOCAL-"

// IsLocalWaybill reports whether a waybill was minted locally.
func IsLocalWaybill(waybill string) bool {
	return strings.HasPrefix(waybill, LocalWaybillPrefix)
}

// Pickup is the pickup sub-state of a shipment.
type Pickup struct {
	PickupID   string       `json:"pickupId,omitempty"`
	PickupDate *time.Time   `json:"pickupDate,omitempty"`
	Status     PickupStatus `json:"status,omitempty"`
	Attempts   int          `json:"attempts"`
}

// Shipment is a carrier-tracked physical delivery, keyed by waybill.
type Shipment struct {
	ID              string          `json:"id"`
	Waybill         string          `json:"waybill"`
	Provenance      Provenance      `json:"provenance"`
	OrderID         *string         `json:"orderId,omitempty"`
	CustomerName    string          `json:"customerName"`
	CustomerPhone   string          `json:"customerPhone"`
	DeliveryAddress Address         `json:"deliveryAddress"`
	PaymentMode     PaymentMode     `json:"paymentMode"`
	CODAmount       float64         `json:"codAmount"`
	Weight          float64         `json:"weight"`
	WarehouseName   string          `json:"warehouseName"`
	Status          ShipmentStatus  `json:"status"`
	Pickup          Pickup          `json:"pickup"`
	CarrierError    string          `json:"carrierError,omitempty"`
	TrackingEvents  []TrackingEvent `json:"trackingEvents,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

// ShipmentUpdate is a partial shipment update. Nil fields are left untouched,
// so concurrent updates to different fields of one waybill both land.
type ShipmentUpdate struct {
	Status          *ShipmentStatus
	CustomerName    *string
	CustomerPhone   *string
	DeliveryAddress *Address
	WarehouseName   *string
	PickupID        *string
	PickupDate      *time.Time
	PickupStatus    *PickupStatus
	PickupAttempts  *int
	CarrierError    *string
}

// IsEmpty reports whether the update changes nothing.
func (u ShipmentUpdate) IsEmpty() bool {
	return u.Status == nil && u.CustomerName == nil && u.CustomerPhone == nil &&
		u.DeliveryAddress == nil && u.WarehouseName == nil && u.PickupID == nil &&
		u.PickupDate == nil && u.PickupStatus == nil && u.PickupAttempts == nil &&
		u.CarrierError == nil
}

// Apply writes the non-nil fields onto s.
func (u ShipmentUpdate) Apply(s *Shipment) {
	if u.Status != nil {
		s.Status = *u.Status
	}
	if u.CustomerName != nil {
		s.CustomerName = *u.CustomerName
	}
	if u.CustomerPhone != nil {
		s.CustomerPhone = *u.CustomerPhone
	}
	if u.DeliveryAddress != nil {
		s.DeliveryAddress = *u.DeliveryAddress
	}
	if u.WarehouseName != nil {
		s.WarehouseName = *u.WarehouseName
	}
	if u.PickupID != nil {
		s.Pickup.PickupID = *u.PickupID
	}
	if u.PickupDate != nil {
		d := *u.PickupDate
		s.Pickup.PickupDate = &d
	}
	if u.PickupStatus != nil {
		s.Pickup.Status = *u.PickupStatus
	}
	if u.PickupAttempts != nil {
		s.Pickup.Attempts = *u.PickupAttempts
	}
	if u.CarrierError != nil {
		s.CarrierError = *u.CarrierError
	}
}

// ShipmentFilter narrows shipment listings.
type ShipmentFilter struct {
	Status        ShipmentStatus
	OrderID       string
	CustomerPhone string
	From          time.Time
	To            time.Time
	Limit         int
}

// Matches reports whether s passes the filter.
func (f ShipmentFilter) Matches(s *Shipment) bool {
	if f.Status != "" && s.Status != f.Status {
		return false
	}
	if f.OrderID != "" && (s.OrderID == nil || *s.OrderID != f.OrderID) {
		return false
	}
	if f.CustomerPhone != "" && s.CustomerPhone != f.CustomerPhone {
		return false
	}
	if !f.From.IsZero() && s.CreatedAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && s.CreatedAt.After(f.To) {
		return false
	}
	return true
}

// Warehouse is a registered pickup location. Name is sent to the carrier
// byte-for-byte and must match the carrier's record exactly.
type Warehouse struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Email         string    `json:"email"`
	Phone         string    `json:"phone"`
	Address       Address   `json:"address"`
	ReturnAddress Address   `json:"returnAddress"`
	Active        bool      `json:"active"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// WarehouseUpdate is a partial warehouse update.
type WarehouseUpdate struct {
	Name          *string
	Email         *string
	Phone         *string
	Address       *Address
	ReturnAddress *Address
	Active        *bool
}

// Apply writes the non-nil fields onto w.
func (u WarehouseUpdate) Apply(w *Warehouse) {
	if u.Name != nil {
		w.Name = *u.Name
	}
	if u.Email != nil {
		w.Email = *u.Email
	}
	if u.Phone != nil {
		w.Phone = *u.Phone
	}
	if u.Address != nil {
		w.Address = *u.Address
	}
	if u.ReturnAddress != nil {
		w.ReturnAddress = *u.ReturnAddress
	}
	if u.Active != nil {
		w.Active = *u.Active
	}
}

// EventSource records whether a tracking event came from the carrier.
type EventSource string

const (
	EventSourceCarrier     EventSource = "carrier"
	EventSourceSynthesized EventSource = "synthesized"
)

// TrackingEvent is an append-only entry in a shipment's or return's history.
type TrackingEvent struct {
	Status      string      `json:"status"`
	Location    string      `json:"location,omitempty"`
	Timestamp   time.Time   `json:"timestamp"`
	Description string      `json:"description,omitempty"`
	Source      EventSource `json:"source"`
}

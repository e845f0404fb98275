package carrier

import "time"

// Source records where a result came from.
type Source string

const (
	SourceCarrier  Source = "carrier"
	SourceFallback Source = "fallback"
)

// PaymentMode is how the consignee pays.
type PaymentMode string

const (
	PaymentPrepaid PaymentMode = "Prepaid"
	PaymentCOD     PaymentMode = "COD"
)

// Address is a postal address in the carrier's terms.
type Address struct {
	Line1   string `json:"line1"`
	Line2   string `json:"line2,omitempty"`
	City    string `json:"city"`
	State   string `json:"state"`
	Pincode string `json:"pincode"`
	Country string `json:"country"`
	Phone   string `json:"phone,omitempty"`
}

// ShipmentRequest books a forward shipment.
type ShipmentRequest struct {
	OrderRef       string
	Waybill        string // optional, pre-generated
	ConsigneeName  string
	ConsigneePhone string
	ConsigneeEmail string
	Address        Address
	PaymentMode    PaymentMode
	CODAmount      float64
	TotalAmount    float64
	Weight         float64 // grams
	Quantity       int
	ProductsDesc   string
	WarehouseName  string
}

// ShipmentResult is the outcome of a booked shipment.
type ShipmentResult struct {
	Waybill string
	Status  string
	Remarks string
	Source  Source
}

// WaybillBatch holds reserved waybill numbers.
type WaybillBatch struct {
	Waybills []string `json:"waybills"`
	Source   Source   `json:"source"`
}

// Normalized tracking statuses.
const (
	StatusManifested           = "manifested"
	StatusPending              = "pending"
	StatusPickedUp             = "picked_up"
	StatusInTransit            = "in_transit"
	StatusDelivered            = "delivered"
	StatusCancelled            = "cancelled"
	StatusDeliveredToWarehouse = "delivered_to_warehouse"
	StatusProcessed            = "processed"
)

// TrackingEvent is a single scan in a shipment's history.
type TrackingEvent struct {
	Status      string
	Location    string
	Timestamp   time.Time
	Description string
}

// TrackResult is the current state and history of a waybill.
type TrackResult struct {
	Waybill string
	Status  string
	Events  []TrackingEvent
	Source  Source
}

// PickupRequest asks the carrier to collect packages from a warehouse.
type PickupRequest struct {
	WarehouseName    string
	PickupDate       time.Time
	PickupTime       string // HH:MM:SS
	ExpectedPackages int
}

// PickupResult is the carrier's acknowledgement of a pickup request.
type PickupResult struct {
	PickupID   string
	PickupDate time.Time
	Source     Source
}

// WarehouseRequest registers or edits a carrier pickup location.
type WarehouseRequest struct {
	Name          string
	Email         string
	Phone         string
	Address       Address
	ReturnAddress Address
}

// WarehouseResult is the carrier's acknowledgement of a warehouse change.
type WarehouseResult struct {
	Name    string
	Message string
	Source  Source
}

// ReversePickupRequest books a customer-to-warehouse return.
type ReversePickupRequest struct {
	ReturnRef     string
	CustomerName  string
	CustomerPhone string
	PickupAddress Address
	WarehouseName string
	ProductsDesc  string
	Quantity      int
	Weight        float64 // grams
	PreferredDate time.Time
}

// ReversePickupResult identifies a booked return pickup.
type ReversePickupResult struct {
	TrackingNumber string
	PickupID       string
	Source         Source
}

// PincodeResult reports serviceability of a pincode.
type PincodeResult struct {
	Pincode     string `json:"pincode"`
	Serviceable bool   `json:"serviceable"`
	COD         bool   `json:"cod"`
	Prepaid     bool   `json:"prepaid"`
	Pickup      bool   `json:"pickup"`
	City        string `json:"city,omitempty"`
	State       string `json:"state,omitempty"`
	Source      Source `json:"source"`
}

// RateRequest asks for a shipping charge estimate.
type RateRequest struct {
	OriginPincode      string      `json:"originPincode"`
	DestinationPincode string      `json:"destinationPincode"`
	Weight             float64     `json:"weight"` // grams
	PaymentMode        PaymentMode `json:"paymentMode"`
	CODAmount          float64     `json:"codAmount"`
}

// RateQuote is an estimated shipping charge.
type RateQuote struct {
	Amount        float64 `json:"amount"`
	Currency      string  `json:"currency"`
	Zone          string  `json:"zone"`
	EstimatedDays int     `json:"estimatedDays"`
	Source        Source  `json:"source"`
}

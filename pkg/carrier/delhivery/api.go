package delhivery

import (
	"context"
	"fmt"

	"github.com/tournevent/postershop/pkg/carrier"
)

// APIClient defines the interface for Delhivery API operations.
// This allows for easy mocking in tests.
type APIClient interface {
	// CreateShipment books forward shipments and reverse pickups (payment mode "Pickup").
	CreateShipment(ctx context.Context, req *ShipmentPayload) (*CreateShipmentResponse, error)

	// FetchWaybills reserves count waybill numbers.
	FetchWaybills(ctx context.Context, count int) ([]string, error)

	// Track returns the scan history of a waybill.
	Track(ctx context.Context, waybill string) (*TrackResponse, error)

	// CreatePickup raises a pickup request for a warehouse.
	CreatePickup(ctx context.Context, req *PickupPayload) (*PickupResponse, error)

	// CreateWarehouse registers a pickup location using the given wire format.
	CreateWarehouse(ctx context.Context, api carrier.WarehouseAPI, req *WarehousePayload) (*WarehouseResponse, error)

	// EditWarehouse updates a pickup location using the given wire format.
	EditWarehouse(ctx context.Context, api carrier.WarehouseAPI, req *WarehousePayload) (*WarehouseResponse, error)

	// CancelShipment cancels a booked waybill.
	CancelShipment(ctx context.Context, waybill string) (*CancelResponse, error)

	// Pincode returns serviceability for a pincode.
	Pincode(ctx context.Context, pincode string) (*PincodeResponse, error)

	// Rate returns the computed charges for a shipment.
	Rate(ctx context.Context, req *RateParams) (*RateResponse, error)
}

// ============================================================================
// Shipment
// ============================================================================

// ShipmentPayload is the body of the create-shipment endpoint.
type ShipmentPayload struct {
	Shipments      []PackageDetail `json:"shipments"`
	PickupLocation PickupLocation  `json:"pickup_location"`
}

// PackageDetail describes one package in a shipment payload.
type PackageDetail struct {
	Waybill      string  `json:"waybill,omitempty"`
	Order        string  `json:"order"`
	Name         string  `json:"name"`
	Phone        string  `json:"phone"`
	Email        string  `json:"email,omitempty"`
	Add          string  `json:"add"`
	City         string  `json:"city"`
	State        string  `json:"state"`
	Country      string  `json:"country"`
	Pin          string  `json:"pin"`
	PaymentMode  string  `json:"payment_mode"`
	CODAmount    float64 `json:"cod_amount"`
	TotalAmount  float64 `json:"total_amount"`
	Quantity     string  `json:"quantity"`
	Weight       float64 `json:"weight"`
	ProductsDesc string  `json:"products_desc"`
	// PickupDate is the customer's preferred collection day for reverse pickups.
	PickupDate string `json:"pickup_date,omitempty"`
}

// PickupLocation names the registered warehouse.
type PickupLocation struct {
	Name string `json:"name"`
}

// Payment modes understood by the create-shipment endpoint.
const (
	paymentModePrepaid = "Prepaid"
	paymentModeCOD     = "COD"
	paymentModePickup  = "Pickup"
)

// CreateShipmentResponse is returned by the create-shipment endpoint.
type CreateShipmentResponse struct {
	Success      bool            `json:"success"`
	Remarks      string          `json:"rmk"`
	PackageCount int             `json:"package_count"`
	UploadWBN    string          `json:"upload_wbn"`
	Packages     []PackageStatus `json:"packages"`
}

// PackageStatus is the per-package result of a shipment booking.
type PackageStatus struct {
	Waybill string   `json:"waybill"`
	RefNum  string   `json:"refnum"`
	Status  string   `json:"status"`
	Remarks []string `json:"remarks"`
}

// CancelResponse is returned by the edit endpoint on cancellation.
type CancelResponse struct {
	Status  bool   `json:"status"`
	Waybill string `json:"waybill"`
	Remark  string `json:"remark"`
}

// ============================================================================
// Tracking
// ============================================================================

// TrackResponse is returned by the package-tracking endpoint.
type TrackResponse struct {
	ShipmentData []ShipmentData `json:"ShipmentData"`
}

// ShipmentData wraps a tracked shipment.
type ShipmentData struct {
	Shipment ShipmentTrack `json:"Shipment"`
}

// ShipmentTrack is the tracked state of a waybill.
type ShipmentTrack struct {
	AWB    string         `json:"AWB"`
	Status ShipmentStatus `json:"Status"`
	Scans  []ScanWrapper  `json:"Scans"`
}

// ShipmentStatus is the latest status of a waybill.
type ShipmentStatus struct {
	Status         string `json:"Status"`
	StatusLocation string `json:"StatusLocation"`
	StatusDateTime string `json:"StatusDateTime"`
	Instructions   string `json:"Instructions"`
}

// ScanWrapper wraps a single scan.
type ScanWrapper struct {
	ScanDetail ScanDetail `json:"ScanDetail"`
}

// ScanDetail is a single scan event.
type ScanDetail struct {
	Scan            string `json:"Scan"`
	ScanDateTime    string `json:"ScanDateTime"`
	ScannedLocation string `json:"ScannedLocation"`
	Instructions    string `json:"Instructions"`
}

// ============================================================================
// Pickup & warehouse
// ============================================================================

// PickupPayload is the body of the pickup-request endpoint.
type PickupPayload struct {
	PickupLocation       string `json:"pickup_location"`
	PickupDate           string `json:"pickup_date"`
	PickupTime           string `json:"pickup_time"`
	ExpectedPackageCount int    `json:"expected_package_count"`
}

// PickupResponse is returned by the pickup-request endpoint.
type PickupResponse struct {
	PickupID           int64  `json:"pickup_id"`
	PickupDate         string `json:"pickup_date"`
	PickupTime         string `json:"pickup_time"`
	IncomingCenterName string `json:"incoming_center_name"`
}

// WarehousePayload is the warehouse body. Field names are remapped for the LTL API.
type WarehousePayload struct {
	Name          string `json:"name"`
	Email         string `json:"email"`
	Phone         string `json:"phone"`
	Address       string `json:"address"`
	City          string `json:"city"`
	Pin           string `json:"pin"`
	Country       string `json:"country"`
	ReturnAddress string `json:"return_address"`
	ReturnCity    string `json:"return_city"`
	ReturnPin     string `json:"return_pin"`
	ReturnState   string `json:"return_state"`
	ReturnCountry string `json:"return_country"`
}

// WarehouseResponse is returned by the warehouse endpoints.
type WarehouseResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Data    struct {
		Name    string `json:"name"`
		Message string `json:"message"`
	} `json:"data"`
}

// ============================================================================
// Serviceability & rates
// ============================================================================

// PincodeResponse is returned by the pincode-serviceability endpoint.
type PincodeResponse struct {
	DeliveryCodes []DeliveryCode `json:"delivery_codes"`
}

// DeliveryCode wraps a serviceable pincode.
type DeliveryCode struct {
	PostalCode PostalCode `json:"postal_code"`
}

// PostalCode holds the serviceability flags of a pincode ("Y"/"N").
type PostalCode struct {
	Pin      int64  `json:"pin"`
	COD      string `json:"cod"`
	PrePaid  string `json:"pre_paid"`
	Pickup   string `json:"pickup"`
	District string `json:"district"`
	State    string `json:"state_code"`
}

// RateParams are the query parameters of the charges endpoint.
type RateParams struct {
	OriginPin      string
	DestinationPin string
	WeightGrams    float64
	PaymentType    string // "Pre-paid" or "COD"
	CODAmount      float64
}

// RateResponse is returned by the charges endpoint.
type RateResponse []ChargeDetail

// ChargeDetail is a computed charge.
type ChargeDetail struct {
	TotalAmount   float64 `json:"total_amount"`
	GrossAmount   float64 `json:"gross_amount"`
	ChargedWeight float64 `json:"charged_weight"`
	Zone          string  `json:"zone"`
}

// ============================================================================
// Errors
// ============================================================================

// APIError represents an error response from the Delhivery API.
type APIError struct {
	StatusCode int      `json:"-"`
	Code       string   `json:"code"`
	Message    string   `json:"message"`
	Errors     []string `json:"errors,omitempty"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("delhivery API error %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("delhivery API error (%s): %s", e.Code, e.Message)
}

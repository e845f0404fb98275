// Package carrier provides the typed gateway to the third-party shipping carrier.
package carrier

import (
	"context"
	"fmt"
)

// Gateway defines one operation per carrier capability.
//
// Every method validates its input locally before touching the network and
// returns a *Error classified into exactly one Kind on failure.
type Gateway interface {
	// Name returns the carrier identifier (e.g., "delhivery").
	Name() string

	// Configured reports whether credentials are present.
	Configured() bool

	// CreateShipment books a forward shipment.
	CreateShipment(ctx context.Context, req *ShipmentRequest) (*ShipmentResult, error)

	// GenerateWaybills reserves count waybill numbers.
	GenerateWaybills(ctx context.Context, count int) (*WaybillBatch, error)

	// TrackWaybill returns the tracking history of a forward shipment.
	TrackWaybill(ctx context.Context, waybill string) (*TrackResult, error)

	// RequestPickup asks the carrier to collect packages from a warehouse.
	RequestPickup(ctx context.Context, req *PickupRequest) (*PickupResult, error)

	// RegisterWarehouse creates a pickup location at the carrier.
	RegisterWarehouse(ctx context.Context, req *WarehouseRequest) (*WarehouseResult, error)

	// EditWarehouse updates a pickup location at the carrier.
	EditWarehouse(ctx context.Context, req *WarehouseRequest) (*WarehouseResult, error)

	// ScheduleReversePickup books a customer-to-warehouse return pickup.
	ScheduleReversePickup(ctx context.Context, req *ReversePickupRequest) (*ReversePickupResult, error)

	// TrackReversePickup returns the tracking history of a return pickup.
	TrackReversePickup(ctx context.Context, trackingNumber string) (*TrackResult, error)

	// CancelReversePickup cancels a scheduled return pickup.
	CancelReversePickup(ctx context.Context, trackingNumber, reason string) error

	// CheckPincode reports serviceability of a delivery pincode.
	CheckPincode(ctx context.Context, pincode string) (*PincodeResult, error)

	// GetRateQuote estimates the shipping charge between two pincodes.
	GetRateQuote(ctx context.Context, req *RateRequest) (*RateQuote, error)
}

// Capability names a single carrier operation.
type Capability string

const (
	CapabilityCreateShipment        Capability = "create_shipment"
	CapabilityGenerateWaybills      Capability = "generate_waybills"
	CapabilityTrackWaybill          Capability = "track_waybill"
	CapabilityRequestPickup         Capability = "request_pickup"
	CapabilityRegisterWarehouse     Capability = "register_warehouse"
	CapabilityEditWarehouse         Capability = "edit_warehouse"
	CapabilityScheduleReversePickup Capability = "schedule_reverse_pickup"
	CapabilityTrackReversePickup    Capability = "track_reverse_pickup"
	CapabilityCancelReversePickup   Capability = "cancel_reverse_pickup"
	CapabilityCheckPincode          Capability = "check_pincode"
	CapabilityRateQuote             Capability = "rate_quote"
)

// AllCapabilities lists every capability in a stable order.
var AllCapabilities = []Capability{
	CapabilityCreateShipment,
	CapabilityGenerateWaybills,
	CapabilityTrackWaybill,
	CapabilityRequestPickup,
	CapabilityRegisterWarehouse,
	CapabilityEditWarehouse,
	CapabilityScheduleReversePickup,
	CapabilityTrackReversePickup,
	CapabilityCancelReversePickup,
	CapabilityCheckPincode,
	CapabilityRateQuote,
}

// FallbackOnNetwork reports whether a network failure may be answered from
// deterministic mock data. Only reads and quotes qualify.
func (c Capability) FallbackOnNetwork() bool {
	switch c {
	case CapabilityGenerateWaybills, CapabilityTrackWaybill, CapabilityTrackReversePickup,
		CapabilityCheckPincode, CapabilityRateQuote:
		return true
	}
	return false
}

// FallbackWhenUnconfigured reports whether the capability may run against
// mock data when no credentials are configured. Reverse pickups that change
// state at the carrier never do.
func (c Capability) FallbackWhenUnconfigured() bool {
	switch c {
	case CapabilityScheduleReversePickup, CapabilityCancelReversePickup:
		return false
	}
	return true
}

// WarehouseAPI selects the wire format used for warehouse registration.
type WarehouseAPI string

const (
	// WarehouseAPIExpress is the parcel client-warehouse API.
	WarehouseAPIExpress WarehouseAPI = "express"
	// WarehouseAPILTL is the freight (LTL) warehouse API.
	WarehouseAPILTL WarehouseAPI = "ltl"
)

// ParseWarehouseAPI validates a configured warehouse API version.
func ParseWarehouseAPI(s string) (WarehouseAPI, error) {
	switch WarehouseAPI(s) {
	case WarehouseAPIExpress, "":
		return WarehouseAPIExpress, nil
	case WarehouseAPILTL:
		return WarehouseAPILTL, nil
	}
	return "", fmt.Errorf("unknown warehouse API %q", s)
}

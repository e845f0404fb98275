// Package mock provides a programmable carrier gateway for testing.
package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/tournevent/postershop/pkg/carrier"
)

// Client is a carrier.Gateway whose per-capability outcome can be set by tests.
// Unset capabilities succeed with simple deterministic payloads.
type Client struct {
	name string

	mu       sync.Mutex
	failures map[carrier.Capability]*carrier.Error
	tracks   map[string]*carrier.TrackResult
	calls    map[carrier.Capability]int
	seq      int

	// Last captured requests.
	LastShipment      *carrier.ShipmentRequest
	LastPickup        *carrier.PickupRequest
	LastWarehouse     *carrier.WarehouseRequest
	LastReversePickup *carrier.ReversePickupRequest
}

// New creates a new mock gateway.
func New(name string) *Client {
	return &Client{
		name:     name,
		failures: make(map[carrier.Capability]*carrier.Error),
		tracks:   make(map[string]*carrier.TrackResult),
		calls:    make(map[carrier.Capability]int),
	}
}

// Fail makes every call to capability fail with a classified error.
func (c *Client) Fail(capability carrier.Capability, kind carrier.Kind, status int, message string) *Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures[capability] = carrier.NewError(c.name, kind, fmt.Sprintf("HTTP_%d", status), message).
		WithCapability(capability).
		WithStatusCode(status)
	return c
}

// Succeed clears a configured failure.
func (c *Client) Succeed(capability carrier.Capability) *Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.failures, capability)
	return c
}

// SetTracking sets the tracking result returned for a waybill or tracking number.
func (c *Client) SetTracking(waybill, status string, events ...carrier.TrackingEvent) *Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tracks[waybill] = &carrier.TrackResult{
		Waybill: waybill,
		Status:  status,
		Events:  events,
		Source:  carrier.SourceCarrier,
	}
	return c
}

// Calls returns how many times capability was invoked.
func (c *Client) Calls(capability carrier.Capability) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[capability]
}

func (c *Client) begin(capability carrier.Capability) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls[capability]++
	c.seq++
	if err, ok := c.failures[capability]; ok {
		// Copy so callers may attach diagnostics without racing.
		cp := *err
		return &cp
	}
	return nil
}

func (c *Client) next() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seq
}

// Name returns the carrier name.
func (c *Client) Name() string {
	return c.name
}

// Configured always reports true.
func (c *Client) Configured() bool {
	return true
}

// CreateShipment returns a sequential waybill.
func (c *Client) CreateShipment(ctx context.Context, req *carrier.ShipmentRequest) (*carrier.ShipmentResult, error) {
	c.LastShipment = req
	if err := c.begin(carrier.CapabilityCreateShipment); err != nil {
		return nil, err
	}
	return &carrier.ShipmentResult{
		Waybill: fmt.Sprintf("WB%010d", c.next()),
		Status:  "Success",
		Source:  carrier.SourceCarrier,
	}, nil
}

// GenerateWaybills returns count sequential waybills.
func (c *Client) GenerateWaybills(ctx context.Context, count int) (*carrier.WaybillBatch, error) {
	if err := c.begin(carrier.CapabilityGenerateWaybills); err != nil {
		return nil, err
	}
	base := c.next()
	waybills := make([]string, count)
	for i := range waybills {
		waybills[i] = fmt.Sprintf("WB%06d%04d", base, i)
	}
	return &carrier.WaybillBatch{Waybills: waybills, Source: carrier.SourceCarrier}, nil
}

// TrackWaybill returns the configured tracking result, or manifested.
func (c *Client) TrackWaybill(ctx context.Context, waybill string) (*carrier.TrackResult, error) {
	if err := c.begin(carrier.CapabilityTrackWaybill); err != nil {
		return nil, err
	}
	return c.tracking(waybill), nil
}

// TrackReversePickup returns the configured tracking result, or pending.
func (c *Client) TrackReversePickup(ctx context.Context, trackingNumber string) (*carrier.TrackResult, error) {
	if err := c.begin(carrier.CapabilityTrackReversePickup); err != nil {
		return nil, err
	}
	return c.tracking(trackingNumber), nil
}

func (c *Client) tracking(waybill string) *carrier.TrackResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	if tr, ok := c.tracks[waybill]; ok {
		out := *tr
		return &out
	}
	return &carrier.TrackResult{Waybill: waybill, Status: carrier.StatusPending, Source: carrier.SourceCarrier}
}

// RequestPickup returns a sequential pickup id. Auth failures carry diagnostics
// the way the real gateway does.
func (c *Client) RequestPickup(ctx context.Context, req *carrier.PickupRequest) (*carrier.PickupResult, error) {
	c.LastPickup = req
	if err := c.begin(carrier.CapabilityRequestPickup); err != nil {
		if cerr, ok := carrier.AsError(err); ok && cerr.Kind == carrier.KindAuth {
			cerr.WithDiagnostics(carrier.AnalyzeWarehouseName(req.WarehouseName, cerr.Message))
		}
		return nil, err
	}
	return &carrier.PickupResult{
		PickupID:   fmt.Sprintf("PU%d", c.next()),
		PickupDate: req.PickupDate,
		Source:     carrier.SourceCarrier,
	}, nil
}

// RegisterWarehouse acknowledges the warehouse.
func (c *Client) RegisterWarehouse(ctx context.Context, req *carrier.WarehouseRequest) (*carrier.WarehouseResult, error) {
	c.LastWarehouse = req
	if err := c.begin(carrier.CapabilityRegisterWarehouse); err != nil {
		return nil, err
	}
	return &carrier.WarehouseResult{Name: req.Name, Source: carrier.SourceCarrier}, nil
}

// EditWarehouse acknowledges the warehouse.
func (c *Client) EditWarehouse(ctx context.Context, req *carrier.WarehouseRequest) (*carrier.WarehouseResult, error) {
	c.LastWarehouse = req
	if err := c.begin(carrier.CapabilityEditWarehouse); err != nil {
		return nil, err
	}
	return &carrier.WarehouseResult{Name: req.Name, Source: carrier.SourceCarrier}, nil
}

// ScheduleReversePickup returns a sequential tracking number.
func (c *Client) ScheduleReversePickup(ctx context.Context, req *carrier.ReversePickupRequest) (*carrier.ReversePickupResult, error) {
	c.LastReversePickup = req
	if err := c.begin(carrier.CapabilityScheduleReversePickup); err != nil {
		return nil, err
	}
	n := c.next()
	return &carrier.ReversePickupResult{
		TrackingNumber: fmt.Sprintf("RP%010d", n),
		PickupID:       fmt.Sprintf("RPU%d", n),
		Source:         carrier.SourceCarrier,
	}, nil
}

// CancelReversePickup acknowledges the cancellation.
func (c *Client) CancelReversePickup(ctx context.Context, trackingNumber, reason string) error {
	return c.begin(carrier.CapabilityCancelReversePickup)
}

// CheckPincode reports every pincode as serviceable.
func (c *Client) CheckPincode(ctx context.Context, pincode string) (*carrier.PincodeResult, error) {
	if err := c.begin(carrier.CapabilityCheckPincode); err != nil {
		return nil, err
	}
	return &carrier.PincodeResult{
		Pincode:     pincode,
		Serviceable: true,
		COD:         true,
		Prepaid:     true,
		Pickup:      true,
		Source:      carrier.SourceCarrier,
	}, nil
}

// GetRateQuote returns a flat rate.
func (c *Client) GetRateQuote(ctx context.Context, req *carrier.RateRequest) (*carrier.RateQuote, error) {
	if err := c.begin(carrier.CapabilityRateQuote); err != nil {
		return nil, err
	}
	return &carrier.RateQuote{
		Amount:        60,
		Currency:      "INR",
		Zone:          "C",
		EstimatedDays: 3,
		Source:        carrier.SourceCarrier,
	}, nil
}

// Ensure Client implements carrier.Gateway interface
var _ carrier.Gateway = (*Client)(nil)


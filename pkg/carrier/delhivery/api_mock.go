package delhivery

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/tournevent/postershop/pkg/carrier"
)

// MockWaybillPrefix marks waybills minted by the mock client.
const MockWaybillPrefix = "MOCK"

const mockScanLayout = "2006-01-02T15:04:05"

// mockScanEpoch anchors mock scan times; waybills spread over the year after it.
var mockScanEpoch = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

// MockScanTime returns the scan time the mock reports for waybill.
func MockScanTime(waybill string) time.Time {
	offset := hashOf("scan", waybill) % uint64(365*24*60*60)
	return mockScanEpoch.Add(time.Duration(offset) * time.Second)
}

// MockAPIClient is a deterministic implementation of APIClient. It backs the
// fallback path and tests: the same request always yields the same payload.
type MockAPIClient struct {
	SimulateErrors  bool // every call fails as if the carrier were down
	SimulateStatus  int  // every call fails with this HTTP status
	SimulateLatency time.Duration

	OnCreateShipment  func(ctx context.Context, req *ShipmentPayload) (*CreateShipmentResponse, error)
	OnFetchWaybills   func(ctx context.Context, count int) ([]string, error)
	OnTrack           func(ctx context.Context, waybill string) (*TrackResponse, error)
	OnCreatePickup    func(ctx context.Context, req *PickupPayload) (*PickupResponse, error)
	OnCreateWarehouse func(ctx context.Context, api carrier.WarehouseAPI, req *WarehousePayload) (*WarehouseResponse, error)
	OnEditWarehouse   func(ctx context.Context, api carrier.WarehouseAPI, req *WarehousePayload) (*WarehouseResponse, error)
	OnCancelShipment  func(ctx context.Context, waybill string) (*CancelResponse, error)
	OnPincode         func(ctx context.Context, pincode string) (*PincodeResponse, error)
	OnRate            func(ctx context.Context, req *RateParams) (*RateResponse, error)
}

// NewMockAPIClient creates a new mock API client with default behavior.
func NewMockAPIClient() *MockAPIClient {
	return &MockAPIClient{}
}

func (m *MockAPIClient) simulate(ctx context.Context) error {
	if m.SimulateLatency > 0 {
		select {
		case <-time.After(m.SimulateLatency):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if m.SimulateStatus != 0 {
		return &APIError{
			StatusCode: m.SimulateStatus,
			Code:       fmt.Sprintf("HTTP_%d", m.SimulateStatus),
			Message:    http.StatusText(m.SimulateStatus),
		}
	}
	if m.SimulateErrors {
		return &APIError{
			StatusCode: http.StatusServiceUnavailable,
			Code:       "MOCK_ERROR",
			Message:    "Simulated API error",
		}
	}
	return nil
}

// CreateShipment returns a booked shipment with a hash-derived waybill.
func (m *MockAPIClient) CreateShipment(ctx context.Context, req *ShipmentPayload) (*CreateShipmentResponse, error) {
	if err := m.simulate(ctx); err != nil {
		return nil, err
	}
	if m.OnCreateShipment != nil {
		return m.OnCreateShipment(ctx, req)
	}

	resp := &CreateShipmentResponse{
		Success:      true,
		PackageCount: len(req.Shipments),
		UploadWBN:    "UPL" + strconv.FormatUint(hashOf("upload", req.PickupLocation.Name, strconv.Itoa(len(req.Shipments)))%1e10, 10),
	}
	for _, pkg := range req.Shipments {
		wb := pkg.Waybill
		if wb == "" {
			wb = MockWaybill(pkg.PaymentMode, pkg.Order, pkg.Phone, pkg.Pin)
		}
		resp.Packages = append(resp.Packages, PackageStatus{
			Waybill: wb,
			RefNum:  pkg.Order,
			Status:  "Success",
		})
	}
	return resp, nil
}

// FetchWaybills returns count hash-derived waybills.
func (m *MockAPIClient) FetchWaybills(ctx context.Context, count int) ([]string, error) {
	if err := m.simulate(ctx); err != nil {
		return nil, err
	}
	if m.OnFetchWaybills != nil {
		return m.OnFetchWaybills(ctx, count)
	}

	waybills := make([]string, count)
	for i := range waybills {
		waybills[i] = MockWaybill("batch", strconv.Itoa(count), strconv.Itoa(i))
	}
	return waybills, nil
}

// Track reports the waybill as manifested at a time derived from the waybill,
// so repeated calls return the same scan.
func (m *MockAPIClient) Track(ctx context.Context, waybill string) (*TrackResponse, error) {
	if err := m.simulate(ctx); err != nil {
		return nil, err
	}
	if m.OnTrack != nil {
		return m.OnTrack(ctx, waybill)
	}

	manifestedAt := MockScanTime(waybill).Format(mockScanLayout)
	return &TrackResponse{
		ShipmentData: []ShipmentData{{
			Shipment: ShipmentTrack{
				AWB: waybill,
				Status: ShipmentStatus{
					Status:         "Manifested",
					StatusLocation: "Origin Hub",
					StatusDateTime: manifestedAt,
					Instructions:   "Shipment details received",
				},
				Scans: []ScanWrapper{{
					ScanDetail: ScanDetail{
						Scan:            "Manifested",
						ScanDateTime:    manifestedAt,
						ScannedLocation: "Origin Hub",
						Instructions:    "Shipment details received",
					},
				}},
			},
		}},
	}, nil
}

// CreatePickup returns a pickup id derived from warehouse and date.
func (m *MockAPIClient) CreatePickup(ctx context.Context, req *PickupPayload) (*PickupResponse, error) {
	if err := m.simulate(ctx); err != nil {
		return nil, err
	}
	if m.OnCreatePickup != nil {
		return m.OnCreatePickup(ctx, req)
	}

	return &PickupResponse{
		PickupID:           int64(hashOf("pickup", req.PickupLocation, req.PickupDate) % 1e8),
		PickupDate:         req.PickupDate,
		PickupTime:         req.PickupTime,
		IncomingCenterName: req.PickupLocation,
	}, nil
}

// CreateWarehouse echoes the registered name.
func (m *MockAPIClient) CreateWarehouse(ctx context.Context, api carrier.WarehouseAPI, req *WarehousePayload) (*WarehouseResponse, error) {
	if err := m.simulate(ctx); err != nil {
		return nil, err
	}
	if m.OnCreateWarehouse != nil {
		return m.OnCreateWarehouse(ctx, api, req)
	}

	resp := &WarehouseResponse{Success: true}
	resp.Data.Name = req.Name
	resp.Data.Message = fmt.Sprintf("warehouse registered (%s)", api)
	return resp, nil
}

// EditWarehouse echoes the edited name.
func (m *MockAPIClient) EditWarehouse(ctx context.Context, api carrier.WarehouseAPI, req *WarehousePayload) (*WarehouseResponse, error) {
	if err := m.simulate(ctx); err != nil {
		return nil, err
	}
	if m.OnEditWarehouse != nil {
		return m.OnEditWarehouse(ctx, api, req)
	}

	resp := &WarehouseResponse{Success: true}
	resp.Data.Name = req.Name
	resp.Data.Message = fmt.Sprintf("warehouse updated (%s)", api)
	return resp, nil
}

// CancelShipment acknowledges the cancellation.
func (m *MockAPIClient) CancelShipment(ctx context.Context, waybill string) (*CancelResponse, error) {
	if err := m.simulate(ctx); err != nil {
		return nil, err
	}
	if m.OnCancelShipment != nil {
		return m.OnCancelShipment(ctx, waybill)
	}

	return &CancelResponse{
		Status:  true,
		Waybill: waybill,
		Remark:  "Shipment has been cancelled",
	}, nil
}

// Pincode derives serviceability from the numeric range of the pincode.
func (m *MockAPIClient) Pincode(ctx context.Context, pincode string) (*PincodeResponse, error) {
	if err := m.simulate(ctx); err != nil {
		return nil, err
	}
	if m.OnPincode != nil {
		return m.OnPincode(ctx, pincode)
	}

	pin, err := strconv.ParseInt(pincode, 10, 64)
	if err != nil || pin < minServiceablePin || pin > maxServiceablePin {
		return &PincodeResponse{}, nil
	}

	region := regionOf(pincode)
	return &PincodeResponse{
		DeliveryCodes: []DeliveryCode{{
			PostalCode: PostalCode{
				Pin:      pin,
				COD:      yesNo(pin < codCutoffPin),
				PrePaid:  "Y",
				Pickup:   yesNo(region.metro),
				District: region.city,
				State:    region.state,
			},
		}},
	}, nil
}

// Rate computes a slab-based charge from the zone between the two pincodes.
func (m *MockAPIClient) Rate(ctx context.Context, req *RateParams) (*RateResponse, error) {
	if err := m.simulate(ctx); err != nil {
		return nil, err
	}
	if m.OnRate != nil {
		return m.OnRate(ctx, req)
	}

	zone := zoneBetween(req.OriginPin, req.DestinationPin)
	slabs := math.Ceil(req.WeightGrams / slabGrams)
	if slabs < 1 {
		slabs = 1
	}

	gross := zoneSlabRates[zone] * slabs
	total := gross
	if req.PaymentType == "COD" {
		total += math.Max(minCODCharge, math.Round(req.CODAmount*codChargeRate*100)/100)
	}

	return &RateResponse{{
		TotalAmount:   total,
		GrossAmount:   gross,
		ChargedWeight: slabs * slabGrams,
		Zone:          zone,
	}}, nil
}

// ============================================================================
// Deterministic helpers
// ============================================================================

const (
	minServiceablePin = 110000
	maxServiceablePin = 855999
	codCutoffPin      = 700000

	slabGrams     = 500.0
	minCODCharge  = 35.0
	codChargeRate = 0.015
)

var zoneSlabRates = map[string]float64{
	"A": 30,
	"B": 35,
	"C": 45,
	"D": 55,
	"E": 70,
}

// zoneTransitDays is the estimated transit time per zone.
var zoneTransitDays = map[string]int{
	"A": 1,
	"B": 2,
	"C": 3,
	"D": 4,
	"E": 6,
}

type region struct {
	city  string
	state string
	metro bool
}

var regions = map[string]region{
	"11": {"New Delhi", "DL", true},
	"38": {"Ahmedabad", "GJ", false},
	"40": {"Mumbai", "MH", true},
	"41": {"Pune", "MH", false},
	"50": {"Hyderabad", "TG", true},
	"56": {"Bengaluru", "KA", true},
	"60": {"Chennai", "TN", true},
	"70": {"Kolkata", "WB", true},
}

func regionOf(pincode string) region {
	if len(pincode) >= 2 {
		if r, ok := regions[pincode[:2]]; ok {
			return r
		}
	}
	return region{}
}

func zoneBetween(origin, dest string) string {
	switch {
	case len(origin) < 3 || len(dest) < 3:
		return "D"
	case origin[:3] == dest[:3]:
		return "A"
	case origin[:2] == dest[:2]:
		return "B"
	case dest[:2] == "78" || dest[:2] == "79" || dest[:2] == "19":
		return "E"
	case origin[:1] == dest[:1]:
		return "C"
	}
	return "D"
}

func yesNo(b bool) string {
	if b {
		return "Y"
	}
	return "N"
}

func hashOf(parts ...string) uint64 {
	h := fnv.New64a()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return h.Sum64()
}

// MockWaybill derives a stable waybill from the given seed parts.
func MockWaybill(parts ...string) string {
	return fmt.Sprintf("%s%012d", MockWaybillPrefix, hashOf(parts...)%1e12)
}

// Ensure MockAPIClient implements APIClient interface
var _ APIClient = (*MockAPIClient)(nil)

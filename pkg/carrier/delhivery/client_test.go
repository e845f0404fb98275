package delhivery_test

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tournevent/postershop/pkg/carrier"
	"github.com/tournevent/postershop/pkg/carrier/delhivery"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

func newTestClient(mockClient *delhivery.MockAPIClient) *delhivery.Client {
	logger := otelzap.New(zap.NewNop())
	return delhivery.NewWithAPIClient(
		delhivery.Config{Timeout: time.Second},
		mockClient,
		logger,
		nil,
	)
}

func newUnconfiguredClient() *delhivery.Client {
	return delhivery.New(delhivery.Config{}, otelzap.New(zap.NewNop()), nil)
}

func testShipmentRequest() *carrier.ShipmentRequest {
	return &carrier.ShipmentRequest{
		OrderRef:       "ORD-1001",
		ConsigneeName:  "Asha Rao",
		ConsigneePhone: "9876543210",
		Address: carrier.Address{
			Line1:   "12 MG Road",
			City:    "Bengaluru",
			State:   "KA",
			Pincode: "560001",
		},
		PaymentMode:   carrier.PaymentCOD,
		CODAmount:     1500,
		TotalAmount:   1500,
		Weight:        500,
		Quantity:      1,
		ProductsDesc:  "Poster",
		WarehouseName: "Mumbai Warehouse",
	}
}

func TestClient_CreateShipment_Success(t *testing.T) {
	mockAPI := delhivery.NewMockAPIClient()
	var captured *delhivery.ShipmentPayload
	mockAPI.OnCreateShipment = func(ctx context.Context, req *delhivery.ShipmentPayload) (*delhivery.CreateShipmentResponse, error) {
		captured = req
		return &delhivery.CreateShipmentResponse{
			Success:  true,
			Packages: []delhivery.PackageStatus{{Waybill: "1490811111111", Status: "Success"}},
		}, nil
	}
	client := newTestClient(mockAPI)

	resp, err := client.CreateShipment(context.Background(), testShipmentRequest())

	require.NoError(t, err)
	assert.Equal(t, "1490811111111", resp.Waybill)
	assert.Equal(t, carrier.SourceCarrier, resp.Source)
	require.NotNil(t, captured)
	assert.Equal(t, "COD", captured.Shipments[0].PaymentMode)
	assert.Equal(t, 1500.0, captured.Shipments[0].CODAmount)
	assert.Equal(t, "Mumbai Warehouse", captured.PickupLocation.Name)
}

func TestClient_CreateShipment_ValidationBeforeNetwork(t *testing.T) {
	called := false
	mockAPI := delhivery.NewMockAPIClient()
	mockAPI.OnCreateShipment = func(ctx context.Context, req *delhivery.ShipmentPayload) (*delhivery.CreateShipmentResponse, error) {
		called = true
		return nil, nil
	}
	client := newTestClient(mockAPI)

	req := testShipmentRequest()
	req.Address.Pincode = "12345"
	_, err := client.CreateShipment(context.Background(), req)

	require.Error(t, err)
	assert.True(t, carrier.IsValidation(err))
	assert.False(t, called)
}

func TestClient_CreateShipment_NetworkErrorNotSubstituted(t *testing.T) {
	mockAPI := delhivery.NewMockAPIClient()
	mockAPI.SimulateErrors = true
	client := newTestClient(mockAPI)

	_, err := client.CreateShipment(context.Background(), testShipmentRequest())

	require.Error(t, err)
	assert.True(t, carrier.IsNetwork(err))
}

func TestClient_Classification(t *testing.T) {
	tests := []struct {
		status int
		want   carrier.Kind
	}{
		{http.StatusBadRequest, carrier.KindValidation},
		{http.StatusUnauthorized, carrier.KindAuth},
		{http.StatusForbidden, carrier.KindAuth},
		{http.StatusNotFound, carrier.KindNotFound},
		{http.StatusBadGateway, carrier.KindNetwork},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			mockAPI := delhivery.NewMockAPIClient()
			mockAPI.SimulateStatus = tt.status
			client := newTestClient(mockAPI)

			_, err := client.TrackWaybill(context.Background(), "1490811111111")
			if tt.want == carrier.KindNetwork {
				// Tracking falls back to mock data on network errors.
				require.NoError(t, err)
				return
			}

			require.Error(t, err)
			assert.Equal(t, tt.want, carrier.KindOf(err))
			cerr, ok := carrier.AsError(err)
			require.True(t, ok)
			assert.Equal(t, tt.status, cerr.StatusCode)
			assert.Equal(t, carrier.CapabilityTrackWaybill, cerr.Capability)
		})
	}
}

func TestClient_TrackWaybill_NetworkFallback(t *testing.T) {
	mockAPI := delhivery.NewMockAPIClient()
	mockAPI.SimulateErrors = true
	client := newTestClient(mockAPI)

	resp, err := client.TrackWaybill(context.Background(), "1490811111111")

	require.NoError(t, err)
	assert.Equal(t, carrier.SourceFallback, resp.Source)
	assert.Equal(t, carrier.StatusManifested, resp.Status)
	assert.NotEmpty(t, resp.Events)
}

func TestClient_Unconfigured_TrackingIsStable(t *testing.T) {
	client := newUnconfiguredClient()

	first, err := client.TrackWaybill(context.Background(), "MOCK1234567890")
	require.NoError(t, err)
	second, err := client.TrackWaybill(context.Background(), "MOCK1234567890")
	require.NoError(t, err)

	require.Len(t, first.Events, 1)
	require.Len(t, second.Events, 1)
	assert.False(t, first.Events[0].Timestamp.IsZero())
	assert.True(t, first.Events[0].Timestamp.Equal(second.Events[0].Timestamp))
	assert.True(t, first.Events[0].Timestamp.Equal(delhivery.MockScanTime("MOCK1234567890")))
}

func TestClient_TrackWaybill_UnparseableScanTime(t *testing.T) {
	mockAPI := delhivery.NewMockAPIClient()
	mockAPI.OnTrack = func(ctx context.Context, waybill string) (*delhivery.TrackResponse, error) {
		return &delhivery.TrackResponse{ShipmentData: []delhivery.ShipmentData{{
			Shipment: delhivery.ShipmentTrack{
				AWB:    waybill,
				Status: delhivery.ShipmentStatus{Status: "In Transit", StatusDateTime: "2026-10-15T08:30:00"},
				Scans: []delhivery.ScanWrapper{
					{ScanDetail: delhivery.ScanDetail{Scan: "In Transit", ScanDateTime: "yesterday", ScannedLocation: "Pune"}},
				},
			},
		}}}, nil
	}
	client := newTestClient(mockAPI)

	resp, err := client.TrackWaybill(context.Background(), "1490811111111")

	require.NoError(t, err)
	require.Len(t, resp.Events, 1)
	assert.Equal(t, time.Date(2026, 10, 15, 8, 30, 0, 0, time.UTC), resp.Events[0].Timestamp)
}

func TestClient_Timeout(t *testing.T) {
	mockAPI := delhivery.NewMockAPIClient()
	mockAPI.SimulateLatency = time.Second
	client := delhivery.NewWithAPIClient(
		delhivery.Config{Timeout: 20 * time.Millisecond},
		mockAPI,
		otelzap.New(zap.NewNop()),
		nil,
	)

	_, err := client.RequestPickup(context.Background(), &carrier.PickupRequest{
		WarehouseName:    "Mumbai Warehouse",
		PickupDate:       time.Date(2026, 10, 20, 0, 0, 0, 0, time.UTC),
		ExpectedPackages: 1,
	})

	require.Error(t, err)
	assert.True(t, carrier.IsNetwork(err))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestClient_CallerCancellationDoesNotAbortCall(t *testing.T) {
	mockAPI := delhivery.NewMockAPIClient()
	mockAPI.SimulateLatency = 20 * time.Millisecond
	client := newTestClient(mockAPI)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	resp, err := client.RequestPickup(ctx, &carrier.PickupRequest{
		WarehouseName:    "Mumbai Warehouse",
		PickupDate:       time.Date(2026, 10, 20, 0, 0, 0, 0, time.UTC),
		ExpectedPackages: 2,
	})

	require.NoError(t, err)
	assert.NotEmpty(t, resp.PickupID)
}

func TestClient_RequestPickup_AuthDiagnostics(t *testing.T) {
	mockAPI := delhivery.NewMockAPIClient()
	mockAPI.SimulateStatus = http.StatusUnauthorized
	client := newTestClient(mockAPI)

	_, err := client.RequestPickup(context.Background(), &carrier.PickupRequest{
		WarehouseName:    "Mumbai Warehouse",
		PickupDate:       time.Date(2026, 10, 20, 0, 0, 0, 0, time.UTC),
		ExpectedPackages: 1,
	})

	require.Error(t, err)
	cerr, ok := carrier.AsError(err)
	require.True(t, ok)
	assert.Equal(t, carrier.KindAuth, cerr.Kind)
	assert.Equal(t, http.StatusUnauthorized, cerr.StatusCode)
	require.NotNil(t, cerr.Diagnostics)
	assert.Empty(t, cerr.Diagnostics.Issues)
	assert.Equal(t, carrier.CauseTokenPermissions, cerr.Diagnostics.LikelyCauses[0])
}

func TestClient_RequestPickup_SendsNameVerbatim(t *testing.T) {
	name := "Mumbai \u2013 Andheri "
	var sent string
	mockAPI := delhivery.NewMockAPIClient()
	mockAPI.OnCreatePickup = func(ctx context.Context, req *delhivery.PickupPayload) (*delhivery.PickupResponse, error) {
		sent = req.PickupLocation
		return &delhivery.PickupResponse{PickupID: 42, PickupDate: req.PickupDate}, nil
	}
	client := newTestClient(mockAPI)

	resp, err := client.RequestPickup(context.Background(), &carrier.PickupRequest{
		WarehouseName:    name,
		PickupDate:       time.Date(2026, 10, 20, 0, 0, 0, 0, time.UTC),
		ExpectedPackages: 1,
	})

	require.NoError(t, err)
	assert.Equal(t, name, sent)
	assert.Equal(t, "42", resp.PickupID)
}

func TestClient_RequestPickup_EmptyWarehouse(t *testing.T) {
	client := newTestClient(delhivery.NewMockAPIClient())

	_, err := client.RequestPickup(context.Background(), &carrier.PickupRequest{
		WarehouseName:    "  ",
		PickupDate:       time.Now(),
		ExpectedPackages: 1,
	})

	assert.True(t, carrier.IsValidation(err))
}

func TestClient_GenerateWaybills_Bounds(t *testing.T) {
	client := newTestClient(delhivery.NewMockAPIClient())

	_, err := client.GenerateWaybills(context.Background(), 0)
	assert.True(t, carrier.IsValidation(err))

	_, err = client.GenerateWaybills(context.Background(), 101)
	assert.True(t, carrier.IsValidation(err))

	batch, err := client.GenerateWaybills(context.Background(), 3)
	require.NoError(t, err)
	assert.Len(t, batch.Waybills, 3)
}

func TestClient_Unconfigured_DeterministicMock(t *testing.T) {
	client := newUnconfiguredClient()
	assert.False(t, client.Configured())

	first, err := client.CheckPincode(context.Background(), "400001")
	require.NoError(t, err)
	second, err := client.CheckPincode(context.Background(), "400001")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, carrier.SourceFallback, first.Source)
	assert.True(t, first.Serviceable)
	assert.True(t, first.COD)
	assert.Equal(t, "Mumbai", first.City)

	q1, err := client.GetRateQuote(context.Background(), &carrier.RateRequest{
		OriginPincode: "400001", DestinationPincode: "560001", Weight: 1200, PaymentMode: carrier.PaymentPrepaid,
	})
	require.NoError(t, err)
	q2, err := client.GetRateQuote(context.Background(), &carrier.RateRequest{
		OriginPincode: "400001", DestinationPincode: "560001", Weight: 1200, PaymentMode: carrier.PaymentPrepaid,
	})
	require.NoError(t, err)
	assert.Equal(t, q1, q2)
	assert.Equal(t, "D", q1.Zone)
	assert.Equal(t, 165.0, q1.Amount)
	assert.Equal(t, "INR", q1.Currency)
}

func TestClient_Unconfigured_ShipmentIsMockMarked(t *testing.T) {
	client := newUnconfiguredClient()

	resp, err := client.CreateShipment(context.Background(), testShipmentRequest())

	require.NoError(t, err)
	assert.Equal(t, carrier.SourceFallback, resp.Source)
	assert.True(t, strings.HasPrefix(resp.Waybill, delhivery.MockWaybillPrefix))
}

func TestClient_Unconfigured_ReversePickupRefused(t *testing.T) {
	client := newUnconfiguredClient()

	_, err := client.ScheduleReversePickup(context.Background(), &carrier.ReversePickupRequest{
		ReturnRef:     "RET-1",
		CustomerName:  "Asha Rao",
		CustomerPhone: "9876543210",
		PickupAddress: carrier.Address{Line1: "12 MG Road", City: "Bengaluru", Pincode: "560001"},
		WarehouseName: "Mumbai Warehouse",
	})

	require.Error(t, err)
	assert.True(t, errors.Is(err, carrier.ErrNotConfigured))

	err = client.CancelReversePickup(context.Background(), "MOCK1", "customer cancelled")
	assert.True(t, errors.Is(err, carrier.ErrNotConfigured))
}

func TestClient_ScheduleReversePickup_NoFallbackOnNetwork(t *testing.T) {
	mockAPI := delhivery.NewMockAPIClient()
	mockAPI.SimulateErrors = true
	client := newTestClient(mockAPI)

	_, err := client.ScheduleReversePickup(context.Background(), &carrier.ReversePickupRequest{
		ReturnRef:     "RET-1",
		CustomerName:  "Asha Rao",
		CustomerPhone: "9876543210",
		PickupAddress: carrier.Address{Line1: "12 MG Road", City: "Bengaluru", Pincode: "560001"},
		WarehouseName: "Mumbai Warehouse",
	})

	require.Error(t, err)
	assert.True(t, carrier.IsNetwork(err))
}

func TestClient_ScheduleReversePickup_UsesPickupMode(t *testing.T) {
	mockAPI := delhivery.NewMockAPIClient()
	var mode string
	mockAPI.OnCreateShipment = func(ctx context.Context, req *delhivery.ShipmentPayload) (*delhivery.CreateShipmentResponse, error) {
		mode = req.Shipments[0].PaymentMode
		return &delhivery.CreateShipmentResponse{
			Success:   true,
			UploadWBN: "UPL1",
			Packages:  []delhivery.PackageStatus{{Waybill: "R123"}},
		}, nil
	}
	client := newTestClient(mockAPI)

	resp, err := client.ScheduleReversePickup(context.Background(), &carrier.ReversePickupRequest{
		ReturnRef:     "RET-1",
		CustomerName:  "Asha Rao",
		CustomerPhone: "9876543210",
		PickupAddress: carrier.Address{Line1: "12 MG Road", City: "Bengaluru", Pincode: "560001"},
		WarehouseName: "Mumbai Warehouse",
	})

	require.NoError(t, err)
	assert.Equal(t, "Pickup", mode)
	assert.Equal(t, "R123", resp.TrackingNumber)
	assert.Equal(t, "UPL1", resp.PickupID)
}

func TestClient_Warehouse_UsesConfiguredAPI(t *testing.T) {
	mockAPI := delhivery.NewMockAPIClient()
	var used carrier.WarehouseAPI
	mockAPI.OnCreateWarehouse = func(ctx context.Context, api carrier.WarehouseAPI, req *delhivery.WarehousePayload) (*delhivery.WarehouseResponse, error) {
		used = api
		resp := &delhivery.WarehouseResponse{Success: true}
		resp.Data.Name = req.Name
		return resp, nil
	}
	client := delhivery.NewWithAPIClient(
		delhivery.Config{WarehouseAPI: carrier.WarehouseAPILTL},
		mockAPI,
		otelzap.New(zap.NewNop()),
		nil,
	)

	resp, err := client.RegisterWarehouse(context.Background(), &carrier.WarehouseRequest{
		Name:    "Pune Hub",
		Phone:   "9876543210",
		Address: carrier.Address{Line1: "Plot 4", City: "Pune", Pincode: "411001"},
	})

	require.NoError(t, err)
	assert.Equal(t, carrier.WarehouseAPILTL, used)
	assert.Equal(t, "Pune Hub", resp.Name)
}

func TestClient_CheckPincode_NetworkFallbackAndCache(t *testing.T) {
	calls := 0
	mockAPI := delhivery.NewMockAPIClient()
	mockAPI.OnPincode = func(ctx context.Context, pincode string) (*delhivery.PincodeResponse, error) {
		calls++
		return &delhivery.PincodeResponse{DeliveryCodes: []delhivery.DeliveryCode{{
			PostalCode: delhivery.PostalCode{Pin: 110001, COD: "Y", PrePaid: "Y", Pickup: "Y", District: "New Delhi"},
		}}}, nil
	}
	client := newTestClient(mockAPI)

	for i := 0; i < 3; i++ {
		resp, err := client.CheckPincode(context.Background(), "110001")
		require.NoError(t, err)
		assert.Equal(t, carrier.SourceCarrier, resp.Source)
	}
	assert.Equal(t, 1, calls)

	down := delhivery.NewMockAPIClient()
	down.SimulateErrors = true
	resp, err := newTestClient(down).CheckPincode(context.Background(), "999999")
	require.NoError(t, err)
	assert.Equal(t, carrier.SourceFallback, resp.Source)
	assert.False(t, resp.Serviceable)
}

func TestNormalizeStatus(t *testing.T) {
	tests := map[string]string{
		"Manifested":             carrier.StatusManifested,
		"In Transit":             carrier.StatusInTransit,
		"Dispatched":             carrier.StatusInTransit,
		"Delivered":              carrier.StatusDelivered,
		"DTO":                    carrier.StatusDeliveredToWarehouse,
		"Delivered To Warehouse": carrier.StatusDeliveredToWarehouse,
		"Return Processed":       carrier.StatusProcessed,
		"Picked Up":              carrier.StatusPickedUp,
		"Not Picked":             carrier.StatusPending,
		"Pickup Scheduled":       carrier.StatusPending,
		"Cancelled":              carrier.StatusCancelled,
		"":                       carrier.StatusPending,
	}

	for raw, want := range tests {
		assert.Equal(t, want, delhivery.NormalizeStatus(raw), raw)
	}
}

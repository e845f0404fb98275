// Package delhivery provides integration with the Delhivery shipping API.
package delhivery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"regexp"
	"strconv"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/tournevent/postershop/pkg/carrier"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const carrierName = "delhivery"

const (
	defaultTimeout    = 15 * time.Second
	defaultCacheTTL   = 10 * time.Minute
	defaultPickupTime = "11:00:00"
	maxWaybillBatch   = 100
)

var (
	pincodePattern    = regexp.MustCompile(`^[1-9][0-9]{5}$`)
	pickupTimePattern = regexp.MustCompile(`^([01][0-9]|2[0-3]):[0-5][0-9]:[0-5][0-9]$`)
)

// Config holds Delhivery configuration.
type Config struct {
	APIToken          string
	BaseURL           string
	Timeout           time.Duration
	UseMock           bool
	WarehouseAPI      carrier.WarehouseAPI
	CacheTTL          time.Duration
	RequestsPerSecond float64
}

// Recorder receives per-call outcomes. telemetry.Metrics satisfies it.
type Recorder interface {
	RecordCarrierCall(carrier, capability, outcome string, duration time.Duration)
	RecordFallback(carrier, capability, reason string)
}

// Client is the Delhivery gateway. It validates locally, bounds every call
// with a timeout, classifies failures and substitutes deterministic mock data
// where the capability allows it.
type Client struct {
	config     Config
	apiClient  APIClient
	fallback   APIClient
	configured bool
	mocked     bool
	cache      *gocache.Cache
	logger     *otelzap.Logger
	tracer     trace.Tracer
	recorder   Recorder
}

// New creates a new Delhivery client. Without an API token the client is
// unconfigured and answers from the deterministic mock.
func New(cfg Config, logger *otelzap.Logger, tracer trace.Tracer) *Client {
	var apiClient APIClient

	if cfg.UseMock || cfg.APIToken == "" {
		apiClient = NewMockAPIClient()
	} else {
		apiClient = NewHTTPAPIClient(HTTPAPIClientConfig{
			BaseURL:           cfg.BaseURL,
			APIToken:          cfg.APIToken,
			Timeout:           cfg.Timeout,
			RequestsPerSecond: cfg.RequestsPerSecond,
		})
	}

	c := NewWithAPIClient(cfg, apiClient, logger, tracer)
	c.mocked = cfg.UseMock
	c.configured = cfg.APIToken != "" || cfg.UseMock
	return c
}

// NewWithAPIClient creates a new Delhivery client with a custom API client.
// The client counts as configured.
func NewWithAPIClient(cfg Config, apiClient APIClient, logger *otelzap.Logger, tracer trace.Tracer) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = defaultCacheTTL
	}
	if cfg.WarehouseAPI == "" {
		cfg.WarehouseAPI = carrier.WarehouseAPIExpress
	}
	if tracer == nil {
		tracer = otel.Tracer("github.com/tournevent/postershop/pkg/carrier/delhivery")
	}

	return &Client{
		config:     cfg,
		apiClient:  apiClient,
		fallback:   NewMockAPIClient(),
		configured: true,
		cache:      gocache.New(cfg.CacheTTL, 2*cfg.CacheTTL),
		logger:     logger,
		tracer:     tracer,
	}
}

// WithRecorder attaches a metrics recorder.
func (c *Client) WithRecorder(r Recorder) *Client {
	c.recorder = r
	return c
}

// Name returns the carrier name.
func (c *Client) Name() string {
	return carrierName
}

// Configured reports whether credentials are present.
func (c *Client) Configured() bool {
	return c.configured
}

// CreateShipment books a forward shipment.
func (c *Client) CreateShipment(ctx context.Context, req *carrier.ShipmentRequest) (*carrier.ShipmentResult, error) {
	capability := carrier.CapabilityCreateShipment
	if err := validateShipment(req); err != nil {
		return nil, c.invalid(capability, err)
	}

	c.logger.Info("Creating Delhivery shipment",
		zap.String("order_ref", req.OrderRef),
		zap.String("pincode", req.Address.Pincode),
		zap.String("payment_mode", string(req.PaymentMode)),
	)

	payload := shipmentToAPI(req)
	resp, source, err := invoke(ctx, c, capability, func(ctx context.Context, api APIClient) (*CreateShipmentResponse, error) {
		return api.CreateShipment(ctx, payload)
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Packages) == 0 || resp.Packages[0].Waybill == "" {
		return nil, c.classify(capability, &APIError{Code: "NO_WAYBILL", Message: "carrier returned no waybill"})
	}

	pkg := resp.Packages[0]
	return &carrier.ShipmentResult{
		Waybill: pkg.Waybill,
		Status:  pkg.Status,
		Remarks: strings.Join(pkg.Remarks, "; "),
		Source:  source,
	}, nil
}

// GenerateWaybills reserves count waybill numbers.
func (c *Client) GenerateWaybills(ctx context.Context, count int) (*carrier.WaybillBatch, error) {
	capability := carrier.CapabilityGenerateWaybills
	if count < 1 || count > maxWaybillBatch {
		return nil, c.invalid(capability, fmt.Errorf("count must be between 1 and %d", maxWaybillBatch))
	}

	waybills, source, err := invoke(ctx, c, capability, func(ctx context.Context, api APIClient) ([]string, error) {
		return api.FetchWaybills(ctx, count)
	})
	if err != nil {
		return nil, err
	}
	return &carrier.WaybillBatch{Waybills: waybills, Source: source}, nil
}

// TrackWaybill returns the tracking history of a forward shipment.
func (c *Client) TrackWaybill(ctx context.Context, waybill string) (*carrier.TrackResult, error) {
	return c.track(ctx, carrier.CapabilityTrackWaybill, waybill)
}

// TrackReversePickup returns the tracking history of a return pickup.
func (c *Client) TrackReversePickup(ctx context.Context, trackingNumber string) (*carrier.TrackResult, error) {
	return c.track(ctx, carrier.CapabilityTrackReversePickup, trackingNumber)
}

func (c *Client) track(ctx context.Context, capability carrier.Capability, waybill string) (*carrier.TrackResult, error) {
	if strings.TrimSpace(waybill) == "" {
		return nil, c.invalid(capability, errors.New("waybill is required"))
	}

	resp, source, err := invoke(ctx, c, capability, func(ctx context.Context, api APIClient) (*TrackResponse, error) {
		return api.Track(ctx, waybill)
	})
	if err != nil {
		return nil, err
	}
	return trackToCarrier(waybill, resp, source), nil
}

// RequestPickup asks the carrier to collect packages from a warehouse. An
// auth failure carries a diagnostic report on the warehouse name.
func (c *Client) RequestPickup(ctx context.Context, req *carrier.PickupRequest) (*carrier.PickupResult, error) {
	capability := carrier.CapabilityRequestPickup
	if err := validatePickup(req); err != nil {
		return nil, c.invalid(capability, err)
	}

	pickupTime := req.PickupTime
	if pickupTime == "" {
		pickupTime = defaultPickupTime
	}

	// The name goes out byte-for-byte; it must match the carrier's record exactly.
	payload := &PickupPayload{
		PickupLocation:       req.WarehouseName,
		PickupDate:           req.PickupDate.Format("2006-01-02"),
		PickupTime:           pickupTime,
		ExpectedPackageCount: req.ExpectedPackages,
	}

	c.logger.Info("Requesting Delhivery pickup",
		zap.String("warehouse", req.WarehouseName),
		zap.String("pickup_date", payload.PickupDate),
		zap.Int("packages", req.ExpectedPackages),
	)

	resp, source, err := invoke(ctx, c, capability, func(ctx context.Context, api APIClient) (*PickupResponse, error) {
		return api.CreatePickup(ctx, payload)
	})
	if err != nil {
		if cerr, ok := carrier.AsError(err); ok && cerr.Kind == carrier.KindAuth {
			cerr.WithDiagnostics(carrier.AnalyzeWarehouseName(req.WarehouseName, cerr.Message))
		}
		return nil, err
	}

	pickupDate := req.PickupDate
	if t, perr := time.Parse("2006-01-02", resp.PickupDate); perr == nil {
		pickupDate = t
	}
	return &carrier.PickupResult{
		PickupID:   strconv.FormatInt(resp.PickupID, 10),
		PickupDate: pickupDate,
		Source:     source,
	}, nil
}

// RegisterWarehouse creates a pickup location using the configured API.
func (c *Client) RegisterWarehouse(ctx context.Context, req *carrier.WarehouseRequest) (*carrier.WarehouseResult, error) {
	return c.warehouse(ctx, carrier.CapabilityRegisterWarehouse, req, APIClient.CreateWarehouse)
}

// EditWarehouse updates a pickup location using the configured API.
func (c *Client) EditWarehouse(ctx context.Context, req *carrier.WarehouseRequest) (*carrier.WarehouseResult, error) {
	return c.warehouse(ctx, carrier.CapabilityEditWarehouse, req, APIClient.EditWarehouse)
}

type warehouseCall func(api APIClient, ctx context.Context, version carrier.WarehouseAPI, req *WarehousePayload) (*WarehouseResponse, error)

func (c *Client) warehouse(ctx context.Context, capability carrier.Capability, req *carrier.WarehouseRequest, fn warehouseCall) (*carrier.WarehouseResult, error) {
	if err := validateWarehouse(req); err != nil {
		return nil, c.invalid(capability, err)
	}

	c.logger.Info("Syncing Delhivery warehouse",
		zap.String("capability", string(capability)),
		zap.String("warehouse", req.Name),
		zap.String("api", string(c.config.WarehouseAPI)),
	)

	payload := warehouseToAPI(req)
	resp, source, err := invoke(ctx, c, capability, func(ctx context.Context, api APIClient) (*WarehouseResponse, error) {
		return fn(api, ctx, c.config.WarehouseAPI, payload)
	})
	if err != nil {
		return nil, err
	}

	name := resp.Data.Name
	if name == "" {
		name = req.Name
	}
	return &carrier.WarehouseResult{Name: name, Message: resp.Data.Message, Source: source}, nil
}

// ScheduleReversePickup books a return pickup. It is never answered from mock data.
func (c *Client) ScheduleReversePickup(ctx context.Context, req *carrier.ReversePickupRequest) (*carrier.ReversePickupResult, error) {
	capability := carrier.CapabilityScheduleReversePickup
	if err := validateReversePickup(req); err != nil {
		return nil, c.invalid(capability, err)
	}

	c.logger.Info("Scheduling Delhivery reverse pickup",
		zap.String("return_ref", req.ReturnRef),
		zap.String("pincode", req.PickupAddress.Pincode),
		zap.String("warehouse", req.WarehouseName),
	)

	payload := reversePickupToAPI(req)
	resp, source, err := invoke(ctx, c, capability, func(ctx context.Context, api APIClient) (*CreateShipmentResponse, error) {
		return api.CreateShipment(ctx, payload)
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Packages) == 0 || resp.Packages[0].Waybill == "" {
		return nil, c.classify(capability, &APIError{Code: "NO_WAYBILL", Message: "carrier returned no tracking number"})
	}

	return &carrier.ReversePickupResult{
		TrackingNumber: resp.Packages[0].Waybill,
		PickupID:       resp.UploadWBN,
		Source:         source,
	}, nil
}

// CancelReversePickup cancels a scheduled return pickup.
func (c *Client) CancelReversePickup(ctx context.Context, trackingNumber, reason string) error {
	capability := carrier.CapabilityCancelReversePickup
	if strings.TrimSpace(trackingNumber) == "" {
		return c.invalid(capability, errors.New("tracking number is required"))
	}

	c.logger.Info("Cancelling Delhivery reverse pickup",
		zap.String("tracking_number", trackingNumber),
		zap.String("reason", reason),
	)

	_, _, err := invoke(ctx, c, capability, func(ctx context.Context, api APIClient) (*CancelResponse, error) {
		return api.CancelShipment(ctx, trackingNumber)
	})
	return err
}

// CheckPincode reports serviceability of a delivery pincode.
func (c *Client) CheckPincode(ctx context.Context, pincode string) (*carrier.PincodeResult, error) {
	capability := carrier.CapabilityCheckPincode
	if !pincodePattern.MatchString(pincode) {
		return nil, c.invalid(capability, fmt.Errorf("pincode %q must be 6 digits", pincode))
	}

	key := "pin:" + pincode
	if cached, ok := c.cache.Get(key); ok {
		result := *cached.(*carrier.PincodeResult)
		return &result, nil
	}

	resp, source, err := invoke(ctx, c, capability, func(ctx context.Context, api APIClient) (*PincodeResponse, error) {
		return api.Pincode(ctx, pincode)
	})
	if err != nil {
		return nil, err
	}

	result := pincodeToCarrier(pincode, resp, source)
	if source == carrier.SourceCarrier {
		c.cache.Set(key, result, gocache.DefaultExpiration)
	}
	out := *result
	return &out, nil
}

// GetRateQuote estimates the shipping charge between two pincodes.
func (c *Client) GetRateQuote(ctx context.Context, req *carrier.RateRequest) (*carrier.RateQuote, error) {
	capability := carrier.CapabilityRateQuote
	if err := validateRate(req); err != nil {
		return nil, c.invalid(capability, err)
	}

	params := &RateParams{
		OriginPin:      req.OriginPincode,
		DestinationPin: req.DestinationPincode,
		WeightGrams:    req.Weight,
		PaymentType:    "Pre-paid",
	}
	if req.PaymentMode == carrier.PaymentCOD {
		params.PaymentType = "COD"
		params.CODAmount = req.CODAmount
	}

	key := fmt.Sprintf("rate:%s:%s:%.0f:%s:%.2f", params.OriginPin, params.DestinationPin, params.WeightGrams, params.PaymentType, params.CODAmount)
	if cached, ok := c.cache.Get(key); ok {
		quote := *cached.(*carrier.RateQuote)
		return &quote, nil
	}

	resp, source, err := invoke(ctx, c, capability, func(ctx context.Context, api APIClient) (*RateResponse, error) {
		return api.Rate(ctx, params)
	})
	if err != nil {
		return nil, err
	}
	if len(*resp) == 0 {
		return nil, c.classify(capability, &APIError{StatusCode: 400, Code: "NO_CHARGES", Message: "no charges returned"})
	}

	charge := (*resp)[0]
	quote := &carrier.RateQuote{
		Amount:        charge.TotalAmount,
		Currency:      "INR",
		Zone:          charge.Zone,
		EstimatedDays: zoneTransitDays[charge.Zone],
		Source:        source,
	}
	if source == carrier.SourceCarrier {
		c.cache.Set(key, quote, gocache.DefaultExpiration)
	}
	out := *quote
	return &out, nil
}

// ============================================================================
// Call path
// ============================================================================

// invoke runs fn against the carrier under the configured timeout. The call is
// detached from the caller's cancellation so an in-flight carrier request is
// never abandoned half-way; only the timeout bounds it.
func invoke[T any](ctx context.Context, c *Client, capability carrier.Capability, fn func(context.Context, APIClient) (T, error)) (T, carrier.Source, error) {
	var zero T

	ctx, span := c.tracer.Start(ctx, "delhivery."+string(capability),
		trace.WithAttributes(attribute.String("carrier.capability", string(capability))))
	defer span.End()

	if !c.configured {
		if !capability.FallbackWhenUnconfigured() {
			err := carrier.NewError(carrierName, carrier.KindNetwork, "NOT_CONFIGURED", "carrier credentials are not configured").
				WithCapability(capability).
				WithCause(carrier.ErrNotConfigured)
			c.record(capability, string(carrier.KindNetwork), 0)
			span.SetStatus(codes.Error, err.Message)
			return zero, "", err
		}
		c.recordFallback(capability, "unconfigured")
		v, err := fn(ctx, c.fallback)
		if err != nil {
			return zero, "", c.classify(capability, err)
		}
		span.SetAttributes(attribute.String("carrier.source", string(carrier.SourceFallback)))
		return v, carrier.SourceFallback, nil
	}

	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.config.Timeout)
	defer cancel()

	start := time.Now()
	v, err := fn(callCtx, c.apiClient)
	elapsed := time.Since(start)
	if err == nil {
		c.record(capability, "success", elapsed)
		return v, c.source(), nil
	}

	cerr := c.classify(capability, err)
	c.record(capability, string(cerr.Kind), elapsed)
	c.logger.Warn("Delhivery call failed",
		zap.String("capability", string(capability)),
		zap.String("kind", string(cerr.Kind)),
		zap.Int("status", cerr.StatusCode),
		zap.Error(err),
	)
	span.RecordError(cerr)
	span.SetStatus(codes.Error, string(cerr.Kind))

	if cerr.Kind == carrier.KindNetwork && capability.FallbackOnNetwork() {
		if fv, ferr := fn(ctx, c.fallback); ferr == nil {
			c.recordFallback(capability, "network")
			span.SetAttributes(attribute.String("carrier.source", string(carrier.SourceFallback)))
			return fv, carrier.SourceFallback, nil
		}
	}
	return zero, "", cerr
}

func (c *Client) source() carrier.Source {
	if c.mocked {
		return carrier.SourceFallback
	}
	return carrier.SourceCarrier
}

// classify maps any failure to exactly one carrier.Kind.
func (c *Client) classify(capability carrier.Capability, err error) *carrier.Error {
	if cerr, ok := carrier.AsError(err); ok {
		return cerr
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		kind := carrier.KindNetwork
		if apiErr.StatusCode != 0 {
			kind = carrier.KindFromStatus(apiErr.StatusCode)
		}
		return carrier.NewError(carrierName, kind, apiErr.Code, apiErr.Message).
			WithCapability(capability).
			WithStatusCode(apiErr.StatusCode).
			WithCause(err)
	}

	code := "TRANSPORT"
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr) && netErr.Timeout():
		code = "TIMEOUT"
	case errors.Is(err, context.Canceled):
		code = "CANCELLED"
	}
	return carrier.NewError(carrierName, carrier.KindNetwork, code, "carrier request failed").
		WithCapability(capability).
		WithCause(err)
}

func (c *Client) invalid(capability carrier.Capability, err error) *carrier.Error {
	c.record(capability, string(carrier.KindValidation), 0)
	return carrier.NewError(carrierName, carrier.KindValidation, "INVALID_REQUEST", err.Error()).
		WithCapability(capability)
}

func (c *Client) record(capability carrier.Capability, outcome string, d time.Duration) {
	if c.recorder != nil {
		c.recorder.RecordCarrierCall(carrierName, string(capability), outcome, d)
	}
}

func (c *Client) recordFallback(capability carrier.Capability, reason string) {
	c.logger.Debug("Using Delhivery mock payload",
		zap.String("capability", string(capability)),
		zap.String("reason", reason),
	)
	if c.recorder != nil {
		c.recorder.RecordFallback(carrierName, string(capability), reason)
	}
}

// ============================================================================
// Validation
// ============================================================================

func validateAddress(field string, a carrier.Address) error {
	if strings.TrimSpace(a.Line1) == "" {
		return fmt.Errorf("%s address line is required", field)
	}
	if !pincodePattern.MatchString(a.Pincode) {
		return fmt.Errorf("%s pincode %q must be 6 digits", field, a.Pincode)
	}
	return nil
}

func validateShipment(req *carrier.ShipmentRequest) error {
	if req == nil {
		return errors.New("shipment request is required")
	}
	if strings.TrimSpace(req.ConsigneeName) == "" {
		return errors.New("consignee name is required")
	}
	if strings.TrimSpace(req.ConsigneePhone) == "" {
		return errors.New("consignee phone is required")
	}
	if err := validateAddress("delivery", req.Address); err != nil {
		return err
	}
	switch req.PaymentMode {
	case carrier.PaymentPrepaid:
	case carrier.PaymentCOD:
		if req.CODAmount <= 0 {
			return errors.New("cod amount must be positive for COD shipments")
		}
	default:
		return fmt.Errorf("unknown payment mode %q", req.PaymentMode)
	}
	if req.Weight < 0 {
		return errors.New("weight cannot be negative")
	}
	return nil
}

func validatePickup(req *carrier.PickupRequest) error {
	if req == nil {
		return errors.New("pickup request is required")
	}
	if strings.TrimSpace(req.WarehouseName) == "" {
		return errors.New("warehouse name is required")
	}
	if req.PickupDate.IsZero() {
		return errors.New("pickup date is required")
	}
	if req.PickupTime != "" && !pickupTimePattern.MatchString(req.PickupTime) {
		return fmt.Errorf("pickup time %q must be HH:MM:SS", req.PickupTime)
	}
	if req.ExpectedPackages < 1 {
		return errors.New("expected package count must be at least 1")
	}
	return nil
}

func validateWarehouse(req *carrier.WarehouseRequest) error {
	if req == nil {
		return errors.New("warehouse request is required")
	}
	if strings.TrimSpace(req.Name) == "" {
		return errors.New("warehouse name is required")
	}
	if strings.TrimSpace(req.Phone) == "" {
		return errors.New("warehouse phone is required")
	}
	if strings.TrimSpace(req.Address.City) == "" {
		return errors.New("warehouse city is required")
	}
	return validateAddress("warehouse", req.Address)
}

func validateReversePickup(req *carrier.ReversePickupRequest) error {
	if req == nil {
		return errors.New("reverse pickup request is required")
	}
	if strings.TrimSpace(req.CustomerName) == "" {
		return errors.New("customer name is required")
	}
	if strings.TrimSpace(req.CustomerPhone) == "" {
		return errors.New("customer phone is required")
	}
	if strings.TrimSpace(req.WarehouseName) == "" {
		return errors.New("return warehouse name is required")
	}
	return validateAddress("pickup", req.PickupAddress)
}

func validateRate(req *carrier.RateRequest) error {
	if req == nil {
		return errors.New("rate request is required")
	}
	if !pincodePattern.MatchString(req.OriginPincode) {
		return fmt.Errorf("origin pincode %q must be 6 digits", req.OriginPincode)
	}
	if !pincodePattern.MatchString(req.DestinationPincode) {
		return fmt.Errorf("destination pincode %q must be 6 digits", req.DestinationPincode)
	}
	if req.Weight <= 0 {
		return errors.New("weight must be positive")
	}
	return nil
}

// ============================================================================
// Conversion helpers
// ============================================================================

func shipmentToAPI(req *carrier.ShipmentRequest) *ShipmentPayload {
	quantity := req.Quantity
	if quantity < 1 {
		quantity = 1
	}
	mode := paymentModePrepaid
	codAmount := 0.0
	if req.PaymentMode == carrier.PaymentCOD {
		mode = paymentModeCOD
		codAmount = req.CODAmount
	}
	return &ShipmentPayload{
		Shipments: []PackageDetail{{
			Waybill:      req.Waybill,
			Order:        req.OrderRef,
			Name:         req.ConsigneeName,
			Phone:        req.ConsigneePhone,
			Email:        req.ConsigneeEmail,
			Add:          joinAddress(req.Address),
			City:         req.Address.City,
			State:        req.Address.State,
			Country:      countryOrDefault(req.Address.Country),
			Pin:          req.Address.Pincode,
			PaymentMode:  mode,
			CODAmount:    codAmount,
			TotalAmount:  req.TotalAmount,
			Quantity:     strconv.Itoa(quantity),
			Weight:       req.Weight,
			ProductsDesc: req.ProductsDesc,
		}},
		PickupLocation: PickupLocation{Name: req.WarehouseName},
	}
}

func reversePickupToAPI(req *carrier.ReversePickupRequest) *ShipmentPayload {
	quantity := req.Quantity
	if quantity < 1 {
		quantity = 1
	}
	pickupDate := ""
	if !req.PreferredDate.IsZero() {
		pickupDate = req.PreferredDate.Format("2006-01-02")
	}
	return &ShipmentPayload{
		Shipments: []PackageDetail{{
			Order:        req.ReturnRef,
			Name:         req.CustomerName,
			Phone:        req.CustomerPhone,
			Add:          joinAddress(req.PickupAddress),
			City:         req.PickupAddress.City,
			State:        req.PickupAddress.State,
			Country:      countryOrDefault(req.PickupAddress.Country),
			Pin:          req.PickupAddress.Pincode,
			PaymentMode:  paymentModePickup,
			Quantity:     strconv.Itoa(quantity),
			Weight:       req.Weight,
			ProductsDesc: req.ProductsDesc,
			PickupDate:   pickupDate,
		}},
		PickupLocation: PickupLocation{Name: req.WarehouseName},
	}
}

func warehouseToAPI(req *carrier.WarehouseRequest) *WarehousePayload {
	ret := req.ReturnAddress
	if ret.Line1 == "" {
		ret = req.Address
	}
	return &WarehousePayload{
		Name:          req.Name,
		Email:         req.Email,
		Phone:         req.Phone,
		Address:       joinAddress(req.Address),
		City:          req.Address.City,
		Pin:           req.Address.Pincode,
		Country:       countryOrDefault(req.Address.Country),
		ReturnAddress: joinAddress(ret),
		ReturnCity:    ret.City,
		ReturnPin:     ret.Pincode,
		ReturnState:   ret.State,
		ReturnCountry: countryOrDefault(ret.Country),
	}
}

func trackToCarrier(waybill string, resp *TrackResponse, source carrier.Source) *carrier.TrackResult {
	result := &carrier.TrackResult{Waybill: waybill, Status: carrier.StatusPending, Source: source}
	if resp == nil || len(resp.ShipmentData) == 0 {
		return result
	}

	shipment := resp.ShipmentData[0].Shipment
	result.Status = NormalizeStatus(shipment.Status.Status)
	statusAt := parseCarrierTime(shipment.Status.StatusDateTime)
	for _, scan := range shipment.Scans {
		at := parseCarrierTime(scan.ScanDetail.ScanDateTime)
		if at.IsZero() {
			at = statusAt
		}
		result.Events = append(result.Events, carrier.TrackingEvent{
			Status:      NormalizeStatus(scan.ScanDetail.Scan),
			Location:    scan.ScanDetail.ScannedLocation,
			Timestamp:   at,
			Description: scan.ScanDetail.Instructions,
		})
	}
	return result
}

func pincodeToCarrier(pincode string, resp *PincodeResponse, source carrier.Source) *carrier.PincodeResult {
	result := &carrier.PincodeResult{Pincode: pincode, Source: source}
	if resp == nil || len(resp.DeliveryCodes) == 0 {
		return result
	}

	pc := resp.DeliveryCodes[0].PostalCode
	result.Serviceable = true
	result.COD = pc.COD == "Y"
	result.Prepaid = pc.PrePaid == "Y"
	result.Pickup = pc.Pickup == "Y"
	result.City = pc.District
	result.State = pc.State
	return result
}

// NormalizeStatus maps a raw carrier status or scan to a normalized status.
func NormalizeStatus(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	switch {
	case s == "":
		return carrier.StatusPending
	case strings.Contains(s, "cancel"):
		return carrier.StatusCancelled
	case s == "dto", strings.Contains(s, "delivered to warehouse"), strings.Contains(s, "returned to warehouse"):
		return carrier.StatusDeliveredToWarehouse
	case strings.Contains(s, "processed"), strings.Contains(s, "closed"):
		return carrier.StatusProcessed
	case strings.Contains(s, "delivered"):
		return carrier.StatusDelivered
	case strings.Contains(s, "not picked"), strings.Contains(s, "scheduled"), strings.Contains(s, "open"):
		return carrier.StatusPending
	case strings.Contains(s, "picked"), strings.Contains(s, "pickup done"):
		return carrier.StatusPickedUp
	case strings.Contains(s, "manifest"):
		return carrier.StatusManifested
	}
	return carrier.StatusInTransit
}

var carrierTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05.000",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// parseCarrierTime returns the zero time when s matches no known layout.
func parseCarrierTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range carrierTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

func joinAddress(a carrier.Address) string {
	if a.Line2 == "" {
		return a.Line1
	}
	return a.Line1 + ", " + a.Line2
}

func countryOrDefault(country string) string {
	if country == "" {
		return "India"
	}
	return country
}

// Ensure Client implements carrier.Gateway interface
var _ carrier.Gateway = (*Client)(nil)

package delhivery

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/tournevent/postershop/pkg/carrier"
	"golang.org/x/time/rate"
)

// HTTPAPIClient is the production implementation of APIClient using HTTP.
type HTTPAPIClient struct {
	baseURL    string
	apiToken   string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// HTTPAPIClientConfig holds configuration for the HTTP client.
type HTTPAPIClientConfig struct {
	BaseURL           string
	APIToken          string
	Timeout           time.Duration
	RequestsPerSecond float64 // zero disables client-side throttling
}

// NewHTTPAPIClient creates a new HTTP-based API client for production use.
func NewHTTPAPIClient(cfg HTTPAPIClientConfig) *HTTPAPIClient {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), int(cfg.RequestsPerSecond)+1)
	}

	return &HTTPAPIClient{
		baseURL:  strings.TrimSuffix(cfg.BaseURL, "/"),
		apiToken: cfg.APIToken,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		limiter: limiter,
	}
}

// CreateShipment books shipments.
// POST /api/cmu/create.json
func (c *HTTPAPIClient) CreateShipment(ctx context.Context, req *ShipmentPayload) (*CreateShipmentResponse, error) {
	var result CreateShipmentResponse
	if err := c.call(ctx, http.MethodPost, "/api/cmu/create.json", nil, req, &result); err != nil {
		return nil, err
	}

	// The endpoint answers 200 with success=false for rejected payloads.
	if !result.Success {
		msg := result.Remarks
		for _, pkg := range result.Packages {
			if len(pkg.Remarks) > 0 {
				msg = strings.Join(pkg.Remarks, "; ")
				break
			}
		}
		return nil, &APIError{
			StatusCode: http.StatusBadRequest,
			Code:       "SHIPMENT_REJECTED",
			Message:    msg,
		}
	}
	return &result, nil
}

// FetchWaybills reserves waybill numbers.
// GET /waybill/api/bulk/json/?count=N
func (c *HTTPAPIClient) FetchWaybills(ctx context.Context, count int) ([]string, error) {
	query := url.Values{"count": {strconv.Itoa(count)}}

	// The endpoint returns a JSON string of comma-separated waybills.
	var raw string
	if err := c.call(ctx, http.MethodGet, "/waybill/api/bulk/json/", query, nil, &raw); err != nil {
		return nil, err
	}

	var waybills []string
	for _, wb := range strings.Split(raw, ",") {
		if wb = strings.TrimSpace(wb); wb != "" {
			waybills = append(waybills, wb)
		}
	}
	return waybills, nil
}

// Track returns the scan history of a waybill.
// GET /api/v1/packages/json/?waybill=X
func (c *HTTPAPIClient) Track(ctx context.Context, waybill string) (*TrackResponse, error) {
	query := url.Values{"waybill": {waybill}}

	var result TrackResponse
	if err := c.call(ctx, http.MethodGet, "/api/v1/packages/json/", query, nil, &result); err != nil {
		return nil, err
	}
	if len(result.ShipmentData) == 0 {
		return nil, &APIError{
			StatusCode: http.StatusBadRequest,
			Code:       "UNKNOWN_WAYBILL",
			Message:    fmt.Sprintf("no shipment data for waybill %s", waybill),
		}
	}
	return &result, nil
}

// CreatePickup raises a pickup request.
// POST /fm/request/new/
func (c *HTTPAPIClient) CreatePickup(ctx context.Context, req *PickupPayload) (*PickupResponse, error) {
	var result PickupResponse
	if err := c.call(ctx, http.MethodPost, "/fm/request/new/", nil, req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// CreateWarehouse registers a pickup location.
func (c *HTTPAPIClient) CreateWarehouse(ctx context.Context, api carrier.WarehouseAPI, req *WarehousePayload) (*WarehouseResponse, error) {
	if api == carrier.WarehouseAPILTL {
		return c.ltlWarehouse(ctx, http.MethodPost, "/ltl/client-warehouses", req)
	}
	return c.expressWarehouse(ctx, "/api/backend/clientwarehouse/create/", req)
}

// EditWarehouse updates a pickup location.
func (c *HTTPAPIClient) EditWarehouse(ctx context.Context, api carrier.WarehouseAPI, req *WarehousePayload) (*WarehouseResponse, error) {
	if api == carrier.WarehouseAPILTL {
		return c.ltlWarehouse(ctx, http.MethodPut, "/ltl/client-warehouses/"+url.PathEscape(req.Name), req)
	}
	return c.expressWarehouse(ctx, "/api/backend/clientwarehouse/edit/", req)
}

func (c *HTTPAPIClient) expressWarehouse(ctx context.Context, path string, req *WarehousePayload) (*WarehouseResponse, error) {
	var result WarehouseResponse
	if err := c.call(ctx, http.MethodPost, path, nil, req, &result); err != nil {
		return nil, err
	}
	if !result.Success {
		return nil, &APIError{
			StatusCode: http.StatusBadRequest,
			Code:       "WAREHOUSE_REJECTED",
			Message:    result.Error,
		}
	}
	return &result, nil
}

// ltlWarehouse is the freight API's warehouse body.
type ltlWarehouse struct {
	WarehouseName string `json:"warehouse_name"`
	ContactEmail  string `json:"contact_email"`
	ContactPhone  string `json:"contact_phone"`
	AddressLine   string `json:"address_line"`
	City          string `json:"city"`
	PinCode       string `json:"pin_code"`
	Country       string `json:"country"`
	ReturnAddress struct {
		AddressLine string `json:"address_line"`
		City        string `json:"city"`
		PinCode     string `json:"pin_code"`
		State       string `json:"state"`
		Country     string `json:"country"`
	} `json:"return_address"`
}

func (c *HTTPAPIClient) ltlWarehouse(ctx context.Context, method, path string, req *WarehousePayload) (*WarehouseResponse, error) {
	body := ltlWarehouse{
		WarehouseName: req.Name,
		ContactEmail:  req.Email,
		ContactPhone:  req.Phone,
		AddressLine:   req.Address,
		City:          req.City,
		PinCode:       req.Pin,
		Country:       req.Country,
	}
	body.ReturnAddress.AddressLine = req.ReturnAddress
	body.ReturnAddress.City = req.ReturnCity
	body.ReturnAddress.PinCode = req.ReturnPin
	body.ReturnAddress.State = req.ReturnState
	body.ReturnAddress.Country = req.ReturnCountry

	var raw struct {
		ID      string `json:"id"`
		Name    string `json:"warehouse_name"`
		Message string `json:"message"`
	}
	if err := c.call(ctx, method, path, nil, body, &raw); err != nil {
		return nil, err
	}

	result := &WarehouseResponse{Success: true}
	result.Data.Name = raw.Name
	result.Data.Message = raw.Message
	return result, nil
}

// CancelShipment cancels a waybill.
// POST /api/p/edit
func (c *HTTPAPIClient) CancelShipment(ctx context.Context, waybill string) (*CancelResponse, error) {
	body := map[string]string{
		"waybill":      waybill,
		"cancellation": "true",
	}

	var result CancelResponse
	if err := c.call(ctx, http.MethodPost, "/api/p/edit", nil, body, &result); err != nil {
		return nil, err
	}
	if !result.Status {
		return nil, &APIError{
			StatusCode: http.StatusBadRequest,
			Code:       "CANCEL_REJECTED",
			Message:    result.Remark,
		}
	}
	return &result, nil
}

// Pincode returns serviceability for a pincode.
// GET /c/api/pin-codes/json/?filter_codes=X
func (c *HTTPAPIClient) Pincode(ctx context.Context, pincode string) (*PincodeResponse, error) {
	query := url.Values{"filter_codes": {pincode}}

	var result PincodeResponse
	if err := c.call(ctx, http.MethodGet, "/c/api/pin-codes/json/", query, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Rate returns computed charges.
// GET /api/kinko/v1/invoice/charges/.json
func (c *HTTPAPIClient) Rate(ctx context.Context, req *RateParams) (*RateResponse, error) {
	query := url.Values{
		"md":    {"S"},
		"ss":    {"Delivered"},
		"o_pin": {req.OriginPin},
		"d_pin": {req.DestinationPin},
		"cgm":   {strconv.FormatFloat(req.WeightGrams, 'f', 0, 64)},
		"pt":    {req.PaymentType},
		"cod":   {strconv.FormatFloat(req.CODAmount, 'f', 2, 64)},
	}

	var result RateResponse
	if err := c.call(ctx, http.MethodGet, "/api/kinko/v1/invoice/charges/.json", query, nil, &result); err != nil {
		return nil, err
	}
	if len(result) == 0 {
		return nil, &APIError{
			StatusCode: http.StatusBadRequest,
			Code:       "NO_CHARGES",
			Message:    "carrier returned no charges for this lane",
		}
	}
	return &result, nil
}

// call performs a request and decodes a 2xx body into out.
func (c *HTTPAPIClient) call(ctx context.Context, method, path string, query url.Values, body, out interface{}) error {
	resp, err := c.doRequest(ctx, method, path, query, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.parseError(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return nil
}

// doRequest performs an HTTP request with proper headers and authentication.
func (c *HTTPAPIClient) doRequest(ctx context.Context, method, path string, query url.Values, body interface{}) (*http.Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiToken)
	req.Header.Set("User-Agent", "postershop/1.0")

	return c.httpClient.Do(req)
}

// parseError extracts error information from an HTTP response.
func (c *HTTPAPIClient) parseError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	apiErr := &APIError{
		StatusCode: resp.StatusCode,
		Code:       fmt.Sprintf("HTTP_%d", resp.StatusCode),
	}

	var parsed struct {
		Code    string   `json:"code"`
		Error   string   `json:"error"`
		Detail  string   `json:"detail"`
		Message string   `json:"message"`
		Errors  []string `json:"errors"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil {
		if parsed.Code != "" {
			apiErr.Code = parsed.Code
		}
		for _, msg := range []string{parsed.Message, parsed.Error, parsed.Detail} {
			if msg != "" {
				apiErr.Message = msg
				break
			}
		}
		apiErr.Errors = parsed.Errors
	}

	if apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(string(body))
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	return apiErr
}

// Ensure HTTPAPIClient implements APIClient interface
var _ APIClient = (*HTTPAPIClient)(nil)

package graphql_test

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"

	"github.com/tournevent/postershop/internal/downloads"
	"github.com/tournevent/postershop/internal/fulfillment"
	"github.com/tournevent/postershop/internal/graphql"
	"github.com/tournevent/postershop/internal/ledger"
	"github.com/tournevent/postershop/internal/notify"
	"github.com/tournevent/postershop/internal/returns"
	"github.com/tournevent/postershop/internal/store"
	"github.com/tournevent/postershop/internal/telemetry"
	"github.com/tournevent/postershop/pkg/carrier"
	"github.com/tournevent/postershop/pkg/carrier/mock"
)

const warehouseName = "Mumbai Warehouse"

func newTestResolver(t *testing.T) (*graphql.Resolver, *mock.Client) {
	t.Helper()

	logger := otelzap.New(zap.NewNop())
	metrics := telemetry.NewMetrics(prometheus.NewRegistry())
	gateway := mock.New("delhivery")
	orders := store.NewMemory()
	bus := notify.NewBus(nil)

	signer, err := downloads.NewJWTSigner("s3cret", "https://shop.example.com/download", time.Hour)
	require.NoError(t, err)

	orch := fulfillment.New(fulfillment.Deps{
		Orders:   orders,
		Ledger:   ledger.NewMemory(),
		Gateway:  gateway,
		Signer:   signer,
		Counter:  downloads.NewMemoryCounter(),
		Notifier: bus,
		Metrics:  metrics,
		Logger:   logger,
	}, fulfillment.Config{DefaultWarehouse: warehouseName, OperatorEmail: "ops@example.com"})

	workflow := returns.New(returns.Deps{
		Orders:   orders,
		Returns:  orders,
		Gateway:  gateway,
		Notifier: bus,
		Metrics:  metrics,
		Logger:   logger,
	}, returns.Config{ReturnWarehouse: warehouseName, OperatorEmail: "ops@example.com"})

	info := graphql.Info{Service: "postershop", Version: "test"}
	return graphql.NewResolver(orch, workflow, gateway, info, logger, metrics), gateway
}

func execute(t *testing.T, r *graphql.Resolver, query string, vars map[string]any) *graphql.Response {
	t.Helper()
	return r.Execute(context.Background(), graphql.Request{Query: query, Variables: vars})
}

// envelope returns the {success, data, error} object of field key.
func envelope(t *testing.T, resp *graphql.Response, key string) map[string]any {
	t.Helper()
	require.Empty(t, resp.Errors)
	env, ok := resp.Data[key].(map[string]any)
	require.True(t, ok, "field %s missing from %v", key, resp.Data)
	return env
}

func object(t *testing.T, v any) map[string]any {
	t.Helper()
	m, ok := v.(map[string]any)
	require.True(t, ok, "expected object, got %T", v)
	return m
}

func checkoutInput(payment string, items ...map[string]any) map[string]any {
	return map[string]any{
		"customerId":    "cust-1",
		"customerName":  "Asha Rao",
		"customerEmail": "asha@example.com",
		"customerPhone": "9876543210",
		"shippingAddress": map[string]any{
			"line1":   "12 Marine Drive",
			"city":    "Mumbai",
			"state":   "MH",
			"pincode": "400001",
			"country": "IN",
		},
		"items":         items,
		"totalAmount":   1500,
		"paymentMethod": payment,
	}
}

func posterItem() map[string]any {
	return map[string]any{"productId": "poster-1", "title": "Monsoon Skyline", "quantity": 1, "unitPrice": 1500, "productType": "poster"}
}

func digitalItem() map[string]any {
	return map[string]any{"productId": "art-1", "title": "Skyline (digital)", "quantity": 1, "unitPrice": 300, "productType": "digital"}
}

const completeOrderMutation = `mutation Complete($input: CompleteOrderInput!) {
	completeOrder(input: $input) { success data error }
}`

func completeOrder(t *testing.T, r *graphql.Resolver, input map[string]any) map[string]any {
	t.Helper()
	env := envelope(t, execute(t, r, completeOrderMutation, map[string]any{"input": input}), "completeOrder")
	require.Equal(t, true, env["success"], "completeOrder failed: %v", env["error"])
	return object(t, env["data"])
}

func TestQuery_Health(t *testing.T) {
	r, _ := newTestResolver(t)

	env := envelope(t, execute(t, r, `{ health { success data } }`, nil), "health")
	assert.Equal(t, true, env["success"])

	data := object(t, env["data"])
	assert.Equal(t, "ok", data["status"])
	assert.Equal(t, "postershop", data["service"])
	assert.Equal(t, "delhivery", data["carrier"])
}

func TestExecute_SyntaxError(t *testing.T) {
	r, _ := newTestResolver(t)

	resp := execute(t, r, `{ health { success `, nil)
	require.Len(t, resp.Errors, 1)
	assert.Nil(t, resp.Data)
}

func TestExecute_UnknownField(t *testing.T) {
	r, _ := newTestResolver(t)

	resp := execute(t, r, `{ health { success } carriers }`, nil)
	require.Len(t, resp.Errors, 1)
	assert.Equal(t, []string{"carriers"}, resp.Errors[0].Path)
	assert.Contains(t, resp.Data, "health")
	assert.Nil(t, resp.Data["carriers"])
}

func TestExecute_OperationName(t *testing.T) {
	r, _ := newTestResolver(t)
	doc := `query A { health { success } } query B { warehouses { success } }`

	resp := r.Execute(context.Background(), graphql.Request{Query: doc, OperationName: "B"})
	require.Empty(t, resp.Errors)
	assert.Contains(t, resp.Data, "warehouses")
	assert.NotContains(t, resp.Data, "health")

	resp = r.Execute(context.Background(), graphql.Request{Query: doc})
	assert.Len(t, resp.Errors, 1)
}

func TestExecute_AliasesAndProjection(t *testing.T) {
	r, _ := newTestResolver(t)

	resp := execute(t, r, `{
		mumbai: checkPincode(pincode: "400001") { success data { serviceable cod } }
		remote: checkPincode(pincode: "990001") { data { serviceable } }
	}`, nil)

	mumbai := envelope(t, resp, "mumbai")
	assert.Equal(t, true, mumbai["success"])
	data := object(t, mumbai["data"])
	assert.Len(t, data, 2)
	assert.Contains(t, data, "serviceable")
	assert.Contains(t, data, "cod")

	remote := envelope(t, resp, "remote")
	assert.NotContains(t, remote, "success")
	assert.Contains(t, object(t, remote["data"]), "serviceable")
}

func TestExecute_FragmentsAndDefaults(t *testing.T) {
	r, _ := newTestResolver(t)

	resp := execute(t, r, `query Pin($pin: String = "400001") {
		checkPincode(pincode: $pin) { ...envelope }
	}
	fragment envelope on PincodeResult { success data { pincode } }`, nil)

	env := envelope(t, resp, "checkPincode")
	assert.Equal(t, true, env["success"])
	assert.Equal(t, "400001", object(t, env["data"])["pincode"])
}

func TestMutation_CompleteOrder(t *testing.T) {
	r, _ := newTestResolver(t)

	data := completeOrder(t, r, checkoutInput("COD", posterItem()))

	assert.NotEmpty(t, data["orderId"])
	assert.Equal(t, "pending", data["status"])
	shipment := object(t, data["shipment"])
	assert.Equal(t, "COD", shipment["paymentMode"])
	assert.NotEmpty(t, shipment["waybill"])
}

func TestMutation_CompleteOrder_ValidationFailure(t *testing.T) {
	r, _ := newTestResolver(t)
	input := checkoutInput("Prepaid")

	env := envelope(t, execute(t, r, completeOrderMutation, map[string]any{"input": input}), "completeOrder")

	assert.Equal(t, false, env["success"])
	errObj := object(t, env["error"])
	assert.Equal(t, graphql.KindValidation, errObj["kind"])
	assert.Equal(t, "items", errObj["field"])
}

func TestMutation_CreateShipment_CarrierFailureIsReported(t *testing.T) {
	r, gateway := newTestResolver(t)
	gateway.Fail(carrier.CapabilityCreateShipment, carrier.KindAuth, 403, "Forbidden")

	env := envelope(t, execute(t, r, `mutation($input: CreateShipmentInput!) {
		createShipment(input: $input) { success data }
	}`, map[string]any{"input": map[string]any{
		"customerName":  "Asha Rao",
		"customerPhone": "9876543210",
		"address":       map[string]any{"line1": "12 Marine Drive", "city": "Mumbai", "state": "MH", "pincode": "400001"},
		"paymentMode":   "Prepaid",
		"totalAmount":   900,
		"weight":        300,
		"quantity":      1,
		"productsDesc":  "Poster",
	}}), "createShipment")

	assert.Equal(t, true, env["success"])
	data := object(t, env["data"])
	shipment := object(t, data["shipment"])
	assert.Equal(t, "local", shipment["provenance"])
	assert.Regexp(t, `^LOCAL-`, shipment["waybill"])
	carrierErr := object(t, data["carrierError"])
	assert.Equal(t, "auth", carrierErr["kind"])
	assert.Equal(t, float64(403), carrierErr["status"])
}

func TestMutation_RequestPickup_AuthFailure(t *testing.T) {
	r, gateway := newTestResolver(t)

	created := envelope(t, execute(t, r, `mutation($input: WarehouseInput!) {
		createWarehouse(input: $input) { success data { carrierSynced } }
	}`, map[string]any{"input": map[string]any{
		"name":    warehouseName,
		"email":   "ops@example.com",
		"phone":   "9876543210",
		"address": map[string]any{"line1": "Plot 4, MIDC", "city": "Mumbai", "state": "MH", "pincode": "400093"},
	}}), "createWarehouse")
	require.Equal(t, true, created["success"])

	gateway.Fail(carrier.CapabilityRequestPickup, carrier.KindAuth, 401, "Unauthorized")

	env := envelope(t, execute(t, r, `mutation($input: PickupInput!) {
		requestPickup(input: $input) { success data error }
	}`, map[string]any{"input": map[string]any{
		"warehouseName":    warehouseName,
		"pickupDate":       time.Now().Add(24 * time.Hour).Format(time.RFC3339),
		"expectedPackages": 1,
	}}), "requestPickup")

	assert.Equal(t, false, env["success"])
	assert.Nil(t, env["data"])

	errObj := object(t, env["error"])
	assert.Equal(t, "auth", errObj["kind"])
	assert.Equal(t, float64(401), errObj["status"])
	assert.Equal(t, "request_pickup", errObj["capability"])

	diagnostics := object(t, errObj["diagnostics"])
	assert.Equal(t, warehouseName, diagnostics["name"])
	assert.Empty(t, diagnostics["issues"])
	causes, ok := diagnostics["likelyCauses"].([]any)
	require.True(t, ok)
	require.NotEmpty(t, causes)
	assert.Contains(t, causes[0], "token permissions")
}

func TestMutation_RequestPickup_UnknownWarehouse(t *testing.T) {
	r, _ := newTestResolver(t)

	env := envelope(t, execute(t, r, `mutation {
		requestPickup(input: {warehouseName: "Nowhere", pickupDate: "2030-01-02T10:00:00Z", expectedPackages: 1}) { success error }
	}`, nil), "requestPickup")

	assert.Equal(t, false, env["success"])
	assert.Equal(t, graphql.KindNotFoundRecord, object(t, env["error"])["kind"])
}

func TestQuery_TrackShipment_CarrierDown(t *testing.T) {
	r, gateway := newTestResolver(t)
	data := completeOrder(t, r, checkoutInput("Prepaid", posterItem()))
	waybill := object(t, data["shipment"])["waybill"]

	gateway.Fail(carrier.CapabilityTrackWaybill, carrier.KindNetwork, 503, "Service Unavailable")

	env := envelope(t, execute(t, r, `query($wb: String!) { trackShipment(waybill: $wb) { success data } }`,
		map[string]any{"wb": waybill}), "trackShipment")

	assert.Equal(t, true, env["success"])
	tracked := object(t, env["data"])
	assert.Equal(t, "network", object(t, tracked["error"])["kind"])
	events, ok := object(t, tracked["shipment"])["trackingEvents"].([]any)
	require.True(t, ok)
	require.Len(t, events, 1)
	assert.Equal(t, "synthesized", object(t, events[0])["source"])
}

func TestQuery_NotFoundRecordIsNotCarrierNotFound(t *testing.T) {
	r, _ := newTestResolver(t)

	env := envelope(t, execute(t, r, `{ trackReturnPickup(returnId: "missing") { success error } }`, nil), "trackReturnPickup")

	assert.Equal(t, false, env["success"])
	assert.Equal(t, graphql.KindNotFoundRecord, object(t, env["error"])["kind"])
}

func TestMutation_ReturnFlow(t *testing.T) {
	r, _ := newTestResolver(t)
	ctx := context.Background()

	data := completeOrder(t, r, checkoutInput("Prepaid", posterItem(), digitalItem()))
	orderID := data["orderId"].(string)
	require.Equal(t, "processing", data["status"])

	order := object(t, envelope(t, execute(t, r, `query($id: String!) { order(orderId: $id) { data } }`,
		map[string]any{"id": orderID}), "order")["data"])
	items := order["items"].([]any)
	var posterID, digitalID string
	for _, it := range items {
		item := object(t, it)
		if item["productType"] == "digital" {
			digitalID = item["id"].(string)
		} else {
			posterID = item["id"].(string)
		}
	}

	// Not completed yet.
	eligibility := object(t, envelope(t, execute(t, r, `query($o: String!, $i: String!) {
		isEligibleForReturn(orderId: $o, orderItemId: $i) { data }
	}`, map[string]any{"o": orderID, "i": posterID}), "isEligibleForReturn")["data"])
	assert.Equal(t, false, eligibility["eligible"])

	env := envelope(t, execute(t, r, `mutation($id: String!) { updateOrderStatus(orderId: $id, status: COMPLETED) { success data { status } } }`,
		map[string]any{"id": orderID}), "updateOrderStatus")
	require.Equal(t, true, env["success"])
	assert.Equal(t, "completed", object(t, env["data"])["status"])

	env = envelope(t, r.Execute(ctx, graphql.Request{
		Query: `mutation($input: CreateReturnInput!) { createReturnRequest(input: $input) { success error } }`,
		Variables: map[string]any{"input": map[string]any{
			"orderId": orderID, "orderItemId": digitalID, "customerId": "cust-1", "reason": "Changed my mind",
		}},
	}), "createReturnRequest")
	assert.Equal(t, false, env["success"])
	assert.Equal(t, graphql.KindIneligible, object(t, env["error"])["kind"])
	assert.Equal(t, "Digital products cannot be returned", object(t, env["error"])["message"])

	env = envelope(t, execute(t, r, `mutation($input: CreateReturnInput!) { createReturnRequest(input: $input) { success data } }`,
		map[string]any{"input": map[string]any{
			"orderId": orderID, "orderItemId": posterID, "customerId": "cust-1", "reason": "Damaged corner",
		}}), "createReturnRequest")
	require.Equal(t, true, env["success"])
	returnID := object(t, object(t, env["data"])["return"])["id"].(string)

	env = envelope(t, execute(t, r, `mutation($id: String!) { updateReturnStatus(returnId: $id, status: COMPLETED) { success error } }`,
		map[string]any{"id": returnID}), "updateReturnStatus")
	assert.Equal(t, false, env["success"])
	assert.Equal(t, graphql.KindInvalidTransition, object(t, env["error"])["kind"])

	env = envelope(t, execute(t, r, `mutation($id: String!) {
		updateReturnStatus(returnId: $id, status: APPROVED, adminNote: "ok", refundAmount: 1500) { success data }
	}`, map[string]any{"id": returnID}), "updateReturnStatus")
	require.Equal(t, true, env["success"])
	approved := object(t, env["data"])
	assert.Equal(t, "approved", approved["status"])
	assert.Equal(t, float64(1500), approved["refundAmount"])

	env = envelope(t, execute(t, r, `mutation($id: String!) { scheduleReturnPickup(returnId: $id) { success data { status trackingNumber } } }`,
		map[string]any{"id": returnID}), "scheduleReturnPickup")
	require.Equal(t, true, env["success"])
	scheduled := object(t, env["data"])
	assert.Equal(t, "processing", scheduled["status"])
	assert.NotEmpty(t, scheduled["trackingNumber"])

	env = envelope(t, execute(t, r, `query($c: String!) { customerReturns(customerId: $c) { data { id status } } }`,
		map[string]any{"c": "cust-1"}), "customerReturns")
	list := env["data"].([]any)
	require.Len(t, list, 1)
	assert.Equal(t, returnID, object(t, list[0])["id"])
}

func TestMutation_ScheduleReturnPickup_CarrierFailure(t *testing.T) {
	r, gateway := newTestResolver(t)

	data := completeOrder(t, r, checkoutInput("Prepaid", posterItem()))
	orderID := data["orderId"].(string)
	envelope(t, execute(t, r, `mutation($id: String!) { updateOrderStatus(orderId: $id, status: "completed") { success } }`,
		map[string]any{"id": orderID}), "updateOrderStatus")
	order := object(t, envelope(t, execute(t, r, `query($id: String!) { order(orderId: $id) { data } }`,
		map[string]any{"id": orderID}), "order")["data"])
	itemID := object(t, order["items"].([]any)[0])["id"]

	env := envelope(t, execute(t, r, `mutation($input: CreateReturnInput!) { createReturnRequest(input: $input) { data } }`,
		map[string]any{"input": map[string]any{"orderId": orderID, "orderItemId": itemID, "reason": "Wrong size"}}), "createReturnRequest")
	returnID := object(t, object(t, env["data"])["return"])["id"]
	envelope(t, execute(t, r, `mutation($id: String!) { updateReturnStatus(returnId: $id, status: APPROVED) { success } }`,
		map[string]any{"id": returnID}), "updateReturnStatus")

	gateway.Fail(carrier.CapabilityScheduleReversePickup, carrier.KindValidation, 400, "Pincode not serviceable")

	env = envelope(t, execute(t, r, `mutation($id: String!) { scheduleReturnPickup(returnId: $id) { success error } }`,
		map[string]any{"id": returnID}), "scheduleReturnPickup")
	assert.Equal(t, false, env["success"])
	errObj := object(t, env["error"])
	assert.Equal(t, "validation", errObj["kind"])
	assert.Equal(t, float64(400), errObj["status"])

	env = envelope(t, execute(t, r, `query($id: String!) { returnRequest(returnId: $id) { data { status } } }`,
		map[string]any{"id": returnID}), "returnRequest")
	assert.Equal(t, "approved", object(t, env["data"])["status"])
}

func TestMutation_RefreshTracking(t *testing.T) {
	r, gateway := newTestResolver(t)
	data := completeOrder(t, r, checkoutInput("Prepaid", posterItem()))
	waybill := object(t, data["shipment"])["waybill"].(string)
	gateway.SetTracking(waybill, carrier.StatusInTransit, carrier.TrackingEvent{
		Status: carrier.StatusInTransit, Location: "Bhiwandi Hub", Timestamp: time.Now().UTC().Truncate(time.Second),
	})

	env := envelope(t, execute(t, r, `mutation($wbs: [String!]) {
		refreshTracking(waybills: $wbs) { success data { waybill error shipment { status } } }
	}`, map[string]any{"wbs": []any{waybill, "UNKNOWN1"}}), "refreshTracking")

	require.Equal(t, true, env["success"])
	results := env["data"].([]any)
	require.Len(t, results, 2)

	first := object(t, results[0])
	assert.Equal(t, waybill, first["waybill"])
	assert.Nil(t, first["error"])
	assert.Equal(t, "in_transit", object(t, first["shipment"])["status"])

	second := object(t, results[1])
	assert.Equal(t, graphql.KindNotFoundRecord, object(t, second["error"])["kind"])
}

func TestQuery_RateQuoteAndWaybills(t *testing.T) {
	r, _ := newTestResolver(t)

	resp := execute(t, r, `query {
		rateQuote(input: {originPincode: "400093", destinationPincode: "110001", weight: 500, paymentMode: "Prepaid"}) { success data }
	}`, nil)
	env := envelope(t, resp, "rateQuote")
	assert.Equal(t, true, env["success"])
	assert.Contains(t, object(t, env["data"]), "amount")

	resp = execute(t, r, `mutation { generateWaybills(count: 3) { success data { waybills } } }`, nil)
	env = envelope(t, resp, "generateWaybills")
	assert.Equal(t, true, env["success"])
	assert.Len(t, object(t, env["data"])["waybills"], 3)
}

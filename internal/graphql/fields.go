package graphql

import (
	"context"
	"fmt"
	"strings"

	"github.com/tournevent/postershop/internal/domain"
	"github.com/tournevent/postershop/internal/fulfillment"
	"github.com/tournevent/postershop/internal/returns"
	"github.com/tournevent/postershop/pkg/carrier"
)

func (r *Resolver) queryFields() map[string]fieldFunc {
	return map[string]fieldFunc{
		"health":              r.health,
		"order":               r.order,
		"orders":              r.orders,
		"isEligibleForReturn": r.isEligibleForReturn,
		"customerReturns":     r.customerReturns,
		"returnRequest":       r.returnRequest,
		"returns":             r.listReturns,
		"trackReturnPickup":   r.trackReturnPickup,
		"shipment":            r.shipment,
		"shipments":           r.shipments,
		"warehouses":          r.warehouses,
		"trackShipment":       r.trackShipment,
		"checkPincode":        r.checkPincode,
		"rateQuote":           r.rateQuote,
	}
}

func (r *Resolver) mutationFields() map[string]fieldFunc {
	return map[string]fieldFunc{
		"completeOrder":            r.completeOrder,
		"updateOrderStatus":        r.updateOrderStatus,
		"createReturnRequest":      r.createReturnRequest,
		"updateReturnStatus":       r.updateReturnStatus,
		"scheduleReturnPickup":     r.scheduleReturnPickup,
		"cancelReturnPickup":       r.cancelReturnPickup,
		"updateReturnFromTracking": r.updateReturnFromTracking,
		"createShipment":           r.createShipment,
		"createWarehouse":          r.createWarehouse,
		"updateWarehouse":          r.updateWarehouse,
		"requestPickup":            r.requestPickup,
		"refreshTracking":          r.refreshTracking,
		"generateWaybills":         r.generateWaybills,
	}
}

// ============================================================================
// Argument helpers
// ============================================================================

func (a args) str(name string) string {
	s, _ := a[name].(string)
	return s
}

func (a args) required(name string) (string, error) {
	s := strings.TrimSpace(a.str(name))
	if s == "" {
		return "", domain.NewValidation(name, "is required")
	}
	return s, nil
}

func (a args) boolean(name string) bool {
	b, _ := a[name].(bool)
	return b
}

// into decodes argument name into out. Missing arguments leave out as is.
func (a args) into(name string, out any) error {
	v, set := a[name]
	if !set || v == nil {
		return nil
	}
	if err := decode(v, out); err != nil {
		return domain.NewValidation(name, fmt.Sprintf("malformed value: %v", err))
	}
	return nil
}

// enum normalizes a GraphQL enum or string argument to a lower-case value.
func (a args) enum(name string) string {
	return strings.ToLower(strings.TrimSpace(a.str(name)))
}

// ============================================================================
// Queries
// ============================================================================

type healthStatus struct {
	Status            string `json:"status"`
	Service           string `json:"service"`
	Version           string `json:"version"`
	Carrier           string `json:"carrier,omitempty"`
	CarrierConfigured bool   `json:"carrierConfigured"`
}

func (r *Resolver) health(ctx context.Context, a args) *Result {
	h := healthStatus{Status: "ok", Service: r.Info.Service, Version: r.Info.Version}
	if r.Carrier != nil {
		h.Carrier = r.Carrier.Name()
		h.CarrierConfigured = r.Carrier.Configured()
	}
	return ok(h)
}

func (r *Resolver) order(ctx context.Context, a args) *Result {
	id, err := a.required("orderId")
	if err != nil {
		return fail(err)
	}
	order, err := r.Orders.GetOrder(ctx, id)
	if err != nil {
		return fail(err)
	}
	return ok(order)
}

func (r *Resolver) orders(ctx context.Context, a args) *Result {
	var filter domain.OrderFilter
	if err := a.into("filter", &filter); err != nil {
		return fail(err)
	}
	orders, err := r.Orders.ListOrders(ctx, filter)
	if err != nil {
		return fail(err)
	}
	return ok(orders)
}

func (r *Resolver) isEligibleForReturn(ctx context.Context, a args) *Result {
	orderID, err := a.required("orderId")
	if err != nil {
		return fail(err)
	}
	itemID, err := a.required("orderItemId")
	if err != nil {
		return fail(err)
	}
	e, err := r.Returns.IsEligibleForReturn(ctx, orderID, itemID)
	if err != nil {
		return fail(err)
	}
	return ok(e)
}

func (r *Resolver) customerReturns(ctx context.Context, a args) *Result {
	list, err := r.Returns.GetCustomerReturns(ctx, a.str("customerId"))
	if err != nil {
		return fail(err)
	}
	return ok(list)
}

func (r *Resolver) returnRequest(ctx context.Context, a args) *Result {
	id, err := a.required("returnId")
	if err != nil {
		return fail(err)
	}
	rr, err := r.Returns.GetReturnRequest(ctx, id)
	if err != nil {
		return fail(err)
	}
	return ok(rr)
}

func (r *Resolver) listReturns(ctx context.Context, a args) *Result {
	var filter domain.ReturnFilter
	if err := a.into("filter", &filter); err != nil {
		return fail(err)
	}
	filter.Status = domain.ReturnStatus(strings.ToLower(string(filter.Status)))
	list, err := r.Returns.ListReturns(ctx, filter)
	if err != nil {
		return fail(err)
	}
	return ok(list)
}

func (r *Resolver) trackReturnPickup(ctx context.Context, a args) *Result {
	id, err := a.required("returnId")
	if err != nil {
		return fail(err)
	}
	tr, err := r.Returns.TrackReturnPickup(ctx, id)
	if err != nil {
		return fail(err)
	}
	return ok(tr)
}

func (r *Resolver) shipment(ctx context.Context, a args) *Result {
	waybill, err := a.required("waybill")
	if err != nil {
		return fail(err)
	}
	s, err := r.Orders.GetShipment(ctx, waybill)
	if err != nil {
		return fail(err)
	}
	return ok(s)
}

func (r *Resolver) shipments(ctx context.Context, a args) *Result {
	var filter domain.ShipmentFilter
	if err := a.into("filter", &filter); err != nil {
		return fail(err)
	}
	filter.Status = domain.ShipmentStatus(strings.ToLower(string(filter.Status)))
	list, err := r.Orders.ListShipments(ctx, filter)
	if err != nil {
		return fail(err)
	}
	return ok(list)
}

func (r *Resolver) warehouses(ctx context.Context, a args) *Result {
	list, err := r.Orders.ListWarehouses(ctx, a.boolean("activeOnly"))
	if err != nil {
		return fail(err)
	}
	return ok(list)
}

// trackResult is a refreshed waybill. Error is set when the carrier could not
// answer and the shipment carries a synthesized event instead.
type trackResult struct {
	*fulfillment.TrackOutcome
	Error *Error `json:"error,omitempty"`
}

func toTrackResult(out *fulfillment.TrackOutcome) trackResult {
	return trackResult{TrackOutcome: out, Error: toError(out.Err)}
}

func (r *Resolver) trackShipment(ctx context.Context, a args) *Result {
	waybill, err := a.required("waybill")
	if err != nil {
		return fail(err)
	}
	out, err := r.Orders.TrackShipment(ctx, waybill)
	if err != nil {
		return fail(err)
	}
	return ok(toTrackResult(out))
}

func (r *Resolver) checkPincode(ctx context.Context, a args) *Result {
	res, err := r.Orders.CheckPincode(ctx, strings.TrimSpace(a.str("pincode")))
	if err != nil {
		return fail(err)
	}
	return ok(res)
}

func (r *Resolver) rateQuote(ctx context.Context, a args) *Result {
	var req carrier.RateRequest
	if err := a.into("input", &req); err != nil {
		return fail(err)
	}
	quote, err := r.Orders.GetRateQuote(ctx, &req)
	if err != nil {
		return fail(err)
	}
	return ok(quote)
}

// ============================================================================
// Mutations
// ============================================================================

func (r *Resolver) completeOrder(ctx context.Context, a args) *Result {
	var in fulfillment.CompleteOrderInput
	if err := a.into("input", &in); err != nil {
		return fail(err)
	}
	completion, err := r.Orders.CompleteOrder(ctx, in)
	if err != nil {
		return fail(err)
	}
	return ok(completion)
}

func (r *Resolver) updateOrderStatus(ctx context.Context, a args) *Result {
	id, err := a.required("orderId")
	if err != nil {
		return fail(err)
	}
	order, err := r.Orders.UpdateOrderStatus(ctx, id, domain.OrderStatus(a.enum("status")))
	if err != nil {
		return fail(err)
	}
	return ok(order)
}

func (r *Resolver) createReturnRequest(ctx context.Context, a args) *Result {
	var in returns.CreateReturnInput
	if err := a.into("input", &in); err != nil {
		return fail(err)
	}
	res, err := r.Returns.CreateReturnRequest(ctx, in)
	if err != nil {
		return fail(err)
	}
	return ok(res)
}

func (r *Resolver) updateReturnStatus(ctx context.Context, a args) *Result {
	id, err := a.required("returnId")
	if err != nil {
		return fail(err)
	}
	change := returns.StatusChange{
		AdminNote:    a.str("adminNote"),
		RefundMethod: a.str("refundMethod"),
	}
	if err := a.into("refundAmount", &change.RefundAmount); err != nil {
		return fail(err)
	}
	rr, err := r.Returns.UpdateReturnStatus(ctx, id, domain.ReturnStatus(a.enum("status")), change)
	if err != nil {
		return fail(err)
	}
	return ok(rr)
}

func (r *Resolver) scheduleReturnPickup(ctx context.Context, a args) *Result {
	id, err := a.required("returnId")
	if err != nil {
		return fail(err)
	}
	var prefs returns.PickupPreferences
	if err := a.into("preferences", &prefs); err != nil {
		return fail(err)
	}
	rr, err := r.Returns.ScheduleReturnPickup(ctx, id, prefs)
	if err != nil {
		return fail(err)
	}
	return ok(rr)
}

func (r *Resolver) cancelReturnPickup(ctx context.Context, a args) *Result {
	id, err := a.required("returnId")
	if err != nil {
		return fail(err)
	}
	rr, err := r.Returns.CancelReturnPickup(ctx, id, a.str("reason"))
	if err != nil {
		return fail(err)
	}
	return ok(rr)
}

type returnSync struct {
	Return  *domain.ReturnRequest `json:"return"`
	Changed bool                  `json:"changed"`
}

func (r *Resolver) updateReturnFromTracking(ctx context.Context, a args) *Result {
	id, err := a.required("returnId")
	if err != nil {
		return fail(err)
	}
	rr, changed, err := r.Returns.UpdateReturnStatusFromTracking(ctx, id)
	if err != nil {
		return fail(err)
	}
	return ok(returnSync{Return: rr, Changed: changed})
}

// shipmentResult and warehouseResult expose the carrier failure that the
// service absorbed.
type shipmentResult struct {
	*fulfillment.ShipmentOutcome
	CarrierError *Error `json:"carrierError,omitempty"`
}

type warehouseResult struct {
	*fulfillment.WarehouseOutcome
	CarrierError *Error `json:"carrierError,omitempty"`
}

func carrierError(cerr *carrier.Error) *Error {
	if cerr == nil {
		return nil
	}
	return toError(cerr)
}

func (r *Resolver) createShipment(ctx context.Context, a args) *Result {
	var in fulfillment.CreateShipmentInput
	if err := a.into("input", &in); err != nil {
		return fail(err)
	}
	out, err := r.Orders.CreateShipment(ctx, in)
	if err != nil {
		return fail(err)
	}
	return ok(shipmentResult{ShipmentOutcome: out, CarrierError: carrierError(out.CarrierErr)})
}

func (r *Resolver) createWarehouse(ctx context.Context, a args) *Result {
	var in fulfillment.WarehouseInput
	if err := a.into("input", &in); err != nil {
		return fail(err)
	}
	out, err := r.Orders.CreateWarehouse(ctx, in)
	if err != nil {
		return fail(err)
	}
	return ok(warehouseResult{WarehouseOutcome: out, CarrierError: carrierError(out.CarrierErr)})
}

func (r *Resolver) updateWarehouse(ctx context.Context, a args) *Result {
	id, err := a.required("id")
	if err != nil {
		return fail(err)
	}
	var u domain.WarehouseUpdate
	if err := a.into("input", &u); err != nil {
		return fail(err)
	}
	out, err := r.Orders.UpdateWarehouse(ctx, id, u)
	if err != nil {
		return fail(err)
	}
	return ok(warehouseResult{WarehouseOutcome: out, CarrierError: carrierError(out.CarrierErr)})
}

func (r *Resolver) requestPickup(ctx context.Context, a args) *Result {
	var in fulfillment.PickupInput
	if err := a.into("input", &in); err != nil {
		return fail(err)
	}
	out, err := r.Orders.RequestPickup(ctx, in)
	if err != nil {
		return fail(err)
	}
	return ok(out)
}

func (r *Resolver) refreshTracking(ctx context.Context, a args) *Result {
	var waybills []string
	if err := a.into("waybills", &waybills); err != nil {
		return fail(err)
	}
	outcomes, err := r.Orders.RefreshTracking(ctx, waybills)
	if err != nil {
		return fail(err)
	}
	results := make([]trackResult, len(outcomes))
	for i, out := range outcomes {
		results[i] = toTrackResult(out)
	}
	return ok(results)
}

func (r *Resolver) generateWaybills(ctx context.Context, a args) *Result {
	var count int
	if err := a.into("count", &count); err != nil {
		return fail(err)
	}
	batch, err := r.Orders.GenerateWaybills(ctx, count)
	if err != nil {
		return fail(err)
	}
	return ok(batch)
}

package fulfillment

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tournevent/postershop/internal/domain"
	"github.com/tournevent/postershop/internal/notify"
	"github.com/tournevent/postershop/pkg/carrier"
)

// CreateShipmentInput describes a forward shipment. OrderID is optional for
// manual shipments.
type CreateShipmentInput struct {
	OrderID       *string            `json:"orderId,omitempty"`
	CustomerName  string             `json:"customerName"`
	CustomerPhone string             `json:"customerPhone"`
	CustomerEmail string             `json:"customerEmail,omitempty"`
	Address       domain.Address     `json:"address"`
	PaymentMode   domain.PaymentMode `json:"paymentMode"`
	CODAmount     float64            `json:"codAmount"`
	TotalAmount   float64            `json:"totalAmount"`
	Weight        float64            `json:"weight"`
	Quantity      int                `json:"quantity"`
	ProductsDesc  string             `json:"productsDesc"`
	WarehouseName string             `json:"warehouseName"`
}

// ShipmentOutcome is a recorded shipment plus what went wrong on the way.
type ShipmentOutcome struct {
	Shipment *domain.Shipment `json:"shipment"`
	Warnings []string         `json:"warnings,omitempty"`
	// CarrierErr is the classified failure that forced a local waybill.
	CarrierErr *carrier.Error `json:"-"`
}

// CreateShipment books a manual shipment. A carrier failure still records the
// shipment under a local waybill.
func (o *Orchestrator) CreateShipment(ctx context.Context, in CreateShipmentInput) (*ShipmentOutcome, error) {
	if in.OrderID != nil && *in.OrderID != "" {
		if _, err := o.orders.GetOrder(ctx, *in.OrderID); err != nil {
			return nil, err
		}
	}
	if in.PaymentMode == "" {
		in.PaymentMode = domain.PaymentModePrepaid
	}
	if in.WarehouseName == "" {
		in.WarehouseName = o.config.DefaultWarehouse
	}
	return o.recordShipment(context.WithoutCancel(ctx), in)
}

// recordShipment asks the carrier for a waybill and writes the shipment to the
// ledger whatever the carrier answered. Only a ledger failure is an error.
func (o *Orchestrator) recordShipment(ctx context.Context, in CreateShipmentInput) (*ShipmentOutcome, error) {
	now := o.now()
	shipment := &domain.Shipment{
		ID:              uuid.New().String(),
		OrderID:         in.OrderID,
		CustomerName:    in.CustomerName,
		CustomerPhone:   in.CustomerPhone,
		DeliveryAddress: in.Address,
		PaymentMode:     in.PaymentMode,
		CODAmount:       in.CODAmount,
		Weight:          in.Weight,
		WarehouseName:   in.WarehouseName,
		Status:          domain.ShipmentStatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	out := &ShipmentOutcome{Shipment: shipment}

	ref := uuid.New().String()
	if in.OrderID != nil {
		ref = *in.OrderID
	}

	res, err := o.gateway.CreateShipment(ctx, &carrier.ShipmentRequest{
		OrderRef:       ref,
		ConsigneeName:  in.CustomerName,
		ConsigneePhone: in.CustomerPhone,
		ConsigneeEmail: in.CustomerEmail,
		Address:        toCarrierAddress(in.Address),
		PaymentMode:    carrier.PaymentMode(in.PaymentMode),
		CODAmount:      in.CODAmount,
		TotalAmount:    in.TotalAmount,
		Weight:         in.Weight,
		Quantity:       in.Quantity,
		ProductsDesc:   in.ProductsDesc,
		WarehouseName:  in.WarehouseName,
	})
	if err != nil {
		cerr := classify(o.gateway.Name(), carrier.CapabilityCreateShipment, err)
		shipment.Waybill = localWaybill()
		shipment.Provenance = domain.ProvenanceLocal
		shipment.CarrierError = cerr.Error()
		out.CarrierErr = cerr
		out.Warnings = append(out.Warnings, fmt.Sprintf(
			"carrier rejected shipment (%s): %s; recorded local waybill %s for reconciliation",
			cerr.Kind, cerr.Message, shipment.Waybill))

		o.logger.Warn("Carrier shipment failed, recording local waybill",
			zap.String("order_ref", ref),
			zap.String("kind", string(cerr.Kind)),
			zap.Int("status", cerr.StatusCode),
			zap.String("waybill", shipment.Waybill),
		)
	} else {
		shipment.Waybill = res.Waybill
		shipment.Provenance = domain.ProvenanceCarrier
		if res.Source == carrier.SourceFallback {
			shipment.Provenance = domain.ProvenanceMock
			out.Warnings = append(out.Warnings, "waybill "+res.Waybill+" is carrier mock data, not a live booking")
		}
	}

	if err := o.ledger.CreateShipment(ctx, shipment); err != nil {
		o.logger.Error("Failed to record shipment",
			zap.String("waybill", shipment.Waybill),
			zap.Error(err),
		)
		return nil, fmt.Errorf("record shipment %s: %w", shipment.Waybill, err)
	}
	o.metrics.RecordShipment(string(shipment.Provenance))

	o.logger.Info("Shipment recorded",
		zap.String("waybill", shipment.Waybill),
		zap.String("provenance", string(shipment.Provenance)),
		zap.String("payment_mode", string(shipment.PaymentMode)),
	)
	return out, nil
}

// localWaybill mints a waybill for a shipment the carrier did not accept.
func localWaybill() string {
	id := strings.ReplaceAll(uuid.New().String(), "-", "")
	return domain.LocalWaybillPrefix + strings.ToUpper(id[:12])
}

// classify returns err as a carrier error, wrapping foreign errors as network
// failures.
func classify(name string, capability carrier.Capability, err error) *carrier.Error {
	if cerr, ok := carrier.AsError(err); ok {
		return cerr
	}
	return carrier.NewError(name, carrier.KindNetwork, "UNKNOWN", err.Error()).
		WithCapability(capability).
		WithCause(err)
}

func toCarrierAddress(a domain.Address) carrier.Address {
	return carrier.Address{
		Line1:   a.Line1,
		Line2:   a.Line2,
		City:    a.City,
		State:   a.State,
		Pincode: a.Pincode,
		Country: a.Country,
		Phone:   a.Phone,
	}
}

// ListShipments returns shipments matching filter.
func (o *Orchestrator) ListShipments(ctx context.Context, filter domain.ShipmentFilter) ([]*domain.Shipment, error) {
	return o.ledger.ListShipments(ctx, filter)
}

// GetShipment returns one shipment.
func (o *Orchestrator) GetShipment(ctx context.Context, waybill string) (*domain.Shipment, error) {
	return o.ledger.GetShipment(ctx, waybill)
}

// ============================================================================
// Warehouses
// ============================================================================

// WarehouseInput describes a pickup location.
type WarehouseInput struct {
	Name          string         `json:"name"`
	Email         string         `json:"email"`
	Phone         string         `json:"phone"`
	Address       domain.Address `json:"address"`
	ReturnAddress domain.Address `json:"returnAddress"`
}

// WarehouseOutcome is a recorded warehouse and the carrier's answer.
type WarehouseOutcome struct {
	Warehouse     *domain.Warehouse    `json:"warehouse"`
	CarrierSynced bool                 `json:"carrierSynced"`
	Diagnostics   *carrier.Diagnostics `json:"diagnostics,omitempty"`
	Warnings      []string             `json:"warnings,omitempty"`
	CarrierErr    *carrier.Error       `json:"-"`
}

// CreateWarehouse records a warehouse and registers it with the carrier. The
// ledger keeps the warehouse even if registration fails.
func (o *Orchestrator) CreateWarehouse(ctx context.Context, in WarehouseInput) (*WarehouseOutcome, error) {
	if strings.TrimSpace(in.Name) == "" {
		return nil, domain.NewValidation("name", "is required")
	}
	if in.ReturnAddress.Line1 == "" {
		in.ReturnAddress = in.Address
	}

	now := o.now()
	w := &domain.Warehouse{
		ID:            uuid.New().String(),
		Name:          in.Name,
		Email:         in.Email,
		Phone:         in.Phone,
		Address:       in.Address,
		ReturnAddress: in.ReturnAddress,
		Active:        true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := o.ledger.CreateWarehouse(ctx, w); err != nil {
		return nil, err
	}

	out := &WarehouseOutcome{Warehouse: w}
	if d := carrier.AnalyzeWarehouseName(w.Name, ""); d.HasFormatIssues() {
		out.Diagnostics = d
		out.Warnings = append(out.Warnings, "warehouse name has formatting issues the carrier may not match")
	}

	_, err := o.gateway.RegisterWarehouse(context.WithoutCancel(ctx), toWarehouseRequest(w))
	o.syncOutcome(out, carrier.CapabilityRegisterWarehouse, err)
	return out, nil
}

// UpdateWarehouse applies u in the ledger and pushes the result to the carrier.
func (o *Orchestrator) UpdateWarehouse(ctx context.Context, id string, u domain.WarehouseUpdate) (*WarehouseOutcome, error) {
	if u.Name != nil && strings.TrimSpace(*u.Name) == "" {
		return nil, domain.NewValidation("name", "cannot be empty")
	}
	w, err := o.ledger.UpdateWarehouse(ctx, id, u)
	if err != nil {
		return nil, err
	}

	out := &WarehouseOutcome{Warehouse: w}
	_, err = o.gateway.EditWarehouse(context.WithoutCancel(ctx), toWarehouseRequest(w))
	o.syncOutcome(out, carrier.CapabilityEditWarehouse, err)
	return out, nil
}

func (o *Orchestrator) syncOutcome(out *WarehouseOutcome, capability carrier.Capability, err error) {
	if err == nil {
		out.CarrierSynced = true
		return
	}
	cerr := classify(o.gateway.Name(), capability, err)
	out.CarrierErr = cerr
	out.Warnings = append(out.Warnings, fmt.Sprintf("carrier %s failed (%s): %s", capability, cerr.Kind, cerr.Message))
	o.logger.Warn("Warehouse not synced with carrier",
		zap.String("warehouse", out.Warehouse.Name),
		zap.String("capability", string(capability)),
		zap.String("kind", string(cerr.Kind)),
	)
}

func toWarehouseRequest(w *domain.Warehouse) *carrier.WarehouseRequest {
	return &carrier.WarehouseRequest{
		Name:          w.Name,
		Email:         w.Email,
		Phone:         w.Phone,
		Address:       toCarrierAddress(w.Address),
		ReturnAddress: toCarrierAddress(w.ReturnAddress),
	}
}

// ListWarehouses returns warehouses, optionally only active ones.
func (o *Orchestrator) ListWarehouses(ctx context.Context, activeOnly bool) ([]*domain.Warehouse, error) {
	return o.ledger.ListWarehouses(ctx, activeOnly)
}

// ============================================================================
// Pickups
// ============================================================================

// PickupInput asks the carrier to collect shipments from a warehouse.
type PickupInput struct {
	WarehouseName    string    `json:"warehouseName"`
	PickupDate       time.Time `json:"pickupDate"`
	PickupTime       string    `json:"pickupTime,omitempty"`
	ExpectedPackages int       `json:"expectedPackages"`
	// Waybills are the shipments this pickup collects.
	Waybills []string `json:"waybills,omitempty"`
}

// PickupOutcome is a scheduled pickup.
type PickupOutcome struct {
	PickupID   string         `json:"pickupId"`
	PickupDate time.Time      `json:"pickupDate"`
	Source     carrier.Source `json:"source"`
	Updated    []string       `json:"updated"`
	Warnings   []string       `json:"warnings,omitempty"`
}

// RequestPickup schedules a carrier pickup for a known, active warehouse. On
// failure the listed shipments are marked failed and the classified carrier
// error is returned.
func (o *Orchestrator) RequestPickup(ctx context.Context, in PickupInput) (*PickupOutcome, error) {
	if in.WarehouseName == "" {
		return nil, domain.NewValidation("warehouseName", "is required")
	}
	wh, err := o.ledger.GetWarehouseByName(ctx, in.WarehouseName)
	if err != nil {
		return nil, err
	}
	if !wh.Active {
		return nil, domain.NewValidation("warehouseName", "warehouse "+wh.Name+" is inactive")
	}
	if in.ExpectedPackages == 0 {
		in.ExpectedPackages = len(in.Waybills)
	}

	ctx = context.WithoutCancel(ctx)
	res, err := o.gateway.RequestPickup(ctx, &carrier.PickupRequest{
		WarehouseName:    wh.Name,
		PickupDate:       in.PickupDate,
		PickupTime:       in.PickupTime,
		ExpectedPackages: in.ExpectedPackages,
	})
	if err != nil {
		cerr := classify(o.gateway.Name(), carrier.CapabilityRequestPickup, err)
		o.logger.Warn("Pickup request failed",
			zap.String("warehouse", wh.Name),
			zap.String("kind", string(cerr.Kind)),
			zap.Int("status", cerr.StatusCode),
		)
		o.markPickupFailed(ctx, in.Waybills, cerr)
		o.alertPickupFailed(ctx, wh, cerr)
		return nil, cerr
	}

	out := &PickupOutcome{
		PickupID:   res.PickupID,
		PickupDate: res.PickupDate,
		Source:     res.Source,
		Updated:    []string{},
	}
	scheduled := domain.PickupStatusScheduled
	for _, waybill := range in.Waybills {
		s, err := o.ledger.GetShipment(ctx, waybill)
		if err != nil {
			out.Warnings = append(out.Warnings, fmt.Sprintf("shipment %s not updated: %v", waybill, err))
			continue
		}
		attempts := s.Pickup.Attempts + 1
		pickupDate := res.PickupDate
		_, err = o.ledger.UpdateShipment(ctx, waybill, domain.ShipmentUpdate{
			PickupID:       &res.PickupID,
			PickupDate:     &pickupDate,
			PickupStatus:   &scheduled,
			PickupAttempts: &attempts,
		})
		if err != nil {
			out.Warnings = append(out.Warnings, fmt.Sprintf("shipment %s not updated: %v", waybill, err))
			continue
		}
		out.Updated = append(out.Updated, waybill)
	}

	o.logger.Info("Pickup scheduled",
		zap.String("warehouse", wh.Name),
		zap.String("pickup_id", res.PickupID),
		zap.Int("shipments", len(out.Updated)),
	)
	return out, nil
}

func (o *Orchestrator) markPickupFailed(ctx context.Context, waybills []string, cerr *carrier.Error) {
	failed := domain.PickupStatusFailed
	msg := cerr.Error()
	for _, waybill := range waybills {
		s, err := o.ledger.GetShipment(ctx, waybill)
		if err != nil {
			continue
		}
		attempts := s.Pickup.Attempts + 1
		if _, err := o.ledger.UpdateShipment(ctx, waybill, domain.ShipmentUpdate{
			PickupStatus:   &failed,
			PickupAttempts: &attempts,
			CarrierError:   &msg,
		}); err != nil {
			o.logger.Error("Failed to record pickup failure",
				zap.String("waybill", waybill),
				zap.Error(err),
			)
		}
	}
}

func (o *Orchestrator) alertPickupFailed(ctx context.Context, wh *domain.Warehouse, cerr *carrier.Error) {
	if o.notifier == nil || o.config.OperatorEmail == "" {
		return
	}
	data := map[string]any{
		"warehouse": wh.Name,
		"kind":      string(cerr.Kind),
		"status":    cerr.StatusCode,
		"message":   cerr.Message,
	}
	if cerr.Diagnostics != nil {
		data["likelyCauses"] = cerr.Diagnostics.LikelyCauses
	}
	if err := o.notifier.Notify(ctx, notify.KindPickupFailed, o.config.OperatorEmail, data); err != nil {
		o.logger.Warn("Failed to send pickup failure alert", zap.Error(err))
	}
}

// ============================================================================
// Carrier passthroughs
// ============================================================================

// GenerateWaybills reserves waybill numbers with the carrier.
func (o *Orchestrator) GenerateWaybills(ctx context.Context, count int) (*carrier.WaybillBatch, error) {
	return o.gateway.GenerateWaybills(ctx, count)
}

// CheckPincode reports whether the carrier serves a pincode.
func (o *Orchestrator) CheckPincode(ctx context.Context, pincode string) (*carrier.PincodeResult, error) {
	return o.gateway.CheckPincode(ctx, pincode)
}

// GetRateQuote prices a shipment between two pincodes.
func (o *Orchestrator) GetRateQuote(ctx context.Context, req *carrier.RateRequest) (*carrier.RateQuote, error) {
	return o.gateway.GetRateQuote(ctx, req)
}

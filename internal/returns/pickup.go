package returns

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/tournevent/postershop/internal/domain"
	"github.com/tournevent/postershop/internal/ledger"
	"github.com/tournevent/postershop/pkg/carrier"
)

// PickupPreferences say where and when to collect a returned item. Empty
// fields default to the order's customer and shipping address.
type PickupPreferences struct {
	CustomerName  string          `json:"customerName,omitempty"`
	CustomerPhone string          `json:"customerPhone,omitempty"`
	Address       *domain.Address `json:"address,omitempty"`
	PreferredDate time.Time       `json:"preferredDate,omitempty"`
}

// ScheduleReturnPickup books a reverse pickup for an approved return and moves
// it to processing. If the carrier refuses, the return is left as it was and
// the classified carrier error is returned; reverse pickups are never stubbed.
func (w *Workflow) ScheduleReturnPickup(ctx context.Context, id string, prefs PickupPreferences) (*domain.ReturnRequest, error) {
	r, err := w.returns.GetReturn(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.Status != domain.ReturnStatusApproved {
		return nil, &domain.InvalidTransitionError{Entity: "return", From: string(r.Status), To: string(domain.ReturnStatusProcessing)}
	}
	if w.config.ReturnWarehouse == "" {
		return nil, domain.NewValidation("returnWarehouse", "no return warehouse is configured")
	}

	order, err := w.orders.GetOrder(ctx, r.OrderID)
	if err != nil {
		return nil, err
	}
	req := &carrier.ReversePickupRequest{
		ReturnRef:     r.ID,
		CustomerName:  firstNonEmpty(prefs.CustomerName, order.CustomerName),
		CustomerPhone: firstNonEmpty(prefs.CustomerPhone, order.CustomerPhone, order.ShippingAddress.Phone),
		PickupAddress: toCarrierAddress(order.ShippingAddress),
		WarehouseName: w.config.ReturnWarehouse,
		ProductsDesc:  r.Product.Title,
		Quantity:      r.Product.Quantity,
		Weight:        w.config.ItemWeight * float64(max(r.Product.Quantity, 1)),
		PreferredDate: prefs.PreferredDate,
	}
	if prefs.Address != nil {
		req.PickupAddress = toCarrierAddress(*prefs.Address)
	}

	res, err := w.gateway.ScheduleReversePickup(context.WithoutCancel(ctx), req)
	if err != nil {
		w.logger.Warn("Reverse pickup failed",
			zap.String("return_id", r.ID),
			zap.String("kind", string(carrier.KindOf(err))),
			zap.Error(err),
		)
		return nil, err
	}

	r.TrackingNumber = res.TrackingNumber
	r.PickupID = res.PickupID
	if err := w.transition(context.WithoutCancel(ctx), r, domain.ReturnStatusProcessing); err != nil {
		// The carrier has booked a pickup the ledger does not know about.
		w.logger.Error("Failed to record reverse pickup",
			zap.String("return_id", r.ID),
			zap.String("tracking_number", res.TrackingNumber),
			zap.Error(err),
		)
		return nil, fmt.Errorf("record reverse pickup %s: %w", res.TrackingNumber, err)
	}
	return r, nil
}

// ReturnTracking is the carrier's view of a reverse pickup.
type ReturnTracking struct {
	ReturnID       string                 `json:"returnId"`
	TrackingNumber string                 `json:"trackingNumber"`
	CarrierStatus  string                 `json:"carrierStatus"`
	MappedStatus   domain.ReturnStatus    `json:"mappedStatus,omitempty"`
	Events         []domain.TrackingEvent `json:"events"`
	Source         carrier.Source         `json:"source"`
}

// TrackReturnPickup fetches the carrier tracking of a return without changing it.
func (w *Workflow) TrackReturnPickup(ctx context.Context, id string) (*ReturnTracking, error) {
	r, err := w.returns.GetReturn(ctx, id)
	if err != nil {
		return nil, err
	}
	return w.track(ctx, r)
}

func (w *Workflow) track(ctx context.Context, r *domain.ReturnRequest) (*ReturnTracking, error) {
	if r.TrackingNumber == "" {
		return nil, domain.NewValidation("trackingNumber", "no reverse pickup has been scheduled for this return")
	}

	res, err := w.gateway.TrackReversePickup(ctx, r.TrackingNumber)
	if err != nil {
		return nil, err
	}

	source := domain.EventSourceCarrier
	if res.Source == carrier.SourceFallback {
		source = domain.EventSourceSynthesized
	}
	events := make([]domain.TrackingEvent, 0, len(res.Events))
	for _, e := range res.Events {
		events = append(events, domain.TrackingEvent{
			Status:      e.Status,
			Location:    e.Location,
			Timestamp:   e.Timestamp,
			Description: e.Description,
			Source:      source,
		})
	}
	return &ReturnTracking{
		ReturnID:       r.ID,
		TrackingNumber: r.TrackingNumber,
		CarrierStatus:  res.Status,
		MappedStatus:   mapReturnStatus(res.Status),
		Events:         events,
		Source:         res.Source,
	}, nil
}

// mapReturnStatus maps a reverse pickup carrier status to a return status, or
// "" when the carrier status does not move the return.
func mapReturnStatus(carrierStatus string) domain.ReturnStatus {
	switch carrierStatus {
	case carrier.StatusPickedUp, carrier.StatusInTransit, carrier.StatusDeliveredToWarehouse:
		return domain.ReturnStatusProcessing
	case carrier.StatusProcessed:
		return domain.ReturnStatusCompleted
	}
	return ""
}

// UpdateReturnStatusFromTracking reconciles a return with its reverse pickup
// tracking. It writes only when the status changes or new events arrived, and
// reports whether the status changed.
func (w *Workflow) UpdateReturnStatusFromTracking(ctx context.Context, id string) (*domain.ReturnRequest, bool, error) {
	r, err := w.returns.GetReturn(ctx, id)
	if err != nil {
		return nil, false, err
	}
	tr, err := w.track(ctx, r)
	if err != nil {
		return nil, false, err
	}

	fresh := ledger.MergeEvents(r.TrackingEvents, tr.Events)
	r.TrackingEvents = append(r.TrackingEvents, fresh...)

	next := tr.MappedStatus
	if next != "" && next != r.Status && r.Status.CanTransitionTo(next) {
		if err := w.transition(ctx, r, next); err != nil {
			return nil, false, err
		}
		return r, true, nil
	}

	if len(fresh) > 0 {
		r.UpdatedAt = w.now()
		if err := w.returns.UpdateReturn(ctx, r, r.Status); err != nil {
			return nil, false, err
		}
	}
	return r, false, nil
}

// CancelReturnPickup cancels the reverse pickup at the carrier and rejects the
// return. A carrier failure leaves the return untouched.
func (w *Workflow) CancelReturnPickup(ctx context.Context, id, reason string) (*domain.ReturnRequest, error) {
	r, err := w.returns.GetReturn(ctx, id)
	if err != nil {
		return nil, err
	}
	if !r.Status.CanTransitionTo(domain.ReturnStatusRejected) || r.Status == domain.ReturnStatusPending {
		return nil, &domain.InvalidTransitionError{Entity: "return", From: string(r.Status), To: string(domain.ReturnStatusRejected)}
	}

	if r.TrackingNumber != "" {
		if err := w.gateway.CancelReversePickup(context.WithoutCancel(ctx), r.TrackingNumber, reason); err != nil {
			w.logger.Warn("Reverse pickup cancellation failed",
				zap.String("return_id", r.ID),
				zap.String("kind", string(carrier.KindOf(err))),
			)
			return nil, err
		}
	}

	if reason != "" {
		r.AdminNote = reason
	}
	if err := w.transition(context.WithoutCancel(ctx), r, domain.ReturnStatusRejected); err != nil {
		return nil, err
	}
	return r, nil
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

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

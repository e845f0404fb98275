package fulfillment

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tournevent/postershop/internal/domain"
	"github.com/tournevent/postershop/pkg/carrier"
)

// TrackOutcome is the result of refreshing one waybill.
type TrackOutcome struct {
	Waybill  string           `json:"waybill"`
	Shipment *domain.Shipment `json:"shipment,omitempty"`
	// Source is carrier, fallback or local.
	Source string `json:"source"`
	// Err is set when the carrier could not be asked or the ledger write failed.
	Err error `json:"-"`
}

const (
	sourceLocal = "local"

	localBookingNote = "Recorded locally; not yet booked with the carrier"
)

// TrackShipment refreshes one waybill from the carrier, appends new events and
// moves the shipment status. When the carrier cannot answer, a synthesized
// event records that tracking was unavailable.
func (o *Orchestrator) TrackShipment(ctx context.Context, waybill string) (*TrackOutcome, error) {
	s, err := o.ledger.GetShipment(ctx, waybill)
	if err != nil {
		return nil, err
	}
	ctx = context.WithoutCancel(ctx)
	out := &TrackOutcome{Waybill: waybill}

	if s.Provenance == domain.ProvenanceLocal || domain.IsLocalWaybill(waybill) {
		out.Source = sourceLocal
		out.Shipment, err = o.synthesize(ctx, s, localBookingNote)
		return out, err
	}

	res, terr := o.gateway.TrackWaybill(ctx, waybill)
	if terr != nil {
		cerr := classify(o.gateway.Name(), carrier.CapabilityTrackWaybill, terr)
		o.logger.Warn("Tracking unavailable",
			zap.String("waybill", waybill),
			zap.String("kind", string(cerr.Kind)),
		)
		out.Err = cerr
		out.Shipment, err = o.synthesize(ctx, s, "Tracking unavailable: "+string(cerr.Kind)+" error from carrier")
		return out, err
	}
	out.Source = string(res.Source)

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

	updated := s
	if len(events) > 0 {
		if updated, err = o.ledger.AppendTrackingEvents(ctx, waybill, events); err != nil {
			return out, err
		}
	}

	if u, ok := shipmentUpdateFor(updated, res.Status); ok {
		if updated, err = o.ledger.UpdateShipment(ctx, waybill, u); err != nil {
			return out, err
		}
		o.logger.Info("Shipment status updated",
			zap.String("waybill", waybill),
			zap.String("status", string(updated.Status)),
		)
	}
	out.Shipment = updated
	return out, nil
}

// synthesize appends a locally generated event unless the latest event already
// says the same thing.
func (o *Orchestrator) synthesize(ctx context.Context, s *domain.Shipment, note string) (*domain.Shipment, error) {
	if n := len(s.TrackingEvents); n > 0 {
		last := s.TrackingEvents[n-1]
		if last.Source == domain.EventSourceSynthesized && last.Description == note {
			return s, nil
		}
	}
	return o.ledger.AppendTrackingEvents(ctx, s.Waybill, []domain.TrackingEvent{{
		Status:      string(s.Status),
		Timestamp:   o.now(),
		Description: note,
		Source:      domain.EventSourceSynthesized,
	}})
}

// shipmentUpdateFor maps a carrier status onto the shipment. Statuses the
// shipment model does not track are ignored.
func shipmentUpdateFor(s *domain.Shipment, carrierStatus string) (domain.ShipmentUpdate, bool) {
	var next domain.ShipmentStatus
	switch carrierStatus {
	case carrier.StatusManifested, carrier.StatusPending:
		next = domain.ShipmentStatusPending
	case carrier.StatusPickedUp:
		next = domain.ShipmentStatusPickedUp
	case carrier.StatusInTransit:
		next = domain.ShipmentStatusInTransit
	case carrier.StatusDelivered:
		next = domain.ShipmentStatusDelivered
	case carrier.StatusCancelled:
		next = domain.ShipmentStatusCancelled
	default:
		return domain.ShipmentUpdate{}, false
	}

	var u domain.ShipmentUpdate
	if next != s.Status {
		u.Status = &next
	}
	if next != domain.ShipmentStatusPending && next != domain.ShipmentStatusCancelled &&
		s.Pickup.Status == domain.PickupStatusScheduled {
		picked := domain.PickupStatusPickedUp
		u.PickupStatus = &picked
	}
	return u, !u.IsEmpty()
}

// RefreshTracking refreshes many waybills with bounded concurrency. With no
// waybills it refreshes every shipment not yet delivered or cancelled. Per
// waybill failures are reported in the outcomes, not returned.
func (o *Orchestrator) RefreshTracking(ctx context.Context, waybills []string) ([]*TrackOutcome, error) {
	if len(waybills) == 0 {
		open, err := o.openWaybills(ctx)
		if err != nil {
			return nil, err
		}
		waybills = open
	}

	outcomes := make([]*TrackOutcome, len(waybills))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.config.RefreshConcurrency)
	for i, waybill := range waybills {
		g.Go(func() error {
			out, err := o.TrackShipment(gctx, waybill)
			if out == nil {
				out = &TrackOutcome{Waybill: waybill}
			}
			if err != nil {
				out.Err = err
			}
			outcomes[i] = out
			return nil
		})
	}
	g.Wait()

	o.logger.Info("Tracking refreshed", zap.Int("waybills", len(waybills)))
	return outcomes, nil
}

func (o *Orchestrator) openWaybills(ctx context.Context) ([]string, error) {
	shipments, err := o.ledger.ListShipments(ctx, domain.ShipmentFilter{})
	if err != nil {
		return nil, err
	}
	var open []string
	for _, s := range shipments {
		if s.Status == domain.ShipmentStatusDelivered || s.Status == domain.ShipmentStatusCancelled {
			continue
		}
		open = append(open, s.Waybill)
	}
	return open, nil
}

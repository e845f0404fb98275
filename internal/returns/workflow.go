// Package returns runs the return request state machine and the reverse
// pickups that bring items back.
package returns

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"

	"github.com/tournevent/postershop/internal/domain"
	"github.com/tournevent/postershop/internal/notify"
	"github.com/tournevent/postershop/internal/store"
	"github.com/tournevent/postershop/internal/telemetry"
	"github.com/tournevent/postershop/pkg/carrier"
)

// DefaultWindow is how long after ordering an item may be returned.
const DefaultWindow = 7 * 24 * time.Hour

const defaultItemWeight = 300

// Config holds workflow settings.
type Config struct {
	Window time.Duration
	// ReturnWarehouse is the warehouse reverse pickups are delivered to.
	ReturnWarehouse string
	// OperatorEmail is told about new return requests.
	OperatorEmail string
	// ItemWeight is the per-unit weight in grams sent with reverse pickups.
	ItemWeight float64
}

// Deps are the collaborators of a Workflow. Notifier may be nil.
type Deps struct {
	Orders   store.OrderRepository
	Returns  store.ReturnRepository
	Gateway  carrier.Gateway
	Notifier notify.Notifier
	Metrics  *telemetry.Metrics
	Logger   *otelzap.Logger
}

// Workflow manages return requests.
type Workflow struct {
	orders   store.OrderRepository
	returns  store.ReturnRepository
	gateway  carrier.Gateway
	notifier notify.Notifier
	metrics  *telemetry.Metrics
	logger   *otelzap.Logger
	config   Config
	now      func() time.Time
}

// New creates a workflow.
func New(deps Deps, cfg Config) *Workflow {
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.ItemWeight <= 0 {
		cfg.ItemWeight = defaultItemWeight
	}
	return &Workflow{
		orders:   deps.Orders,
		returns:  deps.Returns,
		gateway:  deps.Gateway,
		notifier: deps.Notifier,
		metrics:  deps.Metrics,
		logger:   deps.Logger,
		config:   cfg,
		now:      time.Now,
	}
}

// WithClock replaces the clock used for the return window and timestamps.
func (w *Workflow) WithClock(now func() time.Time) *Workflow {
	w.now = now
	return w
}

// Window returns the configured return window.
func (w *Workflow) Window() time.Duration {
	return w.config.Window
}

// Eligibility is the answer to "can this item be returned", with the reason
// when it cannot.
type Eligibility struct {
	Eligible bool   `json:"eligible"`
	Reason   string `json:"reason,omitempty"`
}

func refuse(format string, args ...any) *Eligibility {
	return &Eligibility{Reason: fmt.Sprintf(format, args...)}
}

// IsEligibleForReturn checks every return rule for one order item. Rule
// violations are reported in the result; only storage failures are errors.
func (w *Workflow) IsEligibleForReturn(ctx context.Context, orderID, itemID string) (*Eligibility, error) {
	order, err := w.orders.GetOrder(ctx, orderID)
	if err != nil {
		if domain.IsNotFound(err) {
			return refuse("Order %s was not found", orderID), nil
		}
		return nil, err
	}
	e, _, err := w.eligibility(ctx, order, itemID)
	return e, err
}

func (w *Workflow) eligibility(ctx context.Context, order *domain.Order, itemID string) (*Eligibility, *domain.OrderItem, error) {
	item, ok := order.Item(itemID)
	if !ok {
		return refuse("Item %s is not part of order %s", itemID, order.ID), nil, nil
	}
	if order.Status != domain.OrderStatusCompleted {
		return refuse("Only completed orders can be returned; this order is %s", order.Status), item, nil
	}
	if w.now().Sub(order.CreatedAt) > w.config.Window {
		return refuse("The %d-day return window for this order has expired", windowDays(w.config.Window)), item, nil
	}
	if item.ProductType == domain.ProductDigital {
		return refuse("Digital products cannot be returned"), item, nil
	}

	active, err := w.returns.FindActiveReturn(ctx, order.ID, itemID)
	if err != nil {
		return nil, nil, fmt.Errorf("find active return: %w", err)
	}
	if active != nil {
		return refuse("A return request already exists for this item (status %s)", active.Status), item, nil
	}
	return &Eligibility{Eligible: true}, item, nil
}

func windowDays(d time.Duration) int {
	return int(d / (24 * time.Hour))
}

// CreateReturnInput is a customer's return request.
type CreateReturnInput struct {
	OrderID      string `json:"orderId"`
	OrderItemID  string `json:"orderItemId"`
	CustomerID   string `json:"customerId"`
	Reason       string `json:"reason"`
	CustomerNote string `json:"customerNote,omitempty"`
}

// CreateReturnResult is a new return request and the side effects that did
// not make it.
type CreateReturnResult struct {
	Return   *domain.ReturnRequest `json:"return"`
	Notified bool                  `json:"notified"`
	Warnings []string              `json:"warnings,omitempty"`
}

// CreateReturnRequest re-checks eligibility and records a pending return.
// An ineligible item fails with *domain.IneligibleError.
func (w *Workflow) CreateReturnRequest(ctx context.Context, in CreateReturnInput) (*CreateReturnResult, error) {
	if strings.TrimSpace(in.Reason) == "" {
		return nil, domain.NewValidation("reason", "is required")
	}

	order, err := w.orders.GetOrder(ctx, in.OrderID)
	if err != nil {
		return nil, err
	}
	if in.CustomerID != "" && in.CustomerID != order.CustomerID {
		return nil, domain.NewValidation("customerId", "order belongs to another customer")
	}

	e, item, err := w.eligibility(ctx, order, in.OrderItemID)
	if err != nil {
		return nil, err
	}
	if !e.Eligible {
		return nil, &domain.IneligibleError{Reason: e.Reason}
	}

	now := w.now()
	r := &domain.ReturnRequest{
		ID:          uuid.New().String(),
		OrderID:     order.ID,
		OrderItemID: item.ID,
		CustomerID:  order.CustomerID,
		Product: domain.ProductSnapshot{
			ProductID:   item.ProductID,
			Title:       item.Title,
			ProductType: item.ProductType,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			TotalPrice:  item.TotalPrice,
		},
		Reason:       in.Reason,
		CustomerNote: in.CustomerNote,
		Status:       domain.ReturnStatusPending,
		RequestedAt:  now,
		UpdatedAt:    now,
	}
	if err := w.returns.CreateReturn(ctx, r); err != nil {
		if domain.IsConflict(err) {
			return nil, &domain.IneligibleError{Reason: "A return request already exists for this item"}
		}
		return nil, fmt.Errorf("create return: %w", err)
	}

	w.logger.Info("Return requested",
		zap.String("return_id", r.ID),
		zap.String("order_id", r.OrderID),
		zap.String("item_id", r.OrderItemID),
	)

	ctx = context.WithoutCancel(ctx)
	result := &CreateReturnResult{Return: r}
	if err := w.orders.MarkItemReturned(ctx, order.ID, item.ID); err != nil {
		w.logger.Error("Failed to mark item returned", zap.String("return_id", r.ID), zap.Error(err))
		result.Warnings = append(result.Warnings, "order item was not marked as returned")
	}
	if err := w.orders.AppendReturn(ctx, order.ID, r.ID); err != nil {
		w.logger.Error("Failed to link return to order", zap.String("return_id", r.ID), zap.Error(err))
		result.Warnings = append(result.Warnings, "return was not linked to the order")
	}

	if w.notifier != nil && w.config.OperatorEmail != "" {
		err := w.notifier.Notify(ctx, notify.KindReturnRequested, w.config.OperatorEmail, map[string]any{
			"returnId":     r.ID,
			"orderId":      r.OrderID,
			"customerName": order.CustomerName,
			"product":      r.Product.Title,
			"reason":       r.Reason,
		})
		if err != nil {
			w.logger.Warn("Failed to notify operator of return", zap.String("return_id", r.ID), zap.Error(err))
			result.Warnings = append(result.Warnings, "operator notification failed: "+err.Error())
		} else {
			result.Notified = true
		}
	}
	return result, nil
}

// GetReturnRequest returns one return request.
func (w *Workflow) GetReturnRequest(ctx context.Context, id string) (*domain.ReturnRequest, error) {
	return w.returns.GetReturn(ctx, id)
}

// GetCustomerReturns returns a customer's return requests, newest first.
func (w *Workflow) GetCustomerReturns(ctx context.Context, customerID string) ([]*domain.ReturnRequest, error) {
	if customerID == "" {
		return nil, domain.NewValidation("customerId", "is required")
	}
	return w.returns.ListReturns(ctx, domain.ReturnFilter{CustomerID: customerID})
}

// ListReturns returns return requests matching filter.
func (w *Workflow) ListReturns(ctx context.Context, filter domain.ReturnFilter) ([]*domain.ReturnRequest, error) {
	return w.returns.ListReturns(ctx, filter)
}

// StatusChange carries the operator's notes for a status update.
type StatusChange struct {
	AdminNote    string   `json:"adminNote,omitempty"`
	RefundAmount *float64 `json:"refundAmount,omitempty"`
	RefundMethod string   `json:"refundMethod,omitempty"`
}

// UpdateReturnStatus moves a return along the state machine.
func (w *Workflow) UpdateReturnStatus(ctx context.Context, id string, next domain.ReturnStatus, change StatusChange) (*domain.ReturnRequest, error) {
	if !next.IsValid() {
		return nil, domain.NewValidation("status", fmt.Sprintf("unknown return status %q", next))
	}
	if change.RefundAmount != nil && *change.RefundAmount < 0 {
		return nil, domain.NewValidation("refundAmount", "cannot be negative")
	}

	r, err := w.returns.GetReturn(ctx, id)
	if err != nil {
		return nil, err
	}
	// A booked reverse pickup is only released through the carrier.
	if next == domain.ReturnStatusRejected && r.TrackingNumber != "" {
		return nil, &domain.InvalidTransitionError{
			Entity: "return",
			From:   string(r.Status),
			To:     string(next),
			Hint:   "reverse pickup " + r.TrackingNumber + " is booked; use cancelReturnPickup",
		}
	}
	if change.AdminNote != "" {
		r.AdminNote = change.AdminNote
	}
	if change.RefundAmount != nil {
		r.RefundAmount = change.RefundAmount
	}
	if change.RefundMethod != "" {
		r.RefundMethod = change.RefundMethod
	}
	if err := w.transition(ctx, r, next); err != nil {
		return nil, err
	}
	return r, nil
}

// transition validates and persists a status change of r.
func (w *Workflow) transition(ctx context.Context, r *domain.ReturnRequest, next domain.ReturnStatus) error {
	from := r.Status
	if !from.CanTransitionTo(next) {
		return &domain.InvalidTransitionError{Entity: "return", From: string(from), To: string(next)}
	}

	now := w.now()
	r.Status = next
	r.UpdatedAt = now
	if next == domain.ReturnStatusCompleted {
		r.ProcessedAt = &now
	}
	if err := w.returns.UpdateReturn(ctx, r, from); err != nil {
		r.Status = from
		return err
	}

	w.metrics.RecordReturnTransition(string(from), string(next))
	w.logger.Info("Return status changed",
		zap.String("return_id", r.ID),
		zap.String("from", string(from)),
		zap.String("to", string(next)),
	)
	w.notifyCustomer(context.WithoutCancel(ctx), r)
	return nil
}

func (w *Workflow) notifyCustomer(ctx context.Context, r *domain.ReturnRequest) {
	if w.notifier == nil {
		return
	}
	order, err := w.orders.GetOrder(ctx, r.OrderID)
	if err != nil || order.CustomerEmail == "" {
		return
	}
	data := map[string]any{
		"returnId": r.ID,
		"orderId":  r.OrderID,
		"product":  r.Product.Title,
		"status":   string(r.Status),
	}
	if r.AdminNote != "" {
		data["adminNote"] = r.AdminNote
	}
	if r.TrackingNumber != "" {
		data["trackingNumber"] = r.TrackingNumber
	}
	if err := w.notifier.Notify(ctx, notify.KindReturnStatusChanged, order.CustomerEmail, data); err != nil {
		w.logger.Warn("Failed to notify customer of return status", zap.String("return_id", r.ID), zap.Error(err))
	}
}

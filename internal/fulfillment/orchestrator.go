// Package fulfillment turns a paid checkout into an order, a shipment, download
// links and a confirmation, and serves the operator side of shipping.
//
// Only persisting the order can fail a checkout. Everything after that is
// best effort and reported as warnings, so "email failed" never reads as
// "order failed".
package fulfillment

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"

	"github.com/tournevent/postershop/internal/domain"
	"github.com/tournevent/postershop/internal/downloads"
	"github.com/tournevent/postershop/internal/ledger"
	"github.com/tournevent/postershop/internal/notify"
	"github.com/tournevent/postershop/internal/store"
	"github.com/tournevent/postershop/internal/telemetry"
	"github.com/tournevent/postershop/pkg/carrier"
)

const (
	defaultPosterWeight   = 300
	defaultClothingWeight = 400
	defaultRefreshLimit   = 4
)

// Config holds orchestrator settings.
type Config struct {
	// DefaultWarehouse is the pickup location used for checkout shipments.
	DefaultWarehouse string
	// OperatorEmail receives pickup failure alerts.
	OperatorEmail string
	// PosterWeight and ClothingWeight are per-unit weights in grams.
	PosterWeight   float64
	ClothingWeight float64
	// RefreshConcurrency bounds concurrent carrier calls in RefreshTracking.
	RefreshConcurrency int
}

// Deps are the collaborators of an Orchestrator. Counter and Notifier may be nil.
type Deps struct {
	Orders   store.OrderRepository
	Ledger   ledger.Ledger
	Gateway  carrier.Gateway
	Signer   downloads.Signer
	Counter  downloads.Counter
	Notifier notify.Notifier
	Metrics  *telemetry.Metrics
	Logger   *otelzap.Logger
}

// Orchestrator coordinates checkout fulfillment and shipping operations.
type Orchestrator struct {
	orders   store.OrderRepository
	ledger   ledger.Ledger
	gateway  carrier.Gateway
	signer   downloads.Signer
	counter  downloads.Counter
	notifier notify.Notifier
	metrics  *telemetry.Metrics
	logger   *otelzap.Logger
	config   Config
	now      func() time.Time
}

// New creates an orchestrator.
func New(deps Deps, cfg Config) *Orchestrator {
	if cfg.PosterWeight <= 0 {
		cfg.PosterWeight = defaultPosterWeight
	}
	if cfg.ClothingWeight <= 0 {
		cfg.ClothingWeight = defaultClothingWeight
	}
	if cfg.RefreshConcurrency <= 0 {
		cfg.RefreshConcurrency = defaultRefreshLimit
	}
	return &Orchestrator{
		orders:   deps.Orders,
		ledger:   deps.Ledger,
		gateway:  deps.Gateway,
		signer:   deps.Signer,
		counter:  deps.Counter,
		notifier: deps.Notifier,
		metrics:  deps.Metrics,
		logger:   deps.Logger,
		config:   cfg,
		now:      time.Now,
	}
}

// ItemInput is one line of a checkout.
type ItemInput struct {
	ProductID   string             `json:"productId"`
	Title       string             `json:"title"`
	Quantity    int                `json:"quantity"`
	UnitPrice   float64            `json:"unitPrice"`
	ProductType domain.ProductType `json:"productType"`
	Size        string             `json:"size,omitempty"`
	Color       string             `json:"color,omitempty"`
}

// CompleteOrderInput is a paid checkout.
type CompleteOrderInput struct {
	CustomerID      string         `json:"customerId"`
	CustomerName    string         `json:"customerName"`
	CustomerEmail   string         `json:"customerEmail"`
	CustomerPhone   string         `json:"customerPhone"`
	ShippingAddress domain.Address `json:"shippingAddress"`
	Items           []ItemInput    `json:"items"`
	TotalAmount     float64        `json:"totalAmount"`
	PaymentMethod   string         `json:"paymentMethod"`
	Notes           string         `json:"notes,omitempty"`
	// WarehouseName overrides the configured default pickup location.
	WarehouseName string `json:"warehouseName,omitempty"`
}

// ShipmentSummary describes the shipment recorded for an order.
type ShipmentSummary struct {
	Waybill      string                `json:"waybill"`
	Provenance   domain.Provenance     `json:"provenance"`
	Status       domain.ShipmentStatus `json:"status"`
	PaymentMode  domain.PaymentMode    `json:"paymentMode"`
	CarrierError string                `json:"carrierError,omitempty"`
}

// OrderCompletion is the result of CompleteOrder.
type OrderCompletion struct {
	Success       bool               `json:"success"`
	OrderID       string             `json:"orderId"`
	Status        domain.OrderStatus `json:"status"`
	DownloadLinks []downloads.Link   `json:"downloadLinks"`
	Notified      bool               `json:"notified"`
	Shipment      *ShipmentSummary   `json:"shipment,omitempty"`
	Warnings      []string           `json:"warnings,omitempty"`
}

func (r *OrderCompletion) warn(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// CompleteOrder records a paid checkout and fulfills it. An error is returned
// only when the order itself could not be persisted.
func (o *Orchestrator) CompleteOrder(ctx context.Context, in CompleteOrderInput) (*OrderCompletion, error) {
	order, err := buildOrder(in, o.now())
	if err != nil {
		return nil, err
	}

	if err := o.orders.CreateOrder(ctx, order); err != nil {
		o.logger.Error("Failed to persist order",
			zap.String("customer_id", order.CustomerID),
			zap.Error(err),
		)
		return nil, fmt.Errorf("create order: %w", err)
	}
	o.metrics.RecordOrder(string(order.Status))

	o.logger.Info("Order recorded",
		zap.String("order_id", order.ID),
		zap.String("status", string(order.Status)),
		zap.Int("items", len(order.Items)),
	)

	// The order exists now; the caller going away must not leave it half fulfilled.
	ctx = context.WithoutCancel(ctx)

	result := &OrderCompletion{
		Success:       true,
		OrderID:       order.ID,
		Status:        order.Status,
		DownloadLinks: []downloads.Link{},
	}

	if order.HasPhysicalItems() {
		warehouse := in.WarehouseName
		if warehouse == "" {
			warehouse = o.config.DefaultWarehouse
		}
		o.shipOrder(ctx, order, warehouse, result)
	}

	digital := order.DigitalItems()
	for _, item := range digital {
		link, err := o.signer.Sign(ctx, order.ID, item)
		if err != nil {
			o.logger.Warn("Failed to sign download link",
				zap.String("order_id", order.ID),
				zap.String("item_id", item.ID),
				zap.Error(err),
			)
			result.warn("download link for %q could not be created: %v", item.Title, err)
			continue
		}
		result.DownloadLinks = append(result.DownloadLinks, link)
	}

	result.Notified = o.sendConfirmation(ctx, order, result)

	if o.counter != nil {
		for _, item := range digital {
			if _, err := o.counter.Increment(ctx, item.ProductID); err != nil {
				o.logger.Warn("Failed to increment download counter",
					zap.String("product_id", item.ProductID),
					zap.Error(err),
				)
				result.warn("download counter for %s not updated", item.ProductID)
			}
		}
	}

	return result, nil
}

func buildOrder(in CompleteOrderInput, now time.Time) (*domain.Order, error) {
	if strings.TrimSpace(in.CustomerID) == "" {
		return nil, domain.NewValidation("customerId", "is required")
	}
	if len(in.Items) == 0 {
		return nil, domain.NewValidation("items", "at least one item is required")
	}
	if in.TotalAmount < 0 {
		return nil, domain.NewValidation("totalAmount", "cannot be negative")
	}

	order := &domain.Order{
		ID:              uuid.New().String(),
		CustomerID:      in.CustomerID,
		CustomerName:    in.CustomerName,
		CustomerEmail:   in.CustomerEmail,
		CustomerPhone:   in.CustomerPhone,
		ShippingAddress: in.ShippingAddress,
		TotalAmount:     in.TotalAmount,
		PaymentMethod:   in.PaymentMethod,
		Notes:           in.Notes,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	order.Items = make([]domain.OrderItem, len(in.Items))
	for i, item := range in.Items {
		field := fmt.Sprintf("items[%d]", i)
		if !item.ProductType.IsValid() {
			return nil, domain.NewValidation(field+".productType", fmt.Sprintf("unknown product type %q", item.ProductType))
		}
		if item.Quantity < 1 {
			return nil, domain.NewValidation(field+".quantity", "must be at least 1")
		}
		if strings.TrimSpace(item.ProductID) == "" {
			return nil, domain.NewValidation(field+".productId", "is required")
		}
		order.Items[i] = domain.OrderItem{
			ID:          uuid.New().String(),
			OrderID:     order.ID,
			ProductID:   item.ProductID,
			Title:       item.Title,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			TotalPrice:  item.UnitPrice * float64(item.Quantity),
			ProductType: item.ProductType,
			Size:        item.Size,
			Color:       item.Color,
		}
	}

	if order.HasPhysicalItems() && strings.TrimSpace(order.ShippingAddress.Line1) == "" {
		return nil, domain.NewValidation("shippingAddress", "is required for posters and clothing")
	}

	order.Status = order.InitialStatus()
	return order, nil
}

func (o *Orchestrator) shipOrder(ctx context.Context, order *domain.Order, warehouse string, result *OrderCompletion) {
	physical := order.PhysicalItems()
	titles := make([]string, 0, len(physical))
	var weight float64
	var quantity int
	for _, item := range physical {
		titles = append(titles, item.Title)
		weight += o.unitWeight(item.ProductType) * float64(item.Quantity)
		quantity += item.Quantity
	}

	phone := order.CustomerPhone
	if phone == "" {
		phone = order.ShippingAddress.Phone
	}

	in := CreateShipmentInput{
		OrderID:       &order.ID,
		CustomerName:  order.CustomerName,
		CustomerPhone: phone,
		CustomerEmail: order.CustomerEmail,
		Address:       order.ShippingAddress,
		PaymentMode:   domain.PaymentModePrepaid,
		TotalAmount:   order.TotalAmount,
		Weight:        weight,
		Quantity:      quantity,
		ProductsDesc:  strings.Join(titles, ", "),
		WarehouseName: warehouse,
	}
	if order.IsCOD() {
		in.PaymentMode = domain.PaymentModeCOD
		in.CODAmount = order.TotalAmount
	}

	out, err := o.recordShipment(ctx, in)
	if err != nil {
		result.warn("shipment could not be recorded: %v", err)
		return
	}
	result.Warnings = append(result.Warnings, out.Warnings...)
	result.Shipment = &ShipmentSummary{
		Waybill:      out.Shipment.Waybill,
		Provenance:   out.Shipment.Provenance,
		Status:       out.Shipment.Status,
		PaymentMode:  out.Shipment.PaymentMode,
		CarrierError: out.Shipment.CarrierError,
	}
}

func (o *Orchestrator) unitWeight(t domain.ProductType) float64 {
	if t == domain.ProductClothing {
		return o.config.ClothingWeight
	}
	return o.config.PosterWeight
}

func (o *Orchestrator) sendConfirmation(ctx context.Context, order *domain.Order, result *OrderCompletion) bool {
	if o.notifier == nil {
		return false
	}
	if order.CustomerEmail == "" {
		result.warn("no customer email, confirmation not sent")
		return false
	}

	data := map[string]any{
		"orderId":       order.ID,
		"customerName":  order.CustomerName,
		"totalAmount":   order.TotalAmount,
		"paymentMethod": order.PaymentMethod,
		"status":        string(order.Status),
		"items":         len(order.Items),
		"downloadLinks": result.DownloadLinks,
	}
	if result.Shipment != nil {
		data["waybill"] = result.Shipment.Waybill
	}

	if err := o.notifier.Notify(ctx, notify.KindOrderConfirmation, order.CustomerEmail, data); err != nil {
		o.logger.Warn("Failed to send order confirmation",
			zap.String("order_id", order.ID),
			zap.Error(err),
		)
		result.warn("order confirmation not sent: %v", err)
		return false
	}
	return true
}

// UpdateOrderStatus moves an order forward. Physical orders are completed
// here by an operator; delivery does not complete them.
func (o *Orchestrator) UpdateOrderStatus(ctx context.Context, orderID string, status domain.OrderStatus) (*domain.Order, error) {
	if !status.IsValid() {
		return nil, domain.NewValidation("status", fmt.Sprintf("unknown order status %q", status))
	}
	order, err := o.orders.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status == status {
		return order, nil
	}
	if !order.Status.CanTransitionTo(status) {
		return nil, &domain.InvalidTransitionError{Entity: "order", From: string(order.Status), To: string(status)}
	}

	updated, err := o.orders.UpdateOrderStatus(ctx, orderID, status)
	if err != nil {
		return nil, fmt.Errorf("update order %s: %w", orderID, err)
	}
	o.logger.Info("Order status updated",
		zap.String("order_id", orderID),
		zap.String("from", string(order.Status)),
		zap.String("to", string(status)),
	)
	return updated, nil
}

// GetOrder returns one order.
func (o *Orchestrator) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	return o.orders.GetOrder(ctx, orderID)
}

// ListOrders returns orders matching filter.
func (o *Orchestrator) ListOrders(ctx context.Context, filter domain.OrderFilter) ([]*domain.Order, error) {
	return o.orders.ListOrders(ctx, filter)
}

// Package domain holds the storefront's fulfillment and return models.
package domain

import (
	"strings"
	"time"
)

// OrderStatus represents the fulfillment state of an order.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusCompleted  OrderStatus = "completed"
)

// IsValid checks if the order status is valid
func (s OrderStatus) IsValid() bool {
	switch s {
	case OrderStatusPending, OrderStatusProcessing, OrderStatusCompleted:
		return true
	}
	return false
}

// CanTransitionTo checks if an operator status change is valid
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	switch s {
	case OrderStatusPending:
		return next == OrderStatusProcessing || next == OrderStatusCompleted
	case OrderStatusProcessing:
		return next == OrderStatusCompleted
	}
	return false
}

// ProductType distinguishes downloadable art from physical goods.
type ProductType string

const (
	ProductDigital  ProductType = "digital"
	ProductPoster   ProductType = "poster"
	ProductClothing ProductType = "clothing"
)

// IsValid checks if the product type is valid
func (t ProductType) IsValid() bool {
	switch t {
	case ProductDigital, ProductPoster, ProductClothing:
		return true
	}
	return false
}

// IsPhysical reports whether the product needs shipping.
func (t ProductType) IsPhysical() bool {
	return t == ProductPoster || t == ProductClothing
}

// PaymentMethodCOD is the payment method for cash on delivery.
const PaymentMethodCOD = "cod"

// Address is a postal address.
type Address struct {
	Line1   string `json:"line1"`
	Line2   string `json:"line2,omitempty"`
	City    string `json:"city"`
	State   string `json:"state"`
	Pincode string `json:"pincode"`
	Country string `json:"country,omitempty"`
	Phone   string `json:"phone,omitempty"`
}

// Order is a customer purchase.
type Order struct {
	ID              string      `json:"id"`
	CustomerID      string      `json:"customerId"`
	CustomerName    string      `json:"customerName"`
	CustomerEmail   string      `json:"customerEmail"`
	CustomerPhone   string      `json:"customerPhone"`
	ShippingAddress Address     `json:"shippingAddress"`
	Items           []OrderItem `json:"items"`
	TotalAmount     float64     `json:"totalAmount"`
	PaymentMethod   string      `json:"paymentMethod"`
	Status          OrderStatus `json:"status"`
	Notes           string      `json:"notes,omitempty"`
	ReturnIDs       []string    `json:"returnIds,omitempty"`
	CreatedAt       time.Time   `json:"createdAt"`
	UpdatedAt       time.Time   `json:"updatedAt"`
}

// IsCOD reports whether the order is paid on delivery.
func (o *Order) IsCOD() bool {
	return strings.EqualFold(strings.TrimSpace(o.PaymentMethod), PaymentMethodCOD)
}

// HasPhysicalItems reports whether any item must be shipped.
func (o *Order) HasPhysicalItems() bool {
	for _, item := range o.Items {
		if item.ProductType.IsPhysical() {
			return true
		}
	}
	return false
}

// PhysicalItems returns the items that must be shipped.
func (o *Order) PhysicalItems() []OrderItem {
	var items []OrderItem
	for _, item := range o.Items {
		if item.ProductType.IsPhysical() {
			items = append(items, item)
		}
	}
	return items
}

// DigitalItems returns the downloadable items.
func (o *Order) DigitalItems() []OrderItem {
	var items []OrderItem
	for _, item := range o.Items {
		if item.ProductType == ProductDigital {
			items = append(items, item)
		}
	}
	return items
}

// Item returns the item with the given id.
func (o *Order) Item(id string) (*OrderItem, bool) {
	for i := range o.Items {
		if o.Items[i].ID == id {
			return &o.Items[i], true
		}
	}
	return nil, false
}

// InitialStatus derives the status an order starts in once payment is recorded:
// cash on delivery waits as pending, anything to ship is processing, and
// purely digital orders complete immediately.
func (o *Order) InitialStatus() OrderStatus {
	switch {
	case o.IsCOD():
		return OrderStatusPending
	case o.HasPhysicalItems():
		return OrderStatusProcessing
	default:
		return OrderStatusCompleted
	}
}

// OrderItem is a line of an order.
type OrderItem struct {
	ID          string      `json:"id"`
	OrderID     string      `json:"orderId"`
	ProductID   string      `json:"productId"`
	Title       string      `json:"title"`
	Quantity    int         `json:"quantity"`
	UnitPrice   float64     `json:"unitPrice"`
	TotalPrice  float64     `json:"totalPrice"`
	ProductType ProductType `json:"productType"`
	Size        string      `json:"size,omitempty"`
	Color       string      `json:"color,omitempty"`
	Returned    bool        `json:"returned"`
}

// OrderFilter narrows order listings.
type OrderFilter struct {
	CustomerID string
	Status     OrderStatus
	From       time.Time
	To         time.Time
	Limit      int
}

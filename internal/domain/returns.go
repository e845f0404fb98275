package domain

import "time"

// ReturnStatus represents the state of a return request.
type ReturnStatus string

const (
	ReturnStatusPending    ReturnStatus = "pending"
	ReturnStatusApproved   ReturnStatus = "approved"
	ReturnStatusRejected   ReturnStatus = "rejected"
	ReturnStatusProcessing ReturnStatus = "processing"
	ReturnStatusCompleted  ReturnStatus = "completed"
)

// IsValid checks if the return status is valid
func (s ReturnStatus) IsValid() bool {
	switch s {
	case ReturnStatusPending, ReturnStatusApproved, ReturnStatusRejected,
		ReturnStatusProcessing, ReturnStatusCompleted:
		return true
	}
	return false
}

// IsActive reports whether the return still blocks a new request for the same item.
func (s ReturnStatus) IsActive() bool {
	return s == ReturnStatusPending || s == ReturnStatusApproved || s == ReturnStatusProcessing
}

// IsTerminal reports whether no further transition is possible.
func (s ReturnStatus) IsTerminal() bool {
	return s == ReturnStatusRejected || s == ReturnStatusCompleted
}

// CanTransitionTo checks if a status transition is valid. Rejection from
// approved or processing is the cancellation path.
func (s ReturnStatus) CanTransitionTo(next ReturnStatus) bool {
	switch s {
	case ReturnStatusPending:
		return next == ReturnStatusApproved ||
			next == ReturnStatusRejected
	case ReturnStatusApproved:
		return next == ReturnStatusProcessing ||
			next == ReturnStatusRejected
	case ReturnStatusProcessing:
		return next == ReturnStatusCompleted ||
			next == ReturnStatusRejected
	case ReturnStatusRejected, ReturnStatusCompleted:
		return false // Terminal states
	default:
		return false
	}
}

// ProductSnapshot freezes the item as it was ordered.
type ProductSnapshot struct {
	ProductID   string      `json:"productId"`
	Title       string      `json:"title"`
	ProductType ProductType `json:"productType"`
	Quantity    int         `json:"quantity"`
	UnitPrice   float64     `json:"unitPrice"`
	TotalPrice  float64     `json:"totalPrice"`
}

// ReturnRequest is a customer's request to send back one order item.
type ReturnRequest struct {
	ID             string          `json:"id"`
	OrderID        string          `json:"orderId"`
	OrderItemID    string          `json:"orderItemId"`
	CustomerID     string          `json:"customerId"`
	Product        ProductSnapshot `json:"product"`
	Reason         string          `json:"reason"`
	CustomerNote   string          `json:"customerNote,omitempty"`
	Status         ReturnStatus    `json:"status"`
	AdminNote      string          `json:"adminNote,omitempty"`
	TrackingNumber string          `json:"trackingNumber,omitempty"`
	PickupID       string          `json:"pickupId,omitempty"`
	RefundAmount   *float64        `json:"refundAmount,omitempty"`
	RefundMethod   string          `json:"refundMethod,omitempty"`
	TrackingEvents []TrackingEvent `json:"trackingEvents,omitempty"`
	RequestedAt    time.Time       `json:"requestedAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
	ProcessedAt    *time.Time      `json:"processedAt,omitempty"`
}

// ReturnFilter narrows return listings.
type ReturnFilter struct {
	CustomerID string
	OrderID    string
	Status     ReturnStatus
	Limit      int
}

// Matches reports whether r passes the filter.
func (f ReturnFilter) Matches(r *ReturnRequest) bool {
	if f.CustomerID != "" && r.CustomerID != f.CustomerID {
		return false
	}
	if f.OrderID != "" && r.OrderID != f.OrderID {
		return false
	}
	if f.Status != "" && r.Status != f.Status {
		return false
	}
	return true
}

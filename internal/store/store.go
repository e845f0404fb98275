package store

import (
	"context"

	"github.com/tournevent/postershop/internal/domain"
)

// OrderRepository persists orders and their items.
type OrderRepository interface {
	CreateOrder(ctx context.Context, o *domain.Order) error
	GetOrder(ctx context.Context, id string) (*domain.Order, error)
	UpdateOrderStatus(ctx context.Context, id string, status domain.OrderStatus) (*domain.Order, error)
	UpdateOrderNotes(ctx context.Context, id, notes string) error

	// MarkItemReturned sets the derived returned marker on one item.
	MarkItemReturned(ctx context.Context, orderID, itemID string) error

	// AppendReturn links a return request to the order.
	AppendReturn(ctx context.Context, orderID, returnID string) error

	// ListOrders returns matching orders, newest first.
	ListOrders(ctx context.Context, filter domain.OrderFilter) ([]*domain.Order, error)
}

// ReturnRepository persists return requests.
type ReturnRepository interface {
	// CreateReturn fails with a ConflictError when an active return already
	// exists for the same order item.
	CreateReturn(ctx context.Context, r *domain.ReturnRequest) error

	GetReturn(ctx context.Context, id string) (*domain.ReturnRequest, error)

	// UpdateReturn writes r only if the stored status still equals from.
	UpdateReturn(ctx context.Context, r *domain.ReturnRequest, from domain.ReturnStatus) error

	// ListReturns returns matching requests, newest first.
	ListReturns(ctx context.Context, filter domain.ReturnFilter) ([]*domain.ReturnRequest, error)

	// FindActiveReturn returns the pending, approved or processing request
	// for an order item, or nil.
	FindActiveReturn(ctx context.Context, orderID, itemID string) (*domain.ReturnRequest, error)
}

func activeReturnConflict(orderID, itemID string) error {
	return &domain.ConflictError{Message: "a return request already exists for item " + itemID + " of order " + orderID}
}

func staleReturn(id string, from domain.ReturnStatus) error {
	return &domain.ConflictError{Message: "return request " + id + " is no longer " + string(from)}
}

package domain_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tournevent/postershop/internal/domain"
)

func TestReturnStatus_CanTransitionTo(t *testing.T) {
	all := []domain.ReturnStatus{
		domain.ReturnStatusPending,
		domain.ReturnStatusApproved,
		domain.ReturnStatusRejected,
		domain.ReturnStatusProcessing,
		domain.ReturnStatusCompleted,
	}
	allowed := map[domain.ReturnStatus][]domain.ReturnStatus{
		domain.ReturnStatusPending:    {domain.ReturnStatusApproved, domain.ReturnStatusRejected},
		domain.ReturnStatusApproved:   {domain.ReturnStatusProcessing, domain.ReturnStatusRejected},
		domain.ReturnStatusProcessing: {domain.ReturnStatusCompleted, domain.ReturnStatusRejected},
	}

	for _, from := range all {
		for _, to := range all {
			want := false
			for _, ok := range allowed[from] {
				if ok == to {
					want = true
				}
			}
			t.Run(fmt.Sprintf("%s->%s", from, to), func(t *testing.T) {
				assert.Equal(t, want, from.CanTransitionTo(to))
			})
		}
	}
}

func TestReturnStatus_Terminal(t *testing.T) {
	assert.True(t, domain.ReturnStatusRejected.IsTerminal())
	assert.True(t, domain.ReturnStatusCompleted.IsTerminal())
	assert.False(t, domain.ReturnStatusProcessing.IsTerminal())

	assert.False(t, domain.ReturnStatusRejected.IsActive())
	assert.False(t, domain.ReturnStatusCompleted.IsActive())
	assert.True(t, domain.ReturnStatusApproved.IsActive())
}

func TestOrder_InitialStatus(t *testing.T) {
	tests := []struct {
		name    string
		payment string
		types   []domain.ProductType
		want    domain.OrderStatus
	}{
		{"cod poster", "cod", []domain.ProductType{domain.ProductPoster}, domain.OrderStatusPending},
		{"cod digital", "COD", []domain.ProductType{domain.ProductDigital}, domain.OrderStatusPending},
		{"card clothing", "card", []domain.ProductType{domain.ProductClothing}, domain.OrderStatusProcessing},
		{"card mixed", "upi", []domain.ProductType{domain.ProductDigital, domain.ProductPoster}, domain.OrderStatusProcessing},
		{"card digital", "card", []domain.ProductType{domain.ProductDigital}, domain.OrderStatusCompleted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			order := &domain.Order{PaymentMethod: tt.payment}
			for i, pt := range tt.types {
				order.Items = append(order.Items, domain.OrderItem{ID: fmt.Sprint(i), ProductType: pt})
			}
			assert.Equal(t, tt.want, order.InitialStatus())
		})
	}
}

func TestOrder_ItemPartitions(t *testing.T) {
	order := &domain.Order{Items: []domain.OrderItem{
		{ID: "a", ProductType: domain.ProductDigital},
		{ID: "b", ProductType: domain.ProductPoster},
		{ID: "c", ProductType: domain.ProductDigital},
	}}

	assert.Len(t, order.DigitalItems(), 2)
	assert.Len(t, order.PhysicalItems(), 1)
	assert.True(t, order.HasPhysicalItems())

	item, ok := order.Item("b")
	require.True(t, ok)
	assert.Equal(t, domain.ProductPoster, item.ProductType)

	_, ok = order.Item("missing")
	assert.False(t, ok)
}

func TestShipmentUpdate_Apply(t *testing.T) {
	s := &domain.Shipment{
		Waybill:      "WB1",
		Status:       domain.ShipmentStatusPending,
		CustomerName: "Asha",
	}

	status := domain.ShipmentStatusInTransit
	pickupID := "PU-9"
	domain.ShipmentUpdate{Status: &status}.Apply(s)
	domain.ShipmentUpdate{PickupID: &pickupID}.Apply(s)

	assert.Equal(t, domain.ShipmentStatusInTransit, s.Status)
	assert.Equal(t, "PU-9", s.Pickup.PickupID)
	assert.Equal(t, "Asha", s.CustomerName)
	assert.True(t, domain.ShipmentUpdate{}.IsEmpty())
}

func TestShipmentFilter_Matches(t *testing.T) {
	orderID := "order-1"
	now := time.Now()
	s := &domain.Shipment{
		Status:        domain.ShipmentStatusPending,
		OrderID:       &orderID,
		CustomerPhone: "9876543210",
		CreatedAt:     now,
	}

	assert.True(t, domain.ShipmentFilter{}.Matches(s))
	assert.True(t, domain.ShipmentFilter{OrderID: "order-1", Status: domain.ShipmentStatusPending}.Matches(s))
	assert.False(t, domain.ShipmentFilter{OrderID: "order-2"}.Matches(s))
	assert.False(t, domain.ShipmentFilter{From: now.Add(time.Hour)}.Matches(s))
	assert.False(t, domain.ShipmentFilter{To: now.Add(-time.Hour)}.Matches(s))
}

func TestIsLocalWaybill(t *testing.T) {
	assert.True(t, domain.IsLocalWaybill("LOCAL-1a2b3c"))
	assert.False(t, domain.IsLocalWaybill("MOCK000000000001"))
	assert.False(t, domain.IsLocalWaybill("1490812345678"))
}

func TestErrors(t *testing.T) {
	err := fmt.Errorf("loading: %w", domain.NewNotFound("order", "o-1"))
	assert.True(t, domain.IsNotFound(err))
	assert.False(t, domain.IsValidation(err))
	assert.Equal(t, "loading: order not found: o-1", err.Error())

	err = &domain.InvalidTransitionError{Entity: "return", From: "pending", To: "completed"}
	assert.True(t, domain.IsInvalidTransition(err))
	assert.Contains(t, err.Error(), "pending to completed")

	err = &domain.IneligibleError{Reason: "Digital products cannot be returned"}
	assert.True(t, domain.IsIneligible(err))
}

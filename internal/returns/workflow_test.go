package returns_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"

	"github.com/tournevent/postershop/internal/domain"
	"github.com/tournevent/postershop/internal/notify"
	"github.com/tournevent/postershop/internal/notify/mocks"
	"github.com/tournevent/postershop/internal/returns"
	"github.com/tournevent/postershop/internal/store"
	"github.com/tournevent/postershop/pkg/carrier"
	"github.com/tournevent/postershop/pkg/carrier/mock"
)

const (
	operatorEmail = "ops@example.com"
	customerEmail = "asha@example.com"
)

var now = time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)

type fixture struct {
	wf      *returns.Workflow
	store   *store.Memory
	gateway *mock.Client
	bus     *notify.Bus

	mu   sync.Mutex
	sent []notify.Message
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:   store.NewMemory(),
		gateway: mock.New("delhivery"),
		bus:     notify.NewBus(nil),
	}
	f.bus.Subscribe("", func(_ context.Context, msg notify.Message) error {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.sent = append(f.sent, msg)
		return nil
	})
	f.wf = f.build(f.bus)
	return f
}

func (f *fixture) build(n notify.Notifier) *returns.Workflow {
	return returns.New(returns.Deps{
		Orders:   f.store,
		Returns:  f.store,
		Gateway:  f.gateway,
		Notifier: n,
		Logger:   otelzap.New(zap.NewNop()),
	}, returns.Config{
		ReturnWarehouse: "Mumbai Warehouse",
		OperatorEmail:   operatorEmail,
	}).WithClock(func() time.Time { return now })
}

func (f *fixture) messages(kind notify.Kind) []notify.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []notify.Message
	for _, m := range f.sent {
		if m.Kind == kind {
			out = append(out, m)
		}
	}
	return out
}

// order stores an order placed age ago with a poster, a tee and a digital file.
func (f *fixture) order(t *testing.T, status domain.OrderStatus, age time.Duration) *domain.Order {
	t.Helper()
	o := &domain.Order{
		CustomerID:    "cust-1",
		CustomerName:  "Asha Rao",
		CustomerEmail: customerEmail,
		CustomerPhone: "9876543210",
		ShippingAddress: domain.Address{
			Line1: "12 Marine Drive", City: "Mumbai", State: "MH", Pincode: "400001",
		},
		Items: []domain.OrderItem{
			{ID: "poster", ProductID: "p-1", Title: "Monsoon Skyline", Quantity: 1, UnitPrice: 1500, TotalPrice: 1500, ProductType: domain.ProductPoster},
			{ID: "tee", ProductID: "t-1", Title: "Skyline Tee", Quantity: 2, UnitPrice: 799, TotalPrice: 1598, ProductType: domain.ProductClothing},
			{ID: "file", ProductID: "d-1", Title: "Print file", Quantity: 1, UnitPrice: 299, TotalPrice: 299, ProductType: domain.ProductDigital},
		},
		TotalAmount:   3397,
		PaymentMethod: "card",
		Status:        status,
		CreatedAt:     now.Add(-age),
	}
	require.NoError(t, f.store.CreateOrder(context.Background(), o))
	return o
}

func (f *fixture) request(t *testing.T, o *domain.Order, itemID string) *domain.ReturnRequest {
	t.Helper()
	res, err := f.wf.CreateReturnRequest(context.Background(), returns.CreateReturnInput{
		OrderID:     o.ID,
		OrderItemID: itemID,
		CustomerID:  o.CustomerID,
		Reason:      "Damaged in transit",
	})
	require.NoError(t, err)
	return res.Return
}

func (f *fixture) approved(t *testing.T) *domain.ReturnRequest {
	t.Helper()
	r := f.request(t, f.order(t, domain.OrderStatusCompleted, 48*time.Hour), "poster")
	r, err := f.wf.UpdateReturnStatus(context.Background(), r.ID, domain.ReturnStatusApproved, returns.StatusChange{})
	require.NoError(t, err)
	return r
}

// ============================================================================
// Eligibility
// ============================================================================

func TestIsEligibleForReturn(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	fresh := f.order(t, domain.OrderStatusCompleted, 48*time.Hour)
	processing := f.order(t, domain.OrderStatusProcessing, time.Hour)
	old := f.order(t, domain.OrderStatusCompleted, 8*24*time.Hour)
	edge := f.order(t, domain.OrderStatusCompleted, 7*24*time.Hour)
	dup := f.order(t, domain.OrderStatusCompleted, time.Hour)
	f.request(t, dup, "tee")

	tests := []struct {
		name     string
		orderID  string
		itemID   string
		eligible bool
		reason   string
	}{
		{"eligible poster", fresh.ID, "poster", true, ""},
		{"eligible clothing", fresh.ID, "tee", true, ""},
		{"window boundary", edge.ID, "poster", true, ""},
		{"not completed", processing.ID, "poster", false, "completed"},
		{"window expired", old.ID, "poster", false, "7-day return window"},
		{"digital", fresh.ID, "file", false, "Digital"},
		{"duplicate active", dup.ID, "tee", false, "already exists"},
		{"unknown item", fresh.ID, "mug", false, "not part of order"},
		{"unknown order", "missing", "poster", false, "not found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := f.wf.IsEligibleForReturn(ctx, tt.orderID, tt.itemID)
			require.NoError(t, err)
			assert.Equal(t, tt.eligible, e.Eligible)
			if tt.eligible {
				assert.Empty(t, e.Reason)
			} else {
				assert.Contains(t, e.Reason, tt.reason)
			}
		})
	}
}

func TestIsEligibleForReturn_ConfigurableWindow(t *testing.T) {
	f := newFixture(t)
	o := f.order(t, domain.OrderStatusCompleted, 20*24*time.Hour)

	wide := returns.New(returns.Deps{
		Orders:  f.store,
		Returns: f.store,
		Gateway: f.gateway,
		Logger:  otelzap.New(zap.NewNop()),
	}, returns.Config{Window: 30 * 24 * time.Hour}).WithClock(func() time.Time { return now })

	e, err := wide.IsEligibleForReturn(context.Background(), o.ID, "poster")
	require.NoError(t, err)
	assert.True(t, e.Eligible)
	assert.Equal(t, returns.DefaultWindow, f.wf.Window())
}

func TestIsEligibleForReturn_AfterRejectionAllowsNewRequest(t *testing.T) {
	f := newFixture(t)
	o := f.order(t, domain.OrderStatusCompleted, time.Hour)
	r := f.request(t, o, "poster")

	_, err := f.wf.UpdateReturnStatus(context.Background(), r.ID, domain.ReturnStatusRejected, returns.StatusChange{AdminNote: "Photos unclear"})
	require.NoError(t, err)

	e, err := f.wf.IsEligibleForReturn(context.Background(), o.ID, "poster")
	require.NoError(t, err)
	assert.True(t, e.Eligible)
}

// ============================================================================
// Creation
// ============================================================================

func TestCreateReturnRequest(t *testing.T) {
	f := newFixture(t)
	o := f.order(t, domain.OrderStatusCompleted, 48*time.Hour)

	res, err := f.wf.CreateReturnRequest(context.Background(), returns.CreateReturnInput{
		OrderID:      o.ID,
		OrderItemID:  "tee",
		Reason:       "Wrong size",
		CustomerNote: "Need L instead",
	})
	require.NoError(t, err)
	assert.True(t, res.Notified)
	assert.Empty(t, res.Warnings)

	r := res.Return
	assert.Equal(t, domain.ReturnStatusPending, r.Status)
	assert.Equal(t, "cust-1", r.CustomerID)
	assert.Equal(t, "Skyline Tee", r.Product.Title)
	assert.Equal(t, 2, r.Product.Quantity)
	assert.Equal(t, 1598.0, r.Product.TotalPrice)
	assert.Equal(t, now, r.RequestedAt)

	stored, err := f.store.GetOrder(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{r.ID}, stored.ReturnIDs)
	item, ok := stored.Item("tee")
	require.True(t, ok)
	assert.True(t, item.Returned)

	sent := f.messages(notify.KindReturnRequested)
	require.Len(t, sent, 1)
	assert.Equal(t, operatorEmail, sent[0].Recipient)
	assert.Equal(t, r.ID, sent[0].Data["returnId"])
}

func TestCreateReturnRequest_SecondActiveRequestFails(t *testing.T) {
	f := newFixture(t)
	o := f.order(t, domain.OrderStatusCompleted, time.Hour)
	f.request(t, o, "poster")

	_, err := f.wf.CreateReturnRequest(context.Background(), returns.CreateReturnInput{
		OrderID: o.ID, OrderItemID: "poster", Reason: "Changed my mind",
	})
	require.Error(t, err)
	assert.True(t, domain.IsIneligible(err))
	assert.Contains(t, err.Error(), "already exists")
}

func TestCreateReturnRequest_Rejections(t *testing.T) {
	f := newFixture(t)
	o := f.order(t, domain.OrderStatusCompleted, time.Hour)

	tests := []struct {
		name  string
		in    returns.CreateReturnInput
		check func(error) bool
	}{
		{"no reason", returns.CreateReturnInput{OrderID: o.ID, OrderItemID: "poster"}, domain.IsValidation},
		{"other customer", returns.CreateReturnInput{OrderID: o.ID, OrderItemID: "poster", CustomerID: "cust-2", Reason: "x"}, domain.IsValidation},
		{"unknown order", returns.CreateReturnInput{OrderID: "missing", OrderItemID: "poster", Reason: "x"}, domain.IsNotFound},
		{"digital", returns.CreateReturnInput{OrderID: o.ID, OrderItemID: "file", Reason: "x"}, domain.IsIneligible},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.wf.CreateReturnRequest(context.Background(), tt.in)
			require.Error(t, err)
			assert.True(t, tt.check(err), err.Error())
		})
	}

	list, err := f.wf.ListReturns(context.Background(), domain.ReturnFilter{OrderID: o.ID})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestCreateReturnRequest_NotificationFailureIsWarning(t *testing.T) {
	f := newFixture(t)
	ctrl := gomock.NewController(t)
	notifier := mocks.NewMockNotifier(ctrl)
	notifier.EXPECT().
		Notify(gomock.Any(), notify.KindReturnRequested, operatorEmail, gomock.Any()).
		Return(errors.New("queue full"))
	wf := f.build(notifier)

	o := f.order(t, domain.OrderStatusCompleted, time.Hour)
	res, err := wf.CreateReturnRequest(context.Background(), returns.CreateReturnInput{
		OrderID: o.ID, OrderItemID: "poster", Reason: "Torn corner",
	})
	require.NoError(t, err)
	assert.False(t, res.Notified)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "queue full")

	_, err = f.store.GetReturn(context.Background(), res.Return.ID)
	assert.NoError(t, err)
}

func TestGetCustomerReturns(t *testing.T) {
	f := newFixture(t)
	o := f.order(t, domain.OrderStatusCompleted, time.Hour)
	a := f.request(t, o, "poster")
	b := f.request(t, o, "tee")

	list, err := f.wf.GetCustomerReturns(context.Background(), "cust-1")
	require.NoError(t, err)
	ids := []string{list[0].ID, list[1].ID}
	assert.ElementsMatch(t, []string{a.ID, b.ID}, ids)

	none, err := f.wf.GetCustomerReturns(context.Background(), "cust-9")
	require.NoError(t, err)
	assert.Empty(t, none)

	_, err = f.wf.GetCustomerReturns(context.Background(), "")
	assert.True(t, domain.IsValidation(err))

	got, err := f.wf.GetReturnRequest(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID)
}

// ============================================================================
// Status updates
// ============================================================================

func TestUpdateReturnStatus_Transitions(t *testing.T) {
	tests := []struct {
		path []domain.ReturnStatus
		ok   bool
	}{
		{[]domain.ReturnStatus{domain.ReturnStatusApproved}, true},
		{[]domain.ReturnStatus{domain.ReturnStatusRejected}, true},
		{[]domain.ReturnStatus{domain.ReturnStatusApproved, domain.ReturnStatusProcessing, domain.ReturnStatusCompleted}, true},
		{[]domain.ReturnStatus{domain.ReturnStatusApproved, domain.ReturnStatusRejected}, true},
		{[]domain.ReturnStatus{domain.ReturnStatusProcessing}, false},
		{[]domain.ReturnStatus{domain.ReturnStatusCompleted}, false},
		{[]domain.ReturnStatus{domain.ReturnStatusApproved, domain.ReturnStatusPending}, false},
		{[]domain.ReturnStatus{domain.ReturnStatusRejected, domain.ReturnStatusApproved}, false},
	}

	for _, tt := range tests {
		f := newFixture(t)
		r := f.request(t, f.order(t, domain.OrderStatusCompleted, time.Hour), "poster")

		var err error
		for _, next := range tt.path {
			if _, err = f.wf.UpdateReturnStatus(context.Background(), r.ID, next, returns.StatusChange{}); err != nil {
				break
			}
		}
		if tt.ok {
			assert.NoError(t, err, "%v", tt.path)
		} else {
			assert.True(t, domain.IsInvalidTransition(err), "%v", tt.path)
		}
	}
}

func TestUpdateReturnStatus_CompletionStampsProcessedAt(t *testing.T) {
	f := newFixture(t)
	r := f.approved(t)
	ctx := context.Background()

	_, err := f.wf.UpdateReturnStatus(ctx, r.ID, domain.ReturnStatusProcessing, returns.StatusChange{})
	require.NoError(t, err)

	refund := 1500.0
	done, err := f.wf.UpdateReturnStatus(ctx, r.ID, domain.ReturnStatusCompleted, returns.StatusChange{
		AdminNote:    "Refund issued",
		RefundAmount: &refund,
		RefundMethod: "original_payment",
	})
	require.NoError(t, err)
	require.NotNil(t, done.ProcessedAt)
	assert.Equal(t, now, *done.ProcessedAt)

	stored, err := f.store.GetReturn(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ReturnStatusCompleted, stored.Status)
	require.NotNil(t, stored.RefundAmount)
	assert.Equal(t, 1500.0, *stored.RefundAmount)
	assert.Equal(t, "Refund issued", stored.AdminNote)

	changes := f.messages(notify.KindReturnStatusChanged)
	require.Len(t, changes, 3)
	assert.Equal(t, customerEmail, changes[2].Recipient)
	assert.Equal(t, "completed", changes[2].Data["status"])
}

func TestUpdateReturnStatus_Validation(t *testing.T) {
	f := newFixture(t)
	r := f.request(t, f.order(t, domain.OrderStatusCompleted, time.Hour), "poster")
	negative := -1.0

	_, err := f.wf.UpdateReturnStatus(context.Background(), r.ID, "refunded", returns.StatusChange{})
	assert.True(t, domain.IsValidation(err))

	_, err = f.wf.UpdateReturnStatus(context.Background(), r.ID, domain.ReturnStatusApproved, returns.StatusChange{RefundAmount: &negative})
	assert.True(t, domain.IsValidation(err))

	_, err = f.wf.UpdateReturnStatus(context.Background(), "missing", domain.ReturnStatusApproved, returns.StatusChange{})
	assert.True(t, domain.IsNotFound(err))
}

// ============================================================================
// Reverse pickup
// ============================================================================

func TestScheduleReturnPickup(t *testing.T) {
	f := newFixture(t)
	r := f.approved(t)
	date := now.Add(48 * time.Hour)

	updated, err := f.wf.ScheduleReturnPickup(context.Background(), r.ID, returns.PickupPreferences{PreferredDate: date})
	require.NoError(t, err)
	assert.Equal(t, domain.ReturnStatusProcessing, updated.Status)
	assert.NotEmpty(t, updated.TrackingNumber)
	assert.NotEmpty(t, updated.PickupID)

	req := f.gateway.LastReversePickup
	require.NotNil(t, req)
	assert.Equal(t, r.ID, req.ReturnRef)
	assert.Equal(t, "Asha Rao", req.CustomerName)
	assert.Equal(t, "9876543210", req.CustomerPhone)
	assert.Equal(t, "400001", req.PickupAddress.Pincode)
	assert.Equal(t, "Mumbai Warehouse", req.WarehouseName)
	assert.Equal(t, "Monsoon Skyline", req.ProductsDesc)
	assert.Equal(t, date, req.PreferredDate)

	stored, err := f.store.GetReturn(context.Background(), r.ID)
	require.NoError(t, err)
	assert.Equal(t, updated.TrackingNumber, stored.TrackingNumber)
	assert.Empty(t, stored.AdminNote)
}

func TestScheduleReturnPickup_AddressOverride(t *testing.T) {
	f := newFixture(t)
	r := f.approved(t)

	_, err := f.wf.ScheduleReturnPickup(context.Background(), r.ID, returns.PickupPreferences{
		CustomerPhone: "9000000000",
		Address:       &domain.Address{Line1: "4 MG Road", City: "Pune", Pincode: "411001"},
	})
	require.NoError(t, err)
	assert.Equal(t, "411001", f.gateway.LastReversePickup.PickupAddress.Pincode)
	assert.Equal(t, "9000000000", f.gateway.LastReversePickup.CustomerPhone)
}

func TestScheduleReturnPickup_CarrierFailureLeavesReturnUntouched(t *testing.T) {
	for _, kind := range []carrier.Kind{carrier.KindNetwork, carrier.KindAuth, carrier.KindValidation} {
		t.Run(string(kind), func(t *testing.T) {
			f := newFixture(t)
			r := f.approved(t)
			f.gateway.Fail(carrier.CapabilityScheduleReversePickup, kind, 500, "carrier failure")

			_, err := f.wf.ScheduleReturnPickup(context.Background(), r.ID, returns.PickupPreferences{})
			require.Error(t, err)
			assert.Equal(t, kind, carrier.KindOf(err))

			stored, err := f.store.GetReturn(context.Background(), r.ID)
			require.NoError(t, err)
			assert.Equal(t, domain.ReturnStatusApproved, stored.Status)
			assert.Empty(t, stored.TrackingNumber)
			assert.Equal(t, r.UpdatedAt, stored.UpdatedAt)
		})
	}
}

func TestScheduleReturnPickup_RequiresApproval(t *testing.T) {
	f := newFixture(t)
	r := f.request(t, f.order(t, domain.OrderStatusCompleted, time.Hour), "poster")

	_, err := f.wf.ScheduleReturnPickup(context.Background(), r.ID, returns.PickupPreferences{})
	assert.True(t, domain.IsInvalidTransition(err))
	assert.Zero(t, f.gateway.Calls(carrier.CapabilityScheduleReversePickup))
}

func TestTrackReturnPickup(t *testing.T) {
	f := newFixture(t)
	r := f.approved(t)

	_, err := f.wf.TrackReturnPickup(context.Background(), r.ID)
	assert.True(t, domain.IsValidation(err))

	r, err = f.wf.ScheduleReturnPickup(context.Background(), r.ID, returns.PickupPreferences{})
	require.NoError(t, err)
	f.gateway.SetTracking(r.TrackingNumber, carrier.StatusPickedUp,
		carrier.TrackingEvent{Status: carrier.StatusPickedUp, Location: "Mumbai", Timestamp: now})

	tr, err := f.wf.TrackReturnPickup(context.Background(), r.ID)
	require.NoError(t, err)
	assert.Equal(t, carrier.StatusPickedUp, tr.CarrierStatus)
	assert.Equal(t, domain.ReturnStatusProcessing, tr.MappedStatus)
	require.Len(t, tr.Events, 1)
	assert.Equal(t, domain.EventSourceCarrier, tr.Events[0].Source)

	stored, err := f.store.GetReturn(context.Background(), r.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.TrackingEvents)
}

func TestUpdateReturnStatusFromTracking(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r, err := f.wf.ScheduleReturnPickup(ctx, f.approved(t).ID, returns.PickupPreferences{})
	require.NoError(t, err)

	pickedUp := carrier.TrackingEvent{Status: carrier.StatusPickedUp, Location: "Mumbai", Timestamp: now}
	f.gateway.SetTracking(r.TrackingNumber, carrier.StatusPickedUp, pickedUp)

	got, changed, err := f.wf.UpdateReturnStatusFromTracking(ctx, r.ID)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, domain.ReturnStatusProcessing, got.Status)
	assert.Len(t, got.TrackingEvents, 1)

	before, err := f.store.GetReturn(ctx, r.ID)
	require.NoError(t, err)

	// Same tracking again: nothing to write.
	_, changed, err = f.wf.UpdateReturnStatusFromTracking(ctx, r.ID)
	require.NoError(t, err)
	assert.False(t, changed)
	after, err := f.store.GetReturn(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	f.gateway.SetTracking(r.TrackingNumber, carrier.StatusProcessed, pickedUp,
		carrier.TrackingEvent{Status: carrier.StatusDeliveredToWarehouse, Location: "Bhiwandi", Timestamp: now.Add(24 * time.Hour)},
		carrier.TrackingEvent{Status: carrier.StatusProcessed, Location: "Bhiwandi", Timestamp: now.Add(30 * time.Hour)},
	)
	got, changed, err = f.wf.UpdateReturnStatusFromTracking(ctx, r.ID)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, domain.ReturnStatusCompleted, got.Status)
	assert.NotNil(t, got.ProcessedAt)
	assert.Len(t, got.TrackingEvents, 3)
}

func TestUpdateReturnStatusFromTracking_CarrierErrorSurfaces(t *testing.T) {
	f := newFixture(t)
	r, err := f.wf.ScheduleReturnPickup(context.Background(), f.approved(t).ID, returns.PickupPreferences{})
	require.NoError(t, err)
	f.gateway.Fail(carrier.CapabilityTrackReversePickup, carrier.KindAuth, 401, "Unauthorized")

	_, _, err = f.wf.UpdateReturnStatusFromTracking(context.Background(), r.ID)
	assert.ErrorIs(t, err, carrier.ErrAuth)

	stored, err := f.store.GetReturn(context.Background(), r.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ReturnStatusProcessing, stored.Status)
}

func TestCancelReturnPickup(t *testing.T) {
	f := newFixture(t)
	r, err := f.wf.ScheduleReturnPickup(context.Background(), f.approved(t).ID, returns.PickupPreferences{})
	require.NoError(t, err)

	f.gateway.Fail(carrier.CapabilityCancelReversePickup, carrier.KindNetwork, 503, "unavailable")
	_, err = f.wf.CancelReturnPickup(context.Background(), r.ID, "Customer withdrew")
	assert.True(t, carrier.IsNetwork(err))
	stored, err := f.store.GetReturn(context.Background(), r.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ReturnStatusProcessing, stored.Status)

	f.gateway.Succeed(carrier.CapabilityCancelReversePickup)
	cancelled, err := f.wf.CancelReturnPickup(context.Background(), r.ID, "Customer withdrew")
	require.NoError(t, err)
	assert.Equal(t, domain.ReturnStatusRejected, cancelled.Status)
	assert.Equal(t, "Customer withdrew", cancelled.AdminNote)
	assert.Equal(t, 2, f.gateway.Calls(carrier.CapabilityCancelReversePickup))

	_, err = f.wf.CancelReturnPickup(context.Background(), r.ID, "again")
	assert.True(t, domain.IsInvalidTransition(err))
}

func TestUpdateReturnStatus_RejectWithBookedPickupRefused(t *testing.T) {
	f := newFixture(t)
	r, err := f.wf.ScheduleReturnPickup(context.Background(), f.approved(t).ID, returns.PickupPreferences{})
	require.NoError(t, err)
	require.NotEmpty(t, r.TrackingNumber)

	_, err = f.wf.UpdateReturnStatus(context.Background(), r.ID, domain.ReturnStatusRejected, returns.StatusChange{AdminNote: "Damaged in photos"})
	assert.True(t, domain.IsInvalidTransition(err))
	assert.ErrorContains(t, err, "cancelReturnPickup")
	assert.Zero(t, f.gateway.Calls(carrier.CapabilityCancelReversePickup))

	stored, err := f.store.GetReturn(context.Background(), r.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ReturnStatusProcessing, stored.Status)
	assert.Empty(t, stored.AdminNote)
}

func TestCancelReturnPickup_ApprovedWithoutPickup(t *testing.T) {
	f := newFixture(t)
	r := f.approved(t)

	cancelled, err := f.wf.CancelReturnPickup(context.Background(), r.ID, "")
	require.NoError(t, err)
	assert.Equal(t, domain.ReturnStatusRejected, cancelled.Status)
	assert.Zero(t, f.gateway.Calls(carrier.CapabilityCancelReversePickup))
}

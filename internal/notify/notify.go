// Package notify delivers templated notifications. Rendering and final
// transport (email, SMS) happen downstream; this package only hands off the
// kind, recipient and template data.
package notify

//go:generate mockgen -source ./notify.go -destination=./mocks/notifier.go -package=mocks

import (
	"context"
	"time"
)

// Kind names a notification template.
type Kind string

const (
	KindOrderConfirmation   Kind = "order_confirmation"
	KindReturnRequested     Kind = "return_requested"
	KindReturnStatusChanged Kind = "return_status_changed"
	KindPickupFailed        Kind = "pickup_failed"
)

// Notifier sends one notification and reports whether it was accepted.
type Notifier interface {
	Notify(ctx context.Context, kind Kind, recipient string, data map[string]any) error
}

// Message is the payload published to message transports.
type Message struct {
	Kind      Kind           `json:"kind"`
	Recipient string         `json:"recipient"`
	Data      map[string]any `json:"data"`
	SentAt    time.Time      `json:"sentAt"`
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, kind Kind, recipient string, data map[string]any) error

func (f NotifierFunc) Notify(ctx context.Context, kind Kind, recipient string, data map[string]any) error {
	return f(ctx, kind, recipient, data)
}

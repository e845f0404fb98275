// Package downloads issues time-scoped download links for digital artwork and
// counts downloads per product.
package downloads

import (
	"context"
	"time"

	"github.com/tournevent/postershop/internal/domain"
)

// Link is a signed download link for one order item.
type Link struct {
	ItemID    string    `json:"itemId"`
	ProductID string    `json:"productId"`
	Title     string    `json:"title"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Signer issues download links.
type Signer interface {
	Sign(ctx context.Context, orderID string, item domain.OrderItem) (Link, error)
}

// Counter tracks how often a product has been downloaded.
type Counter interface {
	Increment(ctx context.Context, productID string) (int64, error)
}

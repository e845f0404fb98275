package downloads

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/tournevent/postershop/internal/domain"
)

const tokenIssuer = "postershop"

// ErrInvalidToken is returned when a download token fails verification.
var ErrInvalidToken = errors.New("invalid download token")

// Claims identify the order item a download token grants access to.
type Claims struct {
	OrderID   string `json:"oid"`
	ItemID    string `json:"iid"`
	ProductID string `json:"pid"`
	jwt.RegisteredClaims
}

// JWTSigner signs HS256 download tokens and appends them to a base URL.
type JWTSigner struct {
	secret  []byte
	baseURL string
	ttl     time.Duration
	now     func() time.Time
}

// NewJWTSigner creates a signer. ttl bounds how long a link stays valid.
func NewJWTSigner(secret, baseURL string, ttl time.Duration) (*JWTSigner, error) {
	if secret == "" {
		return nil, fmt.Errorf("download secret not set")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("download ttl must be positive")
	}
	return &JWTSigner{
		secret:  []byte(secret),
		baseURL: baseURL,
		ttl:     ttl,
		now:     time.Now,
	}, nil
}

func (s *JWTSigner) Sign(ctx context.Context, orderID string, item domain.OrderItem) (Link, error) {
	issued := s.now()
	expires := issued.Add(s.ttl)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		OrderID:   orderID,
		ItemID:    item.ID,
		ProductID: item.ProductID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   item.ProductID,
			IssuedAt:  jwt.NewNumericDate(issued),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	})
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return Link{}, fmt.Errorf("sign download token: %w", err)
	}

	return Link{
		ItemID:    item.ID,
		ProductID: item.ProductID,
		Title:     item.Title,
		URL:       s.baseURL + "?token=" + url.QueryEscape(signed),
		ExpiresAt: expires,
	}, nil
}

// Verify parses a token and checks signature, issuer and expiry.
func (s *JWTSigner) Verify(token string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	},
		jwt.WithIssuer(tokenIssuer),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

var _ Signer = (*JWTSigner)(nil)

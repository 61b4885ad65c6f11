package web

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"shop-payment-core/internal/domain"
	"shop-payment-core/internal/domain/ports/adapter"
)

var _ adapter.CallbackSigner = (*StateTokenSigner)(nil)

// StateTokenSigner mints the HS256 state token carried in every callback URL.
// The token binds the URL to one payment, so a forged return for a different
// record dies here instead of reaching the verification path.
type StateTokenSigner struct {
	secret []byte
}

func NewStateTokenSigner(secret string) *StateTokenSigner {
	return &StateTokenSigner{secret: []byte(secret)}
}

type stateClaims struct {
	PaymentID string `json:"pid"`
	jwt.RegisteredClaims
}

func (s *StateTokenSigner) Sign(paymentID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := stateClaims{
		PaymentID: paymentID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Subject:   "payment-callback",
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

func (s *StateTokenSigner) Validate(token, paymentID string) error {
	parsed, err := jwt.ParseWithClaims(token, &stateClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return fmt.Errorf("%w: state token: %v", domain.ErrValidation, err)
	}
	claims, ok := parsed.Claims.(*stateClaims)
	if !ok || claims.PaymentID != paymentID {
		return fmt.Errorf("%w: state token bound to another payment", domain.ErrValidation)
	}
	return nil
}

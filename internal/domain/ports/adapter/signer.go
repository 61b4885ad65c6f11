package adapter

import "time"

// CallbackSigner binds a callback URL to its payment so a forged return for a
// different record is rejected before any verification work.
type CallbackSigner interface {
	Sign(paymentID string, ttl time.Duration) (string, error)
	Validate(token, paymentID string) error
}

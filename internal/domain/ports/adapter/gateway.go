package adapter

import (
	"context"
	"encoding/json"
)

// PaymentRequest carries what a provider needs to open a remote transaction.
// Amount is always in the provider's minor unit (IRR).
type PaymentRequest struct {
	Amount      int64
	Description string
	CallbackURL string
	PayerPhone  string
	PayerEmail  string
}

// CreateResult is the provider's answer to a payment request.
type CreateResult struct {
	GatewayTxID string          // provider authority/token handle
	RedirectURL string          // where to send the payer
	Raw         json.RawMessage // provider payload, preserved verbatim
}

// VerifyInput is what the payer's return (or a webhook) handed us.
type VerifyInput struct {
	GatewayTxID string // Authority for the authority family, token for the token family
	StatusParam string // provider status flag, e.g. "OK" / "NOK"
}

// VerifyResult is the outcome of a server-side verification call.
type VerifyResult struct {
	Settled   bool
	BankRefID string          // processor reference number
	CardPAN   string          // masked card identifier, never the full PAN
	Message   string          // provider-code-mapped human-readable outcome
	Raw       json.RawMessage // provider payload, preserved verbatim
}

// RefundResult captures a minimal, provider-agnostic result of a refund call.
type RefundResult struct {
	GatewayRefundID string
	Status          string // provider status, e.g. PENDING / DONE
	Raw             json.RawMessage
}

// Gateway is the hex port for payment providers. Implementations translate
// provider-specific numeric codes into the domain error taxonomy
// (ErrGatewayRejected / ErrGatewayConnection / ErrPayerCancelled /
// ErrVerificationMismatch) before anything reaches a caller; they never touch
// the PaymentRecord themselves.
type Gateway interface {
	Name() string

	// CreatePayment opens a remote transaction and returns the redirect target.
	CreatePayment(ctx context.Context, req PaymentRequest) (CreateResult, error)

	// VerifyPayment settles or rejects a returned transaction. An explicit
	// cancellation flag in the input short-circuits to ErrPayerCancelled
	// without a network call. expectedAmount is always the amount stored on
	// the record, never anything client-supplied, and a provider-reported
	// amount mismatch is ErrVerificationMismatch, never silently coerced.
	VerifyPayment(ctx context.Context, in VerifyInput, expectedAmount int64) (VerifyResult, error)

	// RefundPayment returns funds from a settled transaction. Providers
	// without a refund API return domain.ErrRefundUnsupported.
	RefundPayment(ctx context.Context, gatewayTxID string, amount int64, description, method, reason string) (RefundResult, error)
}

// Registry resolves a gateway by its identifier; unknown identifiers fail with
// domain.ErrUnknownGateway at lookup time.
type Registry interface {
	Get(id string) (Gateway, error)
	IDs() []string
}

package model

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"shop-payment-core/internal/domain"
)

type PaymentStatus string

const (
	PaymentStatusInitiated  PaymentStatus = "initiated"  // record created, nothing sent to the provider yet
	PaymentStatusRedirected PaymentStatus = "redirected" // provider accepted the request, payer sent to the gateway
	PaymentStatusPending    PaymentStatus = "pending"    // awaiting the payer's return
	PaymentStatusProcessing PaymentStatus = "processing" // callback received, being handled
	PaymentStatusVerifying  PaymentStatus = "verifying"  // server-side verification call in flight
	PaymentStatusSuccess    PaymentStatus = "success"
	PaymentStatusFailed     PaymentStatus = "failed"
	PaymentStatusCancelled  PaymentStatus = "cancelled"
	PaymentStatusTimeout    PaymentStatus = "timeout"
	PaymentStatusError      PaymentStatus = "error" // unrecoverable technical fault; business outcome unknown
	PaymentStatusRefunded   PaymentStatus = "refunded"
	PaymentStatusPartRefund PaymentStatus = "partially_refunded"
	PaymentStatusDisputed   PaymentStatus = "disputed"
)

// RialPerToman is the fixed minor/major multiplier: amounts are stored in
// Rials (IRR, what the gateways bill) and displayed in Tomans (IRT).
const RialPerToman = 10

// ParsePaymentStatus validates a stored status string against the closed set.
func ParsePaymentStatus(s string) (PaymentStatus, error) {
	switch st := PaymentStatus(s); st {
	case PaymentStatusInitiated, PaymentStatusRedirected, PaymentStatusPending,
		PaymentStatusProcessing, PaymentStatusVerifying, PaymentStatusSuccess,
		PaymentStatusFailed, PaymentStatusCancelled, PaymentStatusTimeout,
		PaymentStatusError, PaymentStatusRefunded, PaymentStatusPartRefund,
		PaymentStatusDisputed:
		return st, nil
	default:
		return "", fmt.Errorf("%w: payment status %q", domain.ErrInvalidArgument, s)
	}
}

// IsTerminal reports whether no further gateway-driven transition may occur.
func (s PaymentStatus) IsTerminal() bool {
	switch s {
	case PaymentStatusSuccess, PaymentStatusFailed, PaymentStatusCancelled,
		PaymentStatusTimeout, PaymentStatusError, PaymentStatusRefunded,
		PaymentStatusPartRefund, PaymentStatusDisputed:
		return true
	}
	return false
}

// IsSettled reports membership in the settled family (funds captured).
func (s PaymentStatus) IsSettled() bool {
	return s == PaymentStatusSuccess || s == PaymentStatusRefunded || s == PaymentStatusPartRefund
}

// IsRetryable reports whether a terminal status admits a fresh attempt.
func (s PaymentStatus) IsRetryable() bool {
	return s == PaymentStatusFailed || s == PaymentStatusTimeout || s == PaymentStatusCancelled
}

// transitions is the closed edge set of the lifecycle. Retry is absent on
// purpose: it creates a new record instead of mutating an old one.
var transitions = map[PaymentStatus][]PaymentStatus{
	PaymentStatusInitiated:  {PaymentStatusRedirected, PaymentStatusFailed, PaymentStatusTimeout, PaymentStatusCancelled, PaymentStatusError},
	PaymentStatusRedirected: {PaymentStatusPending, PaymentStatusProcessing, PaymentStatusVerifying, PaymentStatusFailed, PaymentStatusTimeout, PaymentStatusCancelled, PaymentStatusError},
	PaymentStatusPending:    {PaymentStatusProcessing, PaymentStatusVerifying, PaymentStatusFailed, PaymentStatusTimeout, PaymentStatusCancelled, PaymentStatusError},
	PaymentStatusProcessing: {PaymentStatusVerifying, PaymentStatusFailed, PaymentStatusCancelled, PaymentStatusError},
	PaymentStatusVerifying:  {PaymentStatusSuccess, PaymentStatusFailed, PaymentStatusCancelled, PaymentStatusError},
	PaymentStatusSuccess:    {PaymentStatusRefunded, PaymentStatusPartRefund, PaymentStatusDisputed},
	// A partially refunded record accepts further partial refunds.
	PaymentStatusPartRefund: {PaymentStatusRefunded, PaymentStatusPartRefund, PaymentStatusDisputed},
}

// CanTransition reports whether from -> to is a legal lifecycle edge.
func CanTransition(from, to PaymentStatus) bool {
	for _, t := range transitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

// PaymentRecord is one payment attempt against a gateway. Terminal records are
// never deleted; a retry links a fresh record to the same order.
type PaymentRecord struct {
	ID            string // UUID
	TrackingCode  string // business-facing unique code, immutable
	OrderID       string
	PayerPhone    string
	PayerEmail    string
	Amount        int64  // minor unit (IRR), what the gateway bills
	DisplayAmount int64  // major unit (IRT); Amount == DisplayAmount * RialPerToman
	Provider      string // gateway identifier, e.g. "zarinpal"
	Status        PaymentStatus
	GatewayTxID   *string // provider authority/token; nil until the provider replies
	BankRefID     *string // processor reference; nil until settlement
	CardPAN       *string // masked card number, never the full PAN
	ErrorMessage  string
	RetryCount    int
	PrevAttemptID *string // prior failed attempt for the same order, if any
	CreatedAt     time.Time
	UpdatedAt     time.Time
	ExpiresAt     *time.Time // only set while pre-terminal
	CompletedAt   *time.Time // set exactly once, on the first terminal transition
	RawResponse   json.RawMessage
	Log           string // append-only lifecycle log, lines sorted by timestamp prefix
}

// NewPaymentRecord builds an INITIATED record from a major-unit amount.
func NewPaymentRecord(orderID, trackingCode, provider string, displayAmount, minAmount int64, payerPhone, payerEmail string, expiry time.Duration) (*PaymentRecord, error) {
	if orderID == "" || trackingCode == "" || provider == "" {
		return nil, fmt.Errorf("%w: order, tracking code and provider are required", domain.ErrInvalidArgument)
	}
	amount := displayAmount * RialPerToman
	if displayAmount <= 0 {
		return nil, fmt.Errorf("%w: non-positive amount %d", domain.ErrValidation, displayAmount)
	}
	if amount < minAmount {
		return nil, fmt.Errorf("%w: amount %d below minimum %d", domain.ErrValidation, amount, minAmount)
	}
	now := time.Now()
	exp := now.Add(expiry)
	return &PaymentRecord{
		ID:            uuid.NewString(),
		TrackingCode:  trackingCode,
		OrderID:       orderID,
		PayerPhone:    payerPhone,
		PayerEmail:    payerEmail,
		Amount:        amount,
		DisplayAmount: displayAmount,
		Provider:      provider,
		Status:        PaymentStatusInitiated,
		CreatedAt:     now,
		UpdatedAt:     now,
		ExpiresAt:     &exp,
	}, nil
}

// Expired reports whether the attempt's payment window has elapsed.
func (p *PaymentRecord) Expired(now time.Time) bool {
	return p.ExpiresAt != nil && !p.Status.IsTerminal() && p.ExpiresAt.Before(now)
}

// Transition applies a lifecycle edge and the bookkeeping the guard rules
// demand: completion timestamp on the first terminal transition, expiry
// cleared once terminal, and one log line per transition.
func (p *PaymentRecord) Transition(to PaymentStatus, actor, detail string) error {
	if !CanTransition(p.Status, to) {
		return fmt.Errorf("%w: %s -> %s", domain.ErrIllegalTransition, p.Status, to)
	}
	now := time.Now()
	p.Status = to
	p.UpdatedAt = now
	if to.IsTerminal() {
		if p.CompletedAt == nil {
			p.CompletedAt = &now
		}
		p.ExpiresAt = nil
	}
	p.AppendLog(now, actor, fmt.Sprintf("-> %s: %s", to, detail))
	return nil
}

// AppendLog adds one line to the lifecycle log. Lines carry an RFC3339
// timestamp prefix and the log is re-sorted on every write so near-simultaneous
// appends still read chronologically.
func (p *PaymentRecord) AppendLog(at time.Time, actor, message string) {
	line := fmt.Sprintf("%s | %s | %s", at.UTC().Format(time.RFC3339Nano), actor, message)
	lines := []string{}
	if p.Log != "" {
		lines = strings.Split(p.Log, "\n")
	}
	lines = append(lines, line)
	sort.Strings(lines)
	p.Log = strings.Join(lines, "\n")
}

// RemainingRefundable is the settled amount not yet claimed by succeeded refunds.
func (p *PaymentRecord) RemainingRefundable(refundedSoFar int64) int64 {
	if !p.Status.IsSettled() {
		return 0
	}
	return p.Amount - refundedSoFar
}

package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"shop-payment-core/internal/domain"
)

type RefundStatus string

const (
	RefundStatusRequested  RefundStatus = "requested"
	RefundStatusProcessing RefundStatus = "processing"
	RefundStatusSucceeded  RefundStatus = "succeeded"
	RefundStatusFailed     RefundStatus = "failed"
	RefundStatusCancelled  RefundStatus = "cancelled"
)

func (s RefundStatus) IsTerminal() bool {
	return s == RefundStatusSucceeded || s == RefundStatusFailed || s == RefundStatusCancelled
}

// RefundMethod and RefundReason follow the ZarinPal refund API codes; other
// providers ignore them.
type RefundMethod string

const (
	RefundMethodPaya RefundMethod = "PAYA" // scheduled interbank transfer
	RefundMethodCard RefundMethod = "CARD" // instant to card
)

type RefundReason string

const (
	RefundReasonCustomerRequest RefundReason = "CUSTOMER_REQUEST"
	RefundReasonDuplicate       RefundReason = "DUPLICATE_TRANSACTION"
	RefundReasonSuspicious      RefundReason = "SUSPICIOUS_TRANSACTION"
	RefundReasonOther           RefundReason = "OTHER"
)

// RefundRecord is one refund request against a settled PaymentRecord.
type RefundRecord struct {
	ID              string // UUID
	PaymentID       string
	Amount          int64 // minor unit; cumulative succeeded refunds never exceed the parent's amount
	Status          RefundStatus
	Method          RefundMethod
	Reason          RefundReason
	RequestedBy     string
	Description     string
	GatewayRefundID *string
	ErrorMessage    string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	CompletedAt     *time.Time
}

// NewRefundRecord validates the request against its settled parent.
// remaining is the parent's amount minus refunds already succeeded.
func NewRefundRecord(parent *PaymentRecord, amount, remaining int64, requestedBy, description string, method RefundMethod, reason RefundReason) (*RefundRecord, error) {
	if parent == nil {
		return nil, fmt.Errorf("%w: nil parent payment", domain.ErrInvalidArgument)
	}
	if !parent.Status.IsSettled() || parent.Status == PaymentStatusRefunded {
		return nil, fmt.Errorf("%w: parent status is %s", domain.ErrRefundNotAllowed, parent.Status)
	}
	if amount <= 0 || amount > remaining {
		return nil, fmt.Errorf("%w: refund amount %d exceeds remaining %d", domain.ErrRefundNotAllowed, amount, remaining)
	}
	now := time.Now()
	return &RefundRecord{
		ID:          uuid.NewString(),
		PaymentID:   parent.ID,
		Amount:      amount,
		Status:      RefundStatusRequested,
		Method:      method,
		Reason:      reason,
		RequestedBy: requestedBy,
		Description: description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// Transition moves the refund through its sub-lifecycle.
func (r *RefundRecord) Transition(to RefundStatus) error {
	ok := false
	switch r.Status {
	case RefundStatusRequested:
		ok = to == RefundStatusProcessing || to == RefundStatusFailed || to == RefundStatusCancelled
	case RefundStatusProcessing:
		ok = to == RefundStatusSucceeded || to == RefundStatusFailed
	}
	if !ok {
		return fmt.Errorf("%w: refund %s -> %s", domain.ErrIllegalTransition, r.Status, to)
	}
	now := time.Now()
	r.Status = to
	r.UpdatedAt = now
	if to.IsTerminal() {
		r.CompletedAt = &now
	}
	return nil
}

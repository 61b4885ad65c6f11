//go:build !integration

package model

import (
	"errors"
	"testing"
	"time"

	"shop-payment-core/internal/domain"
)

// --- RefundRecord Model Tests ---

func settledParent(t *testing.T) *PaymentRecord {
	t.Helper()
	p, err := NewPaymentRecord("order-1", "PAY-ABCD1234", "zarinpal", 150_000, 10_000, "", "", 30*time.Minute)
	if err != nil {
		t.Fatalf("parent: %v", err)
	}
	for _, to := range []PaymentStatus{PaymentStatusRedirected, PaymentStatusVerifying, PaymentStatusSuccess} {
		if err := p.Transition(to, "test", ""); err != nil {
			t.Fatalf("parent transition to %s: %v", to, err)
		}
	}
	return p
}

func TestNewRefundRecord(t *testing.T) {
	t.Run("should create a requested refund against a settled parent", func(t *testing.T) {
		parent := settledParent(t)
		rr, err := NewRefundRecord(parent, 500_000, parent.Amount, "operator", "damaged item", RefundMethodPaya, RefundReasonCustomerRequest)
		if err != nil {
			t.Fatalf("expected no error, but got: %v", err)
		}
		if rr.Status != RefundStatusRequested {
			t.Errorf("expected status 'requested', got '%s'", rr.Status)
		}
		if rr.PaymentID != parent.ID {
			t.Error("expected refund to reference the parent payment")
		}
	})

	t.Run("should reject an unsettled parent", func(t *testing.T) {
		parent, _ := NewPaymentRecord("order-1", "PAY-ABCD1234", "zarinpal", 150_000, 10_000, "", "", time.Minute)
		_, err := NewRefundRecord(parent, 1000, 1_500_000, "operator", "", RefundMethodPaya, RefundReasonOther)
		if !errors.Is(err, domain.ErrRefundNotAllowed) {
			t.Errorf("expected ErrRefundNotAllowed, got %v", err)
		}
	})

	t.Run("should reject a fully refunded parent", func(t *testing.T) {
		parent := settledParent(t)
		if err := parent.Transition(PaymentStatusRefunded, "operator", "fully refunded"); err != nil {
			t.Fatalf("transition: %v", err)
		}
		_, err := NewRefundRecord(parent, 1000, 0, "operator", "", RefundMethodPaya, RefundReasonOther)
		if !errors.Is(err, domain.ErrRefundNotAllowed) {
			t.Errorf("expected ErrRefundNotAllowed, got %v", err)
		}
	})

	t.Run("should reject an amount above the remaining balance", func(t *testing.T) {
		parent := settledParent(t)
		_, err := NewRefundRecord(parent, parent.Amount+1, parent.Amount, "operator", "", RefundMethodCard, RefundReasonDuplicate)
		if !errors.Is(err, domain.ErrRefundNotAllowed) {
			t.Errorf("expected ErrRefundNotAllowed, got %v", err)
		}
	})
}

func TestRefundRecord_Transition(t *testing.T) {
	newRefund := func(t *testing.T) *RefundRecord {
		t.Helper()
		rr, err := NewRefundRecord(settledParent(t), 500_000, 1_500_000, "operator", "", RefundMethodPaya, RefundReasonCustomerRequest)
		if err != nil {
			t.Fatalf("refund: %v", err)
		}
		return rr
	}

	t.Run("requested to processing to succeeded", func(t *testing.T) {
		rr := newRefund(t)
		if err := rr.Transition(RefundStatusProcessing); err != nil {
			t.Fatalf("processing: %v", err)
		}
		if err := rr.Transition(RefundStatusSucceeded); err != nil {
			t.Fatalf("succeeded: %v", err)
		}
		if rr.CompletedAt == nil {
			t.Error("expected CompletedAt on a terminal refund")
		}
	})

	t.Run("requested may be cancelled, processing may not", func(t *testing.T) {
		rr := newRefund(t)
		if err := rr.Transition(RefundStatusCancelled); err != nil {
			t.Fatalf("cancel requested: %v", err)
		}

		rr = newRefund(t)
		_ = rr.Transition(RefundStatusProcessing)
		if err := rr.Transition(RefundStatusCancelled); !errors.Is(err, domain.ErrIllegalTransition) {
			t.Errorf("expected ErrIllegalTransition cancelling a processing refund, got %v", err)
		}
	})

	t.Run("requested may fail without ever processing", func(t *testing.T) {
		rr := newRefund(t)
		if err := rr.Transition(RefundStatusFailed); err != nil {
			t.Fatalf("fail requested: %v", err)
		}
		if rr.CompletedAt == nil {
			t.Error("expected CompletedAt on a terminal refund")
		}
	})

	t.Run("terminal refunds accept nothing further", func(t *testing.T) {
		rr := newRefund(t)
		_ = rr.Transition(RefundStatusProcessing)
		_ = rr.Transition(RefundStatusFailed)
		if err := rr.Transition(RefundStatusProcessing); !errors.Is(err, domain.ErrIllegalTransition) {
			t.Errorf("expected ErrIllegalTransition, got %v", err)
		}
	})
}

func TestOrder_PayableCashAmount(t *testing.T) {
	order := &Order{
		ID: "order-1",
		Items: []OrderItem{
			{Title: "keyboard", UnitPrice: 100_000, Quantity: 1, Settlement: SettlementCash},
			{Title: "monitor", UnitPrice: 25_000, Quantity: 2, Settlement: SettlementCash},
			{Title: "financed laptop", UnitPrice: 9_000_000, Quantity: 1, Settlement: SettlementDeferred},
		},
	}
	if got := order.PayableCashAmount(); got != 150_000 {
		t.Errorf("expected 150000 IRT of cash lines, got %d", got)
	}

	deferredOnly := &Order{Items: []OrderItem{{UnitPrice: 1000, Quantity: 1, Settlement: SettlementDeferred}}}
	if got := deferredOnly.PayableCashAmount(); got != 0 {
		t.Errorf("expected 0 for a fully deferred order, got %d", got)
	}
}

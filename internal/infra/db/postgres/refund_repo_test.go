//go:build integration

package postgres

import (
	"context"
	"testing"
	"time"

	"shop-payment-core/internal/domain/model"

	"github.com/google/uuid"
)

func testRefund(paymentID string, amount int64, status model.RefundStatus) *model.RefundRecord {
	now := time.Now().Truncate(time.Millisecond)
	return &model.RefundRecord{
		ID:          uuid.NewString(),
		PaymentID:   paymentID,
		Amount:      amount,
		Status:      status,
		Method:      model.RefundMethodPaya,
		Reason:      model.RefundReasonCustomerRequest,
		RequestedBy: "operator",
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func TestRefundRepo_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode.")
	}

	ctx := context.Background()
	repo := NewRefundRepo(testPool)
	payRepo := NewPaymentRepo(testPool)

	seedPayment := func(t *testing.T) string {
		t.Helper()
		orderID := seedOrder(t, ctx)
		p := testPayment(orderID, "PAY-RFND0001")
		p.Status = model.PaymentStatusSuccess
		if err := payRepo.Save(ctx, nil, p); err != nil {
			t.Fatalf("failed to seed payment: %v", err)
		}
		return p.ID
	}

	t.Run("should save and find a refund", func(t *testing.T) {
		cleanup(t)
		paymentID := seedPayment(t)

		rr := testRefund(paymentID, 500_000, model.RefundStatusRequested)
		if err := repo.Save(ctx, nil, rr); err != nil {
			t.Fatalf("Failed to save refund: %v", err)
		}

		found, err := repo.FindByID(ctx, nil, rr.ID)
		if err != nil {
			t.Fatalf("FindByID failed: %v", err)
		}
		if found.Amount != 500_000 || found.Status != model.RefundStatusRequested {
			t.Error("Did not find the correct refund by ID")
		}

		// Upsert carries the state forward.
		now := time.Now().Truncate(time.Millisecond)
		gwID := "rf-1"
		rr.Status = model.RefundStatusSucceeded
		rr.GatewayRefundID = &gwID
		rr.UpdatedAt = now
		rr.CompletedAt = &now
		if err := repo.Save(ctx, nil, rr); err != nil {
			t.Fatalf("Failed to update refund: %v", err)
		}
		found, _ = repo.FindByID(ctx, nil, rr.ID)
		if found.Status != model.RefundStatusSucceeded {
			t.Errorf("expected status 'succeeded', got '%s'", found.Status)
		}
		if found.GatewayRefundID == nil || *found.GatewayRefundID != gwID {
			t.Error("GatewayRefundID was not updated")
		}
	})

	t.Run("should sum only the succeeded refunds", func(t *testing.T) {
		cleanup(t)
		paymentID := seedPayment(t)

		repo.Save(ctx, nil, testRefund(paymentID, 400_000, model.RefundStatusSucceeded))
		repo.Save(ctx, nil, testRefund(paymentID, 300_000, model.RefundStatusSucceeded))
		repo.Save(ctx, nil, testRefund(paymentID, 200_000, model.RefundStatusFailed))
		repo.Save(ctx, nil, testRefund(paymentID, 100_000, model.RefundStatusRequested))

		sum, err := repo.SumSucceededByPayment(ctx, nil, paymentID)
		if err != nil {
			t.Fatalf("SumSucceededByPayment failed: %v", err)
		}
		if sum != 700_000 {
			t.Errorf("expected sum 700000, got %d", sum)
		}

		records, err := repo.ListByPayment(ctx, nil, paymentID)
		if err != nil {
			t.Fatalf("ListByPayment failed: %v", err)
		}
		if len(records) != 4 {
			t.Errorf("expected 4 refund records, got %d", len(records))
		}
	})

	t.Run("should sum to zero with no refunds", func(t *testing.T) {
		cleanup(t)
		paymentID := seedPayment(t)

		sum, err := repo.SumSucceededByPayment(ctx, nil, paymentID)
		if err != nil {
			t.Fatalf("SumSucceededByPayment failed: %v", err)
		}
		if sum != 0 {
			t.Errorf("expected sum 0, got %d", sum)
		}
	})
}

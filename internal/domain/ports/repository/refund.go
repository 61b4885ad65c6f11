package repository

import (
	"context"

	"shop-payment-core/internal/domain/model"
)

// -----------------------------
// Refunds
// -----------------------------

type RefundRepository interface {
	Save(ctx context.Context, tx Tx, r *model.RefundRecord) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.RefundRecord, error)
	ListByPayment(ctx context.Context, tx Tx, paymentID string) ([]*model.RefundRecord, error)
	// SumSucceededByPayment totals refunds already settled against a payment.
	SumSucceededByPayment(ctx context.Context, tx Tx, paymentID string) (int64, error)
}

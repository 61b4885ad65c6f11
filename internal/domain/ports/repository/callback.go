package repository

import (
	"context"

	"shop-payment-core/internal/domain/model"
)

// -----------------------------
// Callbacks
// -----------------------------

type CallbackRepository interface {
	Save(ctx context.Context, tx Tx, cb *model.CallbackRecord) error
	// MarkProcessed flips the processed flag and stores the response we sent.
	MarkProcessed(ctx context.Context, tx Tx, id string, response string) error
	ListByPayment(ctx context.Context, tx Tx, paymentID string) ([]*model.CallbackRecord, error)
}

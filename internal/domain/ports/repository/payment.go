package repository

import (
	"context"
	"time"

	"shop-payment-core/internal/domain/model"
)

// -----------------------------
// Payments
// -----------------------------

type PaymentRepository interface {
	Save(ctx context.Context, tx Tx, p *model.PaymentRecord) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.PaymentRecord, error)
	FindByTrackingCode(ctx context.Context, tx Tx, code string) (*model.PaymentRecord, error)
	FindByGatewayTxID(ctx context.Context, tx Tx, gatewayTxID string) (*model.PaymentRecord, error)
	// FindActiveByOrder returns the order's non-terminal, unexpired attempt, or
	// domain.ErrNotFound.
	FindActiveByOrder(ctx context.Context, tx Tx, orderID string) (*model.PaymentRecord, error)
	TrackingCodeExists(ctx context.Context, tx Tx, code string) (bool, error)

	// UpdateStatusIfPreterminal commits the transition only when the row is
	// still in one of the expected pre-terminal statuses at write time, so two
	// concurrent finalizers cannot race a record into two terminal states.
	UpdateStatusIfPreterminal(ctx context.Context, tx Tx, p *model.PaymentRecord, expected ...model.PaymentStatus) (bool, error)

	// ListExpired returns pre-terminal records whose expiry is strictly past.
	ListExpired(ctx context.Context, tx Tx, now time.Time, limit int) ([]*model.PaymentRecord, error)
	// ListStaleRedirected returns redirected/pending records older than the
	// cutoff whose callback may have been lost.
	ListStaleRedirected(ctx context.Context, tx Tx, olderThan time.Time, limit int) ([]*model.PaymentRecord, error)
}

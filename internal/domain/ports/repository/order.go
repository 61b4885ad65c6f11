package repository

import (
	"context"

	"shop-payment-core/internal/domain/model"
)

// -----------------------------
// Orders (external collaborator)
// -----------------------------

// OrderRepository is the payment core's narrow view of the order subsystem:
// read access plus the single settlement side effect.
type OrderRepository interface {
	FindByID(ctx context.Context, tx Tx, id string) (*model.Order, error)
	// Confirm flips the order to confirmed. Returns false when the order was
	// already confirmed, so callers can keep the side effect idempotent.
	Confirm(ctx context.Context, tx Tx, id string) (bool, error)
}

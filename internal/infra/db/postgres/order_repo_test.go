//go:build integration

package postgres

import (
	"context"
	"testing"

	"shop-payment-core/internal/domain/model"

	"github.com/google/uuid"
)

func TestOrderRepo_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode.")
	}

	ctx := context.Background()
	repo := NewOrderRepo(testPool)

	seedOrderWithItems := func(t *testing.T) string {
		t.Helper()
		orderID := seedOrder(t, ctx)
		_, err := testPool.Exec(ctx, `
			INSERT INTO order_items (id, order_id, title, unit_price, quantity, settlement) VALUES
			($1, $3, 'Keyboard', 100000, 1, 'cash'),
			($2, $3, 'Extended warranty', 50000, 1, 'deferred');`,
			uuid.NewString(), uuid.NewString(), orderID)
		if err != nil {
			t.Fatalf("failed to seed order items: %v", err)
		}
		return orderID
	}

	t.Run("should load an order with its line items", func(t *testing.T) {
		cleanup(t)
		orderID := seedOrderWithItems(t)

		order, err := repo.FindByID(ctx, nil, orderID)
		if err != nil {
			t.Fatalf("FindByID failed: %v", err)
		}
		if order.Status != model.OrderStatusAwaiting {
			t.Errorf("expected status 'awaiting_payment', got '%s'", order.Status)
		}
		if len(order.Items) != 2 {
			t.Fatalf("expected 2 line items, got %d", len(order.Items))
		}
		if got := order.PayableCashAmount(); got != 100_000 {
			t.Errorf("expected payable cash amount 100000, got %d", got)
		}
	})

	t.Run("should confirm exactly once", func(t *testing.T) {
		cleanup(t)
		orderID := seedOrderWithItems(t)

		confirmed, err := repo.Confirm(ctx, nil, orderID)
		if err != nil {
			t.Fatalf("Confirm failed: %v", err)
		}
		if !confirmed {
			t.Error("expected first confirm to report a change")
		}

		confirmedAgain, err := repo.Confirm(ctx, nil, orderID)
		if err != nil {
			t.Fatalf("Second Confirm failed: %v", err)
		}
		if confirmedAgain {
			t.Error("expected second confirm to be a no-op")
		}

		order, _ := repo.FindByID(ctx, nil, orderID)
		if order.Status != model.OrderStatusConfirmed {
			t.Errorf("expected status 'confirmed', got '%s'", order.Status)
		}
	})
}

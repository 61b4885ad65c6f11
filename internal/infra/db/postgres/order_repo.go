package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"shop-payment-core/internal/domain"
	"shop-payment-core/internal/domain/model"
	"shop-payment-core/internal/domain/ports/repository"
)

var _ repository.OrderRepository = (*orderRepo)(nil)

// orderRepo is the payment core's narrow window into the order subsystem's
// tables: order header plus line items, and the single confirm write.
type orderRepo struct{ pool *pgxpool.Pool }

func NewOrderRepo(pool *pgxpool.Pool) *orderRepo {
	return &orderRepo{pool: pool}
}

func (r *orderRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Order, error) {
	const q = `SELECT id, customer_id, customer_phone, customer_email, status, created_at FROM orders WHERE id=$1;`
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	o := &model.Order{}
	var status string
	if err := row.Scan(&o.ID, &o.CustomerID, &o.CustomerPhone, &o.CustomerEmail, &status, &o.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	o.Status = model.OrderStatus(status)

	const itemsQ = `SELECT id, title, unit_price, quantity, settlement FROM order_items WHERE order_id=$1 ORDER BY id;`
	rows, err := queryRows(ctx, r.pool, tx, itemsQ, id)
	if err != nil {
		switch err {
		case domain.ErrInvalidArgument, domain.ErrInvalidExecContext:
			return nil, err
		default:
			return nil, domain.ErrOperationFailed
		}
	}
	defer rows.Close()
	for rows.Next() {
		var it model.OrderItem
		var settlement string
		if err := rows.Scan(&it.ID, &it.Title, &it.UnitPrice, &it.Quantity, &settlement); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		it.Settlement = model.SettlementMethod(settlement)
		o.Items = append(o.Items, it)
	}
	return o, nil
}

// Confirm flips the order to confirmed; rows already confirmed are untouched,
// which is what keeps the settlement side effect idempotent.
func (r *orderRepo) Confirm(ctx context.Context, tx repository.Tx, id string) (bool, error) {
	const q = `UPDATE orders SET status='confirmed', updated_at=NOW() WHERE id=$1 AND status <> 'confirmed';`
	cmd, err := execSQL(ctx, r.pool, tx, q, id)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return false, err
		}
		return false, domain.ErrOperationFailed
	}
	return cmd.RowsAffected() >= 1, nil
}

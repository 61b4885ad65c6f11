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

var _ repository.RefundRepository = (*refundRepo)(nil)

type refundRepo struct{ pool *pgxpool.Pool }

func NewRefundRepo(pool *pgxpool.Pool) *refundRepo {
	return &refundRepo{pool: pool}
}

const refundColumns = `id, payment_id, amount, status, method, reason, requested_by, description, gateway_refund_id, error_message, created_at, updated_at, completed_at`

func scanRefund(row pgx.Row) (*model.RefundRecord, error) {
	rr := &model.RefundRecord{}
	var status, method, reason string
	if err := row.Scan(&rr.ID, &rr.PaymentID, &rr.Amount, &status, &method, &reason,
		&rr.RequestedBy, &rr.Description, &rr.GatewayRefundID, &rr.ErrorMessage,
		&rr.CreatedAt, &rr.UpdatedAt, &rr.CompletedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	rr.Status = model.RefundStatus(status)
	rr.Method = model.RefundMethod(method)
	rr.Reason = model.RefundReason(reason)
	return rr, nil
}

func (r *refundRepo) Save(ctx context.Context, tx repository.Tx, rr *model.RefundRecord) error {
	const q = `
INSERT INTO payment_refunds (` + refundColumns + `) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13
) ON CONFLICT (id) DO UPDATE SET
  status=$4, gateway_refund_id=$9, error_message=$10, updated_at=$12, completed_at=$13;`
	_, err := execSQL(ctx, r.pool, tx, q, rr.ID, rr.PaymentID, rr.Amount, string(rr.Status),
		string(rr.Method), string(rr.Reason), rr.RequestedBy, rr.Description,
		rr.GatewayRefundID, rr.ErrorMessage, rr.CreatedAt, rr.UpdatedAt, rr.CompletedAt)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *refundRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.RefundRecord, error) {
	q := `SELECT ` + refundColumns + ` FROM payment_refunds WHERE id=$1`
	if _, ok := tx.(pgx.Tx); ok {
		q += " FOR UPDATE"
	}
	q += ";"
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	return scanRefund(row)
}

func (r *refundRepo) ListByPayment(ctx context.Context, tx repository.Tx, paymentID string) ([]*model.RefundRecord, error) {
	const q = `SELECT ` + refundColumns + ` FROM payment_refunds WHERE payment_id=$1 ORDER BY created_at ASC;`
	rows, err := queryRows(ctx, r.pool, tx, q, paymentID)
	if err != nil {
		switch err {
		case domain.ErrInvalidArgument, domain.ErrInvalidExecContext:
			return nil, err
		default:
			return nil, domain.ErrOperationFailed
		}
	}
	defer rows.Close()

	var out []*model.RefundRecord
	for rows.Next() {
		rr, err := scanRefund(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rr)
	}
	return out, nil
}

func (r *refundRepo) SumSucceededByPayment(ctx context.Context, tx repository.Tx, paymentID string) (int64, error) {
	const q = `SELECT COALESCE(SUM(amount),0) FROM payment_refunds WHERE payment_id=$1 AND status='succeeded';`
	row, err := pickRow(ctx, r.pool, tx, q, paymentID)
	if err != nil {
		return 0, err
	}
	var sum int64
	if err := row.Scan(&sum); err != nil {
		return 0, domain.ErrReadDatabaseRow
	}
	return sum, nil
}

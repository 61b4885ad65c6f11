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

var _ repository.CallbackRepository = (*callbackRepo)(nil)

type callbackRepo struct{ pool *pgxpool.Pool }

func NewCallbackRepo(pool *pgxpool.Pool) *callbackRepo {
	return &callbackRepo{pool: pool}
}

func (r *callbackRepo) Save(ctx context.Context, tx repository.Tx, cb *model.CallbackRecord) error {
	const q = `
INSERT INTO payment_callbacks (id, payment_id, kind, raw_payload, remote_addr, processed, response, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8);`
	_, err := execSQL(ctx, r.pool, tx, q, cb.ID, cb.PaymentID, string(cb.Kind),
		[]byte(cb.RawPayload), cb.RemoteAddr, cb.Processed, cb.Response, cb.CreatedAt)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *callbackRepo) MarkProcessed(ctx context.Context, tx repository.Tx, id string, response string) error {
	const q = `UPDATE payment_callbacks SET processed=TRUE, response=$2 WHERE id=$1;`
	_, err := execSQL(ctx, r.pool, tx, q, id, response)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *callbackRepo) ListByPayment(ctx context.Context, tx repository.Tx, paymentID string) ([]*model.CallbackRecord, error) {
	const q = `SELECT id, payment_id, kind, raw_payload, remote_addr, processed, response, created_at
 FROM payment_callbacks WHERE payment_id=$1 ORDER BY created_at ASC;`
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

	var out []*model.CallbackRecord
	for rows.Next() {
		cb := &model.CallbackRecord{}
		var kind string
		var raw []byte
		if err := rows.Scan(&cb.ID, &cb.PaymentID, &kind, &raw, &cb.RemoteAddr, &cb.Processed, &cb.Response, &cb.CreatedAt); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, domain.ErrNotFound
			}
			return nil, domain.ErrReadDatabaseRow
		}
		cb.Kind = model.CallbackKind(kind)
		cb.RawPayload = raw
		out = append(out, cb)
	}
	return out, nil
}

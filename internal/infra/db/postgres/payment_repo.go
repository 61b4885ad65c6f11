package postgres

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"shop-payment-core/internal/domain"
	"shop-payment-core/internal/domain/model"
	"shop-payment-core/internal/domain/ports/repository"
)

var _ repository.PaymentRepository = (*paymentRepo)(nil)

type paymentRepo struct{ pool *pgxpool.Pool }

func NewPaymentRepo(pool *pgxpool.Pool) *paymentRepo {
	return &paymentRepo{pool: pool}
}

const paymentColumns = `id, tracking_code, order_id, payer_phone, payer_email, amount, display_amount, provider, status, gateway_tx_id, bank_ref_id, card_pan, error_message, retry_count, prev_attempt_id, created_at, updated_at, expires_at, completed_at, raw_response, log`

var preterminalStatuses = []string{
	string(model.PaymentStatusInitiated),
	string(model.PaymentStatusRedirected),
	string(model.PaymentStatusPending),
	string(model.PaymentStatusProcessing),
	string(model.PaymentStatusVerifying),
}

func scanPayment(row pgx.Row) (*model.PaymentRecord, error) {
	p := &model.PaymentRecord{}
	var status string
	var raw []byte
	if err := row.Scan(&p.ID, &p.TrackingCode, &p.OrderID, &p.PayerPhone, &p.PayerEmail,
		&p.Amount, &p.DisplayAmount, &p.Provider, &status, &p.GatewayTxID, &p.BankRefID,
		&p.CardPAN, &p.ErrorMessage, &p.RetryCount, &p.PrevAttemptID, &p.CreatedAt,
		&p.UpdatedAt, &p.ExpiresAt, &p.CompletedAt, &raw, &p.Log); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	st, err := model.ParsePaymentStatus(status)
	if err != nil {
		return nil, err
	}
	p.Status = st
	p.RawResponse = raw
	return p, nil
}

func (r *paymentRepo) Save(ctx context.Context, tx repository.Tx, p *model.PaymentRecord) error {
	const q = `
INSERT INTO payments (` + paymentColumns + `) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21
) ON CONFLICT (id) DO UPDATE SET
  status=$9, gateway_tx_id=$10, bank_ref_id=$11, card_pan=$12, error_message=$13,
  updated_at=$17, expires_at=$18, completed_at=$19, raw_response=$20, log=$21;`

	_, err := execSQL(ctx, r.pool, tx, q, p.ID, p.TrackingCode, p.OrderID, p.PayerPhone,
		p.PayerEmail, p.Amount, p.DisplayAmount, p.Provider, string(p.Status), p.GatewayTxID,
		p.BankRefID, p.CardPAN, p.ErrorMessage, p.RetryCount, p.PrevAttemptID, p.CreatedAt,
		p.UpdatedAt, p.ExpiresAt, p.CompletedAt, []byte(p.RawResponse), p.Log)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *paymentRepo) findOne(ctx context.Context, tx repository.Tx, where string, arg interface{}) (*model.PaymentRecord, error) {
	q := `SELECT ` + paymentColumns + ` FROM payments WHERE ` + where + ` LIMIT 1`
	if _, ok := tx.(pgx.Tx); ok {
		q += " FOR UPDATE"
	}
	q += ";"
	row, err := pickRow(ctx, r.pool, tx, q, arg)
	if err != nil {
		return nil, err
	}
	return scanPayment(row)
}

func (r *paymentRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.PaymentRecord, error) {
	return r.findOne(ctx, tx, "id=$1", id)
}

func (r *paymentRepo) FindByTrackingCode(ctx context.Context, tx repository.Tx, code string) (*model.PaymentRecord, error) {
	return r.findOne(ctx, tx, "tracking_code=$1", code)
}

func (r *paymentRepo) FindByGatewayTxID(ctx context.Context, tx repository.Tx, gatewayTxID string) (*model.PaymentRecord, error) {
	return r.findOne(ctx, tx, "gateway_tx_id=$1", gatewayTxID)
}

func (r *paymentRepo) FindActiveByOrder(ctx context.Context, tx repository.Tx, orderID string) (*model.PaymentRecord, error) {
	q := `SELECT ` + paymentColumns + ` FROM payments
 WHERE order_id=$1 AND status = ANY($2) AND (expires_at IS NULL OR expires_at > NOW())
 ORDER BY created_at DESC LIMIT 1;`
	row, err := pickRow(ctx, r.pool, tx, q, orderID, preterminalStatuses)
	if err != nil {
		return nil, err
	}
	return scanPayment(row)
}

func (r *paymentRepo) TrackingCodeExists(ctx context.Context, tx repository.Tx, code string) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM payments WHERE tracking_code=$1);`
	row, err := pickRow(ctx, r.pool, tx, q, code)
	if err != nil {
		return false, err
	}
	var exists bool
	if err := row.Scan(&exists); err != nil {
		return false, domain.ErrReadDatabaseRow
	}
	return exists, nil
}

// UpdateStatusIfPreterminal commits the record's current in-memory state only
// when the stored row is still in one of the expected statuses, so concurrent
// finalizers cannot both win. completed_at is write-once by COALESCE.
func (r *paymentRepo) UpdateStatusIfPreterminal(ctx context.Context, tx repository.Tx, p *model.PaymentRecord, expected ...model.PaymentStatus) (bool, error) {
	exp := make([]string, 0, len(expected))
	for _, s := range expected {
		exp = append(exp, string(s))
	}
	if len(exp) == 0 {
		exp = preterminalStatuses
	}
	const q = `
UPDATE payments
   SET status=$2, gateway_tx_id=$3, bank_ref_id=$4, card_pan=$5, error_message=$6,
       updated_at=$7, expires_at=$8,
       completed_at=COALESCE(completed_at, $9),
       raw_response=COALESCE($10, raw_response),
       log=$11
 WHERE id=$1 AND status = ANY($12);`

	cmd, err := execSQL(ctx, r.pool, tx, q, p.ID, string(p.Status), p.GatewayTxID,
		p.BankRefID, p.CardPAN, p.ErrorMessage, p.UpdatedAt, p.ExpiresAt, p.CompletedAt,
		[]byte(p.RawResponse), p.Log, exp)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return false, err
		}
		return false, domain.ErrOperationFailed
	}
	return cmd.RowsAffected() >= 1, nil
}

func (r *paymentRepo) listWhere(ctx context.Context, tx repository.Tx, where string, limit int, args ...interface{}) ([]*model.PaymentRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	q := `SELECT ` + paymentColumns + ` FROM payments WHERE ` + where + ` ORDER BY created_at ASC LIMIT ` + strconv.Itoa(limit) + `;`
	rows, err := queryRows(ctx, r.pool, tx, q, args...)
	if err != nil {
		switch err {
		case domain.ErrInvalidArgument, domain.ErrInvalidExecContext:
			return nil, err
		default:
			return nil, domain.ErrOperationFailed
		}
	}
	defer rows.Close()

	var out []*model.PaymentRecord
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func (r *paymentRepo) ListExpired(ctx context.Context, tx repository.Tx, now time.Time, limit int) ([]*model.PaymentRecord, error) {
	return r.listWhere(ctx, tx, "status = ANY($1) AND expires_at IS NOT NULL AND expires_at < $2", limit, preterminalStatuses, now)
}

func (r *paymentRepo) ListStaleRedirected(ctx context.Context, tx repository.Tx, olderThan time.Time, limit int) ([]*model.PaymentRecord, error) {
	stale := []string{string(model.PaymentStatusRedirected), string(model.PaymentStatusPending)}
	return r.listWhere(ctx, tx, "status = ANY($1) AND gateway_tx_id IS NOT NULL AND updated_at < $2", limit, stale, olderThan)
}

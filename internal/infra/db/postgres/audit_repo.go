package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/rs/zerolog"

	"shop-payment-core/internal/domain"
	"shop-payment-core/internal/domain/ports/adapter"
)

var _ adapter.AuditRecorder = (*auditRepo)(nil)

// auditRepo appends structured activity rows for the audit-log collaborator
// and mirrors each event to the logger. Rows are append-only.
type auditRepo struct {
	pool *pgxpool.Pool
	log  *zerolog.Logger
}

func NewAuditRepo(pool *pgxpool.Pool, logger *zerolog.Logger) *auditRepo {
	l := logger.With().Str("component", "AuditRepo").Logger()
	return &auditRepo{pool: pool, log: &l}
}

func (r *auditRepo) Record(ctx context.Context, e adapter.AuditEvent) error {
	const q = `
INSERT INTO activity_logs (id, actor, action, severity, payment_id, description, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7);`
	_, err := execSQL(ctx, r.pool, nil, q, uuid.NewString(), e.Actor, e.Action,
		string(e.Severity), e.PaymentID, e.Description, e.At)
	if err != nil {
		// Audit must not block a payment flow; surface the failure in the log.
		r.log.Error().Err(err).Str("action", e.Action).Str("payment_id", e.PaymentID).Msg("audit write failed")
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	r.log.Info().
		Str("actor", e.Actor).
		Str("action", e.Action).
		Str("severity", string(e.Severity)).
		Str("payment_id", e.PaymentID).
		Msg(e.Description)
	return nil
}

package sched

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"shop-payment-core/internal/domain"
	"shop-payment-core/internal/domain/ports/adapter"
	"shop-payment-core/internal/domain/ports/repository"
	"shop-payment-core/internal/infra/metrics"
	"shop-payment-core/internal/infra/redis"
	"shop-payment-core/internal/usecase"
)

const reconcileLockKey = "lock:payment-reconcile"

// Reconciler scans for redirected/pending payments whose callback never
// arrived (browser closed, network drop, crash mid-verify) and re-asserts
// their outcome with the gateway. The payer may well have paid; silence is
// not a verdict.
type Reconciler struct {
	payUC      usecase.PaymentUseCase
	payments   repository.PaymentRepository
	locker     redis.Locker
	interval   time.Duration
	staleAfter time.Duration
	batchSize  int
	log        *zerolog.Logger
}

func NewReconciler(payUC usecase.PaymentUseCase, payments repository.PaymentRepository, locker redis.Locker, interval, staleAfter time.Duration, batchSize int, logger *zerolog.Logger) *Reconciler {
	rcLog := logger.With().Str("component", "Reconciler").Logger()
	if interval <= 0 {
		interval = time.Minute
	}
	if staleAfter <= 0 {
		staleAfter = 10 * time.Minute
	}
	if batchSize <= 0 {
		batchSize = 200
	}
	return &Reconciler{
		payUC:      payUC,
		payments:   payments,
		locker:     locker,
		interval:   interval,
		staleAfter: staleAfter,
		batchSize:  batchSize,
		log:        &rcLog,
	}
}

func (w *Reconciler) Run(ctx context.Context) error {
	w.log.Info().Msg("Starting payment reconciler")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping payment reconciler")
			return ctx.Err()
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

func (w *Reconciler) tick(ctx context.Context) {
	token, err := w.locker.TryLock(ctx, reconcileLockKey, w.interval)
	if err != nil {
		if !errors.Is(err, domain.ErrLockNotAcquired) {
			w.log.Error().Err(err).Msg("reconcile lock error")
		}
		return
	}
	defer func() {
		if err := w.locker.Unlock(ctx, reconcileLockKey, token); err != nil {
			w.log.Warn().Err(err).Msg("reconcile unlock failed")
		}
	}()

	cutoff := time.Now().Add(-w.staleAfter)
	stale, err := w.payments.ListStaleRedirected(ctx, nil, cutoff, w.batchSize)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			metrics.IncReconcilerRun("empty")
			return
		}
		w.log.Error().Err(err).Msg("reconcile list error")
		metrics.IncReconcilerRun("error")
		return
	}
	if len(stale) == 0 {
		metrics.IncReconcilerRun("empty")
		return
	}

	settledCount := 0
	for _, p := range stale {
		// The payer never came back, so there is no return payload; the
		// ok-signal makes the gateway itself the source of truth.
		in := adapter.VerifyInput{StatusParam: "OK"}
		if p.GatewayTxID != nil {
			in.GatewayTxID = *p.GatewayTxID
		}
		settled, _, err := w.payUC.Verify(ctx, p.ID, in, "reconciler")
		if err != nil {
			w.log.Warn().Err(err).
				Str("payment_id", p.ID).
				Str("tracking_code", p.TrackingCode).
				Msg("reconcile verify failed")
			continue
		}
		if settled {
			settledCount++
			w.log.Info().
				Str("payment_id", p.ID).
				Str("tracking_code", p.TrackingCode).
				Msg("stale payment reconciled as settled")
		}
	}
	metrics.IncReconcilerRun("ok")
	w.log.Info().Int("scanned", len(stale)).Int("settled", settledCount).Msg("reconcile pass done")
}

package sched

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"shop-payment-core/internal/domain"
	"shop-payment-core/internal/infra/redis"
	"shop-payment-core/internal/usecase"
)

const expiryLockKey = "lock:payment-expiry-sweep"

// ExpirySweeper periodically moves overdue pre-terminal payments to TIMEOUT
// via the use case. One whole sweep runs under a distributed lock so multiple
// instances never chase the same rows.
type ExpirySweeper struct {
	interval time.Duration
	payUC    usecase.PaymentUseCase
	locker   redis.Locker
	log      *zerolog.Logger
}

func NewExpirySweeper(interval time.Duration, payUC usecase.PaymentUseCase, locker redis.Locker, logger *zerolog.Logger) *ExpirySweeper {
	swpLog := logger.With().Str("component", "ExpirySweeper").Logger()
	if interval <= 0 {
		interval = time.Minute
	}
	return &ExpirySweeper{
		interval: interval,
		payUC:    payUC,
		locker:   locker,
		log:      &swpLog,
	}
}

func (w *ExpirySweeper) Run(ctx context.Context) error {
	w.log.Info().Msg("Starting expiry sweeper")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping expiry sweeper")
			return ctx.Err()
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *ExpirySweeper) sweep(ctx context.Context) {
	token, err := w.locker.TryLock(ctx, expiryLockKey, w.interval)
	if err != nil {
		if !errors.Is(err, domain.ErrLockNotAcquired) {
			w.log.Error().Err(err).Msg("expiry sweep lock error")
		}
		return
	}
	defer func() {
		if err := w.locker.Unlock(ctx, expiryLockKey, token); err != nil {
			w.log.Warn().Err(err).Msg("expiry sweep unlock failed")
		}
	}()

	n, err := w.payUC.CheckExpired(ctx)
	if err != nil {
		w.log.Error().Err(err).Msg("expiry sweep error")
		return
	}
	if n > 0 {
		w.log.Info().Int("count", n).Msg("expired payments timed out")
	}
}

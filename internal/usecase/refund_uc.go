package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"shop-payment-core/internal/domain"
	"shop-payment-core/internal/domain/model"
	"shop-payment-core/internal/domain/ports/adapter"
	"shop-payment-core/internal/domain/ports/repository"
	"shop-payment-core/internal/infra/metrics"
)

// Compile-time check
var _ RefundUseCase = (*refundUC)(nil)

type RefundUseCase interface {
	// Request creates a refund against a settled payment. Cumulative refunds
	// never exceed the parent's settled amount.
	Request(ctx context.Context, paymentID string, amount int64, requestedBy, description string, method model.RefundMethod, reason model.RefundReason) (*model.RefundRecord, error)
	// Process drives a requested refund through the gateway and flips the
	// parent to refunded / partially_refunded on success.
	Process(ctx context.Context, refundID, actor string) (*model.RefundRecord, error)
	// Cancel withdraws a refund that has not started processing.
	Cancel(ctx context.Context, refundID, actor string) error
}

type refundUC struct {
	refunds  repository.RefundRepository
	payments repository.PaymentRepository
	registry adapter.Registry
	audit    adapter.AuditRecorder
	tm       repository.TransactionManager
	log      *zerolog.Logger
}

func NewRefundUseCase(
	refunds repository.RefundRepository,
	payments repository.PaymentRepository,
	registry adapter.Registry,
	audit adapter.AuditRecorder,
	tm repository.TransactionManager,
	logger *zerolog.Logger,
) *refundUC {
	l := logger.With().Str("component", "RefundUseCase").Logger()
	return &refundUC{
		refunds:  refunds,
		payments: payments,
		registry: registry,
		audit:    audit,
		tm:       tm,
		log:      &l,
	}
}

func (u *refundUC) Request(ctx context.Context, paymentID string, amount int64, requestedBy, description string, method model.RefundMethod, reason model.RefundReason) (*model.RefundRecord, error) {
	parent, err := u.payments.FindByID(ctx, nil, paymentID)
	if err != nil {
		return nil, err
	}
	refunded, err := u.refunds.SumSucceededByPayment(ctx, nil, paymentID)
	if err != nil {
		return nil, err
	}
	rr, err := model.NewRefundRecord(parent, amount, parent.RemainingRefundable(refunded), requestedBy, description, method, reason)
	if err != nil {
		return nil, err
	}
	if err := u.refunds.Save(ctx, nil, rr); err != nil {
		return nil, err
	}
	metrics.IncRefund(string(rr.Status))
	u.recordAudit(ctx, requestedBy, "refund.request", adapter.AuditSeverityInfo, parent.ID,
		fmt.Sprintf("refund of %d IRR requested against %s", amount, parent.TrackingCode))
	return rr, nil
}

func (u *refundUC) Process(ctx context.Context, refundID, actor string) (*model.RefundRecord, error) {
	rr, err := u.refunds.FindByID(ctx, nil, refundID)
	if err != nil {
		return nil, err
	}
	parent, err := u.payments.FindByID(ctx, nil, rr.PaymentID)
	if err != nil {
		return nil, err
	}
	gw, err := u.registry.Get(parent.Provider)
	if err != nil {
		return nil, err
	}
	if parent.GatewayTxID == nil {
		return nil, fmt.Errorf("%w: payment %s has no gateway handle", domain.ErrRefundNotAllowed, parent.TrackingCode)
	}

	// Another refund may have settled since this one was requested. Re-check
	// the cap against what has actually succeeded before touching the gateway.
	refunded, err := u.refunds.SumSucceededByPayment(ctx, nil, parent.ID)
	if err != nil {
		return nil, err
	}
	if refunded+rr.Amount > parent.Amount {
		rr.ErrorMessage = fmt.Sprintf("refund of %d IRR exceeds the %d IRR still refundable on %s",
			rr.Amount, parent.Amount-refunded, parent.TrackingCode)
		if err := rr.Transition(model.RefundStatusFailed); err != nil {
			return nil, err
		}
		if err := u.refunds.Save(ctx, nil, rr); err != nil {
			return nil, err
		}
		metrics.IncRefund(string(rr.Status))
		u.recordAudit(ctx, actor, "refund.failed", adapter.AuditSeverityWarning, parent.ID, rr.ErrorMessage)
		return rr, fmt.Errorf("%w: %s", domain.ErrRefundNotAllowed, rr.ErrorMessage)
	}

	if err := rr.Transition(model.RefundStatusProcessing); err != nil {
		return nil, err
	}
	if err := u.refunds.Save(ctx, nil, rr); err != nil {
		return nil, err
	}

	res, gwErr := gw.RefundPayment(ctx, *parent.GatewayTxID, rr.Amount, rr.Description, string(rr.Method), string(rr.Reason))
	if gwErr != nil {
		rr.ErrorMessage = gwErr.Error()
		if err := rr.Transition(model.RefundStatusFailed); err != nil {
			return nil, err
		}
		if err := u.refunds.Save(ctx, nil, rr); err != nil {
			return nil, err
		}
		metrics.IncRefund(string(rr.Status))
		u.recordAudit(ctx, actor, "refund.failed", adapter.AuditSeverityWarning, parent.ID, gwErr.Error())
		return rr, gwErr
	}

	rr.GatewayRefundID = &res.GatewayRefundID
	if err := rr.Transition(model.RefundStatusSucceeded); err != nil {
		return nil, err
	}

	// The refund row and the parent's status flip commit together.
	txErr := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		if err := u.refunds.Save(ctx, tx, rr); err != nil {
			return err
		}
		// The sum already includes this refund's row saved above.
		refunded, err := u.refunds.SumSucceededByPayment(ctx, tx, parent.ID)
		if err != nil {
			return err
		}
		if refunded > parent.Amount {
			return fmt.Errorf("%w: succeeded refunds total %d IRR against a %d IRR payment",
				domain.ErrRefundNotAllowed, refunded, parent.Amount)
		}
		target := model.PaymentStatusPartRefund
		if refunded >= parent.Amount {
			target = model.PaymentStatusRefunded
		}
		if err := parent.Transition(target, actor, fmt.Sprintf("refund %s settled (%d IRR)", rr.ID, rr.Amount)); err != nil {
			return err
		}
		_, err = u.payments.UpdateStatusIfPreterminal(ctx, tx, parent,
			model.PaymentStatusSuccess, model.PaymentStatusPartRefund)
		return err
	})
	if txErr != nil {
		return nil, txErr
	}
	metrics.IncRefund(string(rr.Status))
	u.recordAudit(ctx, actor, "refund.succeeded", adapter.AuditSeverityInfo, parent.ID,
		fmt.Sprintf("refund %s settled, gateway ref %s", rr.ID, res.GatewayRefundID))
	return rr, nil
}

func (u *refundUC) Cancel(ctx context.Context, refundID, actor string) error {
	rr, err := u.refunds.FindByID(ctx, nil, refundID)
	if err != nil {
		return err
	}
	if err := rr.Transition(model.RefundStatusCancelled); err != nil {
		return err
	}
	if err := u.refunds.Save(ctx, nil, rr); err != nil {
		return err
	}
	metrics.IncRefund(string(rr.Status))
	u.recordAudit(ctx, actor, "refund.cancelled", adapter.AuditSeverityInfo, rr.PaymentID,
		fmt.Sprintf("refund %s cancelled", rr.ID))
	return nil
}

func (u *refundUC) recordAudit(ctx context.Context, actor, action string, sev adapter.AuditSeverity, paymentID, desc string) {
	e := adapter.AuditEvent{
		Actor:       actor,
		Action:      action,
		Severity:    sev,
		PaymentID:   paymentID,
		Description: desc,
		At:          time.Now(),
	}
	if err := u.audit.Record(ctx, e); err != nil {
		u.log.Error().Err(err).Str("action", action).Msg("audit record failed")
	}
}

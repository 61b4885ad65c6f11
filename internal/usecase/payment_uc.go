package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"shop-payment-core/internal/config"
	"shop-payment-core/internal/domain"
	"shop-payment-core/internal/domain/model"
	"shop-payment-core/internal/domain/ports/adapter"
	"shop-payment-core/internal/domain/ports/repository"
	"shop-payment-core/internal/infra/metrics"
)

// Compile-time check
var _ PaymentUseCase = (*paymentUC)(nil)

// Retry policy: a failed attempt may be retried while younger than the window
// and with fewer than maxAttempts prior tries. Retry creates a new record.
const (
	retryWindow      = 24 * time.Hour
	maxRetryAttempts = 3

	trackingPrefix       = "PAY-"
	trackingCodeAttempts = 5
)

// ActorSystem is the actor recorded for transitions nobody triggered by hand.
const ActorSystem = "system"

type PaymentUseCase interface {
	// CreateFromOrder computes the order's payable cash amount and persists a
	// fresh INITIATED record. An existing non-terminal attempt on the same
	// gateway is returned instead of a duplicate.
	CreateFromOrder(ctx context.Context, orderID, gatewayID, actor string) (*model.PaymentRecord, error)
	// Initiate opens the remote transaction and returns the redirect target.
	// Any adapter failure is persisted on the record before it is surfaced.
	Initiate(ctx context.Context, paymentID, actor string) (string, error)
	// Verify settles or finalizes a returned payment. Idempotent once the
	// record is terminal: duplicate callbacks are a recorded no-op.
	Verify(ctx context.Context, paymentID string, in adapter.VerifyInput, actor string) (bool, *model.PaymentRecord, error)
	// Retry creates a new attempt for a failed/timed-out/cancelled record,
	// preserving the old one as permanent history.
	Retry(ctx context.Context, paymentID, actor string) (*model.PaymentRecord, error)
	// CheckExpired sweeps pre-terminal records past their expiry into TIMEOUT.
	CheckExpired(ctx context.Context) (int, error)
	// MarkDisputed is an operator action on a settled record.
	MarkDisputed(ctx context.Context, paymentID, actor, reason string) error
}

type paymentUC struct {
	payments repository.PaymentRepository
	orders   repository.OrderRepository
	registry adapter.Registry
	audit    adapter.AuditRecorder
	signer   adapter.CallbackSigner
	tm       repository.TransactionManager
	cfg      config.PaymentConfig
	log      *zerolog.Logger
}

func NewPaymentUseCase(
	payments repository.PaymentRepository,
	orders repository.OrderRepository,
	registry adapter.Registry,
	audit adapter.AuditRecorder,
	signer adapter.CallbackSigner,
	tm repository.TransactionManager,
	cfg config.PaymentConfig,
	logger *zerolog.Logger,
) *paymentUC {
	l := logger.With().Str("component", "PaymentUseCase").Logger()
	return &paymentUC{
		payments: payments,
		orders:   orders,
		registry: registry,
		audit:    audit,
		signer:   signer,
		tm:       tm,
		cfg:      cfg,
		log:      &l,
	}
}

func (u *paymentUC) CreateFromOrder(ctx context.Context, orderID, gatewayID, actor string) (*model.PaymentRecord, error) {
	if _, err := u.registry.Get(gatewayID); err != nil {
		return nil, err
	}
	order, err := u.orders.FindByID(ctx, nil, orderID)
	if err != nil {
		return nil, err
	}

	// A live attempt for the same order is never silently duplicated: same
	// gateway routes back to it, a different gateway is rejected outright.
	if existing, err := u.payments.FindActiveByOrder(ctx, nil, orderID); err == nil {
		if existing.Provider == gatewayID {
			u.log.Info().Str("payment_id", existing.ID).Str("order_id", orderID).Msg("routing back to in-flight attempt")
			return existing, nil
		}
		return nil, fmt.Errorf("%w: order %s has attempt %s on %s", domain.ErrAttemptInFlight, orderID, existing.ID, existing.Provider)
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	display := order.PayableCashAmount()
	if display <= 0 {
		return nil, fmt.Errorf("%w: order %s has no payable cash items", domain.ErrValidation, orderID)
	}

	code, err := u.newTrackingCode(ctx)
	if err != nil {
		return nil, err
	}
	p, err := model.NewPaymentRecord(orderID, code, gatewayID, display, u.cfg.MinAmount,
		order.CustomerPhone, order.CustomerEmail, u.cfg.Expiry)
	if err != nil {
		return nil, err
	}
	p.AppendLog(time.Now(), actor, fmt.Sprintf("created for order %s, %d IRR", orderID, p.Amount))

	if err := u.payments.Save(ctx, nil, p); err != nil {
		return nil, err
	}
	metrics.IncPayment(string(p.Status))
	u.recordAudit(ctx, actor, "payment.create", adapter.AuditSeverityInfo, p.ID,
		fmt.Sprintf("payment %s created for order %s (%d IRR via %s)", p.TrackingCode, orderID, p.Amount, gatewayID))
	return p, nil
}

// newTrackingCode retries with fresh random suffixes on collision, then falls
// back to a timestamp-derived code that is unique for this instant.
func (u *paymentUC) newTrackingCode(ctx context.Context) (string, error) {
	for i := 0; i < trackingCodeAttempts; i++ {
		id := ulid.Make().String()
		code := trackingPrefix + id[len(id)-8:]
		exists, err := u.payments.TrackingCodeExists(ctx, nil, code)
		if err != nil {
			return "", err
		}
		if !exists {
			return code, nil
		}
	}
	return fmt.Sprintf("%s%d", trackingPrefix, time.Now().UnixNano()), nil
}

func (u *paymentUC) callbackURL(p *model.PaymentRecord) (string, error) {
	ttl := u.cfg.Expiry + time.Hour // survives a little past the payment window
	state, err := u.signer.Sign(p.ID, ttl)
	if err != nil {
		return "", err
	}
	base := strings.TrimRight(u.cfg.CallbackBaseURL, "/")
	return fmt.Sprintf("%s/payments/callback/%s?state=%s", base, p.ID, url.QueryEscape(state)), nil
}

func (u *paymentUC) Initiate(ctx context.Context, paymentID, actor string) (string, error) {
	p, err := u.payments.FindByID(ctx, nil, paymentID)
	if err != nil {
		return "", err
	}
	if p.Status != model.PaymentStatusInitiated {
		return "", fmt.Errorf("%w: initiate on %s record", domain.ErrIllegalTransition, p.Status)
	}
	if p.Expired(time.Now()) {
		_ = u.expireOne(ctx, p)
		return "", fmt.Errorf("%w: payment %s", domain.ErrExpired, p.TrackingCode)
	}

	gw, err := u.registry.Get(p.Provider)
	if err != nil {
		return "", err
	}
	cbURL, err := u.callbackURL(p)
	if err != nil {
		return "", err
	}

	res, gwErr := gw.CreatePayment(ctx, adapter.PaymentRequest{
		Amount:      p.Amount,
		Description: fmt.Sprintf("order %s / %s", p.OrderID, p.TrackingCode),
		CallbackURL: cbURL,
		PayerPhone:  p.PayerPhone,
		PayerEmail:  p.PayerEmail,
	})
	p.RawResponse = res.Raw

	if gwErr != nil {
		// The record must never lag behind the caller-visible outcome: the
		// failure is persisted before the error is surfaced.
		target := model.PaymentStatusFailed
		if errors.Is(gwErr, domain.ErrGatewayConnection) {
			target = model.PaymentStatusError
		}
		u.finalize(ctx, p, target, actor, gwErr.Error(), model.PaymentStatusInitiated)
		return "", gwErr
	}

	p.GatewayTxID = &res.GatewayTxID
	if err := p.Transition(model.PaymentStatusRedirected, actor, "redirect issued by "+p.Provider); err != nil {
		return "", err
	}
	ok, err := u.payments.UpdateStatusIfPreterminal(ctx, nil, p, model.PaymentStatusInitiated)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("%w: payment %s transitioned concurrently", domain.ErrIllegalTransition, p.TrackingCode)
	}
	metrics.IncPayment(string(p.Status))
	u.recordAudit(ctx, actor, "payment.initiate", adapter.AuditSeverityInfo, p.ID,
		fmt.Sprintf("payment %s redirected to %s", p.TrackingCode, p.Provider))
	return res.RedirectURL, nil
}

func (u *paymentUC) Verify(ctx context.Context, paymentID string, in adapter.VerifyInput, actor string) (bool, *model.PaymentRecord, error) {
	p, err := u.payments.FindByID(ctx, nil, paymentID)
	if err != nil {
		return false, nil, err
	}

	// Duplicate callbacks for a finished record are a recorded no-op, not an
	// error; browsers double-fire return requests.
	if p.Status.IsTerminal() {
		return p.Status.IsSettled(), p, nil
	}
	if p.Expired(time.Now()) {
		_ = u.expireOne(ctx, p)
		return false, p, nil
	}

	// The verification always re-asserts the stored handle, never a
	// client-supplied one.
	if p.GatewayTxID == nil || (in.GatewayTxID != "" && in.GatewayTxID != *p.GatewayTxID) {
		mErr := fmt.Errorf("%w: callback handle does not match payment %s", domain.ErrVerificationMismatch, p.TrackingCode)
		u.finalize(ctx, p, model.PaymentStatusFailed, actor, mErr.Error(),
			model.PaymentStatusInitiated, model.PaymentStatusRedirected,
			model.PaymentStatusPending, model.PaymentStatusProcessing)
		return false, p, mErr
	}

	// Optimistic claim of the record: whoever moves it to VERIFYING first
	// performs the gateway call, everyone else observes the outcome.
	if err := p.Transition(model.PaymentStatusVerifying, actor, "verification started"); err != nil {
		return false, p, err
	}
	ok, err := u.payments.UpdateStatusIfPreterminal(ctx, nil, p,
		model.PaymentStatusRedirected, model.PaymentStatusPending, model.PaymentStatusProcessing)
	if err != nil {
		return false, p, err
	}
	if !ok {
		reloaded, err := u.payments.FindByID(ctx, nil, paymentID)
		if err != nil {
			return false, nil, err
		}
		return reloaded.Status.IsSettled(), reloaded, nil
	}

	gw, err := u.registry.Get(p.Provider)
	if err != nil {
		return false, p, err
	}
	res, gwErr := gw.VerifyPayment(ctx, adapter.VerifyInput{
		GatewayTxID: *p.GatewayTxID,
		StatusParam: in.StatusParam,
	}, p.Amount)
	if len(res.Raw) > 0 {
		p.RawResponse = res.Raw
	}

	if gwErr != nil {
		switch {
		case errors.Is(gwErr, domain.ErrPayerCancelled):
			u.finalize(ctx, p, model.PaymentStatusCancelled, actor, "cancelled by payer", model.PaymentStatusVerifying)
			return false, p, nil
		case errors.Is(gwErr, domain.ErrGatewayConnection):
			u.finalize(ctx, p, model.PaymentStatusError, actor, gwErr.Error(), model.PaymentStatusVerifying)
		default:
			// Gateway rejection and amount mismatch both land in FAILED with
			// the provider-code-mapped message.
			u.finalize(ctx, p, model.PaymentStatusFailed, actor, gwErr.Error(), model.PaymentStatusVerifying)
		}
		return false, p, gwErr
	}
	if !res.Settled {
		fErr := fmt.Errorf("%w: provider reported unsettled", domain.ErrGatewayRejected)
		u.finalize(ctx, p, model.PaymentStatusFailed, actor, fErr.Error(), model.PaymentStatusVerifying)
		return false, p, fErr
	}

	// Settlement and the order side effect commit together; the order flip is
	// idempotent, and only the goroutine that wins the status update runs it.
	p.BankRefID = &res.BankRefID
	if res.CardPAN != "" {
		p.CardPAN = &res.CardPAN
	}
	if err := p.Transition(model.PaymentStatusSuccess, actor, "settled, ref "+res.BankRefID); err != nil {
		return false, p, err
	}
	var won bool
	txErr := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		var err error
		won, err = u.payments.UpdateStatusIfPreterminal(ctx, tx, p, model.PaymentStatusVerifying)
		if err != nil {
			return err
		}
		if !won {
			return nil
		}
		_, err = u.orders.Confirm(ctx, tx, p.OrderID)
		return err
	})
	if txErr != nil {
		return false, p, txErr
	}
	if won {
		metrics.IncPayment(string(model.PaymentStatusSuccess))
		metrics.AddPaymentRevenue(p.Provider, p.Amount)
		u.recordAudit(ctx, actor, "payment.verify", adapter.AuditSeverityInfo, p.ID,
			fmt.Sprintf("payment %s settled, bank ref %s", p.TrackingCode, res.BankRefID))
	}
	return true, p, nil
}

func (u *paymentUC) Retry(ctx context.Context, paymentID, actor string) (*model.PaymentRecord, error) {
	p, err := u.payments.FindByID(ctx, nil, paymentID)
	if err != nil {
		return nil, err
	}
	if !p.Status.IsRetryable() {
		return nil, fmt.Errorf("%w: status %s is final", domain.ErrRetryExhausted, p.Status)
	}
	if p.RetryCount >= maxRetryAttempts {
		return nil, fmt.Errorf("%w: attempt budget spent", domain.ErrRetryExhausted)
	}
	if time.Since(p.CreatedAt) > retryWindow {
		return nil, fmt.Errorf("%w: attempt older than %s", domain.ErrRetryExhausted, retryWindow)
	}

	code, err := u.newTrackingCode(ctx)
	if err != nil {
		return nil, err
	}
	next, err := model.NewPaymentRecord(p.OrderID, code, p.Provider, p.DisplayAmount,
		u.cfg.MinAmount, p.PayerPhone, p.PayerEmail, u.cfg.Expiry)
	if err != nil {
		return nil, err
	}
	next.RetryCount = p.RetryCount + 1
	next.PrevAttemptID = &p.ID
	next.AppendLog(time.Now(), actor, fmt.Sprintf("retry of %s (attempt %d)", p.TrackingCode, next.RetryCount+1))

	if err := u.payments.Save(ctx, nil, next); err != nil {
		return nil, err
	}
	metrics.IncPayment(string(next.Status))
	u.recordAudit(ctx, actor, "payment.retry", adapter.AuditSeverityInfo, next.ID,
		fmt.Sprintf("payment %s retried as %s", p.TrackingCode, next.TrackingCode))
	return next, nil
}

func (u *paymentUC) CheckExpired(ctx context.Context) (int, error) {
	batch, err := u.payments.ListExpired(ctx, nil, time.Now(), 0)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return 0, nil
		}
		return 0, err
	}
	count := 0
	for _, p := range batch {
		if err := u.expireOne(ctx, p); err != nil {
			continue
		}
		count++
	}
	metrics.AddPaymentsExpired(count)
	return count, nil
}

// expireOne transitions a single record to TIMEOUT, skipping records whose
// status no longer admits it (in-flight verification, already terminal).
func (u *paymentUC) expireOne(ctx context.Context, p *model.PaymentRecord) error {
	p.ErrorMessage = "payment window elapsed"
	if err := p.Transition(model.PaymentStatusTimeout, ActorSystem, "payment window elapsed"); err != nil {
		return err
	}
	ok, err := u.payments.UpdateStatusIfPreterminal(ctx, nil, p,
		model.PaymentStatusInitiated, model.PaymentStatusRedirected, model.PaymentStatusPending)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrIllegalTransition
	}
	metrics.IncPayment(string(model.PaymentStatusTimeout))
	u.recordAudit(ctx, ActorSystem, "payment.expire", adapter.AuditSeverityWarning, p.ID,
		fmt.Sprintf("payment %s timed out", p.TrackingCode))
	return nil
}

func (u *paymentUC) MarkDisputed(ctx context.Context, paymentID, actor, reason string) error {
	p, err := u.payments.FindByID(ctx, nil, paymentID)
	if err != nil {
		return err
	}
	if err := p.Transition(model.PaymentStatusDisputed, actor, "disputed: "+reason); err != nil {
		return err
	}
	p.ErrorMessage = reason
	ok, err := u.payments.UpdateStatusIfPreterminal(ctx, nil, p,
		model.PaymentStatusSuccess, model.PaymentStatusPartRefund)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: payment %s no longer disputable", domain.ErrIllegalTransition, p.TrackingCode)
	}
	metrics.IncPayment(string(model.PaymentStatusDisputed))
	u.recordAudit(ctx, actor, "payment.dispute", adapter.AuditSeverityWarning, p.ID,
		fmt.Sprintf("payment %s marked disputed: %s", p.TrackingCode, reason))
	return nil
}

// finalize persists a terminal transition; failures to persist are logged but
// never mask the original gateway error.
func (u *paymentUC) finalize(ctx context.Context, p *model.PaymentRecord, to model.PaymentStatus, actor, message string, expected ...model.PaymentStatus) {
	p.ErrorMessage = message
	if err := p.Transition(to, actor, message); err != nil {
		u.log.Error().Err(err).Str("payment_id", p.ID).Msg("finalize transition refused")
		return
	}
	ok, err := u.payments.UpdateStatusIfPreterminal(ctx, nil, p, expected...)
	if err != nil {
		u.log.Error().Err(err).Str("payment_id", p.ID).Msg("finalize persist failed")
		return
	}
	if !ok {
		u.log.Warn().Str("payment_id", p.ID).Str("to", string(to)).Msg("finalize lost transition race")
		return
	}
	sev := adapter.AuditSeverityWarning
	if to == model.PaymentStatusError {
		sev = adapter.AuditSeverityError
	}
	metrics.IncPayment(string(to))
	u.recordAudit(ctx, actor, "payment."+string(to), sev, p.ID,
		fmt.Sprintf("payment %s -> %s: %s", p.TrackingCode, to, message))
}

func (u *paymentUC) recordAudit(ctx context.Context, actor, action string, sev adapter.AuditSeverity, paymentID, desc string) {
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

//go:build !integration

package usecase_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"shop-payment-core/internal/domain"
	"shop-payment-core/internal/domain/model"
	"shop-payment-core/internal/domain/ports/adapter"
	"shop-payment-core/internal/domain/ports/repository"
)

// =============================
// Repositories
// =============================

// ---- Mock PaymentRepository ----

// MockPaymentRepo keeps records in memory by default; assign any of the Func
// fields to override a single method for a test.
type MockPaymentRepo struct {
	mu   sync.Mutex
	data map[string]*model.PaymentRecord // by id

	SaveFunc                      func(ctx context.Context, tx repository.Tx, p *model.PaymentRecord) error
	FindByIDFunc                  func(ctx context.Context, tx repository.Tx, id string) (*model.PaymentRecord, error)
	FindActiveByOrderFunc         func(ctx context.Context, tx repository.Tx, orderID string) (*model.PaymentRecord, error)
	TrackingCodeExistsFunc        func(ctx context.Context, tx repository.Tx, code string) (bool, error)
	UpdateStatusIfPreterminalFunc func(ctx context.Context, tx repository.Tx, p *model.PaymentRecord, expected ...model.PaymentStatus) (bool, error)
	ListExpiredFunc               func(ctx context.Context, tx repository.Tx, now time.Time, limit int) ([]*model.PaymentRecord, error)
	ListStaleRedirectedFunc       func(ctx context.Context, tx repository.Tx, olderThan time.Time, limit int) ([]*model.PaymentRecord, error)
}

var _ repository.PaymentRepository = (*MockPaymentRepo)(nil)

func NewMockPaymentRepo() *MockPaymentRepo {
	return &MockPaymentRepo{data: map[string]*model.PaymentRecord{}}
}

func (r *MockPaymentRepo) Save(ctx context.Context, tx repository.Tx, p *model.PaymentRecord) error {
	if r.SaveFunc != nil {
		return r.SaveFunc(ctx, tx, p)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	cp := *p
	r.data[p.ID] = &cp
	return nil
}

func (r *MockPaymentRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.PaymentRecord, error) {
	if r.FindByIDFunc != nil {
		return r.FindByIDFunc(ctx, tx, id)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.data[id]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, domain.ErrNotFound
}

func (r *MockPaymentRepo) FindByTrackingCode(ctx context.Context, tx repository.Tx, code string) (*model.PaymentRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.data {
		if p.TrackingCode == code {
			cp := *p
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *MockPaymentRepo) FindByGatewayTxID(ctx context.Context, tx repository.Tx, gatewayTxID string) (*model.PaymentRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.data {
		if p.GatewayTxID != nil && *p.GatewayTxID == gatewayTxID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *MockPaymentRepo) FindActiveByOrder(ctx context.Context, tx repository.Tx, orderID string) (*model.PaymentRecord, error) {
	if r.FindActiveByOrderFunc != nil {
		return r.FindActiveByOrderFunc(ctx, tx, orderID)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	for _, p := range r.data {
		if p.OrderID == orderID && !p.Status.IsTerminal() && !p.Expired(now) {
			cp := *p
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *MockPaymentRepo) TrackingCodeExists(ctx context.Context, tx repository.Tx, code string) (bool, error) {
	if r.TrackingCodeExistsFunc != nil {
		return r.TrackingCodeExistsFunc(ctx, tx, code)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.data {
		if p.TrackingCode == code {
			return true, nil
		}
	}
	return false, nil
}

func (r *MockPaymentRepo) UpdateStatusIfPreterminal(ctx context.Context, tx repository.Tx, p *model.PaymentRecord, expected ...model.PaymentStatus) (bool, error) {
	if r.UpdateStatusIfPreterminalFunc != nil {
		return r.UpdateStatusIfPreterminalFunc(ctx, tx, p, expected...)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.data[p.ID]
	if !ok {
		return false, domain.ErrNotFound
	}
	matched := false
	for _, s := range expected {
		if stored.Status == s {
			matched = true
			break
		}
	}
	if !matched {
		return false, nil
	}
	cp := *p
	r.data[p.ID] = &cp
	return true, nil
}

func (r *MockPaymentRepo) ListExpired(ctx context.Context, tx repository.Tx, now time.Time, limit int) ([]*model.PaymentRecord, error) {
	if r.ListExpiredFunc != nil {
		return r.ListExpiredFunc(ctx, tx, now, limit)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.PaymentRecord
	for _, p := range r.data {
		if p.Expired(now) {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *MockPaymentRepo) ListStaleRedirected(ctx context.Context, tx repository.Tx, olderThan time.Time, limit int) ([]*model.PaymentRecord, error) {
	if r.ListStaleRedirectedFunc != nil {
		return r.ListStaleRedirectedFunc(ctx, tx, olderThan, limit)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.PaymentRecord
	for _, p := range r.data {
		st := p.Status
		if (st == model.PaymentStatusRedirected || st == model.PaymentStatusPending) &&
			p.GatewayTxID != nil && p.UpdatedAt.Before(olderThan) {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

// Stored returns the persisted copy of a record, for assertions.
func (r *MockPaymentRepo) Stored(id string) *model.PaymentRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.data[id]; ok {
		cp := *p
		return &cp
	}
	return nil
}

// ---- Mock OrderRepository ----

type MockOrderRepo struct {
	mu     sync.Mutex
	orders map[string]*model.Order

	FindByIDFunc func(ctx context.Context, tx repository.Tx, id string) (*model.Order, error)
	ConfirmFunc  func(ctx context.Context, tx repository.Tx, id string) (bool, error)

	Confirmed []string // ids passed to Confirm, in call order
}

var _ repository.OrderRepository = (*MockOrderRepo)(nil)

func NewMockOrderRepo() *MockOrderRepo {
	return &MockOrderRepo{orders: map[string]*model.Order{}}
}

func (r *MockOrderRepo) Put(o *model.Order) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *o
	r.orders[o.ID] = &cp
}

func (r *MockOrderRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Order, error) {
	if r.FindByIDFunc != nil {
		return r.FindByIDFunc(ctx, tx, id)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if o, ok := r.orders[id]; ok {
		cp := *o
		return &cp, nil
	}
	return nil, domain.ErrNotFound
}

func (r *MockOrderRepo) Confirm(ctx context.Context, tx repository.Tx, id string) (bool, error) {
	if r.ConfirmFunc != nil {
		return r.ConfirmFunc(ctx, tx, id)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Confirmed = append(r.Confirmed, id)
	o, ok := r.orders[id]
	if !ok {
		return false, domain.ErrNotFound
	}
	if o.Status == model.OrderStatusConfirmed {
		return false, nil
	}
	o.Status = model.OrderStatusConfirmed
	return true, nil
}

// ---- Mock RefundRepository ----

type MockRefundRepo struct {
	mu   sync.Mutex
	data map[string]*model.RefundRecord

	SaveFunc                  func(ctx context.Context, tx repository.Tx, rr *model.RefundRecord) error
	SumSucceededByPaymentFunc func(ctx context.Context, tx repository.Tx, paymentID string) (int64, error)
}

var _ repository.RefundRepository = (*MockRefundRepo)(nil)

func NewMockRefundRepo() *MockRefundRepo {
	return &MockRefundRepo{data: map[string]*model.RefundRecord{}}
}

func (r *MockRefundRepo) Save(ctx context.Context, tx repository.Tx, rr *model.RefundRecord) error {
	if r.SaveFunc != nil {
		return r.SaveFunc(ctx, tx, rr)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *rr
	r.data[rr.ID] = &cp
	return nil
}

func (r *MockRefundRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.RefundRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rr, ok := r.data[id]; ok {
		cp := *rr
		return &cp, nil
	}
	return nil, domain.ErrNotFound
}

func (r *MockRefundRepo) ListByPayment(ctx context.Context, tx repository.Tx, paymentID string) ([]*model.RefundRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.RefundRecord
	for _, rr := range r.data {
		if rr.PaymentID == paymentID {
			cp := *rr
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *MockRefundRepo) SumSucceededByPayment(ctx context.Context, tx repository.Tx, paymentID string) (int64, error) {
	if r.SumSucceededByPaymentFunc != nil {
		return r.SumSucceededByPaymentFunc(ctx, tx, paymentID)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var sum int64
	for _, rr := range r.data {
		if rr.PaymentID == paymentID && rr.Status == model.RefundStatusSucceeded {
			sum += rr.Amount
		}
	}
	return sum, nil
}

// =============================
// Adapters
// =============================

// ---- Mock Gateway ----

type MockGateway struct {
	NameVal string

	CreatePaymentFunc func(ctx context.Context, req adapter.PaymentRequest) (adapter.CreateResult, error)
	VerifyPaymentFunc func(ctx context.Context, in adapter.VerifyInput, expectedAmount int64) (adapter.VerifyResult, error)
	RefundPaymentFunc func(ctx context.Context, gatewayTxID string, amount int64, description, method, reason string) (adapter.RefundResult, error)

	Calls struct {
		Create int
		Verify int
		Refund int
	}
}

var _ adapter.Gateway = (*MockGateway)(nil)

func (m *MockGateway) Name() string {
	if m.NameVal == "" {
		return "mockpay"
	}
	return m.NameVal
}

func (m *MockGateway) CreatePayment(ctx context.Context, req adapter.PaymentRequest) (adapter.CreateResult, error) {
	m.Calls.Create++
	if m.CreatePaymentFunc != nil {
		return m.CreatePaymentFunc(ctx, req)
	}
	raw, _ := json.Marshal(map[string]any{"code": 100})
	return adapter.CreateResult{
		GatewayTxID: fmt.Sprintf("AUTH-%d", req.Amount),
		RedirectURL: "https://gateway.example/pay/AUTH",
		Raw:         raw,
	}, nil
}

func (m *MockGateway) VerifyPayment(ctx context.Context, in adapter.VerifyInput, expectedAmount int64) (adapter.VerifyResult, error) {
	m.Calls.Verify++
	if m.VerifyPaymentFunc != nil {
		return m.VerifyPaymentFunc(ctx, in, expectedAmount)
	}
	if in.StatusParam != "OK" {
		return adapter.VerifyResult{Message: "cancelled by payer"}, domain.ErrPayerCancelled
	}
	return adapter.VerifyResult{Settled: true, BankRefID: "REF-1", CardPAN: "502229******1234", Message: "verified"}, nil
}

func (m *MockGateway) RefundPayment(ctx context.Context, gatewayTxID string, amount int64, description, method, reason string) (adapter.RefundResult, error) {
	m.Calls.Refund++
	if m.RefundPaymentFunc != nil {
		return m.RefundPaymentFunc(ctx, gatewayTxID, amount, description, method, reason)
	}
	return adapter.RefundResult{GatewayRefundID: "rf-" + gatewayTxID, Status: "DONE"}, nil
}

// ---- Mock Registry ----

type MockRegistry struct {
	Gateways map[string]adapter.Gateway
}

var _ adapter.Registry = (*MockRegistry)(nil)

func NewMockRegistry(gws ...adapter.Gateway) *MockRegistry {
	m := map[string]adapter.Gateway{}
	for _, g := range gws {
		m[g.Name()] = g
	}
	return &MockRegistry{Gateways: m}
}

func (r *MockRegistry) Get(id string) (adapter.Gateway, error) {
	if g, ok := r.Gateways[id]; ok {
		return g, nil
	}
	return nil, fmt.Errorf("%w: %q", domain.ErrUnknownGateway, id)
}

func (r *MockRegistry) IDs() []string {
	ids := make([]string, 0, len(r.Gateways))
	for id := range r.Gateways {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ---- Mock AuditRecorder ----

type MockAudit struct {
	mu     sync.Mutex
	Events []adapter.AuditEvent

	RecordFunc func(ctx context.Context, e adapter.AuditEvent) error
}

var _ adapter.AuditRecorder = (*MockAudit)(nil)

func (m *MockAudit) Record(ctx context.Context, e adapter.AuditEvent) error {
	if m.RecordFunc != nil {
		return m.RecordFunc(ctx, e)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events = append(m.Events, e)
	return nil
}

func (m *MockAudit) Actions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.Events))
	for i, e := range m.Events {
		out[i] = e.Action
	}
	return out
}

// ---- Mock CallbackSigner ----

type MockSigner struct {
	SignFunc     func(paymentID string, ttl time.Duration) (string, error)
	ValidateFunc func(token, paymentID string) error
}

var _ adapter.CallbackSigner = (*MockSigner)(nil)

func (m *MockSigner) Sign(paymentID string, ttl time.Duration) (string, error) {
	if m.SignFunc != nil {
		return m.SignFunc(paymentID, ttl)
	}
	return "state-" + paymentID, nil
}

func (m *MockSigner) Validate(token, paymentID string) error {
	if m.ValidateFunc != nil {
		return m.ValidateFunc(token, paymentID)
	}
	if token != "state-"+paymentID {
		return domain.ErrValidation
	}
	return nil
}

// ---- Mock TransactionManager ----

type MockTxManager struct {
	WithTxFunc func(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error
}

var _ repository.TransactionManager = (*MockTxManager)(nil)

func NewMockTxManager() *MockTxManager {
	return &MockTxManager{}
}

// WithTx runs the closure immediately with a nil tx by default; assign
// WithTxFunc to observe or fail the transactional path.
func (m *MockTxManager) WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	if m.WithTxFunc != nil {
		return m.WithTxFunc(ctx, txOpt, fn)
	}
	return fn(ctx, nil)
}

// =============================
// Helpers
// =============================

// newTestLogger creates a silent zerolog.Logger so test output stays clean.
func newTestLogger() *zerolog.Logger {
	logger := zerolog.New(io.Discard)
	return &logger
}

package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"shop-payment-core/internal/domain"
	"shop-payment-core/internal/domain/ports/adapter"
	"shop-payment-core/internal/infra/metrics"
)

var _ adapter.Gateway = (*Sep)(nil)

// Sep implements the Shaparak token family: request a session token, redirect
// the payer with it, verify by the reference number the payer brings back.
type Sep struct {
	terminalID string
	sandbox    bool
	client     *http.Client
	log        *zerolog.Logger
}

func NewSep(terminalID string, sandbox bool, logger *zerolog.Logger) (*Sep, error) {
	if terminalID == "" && !sandbox {
		return nil, fmt.Errorf("%w: sep terminal id empty", domain.ErrInvalidArgument)
	}
	l := logger.With().Str("component", "Sep").Logger()
	return &Sep{
		terminalID: terminalID,
		sandbox:    sandbox,
		client:     newHTTPClient(),
		log:        &l,
	}, nil
}

func (s *Sep) Name() string { return "sep" }

const (
	sepTokenURL  = "https://sep.shaparak.ir/onlinepg/onlinepg"
	sepRedirect  = "https://sep.shaparak.ir/OnlinePG/SendToken?token="
	sepVerifyURL = "https://sep.shaparak.ir/verifyTxnRandomSessionkey/ipg/VerifyTransaction"
)

// sepCodes translates the processor's result codes. 2 and -50 are special:
// payer cancellation and amount mismatch respectively.
var sepCodes = map[int]string{
	-1:   "processing error",
	-2:   "transaction not found",
	-6:   "transaction already reversed",
	2:    "cancelled by card holder",
	-18:  "ip or terminal mismatch",
	-50:  "amount differs from the original transaction",
	-104: "terminal is inactive",
	-105: "terminal requires daily settlement",
	-106: "terminal exceeded allowed amount",
}

func sepError(code int) error {
	msg, ok := sepCodes[code]
	if !ok {
		msg = fmt.Sprintf("unrecognized processor code %d", code)
	}
	switch code {
	case 2:
		return fmt.Errorf("%w: %s", domain.ErrPayerCancelled, msg)
	case -50:
		return fmt.Errorf("%w: %s", domain.ErrVerificationMismatch, msg)
	default:
		return fmt.Errorf("%w: %s (code %d)", domain.ErrGatewayRejected, msg, code)
	}
}

func (s *Sep) CreatePayment(ctx context.Context, req adapter.PaymentRequest) (adapter.CreateResult, error) {
	started := time.Now()
	res, err := s.createPayment(ctx, req)
	metrics.ObserveGatewayCall(s.Name(), "create", err, time.Since(started))
	return res, err
}

func (s *Sep) createPayment(ctx context.Context, req adapter.PaymentRequest) (adapter.CreateResult, error) {
	if s.sandbox {
		return s.sandboxCreate(req), nil
	}

	payload := map[string]any{
		"action":      "token",
		"TerminalId":  s.terminalID,
		"Amount":      req.Amount,
		"RedirectUrl": req.CallbackURL,
		"ResNum":      req.Description,
		"CellNumber":  req.PayerPhone,
	}
	raw, err := postJSON(ctx, s.client, sepTokenURL, nil, payload)
	if err != nil {
		return adapter.CreateResult{}, err
	}
	var out struct {
		Status    int    `json:"status"`
		Token     string `json:"token"`
		ErrorCode int    `json:"errorCode"`
		ErrorDesc string `json:"errorDesc"`
	}
	if err := decodeInto(raw, &out); err != nil {
		return adapter.CreateResult{Raw: raw}, err
	}
	if out.Status != 1 || out.Token == "" {
		if out.ErrorDesc != "" {
			return adapter.CreateResult{Raw: raw}, fmt.Errorf("%w: %s (code %d)", domain.ErrGatewayRejected, out.ErrorDesc, out.ErrorCode)
		}
		return adapter.CreateResult{Raw: raw}, sepError(out.ErrorCode)
	}
	return adapter.CreateResult{
		GatewayTxID: out.Token,
		RedirectURL: sepRedirect + out.Token,
		Raw:         raw,
	}, nil
}

func (s *Sep) VerifyPayment(ctx context.Context, in adapter.VerifyInput, expectedAmount int64) (adapter.VerifyResult, error) {
	// The processor reports payer aborts through the State return field.
	if in.StatusParam != "OK" {
		return adapter.VerifyResult{Message: "cancelled by payer"}, domain.ErrPayerCancelled
	}

	started := time.Now()
	res, err := s.verifyPayment(ctx, in, expectedAmount)
	metrics.ObserveGatewayCall(s.Name(), "verify", err, time.Since(started))
	return res, err
}

func (s *Sep) verifyPayment(ctx context.Context, in adapter.VerifyInput, expectedAmount int64) (adapter.VerifyResult, error) {
	if s.sandbox {
		return s.sandboxVerify(in, expectedAmount), nil
	}

	payload := map[string]any{
		"RefNum":         in.GatewayTxID,
		"TerminalNumber": s.terminalID,
	}
	raw, err := postJSON(ctx, s.client, sepVerifyURL, nil, payload)
	if err != nil {
		return adapter.VerifyResult{}, err
	}
	var out struct {
		Success           bool `json:"Success"`
		ResultCode        int  `json:"ResultCode"`
		TransactionDetail struct {
			RRN             string `json:"RRN"`
			MaskedPan       string `json:"MaskedPan"`
			AffectiveAmount int64  `json:"AffectiveAmount"`
		} `json:"TransactionDetail"`
	}
	if err := decodeInto(raw, &out); err != nil {
		return adapter.VerifyResult{Raw: raw}, err
	}
	if !out.Success {
		return adapter.VerifyResult{Raw: raw}, sepError(out.ResultCode)
	}
	// The settled amount must match what we asked for, never coerced.
	if out.TransactionDetail.AffectiveAmount != expectedAmount {
		return adapter.VerifyResult{Raw: raw}, fmt.Errorf("%w: settled %d, expected %d",
			domain.ErrVerificationMismatch, out.TransactionDetail.AffectiveAmount, expectedAmount)
	}
	return adapter.VerifyResult{
		Settled:   true,
		BankRefID: out.TransactionDetail.RRN,
		CardPAN:   out.TransactionDetail.MaskedPan,
		Message:   "verified",
		Raw:       raw,
	}, nil
}

// RefundPayment is not offered by this processor's merchant API.
func (s *Sep) RefundPayment(ctx context.Context, gatewayTxID string, amount int64, description, method, reason string) (adapter.RefundResult, error) {
	return adapter.RefundResult{}, domain.ErrRefundUnsupported
}

// --- sandbox mode ---

func (s *Sep) sandboxCreate(req adapter.PaymentRequest) adapter.CreateResult {
	token := fmt.Sprintf("T%019d", req.Amount)
	raw, _ := json.Marshal(map[string]any{"status": 1, "token": token})
	return adapter.CreateResult{
		GatewayTxID: token,
		RedirectURL: sepRedirect + token,
		Raw:         raw,
	}
}

func (s *Sep) sandboxVerify(in adapter.VerifyInput, expectedAmount int64) adapter.VerifyResult {
	rrn := fmt.Sprintf("%012d", 880000000000+expectedAmount%1000000)
	pan := fmt.Sprintf("621986******%04d", expectedAmount%10000)
	raw, _ := json.Marshal(map[string]any{
		"Success":    true,
		"ResultCode": 0,
		"TransactionDetail": map[string]any{
			"RRN": rrn, "MaskedPan": pan, "AffectiveAmount": expectedAmount,
		},
	})
	return adapter.VerifyResult{
		Settled:   true,
		BankRefID: rrn,
		CardPAN:   pan,
		Message:   "verified",
		Raw:       raw,
	}
}

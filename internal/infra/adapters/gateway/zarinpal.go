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

var _ adapter.Gateway = (*ZarinPal)(nil)

// ZarinPal implements the authority-handshake family: request a payment to
// receive an opaque authority token, redirect the payer by that token, then
// verify by the same token and the original amount.
type ZarinPal struct {
	merchantID  string
	sandbox     bool
	accessToken string // optional, refunds only
	client      *http.Client
	log         *zerolog.Logger
}

func NewZarinPal(merchantID string, sandbox bool, accessToken string, logger *zerolog.Logger) (*ZarinPal, error) {
	if merchantID == "" && !sandbox {
		return nil, fmt.Errorf("%w: zarinpal merchant id empty", domain.ErrInvalidArgument)
	}
	l := logger.With().Str("component", "ZarinPal").Logger()
	return &ZarinPal{
		merchantID:  merchantID,
		sandbox:     sandbox,
		accessToken: accessToken,
		client:      newHTTPClient(),
		log:         &l,
	}, nil
}

func (z *ZarinPal) Name() string { return "zarinpal" }

// zarinpalCodes maps the provider's numeric result codes to stable messages.
// The same table backs both CreatePayment and VerifyPayment.
var zarinpalCodes = map[int]string{
	-9:  "invalid input data",
	-10: "terminal is not valid",
	-11: "terminal is not active",
	-12: "too many attempts, try again later",
	-15: "terminal is suspended",
	-16: "merchant level does not allow this operation",
	-50: "paid amount differs from the requested amount",
	-51: "payment session failed",
	-53: "payment session does not belong to this merchant",
	-54: "invalid authority",
	-55: "payment session not found",
}

func zarinpalError(code int) error {
	msg, ok := zarinpalCodes[code]
	if !ok {
		msg = fmt.Sprintf("unrecognized provider code %d", code)
	}
	if code == -50 {
		return fmt.Errorf("%w: %s", domain.ErrVerificationMismatch, msg)
	}
	return fmt.Errorf("%w: %s (code %d)", domain.ErrGatewayRejected, msg, code)
}

func (z *ZarinPal) endpoint(path string) string {
	base := "https://api.zarinpal.com/pg/v4"
	if z.sandbox {
		base = "https://sandbox.zarinpal.com/pg/v4"
	}
	return base + path
}

func (z *ZarinPal) startPayURL(authority string) string {
	if z.sandbox {
		return "https://sandbox.zarinpal.com/pg/StartPay/" + authority
	}
	return "https://www.zarinpal.com/pg/StartPay/" + authority
}

func (z *ZarinPal) CreatePayment(ctx context.Context, req adapter.PaymentRequest) (adapter.CreateResult, error) {
	started := time.Now()
	res, err := z.createPayment(ctx, req)
	metrics.ObserveGatewayCall(z.Name(), "create", err, time.Since(started))
	return res, err
}

func (z *ZarinPal) createPayment(ctx context.Context, req adapter.PaymentRequest) (adapter.CreateResult, error) {
	if z.sandbox {
		return z.sandboxCreate(req), nil
	}

	payload := map[string]any{
		"merchant_id":  z.merchantID,
		"amount":       req.Amount,
		"description":  req.Description,
		"callback_url": req.CallbackURL,
		"metadata": map[string]string{
			"mobile": req.PayerPhone,
			"email":  req.PayerEmail,
		},
	}
	raw, err := postJSON(ctx, z.client, z.endpoint("/payment/request.json"), nil, payload)
	if err != nil {
		return adapter.CreateResult{}, err
	}
	var out struct {
		Data struct {
			Code      int    `json:"code"`
			Authority string `json:"authority"`
		} `json:"data"`
		Errors struct {
			Code int `json:"code"`
		} `json:"errors"`
	}
	if err := decodeInto(raw, &out); err != nil {
		return adapter.CreateResult{Raw: raw}, err
	}
	code := out.Data.Code
	if code == 0 {
		code = out.Errors.Code
	}
	if code != 100 || out.Data.Authority == "" {
		return adapter.CreateResult{Raw: raw}, zarinpalError(code)
	}
	return adapter.CreateResult{
		GatewayTxID: out.Data.Authority,
		RedirectURL: z.startPayURL(out.Data.Authority),
		Raw:         raw,
	}, nil
}

func (z *ZarinPal) VerifyPayment(ctx context.Context, in adapter.VerifyInput, expectedAmount int64) (adapter.VerifyResult, error) {
	// Explicit "not OK" signal from the payer's return: cancelled, no network call.
	if in.StatusParam != "OK" {
		return adapter.VerifyResult{Message: "cancelled by payer"}, domain.ErrPayerCancelled
	}

	started := time.Now()
	res, err := z.verifyPayment(ctx, in, expectedAmount)
	metrics.ObserveGatewayCall(z.Name(), "verify", err, time.Since(started))
	return res, err
}

func (z *ZarinPal) verifyPayment(ctx context.Context, in adapter.VerifyInput, expectedAmount int64) (adapter.VerifyResult, error) {
	if z.sandbox {
		return z.sandboxVerify(in, expectedAmount), nil
	}

	payload := map[string]any{
		"merchant_id": z.merchantID,
		"amount":      expectedAmount,
		"authority":   in.GatewayTxID,
	}
	raw, err := postJSON(ctx, z.client, z.endpoint("/payment/verify.json"), nil, payload)
	if err != nil {
		return adapter.VerifyResult{}, err
	}
	var out struct {
		Data struct {
			Code    int    `json:"code"`
			RefID   int64  `json:"ref_id"`
			CardPan string `json:"card_pan"`
		} `json:"data"`
		Errors struct {
			Code int `json:"code"`
		} `json:"errors"`
	}
	if err := decodeInto(raw, &out); err != nil {
		return adapter.VerifyResult{Raw: raw}, err
	}
	code := out.Data.Code
	if code == 0 {
		code = out.Errors.Code
	}
	// 100 is settled now, 101 is already-settled; both carry a ref_id.
	if (code != 100 && code != 101) || out.Data.RefID == 0 {
		return adapter.VerifyResult{Raw: raw}, zarinpalError(code)
	}
	return adapter.VerifyResult{
		Settled:   true,
		BankRefID: fmt.Sprintf("%d", out.Data.RefID),
		CardPAN:   out.Data.CardPan,
		Message:   "verified",
		Raw:       raw,
	}, nil
}

func (z *ZarinPal) RefundPayment(ctx context.Context, gatewayTxID string, amount int64, description, method, reason string) (adapter.RefundResult, error) {
	if z.accessToken == "" {
		return adapter.RefundResult{}, fmt.Errorf("%w: zarinpal refunds need payment.zarinpal.access_token", domain.ErrRefundUnsupported)
	}
	if z.sandbox {
		return z.sandboxRefund(gatewayTxID, amount), nil
	}

	body := map[string]any{
		"query": `mutation AddRefund($session_id: ID!, $amount: BigInteger!, $description: String, $method: InstantPayoutActionTypeEnum, $reason: RefundReasonEnum) {
  resource: AddRefund(session_id: $session_id, amount: $amount, description: $description, method: $method, reason: $reason) {
    id
    amount
    timeline { refund_amount refund_time refund_status }
  }
}`,
		"variables": map[string]any{
			"session_id":  gatewayTxID,
			"amount":      amount,
			"description": description,
			"method":      method,
			"reason":      reason,
		},
	}
	headers := map[string]string{"Authorization": "Bearer " + z.accessToken}
	raw, err := postJSON(ctx, z.client, "https://api.zarinpal.com/api/v4/graphql", headers, body)
	if err != nil {
		return adapter.RefundResult{}, err
	}
	var out struct {
		Data struct {
			Resource struct {
				ID       string `json:"id"`
				Timeline struct {
					RefundStatus string `json:"refund_status"`
				} `json:"timeline"`
			} `json:"resource"`
		} `json:"data"`
		Errors json.RawMessage `json:"errors"`
	}
	if err := decodeInto(raw, &out); err != nil {
		return adapter.RefundResult{Raw: raw}, err
	}
	if len(out.Errors) > 0 && string(out.Errors) != "null" {
		return adapter.RefundResult{Raw: raw}, fmt.Errorf("%w: refund error: %s", domain.ErrGatewayRejected, out.Errors)
	}
	return adapter.RefundResult{
		GatewayRefundID: out.Data.Resource.ID,
		Status:          out.Data.Resource.Timeline.RefundStatus,
		Raw:             raw,
	}, nil
}

// --- sandbox mode: deterministic synthetic payloads, shaped like the real ones ---

func (z *ZarinPal) sandboxCreate(req adapter.PaymentRequest) adapter.CreateResult {
	authority := fmt.Sprintf("A%035d", req.Amount)
	raw, _ := json.Marshal(map[string]any{
		"data":   map[string]any{"code": 100, "message": "Success", "authority": authority, "fee_type": "Merchant", "fee": 0},
		"errors": []any{},
	})
	return adapter.CreateResult{
		GatewayTxID: authority,
		RedirectURL: z.startPayURL(authority),
		Raw:         raw,
	}
}

func (z *ZarinPal) sandboxVerify(in adapter.VerifyInput, expectedAmount int64) adapter.VerifyResult {
	refID := 77000000 + expectedAmount%1000000
	pan := fmt.Sprintf("502229******%04d", expectedAmount%10000)
	raw, _ := json.Marshal(map[string]any{
		"data":   map[string]any{"code": 100, "message": "Verified", "ref_id": refID, "card_pan": pan},
		"errors": []any{},
	})
	return adapter.VerifyResult{
		Settled:   true,
		BankRefID: fmt.Sprintf("%d", refID),
		CardPAN:   pan,
		Message:   "verified",
		Raw:       raw,
	}
}

func (z *ZarinPal) sandboxRefund(gatewayTxID string, amount int64) adapter.RefundResult {
	raw, _ := json.Marshal(map[string]any{
		"data": map[string]any{"resource": map[string]any{
			"id": "rf-" + gatewayTxID, "amount": amount,
			"timeline": map[string]any{"refund_status": "DONE", "refund_amount": amount},
		}},
	})
	return adapter.RefundResult{GatewayRefundID: "rf-" + gatewayTxID, Status: "DONE", Raw: raw}
}

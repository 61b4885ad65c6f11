//go:build !integration

package gateway

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"shop-payment-core/internal/domain"
	"shop-payment-core/internal/domain/ports/adapter"
)

func testLogger() *zerolog.Logger {
	l := zerolog.New(io.Discard)
	return &l
}

func TestNewGateways(t *testing.T) {
	t.Run("zarinpal requires a merchant id outside sandbox", func(t *testing.T) {
		if _, err := NewZarinPal("", false, "", testLogger()); !errors.Is(err, domain.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
		if _, err := NewZarinPal("", true, "", testLogger()); err != nil {
			t.Errorf("sandbox without merchant id should be fine, got %v", err)
		}
	})

	t.Run("sep requires a terminal id outside sandbox", func(t *testing.T) {
		if _, err := NewSep("", false, testLogger()); !errors.Is(err, domain.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})
}

func TestZarinPal_Sandbox(t *testing.T) {
	ctx := context.Background()
	z, err := NewZarinPal("", true, "", testLogger())
	if err != nil {
		t.Fatalf("gateway: %v", err)
	}

	t.Run("create then verify settles with ref and masked pan", func(t *testing.T) {
		created, err := z.CreatePayment(ctx, adapter.PaymentRequest{Amount: 1_500_000, Description: "order order-1 / PAY-ABCD1234"})
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		if created.GatewayTxID == "" {
			t.Fatal("expected an authority handle")
		}
		if !strings.Contains(created.RedirectURL, created.GatewayTxID) {
			t.Errorf("expected redirect URL to carry the authority, got %s", created.RedirectURL)
		}
		if len(created.Raw) == 0 {
			t.Error("expected the provider payload to be preserved")
		}

		res, err := z.VerifyPayment(ctx, adapter.VerifyInput{GatewayTxID: created.GatewayTxID, StatusParam: "OK"}, 1_500_000)
		if err != nil {
			t.Fatalf("verify: %v", err)
		}
		if !res.Settled {
			t.Fatal("expected a settled verification")
		}
		if res.BankRefID == "" {
			t.Error("expected a bank reference")
		}
		if !strings.Contains(res.CardPAN, "******") {
			t.Errorf("expected a masked pan, got %q", res.CardPAN)
		}
	})

	t.Run("a not-OK return short-circuits to payer cancellation", func(t *testing.T) {
		_, err := z.VerifyPayment(ctx, adapter.VerifyInput{GatewayTxID: "A0001", StatusParam: "NOK"}, 1_500_000)
		if !errors.Is(err, domain.ErrPayerCancelled) {
			t.Errorf("expected ErrPayerCancelled, got %v", err)
		}
	})

	t.Run("refund without access token is unsupported", func(t *testing.T) {
		_, err := z.RefundPayment(ctx, "A0001", 1000, "", "PAYA", "CUSTOMER_REQUEST")
		if !errors.Is(err, domain.ErrRefundUnsupported) {
			t.Errorf("expected ErrRefundUnsupported, got %v", err)
		}
	})

	t.Run("refund with access token succeeds in sandbox", func(t *testing.T) {
		zr, _ := NewZarinPal("", true, "token-123", testLogger())
		res, err := zr.RefundPayment(ctx, "A0001", 1000, "damaged item", "PAYA", "CUSTOMER_REQUEST")
		if err != nil {
			t.Fatalf("refund: %v", err)
		}
		if res.GatewayRefundID == "" {
			t.Error("expected a refund id")
		}
	})
}

func TestZarinPal_ErrorCodes(t *testing.T) {
	t.Run("amount mismatch maps to verification mismatch", func(t *testing.T) {
		if err := zarinpalError(-50); !errors.Is(err, domain.ErrVerificationMismatch) {
			t.Errorf("expected ErrVerificationMismatch for -50, got %v", err)
		}
	})
	t.Run("other codes map to gateway rejection", func(t *testing.T) {
		for _, code := range []int{-9, -11, -54, -55, -999} {
			if err := zarinpalError(code); !errors.Is(err, domain.ErrGatewayRejected) {
				t.Errorf("expected ErrGatewayRejected for %d, got %v", code, err)
			}
		}
	})
}

func TestSep_Sandbox(t *testing.T) {
	ctx := context.Background()
	s, err := NewSep("", true, testLogger())
	if err != nil {
		t.Fatalf("gateway: %v", err)
	}

	t.Run("token then verify settles on the exact amount", func(t *testing.T) {
		created, err := s.CreatePayment(ctx, adapter.PaymentRequest{Amount: 2_000_000})
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		if created.GatewayTxID == "" {
			t.Fatal("expected a session token")
		}

		res, err := s.VerifyPayment(ctx, adapter.VerifyInput{GatewayTxID: created.GatewayTxID, StatusParam: "OK"}, 2_000_000)
		if err != nil {
			t.Fatalf("verify: %v", err)
		}
		if !res.Settled || res.BankRefID == "" {
			t.Errorf("expected a settled result with RRN, got %+v", res)
		}
	})

	t.Run("an aborted return short-circuits to payer cancellation", func(t *testing.T) {
		_, err := s.VerifyPayment(ctx, adapter.VerifyInput{GatewayTxID: "T0001", StatusParam: "CanceledByUser"}, 2_000_000)
		if !errors.Is(err, domain.ErrPayerCancelled) {
			t.Errorf("expected ErrPayerCancelled, got %v", err)
		}
	})

	t.Run("refunds are not offered", func(t *testing.T) {
		_, err := s.RefundPayment(ctx, "T0001", 1000, "", "PAYA", "OTHER")
		if !errors.Is(err, domain.ErrRefundUnsupported) {
			t.Errorf("expected ErrRefundUnsupported, got %v", err)
		}
	})
}

func TestSep_ErrorCodes(t *testing.T) {
	if err := sepError(2); !errors.Is(err, domain.ErrPayerCancelled) {
		t.Errorf("expected ErrPayerCancelled for code 2, got %v", err)
	}
	if err := sepError(-50); !errors.Is(err, domain.ErrVerificationMismatch) {
		t.Errorf("expected ErrVerificationMismatch for -50, got %v", err)
	}
	if err := sepError(-104); !errors.Is(err, domain.ErrGatewayRejected) {
		t.Errorf("expected ErrGatewayRejected for -104, got %v", err)
	}
}

func TestRegistry(t *testing.T) {
	z, _ := NewZarinPal("", true, "", testLogger())
	s, _ := NewSep("", true, testLogger())
	reg := NewRegistry(z, s)

	t.Run("resolves configured gateways by id", func(t *testing.T) {
		g, err := reg.Get("zarinpal")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if g.Name() != "zarinpal" {
			t.Errorf("expected 'zarinpal', got %s", g.Name())
		}
	})

	t.Run("unknown ids fail at lookup time", func(t *testing.T) {
		if _, err := reg.Get("mellat"); !errors.Is(err, domain.ErrUnknownGateway) {
			t.Errorf("expected ErrUnknownGateway, got %v", err)
		}
	})

	t.Run("ids are stable and sorted", func(t *testing.T) {
		ids := reg.IDs()
		if len(ids) != 2 || ids[0] != "sep" || ids[1] != "zarinpal" {
			t.Errorf("unexpected ids: %v", ids)
		}
	})
}

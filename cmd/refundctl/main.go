// refundctl is the operator tool for the refund lifecycle: request a refund
// against a settled payment, drive it through the gateway, or withdraw it.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"shop-payment-core/internal/config"
	"shop-payment-core/internal/domain/model"
	"shop-payment-core/internal/domain/ports/adapter"
	gw "shop-payment-core/internal/infra/adapters/gateway"
	pg "shop-payment-core/internal/infra/db/postgres"
	"shop-payment-core/internal/infra/logging"
	"shop-payment-core/internal/usecase"
)

func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	action := flag.String("action", "", "request | process | cancel")
	paymentID := flag.String("payment", "", "payment id (request)")
	refundID := flag.String("refund", "", "refund id (process, cancel)")
	amount := flag.Int64("amount", 0, "refund amount in IRR (request)")
	method := flag.String("method", string(model.RefundMethodPaya), "PAYA | CARD")
	reason := flag.String("reason", string(model.RefundReasonCustomerRequest), "refund reason code")
	desc := flag.String("desc", "", "free-form description")
	operator := flag.String("operator", "refundctl", "actor recorded in the audit trail")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, false)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := logging.New(cfg.Log, true)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, 4)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer pool.Close()

	payRepo := pg.NewPaymentRepo(pool)
	refundRepo := pg.NewRefundRepo(pool)
	auditRepo := pg.NewAuditRepo(pool, logger)
	tm := pg.NewTxManager(pool)

	var gateways []adapter.Gateway
	if cfg.Payment.ZarinPal.MerchantID != "" || cfg.Payment.ZarinPal.Sandbox {
		zp, err := gw.NewZarinPal(cfg.Payment.ZarinPal.MerchantID, cfg.Payment.ZarinPal.Sandbox, cfg.Payment.ZarinPal.AccessToken, logger)
		if err != nil {
			log.Fatalf("zarinpal: %v", err)
		}
		gateways = append(gateways, zp)
	}
	if cfg.Payment.Sep.TerminalID != "" || cfg.Payment.Sep.Sandbox {
		sep, err := gw.NewSep(cfg.Payment.Sep.TerminalID, cfg.Payment.Sep.Sandbox, logger)
		if err != nil {
			log.Fatalf("sep: %v", err)
		}
		gateways = append(gateways, sep)
	}
	registry := gw.NewRegistry(gateways...)

	refundUC := usecase.NewRefundUseCase(refundRepo, payRepo, registry, auditRepo, tm, logger)

	switch *action {
	case "request":
		if *paymentID == "" || *amount <= 0 {
			usage("request needs -payment and a positive -amount")
		}
		rr, err := refundUC.Request(ctx, *paymentID, *amount, *operator, *desc,
			model.RefundMethod(*method), model.RefundReason(*reason))
		if err != nil {
			log.Fatalf("request: %v", err)
		}
		fmt.Printf("refund %s requested: %d IRR against payment %s\n", rr.ID, rr.Amount, rr.PaymentID)
	case "process":
		if *refundID == "" {
			usage("process needs -refund")
		}
		rr, err := refundUC.Process(ctx, *refundID, *operator)
		if err != nil {
			log.Fatalf("process: %v", err)
		}
		ref := ""
		if rr.GatewayRefundID != nil {
			ref = " (gateway ref " + *rr.GatewayRefundID + ")"
		}
		fmt.Printf("refund %s is %s%s\n", rr.ID, rr.Status, ref)
	case "cancel":
		if *refundID == "" {
			usage("cancel needs -refund")
		}
		if err := refundUC.Cancel(ctx, *refundID, *operator); err != nil {
			log.Fatalf("cancel: %v", err)
		}
		fmt.Printf("refund %s cancelled\n", *refundID)
	default:
		usage("unknown action " + *action)
	}
}

func usage(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	flag.Usage()
	os.Exit(2)
}

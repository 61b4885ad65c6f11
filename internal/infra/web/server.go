package web

import (
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"shop-payment-core/internal/config"
	"shop-payment-core/internal/domain/model"
	"shop-payment-core/internal/domain/ports/adapter"
	"shop-payment-core/internal/domain/ports/repository"
	"shop-payment-core/internal/infra/metrics"
	"shop-payment-core/internal/infra/redis"
	"shop-payment-core/internal/usecase"
)

// rateLimiter is the slice of the redis limiter the server needs.
type rateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

const (
	callbackRateLimit  = 30
	callbackRateWindow = time.Minute
	handlerTimeout     = 40 * time.Second // outlives one full gateway call budget
)

// Server is the payment core's only inbound surface: the per-payment callback
// URL the gateways redirect to, plus health and metrics.
type Server struct {
	payUC     usecase.PaymentUseCase
	callbacks repository.CallbackRepository
	signer    adapter.CallbackSigner
	limiter   rateLimiter
	log       *zerolog.Logger
	server    *http.Server
}

func NewServer(cfg config.ServerConfig, payUC usecase.PaymentUseCase, callbacks repository.CallbackRepository, signer adapter.CallbackSigner, limiter rateLimiter, logger *zerolog.Logger) *Server {
	l := logger.With().Str("component", "WebServer").Logger()
	s := &Server{
		payUC:     payUC,
		callbacks: callbacks,
		signer:    signer,
		limiter:   limiter,
		log:       &l,
	}
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/payments/callback/{paymentID}", s.handleCallback)
	r.Post("/payments/callback/{paymentID}", s.handleCallback)
	return r
}

func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("http server listening")
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// handleCallback is the single entry point after the payer leaves the payment
// flow. Order of operations is fixed: record the raw payload first, verify
// second, mark the callback processed last. Amounts are never read from the
// request; verification re-asserts what the record stores.
func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), handlerTimeout)
	defer cancel()

	paymentID := chi.URLParam(r, "paymentID")
	remote := remoteAddr(r)

	if s.limiter != nil {
		allowed, err := s.limiter.Allow(ctx, redis.CallbackKey(remote), callbackRateLimit, callbackRateWindow)
		if err != nil {
			s.log.Error().Err(err).Msg("rate limiter unavailable")
		} else if !allowed {
			http.Error(w, "too many requests", http.StatusTooManyRequests)
			return
		}
	}

	_ = r.ParseForm()
	kind := model.CallbackKindReturn
	if r.Method == http.MethodPost && strings.Contains(r.Header.Get("Content-Type"), "application/json") {
		kind = model.CallbackKindWebhook
	}
	metrics.IncCallback(string(kind))

	cb := model.NewCallbackRecord(paymentID, kind, rawPayload(r), remote)
	if err := s.callbacks.Save(ctx, nil, cb); err != nil {
		// The verbatim record is a hard requirement; without it we refuse to
		// touch the payment.
		s.log.Error().Err(err).Str("payment_id", paymentID).Msg("callback record save failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	if err := s.signer.Validate(r.Form.Get("state"), paymentID); err != nil {
		s.finishCallback(ctx, cb.ID, "rejected: invalid state token")
		s.renderResult(w, http.StatusForbidden, resultPage{Message: "this request is not valid"})
		return
	}

	in := parseProviderFields(r.Form)
	settled, rec, err := s.payUC.Verify(ctx, paymentID, in, "payer")
	switch {
	case err != nil:
		s.finishCallback(ctx, cb.ID, "verification failed: "+err.Error())
		s.renderResult(w, http.StatusOK, pageFor(rec, false))
	case settled:
		s.finishCallback(ctx, cb.ID, "settled")
		s.renderResult(w, http.StatusOK, pageFor(rec, true))
	default:
		s.finishCallback(ctx, cb.ID, "not settled: "+string(rec.Status))
		s.renderResult(w, http.StatusOK, pageFor(rec, false))
	}
}

func (s *Server) finishCallback(ctx context.Context, id, response string) {
	if err := s.callbacks.MarkProcessed(ctx, nil, id, response); err != nil {
		s.log.Error().Err(err).Str("callback_id", id).Msg("mark processed failed")
	}
}

// parseProviderFields accepts both provider families: Authority/Status for
// the authority handshake, token-or-RefNum/State for the token model.
func parseProviderFields(form map[string][]string) adapter.VerifyInput {
	get := func(key string) string {
		if v, ok := form[key]; ok && len(v) > 0 {
			return v[0]
		}
		return ""
	}
	if authority := get("Authority"); authority != "" {
		return adapter.VerifyInput{GatewayTxID: authority, StatusParam: get("Status")}
	}
	handle := get("RefNum")
	if handle == "" {
		handle = get("token")
	}
	state := get("State")
	if state == "" {
		state = get("Status")
	}
	return adapter.VerifyInput{GatewayTxID: handle, StatusParam: state}
}

const maxCallbackBody = 64 << 10

// rawPayload re-serializes everything the sender gave us, before parsing.
// ParseForm only consumes urlencoded bodies, so a webhook's JSON body is
// still readable here.
func rawPayload(r *http.Request) json.RawMessage {
	payload := map[string]interface{}{
		"method": r.Method,
		"url":    r.URL.String(),
		"query":  r.URL.Query(),
	}
	if len(r.PostForm) > 0 {
		payload["form"] = r.PostForm
	}
	if r.Body != nil {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxCallbackBody))
		if err == nil && len(body) > 0 {
			if json.Valid(body) {
				payload["body"] = json.RawMessage(body)
			} else {
				payload["body"] = string(body)
			}
		}
	}
	raw, _ := json.Marshal(payload)
	return raw
}

func remoteAddr(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

type resultPage struct {
	OK           bool
	TrackingCode string
	BankRefID    string
	Message      string
	Retryable    bool
}

func pageFor(rec *model.PaymentRecord, ok bool) resultPage {
	p := resultPage{OK: ok}
	if rec == nil {
		p.Message = "payment not found"
		return p
	}
	p.TrackingCode = rec.TrackingCode
	if rec.BankRefID != nil {
		p.BankRefID = *rec.BankRefID
	}
	switch {
	case ok:
		p.Message = "payment settled"
	case rec.ErrorMessage != "":
		p.Message = rec.ErrorMessage
	default:
		p.Message = "payment " + string(rec.Status)
	}
	// Only retryable failures surface a retry affordance.
	p.Retryable = rec.Status.IsRetryable() && rec.RetryCount < 3 && time.Since(rec.CreatedAt) < 24*time.Hour
	return p
}

var page = template.Must(template.New("cb").Parse(`<!doctype html>
<html lang="en">
<head>
<meta charset="utf-8" />
<meta name="viewport" content="width=device-width,initial-scale=1" />
<title>Payment {{if .OK}}Success{{else}}Result{{end}}</title>
<style>
body{font-family:system-ui,Arial,sans-serif;margin:2rem;}
.card{max-width:560px;border:1px solid #ddd;border-radius:12px;padding:24px;}
.ok{color:#057a55} .fail{color:#b00020}
.small{font-size:12px;color:#666}
</style>
</head>
<body>
<div class="card">
<h2 class="{{if .OK}}ok{{else}}fail{{end}}">{{if .OK}}Payment successful{{else}}Payment not completed{{end}}</h2>
<p>{{.Message}}</p>
{{if .TrackingCode}}<p class="small">Tracking code: {{.TrackingCode}}</p>{{end}}
{{if .BankRefID}}<p class="small">Bank reference: {{.BankRefID}}</p>{{end}}
{{if .Retryable}}<p>You can retry this payment from your order page.</p>{{end}}
</div>
</body>
</html>`))

func (s *Server) renderResult(w http.ResponseWriter, status int, data resultPage) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := page.Execute(w, data); err != nil {
		s.log.Error().Err(err).Msg("render result page failed")
	}
}

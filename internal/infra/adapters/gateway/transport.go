package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"shop-payment-core/internal/domain"
)

// Transport policy shared by all adapters: bounded timeout per call, up to
// three attempts, no backoff beyond a short pause. A transport failure on the
// final attempt surfaces as ErrGatewayConnection, which is a different animal
// from a gateway-reported rejection.
const (
	callTimeout  = 30 * time.Second
	maxAttempts  = 3
	attemptPause = 250 * time.Millisecond
)

func newHTTPClient() *http.Client {
	return &http.Client{Timeout: callTimeout}
}

// postJSON sends payload as JSON and returns the raw response body. Network
// errors and non-2xx statuses are retried; the final failure is wrapped in
// ErrGatewayConnection.
func postJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, payload any) (json.RawMessage, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal request: %v", domain.ErrInvalidArgument, err)
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("%w: build request: %v", domain.ErrGatewayConnection, err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := client.Do(req)
		if err != nil {
			lastErr = err
		} else {
			raw, readErr := io.ReadAll(resp.Body)
			resp.Body.Close()
			switch {
			case readErr != nil:
				lastErr = readErr
			case resp.StatusCode >= 500:
				lastErr = fmt.Errorf("http %d", resp.StatusCode)
			default:
				return raw, nil
			}
		}

		if attempt < maxAttempts {
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %v", domain.ErrGatewayConnection, ctx.Err())
			case <-time.After(attemptPause):
			}
		}
	}
	return nil, fmt.Errorf("%w: %v", domain.ErrGatewayConnection, lastErr)
}

// decodeInto parses a provider payload; a malformed body counts as a
// connectivity failure since the business outcome is unknown.
func decodeInto(raw json.RawMessage, out any) error {
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: malformed provider response: %v", domain.ErrGatewayConnection, err)
	}
	return nil
}

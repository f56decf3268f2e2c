package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"tokenshare-backend/internal/pkg/tracectx"

	"golang.org/x/time/rate"
)

// HTTPClient is a Client backed by the ledger gateway's REST API.
//
//	POST {BaseURL}/v1/records/token-creation
//	POST {BaseURL}/v1/records/dividend
//	GET  {BaseURL}/v1/health
//
// Submissions send the idempotency key in the Idempotency-Key header as well as the body.
type HTTPClient struct {
	BaseURL string
	APIKey  string
	Client  *http.Client
	// Limiter caps the request rate to the gateway; nil means unlimited.
	Limiter *rate.Limiter
}

// NewHTTPClient builds a client with a per-request timeout and a rate limit of perSecond requests.
func NewHTTPClient(baseURL, apiKey string, timeout time.Duration, perSecond float64) *HTTPClient {
	c := &HTTPClient{
		BaseURL: baseURL,
		APIKey:  apiKey,
		Client:  &http.Client{Timeout: timeout},
	}
	if perSecond > 0 {
		c.Limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
	}
	return c
}

type errorResponse struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

func (c *HTTPClient) SubmitTokenCreation(ctx context.Context, rec TokenCreation) (*Receipt, error) {
	return c.submit(ctx, "submitTokenCreation", "/v1/records/token-creation", rec.IdempotencyKey, rec)
}

func (c *HTTPClient) SubmitDividend(ctx context.Context, rec Dividend) (*Receipt, error) {
	return c.submit(ctx, "submitDividend", "/v1/records/dividend", rec.IdempotencyKey, rec)
}

// Ping checks the gateway is reachable and reports healthy.
func (c *HTTPClient) Ping(ctx context.Context) error {
	resp, err := c.do(ctx, "ping", http.MethodGet, "/v1/health", "", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &Error{Op: "ping", StatusCode: resp.StatusCode, Err: errors.New("unhealthy")}
	}
	return nil
}

func (c *HTTPClient) submit(ctx context.Context, op, path, key string, payload interface{}) (*Receipt, error) {
	if key == "" {
		return nil, &Error{Op: op, Permanent: true, Err: errors.New("missing idempotency key")}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, &Error{Op: op, Permanent: true, Err: err}
	}

	resp, err := c.do(ctx, op, http.MethodPost, path, key, body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var e errorResponse
		_ = json.Unmarshal(respBody, &e)
		msg := e.Message
		if msg == "" {
			msg = e.Error
		}
		if msg == "" {
			msg = strings.TrimSpace(string(respBody))
		}
		return nil, &Error{Op: op, StatusCode: resp.StatusCode, Permanent: permanentStatus(resp.StatusCode), Err: errors.New(msg)}
	}

	var receipt Receipt
	if err := json.Unmarshal(respBody, &receipt); err != nil {
		return nil, &Error{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode receipt: %w", err)}
	}
	if receipt.Handle == "" {
		return nil, &Error{Op: op, StatusCode: resp.StatusCode, Err: errors.New("receipt without tx_hash")}
	}
	return &receipt, nil
}

func (c *HTTPClient) do(ctx context.Context, op, method, path, key string, body []byte) (*http.Response, error) {
	if c.BaseURL == "" {
		return nil, &Error{Op: op, Err: errors.New("LEDGER_URL is not set")}
	}
	if c.Client == nil {
		c.Client = &http.Client{Timeout: 30 * time.Second}
	}
	if c.Limiter != nil {
		if err := c.Limiter.Wait(ctx); err != nil {
			return nil, &Error{Op: op, Err: err}
		}
	}

	url := strings.TrimRight(c.BaseURL, "/") + path
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, &Error{Op: op, Permanent: true, Err: err}
	}
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if key != "" {
		req.Header.Set("Idempotency-Key", key)
	}
	if id := tracectx.ID(ctx); id != "" {
		req.Header.Set(tracectx.Header, id)
	}

	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, &Error{Op: op, Err: fmt.Errorf("request: %w", err)}
	}
	return resp, nil
}

// permanentStatus: 4xx is permanent except 408, 423 (key still being
// processed by the gateway) and 429.
func permanentStatus(code int) bool {
	switch code {
	case http.StatusRequestTimeout, http.StatusTooManyRequests, http.StatusLocked:
		return false
	}
	return code >= 400 && code < 500
}

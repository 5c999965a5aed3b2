// Package board implements the remote StorageAdapter over a board-style
// API. Records live as items on one board; task fields map to column
// values through a configured column mapping.
package board

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"taskbridge/backend"
	"taskbridge/internal/utils"
)

const (
	defaultTimeout = 30 * time.Second

	// The board API allows a small sustained request rate; concurrent
	// callers share one pacer.
	minRequestInterval = 100 * time.Millisecond

	rateLimitMaxRetries = 5
	rateLimitBaseDelay  = 500 * time.Millisecond
)

// APIClient issues queries and mutations against the board API. It is the
// single transport primitive: callers supply no retry policy, rate-limit
// responses are retried with bounded exponential backoff internally and
// other transport failures surface as retriable StoreErrors.
type APIClient struct {
	endpoint string
	token    string
	client   *http.Client

	mu       sync.Mutex
	lastSent time.Time
}

// NewAPIClient creates a transport for the given endpoint. The timeout
// bounds every request including internal rate-limit retries' individual
// attempts.
func NewAPIClient(endpoint, token string, timeout time.Duration) *APIClient {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &APIClient{
		endpoint: endpoint,
		token:    token,
		client:   &http.Client{Timeout: timeout},
	}
}

type apiRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type apiError struct {
	Message string `json:"message"`
}

type apiEnvelope struct {
	Data   json.RawMessage `json:"data"`
	Errors []apiError      `json:"errors,omitempty"`
}

// Execute sends one query or mutation and returns the raw data payload.
// 429 responses are retried with exponential backoff up to the internal
// budget; exhausting it surfaces a rate-limit StoreError.
func (c *APIClient) Execute(query string, variables map[string]any) (json.RawMessage, error) {
	var data json.RawMessage

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = rateLimitBaseDelay
	bo.MaxInterval = 30 * time.Second

	attempt := 0
	op := func() error {
		attempt++
		var err error
		data, err = c.send(query, variables)
		if err == nil {
			return nil
		}
		if backend.KindOf(err) == backend.KindRateLimit {
			utils.Debugf("board API rate limited, retry %d", attempt)
			return err
		}
		return backoff.Permanent(err)
	}

	err := backoff.Retry(op, backoff.WithMaxRetries(bo, rateLimitMaxRetries))
	if err != nil {
		if perm, ok := err.(*backoff.PermanentError); ok {
			return nil, perm.Err
		}
		return nil, err
	}
	return data, nil
}

// send performs one paced HTTP round trip.
func (c *APIClient) send(query string, variables map[string]any) (json.RawMessage, error) {
	c.pace()

	body, err := json.Marshal(apiRequest{Query: query, Variables: variables})
	if err != nil {
		return nil, backend.NewStoreError("Execute", backend.KindTransport,
			"failed to encode request").WithError(err)
	}

	req, err := http.NewRequest(http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, backend.NewStoreError("Execute", backend.KindTransport,
			"failed to build request").WithError(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, backend.NewStoreError("Execute", backend.KindTransport,
			"request failed").WithError(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, backend.NewStoreError("Execute", backend.KindTransport,
			"failed to read response").WithError(err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, backend.NewStoreError("Execute", backend.KindRateLimit,
			"rate limit exceeded").WithStatus(resp.StatusCode)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, backend.NewStoreError("Execute", backend.KindConfig,
			"authentication rejected").WithStatus(resp.StatusCode)
	case resp.StatusCode >= 400:
		return nil, backend.NewStoreError("Execute", backend.KindTransport,
			fmt.Sprintf("unexpected status: %s", http.StatusText(resp.StatusCode))).
			WithStatus(resp.StatusCode)
	}

	var envelope apiEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, backend.NewStoreError("Execute", backend.KindTransport,
			"unparseable response").WithError(err)
	}
	if len(envelope.Errors) > 0 {
		return nil, backend.NewStoreError("Execute", backend.KindTransport,
			envelope.Errors[0].Message)
	}
	return envelope.Data, nil
}

// pace enforces the shared minimum interval between requests.
func (c *APIClient) pace() {
	c.mu.Lock()
	wait := minRequestInterval - time.Since(c.lastSent)
	if wait > 0 {
		c.lastSent = c.lastSent.Add(minRequestInterval)
		c.mu.Unlock()
		time.Sleep(wait)
		return
	}
	c.lastSent = time.Now()
	c.mu.Unlock()
}

// Ping issues the cheapest possible query. The connectivity monitor uses
// it as its liveness probe.
func (c *APIClient) Ping() error {
	_, err := c.Execute(`query { me { id } }`, nil)
	return err
}

package board

import (
	"net/http"
	"testing"

	"taskbridge/backend"
)

func TestRateLimitRetriedInsideTransport(t *testing.T) {
	f := newFakeBoard(t)
	f.mu.Lock()
	f.forceStatus = []int{http.StatusTooManyRequests, http.StatusTooManyRequests}
	f.mu.Unlock()

	a := f.adapter()
	// Two throttled responses, then success: the caller never sees the
	// rate limit.
	if err := a.API().Ping(); err != nil {
		t.Fatalf("Ping should succeed after internal retries: %v", err)
	}

	f.mu.Lock()
	requests := f.requests
	f.mu.Unlock()
	if requests != 3 {
		t.Errorf("expected 3 attempts, got %d", requests)
	}
}

func TestRateLimitBudgetExhausted(t *testing.T) {
	f := newFakeBoard(t)
	f.mu.Lock()
	for range rateLimitMaxRetries + 1 {
		f.forceStatus = append(f.forceStatus, http.StatusTooManyRequests)
	}
	f.mu.Unlock()

	err := f.adapter().API().Ping()
	if backend.KindOf(err) != backend.KindRateLimit {
		t.Errorf("expected rate-limit kind after budget exhaustion, got %v", err)
	}
	if !backend.IsRetriable(err) {
		t.Error("rate-limit errors are retriable at the queue level")
	}
}

func TestAuthFailureIsNotRetried(t *testing.T) {
	f := newFakeBoard(t)
	f.mu.Lock()
	f.forceStatus = []int{http.StatusUnauthorized}
	f.mu.Unlock()

	err := f.adapter().API().Ping()
	if backend.KindOf(err) != backend.KindConfig {
		t.Fatalf("expected config kind for auth failure, got %v", err)
	}

	f.mu.Lock()
	requests := f.requests
	f.mu.Unlock()
	if requests != 1 {
		t.Errorf("auth failures must not be retried, saw %d attempts", requests)
	}
}

func TestServerErrorIsRetriableKind(t *testing.T) {
	f := newFakeBoard(t)
	f.mu.Lock()
	f.forceStatus = []int{http.StatusBadGateway}
	f.mu.Unlock()

	err := f.adapter().API().Ping()
	if backend.KindOf(err) != backend.KindTransport {
		t.Fatalf("expected transport kind, got %v", err)
	}
	if !backend.IsRetriable(err) {
		t.Error("5xx responses should be retriable")
	}
}

func TestAPIErrorEnvelope(t *testing.T) {
	f := newFakeBoard(t)
	a := f.adapter()

	// A mutation against a missing item returns an error in the envelope.
	_, err := a.API().Execute(mutationDeleteItem, map[string]any{"itemId": "missing"})
	if err == nil {
		t.Fatal("expected an error from the envelope")
	}
	if backend.KindOf(err) != backend.KindTransport {
		t.Errorf("expected transport kind, got %v", err)
	}
}

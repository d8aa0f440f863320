package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func limitedHandler(cfg RateLimit) http.Handler {
	return RateLimitMiddleware(cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
}

func tenantRequest(tenant uuid.UUID) *http.Request {
	req := httptest.NewRequest("GET", "/", nil)
	ctx := context.WithValue(req.Context(), tenantIDKey, tenant)
	return req.WithContext(ctx)
}

func TestRateLimitAllowsWithinBurst(t *testing.T) {
	h := limitedHandler(RateLimit{WindowSeconds: 60, MaxRequests: 60, Burst: 5})
	tenant := uuid.New()

	for i := 0; i < 5; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, tenantRequest(tenant))
		assert.Equal(t, http.StatusOK, rec.Code, "request %d", i)
	}
}

func TestRateLimitRejectsBeyondBurst(t *testing.T) {
	h := limitedHandler(RateLimit{WindowSeconds: 3600, MaxRequests: 1, Burst: 2})
	tenant := uuid.New()

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, tenantRequest(tenant))
		assert.Equal(t, http.StatusOK, rec.Code)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, tenantRequest(tenant))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestRateLimitIsPerTenant(t *testing.T) {
	h := limitedHandler(RateLimit{WindowSeconds: 3600, MaxRequests: 1, Burst: 1})

	first := uuid.New()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, tenantRequest(first))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, tenantRequest(first))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	// A different tenant has its own bucket.
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, tenantRequest(uuid.New()))
	assert.Equal(t, http.StatusOK, rec.Code)
}

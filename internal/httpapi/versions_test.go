package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/PROD-B2B-GGJ-Platform/kernel-component/internal/kernel"
)

func TestVersionAtTimeReadsTimestampParam(t *testing.T) {
	srv := &Server{Core: &kernel.Core{}}

	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("id", uuid.New().String())

	// Both a malformed value and the wrong parameter name stop at the
	// parse step, before any lookup runs.
	targets := []string{
		"/?timestamp=yesterday",
		"/?time=" + url.QueryEscape(time.Now().UTC().Format(time.RFC3339)),
	}
	for _, target := range targets {
		req := httptest.NewRequest("GET", target, nil)
		req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
		rec := httptest.NewRecorder()
		srv.GetVersionAtTime(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
	}
}

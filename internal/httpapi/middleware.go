package httpapi

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/PROD-B2B-GGJ-Platform/kernel-component/internal/model"
)

type contextKey string

const (
	tenantIDKey contextKey = "tenantId"
	actorKey    contextKey = "actor"
)

// TenantMiddleware requires an X-Tenant-Id header on every request and
// builds the actor context from the caller headers. The tenant id is also
// pushed onto the request logger so every line carries it.
func TenantMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := r.Header.Get("X-Tenant-Id")
		if raw == "" {
			writeError(w, r, http.StatusBadRequest, "X-Tenant-Id header is required")
			return
		}
		tenantID, err := uuid.Parse(raw)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "X-Tenant-Id must be a UUID")
			return
		}

		actor := model.ActorContext{
			User:      r.Header.Get("X-User-Id"),
			IP:        r.RemoteAddr,
			UserAgent: r.UserAgent(),
		}

		ctx := context.WithValue(r.Context(), tenantIDKey, tenantID)
		ctx = context.WithValue(ctx, actorKey, actor)

		logger := log.Ctx(ctx).With().Str("tenant_id", tenantID.String()).Logger()
		ctx = logger.WithContext(ctx)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// TenantID retrieves the tenant from context. Handlers behind
// TenantMiddleware always find one.
func TenantID(ctx context.Context) uuid.UUID {
	if id, ok := ctx.Value(tenantIDKey).(uuid.UUID); ok {
		return id
	}
	return uuid.Nil
}

// Actor retrieves the caller identity from context.
func Actor(ctx context.Context) model.ActorContext {
	if a, ok := ctx.Value(actorKey).(model.ActorContext); ok {
		return a
	}
	return model.ActorContext{}
}

package db

import (
	"context"
	"errors"
)

// tenantCtxKey is unexported so no package outside db can overwrite the
// carried tenant. Only the tenant middleware calls WithTenant.
type tenantCtxKey struct{}

// ErrNoTenant is returned by MustTenant when code that requires a tenant
// runs in a request that never resolved one. Callers must treat this as
// their own failure rather than falling back to the shared schema.
var ErrNoTenant = errors.New("no tenant in request context")

// WithTenant returns a context carrying the resolved tenant for the
// remainder of one request. A fresh context is derived per request, so
// concurrent requests never observe each other's tenant.
func WithTenant(ctx context.Context, id TenantID) context.Context {
	return context.WithValue(ctx, tenantCtxKey{}, id)
}

// TenantFromContext returns the tenant carried by ctx, if any.
func TenantFromContext(ctx context.Context) (TenantID, bool) {
	id, ok := ctx.Value(tenantCtxKey{}).(TenantID)
	if !ok || id.IsZero() {
		return NoTenant, false
	}
	return id, true
}

// MustTenant returns the tenant carried by ctx or ErrNoTenant.
func MustTenant(ctx context.Context) (TenantID, error) {
	id, ok := TenantFromContext(ctx)
	if !ok {
		return NoTenant, ErrNoTenant
	}
	return id, nil
}

package db

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
)

// TenantHeader carries the raw tenant identifier on flows that precede
// authentication (registration, tenant-scoped login). Once a request
// carries a trusted credential the header is ignored: the claim embedded in
// the credential wins, so a spoofed header can never switch schemas.
const TenantHeader = "X-Tenant-ID"

// TenantChecker answers whether a validated identifier names a registered,
// active tenant. *Registry is the production implementation.
type TenantChecker interface {
	Exists(ctx context.Context, id TenantID) (bool, error)
}

// TenantMiddleware is the request boundary adapter. It resolves the raw
// tenant identifier from the JWT claim or, pre-auth, from the tenant
// header, validates it, registry-checks header-supplied identifiers, and
// installs the result in the request context for the rest of the call
// chain. Connections are not acquired here; repositories resolve their
// pool lazily through the Manager on first use.
func TenantMiddleware(registry TenantChecker) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw, fromClaim, err := rawTenant(c)
			if err != nil {
				return err
			}

			if raw == "" {
				// No tenant: the request runs against the shared schema.
				// Downstream code needing a tenant gets ErrNoTenant.
				return next(c)
			}

			id, err := NewTenantID(raw)
			if err != nil {
				return echo.NewHTTPError(http.StatusBadRequest, validationReason(err))
			}

			// A claim was registry-checked when the credential was issued;
			// a bare header is an unproven assertion and is checked fresh.
			if !fromClaim {
				exists, err := registry.Exists(c.Request().Context(), id)
				if err != nil {
					return echo.NewHTTPError(http.StatusServiceUnavailable, "tenant registry unavailable")
				}
				if !exists {
					return echo.NewHTTPError(http.StatusNotFound, "unknown tenant")
				}
			}

			ctx := WithTenant(c.Request().Context(), id)
			c.SetRequest(c.Request().WithContext(ctx))
			c.Set("tenant_id", id.String())

			return next(c)
		}
	}
}

// rawTenant picks the identifier source. Claim beats header; a repeated
// header is a transport anomaly and is rejected rather than collapsed.
func rawTenant(c echo.Context) (raw string, fromClaim bool, err error) {
	if tid, ok := c.Get("jwt_tenant_id").(string); ok && tid != "" {
		return tid, true, nil
	}

	values := c.Request().Header.Values(TenantHeader)
	switch len(values) {
	case 0:
		return "", false, nil
	case 1:
		return values[0], false, nil
	default:
		return "", false, echo.NewHTTPError(http.StatusBadRequest, "repeated tenant header")
	}
}

// validationReason maps validator errors to the textual reasons the API
// promises in its 400 responses.
func validationReason(err error) string {
	switch {
	case errors.Is(err, ErrEmptyTenantID):
		return "empty tenant identifier"
	case errors.Is(err, ErrTenantIDTooLong):
		return "tenant identifier too long"
	case errors.Is(err, ErrReservedTenantID):
		return "reserved tenant identifier"
	case errors.Is(err, ErrInvalidTenantID):
		return "invalid tenant identifier format"
	default:
		return "invalid tenant identifier"
	}
}

package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestMatchScope(t *testing.T) {
	tests := []struct {
		granted  string
		required string
		want     bool
	}{
		{"patients.read", "patients.read", true},
		{"patients.write", "patients.read", false},
		{"*.*", "patients.read", true},
		{"*.*", "appointments.write", true},
		{"*.read", "patients.read", true},
		{"*.read", "patients.write", false},
		{"patients.*", "patients.write", true},
		{"patients.read", "appointments.read", false},
		{"", "patients.read", false},
		{"patients.read", "", false},
		{"invalid", "patients.read", false},
	}

	for _, tt := range tests {
		got := matchScope(tt.granted, tt.required)
		if got != tt.want {
			t.Errorf("matchScope(%q, %q) = %v, want %v", tt.granted, tt.required, got, tt.want)
		}
	}
}

func roleContext(roles ...string) echo.Context {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if roles != nil {
		req = req.WithContext(context.WithValue(req.Context(), UserRolesKey, roles))
	}
	return e.NewContext(req, httptest.NewRecorder())
}

func TestRequireRole_Allowed(t *testing.T) {
	c := roleContext("doctor")

	handler := func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	}

	mw := RequireRole("doctor", "nurse")
	if err := mw(handler)(c); err != nil {
		t.Errorf("expected no error, got %v", err)
	}
}

func TestRequireRole_AdminBypass(t *testing.T) {
	c := roleContext("admin")

	handler := func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	}

	mw := RequireRole("doctor")
	if err := mw(handler)(c); err != nil {
		t.Errorf("expected admin to pass any role check, got %v", err)
	}
}

func TestRequireRole_Forbidden(t *testing.T) {
	c := roleContext("staff")

	handler := func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	}

	mw := RequireRole("doctor")
	err := mw(handler)(c)
	if err == nil {
		t.Fatal("expected forbidden error")
	}
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T", err)
	}
	if httpErr.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", httpErr.Code)
	}
}

func TestRequireRole_NoRoles(t *testing.T) {
	c := roleContext()

	handler := func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	}

	mw := RequireRole("doctor")
	if err := mw(handler)(c); err == nil {
		t.Fatal("expected forbidden error for request without roles")
	}
}

func TestRequireScope(t *testing.T) {
	tests := []struct {
		name    string
		scopes  []string
		allowed bool
	}{
		{"exact match", []string{"patients.read"}, true},
		{"resource wildcard", []string{"*.read"}, true},
		{"full wildcard", []string{"*.*"}, true},
		{"wrong operation", []string{"patients.write"}, false},
		{"no scopes", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.scopes != nil {
				req = req.WithContext(context.WithValue(req.Context(), UserScopesKey, tt.scopes))
			}
			c := e.NewContext(req, httptest.NewRecorder())

			handler := func(c echo.Context) error {
				return c.String(http.StatusOK, "ok")
			}

			err := RequireScope("patients", "read")(handler)(c)
			if tt.allowed && err != nil {
				t.Errorf("expected access, got %v", err)
			}
			if !tt.allowed && err == nil {
				t.Error("expected forbidden error")
			}
		})
	}
}

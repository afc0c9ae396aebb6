package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/clinicore/clinicore/internal/platform/auth"
	"github.com/clinicore/clinicore/internal/platform/db"
)

func auditContext(t *testing.T, method, path string, decorate func(*http.Request) *http.Request) (echo.Context, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	e := echo.New()
	req := httptest.NewRequest(method, path, nil)
	if decorate != nil {
		req = decorate(req)
	}
	c := e.NewContext(req, httptest.NewRecorder())
	return c, &buf
}

func runAudit(t *testing.T, c echo.Context, buf *bytes.Buffer, handler echo.HandlerFunc) map[string]interface{} {
	t.Helper()
	logger := zerolog.New(buf)
	h := Audit(logger)(handler)
	if err := h(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if buf.Len() == 0 {
		return nil
	}
	var out map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("audit log is not valid JSON: %v", err)
	}
	return out
}

func TestAudit_LogsAPIAccess(t *testing.T) {
	c, buf := auditContext(t, http.MethodGet, "/api/v1/patients/42", func(req *http.Request) *http.Request {
		ctx := req.Context()
		ctx = context.WithValue(ctx, auth.UserIDKey, "user-7")
		ctx = context.WithValue(ctx, auth.UserRolesKey, []string{"doctor"})
		tid, _ := db.NewTenantID("acme_clinic")
		ctx = db.WithTenant(ctx, tid)
		return req.WithContext(ctx)
	})
	c.Set("request_id", "req-123")

	out := runAudit(t, c, buf, func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	if out == nil {
		t.Fatal("expected an audit log line")
	}

	checks := map[string]string{
		"type":       "access_audit",
		"user_id":    "user-7",
		"tenant":     "acme_clinic",
		"resource":   "patients",
		"action":     "read",
		"method":     "GET",
		"request_id": "req-123",
	}
	for field, want := range checks {
		if got, _ := out[field].(string); got != want {
			t.Errorf("field %s: expected %q, got %q", field, want, got)
		}
	}
}

func TestAudit_SkipsNonAPIPaths(t *testing.T) {
	c, buf := auditContext(t, http.MethodGet, "/health", nil)

	out := runAudit(t, c, buf, func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	if out != nil {
		t.Errorf("expected no audit line for non-API path, got %v", out)
	}
}

func TestAudit_WriteActions(t *testing.T) {
	cases := []struct {
		method string
		action string
	}{
		{http.MethodPost, "create"},
		{http.MethodPut, "update"},
		{http.MethodPatch, "update"},
		{http.MethodDelete, "delete"},
	}
	for _, tc := range cases {
		c, buf := auditContext(t, tc.method, "/api/v1/appointments", nil)
		out := runAudit(t, c, buf, func(c echo.Context) error {
			return c.NoContent(http.StatusNoContent)
		})
		if out == nil {
			t.Fatalf("%s: expected an audit line", tc.method)
		}
		if got, _ := out["action"].(string); got != tc.action {
			t.Errorf("%s: expected action %q, got %q", tc.method, tc.action, got)
		}
	}
}

func TestAudit_PropagatesHandlerError(t *testing.T) {
	var buf bytes.Buffer
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/patients", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	logger := zerolog.New(&buf)
	h := Audit(logger)(func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusNotFound, "not found")
	})
	err := h(c)
	if err == nil {
		t.Fatal("expected handler error to propagate")
	}
	if buf.Len() == 0 {
		t.Error("expected an audit line even when the handler fails")
	}
}

func TestExtractResource(t *testing.T) {
	cases := map[string]string{
		"/api/v1/patients":            "patients",
		"/api/v1/patients/42":         "patients",
		"/api/v1/appointments/9/notes": "appointments",
		"/api/v1/":                    "",
	}
	for path, want := range cases {
		if got := extractResource(path); got != want {
			t.Errorf("extractResource(%q) = %q, want %q", path, got, want)
		}
	}
}

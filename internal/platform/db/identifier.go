package db

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// TenantID is a validated tenant schema name. The zero value means "no
// tenant" (requests that run against the shared schema). A non-zero TenantID
// is only ever produced by NewTenantID, which makes it safe to interpolate
// into schema-qualified DDL and DML.
type TenantID string

// NoTenant is the zero TenantID, used by unauthenticated/public flows.
const NoTenant TenantID = ""

// Postgres caps identifiers at 63 bytes; the grammar bounds length and
// forbids anything that could break out of a quoted identifier.
var tenantIDPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]{0,62}$`)

// reservedSchemas are namespaces a tenant must never claim.
var reservedSchemas = map[string]struct{}{
	"public":             {},
	"information_schema": {},
	"pg_catalog":         {},
	"pg_toast":           {},
}

var (
	ErrEmptyTenantID    = errors.New("tenant identifier is empty")
	ErrInvalidTenantID  = errors.New("tenant identifier has invalid format")
	ErrReservedTenantID = errors.New("tenant identifier is reserved")
	ErrTenantIDTooLong  = errors.New("tenant identifier is too long")
)

// maxTenantIDLen mirrors the Postgres identifier limit.
const maxTenantIDLen = 63

// NewTenantID validates raw and returns it as a TenantID, normalized to
// trimmed lowercase. This is the sole injection barrier for every later
// stage that builds dynamic SQL from the schema name, so all tenant input
// must pass through here exactly once.
func NewTenantID(raw string) (TenantID, error) {
	name := strings.ToLower(strings.TrimSpace(raw))
	if name == "" {
		return NoTenant, ErrEmptyTenantID
	}
	if len(name) > maxTenantIDLen {
		return NoTenant, fmt.Errorf("%w: %d characters", ErrTenantIDTooLong, len(name))
	}
	if !tenantIDPattern.MatchString(name) {
		return NoTenant, fmt.Errorf("%w: %q", ErrInvalidTenantID, name)
	}
	if _, ok := reservedSchemas[name]; ok {
		return NoTenant, fmt.Errorf("%w: %q", ErrReservedTenantID, name)
	}
	return TenantID(name), nil
}

// String returns the schema name.
func (t TenantID) String() string { return string(t) }

// IsZero reports whether t carries no tenant.
func (t TenantID) IsZero() bool { return t == NoTenant }

// QuoteIdent returns the schema name as a quoted SQL identifier. The grammar
// already excludes double quotes, so quoting here only guards against future
// keywords.
func (t TenantID) QuoteIdent() string {
	return `"` + string(t) + `"`
}

// QuoteLiteral returns s as a single-quoted SQL string literal for use in
// generated DDL where bind parameters are unavailable.
func QuoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

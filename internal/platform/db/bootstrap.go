package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier is the subset of pgx execution methods the db package needs. Both
// *pgxpool.Pool and *pgxpool.Conn satisfy it, as do test fakes.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// ErrBootstrapFailed wraps any DDL failure while preparing a tenant schema.
// The schema's pool entry is not published when bootstrap fails, so the next
// request retries from scratch.
var ErrBootstrapFailed = errors.New("tenant schema bootstrap failed")

// enumDef is one enum type every tenant schema must carry.
type enumDef struct {
	name   string
	labels []string
}

var requiredEnums = []enumDef{
	{name: "appointment_status", labels: []string{"scheduled", "confirmed", "cancelled", "completed", "no_show"}},
	{name: "audit_event", labels: []string{"create", "update", "destroy"}},
}

// EnsureBootstrapped idempotently creates the auxiliary objects every tenant
// schema needs: the enum types, the audit_logs table, and its indexes. Safe
// to run repeatedly across process restarts; concurrent runs for the same
// schema are serialized by the pool manager's single flight.
func EnsureBootstrapped(ctx context.Context, q Querier, schema TenantID) error {
	for _, e := range requiredEnums {
		if err := ensureEnum(ctx, q, schema, e); err != nil {
			return fmt.Errorf("%w: enum %s in %s: %v", ErrBootstrapFailed, e.name, schema, err)
		}
	}
	if err := ensureAuditTable(ctx, q, schema); err != nil {
		return fmt.Errorf("%w: audit table in %s: %v", ErrBootstrapFailed, schema, err)
	}
	return nil
}

// ensureEnum creates the enum type if the catalog does not already show it in
// the target schema. Postgres has no CREATE TYPE IF NOT EXISTS, so the create
// runs inside a DO block that both re-checks the catalog and swallows the
// duplicate_object race left between two independent processes.
func ensureEnum(ctx context.Context, q Querier, schema TenantID, e enumDef) error {
	var exists bool
	err := q.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM pg_type t
			JOIN pg_namespace n ON n.oid = t.typnamespace
			WHERE t.typname = $1 AND n.nspname = $2
		)`, e.name, schema.String()).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check enum %s: %w", e.name, err)
	}
	if exists {
		return nil
	}

	labels := ""
	for i, l := range e.labels {
		if i > 0 {
			labels += ", "
		}
		labels += QuoteLiteral(l)
	}

	ddl := fmt.Sprintf(`DO $$
BEGIN
	IF NOT EXISTS (
		SELECT 1 FROM pg_type t
		JOIN pg_namespace n ON n.oid = t.typnamespace
		WHERE t.typname = %s AND n.nspname = %s
	) THEN
		CREATE TYPE %s.%s AS ENUM (%s);
	END IF;
EXCEPTION WHEN duplicate_object THEN
	NULL;
END
$$`, QuoteLiteral(e.name), QuoteLiteral(schema.String()), schema.QuoteIdent(), e.name, labels)

	if _, err := q.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("create enum %s: %w", e.name, err)
	}
	return nil
}

// ensureAuditTable creates the per-schema audit_logs table and its lookup
// indexes. Every mutation in a tenant schema records who changed what here.
func ensureAuditTable(ctx context.Context, q Querier, schema TenantID) error {
	ident := schema.QuoteIdent()

	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.audit_logs (
		id UUID PRIMARY KEY,
		item_id UUID NOT NULL,
		item_type TEXT NOT NULL,
		event %s.audit_event NOT NULL,
		actor_id TEXT,
		actor_type TEXT,
		object_changes JSONB,
		request_id TEXT,
		remote_addr TEXT,
		user_agent TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`, ident, ident)
	if _, err := q.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("create audit_logs: %w", err)
	}

	indexes := []string{
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS audit_logs_item_id_idx ON %s.audit_logs (item_id)`, ident),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS audit_logs_actor_id_idx ON %s.audit_logs (actor_id)`, ident),
	}
	for _, idx := range indexes {
		if _, err := q.Exec(ctx, idx); err != nil {
			return fmt.Errorf("create audit_logs index: %w", err)
		}
	}
	return nil
}

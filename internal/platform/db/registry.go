package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrTenantNotFound means the identifier is well formed but no active
	// tenant with that name exists. Surfaced as 404, never as a database
	// error, so clients can tell "no such tenant" from "database down".
	ErrTenantNotFound = errors.New("tenant not found")

	// ErrTenantExists is returned when provisioning collides with an
	// already registered name.
	ErrTenantExists = errors.New("tenant already exists")
)

// Tenant is a row of the authoritative registry in the public schema.
type Tenant struct {
	ID          uuid.UUID
	Name        TenantID
	DisplayName string
	Active      bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Registry answers whether a validated identifier corresponds to a real,
// active tenant. Lookups always hit the database: a tenant can be
// deactivated at any time, and the query is cheap, so no caching.
type Registry struct {
	pool *pgxpool.Pool
}

func NewRegistry(pool *pgxpool.Pool) *Registry {
	return &Registry{pool: pool}
}

const tenantCols = `id, name, display_name, active, created_at, updated_at`

func scanTenant(row pgx.Row) (*Tenant, error) {
	var t Tenant
	var name string
	err := row.Scan(&t.ID, &name, &t.DisplayName, &t.Active, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrTenantNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan tenant: %w", err)
	}
	t.Name = TenantID(name)
	return &t, nil
}

// Exists reports whether an active tenant with the given name is registered.
func (r *Registry) Exists(ctx context.Context, id TenantID) (bool, error) {
	var one int
	err := r.pool.QueryRow(ctx,
		`SELECT 1 FROM public.tenants WHERE name = $1 AND active`, id.String(),
	).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query tenant registry: %w", err)
	}
	return true, nil
}

// Get returns the registry row for an active tenant.
func (r *Registry) Get(ctx context.Context, id TenantID) (*Tenant, error) {
	return scanTenant(r.pool.QueryRow(ctx,
		`SELECT `+tenantCols+` FROM public.tenants WHERE name = $1 AND active`, id.String()))
}

// Create inserts a new registry row. Name collisions map to ErrTenantExists.
func (r *Registry) Create(ctx context.Context, t *Tenant) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO public.tenants (id, name, display_name, active)
		VALUES ($1, $2, $3, $4)`,
		t.ID, t.Name.String(), t.DisplayName, t.Active)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return fmt.Errorf("%w: %s", ErrTenantExists, t.Name)
		}
		return fmt.Errorf("insert tenant %s: %w", t.Name, err)
	}
	return nil
}

// Deactivate marks a tenant inactive; its schema and data stay in place.
func (r *Registry) Deactivate(ctx context.Context, id TenantID) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE public.tenants SET active = false, updated_at = NOW() WHERE name = $1`, id.String())
	if err != nil {
		return fmt.Errorf("deactivate tenant %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrTenantNotFound
	}
	return nil
}

// List returns all registry rows, active and inactive, ordered by name.
func (r *Registry) List(ctx context.Context) ([]*Tenant, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+tenantCols+` FROM public.tenants ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	defer rows.Close()

	var tenants []*Tenant
	for rows.Next() {
		var t Tenant
		var name string
		if err := rows.Scan(&t.ID, &name, &t.DisplayName, &t.Active, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan tenant: %w", err)
		}
		t.Name = TenantID(name)
		tenants = append(tenants, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tenants: %w", err)
	}
	return tenants, nil
}

// EnsureRegistryTable creates the public.tenants table on first start.
func EnsureRegistryTable(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS public.tenants (
			id UUID PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			display_name TEXT NOT NULL DEFAULT '',
			active BOOLEAN NOT NULL DEFAULT true,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`)
	if err != nil {
		return fmt.Errorf("create tenants registry table: %w", err)
	}
	return nil
}

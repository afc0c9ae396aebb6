package tenantadmin

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"

	"github.com/clinicore/clinicore/internal/platform/db"
)

type fakeRegistry struct {
	tenants   map[db.TenantID]*db.Tenant
	createErr error
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{tenants: make(map[db.TenantID]*db.Tenant)}
}

func (f *fakeRegistry) Create(ctx context.Context, t *db.Tenant) error {
	if f.createErr != nil {
		return f.createErr
	}
	if _, ok := f.tenants[t.Name]; ok {
		return db.ErrTenantExists
	}
	f.tenants[t.Name] = t
	return nil
}

func (f *fakeRegistry) Deactivate(ctx context.Context, id db.TenantID) error {
	t, ok := f.tenants[id]
	if !ok {
		return db.ErrTenantNotFound
	}
	t.Active = false
	return nil
}

func (f *fakeRegistry) Get(ctx context.Context, id db.TenantID) (*db.Tenant, error) {
	t, ok := f.tenants[id]
	if !ok {
		return nil, db.ErrTenantNotFound
	}
	return t, nil
}

func (f *fakeRegistry) List(ctx context.Context) ([]*db.Tenant, error) {
	var out []*db.Tenant
	for _, t := range f.tenants {
		out = append(out, t)
	}
	return out, nil
}

// fakePool records DDL and answers catalog existence checks with false, so
// bootstrap always creates its objects.
type fakePool struct {
	execs   []string
	execErr error
}

type fakeRow struct{}

func (fakeRow) Scan(dest ...interface{}) error {
	if b, ok := dest[0].(*bool); ok {
		*b = false
	}
	return nil
}

func (f *fakePool) Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error) {
	f.execs = append(f.execs, sql)
	return pgconn.CommandTag{}, f.execErr
}

func (f *fakePool) Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}

func (f *fakePool) QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row {
	return fakeRow{}
}

type fakeMigrator struct {
	calls []db.TenantID
	err   error
}

func (f *fakeMigrator) Up(ctx context.Context, schema db.TenantID) (int, error) {
	f.calls = append(f.calls, schema)
	return 2, f.err
}

func newTestService() (*Service, *fakeRegistry, *fakePool, *fakeMigrator) {
	registry := newFakeRegistry()
	pool := &fakePool{}
	migrator := &fakeMigrator{}
	return NewService(registry, pool, migrator, zerolog.Nop()), registry, pool, migrator
}

func TestProvision(t *testing.T) {
	svc, registry, pool, migrator := newTestService()

	tenant, err := svc.Provision(context.Background(), "Acme_Clinic", "Acme Clinic")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tenant.Name.String() != "acme_clinic" {
		t.Errorf("expected normalized name acme_clinic, got %s", tenant.Name)
	}
	if !tenant.Active {
		t.Error("expected provisioned tenant to be active")
	}
	if _, ok := registry.tenants[tenant.Name]; !ok {
		t.Error("expected registry row")
	}

	var schemaDDL bool
	for _, sql := range pool.execs {
		if strings.Contains(sql, `CREATE SCHEMA IF NOT EXISTS "acme_clinic"`) {
			schemaDDL = true
		}
	}
	if !schemaDDL {
		t.Errorf("expected CREATE SCHEMA statement, got %v", pool.execs)
	}

	if len(migrator.calls) != 1 || migrator.calls[0].String() != "acme_clinic" {
		t.Errorf("expected one migration run for acme_clinic, got %v", migrator.calls)
	}

	// Bootstrap DDL ran against the new schema too.
	var enumDDL, auditDDL bool
	for _, sql := range pool.execs {
		if strings.Contains(sql, "CREATE TYPE") {
			enumDDL = true
		}
		if strings.Contains(sql, "audit_logs") {
			auditDDL = true
		}
	}
	if !enumDDL || !auditDDL {
		t.Errorf("expected bootstrap DDL in %v", pool.execs)
	}
}

func TestProvision_InvalidName(t *testing.T) {
	svc, registry, pool, _ := newTestService()

	cases := []string{"", "Acme-Clinic", "public", "9clinic"}
	for _, name := range cases {
		if _, err := svc.Provision(context.Background(), name, ""); err == nil {
			t.Errorf("expected error for name %q", name)
		}
	}
	if len(registry.tenants) != 0 {
		t.Error("invalid names must not reach the registry")
	}
	if len(pool.execs) != 0 {
		t.Error("invalid names must not run DDL")
	}
}

func TestProvision_Duplicate(t *testing.T) {
	svc, _, pool, _ := newTestService()

	if _, err := svc.Provision(context.Background(), "acme_clinic", ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ddlCount := len(pool.execs)

	_, err := svc.Provision(context.Background(), "acme_clinic", "")
	if !errors.Is(err, db.ErrTenantExists) {
		t.Fatalf("expected ErrTenantExists, got %v", err)
	}
	if len(pool.execs) != ddlCount {
		t.Error("duplicate provisioning must not run DDL")
	}
}

func TestProvision_MigrationFailure(t *testing.T) {
	registry := newFakeRegistry()
	pool := &fakePool{}
	migrator := &fakeMigrator{err: errors.New("bad migration")}
	svc := NewService(registry, pool, migrator, zerolog.Nop())

	if _, err := svc.Provision(context.Background(), "acme_clinic", ""); err == nil {
		t.Fatal("expected migration error to propagate")
	}
}

func TestDeactivate(t *testing.T) {
	svc, registry, _, _ := newTestService()

	if _, err := svc.Provision(context.Background(), "acme_clinic", ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := svc.Deactivate(context.Background(), "acme_clinic"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tid, _ := db.NewTenantID("acme_clinic")
	if registry.tenants[tid].Active {
		t.Error("expected tenant inactive after deactivation")
	}

	if err := svc.Deactivate(context.Background(), "ghost_clinic"); !errors.Is(err, db.ErrTenantNotFound) {
		t.Fatalf("expected ErrTenantNotFound, got %v", err)
	}
}

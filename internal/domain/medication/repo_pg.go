package medication

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/clinicore/clinicore/internal/platform/db"
)

type repoPG struct {
	pools *db.Manager
}

func NewRepo(pools *db.Manager) Repository {
	return &repoPG{pools: pools}
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

func (r *repoPG) conn(ctx context.Context) (querier, error) {
	tenant, ok := db.TenantFromContext(ctx)
	if !ok {
		return nil, db.ErrNoTenant
	}
	entry, err := r.pools.Get(ctx, tenant)
	if err != nil {
		return nil, err
	}
	return entry.Pool(), nil
}

const drugCols = `id, name, generic_name, form, strength, active, created_at, updated_at`

func (r *repoPG) Create(ctx context.Context, d *Drug) error {
	q, err := r.conn(ctx)
	if err != nil {
		return err
	}

	d.ID = uuid.New()
	now := time.Now().UTC()
	d.CreatedAt = now
	d.UpdatedAt = now
	d.Active = true

	_, err = q.Exec(ctx, `
		INSERT INTO drugs (`+drugCols+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		d.ID, d.Name, d.GenericName, d.Form, d.Strength, d.Active, d.CreatedAt, d.UpdatedAt)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Drug, error) {
	q, err := r.conn(ctx)
	if err != nil {
		return nil, err
	}

	var d Drug
	err = q.QueryRow(ctx, `SELECT `+drugCols+` FROM drugs WHERE id = $1`, id).Scan(
		&d.ID, &d.Name, &d.GenericName, &d.Form, &d.Strength, &d.Active, &d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *repoPG) Update(ctx context.Context, d *Drug) error {
	q, err := r.conn(ctx)
	if err != nil {
		return err
	}

	d.UpdatedAt = time.Now().UTC()
	tag, err := q.Exec(ctx, `
		UPDATE drugs
		SET name = $2, generic_name = $3, form = $4, strength = $5, active = $6, updated_at = $7
		WHERE id = $1`,
		d.ID, d.Name, d.GenericName, d.Form, d.Strength, d.Active, d.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	q, err := r.conn(ctx)
	if err != nil {
		return err
	}

	tag, err := q.Exec(ctx, `DELETE FROM drugs WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) List(ctx context.Context, limit, offset int) ([]*Drug, int, error) {
	q, err := r.conn(ctx)
	if err != nil {
		return nil, 0, err
	}

	var total int
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM drugs`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := q.Query(ctx, `
		SELECT `+drugCols+` FROM drugs
		ORDER BY name
		LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var drugs []*Drug
	for rows.Next() {
		var d Drug
		if err := rows.Scan(&d.ID, &d.Name, &d.GenericName, &d.Form, &d.Strength, &d.Active, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, 0, err
		}
		drugs = append(drugs, &d)
	}
	return drugs, total, rows.Err()
}

package identity

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

// NewRepo returns a Repository that resolves the tenant pool from the
// request context on every call. All SQL runs unqualified; the pool's
// search_path pins it to the tenant schema.
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

const patientCols = `id, first_name, last_name, birth_date, email, phone, active, created_at, updated_at`

func (r *repoPG) CreatePatient(ctx context.Context, p *Patient) error {
	q, err := r.conn(ctx)
	if err != nil {
		return err
	}

	p.ID = uuid.New()
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now
	p.Active = true

	_, err = q.Exec(ctx, `
		INSERT INTO patients (`+patientCols+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		p.ID, p.FirstName, p.LastName, p.BirthDate, p.Email, p.Phone, p.Active, p.CreatedAt, p.UpdatedAt)
	return err
}

func (r *repoPG) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	q, err := r.conn(ctx)
	if err != nil {
		return nil, err
	}

	var p Patient
	err = q.QueryRow(ctx, `SELECT `+patientCols+` FROM patients WHERE id = $1`, id).Scan(
		&p.ID, &p.FirstName, &p.LastName, &p.BirthDate, &p.Email, &p.Phone, &p.Active, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *repoPG) UpdatePatient(ctx context.Context, p *Patient) error {
	q, err := r.conn(ctx)
	if err != nil {
		return err
	}

	p.UpdatedAt = time.Now().UTC()
	tag, err := q.Exec(ctx, `
		UPDATE patients
		SET first_name = $2, last_name = $3, birth_date = $4, email = $5, phone = $6, active = $7, updated_at = $8
		WHERE id = $1`,
		p.ID, p.FirstName, p.LastName, p.BirthDate, p.Email, p.Phone, p.Active, p.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) DeletePatient(ctx context.Context, id uuid.UUID) error {
	q, err := r.conn(ctx)
	if err != nil {
		return err
	}

	tag, err := q.Exec(ctx, `DELETE FROM patients WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) ListPatients(ctx context.Context, limit, offset int) ([]*Patient, int, error) {
	q, err := r.conn(ctx)
	if err != nil {
		return nil, 0, err
	}

	var total int
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM patients`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := q.Query(ctx, `
		SELECT `+patientCols+` FROM patients
		ORDER BY last_name, first_name
		LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var patients []*Patient
	for rows.Next() {
		var p Patient
		if err := rows.Scan(&p.ID, &p.FirstName, &p.LastName, &p.BirthDate, &p.Email, &p.Phone, &p.Active, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, 0, err
		}
		patients = append(patients, &p)
	}
	return patients, total, rows.Err()
}

const doctorCols = `id, first_name, last_name, specialty, email, active, created_at, updated_at`

func (r *repoPG) CreateDoctor(ctx context.Context, d *Doctor) error {
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
		INSERT INTO doctors (`+doctorCols+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		d.ID, d.FirstName, d.LastName, d.Specialty, d.Email, d.Active, d.CreatedAt, d.UpdatedAt)
	return err
}

func (r *repoPG) GetDoctor(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	q, err := r.conn(ctx)
	if err != nil {
		return nil, err
	}

	var d Doctor
	err = q.QueryRow(ctx, `SELECT `+doctorCols+` FROM doctors WHERE id = $1`, id).Scan(
		&d.ID, &d.FirstName, &d.LastName, &d.Specialty, &d.Email, &d.Active, &d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *repoPG) UpdateDoctor(ctx context.Context, d *Doctor) error {
	q, err := r.conn(ctx)
	if err != nil {
		return err
	}

	d.UpdatedAt = time.Now().UTC()
	tag, err := q.Exec(ctx, `
		UPDATE doctors
		SET first_name = $2, last_name = $3, specialty = $4, email = $5, active = $6, updated_at = $7
		WHERE id = $1`,
		d.ID, d.FirstName, d.LastName, d.Specialty, d.Email, d.Active, d.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) DeleteDoctor(ctx context.Context, id uuid.UUID) error {
	q, err := r.conn(ctx)
	if err != nil {
		return err
	}

	tag, err := q.Exec(ctx, `DELETE FROM doctors WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) ListDoctors(ctx context.Context, limit, offset int) ([]*Doctor, int, error) {
	q, err := r.conn(ctx)
	if err != nil {
		return nil, 0, err
	}

	var total int
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM doctors`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := q.Query(ctx, `
		SELECT `+doctorCols+` FROM doctors
		ORDER BY last_name, first_name
		LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var doctors []*Doctor
	for rows.Next() {
		var d Doctor
		if err := rows.Scan(&d.ID, &d.FirstName, &d.LastName, &d.Specialty, &d.Email, &d.Active, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, 0, err
		}
		doctors = append(doctors, &d)
	}
	return doctors, total, rows.Err()
}

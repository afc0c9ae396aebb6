package identity

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Patient maps to the patients table in each tenant schema.
type Patient struct {
	ID        uuid.UUID  `db:"id" json:"id"`
	FirstName string     `db:"first_name" json:"first_name"`
	LastName  string     `db:"last_name" json:"last_name"`
	BirthDate *time.Time `db:"birth_date" json:"birth_date,omitempty"`
	Email     *string    `db:"email" json:"email,omitempty"`
	Phone     *string    `db:"phone" json:"phone,omitempty"`
	Active    bool       `db:"active" json:"active"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt time.Time  `db:"updated_at" json:"updated_at"`
}

// Doctor maps to the doctors table in each tenant schema.
type Doctor struct {
	ID        uuid.UUID `db:"id" json:"id"`
	FirstName string    `db:"first_name" json:"first_name"`
	LastName  string    `db:"last_name" json:"last_name"`
	Specialty *string   `db:"specialty" json:"specialty,omitempty"`
	Email     *string   `db:"email" json:"email,omitempty"`
	Active    bool      `db:"active" json:"active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

func (p *Patient) Validate() error {
	if strings.TrimSpace(p.FirstName) == "" {
		return fmt.Errorf("patient first name is required")
	}
	if strings.TrimSpace(p.LastName) == "" {
		return fmt.Errorf("patient last name is required")
	}
	if p.BirthDate != nil && p.BirthDate.After(time.Now()) {
		return fmt.Errorf("patient birth date cannot be in the future")
	}
	return nil
}

func (d *Doctor) Validate() error {
	if strings.TrimSpace(d.FirstName) == "" {
		return fmt.Errorf("doctor first name is required")
	}
	if strings.TrimSpace(d.LastName) == "" {
		return fmt.Errorf("doctor last name is required")
	}
	return nil
}

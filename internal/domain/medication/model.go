package medication

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Drug maps to the drugs table in each tenant schema.
type Drug struct {
	ID          uuid.UUID `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	GenericName *string   `db:"generic_name" json:"generic_name,omitempty"`
	Form        *string   `db:"form" json:"form,omitempty"`
	Strength    *string   `db:"strength" json:"strength,omitempty"`
	Active      bool      `db:"active" json:"active"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

func (d *Drug) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return fmt.Errorf("drug name is required")
	}
	return nil
}

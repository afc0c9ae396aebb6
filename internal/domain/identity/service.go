package identity

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicore/clinicore/internal/domain/auditlog"
)

// auditRecorder is the slice of auditlog.Recorder the service needs.
type auditRecorder interface {
	Record(ctx context.Context, e auditlog.Entry) error
}

type Service struct {
	repo   Repository
	audit  auditRecorder
	logger zerolog.Logger
}

func NewService(repo Repository, audit auditRecorder, logger zerolog.Logger) *Service {
	return &Service{repo: repo, audit: audit, logger: logger}
}

// recordAudit writes the change row. Audit failures do not fail the
// operation; the row is best effort once the data change has committed.
func (s *Service) recordAudit(ctx context.Context, itemID uuid.UUID, itemType string, event auditlog.Event, changes map[string]interface{}) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, auditlog.Entry{
		ItemID:        itemID,
		ItemType:      itemType,
		Event:         event,
		ObjectChanges: changes,
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("item_type", itemType).Msg("audit record failed")
	}
}

func (s *Service) CreatePatient(ctx context.Context, p *Patient) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if err := s.repo.CreatePatient(ctx, p); err != nil {
		return err
	}
	s.recordAudit(ctx, p.ID, "Patient", auditlog.EventCreate, map[string]interface{}{
		"first_name": p.FirstName,
		"last_name":  p.LastName,
	})
	return nil
}

func (s *Service) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return s.repo.GetPatient(ctx, id)
}

func (s *Service) UpdatePatient(ctx context.Context, p *Patient) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if err := s.repo.UpdatePatient(ctx, p); err != nil {
		return err
	}
	s.recordAudit(ctx, p.ID, "Patient", auditlog.EventUpdate, nil)
	return nil
}

func (s *Service) DeletePatient(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.DeletePatient(ctx, id); err != nil {
		return err
	}
	s.recordAudit(ctx, id, "Patient", auditlog.EventDestroy, nil)
	return nil
}

func (s *Service) ListPatients(ctx context.Context, limit, offset int) ([]*Patient, int, error) {
	return s.repo.ListPatients(ctx, limit, offset)
}

func (s *Service) CreateDoctor(ctx context.Context, d *Doctor) error {
	if err := d.Validate(); err != nil {
		return err
	}
	if err := s.repo.CreateDoctor(ctx, d); err != nil {
		return err
	}
	s.recordAudit(ctx, d.ID, "Doctor", auditlog.EventCreate, map[string]interface{}{
		"first_name": d.FirstName,
		"last_name":  d.LastName,
	})
	return nil
}

func (s *Service) GetDoctor(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	return s.repo.GetDoctor(ctx, id)
}

func (s *Service) UpdateDoctor(ctx context.Context, d *Doctor) error {
	if err := d.Validate(); err != nil {
		return err
	}
	if err := s.repo.UpdateDoctor(ctx, d); err != nil {
		return err
	}
	s.recordAudit(ctx, d.ID, "Doctor", auditlog.EventUpdate, nil)
	return nil
}

func (s *Service) DeleteDoctor(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.DeleteDoctor(ctx, id); err != nil {
		return err
	}
	s.recordAudit(ctx, id, "Doctor", auditlog.EventDestroy, nil)
	return nil
}

func (s *Service) ListDoctors(ctx context.Context, limit, offset int) ([]*Doctor, int, error) {
	return s.repo.ListDoctors(ctx, limit, offset)
}

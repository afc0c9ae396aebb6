package scheduling

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicore/clinicore/internal/domain/auditlog"
)

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

func (s *Service) recordAudit(ctx context.Context, id uuid.UUID, event auditlog.Event, changes map[string]interface{}) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, auditlog.Entry{
		ItemID:        id,
		ItemType:      "Appointment",
		Event:         event,
		ObjectChanges: changes,
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("appointment", id.String()).Msg("audit record failed")
	}
}

// Create books a new appointment. New appointments always start out scheduled.
func (s *Service) Create(ctx context.Context, a *Appointment) error {
	a.Status = StatusScheduled
	if err := a.Validate(); err != nil {
		return err
	}
	if err := s.repo.Create(ctx, a); err != nil {
		return err
	}
	s.recordAudit(ctx, a.ID, auditlog.EventCreate, map[string]interface{}{
		"patient_id": a.PatientID.String(),
		"doctor_id":  a.DoctorID.String(),
		"starts_at":  a.StartsAt,
	})
	return nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.repo.GetByID(ctx, id)
}

// UpdateStatus moves an appointment through its lifecycle. Only the
// transitions the state machine allows are accepted; terminal states
// (cancelled, completed, no_show) cannot change again.
func (s *Service) UpdateStatus(ctx context.Context, id uuid.UUID, to Status) (*Appointment, error) {
	if !ValidStatus(to) {
		return nil, fmt.Errorf("unknown appointment status %q", to)
	}

	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !CanTransition(a.Status, to) {
		return nil, fmt.Errorf("cannot move appointment from %s to %s", a.Status, to)
	}

	if err := s.repo.UpdateStatus(ctx, id, to); err != nil {
		return nil, err
	}

	s.recordAudit(ctx, id, auditlog.EventUpdate, map[string]interface{}{
		"status": []string{string(a.Status), string(to)},
	})
	a.Status = to
	return a, nil
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.recordAudit(ctx, id, auditlog.EventDestroy, nil)
	return nil
}

func (s *Service) List(ctx context.Context, limit, offset int) ([]*Appointment, int, error) {
	return s.repo.List(ctx, limit, offset)
}

func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Appointment, int, error) {
	return s.repo.ListByPatient(ctx, patientID, limit, offset)
}

func (s *Service) ListByDoctor(ctx context.Context, doctorID uuid.UUID, limit, offset int) ([]*Appointment, int, error) {
	return s.repo.ListByDoctor(ctx, doctorID, limit, offset)
}

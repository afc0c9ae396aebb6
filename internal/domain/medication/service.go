package medication

import (
	"context"

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

func (s *Service) recordAudit(ctx context.Context, id uuid.UUID, event auditlog.Event) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, auditlog.Entry{ItemID: id, ItemType: "Drug", Event: event})
	if err != nil {
		s.logger.Warn().Err(err).Str("drug", id.String()).Msg("audit record failed")
	}
}

func (s *Service) Create(ctx context.Context, d *Drug) error {
	if err := d.Validate(); err != nil {
		return err
	}
	if err := s.repo.Create(ctx, d); err != nil {
		return err
	}
	s.recordAudit(ctx, d.ID, auditlog.EventCreate)
	return nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Drug, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) Update(ctx context.Context, d *Drug) error {
	if err := d.Validate(); err != nil {
		return err
	}
	if err := s.repo.Update(ctx, d); err != nil {
		return err
	}
	s.recordAudit(ctx, d.ID, auditlog.EventUpdate)
	return nil
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.recordAudit(ctx, id, auditlog.EventDestroy)
	return nil
}

func (s *Service) List(ctx context.Context, limit, offset int) ([]*Drug, int, error) {
	return s.repo.List(ctx, limit, offset)
}

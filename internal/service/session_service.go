package service

import (
	"context"
	"database/sql"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/fundeport/academy-api/internal/models"
	appErrors "github.com/fundeport/academy-api/pkg/errors"
)

type sessionRepository interface {
	ListBySection(ctx context.Context, sectionID string, from, to *time.Time) ([]models.Session, error)
	FindByID(ctx context.Context, id string) (*models.Session, error)
	UpdateInfo(ctx context.Context, session *models.Session) error
	CountBySection(ctx context.Context, sectionID string) (int, error)
}

// UpdateSessionInfoRequest carries the editable session fields. Nil fields
// are left unchanged; date and times are never editable because the calendar
// belongs to the section's schedule.
type UpdateSessionInfoRequest struct {
	Topic       *string `json:"topic"`
	Description *string `json:"description"`
	Outcome     *string `json:"outcome"`
}

// SessionService exposes the generated class calendar and lets teachers
// annotate individual sessions.
type SessionService struct {
	repo      sessionRepository
	sections  sectionReader
	validator *validator.Validate
	logger    *zap.Logger
}

// NewSessionService constructs SessionService.
func NewSessionService(repo sessionRepository, sections sectionReader, validate *validator.Validate, logger *zap.Logger) *SessionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionService{repo: repo, sections: sections, validator: validate, logger: logger}
}

// ListBySection returns a section's calendar, optionally bounded by dates.
func (s *SessionService) ListBySection(ctx context.Context, sectionID string, from, to *time.Time) ([]models.Session, error) {
	if _, err := s.sections.FindByID(ctx, sectionID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "section not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load section")
	}
	sessions, err := s.repo.ListBySection(ctx, sectionID, from, to)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list sessions")
	}
	return sessions, nil
}

// Get returns one session by ID.
func (s *SessionService) Get(ctx context.Context, id string) (*models.Session, error) {
	session, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}
	return session, nil
}

// UpdateInfo applies the non-nil informational fields to a session.
func (s *SessionService) UpdateInfo(ctx context.Context, id string, req UpdateSessionInfoRequest) (*models.Session, error) {
	session, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}

	if req.Topic != nil {
		session.Topic = req.Topic
	}
	if req.Description != nil {
		session.Description = *req.Description
	}
	if req.Outcome != nil {
		session.Outcome = *req.Outcome
	}

	if err := s.repo.UpdateInfo(ctx, session); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update session")
	}
	return session, nil
}

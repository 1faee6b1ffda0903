package service

import (
	"context"
	"database/sql"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/fundeport/academy-api/internal/models"
	appErrors "github.com/fundeport/academy-api/pkg/errors"
)

type resourceRepository interface {
	ListBySession(ctx context.Context, sessionID string) ([]models.Resource, error)
	FindByID(ctx context.Context, id string) (*models.Resource, error)
	Create(ctx context.Context, resource *models.Resource) error
	Delete(ctx context.Context, id string) error
}

// ResourceRequest attaches a link to a session. Files themselves live behind
// the upload boundary; only the URL is stored.
type ResourceRequest struct {
	Title       string `json:"title" validate:"required"`
	Description string `json:"description"`
	URL         string `json:"url" validate:"required,url"`
	FileType    string `json:"file_type"`
	Phase       string `json:"phase" validate:"required,oneof=BEFORE DURING AFTER"`
}

// ResourceService manages class material links attached to sessions.
type ResourceService struct {
	repo      resourceRepository
	sessions  sessionReader
	validator *validator.Validate
	logger    *zap.Logger
}

// NewResourceService constructs ResourceService.
func NewResourceService(repo resourceRepository, sessions sessionReader, validate *validator.Validate, logger *zap.Logger) *ResourceService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ResourceService{repo: repo, sessions: sessions, validator: validate, logger: logger}
}

// ListBySession returns a session's resources in phase order.
func (s *ResourceService) ListBySession(ctx context.Context, sessionID string) ([]models.Resource, error) {
	if _, err := s.sessions.FindByID(ctx, sessionID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}
	resources, err := s.repo.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list resources")
	}
	return resources, nil
}

// Create attaches a resource to a session.
func (s *ResourceService) Create(ctx context.Context, sessionID string, req ResourceRequest) (*models.Resource, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid resource payload")
	}
	if _, err := s.sessions.FindByID(ctx, sessionID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}

	resource := &models.Resource{
		SessionID:   sessionID,
		Title:       req.Title,
		Description: req.Description,
		URL:         req.URL,
		FileType:    req.FileType,
		Phase:       models.ResourcePhase(req.Phase),
	}
	if err := s.repo.Create(ctx, resource); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create resource")
	}
	return resource, nil
}

// Delete removes a resource.
func (s *ResourceService) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "resource not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete resource")
	}
	return nil
}

package service

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/fundeport/academy-api/internal/models"
	appErrors "github.com/fundeport/academy-api/pkg/errors"
)

type courseRepository interface {
	List(ctx context.Context, filter models.CourseFilter) ([]models.Course, int, error)
	FindByID(ctx context.Context, id string) (*models.Course, error)
	ExistsByTitle(ctx context.Context, title string, excludeID string) (bool, error)
	Create(ctx context.Context, course *models.Course) error
	Update(ctx context.Context, course *models.Course) error
	CountSections(ctx context.Context, courseID string) (int, error)
	Delete(ctx context.Context, id string) error
}

// CourseRequest describes course creation and update payloads.
type CourseRequest struct {
	Title       string `json:"title" validate:"required"`
	Description string `json:"description"`
	TargetLevel string `json:"target_level" validate:"required,oneof=INITIAL PRIMARY SECONDARY"`
	Active      *bool  `json:"active"`
}

const courseCachePrefix = "catalog:courses"

// CourseService manages the course catalog. Catalog reads go through the
// cache; any write invalidates the whole prefix.
type CourseService struct {
	repo      courseRepository
	cache     *CacheService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewCourseService constructs CourseService.
func NewCourseService(repo courseRepository, cache *CacheService, validate *validator.Validate, logger *zap.Logger) *CourseService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CourseService{repo: repo, cache: cache, validator: validate, logger: logger}
}

type cachedCourseList struct {
	Courses []models.Course `json:"courses"`
	Total   int             `json:"total"`
}

// List returns catalog courses with pagination metadata.
func (s *CourseService) List(ctx context.Context, filter models.CourseFilter) ([]models.Course, *models.Pagination, error) {
	key := courseListCacheKey(filter)

	var cached cachedCourseList
	if hit, _ := s.cache.Get(ctx, key, &cached); hit {
		return cached.Courses, paginationFor(filter.Page, filter.PageSize, cached.Total), nil
	}

	courses, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list courses")
	}

	if err := s.cache.Set(ctx, key, cachedCourseList{Courses: courses, Total: total}, 0); err != nil {
		s.logger.Warn("failed to cache course list", zap.Error(err))
	}
	return courses, paginationFor(filter.Page, filter.PageSize, total), nil
}

// Get returns one course by ID.
func (s *CourseService) Get(ctx context.Context, id string) (*models.Course, error) {
	key := fmt.Sprintf("%s:id:%s", courseCachePrefix, id)

	var cached models.Course
	if hit, _ := s.cache.Get(ctx, key, &cached); hit {
		return &cached, nil
	}

	course, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}

	if err := s.cache.Set(ctx, key, course, 0); err != nil {
		s.logger.Warn("failed to cache course", zap.Error(err))
	}
	return course, nil
}

// Create adds a course to the catalog.
func (s *CourseService) Create(ctx context.Context, req CourseRequest, createdBy string) (*models.Course, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}

	exists, err := s.repo.ExistsByTitle(ctx, req.Title, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate course title")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "a course with this title already exists")
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}
	course := &models.Course{
		Title:       req.Title,
		Description: req.Description,
		TargetLevel: models.AcademicLevel(req.TargetLevel),
		Active:      active,
		CreatedBy:   createdBy,
	}
	if err := s.repo.Create(ctx, course); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create course")
	}

	s.invalidateCatalog(ctx)
	s.logger.Info("course created", zap.String("course_id", course.ID), zap.String("title", course.Title))
	return course, nil
}

// Update modifies a catalog course.
func (s *CourseService) Update(ctx context.Context, id string, req CourseRequest) (*models.Course, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}

	course, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}

	exists, err := s.repo.ExistsByTitle(ctx, req.Title, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate course title")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "a course with this title already exists")
	}

	course.Title = req.Title
	course.Description = req.Description
	course.TargetLevel = models.AcademicLevel(req.TargetLevel)
	if req.Active != nil {
		course.Active = *req.Active
	}

	if err := s.repo.Update(ctx, course); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update course")
	}

	s.invalidateCatalog(ctx)
	return course, nil
}

// Delete removes a course with no sections scheduled against it.
func (s *CourseService) Delete(ctx context.Context, id string) error {
	count, err := s.repo.CountSections(ctx, id)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count course sections")
	}
	if count > 0 {
		return appErrors.Clone(appErrors.ErrConflict, "course has sections and cannot be deleted")
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete course")
	}

	s.invalidateCatalog(ctx)
	return nil
}

func (s *CourseService) invalidateCatalog(ctx context.Context) {
	if err := s.cache.Invalidate(ctx, courseCachePrefix+"*"); err != nil {
		s.logger.Warn("failed to invalidate course cache", zap.Error(err))
	}
}

func courseListCacheKey(filter models.CourseFilter) string {
	active := "any"
	if filter.Active != nil {
		active = fmt.Sprintf("%t", *filter.Active)
	}
	return fmt.Sprintf("%s:list:%s:%s:%s:%d:%d:%s:%s", courseCachePrefix, filter.TargetLevel, active, filter.Search, filter.Page, filter.PageSize, filter.SortBy, filter.SortOrder)
}

func paginationFor(page, size, total int) *models.Pagination {
	if page < 1 {
		page = 1
	}
	if size <= 0 {
		size = 20
	}
	return &models.Pagination{Page: page, PageSize: size, TotalCount: total}
}

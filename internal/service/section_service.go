package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/fundeport/academy-api/internal/models"
	"github.com/fundeport/academy-api/internal/repository"
	appErrors "github.com/fundeport/academy-api/pkg/errors"
)

type sectionRepository interface {
	List(ctx context.Context, filter models.SectionFilter) ([]models.SectionDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.Section, error)
	FindDetailByID(ctx context.Context, id string) (*models.SectionDetail, error)
	CreateWithSchedule(ctx context.Context, section *models.Section, blocks []models.ScheduleBlock, sessions []models.Session) error
	UpdateWithSchedule(ctx context.Context, section *models.Section, blocks []models.ScheduleBlock, sessions []models.Session) error
	SetActive(ctx context.Context, id string, active bool) error
	Delete(ctx context.Context, id string) error
}

type blockReader interface {
	ListBySection(ctx context.Context, sectionID string) ([]models.ScheduleBlock, error)
	ListBySections(ctx context.Context, sectionIDs []string) (map[string][]models.ScheduleBlock, error)
}

type courseReader interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
}

type teacherResolver interface {
	FindTeacherByNationalID(ctx context.Context, nationalID string) (*models.User, error)
}

type teacherScheduleValidator interface {
	ValidateBlocks(blocks []models.ScheduleBlock) error
	ValidateTeacherSchedule(ctx context.Context, teacherID string, blocks []models.ScheduleBlock, excludeSectionID string) error
}

// ScheduleBlockRequest is one weekly slot in a section payload.
type ScheduleBlockRequest struct {
	DayOfWeek string `json:"day_of_week" validate:"required"`
	StartTime string `json:"start_time" validate:"required"`
	EndTime   string `json:"end_time" validate:"required"`
}

// SectionRequest describes section creation and update payloads.
type SectionRequest struct {
	Name              string                 `json:"name" validate:"required"`
	AcademicLevel     string                 `json:"academic_level" validate:"required,oneof=INITIAL PRIMARY SECONDARY"`
	Grade             string                 `json:"grade" validate:"required"`
	Classroom         string                 `json:"classroom"`
	Capacity          int                    `json:"capacity" validate:"required,min=1"`
	StartDate         string                 `json:"start_date" validate:"required"`
	EndDate           string                 `json:"end_date" validate:"required"`
	CourseID          string                 `json:"course_id" validate:"required"`
	TeacherNationalID string                 `json:"teacher_national_id" validate:"required"`
	Blocks            []ScheduleBlockRequest `json:"schedule_blocks" validate:"required,min=1,dive"`
}

// SectionService manages the section lifecycle: creation and update rebuild
// the weekly blocks and the generated session calendar atomically, activation
// toggles visibility, and deletion is blocked while enrollments exist.
type SectionService struct {
	repo      sectionRepository
	blocks    blockReader
	courses   courseReader
	teachers  teacherResolver
	conflicts teacherScheduleValidator
	validator *validator.Validate
	logger    *zap.Logger
}

// NewSectionService constructs SectionService.
func NewSectionService(repo sectionRepository, blocks blockReader, courses courseReader, teachers teacherResolver, conflicts teacherScheduleValidator, validate *validator.Validate, logger *zap.Logger) *SectionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SectionService{repo: repo, blocks: blocks, courses: courses, teachers: teachers, conflicts: conflicts, validator: validate, logger: logger}
}

// List returns section details with schedule blocks and occupancy counters.
func (s *SectionService) List(ctx context.Context, filter models.SectionFilter) ([]models.SectionDetail, *models.Pagination, error) {
	sections, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list sections")
	}

	ids := make([]string, 0, len(sections))
	for _, sec := range sections {
		ids = append(ids, sec.ID)
	}
	blocksByID, err := s.blocks.ListBySections(ctx, ids)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load schedule blocks")
	}

	today := dateOnly(time.Now())
	for i := range sections {
		sections[i].Blocks = blocksByID[sections[i].ID]
		sections[i].ComputeOccupancy(today)
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	pagination := &models.Pagination{Page: page, PageSize: size, TotalCount: total}
	return sections, pagination, nil
}

// Get returns one section with blocks and occupancy counters.
func (s *SectionService) Get(ctx context.Context, id string) (*models.SectionDetail, error) {
	detail, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "section not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load section")
	}
	blocks, err := s.blocks.ListBySection(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load schedule blocks")
	}
	detail.Blocks = blocks
	detail.ComputeOccupancy(dateOnly(time.Now()))
	return detail, nil
}

// Create validates a section payload, checks the teacher's schedule, and
// persists the section together with its blocks and generated sessions.
func (s *SectionService) Create(ctx context.Context, req SectionRequest) (*models.SectionDetail, error) {
	section, blocks, err := s.resolveRequest(ctx, req, nil)
	if err != nil {
		return nil, err
	}

	if err := s.conflicts.ValidateTeacherSchedule(ctx, section.TeacherID, blocks, ""); err != nil {
		return nil, err
	}

	section.Code = newSectionCode()
	section.Active = true
	sessions := GenerateSessions(*section, blocks)

	if err := s.repo.CreateWithSchedule(ctx, section, blocks, sessions); err != nil {
		return nil, mapScheduleWriteError(err, "failed to create section")
	}

	s.logger.Info("section created",
		zap.String("section_id", section.ID),
		zap.String("code", section.Code),
		zap.Int("blocks", len(blocks)),
		zap.Int("sessions", len(sessions)),
	)
	return s.Get(ctx, section.ID)
}

// Update re-validates the payload, replaces the schedule blocks, and
// regenerates the whole session calendar. Teacher-entered topic and outcome
// notes on old sessions are discarded with the calendar.
func (s *SectionService) Update(ctx context.Context, id string, req SectionRequest) (*models.SectionDetail, error) {
	existing, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "section not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load section")
	}

	section, blocks, err := s.resolveRequest(ctx, req, existing)
	if err != nil {
		return nil, err
	}

	if err := s.conflicts.ValidateTeacherSchedule(ctx, section.TeacherID, blocks, id); err != nil {
		return nil, err
	}

	sessions := GenerateSessions(*section, blocks)

	s.logger.Warn("regenerating section calendar, session annotations will be lost",
		zap.String("section_id", id),
		zap.Int("new_sessions", len(sessions)),
	)

	if err := s.repo.UpdateWithSchedule(ctx, section, blocks, sessions); err != nil {
		return nil, mapScheduleWriteError(err, "failed to update section")
	}
	return s.Get(ctx, id)
}

// SetActive toggles the active flag without touching schedule or sessions.
func (s *SectionService) SetActive(ctx context.Context, id string, active bool) (*models.SectionDetail, error) {
	if err := s.repo.SetActive(ctx, id, active); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "section not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update section state")
	}
	return s.Get(ctx, id)
}

// Delete removes a section and its schedule. A section any enrollment record
// references, regardless of status, cannot be deleted.
func (s *SectionService) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "section not found")
		}
		if errors.Is(err, repository.ErrSectionHasEnrollments) {
			return appErrors.Clone(appErrors.ErrConflict, "section has enrolled students and cannot be deleted")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete section")
	}
	s.logger.Info("section deleted", zap.String("section_id", id))
	return nil
}

// resolveRequest validates the shared create/update payload and resolves its
// references. When existing is non-nil the resolved section keeps its
// identity and code.
func (s *SectionService) resolveRequest(ctx context.Context, req SectionRequest, existing *models.Section) (*models.Section, []models.ScheduleBlock, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid section payload")
	}

	startDate, err := time.Parse("2006-01-02", req.StartDate)
	if err != nil {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "start_date must be YYYY-MM-DD")
	}
	endDate, err := time.Parse("2006-01-02", req.EndDate)
	if err != nil {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "end_date must be YYYY-MM-DD")
	}
	if startDate.After(endDate) {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "start_date must not be after end_date")
	}
	if startDate.Before(dateOnly(time.Now())) {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "start_date must not be in the past")
	}

	course, err := s.courses.FindByID(ctx, req.CourseID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	if models.AcademicLevel(req.AcademicLevel) != course.TargetLevel {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("section level %s does not match course target level %s", req.AcademicLevel, course.TargetLevel))
	}

	teacher, err := s.teachers.FindTeacherByNationalID(ctx, req.TeacherNationalID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher")
	}
	if teacher.Role != models.RoleTeacher {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "referenced user is not a teacher")
	}
	if !teacher.Active {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "teacher account is inactive")
	}

	blocks := make([]models.ScheduleBlock, 0, len(req.Blocks))
	for _, b := range req.Blocks {
		blocks = append(blocks, models.ScheduleBlock{
			DayOfWeek: models.DayOfWeek(b.DayOfWeek),
			StartTime: b.StartTime,
			EndTime:   b.EndTime,
		})
	}
	if err := s.conflicts.ValidateBlocks(blocks); err != nil {
		return nil, nil, err
	}

	section := &models.Section{
		Name:          req.Name,
		AcademicLevel: models.AcademicLevel(req.AcademicLevel),
		Grade:         req.Grade,
		Classroom:     req.Classroom,
		Capacity:      req.Capacity,
		StartDate:     dateOnly(startDate),
		EndDate:       dateOnly(endDate),
		CourseID:      req.CourseID,
		TeacherID:     teacher.ID,
	}
	if existing != nil {
		section.ID = existing.ID
		section.Code = existing.Code
		section.Active = existing.Active
		section.CreatedAt = existing.CreatedAt
	}
	return section, blocks, nil
}

// mapScheduleWriteError converts the repository's transactional guard errors
// into typed API errors.
func mapScheduleWriteError(err error, fallback string) error {
	var conflictErr *models.ScheduleConflictError
	if errors.As(err, &conflictErr) {
		return appErrors.Wrap(conflictErr, appErrors.ErrScheduleConflict.Code, appErrors.ErrScheduleConflict.Status, conflictErr.Message)
	}
	if errors.Is(err, repository.ErrCapacityBelowEnrollment) {
		return appErrors.Clone(appErrors.ErrConflict, "capacity cannot drop below the current number of enrolled students")
	}
	if err == sql.ErrNoRows {
		return appErrors.Clone(appErrors.ErrNotFound, "section not found")
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, fallback)
}

// newSectionCode derives a unique-enough section code from the wall clock.
func newSectionCode() string {
	return fmt.Sprintf("SEC-%d", time.Now().UnixMilli())
}

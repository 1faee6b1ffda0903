package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/fundeport/academy-api/internal/models"
	"github.com/fundeport/academy-api/internal/repository"
	"github.com/fundeport/academy-api/pkg/config"
	appErrors "github.com/fundeport/academy-api/pkg/errors"
)

type enrollmentRepository interface {
	List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
	FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error)
	FindByStudentAndSection(ctx context.Context, studentID, sectionID string) (*models.Enrollment, error)
	Exists(ctx context.Context, studentID, sectionID string) (bool, error)
	ExistsActiveInCourse(ctx context.Context, studentID, courseID string) (bool, error)
	CountActiveBySection(ctx context.Context, sectionID string) (int, error)
	ListActiveBySection(ctx context.Context, sectionID string) ([]models.EnrollmentDetail, error)
	ListByStudent(ctx context.Context, studentID string) ([]models.EnrollmentDetail, error)
	Create(ctx context.Context, enrollment *models.Enrollment) error
	UpdateStatus(ctx context.Context, id string, status models.EnrollmentStatus, withdrawnAt *time.Time) error
	UpdateFinalGrade(ctx context.Context, id string, grade float64, status models.EnrollmentStatus) error
}

type studentReader interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindStudentProfile(ctx context.Context, userID string) (*models.StudentProfile, error)
}

type sectionReader interface {
	FindByID(ctx context.Context, id string) (*models.Section, error)
}

type studentScheduleValidator interface {
	ValidateStudentSchedule(ctx context.Context, studentID string, blocks []models.ScheduleBlock) error
}

type sectionBlockReader interface {
	ListBySection(ctx context.Context, sectionID string) ([]models.ScheduleBlock, error)
}

// EnrollRequest describes enrollment creation payload.
type EnrollRequest struct {
	StudentID string `json:"student_id" validate:"required"`
	SectionID string `json:"section_id" validate:"required"`
	Notes     string `json:"notes"`
}

// WithdrawRequest identifies the enrollment to withdraw.
type WithdrawRequest struct {
	StudentID string `json:"student_id" validate:"required"`
	SectionID string `json:"section_id" validate:"required"`
}

// FinalGradeRequest carries the grade to record on an enrollment.
type FinalGradeRequest struct {
	Grade float64 `json:"grade"`
}

// EnrollmentService runs the enrollment rule chain. Checks run in a fixed
// order and the first failure wins; the insert itself repeats the capacity
// and schedule checks inside its transaction, so passing here never admits a
// student a concurrent request already displaced.
type EnrollmentService struct {
	repo      enrollmentRepository
	students  studentReader
	sections  sectionReader
	blocks    sectionBlockReader
	schedule  studentScheduleValidator
	grading   config.GradingConfig
	validator *validator.Validate
	logger    *zap.Logger
}

// NewEnrollmentService constructs EnrollmentService.
func NewEnrollmentService(repo enrollmentRepository, students studentReader, sections sectionReader, blocks sectionBlockReader, schedule studentScheduleValidator, grading config.GradingConfig, validate *validator.Validate, logger *zap.Logger) *EnrollmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrollmentService{repo: repo, students: students, sections: sections, blocks: blocks, schedule: schedule, grading: grading, validator: validate, logger: logger}
}

// List returns enrollments with pagination metadata.
func (s *EnrollmentService) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, *models.Pagination, error) {
	enrollments, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
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
	return enrollments, pagination, nil
}

// Get returns one enrollment with display fields.
func (s *EnrollmentService) Get(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	detail, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	return detail, nil
}

// ListByStudent returns a student's enrollment history newest first.
func (s *EnrollmentService) ListByStudent(ctx context.Context, studentID string) ([]models.EnrollmentDetail, error) {
	enrollments, err := s.repo.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list student enrollments")
	}
	return enrollments, nil
}

// Roster returns the ACTIVE enrollments of a section ordered by surname.
func (s *EnrollmentService) Roster(ctx context.Context, sectionID string) ([]models.EnrollmentDetail, error) {
	if _, err := s.sections.FindByID(ctx, sectionID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "section not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load section")
	}
	roster, err := s.repo.ListActiveBySection(ctx, sectionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load section roster")
	}
	return roster, nil
}

// Enroll registers a student into a section after the full rule chain
// passes, in order: student, section state, duplicate, one-per-course,
// capacity, level match, grade match, schedule overlap.
func (s *EnrollmentService) Enroll(ctx context.Context, req EnrollRequest) (*models.EnrollmentDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment payload")
	}

	// 1. Student exists, is a student, and has a profile.
	student, err := s.students.FindByID(ctx, req.StudentID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if student.Role != models.RoleStudent {
		return nil, appErrors.Clone(appErrors.ErrValidation, "user is not a student")
	}
	if !student.Active {
		return nil, appErrors.Clone(appErrors.ErrValidation, "student account is inactive")
	}
	profile, err := s.students.FindStudentProfile(ctx, req.StudentID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrValidation, "student has no academic profile")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student profile")
	}

	// 2. Section exists, is active, and has not ended.
	section, err := s.sections.FindByID(ctx, req.SectionID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "section not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load section")
	}
	today := dateOnly(time.Now())
	if !section.Active || section.EndDate.Before(today) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "section is closed for enrollment")
	}

	// 3. No enrollment of any status already links the pair.
	exists, err := s.repo.Exists(ctx, req.StudentID, req.SectionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate enrollment")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "student is already enrolled in this section")
	}

	// 4. One ACTIVE enrollment per course across all its sections.
	activeInCourse, err := s.repo.ExistsActiveInCourse(ctx, req.StudentID, section.CourseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate enrollment")
	}
	if activeInCourse {
		return nil, appErrors.Clone(appErrors.ErrConflict, "student already has an active enrollment in this course")
	}

	// 5. Capacity, advisory check. The insert re-reads the limit and the
	// count under the section row lock.
	activeCount, err := s.repo.CountActiveBySection(ctx, req.SectionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate enrollment")
	}
	if activeCount >= section.Capacity {
		return nil, appErrors.Clone(appErrors.ErrSectionFull, "")
	}

	// 6. Academic level match.
	if profile.AcademicLevel != section.AcademicLevel {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("student level %s does not match section level %s", profile.AcademicLevel, section.AcademicLevel))
	}

	// 7. Grade match.
	if !gradesMatch(profile.Grade, section.Grade) {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("student grade %q does not match section grade %q", profile.Grade, section.Grade))
	}

	// 8. Student schedule overlap.
	blocks, err := s.blocks.ListBySection(ctx, req.SectionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load section schedule")
	}
	if err := s.schedule.ValidateStudentSchedule(ctx, req.StudentID, blocks); err != nil {
		return nil, err
	}

	enrollment := &models.Enrollment{
		StudentID:  req.StudentID,
		SectionID:  req.SectionID,
		Status:     models.EnrollmentStatusActive,
		EnrolledAt: time.Now().UTC(),
		Notes:      req.Notes,
	}
	if err := s.repo.Create(ctx, enrollment); err != nil {
		return nil, mapEnrollmentWriteError(err)
	}

	s.logger.Info("student enrolled",
		zap.String("enrollment_id", enrollment.ID),
		zap.String("student_id", req.StudentID),
		zap.String("section_id", req.SectionID),
	)
	return s.Get(ctx, enrollment.ID)
}

// Withdraw marks a student's ACTIVE enrollment as withdrawn. Withdrawal is
// only possible while the section is still running.
func (s *EnrollmentService) Withdraw(ctx context.Context, req WithdrawRequest) (*models.EnrollmentDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid withdrawal payload")
	}

	enrollment, err := s.repo.FindByStudentAndSection(ctx, req.StudentID, req.SectionID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	if enrollment.Status != models.EnrollmentStatusActive {
		return nil, appErrors.Clone(appErrors.ErrValidation, "enrollment is not active")
	}

	section, err := s.sections.FindByID(ctx, req.SectionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load section")
	}
	if section.EndDate.Before(dateOnly(time.Now())) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "section has already ended")
	}

	withdrawnAt := time.Now().UTC()
	if err := s.repo.UpdateStatus(ctx, enrollment.ID, models.EnrollmentStatusWithdrawn, &withdrawnAt); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to withdraw enrollment")
	}

	s.logger.Info("student withdrawn",
		zap.String("enrollment_id", enrollment.ID),
		zap.String("student_id", req.StudentID),
		zap.String("section_id", req.SectionID),
	)
	return s.Get(ctx, enrollment.ID)
}

// AssignFinalGrade records the final grade. Once the section's end date has
// passed, the enrollment auto-transitions to COMPLETED or FAILED against the
// configured passing threshold; before that the grade is stored and the
// status left as is.
func (s *EnrollmentService) AssignFinalGrade(ctx context.Context, id string, req FinalGradeRequest) (*models.EnrollmentDetail, error) {
	if req.Grade < s.grading.MinGrade || req.Grade > s.grading.MaxGrade {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("grade must be between %.1f and %.1f", s.grading.MinGrade, s.grading.MaxGrade))
	}

	enrollment, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	if enrollment.Status == models.EnrollmentStatusWithdrawn {
		return nil, appErrors.Clone(appErrors.ErrValidation, "cannot grade a withdrawn enrollment")
	}

	section, err := s.sections.FindByID(ctx, enrollment.SectionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load section")
	}

	status := enrollment.Status
	if section.EndDate.Before(dateOnly(time.Now())) {
		if req.Grade >= s.grading.PassingGrade {
			status = models.EnrollmentStatusCompleted
		} else {
			status = models.EnrollmentStatusFailed
		}
	}

	if err := s.repo.UpdateFinalGrade(ctx, id, req.Grade, status); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record final grade")
	}

	s.logger.Info("final grade recorded",
		zap.String("enrollment_id", id),
		zap.Float64("grade", req.Grade),
		zap.String("status", string(status)),
	)
	return s.Get(ctx, id)
}

// mapEnrollmentWriteError converts the repository's transactional guard
// errors into typed API errors.
func mapEnrollmentWriteError(err error) error {
	var conflictErr *models.ScheduleConflictError
	if errors.As(err, &conflictErr) {
		return appErrors.Wrap(conflictErr, appErrors.ErrScheduleConflict.Code, appErrors.ErrScheduleConflict.Status, conflictErr.Message)
	}
	if errors.Is(err, repository.ErrSectionAtCapacity) {
		return appErrors.Clone(appErrors.ErrSectionFull, "")
	}
	if errors.Is(err, repository.ErrDuplicateEnrollment) {
		return appErrors.Clone(appErrors.ErrConflict, "student is already enrolled in this section")
	}
	if err == sql.ErrNoRows {
		return appErrors.Clone(appErrors.ErrNotFound, "section not found")
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create enrollment")
}

var firstNumber = regexp.MustCompile(`\d+`)

// gradesMatch compares the student's grade with the section's. The first
// integer substring of each side wins when both have one; otherwise the
// comparison falls back to case-insensitive string equality, so "3rd" matches
// "Grade 3" but "A" only matches "a".
func gradesMatch(studentGrade, sectionGrade string) bool {
	a := firstNumber.FindString(studentGrade)
	b := firstNumber.FindString(sectionGrade)
	if a != "" && b != "" {
		an, errA := strconv.Atoi(a)
		bn, errB := strconv.Atoi(b)
		if errA == nil && errB == nil {
			return an == bn
		}
	}
	return strings.EqualFold(strings.TrimSpace(studentGrade), strings.TrimSpace(sectionGrade))
}

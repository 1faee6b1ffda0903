package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/fundeport/academy-api/internal/models"
	appErrors "github.com/fundeport/academy-api/pkg/errors"
)

type conflictLookupRepository interface {
	TeacherConflicts(ctx context.Context, teacherID string, block models.ScheduleBlock, excludeSectionID string) ([]models.ScheduleConflict, error)
	StudentConflicts(ctx context.Context, studentID string, block models.ScheduleBlock) ([]models.ScheduleConflict, error)
}

// ScheduleConflictService detects overlapping schedule blocks for a teacher
// or a student. It is the advisory pre-check run before the transactional
// writes; the repositories repeat the same predicate under row locks, so a
// pass here is not a commit guarantee under concurrency.
type ScheduleConflictService struct {
	repo   conflictLookupRepository
	logger *zap.Logger
}

// NewScheduleConflictService constructs ScheduleConflictService.
func NewScheduleConflictService(repo conflictLookupRepository, logger *zap.Logger) *ScheduleConflictService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ScheduleConflictService{repo: repo, logger: logger}
}

// ValidateBlocks checks each proposed block in isolation and the payload as a
// whole: valid day name, "HH:MM" times, start before end, and no two blocks
// in the same payload overlapping each other.
func (s *ScheduleConflictService) ValidateBlocks(blocks []models.ScheduleBlock) error {
	if len(blocks) == 0 {
		return appErrors.Clone(appErrors.ErrValidation, "at least one schedule block is required")
	}
	for _, b := range blocks {
		if !b.DayOfWeek.Valid() {
			return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("invalid day of week %q", b.DayOfWeek))
		}
		if !validTimeOfDay(b.StartTime) || !validTimeOfDay(b.EndTime) {
			return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("times must be HH:MM, got %q-%q", b.StartTime, b.EndTime))
		}
		if !b.TimeRangeValid() {
			return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("block start %s must be before end %s", b.StartTime, b.EndTime))
		}
	}
	for i := 0; i < len(blocks); i++ {
		for j := i + 1; j < len(blocks); j++ {
			if BlocksOverlap(blocks[i], blocks[j]) {
				return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("blocks %s %s-%s and %s %s-%s overlap each other",
					blocks[i].DayOfWeek, blocks[i].StartTime, blocks[i].EndTime,
					blocks[j].DayOfWeek, blocks[j].StartTime, blocks[j].EndTime))
			}
		}
	}
	return nil
}

// ValidateTeacherSchedule fails when any proposed block overlaps a block of
// another ACTIVE section taught by the teacher. excludeSectionID skips the
// section being updated so it does not conflict with itself.
func (s *ScheduleConflictService) ValidateTeacherSchedule(ctx context.Context, teacherID string, blocks []models.ScheduleBlock, excludeSectionID string) error {
	for _, b := range blocks {
		conflicts, err := s.repo.TeacherConflicts(ctx, teacherID, b, excludeSectionID)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check teacher schedule")
		}
		if len(conflicts) == 0 {
			continue
		}
		conflict := conflicts[0]
		conflict.Dimension = "TEACHER"
		s.logger.Info("teacher schedule conflict",
			zap.String("teacher_id", teacherID),
			zap.String("section_id", conflict.SectionID),
			zap.String("slot", conflict.Describe()),
		)
		return appErrors.Wrap(&models.ScheduleConflictError{
			Type:     "TEACHER_SCHEDULE_CONFLICT",
			Message:  fmt.Sprintf("teacher already teaches section %s at %s", conflict.SectionCode, conflict.Describe()),
			Conflict: conflict,
		}, appErrors.ErrScheduleConflict.Code, appErrors.ErrScheduleConflict.Status,
			fmt.Sprintf("teacher already teaches section %s at %s", conflict.SectionCode, conflict.Describe()))
	}
	return nil
}

// ValidateStudentSchedule fails when any proposed block overlaps a block of a
// section the student holds an ACTIVE enrollment in.
func (s *ScheduleConflictService) ValidateStudentSchedule(ctx context.Context, studentID string, blocks []models.ScheduleBlock) error {
	for _, b := range blocks {
		conflicts, err := s.repo.StudentConflicts(ctx, studentID, b)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check student schedule")
		}
		if len(conflicts) == 0 {
			continue
		}
		conflict := conflicts[0]
		conflict.Dimension = "STUDENT"
		s.logger.Info("student schedule conflict",
			zap.String("student_id", studentID),
			zap.String("section_id", conflict.SectionID),
			zap.String("slot", conflict.Describe()),
		)
		return appErrors.Wrap(&models.ScheduleConflictError{
			Type:     "STUDENT_SCHEDULE_CONFLICT",
			Message:  fmt.Sprintf("student is already enrolled in section %s at %s", conflict.SectionCode, conflict.Describe()),
			Conflict: conflict,
		}, appErrors.ErrScheduleConflict.Code, appErrors.ErrScheduleConflict.Status,
			fmt.Sprintf("student is already enrolled in section %s at %s", conflict.SectionCode, conflict.Describe()))
	}
	return nil
}

package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fundeport/academy-api/internal/models"
	appErrors "github.com/fundeport/academy-api/pkg/errors"
)

type mockConflictRepo struct {
	teacherConflicts map[string][]models.ScheduleConflict
	studentConflicts map[string][]models.ScheduleConflict
	excludeSeen      string
	err              error
}

func (m *mockConflictRepo) TeacherConflicts(ctx context.Context, teacherID string, block models.ScheduleBlock, excludeSectionID string) ([]models.ScheduleConflict, error) {
	m.excludeSeen = excludeSectionID
	if m.err != nil {
		return nil, m.err
	}
	return m.teacherConflicts[teacherID], nil
}

func (m *mockConflictRepo) StudentConflicts(ctx context.Context, studentID string, block models.ScheduleBlock) ([]models.ScheduleConflict, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.studentConflicts[studentID], nil
}

func TestValidateBlocksEmpty(t *testing.T) {
	svc := NewScheduleConflictService(&mockConflictRepo{}, zap.NewNop())
	err := svc.ValidateBlocks(nil)

	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

func TestValidateBlocksInvalidDay(t *testing.T) {
	svc := NewScheduleConflictService(&mockConflictRepo{}, zap.NewNop())
	err := svc.ValidateBlocks([]models.ScheduleBlock{{DayOfWeek: "FUNDAY", StartTime: "08:00", EndTime: "09:00"}})
	assert.Error(t, err)
}

func TestValidateBlocksBadTimeFormat(t *testing.T) {
	svc := NewScheduleConflictService(&mockConflictRepo{}, zap.NewNop())

	err := svc.ValidateBlocks([]models.ScheduleBlock{block(models.Monday, "8:00", "09:00")})
	assert.Error(t, err)

	err = svc.ValidateBlocks([]models.ScheduleBlock{block(models.Monday, "08:00", "25:00")})
	assert.Error(t, err)
}

func TestValidateBlocksInvertedRange(t *testing.T) {
	svc := NewScheduleConflictService(&mockConflictRepo{}, zap.NewNop())

	err := svc.ValidateBlocks([]models.ScheduleBlock{block(models.Monday, "10:00", "09:00")})
	assert.Error(t, err)

	err = svc.ValidateBlocks([]models.ScheduleBlock{block(models.Monday, "10:00", "10:00")})
	assert.Error(t, err)
}

func TestValidateBlocksInternalOverlap(t *testing.T) {
	svc := NewScheduleConflictService(&mockConflictRepo{}, zap.NewNop())
	err := svc.ValidateBlocks([]models.ScheduleBlock{
		block(models.Monday, "08:00", "10:00"),
		block(models.Monday, "09:00", "11:00"),
	})
	assert.Error(t, err)
}

func TestValidateBlocksOK(t *testing.T) {
	svc := NewScheduleConflictService(&mockConflictRepo{}, zap.NewNop())
	err := svc.ValidateBlocks([]models.ScheduleBlock{
		block(models.Monday, "08:00", "10:00"),
		block(models.Monday, "10:00", "12:00"),
		block(models.Thursday, "08:00", "10:00"),
	})
	assert.NoError(t, err)
}

func TestValidateTeacherScheduleConflict(t *testing.T) {
	repo := &mockConflictRepo{teacherConflicts: map[string][]models.ScheduleConflict{
		"t1": {{SectionID: "sec-2", SectionCode: "SEC-100", DayOfWeek: models.Monday, StartTime: "08:00", EndTime: "10:00"}},
	}}
	svc := NewScheduleConflictService(repo, zap.NewNop())

	err := svc.ValidateTeacherSchedule(context.Background(), "t1", []models.ScheduleBlock{block(models.Monday, "09:00", "11:00")}, "sec-1")
	require.Error(t, err)
	assert.Equal(t, "sec-1", repo.excludeSeen)

	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrScheduleConflict.Code, appErr.Code)

	var conflictErr *models.ScheduleConflictError
	require.ErrorAs(t, err, &conflictErr)
	assert.Equal(t, "TEACHER_SCHEDULE_CONFLICT", conflictErr.Type)
	assert.Equal(t, "TEACHER", conflictErr.Conflict.Dimension)
	assert.Contains(t, conflictErr.Message, "SEC-100")
}

func TestValidateTeacherScheduleClear(t *testing.T) {
	svc := NewScheduleConflictService(&mockConflictRepo{}, zap.NewNop())
	err := svc.ValidateTeacherSchedule(context.Background(), "t1", []models.ScheduleBlock{block(models.Monday, "09:00", "11:00")}, "")
	assert.NoError(t, err)
}

func TestValidateStudentScheduleConflict(t *testing.T) {
	repo := &mockConflictRepo{studentConflicts: map[string][]models.ScheduleConflict{
		"s1": {{SectionID: "sec-2", SectionCode: "SEC-200", DayOfWeek: models.Friday, StartTime: "14:00", EndTime: "16:00"}},
	}}
	svc := NewScheduleConflictService(repo, zap.NewNop())

	err := svc.ValidateStudentSchedule(context.Background(), "s1", []models.ScheduleBlock{block(models.Friday, "15:00", "17:00")})
	require.Error(t, err)

	var conflictErr *models.ScheduleConflictError
	require.ErrorAs(t, err, &conflictErr)
	assert.Equal(t, "STUDENT_SCHEDULE_CONFLICT", conflictErr.Type)
	assert.Equal(t, "STUDENT", conflictErr.Conflict.Dimension)
}

func TestValidateScheduleRepoError(t *testing.T) {
	repo := &mockConflictRepo{err: errors.New("db down")}
	svc := NewScheduleConflictService(repo, zap.NewNop())

	err := svc.ValidateTeacherSchedule(context.Background(), "t1", []models.ScheduleBlock{block(models.Monday, "09:00", "11:00")}, "")
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrInternal.Code, appErr.Code)
}

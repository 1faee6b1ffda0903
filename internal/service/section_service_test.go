package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fundeport/academy-api/internal/models"
	"github.com/fundeport/academy-api/internal/repository"
	appErrors "github.com/fundeport/academy-api/pkg/errors"
)

type mockSectionRepo struct {
	sections       map[string]models.Section
	createdBlocks  []models.ScheduleBlock
	createdSess    []models.Session
	updatedSess    []models.Session
	writeErr       error
	deleteErr      error
	activeToggles  map[string]bool
	deletedIDs     []string
	lastListFilter models.SectionFilter
}

func (m *mockSectionRepo) List(ctx context.Context, filter models.SectionFilter) ([]models.SectionDetail, int, error) {
	m.lastListFilter = filter
	var list []models.SectionDetail
	for _, sec := range m.sections {
		list = append(list, models.SectionDetail{Section: sec})
	}
	return list, len(list), nil
}

func (m *mockSectionRepo) FindByID(ctx context.Context, id string) (*models.Section, error) {
	if s, ok := m.sections[id]; ok {
		return &s, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockSectionRepo) FindDetailByID(ctx context.Context, id string) (*models.SectionDetail, error) {
	if s, ok := m.sections[id]; ok {
		return &models.SectionDetail{Section: s}, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockSectionRepo) CreateWithSchedule(ctx context.Context, section *models.Section, blocks []models.ScheduleBlock, sessions []models.Session) error {
	if m.writeErr != nil {
		return m.writeErr
	}
	if m.sections == nil {
		m.sections = make(map[string]models.Section)
	}
	if section.ID == "" {
		section.ID = "new-section"
	}
	m.sections[section.ID] = *section
	m.createdBlocks = blocks
	m.createdSess = sessions
	return nil
}

func (m *mockSectionRepo) UpdateWithSchedule(ctx context.Context, section *models.Section, blocks []models.ScheduleBlock, sessions []models.Session) error {
	if m.writeErr != nil {
		return m.writeErr
	}
	m.sections[section.ID] = *section
	m.createdBlocks = blocks
	m.updatedSess = sessions
	return nil
}

func (m *mockSectionRepo) SetActive(ctx context.Context, id string, active bool) error {
	if _, ok := m.sections[id]; !ok {
		return sql.ErrNoRows
	}
	if m.activeToggles == nil {
		m.activeToggles = make(map[string]bool)
	}
	m.activeToggles[id] = active
	sec := m.sections[id]
	sec.Active = active
	m.sections[id] = sec
	return nil
}

func (m *mockSectionRepo) Delete(ctx context.Context, id string) error {
	if m.deleteErr != nil {
		return m.deleteErr
	}
	if _, ok := m.sections[id]; !ok {
		return sql.ErrNoRows
	}
	delete(m.sections, id)
	m.deletedIDs = append(m.deletedIDs, id)
	return nil
}

type mockSectionBlockReader struct {
	bySection map[string][]models.ScheduleBlock
}

func (m *mockSectionBlockReader) ListBySection(ctx context.Context, sectionID string) ([]models.ScheduleBlock, error) {
	return m.bySection[sectionID], nil
}

func (m *mockSectionBlockReader) ListBySections(ctx context.Context, sectionIDs []string) (map[string][]models.ScheduleBlock, error) {
	return m.bySection, nil
}

type mockCourseReader struct {
	courses map[string]*models.Course
}

func (m *mockCourseReader) FindByID(ctx context.Context, id string) (*models.Course, error) {
	if c, ok := m.courses[id]; ok {
		return c, nil
	}
	return nil, sql.ErrNoRows
}

type mockTeacherResolver struct {
	teachers map[string]*models.User
}

func (m *mockTeacherResolver) FindTeacherByNationalID(ctx context.Context, nationalID string) (*models.User, error) {
	if u, ok := m.teachers[nationalID]; ok {
		return u, nil
	}
	return nil, sql.ErrNoRows
}

type mockTeacherScheduleValidator struct {
	blocksErr   error
	scheduleErr error
	excludeSeen string
}

func (m *mockTeacherScheduleValidator) ValidateBlocks(blocks []models.ScheduleBlock) error {
	return m.blocksErr
}

func (m *mockTeacherScheduleValidator) ValidateTeacherSchedule(ctx context.Context, teacherID string, blocks []models.ScheduleBlock, excludeSectionID string) error {
	m.excludeSeen = excludeSectionID
	return m.scheduleErr
}

func validSectionRequest() SectionRequest {
	start := time.Now().AddDate(0, 0, 7)
	return SectionRequest{
		Name:              "Primary Math A",
		AcademicLevel:     "PRIMARY",
		Grade:             "3",
		Classroom:         "B-12",
		Capacity:          25,
		StartDate:         start.Format("2006-01-02"),
		EndDate:           start.AddDate(0, 3, 0).Format("2006-01-02"),
		CourseID:          "course-1",
		TeacherNationalID: "NAT-123",
		Blocks: []ScheduleBlockRequest{
			{DayOfWeek: "MONDAY", StartTime: "08:00", EndTime: "10:00"},
		},
	}
}

func sectionFixture() (*mockSectionRepo, *mockTeacherScheduleValidator, *SectionService) {
	repo := &mockSectionRepo{sections: make(map[string]models.Section)}
	courses := &mockCourseReader{courses: map[string]*models.Course{"course-1": {ID: "course-1", TargetLevel: models.LevelPrimary}}}
	teachers := &mockTeacherResolver{teachers: map[string]*models.User{"NAT-123": {ID: "t1", Role: models.RoleTeacher, Active: true}}}
	conflicts := &mockTeacherScheduleValidator{}
	svc := NewSectionService(repo, &mockSectionBlockReader{bySection: map[string][]models.ScheduleBlock{}}, courses, teachers, conflicts, validator.New(), zap.NewNop())
	return repo, conflicts, svc
}

func TestSectionCreateOK(t *testing.T) {
	repo, conflicts, svc := sectionFixture()

	detail, err := svc.Create(context.Background(), validSectionRequest())
	require.NoError(t, err)
	assert.Equal(t, "t1", detail.TeacherID)
	assert.True(t, detail.Active)
	assert.Contains(t, detail.Code, "SEC-")
	assert.Equal(t, "", conflicts.excludeSeen)
	assert.NotEmpty(t, repo.createdSess)
	require.Len(t, repo.createdBlocks, 1)
	assert.Equal(t, models.Monday, repo.createdBlocks[0].DayOfWeek)
}

func TestSectionCreateStartAfterEnd(t *testing.T) {
	_, _, svc := sectionFixture()
	req := validSectionRequest()
	req.EndDate = time.Now().AddDate(0, 0, 3).Format("2006-01-02")

	_, err := svc.Create(context.Background(), req)
	assertCode(t, err, appErrors.ErrValidation.Code)
}

func TestSectionCreateStartInPast(t *testing.T) {
	_, _, svc := sectionFixture()
	req := validSectionRequest()
	req.StartDate = time.Now().AddDate(0, 0, -1).Format("2006-01-02")

	_, err := svc.Create(context.Background(), req)
	assertCode(t, err, appErrors.ErrValidation.Code)
}

func TestSectionCreateCourseLevelMismatch(t *testing.T) {
	_, _, svc := sectionFixture()
	req := validSectionRequest()
	req.AcademicLevel = "SECONDARY"

	_, err := svc.Create(context.Background(), req)
	assertCode(t, err, appErrors.ErrValidation.Code)
}

func TestSectionCreateUnknownCourse(t *testing.T) {
	_, _, svc := sectionFixture()
	req := validSectionRequest()
	req.CourseID = "missing"

	_, err := svc.Create(context.Background(), req)
	assertCode(t, err, appErrors.ErrNotFound.Code)
}

func TestSectionCreateUnknownTeacher(t *testing.T) {
	_, _, svc := sectionFixture()
	req := validSectionRequest()
	req.TeacherNationalID = "missing"

	_, err := svc.Create(context.Background(), req)
	assertCode(t, err, appErrors.ErrNotFound.Code)
}

func TestSectionCreateTeacherConflict(t *testing.T) {
	_, conflicts, svc := sectionFixture()
	conflicts.scheduleErr = appErrors.Clone(appErrors.ErrScheduleConflict, "teacher is busy")

	_, err := svc.Create(context.Background(), validSectionRequest())
	assertCode(t, err, appErrors.ErrScheduleConflict.Code)
}

func TestSectionUpdateRegeneratesCalendar(t *testing.T) {
	repo, conflicts, svc := sectionFixture()

	created, err := svc.Create(context.Background(), validSectionRequest())
	require.NoError(t, err)

	req := validSectionRequest()
	req.StartDate = time.Now().AddDate(0, 0, 14).Format("2006-01-02")
	req.EndDate = time.Now().AddDate(0, 2, 0).Format("2006-01-02")
	req.Blocks = []ScheduleBlockRequest{
		{DayOfWeek: "TUESDAY", StartTime: "10:00", EndTime: "12:00"},
	}

	updated, err := svc.Update(context.Background(), created.ID, req)
	require.NoError(t, err)
	assert.Equal(t, created.ID, updated.ID)
	assert.Equal(t, created.Code, updated.Code)
	assert.Equal(t, created.ID, conflicts.excludeSeen)
	assert.NotEmpty(t, repo.updatedSess)
	for _, sess := range repo.updatedSess {
		assert.Equal(t, "10:00", sess.StartTime)
	}
}

func TestSectionUpdatePastStartRejected(t *testing.T) {
	// The no-past-start rule applies on updates too.
	_, _, svc := sectionFixture()

	created, err := svc.Create(context.Background(), validSectionRequest())
	require.NoError(t, err)

	req := validSectionRequest()
	req.StartDate = time.Now().AddDate(0, 0, -30).Format("2006-01-02")
	req.EndDate = time.Now().AddDate(0, 1, 0).Format("2006-01-02")

	_, err = svc.Update(context.Background(), created.ID, req)
	assertCode(t, err, appErrors.ErrValidation.Code)
}

func TestSectionUpdateCapacityBelowEnrollment(t *testing.T) {
	repo, _, svc := sectionFixture()

	created, err := svc.Create(context.Background(), validSectionRequest())
	require.NoError(t, err)

	repo.writeErr = repository.ErrCapacityBelowEnrollment
	_, err = svc.Update(context.Background(), created.ID, validSectionRequest())
	assertCode(t, err, appErrors.ErrConflict.Code)
}

func TestSectionUpdateNotFound(t *testing.T) {
	_, _, svc := sectionFixture()
	_, err := svc.Update(context.Background(), "ghost", validSectionRequest())
	assertCode(t, err, appErrors.ErrNotFound.Code)
}

func TestSectionSetActive(t *testing.T) {
	repo, _, svc := sectionFixture()
	created, err := svc.Create(context.Background(), validSectionRequest())
	require.NoError(t, err)

	detail, err := svc.SetActive(context.Background(), created.ID, false)
	require.NoError(t, err)
	assert.False(t, detail.Active)
	assert.False(t, repo.activeToggles[created.ID])
}

func TestSectionDeleteBlockedByEnrollments(t *testing.T) {
	repo, _, svc := sectionFixture()
	created, err := svc.Create(context.Background(), validSectionRequest())
	require.NoError(t, err)

	repo.deleteErr = repository.ErrSectionHasEnrollments
	err = svc.Delete(context.Background(), created.ID)
	assertCode(t, err, appErrors.ErrConflict.Code)
}

func TestSectionDeleteOK(t *testing.T) {
	repo, _, svc := sectionFixture()
	created, err := svc.Create(context.Background(), validSectionRequest())
	require.NoError(t, err)

	require.NoError(t, svc.Delete(context.Background(), created.ID))
	assert.Contains(t, repo.deletedIDs, created.ID)
}

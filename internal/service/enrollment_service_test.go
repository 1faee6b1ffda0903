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
	"github.com/fundeport/academy-api/pkg/config"
	appErrors "github.com/fundeport/academy-api/pkg/errors"
)

type mockEnrollmentRepo struct {
	enrollments    map[string]models.Enrollment
	byPair         map[string]models.Enrollment
	exists         bool
	activeInCourse bool
	activeCount    int
	created        *models.Enrollment
	createErr      error
	status         map[string]models.EnrollmentStatus
	grades         map[string]float64
}

func (m *mockEnrollmentRepo) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	return nil, 0, nil
}

func (m *mockEnrollmentRepo) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	if e, ok := m.enrollments[id]; ok {
		return &e, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockEnrollmentRepo) FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	if e, ok := m.enrollments[id]; ok {
		return &models.EnrollmentDetail{Enrollment: e}, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockEnrollmentRepo) FindByStudentAndSection(ctx context.Context, studentID, sectionID string) (*models.Enrollment, error) {
	if e, ok := m.byPair[studentID+"/"+sectionID]; ok {
		return &e, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockEnrollmentRepo) Exists(ctx context.Context, studentID, sectionID string) (bool, error) {
	return m.exists, nil
}

func (m *mockEnrollmentRepo) ExistsActiveInCourse(ctx context.Context, studentID, courseID string) (bool, error) {
	return m.activeInCourse, nil
}

func (m *mockEnrollmentRepo) CountActiveBySection(ctx context.Context, sectionID string) (int, error) {
	return m.activeCount, nil
}

func (m *mockEnrollmentRepo) ListActiveBySection(ctx context.Context, sectionID string) ([]models.EnrollmentDetail, error) {
	return nil, nil
}

func (m *mockEnrollmentRepo) ListByStudent(ctx context.Context, studentID string) ([]models.EnrollmentDetail, error) {
	return nil, nil
}

func (m *mockEnrollmentRepo) Create(ctx context.Context, enrollment *models.Enrollment) error {
	if m.createErr != nil {
		return m.createErr
	}
	if m.enrollments == nil {
		m.enrollments = make(map[string]models.Enrollment)
	}
	if enrollment.ID == "" {
		enrollment.ID = "new-enroll"
	}
	m.enrollments[enrollment.ID] = *enrollment
	m.created = enrollment
	return nil
}

func (m *mockEnrollmentRepo) UpdateStatus(ctx context.Context, id string, status models.EnrollmentStatus, withdrawnAt *time.Time) error {
	if m.status == nil {
		m.status = make(map[string]models.EnrollmentStatus)
	}
	m.status[id] = status
	if e, ok := m.enrollments[id]; ok {
		e.Status = status
		e.WithdrawnAt = withdrawnAt
		m.enrollments[id] = e
	}
	return nil
}

func (m *mockEnrollmentRepo) UpdateFinalGrade(ctx context.Context, id string, grade float64, status models.EnrollmentStatus) error {
	if m.grades == nil {
		m.grades = make(map[string]float64)
	}
	m.grades[id] = grade
	if m.status == nil {
		m.status = make(map[string]models.EnrollmentStatus)
	}
	m.status[id] = status
	if e, ok := m.enrollments[id]; ok {
		e.Status = status
		e.FinalGrade = &grade
		m.enrollments[id] = e
	}
	return nil
}

type mockStudentReader struct {
	users    map[string]*models.User
	profiles map[string]*models.StudentProfile
}

func (m *mockStudentReader) FindByID(ctx context.Context, id string) (*models.User, error) {
	if u, ok := m.users[id]; ok {
		return u, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockStudentReader) FindStudentProfile(ctx context.Context, userID string) (*models.StudentProfile, error) {
	if p, ok := m.profiles[userID]; ok {
		return p, nil
	}
	return nil, sql.ErrNoRows
}

type mockSectionReader struct {
	sections map[string]*models.Section
}

func (m *mockSectionReader) FindByID(ctx context.Context, id string) (*models.Section, error) {
	if s, ok := m.sections[id]; ok {
		return s, nil
	}
	return nil, sql.ErrNoRows
}

type mockBlockReader struct {
	blocks []models.ScheduleBlock
}

func (m *mockBlockReader) ListBySection(ctx context.Context, sectionID string) ([]models.ScheduleBlock, error) {
	return m.blocks, nil
}

type mockStudentScheduleValidator struct {
	err    error
	called bool
}

func (m *mockStudentScheduleValidator) ValidateStudentSchedule(ctx context.Context, studentID string, blocks []models.ScheduleBlock) error {
	m.called = true
	return m.err
}

func testGrading() config.GradingConfig {
	return config.GradingConfig{MinGrade: 0, MaxGrade: 20, PassingGrade: 10.5}
}

func openSection() *models.Section {
	return &models.Section{
		ID:            "sec-1",
		Code:          "SEC-1",
		AcademicLevel: models.LevelPrimary,
		Grade:         "3",
		Capacity:      2,
		StartDate:     dateOnly(time.Now().AddDate(0, 0, -7)),
		EndDate:       dateOnly(time.Now().AddDate(0, 0, 30)),
		Active:        true,
		CourseID:      "course-1",
	}
}

func enrollFixture() (*mockEnrollmentRepo, *mockStudentReader, *mockSectionReader, *mockStudentScheduleValidator, *EnrollmentService) {
	repo := &mockEnrollmentRepo{}
	students := &mockStudentReader{
		users:    map[string]*models.User{"s1": {ID: "s1", Role: models.RoleStudent, Active: true}},
		profiles: map[string]*models.StudentProfile{"s1": {UserID: "s1", AcademicLevel: models.LevelPrimary, Grade: "3"}},
	}
	sections := &mockSectionReader{sections: map[string]*models.Section{"sec-1": openSection()}}
	schedule := &mockStudentScheduleValidator{}
	svc := NewEnrollmentService(repo, students, sections, &mockBlockReader{}, schedule, testGrading(), validator.New(), zap.NewNop())
	return repo, students, sections, schedule, svc
}

func assertCode(t *testing.T, err error, code string) {
	t.Helper()
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, code, appErr.Code)
}

func TestEnrollOK(t *testing.T) {
	repo, _, _, schedule, svc := enrollFixture()

	detail, err := svc.Enroll(context.Background(), EnrollRequest{StudentID: "s1", SectionID: "sec-1"})
	require.NoError(t, err)
	require.NotNil(t, repo.created)
	assert.Equal(t, models.EnrollmentStatusActive, detail.Status)
	assert.True(t, schedule.called)
}

func TestEnrollStudentNotFound(t *testing.T) {
	_, _, _, _, svc := enrollFixture()
	_, err := svc.Enroll(context.Background(), EnrollRequest{StudentID: "ghost", SectionID: "sec-1"})
	assertCode(t, err, appErrors.ErrNotFound.Code)
}

func TestEnrollUserNotAStudent(t *testing.T) {
	_, students, _, _, svc := enrollFixture()
	students.users["t1"] = &models.User{ID: "t1", Role: models.RoleTeacher, Active: true}

	_, err := svc.Enroll(context.Background(), EnrollRequest{StudentID: "t1", SectionID: "sec-1"})
	assertCode(t, err, appErrors.ErrValidation.Code)
}

func TestEnrollMissingProfile(t *testing.T) {
	_, students, _, _, svc := enrollFixture()
	delete(students.profiles, "s1")

	_, err := svc.Enroll(context.Background(), EnrollRequest{StudentID: "s1", SectionID: "sec-1"})
	assertCode(t, err, appErrors.ErrValidation.Code)
}

func TestEnrollInactiveSection(t *testing.T) {
	_, _, sections, _, svc := enrollFixture()
	sections.sections["sec-1"].Active = false

	_, err := svc.Enroll(context.Background(), EnrollRequest{StudentID: "s1", SectionID: "sec-1"})
	assertCode(t, err, appErrors.ErrValidation.Code)
}

func TestEnrollEndedSection(t *testing.T) {
	_, _, sections, _, svc := enrollFixture()
	sections.sections["sec-1"].EndDate = dateOnly(time.Now().AddDate(0, 0, -1))

	_, err := svc.Enroll(context.Background(), EnrollRequest{StudentID: "s1", SectionID: "sec-1"})
	assertCode(t, err, appErrors.ErrValidation.Code)
}

func TestEnrollSectionEndingToday(t *testing.T) {
	// End date of today is still enrollable.
	_, _, sections, _, svc := enrollFixture()
	sections.sections["sec-1"].EndDate = dateOnly(time.Now())

	_, err := svc.Enroll(context.Background(), EnrollRequest{StudentID: "s1", SectionID: "sec-1"})
	assert.NoError(t, err)
}

func TestEnrollDuplicate(t *testing.T) {
	repo, _, _, _, svc := enrollFixture()
	repo.exists = true

	_, err := svc.Enroll(context.Background(), EnrollRequest{StudentID: "s1", SectionID: "sec-1"})
	assertCode(t, err, appErrors.ErrConflict.Code)
}

func TestEnrollActiveElsewhereInCourse(t *testing.T) {
	repo, _, _, _, svc := enrollFixture()
	repo.activeInCourse = true

	_, err := svc.Enroll(context.Background(), EnrollRequest{StudentID: "s1", SectionID: "sec-1"})
	assertCode(t, err, appErrors.ErrConflict.Code)
}

func TestEnrollSectionFull(t *testing.T) {
	repo, _, _, _, svc := enrollFixture()
	repo.activeCount = 2

	_, err := svc.Enroll(context.Background(), EnrollRequest{StudentID: "s1", SectionID: "sec-1"})
	assertCode(t, err, appErrors.ErrSectionFull.Code)
}

func TestEnrollLevelMismatch(t *testing.T) {
	_, students, _, _, svc := enrollFixture()
	students.profiles["s1"].AcademicLevel = models.LevelSecondary

	_, err := svc.Enroll(context.Background(), EnrollRequest{StudentID: "s1", SectionID: "sec-1"})
	assertCode(t, err, appErrors.ErrValidation.Code)
}

func TestEnrollGradeMismatch(t *testing.T) {
	_, students, _, _, svc := enrollFixture()
	students.profiles["s1"].Grade = "4"

	_, err := svc.Enroll(context.Background(), EnrollRequest{StudentID: "s1", SectionID: "sec-1"})
	assertCode(t, err, appErrors.ErrValidation.Code)
}

func TestEnrollScheduleConflict(t *testing.T) {
	_, _, _, schedule, svc := enrollFixture()
	schedule.err = appErrors.Clone(appErrors.ErrScheduleConflict, "student is busy")

	_, err := svc.Enroll(context.Background(), EnrollRequest{StudentID: "s1", SectionID: "sec-1"})
	assertCode(t, err, appErrors.ErrScheduleConflict.Code)
}

func TestEnrollRaceLostOnInsert(t *testing.T) {
	repo, _, _, _, svc := enrollFixture()
	repo.createErr = repository.ErrSectionAtCapacity

	_, err := svc.Enroll(context.Background(), EnrollRequest{StudentID: "s1", SectionID: "sec-1"})
	assertCode(t, err, appErrors.ErrSectionFull.Code)

	repo.createErr = repository.ErrDuplicateEnrollment
	_, err = svc.Enroll(context.Background(), EnrollRequest{StudentID: "s1", SectionID: "sec-1"})
	assertCode(t, err, appErrors.ErrConflict.Code)
}

func TestWithdrawOK(t *testing.T) {
	repo, _, _, _, svc := enrollFixture()
	enrollment := models.Enrollment{ID: "e1", StudentID: "s1", SectionID: "sec-1", Status: models.EnrollmentStatusActive}
	repo.enrollments = map[string]models.Enrollment{"e1": enrollment}
	repo.byPair = map[string]models.Enrollment{"s1/sec-1": enrollment}

	detail, err := svc.Withdraw(context.Background(), WithdrawRequest{StudentID: "s1", SectionID: "sec-1"})
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusWithdrawn, detail.Status)
	assert.NotNil(t, detail.WithdrawnAt)
}

func TestWithdrawNotActive(t *testing.T) {
	repo, _, _, _, svc := enrollFixture()
	enrollment := models.Enrollment{ID: "e1", StudentID: "s1", SectionID: "sec-1", Status: models.EnrollmentStatusWithdrawn}
	repo.enrollments = map[string]models.Enrollment{"e1": enrollment}
	repo.byPair = map[string]models.Enrollment{"s1/sec-1": enrollment}

	_, err := svc.Withdraw(context.Background(), WithdrawRequest{StudentID: "s1", SectionID: "sec-1"})
	assertCode(t, err, appErrors.ErrValidation.Code)
}

func TestWithdrawAfterSectionEnded(t *testing.T) {
	repo, _, sections, _, svc := enrollFixture()
	enrollment := models.Enrollment{ID: "e1", StudentID: "s1", SectionID: "sec-1", Status: models.EnrollmentStatusActive}
	repo.enrollments = map[string]models.Enrollment{"e1": enrollment}
	repo.byPair = map[string]models.Enrollment{"s1/sec-1": enrollment}
	sections.sections["sec-1"].EndDate = dateOnly(time.Now().AddDate(0, 0, -1))

	_, err := svc.Withdraw(context.Background(), WithdrawRequest{StudentID: "s1", SectionID: "sec-1"})
	assertCode(t, err, appErrors.ErrValidation.Code)
}

func TestAssignFinalGradeOutOfRange(t *testing.T) {
	_, _, _, _, svc := enrollFixture()

	_, err := svc.AssignFinalGrade(context.Background(), "e1", FinalGradeRequest{Grade: 21})
	assertCode(t, err, appErrors.ErrValidation.Code)

	_, err = svc.AssignFinalGrade(context.Background(), "e1", FinalGradeRequest{Grade: -1})
	assertCode(t, err, appErrors.ErrValidation.Code)
}

func TestAssignFinalGradeWithdrawn(t *testing.T) {
	repo, _, _, _, svc := enrollFixture()
	repo.enrollments = map[string]models.Enrollment{"e1": {ID: "e1", SectionID: "sec-1", Status: models.EnrollmentStatusWithdrawn}}

	_, err := svc.AssignFinalGrade(context.Background(), "e1", FinalGradeRequest{Grade: 12})
	assertCode(t, err, appErrors.ErrValidation.Code)
}

func TestAssignFinalGradeBeforeEndKeepsStatus(t *testing.T) {
	repo, _, _, _, svc := enrollFixture()
	repo.enrollments = map[string]models.Enrollment{"e1": {ID: "e1", SectionID: "sec-1", Status: models.EnrollmentStatusActive}}

	detail, err := svc.AssignFinalGrade(context.Background(), "e1", FinalGradeRequest{Grade: 8})
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusActive, detail.Status)
	assert.Equal(t, 8.0, repo.grades["e1"])
}

func TestAssignFinalGradeAfterEndCompletes(t *testing.T) {
	repo, _, sections, _, svc := enrollFixture()
	repo.enrollments = map[string]models.Enrollment{"e1": {ID: "e1", SectionID: "sec-1", Status: models.EnrollmentStatusActive}}
	sections.sections["sec-1"].EndDate = dateOnly(time.Now().AddDate(0, 0, -1))

	detail, err := svc.AssignFinalGrade(context.Background(), "e1", FinalGradeRequest{Grade: 10.5})
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusCompleted, detail.Status)
}

func TestAssignFinalGradeAfterEndFails(t *testing.T) {
	repo, _, sections, _, svc := enrollFixture()
	repo.enrollments = map[string]models.Enrollment{"e1": {ID: "e1", SectionID: "sec-1", Status: models.EnrollmentStatusActive}}
	sections.sections["sec-1"].EndDate = dateOnly(time.Now().AddDate(0, 0, -1))

	detail, err := svc.AssignFinalGrade(context.Background(), "e1", FinalGradeRequest{Grade: 10.4})
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusFailed, detail.Status)
}

func TestGradesMatch(t *testing.T) {
	assert.True(t, gradesMatch("3", "3"))
	assert.True(t, gradesMatch("3rd", "Grade 3"))
	assert.True(t, gradesMatch("03", "3"))
	assert.False(t, gradesMatch("3", "4"))
	assert.False(t, gradesMatch("3rd", "Grade 4"))

	assert.True(t, gradesMatch("A", "a"))
	assert.True(t, gradesMatch(" Kinder ", "kinder"))
	assert.False(t, gradesMatch("A", "B"))
}

package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/fundeport/academy-api/internal/models"
)

func testSection() *models.Section {
	return &models.Section{
		Name:          "Primary Math A",
		AcademicLevel: models.LevelPrimary,
		Grade:         "3",
		Capacity:      25,
		StartDate:     time.Date(2026, time.March, 2, 0, 0, 0, 0, time.UTC),
		EndDate:       time.Date(2026, time.June, 1, 0, 0, 0, 0, time.UTC),
		Active:        true,
		CourseID:      "course-1",
		TeacherID:     "t1",
	}
}

func TestSectionRepositoryCreateWithScheduleCommits(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSectionRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT b.id FROM schedule_blocks b JOIN sections s").
		WithArgs("t1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery("SELECT b.section_id, s.code AS section_code").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectExec("INSERT INTO sections").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO schedule_blocks").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO sessions").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	section := testSection()
	blocks := []models.ScheduleBlock{{DayOfWeek: models.Monday, StartTime: "08:00", EndTime: "10:00"}}
	sessions := []models.Session{{SectionID: "", Date: section.StartDate, StartTime: "08:00", EndTime: "10:00"}}

	require.NoError(t, repo.CreateWithSchedule(context.Background(), section, blocks, sessions))
	require.NotEmpty(t, section.ID)
	require.Equal(t, section.ID, blocks[0].SectionID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSectionRepositoryCreateTeacherConflictRollsBack(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSectionRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT b.id FROM schedule_blocks b JOIN sections s").
		WithArgs("t1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("blk-1"))
	mock.ExpectQuery("SELECT b.section_id, s.code AS section_code").
		WillReturnRows(sqlmock.NewRows([]string{"section_id", "section_code", "day_of_week", "start_time", "end_time"}).
			AddRow("sec-9", "SEC-9", "MONDAY", "08:00", "10:00"))
	mock.ExpectRollback()

	blocks := []models.ScheduleBlock{{DayOfWeek: models.Monday, StartTime: "09:00", EndTime: "11:00"}}
	err := repo.CreateWithSchedule(context.Background(), testSection(), blocks, nil)

	var conflictErr *models.ScheduleConflictError
	require.ErrorAs(t, err, &conflictErr)
	require.Equal(t, "TEACHER", conflictErr.Conflict.Dimension)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSectionRepositoryUpdateCapacityGuard(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSectionRepository(db)

	section := testSection()
	section.ID = "sec-1"
	section.Capacity = 10

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM sections WHERE id = $1 FOR UPDATE")).
		WithArgs("sec-1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("sec-1"))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM enrollments WHERE section_id = $1 AND status = $2")).
		WithArgs("sec-1", models.EnrollmentStatusActive).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(15))
	mock.ExpectRollback()

	err := repo.UpdateWithSchedule(context.Background(), section, nil, nil)
	require.ErrorIs(t, err, ErrCapacityBelowEnrollment)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSectionRepositoryUpdateReplacesCalendar(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSectionRepository(db)

	section := testSection()
	section.ID = "sec-1"

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM sections WHERE id = $1 FOR UPDATE")).
		WithArgs("sec-1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("sec-1"))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM enrollments WHERE section_id = $1 AND status = $2")).
		WithArgs("sec-1", models.EnrollmentStatusActive).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(5))
	mock.ExpectQuery("SELECT b.id FROM schedule_blocks b JOIN sections s").
		WithArgs("t1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery("SELECT b.section_id, s.code AS section_code").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectExec("UPDATE sections SET").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM schedule_blocks WHERE section_id").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM sessions WHERE section_id").
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec("INSERT INTO schedule_blocks").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO sessions").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	blocks := []models.ScheduleBlock{{DayOfWeek: models.Tuesday, StartTime: "10:00", EndTime: "12:00"}}
	sessions := []models.Session{{SectionID: "sec-1", Date: section.StartDate, StartTime: "10:00", EndTime: "12:00"}}

	require.NoError(t, repo.UpdateWithSchedule(context.Background(), section, blocks, sessions))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSectionRepositoryDeleteBlockedByEnrollments(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSectionRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM sections WHERE id = $1 FOR UPDATE")).
		WithArgs("sec-1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("sec-1"))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM enrollments WHERE section_id = $1")).
		WithArgs("sec-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectRollback()

	err := repo.Delete(context.Background(), "sec-1")
	require.ErrorIs(t, err, ErrSectionHasEnrollments)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSectionRepositoryDeleteCascades(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSectionRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM sections WHERE id = $1 FOR UPDATE")).
		WithArgs("sec-1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("sec-1"))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM enrollments WHERE section_id = $1")).
		WithArgs("sec-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectExec("DELETE FROM schedule_blocks WHERE section_id").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("DELETE FROM sessions WHERE section_id").
		WillReturnResult(sqlmock.NewResult(0, 12))
	mock.ExpectExec("DELETE FROM sections WHERE id").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Delete(context.Background(), "sec-1"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSectionRepositorySetActiveMissing(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSectionRepository(db)

	mock.ExpectExec("UPDATE sections SET active").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.SetActive(context.Background(), "ghost", false)
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fundeport/academy-api/internal/models"
	appErrors "github.com/fundeport/academy-api/pkg/errors"
)

type mockAttendanceRepo struct {
	records  []models.AttendanceRecord
	upserted []models.AttendanceRecord
}

func (m *mockAttendanceRepo) ListBySession(ctx context.Context, sessionID string) ([]models.AttendanceRecord, error) {
	return m.records, nil
}

func (m *mockAttendanceRepo) Upsert(ctx context.Context, record *models.AttendanceRecord) error {
	m.upserted = append(m.upserted, *record)
	return nil
}

func (m *mockAttendanceRepo) BulkUpsert(ctx context.Context, records []models.AttendanceRecord) error {
	m.upserted = append(m.upserted, records...)
	m.records = append(m.records, records...)
	return nil
}

type mockSessionReader struct {
	sessions map[string]*models.Session
}

func (m *mockSessionReader) FindByID(ctx context.Context, id string) (*models.Session, error) {
	if s, ok := m.sessions[id]; ok {
		return s, nil
	}
	return nil, sql.ErrNoRows
}

type mockRosterReader struct {
	roster []models.EnrollmentDetail
}

func (m *mockRosterReader) ListActiveBySection(ctx context.Context, sectionID string) ([]models.EnrollmentDetail, error) {
	return m.roster, nil
}

func attendanceFixture() (*mockAttendanceRepo, *AttendanceService) {
	repo := &mockAttendanceRepo{}
	sessions := &mockSessionReader{sessions: map[string]*models.Session{
		"sess-1": {ID: "sess-1", SectionID: "sec-1"},
	}}
	roster := &mockRosterReader{roster: []models.EnrollmentDetail{
		{Enrollment: models.Enrollment{StudentID: "s1"}, StudentName: "Ana Lopez"},
		{Enrollment: models.Enrollment{StudentID: "s2"}, StudentName: "Bruno Diaz"},
	}}
	return repo, NewAttendanceService(repo, sessions, roster, validator.New(), zap.NewNop())
}

func TestAttendanceSheetDefaultsToUnrecorded(t *testing.T) {
	repo, svc := attendanceFixture()
	repo.records = []models.AttendanceRecord{{ID: "rec-1", SessionID: "sess-1", StudentID: "s1", Status: models.AttendancePresent}}

	entries, err := svc.ListForSession(context.Background(), "sess-1")
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, models.AttendancePresent, entries[0].Status)
	require.NotNil(t, entries[0].RecordID)
	assert.Equal(t, "rec-1", *entries[0].RecordID)

	assert.Equal(t, models.AttendanceUnrecorded, entries[1].Status)
	assert.Nil(t, entries[1].RecordID)
}

func TestAttendanceSheetUnknownSession(t *testing.T) {
	_, svc := attendanceFixture()
	_, err := svc.ListForSession(context.Background(), "ghost")
	assertCode(t, err, appErrors.ErrNotFound.Code)
}

func TestAttendanceRecordOK(t *testing.T) {
	repo, svc := attendanceFixture()

	record, err := svc.Record(context.Background(), "sess-1", AttendanceEntryRequest{StudentID: "s1", Status: "LATE", Note: "bus"})
	require.NoError(t, err)
	assert.Equal(t, models.AttendanceLate, record.Status)
	require.Len(t, repo.upserted, 1)
	assert.Equal(t, "sess-1", repo.upserted[0].SessionID)
}

func TestAttendanceRecordNotEnrolled(t *testing.T) {
	_, svc := attendanceFixture()

	_, err := svc.Record(context.Background(), "sess-1", AttendanceEntryRequest{StudentID: "stranger", Status: "PRESENT"})
	assertCode(t, err, appErrors.ErrValidation.Code)
}

func TestAttendanceRecordInvalidStatus(t *testing.T) {
	_, svc := attendanceFixture()

	_, err := svc.Record(context.Background(), "sess-1", AttendanceEntryRequest{StudentID: "s1", Status: "NAPPING"})
	assertCode(t, err, appErrors.ErrValidation.Code)
}

func TestAttendanceBulkRecordOK(t *testing.T) {
	repo, svc := attendanceFixture()

	entries, err := svc.BulkRecord(context.Background(), "sess-1", BulkAttendanceRequest{Entries: []AttendanceEntryRequest{
		{StudentID: "s1", Status: "PRESENT"},
		{StudentID: "s2", Status: "ABSENT"},
	}})
	require.NoError(t, err)
	require.Len(t, repo.upserted, 2)
	require.Len(t, entries, 2)
	assert.Equal(t, models.AttendancePresent, entries[0].Status)
	assert.Equal(t, models.AttendanceAbsent, entries[1].Status)
}

func TestAttendanceBulkRecordRejectsOutsider(t *testing.T) {
	repo, svc := attendanceFixture()

	_, err := svc.BulkRecord(context.Background(), "sess-1", BulkAttendanceRequest{Entries: []AttendanceEntryRequest{
		{StudentID: "s1", Status: "PRESENT"},
		{StudentID: "stranger", Status: "PRESENT"},
	}})
	assertCode(t, err, appErrors.ErrValidation.Code)
	assert.Empty(t, repo.upserted)
}

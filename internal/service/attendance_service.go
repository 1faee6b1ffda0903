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

type attendanceRepository interface {
	ListBySession(ctx context.Context, sessionID string) ([]models.AttendanceRecord, error)
	Upsert(ctx context.Context, record *models.AttendanceRecord) error
	BulkUpsert(ctx context.Context, records []models.AttendanceRecord) error
}

type sessionReader interface {
	FindByID(ctx context.Context, id string) (*models.Session, error)
}

type rosterReader interface {
	ListActiveBySection(ctx context.Context, sectionID string) ([]models.EnrollmentDetail, error)
}

// AttendanceEntryRequest is one row of a roster save.
type AttendanceEntryRequest struct {
	StudentID string `json:"student_id" validate:"required"`
	Status    string `json:"status" validate:"required,oneof=PRESENT LATE EXCUSED ABSENT"`
	Note      string `json:"note"`
}

// BulkAttendanceRequest saves a whole roster for one session at once.
type BulkAttendanceRequest struct {
	Entries []AttendanceEntryRequest `json:"entries" validate:"required,min=1,dive"`
}

// AttendanceService records per-session attendance against the section
// roster. Reads merge the ACTIVE roster with saved records, so unrecorded
// students still appear with an UNRECORDED status.
type AttendanceService struct {
	repo      attendanceRepository
	sessions  sessionReader
	roster    rosterReader
	validator *validator.Validate
	logger    *zap.Logger
}

// NewAttendanceService constructs AttendanceService.
func NewAttendanceService(repo attendanceRepository, sessions sessionReader, roster rosterReader, validate *validator.Validate, logger *zap.Logger) *AttendanceService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AttendanceService{repo: repo, sessions: sessions, roster: roster, validator: validate, logger: logger}
}

// ListForSession returns the merged attendance sheet for a session.
func (s *AttendanceService) ListForSession(ctx context.Context, sessionID string) ([]models.AttendanceEntry, error) {
	session, err := s.sessions.FindByID(ctx, sessionID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}

	roster, err := s.roster.ListActiveBySection(ctx, session.SectionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load section roster")
	}
	records, err := s.repo.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance records")
	}

	byStudent := make(map[string]models.AttendanceRecord, len(records))
	for _, r := range records {
		byStudent[r.StudentID] = r
	}

	entries := make([]models.AttendanceEntry, 0, len(roster))
	for _, e := range roster {
		entry := models.AttendanceEntry{
			StudentID:   e.StudentID,
			StudentName: e.StudentName,
			StudentCode: e.StudentCode,
			Status:      models.AttendanceUnrecorded,
		}
		if record, ok := byStudent[e.StudentID]; ok {
			id := record.ID
			entry.RecordID = &id
			entry.Status = record.Status
			entry.Note = record.Note
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Record saves attendance for one student in a session.
func (s *AttendanceService) Record(ctx context.Context, sessionID string, req AttendanceEntryRequest) (*models.AttendanceRecord, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid attendance payload")
	}

	session, err := s.sessions.FindByID(ctx, sessionID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}

	if err := s.requireEnrolled(ctx, session.SectionID, req.StudentID); err != nil {
		return nil, err
	}

	record := &models.AttendanceRecord{
		SessionID: sessionID,
		StudentID: req.StudentID,
		Status:    models.AttendanceStatus(req.Status),
		Note:      req.Note,
	}
	if err := s.repo.Upsert(ctx, record); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save attendance")
	}
	return record, nil
}

// BulkRecord saves a whole roster sheet atomically.
func (s *AttendanceService) BulkRecord(ctx context.Context, sessionID string, req BulkAttendanceRequest) ([]models.AttendanceEntry, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid attendance payload")
	}

	session, err := s.sessions.FindByID(ctx, sessionID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}

	roster, err := s.roster.ListActiveBySection(ctx, session.SectionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load section roster")
	}
	enrolled := make(map[string]bool, len(roster))
	for _, e := range roster {
		enrolled[e.StudentID] = true
	}

	records := make([]models.AttendanceRecord, 0, len(req.Entries))
	for _, entry := range req.Entries {
		if !enrolled[entry.StudentID] {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("student %s is not actively enrolled in this section", entry.StudentID))
		}
		records = append(records, models.AttendanceRecord{
			SessionID: sessionID,
			StudentID: entry.StudentID,
			Status:    models.AttendanceStatus(entry.Status),
			Note:      entry.Note,
		})
	}

	if err := s.repo.BulkUpsert(ctx, records); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save attendance sheet")
	}

	s.logger.Info("attendance sheet saved",
		zap.String("session_id", sessionID),
		zap.Int("entries", len(records)),
	)
	return s.ListForSession(ctx, sessionID)
}

func (s *AttendanceService) requireEnrolled(ctx context.Context, sectionID, studentID string) error {
	roster, err := s.roster.ListActiveBySection(ctx, sectionID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load section roster")
	}
	for _, e := range roster {
		if e.StudentID == studentID {
			return nil
		}
	}
	return appErrors.Clone(appErrors.ErrValidation, "student is not actively enrolled in this section")
}

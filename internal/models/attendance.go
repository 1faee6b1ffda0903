package models

import "time"

// AttendanceStatus enumerates per-session attendance outcomes. UNRECORDED is
// the synthetic default for enrolled students without a saved record.
type AttendanceStatus string

const (
	AttendancePresent    AttendanceStatus = "PRESENT"
	AttendanceLate       AttendanceStatus = "LATE"
	AttendanceExcused    AttendanceStatus = "EXCUSED"
	AttendanceAbsent     AttendanceStatus = "ABSENT"
	AttendanceUnrecorded AttendanceStatus = "UNRECORDED"
)

// AttendanceRecord stores one student's attendance for one session.
type AttendanceRecord struct {
	ID        string           `db:"id" json:"id"`
	SessionID string           `db:"session_id" json:"session_id"`
	StudentID string           `db:"student_id" json:"student_id"`
	Status    AttendanceStatus `db:"status" json:"status"`
	Note      string           `db:"note" json:"note"`
	CreatedAt time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt time.Time        `db:"updated_at" json:"updated_at"`
}

// AttendanceEntry is the merged roster row returned for a session: every
// actively enrolled student, with the saved record when one exists.
type AttendanceEntry struct {
	RecordID    *string          `json:"record_id,omitempty"`
	StudentID   string           `json:"student_id"`
	StudentName string           `json:"student_name"`
	StudentCode string           `json:"student_code"`
	Status      AttendanceStatus `json:"status"`
	Note        string           `json:"note"`
}

package models

import "time"

// EnrollmentStatus enumerates the lifecycle states of an enrollment.
type EnrollmentStatus string

const (
	EnrollmentStatusActive    EnrollmentStatus = "ACTIVE"
	EnrollmentStatusWithdrawn EnrollmentStatus = "WITHDRAWN"
	EnrollmentStatusCompleted EnrollmentStatus = "COMPLETED"
	EnrollmentStatusFailed    EnrollmentStatus = "FAILED"
)

// Enrollment links a student to a section. (student_id, section_id) is unique
// and a student holds at most one ACTIVE enrollment per course across all of
// its sections.
type Enrollment struct {
	ID          string           `db:"id" json:"id"`
	StudentID   string           `db:"student_id" json:"student_id"`
	SectionID   string           `db:"section_id" json:"section_id"`
	Status      EnrollmentStatus `db:"status" json:"status"`
	EnrolledAt  time.Time        `db:"enrolled_at" json:"enrolled_at"`
	WithdrawnAt *time.Time       `db:"withdrawn_at" json:"withdrawn_at,omitempty"`
	FinalGrade  *float64         `db:"final_grade" json:"final_grade,omitempty"`
	Notes       string           `db:"notes" json:"notes"`
}

// EnrollmentDetail adds denormalized display fields for responses.
type EnrollmentDetail struct {
	Enrollment
	StudentName string `db:"student_name" json:"student_name"`
	StudentCode string `db:"student_code" json:"student_code"`
	SectionCode string `db:"section_code" json:"section_code"`
	SectionName string `db:"section_name" json:"section_name"`
	CourseTitle string `db:"course_title" json:"course_title"`
	TeacherName string `db:"teacher_name" json:"teacher_name"`
}

// EnrollmentFilter describes query params for listing enrollments.
type EnrollmentFilter struct {
	StudentID string
	SectionID string
	CourseID  string
	Status    EnrollmentStatus
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

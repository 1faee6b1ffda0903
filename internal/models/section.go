package models

import (
	"fmt"
	"time"
)

// DayOfWeek names follow time.Weekday spelled out in upper case, matching the
// day_of_week column values.
type DayOfWeek string

const (
	Monday    DayOfWeek = "MONDAY"
	Tuesday   DayOfWeek = "TUESDAY"
	Wednesday DayOfWeek = "WEDNESDAY"
	Thursday  DayOfWeek = "THURSDAY"
	Friday    DayOfWeek = "FRIDAY"
	Saturday  DayOfWeek = "SATURDAY"
	Sunday    DayOfWeek = "SUNDAY"
)

var weekdayNames = map[time.Weekday]DayOfWeek{
	time.Monday:    Monday,
	time.Tuesday:   Tuesday,
	time.Wednesday: Wednesday,
	time.Thursday:  Thursday,
	time.Friday:    Friday,
	time.Saturday:  Saturday,
	time.Sunday:    Sunday,
}

// DayOfWeekFor maps a calendar weekday to its column value.
func DayOfWeekFor(w time.Weekday) DayOfWeek {
	return weekdayNames[w]
}

// Valid reports whether the value is one of the seven day names.
func (d DayOfWeek) Valid() bool {
	switch d {
	case Monday, Tuesday, Wednesday, Thursday, Friday, Saturday, Sunday:
		return true
	}
	return false
}

// ScheduleBlock is one weekly recurring time interval owned by a section.
// Times are zero-padded "HH:MM" strings so lexicographic comparison matches
// chronological order, both in Go and in SQL predicates.
type ScheduleBlock struct {
	ID        string    `db:"id" json:"id"`
	SectionID string    `db:"section_id" json:"section_id"`
	DayOfWeek DayOfWeek `db:"day_of_week" json:"day_of_week"`
	StartTime string    `db:"start_time" json:"start_time"`
	EndTime   string    `db:"end_time" json:"end_time"`
}

// TimeRangeValid reports whether start precedes end.
func (b ScheduleBlock) TimeRangeValid() bool {
	return b.StartTime < b.EndTime
}

// Section is a scheduled offering of a course taught by one teacher.
type Section struct {
	ID            string        `db:"id" json:"id"`
	Code          string        `db:"code" json:"code"`
	Name          string        `db:"name" json:"name"`
	AcademicLevel AcademicLevel `db:"academic_level" json:"academic_level"`
	Grade         string        `db:"grade" json:"grade"`
	Classroom     string        `db:"classroom" json:"classroom"`
	Capacity      int           `db:"capacity" json:"capacity"`
	StartDate     time.Time     `db:"start_date" json:"start_date"`
	EndDate       time.Time     `db:"end_date" json:"end_date"`
	Active        bool          `db:"active" json:"active"`
	CourseID      string        `db:"course_id" json:"course_id"`
	TeacherID     string        `db:"teacher_id" json:"teacher_id"`
	CreatedAt     time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time     `db:"updated_at" json:"updated_at"`
}

// InActivePeriod reports whether the given date falls inside the section's
// date range.
func (s *Section) InActivePeriod(today time.Time) bool {
	return !today.Before(s.StartDate) && !today.After(s.EndDate)
}

// SectionDetail enriches a section with joined display fields and the
// computed occupancy counters exposed to clients.
type SectionDetail struct {
	Section
	CourseTitle    string          `db:"course_title" json:"course_title"`
	TeacherName    string          `db:"teacher_name" json:"teacher_name"`
	EnrolledCount  int             `db:"enrolled_count" json:"enrolled_count"`
	AvailableSlots int             `db:"-" json:"available_slots"`
	HasCapacity    bool            `db:"-" json:"has_capacity"`
	InPeriod       bool            `db:"-" json:"is_currently_active"`
	Blocks         []ScheduleBlock `db:"-" json:"schedule_blocks"`
}

// ComputeOccupancy fills the derived counters from capacity and enrollment.
func (d *SectionDetail) ComputeOccupancy(today time.Time) {
	d.AvailableSlots = d.Capacity - d.EnrolledCount
	if d.AvailableSlots < 0 {
		d.AvailableSlots = 0
	}
	d.HasCapacity = d.EnrolledCount < d.Capacity
	d.InPeriod = d.Active && d.InActivePeriod(today)
}

// SectionFilter describes query params for listing sections.
type SectionFilter struct {
	CourseID      string
	TeacherID     string
	AcademicLevel AcademicLevel
	Grade         string
	Active        *bool
	WithCapacity  bool
	Page          int
	PageSize      int
	SortBy        string
	SortOrder     string
}

// ScheduleConflict describes an existing block that collides with a proposed
// one, carrying enough detail for the boundary layer to render a message.
type ScheduleConflict struct {
	SectionID   string    `db:"section_id" json:"section_id"`
	SectionCode string    `db:"section_code" json:"section_code"`
	DayOfWeek   DayOfWeek `db:"day_of_week" json:"day_of_week"`
	StartTime   string    `db:"start_time" json:"start_time"`
	EndTime     string    `db:"end_time" json:"end_time"`
	Dimension   string    `db:"-" json:"dimension"`
}

// ScheduleConflictError is returned when a proposed schedule collides with an
// existing one.
type ScheduleConflictError struct {
	Type     string           `json:"type"`
	Message  string           `json:"message"`
	Conflict ScheduleConflict `json:"conflict"`
}

// Error implements the error interface for conflict errors.
func (e *ScheduleConflictError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return e.Message
}

// Describe renders the colliding slot, e.g. "TUESDAY 10:00-11:00".
func (c ScheduleConflict) Describe() string {
	return fmt.Sprintf("%s %s-%s", c.DayOfWeek, c.StartTime, c.EndTime)
}

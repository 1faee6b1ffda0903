package service

import (
	"sort"
	"time"

	"github.com/fundeport/academy-api/internal/models"
)

// BlocksOverlap reports whether two weekly schedule blocks collide: same day
// of week and a positive-length shared sub-interval. Endpoints are half-open,
// so a block ending exactly when another starts does not overlap it.
//
// Times are zero-padded "HH:MM" strings, so string comparison is
// chronological. Both blocks are assumed to satisfy start < end.
func BlocksOverlap(a, b models.ScheduleBlock) bool {
	if a.DayOfWeek != b.DayOfWeek {
		return false
	}
	return a.StartTime < b.EndTime && a.EndTime > b.StartTime
}

// GenerateSessions expands a section's date range and weekly schedule blocks
// into the concrete dated class sessions. For every calendar date in
// [StartDate, EndDate] and every block falling on that weekday, one session
// is emitted carrying the block's times and an empty topic.
//
// The function performs no I/O; persisting (and deleting, on regeneration)
// the result is the caller's job. Output is ordered by date ascending, then
// start time ascending.
func GenerateSessions(section models.Section, blocks []models.ScheduleBlock) []models.Session {
	if len(blocks) == 0 {
		return nil
	}

	byDay := make(map[models.DayOfWeek][]models.ScheduleBlock, len(blocks))
	for _, b := range blocks {
		byDay[b.DayOfWeek] = append(byDay[b.DayOfWeek], b)
	}

	var sessions []models.Session
	for d := section.StartDate; !d.After(section.EndDate); d = d.AddDate(0, 0, 1) {
		for _, b := range byDay[models.DayOfWeekFor(d.Weekday())] {
			sessions = append(sessions, models.Session{
				SectionID: section.ID,
				Date:      d,
				StartTime: b.StartTime,
				EndTime:   b.EndTime,
			})
		}
	}

	sort.Slice(sessions, func(i, j int) bool {
		if !sessions[i].Date.Equal(sessions[j].Date) {
			return sessions[i].Date.Before(sessions[j].Date)
		}
		return sessions[i].StartTime < sessions[j].StartTime
	})

	return sessions
}

// validTimeOfDay reports whether the value is a zero-padded "HH:MM" clock
// time. Repository predicates compare these as strings, so the format is
// enforced before anything touches storage.
func validTimeOfDay(v string) bool {
	if len(v) != 5 || v[2] != ':' {
		return false
	}
	_, err := time.Parse("15:04", v)
	return err == nil
}

// dateOnly truncates a timestamp to UTC midnight so date comparisons ignore
// the time component.
func dateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

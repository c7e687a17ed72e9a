package model

import "time"

const (
	// DateLayout is the ISO calendar date used on the wire and in storage.
	DateLayout = "2006-01-02"
	// shortLayout is the day + abbreviated month form shown on task cards.
	shortLayout = "02 Jan"
	// UnscheduledLabel is displayed for tasks without a due date.
	UnscheduledLabel = "unscheduled"
)

// DateOnly truncates t to midnight UTC of its calendar date.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// WallUTC keeps the wall clock reading of t and relabels it as UTC, putting
// an instant on the same axis as the UTC-midnight calendar dates.
func WallUTC(t time.Time) time.Time {
	y, m, d := t.Date()
	hh, mm, ss := t.Clock()
	return time.Date(y, m, d, hh, mm, ss, t.Nanosecond(), time.UTC)
}

// AddDays returns the calendar date n days after t.
func AddDays(t time.Time, n int) time.Time {
	return DateOnly(t).AddDate(0, 0, n)
}

// ShortLabel renders a date for display ("10 Jan"). A nil date renders as
// UnscheduledLabel.
func ShortLabel(t *time.Time) string {
	if t == nil {
		return UnscheduledLabel
	}
	return t.Format(shortLayout)
}

func isoOrEmpty(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(DateLayout)
}

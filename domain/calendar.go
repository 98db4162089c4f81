package domain

import "time"

// WindowDays is the size of the day strip shown around the selected date:
// three days before, the selection, three days after.
const WindowDays = 7

// Calendar tracks the selected day of the task list. It is a pure state
// holder: no I/O, and day arithmetic stays within the location of the
// selected date.
type Calendar struct {
	selected time.Time
}

// NewCalendar returns a calendar selecting the given instant.
func NewCalendar(selected time.Time) *Calendar {
	return &Calendar{selected: selected}
}

// SelectedDate returns the currently selected instant.
func (c *Calendar) SelectedDate() time.Time {
	return c.selected
}

// SelectDate moves the selection to the given instant.
func (c *Calendar) SelectDate(t time.Time) {
	c.selected = t
}

// GoToPreviousDay moves the selection back one whole day.
func (c *Calendar) GoToPreviousDay() {
	c.selected = c.selected.AddDate(0, 0, -1)
}

// GoToNextDay moves the selection forward one whole day.
func (c *Calendar) GoToNextDay() {
	c.selected = c.selected.AddDate(0, 0, 1)
}

// Window recomputes the day strip centered on the selection.
func (c *Calendar) Window() []time.Time {
	days := make([]time.Time, 0, WindowDays)
	for i := -WindowDays / 2; i <= WindowDays/2; i++ {
		days = append(days, c.selected.AddDate(0, 0, i))
	}
	return days
}

// SameDay reports whether two instants fall on the same calendar day,
// ignoring time of day. The comparison uses calendar year and day of year in
// each instant's own location.
func SameDay(a, b time.Time) bool {
	return a.Year() == b.Year() && a.YearDay() == b.YearDay()
}

// SameDayMillis is SameDay over unix-millisecond timestamps, interpreted in
// the given location.
func SameDayMillis(a, b int64, loc *time.Location) bool {
	return SameDay(time.UnixMilli(a).In(loc), time.UnixMilli(b).In(loc))
}

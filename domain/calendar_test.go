package domain

import (
	"testing"
	"time"
)

func TestCalendarDayNavigationRoundTrip(t *testing.T) {
	start := time.Date(2024, 3, 1, 14, 30, 0, 0, time.UTC)
	c := NewCalendar(time.Now())
	c.SelectDate(start)

	c.GoToNextDay()
	if got := c.SelectedDate(); !got.Equal(start.AddDate(0, 0, 1)) {
		t.Fatalf("after next day: got %v", got)
	}
	c.GoToPreviousDay()
	if got := c.SelectedDate(); !got.Equal(start) {
		t.Fatalf("round trip did not restore selection: got %v, want %v", got, start)
	}
}

func TestCalendarWindowCentersOnSelection(t *testing.T) {
	sel := time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)
	c := NewCalendar(sel)

	for step := 0; step < 3; step++ {
		days := c.Window()
		if len(days) != WindowDays {
			t.Fatalf("window length = %d, want %d", len(days), WindowDays)
		}
		for i, d := range days {
			want := c.SelectedDate().AddDate(0, 0, i-3)
			if !SameDay(d, want) {
				t.Fatalf("window[%d] = %v, want same day as %v", i, d, want)
			}
		}
		c.GoToNextDay()
	}
}

func TestSameDay(t *testing.T) {
	late := time.Date(2024, 3, 1, 23, 59, 0, 0, time.UTC)
	early := time.Date(2024, 3, 1, 0, 1, 0, 0, time.UTC)
	next := time.Date(2024, 3, 2, 0, 1, 0, 0, time.UTC)

	if !SameDay(late, early) {
		t.Fatal("same day, different times: want true")
	}
	if SameDay(late, next) {
		t.Fatal("adjacent days two minutes apart: want false")
	}
	if !SameDayMillis(late.UnixMilli(), early.UnixMilli(), time.UTC) {
		t.Fatal("SameDayMillis disagrees with SameDay")
	}
}

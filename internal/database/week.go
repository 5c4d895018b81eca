package database

import (
	"fmt"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

// WeekID returns the ISO week id ("2026-W42") containing t, in t's location.
func WeekID(t time.Time) string {
	year, week := t.ISOWeek()
	return fmt.Sprintf("%04d-W%02d", year, week)
}

// PreviousWeekID returns the ISO week id of the week before the one containing now.
func PreviousWeekID(now time.Time, loc *time.Location) string {
	return WeekID(now.In(loc).AddDate(0, 0, -7))
}

// MakeRangeID creates a window id from inclusive start and end dates.
// If start == end, returns just the date.
func MakeRangeID(start, end string) string {
	if start == end {
		return start
	}
	return start + ".." + end
}

// ResolveWindow turns a window id into a half-open [start, end) time range
// in loc. Accepted forms: "2026-W42", "2026-10-12..2026-10-18" (inclusive
// dates) and a single "2026-10-12".
func ResolveWindow(id string, loc *time.Location) (time.Time, time.Time, error) {
	if strings.Contains(id, "-W") {
		return isoWeekRange(id, loc)
	}

	startStr, endStr := id, id
	if strings.Contains(id, "..") {
		parts := strings.SplitN(id, "..", 2)
		startStr, endStr = parts[0], parts[1]
	}
	start, err := time.ParseInLocation(dateLayout, startStr, loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid window %q: %w", id, err)
	}
	end, err := time.ParseInLocation(dateLayout, endStr, loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid window %q: %w", id, err)
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid window %q: end before start", id)
	}
	return start, end.AddDate(0, 0, 1), nil
}

func isoWeekRange(id string, loc *time.Location) (time.Time, time.Time, error) {
	var year, week int
	if _, err := fmt.Sscanf(id, "%4d-W%2d", &year, &week); err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid week %q: %w", id, err)
	}
	if week < 1 || week > 53 {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid week %q: week out of range", id)
	}
	// January 4th is always in ISO week 1.
	jan4 := time.Date(year, time.January, 4, 0, 0, 0, 0, loc)
	offset := (int(jan4.Weekday()) + 6) % 7
	start := jan4.AddDate(0, 0, -offset+(week-1)*7)
	if y, w := start.ISOWeek(); y != year || w != week {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid week %q: %d has no week %d", id, year, week)
	}
	return start, start.AddDate(0, 0, 7), nil
}

// FormatWindowDisplay formats a window id for human-readable display.
// Week: "Oct 12 - Oct 18, 2026 (W42)". Range: "Oct 01 - Oct 06, 2026".
func FormatWindowDisplay(id string) string {
	start, end, err := ResolveWindow(id, time.UTC)
	if err != nil {
		return id
	}
	last := end.AddDate(0, 0, -1)
	var out string
	if start.Equal(last) {
		out = start.Format("Jan 02, 2006")
	} else {
		out = fmt.Sprintf("%s - %s", start.Format("Jan 02"), last.Format("Jan 02, 2006"))
	}
	if i := strings.Index(id, "-W"); i >= 0 {
		out += " (" + id[i+1:] + ")"
	}
	return out
}

package appointments

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"
)

const (
	openingHour = 11
	closingHour = 18
)

// IsValidSlot reports whether t falls on Monday-Friday between 11:00
// (inclusive) and 18:00 (exclusive), read in t's own location.
func IsValidSlot(t time.Time) bool {
	switch t.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	hour := t.Hour()
	return hour >= openingHour && hour < closingHour
}

// ParseSlot combines a "2006-01-02" date and "15:04" clock string into a
// timestamp in loc.
func ParseSlot(date, clock string, loc *time.Location) (time.Time, error) {
	date = strings.TrimSpace(date)
	clock = strings.TrimSpace(clock)
	if date == "" || clock == "" {
		return time.Time{}, fmt.Errorf("appointments: date and time are both required")
	}
	if loc == nil {
		loc = time.UTC
	}
	for _, layout := range []string{"2006-01-02 15:04", "2006-01-02 15:04:05", "2006-01-02 3:04 PM", "2006-01-02 3:04PM"} {
		if t, err := time.ParseInLocation(layout, date+" "+strings.ToUpper(clock), loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("appointments: cannot parse slot %q %q", date, clock)
}

// Location resolves a business timezone name, falling back to UTC.
func Location(name string) *time.Location {
	if strings.TrimSpace(name) == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

package timetable

import (
	"encoding/json"
	"strings"
	"time"

	"attendly/internal/apperr"
)

// Weekday is the day a recurring slot takes place on.
type Weekday string

const (
	Monday    Weekday = "MONDAY"
	Tuesday   Weekday = "TUESDAY"
	Wednesday Weekday = "WEDNESDAY"
	Thursday  Weekday = "THURSDAY"
	Friday    Weekday = "FRIDAY"
	Saturday  Weekday = "SATURDAY"
	Sunday    Weekday = "SUNDAY"
)

var weekdays = [...]Weekday{Sunday, Monday, Tuesday, Wednesday, Thursday, Friday, Saturday}

// ParseWeekday accepts a day name in any case.
func ParseWeekday(s string) (Weekday, error) {
	d := Weekday(strings.ToUpper(strings.TrimSpace(s)))
	if !d.Valid() {
		return "", apperr.Field("dayOfWeek", "invalid day of week: "+s)
	}
	return d, nil
}

// WeekdayOf returns the weekday of a calendar date.
func WeekdayOf(t time.Time) Weekday {
	return weekdays[t.Weekday()]
}

func (d Weekday) Valid() bool {
	for _, w := range weekdays {
		if d == w {
			return true
		}
	}
	return false
}

func (d *Weekday) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return apperr.Field("dayOfWeek", "day of week must be a string")
	}
	parsed, err := ParseWeekday(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

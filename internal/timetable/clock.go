package timetable

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"attendly/internal/apperr"
)

// Clock is a wall-clock time of day with minute precision and no zone,
// stored as minutes since midnight. 24:00 is accepted as an end of day.
type Clock int

const endOfDay Clock = 24 * 60

// ParseClock parses HH:MM or HH:MM:SS; seconds must be zero.
func ParseClock(s string) (Clock, error) {
	s = strings.TrimSpace(s)
	if s == "24:00" || s == "24:00:00" {
		return endOfDay, nil
	}
	for _, layout := range []string{"15:04", "15:04:05"} {
		t, err := time.Parse(layout, s)
		if err != nil {
			continue
		}
		if t.Second() != 0 {
			return 0, fmt.Errorf("invalid time %q, minute precision only", s)
		}
		return Clock(t.Hour()*60 + t.Minute()), nil
	}
	return 0, fmt.Errorf("invalid time %q, want HH:MM", s)
}

// MustClock is ParseClock for literals.
func MustClock(s string) Clock {
	c, err := ParseClock(s)
	if err != nil {
		panic(err)
	}
	return c
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

func (c Clock) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

func (c *Clock) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return apperr.Validation("time must be an HH:MM string")
	}
	parsed, err := ParseClock(s)
	if err != nil {
		return apperr.Validation(err.Error())
	}
	*c = parsed
	return nil
}

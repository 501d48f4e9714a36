package timetable

import (
	"attendly/internal/apperr"
)

// Interval is a half-open time range [Start, End) on one weekday. ID and
// Label identify the slot it belongs to when reporting a collision.
type Interval struct {
	ID    string
	Label string
	Start Clock
	End   Clock
}

func (i Interval) String() string {
	return i.Start.String() + " - " + i.End.String()
}

// Overlaps reports whether two half-open intervals share any instant.
// Back-to-back intervals (a.End == b.Start) do not overlap.
func Overlaps(a, b Interval) bool {
	return a.Start < b.End && a.End > b.Start
}

// Accepts decides whether candidate may be placed among existing intervals
// of the same class and weekday. The interval whose ID equals excludeID is
// ignored so an update is not checked against itself.
func Accepts(candidate Interval, existing []Interval, excludeID string) error {
	if candidate.End <= candidate.Start {
		return apperr.Field("endTime", "End time must be after start time")
	}
	for _, other := range existing {
		if excludeID != "" && other.ID == excludeID {
			continue
		}
		if Overlaps(candidate, other) {
			return apperr.Conflictf("Time slot overlaps with existing slot: %s (%s)", other.Label, other)
		}
	}
	return nil
}

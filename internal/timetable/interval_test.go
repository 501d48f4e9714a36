package timetable

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"

	"attendly/internal/apperr"
)

func iv(id, start, end string) Interval {
	return Interval{ID: id, Label: id, Start: MustClock(start), End: MustClock(end)}
}

func TestAccepts(t *testing.T) {
	existing := []Interval{iv("math", "09:00", "10:00"), iv("physics", "11:00", "12:00")}

	tests := []struct {
		name      string
		candidate Interval
		exclude   string
		wantKind  apperr.Kind
		wantOK    bool
	}{
		{name: "free gap", candidate: iv("x", "10:00", "11:00"), wantOK: true},
		{name: "back to back before", candidate: iv("x", "08:00", "09:00"), wantOK: true},
		{name: "back to back after", candidate: iv("x", "12:00", "13:00"), wantOK: true},
		{name: "partial overlap", candidate: iv("x", "09:30", "10:30"), wantKind: apperr.KindConflict},
		{name: "contained", candidate: iv("x", "09:15", "09:45"), wantKind: apperr.KindConflict},
		{name: "containing", candidate: iv("x", "08:00", "13:00"), wantKind: apperr.KindConflict},
		{name: "identical", candidate: iv("x", "11:00", "12:00"), wantKind: apperr.KindConflict},
		{name: "zero length", candidate: iv("x", "10:00", "10:00"), wantKind: apperr.KindValidation},
		{name: "reversed", candidate: iv("x", "10:30", "10:00"), wantKind: apperr.KindValidation},
		{name: "update excludes itself", candidate: iv("math", "09:00", "10:30"), exclude: "math", wantOK: true},
		{name: "update still hits others", candidate: iv("math", "09:00", "11:30"), exclude: "math", wantKind: apperr.KindConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Accepts(tt.candidate, existing, tt.exclude)
			if tt.wantOK {
				assert.NoError(t, err)
				return
			}
			assert.Equal(t, tt.wantKind, apperr.KindOf(err))
		})
	}
}

func TestAcceptsNamesCollidingSlot(t *testing.T) {
	err := Accepts(iv("x", "09:30", "10:30"), []Interval{{ID: "a", Label: "Mathematics", Start: MustClock("09:00"), End: MustClock("10:00")}}, "")
	assert.EqualError(t, err, "Time slot overlaps with existing slot: Mathematics (09:00 - 10:00)")
}

// Every set built by accepting candidates one at a time is pairwise
// non-overlapping, and every rejected candidate overlaps something accepted.
func TestAcceptsProperty(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for round := 0; round < 200; round++ {
		var accepted []Interval
		for i := 0; i < 20; i++ {
			start := Clock(rng.Intn(24*60 - 1))
			end := start + Clock(1+rng.Intn(180))
			if end > endOfDay {
				end = endOfDay
			}
			cand := Interval{ID: string(rune('a' + i)), Start: start, End: end}

			overlapsAny := false
			for _, a := range accepted {
				if a.Start < cand.End && a.End > cand.Start {
					overlapsAny = true
				}
			}
			err := Accepts(cand, accepted, "")
			if overlapsAny {
				assert.Error(t, err)
				continue
			}
			if assert.NoError(t, err) {
				accepted = append(accepted, cand)
			}
		}
		for i := range accepted {
			for j := range accepted {
				if i != j {
					assert.False(t, Overlaps(accepted[i], accepted[j]))
				}
			}
		}
	}
}

func TestParseClock(t *testing.T) {
	tests := []struct {
		in      string
		want    Clock
		wantErr bool
	}{
		{in: "09:00", want: 540},
		{in: "9:05", want: 545},
		{in: "23:59:00", want: 1439},
		{in: "24:00", want: 1440},
		{in: "10:00:30", wantErr: true},
		{in: "25:00", wantErr: true},
		{in: "ten", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseClock(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
	assert.Equal(t, "07:05", Clock(425).String())
}

func TestParseWeekday(t *testing.T) {
	d, err := ParseWeekday("monday")
	assert.NoError(t, err)
	assert.Equal(t, Monday, d)

	_, err = ParseWeekday("FUNDAY")
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

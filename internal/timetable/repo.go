package timetable

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned by a Repository when no slot has the id.
	ErrNotFound = errors.New("slot not found")
	// ErrOverlap is returned when the store's own non-overlap constraint rejects a write.
	ErrOverlap = errors.New("slot overlaps an active slot")
)

// Filter selects slots. Empty fields are not filtered on.
type Filter struct {
	ClassID         string
	TeacherID       string
	Day             Weekday
	IncludeInactive bool
}

// Repository persists slots. Atomic runs fn against a repository bound to a
// single unit of work that commits only if fn returns nil.
type Repository interface {
	Get(ctx context.Context, id string) (Slot, error)
	Insert(ctx context.Context, s Slot) (Slot, error)
	Update(ctx context.Context, s Slot) (Slot, error)
	SetActive(ctx context.Context, id string, active bool, at time.Time) error
	List(ctx context.Context, f Filter) ([]Slot, error)
	// LockDay serialises writers of one class's weekday until the unit of work ends.
	LockDay(ctx context.Context, classID string, day Weekday) error
	Atomic(ctx context.Context, fn func(Repository) error) error
}

var dayOrder = map[Weekday]int{
	Monday: 0, Tuesday: 1, Wednesday: 2, Thursday: 3, Friday: 4, Saturday: 5, Sunday: 6,
}

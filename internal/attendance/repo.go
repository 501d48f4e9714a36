package attendance

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when no record has the requested key.
	ErrNotFound = errors.New("attendance record not found")
	// ErrDuplicate is returned by Insert when a record with the same key
	// already exists.
	ErrDuplicate = errors.New("attendance record already exists")
)

// Repository persists attendance records. Atomic runs fn against a
// repository bound to a single unit of work.
type Repository interface {
	FindByKey(ctx context.Context, k Key) (Record, error)
	Insert(ctx context.Context, r Record) (Record, error)
	// Update overwrites status, remarks and marker of the record with r's key.
	Update(ctx context.Context, r Record) (Record, error)
	// ListByStudent returns a student's records ordered by date, optionally
	// bounded by an inclusive date range.
	ListByStudent(ctx context.Context, studentID string, from, to *Date) ([]Record, error)
	ListBySlotDate(ctx context.Context, slotID string, date Date) ([]Record, error)
	Atomic(ctx context.Context, fn func(Repository) error) error
}

package otp

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when no usable challenge matches.
	ErrNotFound = errors.New("otp challenge not found")
	// ErrCodeTaken is returned by Replace when another challenge holds the code.
	ErrCodeTaken = errors.New("otp code already in use")
)

// Repository persists challenges. Implementations keep one row per
// (user, user type, purpose) and a unique code across all rows.
type Repository interface {
	// Replace stores c as the only challenge of its subject and purpose,
	// discarding whatever was there before.
	Replace(ctx context.Context, c Challenge) (Challenge, error)
	// FindByCode returns the unexpired challenge holding code. Verified
	// challenges are skipped unless includeVerified is set. Inside Atomic the
	// row stays locked until the unit of work ends.
	FindByCode(ctx context.Context, code string, now time.Time, includeVerified bool) (Challenge, error)
	MarkVerified(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
	Atomic(ctx context.Context, fn func(Repository) error) error
}

package timetable

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"attendly/internal/apperr"
	"attendly/internal/directory"
	"attendly/internal/metrics"
)

// Directory is the part of the entity directory the registry needs.
type Directory interface {
	ResolveClass(ctx context.Context, id string) (directory.Class, error)
	ResolveTeacher(ctx context.Context, id string) (directory.TeacherInfo, error)
}

// Service owns the lifecycle of timetable slots.
type Service struct {
	repo Repository
	dir  Directory
	log  *zap.Logger
	now  func() time.Time
}

// NewService creates a registry backed by a repository.
func NewService(repo Repository, dir Directory, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{repo: repo, dir: dir, log: logger, now: func() time.Time { return time.Now().UTC() }}
}

// CreateSlot schedules a new slot after checking it against the active
// slots of the same class and weekday.
func (s *Service) CreateSlot(ctx context.Context, scope Scope, in SlotInput) (Slot, error) {
	if err := in.normalize(); err != nil {
		return Slot{}, err
	}
	class, err := s.dir.ResolveClass(ctx, in.ClassID)
	if err != nil {
		return Slot{}, err
	}
	if class.OwnerID != scope.AdminID {
		return Slot{}, apperr.NotFound("Class", in.ClassID)
	}
	teacher, err := s.dir.ResolveTeacher(ctx, in.TeacherID)
	if err != nil {
		return Slot{}, err
	}

	now := s.now()
	slot := Slot{
		ClassID:     in.ClassID,
		Subject:     in.Subject,
		TeacherID:   teacher.ID,
		TeacherName: teacher.Name,
		Day:         in.Day,
		Start:       in.Start,
		End:         in.End,
		Room:        in.Room,
		Notes:       in.Notes,
		Active:      true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	var created Slot
	err = s.repo.Atomic(ctx, func(repo Repository) error {
		if err := s.checkConflicts(ctx, repo, slot, ""); err != nil {
			return err
		}
		var err error
		created, err = repo.Insert(ctx, slot)
		return err
	})
	if err != nil {
		return Slot{}, s.writeFailed("create", err)
	}
	metrics.SlotWrites.WithLabelValues("create").Inc()
	s.log.Info("slot created",
		zap.String("slot_id", created.ID),
		zap.String("class_id", created.ClassID),
		zap.String("day", string(created.Day)),
		zap.Stringer("start", created.Start),
		zap.Stringer("end", created.End))
	return created, nil
}

// UpdateSlot replaces a slot's fields in place and re-validates it against
// the active slots of its (possibly new) class and weekday, ignoring itself.
func (s *Service) UpdateSlot(ctx context.Context, scope Scope, id string, in SlotInput) (Slot, error) {
	if err := in.normalize(); err != nil {
		return Slot{}, err
	}

	var updated Slot
	err := s.repo.Atomic(ctx, func(repo Repository) error {
		cur, err := s.ownedSlot(ctx, repo, scope, id, "Unauthorized to modify this timetable")
		if err != nil {
			return err
		}
		if in.ClassID != cur.ClassID {
			if err := s.AuthorizeClass(ctx, scope, in.ClassID); err != nil {
				return err
			}
		}

		next := cur
		if in.TeacherID != cur.TeacherID || cur.TeacherName == "" {
			teacher, err := s.dir.ResolveTeacher(ctx, in.TeacherID)
			if err != nil {
				return err
			}
			next.TeacherID, next.TeacherName = teacher.ID, teacher.Name
		}
		next.ClassID = in.ClassID
		next.Subject = in.Subject
		next.Day = in.Day
		next.Start, next.End = in.Start, in.End
		next.Room, next.Notes = in.Room, in.Notes
		next.UpdatedAt = s.now()

		if err := s.checkConflicts(ctx, repo, next, cur.ID); err != nil {
			return err
		}
		updated, err = repo.Update(ctx, next)
		return err
	})
	if err != nil {
		return Slot{}, s.writeFailed("update", err)
	}
	metrics.SlotWrites.WithLabelValues("update").Inc()
	s.log.Info("slot updated", zap.String("slot_id", updated.ID), zap.String("class_id", updated.ClassID))
	return updated, nil
}

// DeleteSlot soft-deletes a slot. Deleting an already inactive slot is a no-op.
func (s *Service) DeleteSlot(ctx context.Context, scope Scope, id string) error {
	err := s.repo.Atomic(ctx, func(repo Repository) error {
		cur, err := s.ownedSlot(ctx, repo, scope, id, "Unauthorized to delete this timetable")
		if err != nil {
			return err
		}
		if !cur.Active {
			return nil
		}
		return repo.SetActive(ctx, cur.ID, false, s.now())
	})
	if err != nil {
		return s.writeFailed("delete", err)
	}
	metrics.SlotWrites.WithLabelValues("delete").Inc()
	s.log.Info("slot deleted", zap.String("slot_id", id))
	return nil
}

// GetSlot returns a slot whether or not it is active, so historical
// attendance stays resolvable.
func (s *Service) GetSlot(ctx context.Context, id string) (Slot, error) {
	slot, err := s.repo.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return Slot{}, apperr.NotFound("Timetable slot", id)
	}
	return slot, err
}

// AuthorizeClass checks that the class exists and belongs to scope. A
// missing class is NotFound; another admin's class is Unauthorized.
func (s *Service) AuthorizeClass(ctx context.Context, scope Scope, classID string) error {
	class, err := s.dir.ResolveClass(ctx, classID)
	if err != nil {
		return err
	}
	if class.OwnerID != scope.AdminID {
		return apperr.Unauthorized("Unauthorized to access this class")
	}
	return nil
}

// ListByClass returns a class's active slots, or all of them with includeInactive.
func (s *Service) ListByClass(ctx context.Context, classID string, includeInactive bool) ([]Slot, error) {
	return s.repo.List(ctx, Filter{ClassID: classID, IncludeInactive: includeInactive})
}

// ListByClassDay returns a class's active slots on one weekday.
func (s *Service) ListByClassDay(ctx context.Context, classID string, day Weekday) ([]Slot, error) {
	if !day.Valid() {
		return nil, apperr.Field("dayOfWeek", "invalid day of week")
	}
	return s.repo.List(ctx, Filter{ClassID: classID, Day: day})
}

// ListByTeacher returns the active slots a teacher takes.
func (s *Service) ListByTeacher(ctx context.Context, teacherID string) ([]Slot, error) {
	return s.repo.List(ctx, Filter{TeacherID: teacherID})
}

// ListByTeacherDay returns the active slots a teacher takes on one weekday.
func (s *Service) ListByTeacherDay(ctx context.Context, teacherID string, day Weekday) ([]Slot, error) {
	if !day.Valid() {
		return nil, apperr.Field("dayOfWeek", "invalid day of week")
	}
	return s.repo.List(ctx, Filter{TeacherID: teacherID, Day: day})
}

func (s *Service) ownedSlot(ctx context.Context, repo Repository, scope Scope, id, denied string) (Slot, error) {
	cur, err := repo.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return Slot{}, apperr.NotFound("Timetable slot", id)
	}
	if err != nil {
		return Slot{}, err
	}
	if err := s.AuthorizeClass(ctx, scope, cur.ClassID); err != nil {
		if apperr.Is(err, apperr.KindAuthorization) {
			return Slot{}, apperr.Unauthorized(denied)
		}
		return Slot{}, err
	}
	return cur, nil
}

// checkConflicts takes the class/day lock and runs the validator against
// the active slots already scheduled there.
func (s *Service) checkConflicts(ctx context.Context, repo Repository, slot Slot, excludeID string) error {
	if slot.End <= slot.Start {
		return Accepts(slot.Interval(), nil, excludeID)
	}
	if err := repo.LockDay(ctx, slot.ClassID, slot.Day); err != nil {
		return err
	}
	existing, err := repo.List(ctx, Filter{ClassID: slot.ClassID, Day: slot.Day})
	if err != nil {
		return err
	}
	intervals := make([]Interval, 0, len(existing))
	for _, e := range existing {
		intervals = append(intervals, e.Interval())
	}
	return Accepts(slot.Interval(), intervals, excludeID)
}

func (s *Service) writeFailed(op string, err error) error {
	if errors.Is(err, ErrOverlap) {
		err = apperr.Conflictf("Time slot overlaps with an existing slot")
	}
	if apperr.Is(err, apperr.KindConflict) {
		metrics.SlotConflicts.Inc()
		s.log.Info("slot rejected", zap.String("op", op), zap.String("reason", err.Error()))
		return err
	}
	if apperr.KindOf(err) == apperr.KindInternal {
		return errors.Wrapf(err, "%s slot", op)
	}
	return err
}

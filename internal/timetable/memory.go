package timetable

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory is an in-process Repository. It keeps the same non-overlap
// constraint as the Postgres schema; Atomic holds the store lock for the
// whole unit of work and restores a snapshot when fn fails.
type Memory struct {
	mu    sync.Mutex
	slots map[string]Slot
}

func NewMemory() *Memory {
	return &Memory{slots: make(map[string]Slot)}
}

func (m *Memory) Atomic(ctx context.Context, fn func(Repository) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	snapshot := make(map[string]Slot, len(m.slots))
	for k, v := range m.slots {
		snapshot[k] = v
	}
	if err := fn(memTx{m}); err != nil {
		m.slots = snapshot
		return err
	}
	return nil
}

func (m *Memory) LockDay(context.Context, string, Weekday) error { return nil }

func (m *Memory) Get(ctx context.Context, id string) (Slot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return memTx{m}.Get(ctx, id)
}

func (m *Memory) Insert(ctx context.Context, s Slot) (Slot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return memTx{m}.Insert(ctx, s)
}

func (m *Memory) Update(ctx context.Context, s Slot) (Slot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return memTx{m}.Update(ctx, s)
}

func (m *Memory) SetActive(ctx context.Context, id string, active bool, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return memTx{m}.SetActive(ctx, id, active, at)
}

func (m *Memory) List(ctx context.Context, f Filter) ([]Slot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return memTx{m}.List(ctx, f)
}

// memTx operates on the store with the lock already held.
type memTx struct{ m *Memory }

func (t memTx) Atomic(_ context.Context, fn func(Repository) error) error { return fn(t) }

func (t memTx) LockDay(context.Context, string, Weekday) error { return nil }

func (t memTx) Get(_ context.Context, id string) (Slot, error) {
	s, ok := t.m.slots[id]
	if !ok {
		return Slot{}, ErrNotFound
	}
	return s, nil
}

func (t memTx) Insert(_ context.Context, s Slot) (Slot, error) {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	s.UpdatedAt = s.CreatedAt
	if t.overlaps(s) {
		return Slot{}, ErrOverlap
	}
	t.m.slots[s.ID] = s
	return s, nil
}

func (t memTx) Update(_ context.Context, s Slot) (Slot, error) {
	cur, ok := t.m.slots[s.ID]
	if !ok {
		return Slot{}, ErrNotFound
	}
	s.Active, s.CreatedAt = cur.Active, cur.CreatedAt
	if t.overlaps(s) {
		return Slot{}, ErrOverlap
	}
	t.m.slots[s.ID] = s
	return s, nil
}

func (t memTx) SetActive(_ context.Context, id string, active bool, at time.Time) error {
	s, ok := t.m.slots[id]
	if !ok {
		return ErrNotFound
	}
	s.Active, s.UpdatedAt = active, at
	if t.overlaps(s) {
		return ErrOverlap
	}
	t.m.slots[id] = s
	return nil
}

func (t memTx) List(_ context.Context, f Filter) ([]Slot, error) {
	var res []Slot
	for _, s := range t.m.slots {
		if f.ClassID != "" && s.ClassID != f.ClassID {
			continue
		}
		if f.TeacherID != "" && s.TeacherID != f.TeacherID {
			continue
		}
		if f.Day != "" && s.Day != f.Day {
			continue
		}
		if !f.IncludeInactive && !s.Active {
			continue
		}
		res = append(res, s)
	}
	sort.Slice(res, func(i, j int) bool {
		a, b := res[i], res[j]
		if dayOrder[a.Day] != dayOrder[b.Day] {
			return dayOrder[a.Day] < dayOrder[b.Day]
		}
		if a.Start != b.Start {
			return a.Start < b.Start
		}
		return a.ID < b.ID
	})
	return res, nil
}

// overlaps mirrors the timetable_slots_no_overlap exclusion constraint.
func (t memTx) overlaps(s Slot) bool {
	if !s.Active {
		return false
	}
	for _, o := range t.m.slots {
		if o.ID == s.ID || !o.Active || o.ClassID != s.ClassID || o.Day != s.Day {
			continue
		}
		if Overlaps(s.Interval(), o.Interval()) {
			return true
		}
	}
	return false
}

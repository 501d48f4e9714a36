package attendance

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// Memory is an in-process Repository with a unique index on the record key.
type Memory struct {
	mu    sync.Mutex
	byKey map[Key]Record
}

func NewMemory() *Memory {
	return &Memory{byKey: make(map[Key]Record)}
}

func (m *Memory) Atomic(ctx context.Context, fn func(Repository) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	snapshot := make(map[Key]Record, len(m.byKey))
	for k, v := range m.byKey {
		snapshot[k] = v
	}
	if err := fn(memTx{m}); err != nil {
		m.byKey = snapshot
		return err
	}
	return nil
}

func (m *Memory) FindByKey(ctx context.Context, k Key) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return memTx{m}.FindByKey(ctx, k)
}

func (m *Memory) Insert(ctx context.Context, r Record) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return memTx{m}.Insert(ctx, r)
}

func (m *Memory) Update(ctx context.Context, r Record) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return memTx{m}.Update(ctx, r)
}

func (m *Memory) ListByStudent(ctx context.Context, studentID string, from, to *Date) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return memTx{m}.ListByStudent(ctx, studentID, from, to)
}

func (m *Memory) ListBySlotDate(ctx context.Context, slotID string, date Date) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return memTx{m}.ListBySlotDate(ctx, slotID, date)
}

// Len returns the number of stored records.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byKey)
}

type memTx struct{ m *Memory }

func (t memTx) Atomic(_ context.Context, fn func(Repository) error) error { return fn(t) }

func (t memTx) FindByKey(_ context.Context, k Key) (Record, error) {
	r, ok := t.m.byKey[k]
	if !ok {
		return Record{}, ErrNotFound
	}
	return r, nil
}

func (t memTx) Insert(_ context.Context, r Record) (Record, error) {
	if _, ok := t.m.byKey[r.Key()]; ok {
		return Record{}, ErrDuplicate
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	r.UpdatedAt = r.CreatedAt
	t.m.byKey[r.Key()] = r
	return r, nil
}

func (t memTx) Update(_ context.Context, r Record) (Record, error) {
	cur, ok := t.m.byKey[r.Key()]
	if !ok {
		return Record{}, ErrNotFound
	}
	cur.Status, cur.MarkedBy, cur.Remarks, cur.UpdatedAt = r.Status, r.MarkedBy, r.Remarks, r.UpdatedAt
	t.m.byKey[r.Key()] = cur
	return cur, nil
}

func (t memTx) ListByStudent(_ context.Context, studentID string, from, to *Date) ([]Record, error) {
	return t.filter(func(r Record) bool {
		if r.StudentID != studentID {
			return false
		}
		if from != nil && r.Date.Before(*from) {
			return false
		}
		return to == nil || !r.Date.After(*to)
	}), nil
}

func (t memTx) ListBySlotDate(_ context.Context, slotID string, date Date) ([]Record, error) {
	return t.filter(func(r Record) bool {
		return r.SlotID == slotID && r.Date.Equal(date)
	}), nil
}

func (t memTx) filter(keep func(Record) bool) []Record {
	var res []Record
	for _, r := range t.m.byKey {
		if keep(r) {
			res = append(res, r)
		}
	}
	sort.Slice(res, func(i, j int) bool {
		a, b := res[i], res[j]
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	return res
}

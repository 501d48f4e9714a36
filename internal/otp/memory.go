package otp

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type subjectKey struct {
	Subject
	Purpose Purpose
}

// Memory is an in-process Repository enforcing the same unique keys as the
// Postgres schema.
type Memory struct {
	mu        sync.Mutex
	byID      map[string]Challenge
	bySubject map[subjectKey]string
	byCode    map[string]string
}

func NewMemory() *Memory {
	return &Memory{
		byID:      make(map[string]Challenge),
		bySubject: make(map[subjectKey]string),
		byCode:    make(map[string]string),
	}
}

func (m *Memory) Atomic(ctx context.Context, fn func(Repository) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	byID, bySubject, byCode := m.snapshot()
	if err := fn(memTx{m}); err != nil {
		m.byID, m.bySubject, m.byCode = byID, bySubject, byCode
		return err
	}
	return nil
}

func (m *Memory) snapshot() (map[string]Challenge, map[subjectKey]string, map[string]string) {
	byID := make(map[string]Challenge, len(m.byID))
	for k, v := range m.byID {
		byID[k] = v
	}
	bySubject := make(map[subjectKey]string, len(m.bySubject))
	for k, v := range m.bySubject {
		bySubject[k] = v
	}
	byCode := make(map[string]string, len(m.byCode))
	for k, v := range m.byCode {
		byCode[k] = v
	}
	return byID, bySubject, byCode
}

func (m *Memory) Replace(ctx context.Context, c Challenge) (Challenge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return memTx{m}.Replace(ctx, c)
}

func (m *Memory) FindByCode(ctx context.Context, code string, now time.Time, includeVerified bool) (Challenge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return memTx{m}.FindByCode(ctx, code, now, includeVerified)
}

func (m *Memory) MarkVerified(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return memTx{m}.MarkVerified(ctx, id)
}

func (m *Memory) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return memTx{m}.Delete(ctx, id)
}

func (m *Memory) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return memTx{m}.DeleteExpired(ctx, now)
}

// Len returns the number of stored challenges.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byID)
}

type memTx struct{ m *Memory }

func (t memTx) Atomic(_ context.Context, fn func(Repository) error) error { return fn(t) }

func (t memTx) Replace(_ context.Context, c Challenge) (Challenge, error) {
	key := subjectKey{Subject: c.Subject, Purpose: c.Purpose}
	prev, hasPrev := t.m.bySubject[key]
	if holder, ok := t.m.byCode[c.Code]; ok && holder != prev {
		return Challenge{}, ErrCodeTaken
	}
	if hasPrev {
		t.remove(prev)
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	c.Verified = false
	t.m.byID[c.ID] = c
	t.m.bySubject[key] = c.ID
	t.m.byCode[c.Code] = c.ID
	return c, nil
}

func (t memTx) FindByCode(_ context.Context, code string, now time.Time, includeVerified bool) (Challenge, error) {
	id, ok := t.m.byCode[code]
	if !ok {
		return Challenge{}, ErrNotFound
	}
	c := t.m.byID[id]
	if c.Expired(now) || (c.Verified && !includeVerified) {
		return Challenge{}, ErrNotFound
	}
	return c, nil
}

func (t memTx) MarkVerified(_ context.Context, id string) error {
	c, ok := t.m.byID[id]
	if !ok {
		return ErrNotFound
	}
	c.Verified = true
	t.m.byID[id] = c
	return nil
}

func (t memTx) Delete(_ context.Context, id string) error {
	if _, ok := t.m.byID[id]; !ok {
		return ErrNotFound
	}
	t.remove(id)
	return nil
}

func (t memTx) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	var n int64
	for id, c := range t.m.byID {
		if c.Expired(now) {
			t.remove(id)
			n++
		}
	}
	return n, nil
}

func (t memTx) remove(id string) {
	c, ok := t.m.byID[id]
	if !ok {
		return
	}
	delete(t.m.byID, id)
	delete(t.m.bySubject, subjectKey{Subject: c.Subject, Purpose: c.Purpose})
	delete(t.m.byCode, c.Code)
}

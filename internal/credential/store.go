// Package credential completes password recovery on top of one-time codes.
package credential

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"attendly/internal/apperr"
	"attendly/internal/directory"
	"attendly/internal/store"
)

// Store replaces a user's password hash.
type Store interface {
	UpdatePassword(ctx context.Context, t directory.UserType, userID, hash string) error
}

// Postgres updates the teachers or students table. A student who resets a
// password is no longer on first login.
type Postgres struct {
	db store.DBTX
}

func NewPostgres(db store.DBTX) *Postgres {
	return &Postgres{db: db}
}

func (p *Postgres) UpdatePassword(ctx context.Context, t directory.UserType, userID, hash string) error {
	var query string
	switch t {
	case directory.Student:
		query = `UPDATE students SET password_hash = $2, first_login = FALSE WHERE id = $1 AND deleted_at IS NULL`
	case directory.Teacher:
		query = `UPDATE teachers SET password_hash = $2 WHERE id = $1 AND deleted_at IS NULL`
	default:
		return apperr.Field("userType", "invalid user type: "+string(t))
	}
	res, err := p.db.ExecContext(ctx, query, userID, hash)
	if err != nil {
		return errors.Wrap(err, "update password")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound(t.Label(), userID)
	}
	return nil
}

type account struct {
	Type directory.UserType
	ID   string
}

// Memory keeps hashes in process for tests and STORE_BACKEND=memory.
type Memory struct {
	mu     sync.Mutex
	hashes map[account]string
}

func NewMemory() *Memory {
	return &Memory{hashes: make(map[account]string)}
}

// Add registers an account with an initial hash.
func (m *Memory) Add(t directory.UserType, userID, hash string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hashes[account{t, userID}] = hash
}

// Hash returns the stored hash of an account.
func (m *Memory) Hash(t directory.UserType, userID string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.hashes[account{t, userID}]
	return h, ok
}

func (m *Memory) UpdatePassword(_ context.Context, t directory.UserType, userID, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := account{t, userID}
	if _, ok := m.hashes[key]; !ok {
		return apperr.NotFound(t.Label(), userID)
	}
	m.hashes[key] = hash
	return nil
}

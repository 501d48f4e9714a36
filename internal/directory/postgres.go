package directory

import (
	"context"
	"database/sql"
	"strings"

	"github.com/pkg/errors"

	"attendly/internal/apperr"
	"attendly/internal/store"
)

// Postgres reads the entity tables. Soft-deleted rows are treated as absent.
type Postgres struct {
	db store.DBTX
}

func NewPostgres(db store.DBTX) *Postgres {
	return &Postgres{db: db}
}

func (p *Postgres) ResolveClass(ctx context.Context, id string) (Class, error) {
	var c Class
	err := p.db.QueryRowContext(ctx, `
		SELECT id, admin_id, name FROM classes WHERE id = $1 AND deleted_at IS NULL
	`, id).Scan(&c.ID, &c.OwnerID, &c.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return Class{}, apperr.NotFound("Class", id)
	}
	return c, errors.Wrap(err, "resolve class")
}

func (p *Postgres) ResolveTeacher(ctx context.Context, id string) (TeacherInfo, error) {
	var t TeacherInfo
	err := p.db.QueryRowContext(ctx, `
		SELECT id, name FROM teachers WHERE id = $1 AND deleted_at IS NULL
	`, id).Scan(&t.ID, &t.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return TeacherInfo{}, apperr.NotFound("Teacher", id)
	}
	return t, errors.Wrap(err, "resolve teacher")
}

func (p *Postgres) ResolveStudent(ctx context.Context, id string) (StudentInfo, error) {
	var s StudentInfo
	err := p.db.QueryRowContext(ctx, `
		SELECT id, class_id, name FROM students WHERE id = $1 AND deleted_at IS NULL
	`, id).Scan(&s.ID, &s.ClassID, &s.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return StudentInfo{}, apperr.NotFound("Student", id)
	}
	return s, errors.Wrap(err, "resolve student")
}

func (p *Postgres) AccountByEmail(ctx context.Context, t UserType, email string) (Account, error) {
	table, err := accountTable(t)
	if err != nil {
		return Account{}, err
	}
	a := Account{Type: t}
	err = p.db.QueryRowContext(ctx, `
		SELECT id, name, email, phone FROM `+table+` WHERE lower(email) = $1 AND deleted_at IS NULL
	`, strings.ToLower(strings.TrimSpace(email))).Scan(&a.ID, &a.Name, &a.Email, &a.Phone)
	if errors.Is(err, sql.ErrNoRows) {
		return Account{}, accountNotFound(t)
	}
	return a, errors.Wrap(err, "account by email")
}

func (p *Postgres) AccountByID(ctx context.Context, t UserType, id string) (Account, error) {
	table, err := accountTable(t)
	if err != nil {
		return Account{}, err
	}
	a := Account{Type: t}
	err = p.db.QueryRowContext(ctx, `
		SELECT id, name, email, phone FROM `+table+` WHERE id = $1 AND deleted_at IS NULL
	`, id).Scan(&a.ID, &a.Name, &a.Email, &a.Phone)
	if errors.Is(err, sql.ErrNoRows) {
		return Account{}, apperr.NotFound(t.Label(), id)
	}
	return a, errors.Wrap(err, "account by id")
}

// accountTable maps a user type to the table holding its accounts.
func accountTable(t UserType) (string, error) {
	switch t {
	case Student:
		return "students", nil
	case Teacher:
		return "teachers", nil
	}
	return "", apperr.Field("userType", "invalid user type: "+string(t))
}

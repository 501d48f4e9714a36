package timetable

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"attendly/internal/store"
)

const slotColumns = `id, class_id, subject, teacher_id, teacher_name, day_of_week,
	start_minute, end_minute, room, notes, is_active, created_at, updated_at`

const overlapConstraint = "timetable_slots_no_overlap"

// Postgres persists slots in the timetable_slots table.
type Postgres struct {
	db   *sql.DB
	conn store.DBTX
}

// NewPostgres creates a repository on a connection pool.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db, conn: db}
}

func (r *Postgres) Atomic(ctx context.Context, fn func(Repository) error) error {
	if r.db == nil {
		// already inside a transaction
		return fn(r)
	}
	return store.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		return fn(&Postgres{conn: tx})
	})
}

func (r *Postgres) LockDay(ctx context.Context, classID string, day Weekday) error {
	_, err := r.conn.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, "timetable:"+classID+":"+string(day))
	return errors.Wrap(err, "lock class day")
}

func (r *Postgres) Get(ctx context.Context, id string) (Slot, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Slot{}, ErrNotFound
	}
	row := r.conn.QueryRowContext(ctx, `SELECT `+slotColumns+` FROM timetable_slots WHERE id = $1`, id)
	s, err := scanSlot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Slot{}, ErrNotFound
	}
	return s, errors.Wrap(err, "get slot")
}

func (r *Postgres) Insert(ctx context.Context, s Slot) (Slot, error) {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	row := r.conn.QueryRowContext(ctx, `
		INSERT INTO timetable_slots (id, class_id, subject, teacher_id, teacher_name, day_of_week,
			start_minute, end_minute, room, notes, is_active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$12)
		RETURNING `+slotColumns,
		s.ID, s.ClassID, s.Subject, s.TeacherID, s.TeacherName, string(s.Day),
		int(s.Start), int(s.End), s.Room, s.Notes, s.Active, s.CreatedAt)
	out, err := scanSlot(row)
	if store.IsExclusionViolation(err, overlapConstraint) {
		return Slot{}, ErrOverlap
	}
	return out, errors.Wrap(err, "insert slot")
}

func (r *Postgres) Update(ctx context.Context, s Slot) (Slot, error) {
	row := r.conn.QueryRowContext(ctx, `
		UPDATE timetable_slots
		SET class_id = $2, subject = $3, teacher_id = $4, teacher_name = $5, day_of_week = $6,
			start_minute = $7, end_minute = $8, room = $9, notes = $10, updated_at = $11
		WHERE id = $1
		RETURNING `+slotColumns,
		s.ID, s.ClassID, s.Subject, s.TeacherID, s.TeacherName, string(s.Day),
		int(s.Start), int(s.End), s.Room, s.Notes, s.UpdatedAt)
	out, err := scanSlot(row)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return Slot{}, ErrNotFound
	case store.IsExclusionViolation(err, overlapConstraint):
		return Slot{}, ErrOverlap
	}
	return out, errors.Wrap(err, "update slot")
}

func (r *Postgres) SetActive(ctx context.Context, id string, active bool, at time.Time) error {
	res, err := r.conn.ExecContext(ctx, `
		UPDATE timetable_slots SET is_active = $2, updated_at = $3 WHERE id = $1
	`, id, active, at)
	if err != nil {
		if store.IsExclusionViolation(err, overlapConstraint) {
			return ErrOverlap
		}
		return errors.Wrap(err, "set slot active")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Postgres) List(ctx context.Context, f Filter) ([]Slot, error) {
	var (
		clauses []string
		args    []any
	)
	add := func(clause string, arg any) {
		args = append(args, arg)
		clauses = append(clauses, strings.Replace(clause, "?", "$"+strconv.Itoa(len(args)), 1))
	}
	if f.ClassID != "" {
		add("class_id = ?", f.ClassID)
	}
	if f.TeacherID != "" {
		add("teacher_id = ?", f.TeacherID)
	}
	if f.Day != "" {
		add("day_of_week = ?", string(f.Day))
	}
	if !f.IncludeInactive {
		clauses = append(clauses, "is_active")
	}

	query := `SELECT ` + slotColumns + ` FROM timetable_slots`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += ` ORDER BY array_position(ARRAY['MONDAY','TUESDAY','WEDNESDAY','THURSDAY','FRIDAY','SATURDAY','SUNDAY'], day_of_week),
		start_minute, id`

	rows, err := r.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "list slots")
	}
	defer rows.Close()
	var res []Slot
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan slot")
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSlot(row scanner) (Slot, error) {
	var (
		s          Slot
		day        string
		start, end int
	)
	err := row.Scan(&s.ID, &s.ClassID, &s.Subject, &s.TeacherID, &s.TeacherName, &day,
		&start, &end, &s.Room, &s.Notes, &s.Active, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return Slot{}, err
	}
	s.Day, s.Start, s.End = Weekday(day), Clock(start), Clock(end)
	return s, nil
}

package attendance

import (
	"context"
	"database/sql"
	"strconv"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"attendly/internal/store"
)

const recordColumns = `id, slot_id, student_id, date, status, marked_by, remarks, created_at, updated_at`

// Postgres persists records in attendance_records. The unique constraint on
// (slot_id, student_id, date) keeps concurrent marks from duplicating a row.
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
		return fn(r)
	}
	return store.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		return fn(&Postgres{conn: tx})
	})
}

func (r *Postgres) FindByKey(ctx context.Context, k Key) (Record, error) {
	if _, err := uuid.Parse(k.SlotID); err != nil {
		return Record{}, ErrNotFound
	}
	row := r.conn.QueryRowContext(ctx, `
		SELECT `+recordColumns+` FROM attendance_records
		WHERE slot_id = $1 AND student_id = $2 AND date = $3
	`, k.SlotID, k.StudentID, k.Date)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	return rec, errors.Wrap(err, "find attendance")
}

// Insert writes a new record. When another writer already holds the key no
// row comes back and ErrDuplicate is returned so the caller can update instead.
func (r *Postgres) Insert(ctx context.Context, rec Record) (Record, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	row := r.conn.QueryRowContext(ctx, `
		INSERT INTO attendance_records (id, slot_id, student_id, date, status, marked_by, remarks, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$8)
		ON CONFLICT ON CONSTRAINT attendance_records_slot_student_date_key DO NOTHING
		RETURNING `+recordColumns,
		rec.ID, rec.SlotID, rec.StudentID, rec.Date, string(rec.Status), rec.MarkedBy, rec.Remarks, rec.CreatedAt)
	out, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrDuplicate
	}
	return out, errors.Wrap(err, "insert attendance")
}

func (r *Postgres) Update(ctx context.Context, rec Record) (Record, error) {
	row := r.conn.QueryRowContext(ctx, `
		UPDATE attendance_records
		SET status = $4, marked_by = $5, remarks = $6, updated_at = $7
		WHERE slot_id = $1 AND student_id = $2 AND date = $3
		RETURNING `+recordColumns,
		rec.SlotID, rec.StudentID, rec.Date, string(rec.Status), rec.MarkedBy, rec.Remarks, rec.UpdatedAt)
	out, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	return out, errors.Wrap(err, "update attendance")
}

func (r *Postgres) ListByStudent(ctx context.Context, studentID string, from, to *Date) ([]Record, error) {
	query := `SELECT ` + recordColumns + ` FROM attendance_records WHERE student_id = $1`
	args := []any{studentID}
	if from != nil {
		args = append(args, *from)
		query += ` AND date >= $` + strconv.Itoa(len(args))
	}
	if to != nil {
		args = append(args, *to)
		query += ` AND date <= $` + strconv.Itoa(len(args))
	}
	query += ` ORDER BY date, created_at, id`
	return r.list(ctx, query, args...)
}

func (r *Postgres) ListBySlotDate(ctx context.Context, slotID string, date Date) ([]Record, error) {
	if _, err := uuid.Parse(slotID); err != nil {
		return nil, nil
	}
	return r.list(ctx, `
		SELECT `+recordColumns+` FROM attendance_records
		WHERE slot_id = $1 AND date = $2
		ORDER BY created_at, id
	`, slotID, date)
}

func (r *Postgres) list(ctx context.Context, query string, args ...any) ([]Record, error) {
	rows, err := r.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "list attendance")
	}
	defer rows.Close()
	var res []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan attendance")
		}
		res = append(res, rec)
	}
	return res, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (Record, error) {
	var (
		rec    Record
		status string
	)
	err := row.Scan(&rec.ID, &rec.SlotID, &rec.StudentID, &rec.Date, &status,
		&rec.MarkedBy, &rec.Remarks, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return Record{}, err
	}
	rec.Status = Status(status)
	return rec, nil
}

package otp

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"attendly/internal/directory"
	"attendly/internal/store"
)

const challengeColumns = `id, user_id, user_type, purpose, code, verified, expires_at, created_at`

const codeConstraint = "otp_challenges_code_key"

// Postgres persists challenges in otp_challenges.
type Postgres struct {
	db   *sql.DB
	conn store.DBTX
}

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

// Replace upserts on the subject key, so two concurrent issues for the same
// subject leave exactly one challenge behind.
func (r *Postgres) Replace(ctx context.Context, c Challenge) (Challenge, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	row := r.conn.QueryRowContext(ctx, `
		INSERT INTO otp_challenges (id, user_id, user_type, purpose, code, verified, expires_at, created_at)
		VALUES ($1,$2,$3,$4,$5,FALSE,$6,$7)
		ON CONFLICT ON CONSTRAINT otp_challenges_subject_key DO UPDATE
		SET id = EXCLUDED.id, code = EXCLUDED.code, verified = FALSE,
			expires_at = EXCLUDED.expires_at, created_at = EXCLUDED.created_at
		RETURNING `+challengeColumns,
		c.ID, c.Subject.UserID, string(c.Subject.Type), string(c.Purpose), c.Code, c.ExpiresAt, c.CreatedAt)
	out, err := scanChallenge(row)
	if store.IsUniqueViolation(err, codeConstraint) {
		return Challenge{}, ErrCodeTaken
	}
	return out, errors.Wrap(err, "replace otp")
}

func (r *Postgres) FindByCode(ctx context.Context, code string, now time.Time, includeVerified bool) (Challenge, error) {
	query := `SELECT ` + challengeColumns + ` FROM otp_challenges WHERE code = $1 AND expires_at > $2`
	if !includeVerified {
		query += ` AND NOT verified`
	}
	if r.db == nil {
		query += ` FOR UPDATE`
	}
	c, err := scanChallenge(r.conn.QueryRowContext(ctx, query, code, now))
	if errors.Is(err, sql.ErrNoRows) {
		return Challenge{}, ErrNotFound
	}
	return c, errors.Wrap(err, "find otp")
}

func (r *Postgres) MarkVerified(ctx context.Context, id string) error {
	return r.exec(ctx, "verify otp", `UPDATE otp_challenges SET verified = TRUE WHERE id = $1`, id)
}

func (r *Postgres) Delete(ctx context.Context, id string) error {
	return r.exec(ctx, "delete otp", `DELETE FROM otp_challenges WHERE id = $1`, id)
}

func (r *Postgres) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.conn.ExecContext(ctx, `DELETE FROM otp_challenges WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, errors.Wrap(err, "sweep otp")
	}
	return res.RowsAffected()
}

func (r *Postgres) exec(ctx context.Context, op, query string, args ...any) error {
	res, err := r.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return errors.Wrap(err, op)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanChallenge(row *sql.Row) (Challenge, error) {
	var (
		c             Challenge
		userType, prp string
	)
	err := row.Scan(&c.ID, &c.Subject.UserID, &userType, &prp, &c.Code, &c.Verified, &c.ExpiresAt, &c.CreatedAt)
	if err != nil {
		return Challenge{}, err
	}
	c.Subject.Type, c.Purpose = directory.UserType(userType), Purpose(prp)
	return c, nil
}

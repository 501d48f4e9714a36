package store

import (
	"context"

	"github.com/pkg/errors"
)

// The classes/teachers/students tables are owned by the entity CRUD side of
// the product; they are declared here so a fresh database is usable.
const schema = `
CREATE EXTENSION IF NOT EXISTS btree_gist;

CREATE TABLE IF NOT EXISTS classes (
	id          TEXT PRIMARY KEY,
	admin_id    TEXT NOT NULL,
	name        TEXT NOT NULL DEFAULT '',
	deleted_at  TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS teachers (
	id             TEXT PRIMARY KEY,
	name           TEXT NOT NULL,
	email          TEXT UNIQUE NOT NULL,
	phone          TEXT NOT NULL DEFAULT '',
	password_hash  TEXT NOT NULL DEFAULT '',
	deleted_at     TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS students (
	id             TEXT PRIMARY KEY,
	class_id       TEXT NOT NULL REFERENCES classes(id),
	name           TEXT NOT NULL,
	email          TEXT UNIQUE NOT NULL,
	phone          TEXT NOT NULL DEFAULT '',
	password_hash  TEXT NOT NULL DEFAULT '',
	first_login    BOOLEAN NOT NULL DEFAULT TRUE,
	deleted_at     TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS timetable_slots (
	id            UUID PRIMARY KEY,
	class_id      TEXT NOT NULL,
	subject       TEXT NOT NULL,
	teacher_id    TEXT NOT NULL,
	teacher_name  TEXT NOT NULL DEFAULT '',
	day_of_week   TEXT NOT NULL CHECK (day_of_week IN ('MONDAY','TUESDAY','WEDNESDAY','THURSDAY','FRIDAY','SATURDAY','SUNDAY')),
	start_minute  INT NOT NULL CHECK (start_minute >= 0 AND start_minute < 1440),
	end_minute    INT NOT NULL CHECK (end_minute > 0 AND end_minute <= 1440),
	room          TEXT NOT NULL DEFAULT '',
	notes         TEXT NOT NULL DEFAULT '',
	is_active     BOOLEAN NOT NULL DEFAULT TRUE,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	CONSTRAINT timetable_slots_interval_check CHECK (start_minute < end_minute),
	CONSTRAINT timetable_slots_no_overlap EXCLUDE USING gist (
		class_id WITH =,
		day_of_week WITH =,
		int4range(start_minute, end_minute) WITH &&
	) WHERE (is_active)
);
CREATE INDEX IF NOT EXISTS idx_slots_teacher_day ON timetable_slots(teacher_id, day_of_week);

CREATE TABLE IF NOT EXISTS attendance_records (
	id          UUID PRIMARY KEY,
	slot_id     UUID NOT NULL REFERENCES timetable_slots(id),
	student_id  TEXT NOT NULL,
	date        DATE NOT NULL,
	status      TEXT NOT NULL CHECK (status IN ('PRESENT','ABSENT','LEAVE')),
	marked_by   TEXT NOT NULL,
	remarks     TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	CONSTRAINT attendance_records_slot_student_date_key UNIQUE (slot_id, student_id, date)
);
CREATE INDEX IF NOT EXISTS idx_attendance_student_date ON attendance_records(student_id, date);

CREATE TABLE IF NOT EXISTS otp_challenges (
	id          UUID PRIMARY KEY,
	user_id     TEXT NOT NULL,
	user_type   TEXT NOT NULL CHECK (user_type IN ('STUDENT','TEACHER')),
	purpose     TEXT NOT NULL CHECK (purpose IN ('PASSWORD_RESET','PHONE_VERIFICATION')),
	code        TEXT NOT NULL,
	verified    BOOLEAN NOT NULL DEFAULT FALSE,
	expires_at  TIMESTAMPTZ NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	CONSTRAINT otp_challenges_subject_key UNIQUE (user_id, user_type, purpose),
	CONSTRAINT otp_challenges_code_key UNIQUE (code)
);
CREATE INDEX IF NOT EXISTS idx_otp_expires ON otp_challenges(expires_at);
`

// Migrate creates the schema if it does not exist yet.
func (d *DB) Migrate(ctx context.Context) error {
	_, err := d.Client.ExecContext(ctx, schema)
	return errors.Wrap(err, "migrate schema")
}

package attendance

import (
	"strings"

	"attendly/internal/apperr"
)

// Status is the outcome recorded for one student in one session.
type Status string

const (
	Present Status = "PRESENT"
	Absent  Status = "ABSENT"
	Leave   Status = "LEAVE"
	// NotMarked is what a session without a record displays as. It is
	// never stored and cannot be submitted.
	NotMarked Status = "NOT_MARKED"
)

// ParseStatus accepts a markable status in any case.
func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToUpper(strings.TrimSpace(s)))
	if !st.Markable() {
		return "", apperr.Field("status", "status must be one of PRESENT, ABSENT, LEAVE")
	}
	return st, nil
}

// Markable reports whether st can be persisted.
func (st Status) Markable() bool {
	switch st {
	case Present, Absent, Leave:
		return true
	}
	return false
}

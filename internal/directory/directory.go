// Package directory resolves the classes, teachers and students the
// scheduling and attendance services reference. The entities themselves are
// owned elsewhere; this package only reads them.
package directory

import (
	"context"
	"strings"

	"attendly/internal/apperr"
)

// UserType selects which account population a user id belongs to.
type UserType string

const (
	Student UserType = "STUDENT"
	Teacher UserType = "TEACHER"
)

// ParseUserType accepts STUDENT or TEACHER in any case.
func ParseUserType(s string) (UserType, error) {
	switch UserType(strings.ToUpper(strings.TrimSpace(s))) {
	case Student:
		return Student, nil
	case Teacher:
		return Teacher, nil
	}
	return "", apperr.Field("userType", "invalid user type: "+s)
}

type Class struct {
	ID      string
	OwnerID string
	Name    string
}

type TeacherInfo struct {
	ID   string
	Name string
}

type StudentInfo struct {
	ID      string
	ClassID string
	Name    string
}

// Account is a login identity of either user type, used for credential recovery.
type Account struct {
	ID    string
	Type  UserType
	Name  string
	Email string
	Phone string
}

// Directory is the read side of the entity stores. Missing entities surface
// as apperr NotFound errors.
type Directory interface {
	ResolveClass(ctx context.Context, id string) (Class, error)
	ResolveTeacher(ctx context.Context, id string) (TeacherInfo, error)
	ResolveStudent(ctx context.Context, id string) (StudentInfo, error)
	AccountByEmail(ctx context.Context, t UserType, email string) (Account, error)
	AccountByID(ctx context.Context, t UserType, id string) (Account, error)
}

func accountNotFound(t UserType) error {
	if t == Teacher {
		return apperr.NotFoundf("Teacher not found with this email")
	}
	return apperr.NotFoundf("Student not found with this email")
}

// Label is the display name used in error messages.
func (t UserType) Label() string {
	if t == Teacher {
		return "Teacher"
	}
	return "Student"
}

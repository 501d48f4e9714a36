package timetable

import (
	"strings"
	"time"
	"unicode/utf8"

	"attendly/internal/apperr"
)

// Slot is a recurring weekly class session.
type Slot struct {
	ID          string    `json:"id"`
	ClassID     string    `json:"classId"`
	Subject     string    `json:"subject"`
	TeacherID   string    `json:"teacherId"`
	TeacherName string    `json:"teacherName"`
	Day         Weekday   `json:"dayOfWeek"`
	Start       Clock     `json:"startTime"`
	End         Clock     `json:"endTime"`
	Room        string    `json:"room"`
	Notes       string    `json:"notes"`
	Active      bool      `json:"isActive"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Interval returns the slot's time range for conflict checks.
func (s Slot) Interval() Interval {
	return Interval{ID: s.ID, Label: s.Subject, Start: s.Start, End: s.End}
}

// SlotInput carries the caller-supplied fields of a create or update.
type SlotInput struct {
	ClassID   string  `json:"classId" binding:"required"`
	Subject   string  `json:"subject" binding:"required,max=100"`
	TeacherID string  `json:"teacherId" binding:"required"`
	Day       Weekday `json:"dayOfWeek" binding:"required"`
	Start     Clock   `json:"startTime"`
	End       Clock   `json:"endTime"`
	Room      string  `json:"room" binding:"max=200"`
	Notes     string  `json:"notes" binding:"max=500"`
}

func (in *SlotInput) normalize() error {
	in.ClassID = strings.TrimSpace(in.ClassID)
	in.Subject = strings.TrimSpace(in.Subject)
	in.TeacherID = strings.TrimSpace(in.TeacherID)

	var fields []apperr.FieldError
	if in.ClassID == "" {
		fields = append(fields, apperr.FieldError{Field: "classId", Error: "this field is required"})
	}
	if in.Subject == "" {
		fields = append(fields, apperr.FieldError{Field: "subject", Error: "this field is required"})
	} else if utf8.RuneCountInString(in.Subject) > 100 {
		fields = append(fields, apperr.FieldError{Field: "subject", Error: "must be at most 100 characters"})
	}
	if in.TeacherID == "" {
		fields = append(fields, apperr.FieldError{Field: "teacherId", Error: "this field is required"})
	}
	if !in.Day.Valid() {
		fields = append(fields, apperr.FieldError{Field: "dayOfWeek", Error: "invalid day of week"})
	}
	if utf8.RuneCountInString(in.Room) > 200 {
		fields = append(fields, apperr.FieldError{Field: "room", Error: "must be at most 200 characters"})
	}
	if utf8.RuneCountInString(in.Notes) > 500 {
		fields = append(fields, apperr.FieldError{Field: "notes", Error: "must be at most 500 characters"})
	}
	if len(fields) > 0 {
		return apperr.Validation("invalid timetable slot", fields...)
	}
	return nil
}

// Scope is the administrative owner a registry write is performed for.
type Scope struct {
	AdminID string
}

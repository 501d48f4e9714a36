// Package otp issues, verifies and consumes one-time codes sent to users
// for credential recovery.
package otp

import (
	"strings"
	"time"

	"attendly/internal/apperr"
	"attendly/internal/directory"
)

// Purpose scopes a code to the flow it was issued for.
type Purpose string

const (
	PasswordReset     Purpose = "PASSWORD_RESET"
	PhoneVerification Purpose = "PHONE_VERIFICATION"
)

func ParsePurpose(s string) (Purpose, error) {
	p := Purpose(strings.ToUpper(strings.TrimSpace(s)))
	if !p.Valid() {
		return "", apperr.Field("purpose", "invalid purpose: "+s)
	}
	return p, nil
}

func (p Purpose) Valid() bool {
	return p == PasswordReset || p == PhoneVerification
}

// Label is the human readable purpose used in messages.
func (p Purpose) Label() string {
	switch p {
	case PasswordReset:
		return "Password Reset"
	case PhoneVerification:
		return "Phone Verification"
	}
	return "Verification"
}

// Subject identifies the account a code is issued to.
type Subject struct {
	UserID string
	Type   directory.UserType
}

// Challenge is an issued code. At most one exists per (subject, purpose).
type Challenge struct {
	ID        string
	Subject   Subject
	Purpose   Purpose
	Code      string
	Verified  bool
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Expired reports whether the code can no longer be used at now.
func (c Challenge) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

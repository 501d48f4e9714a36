package credential

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"attendly/internal/apperr"
	"attendly/internal/directory"
	"attendly/internal/otp"
)

// MinPasswordLength is the shortest password a reset accepts.
const MinPasswordLength = 6

// Accounts finds the account a reset is requested for.
type Accounts interface {
	AccountByEmail(ctx context.Context, t directory.UserType, email string) (directory.Account, error)
}

// Codes is the one-time code lifecycle the resetter drives.
type Codes interface {
	Issue(ctx context.Context, sub otp.Subject, purpose otp.Purpose) (otp.Issued, error)
	Verify(ctx context.Context, code string) (otp.Challenge, error)
	ConsumeForReset(ctx context.Context, code string, apply func(otp.Challenge) error) (otp.Challenge, error)
}

// ResetRequested is returned once a code has been sent.
type ResetRequested struct {
	Message string `json:"message"`
	Email   string `json:"email"`
	Phone   string `json:"phone,omitempty"`
}

// Resetter runs forgot-password: request a code by email, optionally check
// it, then trade it for a new password.
type Resetter struct {
	accounts Accounts
	codes    Codes
	store    Store
	cost     int
	log      *zap.Logger
}

func NewResetter(accounts Accounts, codes Codes, store Store, logger *zap.Logger) *Resetter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resetter{accounts: accounts, codes: codes, store: store, cost: bcrypt.DefaultCost, log: logger}
}

// RequestReset sends a password reset code to the account registered
// under email.
func (r *Resetter) RequestReset(ctx context.Context, email, userType string) (ResetRequested, error) {
	t, err := directory.ParseUserType(userType)
	if err != nil {
		return ResetRequested{}, err
	}
	email = strings.TrimSpace(email)
	if email == "" {
		return ResetRequested{}, apperr.Field("email", "Email is required")
	}
	acct, err := r.accounts.AccountByEmail(ctx, t, email)
	if err != nil {
		return ResetRequested{}, err
	}
	issued, err := r.codes.Issue(ctx, otp.Subject{UserID: acct.ID, Type: t}, otp.PasswordReset)
	if err != nil {
		return ResetRequested{}, err
	}
	return ResetRequested{
		Message: "OTP sent to your registered email address",
		Email:   issued.Email,
		Phone:   issued.Phone,
	}, nil
}

// VerifyCode checks a code without using it up.
func (r *Resetter) VerifyCode(ctx context.Context, code string) error {
	_, err := r.codes.Verify(ctx, strings.TrimSpace(code))
	return err
}

// ResetPassword stores a new password for the owner of code and retires the code.
func (r *Resetter) ResetPassword(ctx context.Context, code, newPassword string) error {
	if utf8.RuneCountInString(newPassword) < MinPasswordLength {
		return apperr.Field("newPassword", "Password must be at least 6 characters")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), r.cost)
	if err != nil {
		return errors.Wrap(err, "hash password")
	}
	c, err := r.codes.ConsumeForReset(ctx, strings.TrimSpace(code), func(c otp.Challenge) error {
		if c.Purpose != otp.PasswordReset {
			return apperr.Credential(errors.Errorf("code issued for %s", c.Purpose))
		}
		return r.store.UpdatePassword(ctx, c.Subject.Type, c.Subject.UserID, string(hash))
	})
	if err != nil {
		return err
	}
	r.log.Info("password reset", zap.String("user_id", c.Subject.UserID), zap.String("user_type", string(c.Subject.Type)))
	return nil
}

package otp

import (
	"context"
	"net/mail"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"attendly/internal/apperr"
	"attendly/internal/directory"
	"attendly/internal/metrics"
	"attendly/internal/notify"
)

// DefaultTTL is how long an issued code stays usable.
const DefaultTTL = 10 * time.Minute

// issueAttempts bounds retries after a code collision.
const issueAttempts = 5

// Accounts resolves the address a code is delivered to.
type Accounts interface {
	AccountByID(ctx context.Context, t directory.UserType, id string) (directory.Account, error)
}

// Issued describes a delivered code without revealing it.
type Issued struct {
	Email     string    `json:"email"`
	Phone     string    `json:"phone,omitempty"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Service runs the one-time code lifecycle: issued, optionally verified,
// then consumed or expired.
type Service struct {
	repo     Repository
	accounts Accounts
	sink     notify.Sink
	ttl      time.Duration
	log      *zap.Logger
	now      func() time.Time
	generate func() (string, error)
}

func NewService(repo Repository, accounts Accounts, sink notify.Sink, ttl time.Duration, logger *zap.Logger) *Service {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		repo:     repo,
		accounts: accounts,
		sink:     sink,
		ttl:      ttl,
		log:      logger,
		now:      func() time.Time { return time.Now().UTC() },
		generate: generateCode,
	}
}

// Issue replaces any challenge the subject holds for purpose with a fresh
// code and delivers it. Nothing is stored unless delivery succeeds.
func (s *Service) Issue(ctx context.Context, sub Subject, purpose Purpose) (Issued, error) {
	if !purpose.Valid() {
		return Issued{}, apperr.Field("purpose", "invalid purpose: "+string(purpose))
	}
	acct, err := s.accounts.AccountByID(ctx, sub.Type, sub.UserID)
	if err != nil {
		return Issued{}, err
	}
	if acct.Email == "" {
		return Issued{}, apperr.Field("email", "no registered email address")
	}

	var issued Challenge
	for attempt := 1; ; attempt++ {
		issued, err = s.issueOnce(ctx, sub, purpose, acct)
		if !errors.Is(err, ErrCodeTaken) || attempt == issueAttempts {
			break
		}
		s.log.Debug("otp code collision, retrying", zap.Int("attempt", attempt))
	}
	if err != nil {
		metrics.OTPFailures.WithLabelValues("issue").Inc()
		return Issued{}, errors.Wrap(err, "issue otp")
	}

	metrics.OTPIssued.WithLabelValues(string(purpose)).Inc()
	s.log.Info("otp issued",
		zap.String("user_id", sub.UserID),
		zap.String("user_type", string(sub.Type)),
		zap.String("purpose", string(purpose)),
		zap.Time("expires_at", issued.ExpiresAt))

	out := Issued{Email: MaskEmail(acct.Email), ExpiresAt: issued.ExpiresAt}
	if acct.Phone != "" {
		out.Phone = MaskPhone(acct.Phone)
	}
	return out, nil
}

func (s *Service) issueOnce(ctx context.Context, sub Subject, purpose Purpose, acct directory.Account) (Challenge, error) {
	code, err := s.generate()
	if err != nil {
		return Challenge{}, err
	}
	now := s.now()
	var saved Challenge
	err = s.repo.Atomic(ctx, func(repo Repository) error {
		saved, err = repo.Replace(ctx, Challenge{
			Subject:   sub,
			Purpose:   purpose,
			Code:      code,
			ExpiresAt: now.Add(s.ttl),
			CreatedAt: now,
		})
		if err != nil {
			return err
		}
		msg, err := notify.OTPMessage(mail.Address{Name: acct.Name, Address: acct.Email}, notify.OTPData{
			Name:    acct.Name,
			Code:    code,
			Purpose: purpose.Label(),
			Valid:   s.ttl,
		})
		if err != nil {
			return err
		}
		return errors.Wrap(s.sink.Send(ctx, msg), "deliver otp")
	})
	return saved, err
}

// Verify marks an unverified, unexpired code as verified. The challenge
// stays usable for ConsumeForReset until it expires.
func (s *Service) Verify(ctx context.Context, code string) (Challenge, error) {
	if !wellFormed(code) {
		return Challenge{}, s.credentialFailure("verify", ErrNotFound)
	}
	var c Challenge
	err := s.repo.Atomic(ctx, func(repo Repository) error {
		var err error
		c, err = repo.FindByCode(ctx, code, s.now(), false)
		if err != nil {
			return err
		}
		if err := repo.MarkVerified(ctx, c.ID); err != nil {
			return err
		}
		c.Verified = true
		return nil
	})
	if err != nil {
		return Challenge{}, s.credentialFailure("verify", err)
	}
	return c, nil
}

// ConsumeForReset looks up an unexpired code, verified or not, and passes
// its challenge to apply. The challenge is deleted only when apply
// succeeds; if apply fails the code remains usable.
func (s *Service) ConsumeForReset(ctx context.Context, code string, apply func(Challenge) error) (Challenge, error) {
	if !wellFormed(code) {
		return Challenge{}, s.credentialFailure("consume", ErrNotFound)
	}
	var (
		c        Challenge
		applyErr error
	)
	err := s.repo.Atomic(ctx, func(repo Repository) error {
		var err error
		c, err = repo.FindByCode(ctx, code, s.now(), true)
		if err != nil {
			return err
		}
		if applyErr = apply(c); applyErr != nil {
			return applyErr
		}
		return repo.Delete(ctx, c.ID)
	})
	if applyErr != nil {
		return Challenge{}, applyErr
	}
	if err != nil {
		return Challenge{}, s.credentialFailure("consume", err)
	}
	s.log.Info("otp consumed", zap.String("user_id", c.Subject.UserID), zap.String("user_type", string(c.Subject.Type)))
	return c, nil
}

// SweepExpired removes every expired challenge.
func (s *Service) SweepExpired(ctx context.Context) (int64, error) {
	n, err := s.repo.DeleteExpired(ctx, s.now())
	if err != nil {
		return 0, errors.Wrap(err, "sweep expired otps")
	}
	metrics.OTPSwept.Add(float64(n))
	return n, nil
}

// credentialFailure hides why a code was rejected. Store failures are
// still reported as internal errors.
func (s *Service) credentialFailure(op string, err error) error {
	if !errors.Is(err, ErrNotFound) {
		return errors.Wrapf(err, "%s otp", op)
	}
	metrics.OTPFailures.WithLabelValues(op).Inc()
	return apperr.Credential(err)
}

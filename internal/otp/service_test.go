package otp

import (
	"context"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"attendly/internal/apperr"
	"attendly/internal/directory"
	"attendly/internal/notify"
)

type fakeSink struct {
	mu   sync.Mutex
	sent []notify.Message
	err  error
}

func (f *fakeSink) Send(_ context.Context, msg notify.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, msg)
	return nil
}

var codePattern = regexp.MustCompile(`\b\d{6}\b`)

func (f *fakeSink) lastCode(t *testing.T) string {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.sent)
	code := codePattern.FindString(f.sent[len(f.sent)-1].Text)
	require.NotEmpty(t, code)
	return code
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time {
	return c.t
}

func (c *clock) advance(d time.Duration) {
	c.t = c.t.Add(d)
}

var student = Subject{UserID: "5", Type: directory.Student}

func newService(t *testing.T) (*Service, *Memory, *fakeSink, *clock) {
	t.Helper()
	dir := directory.NewMemory()
	dir.AddStudent(directory.Account{ID: "5", Name: "Asha", Email: "asha@example.com", Phone: "9876543210"}, "class-1")
	dir.AddTeacher(directory.Account{ID: "5", Name: "Mr. Iyer", Email: "iyer@example.com"})

	repo := NewMemory()
	sink := &fakeSink{}
	clk := &clock{t: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
	svc := NewService(repo, dir, sink, 10*time.Minute, zap.NewNop())
	svc.now = clk.now
	return svc, repo, sink, clk
}

func TestIssueDeliversMaskedCode(t *testing.T) {
	svc, repo, sink, clk := newService(t)

	issued, err := svc.Issue(context.Background(), student, PasswordReset)
	require.NoError(t, err)
	assert.Equal(t, "as****@example.com", issued.Email)
	assert.Equal(t, "******3210", issued.Phone)
	assert.Equal(t, clk.t.Add(10*time.Minute), issued.ExpiresAt)

	require.Len(t, sink.sent, 1)
	assert.Equal(t, "asha@example.com", sink.sent[0].To.Address)
	assert.Contains(t, sink.sent[0].Text, "Password Reset")
	assert.Len(t, sink.lastCode(t), 6)
	assert.Equal(t, 1, repo.Len())
}

func TestSecondIssueInvalidatesFirst(t *testing.T) {
	svc, repo, sink, _ := newService(t)
	ctx := context.Background()

	_, err := svc.Issue(ctx, student, PasswordReset)
	require.NoError(t, err)
	first := sink.lastCode(t)

	_, err = svc.Issue(ctx, student, PasswordReset)
	require.NoError(t, err)
	second := sink.lastCode(t)
	if first == second {
		t.Skip("generator repeated the code")
	}

	_, err = svc.Verify(ctx, first)
	assert.True(t, apperr.Is(err, apperr.KindCredential))
	assert.Equal(t, 1, repo.Len())

	c, err := svc.Verify(ctx, second)
	require.NoError(t, err)
	assert.True(t, c.Verified)
	assert.Equal(t, student, c.Subject)
}

func TestSubjectsAndPurposesAreIndependent(t *testing.T) {
	svc, repo, _, _ := newService(t)
	ctx := context.Background()

	_, err := svc.Issue(ctx, student, PasswordReset)
	require.NoError(t, err)
	_, err = svc.Issue(ctx, student, PhoneVerification)
	require.NoError(t, err)
	_, err = svc.Issue(ctx, Subject{UserID: "5", Type: directory.Teacher}, PasswordReset)
	require.NoError(t, err)
	assert.Equal(t, 3, repo.Len())
}

func TestExpiredCodeIsRejected(t *testing.T) {
	svc, _, sink, clk := newService(t)
	ctx := context.Background()

	_, err := svc.Issue(ctx, student, PasswordReset)
	require.NoError(t, err)
	code := sink.lastCode(t)

	clk.advance(10*time.Minute + time.Second)

	_, err = svc.Verify(ctx, code)
	assert.True(t, apperr.Is(err, apperr.KindCredential))

	applied := false
	_, err = svc.ConsumeForReset(ctx, code, func(Challenge) error { applied = true; return nil })
	assert.True(t, apperr.Is(err, apperr.KindCredential))
	assert.False(t, applied)
}

func TestConsumeIsSingleUse(t *testing.T) {
	svc, repo, sink, _ := newService(t)
	ctx := context.Background()

	_, err := svc.Issue(ctx, student, PasswordReset)
	require.NoError(t, err)
	code := sink.lastCode(t)

	var got Challenge
	c, err := svc.ConsumeForReset(ctx, code, func(ch Challenge) error { got = ch; return nil })
	require.NoError(t, err)
	assert.Equal(t, student, c.Subject)
	assert.Equal(t, c, got)
	assert.Equal(t, 0, repo.Len())

	_, err = svc.ConsumeForReset(ctx, code, func(Challenge) error { return nil })
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindCredential))
	assert.Equal(t, apperr.CredentialMessage, err.Error())
}

func TestConsumeAfterVerify(t *testing.T) {
	svc, _, sink, _ := newService(t)
	ctx := context.Background()

	_, err := svc.Issue(ctx, student, PasswordReset)
	require.NoError(t, err)
	code := sink.lastCode(t)

	_, err = svc.Verify(ctx, code)
	require.NoError(t, err)
	_, err = svc.Verify(ctx, code)
	assert.True(t, apperr.Is(err, apperr.KindCredential), "verify only matches unverified codes")

	_, err = svc.ConsumeForReset(ctx, code, func(Challenge) error { return nil })
	assert.NoError(t, err)
}

func TestFailedApplyKeepsCode(t *testing.T) {
	svc, repo, sink, _ := newService(t)
	ctx := context.Background()

	_, err := svc.Issue(ctx, student, PasswordReset)
	require.NoError(t, err)
	code := sink.lastCode(t)

	boom := errors.New("credential store down")
	_, err = svc.ConsumeForReset(ctx, code, func(Challenge) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, repo.Len())

	_, err = svc.ConsumeForReset(ctx, code, func(Challenge) error { return nil })
	assert.NoError(t, err)
}

func TestConcurrentConsumeSucceedsOnce(t *testing.T) {
	svc, _, sink, _ := newService(t)
	ctx := context.Background()

	_, err := svc.Issue(ctx, student, PasswordReset)
	require.NoError(t, err)
	code := sink.lastCode(t)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		applied int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = svc.ConsumeForReset(ctx, code, func(Challenge) error {
				mu.Lock()
				applied++
				mu.Unlock()
				return nil
			})
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, applied)
}

func TestSendFailureStoresNothing(t *testing.T) {
	svc, repo, sink, _ := newService(t)
	ctx := context.Background()

	_, err := svc.Issue(ctx, student, PasswordReset)
	require.NoError(t, err)
	code := sink.lastCode(t)

	sink.err = errors.New("smtp unavailable")
	_, err = svc.Issue(ctx, student, PasswordReset)
	require.Error(t, err)
	assert.Equal(t, apperr.KindInternal, apperr.KindOf(err))

	// the earlier challenge survives the failed replacement
	assert.Equal(t, 1, repo.Len())
	_, err = svc.Verify(ctx, code)
	assert.NoError(t, err)
}

func TestIssueRetriesCodeCollision(t *testing.T) {
	svc, repo, _, _ := newService(t)
	ctx := context.Background()

	codes := []string{"111111", "111111", "222222"}
	svc.generate = func() (string, error) {
		c := codes[0]
		codes = codes[1:]
		return c, nil
	}

	_, err := svc.Issue(ctx, student, PasswordReset)
	require.NoError(t, err)
	_, err = svc.Issue(ctx, Subject{UserID: "5", Type: directory.Teacher}, PasswordReset)
	require.NoError(t, err)

	assert.Empty(t, codes)
	assert.Equal(t, 2, repo.Len())
	c, err := svc.Verify(ctx, "222222")
	require.NoError(t, err)
	assert.Equal(t, directory.Teacher, c.Subject.Type)
}

func TestIssueRejects(t *testing.T) {
	svc, _, _, _ := newService(t)
	ctx := context.Background()

	_, err := svc.Issue(ctx, Subject{UserID: "404", Type: directory.Student}, PasswordReset)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	_, err = svc.Issue(ctx, student, Purpose("LOGIN"))
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestMalformedCodes(t *testing.T) {
	svc, _, _, _ := newService(t)
	for _, code := range []string{"", "12345", "1234567", "12a456"} {
		_, err := svc.Verify(context.Background(), code)
		assert.True(t, apperr.Is(err, apperr.KindCredential), code)
	}
}

func TestSweepExpired(t *testing.T) {
	svc, repo, _, clk := newService(t)
	ctx := context.Background()

	_, err := svc.Issue(ctx, student, PasswordReset)
	require.NoError(t, err)
	clk.advance(5 * time.Minute)
	_, err = svc.Issue(ctx, student, PhoneVerification)
	require.NoError(t, err)

	clk.advance(6 * time.Minute)
	n, err := svc.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, 1, repo.Len())
}

func TestGenerateCode(t *testing.T) {
	for i := 0; i < 200; i++ {
		code, err := generateCode()
		require.NoError(t, err)
		assert.True(t, wellFormed(code), code)
		assert.NotEqual(t, byte('0'), code[0])
	}
}

func TestMask(t *testing.T) {
	assert.Equal(t, "ab****@example.com", MaskEmail("abcdef@example.com"))
	assert.Equal(t, "**@example.com", MaskEmail("ab@example.com"))
	assert.Equal(t, "****@****.com", MaskEmail("nobody"))
	assert.Equal(t, "******1234", MaskPhone("+911234561234"))
	assert.Equal(t, "****", MaskPhone("123"))
}

package directory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"attendly/internal/apperr"
)

func TestParseUserType(t *testing.T) {
	ut, err := ParseUserType(" student ")
	require.NoError(t, err)
	assert.Equal(t, Student, ut)

	_, err = ParseUserType("ADMIN")
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestMemoryLookups(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	m.AddClass(Class{ID: "c1", OwnerID: "admin-1"})
	m.AddTeacher(Account{ID: "t1", Name: "Ms. Rao", Email: "rao@school.test"})
	m.AddStudent(Account{ID: "s1", Name: "Asha", Email: "Asha@School.test"}, "c1")

	s, err := m.ResolveStudent(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "c1", s.ClassID)

	a, err := m.AccountByEmail(ctx, Student, "asha@school.test")
	require.NoError(t, err)
	assert.Equal(t, Student, a.Type)

	_, err = m.AccountByEmail(ctx, Teacher, "asha@school.test")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	_, err = m.ResolveTeacher(ctx, "nobody")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

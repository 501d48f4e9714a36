package directory

import (
	"context"
	"strings"
	"sync"

	"attendly/internal/apperr"
)

// Memory is an in-process Directory for tests and STORE_BACKEND=memory.
type Memory struct {
	mu       sync.RWMutex
	classes  map[string]Class
	teachers map[string]Account
	students map[string]memStudent
}

type memStudent struct {
	Account
	ClassID string
}

func NewMemory() *Memory {
	return &Memory{
		classes:  make(map[string]Class),
		teachers: make(map[string]Account),
		students: make(map[string]memStudent),
	}
}

func (m *Memory) AddClass(c Class) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.classes[c.ID] = c
}

func (m *Memory) AddTeacher(a Account) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a.Type = Teacher
	m.teachers[a.ID] = a
}

func (m *Memory) AddStudent(a Account, classID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a.Type = Student
	m.students[a.ID] = memStudent{Account: a, ClassID: classID}
}

func (m *Memory) ResolveClass(_ context.Context, id string) (Class, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.classes[id]
	if !ok {
		return Class{}, apperr.NotFound("Class", id)
	}
	return c, nil
}

func (m *Memory) ResolveTeacher(_ context.Context, id string) (TeacherInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.teachers[id]
	if !ok {
		return TeacherInfo{}, apperr.NotFound("Teacher", id)
	}
	return TeacherInfo{ID: t.ID, Name: t.Name}, nil
}

func (m *Memory) ResolveStudent(_ context.Context, id string) (StudentInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.students[id]
	if !ok {
		return StudentInfo{}, apperr.NotFound("Student", id)
	}
	return StudentInfo{ID: s.ID, ClassID: s.ClassID, Name: s.Name}, nil
}

func (m *Memory) AccountByEmail(_ context.Context, t UserType, email string) (Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	email = strings.ToLower(strings.TrimSpace(email))
	switch t {
	case Teacher:
		for _, a := range m.teachers {
			if strings.ToLower(a.Email) == email {
				return a, nil
			}
		}
	case Student:
		for _, s := range m.students {
			if strings.ToLower(s.Email) == email {
				return s.Account, nil
			}
		}
	default:
		return Account{}, apperr.Field("userType", "invalid user type: "+string(t))
	}
	return Account{}, accountNotFound(t)
}

func (m *Memory) AccountByID(_ context.Context, t UserType, id string) (Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	switch t {
	case Teacher:
		if a, ok := m.teachers[id]; ok {
			return a, nil
		}
		return Account{}, apperr.NotFound("Teacher", id)
	case Student:
		if s, ok := m.students[id]; ok {
			return s.Account, nil
		}
		return Account{}, apperr.NotFound("Student", id)
	}
	return Account{}, apperr.Field("userType", "invalid user type: "+string(t))
}

package attendance

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"attendly/internal/apperr"
	"attendly/internal/directory"
	"attendly/internal/metrics"
	"attendly/internal/queue"
	"attendly/internal/timetable"
)

// EventMarked is the queue message type published after every mark.
const EventMarked = "attendance.marked"

// MarkedEvent is the body of an EventMarked message.
type MarkedEvent struct {
	RecordID  string    `json:"recordId"`
	SlotID    string    `json:"slotId"`
	StudentID string    `json:"studentId"`
	Date      Date      `json:"date"`
	Status    Status    `json:"status"`
	MarkedBy  string    `json:"markedBy"`
	At        time.Time `json:"at"`
}

// Slots resolves timetable slots, including inactive ones.
type Slots interface {
	GetSlot(ctx context.Context, id string) (timetable.Slot, error)
}

// Directory is the part of the entity directory the ledger needs.
type Directory interface {
	ResolveStudent(ctx context.Context, id string) (directory.StudentInfo, error)
	ResolveTeacher(ctx context.Context, id string) (directory.TeacherInfo, error)
}

// Publisher hands events to the background worker.
type Publisher interface {
	Publish(ctx context.Context, msg queue.Message) error
}

// Service is the attendance ledger.
type Service struct {
	repo   Repository
	slots  Slots
	dir    Directory
	cache  ReportCache
	events Publisher
	log    *zap.Logger
	now    func() time.Time
}

// NewService creates a ledger. cache and events may be nil.
func NewService(repo Repository, slots Slots, dir Directory, cache ReportCache, events Publisher, logger *zap.Logger) *Service {
	if cache == nil {
		cache = NopCache{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		repo:   repo,
		slots:  slots,
		dir:    dir,
		cache:  cache,
		events: events,
		log:    logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// MarkAttendance records a student's status for a slot on a date. A second
// mark for the same slot, student and date overwrites the first.
func (s *Service) MarkAttendance(ctx context.Context, in MarkInput, markedBy string) (Record, error) {
	status, err := in.validate()
	if err != nil {
		return Record{}, err
	}
	slot, err := s.slots.GetSlot(ctx, in.SlotID)
	if err != nil {
		return Record{}, err
	}
	student, err := s.dir.ResolveStudent(ctx, in.StudentID)
	if err != nil {
		return Record{}, err
	}
	if student.ClassID != slot.ClassID {
		return Record{}, apperr.Field("studentId", "Student does not belong to this class")
	}

	now := s.now()
	rec := Record{
		SlotID:    slot.ID,
		StudentID: student.ID,
		Date:      in.Date,
		Status:    status,
		MarkedBy:  markedBy,
		Remarks:   strings.TrimSpace(in.Remarks),
		CreatedAt: now,
		UpdatedAt: now,
	}

	var (
		saved Record
		path  string
	)
	err = s.repo.Atomic(ctx, func(repo Repository) error {
		_, err := repo.FindByKey(ctx, rec.Key())
		switch {
		case err == nil:
			path = "update"
			saved, err = repo.Update(ctx, rec)
			return err
		case !errors.Is(err, ErrNotFound):
			return err
		}
		path = "insert"
		saved, err = repo.Insert(ctx, rec)
		if errors.Is(err, ErrDuplicate) {
			// lost the race for the key to a concurrent mark
			path = "update"
			saved, err = repo.Update(ctx, rec)
		}
		return err
	})
	if err != nil {
		return Record{}, errors.Wrap(err, "mark attendance")
	}
	metrics.AttendanceMarks.WithLabelValues(string(saved.Status), path).Inc()

	saved.StudentName = student.Name
	saved.Subject = slot.Subject
	saved.MarkedByName = s.teacherName(ctx, saved.MarkedBy)

	s.afterMark(ctx, saved)
	return saved, nil
}

// BulkError reports the element a bulk mark stopped at. Elements before
// Index were committed.
type BulkError struct {
	Index int
	Err   error
}

func (e *BulkError) Error() string {
	return fmt.Sprintf("record %d: %v", e.Index, e.Err)
}

func (e *BulkError) Unwrap() error { return e.Err }

// MarkBulkAttendance marks each input in order, each in its own unit of
// work. It stops at the first failure and returns the records already saved
// together with a *BulkError.
func (s *Service) MarkBulkAttendance(ctx context.Context, inputs []MarkInput, markedBy string) ([]Record, error) {
	saved := make([]Record, 0, len(inputs))
	for i, in := range inputs {
		rec, err := s.MarkAttendance(ctx, in, markedBy)
		if err != nil {
			return saved, &BulkError{Index: i, Err: err}
		}
		saved = append(saved, rec)
	}
	return saved, nil
}

// AttendanceByStudent lists a student's records, optionally within an
// inclusive date range.
func (s *Service) AttendanceByStudent(ctx context.Context, studentID string, from, to *Date) ([]Record, error) {
	if from != nil && to != nil && to.Before(*from) {
		return nil, apperr.Field("endDate", "end date must not be before start date")
	}
	student, err := s.dir.ResolveStudent(ctx, studentID)
	if err != nil {
		return nil, err
	}
	records, err := s.repo.ListByStudent(ctx, studentID, from, to)
	if err != nil {
		return nil, err
	}
	slots := newSlotLookup(s.slots)
	teachers := make(map[string]string)
	for i := range records {
		records[i].StudentName = student.Name
		if slot, ok := slots.get(ctx, records[i].SlotID); ok {
			records[i].Subject = slot.Subject
		}
		records[i].MarkedByName = s.cachedTeacherName(ctx, teachers, records[i].MarkedBy)
	}
	return nonNil(records), nil
}

// AttendanceBySlot lists the records of one session.
func (s *Service) AttendanceBySlot(ctx context.Context, slotID string, date Date) ([]Record, error) {
	if date.IsZero() {
		return nil, apperr.Field("date", "date is required")
	}
	slot, err := s.slots.GetSlot(ctx, slotID)
	if err != nil {
		return nil, err
	}
	records, err := s.repo.ListBySlotDate(ctx, slot.ID, date)
	if err != nil {
		return nil, err
	}
	teachers := make(map[string]string)
	for i := range records {
		records[i].Subject = slot.Subject
		if st, err := s.dir.ResolveStudent(ctx, records[i].StudentID); err == nil {
			records[i].StudentName = st.Name
		}
		records[i].MarkedByName = s.cachedTeacherName(ctx, teachers, records[i].MarkedBy)
	}
	return nonNil(records), nil
}

// TodayForStudent lists the records of the current day.
func (s *Service) TodayForStudent(ctx context.Context, studentID string) ([]Record, error) {
	today := DateOf(s.now())
	return s.AttendanceByStudent(ctx, studentID, &today, &today)
}

func (in MarkInput) validate() (Status, error) {
	var fields []apperr.FieldError
	if strings.TrimSpace(in.SlotID) == "" {
		fields = append(fields, apperr.FieldError{Field: "timetableSlotId", Error: "Timetable slot ID is required"})
	}
	if strings.TrimSpace(in.StudentID) == "" {
		fields = append(fields, apperr.FieldError{Field: "studentId", Error: "Student ID is required"})
	}
	if in.Date.IsZero() {
		fields = append(fields, apperr.FieldError{Field: "date", Error: "Date is required"})
	}
	status, err := ParseStatus(in.Status)
	if err != nil {
		fields = append(fields, apperr.FieldsOf(err)...)
	}
	if len(fields) > 0 {
		return "", apperr.Validation("invalid attendance mark", fields...)
	}
	return status, nil
}

// afterMark drops the student's cached report and notifies the worker.
// Neither failure undoes the mark.
func (s *Service) afterMark(ctx context.Context, rec Record) {
	if err := s.cache.Invalidate(ctx, rec.StudentID); err != nil {
		s.log.Warn("report cache invalidation failed", zap.String("student_id", rec.StudentID), zap.Error(err))
	}
	if s.events == nil {
		return
	}
	msg, err := queue.NewMessage(EventMarked, MarkedEvent{
		RecordID:  rec.ID,
		SlotID:    rec.SlotID,
		StudentID: rec.StudentID,
		Date:      rec.Date,
		Status:    rec.Status,
		MarkedBy:  rec.MarkedBy,
		At:        rec.UpdatedAt,
	})
	if err == nil {
		err = s.events.Publish(ctx, msg)
	}
	if err != nil {
		s.log.Warn("publish attendance event failed", zap.String("record_id", rec.ID), zap.Error(err))
	}
}

// DecodeMarkedEvent reads the body of an EventMarked message.
func DecodeMarkedEvent(msg queue.Message) (MarkedEvent, error) {
	var ev MarkedEvent
	if msg.Type != EventMarked {
		return ev, errors.Errorf("unexpected message type %q", msg.Type)
	}
	err := json.Unmarshal(msg.Body, &ev)
	return ev, errors.Wrap(err, "decode attendance event")
}

func (s *Service) teacherName(ctx context.Context, id string) string {
	if id == "" {
		return ""
	}
	t, err := s.dir.ResolveTeacher(ctx, id)
	if err != nil {
		return ""
	}
	return t.Name
}

func (s *Service) cachedTeacherName(ctx context.Context, seen map[string]string, id string) string {
	if name, ok := seen[id]; ok {
		return name
	}
	name := s.teacherName(ctx, id)
	seen[id] = name
	return name
}

// slotLookup memoises slot resolution for one request.
type slotLookup struct {
	slots Slots
	seen  map[string]*timetable.Slot
}

func newSlotLookup(slots Slots) *slotLookup {
	return &slotLookup{slots: slots, seen: make(map[string]*timetable.Slot)}
}

func (l *slotLookup) get(ctx context.Context, id string) (timetable.Slot, bool) {
	if s, ok := l.seen[id]; ok {
		if s == nil {
			return timetable.Slot{}, false
		}
		return *s, true
	}
	slot, err := l.slots.GetSlot(ctx, id)
	if err != nil {
		l.seen[id] = nil
		return timetable.Slot{}, false
	}
	l.seen[id] = &slot
	return slot, true
}

func nonNil(records []Record) []Record {
	if records == nil {
		return []Record{}
	}
	return records
}

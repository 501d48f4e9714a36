package attendance

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"attendly/internal/metrics"
)

// Report summarises a student's marked sessions. Sessions that were
// scheduled but never marked do not count.
type Report struct {
	StudentID         string         `json:"studentId"`
	OverallPercentage float64        `json:"overallPercentage"`
	TotalSessions     int            `json:"totalClasses"`
	SessionsPresent   int            `json:"classesPresent"`
	PerSubject        []SubjectStats `json:"subjectBreakdown"`
}

// SubjectStats is the share of one subject in a Report.
type SubjectStats struct {
	Subject    string  `json:"subjectName"`
	Total      int     `json:"totalClasses"`
	Present    int     `json:"classesPresent"`
	Percentage float64 `json:"percentage"`
}

// SlotCount is how often a student was marked, and marked present, in one slot.
type SlotCount struct {
	Total   int `json:"total"`
	Present int `json:"present"`
}

// Tally holds a student's SlotCounts keyed by slot id. It is what the
// report cache stores; subjects are attached when a Report is built.
type Tally map[string]SlotCount

// TallyOf counts records per slot.
func TallyOf(records []Record) Tally {
	t := make(Tally)
	for _, r := range records {
		c := t[r.SlotID]
		c.Total++
		if r.Status == Present {
			c.Present++
		}
		t[r.SlotID] = c
	}
	return t
}

func (t Tally) clone() Tally {
	out := make(Tally, len(t))
	for k, v := range t {
		out[k] = v
	}
	return out
}

// Report groups the tally by subject. subjectOf resolves a slot's subject;
// slots it cannot resolve count in the totals but in no subject.
func (t Tally) Report(studentID string, subjectOf func(slotID string) (string, bool)) Report {
	rep := Report{StudentID: studentID, PerSubject: []SubjectStats{}}
	groups := make(map[string]*SubjectStats)
	for slotID, c := range t {
		rep.TotalSessions += c.Total
		rep.SessionsPresent += c.Present
		subject, ok := subjectOf(slotID)
		if !ok || subject == "" {
			continue
		}
		g, ok := groups[subject]
		if !ok {
			g = &SubjectStats{Subject: subject}
			groups[subject] = g
		}
		g.Total += c.Total
		g.Present += c.Present
	}
	rep.OverallPercentage = percentage(rep.SessionsPresent, rep.TotalSessions)
	for _, g := range groups {
		g.Percentage = percentage(g.Present, g.Total)
		rep.PerSubject = append(rep.PerSubject, *g)
	}
	sort.Slice(rep.PerSubject, func(i, j int) bool {
		return rep.PerSubject[i].Subject < rep.PerSubject[j].Subject
	})
	return rep
}

func percentage(part, total int) float64 {
	if total == 0 {
		return 0.0
	}
	return float64(part) * 100.0 / float64(total)
}

// Reporter builds attendance reports, reading through a ReportCache.
type Reporter struct {
	repo  Repository
	slots Slots
	dir   Directory
	cache ReportCache
	log   *zap.Logger
}

// NewReporter creates a reporter. A nil cache disables caching.
func NewReporter(repo Repository, slots Slots, dir Directory, cache ReportCache, logger *zap.Logger) *Reporter {
	if cache == nil {
		cache = NopCache{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reporter{repo: repo, slots: slots, dir: dir, cache: cache, log: logger}
}

// BuildReport returns the report for an existing student. Cached tallies
// are grouped under the slots' current subjects.
func (r *Reporter) BuildReport(ctx context.Context, studentID string) (Report, error) {
	if _, err := r.dir.ResolveStudent(ctx, studentID); err != nil {
		return Report{}, err
	}
	cached, ok, err := r.cache.Get(ctx, studentID)
	switch {
	case err != nil:
		metrics.ReportCache.WithLabelValues("error").Inc()
		r.log.Warn("report cache read failed", zap.String("student_id", studentID), zap.Error(err))
	case ok:
		metrics.ReportCache.WithLabelValues("hit").Inc()
		return r.group(ctx, studentID, cached), nil
	default:
		metrics.ReportCache.WithLabelValues("miss").Inc()
	}
	return r.Refresh(ctx, studentID)
}

// Refresh recounts the ledger and stores the tally, unless the student's
// cache entry was invalidated while the records were being read.
func (r *Reporter) Refresh(ctx context.Context, studentID string) (Report, error) {
	gen, genErr := r.cache.Generation(ctx, studentID)
	if genErr != nil {
		r.log.Warn("report cache generation read failed", zap.String("student_id", studentID), zap.Error(genErr))
	}
	records, err := r.repo.ListByStudent(ctx, studentID, nil, nil)
	if err != nil {
		return Report{}, err
	}
	tally := TallyOf(records)
	if genErr == nil {
		if err := r.cache.Set(ctx, studentID, gen, tally); err != nil {
			r.log.Warn("report cache write failed", zap.String("student_id", studentID), zap.Error(err))
		}
	}
	return r.group(ctx, studentID, tally), nil
}

func (r *Reporter) group(ctx context.Context, studentID string, t Tally) Report {
	lookup := newSlotLookup(r.slots)
	return t.Report(studentID, func(slotID string) (string, bool) {
		s, ok := lookup.get(ctx, slotID)
		return s.Subject, ok
	})
}

// Package metrics registers the prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SlotWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "attendly_slots_written_total",
		Help: "Timetable slot writes by operation.",
	}, []string{"op"})

	SlotConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "attendly_slot_conflicts_total",
		Help: "Slot writes rejected because of an overlapping slot.",
	})

	AttendanceMarks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "attendly_attendance_marks_total",
		Help: "Attendance marks by status and write path (insert or update).",
	}, []string{"status", "path"})

	ReportCache = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "attendly_report_cache_total",
		Help: "Attendance report cache lookups by result.",
	}, []string{"result"})

	OTPIssued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "attendly_otp_issued_total",
		Help: "One-time codes issued by purpose.",
	}, []string{"purpose"})

	OTPFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "attendly_otp_failures_total",
		Help: "Rejected one-time code operations.",
	}, []string{"op"})

	OTPSwept = promauto.NewCounter(prometheus.CounterOpts{
		Name: "attendly_otp_swept_total",
		Help: "Expired one-time codes removed by the sweeper.",
	})
)

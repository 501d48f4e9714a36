// Package handler exposes the scheduling, attendance and password-reset
// operations over HTTP.
package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"attendly/internal/apperr"
	"attendly/internal/attendance"
	"attendly/internal/auth"
	"attendly/internal/credential"
	"attendly/internal/directory"
	"attendly/internal/timetable"
)

// Students resolves the class a student belongs to.
type Students interface {
	ResolveStudent(ctx context.Context, id string) (directory.StudentInfo, error)
}

type Handler struct {
	slots    *timetable.Service
	ledger   *attendance.Service
	reports  *attendance.Reporter
	resets   *credential.Resetter
	students Students
	log      *zap.Logger
}

func New(slots *timetable.Service, ledger *attendance.Service, reports *attendance.Reporter, resets *credential.Resetter, students Students, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	useJSONFieldNames()
	return &Handler{
		slots:    slots,
		ledger:   ledger,
		reports:  reports,
		resets:   resets,
		students: students,
		log:      logger,
	}
}

// ---------- Admin timetable ----------

func (h *Handler) CreateSlot(c *gin.Context) {
	scope, ok := adminScope(c)
	if !ok {
		return
	}
	var in timetable.SlotInput
	if err := bindJSON(c, &in); err != nil {
		h.writeError(c, err)
		return
	}
	slot, err := h.slots.CreateSlot(c.Request.Context(), scope, in)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, slot)
}

func (h *Handler) UpdateSlot(c *gin.Context) {
	scope, ok := adminScope(c)
	if !ok {
		return
	}
	var in timetable.SlotInput
	if err := bindJSON(c, &in); err != nil {
		h.writeError(c, err)
		return
	}
	slot, err := h.slots.UpdateSlot(c.Request.Context(), scope, c.Param("id"), in)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, slot)
}

func (h *Handler) DeleteSlot(c *gin.Context) {
	scope, ok := adminScope(c)
	if !ok {
		return
	}
	if err := h.slots.DeleteSlot(c.Request.Context(), scope, c.Param("id")); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Timetable slot deleted successfully"})
}

// ClassTimetable lists a class's slots, optionally for one weekday.
// include_inactive=true adds soft-deleted slots to the full listing.
func (h *Handler) ClassTimetable(c *gin.Context) {
	scope, ok := adminScope(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	classID := c.Param("classId")
	if err := h.slots.AuthorizeClass(ctx, scope, classID); err != nil {
		h.writeError(c, err)
		return
	}

	var (
		slots []timetable.Slot
		err   error
	)
	if day := c.Query("day"); day != "" {
		var wd timetable.Weekday
		if wd, err = timetable.ParseWeekday(day); err == nil {
			slots, err = h.slots.ListByClassDay(ctx, classID, wd)
		}
	} else {
		var all bool
		if all, err = queryBool(c, "include_inactive"); err == nil {
			slots, err = h.slots.ListByClass(ctx, classID, all)
		}
	}
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, nonNilSlots(slots))
}

// ---------- Teacher ----------

// TeacherTimetable lists the caller's slots; ?day= or ?date= narrows it
// to one weekday.
func (h *Handler) TeacherTimetable(c *gin.Context) {
	p, _ := auth.PrincipalFrom(c)
	ctx := c.Request.Context()

	day, err := weekdayQuery(c)
	if err != nil {
		h.writeError(c, err)
		return
	}
	var slots []timetable.Slot
	if day == "" {
		slots, err = h.slots.ListByTeacher(ctx, p.ID)
	} else {
		slots, err = h.slots.ListByTeacherDay(ctx, p.ID, day)
	}
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, nonNilSlots(slots))
}

func (h *Handler) MarkAttendance(c *gin.Context) {
	p, _ := auth.PrincipalFrom(c)
	var in attendance.MarkInput
	if err := bindJSON(c, &in); err != nil {
		h.writeError(c, err)
		return
	}
	rec, err := h.ledger.MarkAttendance(c.Request.Context(), in, p.ID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

type bulkMarkRequest struct {
	Records []attendance.MarkInput `json:"records" binding:"required,min=1,dive"`
}

func (h *Handler) MarkBulkAttendance(c *gin.Context) {
	p, _ := auth.PrincipalFrom(c)
	var req bulkMarkRequest
	if err := bindJSON(c, &req); err != nil {
		h.writeError(c, err)
		return
	}
	saved, err := h.ledger.MarkBulkAttendance(c.Request.Context(), req.Records, p.ID)
	if err != nil {
		h.writeBulkError(c, saved, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": saved})
}

func (h *Handler) SlotAttendance(c *gin.Context) {
	var date attendance.Date
	if raw := c.Query("date"); raw != "" {
		d, err := attendance.ParseDate(raw)
		if err != nil {
			h.writeError(c, err)
			return
		}
		date = d
	}
	records, err := h.ledger.AttendanceBySlot(c.Request.Context(), c.Param("slotId"), date)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, records)
}

// ---------- Student ----------

func (h *Handler) StudentTimetable(c *gin.Context) {
	p, _ := auth.PrincipalFrom(c)
	ctx := c.Request.Context()

	student, err := h.students.ResolveStudent(ctx, p.ID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	day, err := weekdayQuery(c)
	if err != nil {
		h.writeError(c, err)
		return
	}
	var slots []timetable.Slot
	if day == "" {
		slots, err = h.slots.ListByClass(ctx, student.ClassID, false)
	} else {
		slots, err = h.slots.ListByClassDay(ctx, student.ClassID, day)
	}
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, nonNilSlots(slots))
}

func (h *Handler) MyAttendance(c *gin.Context) {
	p, _ := auth.PrincipalFrom(c)
	h.studentAttendance(c, p.ID)
}

func (h *Handler) MyTodayAttendance(c *gin.Context) {
	p, _ := auth.PrincipalFrom(c)
	records, err := h.ledger.TodayForStudent(c.Request.Context(), p.ID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, records)
}

func (h *Handler) MyReport(c *gin.Context) {
	p, _ := auth.PrincipalFrom(c)
	h.studentReport(c, p.ID)
}

// ---------- Staff views of a student ----------

func (h *Handler) StudentAttendance(c *gin.Context) {
	h.studentAttendance(c, c.Param("studentId"))
}

func (h *Handler) StudentReport(c *gin.Context) {
	h.studentReport(c, c.Param("studentId"))
}

func (h *Handler) studentAttendance(c *gin.Context, studentID string) {
	from, err := dateQuery(c, "from")
	if err != nil {
		h.writeError(c, err)
		return
	}
	to, err := dateQuery(c, "to")
	if err != nil {
		h.writeError(c, err)
		return
	}
	records, err := h.ledger.AttendanceByStudent(c.Request.Context(), studentID, from, to)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, records)
}

func (h *Handler) studentReport(c *gin.Context, studentID string) {
	rep, err := h.reports.BuildReport(c.Request.Context(), studentID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rep)
}

// ---------- Password reset ----------

type forgotPasswordRequest struct {
	Email    string `json:"email" binding:"required,email"`
	UserType string `json:"userType" binding:"required"`
}

type verifyOTPRequest struct {
	OTP string `json:"otp" binding:"required"`
}

type resetPasswordRequest struct {
	OTP         string `json:"otp" binding:"required"`
	NewPassword string `json:"newPassword" binding:"required"`
}

func (h *Handler) ForgotPassword(c *gin.Context) {
	var req forgotPasswordRequest
	if err := bindJSON(c, &req); err != nil {
		h.writeError(c, err)
		return
	}
	out, err := h.resets.RequestReset(c.Request.Context(), req.Email, req.UserType)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) VerifyOTP(c *gin.Context) {
	var req verifyOTPRequest
	if err := bindJSON(c, &req); err != nil {
		h.writeError(c, err)
		return
	}
	if err := h.resets.VerifyCode(c.Request.Context(), req.OTP); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "OTP verified successfully"})
}

func (h *Handler) ResetPassword(c *gin.Context) {
	var req resetPasswordRequest
	if err := bindJSON(c, &req); err != nil {
		h.writeError(c, err)
		return
	}
	if err := h.resets.ResetPassword(c.Request.Context(), req.OTP, req.NewPassword); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Password reset successfully"})
}

// ---------- helpers ----------

func adminScope(c *gin.Context) (timetable.Scope, bool) {
	p, _ := auth.PrincipalFrom(c)
	id, ok := p.AdminScope()
	if !ok {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return timetable.Scope{}, false
	}
	return timetable.Scope{AdminID: id}, true
}

// weekdayQuery reads ?day=, or derives the weekday from ?date=.
func weekdayQuery(c *gin.Context) (timetable.Weekday, error) {
	if day := c.Query("day"); day != "" {
		return timetable.ParseWeekday(day)
	}
	if raw := c.Query("date"); raw != "" {
		d, err := attendance.ParseDate(raw)
		if err != nil {
			return "", err
		}
		return timetable.WeekdayOf(d.Time()), nil
	}
	return "", nil
}

func dateQuery(c *gin.Context, key string) (*attendance.Date, error) {
	raw := c.Query(key)
	if raw == "" {
		return nil, nil
	}
	d, err := attendance.ParseDate(raw)
	if err != nil {
		return nil, apperr.Field(key, "invalid date "+strconv.Quote(raw)+", want YYYY-MM-DD")
	}
	return &d, nil
}

func queryBool(c *gin.Context, key string) (bool, error) {
	raw := c.Query(key)
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, apperr.Field(key, key+" must be true or false")
	}
	return v, nil
}

func nonNilSlots(s []timetable.Slot) []timetable.Slot {
	if s == nil {
		return []timetable.Slot{}
	}
	return s
}

package handler

import (
	"github.com/gin-gonic/gin"

	"attendly/internal/auth"
)

// Register mounts the API under /v1. authn authenticates bearer tokens;
// passwordLimit throttles the unauthenticated password-reset endpoints.
func (h *Handler) Register(r gin.IRouter, authn, passwordLimit gin.HandlerFunc) {
	v1 := r.Group("/v1")

	password := v1.Group("/password", passwordLimit)
	{
		password.POST("/forgot", h.ForgotPassword)
		password.POST("/verify-otp", h.VerifyOTP)
		password.POST("/reset", h.ResetPassword)
	}

	admin := v1.Group("/admin", authn, auth.RequireRole(auth.RoleAdmin))
	{
		admin.POST("/timetable", h.CreateSlot)
		admin.PUT("/timetable/:id", h.UpdateSlot)
		admin.DELETE("/timetable/:id", h.DeleteSlot)
		admin.GET("/timetable/class/:classId", h.ClassTimetable)
	}

	teacher := v1.Group("/teacher", authn, auth.RequireRole(auth.RoleTeacher))
	{
		teacher.GET("/timetable", h.TeacherTimetable)
		teacher.POST("/attendance/mark", h.MarkAttendance)
		teacher.POST("/attendance/mark/bulk", h.MarkBulkAttendance)
		teacher.GET("/attendance/slot/:slotId", h.SlotAttendance)
	}

	student := v1.Group("/student", authn, auth.RequireRole(auth.RoleStudent))
	{
		student.GET("/timetable", h.StudentTimetable)
		student.GET("/attendance", h.MyAttendance)
		student.GET("/attendance/today", h.MyTodayAttendance)
		student.GET("/attendance/report", h.MyReport)
	}

	staff := v1.Group("/attendance", authn, auth.RequireRole(auth.RoleAdmin, auth.RoleTeacher))
	{
		staff.GET("/student/:studentId", h.StudentAttendance)
		staff.GET("/student/:studentId/report", h.StudentReport)
	}
}

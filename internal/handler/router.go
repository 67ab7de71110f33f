package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/aprendesoft/colegio-api/internal/middleware"
	"github.com/aprendesoft/colegio-api/internal/models"
	"github.com/aprendesoft/colegio-api/internal/service"
)

// Router bundles the handlers and registers the API routes.
type Router struct {
	Auth          *AuthHandler
	Attendance    *AttendanceHandler
	Excuses       *ExcuseHandler
	Reports       *ReportHandler
	Notifications *NotificationHandler
	Messaging     *MessagingHandler
	Parents       *ParentHandler
	Attachments   *AttachmentHandler
}

// Register mounts every route group under the API prefix.
func (rt *Router) Register(r *gin.Engine, prefix string, auth *service.AuthService) {
	api := r.Group(prefix)

	// public
	api.POST("/auth/login", rt.Auth.Login)
	api.POST("/auth/refresh", rt.Auth.Refresh)
	api.POST("/parents/invitaciones/aceptar", rt.Parents.AcceptInvitation)
	api.GET("/attachments/:token", rt.Attachments.Download)

	authed := api.Group("")
	authed.Use(middleware.JWT(auth))

	authed.GET("/auth/me", rt.Auth.Me)

	staff := middleware.RequireRoles(models.RoleTeacher, models.RoleAdmin)
	adminOnly := middleware.RequireRoles(models.RoleAdmin)

	attendance := authed.Group("/attendance")
	{
		attendance.POST("/tomar", staff, rt.Attendance.TakeRoster)
		attendance.GET("/curso/:id/fecha/:fecha", rt.Attendance.ListByCourseDate)
		attendance.GET("/curso/:id/planilla", staff, rt.Attendance.Planilla)
		attendance.GET("/curso/:id/reporte", staff, rt.Reports.CourseReport)
		attendance.GET("/curso/:id/reporte/export", staff, rt.Reports.Export)
		attendance.GET("/curso/:id/configuracion", rt.Attendance.GetPolicy)
		attendance.POST("/curso/:id/configuracion", staff, rt.Attendance.UpdatePolicy)
		attendance.GET("/estudiante/:id/historial", rt.Attendance.StudentHistory)

		attendance.POST("/excusas", rt.Excuses.File)
		attendance.GET("/excusas", rt.Excuses.List)
		attendance.PUT("/excusas/:id/estado", staff, rt.Excuses.Decide)

		attendance.GET("/:id", rt.Attendance.GetRecord)
		attendance.PUT("/:id", staff, rt.Attendance.UpdateRecord)
		attendance.PUT("/:id/justificar", rt.Attendance.Justify)
		attendance.GET("/:id/adjunto", rt.Attendance.AttachmentURL)
	}

	notifications := authed.Group("/notifications")
	{
		notifications.GET("", rt.Notifications.List)
		notifications.GET("/unread-count", rt.Notifications.UnreadCount)
		notifications.PUT("/read-all", rt.Notifications.MarkAllRead)
		notifications.PUT("/:id/read", rt.Notifications.MarkRead)
	}

	authed.POST("/communications", staff, rt.Messaging.SendCommunication)
	authed.GET("/communications", rt.Notifications.Communications)
	authed.POST("/citations", staff, rt.Messaging.SendCitation)
	authed.GET("/citations", rt.Notifications.Citations)

	parents := authed.Group("/parents")
	{
		parents.POST("/asignar", adminOnly, rt.Parents.Assign)
		parents.DELETE("/desasignar", adminOnly, rt.Parents.Unassign)
		parents.GET("/de-estudiante/:id", staff, rt.Parents.ParentOfStudent)
		parents.POST("/invitaciones", staff, rt.Parents.Invite)
		parents.GET("/mis-estudiantes", rt.Parents.MyStudents)
	}
}

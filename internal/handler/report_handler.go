package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/aprendesoft/colegio-api/internal/service"
	"github.com/aprendesoft/colegio-api/pkg/response"
)

// ReportHandler exposes course attendance reports.
type ReportHandler struct {
	reports *service.ReportService
}

// NewReportHandler constructs ReportHandler.
func NewReportHandler(reports *service.ReportService) *ReportHandler {
	return &ReportHandler{reports: reports}
}

// CourseReport godoc
// @Summary Per-student and per-day attendance aggregate for a course
// @Tags Reports
// @Produce json
// @Param id path string true "Course id"
// @Param subject_id query string false "Narrow the report to one subject"
// @Param from query string false "Range start (YYYY-MM-DD), defaults to current month"
// @Param to query string false "Range end (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Router /attendance/curso/{id}/reporte [get]
func (h *ReportHandler) CourseReport(c *gin.Context) {
	report, err := h.reports.CourseReport(c.Request.Context(), actorFromContext(c), c.Param("id"), c.Query("subject_id"), c.Query("from"), c.Query("to"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil)
}

// Export godoc
// @Summary Download a course report as CSV or PDF
// @Tags Reports
// @Produce octet-stream
// @Param id path string true "Course id"
// @Param format query string true "csv or pdf"
// @Param subject_id query string false "Narrow the report to one subject"
// @Param from query string false "Range start (YYYY-MM-DD)"
// @Param to query string false "Range end (YYYY-MM-DD)"
// @Success 200 {file} binary
// @Router /attendance/curso/{id}/reporte/export [get]
func (h *ReportHandler) Export(c *gin.Context) {
	format := c.DefaultQuery("format", "csv")
	data, contentType, err := h.reports.ExportCourseReport(c.Request.Context(), actorFromContext(c), c.Param("id"), c.Query("subject_id"), c.Query("from"), c.Query("to"), format)
	if err != nil {
		response.Error(c, err)
		return
	}
	filename := fmt.Sprintf("reporte-asistencia-%s.%s", c.Param("id"), format)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, contentType, data)
}

package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/aprendesoft/colegio-api/internal/models"
	"github.com/aprendesoft/colegio-api/internal/service"
	appErrors "github.com/aprendesoft/colegio-api/pkg/errors"
	"github.com/aprendesoft/colegio-api/pkg/response"
	"github.com/aprendesoft/colegio-api/pkg/storage"
)

// AttendanceHandler exposes the attendance endpoints.
type AttendanceHandler struct {
	attendance  *service.AttendanceService
	metrics     *service.MetricsService
	storage     *storage.LocalStorage
	signer      *storage.SignedURLSigner
	maxFileSize int64
}

// NewAttendanceHandler constructs AttendanceHandler.
func NewAttendanceHandler(attendance *service.AttendanceService, metrics *service.MetricsService, store *storage.LocalStorage, signer *storage.SignedURLSigner, maxFileSize int64) *AttendanceHandler {
	return &AttendanceHandler{
		attendance:  attendance,
		metrics:     metrics,
		storage:     store,
		signer:      signer,
		maxFileSize: maxFileSize,
	}
}

// TakeRoster godoc
// @Summary Record attendance for a course on one date
// @Tags Attendance
// @Accept json
// @Produce json
// @Param payload body service.TakeRosterRequest true "Roster payload"
// @Success 201 {object} response.Envelope
// @Router /attendance/tomar [post]
func (h *AttendanceHandler) TakeRoster(c *gin.Context) {
	var req service.TakeRosterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	result, err := h.attendance.TakeRoster(c.Request.Context(), actorFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.metrics.RosterSubmitted()
	response.Created(c, result)
}

// GetRecord godoc
// @Summary Fetch one attendance record
// @Tags Attendance
// @Produce json
// @Param id path string true "Record id"
// @Success 200 {object} response.Envelope
// @Router /attendance/{id} [get]
func (h *AttendanceHandler) GetRecord(c *gin.Context) {
	record, err := h.attendance.GetRecord(c.Request.Context(), actorFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

// UpdateRecord godoc
// @Summary Edit an attendance record
// @Tags Attendance
// @Accept json
// @Produce json
// @Param id path string true "Record id"
// @Param payload body service.UpdateRecordRequest true "Edit payload"
// @Success 200 {object} response.Envelope
// @Router /attendance/{id} [put]
func (h *AttendanceHandler) UpdateRecord(c *gin.Context) {
	var req service.UpdateRecordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	record, err := h.attendance.UpdateRecord(c.Request.Context(), actorFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

// ListByCourseDate godoc
// @Summary List a course's records for one date
// @Tags Attendance
// @Produce json
// @Param id path string true "Course id"
// @Param fecha path string true "Date (YYYY-MM-DD)"
// @Param subjectId query string false "Subject id"
// @Success 200 {object} response.Envelope
// @Router /attendance/curso/{id}/fecha/{fecha} [get]
func (h *AttendanceHandler) ListByCourseDate(c *gin.Context) {
	var subjectID *string
	if sid := c.Query("subjectId"); sid != "" {
		subjectID = &sid
	}
	records, err := h.attendance.ListByCourseDate(c.Request.Context(), c.Param("id"), subjectID, c.Param("fecha"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records, nil)
}

// Planilla godoc
// @Summary Take-roll view for a course
// @Tags Attendance
// @Produce json
// @Param id path string true "Course id"
// @Param fecha query string true "Date (YYYY-MM-DD)"
// @Param subjectId query string false "Subject id"
// @Success 200 {object} response.Envelope
// @Router /attendance/curso/{id}/planilla [get]
func (h *AttendanceHandler) Planilla(c *gin.Context) {
	var subjectID *string
	if sid := c.Query("subjectId"); sid != "" {
		subjectID = &sid
	}
	date := c.DefaultQuery("fecha", time.Now().Format("2006-01-02"))
	entries, err := h.attendance.Planilla(c.Request.Context(), actorFromContext(c), c.Param("id"), subjectID, date)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, nil)
}

// StudentHistory godoc
// @Summary Attendance history and statistics for a student
// @Tags Attendance
// @Produce json
// @Param id path string true "Student id"
// @Param courseId query string false "Course id"
// @Param from query string false "Range start (YYYY-MM-DD)"
// @Param to query string false "Range end (YYYY-MM-DD)"
// @Param status query string false "Status filter"
// @Success 200 {object} response.Envelope
// @Router /attendance/estudiante/{id}/historial [get]
func (h *AttendanceHandler) StudentHistory(c *gin.Context) {
	filter := models.AttendanceFilter{
		StudentID: c.Param("id"),
		CourseID:  c.Query("courseId"),
	}
	if from := c.Query("from"); from != "" {
		parsed, err := time.Parse("2006-01-02", from)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid from date, expected YYYY-MM-DD"))
			return
		}
		filter.DateFrom = &parsed
	}
	if to := c.Query("to"); to != "" {
		parsed, err := time.Parse("2006-01-02", to)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid to date, expected YYYY-MM-DD"))
			return
		}
		filter.DateTo = &parsed
	}
	if status := c.Query("status"); status != "" {
		st := models.AttendanceStatus(status)
		if !st.Valid() {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid status filter"))
			return
		}
		filter.Status = &st
	}

	result, err := h.attendance.StudentHistory(c.Request.Context(), actorFromContext(c), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Justify godoc
// @Summary Excuse a record with a justification and optional attachment
// @Tags Attendance
// @Accept mpfd
// @Produce json
// @Param id path string true "Record id"
// @Param justification formData string true "Justification text"
// @Param archivo formData file false "Supporting document"
// @Success 200 {object} response.Envelope
// @Router /attendance/{id}/justificar [put]
func (h *AttendanceHandler) Justify(c *gin.Context) {
	var req service.JustifyRequest
	var filePath *string

	if c.ContentType() == "multipart/form-data" {
		req.Justification = c.PostForm("justification")
		if file, err := c.FormFile("archivo"); err == nil && file != nil {
			if file.Size > h.maxFileSize {
				response.Error(c, appErrors.Clone(appErrors.ErrValidation, "attachment exceeds the size limit"))
				return
			}
			saved, err := h.saveUpload(c, file.Filename, "justificaciones")
			if err != nil {
				response.Error(c, err)
				return
			}
			filePath = &saved
		}
	} else {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
			return
		}
	}

	record, err := h.attendance.Justify(c.Request.Context(), actorFromContext(c), c.Param("id"), req, filePath)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

// AttachmentURL godoc
// @Summary Signed download link for a record's attachment
// @Tags Attendance
// @Produce json
// @Param id path string true "Record id"
// @Success 200 {object} response.Envelope
// @Router /attendance/{id}/adjunto [get]
func (h *AttendanceHandler) AttachmentURL(c *gin.Context) {
	record, err := h.attendance.GetRecord(c.Request.Context(), actorFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	if record.JustificationFile == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "record has no attachment"))
		return
	}
	token, expires, err := h.signer.Generate(record.ID, *record.JustificationFile)
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign download link"))
		return
	}
	response.JSON(c, http.StatusOK, gin.H{
		"url":        "/attachments/" + token,
		"expires_at": expires,
	}, nil)
}

// GetPolicy godoc
// @Summary Attendance policy for a course
// @Tags Attendance
// @Produce json
// @Param id path string true "Course id"
// @Success 200 {object} response.Envelope
// @Router /attendance/curso/{id}/configuracion [get]
func (h *AttendanceHandler) GetPolicy(c *gin.Context) {
	policy, err := h.attendance.GetPolicy(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, policy, nil)
}

// UpdatePolicy godoc
// @Summary Upsert a course's attendance policy
// @Tags Attendance
// @Accept json
// @Produce json
// @Param id path string true "Course id"
// @Param payload body service.UpdatePolicyRequest true "Policy payload"
// @Success 200 {object} response.Envelope
// @Router /attendance/curso/{id}/configuracion [post]
func (h *AttendanceHandler) UpdatePolicy(c *gin.Context) {
	var req service.UpdatePolicyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	policy, err := h.attendance.UpdatePolicy(c.Request.Context(), actorFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, policy, nil)
}

// saveUpload stores an uploaded file under a random name preserving the
// extension.
func (h *AttendanceHandler) saveUpload(c *gin.Context, original, dir string) (string, error) {
	file, err := c.FormFile("archivo")
	if err != nil {
		return "", appErrors.Clone(appErrors.ErrValidation, "missing attachment")
	}
	src, err := file.Open()
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read attachment")
	}
	defer src.Close() //nolint:errcheck

	name := dir + "/" + uniqueName(original)
	saved, err := h.storage.SaveStream(name, src)
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store attachment")
	}
	return saved, nil
}

package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/aprendesoft/colegio-api/internal/service"
	appErrors "github.com/aprendesoft/colegio-api/pkg/errors"
	"github.com/aprendesoft/colegio-api/pkg/response"
	"github.com/aprendesoft/colegio-api/pkg/storage"
)

// ExcuseHandler exposes the excuse request endpoints.
type ExcuseHandler struct {
	excuses     *service.ExcuseService
	metrics     *service.MetricsService
	storage     *storage.LocalStorage
	maxFileSize int64
}

// NewExcuseHandler constructs ExcuseHandler.
func NewExcuseHandler(excuses *service.ExcuseService, metrics *service.MetricsService, store *storage.LocalStorage, maxFileSize int64) *ExcuseHandler {
	return &ExcuseHandler{excuses: excuses, metrics: metrics, storage: store, maxFileSize: maxFileSize}
}

// File godoc
// @Summary File an excuse request
// @Tags Excuses
// @Accept mpfd
// @Produce json
// @Success 201 {object} response.Envelope
// @Router /attendance/excusas [post]
func (h *ExcuseHandler) File(c *gin.Context) {
	var req service.FileExcuseRequest
	var attachment *string

	if c.ContentType() == "multipart/form-data" {
		req.StudentID = c.PostForm("student_id")
		req.CourseID = c.PostForm("course_id")
		if sid := c.PostForm("subject_id"); sid != "" {
			req.SubjectID = &sid
		}
		req.StartDate = c.PostForm("start_date")
		req.EndDate = c.PostForm("end_date")
		req.Motive = c.PostForm("motive")

		if file, err := c.FormFile("archivo"); err == nil && file != nil {
			if file.Size > h.maxFileSize {
				response.Error(c, appErrors.Clone(appErrors.ErrValidation, "attachment exceeds the size limit"))
				return
			}
			saved, err := h.saveAttachment(c, file.Filename)
			if err != nil {
				response.Error(c, err)
				return
			}
			attachment = &saved
		}
	} else {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
			return
		}
	}

	created, err := h.excuses.File(c.Request.Context(), actorFromContext(c), req, attachment)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, created)
}

// List godoc
// @Summary List excuse requests visible to the caller
// @Tags Excuses
// @Produce json
// @Param status query string false "Status filter"
// @Param studentId query string false "Student filter"
// @Param courseId query string false "Course filter"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /attendance/excusas [get]
func (h *ExcuseHandler) List(c *gin.Context) {
	req := service.ExcuseListRequest{
		StudentID: c.Query("studentId"),
		CourseID:  c.Query("courseId"),
		Status:    c.Query("status"),
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		req.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		req.PageSize = size
	}

	requests, pagination, err := h.excuses.List(c.Request.Context(), actorFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, requests, pagination)
}

// Decide godoc
// @Summary Approve or reject a pending excuse request
// @Tags Excuses
// @Accept json
// @Produce json
// @Param id path string true "Excuse id"
// @Param payload body service.DecideExcuseRequest true "Decision"
// @Success 200 {object} response.Envelope
// @Router /attendance/excusas/{id}/estado [put]
func (h *ExcuseHandler) Decide(c *gin.Context) {
	var req service.DecideExcuseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	decided, err := h.excuses.Decide(c.Request.Context(), actorFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.metrics.ExcuseDecided(string(decided.Status))
	response.JSON(c, http.StatusOK, decided, nil)
}

func (h *ExcuseHandler) saveAttachment(c *gin.Context, original string) (string, error) {
	file, err := c.FormFile("archivo")
	if err != nil {
		return "", appErrors.Clone(appErrors.ErrValidation, "missing attachment")
	}
	src, err := file.Open()
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read attachment")
	}
	defer src.Close() //nolint:errcheck

	name := "excusas/" + uniqueName(original)
	saved, err := h.storage.SaveStream(name, src)
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store attachment")
	}
	return saved, nil
}

package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/aprendesoft/colegio-api/internal/service"
	appErrors "github.com/aprendesoft/colegio-api/pkg/errors"
	"github.com/aprendesoft/colegio-api/pkg/response"
)

// ParentHandler exposes parent link and invitation endpoints.
type ParentHandler struct {
	parents *service.ParentService
}

// NewParentHandler constructs ParentHandler.
func NewParentHandler(parents *service.ParentService) *ParentHandler {
	return &ParentHandler{parents: parents}
}

// Assign godoc
// @Summary Link a parent account to a student
// @Tags Parents
// @Accept json
// @Produce json
// @Param payload body service.AssignRequest true "Assignment payload"
// @Success 201 {object} response.Envelope
// @Router /parents/asignar [post]
func (h *ParentHandler) Assign(c *gin.Context) {
	var req service.AssignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	link, err := h.parents.Assign(c.Request.Context(), actorFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, link)
}

// Unassign godoc
// @Summary Remove a parent↔student link
// @Tags Parents
// @Accept json
// @Produce json
// @Param payload body service.UnassignRequest true "Unassignment payload"
// @Success 204
// @Router /parents/desasignar [delete]
func (h *ParentHandler) Unassign(c *gin.Context) {
	var req service.UnassignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	if err := h.parents.Unassign(c.Request.Context(), actorFromContext(c), req); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// ParentOfStudent godoc
// @Summary Parent linked to a student
// @Tags Parents
// @Produce json
// @Param id path string true "Student id"
// @Success 200 {object} response.Envelope
// @Router /parents/de-estudiante/{id} [get]
func (h *ParentHandler) ParentOfStudent(c *gin.Context) {
	parent, err := h.parents.ParentOfStudent(c.Request.Context(), actorFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, parent, nil)
}

// Invite godoc
// @Summary Send a parent invitation code
// @Tags Parents
// @Accept json
// @Produce json
// @Param payload body service.InviteRequest true "Invitation payload"
// @Success 201 {object} response.Envelope
// @Router /parents/invitaciones [post]
func (h *ParentHandler) Invite(c *gin.Context) {
	var req service.InviteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	invitation, err := h.parents.Invite(c.Request.Context(), actorFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, invitation)
}

// AcceptInvitation godoc
// @Summary Redeem an invitation code into a parent account
// @Tags Parents
// @Accept json
// @Produce json
// @Param payload body service.AcceptInvitationRequest true "Acceptance payload"
// @Success 201 {object} response.Envelope
// @Router /parents/invitaciones/aceptar [post]
func (h *ParentHandler) AcceptInvitation(c *gin.Context) {
	var req service.AcceptInvitationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	parent, err := h.parents.AcceptInvitation(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, parent)
}

// MyStudents godoc
// @Summary Students linked to the calling parent
// @Tags Parents
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /parents/mis-estudiantes [get]
func (h *ParentHandler) MyStudents(c *gin.Context) {
	students, err := h.parents.StudentsOfParent(c.Request.Context(), actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, students, nil)
}

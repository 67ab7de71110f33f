package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/aprendesoft/colegio-api/internal/service"
	appErrors "github.com/aprendesoft/colegio-api/pkg/errors"
	"github.com/aprendesoft/colegio-api/pkg/response"
)

// MessagingHandler exposes staff messaging endpoints.
type MessagingHandler struct {
	messaging *service.MessagingService
}

// NewMessagingHandler constructs MessagingHandler.
func NewMessagingHandler(messaging *service.MessagingService) *MessagingHandler {
	return &MessagingHandler{messaging: messaging}
}

// SendCommunication godoc
// @Summary Send a communication to a user or a student's parent
// @Tags Messaging
// @Accept json
// @Produce json
// @Param payload body service.SendCommunicationRequest true "Communication payload"
// @Success 201 {object} response.Envelope
// @Router /communications [post]
func (h *MessagingHandler) SendCommunication(c *gin.Context) {
	var req service.SendCommunicationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	created, err := h.messaging.SendCommunication(c.Request.Context(), actorFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, created)
}

// SendCitation godoc
// @Summary Summon a student's parent to a meeting
// @Tags Messaging
// @Accept json
// @Produce json
// @Param payload body service.SendCitationRequest true "Citation payload"
// @Success 201 {object} response.Envelope
// @Router /citations [post]
func (h *MessagingHandler) SendCitation(c *gin.Context) {
	var req service.SendCitationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	created, err := h.messaging.SendCitation(c.Request.Context(), actorFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, created)
}

package handler

import (
	"io"
	"net/http"
	"path/filepath"

	"github.com/gin-gonic/gin"

	appErrors "github.com/aprendesoft/colegio-api/pkg/errors"
	"github.com/aprendesoft/colegio-api/pkg/response"
	"github.com/aprendesoft/colegio-api/pkg/storage"
)

// AttachmentHandler streams stored attachments behind signed tokens.
type AttachmentHandler struct {
	storage *storage.LocalStorage
	signer  *storage.SignedURLSigner
}

// NewAttachmentHandler constructs AttachmentHandler.
func NewAttachmentHandler(store *storage.LocalStorage, signer *storage.SignedURLSigner) *AttachmentHandler {
	return &AttachmentHandler{storage: store, signer: signer}
}

// Download godoc
// @Summary Download an attachment by signed token
// @Tags Attachments
// @Produce octet-stream
// @Param token path string true "Signed token"
// @Success 200 {file} binary
// @Router /attachments/{token} [get]
func (h *AttachmentHandler) Download(c *gin.Context) {
	_, relPath, _, err := h.signer.Parse(c.Param("token"))
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "invalid or expired download link"))
		return
	}

	file, err := h.storage.Open(relPath)
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "attachment not found"))
		return
	}
	defer file.Close() //nolint:errcheck

	c.Header("Content-Disposition", `attachment; filename="`+filepath.Base(relPath)+`"`)
	c.Status(http.StatusOK)
	if _, err := io.Copy(c.Writer, file); err != nil {
		_ = c.Error(err)
	}
}

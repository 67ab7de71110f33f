package handler

import (
	"path/filepath"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/aprendesoft/colegio-api/internal/middleware"
	"github.com/aprendesoft/colegio-api/internal/models"
	"github.com/aprendesoft/colegio-api/internal/service"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	value, exists := c.Get(middleware.ContextUserKey)
	if !exists {
		return nil
	}
	claims, ok := value.(*models.JWTClaims)
	if !ok {
		return nil
	}
	return claims
}

func actorFromContext(c *gin.Context) service.Actor {
	claims := claimsFromContext(c)
	if claims == nil {
		return service.Actor{}
	}
	return service.Actor{ID: claims.UserID, Role: claims.Role}
}

// uniqueName builds a random stored filename preserving the extension.
func uniqueName(original string) string {
	return uuid.NewString() + filepath.Ext(original)
}

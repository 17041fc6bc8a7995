package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/girishdigge/graduate-voter-lokmangal-sub002/internal/middleware"
	"github.com/girishdigge/graduate-voter-lokmangal-sub002/internal/models"
	"github.com/girishdigge/graduate-voter-lokmangal-sub002/pkg/middleware/requestmeta"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	return middleware.Claims(c)
}

// actorFromContext combines the authenticated principal with the caller's
// request metadata for audit attribution.
func actorFromContext(c *gin.Context) (models.Actor, bool) {
	claims := claimsFromContext(c)
	if claims == nil {
		return models.Actor{}, false
	}
	meta := requestmeta.FromContext(c)
	return models.Actor{
		ID:        claims.UserID,
		Role:      claims.Role,
		IP:        meta.IP,
		UserAgent: meta.UserAgent,
		Client:    meta.Client,
	}, true
}

package middleware

import (
	"net/http"
	"strings"

	"agentpost/internal/services"
	"agentpost/internal/transport/httpdto"

	"github.com/gin-gonic/gin"
)

// AdminAuthMiddleware guards the admin surface with a bearer token issued by
// POST /admin/login.
func AdminAuthMiddleware(service *services.AdminService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractBearer(c)
		if err := service.ParseToken(token); err != nil {
			c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", "UNAUTHORIZED"))
			c.Abort()
			return
		}
		c.Next()
	}
}

func extractBearer(c *gin.Context) string {
	value := c.GetHeader("Authorization")
	parts := strings.SplitN(value, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

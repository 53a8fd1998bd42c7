package webserver

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/stake-plus/stratomai-agents/src/api/apierr"
	"github.com/stake-plus/stratomai-agents/src/api/auth"
)

const userIDKey = "user_id"

// JWTMiddleware accepts a bearer token signed with secret and puts its subject
// into the request context as the principal.
func JWTMiddleware(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.GetHeader("Authorization")
		if !strings.HasPrefix(h, "Bearer ") {
			abortWithError(c, apierr.ErrUnauthorized)
			return
		}
		userID, err := auth.ParseToken(secret, strings.TrimSpace(h[7:]))
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.Set(userIDKey, userID)
		c.Request = c.Request.WithContext(auth.WithPrincipal(c.Request.Context(), userID))
		c.Next()
	}
}

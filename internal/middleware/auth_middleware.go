package middleware

import (
	"log/slog"
	"strings"

	"github.com/gin-gonic/gin"

	apperrors "focusgarden/backend/internal/errors"
)

const UserIDContextKey = "userID"

// TokenParser resolves a bearer token to a user id.
type TokenParser interface {
	ParseToken(token string) (string, *apperrors.APIError)
}

func Auth(parser TokenParser) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			abortWithError(c, apperrors.Unauthorized("missing authorization header"))
			return
		}

		token, found := strings.CutPrefix(authHeader, "Bearer ")
		token = strings.TrimSpace(token)
		if !found || token == "" {
			abortWithError(c, apperrors.Unauthorized("invalid authorization format"))
			return
		}

		userID, apiErr := parser.ParseToken(token)
		if apiErr != nil {
			slog.Debug("middleware.Auth: rejected token", "path", c.FullPath(), "reason", apiErr.Message)
			abortWithError(c, apiErr)
			return
		}

		c.Set(UserIDContextKey, userID)
		c.Next()
	}
}

func UserID(c *gin.Context) string {
	return c.GetString(UserIDContextKey)
}

func abortWithError(c *gin.Context, apiErr *apperrors.APIError) {
	body := gin.H{
		"code":    apiErr.Code,
		"message": apiErr.Message,
	}
	if apiErr.Details != nil {
		body["details"] = apiErr.Details
	}
	c.AbortWithStatusJSON(apiErr.Status, gin.H{"error": body})
}

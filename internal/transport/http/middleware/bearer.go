package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"docchat/internal/transport/http/response"
)

const (
	ContextTokenKey   = "bearer_token"
	ContextSubjectKey = "subject"
)

// TokenVerifier resolves the user a bearer token belongs to.
type TokenVerifier interface {
	Subject(token string) (string, error)
}

// Bearer requires "Authorization: Bearer <jwt>" and stores the raw token and
// its subject for handlers that call the backend on the user's behalf.
func Bearer(verifier TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := strings.TrimSpace(c.GetHeader("Authorization"))
		if authHeader == "" {
			response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "missing authorization header")
			c.Abort()
			return
		}

		const prefix = "Bearer "
		if !strings.HasPrefix(authHeader, prefix) {
			response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid authorization scheme")
			c.Abort()
			return
		}

		token := strings.TrimSpace(strings.TrimPrefix(authHeader, prefix))
		subject, err := verifier.Subject(token)
		if err != nil {
			if errors.Is(err, jwt.ErrTokenExpired) {
				response.Error(c, http.StatusUnauthorized, response.CodeSessionExpired, "session expired")
			} else {
				response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token")
			}
			c.Abort()
			return
		}

		c.Set(ContextTokenKey, token)
		c.Set(ContextSubjectKey, subject)
		c.Next()
	}
}

func Token(c *gin.Context) string {
	return c.GetString(ContextTokenKey)
}

func Subject(c *gin.Context) string {
	return c.GetString(ContextSubjectKey)
}

package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/shiftboard-api/internal/models"
	appErrors "github.com/noah-isme/shiftboard-api/pkg/errors"
	"github.com/noah-isme/shiftboard-api/pkg/response"
)

// ContextUserKey is the gin context key storing the resolved *models.Principal.
const ContextUserKey = "currentUser"

// PrincipalResolver turns a bearer token into a principal.
type PrincipalResolver interface {
	Resolve(token string) (*models.Principal, error)
}

// JWT protects routes by requiring a valid access token.
func JWT(resolver PrincipalResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			err := appErrors.ErrUnauthorized
			if c.GetHeader("Authorization") != "" {
				err = appErrors.Clone(appErrors.ErrUnauthorized, "invalid authorization header")
			}
			response.Error(c, err)
			c.Abort()
			return
		}

		principal, err := resolver.Resolve(token)
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}

		c.Set(ContextUserKey, principal)
		c.Next()
	}
}

// OptionalJWT attaches the principal when a valid token is present. Missing or
// invalid tokens leave the request anonymous.
func OptionalJWT(resolver PrincipalResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			c.Next()
			return
		}

		principal, err := resolver.Resolve(token)
		if err != nil {
			c.Next()
			return
		}

		c.Set(ContextUserKey, principal)
		c.Next()
	}
}

// PrincipalFrom returns the principal stored by JWT or OptionalJWT, or nil.
func PrincipalFrom(c *gin.Context) *models.Principal {
	value, exists := c.Get(ContextUserKey)
	if !exists {
		return nil
	}
	principal, _ := value.(*models.Principal)
	return principal
}

func bearerToken(header string) (string, bool) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}

package middleware

import (
	"mime"
	"net/http"

	"github.com/eaglelearn/account-api/shared/models"
	"github.com/gin-gonic/gin"
)

// RequireContentType rejects requests whose body is not of media type ct.
func RequireContentType(ct string) gin.HandlerFunc {
	return func(c *gin.Context) {
		mediaType, _, err := mime.ParseMediaType(c.GetHeader("Content-Type"))
		if err != nil || mediaType != ct {
			RespondWithError(c, http.StatusUnsupportedMediaType, "Unsupported media type \""+c.GetHeader("Content-Type")+"\" in request.")
			c.Abort()
			return
		}
		c.Next()
	}
}

// Capability decides whether a caller may use an administrative endpoint.
type Capability func(models.Caller) bool

// CanDeactivateUser allows superusers and holders of the deactivate permission.
func CanDeactivateUser(caller models.Caller) bool {
	return caller.IsSuperuser || caller.HasPermission(models.PermissionDeactivateUsers)
}

// CanRetireUser allows superusers and the configured retirement service account.
func CanRetireUser(serviceUsername string) Capability {
	return func(caller models.Caller) bool {
		return caller.IsSuperuser || (serviceUsername != "" && caller.Username == serviceUsername)
	}
}

func RequireCapability(allowed Capability) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, ok := GetCaller(c)
		if !ok {
			RespondWithError(c, http.StatusUnauthorized, "Authentication credentials were not provided.")
			c.Abort()
			return
		}
		if !allowed(caller) {
			RespondWithError(c, http.StatusForbidden, "You do not have permission to perform this action.")
			c.Abort()
			return
		}
		c.Next()
	}
}

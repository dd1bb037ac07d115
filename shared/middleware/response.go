package middleware

import (
	"log/slog"
	"net/http"

	"github.com/eaglelearn/account-api/shared/apperrors"
	"github.com/gin-gonic/gin"
)

func RespondWithError(c *gin.Context, code int, message string) {
	c.JSON(code, gin.H{
		"message": message,
	})
}

// RespondWithFieldErrors reports every rejected field of a patch.
func RespondWithFieldErrors(c *gin.Context, err *apperrors.AccountValidationError) {
	c.JSON(http.StatusBadRequest, gin.H{
		"field_errors": err.FieldErrors,
	})
}

func RespondWithUpdateError(c *gin.Context, err *apperrors.AccountUpdateError) {
	c.JSON(http.StatusBadRequest, gin.H{
		"developer_message": err.DeveloperMessage,
		"user_message":      err.UserMessage,
	})
}

// RespondWithInternalError is the last-resort barrier for errors the handler
// did not classify. The full error is logged; the client sees publicMessage.
func RespondWithInternalError(c *gin.Context, err error, publicMessage string) {
	slog.Error("request failed",
		"method", c.Request.Method,
		"path", c.Request.URL.Path,
		"error", err,
	)
	RespondWithError(c, http.StatusInternalServerError, publicMessage)
}

// ConcealedStatus is the status for a target the caller may not see. Staff
// learn the target is off limits; everyone else cannot tell it from a
// missing account.
func ConcealedStatus(privileged bool) int {
	if privileged {
		return http.StatusForbidden
	}
	return http.StatusNotFound
}

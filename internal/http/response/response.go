package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/testbridge-backend/internal/platform/apierr"
)

// ErrorBody is the fallback error shape: {"errors": [...]}.
type ErrorBody struct {
	Errors []string `json:"errors"`
}

// RespondError maps err onto its HTTP status. Validation errors with field
// messages render as {field: [messages]}; unknown errors become an opaque 500
// and are attached to the gin context for the request logger.
func RespondError(c *gin.Context, err error) {
	var apiErr *apierr.Error
	if !errors.As(err, &apiErr) || apiErr.Code == apierr.CodeInternal || apiErr.Code == "" {
		_ = c.Error(err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, ErrorBody{Errors: []string{"internal server error"}})
		return
	}
	status := apiErr.Status()
	if apiErr.Code == apierr.CodeValidation && len(apiErr.Fields) > 0 && apiErr.Message == "" {
		c.AbortWithStatusJSON(status, apiErr.Fields)
		return
	}
	msg := apiErr.Message
	if msg == "" {
		msg = apiErr.Error()
	}
	c.AbortWithStatusJSON(status, ErrorBody{Errors: []string{msg}})
}

// Invalid reports a malformed request parameter as a field error.
func Invalid(c *gin.Context, field, message string) {
	RespondError(c, apierr.FieldValidation("request", field, message))
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}

func RespondCreated(c *gin.Context, payload any) {
	c.JSON(http.StatusCreated, payload)
}

func RespondNoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

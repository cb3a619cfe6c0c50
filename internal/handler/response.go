package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/jwalitptl/notification-service/pkg/errors"
)

type Response struct {
	Status  string      `json:"status"`
	Error   string      `json:"error,omitempty"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

func NewSuccessResponse(data interface{}) *Response {
	return &Response{
		Status: "success",
		Data:   data,
	}
}

func NewMessageResponse(message string, data interface{}) *Response {
	return &Response{
		Status:  "success",
		Message: message,
		Data:    data,
	}
}

// NewErrorResponse carries a machine-readable code next to the message.
func NewErrorResponse(code, message string) *Response {
	return &Response{
		Status:  "error",
		Error:   code,
		Message: message,
	}
}

// RespondError writes err with the status and code its AppError carries.
// Anything else is reported as a processing error without leaking details.
func RespondError(c *gin.Context, err error) {
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, NewErrorResponse("processing_error", "Failed to process request"))
		return
	}
	c.JSON(appErr.StatusCode(), NewErrorResponse(ErrorCode(appErr.Code), appErr.Message))
}

func ErrorCode(code apperrors.ErrorCode) string {
	switch code {
	case apperrors.ErrNotFound:
		return "not_found"
	case apperrors.ErrBadRequest:
		return "validation_error"
	case apperrors.ErrUnauthorized:
		return "unauthorized"
	case apperrors.ErrNotRetryable:
		return "cannot_retry"
	case apperrors.ErrConflict:
		return "conflict"
	default:
		return "processing_error"
	}
}

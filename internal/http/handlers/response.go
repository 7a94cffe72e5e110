// Package handlers implements the HTTP endpoints of the backoffice API.
//
// Every failure goes through the same envelope so clients can branch on a
// stable code instead of parsing messages:
//
//	HTTP/1.1 404 Not Found
//	{
//	  "request_id": "123e4567-e89b-12d3-a456-426614174000",
//	  "code": "not_found",
//	  "message": "conversation not found"
//	}
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sporttia/onboarding-backend/internal/http/middleware"
)

// ErrorResponse is the error envelope shared by every endpoint. RequestID
// echoes X-Request-ID so a client report can be matched to server logs;
// Code is one of the constants in errors.go.
type ErrorResponse struct {
	RequestID string `json:"request_id,omitempty"`
	Code      string `json:"code"`
	Message   string `json:"message"`
}

// fail writes the error envelope and aborts the handler chain. Responses
// at 500 and above are also logged with the request-scoped logger; client
// errors are the caller's problem and stay out of the error log.
func fail(c *gin.Context, status int, code, msg string) {
	if status >= http.StatusInternalServerError {
		middleware.LoggerFrom(c).Error().
			Int("status", status).
			Str("code", code).
			Str("message", msg).
			Msg("api error")
	}

	c.AbortWithStatusJSON(status, ErrorResponse{
		RequestID: c.Writer.Header().Get("X-Request-ID"),
		Code:      code,
		Message:   msg,
	})
}

// Fail exposes fail to the router for NoRoute and middleware error paths.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

func ok(c *gin.Context, status int, body any) {
	c.JSON(status, body)
}

func noContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

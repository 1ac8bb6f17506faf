// Package handlers implements the gateway's HTTP endpoints: pairing,
// command introspection, and store diagnostics.
//
// All error responses share the envelope below, with a stable machine
// readable code and the request correlation ID:
//
//	HTTP/1.1 400 Bad Request
//	{
//	  "request_id": "123e4567-e89b-12d3-a456-426614174000",
//	  "code": "invalid_number",
//	  "message": "invalid phone number"
//	}
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-wa-gateway/internal/http/middleware"
)

// ErrorResponse is the standard error envelope returned by all endpoints.
type ErrorResponse struct {
	// RequestID correlates server logs and client errors.
	RequestID string `json:"request_id,omitempty"`
	// Code is a stable, machine-readable string (see errors.go).
	Code string `json:"code"`
	// Message is a human-readable description safe to show to users.
	Message string `json:"message"`
	// Details optionally carries failure specifics (pairing errors).
	Details string `json:"details,omitempty"`
}

// fail aborts the request with the structured error envelope; 5xx responses
// are additionally logged with the request-scoped logger.
func fail(c *gin.Context, status int, code, msg, details string) {
	resp := ErrorResponse{
		RequestID: c.Writer.Header().Get("X-Request-ID"),
		Code:      code,
		Message:   msg,
		Details:   details,
	}

	if status >= http.StatusInternalServerError {
		middleware.LoggerFrom(c).Error().
			Int("status", status).
			Str("code", code).
			Str("message", msg).
			Str("details", details).
			Msg("api error")
	}

	c.AbortWithStatusJSON(status, resp)
}

// Fail is the exported variant of fail for router-level fallbacks.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg, "") }

// ok writes a success JSON response.
func ok(c *gin.Context, status int, body any) {
	c.JSON(status, body)
}

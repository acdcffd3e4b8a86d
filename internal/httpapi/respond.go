package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"booking-platform/internal/agents"
	"booking-platform/internal/bolna"
	"booking-platform/internal/calls"
	"booking-platform/internal/credentials"
	"booking-platform/pkg/logger"

	"github.com/gin-gonic/gin"
)

// envelope is the uniform response body.
type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

func respond(c *gin.Context, status int, message string, data any) {
	c.JSON(status, envelope{Success: true, Message: message, Data: data})
}

func fail(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, envelope{Success: false, Message: message})
}

// writeError maps domain errors to HTTP statuses. Unknown errors become a generic 500 and are
// logged with the request logger.
func writeError(c *gin.Context, err error) {
	var verr *agents.ValidationError
	var apiErr *bolna.APIError
	switch {
	case errors.As(err, &verr):
		fail(c, http.StatusBadRequest, verr.Message())
	case errors.Is(err, calls.ErrInvalidPhone),
		errors.Is(err, calls.ErrInvalidRequest),
		errors.Is(err, calls.ErrMissingCallID),
		errors.Is(err, agents.ErrInvalidRequest),
		errors.Is(err, credentials.ErrInvalidRequest),
		errors.Is(err, credentials.ErrKeyTooShort):
		fail(c, http.StatusBadRequest, publicMessage(err))
	case errors.Is(err, credentials.ErrKeyRejected):
		fail(c, http.StatusBadRequest, "Invalid Bolna API key")
	case errors.Is(err, calls.ErrAgentNotFound), errors.Is(err, agents.ErrNotFound):
		fail(c, http.StatusNotFound, "Agent not found")
	case errors.Is(err, calls.ErrNotFound):
		fail(c, http.StatusNotFound, "Call not found")
	case errors.Is(err, credentials.ErrOrganizationNotFound):
		fail(c, http.StatusNotFound, "Organization not found")
	case errors.Is(err, credentials.ErrNotConfigured):
		fail(c, http.StatusForbidden, "Bolna API key not configured")
	case errors.Is(err, calls.ErrTooManyCalls):
		fail(c, http.StatusTooManyRequests, publicMessage(err))
	case errors.As(err, &apiErr):
		fail(c, http.StatusBadRequest, apiErr.Message)
	case errors.Is(err, bolna.ErrUnreachable):
		fail(c, http.StatusBadGateway, bolna.MessageOf(err))
	default:
		logger.FromGin(c).Error("request failed", "err", err)
		fail(c, http.StatusInternalServerError, "Internal server error")
	}
}

// publicMessage drops the "pkg: " prefix of sentinel errors.
func publicMessage(err error) string {
	msg := err.Error()
	if i := strings.Index(msg, ": "); i >= 0 && !strings.Contains(msg[:i], " ") {
		msg = msg[i+2:]
	}
	if msg == "" {
		return "Bad request"
	}
	return strings.ToUpper(msg[:1]) + msg[1:]
}

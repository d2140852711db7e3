package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"delivery/internal/domain"
	"delivery/internal/repository"
	"delivery/internal/service"
	"delivery/internal/transition"
)

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error        string        `json:"error"`
	Code         string        `json:"code,omitempty"`
	AllowedRoles []domain.Role `json:"allowedRoles,omitempty"`
}

// respondError sends an error response with the appropriate HTTP status code.
func respondError(c *gin.Context, err error) {
	resp := ErrorResponse{Error: err.Error()}
	var te *transition.Error
	if errors.As(err, &te) {
		resp.Error = te.Message
		resp.Code = string(te.Code)
		resp.AllowedRoles = te.AllowedRoles
	} else if errors.Is(err, service.ErrConcurrentTransition) {
		resp.Code = "conflict"
	}
	c.JSON(mapErrorToHTTPStatus(err), resp)
}

// respondJSON sends a JSON response with the given status code.
func respondJSON(c *gin.Context, code int, data any) {
	c.JSON(code, data)
}

// badRequest sends a 400 with a fixed message.
func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: msg})
}

// mapErrorToHTTPStatus maps transition/service/repository errors to HTTP status codes.
func mapErrorToHTTPStatus(err error) int {
	switch {
	// Transition outcomes
	case errors.Is(err, transition.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, transition.ErrRoleViolation):
		return http.StatusForbidden
	case errors.Is(err, transition.ErrPreconditionFailed):
		return http.StatusUnprocessableEntity
	case errors.Is(err, transition.ErrPaymentRequired):
		return http.StatusPaymentRequired

	// Not found errors
	case errors.Is(err, repository.ErrNotFound),
		errors.Is(err, service.ErrRiderNotFound):
		return http.StatusNotFound

	// Validation errors - Bad Request
	case errors.Is(err, service.ErrInvalidOrderID),
		errors.Is(err, service.ErrInvalidRiderID),
		errors.Is(err, service.ErrInvalidStatus),
		errors.Is(err, service.ErrInvalidPaymentStatus),
		errors.Is(err, service.ErrInvalidOrder),
		errors.Is(err, service.ErrInvalidLocation),
		errors.Is(err, service.ErrInvalidPaymentAmount),
		errors.Is(err, service.ErrInvalidPaymentReference),
		errors.Is(err, service.ErrInvalidWebhookSignature):
		return http.StatusBadRequest

	case errors.Is(err, service.ErrInvalidActor):
		return http.StatusUnauthorized

	// Conflict errors
	case errors.Is(err, service.ErrConcurrentTransition),
		errors.Is(err, repository.ErrConflict),
		errors.Is(err, service.ErrOrderNotAssignable),
		errors.Is(err, service.ErrPaymentAlreadyCompleted):
		return http.StatusConflict

	case errors.Is(err, service.ErrAssignmentForbidden):
		return http.StatusForbidden

	// Service unavailable
	case errors.Is(err, service.ErrPaymentsDisabled),
		errors.Is(err, service.ErrHistoryUnavailable),
		errors.Is(err, service.ErrLocationIndexDisabled):
		return http.StatusServiceUnavailable

	// Default to internal server error
	default:
		return http.StatusInternalServerError
	}
}

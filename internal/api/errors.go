package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/kkkkikiki/contest/internal/eligibility"
	"github.com/kkkkikiki/contest/internal/logger"
	"github.com/kkkkikiki/contest/internal/model"
)

// ErrorCode represents a standardized error code
type ErrorCode string

const (
	errCodeBadRequest    ErrorCode = "bad_request"
	errCodeNotFound      ErrorCode = "not_found"
	errCodeIneligible    ErrorCode = "ineligible"
	errCodeRateLimited   ErrorCode = "rate_limited"
	errCodeUnavailable   ErrorCode = "allocation_unavailable"
	errCodeInternalError ErrorCode = "internal_error"
)

// errorResponse represents a standardized error response
type errorResponse struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// ineligibleResponse is returned when a student cannot enter a contest
type ineligibleResponse struct {
	Eligible bool               `json:"eligible"`
	Reason   eligibility.Reason `json:"reason"`
	Error    string             `json:"error"`
}

func respondWithError(c *gin.Context, statusCode int, code ErrorCode, message string) {
	c.JSON(statusCode, errorResponse{Error: errorDetail{Code: code, Message: message}})
}

// respondServiceError maps engine and service errors to HTTP responses
func respondServiceError(c *gin.Context, err error) {
	var ie *eligibility.IneligibleError
	switch {
	case errors.As(err, &ie):
		c.JSON(http.StatusUnprocessableEntity, ineligibleResponse{
			Eligible: false,
			Reason:   ie.Reason,
			Error:    ie.Error(),
		})
	case errors.Is(err, model.ErrContestNotFound):
		respondWithError(c, http.StatusNotFound, errCodeNotFound, "Contest not found")
	case errors.Is(err, model.ErrAllocationFailed):
		c.Header("Retry-After", "1")
		respondWithError(c, http.StatusServiceUnavailable, errCodeUnavailable, "Could not record your entry, please try again")
	default:
		logger.Error(err, zap.String("request_id", c.GetString(requestIDKey)))
		respondWithError(c, http.StatusInternalServerError, errCodeInternalError, "Internal server error")
	}
}

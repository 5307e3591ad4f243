package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/loyalty/internal/authorization"
	balancedomain "github.com/smallbiznis/loyalty/internal/balance/domain"
	claimdomain "github.com/smallbiznis/loyalty/internal/claim/domain"
	ledgerdomain "github.com/smallbiznis/loyalty/internal/ledger/domain"
	loyaltydomain "github.com/smallbiznis/loyalty/internal/loyalty/domain"
	pendingdomain "github.com/smallbiznis/loyalty/internal/pendingcredit/domain"
	rewarddomain "github.com/smallbiznis/loyalty/internal/reward/domain"
	"github.com/smallbiznis/loyalty/pkg/db"
	"github.com/smallbiznis/loyalty/pkg/db/pagination"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrConflict           = errors.New("conflict")
	ErrInternal           = errors.New("internal_error")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrRateLimited        = errors.New("rate_limited")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	if isValidationError(err) {
		code := validationErrorCode(err)
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: validationErrorMessage(code),
				},
			},
		}
	}

	switch {
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized, errorPayload{Type: "unauthorized", Message: "unauthorized"}
	case errors.Is(err, ErrForbidden),
		errors.Is(err, authorization.ErrForbidden):
		return http.StatusForbidden, errorPayload{Type: "forbidden", Message: "forbidden"}
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{Type: "rate_limited", Message: "too many requests"}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{Type: "not_found", Message: "not found"}
	case errors.Is(err, rewarddomain.ErrExpired):
		return http.StatusUnprocessableEntity, errorPayload{Type: "expired_reward", Message: "reward has expired"}
	case errors.Is(err, balancedomain.ErrInsufficientPoints):
		return http.StatusUnprocessableEntity, errorPayload{Type: "insufficient_points", Message: "not enough points"}
	case errors.Is(err, claimdomain.ErrDailyLimitExceeded):
		return http.StatusUnprocessableEntity, errorPayload{Type: "daily_limit_exceeded", Message: "daily claim limit reached"}
	case errors.Is(err, db.ErrConcurrencyConflict):
		return http.StatusConflict, errorPayload{Type: "concurrency_conflict", Message: "concurrent update, retry the request"}
	case errors.Is(err, ErrConflict),
		errors.Is(err, claimdomain.ErrAlreadyUsed),
		errors.Is(err, ledgerdomain.ErrDuplicateEntry),
		errors.Is(err, rewarddomain.ErrDuplicateSlug):
		return http.StatusConflict, errorPayload{Type: "conflict", Message: "conflict"}
	case db.IsStorageError(err),
		errors.Is(err, claimdomain.ErrCodeSpaceExhausted),
		errors.Is(err, ErrServiceUnavailable):
		return http.StatusServiceUnavailable, errorPayload{Type: "storage_error", Message: "storage unavailable"}
	default:
		return http.StatusInternalServerError, errorPayload{Type: "internal_error", Message: "internal server error"}
	}
}

// classifyErrorForLog returns the response type and a stable code for logs.
func classifyErrorForLog(err error) (string, string) {
	_, payload := mapError(err)
	if len(payload.Errors) > 0 {
		return payload.Type, payload.Errors[0].Code
	}
	return payload.Type, payload.Type
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

var validationSentinels = []error{
	ErrInvalidRequest,
	ledgerdomain.ErrInvalidUserID,
	ledgerdomain.ErrInvalidOrderID,
	ledgerdomain.ErrInvalidKind,
	ledgerdomain.ErrInvalidPoints,
	ledgerdomain.ErrInvalidDedupeKey,
	rewarddomain.ErrInvalidID,
	rewarddomain.ErrInvalidName,
	rewarddomain.ErrInvalidType,
	rewarddomain.ErrInvalidPoints,
	claimdomain.ErrInvalidCode,
	pendingdomain.ErrMissingOwner,
	pendingdomain.ErrInvalidGuestRef,
	pendingdomain.ErrNegativePoints,
	loyaltydomain.ErrMissingPoints,
	loyaltydomain.ErrInvalidOrderTotal,
	loyaltydomain.ErrInvalidReason,
	loyaltydomain.ErrInvalidIdempotency,
	pagination.ErrInvalidPageToken,
}

func isValidationError(err error) bool {
	return matchedSentinel(err) != nil
}

func matchedSentinel(err error) error {
	for _, sentinel := range validationSentinels {
		if errors.Is(err, sentinel) {
			return sentinel
		}
	}
	return nil
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, rewarddomain.ErrNotFound),
		errors.Is(err, claimdomain.ErrNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func validationErrorCode(err error) string {
	if sentinel := matchedSentinel(err); sentinel != nil {
		return sentinel.Error()
	}
	return err.Error()
}

func validationErrorField(code string) string {
	if code == "invalid_request" {
		return "request"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	default:
		return "invalid value"
	}
}

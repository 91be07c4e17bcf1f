package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	activitydomain "github.com/smallbiznis/reserva/internal/activity/domain"
	customerdomain "github.com/smallbiznis/reserva/internal/customer/domain"
	holdingdomain "github.com/smallbiznis/reserva/internal/holding/domain"
	ledgerdomain "github.com/smallbiznis/reserva/internal/ledger/domain"
	pointsdomain "github.com/smallbiznis/reserva/internal/points/domain"
	productdomain "github.com/smallbiznis/reserva/internal/product/domain"
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
	ErrUnauthorized   = errors.New("unauthorized")
	ErrConflict       = errors.New("conflict")
	ErrInternal       = errors.New("internal_error")
	ErrNotFound       = errors.New("not_found")
	ErrInvalidRequest = errors.New("invalid_request")
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
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   "request",
					Code:    err.Error(),
					Message: err.Error(),
				},
			},
		}
	}

	switch {
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case isConflictError(err):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: conflictMessage(err),
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	}

	return http.StatusInternalServerError, errorPayload{
		Type:    "internal_error",
		Message: "internal server error",
	}
}

func asValidationErrors(err error) *ValidationErrors {
	var vErrs *ValidationErrors
	if errors.As(err, &vErrs) {
		return vErrs
	}
	return nil
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, pointsdomain.ErrInvalidAmount),
		errors.Is(err, pointsdomain.ErrInvalidTenant),
		errors.Is(err, pointsdomain.ErrInvalidCustomer),
		errors.Is(err, holdingdomain.ErrInvalidTenant),
		errors.Is(err, holdingdomain.ErrInvalidCustomer),
		errors.Is(err, holdingdomain.ErrInvalidProduct),
		errors.Is(err, holdingdomain.ErrInvalidHolding),
		errors.Is(err, holdingdomain.ErrInvalidQuantity),
		errors.Is(err, holdingdomain.ErrInvalidFragment),
		errors.Is(err, ledgerdomain.ErrZeroDelta),
		errors.Is(err, ledgerdomain.ErrInvalidTenant),
		errors.Is(err, ledgerdomain.ErrInvalidCustomer),
		errors.Is(err, ledgerdomain.ErrInvalidHolding),
		errors.Is(err, activitydomain.ErrInvalidTenant),
		errors.Is(err, activitydomain.ErrInvalidCustomer),
		errors.Is(err, activitydomain.ErrInvalidKind),
		errors.Is(err, activitydomain.ErrInvalidBucket),
		errors.Is(err, customerdomain.ErrInvalidTenant),
		errors.Is(err, customerdomain.ErrInvalidName),
		errors.Is(err, customerdomain.ErrInvalidID),
		errors.Is(err, productdomain.ErrInvalidTenant),
		errors.Is(err, productdomain.ErrInvalidCode),
		errors.Is(err, productdomain.ErrInvalidName),
		errors.Is(err, productdomain.ErrInvalidID):
		return true
	}
	return false
}

func isConflictError(err error) bool {
	switch {
	case errors.Is(err, ErrConflict),
		errors.Is(err, holdingdomain.ErrHoldingExists),
		errors.Is(err, holdingdomain.ErrConsistency),
		errors.Is(err, holdingdomain.ErrKeyReused),
		errors.Is(err, productdomain.ErrCodeExists):
		return true
	}
	return false
}

func conflictMessage(err error) string {
	if errors.Is(err, holdingdomain.ErrConsistency) {
		return "the holding changed concurrently; retry the operation"
	}
	if errors.Is(err, holdingdomain.ErrKeyReused) {
		return "the idempotency key was already used for a different operation"
	}
	return "conflict"
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, holdingdomain.ErrNotFound),
		errors.Is(err, holdingdomain.ErrEntryNotFound),
		errors.Is(err, ledgerdomain.ErrNotFound),
		errors.Is(err, customerdomain.ErrNotFound),
		errors.Is(err, productdomain.ErrNotFound):
		return true
	}
	return false
}

func classifyErrorForLog(err error) (string, string) {
	if err == nil {
		return "", ""
	}
	switch {
	case asValidationErrors(err) != nil, isValidationError(err):
		return "validation_error", err.Error()
	case isConflictError(err):
		return "conflict", err.Error()
	case isNotFoundError(err):
		return "not_found", err.Error()
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized", err.Error()
	}
	return "internal_error", err.Error()
}

package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	paymentdomain "github.com/smallbiznis/duesledger/internal/payment/domain"
	treasurydomain "github.com/smallbiznis/duesledger/internal/treasury/domain"
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
	Code    string            `json:"code,omitempty"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized = errors.New("unauthorized")
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

// mapError turns the ledger error taxonomy into HTTP responses. Classified
// errors carry their code and message to the client; store failures do not.
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

	var classified *paymentdomain.Error
	hasClass := errors.As(err, &classified)

	switch {
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case errors.Is(err, treasurydomain.ErrInsufficientCash):
		return http.StatusUnprocessableEntity, classifiedPayload("insufficient_cash", classified)
	case errors.Is(err, paymentdomain.ErrForbidden):
		return http.StatusForbidden, classifiedPayload("forbidden", classified)
	case errors.Is(err, paymentdomain.ErrValidation):
		payload := classifiedPayload("validation_error", classified)
		payload.Errors = []ValidationError{
			{
				Field:   validationErrorField(payload.Code),
				Code:    payload.Code,
				Message: payload.Message,
			},
		}
		return http.StatusBadRequest, payload
	case errors.Is(err, paymentdomain.ErrPrecision):
		return http.StatusBadRequest, classifiedPayload("precision_error", classified)
	case errors.Is(err, paymentdomain.ErrNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return http.StatusNotFound, classifiedPayload("not_found", classified)
	case errors.Is(err, paymentdomain.ErrConflict):
		return http.StatusConflict, classifiedPayload("conflict", classified)
	case errors.Is(err, paymentdomain.ErrExternalDependency):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service unavailable",
		}
	case hasClass:
		return http.StatusInternalServerError, classifiedPayload("internal_error", classified)
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

func classifiedPayload(errorType string, classified *paymentdomain.Error) errorPayload {
	payload := errorPayload{Type: errorType, Message: strings.ReplaceAll(errorType, "_", " ")}
	if classified != nil {
		payload.Code = classified.Code
		payload.Message = classified.Message
	}
	return payload
}

// classifyErrorForLog feeds error_type/error_code into the request log line.
func classifyErrorForLog(err error) (string, string) {
	status, payload := mapError(err)
	if status >= http.StatusInternalServerError && payload.Code == "" {
		return payload.Type, paymentdomain.CodeOf(err)
	}
	return payload.Type, payload.Code
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func validationErrorField(code string) string {
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}

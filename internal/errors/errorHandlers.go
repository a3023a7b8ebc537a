package errors

import (
	stderrors "errors"
	"net/http"

	"dessert_generator_go_backend/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ErrorType represents the type of error
type ErrorType string

const (
	ErrorTypeBadRequest          ErrorType = "BAD_REQUEST"
	ErrorTypeUnauthorized        ErrorType = "UNAUTHORIZED"
	ErrorTypeForbidden           ErrorType = "FORBIDDEN"
	ErrorTypeNotFound            ErrorType = "NOT_FOUND"
	ErrorTypeInsufficientCredits ErrorType = "INSUFFICIENT_CREDITS"
	ErrorTypeRateLimited         ErrorType = "RATE_LIMITED"
	ErrorTypeServiceUnavailable  ErrorType = "SERVICE_UNAVAILABLE"
	ErrorTypeInternalServerError ErrorType = "INTERNAL_SERVER_ERROR"
)

// CustomError represents an error with associated HTTP status code and type
type CustomError struct {
	Type       ErrorType
	Message    string
	StatusCode int
	Internal   error
}

func (e *CustomError) Error() string {
	return e.Message
}

func (e *CustomError) Unwrap() error {
	return e.Internal
}

func newError(errType ErrorType, message string, statusCode int, internal error) *CustomError {
	return &CustomError{
		Type:       errType,
		Message:    message,
		StatusCode: statusCode,
		Internal:   internal,
	}
}

func New400Error(message string) *CustomError {
	return newError(ErrorTypeBadRequest, message, http.StatusBadRequest, nil)
}

func New401Error() *CustomError {
	return newError(ErrorTypeUnauthorized, "Unauthorized access", http.StatusUnauthorized, nil)
}

func New402Error(message string) *CustomError {
	return newError(ErrorTypeInsufficientCredits, message, http.StatusPaymentRequired, nil)
}

func New403Error() *CustomError {
	return newError(ErrorTypeForbidden, "Access forbidden", http.StatusForbidden, nil)
}

func New404Error(message string) *CustomError {
	return newError(ErrorTypeNotFound, message, http.StatusNotFound, nil)
}

func New429Error(message string) *CustomError {
	return newError(ErrorTypeRateLimited, message, http.StatusTooManyRequests, nil)
}

func New503Error(message string) *CustomError {
	return newError(ErrorTypeServiceUnavailable, message, http.StatusServiceUnavailable, nil)
}

// New500Error hides the internal error from the client; it is only logged.
func New500Error(internal error) *CustomError {
	return newError(ErrorTypeInternalServerError, "An unexpected error occurred", http.StatusInternalServerError, internal)
}

// FromDomain maps service errors onto their HTTP representation. Unknown errors become 500s.
func FromDomain(err error) *CustomError {
	var customErr *CustomError
	if stderrors.As(err, &customErr) {
		return customErr
	}

	var verr *services.ValidationError
	switch {
	case stderrors.As(err, &verr):
		return New400Error(verr.Error())
	case stderrors.Is(err, services.ErrInvalidCredits):
		return New400Error(err.Error())
	case stderrors.Is(err, services.ErrUserNotFound):
		return New404Error("User not found")
	case stderrors.Is(err, services.ErrDessertNotFound):
		return New404Error("Dessert not found")
	case stderrors.Is(err, services.ErrInsufficientCredits):
		return New402Error("Insufficient credits")
	case stderrors.Is(err, services.ErrUpstreamRateLimited):
		return New429Error("Too many requests, please try again later")
	case stderrors.Is(err, services.ErrCheckoutNotConfigured):
		return New503Error("Checkout is not available")
	default:
		return New500Error(err)
	}
}

// HandleError translates err and writes the JSON error envelope.
func HandleError(c *gin.Context, err error) {
	customErr := FromDomain(err)

	if customErr.Type == ErrorTypeInternalServerError {
		logger := zerolog.Ctx(c.Request.Context())
		if logger.GetLevel() == zerolog.Disabled {
			logger = &log.Logger
		}
		logger.Error().
			Err(customErr.Internal).
			Str("url", c.Request.URL.String()).
			Msg("Internal Server Error")
	}

	c.AbortWithStatusJSON(customErr.StatusCode, gin.H{
		"error": gin.H{
			"type":    customErr.Type,
			"message": customErr.Message,
		},
	})
}

package v1

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/dmehra2102/prod-golang-projects/medvault/internal/domain"
	"github.com/dmehra2102/prod-golang-projects/medvault/internal/domain/record"
	"github.com/dmehra2102/prod-golang-projects/medvault/internal/domain/reminder"
	"github.com/dmehra2102/prod-golang-projects/medvault/internal/domain/sharedlink"
	"github.com/dmehra2102/prod-golang-projects/medvault/internal/domain/subscription"
	"github.com/dmehra2102/prod-golang-projects/medvault/internal/entitlement"
	"github.com/dmehra2102/prod-golang-projects/medvault/internal/service"
	"github.com/dmehra2102/prod-golang-projects/medvault/pkg/auth"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type APIResponse[T any] struct {
	Data    T      `json:"data"`
	Message string `json:"message,omitempty"`
}

type ErrorResponse struct {
	Error   string            `json:"error"`
	Code    string            `json:"code,omitempty"`
	Details map[string]string `json:"details,omitempty"`
}

type ValidationErrorResponse struct {
	Error  string   `json:"error"`
	Fields []string `json:"fields"`
}

type PagedResponse[T any] struct {
	Items      []T   `json:"items"`
	TotalCount int64 `json:"total_count"`
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	TotalPages int   `json:"total_pages"`
}

func respondOK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, APIResponse[any]{Data: data})
}

func respondCreated(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, APIResponse[any]{Data: data})
}

func respondMessage(c *gin.Context, message string) {
	c.JSON(http.StatusOK, APIResponse[any]{Message: message})
}

func respondError(c *gin.Context, status int, message string) {
	c.JSON(status, ErrorResponse{Error: message})
}

func respondServiceError(c *gin.Context, err error) {
	var validErr *service.ValidationError
	if errors.As(err, &validErr) {
		c.JSON(http.StatusBadRequest, ValidationErrorResponse{
			Error:  "validation failed",
			Fields: validErr.Fields,
		})
		return
	}

	switch {
	case errors.Is(err, record.ErrFileUnavailable):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error(), Code: "FILE_UNAVAILABLE"})

	case errors.Is(err, record.ErrRecordNotFound),
		errors.Is(err, sharedlink.ErrLinkNotFound),
		errors.Is(err, domain.ErrUserNotFound),
		errors.Is(err, subscription.ErrPackageNotFound),
		errors.Is(err, reminder.ErrReminderNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error()})

	case errors.Is(err, sharedlink.ErrLinkExpired):
		c.JSON(http.StatusGone, ErrorResponse{Error: err.Error(), Code: "LINK_EXPIRED"})

	case errors.Is(err, entitlement.ErrQuotaExceeded):
		c.JSON(http.StatusConflict, ErrorResponse{Error: err.Error(), Code: "QUOTA_EXCEEDED"})

	case errors.Is(err, domain.ErrUsernameTaken),
		errors.Is(err, subscription.ErrPackageNameTaken),
		errors.Is(err, subscription.ErrPackageInUse),
		errors.Is(err, domain.ErrUserHasRecords),
		errors.Is(err, domain.ErrRoleLocked):
		c.JSON(http.StatusConflict, ErrorResponse{Error: err.Error()})

	case errors.Is(err, record.ErrUnsupportedFileType),
		errors.Is(err, record.ErrFileTooLarge),
		errors.Is(err, record.ErrFileRequired),
		errors.Is(err, record.ErrShareTargetInvalid),
		errors.Is(err, reminder.ErrInvalidRecipient),
		errors.Is(err, reminder.ErrTitleRequired),
		errors.Is(err, reminder.ErrTitleTooLong),
		errors.Is(err, reminder.ErrDateRequired),
		errors.Is(err, domain.ErrPatientRequired),
		errors.Is(err, domain.ErrDoctorRequired),
		errors.Is(err, domain.ErrInvalidRole),
		errors.Is(err, subscription.ErrNegativeQuota),
		errors.Is(err, service.ErrMFANotEnrolled),
		errors.Is(err, auth.ErrInvalidOTP):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})

	case errors.Is(err, entitlement.ErrNoPackage),
		errors.Is(err, entitlement.ErrFeatureDisabled),
		errors.Is(err, entitlement.ErrUploadsNotAllowed):
		c.JSON(http.StatusForbidden, ErrorResponse{Error: err.Error(), Code: "NOT_ENTITLED"})

	case errors.Is(err, service.ErrForbidden):
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "access denied"})

	case errors.Is(err, service.ErrMFARequired):
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: err.Error(), Code: "MFA_REQUIRED"})

	case errors.Is(err, service.ErrInvalidCredentials),
		errors.Is(err, auth.ErrTokenExpired),
		errors.Is(err, auth.ErrTokenInvalid),
		errors.Is(err, auth.ErrTokenTypeMismatch):
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid credentials"})

	case errors.Is(err, service.ErrAccountInactive):
		c.JSON(http.StatusForbidden, ErrorResponse{Error: err.Error(), Code: "ACCOUNT_INACTIVE"})

	case errors.Is(err, service.ErrAccountLocked):
		c.JSON(http.StatusTooManyRequests, ErrorResponse{
			Error: "account temporarily locked",
			Code:  "ACCOUNT_LOCKED",
		})

	default:
		if log := loggerFrom(c); log != nil {
			log.Error("unhandled service error",
				zap.Error(err),
				zap.String("request_id", c.GetString(ctxRequestID)),
				zap.String("path", c.FullPath()),
			)
		}
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
	}
}

func bindJSON(c *gin.Context, obj any) bool {
	if err := c.ShouldBindJSON(obj); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request: " + err.Error()})
		return false
	}

	return true
}

func parseUUID(c *gin.Context, param string) (uuid.UUID, bool) {
	raw := c.Param(param)
	id, err := uuid.Parse(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid " + param + ": must be a valid UUID"})
		return uuid.Nil, false
	}
	return id, true
}

// parseOptionalUUID reads a form or JSON value that may be empty.
func parseOptionalUUID(c *gin.Context, field, raw string) (*uuid.UUID, bool) {
	if raw == "" {
		return nil, true
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid " + field + ": must be a valid UUID"})
		return nil, false
	}
	return &id, true
}

func parseQueryInt(c *gin.Context, key string, defaultVal int) int {
	if raw := c.Query(key); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			return v
		}
	}
	return defaultVal
}

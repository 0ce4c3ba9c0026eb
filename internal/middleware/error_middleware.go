package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yigit/coursereg/internal/app/models/dto"
	"github.com/yigit/coursereg/internal/pkg/apperrors"
)

// ErrorStatus maps an error to its HTTP status and error detail.
func ErrorStatus(err error) (int, *dto.ErrorDetail) {
	switch {
	case errors.Is(err, apperrors.ErrMaxCoursesReached):
		return http.StatusConflict, dto.NewErrorDetail(dto.ErrorCodeMaxCoursesReached, "Maximum number of courses reached").
			WithSeverity(dto.ErrorSeverityWarning)
	case errors.Is(err, apperrors.ErrAlreadyRegistered):
		return http.StatusConflict, dto.NewErrorDetail(dto.ErrorCodeAlreadyRegistered, "Course already registered").
			WithSeverity(dto.ErrorSeverityWarning)
	case errors.Is(err, apperrors.ErrCourseFull):
		return http.StatusConflict, dto.NewErrorDetail(dto.ErrorCodeCourseFull, "Course is full").
			WithSeverity(dto.ErrorSeverityWarning)
	case errors.Is(err, apperrors.ErrNotRegistered):
		return http.StatusConflict, dto.NewErrorDetail(dto.ErrorCodeNotRegistered, "Course is not registered").
			WithSeverity(dto.ErrorSeverityWarning)
	case errors.Is(err, apperrors.ErrActionInProgress):
		return http.StatusConflict, dto.NewErrorDetail(dto.ErrorCodeActionInProgress, "Another registration action is in progress").
			WithSeverity(dto.ErrorSeverityInfo)
	case errors.Is(err, apperrors.ErrConflict):
		return http.StatusConflict, dto.NewErrorDetail(dto.ErrorCodeConflict, "Conflict")
	case errors.Is(err, apperrors.ErrResourceNotFound):
		return http.StatusNotFound, dto.NewErrorDetail(dto.ErrorCodeResourceNotFound, messageOr(err, "Resource not found"))
	case errors.Is(err, apperrors.ErrTokenExpired):
		return http.StatusUnauthorized, dto.NewErrorDetail(dto.ErrorCodeExpiredToken, "Token expired")
	case apperrors.Is(err, apperrors.ErrTokenInvalid, apperrors.ErrInvalidFormat):
		return http.StatusUnauthorized, dto.NewErrorDetail(dto.ErrorCodeInvalidToken, "Invalid token")
	case errors.Is(err, apperrors.ErrIdentityMissing):
		return http.StatusUnauthorized, dto.NewErrorDetail(dto.ErrorCodeUnauthorized, "Authentication required")
	case apperrors.Is(err, apperrors.ErrValidationFailed, apperrors.ErrBadRequest):
		return http.StatusBadRequest, dto.NewErrorDetail(dto.ErrorCodeValidationFailed, "Validation failed").
			WithDetails(err.Error())
	case errors.Is(err, apperrors.ErrRemote):
		return http.StatusBadGateway, dto.NewErrorDetail(dto.ErrorCodeExternalServiceError, "Registration backend unavailable").
			WithSeverity(dto.ErrorSeverityCritical)
	default:
		return http.StatusInternalServerError, dto.NewErrorDetail(dto.ErrorCodeInternalServer, "Internal server error")
	}
}

func messageOr(err error, fallback string) string {
	var custom *apperrors.CustomError
	if errors.As(err, &custom) && custom.Message != "" {
		return custom.Message
	}
	return fallback
}

// HandleAPIError handles common API errors and returns appropriate responses
func HandleAPIError(c *gin.Context, err error) {
	status, detail := ErrorStatus(err)
	_ = c.Error(err)
	c.JSON(status, dto.NewErrorResponse(detail))
}

// HandleAPIErrorWithData is HandleAPIError with a payload, used when the
// client should also receive the state the rejection was decided on.
func HandleAPIErrorWithData(c *gin.Context, err error, data interface{}) {
	status, detail := ErrorStatus(err)
	_ = c.Error(err)
	resp := dto.NewErrorResponse(detail)
	c.JSON(status, dto.APIResponse{Data: data, Error: resp.Error, Timestamp: resp.Timestamp})
}

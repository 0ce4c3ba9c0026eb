package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/yigit/coursereg/internal/app/models/dto"
	"github.com/yigit/coursereg/internal/app/services"
	"github.com/yigit/coursereg/internal/middleware"
	"github.com/yigit/coursereg/internal/pkg/apperrors"
)

// RegistrationController handles course browsing and registration.
type RegistrationController struct {
	registrationService services.RegistrationService
	logger              zerolog.Logger
}

// NewRegistrationController creates a new RegistrationController
func NewRegistrationController(registrationService services.RegistrationService, logger zerolog.Logger) *RegistrationController {
	return &RegistrationController{
		registrationService: registrationService,
		logger:              logger,
	}
}

func studentID(ctx *gin.Context) (string, bool) {
	id, ok := middleware.StudentIDFromContext(ctx)
	if !ok {
		middleware.HandleAPIError(ctx, apperrors.ErrIdentityMissing)
	}
	return id, ok
}

// GetCourses lists the available courses
// @Summary List available courses
// @Description Returns every open course with seat counts and whether the student holds it
// @Tags courses
// @Produce json
// @Security BearerAuth
// @Success 200 {object} dto.APIResponse{data=[]dto.CourseResponse} "Courses retrieved successfully"
// @Failure 401 {object} dto.ErrorResponse "Unauthorized - Invalid or missing token"
// @Failure 502 {object} dto.ErrorResponse "Registration backend unavailable"
// @Router /courses [get]
func (c *RegistrationController) GetCourses(ctx *gin.Context) {
	id, ok := studentID(ctx)
	if !ok {
		return
	}

	snap, err := c.registrationService.State(ctx.Request.Context(), id)
	if err != nil {
		middleware.HandleAPIError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, dto.NewAPIResponse(dto.NewCourseResponses(snap.Available, snap.Registered)))
}

// GetRegistrations lists the student's registered courses
// @Summary List registered courses
// @Tags registrations
// @Produce json
// @Security BearerAuth
// @Success 200 {object} dto.APIResponse{data=dto.RegistrationsResponse} "Registrations retrieved successfully"
// @Failure 401 {object} dto.ErrorResponse "Unauthorized - Invalid or missing token"
// @Router /registrations [get]
func (c *RegistrationController) GetRegistrations(ctx *gin.Context) {
	id, ok := studentID(ctx)
	if !ok {
		return
	}

	snap, err := c.registrationService.State(ctx.Request.Context(), id)
	if err != nil {
		middleware.HandleAPIError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, dto.NewAPIResponse(dto.RegistrationsResponse{
		Courses:      snap.Registered,
		TotalCredits: snap.TotalCredits,
		MaxCourses:   snap.MaxCourses,
	}))
}

// GetState returns the student's full registration view
// @Summary Get registration state
// @Tags registrations
// @Produce json
// @Security BearerAuth
// @Success 200 {object} dto.APIResponse{data=dto.StateResponse} "State retrieved successfully"
// @Failure 401 {object} dto.ErrorResponse "Unauthorized - Invalid or missing token"
// @Router /state [get]
func (c *RegistrationController) GetState(ctx *gin.Context) {
	id, ok := studentID(ctx)
	if !ok {
		return
	}

	snap, err := c.registrationService.State(ctx.Request.Context(), id)
	if err != nil {
		middleware.HandleAPIError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, dto.NewAPIResponse(dto.NewStateResponse(snap)))
}

// RegisterCourse registers a course for the student
// @Summary Register a course
// @Description Applies the cap, duplicate and capacity checks, then records the registration
// @Tags registrations
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body dto.RegisterCourseRequest true "Course to register"
// @Success 201 {object} dto.APIResponse{data=dto.RegisterCourseResponse} "Course registered"
// @Failure 400 {object} dto.ErrorResponse "Invalid request data"
// @Failure 404 {object} dto.ErrorResponse "Course not found"
// @Failure 409 {object} dto.ErrorResponse "Rejected by a registration rule"
// @Failure 502 {object} dto.ErrorResponse "Registration backend unavailable"
// @Router /registrations [post]
func (c *RegistrationController) RegisterCourse(ctx *gin.Context) {
	id, ok := studentID(ctx)
	if !ok {
		return
	}

	var req dto.RegisterCourseRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		errorDetail := dto.NewErrorDetail(dto.ErrorCodeValidationFailed, "Invalid registration data")
		errorDetail = errorDetail.WithDetails(err.Error()).WithField("courseId")
		ctx.JSON(http.StatusBadRequest, dto.NewErrorResponse(errorDetail))
		return
	}

	course, snap, err := c.registrationService.Register(ctx.Request.Context(), id, req.CourseID)
	if err != nil {
		if apperrors.IsRejection(err) {
			middleware.HandleAPIErrorWithData(ctx, err, dto.NewStateResponse(snap))
			return
		}
		middleware.HandleAPIError(ctx, err)
		return
	}

	ctx.JSON(http.StatusCreated, dto.NewAPIResponse(dto.RegisterCourseResponse{
		Course: course,
		State:  dto.NewStateResponse(snap),
	}))
}

// CancelCourse cancels a registration
// @Summary Cancel a registration
// @Tags registrations
// @Produce json
// @Security BearerAuth
// @Param courseId path string true "Course ID"
// @Success 200 {object} dto.APIResponse{data=dto.StateResponse} "Registration cancelled"
// @Failure 400 {object} dto.ErrorResponse "Invalid course ID"
// @Failure 409 {object} dto.ErrorResponse "Course is not registered"
// @Failure 502 {object} dto.ErrorResponse "Registration backend unavailable"
// @Router /registrations/{courseId} [delete]
func (c *RegistrationController) CancelCourse(ctx *gin.Context) {
	id, ok := studentID(ctx)
	if !ok {
		return
	}

	snap, err := c.registrationService.Cancel(ctx.Request.Context(), id, ctx.Param("courseId"))
	if err != nil {
		if apperrors.IsRejection(err) {
			middleware.HandleAPIErrorWithData(ctx, err, dto.NewStateResponse(snap))
			return
		}
		middleware.HandleAPIError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, dto.NewAPIResponse(dto.NewStateResponse(snap)))
}

// Refresh reloads the student's view from the backend
// @Summary Refresh registration state
// @Tags registrations
// @Produce json
// @Security BearerAuth
// @Success 200 {object} dto.APIResponse{data=dto.StateResponse} "State refreshed"
// @Failure 502 {object} dto.ErrorResponse "Registration backend unavailable"
// @Router /refresh [post]
func (c *RegistrationController) Refresh(ctx *gin.Context) {
	id, ok := studentID(ctx)
	if !ok {
		return
	}

	snap, err := c.registrationService.Refresh(ctx.Request.Context(), id)
	if err != nil {
		c.logger.Warn().Err(err).Str("studentID", id).Msg("Refresh failed")
		middleware.HandleAPIError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, dto.NewAPIResponse(dto.NewStateResponse(snap)))
}

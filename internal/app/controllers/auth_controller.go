// Package controllers handles HTTP request handling
package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/yigit/coursereg/internal/app/models/dto"
	"github.com/yigit/coursereg/internal/middleware"
	"github.com/yigit/coursereg/internal/pkg/auth"
	"github.com/yigit/coursereg/internal/pkg/validation"
)

// AuthController mints development tokens. Real deployments get student
// tokens from their identity provider, signed with the same secret.
type AuthController struct {
	jwtService *auth.JWTService
	logger     zerolog.Logger
}

// NewAuthController creates a new AuthController
func NewAuthController(jwtService *auth.JWTService, logger zerolog.Logger) *AuthController {
	return &AuthController{
		jwtService: jwtService,
		logger:     logger,
	}
}

// IssueToken handles development token minting
// @Summary Issue a development token
// @Description Returns a signed access token for the given student id. Only routed when development tokens are enabled.
// @Tags auth
// @Accept json
// @Produce json
// @Param request body dto.TokenRequest true "Student identity"
// @Success 200 {object} dto.APIResponse{data=dto.TokenResponse} "Token issued"
// @Failure 400 {object} dto.ErrorResponse "Invalid request format"
// @Failure 500 {object} dto.ErrorResponse "Internal server error"
// @Router /auth/token [post]
func (c *AuthController) IssueToken(ctx *gin.Context) {
	var req dto.TokenRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		c.logger.Warn().Err(err).Msg("Invalid token request payload")
		errorDetail := dto.NewErrorDetail(dto.ErrorCodeValidationFailed, "Invalid request format")
		errorDetail = errorDetail.WithDetails(err.Error())
		ctx.JSON(http.StatusBadRequest, dto.NewErrorResponse(errorDetail))
		return
	}

	if err := validation.ValidateStudentID(req.StudentID); err != nil {
		middleware.HandleAPIError(ctx, err)
		return
	}

	token, expiresIn, err := c.jwtService.GenerateToken(req.StudentID)
	if err != nil {
		c.logger.Error().Err(err).Msg("Failed to generate token")
		middleware.HandleAPIError(ctx, err)
		return
	}

	c.logger.Info().Str("studentID", req.StudentID).Msg("Development token issued")
	ctx.JSON(http.StatusOK, dto.NewAPIResponse(dto.TokenResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int64(expiresIn),
	}))
}

package middleware

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yigit/coursereg/internal/app/models/dto"
	"github.com/yigit/coursereg/internal/pkg/apperrors"
	"github.com/yigit/coursereg/internal/pkg/auth"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestErrorStatus(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   dto.ErrorCode
	}{
		{"cap", apperrors.ErrMaxCoursesReached, http.StatusConflict, dto.ErrorCodeMaxCoursesReached},
		{"duplicate", fmt.Errorf("register: %w", apperrors.ErrAlreadyRegistered), http.StatusConflict, dto.ErrorCodeAlreadyRegistered},
		{"full", apperrors.ErrCourseFull, http.StatusConflict, dto.ErrorCodeCourseFull},
		{"not registered", apperrors.ErrNotRegistered, http.StatusConflict, dto.ErrorCodeNotRegistered},
		{"busy", apperrors.ErrActionInProgress, http.StatusConflict, dto.ErrorCodeActionInProgress},
		{"unknown course", apperrors.ErrCourseNotFound, http.StatusNotFound, dto.ErrorCodeResourceNotFound},
		{"expired", auth.ErrExpiredToken, http.StatusUnauthorized, dto.ErrorCodeExpiredToken},
		{"bad token", auth.ErrInvalidFormat, http.StatusUnauthorized, dto.ErrorCodeInvalidToken},
		{"no identity", apperrors.ErrIdentityMissing, http.StatusUnauthorized, dto.ErrorCodeUnauthorized},
		{"validation", fmt.Errorf("%w: invalid course id", apperrors.ErrValidationFailed), http.StatusBadRequest, dto.ErrorCodeValidationFailed},
		{"remote", apperrors.NewRemoteError("insert registration", errors.New("connection reset")), http.StatusBadGateway, dto.ErrorCodeExternalServiceError},
		{"other", errors.New("boom"), http.StatusInternalServerError, dto.ErrorCodeInternalServer},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, detail := ErrorStatus(tt.err)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.code, detail.Code)
		})
	}

	_, detail := ErrorStatus(apperrors.ErrCourseNotFound)
	assert.Equal(t, "course not found", detail.Message)
}

func TestHandleAPIErrorWithData(t *testing.T) {
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)

	HandleAPIErrorWithData(c, apperrors.ErrCourseFull, map[string]int{"remainingSlots": 3})

	require.Equal(t, http.StatusConflict, rec.Code)
	var body struct {
		Data  map[string]int  `json:"data"`
		Error dto.ErrorDetail `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 3, body.Data["remainingSlots"])
	assert.Equal(t, dto.ErrorCodeCourseFull, body.Error.Code)
	assert.Len(t, c.Errors, 1)
}

func newAuthRouter(jwt *auth.JWTService) *gin.Engine {
	router := gin.New()
	router.GET("/me", NewAuthMiddleware(jwt).JWTAuth(), func(c *gin.Context) {
		id, ok := StudentIDFromContext(c)
		if !ok {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.String(http.StatusOK, id)
	})
	return router
}

func TestJWTAuth(t *testing.T) {
	jwt := auth.NewJWTService(auth.JWTConfig{SecretKey: "secret", AccessTokenExp: time.Hour, TokenIssuer: "coursereg.test"})
	token, _, err := jwt.GenerateToken("student123")
	require.NoError(t, err)
	router := newAuthRouter(jwt)

	serve := func(req *http.Request) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := serve(req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "student123", rec.Body.String())

	rec = serve(httptest.NewRequest(http.MethodGet, "/me?token="+token, nil))
	assert.Equal(t, http.StatusOK, rec.Code, "query parameter accepted for websocket upgrades")

	rec = serve(httptest.NewRequest(http.MethodGet, "/me", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), string(dto.ErrorCodeUnauthorized))

	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	rec = serve(req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), string(dto.ErrorCodeInvalidToken))
}

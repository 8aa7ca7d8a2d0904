package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/depannini/backend/internal/http/middleware"
	"github.com/depannini/backend/internal/models"
)

// withUser подставляет userID в контекст вместо auth middleware.
func withUser(userID uuid.UUID) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.ContextUserIDKey, userID)
		c.Set(middleware.ContextRoleKey, models.RoleUser)
	}
}

func TestVerificationHandler_ConfirmEmail(t *testing.T) {
	gin.SetMode(gin.TestMode)
	env := newTestEnv()
	h := NewVerificationHandler(env.verification)

	user := &models.User{Email: "user@example.com", Name: "Иван", PasswordHash: "x", Role: models.RoleUser}
	assert.NoError(t, env.store.Create(context.Background(), user))
	assert.NoError(t, env.verification.RequestEmailVerification(context.Background(), user.ID))

	r := gin.New()
	r.POST("/verification/email/confirm", h.ConfirmEmail)

	record := env.store.lastCode(user.ID, models.VerificationScopeEmail)

	w := postJSON(r, "/verification/email/confirm", gin.H{"email": user.Email, "code": record.Code})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, user.EmailVerified)

	// Повторный ввод использованного кода.
	w = postJSON(r, "/verification/email/confirm", gin.H{"email": user.Email, "code": record.Code})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "неверный или просроченный код")
}

func TestVerificationHandler_ConfirmEmail_UnknownAccountSameError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	env := newTestEnv()
	h := NewVerificationHandler(env.verification)

	r := gin.New()
	r.POST("/verification/email/confirm", h.ConfirmEmail)

	// Несуществующий аккаунт неотличим от неверного кода.
	w := postJSON(r, "/verification/email/confirm", gin.H{"email": "ghost@example.com", "code": "XXXXX"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "неверный или просроченный код")
}

func TestVerificationHandler_ConfirmPhone(t *testing.T) {
	gin.SetMode(gin.TestMode)
	env := newTestEnv()
	h := NewVerificationHandler(env.verification)

	phone := "+15551234567"
	user := &models.User{Email: "user@example.com", Name: "Иван", PasswordHash: "x", Role: models.RoleUser, PhoneNumber: &phone}
	assert.NoError(t, env.store.Create(context.Background(), user))
	assert.NoError(t, env.verification.RequestPhoneVerification(context.Background(), user.ID))

	r := gin.New()
	r.POST("/verification/phone/confirm", h.ConfirmPhone)

	record := env.store.lastCode(user.ID, models.VerificationScopePhone)

	w := postJSON(r, "/verification/phone/confirm", gin.H{"phone_number": phone, "code": record.Code})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, user.PhoneVerified)
}

func TestVerificationHandler_RequestEmailCode_AlreadyVerified(t *testing.T) {
	gin.SetMode(gin.TestMode)
	env := newTestEnv()
	h := NewVerificationHandler(env.verification)

	user := &models.User{Email: "user@example.com", Name: "Иван", PasswordHash: "x", Role: models.RoleUser, EmailVerified: true}
	assert.NoError(t, env.store.Create(context.Background(), user))

	r := gin.New()
	r.POST("/verification/email/request", withUser(user.ID), h.RequestEmailCode)

	req := httptest.NewRequest(http.MethodPost, "/verification/email/request", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestVerificationHandler_RequestEmailCode_NoAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	env := newTestEnv()
	h := NewVerificationHandler(env.verification)

	r := gin.New()
	r.POST("/verification/email/request", h.RequestEmailCode)

	req := httptest.NewRequest(http.MethodPost, "/verification/email/request", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestVerificationHandler_Resend(t *testing.T) {
	gin.SetMode(gin.TestMode)
	env := newTestEnv()
	h := NewVerificationHandler(env.verification)

	user := &models.User{Email: "user@example.com", Name: "Иван", PasswordHash: "x", Role: models.RoleUser}
	assert.NoError(t, env.store.Create(context.Background(), user))
	assert.NoError(t, env.verification.RequestEmailVerification(context.Background(), user.ID))
	first := env.store.lastCode(user.ID, models.VerificationScopeEmail)

	r := gin.New()
	r.POST("/verification/resend", withUser(user.ID), h.Resend)

	w := postJSON(r, "/verification/resend", gin.H{"channel": "email"})
	assert.Equal(t, http.StatusOK, w.Code)

	// Повторная отправка выпускает новый код и не трогает прежний.
	second := env.store.lastCode(user.ID, models.VerificationScopeEmail)
	assert.NotEqual(t, first.ID, second.ID)
	assert.True(t, first.IsValid(time.Now()))

	// Неизвестный канал отбрасывается биндингом.
	w = postJSON(r, "/verification/resend", gin.H{"channel": "carrier-pigeon"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestVerificationHandler_GetStatus(t *testing.T) {
	gin.SetMode(gin.TestMode)
	env := newTestEnv()
	h := NewVerificationHandler(env.verification)

	user := &models.User{Email: "user@example.com", Name: "Иван", PasswordHash: "x", Role: models.RoleUser, EmailVerified: true}
	assert.NoError(t, env.store.Create(context.Background(), user))

	r := gin.New()
	r.GET("/verification/status", withUser(user.ID), h.GetStatus)

	req := httptest.NewRequest(http.MethodGet, "/verification/status", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"email_verified": true, "phone_verified": false}`, w.Body.String())
}

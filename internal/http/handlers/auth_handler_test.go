package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/depannini/backend/internal/models"
	"github.com/depannini/backend/internal/repository"
	"github.com/depannini/backend/internal/service"
)

// fakeStore — общее in-memory хранилище для HTTP тестов. Реализует и
// хранилище аккаунтов, и хранилище кодов.
type fakeStore struct {
	users    map[uuid.UUID]*models.User
	codes    []*models.VerificationCode
	sessions map[string]*models.Session
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:    make(map[uuid.UUID]*models.User),
		sessions: make(map[string]*models.Session),
	}
}

func (f *fakeStore) Create(ctx context.Context, user *models.User) error {
	user.ID = uuid.New()
	user.IsActive = true
	f.users[user.ID] = user
	return nil
}

func (f *fakeStore) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user, ok := f.users[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	return user, nil
}

func (f *fakeStore) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	for _, user := range f.users {
		if user.Email == email {
			return user, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

func (f *fakeStore) GetByPhone(ctx context.Context, phone string) (*models.User, error) {
	for _, user := range f.users {
		if user.PhoneNumber != nil && *user.PhoneNumber == phone {
			return user, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

func (f *fakeStore) SetEmailVerified(ctx context.Context, userID uuid.UUID) error {
	user, err := f.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	user.EmailVerified = true
	return nil
}

func (f *fakeStore) SetPhoneVerified(ctx context.Context, userID uuid.UUID) error {
	user, err := f.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	user.PhoneVerified = true
	return nil
}

func (f *fakeStore) UpdatePasswordHash(ctx context.Context, userID uuid.UUID, passwordHash string) error {
	user, err := f.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	user.PasswordHash = passwordHash
	return nil
}

func (f *fakeStore) CreateSession(ctx context.Context, session *models.Session) error {
	session.ID = uuid.New()
	f.sessions[session.RefreshToken] = session
	return nil
}

func (f *fakeStore) DeleteSession(ctx context.Context, refreshToken string) error {
	delete(f.sessions, refreshToken)
	return nil
}

func (f *fakeStore) CreateCode(ctx context.Context, userID uuid.UUID, scope, code string, expiresAt time.Time) (*models.VerificationCode, error) {
	record := &models.VerificationCode{
		ID:        uuid.New(),
		UserID:    userID,
		Scope:     scope,
		Code:      code,
		ExpiresAt: expiresAt,
		CreatedAt: time.Now(),
	}
	f.codes = append(f.codes, record)
	return record, nil
}

func (f *fakeStore) FindLatestValid(ctx context.Context, userID uuid.UUID, scope, code string) (*models.VerificationCode, error) {
	now := time.Now()
	for i := len(f.codes) - 1; i >= 0; i-- {
		r := f.codes[i]
		if r.UserID == userID && r.Scope == scope && r.Code == code && r.IsValid(now) {
			return r, nil
		}
	}
	return nil, repository.ErrCodeNotFound
}

func (f *fakeStore) ConsumeCode(ctx context.Context, id uuid.UUID) error {
	for _, r := range f.codes {
		if r.ID == id {
			if r.Used || !time.Now().Before(r.ExpiresAt) {
				return repository.ErrCodeNotFound
			}
			r.Used = true
			return nil
		}
	}
	return repository.ErrCodeNotFound
}

// lastCode возвращает последний выпущенный код для аккаунта и назначения.
func (f *fakeStore) lastCode(userID uuid.UUID, scope string) *models.VerificationCode {
	for i := len(f.codes) - 1; i >= 0; i-- {
		r := f.codes[i]
		if r.UserID == userID && r.Scope == scope {
			return r
		}
	}
	return nil
}

type nopMailer struct{}

func (nopMailer) SendEmail(to, subject, body string) error { return nil }

type nopSMS struct{}

func (nopSMS) SendSMS(to, body string) error { return nil }

type testEnv struct {
	store        *fakeStore
	auth         *service.AuthService
	verification *service.VerificationService
}

func newTestEnv() *testEnv {
	store := newFakeStore()
	verification := service.NewVerificationService(store, store, service.NewCodeGenerator(5), nopMailer{}, nopSMS{}, 30*time.Minute, 5*time.Minute)
	tokenManager := service.NewTokenManager("test-access", "test-refresh", 15*time.Minute, 7*24*time.Hour)
	auth := service.NewAuthService(store, tokenManager, verification, nil, []string{"accounts.google.com", "https://accounts.google.com"})
	return &testEnv{store: store, auth: auth, verification: verification}
}

func postJSON(r *gin.Engine, path string, body interface{}) *httptest.ResponseRecorder {
	payload, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthHandler_Register(t *testing.T) {
	gin.SetMode(gin.TestMode)
	env := newTestEnv()
	h := NewAuthHandler(env.auth, env.verification)

	r := gin.New()
	r.POST("/auth/register", h.Register)

	w := postJSON(r, "/auth/register", gin.H{
		"email":            "user@example.com",
		"password":         "password123",
		"password_confirm": "password123",
		"name":             "Иван",
	})

	assert.Equal(t, http.StatusCreated, w.Code)

	var resp struct {
		User   models.User       `json:"user"`
		Tokens service.TokenPair `json:"tokens"`
	}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "user@example.com", resp.User.Email)
	assert.False(t, resp.User.EmailVerified)
	assert.NotEmpty(t, resp.Tokens.AccessToken)
	assert.NotEmpty(t, resp.Tokens.RefreshToken)

	// Код подтверждения email выпущен вместе с регистрацией.
	assert.NotNil(t, env.store.lastCode(resp.User.ID, models.VerificationScopeEmail))
}

func TestAuthHandler_Register_PasswordMismatch(t *testing.T) {
	gin.SetMode(gin.TestMode)
	env := newTestEnv()
	h := NewAuthHandler(env.auth, env.verification)

	r := gin.New()
	r.POST("/auth/register", h.Register)

	w := postJSON(r, "/auth/register", gin.H{
		"email":            "user@example.com",
		"password":         "password123",
		"password_confirm": "different456",
		"name":             "Иван",
	})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, env.store.users)
}

func TestAuthHandler_Login_UniformError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	env := newTestEnv()
	h := NewAuthHandler(env.auth, env.verification)

	r := gin.New()
	r.POST("/auth/register", h.Register)
	r.POST("/auth/login", h.Login)

	postJSON(r, "/auth/register", gin.H{
		"email":            "user@example.com",
		"password":         "password123",
		"password_confirm": "password123",
		"name":             "Иван",
	})

	// Неверный пароль и неизвестный email дают один и тот же ответ.
	wrongPass := postJSON(r, "/auth/login", gin.H{"email": "user@example.com", "password": "wrongpass1"})
	unknown := postJSON(r, "/auth/login", gin.H{"email": "ghost@example.com", "password": "password123"})

	assert.Equal(t, http.StatusUnauthorized, wrongPass.Code)
	assert.Equal(t, http.StatusUnauthorized, unknown.Code)
	assert.JSONEq(t, wrongPass.Body.String(), unknown.Body.String())
}

func TestAuthHandler_PasswordResetFlow(t *testing.T) {
	gin.SetMode(gin.TestMode)
	env := newTestEnv()
	h := NewAuthHandler(env.auth, env.verification)

	r := gin.New()
	r.POST("/auth/register", h.Register)
	r.POST("/auth/login", h.Login)
	r.POST("/auth/password-reset", h.RequestPasswordReset)
	r.POST("/auth/password-reset/confirm", h.ConfirmPasswordReset)

	postJSON(r, "/auth/register", gin.H{
		"email":            "user@example.com",
		"password":         "password123",
		"password_confirm": "password123",
		"name":             "Иван",
	})

	w := postJSON(r, "/auth/password-reset", gin.H{"email": "user@example.com"})
	assert.Equal(t, http.StatusOK, w.Code)

	user, _ := env.store.GetByEmail(context.Background(), "user@example.com")
	record := env.store.lastCode(user.ID, models.VerificationScopePassword)
	assert.NotNil(t, record)

	w = postJSON(r, "/auth/password-reset/confirm", gin.H{
		"email":                "user@example.com",
		"code":                 record.Code,
		"new_password":         "brandnew456",
		"new_password_confirm": "brandnew456",
	})
	assert.Equal(t, http.StatusOK, w.Code)

	// Успешный сброс сразу выдаёт сессию.
	var resp struct {
		Tokens service.TokenPair `json:"tokens"`
	}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Tokens.RefreshToken)

	// Новый пароль действует, старый больше нет.
	assert.Equal(t, http.StatusOK, postJSON(r, "/auth/login", gin.H{"email": "user@example.com", "password": "brandnew456"}).Code)
	assert.Equal(t, http.StatusUnauthorized, postJSON(r, "/auth/login", gin.H{"email": "user@example.com", "password": "password123"}).Code)
}

func TestAuthHandler_PasswordReset_UnknownEmailSameResponse(t *testing.T) {
	gin.SetMode(gin.TestMode)
	env := newTestEnv()
	h := NewAuthHandler(env.auth, env.verification)

	r := gin.New()
	r.POST("/auth/register", h.Register)
	r.POST("/auth/password-reset", h.RequestPasswordReset)

	postJSON(r, "/auth/register", gin.H{
		"email":            "user@example.com",
		"password":         "password123",
		"password_confirm": "password123",
		"name":             "Иван",
	})

	known := postJSON(r, "/auth/password-reset", gin.H{"email": "user@example.com"})
	unknown := postJSON(r, "/auth/password-reset", gin.H{"email": "ghost@example.com"})

	// Ответы идентичны, существование аккаунта не раскрывается.
	assert.Equal(t, http.StatusOK, known.Code)
	assert.Equal(t, http.StatusOK, unknown.Code)
	assert.JSONEq(t, known.Body.String(), unknown.Body.String())
}

func TestAuthHandler_PasswordResetConfirm_WeakPasswordKeepsCode(t *testing.T) {
	gin.SetMode(gin.TestMode)
	env := newTestEnv()
	h := NewAuthHandler(env.auth, env.verification)

	r := gin.New()
	r.POST("/auth/register", h.Register)
	r.POST("/auth/password-reset", h.RequestPasswordReset)
	r.POST("/auth/password-reset/confirm", h.ConfirmPasswordReset)

	postJSON(r, "/auth/register", gin.H{
		"email":            "user@example.com",
		"password":         "password123",
		"password_confirm": "password123",
		"name":             "Иван",
	})
	postJSON(r, "/auth/password-reset", gin.H{"email": "user@example.com"})

	user, _ := env.store.GetByEmail(context.Background(), "user@example.com")
	record := env.store.lastCode(user.ID, models.VerificationScopePassword)

	// Слабый пароль отклоняется до расходования кода.
	w := postJSON(r, "/auth/password-reset/confirm", gin.H{
		"email":                "user@example.com",
		"code":                 record.Code,
		"new_password":         "short",
		"new_password_confirm": "short",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.False(t, record.Used)

	// Код остаётся пригодным для повторной попытки.
	w = postJSON(r, "/auth/password-reset/confirm", gin.H{
		"email":                "user@example.com",
		"code":                 record.Code,
		"new_password":         "brandnew456",
		"new_password_confirm": "brandnew456",
	})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuthHandler_PhoneLogin(t *testing.T) {
	gin.SetMode(gin.TestMode)
	env := newTestEnv()
	h := NewAuthHandler(env.auth, env.verification)

	r := gin.New()
	r.POST("/auth/phone/request", h.RequestPhoneLogin)
	r.POST("/auth/phone/login", h.PhoneLogin)

	phone := "+15551234567"
	user := &models.User{
		Email: "user@example.com", Name: "Иван", PasswordHash: "x",
		Role: models.RoleUser, PhoneNumber: &phone, PhoneVerified: true,
	}
	assert.NoError(t, env.store.Create(context.Background(), user))

	w := postJSON(r, "/auth/phone/request", gin.H{"phone_number": phone})
	assert.Equal(t, http.StatusOK, w.Code)

	record := env.store.lastCode(user.ID, models.VerificationScopePhone)
	assert.NotNil(t, record)

	w = postJSON(r, "/auth/phone/login", gin.H{"phone_number": phone, "code": record.Code})
	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Tokens service.TokenPair `json:"tokens"`
	}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Tokens.AccessToken)

	// Код одноразовый.
	w = postJSON(r, "/auth/phone/login", gin.H{"phone_number": phone, "code": record.Code})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAuthHandler_PhoneLoginRequest_UnverifiedPhone(t *testing.T) {
	gin.SetMode(gin.TestMode)
	env := newTestEnv()
	h := NewAuthHandler(env.auth, env.verification)

	r := gin.New()
	r.POST("/auth/phone/request", h.RequestPhoneLogin)

	phone := "+15551234567"
	user := &models.User{
		Email: "user@example.com", Name: "Иван", PasswordHash: "x",
		Role: models.RoleUser, PhoneNumber: &phone,
	}
	assert.NoError(t, env.store.Create(context.Background(), user))

	w := postJSON(r, "/auth/phone/request", gin.H{"phone_number": phone})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAuthHandler_Refresh(t *testing.T) {
	gin.SetMode(gin.TestMode)
	env := newTestEnv()
	h := NewAuthHandler(env.auth, env.verification)

	r := gin.New()
	r.POST("/auth/register", h.Register)
	r.POST("/auth/refresh", h.Refresh)

	w := postJSON(r, "/auth/register", gin.H{
		"email":            "user@example.com",
		"password":         "password123",
		"password_confirm": "password123",
		"name":             "Иван",
	})

	var reg struct {
		Tokens service.TokenPair `json:"tokens"`
	}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &reg))

	w = postJSON(r, "/auth/refresh", gin.H{"refresh_token": reg.Tokens.RefreshToken})
	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Tokens service.TokenPair `json:"tokens"`
	}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEqual(t, reg.Tokens.RefreshToken, resp.Tokens.RefreshToken)

	// Старая сессия удалена при ротации.
	_, alive := env.store.sessions[reg.Tokens.RefreshToken]
	assert.False(t, alive)
}

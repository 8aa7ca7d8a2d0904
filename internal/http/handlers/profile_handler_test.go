package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/depannini/backend/internal/models"
	"github.com/depannini/backend/internal/repository"
)

func (f *fakeStore) UpdateProfile(ctx context.Context, user *models.User) error {
	if _, ok := f.users[user.ID]; !ok {
		return repository.ErrUserNotFound
	}
	f.users[user.ID] = user
	return nil
}

func (f *fakeStore) UpdateLocation(ctx context.Context, userID uuid.UUID, loc models.Location) error {
	_, err := f.GetByID(ctx, userID)
	return err
}

func (f *fakeStore) SetAssistantStatus(ctx context.Context, userID uuid.UUID, active bool) error {
	user, err := f.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	user.IsActiveAssistant = active
	return nil
}

func (f *fakeStore) SetPhotoPath(ctx context.Context, userID uuid.UUID, path string) error {
	user, err := f.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	user.PhotoPath = &path
	return nil
}

func (f *fakeStore) ListActiveAssistants(ctx context.Context, serviceType string) ([]models.User, error) {
	var out []models.User
	for _, user := range f.users {
		if user.Role != models.RoleAssistant || !user.IsActiveAssistant || !user.IsActive {
			continue
		}
		if serviceType != "" && (user.ServiceType == nil || *user.ServiceType != serviceType) {
			continue
		}
		out = append(out, *user)
	}
	return out, nil
}

// addAssistant кладёт в хранилище ассистента с заданным типом услуг.
func addAssistant(store *fakeStore, email, serviceType string, active bool) *models.User {
	user := &models.User{
		Email: email, Name: "Ассистент", PasswordHash: "x",
		Role: models.RoleAssistant, ServiceType: &serviceType,
	}
	_ = store.Create(context.Background(), user)
	user.IsActiveAssistant = active
	return user
}

func TestProfileHandler_ListAssistants(t *testing.T) {
	gin.SetMode(gin.TestMode)
	env := newTestEnv()
	h := NewProfileHandler(env.store, nil)

	addAssistant(env.store, "dep@example.com", models.ServiceTypeDepanneur, true)
	addAssistant(env.store, "rep@example.com", models.ServiceTypeReparateur, true)
	addAssistant(env.store, "off@example.com", models.ServiceTypeDepanneur, false)
	// Обычный пользователь в каталог не попадает.
	_ = env.store.Create(context.Background(), &models.User{
		Email: "user@example.com", Name: "Иван", PasswordHash: "x", Role: models.RoleUser,
	})

	r := gin.New()
	r.GET("/assistants", h.ListAssistants)

	get := func(path string) (*httptest.ResponseRecorder, []map[string]interface{}) {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		var resp struct {
			Assistants []map[string]interface{} `json:"assistants"`
		}
		_ = json.Unmarshal(w.Body.Bytes(), &resp)
		return w, resp.Assistants
	}

	// Без фильтра: только активные ассистенты.
	w, assistants := get("/assistants")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, assistants, 2)
	for _, a := range assistants {
		assert.Equal(t, true, a["is_active_assistant"])
	}

	// Фильтр по типу услуг.
	w, assistants = get("/assistants?service_type=depanneur")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, assistants, 1)
	assert.Equal(t, "dep@example.com", assistants[0]["email"])

	// Неизвестный тип услуг отклоняется.
	w, _ = get("/assistants?service_type=plumber")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestProfileHandler_GetMe_RoleVisibility(t *testing.T) {
	gin.SetMode(gin.TestMode)
	env := newTestEnv()
	h := NewProfileHandler(env.store, nil)

	serviceType := models.ServiceTypeDepanneur
	assistant := &models.User{
		Email: "helper@example.com", Name: "Ассистент", PasswordHash: "x",
		Role: models.RoleAssistant, ServiceType: &serviceType,
	}
	assert.NoError(t, env.store.Create(context.Background(), assistant))

	user := &models.User{Email: "user@example.com", Name: "Иван", PasswordHash: "x", Role: models.RoleUser}
	assert.NoError(t, env.store.Create(context.Background(), user))

	r := gin.New()
	r.GET("/assistant-profile", withUser(assistant.ID), h.GetMe)
	r.GET("/user-profile", withUser(user.ID), h.GetMe)

	get := func(path string) map[string]interface{} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)

		var resp struct {
			User map[string]interface{} `json:"user"`
		}
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		return resp.User
	}

	// Поля ассистента видны только в профиле ассистента.
	assistantProfile := get("/assistant-profile")
	assert.Contains(t, assistantProfile, "service_type")
	assert.Contains(t, assistantProfile, "is_active_assistant")

	userProfile := get("/user-profile")
	assert.NotContains(t, userProfile, "service_type")
	assert.NotContains(t, userProfile, "is_active_assistant")
}

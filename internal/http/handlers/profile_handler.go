package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/depannini/backend/internal/http/handlers/common"
	"github.com/depannini/backend/internal/models"
	"github.com/depannini/backend/internal/storage"
	"github.com/depannini/backend/internal/validation"
)

// ProfileStore описывает зависимости ProfileHandler от хранилища аккаунтов.
type ProfileStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	UpdateProfile(ctx context.Context, user *models.User) error
	UpdateLocation(ctx context.Context, userID uuid.UUID, loc models.Location) error
	SetAssistantStatus(ctx context.Context, userID uuid.UUID, active bool) error
	SetPhotoPath(ctx context.Context, userID uuid.UUID, path string) error
	ListActiveAssistants(ctx context.Context, serviceType string) ([]models.User, error)
}

// ProfileHandler предоставляет HTTP слой для профиля и геолокации.
type ProfileHandler struct {
	users  ProfileStore
	photos *storage.PhotoStorage
}

// NewProfileHandler создаёт хэндлер.
func NewProfileHandler(users ProfileStore, photos *storage.PhotoStorage) *ProfileHandler {
	return &ProfileHandler{users: users, photos: photos}
}

// profileView собирает ответ с учётом роли: поля ассистента видят только
// ассистенты.
func profileView(user *models.User) gin.H {
	view := gin.H{
		"id":             user.ID,
		"email":          user.Email,
		"name":           user.Name,
		"phone_number":   user.PhoneNumber,
		"role":           user.Role,
		"email_verified": user.EmailVerified,
		"phone_verified": user.PhoneVerified,
		"location":       user.Location,
		"address":        user.Address,
		"photo_path":     user.PhotoPath,
		"created_at":     user.CreatedAt,
	}

	if user.IsAssistant() {
		view["service_type"] = user.ServiceType
		view["vehicle_type"] = user.VehicleType
		view["is_active_assistant"] = user.IsActiveAssistant
	}

	return view
}

// GetMe обрабатывает GET /profile.
func (h *ProfileHandler) GetMe(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	user, err := h.users.GetByID(c.Request.Context(), userID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"user": profileView(user)})
}

// UpdateMe обрабатывает PUT /profile. Флаги подтверждения и роль через
// этот маршрут не меняются.
func (h *ProfileHandler) UpdateMe(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	var req struct {
		Name        *string `json:"name"`
		PhoneNumber *string `json:"phone_number"`
		Address     *string `json:"address"`
		ServiceType *string `json:"service_type"`
		VehicleType *string `json:"vehicle_type"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	user, err := h.users.GetByID(c.Request.Context(), userID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	if req.Name != nil {
		if err := validation.ValidateName(*req.Name); err != nil {
			common.RespondBadRequest(c, err.Error())
			return
		}
		user.Name = *req.Name
	}
	if req.PhoneNumber != nil {
		if err := validation.ValidatePhone(*req.PhoneNumber); err != nil {
			common.RespondBadRequest(c, err.Error())
			return
		}
		// Новый номер требует нового подтверждения, но флаг сбрасывает
		// только движок подтверждения, не профиль. Номер меняем как есть.
		user.PhoneNumber = req.PhoneNumber
	}
	if req.Address != nil {
		user.Address = req.Address
	}

	if user.IsAssistant() {
		if req.ServiceType != nil {
			if err := validation.ValidateServiceType(*req.ServiceType); err != nil {
				common.RespondBadRequest(c, err.Error())
				return
			}
			user.ServiceType = req.ServiceType
		}
		if req.VehicleType != nil {
			user.VehicleType = req.VehicleType
		}
	}

	if err := h.users.UpdateProfile(c.Request.Context(), user); err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "профиль успешно обновлён",
		"user":    profileView(user),
	})
}

// UpdateLocation обрабатывает POST /profile/location.
func (h *ProfileHandler) UpdateLocation(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	var req struct {
		Latitude  *float64 `json:"latitude" binding:"required"`
		Longitude *float64 `json:"longitude" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	if *req.Latitude < -90 || *req.Latitude > 90 || *req.Longitude < -180 || *req.Longitude > 180 {
		common.RespondBadRequest(c, "некорректные координаты")
		return
	}

	loc := models.Location{Latitude: *req.Latitude, Longitude: *req.Longitude}
	if err := h.users.UpdateLocation(c.Request.Context(), userID, loc); err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":  "геолокация обновлена",
		"location": loc,
	})
}

// UpdateAssistantStatus обрабатывает POST /assistant/status.
// Роль проверяется в middleware, маршрут доступен только ассистентам.
func (h *ProfileHandler) UpdateAssistantStatus(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	var req struct {
		IsActive bool `json:"is_active"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	if err := h.users.SetAssistantStatus(c.Request.Context(), userID, req.IsActive); err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":   "статус обновлён",
		"is_active": req.IsActive,
	})
}

// ListAssistants обрабатывает GET /assistants: активные ассистенты,
// опционально отфильтрованные по типу услуг.
func (h *ProfileHandler) ListAssistants(c *gin.Context) {
	serviceType := c.Query("service_type")
	if serviceType != "" {
		if err := validation.ValidateServiceType(serviceType); err != nil {
			common.RespondBadRequest(c, err.Error())
			return
		}
	}

	assistants, err := h.users.ListActiveAssistants(c.Request.Context(), serviceType)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	views := make([]gin.H, 0, len(assistants))
	for i := range assistants {
		views = append(views, assistantView(&assistants[i]))
	}

	c.JSON(http.StatusOK, gin.H{"assistants": views})
}

// assistantView собирает публичную карточку ассистента для каталога.
func assistantView(user *models.User) gin.H {
	return gin.H{
		"id":                  user.ID,
		"email":               user.Email,
		"name":                user.Name,
		"phone_number":        user.PhoneNumber,
		"photo_path":          user.PhotoPath,
		"location":            user.Location,
		"address":             user.Address,
		"service_type":        user.ServiceType,
		"vehicle_type":        user.VehicleType,
		"is_active_assistant": user.IsActiveAssistant,
	}
}

// UploadPhoto обрабатывает POST /profile/photo.
func (h *ProfileHandler) UploadPhoto(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	file, _, err := c.Request.FormFile("photo")
	if err != nil {
		common.RespondBadRequest(c, "файл photo обязателен")
		return
	}
	defer file.Close()

	relPath, _, err := h.photos.Save(c.Request.Context(), userID, file)
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	if err := h.users.SetPhotoPath(c.Request.Context(), userID, relPath); err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":    "фото профиля обновлено",
		"photo_path": relPath,
	})
}

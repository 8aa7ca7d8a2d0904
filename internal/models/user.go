package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Роли пользователей платформы.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Типы услуг ассистента.
const (
	ServiceTypeDepanneur  = "depanneur"
	ServiceTypeReparateur = "reparateur"
)

// User описывает аккаунт платформы: обычного пользователя или ассистента.
type User struct {
	ID                uuid.UUID       `db:"id" json:"id"`
	Email             string          `db:"email" json:"email"`
	Name              string          `db:"name" json:"name"`
	PhoneNumber       *string         `db:"phone_number" json:"phone_number,omitempty"`
	PasswordHash      string          `db:"password_hash" json:"-"`
	Role              string          `db:"role" json:"role"`
	EmailVerified     bool            `db:"email_verified" json:"email_verified"`
	PhoneVerified     bool            `db:"phone_verified" json:"phone_verified"`
	Location          json.RawMessage `db:"location" json:"location,omitempty"`
	Address           *string         `db:"address" json:"address,omitempty"`
	PhotoPath         *string         `db:"photo_path" json:"photo_path,omitempty"`
	ServiceType       *string         `db:"service_type" json:"service_type,omitempty"`
	VehicleType       *string         `db:"vehicle_type" json:"vehicle_type,omitempty"`
	IsActiveAssistant bool            `db:"is_active_assistant" json:"is_active_assistant"`
	IsActive          bool            `db:"is_active" json:"is_active"`
	CreatedAt         time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time       `db:"updated_at" json:"updated_at"`
}

// IsAssistant сообщает, является ли аккаунт ассистентом.
func (u *User) IsAssistant() bool {
	return u.Role == RoleAssistant
}

// Location хранит координаты пользователя.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Session представляет сохранённую сессию пользователя.
type Session struct {
	ID           uuid.UUID `db:"id" json:"id"`
	UserID       uuid.UUID `db:"user_id" json:"user_id"`
	RefreshToken string    `db:"refresh_token" json:"refresh_token"`
	UserAgent    *string   `db:"user_agent" json:"user_agent,omitempty"`
	IPAddress    *string   `db:"ip_address" json:"ip_address,omitempty"`
	ExpiresAt    time.Time `db:"expires_at" json:"expires_at"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

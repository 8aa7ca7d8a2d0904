package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/depannini/backend/internal/models"
)

// ErrUserNotFound возвращается, когда запись пользователя не найдена.
var ErrUserNotFound = errors.New("user not found")

// Ошибки уникальности при вставке. Предварительные проверки в сервисе
// не спасают от гонки двух одновременных регистраций, поэтому нарушение
// ограничения базы возвращается как различимая ошибка, а не как generic.
var (
	ErrDuplicateEmail = errors.New("email already registered")
	ErrDuplicatePhone = errors.New("phone number already registered")
)

const userColumns = `
	id, email, name, phone_number, password_hash, role,
	email_verified, phone_verified, location, address, photo_path,
	service_type, vehicle_type, is_active_assistant, is_active,
	created_at, updated_at
`

// UserRepository отвечает за работу с таблицами users и user_sessions.
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository создаёт экземпляр репозитория.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create создаёт нового пользователя.
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (email, name, phone_number, password_hash, role, service_type, vehicle_type, email_verified, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, TRUE)
		RETURNING id, created_at, updated_at
	`

	if err := r.db.QueryRowxContext(
		ctx, query,
		user.Email, user.Name, user.PhoneNumber, user.PasswordHash, user.Role,
		user.ServiceType, user.VehicleType, user.EmailVerified,
	).Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt); err != nil {
		if dup := mapUniqueViolation(err); dup != nil {
			return dup
		}
		return fmt.Errorf("user repository: create %w", err)
	}

	return nil
}

// mapUniqueViolation распознаёт нарушение уникального ограничения Postgres
// (код 23505) и возвращает ошибку по имени ограничения. Для прочих ошибок
// возвращает nil.
func mapUniqueViolation(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != "23505" {
		return nil
	}

	switch {
	case strings.Contains(pqErr.Constraint, "email"):
		return ErrDuplicateEmail
	case strings.Contains(pqErr.Constraint, "phone"):
		return ErrDuplicatePhone
	}
	return nil
}

// GetByEmail возвращает пользователя по email.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	if err := r.db.GetContext(ctx, &user, query, email); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("user repository: get by email %w", err)
	}

	return &user, nil
}

// GetByPhone возвращает пользователя по номеру телефона.
func (r *UserRepository) GetByPhone(ctx context.Context, phone string) (*models.User, error) {
	var user models.User
	query := `SELECT ` + userColumns + ` FROM users WHERE phone_number = $1`
	if err := r.db.GetContext(ctx, &user, query, phone); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("user repository: get by phone %w", err)
	}

	return &user, nil
}

// GetByID возвращает пользователя по идентификатору.
func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	if err := r.db.GetContext(ctx, &user, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("user repository: get by id %w", err)
	}

	return &user, nil
}

// SetEmailVerified выставляет флаг подтверждения email.
// Флаг монотонный: обратно не сбрасывается.
func (r *UserRepository) SetEmailVerified(ctx context.Context, userID uuid.UUID) error {
	if _, err := r.db.ExecContext(ctx, `
		UPDATE users SET email_verified = TRUE, updated_at = NOW() WHERE id = $1
	`, userID); err != nil {
		return fmt.Errorf("user repository: set email verified %w", err)
	}
	return nil
}

// SetPhoneVerified выставляет флаг подтверждения телефона.
func (r *UserRepository) SetPhoneVerified(ctx context.Context, userID uuid.UUID) error {
	if _, err := r.db.ExecContext(ctx, `
		UPDATE users SET phone_verified = TRUE, updated_at = NOW() WHERE id = $1
	`, userID); err != nil {
		return fmt.Errorf("user repository: set phone verified %w", err)
	}
	return nil
}

// UpdatePasswordHash заменяет хэш пароля пользователя.
func (r *UserRepository) UpdatePasswordHash(ctx context.Context, userID uuid.UUID, passwordHash string) error {
	if _, err := r.db.ExecContext(ctx, `
		UPDATE users SET password_hash = $2, updated_at = NOW() WHERE id = $1
	`, userID, passwordHash); err != nil {
		return fmt.Errorf("user repository: update password hash %w", err)
	}
	return nil
}

// UpdateProfile обновляет редактируемые поля профиля. Флаги подтверждения
// и роль через этот метод не меняются.
func (r *UserRepository) UpdateProfile(ctx context.Context, user *models.User) error {
	query := `
		UPDATE users
		SET name = $2,
			phone_number = $3,
			address = $4,
			service_type = $5,
			vehicle_type = $6,
			updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`
	if err := r.db.QueryRowxContext(
		ctx, query,
		user.ID, user.Name, user.PhoneNumber, user.Address,
		user.ServiceType, user.VehicleType,
	).Scan(&user.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrUserNotFound
		}
		return fmt.Errorf("user repository: update profile %w", err)
	}
	return nil
}

// UpdateLocation сохраняет координаты пользователя как JSON.
func (r *UserRepository) UpdateLocation(ctx context.Context, userID uuid.UUID, loc models.Location) error {
	raw, err := json.Marshal(loc)
	if err != nil {
		return fmt.Errorf("user repository: marshal location %w", err)
	}

	if _, err := r.db.ExecContext(ctx, `
		UPDATE users SET location = $2, updated_at = NOW() WHERE id = $1
	`, userID, raw); err != nil {
		return fmt.Errorf("user repository: update location %w", err)
	}
	return nil
}

// SetAssistantStatus переключает доступность ассистента.
func (r *UserRepository) SetAssistantStatus(ctx context.Context, userID uuid.UUID, active bool) error {
	if _, err := r.db.ExecContext(ctx, `
		UPDATE users SET is_active_assistant = $2, updated_at = NOW() WHERE id = $1
	`, userID, active); err != nil {
		return fmt.Errorf("user repository: set assistant status %w", err)
	}
	return nil
}

// SetPhotoPath сохраняет путь к фото профиля.
func (r *UserRepository) SetPhotoPath(ctx context.Context, userID uuid.UUID, path string) error {
	if _, err := r.db.ExecContext(ctx, `
		UPDATE users SET photo_path = $2, updated_at = NOW() WHERE id = $1
	`, userID, path); err != nil {
		return fmt.Errorf("user repository: set photo path %w", err)
	}
	return nil
}

// ListActiveAssistants возвращает ассистентов, доступных для вызова:
// активный аккаунт с включённым статусом ассистента. Пустой serviceType
// означает без фильтра.
func (r *UserRepository) ListActiveAssistants(ctx context.Context, serviceType string) ([]models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users
		WHERE role = 'assistant' AND is_active_assistant = TRUE AND is_active = TRUE`
	args := []interface{}{}
	if serviceType != "" {
		query += ` AND service_type = $1`
		args = append(args, serviceType)
	}
	query += ` ORDER BY name`

	var assistants []models.User
	if err := r.db.SelectContext(ctx, &assistants, query, args...); err != nil {
		return nil, fmt.Errorf("user repository: list active assistants %w", err)
	}
	return assistants, nil
}

// CreateSession сохраняет новую сессию.
func (r *UserRepository) CreateSession(ctx context.Context, session *models.Session) error {
	query := `
		INSERT INTO user_sessions (user_id, refresh_token, user_agent, ip_address, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`
	if err := r.db.QueryRowxContext(
		ctx, query,
		session.UserID, session.RefreshToken, session.UserAgent, session.IPAddress, session.ExpiresAt,
	).Scan(&session.ID, &session.CreatedAt); err != nil {
		return fmt.Errorf("user repository: create session %w", err)
	}
	return nil
}

// DeleteSession удаляет сессию по refresh токену.
func (r *UserRepository) DeleteSession(ctx context.Context, refreshToken string) error {
	if _, err := r.db.ExecContext(ctx, `
		DELETE FROM user_sessions WHERE refresh_token = $1
	`, refreshToken); err != nil {
		return fmt.Errorf("user repository: delete session %w", err)
	}
	return nil
}

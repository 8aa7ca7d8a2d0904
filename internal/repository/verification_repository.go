package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/depannini/backend/internal/models"
)

// ErrCodeNotFound возвращается, когда пригодный код подтверждения не найден.
// Одна и та же ошибка для всех случаев: неверный код, просроченный,
// использованный, чужой scope.
var ErrCodeNotFound = errors.New("verification code not found")

// VerificationRepository отвечает за работу с таблицей verification_codes.
type VerificationRepository struct {
	db *sqlx.DB
}

// NewVerificationRepository создаёт экземпляр репозитория.
func NewVerificationRepository(db *sqlx.DB) *VerificationRepository {
	return &VerificationRepository{db: db}
}

// CreateCode сохраняет новый код. Ранее выпущенные коды того же назначения
// остаются действительными до собственного истечения или использования.
func (r *VerificationRepository) CreateCode(ctx context.Context, userID uuid.UUID, scope, code string, expiresAt time.Time) (*models.VerificationCode, error) {
	var vc models.VerificationCode
	query := `
		INSERT INTO verification_codes (user_id, scope, code, expires_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id, user_id, scope, code, used, expires_at, created_at
	`
	if err := r.db.GetContext(ctx, &vc, query, userID, scope, code, expiresAt); err != nil {
		return nil, fmt.Errorf("verification repository: create code %w", err)
	}
	return &vc, nil
}

// FindLatestValid ищет самый свежий неиспользованный и непросроченный код,
// точно совпадающий по аккаунту, назначению и строке кода.
func (r *VerificationRepository) FindLatestValid(ctx context.Context, userID uuid.UUID, scope, code string) (*models.VerificationCode, error) {
	var vc models.VerificationCode
	query := `
		SELECT id, user_id, scope, code, used, expires_at, created_at
		FROM verification_codes
		WHERE user_id = $1 AND scope = $2 AND code = $3 AND used = FALSE AND expires_at > NOW()
		ORDER BY created_at DESC
		LIMIT 1
	`
	if err := r.db.GetContext(ctx, &vc, query, userID, scope, code); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCodeNotFound
		}
		return nil, fmt.Errorf("verification repository: find latest valid %w", err)
	}
	return &vc, nil
}

// ConsumeCode помечает код использованным. Условие used = FALSE вместе с
// проверкой числа затронутых строк гарантирует, что при конкурентных
// попытках код будет израсходован ровно один раз: проигравший запрос
// получает ErrCodeNotFound.
func (r *VerificationRepository) ConsumeCode(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE verification_codes
		SET used = TRUE
		WHERE id = $1 AND used = FALSE AND expires_at > NOW()
	`, id)
	if err != nil {
		return fmt.Errorf("verification repository: consume code %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("verification repository: consume code rows affected %w", err)
	}
	if affected == 0 {
		return ErrCodeNotFound
	}

	return nil
}

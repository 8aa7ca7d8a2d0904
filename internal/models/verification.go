package models

import (
	"time"

	"github.com/google/uuid"
)

// Назначение кода подтверждения. Код действителен только для той операции,
// для которой был выпущен.
const (
	VerificationScopeEmail    = "email"
	VerificationScopePhone    = "phone"
	VerificationScopePassword = "password"
)

// VerificationCode — одноразовый код подтверждения, привязанный к аккаунту
// и назначению. Истечение срока проверяется лениво при валидации, записи
// физически не удаляются.
type VerificationCode struct {
	ID        uuid.UUID `db:"id" json:"id"`
	UserID    uuid.UUID `db:"user_id" json:"user_id"`
	Scope     string    `db:"scope" json:"scope"`
	Code      string    `db:"code" json:"-"`
	Used      bool      `db:"used" json:"used"`
	ExpiresAt time.Time `db:"expires_at" json:"expires_at"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// IsValid сообщает, пригоден ли код к использованию в момент now.
func (v *VerificationCode) IsValid(now time.Time) bool {
	return !v.Used && now.Before(v.ExpiresAt)
}

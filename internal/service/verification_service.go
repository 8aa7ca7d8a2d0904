package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/depannini/backend/internal/goroutine"
	"github.com/depannini/backend/internal/logger"
	"github.com/depannini/backend/internal/models"
	"github.com/depannini/backend/internal/pkg/apperror"
	"github.com/depannini/backend/internal/repository"
)

// UserStore описывает зависимости VerificationService от хранилища аккаунтов.
type UserStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByPhone(ctx context.Context, phone string) (*models.User, error)
	SetEmailVerified(ctx context.Context, userID uuid.UUID) error
	SetPhoneVerified(ctx context.Context, userID uuid.UUID) error
	UpdatePasswordHash(ctx context.Context, userID uuid.UUID, passwordHash string) error
}

// CodeStore описывает хранилище кодов подтверждения.
type CodeStore interface {
	CreateCode(ctx context.Context, userID uuid.UUID, scope, code string, expiresAt time.Time) (*models.VerificationCode, error)
	FindLatestValid(ctx context.Context, userID uuid.UUID, scope, code string) (*models.VerificationCode, error)
	ConsumeCode(ctx context.Context, id uuid.UUID) error
}

// Mailer отправляет письма.
type Mailer interface {
	SendEmail(to, subject, body string) error
}

// SMSSender отправляет SMS.
type SMSSender interface {
	SendSMS(to, body string) error
}

// VerificationService — движок подтверждения: выпускает коды, проверяет их
// и применяет переход состояния аккаунта. Код считается выпущенным после
// сохранения записи; сбой доставки логируется и не отменяет выпуск.
type VerificationService struct {
	users UserStore
	codes CodeStore
	gen   *CodeGenerator

	mailer Mailer
	sms    SMSSender

	verificationTTL time.Duration
	loginTTL        time.Duration
}

// NewVerificationService создаёт движок подтверждения.
func NewVerificationService(users UserStore, codes CodeStore, gen *CodeGenerator, mailer Mailer, sms SMSSender, verificationTTL, loginTTL time.Duration) *VerificationService {
	return &VerificationService{
		users:           users,
		codes:           codes,
		gen:             gen,
		mailer:          mailer,
		sms:             sms,
		verificationTTL: verificationTTL,
		loginTTL:        loginTTL,
	}
}

// RequestEmailVerification выпускает код подтверждения email и отправляет
// его на почту. Для уже подтверждённого email повторный выпуск запрещён.
func (s *VerificationService) RequestEmailVerification(ctx context.Context, userID uuid.UUID) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}

	if user.EmailVerified {
		return apperror.ErrAlreadyVerified
	}

	code, err := s.issue(ctx, user.ID, models.VerificationScopeEmail, s.verificationTTL)
	if err != nil {
		return err
	}

	s.deliverEmail(user.Email, "Depannini - Email Verification Code",
		fmt.Sprintf("Your verification code is: %s", code))
	return nil
}

// RequestPhoneVerification выпускает код подтверждения телефона.
func (s *VerificationService) RequestPhoneVerification(ctx context.Context, userID uuid.UUID) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}

	if user.PhoneNumber == nil || *user.PhoneNumber == "" {
		return apperror.ErrNoPhoneNumber
	}
	if user.PhoneVerified {
		return apperror.ErrAlreadyVerified
	}

	code, err := s.issue(ctx, user.ID, models.VerificationScopePhone, s.verificationTTL)
	if err != nil {
		return err
	}

	s.deliverSMS(*user.PhoneNumber, fmt.Sprintf("Your verification code is: %s", code))
	return nil
}

// Resend повторно выпускает код для указанного канала. Ранее выпущенные
// коды остаются действительными: повторная отправка не должна ломать
// письмо, которое ещё идёт к пользователю.
func (s *VerificationService) Resend(ctx context.Context, userID uuid.UUID, channel string) error {
	switch channel {
	case models.VerificationScopeEmail:
		return s.RequestEmailVerification(ctx, userID)
	case models.VerificationScopePhone:
		return s.RequestPhoneVerification(ctx, userID)
	default:
		return apperror.New(apperror.ErrCodeValidation, "неизвестный канал подтверждения")
	}
}

// ConfirmEmail проверяет код и помечает email подтверждённым.
// Любой отказ неразличим для клиента: неверный код, просроченный,
// использованный и несуществующий аккаунт дают одну и ту же ошибку.
func (s *VerificationService) ConfirmEmail(ctx context.Context, email, code string) error {
	user, err := s.users.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return s.maskLookupError(err)
	}

	if err := s.consume(ctx, user.ID, models.VerificationScopeEmail, code); err != nil {
		return err
	}

	return s.users.SetEmailVerified(ctx, user.ID)
}

// ConfirmPhone проверяет код и помечает телефон подтверждённым.
func (s *VerificationService) ConfirmPhone(ctx context.Context, phone, code string) error {
	user, err := s.users.GetByPhone(ctx, phone)
	if err != nil {
		return s.maskLookupError(err)
	}

	if err := s.consume(ctx, user.ID, models.VerificationScopePhone, code); err != nil {
		return err
	}

	return s.users.SetPhoneVerified(ctx, user.ID)
}

// RequestPasswordReset выпускает код сброса пароля. Ответ одинаков вне
// зависимости от существования аккаунта: запись и письмо создаются только
// когда аккаунт есть, но клиенту это не видно.
func (s *VerificationService) RequestPasswordReset(ctx context.Context, email string) error {
	user, err := s.users.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if isUserNotFound(err) {
			if logger.Log != nil {
				logger.Log.WithFields(logrus.Fields{"email": email}).
					Debug("verification: запрос сброса пароля для незарегистрированного email")
			}
			return nil
		}
		return err
	}

	code, err := s.issue(ctx, user.ID, models.VerificationScopePassword, s.verificationTTL)
	if err != nil {
		return err
	}

	s.deliverEmail(user.Email, "Depannini - Password Reset Code",
		fmt.Sprintf("Your password reset code is: %s", code))
	return nil
}

// ConfirmPasswordReset проверяет код и заменяет пароль. Возвращает
// пользователя: сброс пароля одновременно является входом, вызывающая
// сторона выпускает для него новую сессию.
func (s *VerificationService) ConfirmPasswordReset(ctx context.Context, email, code, newPassword string) (*models.User, error) {
	user, err := s.users.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return nil, s.maskLookupError(err)
	}

	if err := s.consume(ctx, user.ID, models.VerificationScopePassword, code); err != nil {
		return nil, err
	}

	passHash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("verification: не удалось захешировать пароль: %w", err)
	}

	if err := s.users.UpdatePasswordHash(ctx, user.ID, string(passHash)); err != nil {
		return nil, err
	}

	user.PasswordHash = string(passHash)
	return user, nil
}

// RequestPhoneLoginCode выпускает код входа по телефону. Только для
// аккаунтов с подтверждённым номером: вход по телефону доступен по
// приглашению, поэтому здесь ошибка намеренно отличается от унифицированной.
// Срок жизни короче, чем у кодов подтверждения: такой код сразу даёт сессию.
func (s *VerificationService) RequestPhoneLoginCode(ctx context.Context, phone string) error {
	user, err := s.users.GetByPhone(ctx, phone)
	if err != nil {
		if isUserNotFound(err) {
			return apperror.ErrPhoneNotFoundOrUnverified
		}
		return err
	}
	if !user.PhoneVerified {
		return apperror.ErrPhoneNotFoundOrUnverified
	}

	code, err := s.issue(ctx, user.ID, models.VerificationScopePhone, s.loginTTL)
	if err != nil {
		return err
	}

	s.deliverSMS(phone, fmt.Sprintf("Your login code is: %s", code))
	return nil
}

// ConsumePhoneCode расходует код входа по телефону без изменения флагов
// аккаунта. Используется второй фазой входа по телефону.
func (s *VerificationService) ConsumePhoneCode(ctx context.Context, userID uuid.UUID, code string) error {
	return s.consume(ctx, userID, models.VerificationScopePhone, code)
}

// Status возвращает флаги подтверждения аккаунта.
func (s *VerificationService) Status(ctx context.Context, userID uuid.UUID) (map[string]bool, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return map[string]bool{
		"email_verified": user.EmailVerified,
		"phone_verified": user.PhoneVerified,
	}, nil
}

// issue генерирует код и сохраняет запись. Ранее выпущенные коды того же
// назначения не аннулируются.
func (s *VerificationService) issue(ctx context.Context, userID uuid.UUID, scope string, ttl time.Duration) (string, error) {
	code, err := s.gen.Generate()
	if err != nil {
		return "", err
	}

	if _, err := s.codes.CreateCode(ctx, userID, scope, code, time.Now().Add(ttl)); err != nil {
		return "", err
	}

	return code, nil
}

// consume находит самый свежий пригодный код и атомарно расходует его.
// Проигрыш гонки на ConsumeCode выглядит для клиента так же, как
// неверный код.
func (s *VerificationService) consume(ctx context.Context, userID uuid.UUID, scope, code string) error {
	vc, err := s.codes.FindLatestValid(ctx, userID, scope, code)
	if err != nil {
		if errors.Is(err, repository.ErrCodeNotFound) {
			return apperror.ErrInvalidOrExpiredCode
		}
		return err
	}

	if err := s.codes.ConsumeCode(ctx, vc.ID); err != nil {
		if errors.Is(err, repository.ErrCodeNotFound) {
			return apperror.ErrInvalidOrExpiredCode
		}
		return err
	}

	return nil
}

// maskLookupError прячет отсутствие аккаунта за унифицированной ошибкой кода.
func (s *VerificationService) maskLookupError(err error) error {
	if isUserNotFound(err) {
		return apperror.ErrInvalidOrExpiredCode
	}
	return err
}

// deliverEmail отправляет письмо в фоне. Ошибка доставки только логируется.
func (s *VerificationService) deliverEmail(to, subject, body string) {
	goroutine.SafeGo(func() {
		if err := s.mailer.SendEmail(to, subject, body); err != nil {
			if logger.Log != nil {
				logger.Log.WithFields(logrus.Fields{
					"to":    to,
					"error": err.Error(),
				}).Warn("verification: не удалось отправить письмо")
			}
		}
	})
}

// deliverSMS отправляет SMS в фоне. Ошибка доставки только логируется.
func (s *VerificationService) deliverSMS(to, body string) {
	goroutine.SafeGo(func() {
		if err := s.sms.SendSMS(to, body); err != nil {
			if logger.Log != nil {
				logger.Log.WithFields(logrus.Fields{
					"to":    to,
					"error": err.Error(),
				}).Warn("verification: не удалось отправить SMS")
			}
		}
	})
}

func isUserNotFound(err error) bool {
	return errors.Is(err, repository.ErrUserNotFound) || apperror.IsNotFound(err)
}

// normalizeEmail приводит email к канонической форме хранения. Аккаунты
// создаются с email в нижнем регистре, поэтому все поиски делаются так же:
// пользователь, введший свой адрес в другом регистре, не должен получать
// отказ по коду.
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

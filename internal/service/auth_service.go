package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/google/uuid"

	"github.com/depannini/backend/internal/models"
	"github.com/depannini/backend/internal/pkg/apperror"
	"github.com/depannini/backend/internal/repository"
	"github.com/depannini/backend/internal/validation"
)

// AuthRepository описывает зависимости AuthService от слоя хранилища.
type AuthRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByPhone(ctx context.Context, phone string) (*models.User, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	CreateSession(ctx context.Context, session *models.Session) error
	DeleteSession(ctx context.Context, refreshToken string) error
}

// AuthService объединяет стратегии входа: пароль, код по телефону,
// внешний провайдер идентификации. Все стратегии сходятся в выпуске сессии;
// при отказе сессия не выпускается и состояние аккаунта не меняется.
type AuthService struct {
	repo           AuthRepository
	tokenManager   *TokenManager
	verification   *VerificationService
	identity       IdentityVerifier
	allowedIssuers []string
}

// RegisterInput содержит данные пользователя при регистрации.
type RegisterInput struct {
	Email       string
	Password    string
	Name        string
	Role        string
	PhoneNumber string
	ServiceType string
	VehicleType string
}

// AuthResult возвращает итог регистрации или авторизации.
type AuthResult struct {
	User      *models.User
	TokenPair *TokenPair
}

// NewAuthService создаёт сервис аутентификации.
func NewAuthService(repo AuthRepository, tokenManager *TokenManager, verification *VerificationService, identity IdentityVerifier, allowedIssuers []string) *AuthService {
	return &AuthService{
		repo:           repo,
		tokenManager:   tokenManager,
		verification:   verification,
		identity:       identity,
		allowedIssuers: allowedIssuers,
	}
}

// Register создаёт нового пользователя и сразу выпускает коды подтверждения
// email и телефона (если номер указан). Доставка кодов — fire-and-forget.
func (s *AuthService) Register(ctx context.Context, in RegisterInput, meta map[string]string) (*AuthResult, error) {
	if err := validation.ValidateEmail(in.Email); err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeValidation, err.Error())
	}
	if err := validation.ValidatePassword(in.Password); err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeValidation, err.Error())
	}
	if err := validation.ValidateName(in.Name); err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeValidation, err.Error())
	}

	role := in.Role
	if role == "" {
		role = models.RoleUser
	}
	if err := validation.ValidateRole(role); err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeValidation, err.Error())
	}

	// Для ассистента тип услуг обязателен.
	if role == models.RoleAssistant {
		if err := validation.ValidateServiceType(in.ServiceType); err != nil {
			return nil, apperror.Wrap(err, apperror.ErrCodeValidation, err.Error())
		}
	}

	if in.PhoneNumber != "" {
		if err := validation.ValidatePhone(in.PhoneNumber); err != nil {
			return nil, apperror.Wrap(err, apperror.ErrCodeValidation, err.Error())
		}
	}

	if _, err := s.repo.GetByEmail(ctx, normalizeEmail(in.Email)); err == nil {
		return nil, apperror.ErrEmailTaken
	} else if !errors.Is(err, repository.ErrUserNotFound) {
		return nil, err
	}

	if in.PhoneNumber != "" {
		if _, err := s.repo.GetByPhone(ctx, in.PhoneNumber); err == nil {
			return nil, apperror.ErrPhoneTaken
		} else if !errors.Is(err, repository.ErrUserNotFound) {
			return nil, err
		}
	}

	passHash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("auth service: не удалось захешировать пароль: %w", err)
	}

	user := &models.User{
		Email:        normalizeEmail(in.Email),
		Name:         strings.TrimSpace(in.Name),
		PasswordHash: string(passHash),
		Role:         role,
		// Запись создаётся активной; заполняем поле и в структуре,
		// чтобы свежий аккаунт сразу прошёл проверку в IssueSession.
		IsActive: true,
	}
	if in.PhoneNumber != "" {
		phone := in.PhoneNumber
		user.PhoneNumber = &phone
	}
	if role == models.RoleAssistant {
		serviceType := in.ServiceType
		user.ServiceType = &serviceType
		if in.VehicleType != "" {
			vehicleType := in.VehicleType
			user.VehicleType = &vehicleType
		}
	}

	// Гонку двух одновременных регистраций предварительные проверки не
	// закрывают, её ловит уникальное ограничение базы.
	if err := s.repo.Create(ctx, user); err != nil {
		return nil, mapDuplicateUser(err)
	}

	// Коды подтверждения выпускаем сразу после регистрации.
	if err := s.verification.RequestEmailVerification(ctx, user.ID); err != nil {
		return nil, err
	}
	if user.PhoneNumber != nil {
		if err := s.verification.RequestPhoneVerification(ctx, user.ID); err != nil {
			return nil, err
		}
	}

	tokenPair, err := s.IssueSession(ctx, user, meta)
	if err != nil {
		return nil, err
	}

	return &AuthResult{User: user, TokenPair: tokenPair}, nil
}

// LoginWithPassword проверяет учётные данные и возвращает токены.
// Неизвестный email и неверный пароль неразличимы для клиента.
func (s *AuthService) LoginWithPassword(ctx context.Context, email, password string, meta map[string]string) (*AuthResult, error) {
	user, err := s.repo.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, apperror.ErrInvalidCredentials
		}
		return nil, err
	}

	if !user.IsActive {
		return nil, apperror.ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, apperror.ErrInvalidCredentials
	}

	tokenPair, err := s.IssueSession(ctx, user, meta)
	if err != nil {
		return nil, err
	}

	return &AuthResult{User: user, TokenPair: tokenPair}, nil
}

// LoginWithPhoneCode завершает вход по телефону: расходует код и выпускает
// сессию. Первая фаза — VerificationService.RequestPhoneLoginCode.
func (s *AuthService) LoginWithPhoneCode(ctx context.Context, phone, code string, meta map[string]string) (*AuthResult, error) {
	user, err := s.repo.GetByPhone(ctx, phone)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, apperror.ErrInvalidOrExpiredCode
		}
		return nil, err
	}

	if err := s.verification.ConsumePhoneCode(ctx, user.ID, code); err != nil {
		return nil, err
	}

	tokenPair, err := s.IssueSession(ctx, user, meta)
	if err != nil {
		return nil, err
	}

	return &AuthResult{User: user, TokenPair: tokenPair}, nil
}

// LoginWithGoogle проверяет ID токен у внешнего провайдера и находит или
// создаёт аккаунт по подтверждённому email. Email считается подтверждённым:
// провайдер уже проверил его за нас.
func (s *AuthService) LoginWithGoogle(ctx context.Context, token string, meta map[string]string) (*AuthResult, error) {
	claim, err := s.identity.Verify(ctx, token)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeUnauthorized, apperror.ErrInvalidIdentityToken.Message)
	}

	if !s.issuerAllowed(claim.Issuer) {
		return nil, apperror.ErrInvalidIdentityToken
	}

	email := normalizeEmail(claim.Email)
	if email == "" {
		return nil, apperror.ErrInvalidIdentityToken
	}

	user, err := s.repo.GetByEmail(ctx, email)
	if errors.Is(err, repository.ErrUserNotFound) {
		// Пароля у такого аккаунта нет: вход только через провайдера,
		// пока пользователь не сделает сброс пароля.
		placeholder, hashErr := bcrypt.GenerateFromPassword([]byte(uuid.NewString()), bcrypt.DefaultCost)
		if hashErr != nil {
			return nil, fmt.Errorf("auth service: не удалось захешировать пароль: %w", hashErr)
		}

		user = &models.User{
			Email:         email,
			Name:          claim.Name,
			PasswordHash:  string(placeholder),
			Role:          models.RoleUser,
			EmailVerified: true,
			IsActive:      true,
		}
		if err := s.repo.Create(ctx, user); err != nil {
			return nil, mapDuplicateUser(err)
		}
	} else if err != nil {
		return nil, err
	}

	tokenPair, err := s.IssueSession(ctx, user, meta)
	if err != nil {
		return nil, err
	}

	return &AuthResult{User: user, TokenPair: tokenPair}, nil
}

// Refresh выпускает новую пару токенов взамен старой.
func (s *AuthService) Refresh(ctx context.Context, oldToken string, meta map[string]string) (*TokenPair, error) {
	claims, err := s.tokenManager.ParseRefresh(oldToken)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeUnauthorized, "refresh токен невалиден")
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeUnauthorized, "некорректный subject")
	}

	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	if err := s.repo.DeleteSession(ctx, oldToken); err != nil {
		return nil, err
	}

	return s.IssueSession(ctx, user, meta)
}

// IssueSession выпускает пару токенов и сохраняет сессию. Используется
// всеми стратегиями входа и подтверждением сброса пароля, поэтому
// деактивированный аккаунт отсекается именно здесь: ни одна стратегия
// не может выдать сессию в обход этой проверки.
func (s *AuthService) IssueSession(ctx context.Context, user *models.User, meta map[string]string) (*TokenPair, error) {
	if !user.IsActive {
		return nil, apperror.ErrAccountDisabled
	}

	tokenPair, _, refreshExp, err := s.tokenManager.GeneratePair(user)
	if err != nil {
		return nil, err
	}

	session := &models.Session{
		UserID:       user.ID,
		RefreshToken: tokenPair.RefreshToken,
		ExpiresAt:    refreshExp,
	}

	if meta != nil {
		if ua, ok := meta["user_agent"]; ok {
			session.UserAgent = &ua
		}
		if ip, ok := meta["ip"]; ok {
			session.IPAddress = &ip
		}
	}

	if err := s.repo.CreateSession(ctx, session); err != nil {
		return nil, err
	}

	return tokenPair, nil
}

// mapDuplicateUser переводит ошибки уникальности хранилища в ошибки API.
func mapDuplicateUser(err error) error {
	switch {
	case errors.Is(err, repository.ErrDuplicateEmail):
		return apperror.ErrEmailTaken
	case errors.Is(err, repository.ErrDuplicatePhone):
		return apperror.ErrPhoneTaken
	}
	return err
}

// issuerAllowed проверяет издателя токена по списку из конфигурации.
func (s *AuthService) issuerAllowed(issuer string) bool {
	for _, allowed := range s.allowedIssuers {
		if issuer == allowed {
			return true
		}
	}
	return false
}

package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

type ErrorCode string

const (
	ErrCodeNotFound     ErrorCode = "NOT_FOUND"
	ErrCodeUnauthorized ErrorCode = "UNAUTHORIZED"
	ErrCodeForbidden    ErrorCode = "FORBIDDEN"
	ErrCodeBadRequest   ErrorCode = "BAD_REQUEST"
	ErrCodeConflict     ErrorCode = "CONFLICT"
	ErrCodeInternal     ErrorCode = "INTERNAL_ERROR"
	ErrCodeValidation   ErrorCode = "VALIDATION_ERROR"
)

type AppError struct {
	Code       ErrorCode
	Message    string
	HTTPStatus int
	Cause      error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: codeToHTTPStatus(code),
	}
}

func Wrap(err error, code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: codeToHTTPStatus(code),
		Cause:      err,
	}
}

func codeToHTTPStatus(code ErrorCode) int {
	switch code {
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case ErrCodeForbidden:
		return http.StatusForbidden
	case ErrCodeBadRequest, ErrCodeValidation:
		return http.StatusBadRequest
	case ErrCodeConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func IsNotFound(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == ErrCodeNotFound
}

func IsValidation(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == ErrCodeValidation
}

// Ошибки аутентификации и подтверждения. Сообщения намеренно одинаковые для
// всех вариантов отказа по коду: неверный, просроченный, использованный код и
// несуществующий аккаунт неразличимы для клиента.
var (
	ErrUserNotFound              = New(ErrCodeNotFound, "пользователь не найден")
	ErrUnauthorized              = New(ErrCodeUnauthorized, "требуется авторизация")
	ErrForbidden                 = New(ErrCodeForbidden, "недостаточно прав")
	ErrInvalidCredentials        = New(ErrCodeUnauthorized, "неверный email или пароль")
	ErrAccountDisabled           = New(ErrCodeForbidden, "аккаунт деактивирован")
	ErrInvalidOrExpiredCode      = New(ErrCodeBadRequest, "неверный или просроченный код")
	ErrAlreadyVerified           = New(ErrCodeConflict, "уже подтверждено")
	ErrPhoneNotFoundOrUnverified = New(ErrCodeNotFound, "номер телефона не найден или не подтверждён")
	ErrInvalidIdentityToken      = New(ErrCodeUnauthorized, "невалидный токен идентификации")
	ErrNoPhoneNumber             = New(ErrCodeBadRequest, "номер телефона не указан")
	ErrEmailTaken                = New(ErrCodeConflict, "email уже зарегистрирован")
	ErrPhoneTaken                = New(ErrCodeConflict, "номер телефона уже зарегистрирован")
)

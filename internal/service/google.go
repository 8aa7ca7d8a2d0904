package service

import (
	"context"

	"google.golang.org/api/idtoken"
)

// IdentityClaim — подтверждённые внешним провайдером данные о пользователе.
type IdentityClaim struct {
	Issuer string
	Email  string
	Name   string
	Sub    string
}

// IdentityVerifier проверяет токен внешнего провайдера идентификации.
type IdentityVerifier interface {
	Verify(ctx context.Context, token string) (*IdentityClaim, error)
}

// GoogleVerifier проверяет Google ID токены через официальную библиотеку.
type GoogleVerifier struct {
	clientID string
}

// NewGoogleVerifier создаёт проверяльщик с client ID из конфигурации.
func NewGoogleVerifier(clientID string) *GoogleVerifier {
	return &GoogleVerifier{clientID: clientID}
}

// Verify валидирует подпись и audience токена и возвращает клеймы.
func (g *GoogleVerifier) Verify(ctx context.Context, token string) (*IdentityClaim, error) {
	payload, err := idtoken.Validate(ctx, token, g.clientID)
	if err != nil {
		return nil, err
	}

	email, _ := payload.Claims["email"].(string)
	name, _ := payload.Claims["name"].(string)
	sub, _ := payload.Claims["sub"].(string)

	return &IdentityClaim{
		Issuer: payload.Issuer,
		Email:  email,
		Name:   name,
		Sub:    sub,
	}, nil
}

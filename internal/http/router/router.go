package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/depannini/backend/internal/config"
	"github.com/depannini/backend/internal/http/handlers"
	"github.com/depannini/backend/internal/http/middleware"
	"github.com/depannini/backend/internal/models"
	"github.com/depannini/backend/internal/service"
)

// SetupRouter собирает таблицу маршрутов.
func SetupRouter(
	cfg *config.Config,
	authHandler *handlers.AuthHandler,
	verificationHandler *handlers.VerificationHandler,
	profileHandler *handlers.ProfileHandler,
	healthHandler *handlers.HealthHandler,
	tokenManager *service.TokenManager,
) *gin.Engine {
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.Default()
	r.Use(middleware.ErrorHandler())
	r.Use(middleware.CORSMiddleware(cfg.AllowedOrigins))

	r.GET("/health", healthHandler.Health)
	r.StaticFS("/media", http.Dir(cfg.MediaStoragePath))

	api := r.Group("/api")

	// Все маршруты выпуска кодов и входа под rate limit: они дешёвые для
	// клиента и дорогие для нас (письма, SMS, bcrypt).
	authRateLimit := middleware.RateLimitMiddleware(cfg.RateLimitLimit, cfg.RateLimitPeriod)

	authGroup := api.Group("/auth")
	authGroup.Use(authRateLimit)
	{
		authGroup.POST("/register", authHandler.Register)
		authGroup.POST("/login", authHandler.Login)
		authGroup.POST("/refresh", authHandler.Refresh)
		authGroup.POST("/google", authHandler.GoogleLogin)
		authGroup.POST("/phone/request", authHandler.RequestPhoneLogin)
		authGroup.POST("/phone/login", authHandler.PhoneLogin)
		authGroup.POST("/password-reset", authHandler.RequestPasswordReset)
		authGroup.POST("/password-reset/confirm", authHandler.ConfirmPasswordReset)
	}

	// Подтверждение кодов доступно без сессии: пользователь мог выйти
	// между получением письма и вводом кода.
	verifyGroup := api.Group("/verification")
	verifyGroup.Use(authRateLimit)
	{
		verifyGroup.POST("/email/confirm", verificationHandler.ConfirmEmail)
		verifyGroup.POST("/phone/confirm", verificationHandler.ConfirmPhone)
	}

	protectedVerify := api.Group("/verification")
	protectedVerify.Use(middleware.AuthMiddleware(tokenManager), authRateLimit)
	{
		protectedVerify.POST("/email/request", verificationHandler.RequestEmailCode)
		protectedVerify.POST("/phone/request", verificationHandler.RequestPhoneCode)
		protectedVerify.POST("/resend", verificationHandler.Resend)
		protectedVerify.GET("/status", verificationHandler.GetStatus)
	}

	protected := api.Group("/")
	protected.Use(middleware.AuthMiddleware(tokenManager))
	{
		protected.GET("/profile", profileHandler.GetMe)
		protected.PUT("/profile", profileHandler.UpdateMe)
		protected.POST("/profile/location", profileHandler.UpdateLocation)
		protected.POST("/profile/photo", profileHandler.UploadPhoto)
		protected.POST("/assistant/status", middleware.RequireRole(models.RoleAssistant), profileHandler.UpdateAssistantStatus)
		protected.GET("/assistants", profileHandler.ListAssistants)
	}

	return r
}

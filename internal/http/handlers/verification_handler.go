package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/depannini/backend/internal/http/handlers/common"
	"github.com/depannini/backend/internal/service"
)

// VerificationHandler предоставляет HTTP слой для кодов подтверждения.
type VerificationHandler struct {
	svc *service.VerificationService
}

// NewVerificationHandler создаёт хэндлер.
func NewVerificationHandler(s *service.VerificationService) *VerificationHandler {
	return &VerificationHandler{svc: s}
}

// RequestEmailCode POST /verification/email/request
func (h *VerificationHandler) RequestEmailCode(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	if err := h.svc.RequestEmailVerification(c.Request.Context(), userID); err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "код подтверждения отправлен на email"})
}

// RequestPhoneCode POST /verification/phone/request
func (h *VerificationHandler) RequestPhoneCode(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	if err := h.svc.RequestPhoneVerification(c.Request.Context(), userID); err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "код подтверждения отправлен на телефон"})
}

// ConfirmEmail POST /verification/email/confirm
func (h *VerificationHandler) ConfirmEmail(c *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required,email"`
		Code  string `json:"code" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	if err := h.svc.ConfirmEmail(c.Request.Context(), req.Email, req.Code); err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "email успешно подтверждён"})
}

// ConfirmPhone POST /verification/phone/confirm
func (h *VerificationHandler) ConfirmPhone(c *gin.Context) {
	var req struct {
		PhoneNumber string `json:"phone_number" binding:"required"`
		Code        string `json:"code" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	if err := h.svc.ConfirmPhone(c.Request.Context(), req.PhoneNumber, req.Code); err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "номер телефона успешно подтверждён"})
}

// Resend POST /verification/resend
func (h *VerificationHandler) Resend(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	var req struct {
		Channel string `json:"channel" binding:"required,oneof=email phone"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	if err := h.svc.Resend(c.Request.Context(), userID, req.Channel); err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "код подтверждения отправлен повторно"})
}

// GetStatus GET /verification/status
func (h *VerificationHandler) GetStatus(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	status, err := h.svc.Status(c.Request.Context(), userID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

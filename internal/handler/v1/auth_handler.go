package v1

import (
	"github.com/dmehra2102/prod-golang-projects/medvault/internal/domain"
	"github.com/dmehra2102/prod-golang-projects/medvault/internal/service"
	"github.com/gin-gonic/gin"
)

type AuthHandler struct {
	auth *service.AuthService
}

func NewAuthHandler(auth *service.AuthService) *AuthHandler {
	return &AuthHandler{auth: auth}
}

type registerRequest struct {
	Username  string `json:"username" binding:"required"`
	Email     string `json:"email" binding:"required"`
	Password  string `json:"password" binding:"required"`
	Role      string `json:"role" binding:"required"`
	Phone     string `json:"phone"`
	PackageID string `json:"package_id"`
}

func (h *AuthHandler) Register(c *gin.Context) {
	var req registerRequest
	if !bindJSON(c, &req) {
		return
	}
	pkgID, ok := parseOptionalUUID(c, "package_id", req.PackageID)
	if !ok {
		return
	}

	res, err := h.auth.Register(c.Request.Context(), &service.RegisterCommand{
		Username:  req.Username,
		Email:     req.Email,
		Password:  req.Password,
		Role:      domain.Role(req.Role),
		Phone:     req.Phone,
		PackageID: pkgID,
	}, c.ClientIP())
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondCreated(c, AuthResponse{User: toUserResponse(res.User), Tokens: res.Tokens})
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
	OTP      string `json:"otp"`
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if !bindJSON(c, &req) {
		return
	}

	res, err := h.auth.Login(c.Request.Context(), &service.LoginCommand{
		Username: req.Username,
		Password: req.Password,
		OTP:      req.OTP,
	}, c.ClientIP())
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, AuthResponse{
		User:        toUserResponse(res.User),
		Tokens:      res.Tokens,
		PackageInfo: res.PackageInfo,
	})
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

func (h *AuthHandler) Refresh(c *gin.Context) {
	var req refreshRequest
	if !bindJSON(c, &req) {
		return
	}
	pair, err := h.auth.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, pair)
}

func (h *AuthHandler) Logout(c *gin.Context) {
	var req refreshRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := h.auth.Logout(c.Request.Context(), principal(c), req.RefreshToken); err != nil {
		respondServiceError(c, err)
		return
	}
	respondMessage(c, "logged out")
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password" binding:"required"`
	NewPassword     string `json:"new_password" binding:"required"`
}

func (h *AuthHandler) ChangePassword(c *gin.Context) {
	var req changePasswordRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := h.auth.ChangePassword(c.Request.Context(), principal(c), req.CurrentPassword, req.NewPassword); err != nil {
		respondServiceError(c, err)
		return
	}
	respondMessage(c, "password updated")
}

func (h *AuthHandler) BeginMFA(c *gin.Context) {
	enr, err := h.auth.BeginMFA(c.Request.Context(), principal(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, enr)
}

type confirmMFARequest struct {
	Code string `json:"code" binding:"required"`
}

func (h *AuthHandler) ConfirmMFA(c *gin.Context) {
	var req confirmMFARequest
	if !bindJSON(c, &req) {
		return
	}
	if err := h.auth.ConfirmMFA(c.Request.Context(), principal(c), req.Code); err != nil {
		respondServiceError(c, err)
		return
	}
	respondMessage(c, "two-factor authentication enabled")
}

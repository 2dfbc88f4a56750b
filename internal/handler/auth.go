package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Kirya343/WorkSwapCore-sub000/internal/config"
	"github.com/Kirya343/WorkSwapCore-sub000/internal/middleware"
	"github.com/Kirya343/WorkSwapCore-sub000/internal/model"
	"github.com/Kirya343/WorkSwapCore-sub000/internal/service"
	apperrors "github.com/Kirya343/WorkSwapCore-sub000/pkg/errors"
	"github.com/Kirya343/WorkSwapCore-sub000/pkg/response"
)

// RefreshTokenCookie 刷新令牌 Cookie 名
const RefreshTokenCookie = "refreshToken"

// LoginResponse 登录/刷新响应
type LoginResponse struct {
	User             *model.User `json:"user"`
	AccessToken      string      `json:"accessToken"`
	RefreshToken     string      `json:"refreshToken"`
	ExpiresAt        int64       `json:"expiresAt"`
	RefreshExpiresAt int64       `json:"refreshExpiresAt"`
}

// RefreshRequest 刷新请求，Cookie 缺失时从请求体读取
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// MeResponse 当前用户
type MeResponse struct {
	User        *model.User `json:"user"`
	Authorities []string    `json:"authorities"`
}

// AuthHandler 认证处理器
type AuthHandler struct {
	authService *service.AuthService
	cookie      config.CookieConfig
}

// NewAuthHandler 创建认证处理器
func NewAuthHandler(authService *service.AuthService, cookie config.CookieConfig) *AuthHandler {
	return &AuthHandler{authService: authService, cookie: cookie}
}

// Login 用户登录
// @Summary      用户登录
// @Description  校验邮箱密码，签发令牌并写入 HttpOnly Cookie
// @Tags         认证
// @Accept       json
// @Produce      json
// @Param        request body service.LoginRequest true "登录信息"
// @Success      200  {object}  response.Response{data=LoginResponse}
// @Failure      400  {object}  response.Response
// @Failure      401  {object}  response.Response
// @Failure      403  {object}  response.Response
// @Router       /auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req service.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithMsg(c, apperrors.CodeInvalidParams, err.Error())
		return
	}

	result, err := h.authService.Login(c.Request.Context(), &req)
	if err != nil {
		response.ErrorFromAppError(c, err)
		return
	}

	h.setCookie(c, middleware.AccessTokenCookie, result.Tokens.AccessToken, result.Tokens.ExpiresAt)
	h.setCookie(c, RefreshTokenCookie, result.Tokens.RefreshToken, result.Tokens.RefreshExpiresAt)
	response.Success(c, toLoginResponse(result))
}

// Refresh 刷新访问令牌
// @Summary      刷新令牌
// @Description  用刷新令牌换取新的访问令牌，刷新令牌不轮换
// @Tags         认证
// @Accept       json
// @Produce      json
// @Param        request body RefreshRequest false "Cookie 缺失时使用"
// @Success      200  {object}  response.Response{data=LoginResponse}
// @Failure      401  {object}  response.Response
// @Router       /auth/refresh [post]
func (h *AuthHandler) Refresh(c *gin.Context) {
	token, _ := c.Cookie(RefreshTokenCookie)
	if token == "" {
		var req RefreshRequest
		if err := c.ShouldBindJSON(&req); err == nil {
			token = req.RefreshToken
		}
	}
	if token == "" {
		response.Unauthorized(c)
		return
	}

	result, err := h.authService.Refresh(c.Request.Context(), token)
	if err != nil {
		response.ErrorFromAppError(c, err)
		return
	}

	h.setCookie(c, middleware.AccessTokenCookie, result.Tokens.AccessToken, result.Tokens.ExpiresAt)
	response.Success(c, toLoginResponse(result))
}

// Logout 用户登出
// @Summary      用户登出
// @Description  清除令牌 Cookie
// @Tags         认证
// @Produce      json
// @Success      200  {object}  response.Response
// @Router       /auth/logout [post]
func (h *AuthHandler) Logout(c *gin.Context) {
	c.SetSameSite(h.cookie.SameSiteMode())
	c.SetCookie(middleware.AccessTokenCookie, "", -1, "/", h.cookie.Domain, h.cookie.Secure, true)
	c.SetCookie(RefreshTokenCookie, "", -1, "/", h.cookie.Domain, h.cookie.Secure, true)
	response.Success(c, nil)
}

// Me 当前用户
// @Summary      当前用户
// @Description  根据访问令牌返回当前用户与权限
// @Tags         认证
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  response.Response{data=MeResponse}
// @Failure      401  {object}  response.Response
// @Router       /auth/me [get]
func (h *AuthHandler) Me(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Unauthorized(c)
		return
	}

	user, err := h.authService.Me(c.Request.Context(), claims)
	if err != nil {
		response.ErrorFromAppError(c, err)
		return
	}

	response.Success(c, &MeResponse{User: user, Authorities: claims.Authorities()})
}

// setCookie 写入 HttpOnly 令牌 Cookie，Max-Age 取令牌剩余有效期
func (h *AuthHandler) setCookie(c *gin.Context, name, value string, expiresAt int64) {
	maxAge := int(time.Until(time.Unix(expiresAt, 0)).Seconds())
	if maxAge <= 0 {
		return
	}
	c.SetSameSite(h.cookie.SameSiteMode())
	c.SetCookie(name, value, maxAge, "/", h.cookie.Domain, h.cookie.Secure, true)
}

func toLoginResponse(result *service.LoginResult) *LoginResponse {
	return &LoginResponse{
		User:             result.User,
		AccessToken:      result.Tokens.AccessToken,
		RefreshToken:     result.Tokens.RefreshToken,
		ExpiresAt:        result.Tokens.ExpiresAt,
		RefreshExpiresAt: result.Tokens.RefreshExpiresAt,
	}
}

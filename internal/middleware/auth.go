package middleware

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"

	apperrors "github.com/Kirya343/WorkSwapCore-sub000/pkg/errors"
	"github.com/Kirya343/WorkSwapCore-sub000/pkg/jwt"
	"github.com/Kirya343/WorkSwapCore-sub000/pkg/response"
)

// AccessTokenCookie 访问令牌 Cookie 名
const AccessTokenCookie = "accessToken"

const (
	keyUserID = "user_id"
	keyClaims = "claims"
)

// AccessValidator 校验访问令牌
type AccessValidator interface {
	ValidateAccess(token string) (*jwt.AccessClaims, error)
}

// JWTAuth JWT 认证中间件，令牌取自 Authorization 头或 accessToken Cookie
func JWTAuth(validator AccessValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := ExtractToken(c)
		if token == "" {
			response.Unauthorized(c)
			c.Abort()
			return
		}

		claims, err := validator.ValidateAccess(token)
		if err != nil {
			if errors.Is(err, jwt.ErrTokenExpired) {
				response.ErrorFromAppError(c, apperrors.ErrTokenExpired)
			} else {
				response.ErrorFromAppError(c, apperrors.ErrTokenInvalid)
			}
			c.Abort()
			return
		}

		c.Set(keyUserID, claims.UserID)
		c.Set(keyClaims, claims)
		c.Next()
	}
}

// ExtractToken 优先 Authorization: Bearer，其次 Cookie
func ExtractToken(c *gin.Context) string {
	if token := extractBearer(c.GetHeader("Authorization")); token != "" {
		return token
	}
	if token, err := c.Cookie(AccessTokenCookie); err == nil {
		return token
	}
	return ""
}

// extractBearer 从 Authorization header 提取 token
func extractBearer(authHeader string) string {
	if authHeader == "" {
		return ""
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return ""
	}

	return strings.TrimSpace(parts[1])
}

// GetUserID 从 context 获取 user_id
func GetUserID(c *gin.Context) int64 {
	userID, exists := c.Get(keyUserID)
	if !exists {
		return 0
	}
	return userID.(int64)
}

// GetClaims 从 context 获取访问令牌声明
func GetClaims(c *gin.Context) *jwt.AccessClaims {
	claims, exists := c.Get(keyClaims)
	if !exists {
		return nil
	}
	return claims.(*jwt.AccessClaims)
}

// RequireRole 要求具备指定角色，role 不带 ROLE_ 前缀
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := GetClaims(c)
		if claims == nil || !claims.HasRole(role) {
			response.ErrorFromAppError(c, apperrors.ErrForbidden)
			c.Abort()
			return
		}
		c.Next()
	}
}

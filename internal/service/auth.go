package service

import (
	"context"
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/Kirya343/WorkSwapCore-sub000/internal/model"
	"github.com/Kirya343/WorkSwapCore-sub000/internal/repository"
	apperrors "github.com/Kirya343/WorkSwapCore-sub000/pkg/errors"
	"github.com/Kirya343/WorkSwapCore-sub000/pkg/jwt"
)

// LoginRequest 登录请求
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// LoginResult 登录或刷新结果
type LoginResult struct {
	User   *model.User
	Tokens *jwt.TokenPair
}

// AuthService 认证服务
type AuthService struct {
	users      UserStore
	jwtService *jwt.Service
}

// NewAuthService 创建认证服务
func NewAuthService(users UserStore, jwtService *jwt.Service) *AuthService {
	return &AuthService{
		users:      users,
		jwtService: jwtService,
	}
}

// Login 用户登录
func (s *AuthService) Login(ctx context.Context, req *LoginRequest) (*LoginResult, error) {
	// 查询用户
	user, err := s.users.GetByEmail(ctx, strings.TrimSpace(req.Email))
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, apperrors.ErrInvalidCredentials
		}
		return nil, apperrors.ErrDBError.Wrap(err)
	}

	// 验证密码
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, apperrors.ErrInvalidCredentials
	}

	// 检查用户状态
	if !user.Enabled() {
		return nil, apperrors.ErrUserDisabled
	}

	tokens, err := s.jwtService.GenerateTokenPair(identityOf(user), user.Roles, user.Permissions)
	if err != nil {
		return nil, apperrors.ErrServerError.Wrap(err)
	}
	return &LoginResult{User: user, Tokens: tokens}, nil
}

// Refresh 用刷新令牌换取新的访问令牌，刷新令牌本身不轮换
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*LoginResult, error) {
	claims, err := s.jwtService.ValidateRefresh(refreshToken)
	if err != nil {
		return nil, tokenError(err)
	}

	user, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, apperrors.ErrTokenInvalid.Wrap(err)
		}
		return nil, apperrors.ErrDBError.Wrap(err)
	}
	if !user.Enabled() {
		return nil, apperrors.ErrUserDisabled
	}

	accessToken, expiresAt, err := s.jwtService.IssueAccess(identityOf(user), user.Roles, user.Permissions)
	if err != nil {
		return nil, apperrors.ErrServerError.Wrap(err)
	}
	return &LoginResult{
		User: user,
		Tokens: &jwt.TokenPair{
			AccessToken:      accessToken,
			RefreshToken:     refreshToken,
			ExpiresAt:        expiresAt.Unix(),
			RefreshExpiresAt: claims.ExpiresAt.Unix(),
		},
	}, nil
}

// Me 根据访问令牌声明获取当前用户
func (s *AuthService) Me(ctx context.Context, claims *jwt.AccessClaims) (*model.User, error) {
	user, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, apperrors.ErrUserNotFound.Wrap(err)
		}
		return nil, apperrors.ErrDBError.Wrap(err)
	}
	return user, nil
}

func identityOf(user *model.User) jwt.Identity {
	return jwt.Identity{UserID: user.ID, Key: user.Email}
}

// tokenError 将令牌错误转换为业务错误
func tokenError(err error) error {
	if errors.Is(err, jwt.ErrTokenExpired) {
		return apperrors.ErrTokenExpired
	}
	return apperrors.ErrTokenInvalid
}

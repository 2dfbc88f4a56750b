package jwt

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrTokenInvalid = errors.New("token is invalid")
	ErrTokenExpired = errors.New("token has expired")
)

// RolePrefix 角色声明前缀，用于区分角色和权限
const RolePrefix = "ROLE_"

// 默认有效期
const (
	DefaultAccessExpire  = 30 * time.Minute
	DefaultRefreshExpire = 30 * 24 * time.Hour
)

// TokenType Token 类型
type TokenType string

const (
	AccessToken  TokenType = "access"
	RefreshToken TokenType = "refresh"
)

// Identity 令牌主体
// Key 为稳定的登录标识（邮箱或 OAuth subject）
type Identity struct {
	UserID int64
	Key    string
}

// Claims 已验证的令牌声明，*AccessClaims 或 *RefreshClaims
type Claims interface {
	Type() TokenType
	Identity() Identity
}

// AccessClaims 访问令牌声明
type AccessClaims struct {
	Subject     string
	UserID      int64
	Roles       []string
	Permissions []string
	ID          string
	IssuedAt    time.Time
	ExpiresAt   time.Time
}

func (c *AccessClaims) Type() TokenType { return AccessToken }

func (c *AccessClaims) Identity() Identity { return Identity{UserID: c.UserID, Key: c.Subject} }

// Authorities 返回角色与权限的并集
func (c *AccessClaims) Authorities() []string {
	out := make([]string, 0, len(c.Roles)+len(c.Permissions))
	out = append(out, c.Roles...)
	return append(out, c.Permissions...)
}

// HasRole 判断是否拥有角色（不区分是否带前缀）
func (c *AccessClaims) HasRole(role string) bool {
	if !strings.HasPrefix(role, RolePrefix) {
		role = RolePrefix + role
	}
	for _, r := range c.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// RefreshClaims 刷新令牌声明
type RefreshClaims struct {
	Subject   string
	UserID    int64
	ID        string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

func (c *RefreshClaims) Type() TokenType { return RefreshToken }

func (c *RefreshClaims) Identity() Identity { return Identity{UserID: c.UserID, Key: c.Subject} }

// wireClaims JWT 载荷
type wireClaims struct {
	UserID      int64     `json:"uid"`
	Roles       []string  `json:"roles,omitempty"`
	Permissions []string  `json:"permissions,omitempty"`
	TokenType   TokenType `json:"typ"`
	jwt.RegisteredClaims
}

// TokenPair Token 对
type TokenPair struct {
	AccessToken      string `json:"access_token"`
	RefreshToken     string `json:"refresh_token"`
	ExpiresAt        int64  `json:"expires_at"`
	RefreshExpiresAt int64  `json:"refresh_expires_at"`
}

// Option Service 选项
type Option func(*Service)

// WithClock 指定时钟，测试中用于构造过期令牌
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithIssuer 指定 iss 声明
func WithIssuer(issuer string) Option {
	return func(s *Service) { s.issuer = issuer }
}

// Service JWT 服务
// 使用 RS256 签名，私钥签发，公钥验证
type Service struct {
	privateKey    *rsa.PrivateKey
	publicKey     *rsa.PublicKey
	accessExpire  time.Duration
	refreshExpire time.Duration
	issuer        string
	now           func() time.Time
}

// NewService 创建 JWT 服务
// publicKey 为空时使用私钥对应的公钥；privateKey 为空时只能验证
func NewService(privateKey *rsa.PrivateKey, publicKey *rsa.PublicKey, accessExpire, refreshExpire time.Duration, opts ...Option) (*Service, error) {
	if publicKey == nil {
		if privateKey == nil {
			return nil, errors.New("jwt: no key configured")
		}
		publicKey = &privateKey.PublicKey
	}
	if accessExpire <= 0 {
		accessExpire = DefaultAccessExpire
	}
	if refreshExpire <= 0 {
		refreshExpire = DefaultRefreshExpire
	}
	s := &Service{
		privateKey:    privateKey,
		publicKey:     publicKey,
		accessExpire:  accessExpire,
		refreshExpire: refreshExpire,
		issuer:        "workswap",
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// LoadKeys 从 PEM 文件加载密钥对
func LoadKeys(privatePath, publicPath string) (*rsa.PrivateKey, *rsa.PublicKey, error) {
	var (
		privateKey *rsa.PrivateKey
		publicKey  *rsa.PublicKey
	)
	if privatePath != "" {
		data, err := os.ReadFile(privatePath)
		if err != nil {
			return nil, nil, fmt.Errorf("read private key: %w", err)
		}
		privateKey, err = jwt.ParseRSAPrivateKeyFromPEM(data)
		if err != nil {
			return nil, nil, fmt.Errorf("parse private key: %w", err)
		}
	}
	if publicPath != "" {
		data, err := os.ReadFile(publicPath)
		if err != nil {
			return nil, nil, fmt.Errorf("read public key: %w", err)
		}
		publicKey, err = jwt.ParseRSAPublicKeyFromPEM(data)
		if err != nil {
			return nil, nil, fmt.Errorf("parse public key: %w", err)
		}
	}
	return privateKey, publicKey, nil
}

// IssueAccess 签发访问令牌
// 角色统一加 ROLE_ 前缀，权限保持原样
func (s *Service) IssueAccess(identity Identity, roles, permissions []string) (string, time.Time, error) {
	prefixed := make([]string, 0, len(roles))
	for _, r := range roles {
		if !strings.HasPrefix(r, RolePrefix) {
			r = RolePrefix + r
		}
		prefixed = append(prefixed, r)
	}
	expiresAt := s.now().Add(s.accessExpire)
	token, err := s.sign(&wireClaims{
		UserID:      identity.UserID,
		Roles:       prefixed,
		Permissions: permissions,
		TokenType:   AccessToken,
	}, identity, expiresAt)
	return token, expiresAt, err
}

// IssueRefresh 签发刷新令牌
func (s *Service) IssueRefresh(identity Identity) (string, time.Time, error) {
	expiresAt := s.now().Add(s.refreshExpire)
	token, err := s.sign(&wireClaims{
		UserID:    identity.UserID,
		TokenType: RefreshToken,
	}, identity, expiresAt)
	return token, expiresAt, err
}

// GenerateTokenPair 生成 Token 对
func (s *Service) GenerateTokenPair(identity Identity, roles, permissions []string) (*TokenPair, error) {
	accessToken, accessExpiresAt, err := s.IssueAccess(identity, roles, permissions)
	if err != nil {
		return nil, err
	}

	refreshToken, refreshExpiresAt, err := s.IssueRefresh(identity)
	if err != nil {
		return nil, err
	}

	return &TokenPair{
		AccessToken:      accessToken,
		RefreshToken:     refreshToken,
		ExpiresAt:        accessExpiresAt.Unix(),
		RefreshExpiresAt: refreshExpiresAt.Unix(),
	}, nil
}

func (s *Service) sign(claims *wireClaims, identity Identity, expiresAt time.Time) (string, error) {
	if s.privateKey == nil {
		return "", errors.New("jwt: signing key not configured")
	}
	claims.RegisteredClaims = jwt.RegisteredClaims{
		Subject:   identity.Key,
		ID:        uuid.NewString(),
		Issuer:    s.issuer,
		IssuedAt:  jwt.NewNumericDate(s.now()),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	return token.SignedString(s.privateKey)
}

// Validate 验证令牌并返回对应类型的声明
// 签名先于任何声明被校验；失败只返回 ErrTokenInvalid 或 ErrTokenExpired
func (s *Service) Validate(tokenString string) (claims Claims, err error) {
	defer func() {
		if r := recover(); r != nil {
			claims, err = nil, ErrTokenInvalid
		}
	}()

	wc := &wireClaims{}
	token, err := jwt.ParseWithClaims(tokenString, wc, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, ErrTokenInvalid
		}
		return s.publicKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}
	if !token.Valid || wc.Subject == "" {
		return nil, ErrTokenInvalid
	}

	var issuedAt time.Time
	if wc.IssuedAt != nil {
		issuedAt = wc.IssuedAt.Time
	}

	switch wc.TokenType {
	case AccessToken:
		return &AccessClaims{
			Subject:     wc.Subject,
			UserID:      wc.UserID,
			Roles:       wc.Roles,
			Permissions: wc.Permissions,
			ID:          wc.ID,
			IssuedAt:    issuedAt,
			ExpiresAt:   wc.ExpiresAt.Time,
		}, nil
	case RefreshToken:
		return &RefreshClaims{
			Subject:   wc.Subject,
			UserID:    wc.UserID,
			ID:        wc.ID,
			IssuedAt:  issuedAt,
			ExpiresAt: wc.ExpiresAt.Time,
		}, nil
	default:
		return nil, ErrTokenInvalid
	}
}

// ValidateAccess 验证 Access Token
func (s *Service) ValidateAccess(tokenString string) (*AccessClaims, error) {
	claims, err := s.Validate(tokenString)
	if err != nil {
		return nil, err
	}
	access, ok := claims.(*AccessClaims)
	if !ok {
		return nil, ErrTokenInvalid
	}
	return access, nil
}

// ValidateRefresh 验证 Refresh Token
func (s *Service) ValidateRefresh(tokenString string) (*RefreshClaims, error) {
	claims, err := s.Validate(tokenString)
	if err != nil {
		return nil, err
	}
	refresh, ok := claims.(*RefreshClaims)
	if !ok {
		return nil, ErrTokenInvalid
	}
	return refresh, nil
}

// AuthoritiesOf 返回访问令牌携带的角色和权限，令牌无效时返回空集合
func (s *Service) AuthoritiesOf(tokenString string) []string {
	claims, err := s.ValidateAccess(tokenString)
	if err != nil {
		return []string{}
	}
	return claims.Authorities()
}

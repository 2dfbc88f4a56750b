package errors

import (
	"errors"
	"fmt"
)

// AppError 应用错误类型
// 用于统一管理业务错误，包含错误码和错误消息
type AppError struct {
	Code    int    // 错误码
	Message string // 用户可见的错误消息
	Err     error  // 原始错误（可选，用于调试）
}

// Error 实现 error 接口
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%d] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

// Unwrap 支持 errors.Unwrap
func (e *AppError) Unwrap() error {
	return e.Err
}

// NewError 创建新错误
func NewError(code int, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap 包装原始错误
func (e *AppError) Wrap(err error) *AppError {
	return &AppError{
		Code:    e.Code,
		Message: e.Message,
		Err:     err,
	}
}

// Is 判断是否为指定错误
func Is(err error, target *AppError) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == target.Code
	}
	return false
}

// GetCode 获取错误码，如果不是 AppError 返回默认错误码
func GetCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeServerError
}

// GetMessage 获取错误消息
func GetMessage(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return "internal server error"
}

// ============== 错误码定义 ==============

const (
	CodeSuccess = 0

	// 认证相关 10000-10999
	CodeInvalidCredentials  = 10002
	CodeTokenInvalid        = 10003
	CodeTokenExpired        = 10004
	CodeUserDisabled        = 10005
	CodeDuplicateConnection = 10006
	CodeUnauthenticated     = 10007
	CodeForbidden           = 10008

	// 用户相关 11000-11999
	CodeUserNotFound  = 11001
	CodeInvalidParams = 11002

	// 聊天相关 13000-13999
	CodeChatNotFound        = 13001
	CodeListingNotFound     = 13002
	CodeInvalidParticipants = 13003
	CodeNotParticipant      = 13004
	CodeInvalidMessage      = 13005
	CodeCannotChatWithSelf  = 13006
	CodeUnknownDestination  = 13007

	// 系统错误 50000-50999
	CodeServerError   = 50001
	CodeDBError       = 50002
	CodeTooManyReqest = 50003
)

// ============== 预定义错误 ==============

// 认证相关
var (
	ErrInvalidCredentials  = NewError(CodeInvalidCredentials, "invalid email or password")
	ErrTokenInvalid        = NewError(CodeTokenInvalid, "token is invalid")
	ErrTokenExpired        = NewError(CodeTokenExpired, "token has expired")
	ErrUserDisabled        = NewError(CodeUserDisabled, "user is disabled")
	ErrDuplicateConnection = NewError(CodeDuplicateConnection, "already connected elsewhere")
	ErrUnauthenticated     = NewError(CodeUnauthenticated, "authentication required")
	ErrForbidden           = NewError(CodeForbidden, "access denied")
)

// 用户相关
var (
	ErrUserNotFound  = NewError(CodeUserNotFound, "user not found")
	ErrInvalidParams = NewError(CodeInvalidParams, "invalid parameters")
)

// 聊天相关
var (
	ErrChatNotFound        = NewError(CodeChatNotFound, "chat not found")
	ErrListingNotFound     = NewError(CodeListingNotFound, "listing not found")
	ErrInvalidParticipants = NewError(CodeInvalidParticipants, "a chat requires exactly two distinct participants")
	ErrNotParticipant      = NewError(CodeNotParticipant, "user is not a participant of this chat")
	ErrInvalidMessage      = NewError(CodeInvalidMessage, "message text is empty or too long")
	ErrCannotChatWithSelf  = NewError(CodeCannotChatWithSelf, "cannot start a chat with yourself")
	ErrUnknownDestination  = NewError(CodeUnknownDestination, "unknown destination")
)

// 系统相关
var (
	ErrServerError    = NewError(CodeServerError, "internal server error")
	ErrDBError        = NewError(CodeDBError, "database error")
	ErrTooManyRequest = NewError(CodeTooManyReqest, "too many requests, try again later")
)

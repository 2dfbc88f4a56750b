package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/Kirya343/WorkSwapCore-sub000/pkg/errors"
)

// Response 统一响应结构
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
}

// Success 成功响应
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    apperrors.CodeSuccess,
		Message: "success",
		Data:    data,
	})
}

// ErrorWithMsg 自定义错误消息
func ErrorWithMsg(c *gin.Context, code int, message string) {
	c.JSON(StatusOf(code), Response{
		Code:    code,
		Message: message,
		Data:    nil,
	})
}

// ErrorFromAppError 从 AppError 生成错误响应
func ErrorFromAppError(c *gin.Context, err error) {
	code := apperrors.GetCode(err)
	if code >= apperrors.CodeServerError {
		_ = c.Error(err)
	}
	ErrorWithMsg(c, code, apperrors.GetMessage(err))
}

// Unauthorized 未认证
func Unauthorized(c *gin.Context) {
	ErrorWithMsg(c, apperrors.CodeUnauthenticated, apperrors.ErrUnauthenticated.Message)
}

// StatusOf 错误码对应的 HTTP 状态
func StatusOf(code int) int {
	switch code {
	case apperrors.CodeSuccess:
		return http.StatusOK
	case apperrors.CodeInvalidCredentials, apperrors.CodeTokenInvalid, apperrors.CodeTokenExpired, apperrors.CodeUnauthenticated:
		return http.StatusUnauthorized
	case apperrors.CodeUserDisabled, apperrors.CodeForbidden, apperrors.CodeNotParticipant:
		return http.StatusForbidden
	case apperrors.CodeUserNotFound, apperrors.CodeChatNotFound, apperrors.CodeListingNotFound:
		return http.StatusNotFound
	case apperrors.CodeTooManyReqest:
		return http.StatusTooManyRequests
	}
	if code >= apperrors.CodeServerError {
		return http.StatusInternalServerError
	}
	return http.StatusBadRequest
}

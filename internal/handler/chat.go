package handler

import (
	"log/slog"

	"github.com/gin-gonic/gin"

	"github.com/Kirya343/WorkSwapCore-sub000/internal/middleware"
	"github.com/Kirya343/WorkSwapCore-sub000/internal/service"
	apperrors "github.com/Kirya343/WorkSwapCore-sub000/pkg/errors"
	"github.com/Kirya343/WorkSwapCore-sub000/pkg/response"
	"github.com/Kirya343/WorkSwapCore-sub000/pkg/snowflake"
)

// OnlineResponse 在线人数
type OnlineResponse struct {
	Count int64 `json:"count"`
}

// ChatHandler 聊天的 HTTP 入口，聊天本身走 STOMP
type ChatHandler struct {
	chatService *service.ChatService
	logger      *slog.Logger
}

// NewChatHandler 创建聊天处理器
func NewChatHandler(chatService *service.ChatService) *ChatHandler {
	return &ChatHandler{chatService: chatService, logger: slog.Default()}
}

// Online 当前在线连接数
// @Summary      在线人数
// @Tags         聊天
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  response.Response{data=OnlineResponse}
// @Failure      401  {object}  response.Response
// @Router       /chats/online [get]
func (h *ChatHandler) Online(c *gin.Context) {
	response.Success(c, &OnlineResponse{Count: h.chatService.OnlineCount()})
}

// DeleteChat 删除会话及其全部消息
// @Summary      删除会话
// @Description  管理操作，需要 ADMIN 角色
// @Tags         聊天
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "会话 ID"
// @Success      200  {object}  response.Response
// @Failure      400  {object}  response.Response
// @Failure      403  {object}  response.Response
// @Failure      404  {object}  response.Response
// @Router       /admin/chats/{id} [delete]
func (h *ChatHandler) DeleteChat(c *gin.Context) {
	id, err := snowflake.ParseString(c.Param("id"))
	if err != nil || id <= 0 {
		response.ErrorWithMsg(c, apperrors.CodeInvalidParams, "invalid chat id")
		return
	}

	if err := h.chatService.DeleteChat(c.Request.Context(), id.Int64()); err != nil {
		response.ErrorFromAppError(c, err)
		return
	}

	h.logger.Info("Chat deleted by admin", "chat_id", id.Int64(), "admin_id", middleware.GetUserID(c))
	response.Success(c, nil)
}

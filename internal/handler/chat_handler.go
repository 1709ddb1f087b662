// Package handler 提供 HTTP 请求处理器
package handler

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"ai-chat-server/internal/service"
	"ai-chat-server/pkg/response"
)

// ChatHandler 对话请求处理器
type ChatHandler struct {
	chatService *service.ChatService
}

// NewChatHandler 创建 ChatHandler 实例
func NewChatHandler(chatService *service.ChatService) *ChatHandler {
	return &ChatHandler{
		chatService: chatService,
	}
}

// ChatRequest 非流式对话请求
type ChatRequest struct {
	Content   string `json:"content" binding:"required"` // 用户输入
	SessionID string `json:"session_id"`                 // 会话ID，可选
}

// ChatResponse 非流式对话响应
type ChatResponse struct {
	Reply     string `json:"reply"`      // 回复全文
	SessionID string `json:"session_id"` // 实际使用的会话ID
}

// Chat 非流式对话
// @Summary 发送消息并等待完整回复
// @Description 完成一轮对话的全部副作用后一次性返回回复
// @Tags 对话
// @Accept json
// @Produce json
// @Param body body ChatRequest true "消息内容"
// @Success 200 {object} response.Response{data=ChatResponse}
// @Router /api/chat [post]
func (h *ChatHandler) Chat(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "请求参数错误")
		return
	}

	reply, sessionID, err := h.chatService.ConverseOnce(c.Request.Context(), req.SessionID, req.Content, userIDFromContext(c))
	if err != nil {
		log.Printf("[ERROR] chat failed: %v", err)
		response.InternalError(c, "对话处理失败")
		return
	}

	response.Success(c, ChatResponse{
		Reply:     reply,
		SessionID: sessionID,
	})
}

// ChatStream 流式对话（SSE）
// @Summary 发送消息并以 SSE 流式接收回复
// @Description 每个事件为一行 data: JSON 负载，流末尾以 event: done 收尾
// @Tags 对话
// @Produce text/event-stream
// @Param q query string true "用户输入"
// @Param session_id query string false "会话ID"
// @Router /api/chat/stream [get]
func (h *ChatHandler) ChatStream(c *gin.Context) {
	query := c.Query("q")
	sessionID := c.Query("session_id")

	w := c.Writer
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // 禁用 nginx 缓冲，保证增量即时送达
	w.WriteHeader(http.StatusOK)

	// 空输入：直接收尾，不产生任何副作用
	if query == "" {
		writeSSEDone(w)
		return
	}

	ctx := c.Request.Context()
	events := h.chatService.ConverseStream(ctx, sessionID, query, userIDFromContext(c))

	for ev := range events {
		if !writeSSEEvent(w, ev) {
			// 序列化或写失败，客户端大概率已断开；
			// 继续排空通道让服务侧流程跑完
			for range events {
			}
			return
		}
	}

	writeSSEDone(w)
}

// writeSSEEvent 写出一个 data 事件并刷出，返回是否成功
func writeSSEEvent(w gin.ResponseWriter, ev service.StreamEvent) bool {
	payload, err := json.Marshal(ev)
	if err != nil {
		log.Printf("[ERROR] failed to marshal stream event: %v", err)
		return false
	}
	if _, err := w.Write([]byte("data: " + string(payload) + "\n\n")); err != nil {
		return false
	}
	w.Flush()
	return true
}

// writeSSEDone 写出流结束标记
func writeSSEDone(w gin.ResponseWriter) {
	if _, err := w.Write([]byte("event: done\n\n")); err != nil {
		return
	}
	w.Flush()
}

// userIDFromContext 从上下文取可选的用户ID
// 由认证中间件在携带有效令牌时设置，匿名请求返回 nil
func userIDFromContext(c *gin.Context) *string {
	v, exists := c.Get("user_id")
	if !exists {
		return nil
	}
	id, ok := v.(string)
	if !ok || id == "" {
		return nil
	}
	return &id
}

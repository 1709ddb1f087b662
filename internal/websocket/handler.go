// Package websocket 提供 WebSocket 通信功能
package websocket

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"ai-chat-server/internal/service"
)

// WebSocket 升级器配置
var upgrader = websocket.Upgrader{
	// 读缓冲区大小
	ReadBufferSize: 1024,
	// 写缓冲区大小
	WriteBufferSize: 1024,
	// 检查来源（生产环境应该验证）
	CheckOrigin: func(r *http.Request) bool {
		// TODO: 生产环境需要检查 Origin
		return true
	},
}

// Handler 处理对话 WebSocket 连接
// 同一连接上按回合收发：客户端发一条请求，服务端推送一串事件，
// 以 done 事件收尾，然后等待下一轮
type Handler struct {
	chatService *service.ChatService
}

// NewHandler 创建 WebSocket Handler
func NewHandler(chatService *service.ChatService) *Handler {
	return &Handler{
		chatService: chatService,
	}
}

// HandleChatWS 处理对话 WebSocket 连接
// 路由: GET /api/chat/ws
func (h *Handler) HandleChatWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("[ERROR] websocket upgrade failed: %v", err)
		return
	}

	client := newClient(conn)
	defer client.Close()

	var userID *string
	if v, exists := c.Get("user_id"); exists {
		if id, ok := v.(string); ok && id != "" {
			userID = &id
		}
	}

	// 心跳 goroutine，连接关闭时随 done 退出
	done := make(chan struct{})
	defer close(done)
	go h.pingLoop(client, done)

	for {
		req, err := client.ReadRequest()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[WARN] websocket read failed: %v", err)
			}
			return
		}

		// 空输入：直接收尾，不产生任何副作用
		if req.Content == "" {
			if err := client.WriteEvent(doneEvent()); err != nil {
				return
			}
			continue
		}

		if !h.serveTurn(c.Request.Context(), client, req, userID) {
			return
		}
	}
}

// serveTurn 执行一轮对话并把事件推送给客户端
// 返回连接是否仍可继续使用
func (h *Handler) serveTurn(parent context.Context, client *Client, req *ChatRequest, userID *string) bool {
	// 写失败时取消本轮，让编排层按客户端断开处理
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	events := h.chatService.ConverseStream(ctx, req.SessionID, req.Content, userID)
	for ev := range events {
		if err := client.WriteEvent(fromStreamEvent(ev)); err != nil {
			log.Printf("[WARN] websocket write failed: %v", err)
			cancel()
			for range events {
			}
			return false
		}
	}

	return client.WriteEvent(doneEvent()) == nil
}

// pingLoop 定期发送心跳，保持连接存活
func (h *Handler) pingLoop(client *Client, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := client.Ping(); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

// Package websocket 提供 WebSocket 通信功能
package websocket

import "ai-chat-server/internal/service"

// 事件类型
const (
	EventTypeSessionID   = "session_id"   // 新建会话时的首个事件
	EventTypeDelta       = "delta"        // 一个文本增量
	EventTypeTitleUpdate = "title_update" // 首轮对话后的标题更新
	EventTypeError       = "error"        // 编排层错误
	EventTypeDone        = "done"         // 一轮回复结束
)

// ChatRequest 客户端发来的一轮对话请求
// 字段与 POST /api/chat 的请求体一致
type ChatRequest struct {
	Content   string `json:"content"`    // 用户输入
	SessionID string `json:"session_id"` // 会话ID，可选
}

// ChatEvent 服务端推送的一个事件
// 与 SSE 的 data 负载字段一致，额外带 type 便于客户端分发
type ChatEvent struct {
	Type        string `json:"type"`
	SessionID   string `json:"session_id,omitempty"`
	Delta       string `json:"delta,omitempty"`
	TitleUpdate string `json:"title_update,omitempty"`
	Error       string `json:"error,omitempty"`
}

// fromStreamEvent 把编排层事件转换为 WebSocket 事件
func fromStreamEvent(ev service.StreamEvent) ChatEvent {
	out := ChatEvent{
		SessionID:   ev.SessionID,
		Delta:       ev.Delta,
		TitleUpdate: ev.TitleUpdate,
		Error:       ev.Error,
	}
	switch {
	case ev.Error != "":
		out.Type = EventTypeError
	case ev.SessionID != "":
		out.Type = EventTypeSessionID
	case ev.TitleUpdate != "":
		out.Type = EventTypeTitleUpdate
	default:
		out.Type = EventTypeDelta
	}
	return out
}

// doneEvent 一轮回复的收尾事件
func doneEvent() ChatEvent {
	return ChatEvent{Type: EventTypeDone}
}

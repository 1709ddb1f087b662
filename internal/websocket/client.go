// Package websocket 提供 WebSocket 通信功能
package websocket

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// 连接配置常量
const (
	// 写超时时间
	writeWait = 10 * time.Second

	// 等待 Pong 响应的超时时间
	pongWait = 60 * time.Second

	// 发送 Ping 的间隔（必须小于 pongWait）
	pingPeriod = (pongWait * 9) / 10

	// 消息最大大小（64KB，一轮用户输入足够）
	maxMessageSize = 64 * 1024
)

// Client 表示一个 WebSocket 客户端连接
// 写操作由互斥锁保护：事件推送与心跳 Ping 来自不同的 goroutine
type Client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

// newClient 创建客户端并设置读取参数
func newClient(conn *websocket.Conn) *Client {
	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	// 每次收到 Pong，重置读取超时
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	return &Client{conn: conn}
}

// ReadRequest 读取客户端的下一轮对话请求
// 阻塞直到收到消息、连接关闭或读超时
func (c *Client) ReadRequest() (*ChatRequest, error) {
	var req ChatRequest
	if err := c.conn.ReadJSON(&req); err != nil {
		return nil, err
	}
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	return &req, nil
}

// WriteEvent 推送一个事件
func (c *Client) WriteEvent(ev ChatEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(ev)
}

// Ping 发送心跳
func (c *Client) Ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.PingMessage, nil)
}

// Close 关闭连接
func (c *Client) Close() error {
	return c.conn.Close()
}

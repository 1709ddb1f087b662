// Package model 定义了与数据库表对应的数据结构
package model

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// MessageRole 消息角色常量
const (
	MessageRoleUser      = "user"      // 用户消息
	MessageRoleAssistant = "assistant" // AI 助手响应
)

// JSONMap 消息的结构化元数据
// 以 JSON 形式存储在数据库中，内容是不透明的键值对
type JSONMap map[string]interface{}

// Value 实现 driver.Valuer，写库时序列化为 JSON
func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

// Scan 实现 sql.Scanner，读库时从 JSON 反序列化
func (m *JSONMap) Scan(value interface{}) error {
	if value == nil {
		*m = nil
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return errors.New("unsupported type for JSONMap")
	}
	if len(data) == 0 {
		*m = nil
		return nil
	}
	return json.Unmarshal(data, m)
}

// ChatMessage 消息模型
// 对应数据库表 chat_messages
// 存储会话中的每一条消息，创建后不可变
type ChatMessage struct {
	// ID 消息唯一标识，UUID 字符串
	ID string `gorm:"type:char(36);primaryKey" json:"id"`

	// SessionID 所属会话ID，外键关联 chat_sessions.id
	SessionID string `gorm:"type:char(36);not null;index:ix_messages_session_created,priority:1" json:"session_id"`

	// UserID 发送者用户ID（可选）
	UserID *string `gorm:"size:64" json:"user_id,omitempty"`

	// Role 消息角色
	// user: 用户发送的消息
	// assistant: AI 助手的响应
	Role string `gorm:"size:20;not null" json:"role"`

	// Content 消息内容
	// 使用 TEXT 类型存储，可以存储较长的内容
	Content string `gorm:"type:text;not null" json:"content"`

	// Metadata 结构化元数据（可选）
	// 例如用户消息上的意图分类结果
	Metadata JSONMap `gorm:"type:json" json:"metadata,omitempty"`

	// CreatedAt 消息创建时间
	// 会话内消息按该字段排序
	CreatedAt time.Time `gorm:"autoCreateTime;index:ix_messages_session_created,priority:2" json:"created_at"`

	// Session 所属会话（多对一关系）
	Session *ChatSession `gorm:"foreignKey:SessionID" json:"session,omitempty"`
}

// TableName 指定表名
func (ChatMessage) TableName() string {
	return "chat_messages"
}

// Package model 定义了与数据库表对应的数据结构
package model

import (
	"time"
)

// DefaultSessionTitle 新会话的默认标题
// 首轮对话完成后会被自动生成的摘要替换
const DefaultSessionTitle = "新对话"

// ChatSession 会话模型
// 对应数据库表 chat_sessions
// 表示用户与 AI 的一次对话会话（聊天窗口）
type ChatSession struct {
	// ID 会话唯一标识，UUID 字符串
	// 使用文本主键而非自增，便于跨数据库迁移
	ID string `gorm:"type:char(36);primaryKey" json:"id"`

	// UserID 所属用户ID（可选）
	// 当前认证为占位实现，未登录的游客该字段为空
	UserID *string `gorm:"size:64;index:ix_sessions_user_created,priority:1" json:"user_id,omitempty"`

	// Title 会话标题
	// 创建时为默认占位标题，首轮对话后自动摘要，用户也可手动修改
	Title string `gorm:"size:255;not null" json:"title"`

	// TitleFinalized 标题是否已定稿
	// 自动摘要通过条件更新（WHERE title_finalized = 0）设置该标志，
	// 避免并发请求同时触发"首轮对话"时重复改写标题；
	// 用户手动改标题也会置位，此后自动摘要不再生效
	TitleFinalized bool `gorm:"default:false" json:"title_finalized"`

	// CreatedAt 创建时间
	CreatedAt time.Time `gorm:"autoCreateTime;index:ix_sessions_user_created,priority:2" json:"created_at"`

	// Messages 会话中的所有消息（一对多关系）
	Messages []ChatMessage `gorm:"foreignKey:SessionID" json:"messages,omitempty"`
}

// TableName 指定表名
func (ChatSession) TableName() string {
	return "chat_sessions"
}

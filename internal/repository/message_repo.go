// Package repository 提供数据访问层的实现
package repository

import (
	"context"

	"gorm.io/gorm"

	"ai-chat-server/internal/model"
)

// MessageRepository 消息数据访问层
// 负责消息相关的所有数据库操作
// 消息创建后不可变，没有更新操作
type MessageRepository struct {
	db *gorm.DB
}

// NewMessageRepository 创建 MessageRepository 实例
func NewMessageRepository(db *gorm.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// Create 创建新消息
// 参数:
//   - ctx: 上下文
//   - message: 消息对象，ID 需要调用方预先填充
//
// 返回:
//   - error: 数据库错误
func (r *MessageRepository) Create(ctx context.Context, message *model.ChatMessage) error {
	return r.db.WithContext(ctx).Create(message).Error
}

// GetBySessionID 获取会话的所有消息
// 按创建时间正序排列（最早的在前）
// 参数:
//   - ctx: 上下文
//   - sessionID: 会话ID
//   - limit: 返回的最大数量
//
// 返回:
//   - []model.ChatMessage: 消息列表
//   - error: 数据库错误
func (r *MessageRepository) GetBySessionID(ctx context.Context, sessionID string, limit int) ([]model.ChatMessage, error) {
	var messages []model.ChatMessage
	err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at ASC"). // 按时间正序，方便展示对话
		Limit(limit).
		Find(&messages).Error
	return messages, err
}

// CountBySessionID 统计会话的消息数量
// 参数:
//   - ctx: 上下文
//   - sessionID: 会话ID
//
// 返回:
//   - int64: 消息数量
//   - error: 数据库错误
func (r *MessageRepository) CountBySessionID(ctx context.Context, sessionID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.ChatMessage{}).Where("session_id = ?", sessionID).Count(&count).Error
	return count, err
}

// DeleteBySessionID 删除会话的所有消息
// 删除会话时级联调用
// 参数:
//   - ctx: 上下文
//   - sessionID: 会话ID
//
// 返回:
//   - int64: 删除的消息数量
//   - error: 数据库错误
func (r *MessageRepository) DeleteBySessionID(ctx context.Context, sessionID string) (int64, error) {
	result := r.db.WithContext(ctx).Where("session_id = ?", sessionID).Delete(&model.ChatMessage{})
	return result.RowsAffected, result.Error
}

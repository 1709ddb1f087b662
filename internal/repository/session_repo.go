// Package repository 提供数据访问层的实现
package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"ai-chat-server/internal/model"
)

// SessionRepository 会话数据访问层
// 负责会话相关的所有数据库操作
type SessionRepository struct {
	db *gorm.DB
}

// NewSessionRepository 创建 SessionRepository 实例
func NewSessionRepository(db *gorm.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// Create 创建新会话
// 参数:
//   - ctx: 上下文
//   - session: 会话对象，ID 需要调用方预先填充
//
// 返回:
//   - error: 数据库错误
func (r *SessionRepository) Create(ctx context.Context, session *model.ChatSession) error {
	return r.db.WithContext(ctx).Create(session).Error
}

// GetByID 根据 ID 获取会话
// 参数:
//   - ctx: 上下文
//   - id: 会话ID
//
// 返回:
//   - *model.ChatSession: 会话对象，未找到返回 nil
//   - error: 数据库错误
func (r *SessionRepository) GetByID(ctx context.Context, id string) (*model.ChatSession, error) {
	var session model.ChatSession
	err := r.db.WithContext(ctx).First(&session, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &session, nil
}

// List 获取会话列表
// 按创建时间倒序排列（最新的在前）
// 参数:
//   - ctx: 上下文
//   - userID: 用户ID，为空时返回全部会话
//   - limit: 返回的最大数量
//
// 返回:
//   - []model.ChatSession: 会话列表
//   - error: 数据库错误
func (r *SessionRepository) List(ctx context.Context, userID string, limit int) ([]model.ChatSession, error) {
	var sessions []model.ChatSession
	query := r.db.WithContext(ctx).Model(&model.ChatSession{})
	if userID != "" {
		query = query.Where("user_id = ?", userID)
	}
	err := query.
		Order("created_at DESC").
		Limit(limit).
		Find(&sessions).Error
	return sessions, err
}

// UpdateTitle 更新会话标题（用户手动修改）
// 同时置位 title_finalized，此后首轮自动摘要不再改写标题
// 参数:
//   - ctx: 上下文
//   - id: 会话ID
//   - title: 新标题
//
// 返回:
//   - bool: 会话是否存在
//   - error: 数据库错误
func (r *SessionRepository) UpdateTitle(ctx context.Context, id, title string) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&model.ChatSession{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"title":           title,
			"title_finalized": true,
		})
	return result.RowsAffected > 0, result.Error
}

// FinalizeTitle 首轮对话后自动定稿标题
// 条件更新：仅当标题尚未定稿时生效，RowsAffected 表明是否抢到定稿权，
// 并发的两个请求中只有一个会成功
// 参数:
//   - ctx: 上下文
//   - id: 会话ID
//   - title: 自动摘要生成的标题
//
// 返回:
//   - bool: 是否由本次调用完成定稿
//   - error: 数据库错误
func (r *SessionRepository) FinalizeTitle(ctx context.Context, id, title string) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&model.ChatSession{}).
		Where("id = ? AND title_finalized = ?", id, false).
		Updates(map[string]interface{}{
			"title":           title,
			"title_finalized": true,
		})
	return result.RowsAffected > 0, result.Error
}

// Delete 删除会话
// 注意: 消息由调用方（service 层）先行删除
// 参数:
//   - ctx: 上下文
//   - id: 会话ID
//
// 返回:
//   - bool: 会话是否存在
//   - error: 数据库错误
func (r *SessionRepository) Delete(ctx context.Context, id string) (bool, error) {
	result := r.db.WithContext(ctx).Delete(&model.ChatSession{}, "id = ?", id)
	return result.RowsAffected > 0, result.Error
}

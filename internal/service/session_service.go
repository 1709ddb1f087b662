// Package service 提供业务逻辑层的实现
package service

import (
	"context"
	"errors"
	"log"

	"github.com/google/uuid"

	"ai-chat-server/internal/model"
)

// 业务错误定义
var (
	ErrSessionNotFound = errors.New("会话不存在")
)

// SessionStore 会话存储接口
// 由 repository.SessionRepository 实现
type SessionStore interface {
	Create(ctx context.Context, session *model.ChatSession) error
	GetByID(ctx context.Context, id string) (*model.ChatSession, error)
	List(ctx context.Context, userID string, limit int) ([]model.ChatSession, error)
	UpdateTitle(ctx context.Context, id, title string) (bool, error)
	FinalizeTitle(ctx context.Context, id, title string) (bool, error)
	Delete(ctx context.Context, id string) (bool, error)
}

// MessageStore 消息存储接口
// 由 repository.MessageRepository 实现
type MessageStore interface {
	Create(ctx context.Context, message *model.ChatMessage) error
	GetBySessionID(ctx context.Context, sessionID string, limit int) ([]model.ChatMessage, error)
	CountBySessionID(ctx context.Context, sessionID string) (int64, error)
	DeleteBySessionID(ctx context.Context, sessionID string) (int64, error)
}

// SessionCache 会话缓存接口
// 由 cache.RedisCache 实现，未启用 Redis 时传 nil
type SessionCache interface {
	CacheSession(ctx context.Context, session *model.ChatSession) error
	GetSession(ctx context.Context, id string) (*model.ChatSession, error)
	InvalidateSession(ctx context.Context, id string) error
}

// SessionService 会话管理服务
// 提供会话的增删查改与历史消息查询，缓存可选
type SessionService struct {
	sessions SessionStore
	messages MessageStore
	cache    SessionCache // 可为 nil
}

// NewSessionService 创建 SessionService 实例
func NewSessionService(sessions SessionStore, messages MessageStore, cache SessionCache) *SessionService {
	return &SessionService{
		sessions: sessions,
		messages: messages,
		cache:    cache,
	}
}

// CreateSession 创建新会话
// 参数:
//   - ctx: 上下文
//   - title: 初始标题，为空时使用默认标题
//   - userID: 用户ID，可为 nil
//
// 返回:
//   - *model.ChatSession: 创建的会话
//   - error: 数据库错误
func (s *SessionService) CreateSession(ctx context.Context, title string, userID *string) (*model.ChatSession, error) {
	if title == "" {
		title = model.DefaultSessionTitle
	}
	session := &model.ChatSession{
		ID:     uuid.NewString(),
		UserID: userID,
		Title:  title,
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// GetSession 获取单个会话
// 先查缓存，未命中时回源数据库并回填缓存
// 参数:
//   - ctx: 上下文
//   - id: 会话ID
//
// 返回:
//   - *model.ChatSession: 会话对象
//   - error: ErrSessionNotFound 或数据库错误
func (s *SessionService) GetSession(ctx context.Context, id string) (*model.ChatSession, error) {
	if s.cache != nil {
		cached, err := s.cache.GetSession(ctx, id)
		if err != nil {
			log.Printf("[WARN] session cache read failed: %v", err)
		} else if cached != nil {
			return cached, nil
		}
	}

	session, err := s.sessions.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}

	if s.cache != nil {
		if err := s.cache.CacheSession(ctx, session); err != nil {
			log.Printf("[WARN] session cache write failed: %v", err)
		}
	}
	return session, nil
}

// ListSessions 获取会话列表
// 按创建时间倒序
// 参数:
//   - ctx: 上下文
//   - userID: 用户ID，为空时返回全部会话
//   - limit: 返回的最大数量
//
// 返回:
//   - []model.ChatSession: 会话列表
//   - error: 数据库错误
func (s *SessionService) ListSessions(ctx context.Context, userID string, limit int) ([]model.ChatSession, error) {
	return s.sessions.List(ctx, userID, limit)
}

// UpdateTitle 用户手动修改会话标题
// 修改后标题定稿，首轮自动摘要不再改写
// 参数:
//   - ctx: 上下文
//   - id: 会话ID
//   - title: 新标题
//
// 返回:
//   - *model.ChatSession: 更新后的会话
//   - error: ErrSessionNotFound 或数据库错误
func (s *SessionService) UpdateTitle(ctx context.Context, id, title string) (*model.ChatSession, error) {
	found, err := s.sessions.UpdateTitle(ctx, id, title)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrSessionNotFound
	}

	s.invalidateCache(ctx, id)

	session, err := s.sessions.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

// GetMessages 获取会话的历史消息
// 按创建时间正序
// 参数:
//   - ctx: 上下文
//   - id: 会话ID
//   - limit: 返回的最大数量
//
// 返回:
//   - []model.ChatMessage: 消息列表
//   - error: ErrSessionNotFound 或数据库错误
func (s *SessionService) GetMessages(ctx context.Context, id string, limit int) ([]model.ChatMessage, error) {
	session, err := s.sessions.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}
	return s.messages.GetBySessionID(ctx, id, limit)
}

// DeleteSession 删除会话及其全部消息
// 先删消息再删会话，保证不留孤儿消息
// 参数:
//   - ctx: 上下文
//   - id: 会话ID
//
// 返回:
//   - error: ErrSessionNotFound 或数据库错误
func (s *SessionService) DeleteSession(ctx context.Context, id string) error {
	deleted, err := s.messages.DeleteBySessionID(ctx, id)
	if err != nil {
		return err
	}

	found, err := s.sessions.Delete(ctx, id)
	if err != nil {
		return err
	}
	if !found {
		return ErrSessionNotFound
	}

	s.invalidateCache(ctx, id)
	log.Printf("[INFO] session %s deleted with %d messages", id, deleted)
	return nil
}

// invalidateCache 失效会话缓存，失败只记日志
func (s *SessionService) invalidateCache(ctx context.Context, id string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateSession(ctx, id); err != nil {
		log.Printf("[WARN] failed to invalidate session cache: %v", err)
	}
}

// Package handler 提供 HTTP 请求处理器
package handler

import (
	"errors"
	"log"
	"strconv"

	"github.com/gin-gonic/gin"

	"ai-chat-server/internal/service"
	"ai-chat-server/pkg/response"
)

// 列表查询的默认与上限数量
const (
	defaultSessionLimit = 50
	defaultMessageLimit = 100
	maxListLimit        = 500
)

// SessionHandler 会话管理请求处理器
type SessionHandler struct {
	sessionService *service.SessionService
}

// NewSessionHandler 创建 SessionHandler 实例
func NewSessionHandler(sessionService *service.SessionService) *SessionHandler {
	return &SessionHandler{
		sessionService: sessionService,
	}
}

// CreateSessionRequest 创建会话请求
type CreateSessionRequest struct {
	Title string `json:"title"` // 初始标题，可选
}

// UpdateTitleRequest 修改标题请求
type UpdateTitleRequest struct {
	Title string `json:"title" binding:"required"` // 新标题
}

// Create 创建会话
// @Summary 创建新会话
// @Tags 会话
// @Accept json
// @Produce json
// @Param body body CreateSessionRequest false "初始标题"
// @Success 201 {object} response.Response{data=model.ChatSession}
// @Router /api/sessions [post]
func (h *SessionHandler) Create(c *gin.Context) {
	var req CreateSessionRequest
	// 允许空请求体
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, "请求参数错误")
			return
		}
	}

	session, err := h.sessionService.CreateSession(c.Request.Context(), req.Title, userIDFromContext(c))
	if err != nil {
		log.Printf("[ERROR] failed to create session: %v", err)
		response.InternalError(c, "创建会话失败")
		return
	}
	response.Created(c, session)
}

// List 获取会话列表
// @Summary 获取会话列表（按创建时间倒序）
// @Tags 会话
// @Produce json
// @Param user_id query string false "按用户过滤"
// @Param limit query int false "返回数量上限"
// @Success 200 {object} response.Response{data=[]model.ChatSession}
// @Router /api/sessions [get]
func (h *SessionHandler) List(c *gin.Context) {
	userID := c.Query("user_id")
	limit := parseLimit(c.Query("limit"), defaultSessionLimit)

	sessions, err := h.sessionService.ListSessions(c.Request.Context(), userID, limit)
	if err != nil {
		log.Printf("[ERROR] failed to list sessions: %v", err)
		response.InternalError(c, "获取会话列表失败")
		return
	}
	response.Success(c, sessions)
}

// Get 获取单个会话
// @Summary 获取会话详情
// @Tags 会话
// @Produce json
// @Param id path string true "会话ID"
// @Success 200 {object} response.Response{data=model.ChatSession}
// @Router /api/sessions/{id} [get]
func (h *SessionHandler) Get(c *gin.Context) {
	session, err := h.sessionService.GetSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, service.ErrSessionNotFound) {
			response.SessionNotFound(c)
			return
		}
		log.Printf("[ERROR] failed to get session: %v", err)
		response.InternalError(c, "获取会话失败")
		return
	}
	response.Success(c, session)
}

// UpdateTitle 修改会话标题
// 手动修改后标题定稿，首轮自动摘要不再改写
// @Summary 修改会话标题
// @Tags 会话
// @Accept json
// @Produce json
// @Param id path string true "会话ID"
// @Param body body UpdateTitleRequest true "新标题"
// @Success 200 {object} response.Response{data=model.ChatSession}
// @Router /api/sessions/{id}/title [put]
func (h *SessionHandler) UpdateTitle(c *gin.Context) {
	var req UpdateTitleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "请求参数错误")
		return
	}

	session, err := h.sessionService.UpdateTitle(c.Request.Context(), c.Param("id"), req.Title)
	if err != nil {
		if errors.Is(err, service.ErrSessionNotFound) {
			response.SessionNotFound(c)
			return
		}
		log.Printf("[ERROR] failed to update session title: %v", err)
		response.InternalError(c, "修改标题失败")
		return
	}
	response.Success(c, session)
}

// Messages 获取会话的历史消息
// @Summary 获取会话历史消息（按时间正序）
// @Tags 会话
// @Produce json
// @Param id path string true "会话ID"
// @Param limit query int false "返回数量上限"
// @Success 200 {object} response.Response{data=[]model.ChatMessage}
// @Router /api/sessions/{id}/messages [get]
func (h *SessionHandler) Messages(c *gin.Context) {
	limit := parseLimit(c.Query("limit"), defaultMessageLimit)

	messages, err := h.sessionService.GetMessages(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		if errors.Is(err, service.ErrSessionNotFound) {
			response.SessionNotFound(c)
			return
		}
		log.Printf("[ERROR] failed to get session messages: %v", err)
		response.InternalError(c, "获取消息失败")
		return
	}
	response.Success(c, messages)
}

// Delete 删除会话
// @Summary 删除会话及其全部消息
// @Tags 会话
// @Produce json
// @Param id path string true "会话ID"
// @Success 200 {object} response.Response
// @Router /api/sessions/{id} [delete]
func (h *SessionHandler) Delete(c *gin.Context) {
	err := h.sessionService.DeleteSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, service.ErrSessionNotFound) {
			response.SessionNotFound(c)
			return
		}
		log.Printf("[ERROR] failed to delete session: %v", err)
		response.InternalError(c, "删除会话失败")
		return
	}
	response.SuccessWithMessage(c, "会话已删除", nil)
}

// parseLimit 解析数量参数，非法或缺省时取默认值，并收敛到上限
func parseLimit(raw string, def int) int {
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	if n > maxListLimit {
		return maxListLimit
	}
	return n
}

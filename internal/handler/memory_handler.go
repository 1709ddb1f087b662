// Package handler 提供 HTTP 请求处理器
package handler

import (
	"log"

	"github.com/gin-gonic/gin"

	"ai-chat-server/internal/service"
	"ai-chat-server/pkg/response"
)

// 记忆查询的默认数量上限
const defaultMemoryLimit = 20

// MemoryHandler 记忆管理请求处理器
// 记忆按会话谱系隔离，所有接口都以会话ID定位归属
type MemoryHandler struct {
	memoryService *service.MemoryService
}

// NewMemoryHandler 创建 MemoryHandler 实例
func NewMemoryHandler(memoryService *service.MemoryService) *MemoryHandler {
	return &MemoryHandler{
		memoryService: memoryService,
	}
}

// UpdateMemoryRequest 更新记忆请求
type UpdateMemoryRequest struct {
	Content string `json:"content" binding:"required"` // 新的记忆文本
}

// List 获取会话的全部记忆
// @Summary 获取会话关联的全部长期记忆
// @Tags 记忆
// @Produce json
// @Param session_id path string true "会话ID"
// @Param limit query int false "返回数量上限"
// @Success 200 {object} response.Response{data=[]memory.Fact}
// @Router /api/memory/{session_id} [get]
func (h *MemoryHandler) List(c *gin.Context) {
	if !h.memoryService.Available() {
		response.MemoryUnavailable(c)
		return
	}

	userID := h.memoryService.GetUserID(c.Param("session_id"))
	limit := parseLimit(c.Query("limit"), defaultMemoryLimit)

	facts := h.memoryService.GetAllMemories(c.Request.Context(), userID, limit)
	response.Success(c, facts)
}

// Search 按相关性搜索会话的记忆
// @Summary 按相关性搜索长期记忆
// @Tags 记忆
// @Produce json
// @Param session_id path string true "会话ID"
// @Param q query string true "查询文本"
// @Param limit query int false "返回数量上限"
// @Success 200 {object} response.Response{data=[]memory.Fact}
// @Router /api/memory/{session_id}/search [get]
func (h *MemoryHandler) Search(c *gin.Context) {
	if !h.memoryService.Available() {
		response.MemoryUnavailable(c)
		return
	}

	query := c.Query("q")
	if query == "" {
		response.BadRequest(c, "缺少查询参数 q")
		return
	}

	userID := h.memoryService.GetUserID(c.Param("session_id"))
	limit := parseLimit(c.Query("limit"), defaultMemoryLimit)

	facts := h.memoryService.SearchMemories(c.Request.Context(), query, userID, limit)
	response.Success(c, facts)
}

// Update 更新一条记忆
// @Summary 更新一条长期记忆的文本
// @Tags 记忆
// @Accept json
// @Produce json
// @Param session_id path string true "会话ID"
// @Param memory_id path string true "记忆ID"
// @Param body body UpdateMemoryRequest true "新的记忆文本"
// @Success 200 {object} response.Response
// @Router /api/memory/{session_id}/{memory_id} [put]
func (h *MemoryHandler) Update(c *gin.Context) {
	if !h.memoryService.Available() {
		response.MemoryUnavailable(c)
		return
	}

	var req UpdateMemoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "请求参数错误")
		return
	}

	if err := h.memoryService.UpdateMemory(c.Request.Context(), c.Param("memory_id"), req.Content); err != nil {
		log.Printf("[ERROR] failed to update memory: %v", err)
		response.ErrorWithCode(c, 502, response.CodeMemoryUpstreamFail, "记忆服务调用失败")
		return
	}
	response.SuccessWithMessage(c, "记忆已更新", nil)
}

// Delete 删除一条记忆
// @Summary 删除一条长期记忆
// @Tags 记忆
// @Produce json
// @Param session_id path string true "会话ID"
// @Param memory_id path string true "记忆ID"
// @Success 200 {object} response.Response
// @Router /api/memory/{session_id}/{memory_id} [delete]
func (h *MemoryHandler) Delete(c *gin.Context) {
	if !h.memoryService.Available() {
		response.MemoryUnavailable(c)
		return
	}

	if err := h.memoryService.DeleteMemory(c.Request.Context(), c.Param("memory_id")); err != nil {
		log.Printf("[ERROR] failed to delete memory: %v", err)
		response.ErrorWithCode(c, 502, response.CodeMemoryUpstreamFail, "记忆服务调用失败")
		return
	}
	response.SuccessWithMessage(c, "记忆已删除", nil)
}

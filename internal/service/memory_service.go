// Package service 提供业务逻辑层的实现
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"ai-chat-server/internal/llm"
	"ai-chat-server/internal/memory"
)

// MemoryStore 记忆后端接口
// 由 memory.Client 实现，测试中用假实现替换
type MemoryStore interface {
	Configured() bool
	Add(ctx context.Context, content, userID string, metadata map[string]interface{}) (*memory.Fact, error)
	Search(ctx context.Context, query, userID string, limit int) ([]memory.Fact, error)
	GetAll(ctx context.Context, userID string, limit int) ([]memory.Fact, error)
	Update(ctx context.Context, memoryID, content string) error
	Delete(ctx context.Context, memoryID string) error
}

// 直接入库的偏好关键词
// 用户输入包含任一关键词时，原文作为 preference 记忆直接保存，
// 与 LLM 提取互相独立
var preferenceKeywords = []string{"喜欢", "不喜欢", "偏好", "讨厌", "热爱"}

// extractPrompt 记忆提取的指令模板
// 要求模型只返回 JSON 数组
const extractPrompt = `请分析以下对话，提取值得记忆的关键信息。只提取以下类型的信息：
1. 用户偏好（喜欢的、不喜欢的）
2. 个人事实（姓名、职业、位置、兴趣等）
3. 重要任务或目标
4. 重要的事件或约定

如果对话中没有值得记忆的信息（如简单问答、日常寒暄），返回空数组。

对话：
用户: %s
助手: %s

请以 JSON 格式返回，格式如下：
[
  {
    "type": "preference" | "fact" | "task" | "event",
    "content": "简洁的关键信息描述",
    "importance": "high" | "medium" | "low"
  }
]

只返回 JSON 数组，不要其他文字：`

// ExtractedMemory LLM 提取出的一条关键信息
type ExtractedMemory struct {
	Type       string `json:"type"`       // preference / fact / task / event
	Content    string `json:"content"`    // 关键信息描述
	Importance string `json:"importance"` // high / medium / low（low 不会入库）
}

// MemoryService 记忆管理器
// 对话编排通过它读写长期记忆；所有失败都被记录并吞掉，
// 绝不影响主回复路径
type MemoryService struct {
	store MemoryStore
	llm   LLMClient
}

// NewMemoryService 创建 MemoryService 实例
func NewMemoryService(store MemoryStore, llmClient LLMClient) *MemoryService {
	return &MemoryService{
		store: store,
		llm:   llmClient,
	}
}

// GetUserID 根据会话ID生成合成用户ID
// 固定前缀拼接，确定性、不可逆推真实身份；
// 记忆目前只按会话谱系隔离，不做账号级共享
func (s *MemoryService) GetUserID(sessionID string) string {
	return "session_" + sessionID
}

// GetRelevantMemories 按相关性检索记忆文本
// 任何失败（未配置、网络、上游错误）都视同"没有记忆"返回空列表
// 参数:
//   - ctx: 上下文
//   - query: 当前用户输入
//   - userID: 合成用户ID
//   - limit: 返回的最大数量
//
// 返回:
//   - []string: 记忆文本列表，可能为空
func (s *MemoryService) GetRelevantMemories(ctx context.Context, query, userID string, limit int) []string {
	if !s.store.Configured() {
		return nil
	}

	facts, err := s.store.Search(ctx, query, userID, limit)
	if err != nil {
		log.Printf("[WARN] memory search failed, skipping: %v", err)
		return nil
	}

	result := make([]string, 0, len(facts))
	for _, f := range facts {
		if f.Memory != "" {
			result = append(result, f.Memory)
		}
	}
	return result
}

// SearchMemories 按相关性检索记忆（带分数与元数据）
// 供记忆查询接口使用
func (s *MemoryService) SearchMemories(ctx context.Context, query, userID string, limit int) []memory.Fact {
	if !s.store.Configured() {
		return nil
	}
	facts, err := s.store.Search(ctx, query, userID, limit)
	if err != nil {
		log.Printf("[WARN] memory search failed, skipping: %v", err)
		return nil
	}
	return facts
}

// GetAllMemories 获取用户的全部记忆
func (s *MemoryService) GetAllMemories(ctx context.Context, userID string, limit int) []memory.Fact {
	if !s.store.Configured() {
		return nil
	}
	facts, err := s.store.GetAll(ctx, userID, limit)
	if err != nil {
		log.Printf("[WARN] failed to get all memories: %v", err)
		return nil
	}
	return facts
}

// ExtractKeyMemories 用 LLM 从一轮对话中提取关键记忆
// importance 为 low 的条目在这里就被丢弃；
// 模型输出不是合法 JSON 时，降级为偏好关键词启发式（或空结果）
// 参数:
//   - ctx: 上下文
//   - userInput: 用户输入
//   - assistantReply: 助手回复
//
// 返回:
//   - []ExtractedMemory: 过滤后的关键信息列表，可能为空
func (s *MemoryService) ExtractKeyMemories(ctx context.Context, userInput, assistantReply string) []ExtractedMemory {
	if !s.llm.Configured() {
		log.Printf("[WARN] llm not configured, skipping memory extraction")
		return nil
	}

	prompt := fmt.Sprintf(extractPrompt, userInput, assistantReply)

	// 降低温度以获得更稳定的提取结果
	content, err := s.llm.Complete(ctx, []llm.ChatMessage{
		{Role: llm.RoleUser, Content: prompt},
	}, 0.3)
	if err != nil {
		log.Printf("[WARN] memory extraction call failed, skipping: %v", err)
		return nil
	}

	var items []ExtractedMemory
	if err := json.Unmarshal([]byte(stripCodeFence(content)), &items); err != nil {
		log.Printf("[ERROR] failed to parse memory extraction JSON: %v", err)
		// 降级：用户输入带明显偏好词时直接提取为一条偏好记忆
		if containsPreferenceKeyword(userInput) {
			return []ExtractedMemory{{
				Type:       "preference",
				Content:    userInput,
				Importance: "medium",
			}}
		}
		return nil
	}

	// 过滤掉低重要性的记忆
	filtered := make([]ExtractedMemory, 0, len(items))
	for _, item := range items {
		if item.Importance == "low" || item.Content == "" {
			continue
		}
		filtered = append(filtered, item)
	}
	log.Printf("[INFO] extracted %d memories (filtered from %d)", len(filtered), len(items))
	return filtered
}

// AddConversationMemories 智能添加对话记忆
// 先做偏好关键词的直接入库，再做 LLM 提取入库；
// 两条路径都是尽力而为，失败只记日志
// 参数:
//   - ctx: 上下文
//   - userInput: 用户输入
//   - assistantReply: 助手回复
//   - userID: 合成用户ID
//   - sessionID: 来源会话ID（写入元数据）
func (s *MemoryService) AddConversationMemories(ctx context.Context, userInput, assistantReply, userID, sessionID string) {
	if !s.store.Configured() {
		log.Printf("[WARN] memory store not configured, skipping memory addition")
		return
	}

	// 用户输入包含明显的偏好信息时，原文直接入库
	if containsPreferenceKeyword(userInput) {
		_, err := s.store.Add(ctx, userInput, userID, map[string]interface{}{
			"type":       "preference",
			"importance": "medium",
			"session_id": sessionID,
			"source":     "conversation",
			"method":     "direct",
		})
		if err != nil {
			log.Printf("[ERROR] failed to add direct memory: %v", err)
		}
	}

	// LLM 提取关键记忆，逐条入库
	keyMemories := s.ExtractKeyMemories(ctx, userInput, assistantReply)
	if len(keyMemories) == 0 {
		return
	}

	added := 0
	for _, item := range keyMemories {
		memType := item.Type
		if memType == "" {
			memType = "fact"
		}
		importance := item.Importance
		if importance == "" {
			importance = "medium"
		}

		_, err := s.store.Add(ctx, item.Content, userID, map[string]interface{}{
			"type":       memType,
			"importance": importance,
			"session_id": sessionID,
			"source":     "conversation",
			"method":     "extracted",
		})
		if err != nil {
			log.Printf("[ERROR] failed to add extracted memory: %v", err)
			continue
		}
		added++
	}
	log.Printf("[INFO] memory addition completed: %d/%d memories added", added, len(keyMemories))
}

// UpdateMemory 更新一条记忆
func (s *MemoryService) UpdateMemory(ctx context.Context, memoryID, content string) error {
	if !s.store.Configured() {
		return memory.ErrNotConfigured
	}
	return s.store.Update(ctx, memoryID, content)
}

// DeleteMemory 删除一条记忆
func (s *MemoryService) DeleteMemory(ctx context.Context, memoryID string) error {
	if !s.store.Configured() {
		return memory.ErrNotConfigured
	}
	return s.store.Delete(ctx, memoryID)
}

// Available 记忆功能是否可用
func (s *MemoryService) Available() bool {
	return s.store.Configured()
}

// containsPreferenceKeyword 判断文本是否包含偏好关键词
func containsPreferenceKeyword(text string) bool {
	for _, kw := range preferenceKeywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

// stripCodeFence 去掉模型输出外层可能的 markdown 代码块标记
func stripCodeFence(content string) string {
	content = strings.TrimSpace(content)
	if !strings.HasPrefix(content, "```") {
		return content
	}
	parts := strings.Split(content, "```")
	if len(parts) > 1 {
		content = parts[1]
		content = strings.TrimPrefix(content, "json")
	}
	return strings.TrimSpace(content)
}

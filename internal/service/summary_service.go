// Package service 提供业务逻辑层的实现
package service

import (
	"context"
	"fmt"
	"log"
	"strings"

	"ai-chat-server/internal/llm"
)

// 标题的最大长度（按字符数而非字节数，标题多为中文）
const titleMaxRunes = 50

// summaryPrompt 标题摘要的指令模板
const summaryPrompt = `请为以下对话生成一个简洁的标题（不超过15字，只返回标题，不要其他文字）：

用户：%s
%s
标题：`

// SummaryService 标题摘要服务
// 首轮对话完成后为会话生成标题；模型不可用或调用失败时
// 确定性地降级为用户消息截断，这条路径永不报错
type SummaryService struct {
	llm LLMClient
}

// NewSummaryService 创建 SummaryService 实例
func NewSummaryService(llmClient LLMClient) *SummaryService {
	return &SummaryService{llm: llmClient}
}

// GenerateSummary 生成会话标题
// 参数:
//   - ctx: 上下文
//   - userMessage: 首轮用户消息
//   - assistantReply: 首轮助手回复，可为空
//
// 返回:
//   - string: 不超过 50 字的标题
func (s *SummaryService) GenerateSummary(ctx context.Context, userMessage, assistantReply string) string {
	// LLM 未配置时直接截断
	if !s.llm.Configured() {
		return truncateTitle(userMessage)
	}

	replyPart := ""
	if assistantReply != "" {
		replyPart = "助手：" + clipRunes(assistantReply, 200) + "\n"
	}
	prompt := fmt.Sprintf(summaryPrompt, clipRunes(userMessage, 200), replyPart)

	// 降低温度以获得更稳定的摘要
	content, err := s.llm.Complete(ctx, []llm.ChatMessage{
		{Role: llm.RoleUser, Content: prompt},
	}, 0.3)
	if err != nil {
		log.Printf("[WARN] failed to generate summary with llm, falling back to truncation: %v", err)
		return truncateTitle(userMessage)
	}

	// 清理模型可能带上的标签文字
	summary := strings.TrimSpace(content)
	summary = strings.ReplaceAll(summary, "标题：", "")
	summary = strings.ReplaceAll(summary, "标题", "")
	summary = strings.TrimSpace(summary)

	summary = clipRunes(summary, titleMaxRunes)
	if summary == "" {
		return truncateTitle(userMessage)
	}
	return summary
}

// truncateTitle 截断用户消息作为标题
// 超长时截取前 50 字并追加省略号
func truncateTitle(userMessage string) string {
	r := []rune(strings.TrimSpace(userMessage))
	if len(r) > titleMaxRunes {
		return string(r[:titleMaxRunes]) + "..."
	}
	return string(r)
}

// clipRunes 按字符数截断字符串，不加省略号
func clipRunes(s string, max int) string {
	r := []rune(s)
	if len(r) > max {
		return string(r[:max])
	}
	return s
}

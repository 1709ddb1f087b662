// Package llm 封装 OpenAI 兼容的大模型 API 调用
// 支持一次性补全与流式生成两种模式
package llm

import (
	"context"
	"errors"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"ai-chat-server/internal/config"
)

// ErrNotConfigured 表示 API Key 未配置
// 调用方依据该错误与运行时调用失败区分，给出不同的用户提示
var ErrNotConfigured = errors.New("llm: api key not configured")

// 消息角色常量
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage 一条对话消息
type ChatMessage struct {
	Role    string // 角色: system / user / assistant
	Content string // 消息内容
}

// TokenStream 流式生成的 token 序列
// Recv 依次返回每个文本增量，结束时返回 io.EOF
type TokenStream interface {
	Recv() (string, error)
	Close() error
}

// Client 大模型客户端
// api 为 nil 表示未配置，所有调用返回 ErrNotConfigured
type Client struct {
	api   *openai.Client
	model string
}

// NewClient 创建大模型客户端
// API Key 未配置时仍返回可用实例，只是所有调用都会失败为 ErrNotConfigured，
// 让上层可以给出"未配置"而非"调用失败"的提示
// 参数:
//   - cfg: 应用配置（包含 LLM 连接信息）
//
// 返回:
//   - *Client: 客户端实例
func NewClient(cfg *config.Config) *Client {
	c := &Client{model: cfg.LLM.Model}
	if cfg.LLM.APIKey == "" {
		return c
	}

	apiCfg := openai.DefaultConfig(cfg.LLM.APIKey)
	if cfg.LLM.APIBase != "" {
		apiCfg.BaseURL = cfg.LLM.APIBase
	}
	// 模型调用没有显式超时的话可能无限挂起，这里统一兜底
	apiCfg.HTTPClient = &http.Client{Timeout: 60 * time.Second}

	c.api = openai.NewClientWithConfig(apiCfg)
	return c
}

// Configured 返回 API Key 是否已配置
func (c *Client) Configured() bool {
	return c.api != nil
}

// Complete 一次性生成完整回复
// 参数:
//   - ctx: 上下文
//   - messages: 对话消息列表
//   - temperature: 采样温度
//
// 返回:
//   - string: 模型回复全文
//   - error: ErrNotConfigured 或调用错误
func (c *Client) Complete(ctx context.Context, messages []ChatMessage, temperature float32) (string, error) {
	if c.api == nil {
		return "", ErrNotConfigured
	}

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    toOpenAIMessages(messages),
		Temperature: temperature,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("llm: empty response")
	}
	return resp.Choices[0].Message.Content, nil
}

// Stream 流式生成回复
// 参数:
//   - ctx: 上下文，取消后底层流会随之终止
//   - messages: 对话消息列表
//   - temperature: 采样温度
//
// 返回:
//   - TokenStream: token 流，调用方负责 Close
//   - error: ErrNotConfigured 或调用错误
func (c *Client) Stream(ctx context.Context, messages []ChatMessage, temperature float32) (TokenStream, error) {
	if c.api == nil {
		return nil, ErrNotConfigured
	}

	stream, err := c.api.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    toOpenAIMessages(messages),
		Temperature: temperature,
	})
	if err != nil {
		return nil, err
	}
	return &completionStream{inner: stream}, nil
}

// completionStream 把 openai 的流适配为 TokenStream
type completionStream struct {
	inner *openai.ChatCompletionStream
}

// Recv 返回下一个非空文本增量
// 跳过只携带 role/finish_reason 的空块
func (s *completionStream) Recv() (string, error) {
	for {
		resp, err := s.inner.Recv()
		if err != nil {
			// io.EOF 表示正常结束，原样透传
			return "", err
		}
		if len(resp.Choices) == 0 {
			continue
		}
		if delta := resp.Choices[0].Delta.Content; delta != "" {
			return delta, nil
		}
	}
}

// Close 关闭底层流
func (s *completionStream) Close() error {
	return s.inner.Close()
}

// toOpenAIMessages 转换为 openai 的消息结构
func toOpenAIMessages(messages []ChatMessage) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		out = append(out, openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		})
	}
	return out
}

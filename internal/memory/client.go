// Package memory 封装 mem0 兼容的记忆服务 API
// 上游返回的结果形状不统一（有时是数组，有时包在 memories/results 键里），
// 在这一层统一归一化为 Fact，编排层不接触原始形状
package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"ai-chat-server/internal/config"
)

// 默认的 mem0 服务地址
const DefaultBaseURL = "https://api.mem0.ai"

// ErrNotConfigured 表示记忆服务未配置
var ErrNotConfigured = errors.New("memory: api key not configured")

// Fact 一条记忆
// 归一化后的固定结构，metadata 中携带 type/importance/session_id 等标签
type Fact struct {
	ID        string                 `json:"id"`
	Memory    string                 `json:"memory"`
	Score     float64                `json:"score,omitempty"` // 相关性分数，仅搜索结果有值
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt string                 `json:"created_at,omitempty"`
}

// Client 记忆服务客户端
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewClient 创建记忆服务客户端
// API Key 未配置时仍返回实例，调用全部失败为 ErrNotConfigured
// 参数:
//   - cfg: 应用配置（包含记忆服务连接信息）
//
// 返回:
//   - *Client: 客户端实例
func NewClient(cfg *config.Config) *Client {
	baseURL := cfg.Memory.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  cfg.Memory.APIKey,
		client: &http.Client{
			Timeout: 10 * time.Second, // 记忆服务是尽力而为的旁路，超时收紧
		},
	}
}

// Configured 返回记忆服务是否已配置
func (c *Client) Configured() bool {
	return c.apiKey != ""
}

// Add 添加一条记忆
// 参数:
//   - ctx: 上下文
//   - content: 记忆文本
//   - userID: 归属的合成用户ID
//   - metadata: 附加元数据（type/importance/session_id 等）
//
// 返回:
//   - *Fact: 创建的记忆，上游未回传时 ID 可能为空
//   - error: 配置或调用错误
func (c *Client) Add(ctx context.Context, content, userID string, metadata map[string]interface{}) (*Fact, error) {
	if c.apiKey == "" {
		return nil, ErrNotConfigured
	}

	body := map[string]interface{}{
		"messages": []map[string]string{
			{"role": "user", "content": content},
		},
		"user_id":  userID,
		"metadata": metadata,
	}

	data, err := c.do(ctx, http.MethodPost, "/v1/memories/", body)
	if err != nil {
		return nil, err
	}

	facts := normalizeFacts(data)
	if len(facts) == 0 {
		// 上游接受了请求但没有回传实体，构造一个最小结果
		return &Fact{Memory: content, Metadata: metadata}, nil
	}
	return &facts[0], nil
}

// Search 按相关性搜索记忆
// 参数:
//   - ctx: 上下文
//   - query: 查询文本
//   - userID: 归属的合成用户ID
//   - limit: 返回的最大数量
//
// 返回:
//   - []Fact: 按相关性排序的记忆列表
//   - error: 配置或调用错误
func (c *Client) Search(ctx context.Context, query, userID string, limit int) ([]Fact, error) {
	if c.apiKey == "" {
		return nil, ErrNotConfigured
	}

	body := map[string]interface{}{
		"query":   query,
		"user_id": userID,
		"limit":   limit,
	}

	data, err := c.do(ctx, http.MethodPost, "/v1/memories/search/", body)
	if err != nil {
		return nil, err
	}
	return normalizeFacts(data), nil
}

// GetAll 获取用户的全部记忆
// 参数:
//   - ctx: 上下文
//   - userID: 归属的合成用户ID
//   - limit: 返回的最大数量
//
// 返回:
//   - []Fact: 记忆列表
//   - error: 配置或调用错误
func (c *Client) GetAll(ctx context.Context, userID string, limit int) ([]Fact, error) {
	if c.apiKey == "" {
		return nil, ErrNotConfigured
	}

	path := "/v1/memories/?user_id=" + url.QueryEscape(userID) + "&limit=" + strconv.Itoa(limit)
	data, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	return normalizeFacts(data), nil
}

// Update 更新一条记忆的文本内容
// 参数:
//   - ctx: 上下文
//   - memoryID: 记忆ID
//   - content: 新的记忆文本
//
// 返回:
//   - error: 配置或调用错误
func (c *Client) Update(ctx context.Context, memoryID, content string) error {
	if c.apiKey == "" {
		return ErrNotConfigured
	}

	body := map[string]interface{}{"text": content}
	_, err := c.do(ctx, http.MethodPut, "/v1/memories/"+url.PathEscape(memoryID)+"/", body)
	return err
}

// Delete 删除一条记忆
// 参数:
//   - ctx: 上下文
//   - memoryID: 记忆ID
//
// 返回:
//   - error: 配置或调用错误
func (c *Client) Delete(ctx context.Context, memoryID string) error {
	if c.apiKey == "" {
		return ErrNotConfigured
	}

	_, err := c.do(ctx, http.MethodDelete, "/v1/memories/"+url.PathEscape(memoryID)+"/", nil)
	return err
}

// do 发送 HTTP 请求并返回响应体
func (c *Client) do(ctx context.Context, method, path string, body interface{}) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Token "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call memory service: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("memory service returned status %d: %s", resp.StatusCode, string(respBody))
	}
	return respBody, nil
}

// normalizeFacts 把上游的各种结果形状归一化为 Fact 列表
// 兼容三种形状：裸数组、{"memories": [...]}、{"results": [...]}
func normalizeFacts(data []byte) []Fact {
	if len(data) == 0 {
		return nil
	}

	// 形状一：裸数组
	var facts []Fact
	if err := json.Unmarshal(data, &facts); err == nil {
		return facts
	}

	// 形状二/三：包在对象里
	var wrapped struct {
		Memories []Fact `json:"memories"`
		Results  []Fact `json:"results"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return nil
	}
	if len(wrapped.Memories) > 0 {
		return wrapped.Memories
	}
	return wrapped.Results
}

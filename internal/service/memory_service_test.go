package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ai-chat-server/internal/memory"
)

func TestGetUserID(t *testing.T) {
	svc := NewMemoryService(newFakeMemoryStore(), &fakeLLM{})
	assert.Equal(t, "session_abc", svc.GetUserID("abc"))
}

func TestGetRelevantMemories(t *testing.T) {
	t.Run("未配置时返回空", func(t *testing.T) {
		store := newFakeMemoryStore()
		store.configured = false
		svc := NewMemoryService(store, &fakeLLM{})
		assert.Empty(t, svc.GetRelevantMemories(context.Background(), "查询", "session_x", 5))
	})

	t.Run("检索失败等同于没有记忆", func(t *testing.T) {
		store := newFakeMemoryStore()
		store.searchErr = errUpstream
		svc := NewMemoryService(store, &fakeLLM{})
		assert.Empty(t, svc.GetRelevantMemories(context.Background(), "查询", "session_x", 5))
	})

	t.Run("过滤空文本", func(t *testing.T) {
		store := newFakeMemoryStore()
		store.searchHits = []memory.Fact{
			{Memory: "用户喜欢爬山"},
			{Memory: ""},
			{Memory: "用户住在上海"},
		}
		svc := NewMemoryService(store, &fakeLLM{})
		got := svc.GetRelevantMemories(context.Background(), "查询", "session_x", 5)
		assert.Equal(t, []string{"用户喜欢爬山", "用户住在上海"}, got)
	})
}

func TestExtractKeyMemories(t *testing.T) {
	t.Run("低重要性与空内容被过滤", func(t *testing.T) {
		llmFake := &fakeLLM{
			configured: true,
			completion: `[
				{"type":"fact","content":"用户是工程师","importance":"high"},
				{"type":"fact","content":"闲聊内容","importance":"low"},
				{"type":"fact","content":"","importance":"high"}
			]`,
		}
		svc := NewMemoryService(newFakeMemoryStore(), llmFake)
		got := svc.ExtractKeyMemories(context.Background(), "我是工程师", "好的")
		require.Len(t, got, 1)
		assert.Equal(t, "用户是工程师", got[0].Content)
	})

	t.Run("代码块包裹的JSON也能解析", func(t *testing.T) {
		llmFake := &fakeLLM{
			configured: true,
			completion: "```json\n[{\"type\":\"preference\",\"content\":\"用户偏好中文\",\"importance\":\"medium\"}]\n```",
		}
		svc := NewMemoryService(newFakeMemoryStore(), llmFake)
		got := svc.ExtractKeyMemories(context.Background(), "请用中文", "好的")
		require.Len(t, got, 1)
		assert.Equal(t, "preference", got[0].Type)
	})

	t.Run("非法JSON带偏好词时降级为直接提取", func(t *testing.T) {
		llmFake := &fakeLLM{configured: true, completion: "抱歉，我无法提取"}
		svc := NewMemoryService(newFakeMemoryStore(), llmFake)
		got := svc.ExtractKeyMemories(context.Background(), "我喜欢爬山", "好的")
		require.Len(t, got, 1)
		assert.Equal(t, "preference", got[0].Type)
		assert.Equal(t, "我喜欢爬山", got[0].Content)
	})

	t.Run("非法JSON且无偏好词时返回空", func(t *testing.T) {
		llmFake := &fakeLLM{configured: true, completion: "抱歉，我无法提取"}
		svc := NewMemoryService(newFakeMemoryStore(), llmFake)
		assert.Empty(t, svc.ExtractKeyMemories(context.Background(), "今天天气如何", "晴天"))
	})

	t.Run("LLM未配置时跳过提取", func(t *testing.T) {
		svc := NewMemoryService(newFakeMemoryStore(), &fakeLLM{configured: false})
		assert.Empty(t, svc.ExtractKeyMemories(context.Background(), "我喜欢爬山", "好的"))
	})
}

func TestAddConversationMemories(t *testing.T) {
	t.Run("偏好词触发直接入库", func(t *testing.T) {
		store := newFakeMemoryStore()
		llmFake := &fakeLLM{configured: true, completion: "[]"}
		svc := NewMemoryService(store, llmFake)

		svc.AddConversationMemories(context.Background(), "我讨厌加班", "理解", "session_x", "x")

		require.Equal(t, 1, store.addedCount())
		added := store.addedAt(0)
		assert.Equal(t, "我讨厌加班", added.content)
		assert.Equal(t, "direct", added.metadata["method"])
		assert.Equal(t, "preference", added.metadata["type"])
		assert.Equal(t, "x", added.metadata["session_id"])
	})

	t.Run("提取结果补全缺省字段后入库", func(t *testing.T) {
		store := newFakeMemoryStore()
		llmFake := &fakeLLM{
			configured: true,
			completion: `[{"content":"用户在北京工作"}]`,
		}
		svc := NewMemoryService(store, llmFake)

		svc.AddConversationMemories(context.Background(), "我在北京工作", "好的", "session_x", "x")

		require.Equal(t, 1, store.addedCount())
		added := store.addedAt(0)
		assert.Equal(t, "fact", added.metadata["type"])
		assert.Equal(t, "medium", added.metadata["importance"])
		assert.Equal(t, "extracted", added.metadata["method"])
	})

	t.Run("未配置时不做任何事", func(t *testing.T) {
		store := newFakeMemoryStore()
		store.configured = false
		svc := NewMemoryService(store, &fakeLLM{configured: true, completion: "[]"})

		svc.AddConversationMemories(context.Background(), "我喜欢爬山", "好的", "session_x", "x")
		assert.Equal(t, 0, store.addedCount())
	})
}

func TestUpdateDeleteMemoryNotConfigured(t *testing.T) {
	store := newFakeMemoryStore()
	store.configured = false
	svc := NewMemoryService(store, &fakeLLM{})

	assert.ErrorIs(t, svc.UpdateMemory(context.Background(), "m1", "新内容"), memory.ErrNotConfigured)
	assert.ErrorIs(t, svc.DeleteMemory(context.Background(), "m1"), memory.ErrNotConfigured)
	assert.False(t, svc.Available())
}

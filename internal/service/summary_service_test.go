package service

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerateSummaryFallbackTruncation(t *testing.T) {
	svc := NewSummaryService(&fakeLLM{configured: false})

	t.Run("短消息原样保留", func(t *testing.T) {
		assert.Equal(t, "你好", svc.GenerateSummary(context.Background(), "你好", "回复"))
	})

	t.Run("超长消息按字符截断并加省略号", func(t *testing.T) {
		long := strings.Repeat("长", 80)
		got := svc.GenerateSummary(context.Background(), long, "回复")
		assert.Equal(t, strings.Repeat("长", 50)+"...", got)
		assert.Len(t, []rune(got), 53)
	})

	t.Run("恰好50字不加省略号", func(t *testing.T) {
		exact := strings.Repeat("字", 50)
		assert.Equal(t, exact, svc.GenerateSummary(context.Background(), exact, ""))
	})
}

func TestGenerateSummaryWithLLM(t *testing.T) {
	t.Run("剥离模型带上的标签", func(t *testing.T) {
		svc := NewSummaryService(&fakeLLM{configured: true, completion: "标题：Go语言学习"})
		assert.Equal(t, "Go语言学习", svc.GenerateSummary(context.Background(), "什么是Go", "Go是..."))
	})

	t.Run("调用失败降级为截断", func(t *testing.T) {
		svc := NewSummaryService(&fakeLLM{configured: true, completeErr: errUpstream})
		assert.Equal(t, "什么是Go", svc.GenerateSummary(context.Background(), "什么是Go", ""))
	})

	t.Run("模型返回空白降级为截断", func(t *testing.T) {
		svc := NewSummaryService(&fakeLLM{configured: true, completion: "  "})
		assert.Equal(t, "什么是Go", svc.GenerateSummary(context.Background(), "什么是Go", ""))
	})

	t.Run("超长摘要被收敛到上限", func(t *testing.T) {
		svc := NewSummaryService(&fakeLLM{configured: true, completion: strings.Repeat("题", 80)})
		got := svc.GenerateSummary(context.Background(), "问题", "")
		assert.Len(t, []rune(got), 50)
	})
}

func TestClassifyIntent(t *testing.T) {
	tests := []struct {
		name       string
		text       string
		wantIntent string
	}{
		{"包含代码关键词", "这段 SQL 有什么问题", IntentCodeHelper},
		{"关键词大小写不敏感", "My API returns 500", IntentCodeHelper},
		{"普通问答", "今天天气怎么样", IntentGeneralQA},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			intent, confidence := ClassifyIntent(tt.text)
			assert.Equal(t, tt.wantIntent, intent)
			assert.Greater(t, confidence, 0.0)
			assert.LessOrEqual(t, confidence, 1.0)
		})
	}
}

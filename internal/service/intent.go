// Package service 提供业务逻辑层的实现
package service

import "strings"

// 意图常量
// 占位实现：后续可扩展为按意图路由到不同的处理链
const (
	IntentGeneralQA  = "general_qa"  // 通用问答
	IntentCodeHelper = "code_helper" // 代码协助
	IntentOther      = "other"       // 其他
)

// 触发 code_helper 意图的关键词
var codeKeywords = []string{"code", "bug", "error", "sql", "api"}

// ClassifyIntent 占位意图分类
// 分类结果随用户消息的元数据一起落库
// 参数:
//   - text: 用户输入
//
// 返回:
//   - string: 意图
//   - float64: 置信度 (0-1)
func ClassifyIntent(text string) (string, float64) {
	lower := strings.ToLower(text)
	for _, kw := range codeKeywords {
		if strings.Contains(lower, kw) {
			return IntentCodeHelper, 0.7
		}
	}
	return IntentGeneralQA, 0.6
}

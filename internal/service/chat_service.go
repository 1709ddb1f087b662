// Package service 提供业务逻辑层的实现
package service

import (
	"context"
	"errors"
	"io"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"ai-chat-server/internal/llm"
	"ai-chat-server/internal/model"
)

// LLMClient 大模型客户端接口
// 由 llm.Client 实现，测试中用假实现替换
type LLMClient interface {
	Configured() bool
	Complete(ctx context.Context, messages []llm.ChatMessage, temperature float32) (string, error)
	Stream(ctx context.Context, messages []llm.ChatMessage, temperature float32) (llm.TokenStream, error)
}

const (
	// 基础人设
	baseSystemPrompt = "你是一个有帮助的AI助手。"

	// 注入记忆时的小节标题
	memoryHeading = "\n\n相关记忆：\n"

	// 每轮注入的相关记忆上限
	relevantMemoryLimit = 5

	// 对话采样温度
	chatTemperature = 0.7

	// 回合结束后记忆更新的时间预算
	postTurnTimeout = 15 * time.Second
)

// 仅有的两类面向用户的错误文案
// 配置缺失与调用失败必须可区分，且都以文本形式代替回复返回，
// 绝不向传输层抛异常
const (
	replyNotConfigured = "错误: LLM_API_KEY 未配置，请在配置文件或环境变量中设置 LLM_API_KEY"
	replyInvokeFailed  = "错误: LLM调用失败 - "
)

// StreamEvent 流式对话中的一个事件
// 每个事件只会设置一个字段，序列化后与 SSE 的 data 负载一一对应
type StreamEvent struct {
	SessionID   string `json:"session_id,omitempty"`   // 新建会话时的首个事件
	Delta       string `json:"delta,omitempty"`        // 一个文本增量
	TitleUpdate string `json:"title_update,omitempty"` // 首轮对话后的标题更新
	Error       string `json:"error,omitempty"`        // 编排层错误
}

// ChatService 对话编排服务
// 负责一轮对话的完整流程：确保会话存在、构建带记忆的提示词、
// 调用模型（流式或一次性）、落库消息、首轮定稿标题、
// 以及回合结束后异步的记忆更新
type ChatService struct {
	llm       LLMClient
	memorySvc *MemoryService
	summary   *SummaryService
	sessions  SessionStore
	messages  MessageStore
	cache     SessionCache // 可为 nil
}

// NewChatService 创建 ChatService 实例
func NewChatService(
	llmClient LLMClient,
	memorySvc *MemoryService,
	summarySvc *SummaryService,
	sessions SessionStore,
	messages MessageStore,
	cache SessionCache,
) *ChatService {
	return &ChatService{
		llm:       llmClient,
		memorySvc: memorySvc,
		summary:   summarySvc,
		sessions:  sessions,
		messages:  messages,
		cache:     cache,
	}
}

// ConverseOnce 非流式对话
// 完成一轮对话的全部副作用后返回完整回复
// 参数:
//   - ctx: 上下文
//   - sessionID: 会话ID，为空或不存在时创建新会话
//   - content: 用户输入
//   - userID: 用户ID，可为 nil
//
// 返回:
//   - string: 回复全文（模型不可用时为固定错误文案）
//   - string: 实际使用的会话ID
//   - error: 持久化等关键路径错误
func (s *ChatService) ConverseOnce(ctx context.Context, sessionID, content string, userID *string) (string, string, error) {
	session, _, err := s.ensureSession(ctx, sessionID, userID)
	if err != nil {
		return "", "", err
	}

	if err := s.saveUserMessage(ctx, session.ID, content, userID); err != nil {
		return "", "", err
	}

	reply := s.generateReply(ctx, session.ID, content)

	if err := s.saveAssistantMessage(ctx, session.ID, reply); err != nil {
		return "", "", err
	}

	s.finalizeTitleIfFirst(ctx, session, content, reply)

	return reply, session.ID, nil
}

// ConverseStream 流式对话
// 返回的通道依次产出事件：新建会话时先有一个 session_id 事件，
// 随后是若干 delta，首轮对话后可能有一个 title_update，
// 失败时有一个 error；通道关闭表示序列结束，不可重放
//
// 客户端取消（ctx 结束）时立即停止拉取模型输出，
// 已累积的部分回复仍会尽力落库，记忆更新也会尽力触发
func (s *ChatService) ConverseStream(ctx context.Context, sessionID, content string, userID *string) <-chan StreamEvent {
	events := make(chan StreamEvent)

	go func() {
		defer close(events)

		session, created, err := s.ensureSession(ctx, sessionID, userID)
		if err != nil {
			log.Printf("[ERROR] failed to ensure session: %v", err)
			s.emit(ctx, events, StreamEvent{Error: "服务器错误: " + err.Error()})
			return
		}
		if created {
			if !s.emit(ctx, events, StreamEvent{SessionID: session.ID}) {
				return
			}
		}

		// 流式路径上用户消息落库失败不中断回复，只记日志
		if err := s.saveUserMessage(ctx, session.ID, content, userID); err != nil {
			log.Printf("[ERROR] failed to save user message: %v", err)
		}

		fullReply := s.streamReply(ctx, events, session.ID, content)
		if fullReply == "" {
			return
		}

		// 持久化与请求生命周期解耦：客户端断开后部分回复仍要落库
		pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()

		if err := s.saveAssistantMessage(pctx, session.ID, fullReply); err != nil {
			log.Printf("[ERROR] failed to save assistant message: %v", err)
			return
		}

		if title, won := s.finalizeTitleIfFirst(pctx, session, content, fullReply); won {
			// 客户端已断开时放弃推送，标题本身已定稿
			s.emit(ctx, events, StreamEvent{TitleUpdate: title})
		}
	}()

	return events
}

// generateReply 一次性生成回复
// 模型未配置或调用失败时返回对应的固定文案，不返回错误
func (s *ChatService) generateReply(ctx context.Context, sessionID, userInput string) string {
	if !s.llm.Configured() {
		return replyNotConfigured
	}

	reply, err := s.llm.Complete(ctx, s.buildPrompt(ctx, sessionID, userInput), chatTemperature)
	if err != nil {
		log.Printf("[ERROR] llm invocation failed: %v", err)
		return replyInvokeFailed + err.Error()
	}

	s.spawnMemoryUpdate(userInput, reply, sessionID)
	return reply
}

// streamReply 流式生成回复，把每个增量转发给事件通道
// 返回累积的回复全文（客户端取消时为部分回复）
func (s *ChatService) streamReply(ctx context.Context, events chan<- StreamEvent, sessionID, userInput string) string {
	if !s.llm.Configured() {
		s.emit(ctx, events, StreamEvent{Delta: replyNotConfigured})
		return replyNotConfigured
	}

	stream, err := s.llm.Stream(ctx, s.buildPrompt(ctx, sessionID, userInput), chatTemperature)
	if err != nil {
		log.Printf("[ERROR] llm stream failed to start: %v", err)
		errText := replyInvokeFailed + err.Error()
		s.emit(ctx, events, StreamEvent{Delta: errText})
		return errText
	}
	defer stream.Close()

	var b strings.Builder
	modelFailed := false
	for {
		delta, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				break // 正常结束，或客户端取消引发的底层流终止
			}
			// 流中途失败：补一条合成的错误增量后终止，不重试
			log.Printf("[ERROR] llm stream failed: %v", err)
			errText := replyInvokeFailed + err.Error()
			b.WriteString(errText)
			s.emit(ctx, events, StreamEvent{Delta: errText})
			modelFailed = true
			break
		}
		if !s.emit(ctx, events, StreamEvent{Delta: delta}) {
			break // 客户端取消，立即停止拉取
		}
		b.WriteString(delta)
	}

	reply := b.String()
	// 模型失败或空回复不触发记忆更新；客户端取消时仍尽力尝试
	if reply != "" && !modelFailed {
		s.spawnMemoryUpdate(userInput, reply, sessionID)
	}
	return reply
}

// buildPrompt 构建两条消息的提示词：系统指令 + 用户输入
// 系统指令为固定人设，检索到相关记忆时追加一个带列表的记忆小节；
// 记忆检索失败等同于没有记忆，不影响对话
func (s *ChatService) buildPrompt(ctx context.Context, sessionID, userInput string) []llm.ChatMessage {
	system := baseSystemPrompt

	if sessionID != "" {
		userID := s.memorySvc.GetUserID(sessionID)
		memories := s.memorySvc.GetRelevantMemories(ctx, userInput, userID, relevantMemoryLimit)
		if len(memories) > 0 {
			bullets := make([]string, 0, len(memories))
			for _, m := range memories {
				bullets = append(bullets, "- "+m)
			}
			system += memoryHeading + strings.Join(bullets, "\n")
		}
	}

	return []llm.ChatMessage{
		{Role: llm.RoleSystem, Content: system},
		{Role: llm.RoleUser, Content: userInput},
	}
}

// spawnMemoryUpdate 触发回合结束后的记忆更新
// 独立的后台任务，带自己的超时上下文，与请求生命周期解耦；
// 任何失败都由 MemoryService 记录并吞掉
func (s *ChatService) spawnMemoryUpdate(userInput, reply, sessionID string) {
	userID := s.memorySvc.GetUserID(sessionID)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), postTurnTimeout)
		defer cancel()
		s.memorySvc.AddConversationMemories(ctx, userInput, reply, userID, sessionID)
	}()
}

// ensureSession 确保会话存在
// 未提供 ID 或 ID 不存在时创建新会话
// 返回会话、是否新建、错误
func (s *ChatService) ensureSession(ctx context.Context, sessionID string, userID *string) (*model.ChatSession, bool, error) {
	if sessionID != "" {
		session, err := s.sessions.GetByID(ctx, sessionID)
		if err != nil {
			return nil, false, err
		}
		if session != nil {
			return session, false, nil
		}
		log.Printf("[WARN] session %s not found, creating new one", sessionID)
	}

	session := &model.ChatSession{
		ID:     uuid.NewString(),
		UserID: userID,
		Title:  model.DefaultSessionTitle,
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, false, err
	}
	return session, true, nil
}

// saveUserMessage 保存用户消息
// 意图分类结果随元数据一起落库
func (s *ChatService) saveUserMessage(ctx context.Context, sessionID, content string, userID *string) error {
	intent, confidence := ClassifyIntent(content)
	return s.messages.Create(ctx, &model.ChatMessage{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		UserID:    userID,
		Role:      model.MessageRoleUser,
		Content:   content,
		Metadata: model.JSONMap{
			"intent":     intent,
			"confidence": confidence,
		},
	})
}

// saveAssistantMessage 保存助手消息
func (s *ChatService) saveAssistantMessage(ctx context.Context, sessionID, content string) error {
	return s.messages.Create(ctx, &model.ChatMessage{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Role:      model.MessageRoleAssistant,
		Content:   content,
	})
}

// finalizeTitleIfFirst 首轮对话完成后定稿标题
// 通过条件更新抢定稿权，并发回合中只有一个会成功；
// 标题已定稿（含用户手动修改过）的会话直接跳过。
// 失败只记日志，永不影响回复
func (s *ChatService) finalizeTitleIfFirst(ctx context.Context, session *model.ChatSession, userInput, reply string) (string, bool) {
	if session.TitleFinalized {
		return "", false
	}

	title := s.summary.GenerateSummary(ctx, userInput, reply)
	if title == "" {
		return "", false
	}

	won, err := s.sessions.FinalizeTitle(ctx, session.ID, title)
	if err != nil {
		log.Printf("[ERROR] failed to finalize session title: %v", err)
		return "", false
	}
	if won && s.cache != nil {
		if err := s.cache.InvalidateSession(ctx, session.ID); err != nil {
			log.Printf("[WARN] failed to invalidate session cache: %v", err)
		}
	}
	return title, won
}

// emit 向事件通道发送一个事件
// 客户端取消时返回 false
func (s *ChatService) emit(ctx context.Context, events chan<- StreamEvent, ev StreamEvent) bool {
	select {
	case events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

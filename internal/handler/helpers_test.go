package handler

import (
	"context"
	"sync"

	"github.com/gin-gonic/gin"

	"ai-chat-server/internal/config"
	"ai-chat-server/internal/llm"
	"ai-chat-server/internal/memory"
	"ai-chat-server/internal/model"
	"ai-chat-server/internal/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// memStores 内存版的会话与消息存储，测试用
type memStores struct {
	mu       sync.Mutex
	sessions map[string]*model.ChatSession
	messages []model.ChatMessage
}

func newMemStores() *memStores {
	return &memStores{sessions: make(map[string]*model.ChatSession)}
}

func (s *memStores) Create(_ context.Context, session *model.ChatSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *session
	s.sessions[session.ID] = &cp
	return nil
}

func (s *memStores) GetByID(_ context.Context, id string) (*model.ChatSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok {
		return nil, nil
	}
	cp := *session
	return &cp, nil
}

func (s *memStores) List(_ context.Context, userID string, limit int) ([]model.ChatSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.ChatSession
	for _, session := range s.sessions {
		if userID != "" && (session.UserID == nil || *session.UserID != userID) {
			continue
		}
		out = append(out, *session)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *memStores) UpdateTitle(_ context.Context, id, title string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok {
		return false, nil
	}
	session.Title = title
	session.TitleFinalized = true
	return true, nil
}

func (s *memStores) FinalizeTitle(_ context.Context, id, title string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok || session.TitleFinalized {
		return false, nil
	}
	session.Title = title
	session.TitleFinalized = true
	return true, nil
}

func (s *memStores) Delete(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return false, nil
	}
	delete(s.sessions, id)
	return true, nil
}

// messageStore 视图，同一个 memStores 同时实现两个接口会有方法名冲突，
// 所以消息存储单独包一层
type memMessageStore struct {
	s *memStores
}

func (m *memMessageStore) Create(_ context.Context, message *model.ChatMessage) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	m.s.messages = append(m.s.messages, *message)
	return nil
}

func (m *memMessageStore) GetBySessionID(_ context.Context, sessionID string, limit int) ([]model.ChatMessage, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var out []model.ChatMessage
	for _, msg := range m.s.messages {
		if msg.SessionID == sessionID {
			out = append(out, msg)
		}
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *memMessageStore) CountBySessionID(_ context.Context, sessionID string) (int64, error) {
	msgs, _ := m.GetBySessionID(context.Background(), sessionID, 1<<30)
	return int64(len(msgs)), nil
}

func (m *memMessageStore) DeleteBySessionID(_ context.Context, sessionID string) (int64, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var kept []model.ChatMessage
	var deleted int64
	for _, msg := range m.s.messages {
		if msg.SessionID == sessionID {
			deleted++
			continue
		}
		kept = append(kept, msg)
	}
	m.s.messages = kept
	return deleted, nil
}

func (m *memMessageStore) bySession(sessionID string) []model.ChatMessage {
	msgs, _ := m.GetBySessionID(context.Background(), sessionID, 1<<30)
	return msgs
}

// newTestRouter 组装一个未配置外部服务的完整路由
// LLM 与记忆服务都未配置，对话走固定文案的降级路径
func newTestRouter() (*gin.Engine, *memStores, *memMessageStore) {
	stores := newMemStores()
	msgStore := &memMessageStore{s: stores}

	emptyCfg := &config.Config{}
	llmClient := llm.NewClient(emptyCfg)
	memoryClient := memory.NewClient(emptyCfg)

	memoryService := service.NewMemoryService(memoryClient, llmClient)
	summaryService := service.NewSummaryService(llmClient)
	sessionService := service.NewSessionService(stores, msgStore, nil)
	chatService := service.NewChatService(llmClient, memoryService, summaryService, stores, msgStore, nil)

	router := gin.New()
	chatHandler := NewChatHandler(chatService)
	sessionHandler := NewSessionHandler(sessionService)
	memoryHandler := NewMemoryHandler(memoryService)

	api := router.Group("/api")
	{
		api.POST("/chat", chatHandler.Chat)
		api.GET("/chat/stream", chatHandler.ChatStream)

		api.POST("/sessions", sessionHandler.Create)
		api.GET("/sessions", sessionHandler.List)
		api.GET("/sessions/:id", sessionHandler.Get)
		api.PUT("/sessions/:id/title", sessionHandler.UpdateTitle)
		api.GET("/sessions/:id/messages", sessionHandler.Messages)
		api.DELETE("/sessions/:id", sessionHandler.Delete)

		api.GET("/memory/:session_id", memoryHandler.List)
		api.GET("/memory/:session_id/search", memoryHandler.Search)
		api.PUT("/memory/:session_id/:memory_id", memoryHandler.Update)
		api.DELETE("/memory/:session_id/:memory_id", memoryHandler.Delete)
	}

	return router, stores, msgStore
}

package service

import (
	"context"
	"errors"
	"io"
	"sync"

	"ai-chat-server/internal/llm"
	"ai-chat-server/internal/memory"
	"ai-chat-server/internal/model"
)

// ==================== 存储假实现 ====================

type fakeSessionStore struct {
	mu       sync.Mutex
	sessions map[string]*model.ChatSession
}

func newFakeSessionStore() *fakeSessionStore {
	return &fakeSessionStore{sessions: make(map[string]*model.ChatSession)}
}

func (s *fakeSessionStore) Create(_ context.Context, session *model.ChatSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *session
	s.sessions[session.ID] = &cp
	return nil
}

func (s *fakeSessionStore) GetByID(_ context.Context, id string) (*model.ChatSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok {
		return nil, nil
	}
	cp := *session
	return &cp, nil
}

func (s *fakeSessionStore) List(_ context.Context, userID string, limit int) ([]model.ChatSession, error) {
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

func (s *fakeSessionStore) UpdateTitle(_ context.Context, id, title string) (bool, error) {
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

func (s *fakeSessionStore) FinalizeTitle(_ context.Context, id, title string) (bool, error) {
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

func (s *fakeSessionStore) Delete(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return false, nil
	}
	delete(s.sessions, id)
	return true, nil
}

func (s *fakeSessionStore) get(id string) *model.ChatSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok {
		return nil
	}
	cp := *session
	return &cp
}

type fakeMessageStore struct {
	mu       sync.Mutex
	messages []model.ChatMessage
}

func newFakeMessageStore() *fakeMessageStore {
	return &fakeMessageStore{}
}

func (s *fakeMessageStore) Create(_ context.Context, message *model.ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, *message)
	return nil
}

func (s *fakeMessageStore) GetBySessionID(_ context.Context, sessionID string, limit int) ([]model.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.ChatMessage
	for _, m := range s.messages {
		if m.SessionID == sessionID {
			out = append(out, m)
		}
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *fakeMessageStore) CountBySessionID(_ context.Context, sessionID string) (int64, error) {
	msgs, _ := s.GetBySessionID(context.Background(), sessionID, 1<<30)
	return int64(len(msgs)), nil
}

func (s *fakeMessageStore) DeleteBySessionID(_ context.Context, sessionID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var kept []model.ChatMessage
	var deleted int64
	for _, m := range s.messages {
		if m.SessionID == sessionID {
			deleted++
			continue
		}
		kept = append(kept, m)
	}
	s.messages = kept
	return deleted, nil
}

func (s *fakeMessageStore) bySession(sessionID string) []model.ChatMessage {
	msgs, _ := s.GetBySessionID(context.Background(), sessionID, 1<<30)
	return msgs
}

// ==================== LLM 假实现 ====================

type fakeLLM struct {
	configured   bool
	completion   string
	completeErr  error
	completeFn   func(prompt string) (string, error) // 按提示词区分返回值，优先于 completion
	streamDeltas []string
	streamErr    error // Stream 启动失败
	recvErr      error // 增量取完后在 io.EOF 之前返回的错误
}

func (f *fakeLLM) Configured() bool {
	return f.configured
}

func (f *fakeLLM) Complete(_ context.Context, msgs []llm.ChatMessage, _ float32) (string, error) {
	if f.completeFn != nil {
		return f.completeFn(msgs[len(msgs)-1].Content)
	}
	if f.completeErr != nil {
		return "", f.completeErr
	}
	return f.completion, nil
}

func (f *fakeLLM) Stream(_ context.Context, _ []llm.ChatMessage, _ float32) (llm.TokenStream, error) {
	if f.streamErr != nil {
		return nil, f.streamErr
	}
	return &fakeTokenStream{deltas: f.streamDeltas, finalErr: f.recvErr}, nil
}

type fakeTokenStream struct {
	deltas   []string
	finalErr error
	pos      int
}

func (s *fakeTokenStream) Recv() (string, error) {
	if s.pos >= len(s.deltas) {
		if s.finalErr != nil {
			return "", s.finalErr
		}
		return "", io.EOF
	}
	delta := s.deltas[s.pos]
	s.pos++
	return delta, nil
}

func (s *fakeTokenStream) Close() error { return nil }

// ==================== 记忆假实现 ====================

type fakeMemoryStore struct {
	mu         sync.Mutex
	configured bool
	addErr     error
	searchHits []memory.Fact
	searchErr  error
	added      []addedMemory
}

type addedMemory struct {
	content  string
	userID   string
	metadata map[string]interface{}
}

func newFakeMemoryStore() *fakeMemoryStore {
	return &fakeMemoryStore{configured: true}
}

func (f *fakeMemoryStore) Configured() bool { return f.configured }

func (f *fakeMemoryStore) Add(_ context.Context, content, userID string, metadata map[string]interface{}) (*memory.Fact, error) {
	if f.addErr != nil {
		return nil, f.addErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.added = append(f.added, addedMemory{content: content, userID: userID, metadata: metadata})
	return &memory.Fact{Memory: content, Metadata: metadata}, nil
}

func (f *fakeMemoryStore) Search(_ context.Context, _, _ string, _ int) ([]memory.Fact, error) {
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return f.searchHits, nil
}

func (f *fakeMemoryStore) GetAll(_ context.Context, _ string, _ int) ([]memory.Fact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]memory.Fact, 0, len(f.added))
	for _, a := range f.added {
		out = append(out, memory.Fact{Memory: a.content, Metadata: a.metadata})
	}
	return out, nil
}

func (f *fakeMemoryStore) Update(_ context.Context, _, _ string) error { return nil }

func (f *fakeMemoryStore) Delete(_ context.Context, _ string) error { return nil }

func (f *fakeMemoryStore) addedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.added)
}

func (f *fakeMemoryStore) addedAt(i int) addedMemory {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.added[i]
}

var errUpstream = errors.New("upstream unavailable")

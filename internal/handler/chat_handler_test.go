package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// LLM 未配置时对话接口的固定降级文案
const degradedReply = "错误: LLM_API_KEY 未配置，请在配置文件或环境变量中设置 LLM_API_KEY"

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func doJSON(t *testing.T, router http.Handler, method, path, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var reader *strings.Reader
	if body != "" {
		reader = strings.NewReader(body)
	} else {
		reader = strings.NewReader("")
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var env envelope
	if w.Header().Get("Content-Type") != "" && strings.Contains(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	}
	return w, env
}

func TestChatEndpointDegradedReply(t *testing.T) {
	router, stores, msgStore := newTestRouter()

	w, env := doJSON(t, router, http.MethodPost, "/api/chat", `{"content":"你好"}`)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, 0, env.Code)

	var data ChatResponse
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, degradedReply, data.Reply)
	require.NotEmpty(t, data.SessionID)

	// 降级回复同样完成全部落库副作用
	msgs := msgStore.bySession(data.SessionID)
	require.Len(t, msgs, 2)
	assert.Equal(t, "你好", msgs[0].Content)
	assert.Equal(t, degradedReply, msgs[1].Content)

	// 首轮对话后标题定稿
	session, err := stores.GetByID(context.Background(), data.SessionID)
	require.NoError(t, err)
	require.NotNil(t, session)
	assert.True(t, session.TitleFinalized)
	assert.Equal(t, "你好", session.Title)
}

func TestChatEndpointRequiresMessage(t *testing.T) {
	router, _, _ := newTestRouter()

	w, env := doJSON(t, router, http.MethodPost, "/api/chat", `{"session_id":"x"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.NotEqual(t, 0, env.Code)
}

func TestChatStreamEmptyQuery(t *testing.T) {
	router, _, msgStore := newTestRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/chat/stream", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", w.Header().Get("Cache-Control"))
	// 空输入只有收尾事件，没有任何副作用
	assert.Equal(t, "event: done\n\n", w.Body.String())
	assert.Empty(t, msgStore.s.messages)
}

func TestChatStreamDegradedReply(t *testing.T) {
	router, _, msgStore := newTestRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/chat/stream?q=%E4%BD%A0%E5%A5%BD", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	require.True(t, strings.HasSuffix(body, "event: done\n\n"))

	// 解析 data 负载
	var sessionID string
	var deltas []string
	for _, line := range strings.Split(body, "\n") {
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var payload struct {
			SessionID string `json:"session_id"`
			Delta     string `json:"delta"`
			Error     string `json:"error"`
		}
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &payload))
		assert.Empty(t, payload.Error)
		if payload.SessionID != "" {
			sessionID = payload.SessionID
		}
		if payload.Delta != "" {
			deltas = append(deltas, payload.Delta)
		}
	}

	// 新会话先有 session_id 事件，降级文案作为唯一增量
	require.NotEmpty(t, sessionID)
	require.Len(t, deltas, 1)
	assert.Equal(t, degradedReply, deltas[0])

	msgs := msgStore.bySession(sessionID)
	require.Len(t, msgs, 2)
	assert.Equal(t, degradedReply, msgs[1].Content)
}

func TestChatStreamExistingSessionHasNoSessionEvent(t *testing.T) {
	router, _, _ := newTestRouter()

	// 先创建会话
	_, env := doJSON(t, router, http.MethodPost, "/api/sessions", `{"title":"已有"}`)
	var created struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &created))
	require.NotEmpty(t, created.ID)

	req := httptest.NewRequest(http.MethodGet, "/api/chat/stream?q=hi&session_id="+created.ID, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	// 复用已有会话时不再推送 session_id 事件
	for _, line := range strings.Split(w.Body.String(), "\n") {
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var payload struct {
			SessionID string `json:"session_id"`
		}
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &payload))
		assert.Empty(t, payload.SessionID)
	}
}

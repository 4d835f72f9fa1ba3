package test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"time"
)

// MockOpenAIServer 是一个模拟的 OpenAI 兼容 chat/completions 服务
type MockOpenAIServer struct {
	Server *httptest.Server
	URL    string

	mu              sync.Mutex
	responses       map[string]string
	defaultResponse string
	failNext        atomic.Int32
	requests        atomic.Int64
}

// NewMockOpenAIServer 创建一个新的模拟服务器，URL 可直接作为 base_url 使用
func NewMockOpenAIServer() *MockOpenAIServer {
	m := &MockOpenAIServer{
		responses:       make(map[string]string),
		defaultResponse: "这是翻译后的文本",
	}

	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.requests.Add(1)

		var body struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error": {"message": "无法解析请求体", "type": "invalid_request_error"}}`))
			return
		}

		if m.failNext.Load() > 0 {
			m.failNext.Add(-1)
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"error": {"message": "模拟服务器错误", "type": "server_error"}}`))
			return
		}

		var user string
		for _, msg := range body.Messages {
			if msg.Role == "user" {
				user = msg.Content
			}
		}

		m.mu.Lock()
		reply, ok := m.responses[user]
		if !ok {
			reply = m.defaultResponse
		}
		m.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-mock",
			"object":  "chat.completion",
			"created": time.Now().Unix(),
			"model":   body.Model,
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": reply},
			}},
			"usage": map[string]any{"prompt_tokens": 1, "completion_tokens": 1, "total_tokens": 2},
		})
	}))
	m.URL = m.Server.URL
	return m
}

// AddResponse 为指定的用户消息设置回复
func (m *MockOpenAIServer) AddResponse(user, reply string) {
	m.mu.Lock()
	m.responses[user] = reply
	m.mu.Unlock()
}

// SetDefaultResponse 设置默认回复
func (m *MockOpenAIServer) SetDefaultResponse(reply string) {
	m.mu.Lock()
	m.defaultResponse = reply
	m.mu.Unlock()
}

// FailNext 让接下来的 n 个请求返回 500
func (m *MockOpenAIServer) FailNext(n int) {
	m.failNext.Store(int32(n))
}

// Requests 已收到的请求数
func (m *MockOpenAIServer) Requests() int64 {
	return m.requests.Load()
}

// Close 关闭服务器
func (m *MockOpenAIServer) Close() {
	m.Server.Close()
}

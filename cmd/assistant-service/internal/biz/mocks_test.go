package biz

import (
	"context"
	"sync"
	"time"

	"chatassistant/cmd/assistant-service/internal/domain"
)

// MockMessageRepository 内存消息仓储
type MockMessageRepository struct {
	mu       sync.Mutex
	messages []*domain.Message

	AppendFunc func(ctx context.Context, threadID, userID string, chatID int64,
		transportMsgID int64, message *domain.Message, previous []*domain.Message, isSubThread bool) (*domain.Message, error)
}

func (m *MockMessageRepository) ListThreadMessages(ctx context.Context, threadID string) ([]*domain.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Message
	for _, msg := range m.messages {
		if msg.ThreadID == threadID {
			out = append(out, msg)
		}
	}
	return out, nil
}

func (m *MockMessageRepository) GetMessagesByIDs(ctx context.Context, ids []string) ([]*domain.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Message
	for _, id := range ids {
		for _, msg := range m.messages {
			if msg.ID == id {
				out = append(out, msg)
			}
		}
	}
	return out, nil
}

func (m *MockMessageRepository) GetMessageByTransportID(ctx context.Context, chatID int64, transportMsgID int64) (*domain.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, msg := range m.messages {
		if msg.ChatID == chatID && msg.TransportMessageID == transportMsgID {
			return msg, nil
		}
	}
	return nil, domain.ErrMessageNotFound
}

func (m *MockMessageRepository) GetLastMessage(ctx context.Context, userID string, chatID int64) (*domain.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var last *domain.Message
	for _, msg := range m.messages {
		if msg.UserID == userID && msg.ChatID == chatID {
			if last == nil || msg.CreatedAt.After(last.CreatedAt) {
				last = msg
			}
		}
	}
	if last == nil {
		return nil, domain.ErrMessageNotFound
	}
	return last, nil
}

func (m *MockMessageRepository) AppendMessage(ctx context.Context, threadID, userID string, chatID int64,
	transportMsgID int64, message *domain.Message, previous []*domain.Message, isSubThread bool) (*domain.Message, error) {
	if m.AppendFunc != nil {
		return m.AppendFunc(ctx, threadID, userID, chatID, transportMsgID, message, previous, isSubThread)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := *message
	stored.ThreadID = threadID
	stored.UserID = userID
	stored.ChatID = chatID
	stored.TransportMessageID = transportMsgID
	stored.IsSubThread = isSubThread
	stored.PreviousMessageIDs = nil
	for _, prev := range previous {
		stored.PreviousMessageIDs = append(stored.PreviousMessageIDs, prev.ID)
	}
	m.messages = append(m.messages, &stored)
	return &stored, nil
}

// Seed 预置一条历史消息
func (m *MockMessageRepository) Seed(msg *domain.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, msg)
}

// MockThreadRepository 内存线程仓储
type MockThreadRepository struct {
	mu      sync.Mutex
	threads map[string]*domain.Thread

	ArchiveFunc func(ctx context.Context, userID string) error
}

func (m *MockThreadRepository) GetActiveThread(ctx context.Context, userID string) (*domain.Thread, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.threads[userID]; ok {
		return t, nil
	}
	return nil, domain.ErrThreadNotFound
}

func (m *MockThreadRepository) GetOrCreateActiveThread(ctx context.Context, userID string, chatID int64) (*domain.Thread, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.threads == nil {
		m.threads = make(map[string]*domain.Thread)
	}
	if t, ok := m.threads[userID]; ok {
		return t, nil
	}
	t := domain.NewThread(userID, chatID)
	m.threads[userID] = t
	return t, nil
}

func (m *MockThreadRepository) ArchiveActiveThread(ctx context.Context, userID string) error {
	if m.ArchiveFunc != nil {
		return m.ArchiveFunc(ctx, userID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.threads, userID)
	return nil
}

// MockLLMClient 模拟模型后端
type MockLLMClient struct {
	CompleteFunc       func(ctx context.Context, req *CompletionRequest) (*CompletionResult, error)
	CompleteStreamFunc func(ctx context.Context, req *CompletionRequest) (<-chan *CompletionEvent, <-chan error)
	SummarizeFunc      func(ctx context.Context, messages []*domain.Message, model string, maxTokens int) (string, error)
}

func (m *MockLLMClient) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResult, error) {
	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, req)
	}
	return &CompletionResult{Message: domain.NewAssistantMessage("ok", nil)}, nil
}

func (m *MockLLMClient) CompleteStream(ctx context.Context, req *CompletionRequest) (<-chan *CompletionEvent, <-chan error) {
	if m.CompleteStreamFunc != nil {
		return m.CompleteStreamFunc(ctx, req)
	}
	events := make(chan *CompletionEvent)
	errs := make(chan error, 1)
	close(events)
	return events, errs
}

func (m *MockLLMClient) Summarize(ctx context.Context, messages []*domain.Message, model string, maxTokens int) (string, error) {
	if m.SummarizeFunc != nil {
		return m.SummarizeFunc(ctx, messages, model, maxTokens)
	}
	return "summary of earlier conversation", nil
}

// MockFunctionRunner 模拟函数执行协作方
type MockFunctionRunner struct {
	SchemasFunc func(ctx context.Context) ([]FunctionSchema, error)
	RunFunc     func(ctx context.Context, name, argumentsJSON string) (string, error)
}

func (m *MockFunctionRunner) Schemas(ctx context.Context) ([]FunctionSchema, error) {
	if m.SchemasFunc != nil {
		return m.SchemasFunc(ctx)
	}
	return nil, nil
}

func (m *MockFunctionRunner) RunFunction(ctx context.Context, name, argumentsJSON string) (string, error) {
	if m.RunFunc != nil {
		return m.RunFunc(ctx, name, argumentsJSON)
	}
	return "function result", nil
}

// MockUsageRepository 内存用量仓储
type MockUsageRepository struct {
	mu          sync.Mutex
	Completions []*domain.CompletionUsage
	Seconds     int
}

func (m *MockUsageRepository) RecordCompletionUsage(ctx context.Context, userID string, usage *domain.CompletionUsage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Completions = append(m.Completions, usage)
	return nil
}

func (m *MockUsageRepository) RecordTranscriptionUsage(ctx context.Context, userID string, seconds int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Seconds += seconds
	return nil
}

func (m *MockUsageRepository) GetMonthlyCompletionUsage(ctx context.Context, userID string, month time.Time) ([]*domain.CompletionUsage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Completions, nil
}

func (m *MockUsageRepository) GetMonthlyTranscriptionSeconds(ctx context.Context, userID string, month time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Seconds, nil
}

// TransportCall 一次传输层操作记录
type TransportCall struct {
	Op             string // send / edit / typing
	ChatID         int64
	TransportMsgID int64
	Text           string
	Opts           *SendOptions
}

// MockTransport 模拟传输层，记录全部操作
type MockTransport struct {
	mu     sync.Mutex
	nextID int64
	Calls  []TransportCall

	SendFunc  func(ctx context.Context, chatID int64, text string, opts *SendOptions) (int64, error)
	EditFunc  func(ctx context.Context, chatID int64, transportMsgID int64, text string, opts *SendOptions) error
	MaxLength int
}

func (m *MockTransport) Send(ctx context.Context, chatID int64, text string, opts *SendOptions) (int64, error) {
	if m.SendFunc != nil {
		return m.SendFunc(ctx, chatID, text, opts)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	m.Calls = append(m.Calls, TransportCall{Op: "send", ChatID: chatID, TransportMsgID: m.nextID, Text: text, Opts: opts})
	return m.nextID, nil
}

func (m *MockTransport) Edit(ctx context.Context, chatID int64, transportMsgID int64, text string, opts *SendOptions) error {
	if m.EditFunc != nil {
		return m.EditFunc(ctx, chatID, transportMsgID, text, opts)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, TransportCall{Op: "edit", ChatID: chatID, TransportMsgID: transportMsgID, Text: text, Opts: opts})
	return nil
}

func (m *MockTransport) SendTyping(ctx context.Context, chatID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, TransportCall{Op: "typing", ChatID: chatID})
	return nil
}

func (m *MockTransport) MaxMessageLength() int {
	if m.MaxLength > 0 {
		return m.MaxLength
	}
	return 4080
}

// CallsOf 按操作类型过滤记录
func (m *MockTransport) CallsOf(op string) []TransportCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []TransportCall
	for _, c := range m.Calls {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

// seededMessage 构造带时间与前驱的历史消息
func seededMessage(id string, chatID int64, transportID int64, previous []string, createdAt time.Time) *domain.Message {
	return &domain.Message{
		ID:                 id,
		ThreadID:           "thr_test",
		UserID:             "user1",
		ChatID:             chatID,
		Role:               domain.RoleUser,
		Content:            "message " + id,
		PreviousMessageIDs: previous,
		TransportMessageID: transportID,
		CreatedAt:          createdAt,
	}
}

package biz

import (
	"context"
	"encoding/json"

	"chatassistant/cmd/assistant-service/internal/domain"
)

// CompletionEvent 生成流中的一次增量事件
// Content 是到目前为止的累计内容，不是增量片段
type CompletionEvent struct {
	Content      string
	FunctionCall *domain.FunctionCall
	Done         bool
}

// CompletionResult 非流式补全结果
type CompletionResult struct {
	Message *domain.Message
	Usage   *domain.CompletionUsage
}

// CompletionRequest 补全请求
type CompletionRequest struct {
	Model     string
	Mode      string
	Messages  []*domain.Message
	Functions []FunctionSchema
}

// FunctionSchema 暴露给模型的函数描述
type FunctionSchema struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// LLMClient 模型后端客户端接口
//
// 流式契约：后端发出的第一个事件是引导事件，不携带可用的部分内容，
// 消费方必须跳过它（见 StreamDeliverer）。事件内容为累计全文。
type LLMClient interface {
	// Complete 非流式补全
	Complete(ctx context.Context, req *CompletionRequest) (*CompletionResult, error)

	// CompleteStream 流式补全，事件通道关闭表示流结束
	CompleteStream(ctx context.Context, req *CompletionRequest) (<-chan *CompletionEvent, <-chan error)

	// Summarize 摘要模式：把消息原文压缩为不超过 maxTokens 的文本
	Summarize(ctx context.Context, messages []*domain.Message, model string, maxTokens int) (string, error)
}

// FunctionRunner 函数执行协作方接口
type FunctionRunner interface {
	// Schemas 当前可用的函数描述
	Schemas(ctx context.Context) ([]FunctionSchema, error)

	// RunFunction 执行函数，执行失败返回 error 由调用方折叠为结果文本
	RunFunction(ctx context.Context, name, argumentsJSON string) (string, error)
}

// SendOptions 出站消息选项
type SendOptions struct {
	// 回复目标的传输层消息ID，0 表示普通发送
	ReplyToTransportID int64

	// 附带取消按钮（流式进行中的消息）
	WithCancelAffordance bool

	// 按 Markdown 渲染；传输层拒绝解析时调用方可降级重发
	Markdown bool
}

// Transport 消息传输协作方接口
type Transport interface {
	// Send 发送新消息，返回传输层消息ID
	Send(ctx context.Context, chatID int64, text string, opts *SendOptions) (int64, error)

	// Edit 编辑已发送的消息
	Edit(ctx context.Context, chatID int64, transportMsgID int64, text string, opts *SendOptions) error

	// SendTyping 发送输入中指示（尽力而为）
	SendTyping(ctx context.Context, chatID int64) error

	// MaxMessageLength 单条出站消息的最大长度
	MaxMessageLength() int
}

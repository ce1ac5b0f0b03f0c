package domain

import (
	"time"

	"github.com/google/uuid"
)

// TransportIDNone 未投递消息的哨兵传输ID（例如摘要消息，从未真正发给用户）
const TransportIDNone int64 = -1

// Message 对话消息实体
type Message struct {
	ID                 string
	ThreadID           string
	UserID             string
	ChatID             int64
	Role               MessageRole
	Content            string
	Parts              []ContentPart
	FunctionCall       *FunctionCall
	FunctionName       string
	PreviousMessageIDs []string
	TransportMessageID int64
	IsSubThread        bool
	CreatedAt          time.Time
}

// MessageRole 消息角色
type MessageRole string

const (
	RoleUser      MessageRole = "user"      // 用户
	RoleAssistant MessageRole = "assistant" // 助手
	RoleFunction  MessageRole = "function"  // 函数结果
)

// ContentPartType 内容片段类型
type ContentPartType string

const (
	PartTypeText     ContentPartType = "text"      // 文本
	PartTypeImageURL ContentPartType = "image_url" // 图片引用
)

// ContentPart 消息内容片段（文本或图片引用）
type ContentPart struct {
	Type ContentPartType
	Text string
	URL  string
	// 图片片段的Token成本，在入库时计算（只有此处知道图片尺寸）
	Tokens int
}

// FunctionCall 模型请求的函数调用描述
type FunctionCall struct {
	Name      string
	Arguments string
}

// NewUserMessage 创建用户消息
func NewUserMessage(content string) *Message {
	return &Message{
		ID:                 generateMessageID(),
		Role:               RoleUser,
		Content:            content,
		TransportMessageID: TransportIDNone,
		CreatedAt:          time.Now(),
	}
}

// NewAssistantMessage 创建助手消息
func NewAssistantMessage(content string, call *FunctionCall) *Message {
	return &Message{
		ID:                 generateMessageID(),
		Role:               RoleAssistant,
		Content:            content,
		FunctionCall:       call,
		TransportMessageID: TransportIDNone,
		CreatedAt:          time.Now(),
	}
}

// NewFunctionResultMessage 创建函数结果消息
func NewFunctionResultMessage(name, result string) *Message {
	return &Message{
		ID:                 generateMessageID(),
		Role:               RoleFunction,
		FunctionName:       name,
		Content:            result,
		TransportMessageID: TransportIDNone,
		CreatedAt:          time.Now(),
	}
}

// WithContent 返回替换内容后的消息副本（流式编辑不原地修改）
func (m *Message) WithContent(content string) *Message {
	clone := *m
	clone.Content = content
	return &clone
}

// HasFunctionCall 是否请求了函数调用
func (m *Message) HasFunctionCall() bool {
	return m.FunctionCall != nil && m.FunctionCall.Name != ""
}

// Delivered 是否已投递到传输层
func (m *Message) Delivered() bool {
	return m.TransportMessageID != TransportIDNone
}

func generateMessageID() string {
	return "msg_" + uuid.NewString()
}

package biz

import (
	"context"
	"fmt"

	"chatassistant/cmd/assistant-service/internal/domain"
)

// DynamicThreadStub 动态重建模式不依赖线程实体，使用占位线程ID
const DynamicThreadStub = "-1"

// InboundMessage 一条入站消息（已由网关转换为与传输协议无关的形式）
type InboundMessage struct {
	UserID             string
	ChatID             int64
	Text               string
	Parts              []domain.ContentPart
	TransportMessageID int64
	// 被回复消息的传输层ID，0 表示不是回复
	ReplyToTransportID int64
	IsForward          bool
	// 语音转写时长（秒），0 表示非语音消息
	TranscriptSeconds int
}

// IsReply 是否回复消息（转发消息不算，转发携带的 reply 指向原会话）
func (m *InboundMessage) IsReply() bool {
	return m.ReplyToTransportID != 0 && !m.IsForward
}

// ResolvedContext 线程解析结果：范围内的历史消息与归属线程
type ResolvedContext struct {
	ThreadID    string
	ChatID      int64
	Messages    []*domain.Message
	IsSubThread bool
	// 动态重建模式：窗口化时需要按过期窗口过滤
	Dynamic bool
}

// ProcessingContext 单次请求的上下文对象，持有当前消息列表并负责持久化追加
// 所有请求内可变状态都在这里，不同请求之间无共享
type ProcessingContext struct {
	resolved    *ResolvedContext
	user        *domain.UserProfile
	config      *domain.ContextConfiguration
	messageRepo domain.MessageRepository
	messages    []*domain.Message
}

// NewProcessingContext 创建请求上下文
func NewProcessingContext(
	resolved *ResolvedContext,
	user *domain.UserProfile,
	config *domain.ContextConfiguration,
	messageRepo domain.MessageRepository,
) *ProcessingContext {
	return &ProcessingContext{
		resolved:    resolved,
		user:        user,
		config:      config,
		messageRepo: messageRepo,
		messages:    resolved.Messages,
	}
}

// Messages 当前上下文消息列表
func (c *ProcessingContext) Messages() []*domain.Message {
	return c.messages
}

// SetMessages 替换上下文消息列表（窗口化之后）
func (c *ProcessingContext) SetMessages(messages []*domain.Message) {
	c.messages = messages
}

// User 请求归属用户
func (c *ProcessingContext) User() *domain.UserProfile {
	return c.user
}

// Config 本次请求的上下文配置
func (c *ProcessingContext) Config() *domain.ContextConfiguration {
	return c.config
}

// ChatID 会话ID
func (c *ProcessingContext) ChatID() int64 {
	return c.resolved.ChatID
}

// ThreadID 线程ID
func (c *ProcessingContext) ThreadID() string {
	return c.resolved.ThreadID
}

// AddMessage 持久化消息并追加到上下文，前驱为追加前的全部上下文消息
func (c *ProcessingContext) AddMessage(ctx context.Context, message *domain.Message, transportMsgID int64) (*domain.Message, error) {
	stored, err := c.messageRepo.AppendMessage(
		ctx, c.resolved.ThreadID, c.user.ID, c.resolved.ChatID,
		transportMsgID, message, c.messages, c.resolved.IsSubThread,
	)
	if err != nil {
		return nil, fmt.Errorf("append message: %w", err)
	}
	c.messages = append(c.messages, stored)
	return stored, nil
}

// AddMessageAfter 持久化消息，前驱仅为指定的前一条消息（长回复分段使用）
func (c *ProcessingContext) AddMessageAfter(ctx context.Context, message *domain.Message, transportMsgID int64, previous *domain.Message) (*domain.Message, error) {
	var prev []*domain.Message
	if previous != nil {
		prev = []*domain.Message{previous}
	}
	stored, err := c.messageRepo.AppendMessage(
		ctx, c.resolved.ThreadID, c.user.ID, c.resolved.ChatID,
		transportMsgID, message, prev, c.resolved.IsSubThread,
	)
	if err != nil {
		return nil, fmt.Errorf("append message: %w", err)
	}
	c.messages = append(c.messages, stored)
	return stored, nil
}

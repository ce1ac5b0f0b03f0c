package domain

import (
	"context"
	"time"
)

// ThreadRepository 线程仓储接口
type ThreadRepository interface {
	// GetActiveThread 获取用户当前活跃线程，不存在时返回 ErrThreadNotFound
	GetActiveThread(ctx context.Context, userID string) (*Thread, error)

	// GetOrCreateActiveThread 获取或原子创建活跃线程（并发首条消息下幂等）
	GetOrCreateActiveThread(ctx context.Context, userID string, chatID int64) (*Thread, error)

	// ArchiveActiveThread 归档用户当前活跃线程
	ArchiveActiveThread(ctx context.Context, userID string) error
}

// MessageRepository 消息仓储接口
type MessageRepository interface {
	// ListThreadMessages 按时间正序列出线程全部消息
	ListThreadMessages(ctx context.Context, threadID string) ([]*Message, error)

	// GetMessagesByIDs 按ID集合获取消息，时间正序
	GetMessagesByIDs(ctx context.Context, ids []string) ([]*Message, error)

	// GetMessageByTransportID 根据传输层消息ID查找消息
	GetMessageByTransportID(ctx context.Context, chatID int64, transportMsgID int64) (*Message, error)

	// GetLastMessage 获取用户在指定会话的最后一条消息
	GetLastMessage(ctx context.Context, userID string, chatID int64) (*Message, error)

	// AppendMessage 追加消息，记录其前驱消息ID用于子线程重建
	AppendMessage(ctx context.Context, threadID, userID string, chatID int64,
		transportMsgID int64, message *Message, previous []*Message, isSubThread bool) (*Message, error)
}

// UserRepository 用户画像仓储接口
type UserRepository interface {
	// GetOrCreateUser 获取或创建用户画像
	GetOrCreateUser(ctx context.Context, userID string) (*UserProfile, error)

	// UpdateUser 更新用户画像
	UpdateUser(ctx context.Context, user *UserProfile) error
}

// CompletionUsage 一次补全调用的用量
type CompletionUsage struct {
	Model            string
	PromptTokens     int
	CompletionTokens int
}

// UsageRepository 用量仓储接口
type UsageRepository interface {
	// RecordCompletionUsage 记录一次补全用量
	RecordCompletionUsage(ctx context.Context, userID string, usage *CompletionUsage) error

	// RecordTranscriptionUsage 记录一次语音转写用量（秒）
	RecordTranscriptionUsage(ctx context.Context, userID string, seconds int) error

	// GetMonthlyCompletionUsage 获取某月按模型汇总的补全用量
	GetMonthlyCompletionUsage(ctx context.Context, userID string, month time.Time) ([]*CompletionUsage, error)

	// GetMonthlyTranscriptionSeconds 获取某月语音转写总秒数
	GetMonthlyTranscriptionSeconds(ctx context.Context, userID string, month time.Time) (int, error)
}

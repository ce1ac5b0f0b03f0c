package data

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"chatassistant/cmd/assistant-service/internal/domain"

	"gorm.io/gorm"
)

// MessageDO 消息数据对象
type MessageDO struct {
	ID                 string `gorm:"primaryKey"`
	ThreadID           string `gorm:"index"`
	UserID             string `gorm:"index"`
	ChatID             int64  `gorm:"index:idx_chat_transport"`
	Role               string
	Content            string `gorm:"type:text"`
	PartsJSON          string `gorm:"type:jsonb"`
	FunctionCallJSON   string `gorm:"type:jsonb"`
	FunctionName       string
	PreviousIDsJSON    string `gorm:"type:jsonb"`
	TransportMessageID int64  `gorm:"index:idx_chat_transport"`
	IsSubThread        bool
	CreatedAt          time.Time `gorm:"index"`
}

// TableName 指定表名
func (MessageDO) TableName() string {
	return "assistant.messages"
}

// MessageRepository 消息仓储实现
type MessageRepository struct {
	db *gorm.DB
}

// NewMessageRepository 创建消息仓储
func NewMessageRepository(db *gorm.DB) domain.MessageRepository {
	return &MessageRepository{
		db: db,
	}
}

// ListThreadMessages 按时间正序列出线程全部消息
func (r *MessageRepository) ListThreadMessages(ctx context.Context, threadID string) ([]*domain.Message, error) {
	var dos []MessageDO
	if err := r.db.WithContext(ctx).
		Where("thread_id = ?", threadID).
		Order("created_at ASC").
		Find(&dos).Error; err != nil {
		return nil, err
	}

	messages := make([]*domain.Message, len(dos))
	for i, do := range dos {
		messages[i] = r.toDomain(&do)
	}
	return messages, nil
}

// GetMessagesByIDs 按ID集合获取消息，时间正序
func (r *MessageRepository) GetMessagesByIDs(ctx context.Context, ids []string) ([]*domain.Message, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	var dos []MessageDO
	if err := r.db.WithContext(ctx).
		Where("id IN ?", ids).
		Order("created_at ASC").
		Find(&dos).Error; err != nil {
		return nil, err
	}

	messages := make([]*domain.Message, len(dos))
	for i, do := range dos {
		messages[i] = r.toDomain(&do)
	}
	return messages, nil
}

// GetMessageByTransportID 根据传输层消息ID查找消息
func (r *MessageRepository) GetMessageByTransportID(ctx context.Context, chatID int64, transportMsgID int64) (*domain.Message, error) {
	var do MessageDO
	if err := r.db.WithContext(ctx).
		Where("chat_id = ? AND transport_message_id = ?", chatID, transportMsgID).
		First(&do).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrMessageNotFound
		}
		return nil, err
	}
	return r.toDomain(&do), nil
}

// GetLastMessage 获取用户在指定会话的最后一条消息
func (r *MessageRepository) GetLastMessage(ctx context.Context, userID string, chatID int64) (*domain.Message, error) {
	var do MessageDO
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND chat_id = ?", userID, chatID).
		Order("created_at DESC").
		First(&do).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrMessageNotFound
		}
		return nil, err
	}
	return r.toDomain(&do), nil
}

// AppendMessage 追加消息，记录其前驱消息ID用于子线程重建
func (r *MessageRepository) AppendMessage(ctx context.Context, threadID, userID string, chatID int64,
	transportMsgID int64, message *domain.Message, previous []*domain.Message, isSubThread bool) (*domain.Message, error) {
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
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}

	if err := r.db.WithContext(ctx).Create(r.toDataObject(&stored)).Error; err != nil {
		return nil, err
	}
	return &stored, nil
}

// toDataObject 转换为数据对象
func (r *MessageRepository) toDataObject(message *domain.Message) *MessageDO {
	return &MessageDO{
		ID:                 message.ID,
		ThreadID:           message.ThreadID,
		UserID:             message.UserID,
		ChatID:             message.ChatID,
		Role:               string(message.Role),
		Content:            message.Content,
		PartsJSON:          marshalOrEmpty(message.Parts),
		FunctionCallJSON:   marshalOrEmpty(message.FunctionCall),
		FunctionName:       message.FunctionName,
		PreviousIDsJSON:    marshalOrEmpty(message.PreviousMessageIDs),
		TransportMessageID: message.TransportMessageID,
		IsSubThread:        message.IsSubThread,
		CreatedAt:          message.CreatedAt,
	}
}

// toDomain 转换为领域对象
func (r *MessageRepository) toDomain(do *MessageDO) *domain.Message {
	message := &domain.Message{
		ID:                 do.ID,
		ThreadID:           do.ThreadID,
		UserID:             do.UserID,
		ChatID:             do.ChatID,
		Role:               domain.MessageRole(do.Role),
		Content:            do.Content,
		FunctionName:       do.FunctionName,
		TransportMessageID: do.TransportMessageID,
		IsSubThread:        do.IsSubThread,
		CreatedAt:          do.CreatedAt,
	}

	if do.PartsJSON != "" && do.PartsJSON != "null" {
		_ = json.Unmarshal([]byte(do.PartsJSON), &message.Parts)
	}
	if do.FunctionCallJSON != "" && do.FunctionCallJSON != "null" {
		var call domain.FunctionCall
		if err := json.Unmarshal([]byte(do.FunctionCallJSON), &call); err == nil && call.Name != "" {
			message.FunctionCall = &call
		}
	}
	if do.PreviousIDsJSON != "" && do.PreviousIDsJSON != "null" {
		_ = json.Unmarshal([]byte(do.PreviousIDsJSON), &message.PreviousMessageIDs)
	}
	return message
}

// marshalOrEmpty 序列化为JSON，失败或空值时返回 null
func marshalOrEmpty(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(data)
}

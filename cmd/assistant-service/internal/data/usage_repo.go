package data

import (
	"context"
	"time"

	"chatassistant/cmd/assistant-service/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CompletionUsageDO 补全用量数据对象
type CompletionUsageDO struct {
	ID               string `gorm:"primaryKey"`
	UserID           string `gorm:"index"`
	Model            string
	PromptTokens     int
	CompletionTokens int
	CreatedAt        time.Time `gorm:"index"`
}

// TableName 指定表名
func (CompletionUsageDO) TableName() string {
	return "assistant.completion_usage"
}

// TranscriptionUsageDO 语音转写用量数据对象
type TranscriptionUsageDO struct {
	ID        string `gorm:"primaryKey"`
	UserID    string `gorm:"index"`
	Seconds   int
	CreatedAt time.Time `gorm:"index"`
}

// TableName 指定表名
func (TranscriptionUsageDO) TableName() string {
	return "assistant.transcription_usage"
}

// UsageRepository 用量仓储实现
type UsageRepository struct {
	db *gorm.DB
}

// NewUsageRepository 创建用量仓储
func NewUsageRepository(db *gorm.DB) domain.UsageRepository {
	return &UsageRepository{
		db: db,
	}
}

// RecordCompletionUsage 记录一次补全用量
func (r *UsageRepository) RecordCompletionUsage(ctx context.Context, userID string, usage *domain.CompletionUsage) error {
	return r.db.WithContext(ctx).Create(&CompletionUsageDO{
		ID:               "usg_" + uuid.NewString(),
		UserID:           userID,
		Model:            usage.Model,
		PromptTokens:     usage.PromptTokens,
		CompletionTokens: usage.CompletionTokens,
		CreatedAt:        time.Now(),
	}).Error
}

// RecordTranscriptionUsage 记录一次语音转写用量（秒）
func (r *UsageRepository) RecordTranscriptionUsage(ctx context.Context, userID string, seconds int) error {
	return r.db.WithContext(ctx).Create(&TranscriptionUsageDO{
		ID:        "usg_" + uuid.NewString(),
		UserID:    userID,
		Seconds:   seconds,
		CreatedAt: time.Now(),
	}).Error
}

// GetMonthlyCompletionUsage 获取某月按模型汇总的补全用量
func (r *UsageRepository) GetMonthlyCompletionUsage(ctx context.Context, userID string, month time.Time) ([]*domain.CompletionUsage, error) {
	start, end := monthWindow(month)

	var rows []domain.CompletionUsage
	if err := r.db.WithContext(ctx).
		Model(&CompletionUsageDO{}).
		Select("model, SUM(prompt_tokens) AS prompt_tokens, SUM(completion_tokens) AS completion_tokens").
		Where("user_id = ? AND created_at >= ? AND created_at < ?", userID, start, end).
		Group("model").
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	usage := make([]*domain.CompletionUsage, len(rows))
	for i := range rows {
		usage[i] = &rows[i]
	}
	return usage, nil
}

// GetMonthlyTranscriptionSeconds 获取某月语音转写总秒数
func (r *UsageRepository) GetMonthlyTranscriptionSeconds(ctx context.Context, userID string, month time.Time) (int, error) {
	start, end := monthWindow(month)

	var total *int
	if err := r.db.WithContext(ctx).
		Model(&TranscriptionUsageDO{}).
		Select("SUM(seconds)").
		Where("user_id = ? AND created_at >= ? AND created_at < ?", userID, start, end).
		Scan(&total).Error; err != nil {
		return 0, err
	}
	if total == nil {
		return 0, nil
	}
	return *total, nil
}

// monthWindow 计算自然月的左闭右开时间窗口
func monthWindow(month time.Time) (time.Time, time.Time) {
	start := time.Date(month.Year(), month.Month(), 1, 0, 0, 0, 0, month.Location())
	return start, start.AddDate(0, 1, 0)
}

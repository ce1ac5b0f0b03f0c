package data

import (
	"context"
	"errors"
	"time"

	"chatassistant/cmd/assistant-service/internal/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ThreadDO 线程数据对象
type ThreadDO struct {
	ID        string `gorm:"primaryKey"`
	UserID    string `gorm:"index:idx_user_status"`
	ChatID    int64
	Status    string `gorm:"index:idx_user_status"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName 指定表名
func (ThreadDO) TableName() string {
	return "assistant.threads"
}

// ThreadRepository 线程仓储实现
type ThreadRepository struct {
	db *gorm.DB
}

// NewThreadRepository 创建线程仓储
func NewThreadRepository(db *gorm.DB) domain.ThreadRepository {
	return &ThreadRepository{
		db: db,
	}
}

// GetActiveThread 获取用户当前活跃线程
func (r *ThreadRepository) GetActiveThread(ctx context.Context, userID string) (*domain.Thread, error) {
	var do ThreadDO
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND status = ?", userID, string(domain.ThreadStatusActive)).
		First(&do).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrThreadNotFound
		}
		return nil, err
	}
	return r.toDomain(&do), nil
}

// GetOrCreateActiveThread 获取或原子创建活跃线程
// 行锁保证并发首条消息只创建一个线程
func (r *ThreadRepository) GetOrCreateActiveThread(ctx context.Context, userID string, chatID int64) (*domain.Thread, error) {
	var do ThreadDO
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ? AND status = ?", userID, string(domain.ThreadStatusActive)).
			First(&do).Error
		if err == nil {
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		thread := domain.NewThread(userID, chatID)
		do = *r.toDataObject(thread)
		return tx.Create(&do).Error
	})
	if err != nil {
		return nil, err
	}
	return r.toDomain(&do), nil
}

// ArchiveActiveThread 归档用户当前活跃线程
func (r *ThreadRepository) ArchiveActiveThread(ctx context.Context, userID string) error {
	return r.db.WithContext(ctx).
		Model(&ThreadDO{}).
		Where("user_id = ? AND status = ?", userID, string(domain.ThreadStatusActive)).
		Updates(map[string]any{
			"status":     string(domain.ThreadStatusArchived),
			"updated_at": time.Now(),
		}).Error
}

// toDataObject 转换为数据对象
func (r *ThreadRepository) toDataObject(thread *domain.Thread) *ThreadDO {
	return &ThreadDO{
		ID:        thread.ID,
		UserID:    thread.UserID,
		ChatID:    thread.ChatID,
		Status:    string(thread.Status),
		CreatedAt: thread.CreatedAt,
		UpdatedAt: thread.UpdatedAt,
	}
}

// toDomain 转换为领域对象
func (r *ThreadRepository) toDomain(do *ThreadDO) *domain.Thread {
	return &domain.Thread{
		ID:        do.ID,
		UserID:    do.UserID,
		ChatID:    do.ChatID,
		Status:    domain.ThreadStatus(do.Status),
		CreatedAt: do.CreatedAt,
		UpdatedAt: do.UpdatedAt,
	}
}

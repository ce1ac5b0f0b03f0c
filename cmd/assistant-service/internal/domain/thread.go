package domain

import (
	"time"

	"github.com/google/uuid"
)

// Thread 顶级对话线程聚合根
type Thread struct {
	ID        string
	UserID    string
	ChatID    int64
	Status    ThreadStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ThreadStatus 线程状态
type ThreadStatus string

const (
	ThreadStatusActive   ThreadStatus = "active"   // 活跃（每个用户至多一个）
	ThreadStatusArchived ThreadStatus = "archived" // 归档
)

// NewThread 创建活跃线程
func NewThread(userID string, chatID int64) *Thread {
	now := time.Now()
	return &Thread{
		ID:        "thr_" + uuid.NewString(),
		UserID:    userID,
		ChatID:    chatID,
		Status:    ThreadStatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Archive 归档线程
func (t *Thread) Archive() {
	t.Status = ThreadStatusArchived
	t.UpdatedAt = time.Now()
}

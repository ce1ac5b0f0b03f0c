package data

import (
	"context"
	"errors"
	"time"

	"chatassistant/cmd/assistant-service/internal/domain"

	"gorm.io/gorm"
)

// UserDO 用户画像数据对象
type UserDO struct {
	ID                  string `gorm:"primaryKey"`
	CurrentModel        string
	SystemMode          string
	DynamicDialog       bool
	StreamMessages      bool
	FunctionCallVerbose bool
	ForwardAsPrompt     bool
	UseFunctions        bool
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// TableName 指定表名
func (UserDO) TableName() string {
	return "assistant.users"
}

// UserRepository 用户画像仓储实现
type UserRepository struct {
	db *gorm.DB
}

// NewUserRepository 创建用户仓储
func NewUserRepository(db *gorm.DB) domain.UserRepository {
	return &UserRepository{
		db: db,
	}
}

// GetOrCreateUser 获取或创建用户画像，新用户使用默认设置
func (r *UserRepository) GetOrCreateUser(ctx context.Context, userID string) (*domain.UserProfile, error) {
	var do UserDO
	err := r.db.WithContext(ctx).Where("id = ?", userID).First(&do).Error
	if err == nil {
		return r.toDomain(&do), nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	now := time.Now()
	do = UserDO{
		ID:             userID,
		CurrentModel:   "gpt-3.5-turbo",
		SystemMode:     "assistant",
		StreamMessages: true,
		UseFunctions:   true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := r.db.WithContext(ctx).Create(&do).Error; err != nil {
		return nil, err
	}
	return r.toDomain(&do), nil
}

// UpdateUser 更新用户画像
func (r *UserRepository) UpdateUser(ctx context.Context, user *domain.UserProfile) error {
	do := r.toDataObject(user)
	do.UpdatedAt = time.Now()
	return r.db.WithContext(ctx).Save(do).Error
}

// toDataObject 转换为数据对象
func (r *UserRepository) toDataObject(user *domain.UserProfile) *UserDO {
	return &UserDO{
		ID:                  user.ID,
		CurrentModel:        user.CurrentModel,
		SystemMode:          user.SystemMode,
		DynamicDialog:       user.DynamicDialog,
		StreamMessages:      user.StreamMessages,
		FunctionCallVerbose: user.FunctionCallVerbose,
		ForwardAsPrompt:     user.ForwardAsPrompt,
		UseFunctions:        user.UseFunctions,
		CreatedAt:           user.CreatedAt,
		UpdatedAt:           user.UpdatedAt,
	}
}

// toDomain 转换为领域对象
func (r *UserRepository) toDomain(do *UserDO) *domain.UserProfile {
	return &domain.UserProfile{
		ID:                  do.ID,
		CurrentModel:        do.CurrentModel,
		SystemMode:          do.SystemMode,
		DynamicDialog:       do.DynamicDialog,
		StreamMessages:      do.StreamMessages,
		FunctionCallVerbose: do.FunctionCallVerbose,
		ForwardAsPrompt:     do.ForwardAsPrompt,
		UseFunctions:        do.UseFunctions,
		CreatedAt:           do.CreatedAt,
		UpdatedAt:           do.UpdatedAt,
	}
}

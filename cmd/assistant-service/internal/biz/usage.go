package biz

import (
	"context"
	"fmt"
	"time"

	"chatassistant/cmd/assistant-service/internal/domain"
)

// UsageReport 用户当月用量汇总
type UsageReport struct {
	Month                time.Time
	Completions          []*domain.CompletionUsage
	TranscriptionSeconds int
}

// UsageUsecase 用量查询用例
// 金额换算由计费协作方负责，这里只暴露Token与秒数
type UsageUsecase struct {
	usageRepo domain.UsageRepository
	now       func() time.Time
}

// NewUsageUsecase 创建用量用例
func NewUsageUsecase(usageRepo domain.UsageRepository) *UsageUsecase {
	return &UsageUsecase{
		usageRepo: usageRepo,
		now:       time.Now,
	}
}

// GetCurrentMonthReport 获取当月用量报告
func (uc *UsageUsecase) GetCurrentMonthReport(ctx context.Context, userID string) (*UsageReport, error) {
	month := uc.now()

	completions, err := uc.usageRepo.GetMonthlyCompletionUsage(ctx, userID, month)
	if err != nil {
		return nil, fmt.Errorf("get completion usage: %w", err)
	}

	seconds, err := uc.usageRepo.GetMonthlyTranscriptionSeconds(ctx, userID, month)
	if err != nil {
		return nil, fmt.Errorf("get transcription usage: %w", err)
	}

	return &UsageReport{
		Month:                month,
		Completions:          completions,
		TranscriptionSeconds: seconds,
	}, nil
}

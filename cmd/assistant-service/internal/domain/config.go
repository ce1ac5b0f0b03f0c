package domain

import (
	"fmt"
	"time"
)

// ContextConfiguration 按模型的上下文预算常量，每次请求解析一次
type ContextConfiguration struct {
	ModelName string

	// 长期记忆预算（基于向量检索的扩展位，当前核心未使用）
	LongTermMemoryTokens int
	// 短期记忆预算：超过该Token数触发摘要压缩
	ShortTermMemoryTokens int
	// 摘要目标Token长度
	SummaryLength int
}

// GetContextConfiguration 根据模型名解析上下文配置
// 未知模型名是致命的配置错误，绝不静默使用默认值
func GetContextConfiguration(model string) (*ContextConfiguration, error) {
	switch model {
	case "gpt-3.5-turbo":
		return &ContextConfiguration{
			ModelName:             model,
			LongTermMemoryTokens:  512,
			ShortTermMemoryTokens: 2560,
			SummaryLength:         512,
		}, nil
	case "gpt-3.5-turbo-16k":
		return &ContextConfiguration{
			ModelName:             model,
			LongTermMemoryTokens:  1024,
			ShortTermMemoryTokens: 4096,
			SummaryLength:         1024,
		}, nil
	case "gpt-4":
		return &ContextConfiguration{
			ModelName:             model,
			LongTermMemoryTokens:  512,
			ShortTermMemoryTokens: 2048,
			SummaryLength:         1024,
		}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownModel, model)
	}
}

// ProcessingConfig 请求处理配置，启动时从环境解析后显式传递
type ProcessingConfig struct {
	// 消息过期窗口：动态重建模式下早于该窗口的消息视为过期上下文
	MessageExpirationWindow time.Duration

	// 函数调用循环的最大深度
	MaxFunctionCalls int

	// 同一条流式消息两次编辑之间的最小间隔
	MinEditInterval time.Duration

	// 流式更新可见前的最小内容长度
	MinStreamedChars int
}

// DefaultProcessingConfig 默认处理配置
func DefaultProcessingConfig() *ProcessingConfig {
	return &ProcessingConfig{
		MessageExpirationWindow: time.Hour,
		MaxFunctionCalls:        5,
		MinEditInterval:         2 * time.Second,
		MinStreamedChars:        50,
	}
}

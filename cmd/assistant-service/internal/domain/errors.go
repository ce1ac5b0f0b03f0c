package domain

import "errors"

var (
	// ErrUnknownModel 未知模型名（配置错误，不重试）
	ErrUnknownModel = errors.New("unknown model name")

	// ErrThreadNotFound 线程未找到
	ErrThreadNotFound = errors.New("thread not found")

	// ErrMessageNotFound 消息未找到
	ErrMessageNotFound = errors.New("message not found")

	// ErrUserNotFound 用户未找到
	ErrUserNotFound = errors.New("user not found")

	// ErrContextNotResolved 上下文尚未解析就被查询（组件调用顺序错误）
	ErrContextNotResolved = errors.New("context not resolved: Resolve must be called first")

	// ErrFunctionLoopLimit 函数调用循环超过最大深度
	ErrFunctionLoopLimit = errors.New("function call loop limit exceeded")

	// ErrGenerationCancelled 生成被用户取消
	ErrGenerationCancelled = errors.New("generation cancelled")
)

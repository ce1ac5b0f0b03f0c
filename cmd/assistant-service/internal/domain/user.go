package domain

import "time"

// UserProfile 用户画像，决定每次请求的模型与处理模式
type UserProfile struct {
	ID                  string
	CurrentModel        string
	SystemMode          string
	DynamicDialog       bool // true 使用回复链动态重建上下文，false 使用线性活跃线程
	StreamMessages      bool // true 流式投递，false 一次性投递
	FunctionCallVerbose bool // 函数调用时向用户发送过程通知
	ForwardAsPrompt     bool // 转发消息直接作为提问而不是仅追加上下文
	UseFunctions        bool
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

package biz

import (
	"context"
	"fmt"

	"chatassistant/cmd/assistant-service/internal/domain"

	"github.com/go-kratos/kratos/v2/log"
)

// GenerateFunc 一次模型调用：在当前上下文上生成终态助手消息
// 流式路径返回进行中消息的传输ID，非流式返回 domain.TransportIDNone
type GenerateFunc func(ctx context.Context, messages []*domain.Message) (*domain.Message, int64, error)

// FunctionCallLoop 驱动模型反复调用直到返回不带函数调用的终态消息
// 显式迭代并带最大深度，绝不无界递归
type FunctionCallLoop struct {
	runner    FunctionRunner
	transport Transport
	maxDepth  int
	log       *log.Helper
}

// NewFunctionCallLoop 创建函数调用循环
func NewFunctionCallLoop(runner FunctionRunner, transport Transport, config *domain.ProcessingConfig, logger log.Logger) *FunctionCallLoop {
	return &FunctionCallLoop{
		runner:    runner,
		transport: transport,
		maxDepth:  config.MaxFunctionCalls,
		log:       log.NewHelper(log.With(logger, "module", "function-loop")),
	}
}

// Run 执行循环，返回终态助手消息与进行中消息的传输ID
// 无函数调用的响应立即终止，包括内容为空的退化情况
func (l *FunctionCallLoop) Run(ctx context.Context, pc *ProcessingContext, generate GenerateFunc) (*domain.Message, int64, error) {
	for depth := 0; depth <= l.maxDepth; depth++ {
		reply, inProgressID, err := generate(ctx, pc.Messages())
		if err != nil {
			return nil, domain.TransportIDNone, err
		}

		if !reply.HasFunctionCall() {
			return reply, inProgressID, nil
		}

		call := reply.FunctionCall
		l.log.WithContext(ctx).Infof("model requested function %s (depth %d/%d)", call.Name, depth+1, l.maxDepth)

		// 执行失败折叠为结果文本，让模型有机会对错误做出反应
		result, err := l.runner.RunFunction(ctx, call.Name, call.Arguments)
		if err != nil {
			result = fmt.Sprintf("function %s failed: %v", call.Name, err)
		}

		notifyID := l.notifyVerbose(ctx, pc, call, result)

		// 助手的函数调用消息与函数结果消息都进入上下文后再次调用模型
		if _, err := pc.AddMessage(ctx, reply, domain.TransportIDNone); err != nil {
			return nil, domain.TransportIDNone, err
		}
		fnResult := domain.NewFunctionResultMessage(call.Name, result)
		if _, err := pc.AddMessage(ctx, fnResult, notifyID); err != nil {
			return nil, domain.TransportIDNone, err
		}
	}

	return nil, domain.TransportIDNone, domain.ErrFunctionLoopLimit
}

// notifyVerbose 按用户开关发送函数调用过程通知
// 旁路通知尽力而为：投递失败只记录日志，不阻塞循环
func (l *FunctionCallLoop) notifyVerbose(ctx context.Context, pc *ProcessingContext, call *domain.FunctionCall, result string) int64 {
	if !pc.User().FunctionCallVerbose {
		return domain.TransportIDNone
	}

	text := fmt.Sprintf("Function call: %s(%s)\n\n%s", call.Name, call.Arguments, result)
	if max := l.transport.MaxMessageLength(); len(text) > max {
		text = text[:max]
	}

	id, err := l.transport.Send(ctx, pc.ChatID(), text, nil)
	if err != nil {
		l.log.WithContext(ctx).Warnf("function call notification rejected: %v", err)
		return domain.TransportIDNone
	}
	return id
}

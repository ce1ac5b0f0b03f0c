package service

import (
	"context"
	"fmt"
	"time"

	"chatassistant/cmd/assistant-service/internal/biz"
	"chatassistant/cmd/assistant-service/internal/domain"

	"github.com/go-kratos/kratos/v2/log"
)

// 处理期间输入中状态的刷新间隔（多数平台5秒后自动消失）
const typingRefreshInterval = 5 * time.Second

// AssistantService 助手应用服务：入站消息的编排入口
type AssistantService struct {
	processor *biz.MessageProcessor
	usage     *biz.UsageUsecase
	users     domain.UserRepository
	threads   domain.ThreadRepository
	usageRepo domain.UsageRepository
	transport biz.Transport
	cancels   *biz.CancelRegistry
	log       *log.Helper
}

// NewAssistantService 创建助手服务
func NewAssistantService(
	processor *biz.MessageProcessor,
	usage *biz.UsageUsecase,
	users domain.UserRepository,
	threads domain.ThreadRepository,
	usageRepo domain.UsageRepository,
	transport biz.Transport,
	cancels *biz.CancelRegistry,
	logger log.Logger,
) *AssistantService {
	return &AssistantService{
		processor: processor,
		usage:     usage,
		users:     users,
		threads:   threads,
		usageRepo: usageRepo,
		transport: transport,
		cancels:   cancels,
		log:       log.NewHelper(log.With(logger, "module", "assistant-service")),
	}
}

// HandleInbound 处理一条入站消息
// 处理失败时先尽力把错误回报到来源会话，再向调用方返回错误
func (s *AssistantService) HandleInbound(ctx context.Context, inbound *biz.InboundMessage) error {
	user, err := s.users.GetOrCreateUser(ctx, inbound.UserID)
	if err != nil {
		return fmt.Errorf("get or create user: %w", err)
	}

	// 语音消息按秒计量（尽力而为）
	if inbound.TranscriptSeconds > 0 {
		if err := s.usageRepo.RecordTranscriptionUsage(ctx, user.ID, inbound.TranscriptSeconds); err != nil {
			s.log.WithContext(ctx).Warnf("record transcription usage failed: %v", err)
		}
	}

	// 转发的消息默认只进上下文，不触发回复
	if inbound.IsForward && !user.ForwardAsPrompt {
		return s.processor.AppendContextOnly(ctx, user, inbound)
	}

	stopTyping := s.startTypingWorker(ctx, inbound.ChatID)
	defer stopTyping()

	if err := s.processor.Process(ctx, user, inbound); err != nil {
		s.reportError(ctx, inbound.ChatID, err)
		return err
	}
	return nil
}

// ResetThread 归档用户当前活跃线程，下一条消息从空上下文开始
// 动态重建模式下线程实体不参与上下文，归档只有提示意义
func (s *AssistantService) ResetThread(ctx context.Context, userID string) (string, error) {
	user, err := s.users.GetOrCreateUser(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("get or create user: %w", err)
	}

	if err := s.threads.ArchiveActiveThread(ctx, userID); err != nil {
		return "", fmt.Errorf("archive active thread: %w", err)
	}

	if user.DynamicDialog {
		return "Conversation reset. Note: in dynamic dialog mode context follows reply chains, so reply to an older message to continue it.", nil
	}
	return "Conversation reset. Starting fresh.", nil
}

// CancelGeneration 中止指定会话进行中的生成（取消按钮的回调入口）
// 已产出的部分内容由处理管线作为终态投递
func (s *AssistantService) CancelGeneration(ctx context.Context, chatID int64) string {
	if s.cancels.Cancel(chatID) {
		s.log.WithContext(ctx).Infof("generation cancelled for chat %d", chatID)
		return "Generation cancelled."
	}
	return "No generation in progress."
}

// GetUsage 获取用户当月用量报告
func (s *AssistantService) GetUsage(ctx context.Context, userID string) (*biz.UsageReport, error) {
	return s.usage.GetCurrentMonthReport(ctx, userID)
}

// SettingsPatch 用户设置增量更新，nil 字段保持不变
type SettingsPatch struct {
	CurrentModel        *string
	SystemMode          *string
	DynamicDialog       *bool
	StreamMessages      *bool
	FunctionCallVerbose *bool
	ForwardAsPrompt     *bool
	UseFunctions        *bool
}

// UpdateSettings 更新用户设置
// 模型名先经过配置解析验证，未知模型直接拒绝
func (s *AssistantService) UpdateSettings(ctx context.Context, userID string, patch *SettingsPatch) (*domain.UserProfile, error) {
	user, err := s.users.GetOrCreateUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get or create user: %w", err)
	}

	if patch.CurrentModel != nil {
		if _, err := domain.GetContextConfiguration(*patch.CurrentModel); err != nil {
			return nil, err
		}
		user.CurrentModel = *patch.CurrentModel
	}
	if patch.SystemMode != nil {
		user.SystemMode = *patch.SystemMode
	}
	if patch.DynamicDialog != nil {
		user.DynamicDialog = *patch.DynamicDialog
	}
	if patch.StreamMessages != nil {
		user.StreamMessages = *patch.StreamMessages
	}
	if patch.FunctionCallVerbose != nil {
		user.FunctionCallVerbose = *patch.FunctionCallVerbose
	}
	if patch.ForwardAsPrompt != nil {
		user.ForwardAsPrompt = *patch.ForwardAsPrompt
	}
	if patch.UseFunctions != nil {
		user.UseFunctions = *patch.UseFunctions
	}

	if err := s.users.UpdateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("update user: %w", err)
	}
	return user, nil
}

// startTypingWorker 周期性刷新输入中状态，返回停止函数
func (s *AssistantService) startTypingWorker(ctx context.Context, chatID int64) func() {
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(typingRefreshInterval)
		defer ticker.Stop()

		if err := s.transport.SendTyping(ctx, chatID); err != nil {
			s.log.WithContext(ctx).Debugf("send typing failed: %v", err)
		}
		for {
			select {
			case <-ticker.C:
				if err := s.transport.SendTyping(ctx, chatID); err != nil {
					s.log.WithContext(ctx).Debugf("send typing failed: %v", err)
				}
			case <-done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
	return func() { close(done) }
}

// reportError 把处理失败回报到来源会话（尽力而为）
func (s *AssistantService) reportError(ctx context.Context, chatID int64, cause error) {
	text := fmt.Sprintf("Something went wrong while answering: %v", cause)
	if max := s.transport.MaxMessageLength(); len(text) > max {
		text = text[:max]
	}
	if _, err := s.transport.Send(ctx, chatID, text, nil); err != nil {
		s.log.WithContext(ctx).Warnf("report error to chat %d failed: %v", chatID, err)
	}
}

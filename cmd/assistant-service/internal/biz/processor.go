package biz

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"chatassistant/cmd/assistant-service/internal/domain"

	"github.com/go-kratos/kratos/v2/log"
)

// MessageProcessor 单条入站消息的处理管线：
// 线程解析 → 上下文窗口化 → 模型调用（函数调用循环）→ 增量/分段投递 → 回写历史
type MessageProcessor struct {
	linear      *LinearThreadResolver
	dynamic     *DynamicThreadResolver
	windower    *ContextWindower
	loop        *FunctionCallLoop
	deliverer   *StreamDeliverer
	cancels     *CancelRegistry
	llm         LLMClient
	runner      FunctionRunner
	transport   Transport
	messageRepo domain.MessageRepository
	usageRepo   domain.UsageRepository
	log         *log.Helper
}

// NewMessageProcessor 创建消息处理器
func NewMessageProcessor(
	linear *LinearThreadResolver,
	dynamic *DynamicThreadResolver,
	windower *ContextWindower,
	loop *FunctionCallLoop,
	deliverer *StreamDeliverer,
	cancels *CancelRegistry,
	llm LLMClient,
	runner FunctionRunner,
	transport Transport,
	messageRepo domain.MessageRepository,
	usageRepo domain.UsageRepository,
	logger log.Logger,
) *MessageProcessor {
	return &MessageProcessor{
		linear:      linear,
		dynamic:     dynamic,
		windower:    windower,
		loop:        loop,
		deliverer:   deliverer,
		cancels:     cancels,
		llm:         llm,
		runner:      runner,
		transport:   transport,
		messageRepo: messageRepo,
		usageRepo:   usageRepo,
		log:         log.NewHelper(log.With(logger, "module", "message-processor")),
	}
}

// Process 处理一条需要模型回复的入站消息
func (p *MessageProcessor) Process(ctx context.Context, user *domain.UserProfile, inbound *InboundMessage) error {
	pc, err := p.buildContext(ctx, user, inbound)
	if err != nil {
		return err
	}

	userMsg := buildUserMessage(inbound)
	if _, err := pc.AddMessage(ctx, userMsg, inbound.TransportMessageID); err != nil {
		return err
	}

	schemas := p.functionSchemas(ctx, user)

	generate := p.generateOnce(user, schemas)
	if user.StreamMessages {
		generate = p.generateStream(user, schemas, pc.ChatID())
	}

	// 生成用派生的可取消上下文，用户取消只中止生成：
	// 取消后的部分结果仍要在原始上下文里作为终态投递
	genCtx, release := p.cancels.Begin(ctx, pc.ChatID())
	defer release()

	reply, inProgressID, err := p.loop.Run(genCtx, pc, generate)
	if err != nil {
		if cause := context.Cause(genCtx); errors.Is(cause, domain.ErrGenerationCancelled) {
			return cause
		}
		return err
	}

	// 退化情况：函数调用后内容为空的终态消息，没有可见输出
	if reply.Content == "" {
		_, err := pc.AddMessage(ctx, reply, inProgressID)
		return err
	}

	return p.deliverFinal(ctx, pc, inbound, reply, inProgressID)
}

// AppendContextOnly 仅把消息追加进当前上下文（转发文本、语音转写等），不触发模型回复
func (p *MessageProcessor) AppendContextOnly(ctx context.Context, user *domain.UserProfile, inbound *InboundMessage) error {
	pc, err := p.buildContext(ctx, user, inbound)
	if err != nil {
		return err
	}
	_, err = pc.AddMessage(ctx, buildUserMessage(inbound), inbound.TransportMessageID)
	return err
}

// buildContext 解析线程并把上下文收敛到预算内
func (p *MessageProcessor) buildContext(ctx context.Context, user *domain.UserProfile, inbound *InboundMessage) (*ProcessingContext, error) {
	conf, err := domain.GetContextConfiguration(user.CurrentModel)
	if err != nil {
		return nil, err
	}

	var resolver ThreadResolver = p.linear
	if user.DynamicDialog {
		resolver = p.dynamic
	}
	resolved, err := resolver.Resolve(ctx, inbound)
	if err != nil {
		return nil, err
	}

	pc := NewProcessingContext(resolved, user, conf, p.messageRepo)
	if err := p.windower.Window(ctx, pc, resolved); err != nil {
		return nil, err
	}
	return pc, nil
}

// functionSchemas 获取暴露给模型的函数描述，失败时退化为不带函数继续
func (p *MessageProcessor) functionSchemas(ctx context.Context, user *domain.UserProfile) []FunctionSchema {
	if !user.UseFunctions || p.runner == nil {
		return nil
	}
	schemas, err := p.runner.Schemas(ctx)
	if err != nil {
		p.log.WithContext(ctx).Warnf("load function schemas failed, continuing without functions: %v", err)
		return nil
	}
	return schemas
}

// generateOnce 非流式生成
func (p *MessageProcessor) generateOnce(user *domain.UserProfile, schemas []FunctionSchema) GenerateFunc {
	return func(ctx context.Context, messages []*domain.Message) (*domain.Message, int64, error) {
		result, err := p.llm.Complete(ctx, &CompletionRequest{
			Model:     user.CurrentModel,
			Mode:      user.SystemMode,
			Messages:  messages,
			Functions: schemas,
		})
		if err != nil {
			return nil, domain.TransportIDNone, fmt.Errorf("completion: %w", err)
		}
		p.recordUsage(ctx, user.ID, result.Usage)
		return result.Message, domain.TransportIDNone, nil
	}
}

// generateStream 流式生成并增量投递
func (p *MessageProcessor) generateStream(user *domain.UserProfile, schemas []FunctionSchema, chatID int64) GenerateFunc {
	return func(ctx context.Context, messages []*domain.Message) (*domain.Message, int64, error) {
		events, errs := p.llm.CompleteStream(ctx, &CompletionRequest{
			Model:     user.CurrentModel,
			Mode:      user.SystemMode,
			Messages:  messages,
			Functions: schemas,
		})

		reply, messageID, err := p.deliverer.Deliver(ctx, chatID, events, errs)
		if err != nil {
			return nil, domain.TransportIDNone, err
		}

		// 流式响应拿不到后端的精确用量，按本地计量估算
		p.recordUsage(ctx, user.ID, &domain.CompletionUsage{
			Model:            user.CurrentModel,
			PromptTokens:     domain.CountPromptTokens(messages),
			CompletionTokens: domain.EstimateTextTokens(reply.Content),
		})
		return reply, messageID, nil
	}
}

// deliverFinal 最终投递：超长切分，首段复用进行中的流式消息
func (p *MessageProcessor) deliverFinal(ctx context.Context, pc *ProcessingContext, inbound *InboundMessage, reply *domain.Message, inProgressID int64) error {
	parts := SplitMessage(reply, p.transport.MaxMessageLength())

	var previous *domain.Message
	for i, part := range parts {
		opts := &SendOptions{Markdown: containsCodeBlock(part.Content)}
		if inbound.IsReply() {
			opts.ReplyToTransportID = inbound.ReplyToTransportID
		}

		var transportID int64
		var err error
		if i == 0 && inProgressID != domain.TransportIDNone {
			transportID = inProgressID
			err = p.editWithFallback(ctx, pc.ChatID(), inProgressID, part.Content, opts)
		} else {
			transportID, err = p.sendWithFallback(ctx, pc.ChatID(), part.Content, opts)
		}
		if err != nil {
			// 主响应投递失败必须向上传播，不同于旁路通知
			return fmt.Errorf("deliver response part %d/%d: %w", i+1, len(parts), err)
		}

		if i == 0 {
			previous, err = pc.AddMessage(ctx, part, transportID)
		} else {
			previous, err = pc.AddMessageAfter(ctx, part, transportID, previous)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// sendWithFallback 发送消息，Markdown 被传输层拒绝时降级为纯文本重发一次
func (p *MessageProcessor) sendWithFallback(ctx context.Context, chatID int64, text string, opts *SendOptions) (int64, error) {
	id, err := p.transport.Send(ctx, chatID, text, opts)
	if err != nil && opts.Markdown {
		plain := *opts
		plain.Markdown = false
		p.log.WithContext(ctx).Warnf("markdown send rejected, retrying as plain text: %v", err)
		return p.transport.Send(ctx, chatID, text, &plain)
	}
	return id, err
}

// editWithFallback 编辑消息，Markdown 被拒绝时降级为纯文本重试一次
func (p *MessageProcessor) editWithFallback(ctx context.Context, chatID int64, transportMsgID int64, text string, opts *SendOptions) error {
	err := p.transport.Edit(ctx, chatID, transportMsgID, text, opts)
	if err != nil && opts.Markdown {
		plain := *opts
		plain.Markdown = false
		p.log.WithContext(ctx).Warnf("markdown edit rejected, retrying as plain text: %v", err)
		return p.transport.Edit(ctx, chatID, transportMsgID, text, &plain)
	}
	return err
}

// recordUsage 记录补全用量（尽力而为，不阻塞回复）
func (p *MessageProcessor) recordUsage(ctx context.Context, userID string, usage *domain.CompletionUsage) {
	if usage == nil || p.usageRepo == nil {
		return
	}
	if err := p.usageRepo.RecordCompletionUsage(ctx, userID, usage); err != nil {
		p.log.WithContext(ctx).Warnf("record completion usage failed: %v", err)
	}
}

// buildUserMessage 把入站消息转换为用户角色的历史消息
func buildUserMessage(inbound *InboundMessage) *domain.Message {
	msg := domain.NewUserMessage(inbound.Text)
	msg.Parts = inbound.Parts
	return msg
}

// containsCodeBlock 内容是否包含代码块（决定是否按 Markdown 投递）
func containsCodeBlock(content string) bool {
	return strings.Contains(content, "```")
}

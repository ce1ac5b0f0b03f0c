package biz

import (
	"context"
	"fmt"

	"chatassistant/cmd/assistant-service/internal/domain"

	"github.com/go-kratos/kratos/v2/log"
)

// SummaryPrefix 合成摘要消息的固定前缀
const SummaryPrefix = "Summarized previous conversation:"

// Summarizer 把一段较旧的消息压缩为一条合成消息
type Summarizer struct {
	llm         LLMClient
	messageRepo domain.MessageRepository
	log         *log.Helper
}

// NewSummarizer 创建摘要器
func NewSummarizer(llm LLMClient, messageRepo domain.MessageRepository, logger log.Logger) *Summarizer {
	return &Summarizer{
		llm:         llm,
		messageRepo: messageRepo,
		log:         log.NewHelper(log.With(logger, "module", "summarizer")),
	}
}

// Summarize 调用模型后端生成不超过 SummaryLength 的摘要，包装为用户角色消息持久化
// 摘要消息没有前驱（终结未来的回溯）且使用哨兵传输ID（从未真正投递）
// 后端调用失败原样向上传播，这一层不编造摘要
func (s *Summarizer) Summarize(ctx context.Context, pc *ProcessingContext, messages []*domain.Message) (*domain.Message, error) {
	conf := pc.Config()

	text, err := s.llm.Summarize(ctx, messages, conf.ModelName, conf.SummaryLength)
	if err != nil {
		return nil, fmt.Errorf("summarize messages: %w", err)
	}

	summary := domain.NewUserMessage(fmt.Sprintf("%s\n%s", SummaryPrefix, text))
	stored, err := s.messageRepo.AppendMessage(
		ctx, pc.ThreadID(), pc.User().ID, pc.ChatID(),
		domain.TransportIDNone, summary, nil, false,
	)
	if err != nil {
		return nil, fmt.Errorf("persist summary message: %w", err)
	}

	s.log.WithContext(ctx).Infof("summarized %d messages into %s", len(messages), stored.ID)
	return stored, nil
}

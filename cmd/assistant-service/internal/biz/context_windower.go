package biz

import (
	"context"
	"time"

	"chatassistant/cmd/assistant-service/internal/domain"

	"github.com/go-kratos/kratos/v2/log"
)

// ContextWindower 把历史消息收敛到短期记忆预算内
// 超预算时把较旧的前缀摘要为一条合成消息，预算的一半留给原文保留的后缀
type ContextWindower struct {
	summarizer  *Summarizer
	config      *domain.ProcessingConfig
	countTokens func([]*domain.Message) int
	now         func() time.Time
	log         *log.Helper
}

// NewContextWindower 创建上下文窗口器
func NewContextWindower(summarizer *Summarizer, config *domain.ProcessingConfig, logger log.Logger) *ContextWindower {
	return &ContextWindower{
		summarizer:  summarizer,
		config:      config,
		countTokens: domain.CountPromptTokens,
		now:         time.Now,
		log:         log.NewHelper(log.With(logger, "module", "context-windower")),
	}
}

// Window 收敛上下文到预算内
// 1. 动态模式先按过期窗口过滤（完整重建之后过滤，绝不影响重建本身）
// 2. 预算内原样返回
// 3. 超预算时定位分割点，摘要前缀并置于保留后缀之前
func (w *ContextWindower) Window(ctx context.Context, pc *ProcessingContext, resolved *ResolvedContext) error {
	if pc == nil || resolved == nil {
		return domain.ErrContextNotResolved
	}
	messages := pc.Messages()

	if resolved.Dynamic {
		messages = w.filterExpired(messages)
	}
	if len(messages) == 0 {
		pc.SetMessages(nil)
		return nil
	}

	budget := pc.Config().ShortTermMemoryTokens
	total := w.countTokens(messages)
	if total < budget {
		pc.SetMessages(messages)
		return nil
	}

	toSummarize, retained := w.splitByTokenBudget(messages, budget/2)
	w.log.WithContext(ctx).Infof("context over budget: %d tokens >= %d, summarizing %d of %d messages",
		total, budget, len(toSummarize), len(messages))

	summary, err := w.summarizer.Summarize(ctx, pc, toSummarize)
	if err != nil {
		// 摘要失败向上传播，绝不用截断冒充摘要
		return err
	}

	windowed := make([]*domain.Message, 0, len(retained)+1)
	windowed = append(windowed, summary)
	windowed = append(windowed, retained...)
	pc.SetMessages(windowed)
	return nil
}

// filterExpired 过滤早于过期窗口的消息
func (w *ContextWindower) filterExpired(messages []*domain.Message) []*domain.Message {
	cutoff := w.now().Add(-w.config.MessageExpirationWindow)
	fresh := make([]*domain.Message, 0, len(messages))
	for _, m := range messages {
		if !m.CreatedAt.Before(cutoff) {
			fresh = append(fresh, m)
		}
	}
	return fresh
}

// splitByTokenBudget 从头扫描候选分割点，选择后缀成本不超过预算的最小下标
// 不存在这样的下标时整个列表作为待摘要前缀，保留后缀为空
func (w *ContextWindower) splitByTokenBudget(messages []*domain.Message, suffixBudget int) (toSummarize, retained []*domain.Message) {
	for split := 0; split < len(messages); split++ {
		if w.countTokens(messages[split:]) <= suffixBudget {
			return messages[:split], messages[split:]
		}
	}
	return messages, nil
}

package biz

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"chatassistant/cmd/assistant-service/internal/domain"

	"github.com/go-kratos/kratos/v2/log"
)

// ThreadResolver 为入站消息确定范围内的历史消息与归属线程
type ThreadResolver interface {
	Resolve(ctx context.Context, inbound *InboundMessage) (*ResolvedContext, error)
}

// SubThreadCache 子线程重建结果缓存
// 消息的前驱链写入后不可变，可以安全地按锚点消息ID缓存
type SubThreadCache interface {
	// Get 命中返回消息列表，未命中返回 (nil, nil)
	Get(ctx context.Context, anchorID string) ([]*domain.Message, error)

	// Set 写入缓存（尽力而为）
	Set(ctx context.Context, anchorID string, messages []*domain.Message) error
}

// LinearThreadResolver 线性线程解析器
// 非回复消息走用户唯一的活跃顶级线程（首次使用时创建）；
// 回复消息沿前驱链重建子线程
type LinearThreadResolver struct {
	threadRepo  domain.ThreadRepository
	messageRepo domain.MessageRepository
	cache       SubThreadCache
	log         *log.Helper
}

// NewLinearThreadResolver 创建线性线程解析器
func NewLinearThreadResolver(
	threadRepo domain.ThreadRepository,
	messageRepo domain.MessageRepository,
	cache SubThreadCache,
	logger log.Logger,
) *LinearThreadResolver {
	return &LinearThreadResolver{
		threadRepo:  threadRepo,
		messageRepo: messageRepo,
		cache:       cache,
		log:         log.NewHelper(log.With(logger, "module", "thread-resolver")),
	}
}

// Resolve 解析入站消息的上下文
func (r *LinearThreadResolver) Resolve(ctx context.Context, inbound *InboundMessage) (*ResolvedContext, error) {
	if inbound.IsReply() {
		return r.resolveSubThread(ctx, inbound)
	}
	return r.resolveMainThread(ctx, inbound)
}

// resolveMainThread 解析（或惰性创建）活跃顶级线程
func (r *LinearThreadResolver) resolveMainThread(ctx context.Context, inbound *InboundMessage) (*ResolvedContext, error) {
	thread, err := r.threadRepo.GetOrCreateActiveThread(ctx, inbound.UserID, inbound.ChatID)
	if err != nil {
		return nil, fmt.Errorf("get or create active thread: %w", err)
	}

	messages, err := r.messageRepo.ListThreadMessages(ctx, thread.ID)
	if err != nil {
		return nil, fmt.Errorf("list thread messages: %w", err)
	}

	return &ResolvedContext{
		ThreadID: thread.ID,
		ChatID:   inbound.ChatID,
		Messages: messages,
	}, nil
}

// resolveSubThread 从被回复消息沿前驱链重建子线程
// 空链不是错误：返回空消息列表
func (r *LinearThreadResolver) resolveSubThread(ctx context.Context, inbound *InboundMessage) (*ResolvedContext, error) {
	messages, err := reconstructChain(ctx, r.messageRepo, r.cache, r.log, inbound.ChatID, inbound.ReplyToTransportID)
	if err != nil {
		return nil, err
	}

	resolved := &ResolvedContext{
		ChatID:      inbound.ChatID,
		Messages:    messages,
		IsSubThread: true,
	}
	// 线程ID取自链上第一条消息，链为空时保持缺省
	if len(messages) > 0 {
		resolved.ThreadID = messages[0].ThreadID
	}
	return resolved, nil
}

// DynamicThreadResolver 动态线程解析器
// 不依赖线程实体：锚点为被回复消息或用户最后一条消息，沿前驱链重建上下文
type DynamicThreadResolver struct {
	messageRepo domain.MessageRepository
	cache       SubThreadCache
	log         *log.Helper
}

// NewDynamicThreadResolver 创建动态线程解析器
func NewDynamicThreadResolver(
	messageRepo domain.MessageRepository,
	cache SubThreadCache,
	logger log.Logger,
) *DynamicThreadResolver {
	return &DynamicThreadResolver{
		messageRepo: messageRepo,
		cache:       cache,
		log:         log.NewHelper(log.With(logger, "module", "thread-resolver")),
	}
}

// Resolve 解析入站消息的上下文
func (r *DynamicThreadResolver) Resolve(ctx context.Context, inbound *InboundMessage) (*ResolvedContext, error) {
	resolved := &ResolvedContext{
		ThreadID: DynamicThreadStub,
		ChatID:   inbound.ChatID,
		Dynamic:  true,
	}

	var anchor *domain.Message
	var err error
	if inbound.IsReply() {
		anchor, err = r.messageRepo.GetMessageByTransportID(ctx, inbound.ChatID, inbound.ReplyToTransportID)
	} else {
		anchor, err = r.messageRepo.GetLastMessage(ctx, inbound.UserID, inbound.ChatID)
	}
	if err != nil {
		if errors.Is(err, domain.ErrMessageNotFound) {
			// 没有历史：空上下文
			return resolved, nil
		}
		return nil, fmt.Errorf("resolve anchor message: %w", err)
	}

	messages, err := collectPredecessors(ctx, r.messageRepo, r.cache, r.log, anchor)
	if err != nil {
		return nil, err
	}
	resolved.Messages = messages
	return resolved, nil
}

// reconstructChain 按传输层消息ID定位锚点并重建前驱链
func reconstructChain(
	ctx context.Context,
	repo domain.MessageRepository,
	cache SubThreadCache,
	logger *log.Helper,
	chatID int64,
	transportMsgID int64,
) ([]*domain.Message, error) {
	anchor, err := repo.GetMessageByTransportID(ctx, chatID, transportMsgID)
	if err != nil {
		if errors.Is(err, domain.ErrMessageNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get message by transport id: %w", err)
	}
	return collectPredecessors(ctx, repo, cache, logger, anchor)
}

// collectPredecessors 从锚点向后收集前驱消息，直到没有前驱为止
// 返回时间正序的完整链（含锚点）。过期过滤在窗口化阶段进行，不在这里：
// 先完整重建再过滤，过滤绝不中断回溯本身
func collectPredecessors(
	ctx context.Context,
	repo domain.MessageRepository,
	cache SubThreadCache,
	logger *log.Helper,
	anchor *domain.Message,
) ([]*domain.Message, error) {
	if anchor == nil {
		return nil, nil
	}

	if cache != nil {
		if cached, err := cache.Get(ctx, anchor.ID); err != nil {
			logger.WithContext(ctx).Warnf("sub-thread cache get failed: %v", err)
		} else if cached != nil {
			return cached, nil
		}
	}

	collected := map[string]*domain.Message{anchor.ID: anchor}
	frontier := anchor.PreviousMessageIDs

	for len(frontier) > 0 {
		var missing []string
		for _, id := range frontier {
			if _, ok := collected[id]; !ok {
				missing = append(missing, id)
			}
		}
		if len(missing) == 0 {
			break
		}

		batch, err := repo.GetMessagesByIDs(ctx, missing)
		if err != nil {
			return nil, fmt.Errorf("get predecessor messages: %w", err)
		}

		frontier = nil
		for _, m := range batch {
			collected[m.ID] = m
			frontier = append(frontier, m.PreviousMessageIDs...)
		}
	}

	messages := make([]*domain.Message, 0, len(collected))
	for _, m := range collected {
		messages = append(messages, m)
	}
	sort.Slice(messages, func(i, j int) bool {
		return messages[i].CreatedAt.Before(messages[j].CreatedAt)
	})

	if cache != nil {
		if err := cache.Set(ctx, anchor.ID, messages); err != nil {
			logger.WithContext(ctx).Warnf("sub-thread cache set failed: %v", err)
		}
	}
	return messages, nil
}

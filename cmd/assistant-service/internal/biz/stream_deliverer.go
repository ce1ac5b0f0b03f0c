package biz

import (
	"context"
	"errors"
	"strings"
	"time"

	"chatassistant/cmd/assistant-service/internal/domain"

	"github.com/go-kratos/kratos/v2/log"
)

// 冻结编辑后追加的进行中标记
const inProgressMarker = " ⏳..."

// ErrEmptyStream 生成流未产出任何事件
var ErrEmptyStream = errors.New("completion stream produced no events")

// StreamDeliverer 把逐Token生成流转换为有界的出站 send/edit 操作序列
//
// 对同一条出站消息的编辑通过最小编辑间隔串行化，这是正确性要求而不只是
// 限流优化：对同一传输消息的并发编辑会相互竞争
type StreamDeliverer struct {
	transport Transport
	config    *domain.ProcessingConfig
	now       func() time.Time
	log       *log.Helper
}

// NewStreamDeliverer 创建流式投递器
func NewStreamDeliverer(transport Transport, config *domain.ProcessingConfig, logger log.Logger) *StreamDeliverer {
	return &StreamDeliverer{
		transport: transport,
		config:    config,
		now:       time.Now,
		log:       log.NewHelper(log.With(logger, "module", "stream-deliverer")),
	}
}

// Deliver 消费生成流并增量更新出站消息
// 返回终态消息（完整未修剪内容）与最后使用的传输ID（从未发送时为哨兵值）
// 最终投递（编辑为成品或分段补发）由调用方完成
func (d *StreamDeliverer) Deliver(
	ctx context.Context,
	chatID int64,
	events <-chan *CompletionEvent,
	errs <-chan error,
) (*domain.Message, int64, error) {
	var last *CompletionEvent

	messageID := domain.TransportIDNone
	previousContent := ""
	var previousEdit time.Time

	// 后端流契约：第一个事件是引导事件，没有可用的部分内容
	first := true
	// 超过传输长度上限后冻结编辑，消息不再增长
	frozen := false
	// 函数调用路径在流结束后处理，不做增量更新
	functionCallSeen := false

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				// 生成源失败时先写错误再关闭事件通道，select 可能先命中
				// 关闭分支；通道关闭不等于成功，收尾前必须排空错误通道
				select {
				case err := <-errs:
					if err != nil {
						return nil, domain.TransportIDNone, err
					}
				default:
				}
				return d.finish(last, messageID)
			}
			last = ev

			if first {
				first = false
				continue
			}
			if frozen || functionCallSeen {
				continue
			}
			if ev.FunctionCall != nil {
				functionCallSeen = true
				continue
			}

			trimmed := trimPartialWord(ev.Content)
			if len(trimmed) < d.config.MinStreamedChars {
				continue
			}

			// 首个合格事件：发送带取消按钮的新消息
			if messageID == domain.TransportIDNone {
				id, err := d.transport.Send(ctx, chatID, ev.Content, &SendOptions{WithCancelAffordance: true})
				if err != nil {
					return nil, domain.TransportIDNone, err
				}
				// 多数客户端收到新消息后会清掉输入中状态，补一次
				if err := d.transport.SendTyping(ctx, chatID); err != nil {
					d.log.WithContext(ctx).Debugf("send typing failed: %v", err)
				}
				messageID = id
				previousContent = ev.Content
				previousEdit = d.now()
				continue
			}

			// 后续事件：内容有变化且距上次编辑超过最小间隔才重新编辑
			if trimmed == previousContent || d.now().Sub(previousEdit) < d.config.MinEditInterval {
				continue
			}

			display := trimmed
			if max := d.transport.MaxMessageLength(); len(display) > max {
				display = display[:max] + inProgressMarker
				frozen = true
			}
			if err := d.transport.Edit(ctx, chatID, messageID, display, &SendOptions{WithCancelAffordance: true}); err != nil {
				return nil, domain.TransportIDNone, err
			}
			previousContent = trimmed
			previousEdit = d.now()

		case err := <-errs:
			if err != nil {
				return nil, domain.TransportIDNone, err
			}

		case <-ctx.Done():
			// 取消信号由上游生成源观测并停止生成，部分结果作为终态投递
			if last != nil {
				return d.finish(last, messageID)
			}
			return nil, domain.TransportIDNone, context.Cause(ctx)
		}
	}
}

// finish 流结束：把最后一个事件包装为终态助手消息
func (d *StreamDeliverer) finish(last *CompletionEvent, messageID int64) (*domain.Message, int64, error) {
	if last == nil {
		return nil, domain.TransportIDNone, ErrEmptyStream
	}
	return domain.NewAssistantMessage(last.Content, last.FunctionCall), messageID, nil
}

// trimPartialWord 丢弃末尾可能是半截单词的片段
func trimPartialWord(content string) string {
	if content == "" {
		return ""
	}
	fields := strings.Split(strings.TrimSpace(content), " ")
	if len(fields) <= 1 {
		return ""
	}
	return strings.Join(fields[:len(fields)-1], " ")
}

package biz

import (
	"context"
	"sync"

	"chatassistant/cmd/assistant-service/internal/domain"
)

// CancelRegistry 按会话登记进行中的生成，供取消入口按ChatID中止
//
// 取消通过 context 的 cause 传播：被取消的生成上下文的 cause 是
// ErrGenerationCancelled，调用方据此与普通的上下文超时/断开区分
type CancelRegistry struct {
	mu     sync.Mutex
	active map[int64]*cancelEntry
}

type cancelEntry struct {
	cancel context.CancelCauseFunc
}

// NewCancelRegistry 创建取消登记表
func NewCancelRegistry() *CancelRegistry {
	return &CancelRegistry{active: make(map[int64]*cancelEntry)}
}

// Begin 为一次生成派生可取消的上下文并登记
// 返回的释放函数在生成结束后调用，注销登记并释放上下文资源
func (r *CancelRegistry) Begin(ctx context.Context, chatID int64) (context.Context, func()) {
	genCtx, cancel := context.WithCancelCause(ctx)
	entry := &cancelEntry{cancel: cancel}

	r.mu.Lock()
	r.active[chatID] = entry
	r.mu.Unlock()

	release := func() {
		r.mu.Lock()
		// 同会话更晚登记的生成不受早先那次的释放影响
		if r.active[chatID] == entry {
			delete(r.active, chatID)
		}
		r.mu.Unlock()
		cancel(nil)
	}
	return genCtx, release
}

// Cancel 取消指定会话进行中的生成，返回是否确有生成在进行
func (r *CancelRegistry) Cancel(chatID int64) bool {
	r.mu.Lock()
	entry, ok := r.active[chatID]
	if ok {
		delete(r.active, chatID)
	}
	r.mu.Unlock()

	if !ok {
		return false
	}
	entry.cancel(domain.ErrGenerationCancelled)
	return true
}

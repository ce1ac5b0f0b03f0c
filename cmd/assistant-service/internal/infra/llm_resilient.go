package infra

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"time"

	"chatassistant/cmd/assistant-service/internal/biz"
	"chatassistant/cmd/assistant-service/internal/domain"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/sony/gobreaker"
)

// RetryConfig 重试配置
type RetryConfig struct {
	MaxAttempts     int           // 最大尝试次数
	InitialInterval time.Duration // 初始退避时间
	MaxInterval     time.Duration // 最大退避时间
	Multiplier      float64       // 退避倍数
	RandomFactor    float64       // 随机因子（jitter）
}

// CircuitBreakerConfig 熔断器配置
type CircuitBreakerConfig struct {
	Name             string
	MaxRequests      uint32        // 半开状态允许的最大请求数
	Interval         time.Duration // 统计窗口
	Timeout          time.Duration // 熔断后恢复时间
	FailureThreshold float64       // 失败率阈值（0.0-1.0）
	MinRequests      uint32        // 达到后才计算失败率的最小请求数
}

// ResilientLLMClient 带熔断与重试的模型客户端
// 后端失败最终仍向上传播，这一层只负责吸收瞬时故障，不编造回复
type ResilientLLMClient struct {
	base           biz.LLMClient
	circuitBreaker *gobreaker.CircuitBreaker
	retryConfig    *RetryConfig
	log            *log.Helper
}

// NewResilientLLMClient 创建带弹性的模型客户端
func NewResilientLLMClient(base *LLMGatewayClient, cbConfig *CircuitBreakerConfig, retryConfig *RetryConfig, logger log.Logger) biz.LLMClient {
	if cbConfig == nil {
		cbConfig = &CircuitBreakerConfig{
			Name:             "llm-gateway",
			MaxRequests:      3,
			Interval:         10 * time.Second,
			Timeout:          30 * time.Second,
			FailureThreshold: 0.5,
			MinRequests:      3,
		}
	}
	if retryConfig == nil {
		retryConfig = &RetryConfig{
			MaxAttempts:     3,
			InitialInterval: 100 * time.Millisecond,
			MaxInterval:     10 * time.Second,
			Multiplier:      2.0,
			RandomFactor:    0.1,
		}
	}

	logHelper := log.NewHelper(log.With(logger, "module", "resilient-llm-client"))

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cbConfig.Name,
		MaxRequests: cbConfig.MaxRequests,
		Interval:    cbConfig.Interval,
		Timeout:     cbConfig.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cbConfig.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= cbConfig.FailureThreshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logHelper.Infof("circuit breaker %s: %s -> %s", name, from, to)
		},
	})

	return &ResilientLLMClient{
		base:           base,
		circuitBreaker: cb,
		retryConfig:    retryConfig,
		log:            logHelper,
	}
}

// Complete 非流式补全（熔断 + 指数退避重试）
func (c *ResilientLLMClient) Complete(ctx context.Context, req *biz.CompletionRequest) (*biz.CompletionResult, error) {
	return executeWithRetry(ctx, c, func() (*biz.CompletionResult, error) {
		result, err := c.circuitBreaker.Execute(func() (interface{}, error) {
			return c.base.Complete(ctx, req)
		})
		if err != nil {
			return nil, err
		}
		return result.(*biz.CompletionResult), nil
	})
}

// CompleteStream 流式补全
// 流一旦开始就不重试，熔断打开时立即失败
func (c *ResilientLLMClient) CompleteStream(ctx context.Context, req *biz.CompletionRequest) (<-chan *biz.CompletionEvent, <-chan error) {
	if c.circuitBreaker.State() == gobreaker.StateOpen {
		events := make(chan *biz.CompletionEvent)
		errs := make(chan error, 1)
		close(events)
		errs <- gobreaker.ErrOpenState
		return events, errs
	}
	return c.base.CompleteStream(ctx, req)
}

// Summarize 摘要（熔断 + 重试）
func (c *ResilientLLMClient) Summarize(ctx context.Context, messages []*domain.Message, model string, maxTokens int) (string, error) {
	return executeWithRetry(ctx, c, func() (string, error) {
		result, err := c.circuitBreaker.Execute(func() (interface{}, error) {
			return c.base.Summarize(ctx, messages, model, maxTokens)
		})
		if err != nil {
			return "", err
		}
		return result.(string), nil
	})
}

// executeWithRetry 指数退避重试，熔断打开与不可重试错误立即返回
func executeWithRetry[T any](ctx context.Context, c *ResilientLLMClient, operation func() (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 0; attempt < c.retryConfig.MaxAttempts; attempt++ {
		result, err := operation()
		if err == nil {
			if attempt > 0 {
				c.log.Infof("request succeeded after %d retries", attempt)
			}
			return result, nil
		}
		lastErr = err

		if errors.Is(err, gobreaker.ErrOpenState) || !isRetryable(err) {
			return zero, err
		}
		if attempt == c.retryConfig.MaxAttempts-1 {
			break
		}

		backoff := c.calculateBackoff(attempt)
		c.log.Infof("request failed (attempt %d/%d), retrying after %v: %v",
			attempt+1, c.retryConfig.MaxAttempts, backoff, err)

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}

	return zero, fmt.Errorf("request failed after %d attempts: %w", c.retryConfig.MaxAttempts, lastErr)
}

// calculateBackoff 指数退避 + jitter
func (c *ResilientLLMClient) calculateBackoff(attempt int) time.Duration {
	interval := float64(c.retryConfig.InitialInterval) * math.Pow(c.retryConfig.Multiplier, float64(attempt))
	if interval > float64(c.retryConfig.MaxInterval) {
		interval = float64(c.retryConfig.MaxInterval)
	}
	jitter := interval * c.retryConfig.RandomFactor
	interval = interval + (rand.Float64()*2-1)*jitter
	return time.Duration(interval)
}

// isRetryable 判断错误是否可重试
func isRetryable(err error) bool {
	retryable := []string{
		"timeout",
		"temporary",
		"connection refused",
		"EOF",
		"broken pipe",
		"status 429",
		"status 502",
		"status 503",
	}
	errStr := err.Error()
	for _, s := range retryable {
		if strings.Contains(errStr, s) {
			return true
		}
	}
	return false
}

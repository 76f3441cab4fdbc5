package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"coin-rebalancer/internal/config"
)

// RetryPolicy 以指数退避整体重试一个任务。
type RetryPolicy struct {
	MaxAttempts int
	MinDelay    time.Duration
	MaxDelay    time.Duration
	Logger      *zap.Logger
}

// NewRetryPolicy 由配置构造重试策略。
func NewRetryPolicy(cfg config.RetryConfig, logger *zap.Logger) RetryPolicy {
	return RetryPolicy{
		MaxAttempts: cfg.MaxAttempts,
		MinDelay:    cfg.MinDelay,
		MaxDelay:    cfg.MaxDelay,
		Logger:      logger,
	}
}

// Do 执行 fn，失败后等待并重试，直到成功、次数耗尽或 ctx 结束。
// 返回最后一次失败的错误。
func (p RetryPolicy) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	delay := p.MinDelay
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return fmt.Errorf("%s: 重试被取消: %w", op, lastErr)
			}
			return err
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if attempt == attempts {
			break
		}

		logger.Warn("任务失败，准备重试",
			zap.String("operation", op),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", attempts),
			zap.Duration("delay", delay),
			zap.Error(lastErr),
		)

		if delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return fmt.Errorf("%s: 重试被取消: %w", op, lastErr)
			case <-timer.C:
			}
		}

		delay *= 2
		if p.MaxDelay > 0 && delay > p.MaxDelay {
			delay = p.MaxDelay
		}
	}

	return fmt.Errorf("%s: 重试 %d 次后仍失败: %w", op, attempts, lastErr)
}

package binance

import (
	"context"
	"time"
)

type callOptions struct {
	// reinitialize 连接断开时除了同步时间, 还重建会话
	reinitialize bool
	// clockWrite fn 会修改客户端时间偏移, 需要独占客户端
	clockWrite bool
}

type callOption func(o *callOptions)

func withReinitialize() callOption {
	return func(o *callOptions) {
		o.reinitialize = true
	}
}

func withClockWrite() callOption {
	return func(o *callOptions) {
		o.clockWrite = true
	}
}

// call 对单个远程操作执行统一的重试策略:
//   - 结构性错误(HTML 代替 JSON)立即返回默认值
//   - 连接断开 / 时间漂移: 每次调用最多做一次恢复动作, 然后按瞬时错误处理
//   - 瞬时错误按 backoff 退避重试, 直到 maxAttempts
//   - 其余错误直接返回默认值
//
// 失败时返回 T 的零值和 *GatewayError.
func call[T any](ctx context.Context, g *Gateway, op string, fn func(ctx context.Context) (T, error), opts ...callOption) (T, error) {
	var (
		zero      T
		o         callOptions
		recovered bool
		resynced  bool
	)
	for _, opt := range opts {
		opt(&o)
	}

	for attempt := 0; ; attempt++ {
		attempts := attempt + 1
		if g.limiter != nil {
			if err := g.limiter.Wait(ctx); err != nil {
				return zero, g.fail(ctx, op, CategoryCanceled, attempt, err)
			}
		}

		unlock := g.lockClient(o.clockWrite)
		res, err := fn(ctx)
		unlock()
		if err == nil {
			if attempt > 0 {
				g.logger.Info("remote call recovered", "op", op, "attempts", attempts)
			}
			return res, nil
		}
		if ctx.Err() != nil {
			return zero, g.fail(ctx, op, CategoryCanceled, attempts, err)
		}

		category := Classify(err)
		switch category {
		case CategoryConnectionLost:
			if !recovered {
				recovered = true
				g.recoverConnection(ctx, op, o.reinitialize)
			}
		case CategoryClockDrift:
			if !resynced {
				resynced = true
				if _, syncErr := g.syncClock(ctx); syncErr != nil {
					g.logger.Warn("time resync failed", "op", op, "error", syncErr)
				}
			}
		}

		if !category.Retryable() || attempts >= g.maxAttempts {
			return zero, g.fail(ctx, op, category, attempts, err)
		}

		delay := g.backoff.ForAttempt(float64(attempt))
		g.logger.Warn("remote call failed, retrying",
			"op", op, "category", category, "attempt", attempts, "max_attempts", g.maxAttempts,
			"delay", delay, "error", err)
		if sleepErr := g.sleep(ctx, delay); sleepErr != nil {
			return zero, g.fail(ctx, op, CategoryCanceled, attempts, sleepErr)
		}
	}
}

// lockClient 签名请求会读取客户端的时间偏移, 与同步时间互斥
func (g *Gateway) lockClient(exclusive bool) func() {
	if exclusive {
		g.clientMu.Lock()
		return g.clientMu.Unlock
	}
	g.clientMu.RLock()
	return g.clientMu.RUnlock
}

func (g *Gateway) recoverConnection(ctx context.Context, op string, reinitialize bool) {
	g.logger.Warn("connection lost, resynchronizing", "op", op, "reinitialize", reinitialize)
	if _, err := g.syncClock(ctx); err != nil {
		g.logger.Warn("time resync after connection loss failed", "op", op, "error", err)
	}
	if reinitialize {
		_ = g.Reinitialize(ctx)
	}
}

func (g *Gateway) fail(ctx context.Context, op string, category Category, attempts int, err error) *GatewayError {
	gwErr := &GatewayError{Op: op, Category: category, Attempts: attempts, Err: err}
	if category == CategoryCanceled {
		g.logger.Info("remote call canceled", "op", op, "attempts", attempts)
	} else {
		g.logger.Error("remote call failed, returning default", "op", op, "category", category,
			"attempts", attempts, "error", err)
	}
	if g.faultHook != nil {
		g.faultHook(ctx, Fault{
			Op:       op,
			Category: category,
			Attempts: attempts,
			Err:      err,
			At:       time.Now(),
		})
	}
	return gwErr
}

// requireFutures 合约不可用时合约专属操作直接失败, 不发请求
func (g *Gateway) requireFutures(op string) error {
	if g.FuturesAvailable() {
		return nil
	}
	g.logger.Debug("skip futures operation in spot fallback", "op", op)
	return &GatewayError{Op: op, Category: CategoryPermission, Err: ErrFuturesUnavailable}
}

func invalidRequest(op string, err error) error {
	return &GatewayError{Op: op, Category: CategoryRejected, Err: err}
}

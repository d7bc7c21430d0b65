package schedule

import (
	"context"
	"log/slog"
	"time"
)

type Task interface {
	Run(ctx context.Context) error
	Name() string
}

// Every 立即执行一次 task, 之后每隔 interval 执行, 直到 ctx 结束.
// 单次失败只记录日志, 不会中断调度.
func Every(ctx context.Context, interval time.Duration, task Task, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		runOnce(ctx, task, logger)
		select {
		case <-ctx.Done():
			logger.Info("task stopped", "task", task.Name())
			return
		case <-ticker.C:
		}
	}
}

func runOnce(ctx context.Context, task Task, logger *slog.Logger) {
	start := time.Now()
	if err := task.Run(ctx); err != nil {
		logger.Warn("task failed", "task", task.Name(), "cost", time.Since(start), "error", err)
		return
	}
	logger.Debug("task done", "task", task.Name(), "cost", time.Since(start))
}

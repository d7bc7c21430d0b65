package schedule

import (
	"context"
	"log/slog"
	"time"

	"github.com/KNICEX/trading-gateway/internal/repo"
)

// FaultCleanupTask 清理超过保留期的降级记录
type FaultCleanupTask struct {
	faultRepo repo.FaultRepo
	retention time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

func NewFaultCleanupTask(faultRepo repo.FaultRepo, retention time.Duration, logger *slog.Logger) Task {
	return &FaultCleanupTask{
		faultRepo: faultRepo,
		retention: retention,
		logger:    logger,
		now:       time.Now,
	}
}

func (t *FaultCleanupTask) Run(ctx context.Context) error {
	deleted, err := t.faultRepo.DeleteBefore(ctx, t.now().Add(-t.retention))
	if err != nil {
		return err
	}
	if deleted > 0 {
		t.logger.Info("expired faults deleted", "count", deleted)
	}
	return nil
}

func (t *FaultCleanupTask) Name() string {
	return "fault cleanup task"
}

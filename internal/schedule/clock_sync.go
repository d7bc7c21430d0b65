package schedule

import (
	"context"
	"log/slog"
)

type ClockSynchronizer interface {
	SynchronizeClock(ctx context.Context) (int64, error)
}

// ClockSyncTask 定时同步交易所服务器时间, 避免长时间运行后出现 -1021
type ClockSyncTask struct {
	clock  ClockSynchronizer
	logger *slog.Logger
}

func NewClockSyncTask(clock ClockSynchronizer, logger *slog.Logger) Task {
	return &ClockSyncTask{
		clock:  clock,
		logger: logger,
	}
}

func (t *ClockSyncTask) Run(ctx context.Context) error {
	offset, err := t.clock.SynchronizeClock(ctx)
	if err != nil {
		return err
	}
	t.logger.Info("server time synchronized", "offset_ms", offset)
	return nil
}

func (t *ClockSyncTask) Name() string {
	return "clock sync task"
}

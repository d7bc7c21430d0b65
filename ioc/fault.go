package ioc

import (
	"context"
	"log/slog"

	"github.com/KNICEX/trading-gateway/internal/entity"
	"github.com/KNICEX/trading-gateway/internal/repo"
	"github.com/KNICEX/trading-gateway/internal/service/exchange/binance"
)

// NewFaultRecorder 把网关降级事件写入数据库, 写入失败只记日志
func NewFaultRecorder(faultRepo repo.FaultRepo, logger *slog.Logger, futuresAvailable func() bool) binance.FaultHook {
	return func(ctx context.Context, fault binance.Fault) {
		record := entity.Fault{
			Op:        fault.Op,
			Category:  fault.Category.String(),
			Attempts:  fault.Attempts,
			CreatedAt: fault.At,
		}
		if fault.Err != nil {
			record.Message = fault.Err.Error()
		}
		if futuresAvailable != nil {
			record.FuturesAvailable = futuresAvailable()
		}
		// 调用方的 context 可能已经取消, 记录不应该因此丢失
		if _, err := faultRepo.Create(context.WithoutCancel(ctx), record); err != nil {
			logger.Error("record gateway fault failed", "op", fault.Op, "error", err)
		}
	}
}

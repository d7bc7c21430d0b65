package repo

import (
	"context"
	"time"

	"github.com/KNICEX/trading-gateway/internal/entity"
	"gorm.io/gorm"
)

type FaultRepo interface {
	Create(ctx context.Context, fault entity.Fault) (int64, error)
	FindRecent(ctx context.Context, limit int) ([]entity.Fault, error)
	// CountByCategory since 之后各分类的降级次数
	CountByCategory(ctx context.Context, since time.Time) (map[string]int64, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

type faultRepo struct {
	db *gorm.DB
}

func NewFaultRepo(db *gorm.DB) FaultRepo {
	return &faultRepo{
		db: db,
	}
}

func (r *faultRepo) Create(ctx context.Context, fault entity.Fault) (int64, error) {
	if fault.CreatedAt.IsZero() {
		fault.CreatedAt = time.Now()
	}
	err := r.db.WithContext(ctx).Create(&fault).Error
	if err != nil {
		return 0, err
	}
	return fault.Id, nil
}

func (r *faultRepo) FindRecent(ctx context.Context, limit int) ([]entity.Fault, error) {
	var faults []entity.Fault
	err := r.db.WithContext(ctx).Order("created_at DESC").Order("id DESC").Limit(limit).Find(&faults).Error
	if err != nil {
		return nil, err
	}
	return faults, nil
}

func (r *faultRepo) CountByCategory(ctx context.Context, since time.Time) (map[string]int64, error) {
	type row struct {
		Category string
		Total    int64
	}
	var rows []row
	err := r.db.WithContext(ctx).Model(&entity.Fault{}).
		Select("category, count(*) AS total").
		Where("created_at >= ?", since).
		Group("category").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	res := make(map[string]int64, len(rows))
	for _, item := range rows {
		res[item.Category] = item.Total
	}
	return res, nil
}

func (r *faultRepo) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Where("created_at < ?", before).Delete(&entity.Fault{})
	return res.RowsAffected, res.Error
}

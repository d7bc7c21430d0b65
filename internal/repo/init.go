package repo

import (
	"github.com/KNICEX/trading-gateway/internal/entity"
	"gorm.io/gorm"
)

func InitTables(db *gorm.DB) error {
	return db.AutoMigrate(&entity.Fault{})
}

package ioc

import (
	"github.com/KNICEX/trading-gateway/internal/repo"
	"github.com/spf13/viper"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func InitDB() *gorm.DB {
	type Config struct {
		DSN string `mapstructure:"dsn"`
	}
	cfg := Config{DSN: "gateway.db"}
	if err := viper.UnmarshalKey("db", &cfg); err != nil {
		panic(err)
	}

	db, err := gorm.Open(sqlite.Open(cfg.DSN), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		panic(err)
	}
	if err := repo.InitTables(db); err != nil {
		panic(err)
	}
	return db
}

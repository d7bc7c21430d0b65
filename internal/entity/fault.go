package entity

import (
	"time"
)

// Fault 网关降级记录: 一次远程操作重试耗尽或被判定为不可重试
type Fault struct {
	Id       int64  `gorm:"primaryKey;autoIncrement"`
	Op       string `gorm:"index"`
	Category string `gorm:"index"`
	Attempts int
	Message  string
	// FuturesAvailable 记录时合约是否可用
	FuturesAvailable bool
	CreatedAt        time.Time `gorm:"index"`
}

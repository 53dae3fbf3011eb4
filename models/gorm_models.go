// models/gorm_models.go
package models

import (
	"gorm.io/gorm"
)

// EscapeRecord 对局记录模型：一局结束（逃脱、超时或空房）落一行
type EscapeRecord struct {
	gorm.Model
	RoomID    string `gorm:"index;not null"`
	Escaped   bool   `gorm:"not null"`
	Score     int    `gorm:"default:0"`
	TimeLeft  int    `gorm:"default:0"`
	HintsUsed int    `gorm:"default:0"`
	Duration  int    `gorm:"default:0"` // 对局时长(秒)
	Players   string `gorm:"type:jsonb"` // 参与玩家用户名, JSON数组
}

// persistence/interface.go
package persistence

import (
	"fmt"

	"github.com/wfunc/escaperoom/models"
)

// Database 对局记录存储接口。两个实现：原生SQL(lib/pq)和GORM。
type Database interface {
	SaveEscapeRecord(record *models.EscapeRecord) error
	Leaderboard(limit int) ([]models.EscapeRecord, error)
	RoomHistory(roomID string) ([]models.EscapeRecord, error)
	GlobalStats() (map[string]interface{}, error)
	Close() error
}

// 错误定义
var (
	ErrRecordNotFound = fmt.Errorf("record not found")
)

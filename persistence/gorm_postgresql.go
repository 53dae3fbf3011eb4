// persistence/gorm_postgresql.go
package persistence

import (
	"errors"
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/wfunc/escaperoom/models"
)

// GormPostgreSQL GORM实现
type GormPostgreSQL struct {
	db *gorm.DB
}

// NewGormPostgreSQL 创建GORM数据库连接并自动迁移表结构
func NewGormPostgreSQL(host string, port int, user, password, dbname string) (*GormPostgreSQL, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		host, port, user, password, dbname)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(25)

	if err := db.AutoMigrate(&models.EscapeRecord{}); err != nil {
		return nil, err
	}

	return &GormPostgreSQL{db: db}, nil
}

func (g *GormPostgreSQL) SaveEscapeRecord(record *models.EscapeRecord) error {
	return g.db.Create(record).Error
}

func (g *GormPostgreSQL) Leaderboard(limit int) ([]models.EscapeRecord, error) {
	var records []models.EscapeRecord
	err := g.db.
		Where("escaped = ?", true).
		Order("score DESC, created_at ASC").
		Limit(limit).
		Find(&records).Error
	return records, err
}

func (g *GormPostgreSQL) RoomHistory(roomID string) ([]models.EscapeRecord, error) {
	var records []models.EscapeRecord
	err := g.db.
		Where("room_id = ?", roomID).
		Order("created_at DESC").
		Find(&records).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRecordNotFound
	}
	return records, err
}

func (g *GormPostgreSQL) GlobalStats() (map[string]interface{}, error) {
	type row struct {
		Total   int
		Escapes int
		Best    float64
		Avg     float64
	}
	var r row
	err := g.db.Model(&models.EscapeRecord{}).
		Select(`COUNT(*) AS total,
                COUNT(*) FILTER (WHERE escaped) AS escapes,
                COALESCE(MAX(score) FILTER (WHERE escaped), 0) AS best,
                COALESCE(AVG(score) FILTER (WHERE escaped), 0) AS avg`).
		Scan(&r).Error
	if err != nil {
		return nil, err
	}

	return map[string]interface{}{
		"total_games": r.Total,
		"escapes":     r.Escapes,
		"best_score":  int(r.Best),
		"avg_score":   r.Avg,
	}, nil
}

func (g *GormPostgreSQL) Close() error {
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

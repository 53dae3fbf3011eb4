// persistence/postgresql.go
package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	// PostgreSQL 驱动
	_ "github.com/lib/pq"

	"github.com/wfunc/escaperoom/models"
)

// PostgreSQL 原生SQL实现
type PostgreSQL struct {
	db *sql.DB
}

// NewPostgreSQL 创建 PostgreSQL 数据库连接
func NewPostgreSQL(host string, port int, user, password, dbname string) (*PostgreSQL, error) {
	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		host, port, user, password, dbname)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	// 测试连接
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}

	// 设置连接池参数
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := initTables(db); err != nil {
		return nil, err
	}

	return &PostgreSQL{db: db}, nil
}

// initTables 初始化数据库表结构
func initTables(db *sql.DB) error {
	_, err := db.Exec(`
        CREATE TABLE IF NOT EXISTS escape_records (
            id SERIAL PRIMARY KEY,
            room_id TEXT NOT NULL,
            escaped BOOLEAN NOT NULL,
            score INTEGER DEFAULT 0,
            time_left INTEGER DEFAULT 0,
            hints_used INTEGER DEFAULT 0,
            duration INTEGER DEFAULT 0,
            players JSONB,
            created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
        )`)
	if err != nil {
		return err
	}

	_, err = db.Exec(`
        CREATE INDEX IF NOT EXISTS idx_escape_records_room_id
        ON escape_records (room_id)`)
	return err
}

// SaveEscapeRecord 落一行对局记录
func (p *PostgreSQL) SaveEscapeRecord(record *models.EscapeRecord) error {
	return p.db.QueryRow(`
        INSERT INTO escape_records (room_id, escaped, score, time_left, hints_used, duration, players)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        RETURNING id`,
		record.RoomID, record.Escaped, record.Score, record.TimeLeft,
		record.HintsUsed, record.Duration, record.Players,
	).Scan(&record.ID)
}

// Leaderboard 按得分倒序返回逃脱成功的对局
func (p *PostgreSQL) Leaderboard(limit int) ([]models.EscapeRecord, error) {
	rows, err := p.db.Query(`
        SELECT id, room_id, escaped, score, time_left, hints_used, duration, players, created_at
        FROM escape_records
        WHERE escaped = TRUE
        ORDER BY score DESC, created_at ASC
        LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanRecords(rows)
}

// RoomHistory 某房间ID的全部历史对局
func (p *PostgreSQL) RoomHistory(roomID string) ([]models.EscapeRecord, error) {
	rows, err := p.db.Query(`
        SELECT id, room_id, escaped, score, time_left, hints_used, duration, players, created_at
        FROM escape_records
        WHERE room_id = $1
        ORDER BY created_at DESC`, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanRecords(rows)
}

func scanRecords(rows *sql.Rows) ([]models.EscapeRecord, error) {
	var records []models.EscapeRecord
	for rows.Next() {
		var rec models.EscapeRecord
		var players sql.NullString
		if err := rows.Scan(&rec.ID, &rec.RoomID, &rec.Escaped, &rec.Score,
			&rec.TimeLeft, &rec.HintsUsed, &rec.Duration, &players, &rec.CreatedAt); err != nil {
			return nil, err
		}
		rec.Players = players.String
		records = append(records, rec)
	}
	return records, rows.Err()
}

// GlobalStats 全局统计：总局数、逃脱数、最高分、平均分
func (p *PostgreSQL) GlobalStats() (map[string]interface{}, error) {
	var total, escapes int
	var best, avg sql.NullFloat64

	err := p.db.QueryRow(`
        SELECT COUNT(*),
               COUNT(*) FILTER (WHERE escaped),
               MAX(score) FILTER (WHERE escaped),
               AVG(score) FILTER (WHERE escaped)
        FROM escape_records`).Scan(&total, &escapes, &best, &avg)
	if err != nil {
		return nil, err
	}

	return map[string]interface{}{
		"total_games": total,
		"escapes":     escapes,
		"best_score":  int(best.Float64),
		"avg_score":   avg.Float64,
	}, nil
}

func (p *PostgreSQL) Close() error {
	return p.db.Close()
}

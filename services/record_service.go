// services/record_service.go
package services

import (
	"encoding/json"

	"github.com/wfunc/escaperoom/models"
	"github.com/wfunc/escaperoom/persistence"
)

// RecordService 对局结果的读写封装，网关在房间停止时调用
type RecordService struct {
	db persistence.Database
}

func NewRecordService(db persistence.Database) *RecordService {
	return &RecordService{db: db}
}

// RecordGameEnd 由对局结束快照生成一条记录。duration 为对局耗时（秒）。
func (s *RecordService) RecordGameEnd(snap models.RoomSnapshot, duration int) error {
	usernames := make([]string, 0, len(snap.Players))
	for _, p := range snap.Players {
		usernames = append(usernames, p.Username)
	}
	playersJSON, err := json.Marshal(usernames)
	if err != nil {
		return err
	}

	record := &models.EscapeRecord{
		RoomID:    snap.RoomID,
		Escaped:   snap.PuzzleStage >= 8,
		Score:     snap.Score,
		TimeLeft:  snap.TimeLeft,
		HintsUsed: snap.HintsUsed,
		Duration:  duration,
		Players:   string(playersJSON),
	}
	return s.db.SaveEscapeRecord(record)
}

// Leaderboard 得分榜（仅逃脱成功的对局）
func (s *RecordService) Leaderboard(limit int) ([]models.EscapeRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	return s.db.Leaderboard(limit)
}

// RoomHistory 房间历史对局
func (s *RecordService) RoomHistory(roomID string) ([]models.EscapeRecord, error) {
	return s.db.RoomHistory(roomID)
}

// GlobalStats 全局统计
func (s *RecordService) GlobalStats() (map[string]interface{}, error) {
	return s.db.GlobalStats()
}

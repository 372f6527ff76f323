// Package archive 保存已結束對局的棋譜。
//
// 對局本身只活在記憶體中（重啟即消失）；關閉時的總結會非同步寫入這裡，
// 供事後查詢。寫入失敗只記錄日誌，不影響對局。
package archive

import (
	"context"
	"time"

	"github.com/koopa0/system-design/14-chess-session/internal/session"
)

// Game 一盤已歸檔的對局
type Game struct {
	SessionID     string     `json:"session_id"`
	Moves         []string   `json:"moves"`
	FinalPosition string     `json:"final_position"`
	Result        string     `json:"result"`
	Method        string     `json:"method,omitempty"`
	Reason        string     `json:"reason"`
	CreatedAt     time.Time  `json:"created_at"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	EndedAt       time.Time  `json:"ended_at"`
}

// FromSummary 由關閉總結建立歸檔紀錄
func FromSummary(sessionID string, sum *session.Summary) Game {
	result := sum.Outcome.Result
	if result == "" {
		result = "*"
	}

	moves := sum.Moves
	if moves == nil {
		moves = []string{}
	}

	return Game{
		SessionID:     sessionID,
		Moves:         moves,
		FinalPosition: sum.FinalPosition,
		Result:        result,
		Method:        sum.Outcome.Method,
		Reason:        sum.Reason,
		CreatedAt:     sum.CreatedAt,
		StartedAt:     sum.StartedAt,
		EndedAt:       sum.EndedAt,
	}
}

// Store 歸檔儲存
type Store interface {
	// Save 寫入（同一對局重複寫入會覆蓋）
	Save(ctx context.Context, g Game) error
	// Get 不存在時回傳 ErrGameNotArchived
	Get(ctx context.Context, sessionID string) (Game, error)
	// List 依結束時間新到舊
	List(ctx context.Context, limit int) ([]Game, error)
}

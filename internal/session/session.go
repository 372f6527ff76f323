// Package session 實現對局的生命週期與走子授權狀態機。
//
// 系統設計問題：
//
//	兩名玩家加上任意數量的觀戰者共享一盤棋，加入、走子、斷線事件彼此併發，
//	如何保證誰能走子、何時開局、何時關閉都只有一個正確答案？
//
// 設計方案：
//   - Registry：對局代號 → Session，負責建立與銷毀
//   - Matchmaker：隨機配對佇列，最多只有一個等待者
//   - Coordinator：加入 / 走子 / 斷線三種狀態轉換
//   - 鎖順序：Coordinator → Matchmaker → Session → Registry / 傳輸層
//
// 每個 Session 有自己的互斥鎖（單寫者），Coordinator 的鎖保護共享的註冊表與佇列。
package session

import (
	"sync"
	"time"

	"github.com/koopa0/system-design/14-chess-session/internal/rules"
)

// State 對局狀態
//
//	Empty → AwaitingOpponent → Active → Terminated
//	             ↑________________↓  （後手離開）
type State string

const (
	StateEmpty            State = "empty"
	StateAwaitingOpponent State = "awaiting_opponent"
	StateActive           State = "active"
	StateTerminated       State = "terminated"
)

// Session 一盤進行中或等待中的對局
//
// 除 ID 外的欄位都由 mu 保護；position 只會被規則引擎接受的走法替換。
type Session struct {
	ID string

	mu         sync.Mutex
	position   rules.Position
	players    map[rules.Side]ConnID
	spectators map[ConnID]struct{}
	active     bool
	closed     bool
	everSeated bool
	moves      []string
	outcome    rules.Outcome
	createdAt  time.Time
	startedAt  time.Time
}

func newSession(id string, pos rules.Position, now time.Time) *Session {
	return &Session{
		ID:         id,
		position:   pos,
		players:    make(map[rules.Side]ConnID, 2),
		spectators: make(map[ConnID]struct{}),
		createdAt:  now,
	}
}

// Snapshot 對局的唯讀快照
type Snapshot struct {
	ID                string        `json:"session_id"`
	State             State         `json:"state"`
	Active            bool          `json:"active"`
	FirstMoverSeated  bool          `json:"first_mover_seated"`
	SecondMoverSeated bool          `json:"second_mover_seated"`
	Spectators        int           `json:"spectators"`
	Position          string        `json:"position"`
	Turn              rules.Side    `json:"turn"`
	Moves             []string      `json:"moves"`
	Outcome           rules.Outcome `json:"outcome"`
	CreatedAt         time.Time     `json:"created_at"`
	StartedAt         *time.Time    `json:"started_at,omitempty"`
}

// Snapshot 取得快照
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot()
}

func (s *Session) snapshot() Snapshot {
	_, first := s.players[rules.FirstMover]
	_, second := s.players[rules.SecondMover]

	moves := make([]string, len(s.moves))
	copy(moves, s.moves)

	snap := Snapshot{
		ID:                s.ID,
		State:             s.state(),
		Active:            s.active,
		FirstMoverSeated:  first,
		SecondMoverSeated: second,
		Spectators:        len(s.spectators),
		Position:          s.position.String(),
		Turn:              s.position.Turn(),
		Moves:             moves,
		Outcome:           s.outcome,
		CreatedAt:         s.createdAt,
	}
	if !s.startedAt.IsZero() {
		started := s.startedAt
		snap.StartedAt = &started
	}
	return snap
}

func (s *Session) state() State {
	switch {
	case s.closed:
		return StateTerminated
	case s.active:
		return StateActive
	case len(s.players) > 0:
		return StateAwaitingOpponent
	default:
		return StateEmpty
	}
}

func (s *Session) occupant(side rules.Side) (ConnID, bool) {
	conn, ok := s.players[side]
	return conn, ok
}

// seatOf 連線坐在哪個座位
func (s *Session) seatOf(conn ConnID) (rules.Side, bool) {
	for side, c := range s.players {
		if c == conn {
			return side, true
		}
	}
	return "", false
}

func (s *Session) seat(side rules.Side, conn ConnID) {
	s.players[side] = conn
	s.everSeated = true
}

func (s *Session) vacate(side rules.Side) {
	delete(s.players, side)
}

// start 兩個座位都有人時開局
func (s *Session) start(now time.Time) {
	s.active = true
	if s.startedAt.IsZero() {
		s.startedAt = now
	}
}

// members 目前所有座位與觀戰者
func (s *Session) members() []ConnID {
	out := make([]ConnID, 0, len(s.players)+len(s.spectators))
	for _, c := range s.players {
		out = append(out, c)
	}
	for c := range s.spectators {
		out = append(out, c)
	}
	return out
}

func (s *Session) summary(reason string, now time.Time) *Summary {
	moves := make([]string, len(s.moves))
	copy(moves, s.moves)

	sum := &Summary{
		Moves:         moves,
		FinalPosition: s.position.String(),
		Outcome:       s.outcome,
		Reason:        reason,
		EverSeated:    s.everSeated,
		CreatedAt:     s.createdAt,
		EndedAt:       now,
	}
	if !s.startedAt.IsZero() {
		started := s.startedAt
		sum.StartedAt = &started
	}
	return sum
}

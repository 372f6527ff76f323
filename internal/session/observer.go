package session

import (
	"time"

	"github.com/koopa0/system-design/14-chess-session/internal/rules"
)

// LifecycleKind 生命週期事件種類
type LifecycleKind string

const (
	LifecycleCreated  LifecycleKind = "created"
	LifecycleStarted  LifecycleKind = "started"
	LifecycleMove     LifecycleKind = "move"
	LifecycleGameOver LifecycleKind = "gameover"
	LifecycleClosed   LifecycleKind = "closed"
)

// Lifecycle 對局生命週期中的一個節點，提供給外部訂閱（事件流、歸檔）
type Lifecycle struct {
	Kind      LifecycleKind  `json:"kind"`
	SessionID string         `json:"session_id"`
	At        time.Time      `json:"at"`
	Move      *rules.Move    `json:"move,omitempty"`
	Position  string         `json:"position,omitempty"`
	Outcome   *rules.Outcome `json:"outcome,omitempty"`
	Summary   *Summary       `json:"summary,omitempty"` // 只在 closed 時附帶
}

// Summary 關閉時的對局總結
type Summary struct {
	Moves         []string      `json:"moves"`
	FinalPosition string        `json:"final_position"`
	Outcome       rules.Outcome `json:"outcome"`
	Reason        string        `json:"reason"`
	EverSeated    bool          `json:"ever_seated"`
	CreatedAt     time.Time     `json:"created_at"`
	StartedAt     *time.Time    `json:"started_at,omitempty"`
	EndedAt       time.Time     `json:"ended_at"`
}

// Observer 接收生命週期事件
//
// Observe 在對局鎖內被呼叫，實作不可阻塞（通常只是寫入緩衝 channel）。
type Observer interface {
	Observe(evt Lifecycle)
}

// Observers 廣播給多個 Observer
type Observers []Observer

// Observe 依序通知
func (o Observers) Observe(evt Lifecycle) {
	for _, obs := range o {
		if obs != nil {
			obs.Observe(evt)
		}
	}
}

// ObserverFunc 函式形式的 Observer
type ObserverFunc func(Lifecycle)

// Observe 呼叫 f
func (f ObserverFunc) Observe(evt Lifecycle) { f(evt) }

type nopObserver struct{}

func (nopObserver) Observe(Lifecycle) {}

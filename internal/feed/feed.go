// Package feed 把對局生命週期事件發佈到外部訊息系統。
//
// 支援兩種驅動：NATS（core publish）與 Redis pub/sub；未設定時使用 Nop。
// 發佈是非同步的，訊息系統緩慢或斷線不會拖慢對局。
package feed

import (
	"context"

	"github.com/koopa0/system-design/14-chess-session/internal/session"
)

// 驅動名稱
const (
	DriverNone  = "none"
	DriverNATS  = "nats"
	DriverRedis = "redis"
)

// Publisher 訊息發佈端
type Publisher interface {
	Publish(ctx context.Context, subject string, payload []byte) error
	Close() error
}

// Subject 事件主題，例如 chess.sessions.move
func Subject(prefix string, kind session.LifecycleKind) string {
	if prefix == "" {
		return string(kind)
	}
	return prefix + "." + string(kind)
}

// Nop 丟棄所有訊息
type Nop struct{}

func (Nop) Publish(context.Context, string, []byte) error { return nil }
func (Nop) Close() error                                  { return nil }

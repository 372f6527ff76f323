// Package rules 定義規則引擎的介面，對局狀態機只透過它推進局面。
package rules

import "strings"

// Side 座位（先手 / 後手）
type Side string

const (
	FirstMover  Side = "first-mover"
	SecondMover Side = "second-mover"
)

// Opponent 對手座位
func (s Side) Opponent() Side {
	if s == FirstMover {
		return SecondMover
	}
	return FirstMover
}

// Move 走法描述（座標記法）
type Move struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Promotion string `json:"promotion,omitempty"`
}

// UCI 轉為長代數記法，例如 "e2e4"、"e7e8q"
func (m Move) UCI() string {
	return strings.ToLower(m.From + m.To + m.Promotion)
}

// Outcome 對局結果
type Outcome struct {
	Result string `json:"result"`           // "1-0"、"0-1"、"1/2-1/2" 或 "*"
	Method string `json:"method,omitempty"` // Checkmate、Stalemate ...
}

// Decided 是否已分出結果
func (o Outcome) Decided() bool {
	return o.Result != "" && o.Result != "*"
}

// Position 不可變的局面，只能經由 Engine.Apply 產生新的局面
type Position interface {
	// Turn 輪到哪一方
	Turn() Side
	// String 序列化（FEN）
	String() string
}

// Engine 規則引擎
type Engine interface {
	Initial() Position
	Load(serialized string) (Position, error)
	// Apply 回傳套用走法後的新局面；原局面不變
	Apply(pos Position, mv Move) (Position, error)
	Outcome(pos Position) Outcome
}

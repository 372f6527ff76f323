package session

import "github.com/koopa0/system-design/14-chess-session/internal/rules"

// ConnID 傳輸層連線代號（弱引用：連線可能隨時斷開，不由本套件持有）
type ConnID string

// EventType 送往客戶端的事件名稱
type EventType string

const (
	EventPlayerRole         EventType = "playerRole"
	EventSpectatorRole      EventType = "spectatorRole"
	EventWaitingForOpponent EventType = "waitingForOpponent"
	EventGameStart          EventType = "gameStart"
	EventGameActive         EventType = "gameActive"
	EventNoActiveGame       EventType = "noActiveGame"
	EventBoardState         EventType = "boardState"
	EventMove               EventType = "move"
	EventInvalidMove        EventType = "invalidMove"
	EventOpponentLeft       EventType = "opponentLeft"
	EventRoomClosed         EventType = "roomClosed"
	EventJoinedRoom         EventType = "joinedRoom"
	EventGameOver           EventType = "gameOver"
)

// Event 送往客戶端的事件；每種事件的 Data 型別固定，只能透過下方建構函式產生
type Event struct {
	Type EventType `json:"event"`
	Data any       `json:"data,omitempty"`
}

// RoomRef 帶對局代號的事件內容
type RoomRef struct {
	SessionID string `json:"sessionId"`
}

func PlayerRole(side rules.Side) Event { return Event{Type: EventPlayerRole, Data: side} }
func SpectatorRole() Event             { return Event{Type: EventSpectatorRole} }
func WaitingForOpponent() Event        { return Event{Type: EventWaitingForOpponent} }
func GameStart() Event                 { return Event{Type: EventGameStart} }
func GameActive() Event                { return Event{Type: EventGameActive} }
func NoActiveGame() Event              { return Event{Type: EventNoActiveGame} }

// BoardState 完整局面同步（FEN）
func BoardState(serialized string) Event { return Event{Type: EventBoardState, Data: serialized} }

// MoveMade 增量更新
func MoveMade(mv rules.Move) Event { return Event{Type: EventMove, Data: mv} }

// InvalidMove 只送給提交者
func InvalidMove(mv rules.Move) Event { return Event{Type: EventInvalidMove, Data: mv} }

func OpponentLeft(sessionID string) Event {
	return Event{Type: EventOpponentLeft, Data: RoomRef{SessionID: sessionID}}
}

func RoomClosed(sessionID string) Event {
	return Event{Type: EventRoomClosed, Data: RoomRef{SessionID: sessionID}}
}

func JoinedRoom(sessionID string) Event {
	return Event{Type: EventJoinedRoom, Data: RoomRef{SessionID: sessionID}}
}

func GameOver(outcome rules.Outcome) Event { return Event{Type: EventGameOver, Data: outcome} }

// Notifier 傳輸層：點對點發送與對局群組廣播。實作不得阻塞。
type Notifier interface {
	Send(conn ConnID, evt Event)
	Broadcast(sessionID string, evt Event)
	// Join 把連線加入對局的廣播群組
	Join(sessionID string, conn ConnID)
	// CloseGroup 解散對局的廣播群組
	CloseGroup(sessionID string)
}

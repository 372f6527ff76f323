package session

import (
	"sync"

	"github.com/koopa0/system-design/14-chess-session/internal/rules"
)

// MatchKind 隨機配對結果
type MatchKind int

const (
	// MatchWaiting 佇列為空，請求者坐上先手等待對手
	MatchWaiting MatchKind = iota
	// MatchMatched 與佇列中的等待者配對成功，請求者坐後手
	MatchMatched
	// MatchFallback 佇列項目已失效，請求者獨自坐上新對局的後手並直接開局
	MatchFallback
)

func (k MatchKind) String() string {
	switch k {
	case MatchWaiting:
		return "waiting"
	case MatchMatched:
		return "matched"
	case MatchFallback:
		return "fallback"
	default:
		return "unknown"
	}
}

// MatchOutcome 配對結果
type MatchOutcome struct {
	Kind     MatchKind
	Session  *Session
	Opponent ConnID // 只在 MatchMatched 時有值
	Created  bool   // 是否新建了對局
}

type pendingEntry struct {
	conn      ConnID
	sessionID string
}

// Matchmaker 隨機配對佇列
//
// 佇列最多一個等待者；任何非等待分支都會清空佇列。
type Matchmaker struct {
	mu       sync.Mutex
	registry *Registry
	pending  *pendingEntry
}

// NewMatchmaker 創建配對器
func NewMatchmaker(registry *Registry) *Matchmaker {
	return &Matchmaker{registry: registry}
}

// RequestRandomMatch 處理一次隨機配對請求
//
// 回傳時座位已經就位，通知由呼叫方負責。
func (m *Matchmaker) RequestRandomMatch(conn ConnID) MatchOutcome {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.pending == nil {
		return m.enqueue(conn)
	}

	entry := m.pending

	// 同一連線重複請求：維持等待
	if entry.conn == conn {
		if s, ok := m.registry.Get(entry.sessionID); ok && m.stillWaiting(s, conn) {
			return MatchOutcome{Kind: MatchWaiting, Session: s}
		}
		return m.enqueue(conn)
	}

	m.pending = nil

	if s, ok := m.registry.Get(entry.sessionID); ok {
		s.mu.Lock()
		first, seated := s.occupant(rules.FirstMover)
		_, taken := s.occupant(rules.SecondMover)
		if !s.closed && seated && first == entry.conn && !taken {
			s.seat(rules.SecondMover, conn)
			s.start(m.registry.now())
			s.mu.Unlock()
			return MatchOutcome{Kind: MatchMatched, Session: s, Opponent: entry.conn}
		}
		s.mu.Unlock()
	}

	// 佇列項目失效：新對局，請求者坐後手
	s := m.registry.Create()
	s.mu.Lock()
	s.seat(rules.SecondMover, conn)
	s.start(m.registry.now())
	s.mu.Unlock()
	return MatchOutcome{Kind: MatchFallback, Session: s, Created: true}
}

func (m *Matchmaker) enqueue(conn ConnID) MatchOutcome {
	s := m.registry.Create()
	s.mu.Lock()
	s.seat(rules.FirstMover, conn)
	s.mu.Unlock()

	m.pending = &pendingEntry{conn: conn, sessionID: s.ID}
	return MatchOutcome{Kind: MatchWaiting, Session: s, Created: true}
}

func (m *Matchmaker) stillWaiting(s *Session, conn ConnID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	first, ok := s.occupant(rules.FirstMover)
	_, taken := s.occupant(rules.SecondMover)
	return !s.closed && ok && first == conn && !taken
}

// Cancel 連線離開時清除佇列，未排隊則不做事
func (m *Matchmaker) Cancel(conn ConnID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.pending == nil || m.pending.conn != conn {
		return false
	}
	m.pending = nil
	return true
}

// Pending 目前等待中的連線與對局
func (m *Matchmaker) Pending() (ConnID, string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.pending == nil {
		return "", "", false
	}
	return m.pending.conn, m.pending.sessionID, true
}

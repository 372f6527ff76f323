package session_test

import (
	"sync"
	"testing"

	"github.com/koopa0/system-design/14-chess-session/internal/rules"
	"github.com/koopa0/system-design/14-chess-session/internal/session"
	"github.com/koopa0/system-design/14-chess-session/pkg/logger"
	"github.com/stretchr/testify/require"
)

const initialFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

// recorder 記錄所有送出的事件；群組廣播會展開到每個成員的收件匣
type recorder struct {
	mu     sync.Mutex
	inbox  map[session.ConnID][]session.Event
	groups map[string]map[session.ConnID]struct{}
	closed map[string]bool
}

func newRecorder() *recorder {
	return &recorder{
		inbox:  make(map[session.ConnID][]session.Event),
		groups: make(map[string]map[session.ConnID]struct{}),
		closed: make(map[string]bool),
	}
}

func (r *recorder) Send(conn session.ConnID, evt session.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inbox[conn] = append(r.inbox[conn], evt)
}

func (r *recorder) Broadcast(sessionID string, evt session.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for conn := range r.groups[sessionID] {
		r.inbox[conn] = append(r.inbox[conn], evt)
	}
}

func (r *recorder) Join(sessionID string, conn session.ConnID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.groups[sessionID] == nil {
		r.groups[sessionID] = make(map[session.ConnID]struct{})
	}
	r.groups[sessionID][conn] = struct{}{}
}

func (r *recorder) CloseGroup(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.groups, sessionID)
	r.closed[sessionID] = true
}

// types 依序取出收到的事件名稱
func (r *recorder) types(conn session.ConnID) []session.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]session.EventType, 0, len(r.inbox[conn]))
	for _, evt := range r.inbox[conn] {
		out = append(out, evt.Type)
	}
	return out
}

func (r *recorder) events(conn session.ConnID) []session.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]session.Event(nil), r.inbox[conn]...)
}

// count 某種事件收到幾次
func (r *recorder) count(conn session.ConnID, typ session.EventType) int {
	n := 0
	for _, t := range r.types(conn) {
		if t == typ {
			n++
		}
	}
	return n
}

// lastOf 最後一個指定種類的事件
func (r *recorder) lastOf(conn session.ConnID, typ session.EventType) (session.Event, bool) {
	events := r.events(conn)
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].Type == typ {
			return events[i], true
		}
	}
	return session.Event{}, false
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inbox = make(map[session.ConnID][]session.Event)
}

func (r *recorder) isClosed(sessionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed[sessionID]
}

// lifecycleLog 記錄生命週期事件
type lifecycleLog struct {
	mu     sync.Mutex
	events []session.Lifecycle
}

func (l *lifecycleLog) Observe(evt session.Lifecycle) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, evt)
}

func (l *lifecycleLog) kinds() []session.LifecycleKind {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]session.LifecycleKind, 0, len(l.events))
	for _, evt := range l.events {
		out = append(out, evt.Kind)
	}
	return out
}

func (l *lifecycleLog) last() session.Lifecycle {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.events[len(l.events)-1]
}

func newCoordinator() (*session.Coordinator, *recorder) {
	rec := newRecorder()
	c := session.NewCoordinator(session.Config{}, rules.NewChess(), rec, nil, logger.Discard())
	return c, rec
}

// hostedGame 建立一盤兩人已入座的對局
func hostedGame(c *session.Coordinator) string {
	c.Join("white", session.JoinRequest{Role: session.RoleHost})
	id := c.Sessions()[0].ID
	c.Join("black", session.JoinRequest{SessionID: id, Role: session.RolePlayer})
	return id
}

func createSession(t *testing.T, c *session.Coordinator) string {
	t.Helper()
	id, err := c.CreateSession()
	require.NoError(t, err)
	return id
}

func move(id, from, to string) session.MoveRequest {
	return session.MoveRequest{SessionID: id, Move: rules.Move{From: from, To: to}}
}

package transport_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/koopa0/system-design/14-chess-session/internal/rules"
	"github.com/koopa0/system-design/14-chess-session/internal/session"
	"github.com/koopa0/system-design/14-chess-session/internal/transport"
	"github.com/koopa0/system-design/14-chess-session/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startServer 以真實協調器啟動一個測試伺服器，回傳 ws:// 位址
func startServer(t *testing.T, cfg transport.Config) (*transport.Hub, *session.Coordinator, string) {
	t.Helper()

	hub := transport.NewHub(cfg, logger.Discard())
	coord := session.NewCoordinator(session.Config{}, rules.NewChess(), hub, nil, logger.Discard())
	hub.SetHandler(coord)

	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	t.Cleanup(func() {
		hub.Stop()
		coord.Stop()
		srv.Close()
	})

	return hub, coord, "ws" + strings.TrimPrefix(srv.URL, "http")
}

type client struct {
	t  *testing.T
	ws *websocket.Conn
}

func dial(t *testing.T, url string) *client {
	t.Helper()
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })
	return &client{t: t, ws: ws}
}

func (c *client) send(event string, data any) {
	c.t.Helper()
	payload, err := json.Marshal(data)
	require.NoError(c.t, err)
	require.NoError(c.t, c.ws.WriteJSON(transport.Envelope{Event: event, Data: payload}))
}

// expect 讀到指定事件為止，中間的其他事件略過
func (c *client) expect(event string) transport.Envelope {
	c.t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		require.NoError(c.t, c.ws.SetReadDeadline(deadline))
		var env transport.Envelope
		err := c.ws.ReadJSON(&env)
		require.NoError(c.t, err, "等待 %s", event)
		if env.Event == event {
			return env
		}
	}
}

func sessionIDOf(t *testing.T, env transport.Envelope) string {
	t.Helper()
	var ref session.RoomRef
	require.NoError(t, json.Unmarshal(env.Data, &ref))
	return ref.SessionID
}

func stringOf(t *testing.T, env transport.Envelope) string {
	t.Helper()
	var s string
	require.NoError(t, json.Unmarshal(env.Data, &s))
	return s
}

// TestHub_GameFlow 完整對局流程：建立、加入、走子、斷線
func TestHub_GameFlow(t *testing.T) {
	hub, _, url := startServer(t, transport.DefaultConfig())

	host := dial(t, url)
	host.send(transport.InboundJoinIntent, map[string]string{"role": "host"})
	assert.Equal(t, string(rules.FirstMover), stringOf(t, host.expect("playerRole")))
	host.expect("waitingForOpponent")
	id := sessionIDOf(t, host.expect("joinedRoom"))
	require.NotEmpty(t, id)

	// 舊版客戶端的欄位名稱
	guest := dial(t, url)
	guest.send(transport.InboundJoinRoom, map[string]string{"roomId": id, "as": "player"})
	assert.Equal(t, string(rules.SecondMover), stringOf(t, guest.expect("playerRole")))
	guest.expect("gameStart")
	host.expect("gameStart")
	assert.Equal(t, id, sessionIDOf(t, guest.expect("joinedRoom")))

	watcher := dial(t, url)
	watcher.send(transport.InboundJoinIntent, map[string]string{"sessionId": id, "role": "spectator"})
	watcher.expect("gameActive")
	watcher.expect("joinedRoom")

	assert.Equal(t, 3, hub.ConnectionCount())
	assert.Equal(t, 3, hub.GroupSize(id))

	host.send(transport.InboundSubmitMove, map[string]string{"sessionId": id, "from": "e2", "to": "e4", "promotion": "q"})
	for _, c := range []*client{host, guest, watcher} {
		var mv rules.Move
		require.NoError(t, json.Unmarshal(c.expect("move").Data, &mv))
		assert.Equal(t, "e2", mv.From)
		assert.Equal(t, "e4", mv.To)

		fen := stringOf(t, c.expect("boardState"))
		assert.Contains(t, fen, "4P3")
		assert.Contains(t, fen, " b ")
	}

	// 不合法的走子只回給提交者
	guest.send(transport.InboundMove, map[string]string{"roomId": id, "from": "e7", "to": "e4"})
	guest.expect("invalidMove")

	// 先手離開，其他人收到關閉通知
	require.NoError(t, host.ws.Close())
	guest.expect("opponentLeft")
	assert.Equal(t, id, sessionIDOf(t, guest.expect("roomClosed")))
	watcher.expect("roomClosed")

	assert.Eventually(t, func() bool {
		return hub.ConnectionCount() == 2 && hub.GroupSize(id) == 0
	}, time.Second, 10*time.Millisecond)
}

// TestHub_RandomMatch 隨機配對經由 WebSocket
func TestHub_RandomMatch(t *testing.T) {
	_, coord, url := startServer(t, transport.DefaultConfig())

	a := dial(t, url)
	a.send(transport.InboundJoinIntent, map[string]string{"sessionId": session.RandomMatch, "role": "player"})
	a.expect("waitingForOpponent")
	first := sessionIDOf(t, a.expect("joinedRoom"))

	b := dial(t, url)
	b.send(transport.InboundJoinIntent, map[string]string{"sessionId": session.RandomMatch, "role": "player"})
	assert.Equal(t, first, sessionIDOf(t, b.expect("joinedRoom")))
	a.expect("gameStart")
	assert.Equal(t, first, sessionIDOf(t, a.expect("joinedRoom")))

	snap, err := coord.Session(first)
	require.NoError(t, err)
	assert.True(t, snap.Active)
}

// TestHub_MalformedMessages 格式錯誤的訊息不會中斷連線
func TestHub_MalformedMessages(t *testing.T) {
	_, _, url := startServer(t, transport.DefaultConfig())

	c := dial(t, url)
	require.NoError(t, c.ws.WriteMessage(websocket.TextMessage, []byte("not json")))
	require.NoError(t, c.ws.WriteMessage(websocket.TextMessage, []byte(`{"event":"chat","data":{}}`)))

	// 走子內容錯誤回覆通用 invalidMove
	require.NoError(t, c.ws.WriteMessage(websocket.TextMessage, []byte(`{"event":"submitMove","data":"garbage"}`)))
	c.expect("invalidMove")

	// 連線仍可用
	c.send(transport.InboundJoinIntent, map[string]string{})
	c.expect("noActiveGame")
}

type disconnectRecorder struct {
	mu          sync.Mutex
	disconnects []session.ConnID
}

func (r *disconnectRecorder) Join(session.ConnID, session.JoinRequest)       {}
func (r *disconnectRecorder) SubmitMove(session.ConnID, session.MoveRequest) {}
func (r *disconnectRecorder) Disconnect(conn session.ConnID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.disconnects = append(r.disconnects, conn)
}

func (r *disconnectRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.disconnects)
}

// TestHub_Heartbeat 不回 Pong 的連線會被判定斷線
func TestHub_Heartbeat(t *testing.T) {
	if testing.Short() {
		t.Skip("跳過心跳測試")
	}

	cfg := transport.DefaultConfig()
	cfg.PingPeriod = 20 * time.Millisecond
	cfg.PongWait = 100 * time.Millisecond

	hub := transport.NewHub(cfg, logger.Discard())
	rec := &disconnectRecorder{}
	hub.SetHandler(rec)
	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	defer srv.Close()
	defer hub.Stop()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	// 持續讀取的客戶端會自動回覆 Pong
	alive := dial(t, url)
	go func() {
		for {
			if _, _, err := alive.ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	// 從不讀取的客戶端不會回覆 Pong
	dial(t, url)

	assert.Eventually(t, func() bool {
		return rec.count() == 1
	}, 2*time.Second, 10*time.Millisecond)

	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, 1, rec.count())
	assert.Equal(t, 1, hub.ConnectionCount())
}

// TestHub_SendToUnknownConnection 對不存在的連線發送不做任何事
func TestHub_SendToUnknownConnection(t *testing.T) {
	hub := transport.NewHub(transport.DefaultConfig(), logger.Discard())

	assert.NotPanics(t, func() {
		hub.Send("ghost", session.NoActiveGame())
		hub.Broadcast("nowhere", session.GameStart())
		hub.Join("nowhere", "ghost")
		hub.CloseGroup("nowhere")
	})
	assert.Equal(t, 0, hub.GroupSize("nowhere"))
}

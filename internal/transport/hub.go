// Package transport 以 WebSocket 承載對局事件。
//
// 系統設計問題：
//
//	對局狀態機只知道「連線代號」，如何把事件送到正確的瀏覽器分頁，
//	並在網路異常時儘快察覺連線已死？
//
// 設計方案：
//   - Hub 模式：集中管理所有連線與對局廣播群組
//   - 每條連線一個緩衝 Send channel，寫入不阻塞呼叫方
//   - Ping/Pong 心跳（預設 54s / 60s）偵測半開連線，逾時視同斷線
package transport

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/koopa0/system-design/14-chess-session/internal/session"
	"github.com/koopa0/system-design/14-chess-session/pkg/logger"
)

// Handler 處理客戶端意圖（由對局協調器實作）
type Handler interface {
	Join(conn session.ConnID, req session.JoinRequest)
	SubmitMove(conn session.ConnID, req session.MoveRequest)
	Disconnect(conn session.ConnID)
}

// Config 連線參數
type Config struct {
	PingPeriod     time.Duration
	PongWait       time.Duration
	WriteWait      time.Duration
	SendBuffer     int
	MaxMessageSize int64
}

// DefaultConfig 預設參數
func DefaultConfig() Config {
	return Config{
		PingPeriod:     54 * time.Second,
		PongWait:       60 * time.Second,
		WriteWait:      10 * time.Second,
		SendBuffer:     256,
		MaxMessageSize: 4096,
	}
}

// Hub WebSocket 連線中心，實作 session.Notifier
type Hub struct {
	cfg      Config
	logger   *slog.Logger
	upgrader websocket.Upgrader
	handler  Handler

	conns  map[session.ConnID]*Connection
	groups map[string]map[session.ConnID]struct{} // sessionID -> 成員
	mu     sync.RWMutex
}

// Connection 一條 WebSocket 連線
type Connection struct {
	ID        session.ConnID
	hub       *Hub
	ws        *websocket.Conn
	send      chan []byte
	groups    map[string]struct{} // 由 hub.mu 保護
	closeOnce sync.Once
}

// NewHub 創建 Hub；開始服務前必須呼叫 SetHandler
func NewHub(cfg Config, log *slog.Logger) *Hub {
	if log == nil {
		log = logger.Discard()
	}
	return &Hub{
		cfg:    cfg,
		logger: log,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// 在生產環境應該檢查來源
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		conns:  make(map[session.ConnID]*Connection),
		groups: make(map[string]map[session.ConnID]struct{}),
	}
}

// SetHandler 設定意圖處理者（協調器與 Hub 互相依賴，無法在建構時同時傳入）
func (h *Hub) SetHandler(handler Handler) {
	h.handler = handler
}

// ServeWS 升級 HTTP 連線並啟動讀寫 goroutine
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("升級 WebSocket 失敗", logger.KeyError, err)
		return
	}

	c := &Connection{
		ID:     session.ConnID(uuid.NewString()),
		hub:    h,
		ws:     ws,
		send:   make(chan []byte, h.cfg.SendBuffer),
		groups: make(map[string]struct{}),
	}

	h.register(c)

	go c.writePump()
	go c.readPump()

	h.logger.Info("WebSocket 連接建立", logger.KeyConnID, c.ID, "remote", r.RemoteAddr)
}

func (h *Hub) register(c *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[c.ID] = c
}

// unregister 移除連線與所有群組成員資格
func (h *Hub) unregister(c *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if actual, ok := h.conns[c.ID]; !ok || actual != c {
		return
	}
	delete(h.conns, c.ID)

	for sessionID := range c.groups {
		if members, ok := h.groups[sessionID]; ok {
			delete(members, c.ID)
			if len(members) == 0 {
				delete(h.groups, sessionID)
			}
		}
	}

	c.closeOnce.Do(func() {
		close(c.send)
	})
}

// Send 點對點發送
func (h *Hub) Send(conn session.ConnID, evt session.Event) {
	msg, err := Encode(evt)
	if err != nil {
		h.logger.Error("序列化事件失敗", logger.KeyError, err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	if c, ok := h.conns[conn]; ok {
		h.enqueue(c, msg, evt.Type)
	}
}

// Broadcast 發送給對局群組的所有成員
func (h *Hub) Broadcast(sessionID string, evt session.Event) {
	msg, err := Encode(evt)
	if err != nil {
		h.logger.Error("序列化事件失敗", logger.KeyError, err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for id := range h.groups[sessionID] {
		if c, ok := h.conns[id]; ok {
			h.enqueue(c, msg, evt.Type)
		}
	}
}

// enqueue 呼叫時持有 h.mu 讀鎖，send 不會同時被關閉
func (h *Hub) enqueue(c *Connection, msg []byte, typ session.EventType) {
	select {
	case c.send <- msg:
	default:
		// 緩衝區滿了，丟棄而不阻塞狀態機
		h.logger.Warn("連接緩衝區滿，丟棄事件", logger.KeyConnID, c.ID, "event", typ)
	}
}

// Join 加入廣播群組
func (h *Hub) Join(sessionID string, conn session.ConnID) {
	h.mu.Lock()
	defer h.mu.Unlock()

	c, ok := h.conns[conn]
	if !ok {
		return
	}
	members, ok := h.groups[sessionID]
	if !ok {
		members = make(map[session.ConnID]struct{})
		h.groups[sessionID] = members
	}
	members[conn] = struct{}{}
	c.groups[sessionID] = struct{}{}
}

// CloseGroup 解散廣播群組，連線本身保持開啟
func (h *Hub) CloseGroup(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id := range h.groups[sessionID] {
		if c, ok := h.conns[id]; ok {
			delete(c.groups, sessionID)
		}
	}
	delete(h.groups, sessionID)
}

// ConnectionCount 目前連線數
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// GroupSize 群組成員數
func (h *Hub) GroupSize(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.groups[sessionID])
}

// Stop 關閉所有連線；各連線的 readPump 結束時會觸發斷線處理
func (h *Hub) Stop() {
	h.mu.Lock()
	conns := make([]*Connection, 0, len(h.conns))
	for _, c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	for _, c := range conns {
		c.ws.Close()
	}

	h.logger.Info("WebSocket Hub 已停止", "connections", len(conns))
}

// readPump 讀取客戶端訊息
//
// 60 秒內沒有任何訊息（包括 Pong）就關閉連線，視同斷線。
func (c *Connection) readPump() {
	h := c.hub
	defer func() {
		h.unregister(c)
		c.ws.Close()
		if h.handler != nil {
			h.handler.Disconnect(c.ID)
		}
		h.logger.Info("WebSocket 連接關閉", logger.KeyConnID, c.ID)
	}()

	c.ws.SetReadLimit(h.cfg.MaxMessageSize)
	if err := c.ws.SetReadDeadline(time.Now().Add(h.cfg.PongWait)); err != nil {
		h.logger.Error("設置讀取期限失敗", logger.KeyError, err)
	}

	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
	})

	for {
		messageType, message, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				h.logger.Warn("WebSocket 讀取錯誤", logger.KeyError, err, logger.KeyConnID, c.ID)
			}
			return
		}

		if messageType == websocket.TextMessage {
			c.handleMessage(message)
		}
	}
}

// writePump 寫入訊息並定期發送 Ping
func (c *Connection) writePump() {
	h := c.hub
	ticker := time.NewTicker(h.cfg.PingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			if err := c.ws.SetWriteDeadline(time.Now().Add(h.cfg.WriteWait)); err != nil {
				h.logger.Error("設置寫入期限失敗", logger.KeyError, err)
			}
			if !ok {
				_ = c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}

			if err := c.ws.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

			// 批量發送隊列中的訊息
			n := len(c.send)
			for i := 0; i < n; i++ {
				if err := c.ws.WriteMessage(websocket.TextMessage, <-c.send); err != nil {
					h.logger.Warn("發送訊息失敗", logger.KeyError, err, logger.KeyConnID, c.ID)
					return
				}
			}

		case <-ticker.C:
			if err := c.ws.SetWriteDeadline(time.Now().Add(h.cfg.WriteWait)); err != nil {
				h.logger.Error("設置寫入期限失敗", logger.KeyError, err)
			}
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage 解碼並交給 Handler
func (c *Connection) handleMessage(message []byte) {
	h := c.hub
	log := h.logger.With(logger.KeyConnID, c.ID)

	defer func() {
		if r := recover(); r != nil {
			log.Error("處理客戶端訊息時發生 panic", "panic", r)
		}
	}()

	in, err := Decode(message)
	if err != nil {
		log.Warn("丟棄無法解析的訊息", logger.KeyError, err)
		// 走子內容錯誤時回覆通用的 invalidMove
		if in.Kind == KindMove {
			h.Send(c.ID, session.InvalidMove(in.Move.Move))
		}
		return
	}

	if h.handler == nil {
		log.Error("尚未設定 Handler")
		return
	}

	switch in.Kind {
	case KindJoin:
		h.handler.Join(c.ID, in.Join)
	case KindMove:
		h.handler.SubmitMove(c.ID, in.Move)
	}
}

package session

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/koopa0/system-design/14-chess-session/internal/rules"
	apperrors "github.com/koopa0/system-design/14-chess-session/pkg/errors"
	"github.com/koopa0/system-design/14-chess-session/pkg/logger"
)

// RandomMatch 加入隨機配對用的保留對局代號
const RandomMatch = "random"

// Role 加入時宣告的角色
type Role string

const (
	RoleHost        Role = "host"
	RolePlayer      Role = "player"
	RoleSpectator   Role = "spectator"
	RoleUnspecified Role = ""
)

// JoinRequest 加入意圖
type JoinRequest struct {
	SessionID string `json:"sessionId"`
	Role      Role   `json:"role"`
}

// MoveRequest 走子請求
type MoveRequest struct {
	SessionID string `json:"sessionId"`
	rules.Move
}

// 關閉原因
const (
	ReasonFirstMoverLeft = "first_mover_left"
	ReasonAbandoned      = "abandoned"
	ReasonIdle           = "idle"
	ReasonShutdown       = "shutdown"
)

// Config 協調器設定
type Config struct {
	// IdleTTL 從未有人入座的對局保留多久；0 表示不回收
	IdleTTL time.Duration
	// CleanupInterval 回收掃描間隔；0 表示不啟動背景回收
	CleanupInterval time.Duration
}

// Stats 統計資訊
type Stats struct {
	Sessions             int    `json:"sessions"`
	ActiveGames          int    `json:"active_games"`
	AwaitingOpponent     int    `json:"awaiting_opponent"`
	Players              int    `json:"players"`
	Spectators           int    `json:"spectators"`
	QueueWaiting         bool   `json:"queue_waiting"`
	MovesApplied         uint64 `json:"moves_applied"`
	MovesRejected        uint64 `json:"moves_rejected"`
	MembershipViolations uint64 `json:"membership_violations"`
}

// Coordinator 對局狀態機
//
// 加入、斷線、配對、回收由 mu 串行化；走子只取對局鎖，不同對局的走子互不阻塞。
type Coordinator struct {
	mu         sync.Mutex
	registry   *Registry
	matchmaker *Matchmaker
	engine     rules.Engine
	notifier   Notifier
	observer   Observer
	logger     *slog.Logger
	cfg        Config

	// membership 連線 → 所在對局，用來偵測一條連線同時加入多個對局
	membership map[ConnID]map[string]struct{}

	movesApplied  atomic.Uint64
	movesRejected atomic.Uint64
	violations    atomic.Uint64

	stopped  bool // 受 mu 保護；停止後不再接受新的加入與建立
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewCoordinator 創建協調器；CleanupInterval > 0 時啟動背景回收
func NewCoordinator(cfg Config, engine rules.Engine, notifier Notifier, observer Observer, log *slog.Logger) *Coordinator {
	if observer == nil {
		observer = nopObserver{}
	}
	if log == nil {
		log = logger.Discard()
	}

	registry := NewRegistry(engine)
	c := &Coordinator{
		registry:   registry,
		matchmaker: NewMatchmaker(registry),
		engine:     engine,
		notifier:   notifier,
		observer:   observer,
		logger:     log,
		cfg:        cfg,
		membership: make(map[ConnID]map[string]struct{}),
		stopCh:     make(chan struct{}),
	}

	if cfg.CleanupInterval > 0 {
		c.wg.Add(1)
		go c.cleanupLoop()
	}

	return c
}

// Registry 對局註冊表（唯讀查詢用）
func (c *Coordinator) Registry() *Registry { return c.registry }

// Matchmaker 配對佇列（唯讀查詢用）
func (c *Coordinator) Matchmaker() *Matchmaker { return c.matchmaker }

// CreateSession 不經任何連線建立空對局，回傳代號
func (c *Coordinator) CreateSession() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped {
		return "", apperrors.ErrCoordinatorStopped
	}

	s := c.registry.Create()
	c.observeCreated(s)
	c.logger.Info("對局已建立", logger.KeySessionID, s.ID, "via", "http")
	return s.ID, nil
}

// Session 查詢對局快照
func (c *Coordinator) Session(id string) (Snapshot, error) {
	s, ok := c.registry.Get(id)
	if !ok {
		return Snapshot{}, apperrors.ErrSessionNotFound.WithDetails(id)
	}
	return s.Snapshot(), nil
}

// Sessions 所有對局快照
func (c *Coordinator) Sessions() []Snapshot {
	list := c.registry.List()
	out := make([]Snapshot, 0, len(list))
	for _, s := range list {
		out = append(out, s.Snapshot())
	}
	return out
}

// Join 處理加入意圖
func (c *Coordinator) Join(conn ConnID, req JoinRequest) {
	c.mu.Lock()
	defer c.mu.Unlock()

	log := c.logger.With(logger.KeyConnID, conn, logger.KeySessionID, req.SessionID, "role", req.Role)

	if c.stopped {
		log.Debug("協調器已停止，拒絕加入")
		c.notifier.Send(conn, RoomClosed(req.SessionID))
		return
	}

	var (
		s  *Session
		ok bool
	)
	if req.SessionID != "" {
		s, ok = c.registry.Get(req.SessionID)
	}

	if !ok {
		switch {
		case req.Role == RoleHost:
			s = c.registry.Create()
			c.observeCreated(s)
			log.Info("主持人建立對局", "new_session_id", s.ID)
		case req.SessionID == RandomMatch && req.Role == RolePlayer:
			c.joinRandom(conn, log)
			return
		case req.SessionID != "" && req.SessionID != RandomMatch:
			log.Debug("對局不存在")
			c.notifier.Send(conn, RoomClosed(req.SessionID))
			return
		default:
			log.Debug("沒有可加入的對局")
			c.notifier.Send(conn, NoActiveGame())
			return
		}
	}

	c.checkMembership(conn, s.ID, log)

	s.mu.Lock()
	defer s.mu.Unlock()

	c.notifier.Join(s.ID, conn)

	// 已經坐在這盤棋的連線再次加入只做重新同步
	if side, seated := s.seatOf(conn); seated {
		c.notifier.Send(conn, PlayerRole(side))
		c.sendSync(s, conn)
		return
	}

	switch req.Role {
	case RoleHost:
		if _, taken := s.occupant(rules.FirstMover); !taken {
			// 座位與觀戰身份互斥
			delete(s.spectators, conn)
			s.seat(rules.FirstMover, conn)
			c.notifier.Send(conn, PlayerRole(rules.FirstMover))
			c.notifier.Send(conn, WaitingForOpponent())
			log.Info("主持人入座", "side", rules.FirstMover)
		} else {
			c.addSpectator(s, conn)
			log.Info("先手座位已有人，降為觀戰")
		}

	case RolePlayer:
		if _, taken := s.occupant(rules.SecondMover); !taken {
			delete(s.spectators, conn)
			s.seat(rules.SecondMover, conn)
			s.start(c.registry.now())
			c.notifier.Send(conn, PlayerRole(rules.SecondMover))
			for _, seated := range s.players {
				c.notifier.Send(seated, GameStart())
			}
			for spectator := range s.spectators {
				c.notifier.Send(spectator, GameActive())
			}
			c.observeStarted(s)
			log.Info("玩家入座，對局開始", "side", rules.SecondMover)
		} else {
			c.addSpectator(s, conn)
			log.Info("後手座位已有人，降為觀戰")
		}

	default:
		c.addSpectator(s, conn)
		log.Info("觀戰者加入")
	}

	c.sendSync(s, conn)
}

// joinRandom 隨機配對；呼叫時持有 c.mu
func (c *Coordinator) joinRandom(conn ConnID, log *slog.Logger) {
	out := c.matchmaker.RequestRandomMatch(conn)
	s := out.Session

	c.checkMembership(conn, s.ID, log)

	s.mu.Lock()
	defer s.mu.Unlock()

	c.notifier.Join(s.ID, conn)
	if out.Created {
		c.observeCreated(s)
	}

	log = log.With("new_session_id", s.ID, "match", out.Kind.String())

	switch out.Kind {
	case MatchWaiting:
		c.notifier.Send(conn, PlayerRole(rules.FirstMover))
		c.notifier.Send(conn, WaitingForOpponent())
		c.notifier.Send(conn, BoardState(s.position.String()))
		log.Info("進入配對佇列")

	case MatchMatched:
		c.notifier.Send(conn, PlayerRole(rules.SecondMover))
		c.notifier.Send(conn, GameStart())
		c.notifier.Send(out.Opponent, GameStart())
		c.notifier.Broadcast(s.ID, BoardState(s.position.String()))
		c.notifier.Broadcast(s.ID, JoinedRoom(s.ID))
		c.observeStarted(s)
		log.Info("配對成功", "opponent", out.Opponent)
		return

	case MatchFallback:
		c.notifier.Send(conn, PlayerRole(rules.SecondMover))
		c.notifier.Broadcast(s.ID, GameStart())
		c.notifier.Send(conn, BoardState(s.position.String()))
		c.observeStarted(s)
		log.Warn("佇列項目已失效，改開新對局")
	}

	c.notifier.Send(conn, JoinedRoom(s.ID))
}

func (c *Coordinator) addSpectator(s *Session, conn ConnID) {
	s.spectators[conn] = struct{}{}
	c.notifier.Send(conn, SpectatorRole())
	if s.active {
		c.notifier.Send(conn, GameActive())
	} else {
		c.notifier.Send(conn, NoActiveGame())
	}
}

// sendSync 每次成功加入都送完整局面與對局代號
func (c *Coordinator) sendSync(s *Session, conn ConnID) {
	c.notifier.Send(conn, BoardState(s.position.String()))
	c.notifier.Send(conn, JoinedRoom(s.ID))
}

// checkMembership 記錄所屬對局，同一連線出現在第二個對局時告警（仍允許加入）
func (c *Coordinator) checkMembership(conn ConnID, sessionID string, log *slog.Logger) {
	set, ok := c.membership[conn]
	if !ok {
		set = make(map[string]struct{})
		c.membership[conn] = set
	}
	if _, already := set[sessionID]; !already && len(set) > 0 {
		c.violations.Add(1)
		others := make([]string, 0, len(set))
		for id := range set {
			others = append(others, id)
		}
		log.Warn("連線同時加入多個對局", "existing_sessions", others)
	}
	set[sessionID] = struct{}{}
}

// SubmitMove 處理走子
func (c *Coordinator) SubmitMove(conn ConnID, req MoveRequest) {
	s, ok := c.registry.Get(req.SessionID)
	if !ok {
		c.logger.Debug("走子的對局不存在", logger.KeyConnID, conn, logger.KeySessionID, req.SessionID)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// 持有舊指標的遲到訊息
	if s.closed {
		return
	}

	c.applyMove(s, conn, req.Move)
}

// applyMove 呼叫時持有 s.mu；局面只在引擎接受後才替換
func (c *Coordinator) applyMove(s *Session, conn ConnID, mv rules.Move) {
	log := c.logger.With(logger.KeyConnID, conn, logger.KeySessionID, s.ID, "move", mv.UCI())

	defer func() {
		if r := recover(); r != nil {
			c.movesRejected.Add(1)
			log.Error("處理走子時發生 panic", "panic", r)
			c.notifier.Send(conn, InvalidMove(mv))
		}
	}()

	turn := s.position.Turn()
	if seated, ok := s.occupant(turn); !ok || seated != conn {
		log.Debug("非輪到的一方，忽略", "turn", turn)
		return
	}

	next, err := c.engine.Apply(s.position, mv)
	if err != nil {
		c.movesRejected.Add(1)
		if apperrors.IsRejected(err) || apperrors.IsInvalidInput(err) {
			log.Debug("走法被拒絕", logger.KeyError, err)
		} else {
			log.Error("規則引擎錯誤", logger.KeyError, err)
		}
		c.notifier.Send(conn, InvalidMove(mv))
		return
	}

	s.position = next
	s.moves = append(s.moves, mv.UCI())
	c.movesApplied.Add(1)

	serialized := next.String()
	c.notifier.Broadcast(s.ID, MoveMade(mv))
	c.notifier.Broadcast(s.ID, BoardState(serialized))

	applied := mv
	c.observer.Observe(Lifecycle{
		Kind:      LifecycleMove,
		SessionID: s.ID,
		At:        c.registry.now(),
		Move:      &applied,
		Position:  serialized,
	})

	if outcome := c.engine.Outcome(next); outcome.Decided() {
		s.outcome = outcome
		c.notifier.Broadcast(s.ID, GameOver(outcome))
		c.observer.Observe(Lifecycle{
			Kind:      LifecycleGameOver,
			SessionID: s.ID,
			At:        c.registry.now(),
			Position:  serialized,
			Outcome:   &outcome,
		})
		log.Info("對局結束", "result", outcome.Result, "method", outcome.Method)
	}
}

// Disconnect 處理連線離開：檢查所有對局並清除配對佇列
func (c *Coordinator) Disconnect(conn ConnID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	touched := 0
	for _, s := range c.registry.List() {
		if c.disconnectFrom(s, conn) {
			touched++
		}
	}

	if touched > 1 {
		c.logger.Warn("斷線的連線同時屬於多個對局", logger.KeyConnID, conn, "sessions", touched)
	}

	if c.matchmaker.Cancel(conn) {
		c.logger.Info("已清除配對佇列", logger.KeyConnID, conn)
	}

	delete(c.membership, conn)
}

// disconnectFrom 呼叫時持有 c.mu
func (c *Coordinator) disconnectFrom(s *Session, conn ConnID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}

	log := c.logger.With(logger.KeyConnID, conn, logger.KeySessionID, s.ID)
	touched := false

	// 先手離開：整盤棋關閉
	if first, ok := s.occupant(rules.FirstMover); ok && first == conn {
		touched = true
		s.vacate(rules.FirstMover)
		s.active = false
		if second, ok := s.occupant(rules.SecondMover); ok {
			c.notifier.Send(second, OpponentLeft(s.ID))
		}
		c.notifier.Broadcast(s.ID, RoomClosed(s.ID))
		c.destroy(s, ReasonFirstMoverLeft)
		log.Info("先手離開，對局關閉")
	}

	// 後手離開：對局保留，等待新的後手
	if second, ok := s.occupant(rules.SecondMover); ok && second == conn {
		touched = true
		s.vacate(rules.SecondMover)
		s.active = false
		if first, ok := s.occupant(rules.FirstMover); ok {
			c.notifier.Send(first, OpponentLeft(s.ID))
		}
		log.Info("後手離開")
	}

	if _, ok := s.spectators[conn]; ok {
		touched = true
		delete(s.spectators, conn)
		log.Debug("觀戰者離開")
	}

	if touched && !s.closed && !s.active && len(s.players) == 0 {
		for spectator := range s.spectators {
			c.notifier.Send(spectator, RoomClosed(s.ID))
		}
		c.destroy(s, ReasonAbandoned)
		log.Info("對局已無玩家，關閉")
	}

	return touched
}

// destroy 呼叫時持有 c.mu 與 s.mu
func (c *Coordinator) destroy(s *Session, reason string) {
	s.closed = true
	c.registry.Destroy(s.ID)
	c.notifier.CloseGroup(s.ID)

	for _, member := range s.members() {
		if set, ok := c.membership[member]; ok {
			delete(set, s.ID)
		}
	}

	c.observer.Observe(Lifecycle{
		Kind:      LifecycleClosed,
		SessionID: s.ID,
		At:        c.registry.now(),
		Position:  s.position.String(),
		Summary:   s.summary(reason, c.registry.now()),
	})
}

func (c *Coordinator) observeCreated(s *Session) {
	c.observer.Observe(Lifecycle{
		Kind:      LifecycleCreated,
		SessionID: s.ID,
		At:        s.createdAt,
		Position:  s.position.String(),
	})
}

func (c *Coordinator) observeStarted(s *Session) {
	c.observer.Observe(Lifecycle{
		Kind:      LifecycleStarted,
		SessionID: s.ID,
		At:        s.startedAt,
		Position:  s.position.String(),
	})
}

// cleanupLoop 定期回收從未有人入座的對局
func (c *Coordinator) cleanupLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.Reap()
		case <-c.stopCh:
			return
		}
	}
}

// Reap 回收閒置對局，回傳回收數量（公開方法供測試使用）
func (c *Coordinator) Reap() int {
	if c.cfg.IdleTTL <= 0 {
		return 0
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.registry.now()
	reaped := 0
	for _, s := range c.registry.List() {
		s.mu.Lock()
		if !s.closed && !s.everSeated && len(s.spectators) == 0 && now.Sub(s.createdAt) >= c.cfg.IdleTTL {
			c.destroy(s, ReasonIdle)
			reaped++
			c.logger.Info("閒置對局已回收", logger.KeySessionID, s.ID)
		}
		s.mu.Unlock()
	}
	return reaped
}

// Stats 統計資訊
func (c *Coordinator) Stats() Stats {
	st := Stats{
		MovesApplied:         c.movesApplied.Load(),
		MovesRejected:        c.movesRejected.Load(),
		MembershipViolations: c.violations.Load(),
	}

	for _, s := range c.registry.List() {
		s.mu.Lock()
		if !s.closed {
			st.Sessions++
			switch s.state() {
			case StateActive:
				st.ActiveGames++
			case StateAwaitingOpponent:
				st.AwaitingOpponent++
			}
			st.Players += len(s.players)
			st.Spectators += len(s.spectators)
		}
		s.mu.Unlock()
	}

	_, _, st.QueueWaiting = c.matchmaker.Pending()
	return st
}

// Stop 停止背景回收，並關閉所有對局
func (c *Coordinator) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopCh)
		c.wg.Wait()

		c.mu.Lock()
		defer c.mu.Unlock()
		c.stopped = true
		for _, s := range c.registry.List() {
			s.mu.Lock()
			if !s.closed {
				c.notifier.Broadcast(s.ID, RoomClosed(s.ID))
				c.destroy(s, ReasonShutdown)
			}
			s.mu.Unlock()
		}
		c.logger.Info("對局協調器已停止")
	})
}

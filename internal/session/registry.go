package session

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/koopa0/system-design/14-chess-session/internal/rules"
)

// Registry 對局註冊表
//
// 只管理 id → Session 的映射，本身不做任何狀態轉換。
type Registry struct {
	sessions map[string]*Session
	mu       sync.RWMutex
	engine   rules.Engine
	now      func() time.Time
}

// NewRegistry 創建註冊表，新對局的初始局面由 engine 提供
func NewRegistry(engine rules.Engine) *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		engine:   engine,
		now:      time.Now,
	}
}

// Create 建立新對局並註冊
func (r *Registry) Create() *Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := generateID()
	for {
		if _, exists := r.sessions[id]; !exists {
			break
		}
		id = generateID()
	}

	s := newSession(id, r.engine.Initial(), r.now())
	r.sessions[id] = s
	return s
}

// Get 查詢對局，不存在是正常情況
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	s, ok := r.sessions[id]
	r.mu.RUnlock()
	return s, ok
}

// Destroy 移除對局（冪等）
func (r *Registry) Destroy(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[id]; !ok {
		return false
	}
	delete(r.sessions, id)
	return true
}

// List 依建立時間排序的快照
func (r *Registry) List() []*Session {
	r.mu.RLock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	r.mu.RUnlock()

	// createdAt 建立後不變，不需要對局鎖
	sort.Slice(out, func(i, j int) bool {
		if out[i].createdAt.Equal(out[j].createdAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].createdAt.Before(out[j].createdAt)
	})
	return out
}

// Len 對局數量
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// generateID 64 位元隨機 id
func generateID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		// 隨機讀取失敗時退回時間戳
		return fmt.Sprintf("%016x", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}

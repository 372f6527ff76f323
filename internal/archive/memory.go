package archive

import (
	"context"
	"sort"
	"sync"

	apperrors "github.com/koopa0/system-design/14-chess-session/pkg/errors"
)

// MemoryStore 記憶體歸檔，未設定資料庫時使用
type MemoryStore struct {
	mu    sync.RWMutex
	games map[string]Game
}

// NewMemoryStore 創建記憶體歸檔
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{games: make(map[string]Game)}
}

func (m *MemoryStore) Save(_ context.Context, g Game) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.games[g.SessionID] = g
	return nil
}

func (m *MemoryStore) Get(_ context.Context, sessionID string) (Game, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	g, ok := m.games[sessionID]
	if !ok {
		return Game{}, apperrors.ErrGameNotArchived.WithDetails(sessionID)
	}
	return g, nil
}

func (m *MemoryStore) List(_ context.Context, limit int) ([]Game, error) {
	m.mu.RLock()
	out := make([]Game, 0, len(m.games))
	for _, g := range m.games {
		out = append(out, g)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].EndedAt.After(out[j].EndedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

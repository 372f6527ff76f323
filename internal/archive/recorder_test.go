package archive_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/koopa0/system-design/14-chess-session/internal/archive"
	"github.com/koopa0/system-design/14-chess-session/internal/rules"
	"github.com/koopa0/system-design/14-chess-session/internal/session"
	"github.com/koopa0/system-design/14-chess-session/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func closedEvent(id string, everSeated bool) session.Lifecycle {
	now := time.Now()
	return session.Lifecycle{
		Kind:      session.LifecycleClosed,
		SessionID: id,
		At:        now,
		Summary: &session.Summary{
			Moves:         []string{"f2f3", "e7e5", "g2g4", "d8h4"},
			FinalPosition: "rnb1kbnr/pppp1ppp/8/4p3/6Pq/5P2/PPPPP2P/RNBQKBNR w KQkq - 1 3",
			Outcome:       rules.Outcome{Result: "0-1", Method: "Checkmate"},
			Reason:        session.ReasonFirstMoverLeft,
			EverSeated:    everSeated,
			CreatedAt:     now.Add(-time.Minute),
			EndedAt:       now,
		},
	}
}

// TestRecorder 只歸檔曾經有人入座的關閉事件
func TestRecorder(t *testing.T) {
	store := archive.NewMemoryStore()
	rec := archive.NewRecorder(store, 8, time.Second, logger.Discard())

	rec.Observe(session.Lifecycle{Kind: session.LifecycleCreated, SessionID: "a"})
	rec.Observe(session.Lifecycle{Kind: session.LifecycleClosed, SessionID: "no-summary"})
	rec.Observe(closedEvent("never-seated", false))
	rec.Observe(closedEvent("played", true))
	rec.Stop()

	games, err := store.List(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, games, 1)

	g := games[0]
	assert.Equal(t, "played", g.SessionID)
	assert.Equal(t, "0-1", g.Result)
	assert.Equal(t, "Checkmate", g.Method)
	assert.Len(t, g.Moves, 4)
	assert.Equal(t, uint64(1), rec.Stats().Saved)

	// 停止後的事件直接忽略
	assert.NotPanics(t, func() {
		rec.Observe(closedEvent("late", true))
		rec.Stop()
	})
}

// TestFromSummary 未分勝負的對局記為 "*"
func TestFromSummary(t *testing.T) {
	g := archive.FromSummary("x", &session.Summary{Reason: session.ReasonAbandoned})
	assert.Equal(t, "*", g.Result)
	assert.NotNil(t, g.Moves)
	assert.Empty(t, g.Moves)
}

type blockingStore struct {
	archive.Store
	release chan struct{}
}

func (b *blockingStore) Save(ctx context.Context, g archive.Game) error {
	<-b.release
	return b.Store.Save(ctx, g)
}

// TestRecorder_DropsWhenFull 緩衝滿時丟棄而不阻塞呼叫方
func TestRecorder_DropsWhenFull(t *testing.T) {
	store := &blockingStore{Store: archive.NewMemoryStore(), release: make(chan struct{})}
	rec := archive.NewRecorder(store, 1, time.Second, logger.Discard())

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 10; i++ {
			rec.Observe(closedEvent(string(rune('a'+i)), true))
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Observe 被阻塞")
	}

	close(store.release)
	rec.Stop()

	stats := rec.Stats()
	assert.Positive(t, stats.Dropped)
	assert.Equal(t, uint64(10), stats.Saved+stats.Dropped)
}

type failingStore struct {
	archive.Store
}

func (failingStore) Save(context.Context, archive.Game) error {
	return errors.New("disk on fire")
}

// TestRecorder_SaveFailure 寫入失敗只計數
func TestRecorder_SaveFailure(t *testing.T) {
	rec := archive.NewRecorder(failingStore{}, 4, time.Second, logger.Discard())
	rec.Observe(closedEvent("a", true))
	rec.Stop()

	assert.Equal(t, uint64(1), rec.Stats().Failed)
	assert.Equal(t, uint64(0), rec.Stats().Saved)
}

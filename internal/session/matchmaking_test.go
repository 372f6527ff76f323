package session_test

import (
	"testing"

	"github.com/koopa0/system-design/14-chess-session/internal/rules"
	"github.com/koopa0/system-design/14-chess-session/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestMatchmaker 測試配對佇列的狀態轉換
func TestMatchmaker(t *testing.T) {
	tests := []struct {
		name  string
		steps func(t *testing.T, reg *session.Registry, m *session.Matchmaker)
	}{
		{
			name: "empty queue waits",
			steps: func(t *testing.T, reg *session.Registry, m *session.Matchmaker) {
				out := m.RequestRandomMatch("a")
				assert.Equal(t, session.MatchWaiting, out.Kind)
				assert.True(t, out.Created)

				conn, id, ok := m.Pending()
				require.True(t, ok)
				assert.Equal(t, session.ConnID("a"), conn)
				assert.Equal(t, out.Session.ID, id)
				assert.True(t, out.Session.Snapshot().FirstMoverSeated)
			},
		},
		{
			name: "second request matches",
			steps: func(t *testing.T, reg *session.Registry, m *session.Matchmaker) {
				first := m.RequestRandomMatch("a")
				out := m.RequestRandomMatch("b")

				assert.Equal(t, session.MatchMatched, out.Kind)
				assert.Equal(t, session.ConnID("a"), out.Opponent)
				assert.Same(t, first.Session, out.Session)
				assert.False(t, out.Created)

				snap := out.Session.Snapshot()
				assert.True(t, snap.Active)
				assert.True(t, snap.SecondMoverSeated)

				_, _, ok := m.Pending()
				assert.False(t, ok)
				assert.Equal(t, 1, reg.Len())
			},
		},
		{
			name: "destroyed session falls back",
			steps: func(t *testing.T, reg *session.Registry, m *session.Matchmaker) {
				first := m.RequestRandomMatch("a")
				reg.Destroy(first.Session.ID)

				out := m.RequestRandomMatch("b")
				assert.Equal(t, session.MatchFallback, out.Kind)
				assert.True(t, out.Created)
				assert.NotEqual(t, first.Session.ID, out.Session.ID)

				snap := out.Session.Snapshot()
				assert.True(t, snap.Active)
				assert.False(t, snap.FirstMoverSeated)
				assert.True(t, snap.SecondMoverSeated)

				_, _, ok := m.Pending()
				assert.False(t, ok)
			},
		},
		{
			name: "repeat request keeps the same session",
			steps: func(t *testing.T, reg *session.Registry, m *session.Matchmaker) {
				first := m.RequestRandomMatch("a")
				again := m.RequestRandomMatch("a")

				assert.Equal(t, session.MatchWaiting, again.Kind)
				assert.False(t, again.Created)
				assert.Same(t, first.Session, again.Session)
				assert.Equal(t, 1, reg.Len())
			},
		},
		{
			name: "repeat request after its session vanished requeues",
			steps: func(t *testing.T, reg *session.Registry, m *session.Matchmaker) {
				first := m.RequestRandomMatch("a")
				reg.Destroy(first.Session.ID)

				again := m.RequestRandomMatch("a")
				assert.Equal(t, session.MatchWaiting, again.Kind)
				assert.True(t, again.Created)
				assert.NotEqual(t, first.Session.ID, again.Session.ID)
			},
		},
		{
			name: "cancel only clears own entry",
			steps: func(t *testing.T, reg *session.Registry, m *session.Matchmaker) {
				assert.False(t, m.Cancel("a"))

				m.RequestRandomMatch("a")
				assert.False(t, m.Cancel("b"))
				assert.True(t, m.Cancel("a"))

				_, _, ok := m.Pending()
				assert.False(t, ok)

				// 佇列清空後下一位重新等待
				out := m.RequestRandomMatch("b")
				assert.Equal(t, session.MatchWaiting, out.Kind)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := session.NewRegistry(rules.NewChess())
			m := session.NewMatchmaker(reg)
			tt.steps(t, reg, m)
		})
	}
}

func TestMatchKind_String(t *testing.T) {
	assert.Equal(t, "waiting", session.MatchWaiting.String())
	assert.Equal(t, "matched", session.MatchMatched.String())
	assert.Equal(t, "fallback", session.MatchFallback.String())
	assert.Equal(t, "unknown", session.MatchKind(99).String())
}

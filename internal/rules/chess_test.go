package rules_test

import (
	"strings"
	"testing"

	"github.com/koopa0/system-design/14-chess-session/internal/rules"
	apperrors "github.com/koopa0/system-design/14-chess-session/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const startFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

func TestChess_Initial(t *testing.T) {
	engine := rules.NewChess()
	pos := engine.Initial()

	assert.Equal(t, startFEN, pos.String())
	assert.Equal(t, rules.FirstMover, pos.Turn())
	assert.False(t, engine.Outcome(pos).Decided())
}

func TestChess_Apply(t *testing.T) {
	tests := []struct {
		name      string
		move      rules.Move
		wantErr   func(error) bool
		wantTurn  rules.Side
		wantBoard string
	}{
		{
			name:      "pawn double push",
			move:      rules.Move{From: "e2", To: "e4"},
			wantTurn:  rules.SecondMover,
			wantBoard: "rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR",
		},
		{
			name:      "promotion hint ignored on ordinary move",
			move:      rules.Move{From: "g1", To: "f3", Promotion: "q"},
			wantTurn:  rules.SecondMover,
			wantBoard: "rnbqkbnr/pppppppp/8/8/8/5N2/PPPPPPPP/RNBQKB1R",
		},
		{
			name:      "upper case squares accepted",
			move:      rules.Move{From: "D2", To: "D4"},
			wantTurn:  rules.SecondMover,
			wantBoard: "rnbqkbnr/pppppppp/8/8/3P4/8/PPP1PPPP/RNBQKBNR",
		},
		{
			name:    "pawn cannot jump three squares",
			move:    rules.Move{From: "e2", To: "e5"},
			wantErr: apperrors.IsRejected,
		},
		{
			name:    "black piece on white turn",
			move:    rules.Move{From: "e7", To: "e5"},
			wantErr: apperrors.IsRejected,
		},
		{
			name:    "unknown square",
			move:    rules.Move{From: "z9", To: "e4"},
			wantErr: apperrors.IsInvalidInput,
		},
		{
			name:    "unknown promotion piece",
			move:    rules.Move{From: "e2", To: "e4", Promotion: "k"},
			wantErr: apperrors.IsInvalidInput,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := rules.NewChess()
			pos := engine.Initial()

			next, err := engine.Apply(pos, tt.move)
			assert.Equal(t, startFEN, pos.String(), "原局面不可被修改")

			if tt.wantErr != nil {
				require.Error(t, err)
				assert.True(t, tt.wantErr(err), "unexpected error kind: %v", err)
				assert.Nil(t, next)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.wantTurn, next.Turn())
			assert.Equal(t, tt.wantBoard, strings.Fields(next.String())[0])
		})
	}
}

func TestChess_Promotion(t *testing.T) {
	engine := rules.NewChess()
	pos, err := engine.Load("8/4P3/8/8/8/8/k7/4K3 w - - 0 1")
	require.NoError(t, err)

	tests := []struct {
		name      string
		promotion string
		wantRank  string
	}{
		{name: "defaults to queen", promotion: "", wantRank: "4Q3"},
		{name: "explicit queen", promotion: "q", wantRank: "4Q3"},
		{name: "under promotion", promotion: "n", wantRank: "4N3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next, err := engine.Apply(pos, rules.Move{From: "e7", To: "e8", Promotion: tt.promotion})
			require.NoError(t, err)
			assert.True(t, strings.HasPrefix(next.String(), tt.wantRank+"/"), next.String())
		})
	}
}

func TestChess_FoolsMate(t *testing.T) {
	engine := rules.NewChess()
	pos := engine.Initial()

	moves := []rules.Move{
		{From: "f2", To: "f3"},
		{From: "e7", To: "e5"},
		{From: "g2", To: "g4"},
		{From: "d8", To: "h4"},
	}
	for _, mv := range moves {
		var err error
		pos, err = engine.Apply(pos, mv)
		require.NoError(t, err, mv.UCI())
	}

	outcome := engine.Outcome(pos)
	assert.True(t, outcome.Decided())
	assert.Equal(t, "0-1", outcome.Result)
	assert.Equal(t, "Checkmate", outcome.Method)

	_, err := engine.Apply(pos, rules.Move{From: "a2", To: "a3"})
	assert.True(t, apperrors.IsRejected(err))
}

func TestChess_Load(t *testing.T) {
	engine := rules.NewChess()

	pos, err := engine.Load(startFEN)
	require.NoError(t, err)
	assert.Equal(t, startFEN, pos.String())

	_, err = engine.Load("not a fen")
	require.Error(t, err)
	assert.True(t, apperrors.IsInvalidInput(err))
}

func TestChess_RoundTrip(t *testing.T) {
	engine := rules.NewChess()
	pos := engine.Initial()

	for _, mv := range []rules.Move{{From: "e2", To: "e4"}, {From: "c7", To: "c5"}, {From: "g1", To: "f3"}} {
		var err error
		pos, err = engine.Apply(pos, mv)
		require.NoError(t, err)
	}

	loaded, err := engine.Load(pos.String())
	require.NoError(t, err)
	assert.Equal(t, pos.String(), loaded.String())
	assert.Equal(t, pos.Turn(), loaded.Turn())
}

func TestSide_Opponent(t *testing.T) {
	assert.Equal(t, rules.SecondMover, rules.FirstMover.Opponent())
	assert.Equal(t, rules.FirstMover, rules.SecondMover.Opponent())
}

func TestMove_UCI(t *testing.T) {
	assert.Equal(t, "e2e4", rules.Move{From: "e2", To: "e4"}.UCI())
	assert.Equal(t, "e7e8q", rules.Move{From: "E7", To: "E8", Promotion: "Q"}.UCI())
}

package rules

import (
	"fmt"
	"strings"

	apperrors "github.com/koopa0/system-design/14-chess-session/pkg/errors"
	"github.com/notnil/chess"
)

// Chess 以 notnil/chess 實作的西洋棋規則引擎
type Chess struct{}

// NewChess 創建西洋棋規則引擎
func NewChess() *Chess {
	return &Chess{}
}

type chessPosition struct {
	game *chess.Game
}

func (p *chessPosition) Turn() Side {
	if p.game.Position().Turn() == chess.White {
		return FirstMover
	}
	return SecondMover
}

func (p *chessPosition) String() string {
	return p.game.Position().String()
}

var squares = func() map[string]chess.Square {
	m := make(map[string]chess.Square, 64)
	for sq := chess.A1; sq <= chess.H8; sq++ {
		m[sq.String()] = sq
	}
	return m
}()

var promotions = map[string]chess.PieceType{
	"":  chess.NoPieceType,
	"q": chess.Queen,
	"r": chess.Rook,
	"b": chess.Bishop,
	"n": chess.Knight,
}

// Initial 標準開局
func (c *Chess) Initial() Position {
	return &chessPosition{game: chess.NewGame()}
}

// Load 由 FEN 還原局面
func (c *Chess) Load(serialized string) (Position, error) {
	opt, err := chess.FEN(serialized)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInvalidInput, apperrors.ErrMalformedPosition.Message)
	}
	return &chessPosition{game: chess.NewGame(opt)}, nil
}

// Apply 在副本上套用走法
//
// 升變欄位的處理與瀏覽器端 chess.js 一致：
//   - 非升變走法附帶的升變棋子會被忽略（前端固定送 "q"）
//   - 升變走法未指定棋子時升為后
func (c *Chess) Apply(pos Position, mv Move) (Position, error) {
	p, ok := pos.(*chessPosition)
	if !ok || p == nil {
		return nil, apperrors.ErrMalformedPosition.WithDetails(fmt.Sprintf("%T", pos))
	}

	from, ok := squares[strings.ToLower(mv.From)]
	if !ok {
		return nil, apperrors.ErrMalformedMove.WithDetails("from=" + mv.From)
	}
	to, ok := squares[strings.ToLower(mv.To)]
	if !ok {
		return nil, apperrors.ErrMalformedMove.WithDetails("to=" + mv.To)
	}
	promo, ok := promotions[strings.ToLower(mv.Promotion)]
	if !ok {
		return nil, apperrors.ErrMalformedMove.WithDetails("promotion=" + mv.Promotion)
	}

	if p.game.Outcome() != chess.NoOutcome {
		return nil, apperrors.ErrIllegalMove.WithDetails("game is over")
	}

	var chosen *chess.Move
	for _, cand := range p.game.ValidMoves() {
		if cand.S1() != from || cand.S2() != to {
			continue
		}
		if cand.Promo() == chess.NoPieceType ||
			cand.Promo() == promo ||
			(promo == chess.NoPieceType && cand.Promo() == chess.Queen) {
			chosen = cand
			break
		}
	}
	if chosen == nil {
		return nil, apperrors.ErrIllegalMove.WithDetails(mv.UCI())
	}

	next := p.game.Clone()
	if err := next.Move(chosen); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeRejected, apperrors.ErrIllegalMove.Message)
	}

	return &chessPosition{game: next}, nil
}

// Outcome 對局結果；未結束時為 "*"
func (c *Chess) Outcome(pos Position) Outcome {
	p, ok := pos.(*chessPosition)
	if !ok || p == nil {
		return Outcome{Result: string(chess.NoOutcome)}
	}
	if p.game.Outcome() == chess.NoOutcome {
		return Outcome{Result: string(chess.NoOutcome)}
	}
	return Outcome{
		Result: string(p.game.Outcome()),
		Method: p.game.Method().String(),
	}
}

package archive

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	apperrors "github.com/koopa0/system-design/14-chess-session/pkg/errors"
)

// PoolConfig 連接池參數
type PoolConfig struct {
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// Connect 建立 PostgreSQL 連接池並驗證連線
func Connect(ctx context.Context, dsn string, cfg PoolConfig) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}

	if cfg.MaxConns > 0 {
		config.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		config.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		config.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		config.MaxConnIdleTime = cfg.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return pool, nil
}

// PostgresStore 以 PostgreSQL 保存歸檔
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore 創建 PostgreSQL 歸檔，資料表由 migrations 建立
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const upsertGame = `
INSERT INTO archived_games (session_id, moves, final_position, result, method, reason, created_at, started_at, ended_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (session_id) DO UPDATE SET
    moves = EXCLUDED.moves,
    final_position = EXCLUDED.final_position,
    result = EXCLUDED.result,
    method = EXCLUDED.method,
    reason = EXCLUDED.reason,
    started_at = EXCLUDED.started_at,
    ended_at = EXCLUDED.ended_at`

const selectColumns = `SELECT session_id, moves, final_position, result, method, reason, created_at, started_at, ended_at FROM archived_games`

func (s *PostgresStore) Save(ctx context.Context, g Game) error {
	moves := g.Moves
	if moves == nil {
		moves = []string{}
	}

	_, err := s.pool.Exec(ctx, upsertGame,
		g.SessionID, moves, g.FinalPosition, g.Result, g.Method, g.Reason,
		g.CreatedAt, g.StartedAt, g.EndedAt)
	if err != nil {
		return fmt.Errorf("save archived game %s: %w", g.SessionID, err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, sessionID string) (Game, error) {
	row := s.pool.QueryRow(ctx, selectColumns+` WHERE session_id = $1`, sessionID)

	g, err := scanGame(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Game{}, apperrors.ErrGameNotArchived.WithDetails(sessionID)
		}
		return Game{}, fmt.Errorf("get archived game %s: %w", sessionID, err)
	}
	return g, nil
}

func (s *PostgresStore) List(ctx context.Context, limit int) ([]Game, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.pool.Query(ctx, selectColumns+` ORDER BY ended_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list archived games: %w", err)
	}
	defer rows.Close()

	games := make([]Game, 0, limit)
	for rows.Next() {
		g, err := scanGame(rows)
		if err != nil {
			return nil, fmt.Errorf("scan archived game: %w", err)
		}
		games = append(games, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list archived games: %w", err)
	}
	return games, nil
}

func scanGame(row pgx.Row) (Game, error) {
	var g Game
	err := row.Scan(&g.SessionID, &g.Moves, &g.FinalPosition, &g.Result, &g.Method, &g.Reason,
		&g.CreatedAt, &g.StartedAt, &g.EndedAt)
	return g, err
}
